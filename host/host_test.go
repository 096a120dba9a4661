package host

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClipID(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
		wantErr  bool
	}{
		{input: "id 12", expected: 12},
		{input: "12", expected: 12},
		{input: "  id 7 ", expected: 7},
		{input: "id", wantErr: true},
		{input: "", wantErr: true},
		{input: "id -3", wantErr: true},
		{input: "id 0", wantErr: true},
		{input: "clip 4", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			id, err := ParseClipID(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidClipID)
				assert.True(t, id.IsZero())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, id.Int64())
		})
	}
}

func TestClipIDFormatting(t *testing.T) {
	id := NewClipID(42)
	assert.Equal(t, "id 42", id.String())

	data, err := json.Marshal(map[string]ClipID{"clip": id})
	require.NoError(t, err)
	assert.JSONEq(t, `{"clip":"id 42"}`, string(data))

	var decoded map[string]ClipID
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, id, decoded["clip"])
}

func TestPropertyWritable(t *testing.T) {
	assert.True(t, PropLoopEnd.Writable())
	assert.True(t, PropLooping.Writable())
	assert.False(t, PropStartTime.Writable())
	assert.False(t, PropLength.Writable())
	assert.False(t, PropIsMIDIClip.Writable())
}
