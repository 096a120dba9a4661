package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Conceptual-Machines/magda-timeline-go/barbeat"
)

func TestBuildPrompt(t *testing.T) {
	p, err := NewArrangementPromptBuilder(barbeat.TimeSignature{Numerator: 6, Denominator: 8}).BuildPrompt()
	require.NoError(t, err)

	assert.Contains(t, p, "time signature 6/8")
	assert.Contains(t, p, "A bar has 6 beats and a beat is a 1/8 note")
	for _, tool := range []string{"lengthen_clips", "split_clips", "slice_clips", "move_clips"} {
		assert.Contains(t, p, tool)
	}
}

func TestBuildPromptRejectsInvalidTimeSignature(t *testing.T) {
	_, err := NewArrangementPromptBuilder(barbeat.TimeSignature{Numerator: 4, Denominator: 6}).BuildPrompt()
	assert.ErrorIs(t, err, barbeat.ErrInvalidTimeSignature)
}
