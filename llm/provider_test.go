package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderFactory(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name         string
		openaiKey    string
		geminiKey    string
		model        string
		providerName string
		want         string
		wantErr      bool
	}{
		{name: "gpt model", openaiKey: "sk", model: "gpt-5.1", want: "openai"},
		{name: "unknown model defaults to openai", openaiKey: "sk", model: "o4-mini", want: "openai"},
		{name: "explicit openai", openaiKey: "sk", model: "gemini-2.5-pro", providerName: "OpenAI", want: "openai"},
		{name: "gemini model", geminiKey: "g", model: "gemini-2.5-flash", want: "gemini"},
		{name: "missing openai key", model: "gpt-5.1", wantErr: true},
		{name: "missing gemini key", openaiKey: "sk", model: "gemini-2.5-flash", wantErr: true},
		{name: "unknown provider", openaiKey: "sk", providerName: "claude", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewProviderFactory(tt.openaiKey, tt.geminiKey)
			p, err := f.GetProvider(ctx, tt.model, tt.providerName)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, p)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Name())
		})
	}
}

func TestToolCallDecodeArguments(t *testing.T) {
	var args struct {
		ClipIDs []string `json:"clip_ids"`
	}
	call := ToolCall{Name: "split_clips", Arguments: json.RawMessage(`{"clip_ids":["id 3"]}`)}
	require.NoError(t, call.DecodeArguments(&args))
	assert.Equal(t, []string{"id 3"}, args.ClipIDs)

	empty := ToolCall{Name: "noop"}
	assert.NoError(t, empty.DecodeArguments(&args))

	bad := ToolCall{Name: "split_clips", Arguments: json.RawMessage(`{"clip_ids":`)}
	assert.ErrorContains(t, bad.DecodeArguments(&args), "split_clips")
}

const fakeResponse = `{
  "id": "resp_1",
  "object": "response",
  "created_at": 1,
  "model": "gpt-5.1",
  "status": "completed",
  "output": [
    {"type": "reasoning", "id": "rs_1", "summary": []},
    {"type": "function_call", "id": "fc_1", "call_id": "call_1", "name": "split_clips",
     "arguments": "{\"clip_ids\":[\"id 1\"],\"positions\":[\"2|1\"]}", "status": "completed"},
    {"type": "function_call", "id": "fc_2", "call_id": "call_2", "name": "lengthen_clips",
     "arguments": "{\"clip_ids\":[\"id 2\"],\"length\":\"4:0\"}", "status": "completed"}
  ],
  "usage": {
    "input_tokens": 120,
    "input_tokens_details": {"cached_tokens": 0},
    "output_tokens": 40,
    "output_tokens_details": {"reasoning_tokens": 16},
    "total_tokens": 160
  }
}`

func TestOpenAIProviderParsesFunctionCalls(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/responses"), r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, fakeResponse)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("sk-test", option.WithBaseURL(srv.URL+"/"), option.WithMaxRetries(0))
	resp, err := p.GenerateToolCalls(context.Background(), &ToolRequest{
		Model:        "gpt-5.1",
		SystemPrompt: "edit clips",
		UserPrompt:   "split clip 1 at bar 2",
		Tools: []ToolDefinition{{
			Name:        "split_clips",
			Description: "split clips",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		}},
	})
	require.NoError(t, err)

	require.Len(t, resp.Calls, 2)
	assert.Equal(t, "split_clips", resp.Calls[0].Name)
	assert.Equal(t, "call_1", resp.Calls[0].ID)
	assert.JSONEq(t, `{"clip_ids":["id 1"],"positions":["2|1"]}`, string(resp.Calls[0].Arguments))
	assert.Equal(t, "lengthen_clips", resp.Calls[1].Name)
	assert.Equal(t, Usage{InputTokens: 120, OutputTokens: 40, ReasoningTokens: 16, TotalTokens: 160}, resp.Usage)

	require.NotNil(t, body)
	assert.Equal(t, "gpt-5.1", body["model"])
	tools, ok := body["tools"].([]any)
	require.True(t, ok)
	require.Len(t, tools, 1)
	tool := tools[0].(map[string]any)
	assert.Equal(t, "function", tool["type"])
	assert.Equal(t, "split_clips", tool["name"])
}

func TestReasoningEffort(t *testing.T) {
	assert.EqualValues(t, "low", reasoningEffort(""))
	assert.EqualValues(t, "low", reasoningEffort("min"))
	assert.EqualValues(t, "medium", reasoningEffort("med"))
	assert.EqualValues(t, "high", reasoningEffort("high"))
	assert.EqualValues(t, "none", reasoningEffort("none"))
}
