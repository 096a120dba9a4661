package arrangement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/Conceptual-Machines/magda-timeline-go/engine"
	"github.com/Conceptual-Machines/magda-timeline-go/llm"
	"github.com/Conceptual-Machines/magda-timeline-go/metrics"
)

// Tool names
const (
	ToolLengthenClips = "lengthen_clips"
	ToolSplitClips    = "split_clips"
	ToolSliceClips    = "slice_clips"
	ToolMoveClips     = "move_clips"
)

// ErrInvalidArguments is returned for tool calls with missing or malformed arguments
var ErrInvalidArguments = errors.New("invalid tool arguments")

// ErrUnknownTool is returned for tool names the toolbox does not know
var ErrUnknownTool = errors.New("unknown tool")

type lengthenArgs struct {
	ClipIDs []string `json:"clip_ids"`
	Length  string   `json:"length"`
}

type splitArgs struct {
	ClipIDs   []string `json:"clip_ids"`
	Positions []string `json:"positions"`
}

type sliceArgs struct {
	ClipIDs []string `json:"clip_ids"`
	Size    string   `json:"size"`
}

type moveArgs struct {
	ClipIDs  []string `json:"clip_ids"`
	Position string   `json:"position"`
	Length   string   `json:"length,omitempty"`
}

func clipIDsSchema() map[string]any {
	return map[string]any{
		"type":        "array",
		"description": `Clip ids exactly as listed in the arrangement state, e.g. "id 12"`,
		"items":       map[string]any{"type": "string"},
		"minItems":    1,
	}
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}

// ToolDefinitions returns the JSON-schema definitions of the arrangement tools
func ToolDefinitions() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{
			Name:        ToolLengthenClips,
			Description: "Make clips longer. Looping clips repeat their loop; other clips reveal more of their content.",
			Parameters: objectSchema(map[string]any{
				"clip_ids": clipIDsSchema(),
				"length":   map[string]any{"type": "string", "description": `Target length in bars:beats, e.g. "4:0"`},
			}, "clip_ids", "length"),
		},
		{
			Name:        ToolSplitClips,
			Description: "Split clips into consecutive pieces at positions relative to each clip's start.",
			Parameters: objectSchema(map[string]any{
				"clip_ids": clipIDsSchema(),
				"positions": map[string]any{
					"type":        "array",
					"description": `Split points in bar|beat relative to the clip start ("1|1" is the clip start), e.g. ["2|1", "3|1"]`,
					"items":       map[string]any{"type": "string"},
					"minItems":    1,
				},
			}, "clip_ids", "positions"),
		},
		{
			Name:        ToolSliceClips,
			Description: "Cut clips into pieces of a fixed duration; the last piece keeps the remainder.",
			Parameters: objectSchema(map[string]any{
				"clip_ids": clipIDsSchema(),
				"size":     map[string]any{"type": "string", "description": `Slice duration in bars:beats, e.g. "0:2"`},
			}, "clip_ids", "size"),
		},
		{
			Name:        ToolMoveClips,
			Description: "Move clips to one position. Clips moved later are drawn over earlier ones.",
			Parameters: objectSchema(map[string]any{
				"clip_ids": clipIDsSchema(),
				"position": map[string]any{"type": "string", "description": `Target position in bar|beat, e.g. "9|1"`},
				"length":   map[string]any{"type": "string", "description": `Optional new length in bars:beats for every moved clip`},
			}, "clip_ids", "position"),
		},
	}
}

// Toolbox dispatches tool calls to the arrangement engine
type Toolbox struct {
	engine  *engine.Engine
	metrics *metrics.SentryMetrics
}

// NewToolbox creates a toolbox for the engine
func NewToolbox(e *engine.Engine) *Toolbox {
	return &Toolbox{
		engine:  e,
		metrics: metrics.NewSentryMetrics(),
	}
}

// Engine returns the engine the toolbox dispatches to
func (t *Toolbox) Engine() *engine.Engine {
	return t.engine
}

// Execute decodes the arguments of one tool call and runs it. source names
// the caller ("agent", "mcp") for metrics.
func (t *Toolbox) Execute(ctx context.Context, source, name string, arguments json.RawMessage) (*engine.Result, error) {
	log.Printf("🔧 TOOL CALL (%s): %s %s", source, name, truncate(string(arguments), maxArgsLogLength))
	result, err := t.execute(ctx, name, arguments)
	t.metrics.RecordToolCall(ctx, source, name, err == nil)
	if err != nil {
		log.Printf("❌ TOOL %s FAILED: %v", name, err)
	}
	return result, err
}

func (t *Toolbox) execute(ctx context.Context, name string, arguments json.RawMessage) (*engine.Result, error) {
	call := llm.ToolCall{Name: name, Arguments: arguments}

	switch name {
	case ToolLengthenClips:
		var args lengthenArgs
		if err := decode(call, &args); err != nil {
			return nil, err
		}
		if err := requireClips(name, args.ClipIDs); err != nil {
			return nil, err
		}
		if err := requireField(name, "length", args.Length); err != nil {
			return nil, err
		}
		return t.engine.LengthenClips(ctx, args.ClipIDs, args.Length)

	case ToolSplitClips:
		var args splitArgs
		if err := decode(call, &args); err != nil {
			return nil, err
		}
		if err := requireClips(name, args.ClipIDs); err != nil {
			return nil, err
		}
		if len(args.Positions) == 0 {
			return nil, fmt.Errorf("%w: %s needs at least one position", ErrInvalidArguments, name)
		}
		return t.engine.SplitClips(ctx, args.ClipIDs, args.Positions)

	case ToolSliceClips:
		var args sliceArgs
		if err := decode(call, &args); err != nil {
			return nil, err
		}
		if err := requireClips(name, args.ClipIDs); err != nil {
			return nil, err
		}
		if err := requireField(name, "size", args.Size); err != nil {
			return nil, err
		}
		return t.engine.SliceClips(ctx, args.ClipIDs, args.Size)

	case ToolMoveClips:
		var args moveArgs
		if err := decode(call, &args); err != nil {
			return nil, err
		}
		if err := requireClips(name, args.ClipIDs); err != nil {
			return nil, err
		}
		if err := requireField(name, "position", args.Position); err != nil {
			return nil, err
		}
		return t.engine.MoveClips(ctx, args.ClipIDs, args.Position, strings.TrimSpace(args.Length))
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
}

func decode(call llm.ToolCall, v any) error {
	if err := call.DecodeArguments(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}

func requireClips(tool string, ids []string) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: %s needs at least one clip id", ErrInvalidArguments, tool)
	}
	return nil
}

func requireField(tool, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s needs %s", ErrInvalidArguments, tool, field)
	}
	return nil
}

const maxArgsLogLength = 120

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
