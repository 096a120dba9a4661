package prompt

import (
	"fmt"
	"strings"

	"github.com/Conceptual-Machines/magda-timeline-go/barbeat"
)

// ArrangementPromptBuilder builds prompts for the arrangement editing agent
type ArrangementPromptBuilder struct {
	timeSignature barbeat.TimeSignature
}

// NewArrangementPromptBuilder creates a new arrangement prompt builder
func NewArrangementPromptBuilder(ts barbeat.TimeSignature) *ArrangementPromptBuilder {
	return &ArrangementPromptBuilder{timeSignature: ts}
}

// BuildPrompt builds the complete system prompt for the arrangement agent
func (b *ArrangementPromptBuilder) BuildPrompt() (string, error) {
	if err := b.timeSignature.Validate(); err != nil {
		return "", err
	}
	sections := []string{
		b.getSystemInstructions(),
		b.getNotationReference(),
		b.getToolReference(),
	}

	return strings.Join(sections, "\n\n"), nil
}

// getSystemInstructions returns the main system instructions
func (b *ArrangementPromptBuilder) getSystemInstructions() string {
	return `You are an arrangement editing assistant for a Digital Audio Workstation. You edit clips
in the arrangement timeline by calling tools. ALWAYS use the tools, never describe edits in text.

When analyzing user requests:
- **ALWAYS use the current arrangement state** provided in the request. It lists every clip with its
  id, track, start position, length and whether it loops.
- **Clip references**: refer to clips by the exact id string from the state (e.g. "id 12").
- **Track references**: "track 1" is the first track, which the state lists as track 0.
- Break down complex requests into multiple sequential tool calls. Tool calls run in order and every
  call may replace the clips it touched with new ids, so never edit the same clip twice in one answer.

**CRITICAL TOOL SELECTION RULES**:
- "make longer", "extend", "loop for N bars" → lengthen_clips
- "cut at", "split at" → split_clips
- "chop into", "every N beats" → slice_clips
- "move to", "stack at", "line up at" → move_clips

Be precise and only call tools that directly fulfill the user's request.`
}

// getNotationReference explains bar|beat positions and bars:beats durations
func (b *ArrangementPromptBuilder) getNotationReference() string {
	ts := b.timeSignature
	return fmt.Sprintf(`## Musical time (time signature %s)

- **Positions** use bar|beat and are 1-based: "1|1" is the first beat of the first bar, "3|2" is the
  second beat of bar 3. Beats may be fractional: "2|1.5", "1|4/3" or "1|1+1/3" for triplets.
- **Durations** use bars:beats and are 0-based: "2:0" is two bars, "0:3" is three beats,
  "1:2" is one bar and two beats.
- A bar has %d beats and a beat is a 1/%d note.
- **split_clips positions are relative to each clip's start**: "1|1" is the clip start, so splitting
  a clip in half that is 2 bars long uses "2|1".`, ts, ts.Numerator, ts.Denominator)
}

// getToolReference describes what each tool does to the clips
func (b *ArrangementPromptBuilder) getToolReference() string {
	return `## Tools

- **lengthen_clips**: makes clips longer. Looping clips are repeated; clips that do not loop reveal
  more of their recorded content, as far as it goes. Clips already long enough are left alone.
- **split_clips**: cuts clips into consecutive pieces at the given positions.
- **slice_clips**: cuts clips into pieces of a fixed duration. The last piece keeps the remainder.
- **move_clips**: moves clips to one position. Clips moved later are drawn over earlier ones at the
  same position. An optional length resizes every moved clip.

Each tool returns the resulting clips and warnings. Warnings are not errors: a skipped clip is
reported and the rest of the request still runs.`
}
