package models

// ClipInfo describes a clip produced or left in place by an arrangement edit
type ClipInfo struct {
	ID      string `json:"id"`
	Track   int    `json:"track"`
	Type    string `json:"type"` // "midi" or "audio"
	Looping bool   `json:"looping"`
	// Start is the arrangement position in bar|beat notation
	Start string `json:"start"`
	// Length is the arrangement length in bars:beats notation
	Length     string  `json:"length"`
	StartBeats float64 `json:"start_beats"`
	EndBeats   float64 `json:"end_beats"`
}

// EditActionsOutput represents the edits an agent run performed
type EditActionsOutput struct {
	Actions []EditAction `json:"actions"`
}

// EditAction is one executed tool call and its outcome
type EditAction struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
	Clips     []ClipInfo     `json:"clips,omitempty"`
	Warnings  []string       `json:"warnings,omitempty"`
	Error     string         `json:"error,omitempty"`
}
