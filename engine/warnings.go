package engine

import (
	"fmt"
	"log"
)

// Warnings collects human-readable warnings for one batch operation.
// Duplicates are dropped when the list is read.
type Warnings struct {
	items []string
}

// Add formats and records a warning.
func (w *Warnings) Add(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Printf("⚠️  %s", msg)
	w.items = append(w.items, msg)
}

// Len returns the number of recorded warnings, duplicates included.
func (w *Warnings) Len() int {
	return len(w.items)
}

// List returns the warnings in the order they were first recorded.
func (w *Warnings) List() []string {
	out := make([]string, 0, len(w.items))
	seen := make(map[string]struct{}, len(w.items))
	for _, msg := range w.items {
		if _, ok := seen[msg]; ok {
			continue
		}
		seen[msg] = struct{}{}
		out = append(out, msg)
	}
	return out
}
