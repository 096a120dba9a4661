// Package host defines the timeline primitives the arrangement engine is
// written against. A host owns every clip; callers only ever hold ClipIDs,
// which become invalid as soon as the clip they name is deleted or
// recreated by a destructive edit.
package host

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrClipNotFound is returned when an id no longer names a live clip.
	ErrClipNotFound = errors.New("clip not found")
	// ErrInvalidClipID is returned by ParseClipID for malformed input.
	ErrInvalidClipID = errors.New("invalid clip id")
	// ErrReadOnlyProperty is returned when setting a property the host
	// only exposes for reading.
	ErrReadOnlyProperty = errors.New("read-only property")
	// ErrUnknownProperty is returned for property names the host does not know.
	ErrUnknownProperty = errors.New("unknown property")
)

const clipIDPrefix = "id "

// ClipID is an opaque handle to a host clip. The zero value names no clip.
type ClipID struct {
	n int64
}

// NewClipID wraps a host-assigned numeric id. Only host implementations
// should need this.
func NewClipID(n int64) ClipID {
	return ClipID{n: n}
}

// ParseClipID accepts both "id 12" and bare "12".
func ParseClipID(s string) (ClipID, error) {
	trimmed := strings.TrimSpace(s)
	trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, clipIDPrefix))
	n, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || n <= 0 {
		return ClipID{}, fmt.Errorf("%w: %q", ErrInvalidClipID, s)
	}
	return ClipID{n: n}, nil
}

// String formats the id as "id 12".
func (id ClipID) String() string {
	return clipIDPrefix + strconv.FormatInt(id.n, 10)
}

// Int64 returns the numeric host id.
func (id ClipID) Int64() int64 {
	return id.n
}

// IsZero reports whether id names no clip.
func (id ClipID) IsZero() bool {
	return id.n == 0
}

// MarshalText implements encoding.TextMarshaler so ids serialize as "id 12".
func (id ClipID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ClipID) UnmarshalText(b []byte) error {
	parsed, err := ParseClipID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// TrackID identifies a track by its 0-based index in the arrangement.
type TrackID int

// ContentType distinguishes note clips from audio clips.
type ContentType int

const (
	ContentMIDI ContentType = iota
	ContentAudio
)

func (c ContentType) String() string {
	if c == ContentAudio {
		return "audio"
	}
	return "midi"
}

// Property is a scalar clip property name.
type Property string

const (
	PropStartTime   Property = "start_time"
	PropEndTime     Property = "end_time"
	PropStartMarker Property = "start_marker"
	PropEndMarker   Property = "end_marker"
	PropLoopStart   Property = "loop_start"
	PropLoopEnd     Property = "loop_end"
	PropLooping     Property = "looping"
	PropLength      Property = "length"
	PropIsMIDIClip  Property = "is_midi_clip"
)

// Writable reports whether the host accepts writes to p.
func (p Property) Writable() bool {
	switch p {
	case PropStartMarker, PropEndMarker, PropLoopStart, PropLoopEnd, PropLooping:
		return true
	}
	return false
}

// Bool converts a boolean to the 0/1 value the host uses.
func Bool(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// TimelineHost is the set of primitives a DAW exposes for arrangement
// editing. Every call is blocking and its effect is visible to the next
// call. There is no transaction support and no trim or split primitive.
type TimelineHost interface {
	// CreateClip creates an empty clip spanning [start, start+length) on
	// track, overwriting whatever it overlaps.
	CreateClip(track TrackID, start, length float64, content ContentType) (ClipID, error)
	// DuplicateClipToPosition copies a clip to newStart on the same track,
	// overwriting whatever the copy overlaps.
	DuplicateClipToPosition(id ClipID, newStart float64) (ClipID, error)
	DeleteClip(id ClipID) error
	ClipProperty(id ClipID, name Property) (float64, error)
	SetClipProperty(id ClipID, name Property, value float64) error
	// ClipsOnTrack lists the clips on track ordered by start time.
	ClipsOnTrack(track TrackID) ([]ClipID, error)
	// ClipTrack resolves the track a clip lives on.
	ClipTrack(id ClipID) (TrackID, error)
}
