package sandbox

import (
	"fmt"
	"io"
	"math"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/Conceptual-Machines/magda-timeline-go/barbeat"
	"github.com/Conceptual-Machines/magda-timeline-go/host"
)

// ClipState is the full state of one sandbox clip. It doubles as the YAML
// format for arrangement files.
type ClipState struct {
	ID          int64   `yaml:"id,omitempty"`
	Track       int     `yaml:"track"`
	Audio       bool    `yaml:"audio,omitempty"`
	Start       float64 `yaml:"start"`
	End         float64 `yaml:"end"`
	Looping     bool    `yaml:"looping,omitempty"`
	LoopStart   float64 `yaml:"loop_start"`
	LoopEnd     float64 `yaml:"loop_end"`
	StartMarker float64 `yaml:"start_marker"`
	EndMarker   float64 `yaml:"end_marker"`
	// Material is the audio sample length in beats; 0 means unbounded.
	Material float64 `yaml:"material,omitempty"`
}

// Arrangement is the YAML document the sandbox loads and saves.
type Arrangement struct {
	Tracks        int                   `yaml:"tracks"`
	TimeSignature barbeat.TimeSignature `yaml:"time_signature"`
	Clips         []ClipState           `yaml:"clips"`
}

// Length returns the clip's arrangement span.
func (s ClipState) Length() float64 {
	return s.End - s.Start
}

// AddClip inserts a clip directly, bypassing call recording and overwrite
// semantics. Missing loop points and markers default to the clip span, and
// a zero ID gets the next free id.
func (h *Host) AddClip(s ClipState) host.ClipID {
	h.mu.Lock()
	defer h.mu.Unlock()

	length := s.End - s.Start
	c := &clip{
		track:       host.TrackID(s.Track),
		start:       s.Start,
		end:         s.End,
		looping:     s.Looping,
		loopStart:   s.LoopStart,
		loopEnd:     s.LoopEnd,
		startMarker: s.StartMarker,
		endMarker:   s.EndMarker,
		material:    math.Inf(1),
	}
	if s.Audio {
		c.content = host.ContentAudio
		if s.Material > 0 {
			c.material = s.Material
		}
	}
	if c.loopEnd <= c.loopStart {
		c.loopEnd = c.loopStart + length
	}
	if c.endMarker <= c.startMarker {
		c.endMarker = c.startMarker + length
	}
	if int(c.track) >= h.tracks {
		h.tracks = int(c.track) + 1
	}

	if s.ID > 0 {
		c.id = s.ID
		h.clips[c.id] = c
		if s.ID >= h.nextID {
			h.nextID = s.ID + 1
		}
		return host.NewClipID(c.id)
	}
	return h.insert(c)
}

// Snapshot returns the state of every clip ordered by track then start.
func (h *Host) Snapshot() []ClipState {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]ClipState, 0, len(h.clips))
	for _, c := range h.clips {
		s := ClipState{
			ID:          c.id,
			Track:       int(c.track),
			Audio:       c.content == host.ContentAudio,
			Start:       c.start,
			End:         c.end,
			Looping:     c.looping,
			LoopStart:   c.loopStart,
			LoopEnd:     c.loopEnd,
			StartMarker: c.startMarker,
			EndMarker:   c.endMarker,
		}
		if !math.IsInf(c.material, 1) {
			s.Material = c.material
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Track != out[j].Track {
			return out[i].Track < out[j].Track
		}
		return out[i].Start < out[j].Start
	})
	return out
}

// TrackSnapshot returns the clips of one track ordered by start.
func (h *Host) TrackSnapshot(track host.TrackID) []ClipState {
	var out []ClipState
	for _, s := range h.Snapshot() {
		if s.Track == int(track) {
			out = append(out, s)
		}
	}
	return out
}

// Load reads a YAML arrangement into a new sandbox.
func Load(r io.Reader) (*Host, *Arrangement, error) {
	var arr Arrangement
	if err := yaml.NewDecoder(r).Decode(&arr); err != nil {
		return nil, nil, fmt.Errorf("could not decode arrangement: %w", err)
	}
	if arr.TimeSignature.Numerator == 0 {
		arr.TimeSignature = barbeat.CommonTime
	}
	if err := arr.TimeSignature.Validate(); err != nil {
		return nil, nil, err
	}

	h := New(arr.Tracks)
	for i, s := range arr.Clips {
		if s.End <= s.Start {
			return nil, nil, fmt.Errorf("clip %d: end %v must be after start %v", i, s.End, s.Start)
		}
		h.AddClip(s)
	}
	return h, &arr, nil
}

// Save writes the current sandbox state as a YAML arrangement.
func (h *Host) Save(w io.Writer, ts barbeat.TimeSignature) error {
	h.mu.Lock()
	tracks := h.tracks
	h.mu.Unlock()

	arr := Arrangement{
		Tracks:        tracks,
		TimeSignature: ts,
		Clips:         h.Snapshot(),
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&arr); err != nil {
		return fmt.Errorf("could not encode arrangement: %w", err)
	}
	return enc.Close()
}
