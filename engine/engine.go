// Package engine synthesizes split, lengthen, slice and bulk-move edits of
// arrangement clips on top of a host that only offers create, duplicate,
// delete and scalar property access.
//
// None of the host calls are transactional. Every operation therefore runs
// as an ordered sequence of destructive steps, and ids captured before a
// destructive step are never reused after it: the track is re-scanned
// instead.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/Conceptual-Machines/magda-timeline-go/barbeat"
	"github.com/Conceptual-Machines/magda-timeline-go/host"
	"github.com/Conceptual-Machines/magda-timeline-go/metrics"
	"github.com/Conceptual-Machines/magda-timeline-go/models"
)

const epsilon = 1e-6

var (
	// ErrTooManySplitPoints rejects a split batch before any host call.
	ErrTooManySplitPoints = errors.New("too many split points")
	// ErrPartialEdit wraps a host failure that happened after the
	// arrangement had already been modified. Nothing is rolled back, and
	// the rest of the batch is still processed before it is returned.
	ErrPartialEdit = errors.New("arrangement partially edited")
)

// Settings configures an Engine.
type Settings struct {
	// HoldingAreaStart is the beat where clips are staged during an edit.
	// It must lie beyond any real content.
	HoldingAreaStart float64 `yaml:"holding_area_start"`
	// HoldingGap is the empty space left between staged clips.
	HoldingGap     float64               `yaml:"holding_gap"`
	MaxSplitPoints int                   `yaml:"max_split_points"`
	MaxSlices      int                   `yaml:"max_slices"`
	TimeSignature  barbeat.TimeSignature `yaml:"time_signature"`
}

// DefaultSettings returns the settings used when none are configured.
func DefaultSettings() Settings {
	return Settings{
		HoldingAreaStart: 40000,
		HoldingGap:       4,
		MaxSplitPoints:   32,
		MaxSlices:        64,
		TimeSignature:    barbeat.CommonTime,
	}
}

// Validate checks the settings for values the engine cannot work with.
func (s Settings) Validate() error {
	if s.HoldingAreaStart <= 0 {
		return fmt.Errorf("holding_area_start must be positive, got %v", s.HoldingAreaStart)
	}
	if s.HoldingGap < 0 {
		return fmt.Errorf("holding_gap must be >= 0, got %v", s.HoldingGap)
	}
	if s.MaxSplitPoints < 1 || s.MaxSlices < 1 {
		return fmt.Errorf("max_split_points and max_slices must be >= 1")
	}
	return s.TimeSignature.Validate()
}

// Engine performs arrangement edits against a host. It holds no host state
// between calls and must not be used concurrently on the same track.
type Engine struct {
	host     host.TimelineHost
	settings Settings
	metrics  *metrics.SentryMetrics
}

// New creates an engine. Invalid settings fall back to the defaults.
func New(h host.TimelineHost, settings Settings) *Engine {
	if err := settings.Validate(); err != nil {
		log.Printf("⚠️  Invalid engine settings (%v), using defaults", err)
		settings = DefaultSettings()
	}
	return &Engine{
		host:     h,
		settings: settings,
		metrics:  metrics.NewSentryMetrics(),
	}
}

// WithTimeSignature returns a copy of the engine that reads and writes
// musical notation in ts.
func (e *Engine) WithTimeSignature(ts barbeat.TimeSignature) (*Engine, error) {
	if err := ts.Validate(); err != nil {
		return nil, err
	}
	cp := *e
	cp.settings.TimeSignature = ts
	return &cp, nil
}

// Settings returns the engine configuration.
func (e *Engine) Settings() Settings {
	return e.settings
}

// Result is what every batch operation returns. Clips holds the clips that
// make up the edited region, in arrangement order; there is no 1:1 mapping
// to the input clips.
type Result struct {
	Clips    []models.ClipInfo `json:"clips"`
	Warnings []string          `json:"warnings"`
}

// clipState is a snapshot of a clip's properties. It is only valid until
// the next destructive host call touching the clip.
type clipState struct {
	id          host.ClipID
	track       host.TrackID
	content     host.ContentType
	start, end  float64
	looping     bool
	loopStart   float64
	loopEnd     float64
	startMarker float64
	endMarker   float64
}

func (c clipState) length() float64 {
	return c.end - c.start
}

func (c clipState) loopLength() float64 {
	return c.loopEnd - c.loopStart
}

// readClip reads every property the algorithms need.
func readClip(h host.TimelineHost, id host.ClipID) (clipState, error) {
	track, err := h.ClipTrack(id)
	if err != nil {
		return clipState{}, fmt.Errorf("could not resolve track for %s: %w", id, err)
	}
	c := clipState{id: id, track: track}

	fields := []struct {
		prop host.Property
		dst  *float64
	}{
		{host.PropStartTime, &c.start},
		{host.PropEndTime, &c.end},
		{host.PropLoopStart, &c.loopStart},
		{host.PropLoopEnd, &c.loopEnd},
		{host.PropStartMarker, &c.startMarker},
		{host.PropEndMarker, &c.endMarker},
	}
	for _, f := range fields {
		v, err := h.ClipProperty(id, f.prop)
		if err != nil {
			return clipState{}, fmt.Errorf("could not read %s of %s: %w", f.prop, id, err)
		}
		*f.dst = v
	}

	looping, err := h.ClipProperty(id, host.PropLooping)
	if err != nil {
		return clipState{}, fmt.Errorf("could not read %s of %s: %w", host.PropLooping, id, err)
	}
	c.looping = looping != 0

	midi, err := h.ClipProperty(id, host.PropIsMIDIClip)
	if err != nil {
		return clipState{}, fmt.Errorf("could not read %s of %s: %w", host.PropIsMIDIClip, id, err)
	}
	if midi == 0 {
		c.content = host.ContentAudio
	}
	return c, nil
}

func (e *Engine) describe(c clipState) (models.ClipInfo, error) {
	ts := e.settings.TimeSignature
	start, err := ts.BeatsToPosition(c.start)
	if err != nil {
		return models.ClipInfo{}, err
	}
	length, err := ts.BeatsToDuration(c.length())
	if err != nil {
		return models.ClipInfo{}, err
	}
	return models.ClipInfo{
		ID:         c.id.String(),
		Track:      int(c.track),
		Type:       c.content.String(),
		Looping:    c.looping,
		Start:      start,
		Length:     length,
		StartBeats: c.start,
		EndBeats:   c.end,
	}, nil
}

// notate formats a beat count as a bars:beats duration for warnings.
func (e *Engine) notate(beats float64) string {
	d, err := e.settings.TimeSignature.BeatsToDuration(beats)
	if err != nil {
		return fmt.Sprintf("%v beats", beats)
	}
	return d
}

// operation tracks one public engine call for logging and metrics.
type operation struct {
	e        *Engine
	ctx      context.Context
	name     string
	started  time.Time
	host     *countingHost
	warnings *Warnings
	clips    []clipState
	// partial collects clips left partially edited by a failed host call.
	partial []error
	// area, when set, is shared by every session of the operation.
	area *holdingArea
}

func (e *Engine) begin(ctx context.Context, name string) *operation {
	log.Printf("🔧 %s: starting (time signature %s)", name, e.settings.TimeSignature)
	return &operation{
		e:        e,
		ctx:      ctx,
		name:     name,
		started:  time.Now(),
		host:     &countingHost{TimelineHost: e.host},
		warnings: &Warnings{},
	}
}

// add collects clips for the result, ignoring duplicates by id.
func (op *operation) add(clips ...clipState) {
	for _, c := range clips {
		dup := false
		for _, have := range op.clips {
			if have.id == c.id {
				dup = true
				break
			}
		}
		if !dup {
			op.clips = append(op.clips, c)
		}
	}
}

// finish builds the result and records metrics. The returned error joins
// err with every partial edit of the batch; the result holds whatever was
// completed.
func (op *operation) finish(err error) (*Result, error) {
	if len(op.partial) > 0 {
		err = errors.Join(append([]error{err}, op.partial...)...)
	}
	sort.SliceStable(op.clips, func(i, j int) bool {
		if op.clips[i].track != op.clips[j].track {
			return op.clips[i].track < op.clips[j].track
		}
		return op.clips[i].start < op.clips[j].start
	})

	result := &Result{Clips: make([]models.ClipInfo, 0, len(op.clips)), Warnings: op.warnings.List()}
	for _, c := range op.clips {
		info, descErr := op.e.describe(c)
		if descErr != nil {
			op.warnings.Add("could not describe %s: %v", c.id, descErr)
			continue
		}
		result.Clips = append(result.Clips, info)
	}
	result.Warnings = op.warnings.List()

	duration := time.Since(op.started)
	op.e.metrics.RecordEditOperation(op.ctx, metrics.EditOperation{
		Name:      op.name,
		Clips:     len(result.Clips),
		Warnings:  len(result.Warnings),
		HostCalls: op.host.calls,
		Duration:  duration,
		Success:   err == nil,
	})

	if err != nil {
		log.Printf("❌ %s FAILED after %d host calls: %v", op.name, op.host.calls, err)
		return result, err
	}
	log.Printf("✅ %s COMPLETE: clips=%d, warnings=%d, host_calls=%d, duration=%v",
		op.name, len(result.Clips), len(result.Warnings), op.host.calls, duration)
	return result, nil
}

// resolve parses ids and reads their clips. Clips that cannot be read are
// skipped with a warning.
func (op *operation) resolve(ids []string) []clipState {
	clips := make([]clipState, 0, len(ids))
	for _, raw := range ids {
		id, err := host.ParseClipID(raw)
		if err != nil {
			op.warnings.Add("skipping clip %q: %v", raw, err)
			continue
		}
		c, err := readClip(op.host, id)
		if err != nil {
			op.warnings.Add("skipping %s: %v", id, err)
			continue
		}
		if c.end > op.e.settings.HoldingAreaStart-epsilon {
			op.warnings.Add("skipping %s: it reaches into the holding area at beat %v", id, op.e.settings.HoldingAreaStart)
			continue
		}
		clips = append(clips, c)
	}
	return clips
}

// countingHost counts host calls for metrics.
type countingHost struct {
	host.TimelineHost
	calls int
}

func (h *countingHost) CreateClip(track host.TrackID, start, length float64, content host.ContentType) (host.ClipID, error) {
	h.calls++
	return h.TimelineHost.CreateClip(track, start, length, content)
}

func (h *countingHost) DuplicateClipToPosition(id host.ClipID, newStart float64) (host.ClipID, error) {
	h.calls++
	return h.TimelineHost.DuplicateClipToPosition(id, newStart)
}

func (h *countingHost) DeleteClip(id host.ClipID) error {
	h.calls++
	return h.TimelineHost.DeleteClip(id)
}

func (h *countingHost) ClipProperty(id host.ClipID, name host.Property) (float64, error) {
	h.calls++
	return h.TimelineHost.ClipProperty(id, name)
}

func (h *countingHost) SetClipProperty(id host.ClipID, name host.Property, value float64) error {
	h.calls++
	return h.TimelineHost.SetClipProperty(id, name, value)
}

func (h *countingHost) ClipsOnTrack(track host.TrackID) ([]host.ClipID, error) {
	h.calls++
	return h.TimelineHost.ClipsOnTrack(track)
}

func (h *countingHost) ClipTrack(id host.ClipID) (host.TrackID, error) {
	h.calls++
	return h.TimelineHost.ClipTrack(id)
}
