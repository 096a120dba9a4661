// Package sandbox is an in-memory host.TimelineHost. It models the parts of
// a DAW's arrangement object model the engine depends on: clips overwrite
// whatever they are created or duplicated on top of, a head-trimmed clip is
// recreated under a new id, markers of non-looping clips are clamped to the
// revealed content, and loop points may only be widened past it while
// looping is on.
//
// Every call is recorded, and failures can be injected per operation.
package sandbox

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/Conceptual-Machines/magda-timeline-go/host"
)

const epsilon = 1e-6

// Op names a host primitive for call recording and failure injection.
type Op string

const (
	OpCreate    Op = "create_clip"
	OpDuplicate Op = "duplicate_clip_to_position"
	OpDelete    Op = "delete_clip"
	OpGet       Op = "get_clip_property"
	OpSet       Op = "set_clip_property"
	OpList      Op = "clips_on_track"
	OpTrack     Op = "clip_track"
)

// Call is one recorded host call.
type Call struct {
	Op       Op
	Clip     host.ClipID
	Track    host.TrackID
	Property host.Property
	Value    float64
	Result   host.ClipID
}

type clip struct {
	id          int64
	track       host.TrackID
	content     host.ContentType
	start, end  float64
	looping     bool
	loopStart   float64
	loopEnd     float64
	startMarker float64
	endMarker   float64
	// material is the length of the underlying content. Audio clips are
	// bounded by their sample; MIDI clips are unbounded.
	material float64
}

func (c *clip) copy() *clip {
	cp := *c
	return &cp
}

type failure struct {
	skip int
	err  error
}

// Host is the in-memory timeline. The zero value is not usable; call New.
type Host struct {
	mu       sync.Mutex
	clips    map[int64]*clip
	nextID   int64
	calls    []Call
	failures map[Op]*failure
	tracks   int
}

var _ host.TimelineHost = (*Host)(nil)

// New returns an empty sandbox with the given number of tracks.
func New(tracks int) *Host {
	return &Host{
		clips:    make(map[int64]*clip),
		nextID:   1,
		failures: make(map[Op]*failure),
		tracks:   tracks,
	}
}

// FailNext makes the next call of op fail with err.
func (h *Host) FailNext(op Op, err error) {
	h.FailAfter(op, 0, err)
}

// FailAfter lets skip calls of op succeed and fails the one after that.
func (h *Host) FailAfter(op Op, skip int, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures[op] = &failure{skip: skip, err: err}
}

// Calls returns a copy of every call recorded so far.
func (h *Host) Calls() []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Call, len(h.calls))
	copy(out, h.calls)
	return out
}

// CountCalls returns how many calls of op were recorded.
func (h *Host) CountCalls(op Op) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// ResetCalls clears the call log.
func (h *Host) ResetCalls() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = nil
}

// record appends the call and reports an injected failure, if any.
func (h *Host) record(c Call) error {
	h.calls = append(h.calls, c)
	f, ok := h.failures[c.Op]
	if !ok {
		return nil
	}
	if f.skip > 0 {
		f.skip--
		return nil
	}
	delete(h.failures, c.Op)
	return f.err
}

func (h *Host) lookup(id host.ClipID) (*clip, error) {
	c, ok := h.clips[id.Int64()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", host.ErrClipNotFound, id)
	}
	return c, nil
}

func (h *Host) insert(c *clip) host.ClipID {
	c.id = h.nextID
	h.nextID++
	h.clips[c.id] = c
	return host.NewClipID(c.id)
}

func (h *Host) checkTrack(track host.TrackID) error {
	if track < 0 || (h.tracks > 0 && int(track) >= h.tracks) {
		return fmt.Errorf("track %d does not exist", track)
	}
	return nil
}

// CreateClip implements host.TimelineHost.
func (h *Host) CreateClip(track host.TrackID, start, length float64, content host.ContentType) (host.ClipID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record(Call{Op: OpCreate, Track: track, Value: length}); err != nil {
		return host.ClipID{}, err
	}
	if err := h.checkTrack(track); err != nil {
		return host.ClipID{}, err
	}
	if length <= epsilon {
		return host.ClipID{}, fmt.Errorf("clip length must be positive, got %v", length)
	}
	if start < 0 {
		return host.ClipID{}, fmt.Errorf("clip start must be >= 0, got %v", start)
	}

	h.overwrite(track, start, start+length)
	material := math.Inf(1)
	if content == host.ContentAudio {
		material = length
	}
	id := h.insert(&clip{
		track:     track,
		content:   content,
		start:     start,
		end:       start + length,
		loopEnd:   length,
		endMarker: length,
		material:  material,
	})
	h.calls[len(h.calls)-1].Result = id
	return id, nil
}

// DuplicateClipToPosition implements host.TimelineHost. A non-looping copy
// spans its source's marker window; a looping copy keeps the source's
// arrangement length.
func (h *Host) DuplicateClipToPosition(id host.ClipID, newStart float64) (host.ClipID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record(Call{Op: OpDuplicate, Clip: id, Value: newStart}); err != nil {
		return host.ClipID{}, err
	}
	src, err := h.lookup(id)
	if err != nil {
		return host.ClipID{}, err
	}
	if newStart < 0 {
		return host.ClipID{}, fmt.Errorf("clip start must be >= 0, got %v", newStart)
	}

	dup := src.copy()
	length := src.end - src.start
	if !src.looping {
		length = src.endMarker - src.startMarker
	}
	dup.start = newStart
	dup.end = newStart + length

	h.overwrite(src.track, dup.start, dup.end)
	newID := h.insert(dup)
	h.calls[len(h.calls)-1].Result = newID
	return newID, nil
}

// DeleteClip implements host.TimelineHost.
func (h *Host) DeleteClip(id host.ClipID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record(Call{Op: OpDelete, Clip: id}); err != nil {
		return err
	}
	if _, err := h.lookup(id); err != nil {
		return err
	}
	delete(h.clips, id.Int64())
	return nil
}

// ClipsOnTrack implements host.TimelineHost.
func (h *Host) ClipsOnTrack(track host.TrackID) ([]host.ClipID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record(Call{Op: OpList, Track: track}); err != nil {
		return nil, err
	}
	if err := h.checkTrack(track); err != nil {
		return nil, err
	}
	clips := h.onTrack(track)
	ids := make([]host.ClipID, len(clips))
	for i, c := range clips {
		ids[i] = host.NewClipID(c.id)
	}
	return ids, nil
}

// ClipTrack implements host.TimelineHost.
func (h *Host) ClipTrack(id host.ClipID) (host.TrackID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record(Call{Op: OpTrack, Clip: id}); err != nil {
		return 0, err
	}
	c, err := h.lookup(id)
	if err != nil {
		return 0, err
	}
	return c.track, nil
}

func (h *Host) onTrack(track host.TrackID) []*clip {
	var out []*clip
	for _, c := range h.clips {
		if c.track == track {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].start == out[j].start {
			return out[i].id < out[j].id
		}
		return out[i].start < out[j].start
	})
	return out
}

// overwrite clears [from, to) on track the way the host draws a new clip
// over existing ones.
func (h *Host) overwrite(track host.TrackID, from, to float64) {
	for _, c := range h.onTrack(track) {
		if c.start >= to-epsilon || c.end <= from+epsilon {
			continue
		}
		covered := c.start >= from-epsilon && c.end <= to+epsilon
		contains := c.start < from-epsilon && c.end > to+epsilon
		switch {
		case covered:
			delete(h.clips, c.id)
		case contains:
			right := c.copy()
			trimTail(c, c.end-from)
			h.trimHead(right, to-right.start, false)
			h.insert(right)
		case c.start < from-epsilon:
			trimTail(c, c.end-from)
		default:
			h.trimHead(c, to-c.start, true)
		}
	}
}

// trimTail shortens c by d from the end. For non-looping clips the
// truncated content is gone: the loop end follows the end marker in.
func trimTail(c *clip, d float64) {
	c.end -= d
	if c.looping {
		return
	}
	c.endMarker -= d
	if c.loopEnd > c.endMarker {
		c.loopEnd = c.endMarker
	}
}

// trimHead shortens c by d from the start. The host recreates such a clip,
// so when reissue is set the clip moves to a fresh id.
func (h *Host) trimHead(c *clip, d float64, reissue bool) {
	c.start += d
	if c.looping {
		c.startMarker = rollMarker(c.startMarker, c.loopStart, c.loopEnd, d)
	} else {
		c.startMarker += d
		if c.loopStart < c.startMarker {
			c.loopStart = c.startMarker
		}
	}
	if reissue {
		delete(h.clips, c.id)
		h.insert(c)
	}
}

// rollMarker advances a looping clip's start marker by delta, wrapping
// inside the loop once it passes the loop end.
func rollMarker(marker, loopStart, loopEnd, delta float64) float64 {
	next := marker + delta
	loopLen := loopEnd - loopStart
	if loopLen <= epsilon || next < loopEnd-epsilon {
		return next
	}
	return loopStart + math.Mod(next-loopStart, loopLen)
}
