package engine

import (
	"fmt"
	"log"
	"math"

	"github.com/Conceptual-Machines/magda-timeline-go/host"
)

// holdingArea hands out non-overlapping scratch slots beyond live content.
type holdingArea struct {
	start float64
	gap   float64
	next  float64
}

func newHoldingArea(start, gap float64) *holdingArea {
	return &holdingArea{start: start, gap: gap, next: start}
}

// alloc reserves a slot of the given length and returns its start.
func (a *holdingArea) alloc(length float64) float64 {
	pos := a.next
	a.next += math.Ceil(length) + a.gap
	return pos
}

func (a *holdingArea) contains(pos float64) bool {
	return pos >= a.start-epsilon
}

// session is the host-call context for editing one clip. It remembers
// whether live arrangement content has been modified yet, which decides
// whether a failure leaves the clip untouched or partially edited.
type session struct {
	op     *operation
	h      host.TimelineHost
	area   *holdingArea
	clip   host.ClipID
	dirty  bool
	staged map[host.ClipID]struct{}
}

func (op *operation) session(clip host.ClipID) *session {
	area := op.area
	if area == nil {
		area = newHoldingArea(op.e.settings.HoldingAreaStart, op.e.settings.HoldingGap)
	}
	return &session{
		op:     op,
		h:      op.host,
		area:   area,
		clip:   clip,
		staged: make(map[host.ClipID]struct{}),
	}
}

func (s *session) isStaged(id host.ClipID) bool {
	_, ok := s.staged[id]
	return ok
}

// fail gives up on the session's clip and removes whatever it staged. The
// batch goes on with the next clip either way. Before any live write the
// clip is merely skipped; afterwards the failure is also kept as an
// ErrPartialEdit for the end of the batch.
func (s *session) fail(err error) {
	s.cleanup()
	if !s.dirty {
		s.op.warnings.Add("skipping %s: %v", s.clip, err)
		return
	}
	s.op.warnings.Add("%s was only partially edited: %v", s.clip, err)
	s.op.partial = append(s.op.partial, fmt.Errorf("%w: %s: %w", ErrPartialEdit, s.clip, err))
}

// cleanup deletes whatever is still staged. Errors are only logged.
func (s *session) cleanup() {
	for id := range s.staged {
		if err := s.h.DeleteClip(id); err != nil {
			log.Printf("⚠️  Could not remove staged clip %s: %v", id, err)
		}
		delete(s.staged, id)
	}
}

func (s *session) duplicate(id host.ClipID, pos float64) (host.ClipID, error) {
	dup, err := s.h.DuplicateClipToPosition(id, pos)
	if err != nil {
		return host.ClipID{}, fmt.Errorf("could not duplicate %s to %v: %w", id, pos, err)
	}
	if s.area.contains(pos) {
		s.staged[dup] = struct{}{}
	} else {
		s.dirty = true
	}
	return dup, nil
}

func (s *session) remove(id host.ClipID) error {
	if err := s.h.DeleteClip(id); err != nil {
		return fmt.Errorf("could not delete %s: %w", id, err)
	}
	if s.isStaged(id) {
		delete(s.staged, id)
	} else {
		s.dirty = true
	}
	return nil
}

func (s *session) set(id host.ClipID, prop host.Property, value float64) error {
	if err := s.h.SetClipProperty(id, prop, value); err != nil {
		return fmt.Errorf("could not set %s of %s: %w", prop, id, err)
	}
	if !s.isStaged(id) {
		s.dirty = true
	}
	return nil
}

func (s *session) get(id host.ClipID, prop host.Property) (float64, error) {
	v, err := s.h.ClipProperty(id, prop)
	if err != nil {
		return 0, fmt.Errorf("could not read %s of %s: %w", prop, id, err)
	}
	return v, nil
}

// stage duplicates c into a fresh holding slot big enough for span beats.
func (s *session) stage(c clipState, span float64) (clipState, error) {
	slot := s.area.alloc(math.Max(span, c.length()))
	id, err := s.duplicate(c.id, slot)
	if err != nil {
		return clipState{}, err
	}
	staged, err := readClip(s.h, id)
	if err != nil {
		return clipState{}, err
	}
	return staged, nil
}

// moveTo duplicates a staged clip to its destination and deletes the staged
// copy. The returned id is only valid until the next destructive step.
func (s *session) moveTo(c clipState, pos float64) (host.ClipID, error) {
	id, err := s.duplicate(c.id, pos)
	if err != nil {
		return host.ClipID{}, err
	}
	if err := s.remove(c.id); err != nil {
		return host.ClipID{}, err
	}
	return id, nil
}

// overlay truncates whatever lies under [start, start+length) on track by
// creating a throwaway clip there and deleting it again.
func (s *session) overlay(track host.TrackID, start, length float64, content host.ContentType) error {
	temp, err := s.h.CreateClip(track, start, length, content)
	if err != nil {
		return fmt.Errorf("could not create overlay at %v: %w", start, err)
	}
	if !s.area.contains(start) {
		s.dirty = true
	}
	if err := s.h.DeleteClip(temp); err != nil {
		return fmt.Errorf("could not delete overlay %s: %w", temp, err)
	}
	return nil
}

// trimTrailing keeps the first keep beats of c.
func (s *session) trimTrailing(c clipState, keep float64) (clipState, error) {
	if keep >= c.length()-epsilon {
		return c, nil
	}
	if err := s.overlay(c.track, c.start+keep, c.length()-keep, c.content); err != nil {
		return clipState{}, err
	}
	return s.findClipAt(c.track, c.start)
}

// trimLeading drops the first d beats of c. The host recreates a clip
// trimmed at its head, so the result carries a new id.
func (s *session) trimLeading(c clipState, d float64) (clipState, error) {
	if d <= epsilon {
		return c, nil
	}
	if err := s.overlay(c.track, c.start, d, c.content); err != nil {
		return clipState{}, err
	}
	delete(s.staged, c.id)
	return s.findClipAt(c.track, c.start+d)
}

// findClipAt re-scans track for the clip starting at pos.
func (s *session) findClipAt(track host.TrackID, pos float64) (clipState, error) {
	ids, err := s.h.ClipsOnTrack(track)
	if err != nil {
		return clipState{}, fmt.Errorf("could not list track %d: %w", track, err)
	}
	for _, id := range ids {
		start, err := s.get(id, host.PropStartTime)
		if err != nil {
			return clipState{}, err
		}
		if math.Abs(start-pos) > epsilon {
			continue
		}
		c, err := readClip(s.h, id)
		if err != nil {
			return clipState{}, err
		}
		if s.area.contains(pos) {
			s.staged[id] = struct{}{}
		}
		return c, nil
	}
	return clipState{}, fmt.Errorf("no clip at beat %v on track %d", pos, track)
}

// clipsInRange re-scans track and returns the clips overlapping [from, to).
func clipsInRange(h host.TimelineHost, track host.TrackID, from, to float64) ([]clipState, error) {
	ids, err := h.ClipsOnTrack(track)
	if err != nil {
		return nil, fmt.Errorf("could not list track %d: %w", track, err)
	}
	var out []clipState
	for _, id := range ids {
		c, err := readClip(h, id)
		if err != nil {
			return nil, err
		}
		if c.start < to-epsilon && c.end > from+epsilon {
			out = append(out, c)
		}
	}
	return out, nil
}

// revealEndMarker moves the end marker of a non-looping clip to target and
// returns the value the host accepted. The host bounds the marker by the
// content already revealed, so when a direct write comes back short the
// loop is widened over the target with looping temporarily on.
func (s *session) revealEndMarker(c clipState, target float64) (float64, error) {
	if err := s.set(c.id, host.PropEndMarker, target); err != nil {
		return 0, err
	}
	got, err := s.get(c.id, host.PropEndMarker)
	if err != nil {
		return 0, err
	}
	if got >= target-epsilon {
		return got, nil
	}

	sm, err := s.get(c.id, host.PropStartMarker)
	if err != nil {
		return 0, err
	}
	ls, err := s.get(c.id, host.PropLoopStart)
	if err != nil {
		return 0, err
	}
	le, err := s.get(c.id, host.PropLoopEnd)
	if err != nil {
		return 0, err
	}

	workaround := plan{{prop: host.PropLooping, value: 1, pre: "clip not looping"}}
	workaround = append(workaround, rangePlan(host.PropLoopStart, host.PropLoopEnd, ls, le, sm, target)...)
	workaround = append(workaround,
		step{prop: host.PropEndMarker, value: target, pre: "loop covers target"},
		step{prop: host.PropLooping, value: 0, pre: "end marker placed"},
	)
	if err := s.apply(c.id, workaround); err != nil {
		return 0, err
	}
	return s.get(c.id, host.PropEndMarker)
}

// rollMarker advances a looping clip's start marker by delta and wraps it
// back into [loopStart, loopEnd).
func rollMarker(marker, loopStart, loopEnd, delta float64) float64 {
	next := marker + delta
	loopLen := loopEnd - loopStart
	if loopLen <= epsilon || next < loopEnd-epsilon {
		return next
	}
	return loopStart + math.Mod(next-loopStart, loopLen)
}
