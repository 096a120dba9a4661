package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/Conceptual-Machines/magda-timeline-go/barbeat"
	"github.com/Conceptual-Machines/magda-timeline-go/host"
)

// MoveClips moves every clip to position, a bar|beat position, in the order
// given. A clip moved later is drawn over the ones already there, so clips
// that would end up completely covered are deleted instead of moved.
//
// When length is not empty every moved clip is also resized to it, a
// bars:beats duration: shorter clips are lengthened the way LengthenClips
// does it and longer ones are cut.
func (e *Engine) MoveClips(ctx context.Context, ids []string, position, length string) (*Result, error) {
	ts := e.settings.TimeSignature
	target, err := ts.PositionToBeats(position)
	if err != nil {
		return nil, err
	}
	var override float64
	if length != "" {
		if override, err = ts.DurationToBeats(length); err != nil {
			return nil, err
		}
		if override <= epsilon {
			return nil, fmt.Errorf("%w: length %q must be greater than zero", barbeat.ErrInvalidFormat, length)
		}
	}

	op := e.begin(ctx, "move")
	op.area = newHoldingArea(e.settings.HoldingAreaStart, e.settings.HoldingGap)
	clips := op.resolve(ids)

	spans := make([]ClipSpan, len(clips))
	for i, c := range clips {
		spans[i] = ClipSpan{ID: c.id, Track: c.track, Length: c.length()}
	}
	covered := ComputeSurvivors(spans, position, length)

	// Every clip is staged before any original is removed, so a clip placed
	// at the target cannot overwrite a batch clip that has not moved yet.
	type pending struct {
		c      clipState
		s      *session
		staged clipState
	}
	var moves []pending
	for _, c := range clips {
		if err := ctx.Err(); err != nil {
			for _, m := range moves {
				m.s.cleanup()
			}
			return op.finish(err)
		}
		if _, ok := covered[c.id]; ok {
			continue
		}
		span := c.length()
		if override > 0 {
			span = override
		}
		if target+math.Max(span, c.length()) > e.settings.HoldingAreaStart-epsilon {
			op.warnings.Add("skipping %s: moving it to %s would reach the holding area", c.id, position)
			continue
		}
		s := op.session(c.id)
		staged, err := s.stage(c, c.length())
		if err != nil {
			s.fail(err)
			continue
		}
		moves = append(moves, pending{c: c, s: s, staged: staged})
	}

	for _, c := range clips {
		if _, ok := covered[c.id]; !ok {
			continue
		}
		s := op.session(c.id)
		if err := s.remove(c.id); err != nil {
			s.fail(err)
		}
	}
	kept := moves[:0]
	for _, m := range moves {
		if err := m.s.remove(m.c.id); err != nil {
			m.s.fail(err)
			continue
		}
		kept = append(kept, m)
	}

	// The originals are gone, so placing runs to completion even when ctx
	// is cancelled.
	reach := make(map[host.TrackID]float64)
	var tracks []host.TrackID
	for _, m := range kept {
		if err := m.s.placeMoved(m.c, m.staged, target, override); err != nil {
			m.s.fail(err)
			continue
		}
		span := m.c.length()
		if override > 0 {
			span = override
		}
		if _, ok := reach[m.c.track]; !ok {
			tracks = append(tracks, m.c.track)
		}
		reach[m.c.track] = math.Max(reach[m.c.track], target+span)
	}

	for _, track := range tracks {
		found, err := clipsInRange(op.host, track, target, reach[track])
		if err != nil {
			op.warnings.Add("could not re-scan track %d after moving: %v", track, err)
			continue
		}
		op.add(found...)
	}
	return op.finish(nil)
}

// placeMoved duplicates the staged copy of c to target and removes the
// staged copy. With a non-zero length the placed clip is then resized.
func (s *session) placeMoved(c, staged clipState, target, length float64) error {
	id, err := s.moveTo(staged, target)
	if err != nil {
		return err
	}
	if length <= 0 || math.Abs(length-c.length()) <= epsilon {
		return nil
	}

	moved, err := readClip(s.h, id)
	if err != nil {
		return err
	}
	switch {
	case length < moved.length():
		_, err = s.trimTrailing(moved, length)
	case moved.looping:
		_, err = s.tile(moved, length)
	default:
		_, err = s.revealTrailing(moved, length)
	}
	return err
}
