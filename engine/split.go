package engine

import (
	"context"
	"fmt"
	"sort"
)

// SplitClip splits one clip at positions. See SplitClips.
func (e *Engine) SplitClip(ctx context.Context, id string, positions []string) (*Result, error) {
	return e.SplitClips(ctx, []string{id}, positions)
}

// SplitClips cuts every clip into contiguous pieces at positions, given in
// bar|beat notation relative to each clip's start (1|1 is the clip start).
// Positions at or before the start or at or past the end are ignored.
//
// The whole request is rejected before touching the host when it asks for
// more split points, summed over all clips, than the configured maximum.
func (e *Engine) SplitClips(ctx context.Context, ids []string, positions []string) (*Result, error) {
	if n := len(positions) * len(ids); n > e.settings.MaxSplitPoints {
		return nil, fmt.Errorf("%w: %d positions on %d clips exceeds the limit of %d",
			ErrTooManySplitPoints, len(positions), len(ids), e.settings.MaxSplitPoints)
	}
	offsets := make([]float64, 0, len(positions))
	for _, p := range positions {
		b, err := e.settings.TimeSignature.PositionToBeats(p)
		if err != nil {
			return nil, err
		}
		offsets = append(offsets, b)
	}

	op := e.begin(ctx, "split")
	for _, c := range op.resolve(ids) {
		if err := ctx.Err(); err != nil {
			return op.finish(err)
		}
		bounds := boundaries(offsets, c.length())
		if len(bounds) <= 2 {
			op.add(c)
			continue
		}
		s := op.session(c.id)
		clips, err := s.split(c, bounds)
		if err != nil {
			s.fail(err)
			continue
		}
		op.add(clips...)
	}
	return op.finish(nil)
}

// boundaries turns split offsets into a sorted, deduplicated boundary set
// for a clip of the given length, including 0 and length themselves.
func boundaries(offsets []float64, length float64) []float64 {
	inner := make([]float64, 0, len(offsets))
	for _, o := range offsets {
		if o > epsilon && o < length-epsilon {
			inner = append(inner, o)
		}
	}
	sort.Float64s(inner)

	out := []float64{0}
	for _, o := range inner {
		if o-out[len(out)-1] > epsilon {
			out = append(out, o)
		}
	}
	return append(out, length)
}

// split produces one clip per segment of bounds. The original keeps the
// first segment, interior segments are cut from fresh copies of a staged
// source, and the source itself becomes the last segment.
func (s *session) split(c clipState, bounds []float64) ([]clipState, error) {
	source, err := s.stage(c, c.length())
	if err != nil {
		return nil, err
	}
	if _, err := s.trimTrailing(c, bounds[1]); err != nil {
		return nil, err
	}

	last := len(bounds) - 2
	for i := 1; i < last; i++ {
		seg, err := s.stage(source, c.length())
		if err != nil {
			return nil, err
		}
		if seg, err = s.trimLeading(seg, bounds[i]); err != nil {
			return nil, err
		}
		if seg, err = s.trimTrailing(seg, bounds[i+1]-bounds[i]); err != nil {
			return nil, err
		}
		if err := s.place(seg, c, bounds[i]); err != nil {
			return nil, err
		}
	}

	if source, err = s.trimLeading(source, bounds[last]); err != nil {
		return nil, err
	}
	if err := s.place(source, c, bounds[last]); err != nil {
		return nil, err
	}
	return clipsInRange(s.h, c.track, c.start, c.end)
}

// place moves a staged segment cut from c at offset into the arrangement.
// Looping segments first get the start marker c plays at that offset.
func (s *session) place(seg, c clipState, offset float64) error {
	if c.looping {
		if err := s.alignMarker(seg.id, c, offset); err != nil {
			return err
		}
	}
	_, err := s.moveTo(seg, c.start+offset)
	return err
}
