package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/Conceptual-Machines/magda-timeline-go/barbeat"
	"github.com/Conceptual-Machines/magda-timeline-go/host"
)

// LengthenClip extends one clip to length, a bars:beats duration.
func (e *Engine) LengthenClip(ctx context.Context, id, length string) (*Result, error) {
	return e.LengthenClips(ctx, []string{id}, length)
}

// LengthenClips extends every clip to length. Looping clips are tiled with
// copies of their loop; non-looping clips reveal hidden trailing content.
// Clips that already meet the target are returned unchanged.
func (e *Engine) LengthenClips(ctx context.Context, ids []string, length string) (*Result, error) {
	target, err := e.settings.TimeSignature.DurationToBeats(length)
	if err != nil {
		return nil, err
	}
	if target <= epsilon {
		return nil, fmt.Errorf("%w: length %q must be greater than zero", barbeat.ErrInvalidFormat, length)
	}

	op := e.begin(ctx, "lengthen")
	for _, c := range op.resolve(ids) {
		if err := ctx.Err(); err != nil {
			return op.finish(err)
		}
		op.add(op.lengthen(c, target)...)
	}
	return op.finish(nil)
}

func (op *operation) lengthen(c clipState, target float64) []clipState {
	if target <= c.length()+epsilon {
		return []clipState{c}
	}
	if c.start+target > op.e.settings.HoldingAreaStart-epsilon {
		op.warnings.Add("skipping %s: lengthening to %s would reach the holding area", c.id, op.e.notate(target))
		return nil
	}

	s := op.session(c.id)
	var (
		clips []clipState
		err   error
	)
	if c.looping {
		clips, err = s.tile(c, target)
	} else {
		clips, err = s.revealTrailing(c, target)
	}
	if err != nil {
		s.fail(err)
		return nil
	}
	return clips
}

// tile covers [c.start, c.start+target) with copies of c's loop. Every
// copy but the last spans exactly one loop length; the last one takes the
// remainder. A target within one loop length yields a single clip.
func (s *session) tile(c clipState, target float64) ([]clipState, error) {
	loopLen := c.loopLength()
	if loopLen <= epsilon {
		return nil, fmt.Errorf("loop of %s is empty", c.id)
	}

	if target <= loopLen+epsilon {
		single, err := s.loopingCopy(c, target)
		if err != nil {
			return nil, err
		}
		if err := s.remove(c.id); err != nil {
			return nil, err
		}
		if _, err := s.moveTo(single, c.start); err != nil {
			return nil, err
		}
		return clipsInRange(s.h, c.track, c.start, c.start+target)
	}

	template, err := s.loopingCopy(c, loopLen)
	if err != nil {
		return nil, err
	}
	whole := int(math.Floor((target + epsilon) / loopLen))
	rest := target - float64(whole)*loopLen
	var partial clipState
	if rest > epsilon {
		if partial, err = s.stage(template, loopLen); err != nil {
			return nil, err
		}
		if partial, err = s.trimTrailing(partial, rest); err != nil {
			return nil, err
		}
	}

	if err := s.remove(c.id); err != nil {
		return nil, err
	}
	for k := 0; k < whole; k++ {
		offset := float64(k) * loopLen
		id, err := s.duplicate(template.id, c.start+offset)
		if err != nil {
			return nil, err
		}
		if err := s.alignMarker(id, c, offset); err != nil {
			return nil, err
		}
	}
	if rest > epsilon {
		offset := float64(whole) * loopLen
		id, err := s.moveTo(partial, c.start+offset)
		if err != nil {
			return nil, err
		}
		if err := s.alignMarker(id, c, offset); err != nil {
			return nil, err
		}
	}
	if err := s.remove(template.id); err != nil {
		return nil, err
	}
	return clipsInRange(s.h, c.track, c.start, c.start+target)
}

// alignMarker gives a clip cut from looping clip c at offset the start
// marker c would be playing at that point.
func (s *session) alignMarker(id host.ClipID, c clipState, offset float64) error {
	want := rollMarker(c.startMarker, c.loopStart, c.loopEnd, offset)
	got, err := s.get(id, host.PropStartMarker)
	if err != nil {
		return err
	}
	if math.Abs(got-want) <= epsilon {
		return nil
	}
	return s.set(id, host.PropStartMarker, want)
}

// loopingCopy stages a looping copy of c spanning span beats, with c's
// loop and markers. span must not exceed c's loop length when it exceeds
// c's current span: the host cannot stretch a looping clip, so the copy is
// taken from a non-looping state whose markers cover span beats.
func (s *session) loopingCopy(c clipState, span float64) (clipState, error) {
	staged, err := s.stage(c, span)
	if err != nil {
		return clipState{}, err
	}
	if span <= staged.length()+epsilon {
		return s.trimTrailing(staged, span)
	}

	widen := plan{{prop: host.PropLooping, value: 0, pre: "clip looping"}}
	if staged.startMarker > staged.loopStart+epsilon {
		widen = append(widen, step{prop: host.PropStartMarker, value: staged.loopStart, pre: "loop start revealed"})
	}
	if err := s.apply(staged.id, widen); err != nil {
		return clipState{}, err
	}
	staged.startMarker = math.Min(staged.startMarker, staged.loopStart)
	revealed, err := s.revealEndMarker(staged, staged.startMarker+span)
	if err != nil {
		return clipState{}, err
	}
	if revealed-staged.startMarker < span-epsilon {
		return clipState{}, fmt.Errorf("only %v of %v beats of %s could be revealed", revealed-staged.startMarker, span, c.id)
	}

	id, err := s.duplicate(staged.id, s.area.alloc(span))
	if err != nil {
		return clipState{}, err
	}
	if err := s.remove(staged.id); err != nil {
		return clipState{}, err
	}
	restore := plan{{prop: host.PropLooping, value: 1, pre: "span set"}}
	restore = append(restore, rangePlan(host.PropStartMarker, host.PropEndMarker,
		staged.startMarker, revealed, c.startMarker, c.endMarker)...)
	if err := s.apply(id, restore); err != nil {
		return clipState{}, err
	}
	return readClip(s.h, id)
}

// revealTrailing lengthens a non-looping clip by widening its end marker
// over hidden content. When there is less hidden content than requested
// the clip grows as far as it can and a warning is recorded.
func (s *session) revealTrailing(c clipState, target float64) ([]clipState, error) {
	staged, err := s.stage(c, target)
	if err != nil {
		return nil, err
	}
	revealed, err := s.revealEndMarker(staged, staged.startMarker+target)
	if err != nil {
		return nil, err
	}
	got := revealed - staged.startMarker
	if got <= c.length()+epsilon {
		s.op.warnings.Add("%s has no hidden content past its end, left at %s", c.id, s.op.e.notate(c.length()))
		if err := s.remove(staged.id); err != nil {
			return nil, err
		}
		return []clipState{c}, nil
	}
	if got < target-epsilon {
		s.op.warnings.Add("%s only has %s of content, lengthened to that instead of %s",
			c.id, s.op.e.notate(got), s.op.e.notate(target))
	}

	if err := s.remove(c.id); err != nil {
		return nil, err
	}
	if _, err := s.moveTo(staged, c.start); err != nil {
		return nil, err
	}
	return clipsInRange(s.h, c.track, c.start, c.start+got)
}
