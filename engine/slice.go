package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/Conceptual-Machines/magda-timeline-go/barbeat"
	"github.com/Conceptual-Machines/magda-timeline-go/host"
)

// SliceClip cuts one clip into pieces of size. See SliceClips.
func (e *Engine) SliceClip(ctx context.Context, id, size string) (*Result, error) {
	return e.SliceClips(ctx, []string{id}, size)
}

// SliceClips cuts every clip into consecutive pieces of size, a bars:beats
// duration, starting at the clip start. The last piece takes whatever is
// left. A clip whose pieces would push the batch total past the configured
// maximum is skipped with a warning and left untouched.
func (e *Engine) SliceClips(ctx context.Context, ids []string, size string) (*Result, error) {
	d, err := e.settings.TimeSignature.DurationToBeats(size)
	if err != nil {
		return nil, err
	}
	if d <= epsilon {
		return nil, fmt.Errorf("%w: slice size %q must be greater than zero", barbeat.ErrInvalidFormat, size)
	}

	op := e.begin(ctx, "slice")
	total := 0
	for _, c := range op.resolve(ids) {
		if err := ctx.Err(); err != nil {
			return op.finish(err)
		}
		n := sliceCount(c.length(), d)
		if n <= 1 {
			op.add(c)
			continue
		}
		if total+n > e.settings.MaxSlices {
			op.warnings.Add("skipping %s: %d slices of %s would exceed the limit of %d slices per request",
				c.id, n, e.notate(d), e.settings.MaxSlices)
			continue
		}

		s := op.session(c.id)
		clips, err := s.slice(c, d)
		if err != nil {
			s.fail(err)
			continue
		}
		total += n
		op.add(clips...)
	}
	return op.finish(nil)
}

func sliceCount(length, size float64) int {
	return int(math.Ceil(length/size - epsilon))
}

func (s *session) slice(c clipState, size float64) ([]clipState, error) {
	n := sliceCount(c.length(), size)
	bounds := make([]float64, 0, n+1)
	for i := 0; i < n; i++ {
		bounds = append(bounds, float64(i)*size)
	}
	bounds = append(bounds, c.length())

	source, err := s.stage(c, c.length())
	if err != nil {
		return nil, err
	}
	if _, err := s.trimTrailing(c, bounds[1]); err != nil {
		return nil, err
	}

	for i := 1; i < n; i++ {
		seg, err := s.stage(source, c.length())
		if err != nil {
			return nil, err
		}
		if c.looping {
			if seg, err = s.trimTrailing(seg, bounds[i+1]-bounds[i]); err != nil {
				return nil, err
			}
			if err := s.alignMarker(seg.id, c, bounds[i]); err != nil {
				return nil, err
			}
		} else {
			if err := s.window(seg, c.startMarker+bounds[i], c.startMarker+bounds[i+1]); err != nil {
				return nil, err
			}
		}
		if _, err := s.moveTo(seg, c.start+bounds[i]); err != nil {
			return nil, err
		}
	}

	if err := s.remove(source.id); err != nil {
		return nil, err
	}
	return clipsInRange(s.h, c.track, c.start, c.end)
}

// window points a non-looping staged clip's markers at [from, to). An end
// marker the host clamps is revealed with the looping workaround.
func (s *session) window(c clipState, from, to float64) error {
	p := rangePlan(host.PropStartMarker, host.PropEndMarker, c.startMarker, c.endMarker, from, to)
	if err := s.apply(c.id, p); err != nil {
		return err
	}
	end, err := s.get(c.id, host.PropEndMarker)
	if err != nil {
		return err
	}
	if end < to-epsilon {
		if end, err = s.revealEndMarker(c, to); err != nil {
			return err
		}
		if end < to-epsilon {
			return fmt.Errorf("end marker of %s stopped at %v, wanted %v", c.id, end, to)
		}
	}
	start, err := s.get(c.id, host.PropStartMarker)
	if err != nil {
		return err
	}
	if math.Abs(start-from) > epsilon {
		return fmt.Errorf("start marker of %s stopped at %v, wanted %v", c.id, start, from)
	}
	return nil
}
