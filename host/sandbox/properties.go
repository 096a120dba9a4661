package sandbox

import (
	"fmt"
	"math"

	"github.com/Conceptual-Machines/magda-timeline-go/host"
)

// ClipProperty implements host.TimelineHost.
func (h *Host) ClipProperty(id host.ClipID, name host.Property) (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record(Call{Op: OpGet, Clip: id, Property: name}); err != nil {
		return 0, err
	}
	c, err := h.lookup(id)
	if err != nil {
		return 0, err
	}

	switch name {
	case host.PropStartTime:
		return c.start, nil
	case host.PropEndTime:
		return c.end, nil
	case host.PropStartMarker:
		return c.startMarker, nil
	case host.PropEndMarker:
		return c.endMarker, nil
	case host.PropLoopStart:
		return c.loopStart, nil
	case host.PropLoopEnd:
		return c.loopEnd, nil
	case host.PropLooping:
		return host.Bool(c.looping), nil
	case host.PropLength:
		if c.looping {
			return c.loopEnd - c.loopStart, nil
		}
		return c.endMarker - c.startMarker, nil
	case host.PropIsMIDIClip:
		return host.Bool(c.content == host.ContentMIDI), nil
	}
	return 0, fmt.Errorf("%w: %s", host.ErrUnknownProperty, name)
}

// SetClipProperty implements host.TimelineHost. Out-of-range marker and
// loop values are clamped silently; values that would invert a range are
// rejected.
func (h *Host) SetClipProperty(id host.ClipID, name host.Property, value float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.record(Call{Op: OpSet, Clip: id, Property: name, Value: value}); err != nil {
		return err
	}
	c, err := h.lookup(id)
	if err != nil {
		return err
	}
	if !name.Writable() {
		switch name {
		case host.PropStartTime, host.PropEndTime, host.PropLength, host.PropIsMIDIClip:
			return fmt.Errorf("%w: %s", host.ErrReadOnlyProperty, name)
		}
		return fmt.Errorf("%w: %s", host.ErrUnknownProperty, name)
	}

	lo, hi := c.bounds()
	switch name {
	case host.PropLooping:
		c.looping = value != 0
		return nil

	case host.PropLoopStart:
		v := math.Max(value, lo)
		if v >= c.loopEnd-epsilon {
			return fmt.Errorf("loop_start %v must be before loop_end %v", v, c.loopEnd)
		}
		c.loopStart = v

	case host.PropLoopEnd:
		v := math.Min(value, hi)
		if v <= c.loopStart+epsilon {
			return fmt.Errorf("loop_end %v must be after loop_start %v", v, c.loopStart)
		}
		c.loopEnd = v

	case host.PropStartMarker:
		v := math.Max(value, lo)
		limit := c.endMarker
		if c.looping {
			limit = math.Max(c.endMarker, c.loopEnd)
		}
		if v >= limit-epsilon {
			return fmt.Errorf("start_marker %v must be before end_marker %v", v, limit)
		}
		c.startMarker = v

	case host.PropEndMarker:
		v := math.Min(value, hi)
		if v <= c.startMarker+epsilon {
			return fmt.Errorf("end_marker %v must be after start_marker %v", v, c.startMarker)
		}
		c.endMarker = v
	}
	return nil
}

// bounds returns the range markers and loop points may be set within.
// Without looping that is the content currently revealed; with looping it
// is the whole underlying material.
func (c *clip) bounds() (float64, float64) {
	if c.looping {
		return 0, c.material
	}
	lo := math.Min(c.startMarker, c.loopStart)
	hi := math.Max(c.endMarker, c.loopEnd)
	return lo, math.Min(hi, c.material)
}
