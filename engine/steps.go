package engine

import (
	"fmt"

	"github.com/Conceptual-Machines/magda-timeline-go/host"
)

// step is one property write. pre documents the host state the write
// depends on; it is reported when the step fails.
type step struct {
	prop  host.Property
	value float64
	pre   string
}

// plan is an ordered list of property writes against one clip. The host
// validates each write against the current state, so the order matters.
type plan []step

// rangePlan orders the two writes that move a [start, end) pair from
// [curStart, curEnd) to [newStart, newEnd) so the range never inverts in
// between: when the new range lies entirely after the current one the end
// goes first, otherwise the start does.
func rangePlan(startProp, endProp host.Property, curStart, curEnd, newStart, newEnd float64) plan {
	if newStart >= curEnd-epsilon {
		return plan{
			{prop: endProp, value: newEnd, pre: fmt.Sprintf("%s %v > %s %v", endProp, newEnd, startProp, curStart)},
			{prop: startProp, value: newStart, pre: fmt.Sprintf("%s %v < %s %v", startProp, newStart, endProp, newEnd)},
		}
	}
	return plan{
		{prop: startProp, value: newStart, pre: fmt.Sprintf("%s %v < %s %v", startProp, newStart, endProp, curEnd)},
		{prop: endProp, value: newEnd, pre: fmt.Sprintf("%s %v > %s %v", endProp, newEnd, startProp, newStart)},
	}
}

// apply runs the plan against id, stopping at the first failure.
func (s *session) apply(id host.ClipID, p plan) error {
	for _, st := range p {
		if err := s.set(id, st.prop, st.value); err != nil {
			return fmt.Errorf("step %s=%v (needs %s): %w", st.prop, st.value, st.pre, err)
		}
	}
	return nil
}
