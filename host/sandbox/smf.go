package sandbox

import (
	"fmt"
	"io"
	"math"
	"sort"

	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/Conceptual-Machines/magda-timeline-go/barbeat"
)

// ticksPerQuarter is the SMF resolution used for exports.
const ticksPerQuarter = 960

type markerEvent struct {
	tick uint32
	text string
}

// ExportSMF renders the arrangement as a type 1 Standard MIDI File with one
// MIDI track per host track. Every clip becomes a pair of markers at its
// start and end, which makes the layout easy to inspect in any sequencer.
func (h *Host) ExportSMF(ts barbeat.TimeSignature) (*smf.SMF, error) {
	if err := ts.Validate(); err != nil {
		return nil, err
	}
	if ts.Numerator > math.MaxUint8 {
		return nil, fmt.Errorf("numerator %d does not fit a MIDI meter event", ts.Numerator)
	}

	h.mu.Lock()
	numTracks := h.tracks
	h.mu.Unlock()

	clips := h.Snapshot()
	for _, s := range clips {
		if s.Track >= numTracks {
			numTracks = s.Track + 1
		}
	}

	events := make([][]markerEvent, numTracks)
	for _, s := range clips {
		kind := "midi"
		if s.Audio {
			kind = "audio"
		}
		if s.Looping {
			kind += " loop"
		}
		events[s.Track] = append(events[s.Track],
			markerEvent{tick: toTicks(s.Start), text: fmt.Sprintf("id %d start (%s)", s.ID, kind)},
			markerEvent{tick: toTicks(s.End), text: fmt.Sprintf("id %d end", s.ID)},
		)
	}

	out := smf.NewSMF1()
	out.TimeFormat = smf.MetricTicks(ticksPerQuarter)
	for i, evs := range events {
		sort.SliceStable(evs, func(a, b int) bool { return evs[a].tick < evs[b].tick })

		var track smf.Track
		track.Add(0, smf.MetaTrackSequenceName(fmt.Sprintf("Track %d", i+1)))
		if i == 0 {
			track.Add(0, smf.MetaMeter(uint8(ts.Numerator), uint8(ts.Denominator)))
		}
		var last uint32
		for _, ev := range evs {
			track.Add(ev.tick-last, smf.MetaMarker(ev.text))
			last = ev.tick
		}
		track.Close(0)
		out.Add(track)
	}
	return out, nil
}

// WriteSMF exports the arrangement and writes it to w.
func (h *Host) WriteSMF(w io.Writer, ts barbeat.TimeSignature) error {
	mid, err := h.ExportSMF(ts)
	if err != nil {
		return err
	}
	if _, err := mid.WriteTo(w); err != nil {
		return fmt.Errorf("could not write SMF: %w", err)
	}
	return nil
}

func toTicks(beats float64) uint32 {
	return uint32(math.Round(beats * ticksPerQuarter))
}
