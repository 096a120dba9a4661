package engine

import (
	"strings"

	"github.com/Conceptual-Machines/magda-timeline-go/host"
)

// ClipSpan is one clip of a bulk move, in processing order.
type ClipSpan struct {
	ID     host.ClipID
	Track  host.TrackID
	Length float64
}

// ComputeSurvivors returns the clips of a bulk move that the clips moved
// after them will completely cover, so they can be deleted instead of
// moved. The host draws a later clip over an earlier one at the same start
// up to the later clip's length, so a clip is covered when no clip after it
// on its track is shorter.
//
// It returns nil when there is no common target position, when a length
// override is requested, when no track holds two or more of the clips, or
// when every clip survives.
func ComputeSurvivors(clips []ClipSpan, targetPosition, lengthOverride string) map[host.ClipID]struct{} {
	if strings.TrimSpace(targetPosition) == "" || strings.TrimSpace(lengthOverride) != "" {
		return nil
	}

	var order []host.TrackID
	byTrack := make(map[host.TrackID][]ClipSpan)
	for _, c := range clips {
		if _, ok := byTrack[c.Track]; !ok {
			order = append(order, c.Track)
		}
		byTrack[c.Track] = append(byTrack[c.Track], c)
	}

	var covered map[host.ClipID]struct{}
	for _, track := range order {
		group := byTrack[track]
		if len(group) < 2 {
			continue
		}
		longestAfter := 0.0
		for i := len(group) - 1; i >= 0; i-- {
			if group[i].Length > longestAfter+epsilon {
				longestAfter = group[i].Length
				continue
			}
			if covered == nil {
				covered = make(map[host.ClipID]struct{})
			}
			covered[group[i].ID] = struct{}{}
		}
	}
	return covered
}
