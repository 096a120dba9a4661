package engine

import (
	"context"
	"fmt"

	"github.com/Conceptual-Machines/magda-timeline-go/host"
	"github.com/Conceptual-Machines/magda-timeline-go/models"
)

// ListClips describes every clip on the given tracks, in arrangement
// order. Clips in the holding area are left out.
func (e *Engine) ListClips(ctx context.Context, tracks []host.TrackID) ([]models.ClipInfo, error) {
	var out []models.ClipInfo
	for _, track := range tracks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		clips, err := clipsInRange(e.host, track, 0, e.settings.HoldingAreaStart)
		if err != nil {
			return nil, err
		}
		for _, c := range clips {
			info, err := e.describe(c)
			if err != nil {
				return nil, fmt.Errorf("could not describe %s: %w", c.id, err)
			}
			out = append(out, info)
		}
	}
	return out, nil
}
