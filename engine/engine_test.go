package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Conceptual-Machines/magda-timeline-go/barbeat"
	"github.com/Conceptual-Machines/magda-timeline-go/host/sandbox"
	"github.com/Conceptual-Machines/magda-timeline-go/metrics"
	"github.com/Conceptual-Machines/magda-timeline-go/models"
)

func newTestEngine(t *testing.T, h *sandbox.Host) *Engine {
	t.Helper()
	e := New(h, DefaultSettings())
	e.metrics = metrics.NewDisabledMetrics()
	return e
}

// assertContiguous checks the clips tile [start, end) without gaps.
func assertContiguous(t *testing.T, clips []models.ClipInfo, start, end float64) {
	t.Helper()
	require.NotEmpty(t, clips)
	assert.InDelta(t, start, clips[0].StartBeats, epsilon, "first clip start")
	assert.InDelta(t, end, clips[len(clips)-1].EndBeats, epsilon, "last clip end")
	for i := 1; i < len(clips); i++ {
		assert.InDelta(t, clips[i-1].EndBeats, clips[i].StartBeats, epsilon, "gap before clip %d", i)
	}
}

// assertHoldingAreaEmpty checks that nothing was left staged.
func assertHoldingAreaEmpty(t *testing.T, h *sandbox.Host) {
	t.Helper()
	for _, c := range h.Snapshot() {
		assert.Less(t, c.Start, DefaultSettings().HoldingAreaStart, "clip %d left in the holding area", c.ID)
	}
}

func lengths(clips []models.ClipInfo) []float64 {
	out := make([]float64, len(clips))
	for i, c := range clips {
		out[i] = c.EndBeats - c.StartBeats
	}
	return out
}

func TestLengthenLoopingClipTilesWholeLoops(t *testing.T) {
	h := sandbox.New(1)
	id := h.AddClip(sandbox.ClipState{Start: 0, End: 4, Looping: true, LoopStart: 0, LoopEnd: 4})
	e := newTestEngine(t, h)

	result, err := e.LengthenClip(context.Background(), id.String(), "4:0")
	require.NoError(t, err)

	require.Len(t, result.Clips, 4)
	assert.Equal(t, []float64{4, 4, 4, 4}, lengths(result.Clips))
	assertContiguous(t, result.Clips, 0, 16)
	for _, c := range result.Clips {
		assert.True(t, c.Looping)
		assert.Equal(t, "midi", c.Type)
	}
	assert.Equal(t, "1|1", result.Clips[0].Start)
	assert.Equal(t, "4|1", result.Clips[3].Start)
	assert.Empty(t, result.Warnings)
	assertHoldingAreaEmpty(t, h)
}

func TestLengthenLoopingClipWithRemainder(t *testing.T) {
	h := sandbox.New(1)
	id := h.AddClip(sandbox.ClipState{Start: 8, End: 12, Looping: true, LoopStart: 0, LoopEnd: 4, Audio: true, Material: 4})
	e := newTestEngine(t, h)

	result, err := e.LengthenClip(context.Background(), id.String(), "2:2")
	require.NoError(t, err)

	assert.Equal(t, []float64{4, 4, 2}, lengths(result.Clips))
	assertContiguous(t, result.Clips, 8, 18)
	for _, c := range h.TrackSnapshot(0) {
		assert.Equal(t, 0.0, c.StartMarker)
		assert.True(t, c.Looping)
	}
	assertHoldingAreaEmpty(t, h)
}

func TestLengthenLoopingClipWithinOneLoop(t *testing.T) {
	h := sandbox.New(1)
	id := h.AddClip(sandbox.ClipState{Start: 0, End: 2, Looping: true, LoopStart: 0, LoopEnd: 4})
	e := newTestEngine(t, h)

	result, err := e.LengthenClip(context.Background(), id.String(), "0:3")
	require.NoError(t, err)

	require.Len(t, result.Clips, 1)
	assert.InDelta(t, 3.0, result.Clips[0].EndBeats, epsilon)
	assert.True(t, result.Clips[0].Looping)

	clips := h.TrackSnapshot(0)
	require.Len(t, clips, 1)
	assert.Equal(t, 0.0, clips[0].StartMarker)
	assert.Equal(t, 4.0, clips[0].LoopEnd)
	assertHoldingAreaEmpty(t, h)
}

func TestLengthenIsIdempotentWhenTargetIsMet(t *testing.T) {
	h := sandbox.New(1)
	id := h.AddClip(sandbox.ClipState{Start: 4, End: 12})
	e := newTestEngine(t, h)

	for _, length := range []string{"2:0", "1:0", "0:0.5"} {
		before := h.Snapshot()
		h.ResetCalls()

		result, err := e.LengthenClip(context.Background(), id.String(), length)
		require.NoError(t, err)

		require.Len(t, result.Clips, 1)
		assert.Equal(t, id.String(), result.Clips[0].ID)
		assert.Equal(t, before, h.Snapshot(), "length %s", length)
		for _, op := range []sandbox.Op{sandbox.OpCreate, sandbox.OpDuplicate, sandbox.OpDelete, sandbox.OpSet} {
			assert.Zero(t, h.CountCalls(op), "length %s made %s calls", length, op)
		}
	}
}

func TestLengthenRevealsHiddenContent(t *testing.T) {
	h := sandbox.New(1)
	id := h.AddClip(sandbox.ClipState{Start: 0, End: 4, Audio: true, Material: 16})
	e := newTestEngine(t, h)

	result, err := e.LengthenClip(context.Background(), id.String(), "2:0")
	require.NoError(t, err)

	require.Len(t, result.Clips, 1)
	assert.Equal(t, "2:0", result.Clips[0].Length)
	assert.Empty(t, result.Warnings)

	clips := h.TrackSnapshot(0)
	require.Len(t, clips, 1)
	assert.Equal(t, 8.0, clips[0].EndMarker)
	assert.False(t, clips[0].Looping)
	assertHoldingAreaEmpty(t, h)
}

func TestLengthenRevealsWhatIsThere(t *testing.T) {
	h := sandbox.New(1)
	id := h.AddClip(sandbox.ClipState{Start: 0, End: 4, Audio: true, Material: 6})
	e := newTestEngine(t, h)

	result, err := e.LengthenClip(context.Background(), id.String(), "2:0")
	require.NoError(t, err)

	require.Len(t, result.Clips, 1)
	assert.InDelta(t, 6.0, result.Clips[0].EndBeats, epsilon)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "only has 1:2 of content")
	assertHoldingAreaEmpty(t, h)
}

func TestLengthenWithoutHiddenContentWarns(t *testing.T) {
	h := sandbox.New(1)
	id := h.AddClip(sandbox.ClipState{Start: 0, End: 4, Audio: true, Material: 4})
	e := newTestEngine(t, h)
	before := h.Snapshot()

	result, err := e.LengthenClip(context.Background(), id.String(), "2:0")
	require.NoError(t, err)

	require.Len(t, result.Clips, 1)
	assert.Equal(t, id.String(), result.Clips[0].ID)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "no hidden content")
	assert.Equal(t, before, h.Snapshot())
}

func TestLengthenRejectsBadDuration(t *testing.T) {
	h := sandbox.New(1)
	e := newTestEngine(t, h)

	_, err := e.LengthenClips(context.Background(), []string{"id 1"}, "four bars")
	assert.ErrorIs(t, err, barbeat.ErrInvalidFormat)

	_, err = e.LengthenClips(context.Background(), []string{"id 1"}, "0:0")
	assert.ErrorIs(t, err, barbeat.ErrInvalidFormat)
	assert.Empty(t, h.Calls())
}

func TestLengthenSkipsUnknownClips(t *testing.T) {
	h := sandbox.New(1)
	id := h.AddClip(sandbox.ClipState{Start: 0, End: 4, Looping: true})
	e := newTestEngine(t, h)

	result, err := e.LengthenClips(context.Background(), []string{"id 99", "bogus", id.String()}, "2:0")
	require.NoError(t, err)

	assert.Len(t, result.Clips, 2)
	assert.Len(t, result.Warnings, 2)
}

func TestSplitNonLoopingClip(t *testing.T) {
	h := sandbox.New(1)
	id := h.AddClip(sandbox.ClipState{Start: 16, End: 24})
	e := newTestEngine(t, h)

	result, err := e.SplitClip(context.Background(), id.String(), []string{"1|3", "2|2"})
	require.NoError(t, err)

	assert.Equal(t, []float64{2, 3, 3}, lengths(result.Clips))
	assertContiguous(t, result.Clips, 16, 24)
	assert.Empty(t, result.Warnings)

	var markers []float64
	for _, c := range h.TrackSnapshot(0) {
		markers = append(markers, c.StartMarker)
		assert.InDelta(t, c.Length(), c.EndMarker-c.StartMarker, epsilon)
	}
	assert.Equal(t, []float64{0, 2, 5}, markers)
	assertHoldingAreaEmpty(t, h)
}

func TestSplitDropsOutOfRangePositions(t *testing.T) {
	h := sandbox.New(1)
	id := h.AddClip(sandbox.ClipState{Start: 0, End: 4})
	e := newTestEngine(t, h)

	result, err := e.SplitClip(context.Background(), id.String(), []string{"1|2", "11|1", "1|1"})
	require.NoError(t, err)

	assert.Equal(t, []float64{1, 3}, lengths(result.Clips))
	assert.Empty(t, result.Warnings)
}

func TestSplitLoopingClipOffsetsContent(t *testing.T) {
	h := sandbox.New(1)
	id := h.AddClip(sandbox.ClipState{Start: 0, End: 12, Looping: true, LoopStart: 0, LoopEnd: 4})
	e := newTestEngine(t, h)

	result, err := e.SplitClip(context.Background(), id.String(), []string{"1|3", "2|3"})
	require.NoError(t, err)

	assert.Equal(t, []float64{2, 4, 6}, lengths(result.Clips))
	assertContiguous(t, result.Clips, 0, 12)

	var markers []float64
	for _, c := range h.TrackSnapshot(0) {
		assert.True(t, c.Looping)
		markers = append(markers, c.StartMarker)
	}
	assert.Equal(t, []float64{0, 2, 2}, markers)
	assertHoldingAreaEmpty(t, h)
}

func TestSplitPreservesSpanForAllClipKinds(t *testing.T) {
	kinds := map[string]sandbox.ClipState{
		"midi":          {Start: 4, End: 14},
		"audio":         {Start: 4, End: 14, Audio: true, Material: 20},
		"looping midi":  {Start: 4, End: 14, Looping: true, LoopStart: 1, LoopEnd: 4, StartMarker: 1},
		"looping audio": {Start: 4, End: 14, Looping: true, LoopStart: 0, LoopEnd: 3, Audio: true, Material: 3},
	}
	for name, state := range kinds {
		t.Run(name, func(t *testing.T) {
			h := sandbox.New(1)
			id := h.AddClip(state)
			e := newTestEngine(t, h)

			result, err := e.SplitClip(context.Background(), id.String(), []string{"1|2.5", "2|1", "3|2"})
			require.NoError(t, err)

			require.Len(t, result.Clips, 4)
			assertContiguous(t, result.Clips, 4, 14)
			assertHoldingAreaEmpty(t, h)
		})
	}
}

func TestSplitRejectsTooManyPoints(t *testing.T) {
	h := sandbox.New(1)
	e := newTestEngine(t, h)

	positions := make([]string, 11)
	for i := range positions {
		positions[i] = "1|2"
	}
	_, err := e.SplitClips(context.Background(), []string{"id 1", "id 2", "id 3"}, positions)
	assert.ErrorIs(t, err, ErrTooManySplitPoints)

	_, err = e.SplitClips(context.Background(), []string{"id 1"}, []string{"0|1"})
	assert.ErrorIs(t, err, barbeat.ErrInvalidFormat)
	assert.Empty(t, h.Calls())
}

func TestSplitSkipsClipWhenStagingFails(t *testing.T) {
	h := sandbox.New(2)
	first := h.AddClip(sandbox.ClipState{Track: 0, Start: 0, End: 8})
	second := h.AddClip(sandbox.ClipState{Track: 1, Start: 0, End: 8})
	e := newTestEngine(t, h)

	h.FailNext(sandbox.OpDuplicate, errors.New("host busy"))
	result, err := e.SplitClips(context.Background(), []string{first.String(), second.String()}, []string{"2|1"})
	require.NoError(t, err)

	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "host busy")
	require.Len(t, result.Clips, 2)
	for _, c := range result.Clips {
		assert.Equal(t, 1, c.Track)
	}
	assert.Len(t, h.TrackSnapshot(0), 1, "skipped clip is untouched")
	assertHoldingAreaEmpty(t, h)
}

func TestSplitPartialEditDoesNotStopBatch(t *testing.T) {
	h := sandbox.New(2)
	first := h.AddClip(sandbox.ClipState{Track: 0, Start: 0, End: 12})
	second := h.AddClip(sandbox.ClipState{Track: 1, Start: 0, End: 12})
	e := newTestEngine(t, h)

	boom := errors.New("boom")
	h.FailAfter(sandbox.OpDuplicate, 1, boom)
	result, err := e.SplitClips(context.Background(), []string{first.String(), second.String()}, []string{"1|3", "2|3"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPartialEdit)
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, result)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "partially edited")

	clips := h.TrackSnapshot(0)
	require.Len(t, clips, 1)
	assert.Equal(t, 2.0, clips[0].End, "no rollback of the trimmed original")

	assert.Equal(t, []float64{2, 4, 6}, lengths(result.Clips))
	assertContiguous(t, result.Clips, 0, 12)
	assert.Len(t, h.TrackSnapshot(1), 3, "the second clip is still split")
	assertHoldingAreaEmpty(t, h)
}

func TestSlicePartialEditDoesNotStopBatch(t *testing.T) {
	h := sandbox.New(2)
	first := h.AddClip(sandbox.ClipState{Track: 0, Start: 0, End: 8})
	second := h.AddClip(sandbox.ClipState{Track: 1, Start: 0, End: 8})
	e := newTestEngine(t, h)

	h.FailAfter(sandbox.OpDuplicate, 1, errors.New("boom"))
	result, err := e.SliceClips(context.Background(), []string{first.String(), second.String()}, "0:4")

	assert.ErrorIs(t, err, ErrPartialEdit)
	require.NotNil(t, result)
	assert.Equal(t, []float64{4, 4}, lengths(result.Clips))
	for _, c := range result.Clips {
		assert.Equal(t, 1, c.Track)
	}
	assertHoldingAreaEmpty(t, h)
}

func TestSliceNonLoopingClip(t *testing.T) {
	h := sandbox.New(1)
	id := h.AddClip(sandbox.ClipState{Start: 0, End: 8, Audio: true, Material: 8})
	e := newTestEngine(t, h)

	result, err := e.SliceClip(context.Background(), id.String(), "0:3")
	require.NoError(t, err)

	assert.Equal(t, []float64{3, 3, 2}, lengths(result.Clips))
	assertContiguous(t, result.Clips, 0, 8)

	var markers []float64
	for _, c := range h.TrackSnapshot(0) {
		markers = append(markers, c.StartMarker)
	}
	assert.Equal(t, []float64{0, 3, 6}, markers)
	assertHoldingAreaEmpty(t, h)
}

func TestSliceLoopingClipRollsContent(t *testing.T) {
	h := sandbox.New(1)
	id := h.AddClip(sandbox.ClipState{Start: 0, End: 8, Looping: true, LoopStart: 0, LoopEnd: 3})
	e := newTestEngine(t, h)

	result, err := e.SliceClip(context.Background(), id.String(), "0:2")
	require.NoError(t, err)

	assert.Equal(t, []float64{2, 2, 2, 2}, lengths(result.Clips))
	assertContiguous(t, result.Clips, 0, 8)

	var markers []float64
	for _, c := range h.TrackSnapshot(0) {
		markers = append(markers, c.StartMarker)
	}
	assert.Equal(t, []float64{0, 2, 1, 0}, markers)
	assertHoldingAreaEmpty(t, h)
}

func TestSliceCapSkipsWholeClips(t *testing.T) {
	h := sandbox.New(1)
	first := h.AddClip(sandbox.ClipState{Start: 0, End: 8})
	second := h.AddClip(sandbox.ClipState{Start: 8, End: 16})
	settings := DefaultSettings()
	settings.MaxSlices = 6
	e := New(h, settings)

	result, err := e.SliceClips(context.Background(), []string{first.String(), second.String()}, "0:2")
	require.NoError(t, err)

	assert.Len(t, result.Clips, 4)
	assertContiguous(t, result.Clips, 0, 8)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "limit of 6")

	clips := h.TrackSnapshot(0)
	assert.Len(t, clips, 5)
	assert.Equal(t, second.Int64(), clips[4].ID)
}

func TestSliceLargerThanClipIsNoOp(t *testing.T) {
	h := sandbox.New(1)
	id := h.AddClip(sandbox.ClipState{Start: 0, End: 4})
	e := newTestEngine(t, h)

	result, err := e.SliceClip(context.Background(), id.String(), "2:0")
	require.NoError(t, err)
	require.Len(t, result.Clips, 1)
	assert.Zero(t, h.CountCalls(sandbox.OpDuplicate))
}

func TestMoveClipsDeletesCoveredClips(t *testing.T) {
	h := sandbox.New(1)
	a := h.AddClip(sandbox.ClipState{Start: 0, End: 4})
	b := h.AddClip(sandbox.ClipState{Start: 8, End: 16})
	c := h.AddClip(sandbox.ClipState{Start: 20, End: 22})
	e := newTestEngine(t, h)

	result, err := e.MoveClips(context.Background(), []string{a.String(), b.String(), c.String()}, "9|1", "")
	require.NoError(t, err)

	assert.Equal(t, []float64{2, 6}, lengths(result.Clips))
	assertContiguous(t, result.Clips, 32, 40)

	clips := h.TrackSnapshot(0)
	require.Len(t, clips, 2)
	assert.Equal(t, 32.0, clips[0].Start)

	// a is deleted outright: only b and c are staged.
	assert.Equal(t, 4, h.CountCalls(sandbox.OpDuplicate))
	assertHoldingAreaEmpty(t, h)
}

func TestMoveClipsOntoLaterBatchClip(t *testing.T) {
	h := sandbox.New(1)
	a := h.AddClip(sandbox.ClipState{Start: 0, End: 8})
	b := h.AddClip(sandbox.ClipState{Start: 8, End: 12})
	e := newTestEngine(t, h)

	result, err := e.MoveClips(context.Background(), []string{a.String(), b.String()}, "3|1", "")
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)

	// b is drawn over the head of a at the target.
	assert.Equal(t, []float64{4, 4}, lengths(result.Clips))
	assertContiguous(t, result.Clips, 8, 16)

	clips := h.TrackSnapshot(0)
	require.Len(t, clips, 2)
	assert.Equal(t, 8.0, clips[0].Start)
	assert.Equal(t, 12.0, clips[0].End)
	assert.Equal(t, 0.0, clips[0].StartMarker, "b keeps its own content")
	assert.Equal(t, 12.0, clips[1].Start)
	assert.Equal(t, 16.0, clips[1].End)
	assert.Equal(t, 4.0, clips[1].StartMarker, "a loses its first four beats")
	assertHoldingAreaEmpty(t, h)
}

func TestMoveClipsWithLength(t *testing.T) {
	h := sandbox.New(2)
	short := h.AddClip(sandbox.ClipState{Track: 0, Start: 0, End: 4})
	long := h.AddClip(sandbox.ClipState{Track: 1, Start: 0, End: 12, Looping: true, LoopStart: 0, LoopEnd: 4})
	e := newTestEngine(t, h)

	result, err := e.MoveClips(context.Background(), []string{short.String(), long.String()}, "3|1", "2:0")
	require.NoError(t, err)

	require.Len(t, result.Clips, 2)
	for _, c := range result.Clips {
		assert.Equal(t, "3|1", c.Start)
		assert.Equal(t, "2:0", c.Length)
	}
	assertHoldingAreaEmpty(t, h)
}

func TestWithTimeSignature(t *testing.T) {
	h := sandbox.New(1)
	id := h.AddClip(sandbox.ClipState{Start: 0, End: 6})
	e, err := newTestEngine(t, h).WithTimeSignature(barbeat.TimeSignature{Numerator: 6, Denominator: 8})
	require.NoError(t, err)

	// 1|4 in 6/8 is three eighths, 1.5 beats in.
	result, err := e.SplitClip(context.Background(), id.String(), []string{"1|4"})
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 4.5}, lengths(result.Clips))
	assert.Equal(t, "1|4", result.Clips[1].Start)

	_, err = e.WithTimeSignature(barbeat.TimeSignature{Numerator: 4, Denominator: 3})
	assert.ErrorIs(t, err, barbeat.ErrInvalidTimeSignature)
}

func TestNewFallsBackToDefaults(t *testing.T) {
	e := New(sandbox.New(1), Settings{})
	assert.Equal(t, DefaultSettings(), e.Settings())
}
