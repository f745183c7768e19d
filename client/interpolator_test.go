package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asciiarena/asciiarena/config"
)

func testInterpolation() config.Interpolation {
	return config.Interpolation{
		Delay:            100 * time.Millisecond,
		Tick:             50 * time.Millisecond,
		BufferMax:        20,
		ExtrapolationMax: 300 * time.Millisecond,
	}
}

func TestPositionAtInterpolation(t *testing.T) {
	ip := NewInterpolator(testInterpolation(), &recordingRenderer{})
	ip.Ingest("r1", SnapshotEntry{T: 1000, X: 2, Y: 2})
	ip.Ingest("r1", SnapshotEntry{T: 2000, X: 4, Y: 2})

	testCases := []struct {
		name       string
		renderTime uint64
		wantX      float64
		wantY      float64
	}{
		{name: "exact first timestamp", renderTime: 1000, wantX: 2, wantY: 2},
		{name: "exact last timestamp", renderTime: 2000, wantX: 4, wantY: 2},
		{name: "midpoint", renderTime: 1500, wantX: 3, wantY: 2},
		{name: "quarter", renderTime: 1250, wantX: 2.5, wantY: 2},
		{name: "before buffer holds first", renderTime: 500, wantX: 2, wantY: 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			x, y, ok := ip.PositionAt("r1", tc.renderTime)
			require.True(t, ok)
			assert.InDelta(t, tc.wantX, x, 1e-9)
			assert.InDelta(t, tc.wantY, y, 1e-9)
		})
	}

	_, _, ok := ip.PositionAt("unknown", 1500)
	assert.False(t, ok)
}

func TestPositionAtExtrapolation(t *testing.T) {
	ip := NewInterpolator(testInterpolation(), &recordingRenderer{})
	ip.Ingest("r1", SnapshotEntry{T: 2000, X: 4, Y: 2, Vx: 2, Vy: 0, HasVel: true})

	// 100ms past the newest entry at 2 cells/s.
	x, y, ok := ip.PositionAt("r1", 2100)
	require.True(t, ok)
	assert.InDelta(t, 4.2, x, 1e-9)
	assert.InDelta(t, 2.0, y, 1e-9)

	// Elapsed clamps at the extrapolation bound.
	x, _, _ = ip.PositionAt("r1", 3000)
	assert.InDelta(t, 4.6, x, 1e-9)

	// Far beyond the bound the position holds.
	x, _, _ = ip.PositionAt("r1", 60000)
	assert.InDelta(t, 4.6, x, 1e-9)
}

func TestExtrapolationDerivesVelocity(t *testing.T) {
	ip := NewInterpolator(testInterpolation(), &recordingRenderer{})
	ip.Ingest("r1", SnapshotEntry{T: 1000, X: 2, Y: 2})
	ip.Ingest("r1", SnapshotEntry{T: 2000, X: 4, Y: 2})

	// (4-2)/1s = 2 cells/s, extended 100ms.
	x, y, ok := ip.PositionAt("r1", 2100)
	require.True(t, ok)
	assert.InDelta(t, 4.2, x, 1e-9)
	assert.InDelta(t, 2.0, y, 1e-9)
}

func TestSingleEntryWithoutVelocityHolds(t *testing.T) {
	ip := NewInterpolator(testInterpolation(), &recordingRenderer{})
	ip.Ingest("r1", SnapshotEntry{T: 1000, X: 7, Y: 3})

	x, y, ok := ip.PositionAt("r1", 5000)
	require.True(t, ok)
	assert.InDelta(t, 7.0, x, 1e-9)
	assert.InDelta(t, 3.0, y, 1e-9)
}

func TestIngestDropsOldestBeyondBufferMax(t *testing.T) {
	cfg := testInterpolation()
	cfg.BufferMax = 3
	ip := NewInterpolator(cfg, &recordingRenderer{})

	for i := 0; i < 5; i++ {
		ip.Ingest("r1", SnapshotEntry{T: uint64(1000 + i*100), X: i, Y: 0})
	}

	// Entries 0 and 1 are gone; render times before the remaining window
	// hold at entry 2.
	x, _, ok := ip.PositionAt("r1", 1000)
	require.True(t, ok)
	assert.InDelta(t, 2.0, x, 1e-9)
}

func TestTickRedrawsOnlyOnCellChange(t *testing.T) {
	renderer := &recordingRenderer{}
	ip := NewInterpolator(testInterpolation(), renderer)
	board := openTestBoard(10, 10)

	ip.Ingest("r1", SnapshotEntry{T: 1000, X: 2, Y: 2})
	ip.Tick(1100, board, nil) // render time 1000
	require.Len(t, renderer.ops, 1)
	assert.Equal(t, cellOp{kind: "draw", x: 2, y: 2, glyph: RemotePlayerGlyph, color: RemotePlayerColor}, renderer.ops[0])

	// Same cell again: no redraw.
	ip.Tick(1150, board, nil)
	assert.Len(t, renderer.ops, 1)

	// Player moved: restore the old cell, draw the new one.
	ip.Ingest("r1", SnapshotEntry{T: 2000, X: 5, Y: 2})
	ip.Tick(2100, board, nil)
	require.Len(t, renderer.ops, 3)
	assert.Equal(t, cellOp{kind: "restore", x: 2, y: 2}, renderer.ops[1])
	assert.Equal(t, cellOp{kind: "draw", x: 5, y: 2, glyph: RemotePlayerGlyph, color: RemotePlayerColor}, renderer.ops[2])
}

func TestDropRestoresLastCell(t *testing.T) {
	renderer := &recordingRenderer{}
	ip := NewInterpolator(testInterpolation(), renderer)
	board := openTestBoard(10, 10)

	ip.Ingest("r1", SnapshotEntry{T: 1000, X: 2, Y: 2})
	ip.Tick(1100, board, nil)

	ip.Drop("r1", board, nil)
	require.Len(t, renderer.ops, 2)
	assert.Equal(t, cellOp{kind: "restore", x: 2, y: 2}, renderer.ops[1])
	assert.Empty(t, ip.Tracked())

	// Dropping an untracked player is a no-op.
	ip.Drop("r1", board, nil)
	assert.Len(t, renderer.ops, 2)
}

func TestTrackedIsSorted(t *testing.T) {
	ip := NewInterpolator(testInterpolation(), &recordingRenderer{})
	ip.Ingest("zed", SnapshotEntry{T: 1000})
	ip.Ingest("amy", SnapshotEntry{T: 1000})
	assert.Equal(t, []string{"amy", "zed"}, ip.Tracked())
}
