package client

import (
	"math"
	"sort"

	"github.com/asciiarena/asciiarena/config"
	"github.com/asciiarena/asciiarena/game"
)

// SnapshotEntry is one buffered observation of a remote player, stamped
// with the server timestamp of the STATE_UPDATE that produced it.
type SnapshotEntry struct {
	T          uint64
	X, Y       int
	PlayerName string
	Vx, Vy     float64
	HasVel     bool
}

// track is the per-remote-player playback state: the bounded snapshot
// buffer and the last cell the player was drawn at.
type track struct {
	entries  []SnapshotEntry
	lastCell *game.Point
}

// Interpolator renders remote players at now-delay by linearly mixing the
// two buffered snapshots bracketing that render time. When the buffer
// runs dry it extrapolates along the last known velocity, bounded in
// time, then holds.
type Interpolator struct {
	delayMs     uint64
	maxExtrapMs uint64
	bufferMax   int
	renderer    Renderer
	tracks      map[string]*track
}

// NewInterpolator builds an interpolator from the playback constants.
func NewInterpolator(cfg config.Interpolation, renderer Renderer) *Interpolator {
	return &Interpolator{
		delayMs:     uint64(cfg.Delay.Milliseconds()),
		maxExtrapMs: uint64(cfg.ExtrapolationMax.Milliseconds()),
		bufferMax:   cfg.BufferMax,
		renderer:    renderer,
		tracks:      make(map[string]*track),
	}
}

// Ingest buffers a snapshot entry, dropping the oldest beyond the buffer
// bound.
func (ip *Interpolator) Ingest(playerID string, e SnapshotEntry) {
	tr, ok := ip.tracks[playerID]
	if !ok {
		tr = &track{}
		ip.tracks[playerID] = tr
	}
	tr.entries = append(tr.entries, e)
	if len(tr.entries) > ip.bufferMax {
		tr.entries = tr.entries[len(tr.entries)-ip.bufferMax:]
	}
}

// Drop frees a remote player's buffer and clears their last drawn cell.
func (ip *Interpolator) Drop(playerID string, board *game.Board, entities []game.Entity) {
	tr, ok := ip.tracks[playerID]
	if !ok {
		return
	}
	delete(ip.tracks, playerID)
	if tr.lastCell != nil && board != nil {
		ip.renderer.RestoreCell(tr.lastCell.X, tr.lastCell.Y, board, ip.drawnPlayers(playerID), entities)
	}
}

// Tracked returns the ids currently buffered, sorted for determinism.
func (ip *Interpolator) Tracked() []string {
	ids := make([]string, 0, len(ip.tracks))
	for id := range ip.tracks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// PositionAt computes a remote player's interpolated position for a
// render time. ok is false when nothing is buffered for the player.
func (ip *Interpolator) PositionAt(playerID string, renderTime uint64) (float64, float64, bool) {
	tr, ok := ip.tracks[playerID]
	if !ok || len(tr.entries) == 0 {
		return 0, 0, false
	}
	entries := tr.entries
	first, last := entries[0], entries[len(entries)-1]

	// Hold at the edges: a single entry, or a render time that has not
	// reached the buffer yet.
	if len(entries) == 1 || renderTime <= first.T {
		if renderTime > last.T {
			return ip.extrapolate(entries, renderTime)
		}
		return float64(first.X), float64(first.Y), true
	}
	if renderTime > last.T {
		return ip.extrapolate(entries, renderTime)
	}

	for i := len(entries) - 1; i > 0; i-- {
		a, b := entries[i-1], entries[i]
		if a.T <= renderTime && renderTime <= b.T {
			if b.T == a.T {
				return float64(b.X), float64(b.Y), true
			}
			alpha := float64(renderTime-a.T) / float64(b.T-a.T)
			x := float64(a.X) + (float64(b.X)-float64(a.X))*alpha
			y := float64(a.Y) + (float64(b.Y)-float64(a.Y))*alpha
			return x, y, true
		}
	}
	return float64(last.X), float64(last.Y), true
}

// extrapolate continues past the newest entry along the known velocity,
// or one derived from the last two entries, clamping the projected time
// to the extrapolation bound. Past the bound the clamp holds the
// position constant.
func (ip *Interpolator) extrapolate(entries []SnapshotEntry, renderTime uint64) (float64, float64, bool) {
	last := entries[len(entries)-1]

	vx, vy := last.Vx, last.Vy
	if !last.HasVel {
		if len(entries) < 2 {
			return float64(last.X), float64(last.Y), true
		}
		prev := entries[len(entries)-2]
		if last.T == prev.T {
			return float64(last.X), float64(last.Y), true
		}
		dt := float64(last.T-prev.T) / 1000.0
		vx = float64(last.X-prev.X) / dt
		vy = float64(last.Y-prev.Y) / dt
	}

	elapsed := renderTime - last.T
	if elapsed > ip.maxExtrapMs {
		elapsed = ip.maxExtrapMs
	}
	dt := float64(elapsed) / 1000.0
	return float64(last.X) + vx*dt, float64(last.Y) + vy*dt, true
}

// Tick advances playback to now-delay and redraws every remote player
// whose rounded cell changed, restoring the cell they left.
func (ip *Interpolator) Tick(now uint64, board *game.Board, entities []game.Entity) {
	if board == nil {
		return
	}
	renderTime := now
	if renderTime > ip.delayMs {
		renderTime -= ip.delayMs
	}

	for _, id := range ip.Tracked() {
		tr := ip.tracks[id]
		x, y, ok := ip.PositionAt(id, renderTime)
		if !ok {
			continue
		}
		cell := game.Point{X: roundToCell(x), Y: roundToCell(y)}
		if tr.lastCell != nil && *tr.lastCell == cell {
			continue
		}
		if tr.lastCell != nil {
			ip.renderer.RestoreCell(tr.lastCell.X, tr.lastCell.Y, board, ip.drawnPlayers(id), entities)
		}
		ip.renderer.DrawCell(cell.X, cell.Y, RemotePlayerGlyph, RemotePlayerColor)
		tr.lastCell = &cell
	}
}

// drawnPlayers reports where every other tracked player currently sits,
// so restoring one cell does not erase a neighbor.
func (ip *Interpolator) drawnPlayers(exceptID string) []game.PlayerSnapshot {
	others := make([]game.PlayerSnapshot, 0, len(ip.tracks))
	for id, tr := range ip.tracks {
		if id == exceptID || tr.lastCell == nil {
			continue
		}
		name := ""
		if n := len(tr.entries); n > 0 {
			name = tr.entries[n-1].PlayerName
		}
		others = append(others, game.PlayerSnapshot{
			PlayerID:   id,
			PlayerName: name,
			X:          tr.lastCell.X,
			Y:          tr.lastCell.Y,
		})
	}
	return others
}

func roundToCell(v float64) int {
	return int(math.Round(v))
}
