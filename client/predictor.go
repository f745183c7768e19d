package client

import (
	"github.com/asciiarena/asciiarena/game"
)

// Predictor tracks the local player's predicted position and commits
// valid moves to the renderer immediately, before the server confirms
// them. Its validation mirrors the server's exactly, so a prediction only
// ever diverges when the world changed under it.
type Predictor struct {
	renderer      Renderer
	allowDiagonal bool
	pos           *game.Point
}

// NewPredictor builds a predictor with no position; prediction starts
// once the first authoritative snapshot names the local player.
func NewPredictor(renderer Renderer, allowDiagonal bool) *Predictor {
	return &Predictor{renderer: renderer, allowDiagonal: allowDiagonal}
}

// Initialize seeds (or overwrites) the predicted position from the
// server's authoritative one.
func (p *Predictor) Initialize(pos game.Point) {
	seeded := pos
	p.pos = &seeded
}

// Pos returns the predicted position, ok false before initialization.
func (p *Predictor) Pos() (game.Point, bool) {
	if p.pos == nil {
		return game.Point{}, false
	}
	return *p.pos, true
}

// Reset clears the prediction; used on disconnect or invalid state.
func (p *Predictor) Reset() {
	p.pos = nil
}

// OnInput validates a movement intent against the latest known snapshot
// and, when valid, commits it visually: restore the old cell, draw the
// local glyph at the new one, refresh the status line. It reports whether
// the move was committed; the caller sends the MOVE to the server either
// way, because the server stays authoritative.
func (p *Predictor) OnInput(dx, dy int, board *game.Board, snap *game.Snapshot, selfID string) bool {
	if p.pos == nil || board == nil || snap == nil {
		return false
	}
	if !game.ValidStep(dx, dy, p.allowDiagonal) {
		return false
	}

	from := *p.pos
	to := game.Point{X: from.X + dx, Y: from.Y + dy}
	if game.CheckDestination(board, to, snap.Entities, snap.OccupiedExcept(selfID)) != game.ReasonNone {
		return false
	}

	p.pos = &to
	others := remotePlayers(snap, selfID)
	p.renderer.RestoreCell(from.X, from.Y, board, others, snap.Entities)
	p.renderer.DrawCell(to.X, to.Y, LocalPlayerGlyph, LocalPlayerColor)
	p.renderer.RenderStatus(snap.Score, to, board.Height)
	return true
}

// remotePlayers filters the snapshot down to everyone but the local
// player, for cell restoration.
func remotePlayers(snap *game.Snapshot, selfID string) []game.PlayerSnapshot {
	others := make([]game.PlayerSnapshot, 0, len(snap.Players))
	for _, ps := range snap.Players {
		if ps.PlayerID == selfID {
			continue
		}
		others = append(others, ps)
	}
	return others
}
