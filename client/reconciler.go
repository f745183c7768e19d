package client

import (
	"github.com/asciiarena/asciiarena/game"
)

// Reconciler periodically compares the predicted local position against
// the authoritative snapshot and silently snaps the prediction to the
// server's answer when they differ.
type Reconciler struct {
	predictor *Predictor
	renderer  Renderer
}

// NewReconciler wires the correction step.
func NewReconciler(predictor *Predictor, renderer Renderer) *Reconciler {
	return &Reconciler{predictor: predictor, renderer: renderer}
}

// Reconcile runs one correction pass. It is idempotent: once the
// prediction matches the snapshot, further passes change nothing.
// Returns whether a correction was applied.
func (r *Reconciler) Reconcile(board *game.Board, snap *game.Snapshot, selfID string) bool {
	if selfID == "" || board == nil || snap == nil {
		return false
	}
	predicted, ok := r.predictor.Pos()
	if !ok {
		return false
	}
	server, ok := snap.FindPlayer(selfID)
	if !ok {
		return false
	}
	authoritative := game.Point{X: server.X, Y: server.Y}
	if authoritative == predicted {
		return false
	}

	others := remotePlayers(snap, selfID)
	r.renderer.RestoreCell(predicted.X, predicted.Y, board, others, snap.Entities)
	r.predictor.Initialize(authoritative)
	r.renderer.DrawCell(authoritative.X, authoritative.Y, LocalPlayerGlyph, LocalPlayerColor)
	r.renderer.RenderStatus(snap.Score, authoritative, board.Height)
	return true
}
