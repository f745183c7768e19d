// Package client implements the game client core: the network client with
// reconnect, local-player prediction with reconciliation, and remote-player
// interpolation. Rendering and input capture stay behind the Renderer and
// Input capabilities so terminal concerns never leak in.
package client

import "github.com/asciiarena/asciiarena/game"

// Glyphs and colors the core asks the renderer to draw. The renderer is
// free to interpret color names however its output medium allows.
const (
	LocalPlayerGlyph  = byte('@')
	RemotePlayerGlyph = byte('o')
	LocalPlayerColor  = "green"
	RemotePlayerColor = "cyan"
)

// Renderer is the cell-addressed output capability.
type Renderer interface {
	// DrawCell places a glyph at a cell.
	DrawCell(x, y int, glyph byte, color string)
	// RestoreCell redraws whatever belongs at a cell once a moving glyph
	// leaves it: another player, an entity, or the board background.
	RestoreCell(x, y int, board *game.Board, others []game.PlayerSnapshot, entities []game.Entity)
	// RenderStatus updates the status line below the board.
	RenderStatus(score int, pos game.Point, boardHeight int)
}

// BoardRenderer is optionally implemented by renderers that can paint the
// whole scene at once; the client loop uses it when the first snapshot
// arrives.
type BoardRenderer interface {
	DrawBoard(board *game.Board, players []game.PlayerSnapshot, entities []game.Entity)
}

// Input is the capability delivering movement and quit intents.
type Input interface {
	OnMove(func(dx, dy int))
	OnQuit(func())
}
