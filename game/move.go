package game

// MoveReason tags why a movement was rejected. The values double as the
// machine-readable reason sent back in INVALID_MOVE errors.
type MoveReason string

const (
	ReasonNone   MoveReason = ""
	ReasonInput  MoveReason = "input"
	ReasonBounds MoveReason = "bounds"
	ReasonWall   MoveReason = "wall"
	ReasonEntity MoveReason = "entity"
	ReasonPlayer MoveReason = "player"
)

// MoveResult is the outcome of applying a single-step move.
type MoveResult struct {
	OK     bool
	Reason MoveReason
	From   Point
	To     Point
}

// ValidStep reports whether (dx, dy) is a legal single-step input:
// each component in {-1, 0, 1}, not both zero, diagonal only when
// allowDiagonal is set.
func ValidStep(dx, dy int, allowDiagonal bool) bool {
	if dx < -1 || dx > 1 || dy < -1 || dy > 1 {
		return false
	}
	if dx == 0 && dy == 0 {
		return false
	}
	if !allowDiagonal && dx != 0 && dy != 0 {
		return false
	}
	return true
}

// CheckDestination runs the shared four-step movement validation against a
// destination cell: bounds, wall, solid entity, player collision. The
// server validates with live state and the client predictor validates with
// its latest snapshot; both must agree, so they both call this.
//
// occupied holds the cells of players that block movement, with the moving
// player already excluded.
func CheckDestination(board *Board, to Point, entities []Entity, occupied map[Point]bool) MoveReason {
	if !board.InBounds(to.X, to.Y) {
		return ReasonBounds
	}
	if board.IsWall(to.X, to.Y) {
		return ReasonWall
	}
	if SolidEntityAt(entities, to.X, to.Y) {
		return ReasonEntity
	}
	if occupied[to] {
		return ReasonPlayer
	}
	return ReasonNone
}
