package game

import "strings"

// Wall is the only blocking board glyph; every other cell is passable.
const Wall = '#'

// Point is an integer cell coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Board is the read-only decoded grid shared by the game state, the spawn
// manager and the clients. It is immutable for the lifetime of a session
// and therefore safe to share by reference across goroutines.
//
// Grid is row-major: Grid[y][x] is the glyph at column x of row y. Rows
// are stored as strings so the board marshals to the textual wire form
// directly.
type Board struct {
	Width  int      `json:"width"`
	Height int      `json:"height"`
	Grid   []string `json:"grid"`

	// SpawnPoints is the ordered spawn list extracted from the map source,
	// in row-major order. It is not part of the wire snapshot.
	SpawnPoints []Point `json:"-"`
}

// NewBoard builds a board from pre-decoded dimensions and rows. Rows
// shorter than width are padded with passable space; extra rows are
// dropped.
func NewBoard(width, height int, grid []string, spawnPoints []Point) *Board {
	rows := make([]string, height)
	for y := 0; y < height; y++ {
		var row string
		if y < len(grid) {
			row = grid[y]
		}
		if len(row) < width {
			row += strings.Repeat(" ", width-len(row))
		} else if len(row) > width {
			row = row[:width]
		}
		rows[y] = row
	}
	return &Board{Width: width, Height: height, Grid: rows, SpawnPoints: spawnPoints}
}

// BoardFromLines builds a board whose width is the longest line. Used by
// tests and by map sources that decode plain-text maps.
func BoardFromLines(lines []string, spawnPoints []Point) *Board {
	width := 0
	for _, l := range lines {
		if len(l) > width {
			width = len(l)
		}
	}
	return NewBoard(width, len(lines), lines, spawnPoints)
}

// GetCell returns the glyph at (x, y). ok is false out of bounds.
func (b *Board) GetCell(x, y int) (byte, bool) {
	if !b.InBounds(x, y) {
		return 0, false
	}
	return b.Grid[y][x], true
}

// IsWall reports whether (x, y) blocks movement. Out-of-bounds cells
// count as walls.
func (b *Board) IsWall(x, y int) bool {
	c, ok := b.GetCell(x, y)
	if !ok {
		return true
	}
	return c == Wall
}

// InBounds reports whether (x, y) lies on the board.
func (b *Board) InBounds(x, y int) bool {
	return x >= 0 && x < b.Width && y >= 0 && y < b.Height
}

// Center returns the synthetic center spawn used when a map ships no
// spawn points.
func (b *Board) Center() Point {
	return Point{X: b.Width / 2, Y: b.Height / 2}
}
