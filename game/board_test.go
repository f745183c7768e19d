package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoardCellLookup(t *testing.T) {
	board := BoardFromLines([]string{
		"####",
		"#  #",
		"####",
	}, nil)

	require.Equal(t, 4, board.Width)
	require.Equal(t, 3, board.Height)

	testCases := []struct {
		name     string
		x, y     int
		want     byte
		inBounds bool
	}{
		{name: "wall corner", x: 0, y: 0, want: '#', inBounds: true},
		{name: "open interior", x: 1, y: 1, want: ' ', inBounds: true},
		{name: "negative x", x: -1, y: 1, inBounds: false},
		{name: "x past width", x: 4, y: 1, inBounds: false},
		{name: "y past height", x: 1, y: 3, inBounds: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c, ok := board.GetCell(tc.x, tc.y)
			assert.Equal(t, tc.inBounds, ok)
			if tc.inBounds {
				assert.Equal(t, tc.want, c)
			}
		})
	}
}

func TestBoardIsWall(t *testing.T) {
	board := BoardFromLines([]string{
		"## ",
		"   ",
	}, nil)

	assert.True(t, board.IsWall(0, 0))
	assert.True(t, board.IsWall(1, 0))
	assert.False(t, board.IsWall(2, 0))
	assert.False(t, board.IsWall(0, 1))

	// Out of bounds counts as a wall.
	assert.True(t, board.IsWall(-1, 0))
	assert.True(t, board.IsWall(0, -1))
	assert.True(t, board.IsWall(3, 0))
	assert.True(t, board.IsWall(0, 2))
}

func TestBoardPadsShortRows(t *testing.T) {
	board := NewBoard(5, 2, []string{"#", ""}, nil)

	c, ok := board.GetCell(4, 0)
	require.True(t, ok)
	assert.Equal(t, byte(' '), c)
	assert.True(t, board.IsWall(0, 0))
	assert.False(t, board.IsWall(4, 1))
}

func TestBoardCenter(t *testing.T) {
	board := NewBoard(9, 7, nil, nil)
	assert.Equal(t, Point{X: 4, Y: 3}, board.Center())
}
