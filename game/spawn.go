package game

// SpawnManager owns the effective spawn list and the FIFO wait queue for
// joins that arrived while no spawn point was available.
//
// It performs no locking of its own: the server serializes all calls, the
// same way it serializes game-state mutation.
type SpawnManager struct {
	board   *Board
	points  []Point
	radius  int
	waiting []string // playerIDs, FIFO
}

// NewSpawnManager caps the board's ordered spawn list at maxCount and
// falls back to the synthetic center point when the capped list is empty.
// clearRadius is the Manhattan radius of the availability test.
func NewSpawnManager(board *Board, maxCount, clearRadius int) *SpawnManager {
	points := board.SpawnPoints
	if maxCount < len(points) {
		points = points[:maxCount]
	}
	if len(points) == 0 {
		points = []Point{board.Center()}
	}
	effective := make([]Point, len(points))
	copy(effective, points)
	return &SpawnManager{board: board, points: effective, radius: clearRadius}
}

// Points returns the effective spawn list in order.
func (sm *SpawnManager) Points() []Point {
	return sm.points
}

// IsAvailable reports whether every in-board cell within the Manhattan
// clear radius of p is passable and unoccupied. Cells of the disk that
// fall off the board are ignored, so corner spawns are judged on their
// partial disk. Radius 0 collapses to "the cell itself must be clear".
func (sm *SpawnManager) IsAvailable(p Point, occupied map[Point]bool) bool {
	for dy := -sm.radius; dy <= sm.radius; dy++ {
		rest := sm.radius - abs(dy)
		for dx := -rest; dx <= rest; dx++ {
			c := Point{X: p.X + dx, Y: p.Y + dy}
			if !sm.board.InBounds(c.X, c.Y) {
				continue
			}
			if sm.board.IsWall(c.X, c.Y) {
				return false
			}
			if occupied[c] {
				return false
			}
		}
	}
	return true
}

// FindSpawn returns the first available point of the ordered spawn list.
func (sm *SpawnManager) FindSpawn(occupied map[Point]bool) (Point, bool) {
	for _, p := range sm.points {
		if sm.IsAvailable(p, occupied) {
			return p, true
		}
	}
	return Point{}, false
}

// EnqueueWait appends a player to the wait queue.
func (sm *SpawnManager) EnqueueWait(playerID string) {
	sm.waiting = append(sm.waiting, playerID)
}

// PeekWaiting returns the head of the wait queue without removing it.
func (sm *SpawnManager) PeekWaiting() (string, bool) {
	if len(sm.waiting) == 0 {
		return "", false
	}
	return sm.waiting[0], true
}

// DequeueNextWaiting pops and returns the head of the wait queue.
func (sm *SpawnManager) DequeueNextWaiting() (string, bool) {
	if len(sm.waiting) == 0 {
		return "", false
	}
	id := sm.waiting[0]
	sm.waiting = sm.waiting[1:]
	return id, true
}

// RemoveWaiting drops a player from the wait queue wherever they are,
// preserving the order of the rest. Used when a waiting player leaves.
func (sm *SpawnManager) RemoveWaiting(playerID string) {
	for i, id := range sm.waiting {
		if id == playerID {
			sm.waiting = append(sm.waiting[:i], sm.waiting[i+1:]...)
			return
		}
	}
}

// WaitingCount returns the wait-queue length.
func (sm *SpawnManager) WaitingCount() int {
	return len(sm.waiting)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
