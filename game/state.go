package game

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// PlayerState is the lifecycle phase of a player.
type PlayerState int

const (
	// StateWaiting players joined while no spawn was available and hold no
	// position yet.
	StateWaiting PlayerState = iota
	// StateActive players hold a valid board position.
	StateActive
	// StateGrace players lost their connection but keep their position
	// until the grace window expires or a reconnect rebinds them.
	StateGrace
)

// Player is the server-side record of one participant. PlayerID survives
// reconnects; ClientID tracks the current socket and changes with it.
type Player struct {
	PlayerID   string
	PlayerName string
	ClientID   string
	X, Y       int
	State      PlayerState

	lastX, lastY int
	hasLast      bool
	lastMovedAt  time.Time
}

// PlayerSnapshot is the wire form of a player inside a STATE_UPDATE.
// Vx and Vy are derived velocities in cells per second.
type PlayerSnapshot struct {
	PlayerID   string  `json:"playerId"`
	PlayerName string  `json:"playerName"`
	ClientID   string  `json:"clientId"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Vx         float64 `json:"vx"`
	Vy         float64 `json:"vy"`
}

// Snapshot is the serialized copy of the whole game state broadcast on
// each tick. It holds no references into live state.
type Snapshot struct {
	Board    *Board           `json:"board"`
	Players  []PlayerSnapshot `json:"players"`
	Entities []Entity         `json:"entities"`
	Score    int              `json:"score"`
}

// GameState owns the players, the entity collection and the score. All
// mutation goes through its methods; an internal mutex serializes them so
// connection readers and the broadcaster can share one instance.
type GameState struct {
	mu            sync.RWMutex
	board         *Board
	players       map[string]*Player
	entities      []Entity
	score         int
	allowDiagonal bool

	now func() time.Time
}

// NewGameState builds an empty state over an immutable board.
func NewGameState(board *Board, allowDiagonal bool) *GameState {
	return &GameState{
		board:         board,
		players:       make(map[string]*Player),
		allowDiagonal: allowDiagonal,
		now:           time.Now,
	}
}

// SetClock replaces the state's clock. Test hook.
func (g *GameState) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
}

// Board returns the shared immutable board.
func (g *GameState) Board() *Board {
	return g.board
}

// AddPlayer creates a player in the waiting state, bound to the given
// connection, and returns a copy of the record.
func (g *GameState) AddPlayer(playerName, clientID string) Player {
	g.mu.Lock()
	defer g.mu.Unlock()

	p := &Player{
		PlayerID:   uuid.NewString(),
		PlayerName: playerName,
		ClientID:   clientID,
		State:      StateWaiting,
	}
	g.players[p.PlayerID] = p
	return *p
}

// PlacePlayer sets a player's position and activates them. The caller is
// responsible for having checked availability.
func (g *GameState) PlacePlayer(playerID string, x, y int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.players[playerID]
	if !ok {
		return false
	}
	p.X, p.Y = x, y
	p.hasLast = false
	p.lastMovedAt = g.now()
	p.State = StateActive
	return true
}

// MovePlayer validates and applies a single-step move atomically. The
// validation order matches the client predictor: bounds, wall, solid
// entity, player collision.
func (g *GameState) MovePlayer(playerID string, dx, dy int) MoveResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.players[playerID]
	if !ok || p.State != StateActive {
		return MoveResult{Reason: ReasonInput}
	}
	from := Point{X: p.X, Y: p.Y}
	if !ValidStep(dx, dy, g.allowDiagonal) {
		return MoveResult{Reason: ReasonInput, From: from, To: from}
	}
	to := Point{X: p.X + dx, Y: p.Y + dy}

	if reason := CheckDestination(g.board, to, g.entities, g.occupiedExceptLocked(playerID)); reason != ReasonNone {
		return MoveResult{Reason: reason, From: from, To: to}
	}

	p.lastX, p.lastY = p.X, p.Y
	p.hasLast = true
	p.lastMovedAt = g.now()
	p.X, p.Y = to.X, to.Y
	return MoveResult{OK: true, From: from, To: to}
}

// RemovePlayer deletes a player record.
func (g *GameState) RemovePlayer(playerID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.players, playerID)
}

// SetPlayerName renames a player.
func (g *GameState) SetPlayerName(playerID, name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.players[playerID]
	if !ok {
		return false
	}
	p.PlayerName = name
	return true
}

// SetPlayerState transitions a player's lifecycle state.
func (g *GameState) SetPlayerState(playerID string, state PlayerState) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.players[playerID]
	if !ok {
		return false
	}
	p.State = state
	return true
}

// RebindClient attaches an existing player to a new connection without
// touching their position. Returns false for unknown players.
func (g *GameState) RebindClient(playerID, clientID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.players[playerID]
	if !ok {
		return false
	}
	p.ClientID = clientID
	if p.State == StateGrace {
		p.State = StateActive
	}
	return true
}

// PlayerByID returns a copy of a player record.
func (g *GameState) PlayerByID(playerID string) (Player, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.players[playerID]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

// OccupiedCells returns the cells held by players that block spawning and
// movement: active players plus grace players, whose cell stays reserved
// for their reconnect.
func (g *GameState) OccupiedCells() map[Point]bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.occupiedExceptLocked("")
}

func (g *GameState) occupiedExceptLocked(exceptPlayerID string) map[Point]bool {
	occupied := make(map[Point]bool, len(g.players))
	for id, p := range g.players {
		if id == exceptPlayerID {
			continue
		}
		if p.State == StateActive || p.State == StateGrace {
			occupied[Point{X: p.X, Y: p.Y}] = true
		}
	}
	return occupied
}

// AddEntity appends an entity to the collection.
func (g *GameState) AddEntity(e Entity) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entities = append(g.entities, e)
}

// RemoveEntity deletes an entity by id.
func (g *GameState) RemoveEntity(entityID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.entities {
		if g.entities[i].EntityID == entityID {
			g.entities = append(g.entities[:i], g.entities[i+1:]...)
			return
		}
	}
}

// AddScore adjusts the shared score.
func (g *GameState) AddScore(delta int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.score += delta
}

// Serialize copies the state into a wire snapshot, deriving each player's
// velocity from their previous position: v = (pos - lastPos) / Δt with
// Δt = now - lastMovedAt. Velocity is zero with no previous position or a
// zero Δt. Waiting players hold no position and are excluded.
func (g *GameState) Serialize(now time.Time) Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	snap := Snapshot{
		Board:    g.board,
		Players:  make([]PlayerSnapshot, 0, len(g.players)),
		Entities: make([]Entity, len(g.entities)),
		Score:    g.score,
	}
	copy(snap.Entities, g.entities)

	for _, p := range g.players {
		if p.State == StateWaiting {
			continue
		}
		ps := PlayerSnapshot{
			PlayerID:   p.PlayerID,
			PlayerName: p.PlayerName,
			ClientID:   p.ClientID,
			X:          p.X,
			Y:          p.Y,
		}
		if p.hasLast {
			if dt := now.Sub(p.lastMovedAt).Seconds(); dt > 0 {
				ps.Vx = float64(p.X-p.lastX) / dt
				ps.Vy = float64(p.Y-p.lastY) / dt
			}
		}
		snap.Players = append(snap.Players, ps)
	}
	return snap
}

// FindPlayer returns the snapshot entry for a player id, if present.
func (s *Snapshot) FindPlayer(playerID string) (PlayerSnapshot, bool) {
	for _, p := range s.Players {
		if p.PlayerID == playerID {
			return p, true
		}
	}
	return PlayerSnapshot{}, false
}

// OccupiedExcept returns the cells of every snapshot player except one.
// The client predictor feeds this to the shared destination check.
func (s *Snapshot) OccupiedExcept(playerID string) map[Point]bool {
	occupied := make(map[Point]bool, len(s.Players))
	for _, p := range s.Players {
		if p.PlayerID == playerID {
			continue
		}
		occupied[Point{X: p.X, Y: p.Y}] = true
	}
	return occupied
}
