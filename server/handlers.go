package server

import (
	"runtime/debug"
	"time"

	"github.com/asciiarena/asciiarena/game"
	"github.com/asciiarena/asciiarena/protocol"
)

// handleMessage routes one inbound frame. A panic inside a handler is
// recovered here, logged, and surfaced to the client as INTERNAL so one
// client's bug never takes the server down.
func (s *Server) handleMessage(conn *Conn, msg protocol.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("panic in message handler",
				"clientId", conn.ClientID, "type", msg.Type,
				"panic", r, "stack", string(debug.Stack()))
			s.sendError(conn, protocol.CodeInternal, "internal server error",
				protocol.ErrorContext{Action: msg.Type})
		}
	}()

	if err := msg.Validate(); err != nil {
		s.sendError(conn, protocol.CodeUnknownType, err.Error(), protocol.ErrorContext{Action: "validate"})
		return
	}

	switch msg.Type {
	case protocol.TypeConnect:
		var req protocol.ConnectRequest
		if len(msg.Payload) > 0 {
			if err := msg.DecodePayload(&req); err != nil {
				s.sendError(conn, protocol.CodeUnknownType, err.Error(), protocol.ErrorContext{Action: msg.Type})
				return
			}
		}
		s.handleConnect(conn, req)

	case protocol.TypeSetPlayerName:
		var req protocol.SetPlayerNamePayload
		if err := msg.DecodePayload(&req); err != nil {
			s.sendError(conn, protocol.CodeUnknownType, err.Error(), protocol.ErrorContext{Action: msg.Type})
			return
		}
		s.handleSetPlayerName(conn, req.Name)

	case protocol.TypeMove:
		var req protocol.MovePayload
		if err := msg.DecodePayload(&req); err != nil {
			s.sendError(conn, protocol.CodeUnknownType, err.Error(), protocol.ErrorContext{Action: msg.Type})
			return
		}
		s.handleMove(conn, req)

	case protocol.TypePing:
		if err := conn.Send(protocol.MustNew(protocol.TypePong, nil)); err != nil {
			s.log.Debugw("pong send failed", "clientId", conn.ClientID, "error", err)
		}

	case protocol.TypePong:
		// Touch already happened in the read loop.

	default:
		s.sendError(conn, protocol.CodeUnknownType, "unknown message type: "+msg.Type,
			protocol.ErrorContext{Action: msg.Type})
	}
}

// handleConnect completes a join, or resumes a previous session when the
// request names a known playerId. An unknown playerId falls back to a
// fresh join.
func (s *Server) handleConnect(conn *Conn, req protocol.ConnectRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.PlayerID != "" {
		if s.resumeLocked(conn, req.PlayerID) {
			return
		}
		s.log.Infow("resume for unknown player, joining fresh",
			"clientId", conn.ClientID, "playerId", req.PlayerID)
	}
	name := req.PlayerName
	if name == "" {
		name = "anonymous"
	}
	s.joinLocked(conn, name)
}

// handleSetPlayerName renames a bound player; for a connection with no
// player yet it doubles as the join request.
func (s *Server) handleSetPlayerName(conn *Conn, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if playerID := conn.PlayerID(); playerID != "" {
		s.state.SetPlayerName(playerID, name)
		return
	}
	s.joinLocked(conn, name)
}

// joinLocked creates the player and either places them on an available
// spawn or parks them in the wait queue. Caller holds s.mu.
func (s *Server) joinLocked(conn *Conn, name string) {
	player := s.state.AddPlayer(name, conn.ClientID)
	s.conns.Bind(conn.ClientID, player.PlayerID)

	spawn, ok := s.spawns.FindSpawn(s.state.OccupiedCells())
	if !ok {
		s.spawns.EnqueueWait(player.PlayerID)
		s.log.Infow("join deferred, no spawn available",
			"playerId", player.PlayerID, "waiting", s.spawns.WaitingCount())
		s.sendConnect(conn, protocol.ConnectPayload{
			ClientID:    conn.ClientID,
			WaitMessage: s.cfg.SpawnPoints.WaitMessage,
		})
		return
	}

	s.state.PlacePlayer(player.PlayerID, spawn.X, spawn.Y)
	s.log.Infow("player joined", "playerId", player.PlayerID, "name", name, "spawn", spawn)

	s.sendConnect(conn, protocol.ConnectPayload{
		ClientID:  conn.ClientID,
		PlayerID:  player.PlayerID,
		GameState: s.snapshotPtr(),
	})
	s.conns.Broadcast(protocol.MustNew(protocol.TypePlayerJoined, protocol.PlayerJoinedPayload{
		PlayerID:   player.PlayerID,
		PlayerName: name,
		X:          spawn.X,
		Y:          spawn.Y,
	}))
}

// resumeLocked rebinds an existing player to a new connection, keeping
// their position; no new spawn is allocated. Caller holds s.mu.
func (s *Server) resumeLocked(conn *Conn, playerID string) bool {
	if _, ok := s.state.PlayerByID(playerID); !ok {
		return false
	}
	if timer, ok := s.graceTimers[playerID]; ok {
		timer.Stop()
		delete(s.graceTimers, playerID)
	}
	s.state.RebindClient(playerID, conn.ClientID)
	s.conns.Bind(conn.ClientID, playerID)
	s.log.Infow("session resumed", "playerId", playerID, "clientId", conn.ClientID)

	s.sendConnect(conn, protocol.ConnectPayload{
		ClientID:  conn.ClientID,
		PlayerID:  playerID,
		GameState: s.snapshotPtr(),
	})
	return true
}

// handleMove validates and applies a movement intent. The server state
// never changes on a rejected move, so there is nothing to roll back.
func (s *Server) handleMove(conn *Conn, req protocol.MovePayload) {
	playerID := conn.PlayerID()
	if playerID == "" {
		s.sendError(conn, protocol.CodeInvalidMove, "no player bound to connection",
			protocol.ErrorContext{Action: protocol.TypeMove, Reason: string(game.ReasonInput)})
		return
	}
	if err := req.Validate(s.cfg.Movement.AllowDiagonal); err != nil {
		s.sendError(conn, protocol.CodeInvalidMove, err.Error(),
			protocol.ErrorContext{Action: protocol.TypeMove, Reason: string(game.ReasonInput)})
		return
	}

	s.mu.Lock()
	result := s.state.MovePlayer(playerID, req.Dx, req.Dy)
	s.mu.Unlock()

	if !result.OK {
		attempted, current := result.To, result.From
		s.sendError(conn, protocol.CodeInvalidMove, "move rejected", protocol.ErrorContext{
			Action:            protocol.TypeMove,
			Reason:            string(result.Reason),
			AttemptedPosition: &attempted,
			CurrentPosition:   &current,
		})
	}
}

// handleDisconnect tears a connection down. It is the single funnel for
// read-loop exit, write failure and ping timeout, and is idempotent: only
// the caller that actually removes the registration proceeds.
func (s *Server) handleDisconnect(conn *Conn) {
	if !s.conns.Remove(conn.ClientID) {
		return
	}
	s.log.Infow("connection closed", "clientId", conn.ClientID)

	playerID := conn.PlayerID()
	if playerID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	player, ok := s.state.PlayerByID(playerID)
	if !ok || player.ClientID != conn.ClientID {
		// The player already reconnected on another socket or is gone.
		return
	}

	switch {
	case player.State == game.StateWaiting:
		s.spawns.RemoveWaiting(playerID)
		s.state.RemovePlayer(playerID)

	case s.cfg.Grace > 0:
		s.state.SetPlayerState(playerID, game.StateGrace)
		s.log.Infow("player entering grace", "playerId", playerID, "grace", s.cfg.Grace)
		s.graceTimers[playerID] = time.AfterFunc(s.cfg.Grace, func() {
			s.expireGrace(playerID)
		})

	default:
		s.removeAndDrainLocked(playerID)
	}
}

// expireGrace removes a player whose grace window ran out without a
// reconnect.
func (s *Server) expireGrace(playerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.graceTimers, playerID)
	player, ok := s.state.PlayerByID(playerID)
	if !ok || player.State != game.StateGrace {
		return
	}
	s.log.Infow("grace expired", "playerId", playerID)
	s.removeAndDrainLocked(playerID)
}

// removeAndDrainLocked removes a player, announces PLAYER_LEFT, and then
// drains the wait queue in FIFO order: waiting players are placed until
// the head of the queue cannot be spawned. Caller holds s.mu.
func (s *Server) removeAndDrainLocked(playerID string) {
	s.state.RemovePlayer(playerID)
	s.conns.Broadcast(protocol.MustNew(protocol.TypePlayerLeft, protocol.PlayerLeftPayload{PlayerID: playerID}))

	for {
		waitingID, ok := s.spawns.PeekWaiting()
		if !ok {
			return
		}

		waitingConn, connected := s.conns.ByPlayerID(waitingID)
		if !connected {
			// The waiting player went away; drop them and keep draining.
			s.spawns.DequeueNextWaiting()
			s.state.RemovePlayer(waitingID)
			continue
		}

		spawn, available := s.spawns.FindSpawn(s.state.OccupiedCells())
		if !available {
			return
		}

		s.spawns.DequeueNextWaiting()
		s.state.PlacePlayer(waitingID, spawn.X, spawn.Y)
		player, _ := s.state.PlayerByID(waitingID)
		s.log.Infow("waiting player placed", "playerId", waitingID, "spawn", spawn)

		s.sendConnect(waitingConn, protocol.ConnectPayload{
			ClientID:  waitingConn.ClientID,
			PlayerID:  waitingID,
			GameState: s.snapshotPtr(),
		})
		s.conns.Broadcast(protocol.MustNew(protocol.TypePlayerJoined, protocol.PlayerJoinedPayload{
			PlayerID:   waitingID,
			PlayerName: player.PlayerName,
			X:          spawn.X,
			Y:          spawn.Y,
		}))
	}
}

func (s *Server) sendConnect(conn *Conn, payload protocol.ConnectPayload) {
	msg, err := protocol.New(protocol.TypeConnect, payload)
	if err != nil {
		s.log.Errorw("encoding connect", "error", err)
		return
	}
	msg.ClientID = conn.ClientID
	if err := conn.Send(msg); err != nil {
		s.log.Warnw("connect send failed", "clientId", conn.ClientID, "error", err)
	}
}

func (s *Server) sendError(conn *Conn, code, message string, ctx protocol.ErrorContext) {
	if err := conn.Send(protocol.NewError(code, message, ctx)); err != nil {
		s.log.Debugw("error send failed", "clientId", conn.ClientID, "error", err)
	}
}
