package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/asciiarena/asciiarena/config"
	"github.com/asciiarena/asciiarena/game"
	"github.com/asciiarena/asciiarena/protocol"
)

// Server wires the board, game state, spawn manager, connection registry
// and broadcaster together and routes every inbound message.
//
// All join/move/disconnect transitions run under one mutex, so the shared
// state sees a single logical writer; per-connection readers and the
// broadcast tick run on their own goroutines.
type Server struct {
	cfg    config.Config
	log    *zap.SugaredLogger
	board  *game.Board
	state  *game.GameState
	spawns *game.SpawnManager
	conns  *ConnectionManager
	caster *Broadcaster

	mu          sync.Mutex
	graceTimers map[string]*time.Timer
}

// New builds a server over an already-decoded board.
func New(cfg config.Config, board *game.Board, log *zap.SugaredLogger) *Server {
	s := &Server{
		cfg:         cfg,
		log:         log,
		board:       board,
		state:       game.NewGameState(board, cfg.Movement.AllowDiagonal),
		spawns:      game.NewSpawnManager(board, cfg.SpawnPoints.MaxCount, cfg.SpawnPoints.ClearRadius),
		graceTimers: make(map[string]*time.Timer),
	}
	s.conns = NewConnectionManager(cfg.WebSocket.SendQueueSize, s.handleDisconnect, log)
	s.caster = NewBroadcaster(s.state, s.conns, cfg.WebSocket.UpdateInterval, log)
	return s
}

// State exposes the game state for tests and the HTTP snapshot endpoint.
func (s *Server) State() *game.GameState {
	return s.state
}

// Handler returns the HTTP surface: the websocket endpoint under
// /subscribe and a read-only JSON snapshot under /state.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/subscribe", websocket.Handler(s.HandleSubscribe))
	mux.HandleFunc("/state", s.handleGetState)
	return mux
}

// Run serves until the context is cancelled. The listener, the broadcast
// tick and the liveness ping run as one supervised group.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{Addr: s.cfg.WebSocket.Addr(), Handler: s.Handler()}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Infow("listening", "addr", httpServer.Addr)
		err := httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := s.caster.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := s.runPinger(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, conn := range s.conns.All() {
			conn.Close()
		}
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// HandleSubscribe is the websocket entrypoint: register the socket, send
// the initial CONNECT, then consume inbound frames until the connection
// dies.
func (s *Server) HandleSubscribe(ws *websocket.Conn) {
	conn := s.conns.Add(ws)
	s.log.Infow("connection accepted", "clientId", conn.ClientID, "remote", ws.RemoteAddr())

	welcome := protocol.ConnectPayload{
		ClientID:  conn.ClientID,
		GameState: s.snapshotPtr(),
	}
	msg, err := protocol.New(protocol.TypeConnect, welcome)
	if err != nil {
		s.log.Errorw("encoding welcome", "error", err)
		s.conns.Remove(conn.ClientID)
		return
	}
	msg.ClientID = conn.ClientID
	if err := conn.Send(msg); err != nil {
		s.log.Warnw("sending welcome", "clientId", conn.ClientID, "error", err)
		s.handleDisconnect(conn)
		return
	}

	s.readLoop(conn, ws)
	s.handleDisconnect(conn)
}

// readLoop consumes frames serially for one connection. A malformed JSON
// frame earns an ERROR and keeps the connection; an I/O error ends it.
func (s *Server) readLoop(conn *Conn, ws *websocket.Conn) {
	for {
		var msg protocol.Message
		err := websocket.JSON.Receive(ws, &msg)
		if err != nil {
			if isDecodeError(err) {
				s.log.Debugw("malformed frame", "clientId", conn.ClientID, "error", err)
				s.sendError(conn, protocol.CodeUnknownType, "malformed message", protocol.ErrorContext{Action: "decode"})
				continue
			}
			return
		}
		s.conns.Touch(conn.ClientID)
		s.handleMessage(conn, msg)
	}
}

// runPinger sends PINGs on a fixed interval and removes connections that
// stayed silent past the pong timeout.
func (s *Server) runPinger(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.WebSocket.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			deadline := time.Now().Add(-s.cfg.WebSocket.PongTimeout)
			ping := protocol.MustNew(protocol.TypePing, nil)
			for _, conn := range s.conns.All() {
				if conn.LastActivity().Before(deadline) {
					s.log.Infow("connection timed out", "clientId", conn.ClientID)
					conn.Close()
					go s.handleDisconnect(conn)
					continue
				}
				if err := conn.Send(ping); err != nil {
					conn.Close()
					go s.handleDisconnect(conn)
				}
			}
		}
	}
}

// handleGetState serves the current snapshot over plain HTTP.
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	snap := s.state.Serialize(time.Now())
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.log.Errorw("writing state", "error", err)
	}
}

func (s *Server) snapshotPtr() *game.Snapshot {
	snap := s.state.Serialize(time.Now())
	return &snap
}

// isDecodeError separates bad-JSON frames, which keep the connection,
// from transport failures, which end it.
func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
