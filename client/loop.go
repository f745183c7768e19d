package client

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/asciiarena/asciiarena/config"
	"github.com/asciiarena/asciiarena/game"
	"github.com/asciiarena/asciiarena/protocol"
)

// ClientLoop owns the client-side world: the current snapshot, the local
// player identity, the predictor, the interpolator and the reconciler.
// The receive handlers, the interpolation tick and the reconciliation
// tick all mutate that world, so a single mutex serializes them.
type ClientLoop struct {
	cfg      config.Config
	net      *NetClient
	renderer Renderer
	input    Input
	log      *zap.SugaredLogger

	mu         sync.Mutex
	board      *game.Board
	snapshot   *game.Snapshot
	clientID   string
	playerID   string
	boardDrawn bool
	predictor  *Predictor
	interp     *Interpolator
	recon      *Reconciler

	timersOnce sync.Once
	stop       chan struct{}
}

// NewClientLoop wires the client core together.
func NewClientLoop(cfg config.Config, net *NetClient, renderer Renderer, input Input, log *zap.SugaredLogger) *ClientLoop {
	predictor := NewPredictor(renderer, cfg.Movement.AllowDiagonal)
	return &ClientLoop{
		cfg:       cfg,
		net:       net,
		renderer:  renderer,
		input:     input,
		log:       log,
		predictor: predictor,
		interp:    NewInterpolator(cfg.Interpolation, renderer),
		recon:     NewReconciler(predictor, renderer),
		stop:      make(chan struct{}),
	}
}

// Start registers all handlers and connects. It returns once the
// connection is up; the loops run on their own goroutines until Stop.
func (l *ClientLoop) Start() error {
	l.net.OnMessage(protocol.TypeConnect, l.onConnect)
	l.net.OnMessage(protocol.TypeStateUpdate, l.onStateUpdate)
	l.net.OnMessage(protocol.TypePlayerLeft, l.onPlayerLeft)
	l.net.OnMessage(protocol.TypeError, l.onError)
	l.net.OnMessage(protocol.TypePing, l.onPing)
	l.net.OnDisconnect(l.onDisconnect)

	l.input.OnMove(l.onMove)
	l.input.OnQuit(l.Stop)

	return l.net.Connect()
}

// Stop ends the loops and closes the connection for good.
func (l *ClientLoop) Stop() {
	select {
	case <-l.stop:
		return
	default:
		close(l.stop)
	}
	l.net.Close()
}

// Done exposes the stop channel so entrypoints can block on it.
func (l *ClientLoop) Done() <-chan struct{} {
	return l.stop
}

// PlayerID returns the local player id, empty before the join completes.
func (l *ClientLoop) PlayerID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.playerID
}

// onConnect digests the server's CONNECT reply: the issued clientId, the
// assigned playerId once a spawn exists, or the wait message of a
// deferred join.
func (l *ClientLoop) onConnect(msg protocol.Message) {
	var payload protocol.ConnectPayload
	if err := msg.DecodePayload(&payload); err != nil {
		l.log.Warnw("bad CONNECT payload", "error", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if payload.ClientID != "" {
		l.clientID = payload.ClientID
	}
	if payload.WaitMessage != "" {
		l.log.Infow("join deferred", "message", payload.WaitMessage)
	}
	if payload.PlayerID != "" {
		l.playerID = payload.PlayerID
		l.net.SetIdentity(payload.PlayerID, "")
	}
	if payload.GameState != nil {
		l.applySnapshotLocked(payload.GameState, msg.Timestamp)
	}
}

func (l *ClientLoop) onStateUpdate(msg protocol.Message) {
	var snap game.Snapshot
	if err := msg.DecodePayload(&snap); err != nil {
		l.log.Warnw("bad STATE_UPDATE payload", "error", err)
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.applySnapshotLocked(&snap, msg.Timestamp)
}

// applySnapshotLocked replaces the current snapshot, feeds the remote
// buffers, drops departed players, and on the first snapshot naming the
// local player initializes prediction and starts the playback timers.
func (l *ClientLoop) applySnapshotLocked(snap *game.Snapshot, timestamp uint64) {
	if l.board == nil && snap.Board != nil {
		l.board = snap.Board
	}
	l.snapshot = snap

	present := make(map[string]bool, len(snap.Players))
	for _, ps := range snap.Players {
		present[ps.PlayerID] = true

		if ps.PlayerID == l.playerID && l.playerID != "" {
			// Bus handlers for different message types run on separate
			// queues, so a snapshot can arrive before the join reply names
			// us. Any track buffered for the local player back then is
			// stale and would otherwise survive the drop loop below.
			l.interp.Drop(ps.PlayerID, l.board, snap.Entities)
			if _, ok := l.predictor.Pos(); !ok {
				l.predictor.Initialize(game.Point{X: ps.X, Y: ps.Y})
				if l.board != nil {
					l.renderer.RenderStatus(snap.Score, game.Point{X: ps.X, Y: ps.Y}, l.board.Height)
				}
				l.startTimers()
			}
			continue
		}
		l.interp.Ingest(ps.PlayerID, SnapshotEntry{
			T:          timestamp,
			X:          ps.X,
			Y:          ps.Y,
			PlayerName: ps.PlayerName,
			Vx:         ps.Vx,
			Vy:         ps.Vy,
			// Snapshots always carry vx/vy; zero means at rest, not absent.
			HasVel: true,
		})
	}

	for _, id := range l.interp.Tracked() {
		if !present[id] {
			l.interp.Drop(id, l.board, snap.Entities)
		}
	}

	if !l.boardDrawn && l.board != nil {
		if br, ok := l.renderer.(BoardRenderer); ok {
			br.DrawBoard(l.board, snap.Players, snap.Entities)
		}
		l.boardDrawn = true
	}
}

func (l *ClientLoop) onPlayerLeft(msg protocol.Message) {
	var payload protocol.PlayerLeftPayload
	if err := msg.DecodePayload(&payload); err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var entities []game.Entity
	if l.snapshot != nil {
		entities = l.snapshot.Entities
	}
	l.interp.Drop(payload.PlayerID, l.board, entities)
}

func (l *ClientLoop) onError(msg protocol.Message) {
	var payload protocol.ErrorPayload
	if err := msg.DecodePayload(&payload); err != nil {
		return
	}
	l.log.Warnw("server error", "code", payload.Code, "message", payload.Message, "reason", payload.Context.Reason)
}

func (l *ClientLoop) onPing(protocol.Message) {
	if err := l.net.Send(protocol.MustNew(protocol.TypePong, nil)); err != nil {
		l.log.Debugw("pong failed", "error", err)
	}
}

// onDisconnect resets prediction; the authoritative position may be
// anything by the time the session resumes.
func (l *ClientLoop) onDisconnect() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.predictor.Reset()
}

// onMove is the input callback: predict-and-commit locally, then always
// send the MOVE intent. It never blocks beyond enqueueing the send.
func (l *ClientLoop) onMove(dx, dy int) {
	l.mu.Lock()
	if l.cfg.Prediction.Enabled {
		l.predictor.OnInput(dx, dy, l.board, l.snapshot, l.playerID)
	}
	l.mu.Unlock()

	msg, err := protocol.New(protocol.TypeMove, protocol.MovePayload{Dx: dx, Dy: dy})
	if err != nil {
		l.log.Errorw("encoding MOVE", "error", err)
		return
	}
	if err := l.net.Send(msg); err != nil {
		l.log.Warnw("sending MOVE", "error", err)
	}
}

// startTimers launches the interpolation and reconciliation loops once.
func (l *ClientLoop) startTimers() {
	l.timersOnce.Do(func() {
		go l.runInterpolation()
		if l.cfg.Prediction.Enabled {
			go l.runReconciliation()
		}
	})
}

func (l *ClientLoop) runInterpolation() {
	ticker := time.NewTicker(l.cfg.Interpolation.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			var entities []game.Entity
			if l.snapshot != nil {
				entities = l.snapshot.Entities
			}
			l.interp.Tick(protocol.Now(), l.board, entities)
			l.mu.Unlock()
		}
	}
}

func (l *ClientLoop) runReconciliation() {
	ticker := time.NewTicker(l.cfg.Prediction.ReconciliationInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			l.recon.Reconcile(l.board, l.snapshot, l.playerID)
			l.mu.Unlock()
		}
	}
}
