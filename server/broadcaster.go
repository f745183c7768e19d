package server

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/asciiarena/asciiarena/game"
	"github.com/asciiarena/asciiarena/protocol"
)

// Broadcaster periodically serializes the game state and fans the
// STATE_UPDATE out to every connection. The snapshot is copied under the
// state lock; sends happen outside it through each connection's queue.
type Broadcaster struct {
	state    *game.GameState
	conns    *ConnectionManager
	interval time.Duration
	log      *zap.SugaredLogger
}

// NewBroadcaster wires the broadcast tick.
func NewBroadcaster(state *game.GameState, conns *ConnectionManager, interval time.Duration, log *zap.SugaredLogger) *Broadcaster {
	return &Broadcaster{state: state, conns: conns, interval: interval, log: log}
}

// Run ticks until the context is cancelled.
func (b *Broadcaster) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			b.BroadcastState()
		}
	}
}

// BroadcastState serializes once and sends the same stamped envelope to
// all connections.
func (b *Broadcaster) BroadcastState() {
	if b.conns.Count() == 0 {
		return
	}
	snap := b.state.Serialize(time.Now())
	msg, err := protocol.New(protocol.TypeStateUpdate, snap)
	if err != nil {
		b.log.Errorw("marshalling state update", "error", err)
		return
	}
	b.conns.Broadcast(msg)
}
