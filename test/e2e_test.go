package test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/asciiarena/asciiarena/config"
	"github.com/asciiarena/asciiarena/game"
	"github.com/asciiarena/asciiarena/protocol"
)

const readTimeout = 3 * time.Second

func standardSpawns() []game.Point {
	return []game.Point{{X: 3, Y: 3}, {X: 10, Y: 10}, {X: 17, Y: 17}}
}

func TestConnectHandshakeAssignsSpawn(t *testing.T) {
	setup := SetupE2ETest(t, openBoard(20, 20, standardSpawns()), nil)

	ws := dial(t, setup)

	// The server greets every accepted socket with clientId and state.
	welcome := waitForConnect(t, ws, readTimeout, func(p protocol.ConnectPayload) bool { return true })
	require.NotEmpty(t, welcome.ClientID)
	require.NotNil(t, welcome.GameState)
	assert.Empty(t, welcome.PlayerID)

	sendMessage(t, ws, protocol.TypeConnect, protocol.ConnectRequest{PlayerName: "alice"})

	joined := waitForConnect(t, ws, readTimeout, func(p protocol.ConnectPayload) bool {
		return p.PlayerID != ""
	})
	require.NotNil(t, joined.GameState)

	self, ok := joined.GameState.FindPlayer(joined.PlayerID)
	require.True(t, ok)
	assert.Equal(t, 3, self.X)
	assert.Equal(t, 3, self.Y)
	assert.Equal(t, "alice", self.PlayerName)
}

func TestMoveShowsUpInBroadcasts(t *testing.T) {
	setup := SetupE2ETest(t, openBoard(20, 20, standardSpawns()), nil)

	wsA := dial(t, setup)
	sendMessage(t, wsA, protocol.TypeConnect, protocol.ConnectRequest{PlayerName: "alice"})
	alice := waitForConnect(t, wsA, readTimeout, func(p protocol.ConnectPayload) bool { return p.PlayerID != "" })

	wsB := dial(t, setup)
	sendMessage(t, wsB, protocol.TypeConnect, protocol.ConnectRequest{PlayerName: "bob"})
	waitForConnect(t, wsB, readTimeout, func(p protocol.ConnectPayload) bool { return p.PlayerID != "" })

	sendMessage(t, wsA, protocol.TypeMove, protocol.MovePayload{Dx: 1, Dy: 0})

	// Both clients converge on the moved position through STATE_UPDATE.
	for _, ws := range []*websocket.Conn{wsA, wsB} {
		deadline := time.Now().Add(readTimeout)
		for {
			msg := waitForType(t, ws, protocol.TypeStateUpdate, time.Until(deadline))
			var snap game.Snapshot
			require.NoError(t, msg.DecodePayload(&snap))
			if self, ok := snap.FindPlayer(alice.PlayerID); ok && self.X == 4 && self.Y == 3 {
				break
			}
			if time.Now().After(deadline) {
				t.Fatal("move never appeared in a STATE_UPDATE")
			}
		}
	}
}

func TestArenaFullThenDrain(t *testing.T) {
	setup := SetupE2ETest(t, openBoard(10, 10, []game.Point{{X: 5, Y: 5}}), func(cfg *config.Config) {
		cfg.SpawnPoints.WaitMessage = "arena full"
	})

	wsA := dial(t, setup)
	sendMessage(t, wsA, protocol.TypeConnect, protocol.ConnectRequest{PlayerName: "alice"})
	waitForConnect(t, wsA, readTimeout, func(p protocol.ConnectPayload) bool { return p.PlayerID != "" })

	wsB := dial(t, setup)
	sendMessage(t, wsB, protocol.TypeConnect, protocol.ConnectRequest{PlayerName: "bob"})

	deferred := waitForConnect(t, wsB, readTimeout, func(p protocol.ConnectPayload) bool {
		return p.WaitMessage != ""
	})
	assert.Equal(t, "arena full", deferred.WaitMessage)
	assert.Empty(t, deferred.PlayerID)

	// Alice leaves; Bob inherits the only spawn.
	require.NoError(t, wsA.Close())

	placed := waitForConnect(t, wsB, readTimeout, func(p protocol.ConnectPayload) bool {
		return p.PlayerID != ""
	})
	require.NotNil(t, placed.GameState)
	self, ok := placed.GameState.FindPlayer(placed.PlayerID)
	require.True(t, ok)
	assert.Equal(t, 5, self.X)
	assert.Equal(t, 5, self.Y)
}

func TestInvalidMoveGetsError(t *testing.T) {
	board := game.BoardFromLines([]string{
		"#####",
		"#   #",
		"#####",
	}, nil)
	board.SpawnPoints = []game.Point{{X: 1, Y: 1}}
	setup := SetupE2ETest(t, board, func(cfg *config.Config) {
		cfg.SpawnPoints.ClearRadius = 0
	})

	ws := dial(t, setup)
	sendMessage(t, ws, protocol.TypeConnect, protocol.ConnectRequest{PlayerName: "alice"})
	waitForConnect(t, ws, readTimeout, func(p protocol.ConnectPayload) bool { return p.PlayerID != "" })

	sendMessage(t, ws, protocol.TypeMove, protocol.MovePayload{Dx: 0, Dy: -1})

	msg := waitForType(t, ws, protocol.TypeError, readTimeout)
	var payload protocol.ErrorPayload
	require.NoError(t, msg.DecodePayload(&payload))
	assert.Equal(t, protocol.CodeInvalidMove, payload.Code)
	assert.Equal(t, string(game.ReasonWall), payload.Context.Reason)
}

func TestReconnectResumesSession(t *testing.T) {
	setup := SetupE2ETest(t, openBoard(20, 20, standardSpawns()), func(cfg *config.Config) {
		cfg.Grace = time.Minute
	})

	wsA := dial(t, setup)
	sendMessage(t, wsA, protocol.TypeConnect, protocol.ConnectRequest{PlayerName: "alice"})
	first := waitForConnect(t, wsA, readTimeout, func(p protocol.ConnectPayload) bool { return p.PlayerID != "" })

	sendMessage(t, wsA, protocol.TypeMove, protocol.MovePayload{Dx: 1, Dy: 0})
	// Let the move land before dropping the socket.
	deadline := time.Now().Add(readTimeout)
	for {
		msg := waitForType(t, wsA, protocol.TypeStateUpdate, time.Until(deadline))
		var snap game.Snapshot
		require.NoError(t, msg.DecodePayload(&snap))
		if self, ok := snap.FindPlayer(first.PlayerID); ok && self.X == 4 {
			break
		}
	}
	require.NoError(t, wsA.Close())

	wsB := dial(t, setup)
	sendMessage(t, wsB, protocol.TypeConnect, protocol.ConnectRequest{PlayerID: first.PlayerID})

	resumed := waitForConnect(t, wsB, readTimeout, func(p protocol.ConnectPayload) bool {
		return p.PlayerID != ""
	})
	assert.Equal(t, first.PlayerID, resumed.PlayerID)
	require.NotNil(t, resumed.GameState)

	self, ok := resumed.GameState.FindPlayer(first.PlayerID)
	require.True(t, ok)
	assert.Equal(t, 4, self.X)
	assert.Equal(t, 3, self.Y)
}

func TestMalformedFrameKeepsConnection(t *testing.T) {
	setup := SetupE2ETest(t, openBoard(20, 20, standardSpawns()), nil)

	ws := dial(t, setup)
	waitForConnect(t, ws, readTimeout, func(p protocol.ConnectPayload) bool { return true })

	// Raw garbage earns an ERROR but the socket survives.
	_, err := ws.Write([]byte("{not json"))
	require.NoError(t, err)

	msg := waitForType(t, ws, protocol.TypeError, readTimeout)
	var payload protocol.ErrorPayload
	require.NoError(t, msg.DecodePayload(&payload))
	assert.Equal(t, protocol.CodeUnknownType, payload.Code)

	// The connection still joins fine afterwards.
	sendMessage(t, ws, protocol.TypeConnect, protocol.ConnectRequest{PlayerName: "alice"})
	waitForConnect(t, ws, readTimeout, func(p protocol.ConnectPayload) bool { return p.PlayerID != "" })
}

func TestPingPong(t *testing.T) {
	setup := SetupE2ETest(t, openBoard(20, 20, standardSpawns()), nil)

	ws := dial(t, setup)
	waitForConnect(t, ws, readTimeout, func(p protocol.ConnectPayload) bool { return true })

	sendMessage(t, ws, protocol.TypePing, nil)
	waitForType(t, ws, protocol.TypePong, readTimeout)
}
