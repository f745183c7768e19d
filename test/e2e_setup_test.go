package test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/net/websocket"

	"github.com/asciiarena/asciiarena/config"
	"github.com/asciiarena/asciiarena/game"
	"github.com/asciiarena/asciiarena/server"
)

// E2ESetupResult bundles everything a websocket test needs.
type E2ESetupResult struct {
	Server *server.Server
	HTTP   *httptest.Server
	WsURL  string
	Origin string
	Cfg    config.Config
}

// openBoard builds an all-passable board; bounds checks stand in for
// walls, which keeps spawn geometry simple.
func openBoard(width, height int, spawns []game.Point) *game.Board {
	rows := make([]string, height)
	for i := range rows {
		rows[i] = strings.Repeat(" ", width)
	}
	return game.NewBoard(width, height, rows, spawns)
}

// SetupE2ETest starts an in-process server over httptest. The broadcast
// interval is shortened so state assertions do not crawl.
func SetupE2ETest(t *testing.T, board *game.Board, mutate func(*config.Config)) E2ESetupResult {
	t.Helper()

	cfg := config.Default()
	cfg.WebSocket.UpdateInterval = 30 * time.Millisecond
	cfg.Grace = 0
	if mutate != nil {
		mutate(&cfg)
	}

	srv := server.New(cfg, board, zap.NewNop().Sugar())
	httpServer := httptest.NewServer(srv.Handler())
	t.Cleanup(httpServer.Close)

	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/subscribe"
	return E2ESetupResult{
		Server: srv,
		HTTP:   httpServer,
		WsURL:  wsURL,
		Origin: "http://localhost/",
		Cfg:    cfg,
	}
}

// dial opens a client connection and registers its cleanup.
func dial(t *testing.T, setup E2ESetupResult) *websocket.Conn {
	t.Helper()
	ws, err := websocket.Dial(setup.WsURL, "", setup.Origin)
	require.NoError(t, err, "dialing %s", setup.WsURL)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}
