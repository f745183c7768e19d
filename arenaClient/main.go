package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/asciiarena/asciiarena/client"
	"github.com/asciiarena/asciiarena/config"
	"github.com/asciiarena/asciiarena/game"
)

var ansiColors = map[string]string{
	"green":   "\x1b[32m",
	"cyan":    "\x1b[36m",
	"yellow":  "\x1b[33m",
	"magenta": "\x1b[35m",
	"red":     "\x1b[31m",
}

const ansiReset = "\x1b[0m"

// termRenderer draws cells with ANSI cursor addressing. The board's cell
// (0,0) maps to the terminal's top-left.
type termRenderer struct {
	mu sync.Mutex
}

func (r *termRenderer) at(x, y int, s string) {
	fmt.Printf("\x1b[%d;%dH%s", y+1, x+1, s)
}

func (r *termRenderer) DrawCell(x, y int, glyph byte, color string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code := ansiColors[color]
	r.at(x, y, code+string(glyph)+ansiReset)
}

func (r *termRenderer) RestoreCell(x, y int, board *game.Board, others []game.PlayerSnapshot, entities []game.Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range others {
		if p.X == x && p.Y == y {
			r.at(x, y, ansiColors[client.RemotePlayerColor]+string(client.RemotePlayerGlyph)+ansiReset)
			return
		}
	}

	// Highest zOrder entity wins the cell.
	sorted := make([]game.Entity, len(entities))
	copy(sorted, entities)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ZOrder > sorted[j].ZOrder })
	for _, e := range sorted {
		if e.X == x && e.Y == y && e.Glyph != "" {
			r.at(x, y, ansiColors[e.Color]+e.Glyph+ansiReset)
			return
		}
	}

	c, ok := board.GetCell(x, y)
	if !ok {
		return
	}
	r.at(x, y, string(c))
}

func (r *termRenderer) RenderStatus(score int, pos game.Point, boardHeight int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Printf("\x1b[%d;1H\x1b[2K score: %d   position: (%d, %d) ", boardHeight+2, score, pos.X, pos.Y)
}

func (r *termRenderer) DrawBoard(board *game.Board, players []game.PlayerSnapshot, entities []game.Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Print("\x1b[2J")
	for y, row := range board.Grid {
		r.at(0, y, row)
	}
	for _, e := range entities {
		if e.Glyph != "" {
			r.at(e.X, e.Y, ansiColors[e.Color]+e.Glyph+ansiReset)
		}
	}
	for _, p := range players {
		r.at(p.X, p.Y, ansiColors[client.RemotePlayerColor]+string(client.RemotePlayerGlyph)+ansiReset)
	}
}

// rawInput reads single keystrokes from a raw-mode terminal and turns
// WASD and arrow keys into movement callbacks.
type rawInput struct {
	onMove func(dx, dy int)
	onQuit func()
}

func (in *rawInput) OnMove(fn func(dx, dy int)) { in.onMove = fn }
func (in *rawInput) OnQuit(fn func())           { in.onQuit = fn }

func (in *rawInput) run() {
	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil || n == 0 {
			return
		}

		dx, dy := 0, 0
		switch {
		case n >= 3 && buf[0] == 0x1b && buf[1] == '[':
			switch buf[2] {
			case 'A':
				dy = -1
			case 'B':
				dy = 1
			case 'C':
				dx = 1
			case 'D':
				dx = -1
			}
		default:
			switch buf[0] {
			case 'w', 'W':
				dy = -1
			case 's', 'S':
				dy = 1
			case 'a', 'A':
				dx = -1
			case 'd', 'D':
				dx = 1
			case 'q', 'Q', 3: // 3 is Ctrl-C in raw mode
				if in.onQuit != nil {
					in.onQuit()
				}
				return
			}
		}

		if (dx != 0 || dy != 0) && in.onMove != nil {
			in.onMove(dx, dy)
		}
	}
}

func setRawMode(fd uintptr) (*unix.Termios, error) {
	settings, err := unix.IoctlGetTermios(int(fd), unix.TCGETS)
	if err != nil {
		return nil, err
	}
	saved := *settings
	settings.Iflag &^= unix.BRKINT | unix.ICRNL | unix.INPCK | unix.ISTRIP | unix.IXON
	settings.Lflag &^= unix.ECHO | unix.ICANON | unix.IEXTEN | unix.ISIG
	settings.Cflag &^= unix.CSIZE | unix.PARENB
	settings.Cflag |= unix.CS8

	if err := unix.IoctlSetTermios(int(fd), unix.TCSETS, settings); err != nil {
		return nil, err
	}
	return &saved, nil
}

func main() {
	serverURL := flag.String("server", "ws://localhost:3001/subscribe", "server websocket URL")
	name := flag.String("name", "player", "player name")
	configPath := flag.String("config", "asciiarena.yaml", "path to the YAML config")
	flag.Parse()

	logFile, err := os.Create("arenaClient.log")
	if err != nil {
		fmt.Println("Error opening log file:", err)
		return
	}
	defer logFile.Close()
	logCfg := zap.NewDevelopmentConfig()
	logCfg.OutputPaths = []string{logFile.Name()}
	logger, err := logCfg.Build()
	if err != nil {
		fmt.Println("Error building logger:", err)
		return
	}
	log := logger.Sugar()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Println("Error loading config:", err)
		return
	}

	saved, err := setRawMode(os.Stdin.Fd())
	if err != nil {
		fmt.Println("Error setting raw mode:", err)
		return
	}
	restore := func() {
		_ = unix.IoctlSetTermios(int(os.Stdin.Fd()), unix.TCSETS, saved)
		fmt.Print("\x1b[0m\x1b[2J\x1b[H")
	}
	defer restore()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	net := client.NewNetClient(*serverURL, cfg.Reconnection, log)
	net.SetIdentity("", *name)

	renderer := &termRenderer{}
	input := &rawInput{}
	loop := client.NewClientLoop(cfg, net, renderer, input, log)

	if err := loop.Start(); err != nil {
		restore()
		fmt.Println("Error connecting to server:", err)
		return
	}
	go input.run()

	select {
	case <-interrupt:
		loop.Stop()
	case <-loop.Done():
	}
}
