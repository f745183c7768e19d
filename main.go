package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/asciiarena/asciiarena/config"
	"github.com/asciiarena/asciiarena/game"
	"github.com/asciiarena/asciiarena/server"
)

// defaultArena is the built-in map used when no board source is wired.
// '#' blocks; everything else is passable.
var defaultArena = []string{
	"########################################",
	"#                                      #",
	"#                                      #",
	"#        ####          ####            #",
	"#                                      #",
	"#                                      #",
	"#             ##    ##                 #",
	"#             ##    ##                 #",
	"#                                      #",
	"#                                      #",
	"#   ####                    ####       #",
	"#                                      #",
	"#                                      #",
	"#                                      #",
	"#            ########                  #",
	"#                                      #",
	"#                                      #",
	"#                                      #",
	"#                                      #",
	"########################################",
}

var defaultSpawns = []game.Point{
	{X: 3, Y: 2}, {X: 36, Y: 2}, {X: 3, Y: 17}, {X: 36, Y: 17},
	{X: 20, Y: 2}, {X: 20, Y: 17}, {X: 3, Y: 9}, {X: 36, Y: 9},
}

func main() {
	configPath := flag.String("config", "asciiarena.yaml", "path to the YAML config")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Sugar()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalw("loading config", "error", err)
	}

	board := game.BoardFromLines(defaultArena, defaultSpawns)
	srv := server.New(cfg, board, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalw("server failed", "error", err)
	}
	log.Infow("server stopped")
}
