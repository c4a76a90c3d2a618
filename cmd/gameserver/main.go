// Package main provides the game server binary: the HTTP API backed by
// PostgreSQL persistence.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/nscott/gridlock/internal/config"
	"github.com/nscott/gridlock/internal/game/alarm"
	"github.com/nscott/gridlock/internal/game/item"
	"github.com/nscott/gridlock/internal/game/progression"
	"github.com/nscott/gridlock/internal/game/puzzle"
	"github.com/nscott/gridlock/internal/game/reward"
	"github.com/nscott/gridlock/internal/game/state"
	"github.com/nscott/gridlock/internal/observability"
	"github.com/nscott/gridlock/internal/server"
	"github.com/nscott/gridlock/internal/storage/postgres"
	"github.com/nscott/gridlock/internal/web"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	puzzlesDir := flag.String("puzzles-dir", "content/puzzles", "path to puzzle YAML definitions directory")
	itemsDir := flag.String("items-dir", "content/items", "path to item YAML definitions directory")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting game server",
		zap.String("http_addr", cfg.Server.Addr()),
	)

	// Load content definitions.
	contentStart := time.Now()
	puzzleDefs, err := puzzle.LoadDefs(*puzzlesDir)
	if err != nil {
		logger.Fatal("loading puzzle definitions", zap.Error(err))
	}
	puzzleRegistry := puzzle.NewRegistry()
	for _, def := range puzzleDefs {
		if err := puzzleRegistry.Register(def); err != nil {
			logger.Fatal("registering puzzle", zap.String("id", def.ID), zap.Error(err))
		}
	}

	itemDefs, err := item.LoadDefs(*itemsDir)
	if err != nil {
		logger.Fatal("loading item definitions", zap.Error(err))
	}
	itemRegistry := item.NewRegistry()
	for _, def := range itemDefs {
		if err := itemRegistry.Register(def); err != nil {
			logger.Fatal("registering item", zap.String("id", def.ID), zap.Error(err))
		}
	}
	logger.Info("content loaded",
		zap.Int("puzzles", len(puzzleDefs)),
		zap.Int("items", len(itemDefs)),
		zap.Duration("elapsed", time.Since(contentStart)),
	)

	// Connect to PostgreSQL.
	dbStart := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Duration("elapsed", time.Since(dbStart)),
	)

	accountRepo := postgres.NewAccountRepository(pool.DB(), cfg.Auth.BcryptCost)
	attemptRepo := postgres.NewAttemptRepository(pool.DB())
	alarmRepo := postgres.NewAlarmRepository(pool.DB())
	stateRepo := postgres.NewGameStateRepository(pool.DB())

	// Assemble the progression pipeline.
	solver := puzzle.NewSolver(puzzleRegistry, attemptRepo, logger, cfg.Server.DebugSolver)
	alarmEngine := alarm.NewEngine(alarmRepo, logger)
	distributor := reward.NewDistributor(itemRegistry, stateRepo, logger)
	stateService := state.NewService(stateRepo, logger)
	locks := progression.NewLockArena(cfg.Game.LockTimeout)

	game := progression.NewService(
		locks, solver, alarmEngine, distributor, stateService,
		puzzleRegistry, logger, cfg.Game.StoreTimeout,
	)

	// Assemble the HTTP surface.
	tokens := web.NewTokenManager(cfg.Auth)
	authHandler := web.NewAuthHandler(accountRepo, tokens, logger)
	gameHandler := web.NewGameHandler(game, logger)
	router := web.NewRouter(authHandler, gameHandler, tokens, pool.DB(), logger)

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("http", server.NewHTTPService(cfg.Server, router, logger))

	lifecycle.Add("postgres", &server.FuncService{
		StartFn: func() error {
			for {
				time.Sleep(30 * time.Second)
				if err := pool.Health(ctx, 5*time.Second); err != nil {
					logger.Warn("database health check failed", zap.Error(err))
				}
			}
		},
		StopFn: func() {
			pool.Close()
		},
	})

	logger.Info("game server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("http_addr", cfg.Server.Addr()),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
