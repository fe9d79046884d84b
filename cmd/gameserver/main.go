// Package main provides the arena server binary: presence, invites, matches
// and ratings behind a websocket gateway.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/cory-johannsen/arena/internal/config"
	"github.com/cory-johannsen/arena/internal/game/invite"
	"github.com/cory-johannsen/arena/internal/game/match"
	"github.com/cory-johannsen/arena/internal/game/player"
	"github.com/cory-johannsen/arena/internal/game/presence"
	"github.com/cory-johannsen/arena/internal/game/rating"
	"github.com/cory-johannsen/arena/internal/game/standings"
	"github.com/cory-johannsen/arena/internal/gameserver"
	"github.com/cory-johannsen/arena/internal/identity"
	"github.com/cory-johannsen/arena/internal/observability"
	"github.com/cory-johannsen/arena/internal/server"
	"github.com/cory-johannsen/arena/internal/storage/memory"
	"github.com/cory-johannsen/arena/internal/storage/postgres"
)

// backend is the Persistence Service as the server consumes it.
type backend interface {
	match.Store
	standings.Ledger
	invite.Store
	gameserver.Directory
	gameserver.Pinger
	ResetPresence(ctx context.Context) error
}

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	envFile := flag.String("env", ".env", "optional dotenv file loaded before the config")
	seed := flag.String("seed", "", "standalone mode: comma-separated id:username players to register at startup")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading %s: %v", *envFile, err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, "gameserver")
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting game server",
		zap.String("mode", cfg.Server.Mode),
		zap.String("addr", cfg.Gateway.Addr()),
	)

	ctx := context.Background()
	clock := clockwork.NewRealClock()
	lifecycle := server.NewLifecycle(logger)

	var store backend
	var jobs []server.Job
	switch cfg.Server.Mode {
	case config.ModePostgres:
		dbStart := time.Now()
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
		store = postgres.NewStore(pool)
		jobs = append(jobs, server.Job{
			Name:     "db-health",
			Interval: cfg.Scheduler.HealthInterval,
			Run: func(ctx context.Context) error {
				return pool.Health(ctx, 5*time.Second)
			},
		})
		lifecycle.Add("postgres", &server.FuncService{
			StopFn: func(context.Context) { pool.Close() },
		})
	default:
		mem := memory.New()
		players, err := parseSeed(*seed, cfg.Game.BaseRating)
		if err != nil {
			logger.Fatal("parsing -seed", zap.Error(err))
		}
		for _, p := range players {
			if err := mem.CreatePlayer(ctx, p); err != nil {
				logger.Fatal("seeding player", zap.String("player_id", p.ID), zap.Error(err))
			}
		}
		store = mem
		logger.Warn("standalone mode: state is held in memory and lost on exit",
			zap.Int("seeded_players", len(players)),
		)
	}

	if err := store.ResetPresence(ctx); err != nil {
		logger.Fatal("resetting presence", zap.Error(err))
	}

	registry := presence.NewRegistry(observability.Component(logger, "presence"))
	notifier := gameserver.NewNotifier(registry, store, cfg.Game.SettleTimeout, observability.Component(logger, "notifier"))
	registry.Subscribe(notifier.PresenceChanged)

	settler := standings.NewSettler(store, rating.NewEngine(cfg.Game.KFactor), clock, observability.Component(logger, "standings"))
	table := match.NewTable(match.Config{
		MoveTimeLimit:   cfg.Game.MoveTimeLimit,
		EnforceDeadline: cfg.Game.EnforceDeadline,
		SettleTimeout:   cfg.Game.SettleTimeout,
	}, store, settler, notifier, clock, observability.Component(logger, "match"))
	defer table.Close()

	restored, err := table.Restore(ctx)
	if err != nil {
		logger.Fatal("restoring sessions", zap.Error(err))
	}

	invites := invite.NewService(store, registry, table, notifier, clock, observability.Component(logger, "invite"))
	hub := gameserver.NewHub(gameserver.HubDeps{
		Connector:   registry,
		Directory:   store,
		Online:      notifier,
		Sessions:    table,
		Invites:     invites,
		Coordinator: gameserver.NewCoordinator(registry, table, notifier, observability.Component(logger, "coordinator")),
	}, cfg.Game.SettleTimeout, observability.Component(logger, "hub"))

	verifier := identity.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, clock)
	gateway := gameserver.NewGateway(cfg.Gateway, verifier, hub, observability.Component(logger, "gateway"))

	jobs = append(jobs, server.Job{
		Name:     "stats",
		Interval: cfg.Scheduler.StatsInterval,
		Run: func(context.Context) error {
			logger.Info("server stats",
				zap.Int("online", registry.Count()),
				zap.Int("connections", gateway.Connections()),
				zap.Int("live_sessions", table.LiveCount()),
			)
			return nil
		},
	})
	scheduler, err := server.NewSchedulerService(observability.Component(logger, "scheduler"), jobs...)
	if err != nil {
		logger.Fatal("creating scheduler", zap.Error(err))
	}
	lifecycle.Add("scheduler", scheduler)

	httpServer := &http.Server{
		Addr:              cfg.Gateway.Addr(),
		Handler:           gameserver.NewRouter(gateway, store),
		ReadHeaderTimeout: 10 * time.Second,
	}
	lifecycle.Add("http", &server.HTTPService{Server: httpServer})

	// Stopped before http so every connection runs its disconnect path first.
	lifecycle.Add("gateway", &server.FuncService{
		StopFn: func(ctx context.Context) {
			if err := gateway.Close(ctx); err != nil {
				logger.Warn("closing gateway", zap.Error(err))
			}
		},
	})

	logger.Info("game server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.Int("restored_sessions", restored),
		zap.String("addr", cfg.Gateway.Addr()),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

// parseSeed reads "id:username,id:username" into players at baseRating.
func parseSeed(spec string, baseRating int) ([]player.Player, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, nil
	}
	var out []player.Player
	for _, entry := range strings.Split(spec, ",") {
		id, username, ok := strings.Cut(strings.TrimSpace(entry), ":")
		if !ok || id == "" || username == "" {
			return nil, fmt.Errorf("seed entry %q: want id:username", entry)
		}
		p := player.New(id, username)
		p.Rating = baseRating
		out = append(out, p)
	}
	return out, nil
}
