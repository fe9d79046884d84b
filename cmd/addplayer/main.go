// Package main provides a CLI tool for registering players and issuing their access tokens.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/cory-johannsen/arena/internal/config"
	"github.com/cory-johannsen/arena/internal/game/player"
	"github.com/cory-johannsen/arena/internal/identity"
	"github.com/cory-johannsen/arena/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	id := flag.String("id", "", "player id (default: a new UUID)")
	username := flag.String("username", "", "display name (required)")
	tokenOnly := flag.Bool("token-only", false, "skip registration and only issue a token for -id")
	flag.Parse()

	if *username == "" || (*tokenOnly && *id == "") {
		flag.Usage()
		os.Exit(1)
	}
	if *id == "" {
		*id = uuid.NewString()
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env: %v", err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	if !*tokenOnly {
		if cfg.Server.Mode != config.ModePostgres {
			log.Fatalf("server.mode is %q: players live in memory there; seed them with gameserver -seed and use -token-only", cfg.Server.Mode)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			log.Fatalf("connecting to database: %v", err)
		}
		defer pool.Close()

		p := player.New(*id, *username)
		p.Rating = cfg.Game.BaseRating
		if err := postgres.NewStore(pool).CreatePlayer(ctx, p); err != nil {
			if errors.Is(err, player.ErrUsernameTaken) {
				log.Fatalf("player %q already exists", *username)
			}
			log.Fatalf("creating player: %v", err)
		}
	}

	issuer := identity.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL, clockwork.NewRealClock())
	token, err := issuer.Issue(*id, *username)
	if err != nil {
		log.Fatalf("issuing token: %v", err)
	}

	fmt.Fprintf(os.Stderr, "player %s (%s) ready, token valid for %s [%s]\n",
		*username, *id, cfg.Auth.TokenTTL, time.Since(start))
	fmt.Fprintln(os.Stdout, token)
}
