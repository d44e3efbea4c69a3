package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ducktracker/server/internal/auth"
	"github.com/ducktracker/server/internal/broadcast"
	"github.com/ducktracker/server/internal/config"
	"github.com/ducktracker/server/internal/httpapi"
	"github.com/ducktracker/server/internal/metrics"
	"github.com/ducktracker/server/internal/session"
	"github.com/ducktracker/server/internal/storage"
)

// version is reported in /api/login responses and the ducktracker_info
// metrics gauge.
const version = "0.1.0"

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		log.Printf("startup: %v", err)
		os.Exit(10)
	}

	creds, err := auth.LoadPasswordFile(cfg.PasswordFile)
	if err != nil {
		log.Printf("startup: failed to load password file %s: %v", cfg.PasswordFile, err)
		os.Exit(10)
	}

	store, err := storage.Open(cfg.DatabaseFile)
	if err != nil {
		log.Printf("startup: failed to open database %s: %v", cfg.DatabaseFile, err)
		os.Exit(10)
	}
	defer store.Close()

	broadcaster := broadcast.NewBroadcaster(64)
	authn := auth.NewAuthenticator(creds)

	engine := session.NewEngine(session.Config{
		DefaultPublicTag: cfg.DefaultPublicTag,
		DefaultTag:       cfg.DefaultTag,
		GlobalMaxPoints:  cfg.MaxPoints,
		DefaultPoints:    cfg.DefaultPoints,
		UpdateInterval:   cfg.UpdateInterval,
		TokenSetCapacity: 10000,
		CoordWrap:        cfg.CoordWrap,
	}, store, broadcaster, authn)

	if err := engine.Restore(time.Now()); err != nil {
		log.Printf("startup: failed to restore sessions from %s: %v", cfg.DatabaseFile, err)
		os.Exit(10)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine.Run(ctx)
	broadcast.StartHeartbeat(ctx, broadcaster, cfg.UpdateInterval)

	m := metrics.New(engine, makeUptimeFunc(time.Now()), version)
	server := httpapi.NewServer(engine, m, cfg.Scheme, cfg.ServerName, cfg.DefaultExpireDuration, cfg.UpdateInterval, version, cfg.PrometheusUser, cfg.PrometheusPassword)

	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("ducktracker-server: shutting down")
		cancel()
		os.Exit(0)
	}()

	if err := httpapi.ListenAndServe(cfg.Address, cfg.Port, mux); err != nil {
		log.Printf("ducktracker-server: server error: %v", err)
		os.Exit(10)
	}
}

func makeUptimeFunc(start time.Time) func() float64 {
	return func() float64 {
		return time.Since(start).Seconds()
	}
}
