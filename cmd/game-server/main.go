package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	approom "github.com/riffluv/ito-sub004/internal/app/room"
	"github.com/riffluv/ito-sub004/internal/auth"
	"github.com/riffluv/ito-sub004/internal/config"
	"github.com/riffluv/ito-sub004/internal/logging"
	"github.com/riffluv/ito-sub004/internal/patch"
	"github.com/riffluv/ito-sub004/internal/presence"
	"github.com/riffluv/ito-sub004/internal/store"
	httptransport "github.com/riffluv/ito-sub004/internal/transport/http"
)

func main() {
	cfg, err := config.LoadApp()
	if err != nil {
		panic(err)
	}
	logging.Init(cfg.Log)

	st, err := openStore(cfg.Server)
	if err != nil {
		log.Fatal().Err(err).Msg("store init failed")
	}

	bus := patch.NewBus(cfg.Server.PatchBufferSize)
	tokens := auth.NewVerifier(cfg.Server.TokenSecret, cfg.Server.AdminAPIKey)
	svc := approom.NewService(st, bus, tokens, approom.Options{
		DealMin:    cfg.Server.DealMin,
		DealMax:    cfg.Server.DealMax,
		RetryDelay: time.Duration(cfg.Server.CommandRetryMS) * time.Millisecond,
	})
	pres := presence.NewManager(time.Duration(cfg.Server.PresenceIdleMins) * time.Minute)

	r := httptransport.NewRouter(svc, bus, pres, tokens, cfg.Server)
	httptransport.LogRoutes(r)

	server := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.HTTPAddr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
}

func openStore(cfg config.ServerConfig) (store.DocumentStore, error) {
	if cfg.PostgresDSN == "" {
		log.Info().Msg("using in-memory document store")
		return store.NewMemory(), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	pg, err := store.NewPG(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if err := pg.Ping(ctx); err != nil {
		return nil, err
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return pg, nil
}
