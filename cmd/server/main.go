package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/Pairwise/internal/adapters/http"
	wssignal "github.com/dkeye/Pairwise/internal/adapters/signal"
	"github.com/dkeye/Pairwise/internal/app"
	"github.com/dkeye/Pairwise/internal/app/orch"
	"github.com/dkeye/Pairwise/internal/config"
	"github.com/dkeye/Pairwise/internal/events"
	"github.com/dkeye/Pairwise/internal/storage"
	"github.com/dkeye/Pairwise/internal/storage/redisstore"
	"github.com/dkeye/Pairwise/internal/storage/sqlitestore"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("failed to open storage")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("close storage")
		}
	}()

	var pub events.Publisher = events.Noop{}
	if cfg.Events.NATSURL != "" {
		np, err := events.ConnectNATS(cfg.Events.NATSURL, cfg.Events.SubjectPrefix)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect nats")
		}
		defer np.Close()
		pub = np
	}

	clock := clockwork.NewRealClock()
	rooms := app.NewRoomManager(store, clock, app.Settings{
		TTL:             cfg.Room.TTL,
		CleanupWindow:   cfg.Room.CleanupWindow,
		MaxParticipants: cfg.Room.MaxParticipants,
		AssignRoles:     cfg.Room.AssignRoles,
		RelaySignaling:  cfg.Room.RelaySignaling,
	}, pub)
	if _, err := rooms.Bootstrap(ctx); err != nil {
		log.Error().Err(err).Msg("bootstrap rooms")
	}

	o := orch.New(rooms)
	limiter := wssignal.NewConnectLimiter(clock, cfg.ConnectLimit, cfg.ConnectWindow)
	go sweepLimiter(ctx, clock, limiter, cfg.ConnectWindow)
	ctrl := wssignal.NewSignalWSController(o, limiter, wssignal.Options{
		ReadLimit:      cfg.ReadLimit,
		PingPeriod:     cfg.PingPeriod,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	r := router.SetupRouter(ctx, cfg, o, ctrl)
	handler := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowCredentials: true,
	}).Handler(r)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Str("storage", cfg.Storage.Driver).Msg("Pairwise server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	o.Shutdown()
	log.Info().Msg("Server exited gracefully")
}

func setupLogger(cfg *config.Config) {
	if cfg.LogFormat == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func openStore(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return sqlitestore.Open(sqlitestore.Config{Path: cfg.SQLitePath})
	case "redis":
		return redisstore.Dial(ctx, redisstore.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
	default:
		return storage.NewMemoryStore(), nil
	}
}

func sweepLimiter(ctx context.Context, clock clockwork.Clock, limiter *wssignal.ConnectLimiter, every time.Duration) {
	ticker := clock.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			limiter.Sweep()
		}
	}
}
