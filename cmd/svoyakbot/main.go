// Command svoyakbot runs both Telegram bots, the matchmaking queue and
// the game supervisor against a single bbolt database.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	_ "go.uber.org/automaxprocs"

	"github.com/EgorKulikov/svoyak-bot/internal/config"
	"github.com/EgorKulikov/svoyak-bot/internal/events"
	"github.com/EgorKulikov/svoyak-bot/internal/health"
	"github.com/EgorKulikov/svoyak-bot/internal/logging"
	"github.com/EgorKulikov/svoyak-bot/internal/match"
	"github.com/EgorKulikov/svoyak-bot/internal/metrics"
	"github.com/EgorKulikov/svoyak-bot/internal/store"
	"github.com/EgorKulikov/svoyak-bot/internal/supervisor"
	"github.com/EgorKulikov/svoyak-bot/internal/telegram"
)

const decayInterval = 7 * 24 * time.Hour

func main() {
	debug := flag.Bool("debug", false, "force debug log level and pretty output")
	flag.Parse()

	cfg, err := config.Load(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "svoyakbot: %v\n", err)
		os.Exit(1)
	}
	if *debug {
		cfg.LogLevel = "debug"
		cfg.LogFormat = "pretty"
	}
	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	cfg.LogConfig(logger)

	st, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	defer st.Close()

	var pub *events.Publisher
	if cfg.NATSURL != "" {
		pub, err = events.Connect(cfg.NATSURL, logger)
		if err != nil {
			logger.Fatal().Err(err).Str("url", cfg.NATSURL).Msg("connect nats")
		}
		defer pub.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	schedClient := telegram.NewClient(cfg.SchedulerToken, logger)
	playClient := telegram.NewClient(cfg.PlayToken, logger)
	schedBot := telegram.NewBot(schedClient, logger)
	playBot := telegram.NewBot(playClient, logger)

	matcher := match.NewMatcher(st, schedBot, logger)
	sup := supervisor.New(supervisor.Config{
		ManagerID:  cfg.ManagerID,
		DummyID:    cfg.DummyID,
		MainChatID: cfg.MainChatID,
	}, st, schedBot, playBot, matcher, pub, logger)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/healthz", health.Handler(logger))
	httpSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	go runDecay(ctx, st, logger)
	go matcher.Run(ctx)

	// First SIGINT/SIGTERM drains like the manager's shutdown command;
	// a second one aborts immediately.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("shutdown signal received, draining games")
		sup.Shutdown()
		<-sigCh
		logger.Warn().Msg("second signal, aborting")
		cancel()
	}()

	sup.Run(ctx, schedClient.Updates(ctx), playClient.Updates(ctx))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("metrics server shutdown")
	}
	logger.Info().Msg("stopped")
}

// runDecay applies the weekly rating decay at the persisted instant,
// advancing the schedule by a week after each walk.
func runDecay(ctx context.Context, st *store.Store, logger zerolog.Logger) {
	for {
		next := st.NextDecay()
		select {
		case <-time.After(time.Until(next)):
			st.Decay()
			st.SetNextDecay(time.Now().Add(decayInterval))
			logger.Info().Time("next", time.Now().Add(decayInterval)).Msg("rating decay applied")
		case <-ctx.Done():
			return
		}
	}
}
