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

	"github.com/freeeve/gamestats/internal/config"
	"github.com/freeeve/gamestats/internal/httpapi"
	"github.com/freeeve/gamestats/internal/logx"
	"github.com/freeeve/gamestats/internal/store/backends"
)

func main() {
	cfg, err := config.LoadAPI()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := logx.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := backends.Open(ctx, cfg.DSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("open store")
	}
	defer st.Close()

	if sum, err := st.Summary(ctx); err != nil {
		logger.Warn().Err(err).Msg("read store summary")
	} else {
		logger.Info().
			Int64("positions", sum.Positions).
			Int64("transitions", sum.Transitions).
			Msg("store loaded")
	}

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      httpapi.NewRouter(logger, st),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("api server")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("http server shutdown error")
	}
	logger.Info().Msg("shutdown complete")
}
