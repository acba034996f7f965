package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/programme-lv/proctor/app"
	"github.com/programme-lv/proctor/appeal/appealhttp"
	"github.com/programme-lv/proctor/attempt/attempthttp"
	"github.com/programme-lv/proctor/conf"
	phttp "github.com/programme-lv/proctor/http"
	"github.com/programme-lv/proctor/leaderboard/lbhttp"
	"github.com/programme-lv/proctor/tracing"
)

var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Error("failed to load .env file", "error", err)
		os.Exit(1)
	}

	cfg, err := conf.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var middlewares []func(http.Handler) http.Handler
	if cfg.OtelEndpoint != "" {
		tp, err := tracing.NewTracerProvider("proctor", cfg.Env, cfg.OtelEndpoint, 10*time.Second)
		if err != nil {
			slog.Warn("tracing disabled", "error", err)
		} else {
			defer tp.Shutdown(context.Background())
			middlewares = append(middlewares, tracing.NewMiddleware("proctor").Handler)
		}
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to build services", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	go func() {
		err := a.Judge.ReceiveResults(ctx, slog.Default().With("component", "judge"))
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("judge result receiver stopped", "error", err)
		}
	}()

	server := phttp.NewHttpServer(phttp.ServerOptions{
		Env:         cfg.Env,
		Version:     version,
		CorsOrigins: cfg.CorsOrigins,
		Middlewares: middlewares,
	}, cfg.JwtKey,
		attempthttp.NewAttemptHttpHandler(a.Attempts),
		lbhttp.NewLeaderboardHttpHandler(a.Leaderboard, a.Bus),
		appealhttp.NewAppealHttpHandler(a.Appeals),
	)

	slog.Info("starting server", "address", cfg.ListenAddr, "version", version)
	if err := server.Start(ctx, cfg.ListenAddr); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
