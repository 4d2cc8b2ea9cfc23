package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"stack/internal/aiservice"
	"stack/internal/aiservice/provider"
	"stack/internal/aiservice/trace"
	"stack/internal/platform/server"
)

func main() {
	addr := envOr("AI_ADDR", ":8082")
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// A misconfigured model is a startup failure, not a per-request one
	model, err := provider.New(provider.Config{
		Provider: os.Getenv("MODEL_PROVIDER"),
		Model:    os.Getenv("MODEL_NAME"),
		APIKey:   os.Getenv("MODEL_API_KEY"),
		BaseURL:  os.Getenv("MODEL_BASE_URL"),
	})
	if err != nil {
		slog.Error("model configuration invalid", "error", err)
		os.Exit(1)
	}

	tracer := trace.New(
		os.Getenv("LANGFUSE_HOST"),
		os.Getenv("LANGFUSE_PUBLIC_KEY"),
		os.Getenv("LANGFUSE_SECRET_KEY"),
	)
	defer tracer.Close()
	if !tracer.Enabled() {
		slog.Info("trace logging disabled")
	}

	srv := server.New(addr, aiservice.NewServer(model, tracer))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("ai service starting",
		"addr", addr,
		"provider", model.Provider(),
		"model", model.Model(),
		"tracing", tracer.Enabled(),
	)
	if err := srv.Run(ctx); err != nil {
		slog.Error("server error", "error", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
