package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gw "stack/internal/gateway"
	"stack/internal/gateway/adapter/idtoken"
	"stack/internal/gateway/adapter/inmem"
	"stack/internal/gateway/adapter/jwks"
	"stack/internal/gateway/adapter/proxy"
	"stack/internal/gateway/auth"
	"stack/internal/gateway/middleware"
	"stack/internal/platform/config"
	"stack/internal/platform/server"
	"stack/internal/platform/telemetry"
)

func main() {
	cfg := config.Load()

	// Logging
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry
	shutdown, err := telemetry.Setup(context.Background(), "gateway")
	if err != nil {
		slog.Error("telemetry setup failed", "error", err)
		os.Exit(1)
	}

	// Credential verification: real key verification against the JWKS
	// endpoint, or the permissive dev identity when no endpoint is set
	// in a development environment.
	mode := auth.ModeJWKS
	var keys gw.KeyProvider
	if cfg.DevMode() {
		mode = auth.ModeDev
		slog.Warn("running in dev mode, all bearer tokens map to the dev identity")
	} else {
		keys = jwks.NewClient(cfg.JWKSURL, 5*time.Minute, cfg.AuthTimeout)
	}
	verifier := auth.NewVerifier(mode, keys, cfg.TokenAudience,
		auth.WithBypassToken(cfg.BypassToken),
		auth.WithKeyTimeout(cfg.AuthTimeout),
	)
	if cfg.BypassToken != "" {
		slog.Warn("test bypass token enabled")
	}

	// Service-to-service identity tokens for the outbound leg
	var tokens gw.IdentityTokenSource = idtoken.Disabled{}
	if cfg.FetchIdentityTokens {
		tokens = idtoken.NewSource()
	}

	// Rate limiter
	rl := inmem.NewRateLimiter(cfg.RateLimit.Rate, cfg.RateLimit.Burst, time.Now)
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.Cleanup()
			}
		}
	}()

	// Metrics
	metrics, err := telemetry.NewGatewayMetrics()
	if err != nil {
		slog.Error("metrics initialization failed", "error", err)
		os.Exit(1)
	}

	// Router
	router, err := proxy.NewRouter(proxy.Config{
		APIServiceURL:       cfg.APIServiceURL,
		AIServiceURL:        cfg.AIServiceURL,
		Timeout:             cfg.ProxyTimeout,
		FileTimeout:         cfg.FileTimeout,
		ConnectTimeout:      cfg.ConnectTimeout,
		FetchIdentityTokens: cfg.FetchIdentityTokens,
	}, tokens, metrics)
	if err != nil {
		slog.Error("router initialization failed", "error", err)
		os.Exit(1)
	}

	// Public paths (no auth required)
	publicPaths := []string{"/", "/health", "/metrics"}

	// Assemble middleware chain
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.MetricsHandler())
	const maxBodyBytes = 10 << 20 // 10MB, uploads pass through the gateway
	mux.Handle("/", middleware.Chain(
		router,
		middleware.Metrics(metrics),
		middleware.RequestID,
		middleware.Logging(logger),
		middleware.Recovery,
		middleware.MaxBodySize(maxBodyBytes),
		middleware.RateLimit(rl, metrics),
		middleware.Auth(verifier, publicPaths, metrics),
	))

	// Start server
	srv := server.New(cfg.GatewayAddr, mux)

	slog.Info("gateway starting",
		"addr", cfg.GatewayAddr,
		"mode", verifier.Mode().String(),
		"jwks_url", cfg.JWKSURL,
		"api_service_url", cfg.APIServiceURL,
		"ai_service_url", cfg.AIServiceURL,
	)

	if err := srv.Run(ctx); err != nil {
		slog.Error("server error", "error", err)
	}

	if err := shutdown(context.Background()); err != nil {
		slog.Error("telemetry shutdown error", "error", err)
	}
}
