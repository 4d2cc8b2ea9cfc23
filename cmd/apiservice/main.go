package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"stack/internal/apiservice"
	"stack/internal/apiservice/objstore"
	"stack/internal/apiservice/store"
	"stack/internal/platform/server"
)

func main() {
	addr := envOr("API_ADDR", ":8081")
	dbPath := envOr("ITEMS_DB_PATH", "items.db")
	bucket := os.Getenv("UPLOAD_BUCKET")
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	items, err := store.Open(dbPath)
	if err != nil {
		slog.Error("opening item store", "error", err, "path", dbPath)
		os.Exit(1)
	}
	defer items.Close()

	var objects apiservice.ObjectStore
	if bucket != "" {
		gcs, err := objstore.New(ctx, bucket)
		if err != nil {
			slog.Error("creating object store", "error", err, "bucket", bucket)
			os.Exit(1)
		}
		defer gcs.Close()
		objects = gcs
	} else {
		slog.Warn("UPLOAD_BUCKET not set, file endpoints disabled")
	}

	srv := server.New(addr, apiservice.NewServer(items, objects))

	slog.Info("api service starting", "addr", addr, "db", dbPath, "bucket", bucket)
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
