// Package main initializes and starts the gallery server, setting up
// configuration, logging, storage, services, handlers and optional TLS.
package main

import (
	"cmp"
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/atinyakov/GalleryKeeper/internal/config"
	"github.com/atinyakov/GalleryKeeper/internal/db"
	"github.com/atinyakov/GalleryKeeper/internal/logger"
	"github.com/atinyakov/GalleryKeeper/internal/repository"
	"github.com/atinyakov/GalleryKeeper/internal/server/handler/http"
	"github.com/atinyakov/GalleryKeeper/internal/service"
	"github.com/atinyakov/GalleryKeeper/internal/storage"
	"github.com/atinyakov/GalleryKeeper/internal/urlsign"
	"go.uber.org/zap"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Parse command-line, config file and environment configuration.
	options, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, "failed to init logger:", err)
		os.Exit(1)
	}
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, conn, err := newBackend(options)
	if err != nil {
		zapLogger.Fatal("cannot init storage", zap.String("driver", options.StorageDriver), zap.Error(err))
	}
	if conn != nil {
		defer conn.Close()
	}
	store := storage.New(backend, storage.WithLogger(zapLogger))
	if err := store.Load(context.Background()); err != nil {
		zapLogger.Fatal("cannot load store", zap.Error(err))
	}

	// Purge idle favorite sessions in the background.
	db.StartFavoriteSessionCleaner(ctx, store,
		time.Duration(options.CleanupInterval),
		options.FavoriteRetentionDays,
		zapLogger,
	)

	signer, err := urlsign.New(options.HMACSecret, options.UploadRoot)
	if err != nil {
		zapLogger.Fatal("cannot init url signer", zap.Error(err))
	}

	// Initialize business-logic services.
	downloadService := service.NewDownloadService(store, signer, service.DownloadConfig{
		PinTTL:          time.Duration(options.PinTTL),
		TokenTTL:        time.Duration(options.TokenTTL),
		MaxAttempts:     options.MaxAttempts,
		UploadURLPrefix: options.UploadURLPrefix,
		SecureURL:       strings.TrimRight(options.PublicBaseURL, "/") + "/downloads/secure",
	}, zapLogger)
	favoritesService := service.NewFavoritesService(store, zapLogger)

	// Create HTTP handlers and build the router.
	downloadHandler := &http.DownloadHandler{DownloadService: downloadService, Logger: zapLogger}
	favoritesHandler := &http.FavoritesHandler{FavoritesService: favoritesService}
	router := http.NewRouter(downloadHandler, favoritesHandler, zapLogger)

	server := &nethttp.Server{
		Addr:              options.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	useTLS := options.TLSCert != ""
	if useTLS {
		server.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	errCh := make(chan error, 1)
	go func() {
		zapLogger.Info("starting server",
			zap.String("addr", options.Port),
			zap.Bool("tls", useTLS),
			zap.String("storage", options.StorageDriver),
		)
		if useTLS {
			errCh <- server.ListenAndServeTLS(options.TLSCert, options.TLSKey)
			return
		}
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, nethttp.ErrServerClosed) {
			zapLogger.Fatal("server stopped", zap.Error(err))
		}
	case <-ctx.Done():
		zapLogger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("graceful shutdown failed", zap.Error(err))
		}
	}
}

// newBackend opens the configured storage backend. The returned *sql.DB is
// nil for the file driver.
func newBackend(o *config.Options) (storage.Backend, *sql.DB, error) {
	switch o.StorageDriver {
	case config.DriverFile:
		return repository.NewJSONFileRepository(o.StorageDir), nil, nil
	case config.DriverSQLite:
		conn, err := db.InitSQLite(o.StorageDir)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewSQLRecordRepository(conn, repository.DialectSQLite), conn, nil
	case config.DriverPostgres:
		conn, err := db.InitPostgres(o.DatabaseDSN)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewSQLRecordRepository(conn, repository.DialectPostgres), conn, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", o.StorageDriver)
	}
}
