// Package server wires the blobkeeper engine together and runs it: metadata
// and content backends, the storage service, the expiry loop and the HTTP
// and gRPC endpoints, with graceful shutdown on SIGINT/SIGTERM.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/juju/clock"

	"github.com/dmitrijs2005/blobkeeper/internal/logging"
	"github.com/dmitrijs2005/blobkeeper/internal/ratelimiter"
	"github.com/dmitrijs2005/blobkeeper/internal/server/config"
	"github.com/dmitrijs2005/blobkeeper/internal/server/content"
	"github.com/dmitrijs2005/blobkeeper/internal/server/httpapi"
	"github.com/dmitrijs2005/blobkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/blobkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/blobkeeper/internal/server/services"

	gs "github.com/dmitrijs2005/blobkeeper/internal/server/grpc"
)

// rateLimiterKeys bounds how many client buckets are tracked at once.
const rateLimiterKeys = 10_000

type App struct {
	config  *config.Config
	logger  logging.Logger
	repos   repomanager.RepositoryManager
	storage *services.StorageService
	metrics *metrics.Metrics
}

func openContentStore(ctx context.Context, c *config.Config) (content.Store, error) {
	switch c.ContentBackend {
	case "filesystem":
		return content.NewFSStore(c.DataDir)
	case "s3":
		return content.NewS3Store(ctx, content.S3Config{
			Bucket:    c.S3Bucket,
			Prefix:    c.S3Prefix,
			Region:    c.S3Region,
			Endpoint:  c.S3BaseEndpoint,
			AccessKey: c.S3RootUser,
			SecretKey: c.S3RootPassword,
		})
	}
	return nil, fmt.Errorf("unknown content backend %q", c.ContentBackend)
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	rm, err := repomanager.Open(ctx, c, logger)
	if err != nil {
		return nil, fmt.Errorf("metadata init error: %w", err)
	}

	store, err := openContentStore(ctx, c)
	if err != nil {
		_ = rm.Close()
		return nil, fmt.Errorf("content init error: %w", err)
	}

	m := metrics.New()
	svc, err := services.NewStorageService(ctx, c, rm, store, clock.WallClock, m, logger)
	if err != nil {
		_ = rm.Close()
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	return &App{config: c, logger: logger, repos: rm, storage: svc, metrics: m}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	router := httpapi.NewRouter(app.storage, httpapi.RouterConfig{
		MaxFileSize: app.config.MaxFileSize,
		Limiter:     ratelimiter.New(app.config.RequestsPerMinute, rateLimiterKeys),
		Metrics:     app.metrics,
		Logger:      app.logger,
	})

	s := httpapi.NewHTTPServer(app.config.EndpointAddrHTTP, router, app.logger)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	if n, err := app.storage.Blobs().Reconcile(ctx); err != nil {
		app.logger.Error(ctx, "reconcile failed", "error", err)
	} else if n > 0 {
		app.logger.Warn(ctx, "orphaned content removed", "count", n)
	}

	var wg sync.WaitGroup

	if app.config.SweepInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.storage.Expiry().Run(ctx, app.config.SweepInterval, app.config.RetentionWindow)
		}()
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.repos.Close(); err != nil {
		app.logger.Error(ctx, "closing metadata store", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
