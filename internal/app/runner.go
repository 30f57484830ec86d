package app

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/infra/logger"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/repo"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/web"
)

const webServerShutdownTimeout = 10 * time.Second

// Runner starts the long-lived services in order and stops them in reverse
// on shutdown: HTTP drains first so no request observes a stopped worker,
// then the worker, the engine connection and finally the store.
type Runner struct {
	mainCtx    context.Context
	mainCancel context.CancelFunc
	store      *repo.Bolt
	tclient    client.Client
	worker     worker.Worker
	webServer  *web.Server
}

// NewRunner wires the lifecycle orchestrator.
func NewRunner(mainCtx context.Context, mainCancel context.CancelFunc, store *repo.Bolt, tclient client.Client, w worker.Worker, srv *web.Server) *Runner {
	return &Runner{
		mainCtx:    mainCtx,
		mainCancel: mainCancel,
		store:      store,
		tclient:    tclient,
		worker:     w,
		webServer:  srv,
	}
}

// Run starts the worker and the web server and blocks until the main context
// is cancelled, then shuts everything down.
func (r *Runner) Run() error {
	logger.Debug("starting service temporal_worker")
	if err := r.worker.Start(); err != nil {
		r.stopStore()
		return errors.Wrap(err, "start worker")
	}
	logger.Debug("service temporal_worker started")

	logger.Debug("starting service web_server")
	go func() {
		if err := r.webServer.Start(); err != nil {
			logger.Errorf("web server error: %v", err)
			r.mainCancel()
		}
	}()
	logger.Debug("service web_server started")

	logger.Info("freight delay service running...")
	<-r.mainCtx.Done()

	logger.Debug("shutdown signal received, stopping runner...")
	r.stopAllServices()
	return nil
}

func (r *Runner) stopAllServices() {
	logger.Debug("stopping service web_server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), webServerShutdownTimeout)
	defer cancel()
	if err := r.webServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("failed to stop web_server: %v", err)
	}
	logger.Debug("service web_server stopped")

	logger.Debug("stopping service temporal_worker")
	r.worker.Stop()
	logger.Debug("service temporal_worker stopped")

	logger.Debug("closing engine connection")
	r.tclient.Close()
	logger.Debug("engine connection closed")

	r.stopStore()
}

func (r *Runner) stopStore() {
	logger.Debug("closing store")
	if err := r.store.Close(); err != nil {
		logger.Errorf("failed to close store: %v", err)
	}
	logger.Debug("store closed")
}
