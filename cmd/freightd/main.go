// Command freightd runs the freight delay-notification service: the HTTP API,
// the durable-execution worker and the cron-triggered fleet sweep.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/app"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/infra/config"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/infra/logger"
)

func main() {
	envPath := flag.String("env", ".env", "path to the environment file")
	flag.Parse()

	if err := config.Load(*envPath); err != nil {
		logger.Fatal("configuration error: " + err.Error())
	}
	cfg := config.Env()
	logger.Init(cfg.LogLevel, cfg.LogFile)
	for _, w := range config.Warnings() {
		logger.Warn(w)
	}

	mainCtx, mainCancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer mainCancel()

	if err := app.NewApp(mainCtx, mainCancel).Run(); err != nil {
		logger.Error("service exited with error: " + err.Error())
		os.Exit(1)
	}
	logger.Info("service stopped")
}
