// Package app assembles the service: configuration, storage, the provider
// chains, the notification service, the durable-execution worker and engine,
// the fleet sweep and the HTTP server. Run wires everything in order and
// hands off to the Runner, which owns the lifecycle and graceful shutdown.
package app

import (
	"context"

	"github.com/go-faster/errors"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/adapters/anthropic"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/adapters/googlemaps"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/adapters/mock"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/adapters/sendgrid"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/adapters/twilio"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/freight"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/providers"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/threshold"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/infra/config"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/infra/logger"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/notify"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/repo"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/sweep"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/web"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/workflow"
)

// App aggregates the service's wiring. Construction is cheap; Run does the
// actual initialization so failures surface with context.
type App struct {
	mainCtx    context.Context
	mainCancel context.CancelFunc
}

// NewApp prepares the skeleton; Run performs initialization.
func NewApp(mainCtx context.Context, mainCancel context.CancelFunc) *App {
	return &App{mainCtx: mainCtx, mainCancel: mainCancel}
}

// chains groups the provider fallback chains and channel adapter lists built
// from configuration.
type chains struct {
	traffic    *providers.TrafficChain
	geocoders  *providers.GeocoderChain
	generators *providers.GeneratorChain
	email      []providers.EmailNotifier
	sms        []providers.SMSNotifier
}

// Run initializes storage, adapters, the engine and the HTTP surface, then
// blocks inside the Runner until shutdown.
func (a *App) Run() error {
	cfg := config.Env()
	logger.Info("freight delay service initializing...")

	store, err := repo.OpenBolt(cfg.DatabasePath)
	if err != nil {
		return errors.Wrap(err, "open store")
	}

	if err := seedDefaultThreshold(a.mainCtx, store, cfg.DefaultThresholdMinutes); err != nil {
		_ = store.Close()
		return errors.Wrap(err, "seed default threshold")
	}

	ch := buildChains(cfg)
	notifier := notify.NewService(ch.email, ch.sms, nil)
	resolver := threshold.NewResolver(store, 0)

	tclient, err := client.Dial(client.Options{
		HostPort:  cfg.TemporalAddress,
		Namespace: cfg.TemporalNamespace,
	})
	if err != nil {
		_ = store.Close()
		return errors.Wrap(err, "dial workflow engine")
	}

	activities := workflow.NewActivities(store, ch.traffic, ch.generators, notifier, resolver)
	wrk := workflow.NewWorker(tclient, cfg.TaskQueue, activities)
	engine := workflow.NewEngine(tclient, store, cfg.TaskQueue, cfg.CutoffHours)

	sweeper := sweep.NewSweeper(store, ch.traffic,
		sweep.WithStarter(engine),
		sweep.WithRPS(cfg.SweepRPS))

	server := web.NewServer(cfg.HTTPAddr, store, engine, sweeper, ch.geocoders, cfg.CronSecret)

	runner := NewRunner(a.mainCtx, a.mainCancel, store, tclient, wrk, server)
	return runner.Run()
}

// buildChains assembles the adapter chains. The mock adapter is always last
// in every chain so the service never runs out of providers; the force flag
// makes it the only one.
func buildChains(cfg config.EnvConfig) chains {
	var (
		traffic    []providers.TrafficProvider
		geocoders  []providers.Geocoder
		generators []providers.MessageGenerator
		email      []providers.EmailNotifier
		sms        []providers.SMSNotifier
	)

	if !cfg.ForceMockAdapters {
		if cfg.GoogleMapsAPIKey != "" {
			gm, err := googlemaps.New(cfg.GoogleMapsAPIKey)
			if err != nil {
				logger.Warn("google maps adapter unavailable", zap.Error(err))
			} else {
				traffic = append(traffic, gm)
				geocoders = append(geocoders, gm)
			}
		}
		if cfg.AnthropicAPIKey != "" {
			generators = append(generators, anthropic.New(cfg.AnthropicAPIKey))
		}
		if cfg.SendGridAPIKey != "" {
			email = append(email, sendgrid.New(cfg.SendGridAPIKey, cfg.SendGridFrom))
		}
		if cfg.TwilioAccountSID != "" {
			sms = append(sms, twilio.New(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFrom))
		}
	} else {
		logger.Info("mock adapters forced: external providers disabled")
	}

	m := mock.New()
	return chains{
		traffic:    providers.NewTrafficChain(append(traffic, m)...),
		geocoders:  providers.NewGeocoderChain(append(geocoders, m)...),
		generators: providers.NewGeneratorChain(append(generators, m)...),
		email:      append(email, providers.EmailNotifier(m)),
		sms:        append(sms, providers.SMSNotifier(m)),
	}
}

// seedDefaultThreshold creates the system default threshold on first boot.
// The repository guarantees there is never more than one default.
func seedDefaultThreshold(ctx context.Context, store repo.Store, minutes int) error {
	_, err := store.DefaultThreshold(ctx)
	if err == nil {
		return nil
	}
	if !freight.IsNotFound(err) {
		return err
	}

	t := &freight.Threshold{
		Name:         "Standard Delay",
		DelayMinutes: minutes,
		Channels:     []freight.Channel{freight.ChannelEmail, freight.ChannelSMS},
		IsDefault:    true,
		IsSystem:     true,
	}
	if err := store.CreateThreshold(ctx, t); err != nil {
		return err
	}
	logger.Info("seeded system default threshold",
		zap.String("threshold_id", t.ID), zap.Int("delay_minutes", minutes))
	return nil
}
