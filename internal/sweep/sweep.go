// Package sweep implements the cron-triggered fleet scan: every stored route
// with coordinates gets a fresh traffic reading, a snapshot row, and, when the
// delay crosses the default threshold, a delay-notification workflow for its
// active deliveries. The sweep is independent of any running workflow; Route
// rows are shared last-writer-wins.
package sweep

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/freight"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/providers"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/threshold"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/infra/logger"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/infra/metrics"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/repo"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/workflow"
)

// maxRoutesPerSweep caps one sweep pass. Routes beyond the cap wait for the
// next tick.
const maxRoutesPerSweep = 1000

// WorkflowStarter is the slice of the engine the sweep needs. Nil starter
// means snapshots only, no workflow dispatch.
type WorkflowStarter interface {
	StartForDelivery(ctx context.Context, d *freight.Delivery) (workflow.StartResult, error)
}

// Summary is the JSON body returned to the cron caller.
type Summary struct {
	RoutesChecked          int      `json:"routes_checked"`
	SnapshotsSaved         int      `json:"snapshots_saved"`
	DelaysDetected         int      `json:"delays_detected"`
	NotificationsTriggered int      `json:"notifications_triggered"`
	Errors                 []string `json:"errors"`
	DurationMS             int64    `json:"duration_ms"`
}

// Sweeper runs one fleet scan per call. Safe for concurrent Run calls, though
// the cron normally serializes them.
type Sweeper struct {
	store       repo.Store
	traffic     *providers.TrafficChain
	starter     WorkflowStarter
	limiter     *rate.Limiter
	concurrency int
	maxRoutes   int
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithStarter lets the sweep dispatch delay workflows for delayed routes.
func WithStarter(s WorkflowStarter) Option {
	return func(sw *Sweeper) { sw.starter = s }
}

// WithRPS bounds outbound traffic-provider calls per second.
func WithRPS(rps float64) Option {
	return func(sw *Sweeper) {
		if rps > 0 {
			sw.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithConcurrency bounds how many routes are probed in parallel.
func WithConcurrency(n int) Option {
	return func(sw *Sweeper) {
		if n > 0 {
			sw.concurrency = n
		}
	}
}

// WithMaxRoutes overrides the per-sweep route cap.
func WithMaxRoutes(n int) Option {
	return func(sw *Sweeper) {
		if n > 0 {
			sw.maxRoutes = n
		}
	}
}

// NewSweeper builds a sweeper over the store and traffic chain.
func NewSweeper(store repo.Store, traffic *providers.TrafficChain, opts ...Option) *Sweeper {
	sw := &Sweeper{
		store:       store,
		traffic:     traffic,
		limiter:     rate.NewLimiter(rate.Limit(5), 1),
		concurrency: 4,
		maxRoutes:   maxRoutesPerSweep,
	}
	for _, o := range opts {
		o(sw)
	}
	return sw
}

// Run scans every route once. Per-route failures are isolated into the
// summary's error list; only a broken repository fails the sweep itself.
func (sw *Sweeper) Run(ctx context.Context) (Summary, error) {
	started := time.Now()

	routes, err := sw.store.ListRoutes(ctx, sw.maxRoutes)
	if err != nil {
		return Summary{}, freight.WrapE(err, freight.KindInfrastructure, "sweep: list routes")
	}

	thresholdMinutes := sw.defaultThresholdMinutes(ctx)
	byRoute := sw.activeDeliveriesByRoute(ctx)

	var (
		mu      sync.Mutex
		summary = Summary{Errors: []string{}}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sw.concurrency)
	for i := range routes {
		route := routes[i]
		if !route.HasCoords() {
			logger.Debug("sweep: skipping route without coordinates", zap.String("route_id", route.ID))
			continue
		}
		g.Go(func() error {
			res := sw.checkRoute(gctx, &route, thresholdMinutes, byRoute[route.ID])

			mu.Lock()
			defer mu.Unlock()
			summary.RoutesChecked++
			summary.SnapshotsSaved += res.snapshots
			summary.NotificationsTriggered += res.triggered
			if res.delayed {
				summary.DelaysDetected++
			}
			summary.Errors = append(summary.Errors, res.errs...)
			return nil
		})
	}
	_ = g.Wait()

	summary.DurationMS = time.Since(started).Milliseconds()
	logger.Info("fleet sweep finished",
		zap.Int("routes_checked", summary.RoutesChecked),
		zap.Int("snapshots_saved", summary.SnapshotsSaved),
		zap.Int("delays_detected", summary.DelaysDetected),
		zap.Int("notifications_triggered", summary.NotificationsTriggered),
		zap.Int("errors", len(summary.Errors)),
		zap.Int64("duration_ms", summary.DurationMS))
	return summary, nil
}

type routeResult struct {
	snapshots int
	triggered int
	delayed   bool
	errs      []string
}

func (sw *Sweeper) checkRoute(ctx context.Context, route *freight.Route, thresholdMinutes int, deliveries []freight.Delivery) routeResult {
	var out routeResult
	metrics.SweepRoutesChecked.Inc()

	if err := sw.limiter.Wait(ctx); err != nil {
		out.errs = append(out.errs, fmt.Sprintf("route %s: %v", route.ID, err))
		return out
	}

	res, err := sw.fetchWithRetry(ctx, route)
	if err != nil {
		metrics.SweepErrors.Inc()
		logger.Warn("sweep: traffic check failed",
			zap.String("route_id", route.ID), zap.Error(err))
		out.errs = append(out.errs, fmt.Sprintf("route %s: %v", route.ID, err))
		return out
	}

	route.ApplyResult(res)
	if err := sw.store.UpdateRoute(ctx, route); err != nil {
		metrics.SweepErrors.Inc()
		out.errs = append(out.errs, fmt.Sprintf("route %s: update: %v", route.ID, err))
		return out
	}
	snap := freight.SnapshotFromResult(route, res)
	if err := sw.store.CreateSnapshot(ctx, &snap); err != nil {
		metrics.SweepErrors.Inc()
		out.errs = append(out.errs, fmt.Sprintf("route %s: snapshot: %v", route.ID, err))
		return out
	}
	out.snapshots++

	if res.DelayMinutes <= thresholdMinutes {
		return out
	}
	out.delayed = true
	logger.Info("sweep: delay detected",
		zap.String("route_id", route.ID),
		zap.Int("delay_minutes", res.DelayMinutes), zap.Int("threshold", thresholdMinutes))

	if sw.starter == nil {
		return out
	}
	for i := range deliveries {
		d := deliveries[i]
		if _, err := sw.starter.StartForDelivery(ctx, &d); err != nil {
			out.errs = append(out.errs, fmt.Sprintf("delivery %s: start workflow: %v", d.ID, err))
			continue
		}
		out.triggered++
	}
	return out
}

// fetchWithRetry probes traffic for one route, retrying transient provider
// failures twice with exponential backoff.
func (sw *Sweeper) fetchWithRetry(ctx context.Context, route *freight.Route) (freight.TrafficResult, error) {
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	return backoff.RetryWithData(func() (freight.TrafficResult, error) {
		return sw.traffic.GetTraffic(ctx, route.OriginCoords, route.DestinationCoords)
	}, bo)
}

// defaultThresholdMinutes reads the stored default; the compile-time fallback
// applies when none exists or the repository misbehaves.
func (sw *Sweeper) defaultThresholdMinutes(ctx context.Context) int {
	def, err := sw.store.DefaultThreshold(ctx)
	if err != nil {
		if !freight.IsNotFound(err) {
			logger.Warn("sweep: default threshold lookup failed", zap.Error(err))
		}
		return threshold.FallbackMinutes
	}
	return def.DelayMinutes
}

// activeDeliveriesByRoute maps route ids to deliveries the sweep may dispatch
// workflows for: auto-check enabled and not in a terminal state.
func (sw *Sweeper) activeDeliveriesByRoute(ctx context.Context) map[string][]freight.Delivery {
	byRoute := make(map[string][]freight.Delivery)
	if sw.starter == nil {
		return byRoute
	}
	all, err := sw.store.ListDeliveries(ctx)
	if err != nil {
		logger.Warn("sweep: list deliveries failed", zap.Error(err))
		return byRoute
	}
	for _, d := range all {
		if !d.AutoCheckTraffic {
			continue
		}
		if d.Status != freight.StatusPending && d.Status != freight.StatusInTransit {
			continue
		}
		byRoute[d.RouteID] = append(byRoute[d.RouteID], d)
	}
	return byRoute
}
