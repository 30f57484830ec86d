// Package workflow holds the durable side of the service: the Temporal
// workflow definitions (delay notification and recurring traffic check), the
// activities they invoke, and the engine wrapper that starts, cancels and
// describes runs. Workflow bodies are strictly deterministic; every side
// effect (traffic fetch, AI call, notification send, repository write)
// lives in an activity here.
package workflow

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/adapters/mock"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/freight"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/providers"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/threshold"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/infra/logger"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/notify"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/repo"
)

// Activities carries the dependencies of every pipeline step. One instance is
// registered on the worker.
type Activities struct {
	store      repo.Store
	traffic    *providers.TrafficChain
	generators *providers.GeneratorChain
	notifier   *notify.Service
	resolver   *threshold.Resolver
}

// NewActivities wires the pipeline dependencies.
func NewActivities(store repo.Store, traffic *providers.TrafficChain, generators *providers.GeneratorChain, notifier *notify.Service, resolver *threshold.Resolver) *Activities {
	return &Activities{
		store:      store,
		traffic:    traffic,
		generators: generators,
		notifier:   notifier,
		resolver:   resolver,
	}
}

// appError converts a kinded domain error into a Temporal application error
// whose type is the kind, so the retry policy can refuse to retry domain and
// validation failures.
func appError(err error) error {
	if err == nil {
		return nil
	}
	return temporal.NewApplicationError(err.Error(), string(freight.KindOf(err)))
}

// --- step 1: traffic check ---

// CheckTrafficInput names the delivery whose route is probed.
type CheckTrafficInput struct {
	DeliveryID string `json:"delivery_id"`
}

// CheckTrafficResult carries the normalized traffic answer forward.
type CheckTrafficResult struct {
	Traffic freight.TrafficResult `json:"traffic"`
}

// CheckTraffic fetches live traffic for the delivery's route, refreshes the
// route row and appends a snapshot.
func (a *Activities) CheckTraffic(ctx context.Context, in CheckTrafficInput) (CheckTrafficResult, error) {
	d, err := a.store.GetDelivery(ctx, in.DeliveryID)
	if err != nil {
		return CheckTrafficResult{}, appError(err)
	}
	route, err := a.store.GetRoute(ctx, d.RouteID)
	if err != nil {
		return CheckTrafficResult{}, appError(err)
	}
	if !route.HasCoords() {
		return CheckTrafficResult{}, appError(freight.E(freight.KindDomain,
			"route %s has no coordinates, cannot check traffic", route.ID))
	}

	res, err := a.traffic.GetTraffic(ctx, route.OriginCoords, route.DestinationCoords)
	if err != nil {
		return CheckTrafficResult{}, appError(err)
	}

	route.ApplyResult(res)
	if err := a.store.UpdateRoute(ctx, route); err != nil {
		return CheckTrafficResult{}, appError(err)
	}
	snap := freight.SnapshotFromResult(route, res)
	if err := a.store.CreateSnapshot(ctx, &snap); err != nil {
		return CheckTrafficResult{}, appError(err)
	}

	logger.Info("traffic check completed",
		zap.String("delivery_id", d.ID), zap.String("route_id", route.ID),
		zap.Int("delay_minutes", res.DelayMinutes), zap.String("condition", string(res.Condition)),
		zap.String("provider", res.ProviderName))
	return CheckTrafficResult{Traffic: res}, nil
}

// --- step 2: delay evaluation ---

// Reasons reported by EvaluateDelay when no notification is due.
const (
	ReasonNotify         = "delay_above_threshold"
	ReasonBelowThreshold = "below_threshold"
	ReasonCooldown       = "dedup_cooldown"
	ReasonDelta          = "dedup_delta"
)

// EvaluateDelayInput pairs the delivery with the fresh traffic answer.
type EvaluateDelayInput struct {
	DeliveryID string                `json:"delivery_id"`
	Traffic    freight.TrafficResult `json:"traffic"`
}

// EvaluateDelayResult is the step-2 decision. A false Notify with a nil error
// is a successful "no notification needed" outcome, not a failure.
type EvaluateDelayResult struct {
	Notify    bool               `json:"notify"`
	Reason    string             `json:"reason"`
	Threshold threshold.Resolved `json:"threshold"`
}

// EvaluateDelay resolves the applicable threshold and applies the two dedup
// gates (cooldown and minimum delay change) against the latest sent
// notification for this delivery.
func (a *Activities) EvaluateDelay(ctx context.Context, in EvaluateDelayInput) (EvaluateDelayResult, error) {
	d, err := a.store.GetDelivery(ctx, in.DeliveryID)
	if err != nil {
		return EvaluateDelayResult{}, appError(err)
	}

	resolved := a.resolver.Resolve(ctx, d)
	out := EvaluateDelayResult{Threshold: resolved}

	if in.Traffic.DelayMinutes <= resolved.DelayMinutes {
		out.Reason = ReasonBelowThreshold
		logger.Debug("delay below threshold",
			zap.String("delivery_id", d.ID),
			zap.Int("delay", in.Traffic.DelayMinutes), zap.Int("threshold", resolved.DelayMinutes))
		return out, nil
	}

	last, err := a.store.LatestSentNotification(ctx, d.ID)
	switch {
	case freight.IsNotFound(err):
		// Never notified: both gates pass.
	case err != nil:
		return EvaluateDelayResult{}, appError(err)
	default:
		if last.SentAt != nil && d.MinHoursBetweenNotifications > 0 {
			cooldown := time.Duration(d.MinHoursBetweenNotifications * float64(time.Hour))
			if since := time.Since(*last.SentAt); since < cooldown {
				out.Reason = ReasonCooldown
				logger.Info("notification suppressed by cooldown",
					zap.String("delivery_id", d.ID),
					zap.Duration("since_last", since), zap.Duration("cooldown", cooldown))
				return out, nil
			}
		}
		if d.MinDelayChangeThreshold > 0 {
			change := int(math.Abs(float64(in.Traffic.DelayMinutes - last.DelayMinutesAtSend)))
			if change < d.MinDelayChangeThreshold {
				out.Reason = ReasonDelta
				logger.Info("notification suppressed by delay delta",
					zap.String("delivery_id", d.ID),
					zap.Int("change", change), zap.Int("min_change", d.MinDelayChangeThreshold))
				return out, nil
			}
		}
	}

	out.Notify = true
	out.Reason = ReasonNotify
	return out, nil
}

// --- step 3: message generation ---

// GenerateMessageInput feeds the generator chain.
type GenerateMessageInput struct {
	DeliveryID string                `json:"delivery_id"`
	Traffic    freight.TrafficResult `json:"traffic"`
}

// GenerateMessage asks the AI chain for a personalized message and falls back
// to the deterministic template when every generator fails. The pipeline
// never blocks on AI.
func (a *Activities) GenerateMessage(ctx context.Context, in GenerateMessageInput) (providers.Message, error) {
	mctx, err := a.messageContext(ctx, in.DeliveryID, in.Traffic)
	if err != nil {
		return providers.Message{}, appError(err)
	}

	msg, err := a.generators.Generate(ctx, mctx)
	if err != nil {
		logger.Warn("all message generators failed, using template",
			zap.String("delivery_id", in.DeliveryID), zap.Error(err))
		return providers.Message{
			Subject:   fmt.Sprintf("Delivery %s delayed by %d minutes", mctx.TrackingNumber, mctx.DelayMinutes),
			Body:      mock.TemplateMessage(mctx),
			ModelName: "template-fallback",
		}, nil
	}
	return msg, nil
}

func (a *Activities) messageContext(ctx context.Context, deliveryID string, res freight.TrafficResult) (providers.MessageContext, error) {
	d, err := a.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		return providers.MessageContext{}, err
	}
	route, err := a.store.GetRoute(ctx, d.RouteID)
	if err != nil {
		return providers.MessageContext{}, err
	}
	cust, err := a.store.GetCustomer(ctx, d.CustomerID)
	if err != nil {
		return providers.MessageContext{}, err
	}
	return providers.MessageContext{
		TrackingNumber:   d.TrackingNumber,
		CustomerName:     cust.Name,
		Origin:           route.OriginAddress,
		Destination:      route.DestinationAddress,
		DelayMinutes:     res.DelayMinutes,
		Condition:        res.Condition,
		OriginalArrival:  d.ScheduledDelivery,
		EstimatedArrival: d.ScheduledDelivery.Add(time.Duration(res.DelayMinutes) * time.Minute),
	}, nil
}

// --- step 4: notification delivery ---

// SendNotificationsInput fans the generated message out to the threshold's
// channels.
type SendNotificationsInput struct {
	DeliveryID   string            `json:"delivery_id"`
	Channels     []freight.Channel `json:"channels"`
	Message      providers.Message `json:"message"`
	DelayMinutes int               `json:"delay_minutes"`
}

// SendNotificationsResult summarizes the per-channel outcomes.
type SendNotificationsResult struct {
	Sent     int              `json:"sent"`
	Outcomes []notify.Outcome `json:"outcomes"`
}

// SendNotifications delivers on every requested channel, persists one
// Notification row per channel, and marks the delivery delayed on the first
// successful send. At least one channel must succeed for the step to succeed.
func (a *Activities) SendNotifications(ctx context.Context, in SendNotificationsInput) (SendNotificationsResult, error) {
	d, err := a.store.GetDelivery(ctx, in.DeliveryID)
	if err != nil {
		return SendNotificationsResult{}, appError(err)
	}
	cust, err := a.store.GetCustomer(ctx, d.CustomerID)
	if err != nil {
		return SendNotificationsResult{}, appError(err)
	}

	var out SendNotificationsResult
	for _, ch := range in.Channels {
		recipient := cust.Email
		if ch == freight.ChannelSMS {
			recipient = cust.Phone
		}
		if recipient == "" {
			out.Outcomes = append(out.Outcomes, notify.Outcome{
				Channel: ch,
				Status:  freight.NotificationSkipped,
				Error:   "no recipient on customer profile",
			})
			continue
		}

		outcome := a.notifier.Send(ctx, providers.SendInput{
			To:         recipient,
			Subject:    in.Message.Subject,
			Message:    in.Message.Body,
			DeliveryID: d.ID,
		}, ch)
		out.Outcomes = append(out.Outcomes, outcome)
		if outcome.Sent() {
			out.Sent++
		}

		row := &freight.Notification{
			DeliveryID:         d.ID,
			Channel:            ch,
			Recipient:          recipient,
			Message:            in.Message.Body,
			Status:             outcome.Status,
			ExternalID:         outcome.MessageID,
			DelayMinutesAtSend: in.DelayMinutes,
			ErrorMessage:       outcome.Error,
		}
		if outcome.Sent() {
			now := time.Now().UTC()
			row.SentAt = &now
		}
		if err := a.store.CreateNotification(ctx, row); err != nil {
			return SendNotificationsResult{}, appError(err)
		}
	}

	if out.Sent > 0 && (d.Status == freight.StatusPending || d.Status == freight.StatusInTransit) {
		if _, err := a.store.MarkDeliveryDelayed(ctx, d.ID); err != nil {
			// A concurrent status change is tolerable; the notification
			// already went out.
			logger.Warn("could not mark delivery delayed",
				zap.String("delivery_id", d.ID), zap.Error(err))
		}
	}

	if out.Sent == 0 {
		return out, appError(freight.E(freight.KindInfrastructure,
			"delivery %s: no channel succeeded (%d attempted)", d.ID, len(in.Channels)))
	}
	return out, nil
}

// --- recurring-loop bookkeeping ---

// ScheduleInfo is what the recurring workflow needs to drive its loop.
type ScheduleInfo struct {
	IntervalMinutes   int       `json:"interval_minutes"`
	MaxChecks         int       `json:"max_checks"`
	ChecksPerformed   int       `json:"checks_performed"`
	ScheduledDelivery time.Time `json:"scheduled_delivery"`
	Terminal          bool      `json:"terminal"`
}

// LoadSchedule reads the delivery's recurring-check settings. Terminal is set
// when the delivery reached a final status, so the loop can stop early.
func (a *Activities) LoadSchedule(ctx context.Context, deliveryID string) (ScheduleInfo, error) {
	d, err := a.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		return ScheduleInfo{}, appError(err)
	}
	interval := d.CheckIntervalMinutes
	if interval <= 0 {
		interval = 30
	}
	terminal := d.Status == freight.StatusDelivered ||
		d.Status == freight.StatusCancelled || d.Status == freight.StatusFailed
	return ScheduleInfo{
		IntervalMinutes:   interval,
		MaxChecks:         d.MaxChecks,
		ChecksPerformed:   d.ChecksPerformed,
		ScheduledDelivery: d.ScheduledDelivery,
		Terminal:          terminal,
	}, nil
}

// IncrementChecks bumps the delivery's check counter and refreshes its
// updated_at marker. Returns the new count.
func (a *Activities) IncrementChecks(ctx context.Context, deliveryID string) (int, error) {
	d, err := a.store.IncrementChecks(ctx, deliveryID)
	if err != nil {
		return 0, appError(err)
	}
	return d.ChecksPerformed, nil
}

// --- execution records ---

// RecordExecution writes the WorkflowExecution row for a fresh run.
func (a *Activities) RecordExecution(ctx context.Context, e freight.WorkflowExecution) error {
	return appError(a.store.CreateWorkflowExecution(ctx, &e))
}

// ExecutionUpdate mirrors the mutable part of a WorkflowExecution row.
type ExecutionUpdate struct {
	WorkflowID string                 `json:"workflow_id"`
	RunID      string                 `json:"run_id"`
	DeliveryID string                 `json:"delivery_id"`
	Status     freight.WorkflowStatus `json:"status"`
	Steps      freight.WorkflowSteps  `json:"steps"`
	Error      string                 `json:"error,omitempty"`
}

// UpdateExecution rewrites the run's status, steps and error; terminal
// statuses also stamp completed_at.
func (a *Activities) UpdateExecution(ctx context.Context, u ExecutionUpdate) error {
	e := freight.WorkflowExecution{
		WorkflowID: u.WorkflowID,
		RunID:      u.RunID,
		DeliveryID: u.DeliveryID,
		Status:     u.Status,
		Steps:      u.Steps,
		Error:      u.Error,
	}
	if u.Status != freight.WorkflowRunning {
		now := time.Now().UTC()
		e.CompletedAt = &now
	}
	return appError(a.store.UpdateWorkflowExecution(ctx, &e))
}
