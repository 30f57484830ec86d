package web

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/freight"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/infra/logger"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/workflow"
)

// handleSweep is the cron entry point. The shared secret is compared in
// constant time; hashing first hides the length difference too.
func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if s.cronSecret == "" {
		writeError(w, freight.E(freight.KindUnauthorized, "sweep endpoint disabled: no secret configured"))
		return
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || !secretsEqual(token, s.cronSecret) {
		writeError(w, freight.E(freight.KindUnauthorized, "invalid cron secret"))
		return
	}

	// A full fleet scan runs longer than the server's write timeout; lift
	// the deadline so the summary still reaches the caller.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		logger.Debugf("cannot clear write deadline for sweep response: %v", err)
	}

	summary, err := s.sweeper.Run(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func secretsEqual(got, want string) bool {
	g := sha256.Sum256([]byte(got))
	x := sha256.Sum256([]byte(want))
	return subtle.ConstantTimeCompare(g[:], x[:]) == 1
}

type startWorkflowRequest struct {
	DeliveryID string `json:"delivery_id" validate:"required"`
}

func (s *Server) handleStartWorkflow(w http.ResponseWriter, r *http.Request) {
	var req startWorkflowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, err)
		return
	}

	d, err := s.store.GetDelivery(r.Context(), req.DeliveryID)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.engine.StartForDelivery(r.Context(), d)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleWorkflowStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("workflow_id")
	if id == "" {
		writeError(w, freight.E(freight.KindValidation, "workflow_id query parameter is required"))
		return
	}
	res, err := s.engine.Status(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type cancelWorkflowRequest struct {
	WorkflowID string `json:"workflow_id" validate:"required"`
	Force      bool   `json:"force"`
}

func (s *Server) handleCancelWorkflow(w http.ResponseWriter, r *http.Request) {
	var req cancelWorkflowRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.engine.Cancel(r.Context(), req.WorkflowID, req.Force); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflow_id": req.WorkflowID, "cancelled": true, "force": req.Force})
}

type createDeliveryRequest struct {
	TrackingNumber string `json:"tracking_number" validate:"required"`

	Customer struct {
		Name  string `json:"name" validate:"required"`
		Email string `json:"email" validate:"required,email"`
		Phone string `json:"phone"`
	} `json:"customer"`

	OriginAddress      string    `json:"origin_address" validate:"required"`
	DestinationAddress string    `json:"destination_address" validate:"required"`
	ScheduledDelivery  time.Time `json:"scheduled_delivery" validate:"required"`

	DelayThresholdMinutes int  `json:"delay_threshold_minutes"`
	AutoCheckTraffic      bool `json:"auto_check_traffic"`

	EnableRecurringChecks bool `json:"enable_recurring_checks"`
	CheckIntervalMinutes  int  `json:"check_interval_minutes"`
	MaxChecks             *int `json:"max_checks"`

	MinDelayChangeThreshold      int     `json:"min_delay_change_threshold"`
	MinHoursBetweenNotifications float64 `json:"min_hours_between_notifications"`

	Metadata map[string]string `json:"metadata"`

	StartWorkflow bool `json:"start_workflow"`
}

type createDeliveryResponse struct {
	Delivery *freight.Delivery     `json:"delivery"`
	Route    *freight.Route        `json:"route"`
	Customer *freight.Customer     `json:"customer"`
	Workflow *workflow.StartResult `json:"workflow,omitempty"`
}

// handleCreateDelivery is the intake endpoint: customer is looked up by email
// or created on first mention, both addresses are geocoded, then route and
// delivery are persisted. Deliveries flagged with auto_check_traffic start
// their workflow in the same request; start_workflow forces a start for
// manually monitored deliveries.
func (s *Server) handleCreateDelivery(w http.ResponseWriter, r *http.Request) {
	var req createDeliveryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, err)
		return
	}
	ctx := r.Context()

	cust, err := s.store.GetCustomerByEmail(ctx, req.Customer.Email)
	if freight.IsNotFound(err) {
		cust = &freight.Customer{
			Name:  req.Customer.Name,
			Email: req.Customer.Email,
			Phone: req.Customer.Phone,
		}
		err = s.store.CreateCustomer(ctx, cust)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	origin, err := s.geocoders.Geocode(ctx, req.OriginAddress)
	if err != nil {
		writeError(w, err)
		return
	}
	dest, err := s.geocoders.Geocode(ctx, req.DestinationAddress)
	if err != nil {
		writeError(w, err)
		return
	}

	route := &freight.Route{
		OriginAddress:      req.OriginAddress,
		OriginCoords:       origin,
		DestinationAddress: req.DestinationAddress,
		DestinationCoords:  dest,
	}
	if err := s.store.CreateRoute(ctx, route); err != nil {
		writeError(w, err)
		return
	}

	maxChecks := -1
	if req.MaxChecks != nil {
		maxChecks = *req.MaxChecks
	}
	d := &freight.Delivery{
		TrackingNumber:               req.TrackingNumber,
		CustomerID:                   cust.ID,
		RouteID:                      route.ID,
		ScheduledDelivery:            req.ScheduledDelivery,
		DelayThresholdMinutes:        req.DelayThresholdMinutes,
		AutoCheckTraffic:             req.AutoCheckTraffic,
		EnableRecurringChecks:        req.EnableRecurringChecks,
		CheckIntervalMinutes:         req.CheckIntervalMinutes,
		MaxChecks:                    maxChecks,
		MinDelayChangeThreshold:      req.MinDelayChangeThreshold,
		MinHoursBetweenNotifications: req.MinHoursBetweenNotifications,
		Metadata:                     req.Metadata,
	}
	if err := s.store.CreateDelivery(ctx, d); err != nil {
		writeError(w, err)
		return
	}

	resp := createDeliveryResponse{Delivery: d, Route: route, Customer: cust}
	if req.StartWorkflow || req.AutoCheckTraffic {
		res, err := s.engine.StartForDelivery(ctx, d)
		if err != nil {
			// The delivery exists; report it with the start failure attached.
			writeError(w, err)
			return
		}
		resp.Workflow = &res
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetDelivery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	d, err := s.store.GetDelivery(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	route, err := s.store.GetRoute(ctx, d.RouteID)
	if err != nil {
		writeError(w, err)
		return
	}
	cust, err := s.store.GetCustomer(ctx, d.CustomerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, createDeliveryResponse{Delivery: d, Route: route, Customer: cust})
}

func (s *Server) handleRouteSnapshots(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetRoute(ctx, id); err != nil {
		writeError(w, err)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, freight.E(freight.KindValidation, "limit must be a positive integer"))
			return
		}
		limit = n
	}
	snaps, err := s.store.ListSnapshotsByRoute(ctx, id, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"route_id": id, "snapshots": snaps})
}
