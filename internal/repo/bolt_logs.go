package repo

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/freight"
)

// --- traffic snapshots (append-only) ---

func (b *Bolt) CreateSnapshot(_ context.Context, s *freight.TrafficSnapshot) error {
	if s.RouteID == "" {
		return freight.E(freight.KindValidation, "snapshot route_id is required")
	}
	err := b.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketRoutes).Get([]byte(s.RouteID)) == nil {
			return freight.E(freight.KindNotFound, "route %s", s.RouteID)
		}
		s.ID = uuid.NewString()
		if s.SnapshotAt.IsZero() {
			s.SnapshotAt = b.now().UTC()
		}
		key := logKey(s.RouteID, s.SnapshotAt, s.ID)
		return putJSON(tx.Bucket(bucketSnapshots), key, s)
	})
	return wrapStoreErr(err, "create snapshot")
}

// ListSnapshotsByRoute returns the newest snapshots first, capped at limit
// (limit<=0 means all).
func (b *Bolt) ListSnapshotsByRoute(_ context.Context, routeID string, limit int) ([]freight.TrafficSnapshot, error) {
	var out []freight.TrafficSnapshot
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketSnapshots).Cursor()
		prefix := logPrefix(routeID)
		for k, raw := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, raw = c.Next() {
			var s freight.TrafficSnapshot
			if err := json.Unmarshal(raw, &s); err != nil {
				return err
			}
			out = append(out, s)
		}
		return nil
	})
	if err != nil {
		return nil, wrapStoreErr(err, "list snapshots")
	}
	// Keys are time-ascending; reverse for newest-first and apply the cap.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- notifications (insert-only) ---

func (b *Bolt) CreateNotification(_ context.Context, n *freight.Notification) error {
	if n.DeliveryID == "" {
		return freight.E(freight.KindValidation, "notification delivery_id is required")
	}
	err := b.db.Update(func(tx *bbolt.Tx) error {
		n.ID = uuid.NewString()
		n.CreatedAt = b.now().UTC()
		key := logKey(n.DeliveryID, n.CreatedAt, n.ID)
		return putJSON(tx.Bucket(bucketNotifications), key, n)
	})
	return wrapStoreErr(err, "create notification")
}

func (b *Bolt) ListNotificationsByDelivery(_ context.Context, deliveryID string) ([]freight.Notification, error) {
	var out []freight.Notification
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketNotifications).Cursor()
		prefix := logPrefix(deliveryID)
		for k, raw := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, raw = c.Next() {
			var n freight.Notification
			if err := json.Unmarshal(raw, &n); err != nil {
				return err
			}
			out = append(out, n)
		}
		return nil
	})
	if err != nil {
		return nil, wrapStoreErr(err, "list notifications")
	}
	return out, nil
}

// LatestSentNotification returns the most recent successfully sent row for a
// delivery, or a not-found error when the delivery was never notified. The
// dedup gates of the pipeline read this.
func (b *Bolt) LatestSentNotification(_ context.Context, deliveryID string) (*freight.Notification, error) {
	var found *freight.Notification
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketNotifications).Cursor()
		prefix := logPrefix(deliveryID)
		for k, raw := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, raw = c.Next() {
			var n freight.Notification
			if err := json.Unmarshal(raw, &n); err != nil {
				return err
			}
			if n.Status == freight.NotificationSent {
				n := n
				found = &n // keys are time-ascending, last match wins
			}
		}
		return nil
	})
	if err != nil {
		return nil, wrapStoreErr(err, "latest sent notification")
	}
	if found == nil {
		return nil, freight.E(freight.KindNotFound, "no sent notification for delivery %s", deliveryID)
	}
	return found, nil
}

// --- workflow executions ---

func (b *Bolt) CreateWorkflowExecution(_ context.Context, e *freight.WorkflowExecution) error {
	if e.WorkflowID == "" || e.RunID == "" {
		return freight.E(freight.KindValidation, "workflow execution needs workflow_id and run_id")
	}
	err := b.db.Update(func(tx *bbolt.Tx) error {
		e.ID = uuid.NewString()
		if e.StartedAt.IsZero() {
			e.StartedAt = b.now().UTC()
		}
		if e.Status == "" {
			e.Status = freight.WorkflowRunning
		}
		key := logKey(e.WorkflowID, e.StartedAt, e.ID)
		return putJSON(tx.Bucket(bucketExecutions), key, e)
	})
	return wrapStoreErr(err, "create workflow execution")
}

// UpdateWorkflowExecution locates the row by (workflow_id, run_id) and
// rewrites it in place. The composite key embeds the original StartedAt, so
// callers must not mutate it.
func (b *Bolt) UpdateWorkflowExecution(_ context.Context, e *freight.WorkflowExecution) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(bucketExecutions)
		c := bk.Cursor()
		prefix := logPrefix(e.WorkflowID)
		for k, raw := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, raw = c.Next() {
			var prev freight.WorkflowExecution
			if err := json.Unmarshal(raw, &prev); err != nil {
				return err
			}
			if prev.RunID != e.RunID {
				continue
			}
			e.ID = prev.ID
			e.StartedAt = prev.StartedAt
			return putJSON(bk, k, e)
		}
		return freight.E(freight.KindNotFound, "workflow execution %s/%s", e.WorkflowID, e.RunID)
	})
	return wrapStoreErr(err, "update workflow execution")
}

// LatestExecutionByWorkflowID returns the most recently started run for a
// workflow id. Serves the status endpoint once the engine has forgotten the
// workflow.
func (b *Bolt) LatestExecutionByWorkflowID(_ context.Context, workflowID string) (*freight.WorkflowExecution, error) {
	var found *freight.WorkflowExecution
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketExecutions).Cursor()
		prefix := logPrefix(workflowID)
		for k, raw := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, raw = c.Next() {
			var e freight.WorkflowExecution
			if err := json.Unmarshal(raw, &e); err != nil {
				return err
			}
			found = &e
		}
		return nil
	})
	if err != nil {
		return nil, wrapStoreErr(err, "latest workflow execution")
	}
	if found == nil {
		return nil, freight.E(freight.KindNotFound, "no execution for workflow %s", workflowID)
	}
	return found, nil
}

func (b *Bolt) ListExecutionsByDelivery(_ context.Context, deliveryID string) ([]freight.WorkflowExecution, error) {
	var out []freight.WorkflowExecution
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketExecutions).ForEach(func(_, raw []byte) error {
			var e freight.WorkflowExecution
			if err := json.Unmarshal(raw, &e); err != nil {
				return err
			}
			if e.DeliveryID == deliveryID {
				out = append(out, e)
			}
			return nil
		})
	})
	if err != nil {
		return nil, wrapStoreErr(err, "list executions by delivery")
	}
	return out, nil
}
