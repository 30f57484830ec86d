package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/freight"
	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/infra/storage"
)

// Bucket names. Log-style buckets (snapshots, notifications, executions) key
// their rows as "<owner-id>\x00<zero-padded-nanos>\x00<row-id>" so a prefix
// cursor walks one owner's rows in time order.
var (
	bucketCustomers       = []byte("customers")
	bucketCustomerByEmail = []byte("customers_by_email")
	bucketRoutes          = []byte("routes")
	bucketDeliveries      = []byte("deliveries")
	bucketThresholds      = []byte("thresholds")
	bucketSnapshots       = []byte("snapshots")
	bucketNotifications   = []byte("notifications")
	bucketExecutions      = []byte("workflow_executions")
)

var allBuckets = [][]byte{
	bucketCustomers, bucketCustomerByEmail, bucketRoutes, bucketDeliveries,
	bucketThresholds, bucketSnapshots, bucketNotifications, bucketExecutions,
}

// Bolt implements Store on a bbolt database. All invariants that need
// atomicity (unique email, single default threshold, conditional status
// updates) are enforced inside one bbolt write transaction.
type Bolt struct {
	db  *bbolt.DB
	now func() time.Time
}

// BoltOption tweaks a Bolt store; used by tests to pin the clock.
type BoltOption func(*Bolt)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) BoltOption {
	return func(b *Bolt) { b.now = now }
}

// OpenBolt opens (or creates) the database at path and prepares all buckets.
func OpenBolt(path string, opts ...BoltOption) (*Bolt, error) {
	db, err := storage.OpenBolt(path)
	if err != nil {
		return nil, freight.WrapE(err, freight.KindInfrastructure, "open repository")
	}
	b := &Bolt{db: db, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, freight.WrapE(err, freight.KindInfrastructure, "init repository buckets")
	}
	return b, nil
}

// Close releases the underlying database handle.
func (b *Bolt) Close() error { return b.db.Close() }

// logKey builds an owner-scoped, time-ordered key for log-style buckets.
func logKey(ownerID string, at time.Time, rowID string) []byte {
	return fmt.Appendf(nil, "%s\x00%020d\x00%s", ownerID, at.UnixNano(), rowID)
}

func logPrefix(ownerID string) []byte {
	return append([]byte(ownerID), 0)
}

func putJSON(bk *bbolt.Bucket, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %T: %w", v, err)
	}
	return bk.Put(key, raw)
}

func getJSON(bk *bbolt.Bucket, key []byte, v any) (bool, error) {
	raw := bk.Get(key)
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %T: %w", v, err)
	}
	return true, nil
}

// --- customers ---

func (b *Bolt) CreateCustomer(_ context.Context, c *freight.Customer) error {
	email := strings.ToLower(strings.TrimSpace(c.Email))
	if email == "" {
		return freight.E(freight.KindValidation, "customer email is required")
	}
	err := b.db.Update(func(tx *bbolt.Tx) error {
		idx := tx.Bucket(bucketCustomerByEmail)
		if idx.Get([]byte(email)) != nil {
			return freight.E(freight.KindDomain, "customer email %s already exists", email)
		}
		c.ID = uuid.NewString()
		c.Email = email
		c.CreatedAt = b.now().UTC()
		c.UpdatedAt = c.CreatedAt
		if err := idx.Put([]byte(email), []byte(c.ID)); err != nil {
			return err
		}
		return putJSON(tx.Bucket(bucketCustomers), []byte(c.ID), c)
	})
	return wrapStoreErr(err, "create customer")
}

func (b *Bolt) GetCustomer(_ context.Context, id string) (*freight.Customer, error) {
	var c freight.Customer
	err := b.db.View(func(tx *bbolt.Tx) error {
		ok, err := getJSON(tx.Bucket(bucketCustomers), []byte(id), &c)
		if err != nil {
			return err
		}
		if !ok {
			return freight.E(freight.KindNotFound, "customer %s", id)
		}
		return nil
	})
	if err != nil {
		return nil, wrapStoreErr(err, "get customer")
	}
	return &c, nil
}

func (b *Bolt) GetCustomerByEmail(ctx context.Context, email string) (*freight.Customer, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var id string
	err := b.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketCustomerByEmail).Get([]byte(email))
		if raw == nil {
			return freight.E(freight.KindNotFound, "customer with email %s", email)
		}
		id = string(raw)
		return nil
	})
	if err != nil {
		return nil, wrapStoreErr(err, "get customer by email")
	}
	return b.GetCustomer(ctx, id)
}

func (b *Bolt) UpdateCustomer(_ context.Context, c *freight.Customer) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(bucketCustomers)
		var prev freight.Customer
		ok, err := getJSON(bk, []byte(c.ID), &prev)
		if err != nil {
			return err
		}
		if !ok {
			return freight.E(freight.KindNotFound, "customer %s", c.ID)
		}
		// Keep the email index in sync when the address changes.
		newEmail := strings.ToLower(strings.TrimSpace(c.Email))
		if newEmail != prev.Email {
			idx := tx.Bucket(bucketCustomerByEmail)
			if idx.Get([]byte(newEmail)) != nil {
				return freight.E(freight.KindDomain, "customer email %s already exists", newEmail)
			}
			if err := idx.Delete([]byte(prev.Email)); err != nil {
				return err
			}
			if err := idx.Put([]byte(newEmail), []byte(c.ID)); err != nil {
				return err
			}
			c.Email = newEmail
		}
		c.CreatedAt = prev.CreatedAt
		c.UpdatedAt = b.now().UTC()
		return putJSON(bk, []byte(c.ID), c)
	})
	return wrapStoreErr(err, "update customer")
}

func (b *Bolt) ListCustomers(_ context.Context) ([]freight.Customer, error) {
	var out []freight.Customer
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCustomers).ForEach(func(_, raw []byte) error {
			var c freight.Customer
			if err := json.Unmarshal(raw, &c); err != nil {
				return err
			}
			out = append(out, c)
			return nil
		})
	})
	if err != nil {
		return nil, wrapStoreErr(err, "list customers")
	}
	return out, nil
}

// --- routes ---

func (b *Bolt) CreateRoute(_ context.Context, r *freight.Route) error {
	if r.OriginAddress == "" || r.DestinationAddress == "" {
		return freight.E(freight.KindValidation, "route needs origin and destination addresses")
	}
	err := b.db.Update(func(tx *bbolt.Tx) error {
		r.ID = uuid.NewString()
		r.CreatedAt = b.now().UTC()
		r.UpdatedAt = r.CreatedAt
		return putJSON(tx.Bucket(bucketRoutes), []byte(r.ID), r)
	})
	return wrapStoreErr(err, "create route")
}

func (b *Bolt) GetRoute(_ context.Context, id string) (*freight.Route, error) {
	var r freight.Route
	err := b.db.View(func(tx *bbolt.Tx) error {
		ok, err := getJSON(tx.Bucket(bucketRoutes), []byte(id), &r)
		if err != nil {
			return err
		}
		if !ok {
			return freight.E(freight.KindNotFound, "route %s", id)
		}
		return nil
	})
	if err != nil {
		return nil, wrapStoreErr(err, "get route")
	}
	return &r, nil
}

func (b *Bolt) UpdateRoute(_ context.Context, r *freight.Route) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(bucketRoutes)
		if bk.Get([]byte(r.ID)) == nil {
			return freight.E(freight.KindNotFound, "route %s", r.ID)
		}
		r.UpdatedAt = b.now().UTC()
		return putJSON(bk, []byte(r.ID), r)
	})
	return wrapStoreErr(err, "update route")
}

func (b *Bolt) ListRoutes(_ context.Context, limit int) ([]freight.Route, error) {
	var out []freight.Route
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketRoutes).Cursor()
		for k, raw := c.First(); k != nil; k, raw = c.Next() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var r freight.Route
			if err := json.Unmarshal(raw, &r); err != nil {
				return err
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, wrapStoreErr(err, "list routes")
	}
	return out, nil
}

// --- deliveries ---

func (b *Bolt) CreateDelivery(_ context.Context, d *freight.Delivery) error {
	if d.TrackingNumber == "" {
		return freight.E(freight.KindValidation, "delivery tracking number is required")
	}
	if d.CustomerID == "" || d.RouteID == "" {
		return freight.E(freight.KindValidation, "delivery needs customer and route ids")
	}
	err := b.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketCustomers).Get([]byte(d.CustomerID)) == nil {
			return freight.E(freight.KindNotFound, "customer %s", d.CustomerID)
		}
		if tx.Bucket(bucketRoutes).Get([]byte(d.RouteID)) == nil {
			return freight.E(freight.KindNotFound, "route %s", d.RouteID)
		}
		d.ID = uuid.NewString()
		if d.Status == "" {
			d.Status = freight.StatusPending
		}
		if !freight.ValidStatus(d.Status) {
			return freight.E(freight.KindValidation, "unknown delivery status %q", d.Status)
		}
		d.CreatedAt = b.now().UTC()
		d.UpdatedAt = d.CreatedAt
		return putJSON(tx.Bucket(bucketDeliveries), []byte(d.ID), d)
	})
	return wrapStoreErr(err, "create delivery")
}

func (b *Bolt) GetDelivery(_ context.Context, id string) (*freight.Delivery, error) {
	var d freight.Delivery
	err := b.db.View(func(tx *bbolt.Tx) error {
		ok, err := getJSON(tx.Bucket(bucketDeliveries), []byte(id), &d)
		if err != nil {
			return err
		}
		if !ok {
			return freight.E(freight.KindNotFound, "delivery %s", id)
		}
		return nil
	})
	if err != nil {
		return nil, wrapStoreErr(err, "get delivery")
	}
	return &d, nil
}

// UpdateDelivery rewrites the mutable fields of a delivery. The status is
// deliberately NOT taken from the argument: status changes must go through
// TransitionDelivery so the machine is enforced under the write transaction.
func (b *Bolt) UpdateDelivery(_ context.Context, d *freight.Delivery) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(bucketDeliveries)
		var prev freight.Delivery
		ok, err := getJSON(bk, []byte(d.ID), &prev)
		if err != nil {
			return err
		}
		if !ok {
			return freight.E(freight.KindNotFound, "delivery %s", d.ID)
		}
		d.Status = prev.Status
		d.CreatedAt = prev.CreatedAt
		d.ChecksPerformed = prev.ChecksPerformed
		d.UpdatedAt = b.now().UTC()
		return putJSON(bk, []byte(d.ID), d)
	})
	return wrapStoreErr(err, "update delivery")
}

func (b *Bolt) ListDeliveries(ctx context.Context) ([]freight.Delivery, error) {
	return b.listDeliveries(ctx, func(*freight.Delivery) bool { return true })
}

func (b *Bolt) ListDeliveriesByStatus(ctx context.Context, status freight.DeliveryStatus) ([]freight.Delivery, error) {
	return b.listDeliveries(ctx, func(d *freight.Delivery) bool { return d.Status == status })
}

func (b *Bolt) listDeliveries(_ context.Context, keep func(*freight.Delivery) bool) ([]freight.Delivery, error) {
	var out []freight.Delivery
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDeliveries).ForEach(func(_, raw []byte) error {
			var d freight.Delivery
			if err := json.Unmarshal(raw, &d); err != nil {
				return err
			}
			if keep(&d) {
				out = append(out, d)
			}
			return nil
		})
	})
	if err != nil {
		return nil, wrapStoreErr(err, "list deliveries")
	}
	return out, nil
}

// TransitionDelivery applies the status machine inside the write transaction:
// the row is re-read under the lock, so a concurrent writer cannot sneak an
// invalid transition through.
func (b *Bolt) TransitionDelivery(_ context.Context, id string, to freight.DeliveryStatus) (*freight.Delivery, error) {
	return b.mutateDelivery(id, "transition delivery", func(d *freight.Delivery) error {
		return d.TransitionTo(to)
	})
}

// MarkDeliveryDelayed is the conditional update behind the pipeline's
// mark_delayed step.
func (b *Bolt) MarkDeliveryDelayed(_ context.Context, id string) (*freight.Delivery, error) {
	return b.mutateDelivery(id, "mark delivery delayed", func(d *freight.Delivery) error {
		return d.MarkDelayed()
	})
}

// IncrementChecks bumps checks_performed and refreshes updated_at, which
// doubles as the "last check" marker for the recurring workflow.
func (b *Bolt) IncrementChecks(_ context.Context, id string) (*freight.Delivery, error) {
	return b.mutateDelivery(id, "increment checks", func(d *freight.Delivery) error {
		if d.MaxChecks >= 0 && d.ChecksPerformed >= d.MaxChecks {
			return freight.E(freight.KindDomain, "delivery %s: max checks (%d) already reached", id, d.MaxChecks)
		}
		d.ChecksPerformed++
		return nil
	})
}

func (b *Bolt) mutateDelivery(id, op string, mutate func(*freight.Delivery) error) (*freight.Delivery, error) {
	var d freight.Delivery
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(bucketDeliveries)
		ok, err := getJSON(bk, []byte(id), &d)
		if err != nil {
			return err
		}
		if !ok {
			return freight.E(freight.KindNotFound, "delivery %s", id)
		}
		if err := mutate(&d); err != nil {
			return err
		}
		d.UpdatedAt = b.now().UTC()
		return putJSON(bk, []byte(id), &d)
	})
	if err != nil {
		return nil, wrapStoreErr(err, op)
	}
	return &d, nil
}

// wrapStoreErr keeps kinded errors as-is and converts raw storage errors to
// infrastructure failures with the operation name attached.
func wrapStoreErr(err error, op string) error {
	if err == nil {
		return nil
	}
	var e *freight.Error
	if errors.As(err, &e) {
		return err
	}
	return freight.WrapE(err, freight.KindInfrastructure, "%s", op)
}
