package repo

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/red-game-dev/the-freight-delay-notification-sub001/internal/domain/freight"
)

func validateThreshold(t *freight.Threshold) error {
	if t.Name == "" {
		return freight.E(freight.KindValidation, "threshold name is required")
	}
	if t.DelayMinutes <= 0 {
		return freight.E(freight.KindValidation, "threshold delay_minutes must be positive")
	}
	if len(t.Channels) == 0 {
		return freight.E(freight.KindValidation, "threshold needs at least one channel")
	}
	for _, ch := range t.Channels {
		if ch != freight.ChannelEmail && ch != freight.ChannelSMS {
			return freight.E(freight.KindValidation, "unknown channel %q", ch)
		}
	}
	return nil
}

// clearDefaultLocked drops is_default from every threshold except keepID.
// Runs inside the caller's write transaction, so "exactly one default" holds
// at every commit point.
func clearDefaultLocked(bk *bbolt.Bucket, keepID string) error {
	c := bk.Cursor()
	for k, raw := c.First(); k != nil; k, raw = c.Next() {
		var t freight.Threshold
		if err := json.Unmarshal(raw, &t); err != nil {
			return err
		}
		if t.IsDefault && t.ID != keepID {
			t.IsDefault = false
			if err := putJSON(bk, k, &t); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Bolt) CreateThreshold(_ context.Context, t *freight.Threshold) error {
	if err := validateThreshold(t); err != nil {
		return err
	}
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(bucketThresholds)
		t.ID = uuid.NewString()
		t.CreatedAt = b.now().UTC()
		t.UpdatedAt = t.CreatedAt
		if t.IsDefault {
			if err := clearDefaultLocked(bk, t.ID); err != nil {
				return err
			}
		}
		return putJSON(bk, []byte(t.ID), t)
	})
	return wrapStoreErr(err, "create threshold")
}

func (b *Bolt) GetThreshold(_ context.Context, id string) (*freight.Threshold, error) {
	var t freight.Threshold
	err := b.db.View(func(tx *bbolt.Tx) error {
		ok, err := getJSON(tx.Bucket(bucketThresholds), []byte(id), &t)
		if err != nil {
			return err
		}
		if !ok {
			return freight.E(freight.KindNotFound, "threshold %s", id)
		}
		return nil
	})
	if err != nil {
		return nil, wrapStoreErr(err, "get threshold")
	}
	return &t, nil
}

func (b *Bolt) ListThresholds(_ context.Context) ([]freight.Threshold, error) {
	var out []freight.Threshold
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketThresholds).ForEach(func(_, raw []byte) error {
			var t freight.Threshold
			if err := json.Unmarshal(raw, &t); err != nil {
				return err
			}
			out = append(out, t)
			return nil
		})
	})
	if err != nil {
		return nil, wrapStoreErr(err, "list thresholds")
	}
	return out, nil
}

func (b *Bolt) UpdateThreshold(_ context.Context, t *freight.Threshold) error {
	if err := validateThreshold(t); err != nil {
		return err
	}
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(bucketThresholds)
		var prev freight.Threshold
		ok, err := getJSON(bk, []byte(t.ID), &prev)
		if err != nil {
			return err
		}
		if !ok {
			return freight.E(freight.KindNotFound, "threshold %s", t.ID)
		}
		// The default flag cannot be removed here: point it at another
		// threshold via SetDefaultThreshold instead, so the set never ends
		// up without a default.
		if prev.IsDefault && !t.IsDefault {
			return freight.E(freight.KindDomain, "threshold %s: cannot unset the default directly", t.ID)
		}
		if t.IsDefault && !prev.IsDefault {
			if err := clearDefaultLocked(bk, t.ID); err != nil {
				return err
			}
		}
		t.IsSystem = prev.IsSystem
		t.CreatedAt = prev.CreatedAt
		t.UpdatedAt = b.now().UTC()
		return putJSON(bk, []byte(t.ID), t)
	})
	return wrapStoreErr(err, "update threshold")
}

func (b *Bolt) DeleteThreshold(_ context.Context, id string) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(bucketThresholds)
		var t freight.Threshold
		ok, err := getJSON(bk, []byte(id), &t)
		if err != nil {
			return err
		}
		if !ok {
			return freight.E(freight.KindNotFound, "threshold %s", id)
		}
		if t.IsDefault {
			return freight.E(freight.KindDomain, "threshold %s is the default and cannot be deleted", id)
		}
		if t.IsSystem {
			return freight.E(freight.KindDomain, "threshold %s is a system threshold and cannot be deleted", id)
		}
		return bk.Delete([]byte(id))
	})
	return wrapStoreErr(err, "delete threshold")
}

func (b *Bolt) DefaultThreshold(_ context.Context) (*freight.Threshold, error) {
	var found *freight.Threshold
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketThresholds).ForEach(func(_, raw []byte) error {
			var t freight.Threshold
			if err := json.Unmarshal(raw, &t); err != nil {
				return err
			}
			if t.IsDefault {
				found = &t
			}
			return nil
		})
	})
	if err != nil {
		return nil, wrapStoreErr(err, "default threshold")
	}
	if found == nil {
		return nil, freight.E(freight.KindNotFound, "no default threshold configured")
	}
	return found, nil
}

// SetDefaultThreshold makes id the default and clears the previous default in
// the same transaction.
func (b *Bolt) SetDefaultThreshold(_ context.Context, id string) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(bucketThresholds)
		var t freight.Threshold
		ok, err := getJSON(bk, []byte(id), &t)
		if err != nil {
			return err
		}
		if !ok {
			return freight.E(freight.KindNotFound, "threshold %s", id)
		}
		if err := clearDefaultLocked(bk, id); err != nil {
			return err
		}
		t.IsDefault = true
		t.UpdatedAt = b.now().UTC()
		return putJSON(bk, []byte(id), &t)
	})
	return wrapStoreErr(err, "set default threshold")
}
