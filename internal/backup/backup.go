// Package backup preserves a single best-effort cart snapshot for
// user-initiated recovery. It is a recovery aid, never a source of truth:
// write failures are logged and swallowed, corrupt payloads read as absent.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/harvestly/cart-engine/internal/cart"
	"github.com/harvestly/cart-engine/pkg/keyval"
	"github.com/harvestly/cart-engine/pkg/logger"
	"github.com/harvestly/cart-engine/pkg/metrics"
)

// backupKey holds the serialized snapshot. One snapshot per session;
// overwrite semantics, last write wins across sessions.
const backupKey = "cart_backup"

const (
	// ReasonError marks snapshots taken when a confirmation failed.
	ReasonError = "error"
	// ReasonBoundary marks snapshots taken by the render fault boundary.
	ReasonBoundary = "boundary"
)

// Snapshot is the persisted form. Items are opaque to the storage layer.
type Snapshot struct {
	Items      []cart.Item `json:"items"`
	CapturedAt time.Time   `json:"capturedAt"`
	Reason     string      `json:"reason"`
}

type Store struct {
	kv   keyval.Store
	logg *logger.Logger
	met  *metrics.CartMetrics
	now  func() time.Time
}

func NewStore(kv keyval.Store, logg *logger.Logger, met *metrics.CartMetrics) (*Store, error) {
	if kv == nil {
		return nil, errors.New("key-value store is required")
	}
	return &Store{kv: kv, logg: logg, met: met, now: time.Now}, nil
}

// Preserve overwrites the current snapshot with items. The returned error is
// informational; callers are expected to log and move on.
func (s *Store) Preserve(ctx context.Context, items []cart.Item, reason string) error {
	snapshot := Snapshot{
		Items:      items,
		CapturedAt: s.now().UTC(),
		Reason:     reason,
	}
	data, err := json.Marshal(snapshot)
	if err == nil {
		err = s.kv.Set(ctx, backupKey, string(data))
	}
	if err != nil {
		s.met.IncBackup("preserve", "error")
		if s.logg != nil {
			s.logg.Error(ctx, "writing cart backup failed", err)
		}
		return err
	}
	s.met.IncBackup("preserve", "ok")
	return nil
}

// Restore returns the snapshot's items, or nil when no usable snapshot
// exists. Corrupt payloads are treated as absent, not as an error.
func (s *Store) Restore(ctx context.Context) ([]cart.Item, error) {
	raw, err := s.kv.Get(ctx, backupKey)
	if err != nil {
		if errors.Is(err, keyval.ErrNotFound) {
			return nil, nil
		}
		s.met.IncBackup("restore", "error")
		return nil, err
	}

	var snapshot Snapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		if s.logg != nil {
			s.logg.Warn(ctx, "cart backup corrupt, treating as absent")
		}
		s.met.IncBackup("restore", "corrupt")
		return nil, nil
	}
	s.met.IncBackup("restore", "ok")
	if snapshot.Items == nil {
		return []cart.Item{}, nil
	}
	return snapshot.Items, nil
}

// Has checks for a snapshot without deserializing the payload.
func (s *Store) Has(ctx context.Context) (bool, error) {
	return s.kv.Has(ctx, backupKey)
}

// Clear removes the snapshot; called after a successful recovery.
func (s *Store) Clear(ctx context.Context) error {
	return s.kv.Del(ctx, backupKey)
}
