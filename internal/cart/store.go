// Package cart holds the authoritative in-memory cart state. Every mutation
// is applied optimistically for zero-latency reads, then confirmed against
// the order backend; confirmed failures roll back and preserve the attempted
// state for user-initiated recovery.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	ordersync "github.com/harvestly/cart-engine/internal/sync"
	"github.com/harvestly/cart-engine/pkg/keyval"
	"github.com/harvestly/cart-engine/pkg/logger"
	"github.com/harvestly/cart-engine/pkg/metrics"
)

// sessionKey holds the confirmed cart used for session rehydration.
const sessionKey = "cart"

// BackupReasonError marks snapshots preserved after a failed confirmation.
const BackupReasonError = "error"

// Syncer confirms mutations with the order backend and owns retry
// scheduling for them.
type Syncer interface {
	Confirm(ctx context.Context, m ordersync.Mutation) ordersync.Outcome
	CancelPending(productID string)
	CancelAll()
}

// BackupKeeper persists recovery snapshots. Implementations are best-effort;
// the store logs and swallows their failures.
type BackupKeeper interface {
	Preserve(ctx context.Context, items []Item, reason string) error
	Restore(ctx context.Context) ([]Item, error)
	Has(ctx context.Context) (bool, error)
	Clear(ctx context.Context) error
}

type StoreParams struct {
	Syncer  Syncer
	Backup  BackupKeeper
	Session keyval.Store
	Logger  *logger.Logger
	Metrics *metrics.CartMetrics
}

// Store is the single writer of cart state. Mutations for the same product
// run strictly in submission order; different products proceed
// independently. Clear excludes everything else.
type Store struct {
	syncer Syncer
	backup BackupKeeper
	kv     keyval.Store
	logg   *logger.Logger
	met    *metrics.CartMetrics

	gate sync.RWMutex

	mu          sync.Mutex
	items       []Item
	index       map[string]int
	lanes       map[string]*lane
	inflight    int
	lastError   string
	subscribers []func(Snapshot)
}

func NewStore(ctx context.Context, params StoreParams) (*Store, error) {
	if params.Syncer == nil {
		return nil, errors.New("syncer is required")
	}
	if params.Backup == nil {
		return nil, errors.New("backup keeper is required")
	}
	if params.Session == nil {
		return nil, errors.New("session store is required")
	}

	s := &Store{
		syncer: params.Syncer,
		backup: params.Backup,
		kv:     params.Session,
		logg:   params.Logger,
		met:    params.Metrics,
		items:  []Item{},
		index:  map[string]int{},
		lanes:  map[string]*lane{},
	}
	s.hydrate(ctx)
	return s, nil
}

// hydrate restores the confirmed cart from a prior session. Corrupt or
// missing payloads read as an empty cart.
func (s *Store) hydrate(ctx context.Context) {
	raw, err := s.kv.Get(ctx, sessionKey)
	if err != nil {
		if !errors.Is(err, keyval.ErrNotFound) && s.logg != nil {
			s.logg.Warn(ctx, "session cart unreadable, starting empty")
		}
		return
	}
	var stored []Item
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		if s.logg != nil {
			s.logg.Warn(ctx, "session cart corrupt, starting empty")
		}
		return
	}
	for _, item := range stored {
		if !validItem(item) || item.Quantity < 1 {
			continue
		}
		s.index[item.ProductID] = len(s.items)
		s.items = append(s.items, item)
	}
}

// State returns the current read model.
func (s *Store) State() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn to run after every state settle. Callbacks run on
// the mutating goroutine and must not call back into the store.
func (s *Store) Subscribe(fn func(Snapshot)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// AddItem inserts a product or merges quantity into an existing line,
// clamped to min(stock, 99). Returns false without touching state when the
// request is invalid or the resulting quantity would be below one.
func (s *Store) AddItem(ctx context.Context, item Item, quantity int) bool {
	if quantity < 1 || !validItem(item) {
		return false
	}

	s.syncer.CancelPending(item.ProductID)
	s.gate.RLock()
	defer s.gate.RUnlock()
	s.acquireLane(item.ProductID)
	defer s.releaseLane(item.ProductID)

	s.mu.Lock()
	prev := s.productSnapshotLocked(item.ProductID)
	prevQty := 0
	target := 0
	if prev.exists {
		prevQty = prev.item.Quantity
		target = clampQuantity(prevQty+quantity, prev.item.MaxQuantity())
	} else {
		target = clampQuantity(quantity, item.MaxQuantity())
	}
	if target < 1 {
		s.mu.Unlock()
		return false
	}
	if target == prevQty {
		// Already at the line cap; nothing to confirm.
		s.mu.Unlock()
		return true
	}

	if prev.exists {
		s.items[prev.index].Quantity = target
	} else {
		inserted := item
		inserted.Quantity = target
		s.index[inserted.ProductID] = len(s.items)
		s.items = append(s.items, inserted)
	}
	s.inflight++
	s.mu.Unlock()
	s.notify()

	m := ordersync.Mutation{Kind: ordersync.KindAdd, ProductID: item.ProductID, Quantity: target - prevQty}
	return s.settle(ctx, m, func() {
		s.rollbackProductLocked(item.ProductID, prev)
	})
}

// UpdateQuantity sets an existing line to quantity. Absent products and
// unchanged values succeed without a network call; out-of-range quantities
// fail locally.
func (s *Store) UpdateQuantity(ctx context.Context, productID string, quantity int) bool {
	s.syncer.CancelPending(productID)
	s.gate.RLock()
	defer s.gate.RUnlock()
	s.acquireLane(productID)
	defer s.releaseLane(productID)

	s.mu.Lock()
	prev := s.productSnapshotLocked(productID)
	if !prev.exists {
		s.mu.Unlock()
		return true
	}
	if quantity < 1 || quantity > prev.item.MaxQuantity() {
		s.mu.Unlock()
		return false
	}
	if quantity == prev.item.Quantity {
		s.mu.Unlock()
		return true
	}

	s.items[prev.index].Quantity = quantity
	s.inflight++
	s.mu.Unlock()
	s.notify()

	m := ordersync.Mutation{Kind: ordersync.KindUpdate, ProductID: productID, Quantity: quantity}
	return s.settle(ctx, m, func() {
		s.rollbackProductLocked(productID, prev)
	})
}

// RemoveItem deletes a line. Removing an absent product succeeds trivially.
func (s *Store) RemoveItem(ctx context.Context, productID string) bool {
	s.syncer.CancelPending(productID)
	s.gate.RLock()
	defer s.gate.RUnlock()
	s.acquireLane(productID)
	defer s.releaseLane(productID)

	s.mu.Lock()
	prev := s.productSnapshotLocked(productID)
	if !prev.exists {
		s.mu.Unlock()
		return true
	}

	s.items = append(s.items[:prev.index], s.items[prev.index+1:]...)
	s.rebuildIndexLocked()
	s.inflight++
	s.mu.Unlock()
	s.notify()

	m := ordersync.Mutation{Kind: ordersync.KindRemove, ProductID: productID}
	return s.settle(ctx, m, func() {
		s.rollbackProductLocked(productID, prev)
	})
}

// Clear empties the cart. It cancels every pending retry and waits for
// in-flight mutations to settle before applying.
func (s *Store) Clear(ctx context.Context) bool {
	s.syncer.CancelAll()
	s.gate.Lock()
	defer s.gate.Unlock()

	s.mu.Lock()
	if len(s.items) == 0 {
		s.mu.Unlock()
		return true
	}
	prevItems := s.items
	prevIndex := s.index
	s.items = []Item{}
	s.index = map[string]int{}
	s.inflight++
	s.mu.Unlock()
	s.notify()

	return s.settle(ctx, ordersync.Mutation{Kind: ordersync.KindClear}, func() {
		s.items = prevItems
		s.index = prevIndex
	})
}

// ClearError dismisses the surfaced failure without touching items.
func (s *Store) ClearError() {
	s.mu.Lock()
	s.lastError = ""
	s.mu.Unlock()
	s.notify()
}

// HasBackup reports whether a recovery snapshot exists.
func (s *Store) HasBackup(ctx context.Context) bool {
	ok, err := s.backup.Has(ctx)
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(ctx, "backup existence check failed")
		}
		return false
	}
	return ok
}

// RecoverCart replaces the cart wholesale with the preserved snapshot,
// recomputes totals and clears the backup. Returns false when no snapshot
// exists.
func (s *Store) RecoverCart(ctx context.Context) bool {
	restored, err := s.backup.Restore(ctx)
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(ctx, "backup restore failed")
		}
		return false
	}
	if restored == nil {
		return false
	}

	s.gate.Lock()
	defer s.gate.Unlock()

	s.mu.Lock()
	s.items = cloneItems(restored)
	s.rebuildIndexLocked()
	s.lastError = ""
	items := cloneItems(s.items)
	s.mu.Unlock()

	if err := s.backup.Clear(ctx); err != nil && s.logg != nil {
		s.logg.Warn(ctx, "clearing consumed backup failed")
	}
	s.persistSession(ctx, items)
	s.met.IncRecovery()
	s.notify()
	return true
}

// Close cancels pending retries. An in-flight confirmation already on the
// wire is allowed to land; this session just won't observe it.
func (s *Store) Close() {
	s.syncer.CancelAll()
}

// settle blocks through confirmation and finalizes the optimistic state.
// rollback runs under the state lock when the mutation ultimately fails.
func (s *Store) settle(ctx context.Context, m ordersync.Mutation, rollback func()) bool {
	start := time.Now()
	outcome := s.syncer.Confirm(ctx, m)
	s.met.ObserveSyncDuration(string(m.Kind), time.Since(start))

	s.mu.Lock()
	s.inflight--

	switch outcome.Status {
	case ordersync.StatusConfirmed:
		items := cloneItems(s.items)
		s.mu.Unlock()
		s.persistSession(ctx, items)
		s.notify()
		return true

	case ordersync.StatusCanceled:
		// Superseded by a newer mutation for the same product. The newer
		// intent owns the state now; no rollback, no surfaced error.
		s.mu.Unlock()
		s.notify()
		return false

	default:
		attempted := cloneItems(s.items)
		rollback()
		s.lastError = outcome.Reason
		s.mu.Unlock()

		s.met.IncRollback(string(m.Kind))
		if err := s.backup.Preserve(ctx, attempted, BackupReasonError); err != nil && s.logg != nil {
			s.logg.Warn(ctx, "preserving attempted cart state failed")
		}
		s.notify()
		return false
	}
}

// persistSession writes the confirmed cart for rehydration; best-effort.
func (s *Store) persistSession(ctx context.Context, items []Item) {
	data, err := json.Marshal(items)
	if err == nil {
		err = s.kv.Set(ctx, sessionKey, string(data))
	}
	if err != nil && s.logg != nil {
		s.logg.Warn(ctx, "persisting session cart failed")
	}
}

func (s *Store) notify() {
	s.mu.Lock()
	snapshot := s.snapshotLocked()
	subscribers := make([]func(Snapshot), len(s.subscribers))
	copy(subscribers, s.subscribers)
	s.mu.Unlock()

	for _, fn := range subscribers {
		fn(snapshot)
	}
}

func (s *Store) snapshotLocked() Snapshot {
	totalItems, totalAmount := computeTotals(s.items)
	return Snapshot{
		Items:       cloneItems(s.items),
		TotalItems:  totalItems,
		TotalAmount: totalAmount,
		IsLoading:   s.inflight > 0,
		LastError:   s.lastError,
	}
}

type productSnapshot struct {
	exists bool
	index  int
	item   Item
}

func (s *Store) productSnapshotLocked(productID string) productSnapshot {
	idx, ok := s.index[productID]
	if !ok {
		return productSnapshot{}
	}
	return productSnapshot{exists: true, index: idx, item: s.items[idx]}
}

// rollbackProductLocked restores a single product line to its pre-mutation
// shape. Other lines keep whatever state their own mutations settled into.
func (s *Store) rollbackProductLocked(productID string, prev productSnapshot) {
	idx, present := s.index[productID]
	switch {
	case prev.exists && present:
		s.items[idx] = prev.item
	case prev.exists && !present:
		at := prev.index
		if at > len(s.items) {
			at = len(s.items)
		}
		s.items = append(s.items[:at], append([]Item{prev.item}, s.items[at:]...)...)
		s.rebuildIndexLocked()
	case !prev.exists && present:
		s.items = append(s.items[:idx], s.items[idx+1:]...)
		s.rebuildIndexLocked()
	}
}

func (s *Store) rebuildIndexLocked() {
	s.index = make(map[string]int, len(s.items))
	for i, item := range s.items {
		s.index[item.ProductID] = i
	}
}

func clampQuantity(quantity, max int) int {
	if quantity > max {
		return max
	}
	return quantity
}

// lane is a FIFO queue giving each product strict submission-order
// execution.
type lane struct {
	busy    bool
	waiters []chan struct{}
}

func (s *Store) acquireLane(key string) {
	s.mu.Lock()
	ln, ok := s.lanes[key]
	if !ok {
		ln = &lane{}
		s.lanes[key] = ln
	}
	if !ln.busy {
		ln.busy = true
		s.mu.Unlock()
		return
	}
	ch := make(chan struct{})
	ln.waiters = append(ln.waiters, ch)
	s.mu.Unlock()
	<-ch
}

func (s *Store) releaseLane(key string) {
	s.mu.Lock()
	ln, ok := s.lanes[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	if len(ln.waiters) > 0 {
		next := ln.waiters[0]
		ln.waiters = ln.waiters[1:]
		s.mu.Unlock()
		close(next)
		return
	}
	delete(s.lanes, key)
	s.mu.Unlock()
}
