package entitlement

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/dukerupert/solarc/internal/appstore"
)

// Ledger persists entitlement mutations so the purchased set survives
// restarts. A nil Ledger keeps the set in memory only.
type Ledger interface {
	Insert(productID string) error
	Remove(productID string) error
	List() ([]string, error)
}

// Event describes one entitlement change delivered to subscribers.
type Event struct {
	ProductID string
	Purchased bool // false means the product left the set
}

// Store holds the set of currently purchased product identifiers. It
// is the only writer of entitlement state; the UI collaborator reads
// snapshots and change events. Mutations are atomic and idempotent,
// and subscribers observe each mutation before the triggering
// transaction is acknowledged, so redelivery after a crash is safe.
type Store struct {
	mu        sync.RWMutex
	purchased map[string]struct{}
	subs      map[int]func(Event)
	nextSub   int
	ledger    Ledger
	logger    *slog.Logger
}

// NewStore creates a Store, loading any previously persisted
// entitlements from the ledger.
func NewStore(ledger Ledger, logger *slog.Logger) (*Store, error) {
	s := &Store{
		purchased: make(map[string]struct{}),
		subs:      make(map[int]func(Event)),
		ledger:    ledger,
		logger:    logger,
	}
	if ledger != nil {
		ids, err := ledger.List()
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			s.purchased[id] = struct{}{}
		}
	}
	return s, nil
}

// Insert adds the product to the purchased set. Inserting a product
// already present is a no-op.
func (s *Store) Insert(productID string) {
	s.mu.Lock()
	if _, ok := s.purchased[productID]; ok {
		s.mu.Unlock()
		return
	}
	s.purchased[productID] = struct{}{}
	subs := s.subscribers()
	s.mu.Unlock()

	if s.ledger != nil {
		if err := s.ledger.Insert(productID); err != nil {
			s.logger.Error("persist entitlement insert", "product_id", productID, "error", err)
		}
	}
	notify(subs, Event{ProductID: productID, Purchased: true})
}

// Remove takes the product out of the purchased set. Removing a
// product not present is a no-op.
func (s *Store) Remove(productID string) {
	s.mu.Lock()
	if _, ok := s.purchased[productID]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.purchased, productID)
	subs := s.subscribers()
	s.mu.Unlock()

	if s.ledger != nil {
		if err := s.ledger.Remove(productID); err != nil {
			s.logger.Error("persist entitlement remove", "product_id", productID, "error", err)
		}
	}
	notify(subs, Event{ProductID: productID, Purchased: false})
}

// Apply records a transaction outcome: revoked transactions leave the
// set, everything else enters it.
func (s *Store) Apply(tx *appstore.Transaction) {
	if tx.Revoked() {
		s.Remove(tx.ProductID)
	} else {
		s.Insert(tx.ProductID)
	}
}

// Contains reports whether the product is currently purchased.
func (s *Store) Contains(productID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.purchased[productID]
	return ok
}

// Snapshot returns the purchased product identifiers, sorted.
func (s *Store) Snapshot() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.purchased))
	for id := range s.purchased {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// HighestTier returns the best tier among the purchased products.
func (s *Store) HighestTier() Tier {
	s.mu.RLock()
	defer s.mu.RUnlock()

	best := TierNone
	for id := range s.purchased {
		if t := TierFor(id); t > best {
			best = t
		}
	}
	return best
}

// Subscribe registers fn to be called synchronously on every mutation.
// The returned function cancels the subscription.
func (s *Store) Subscribe(fn func(Event)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// subscribers snapshots the callback list; callers must hold mu.
func (s *Store) subscribers() []func(Event) {
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	return fns
}

func notify(subs []func(Event), ev Event) {
	for _, fn := range subs {
		fn(ev)
	}
}
