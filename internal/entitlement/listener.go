package entitlement

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dukerupert/solarc/internal/appstore"
)

// ListenerState is the listener lifecycle state.
type ListenerState int32

const (
	ListenerStopped ListenerState = iota
	ListenerRunning
	ListenerCancelled
)

func (s ListenerState) String() string {
	switch s {
	case ListenerRunning:
		return "running"
	case ListenerCancelled:
		return "cancelled"
	default:
		return "stopped"
	}
}

// Notice reports a revoked transaction seen on the update feed. It is
// informational: the entitlement removal happens in the apply step
// regardless.
type Notice struct {
	ProductID     string
	TransactionID string
	RevokedAt     time.Time
	Reason        appstore.RevocationReason
}

// Listener consumes the live transaction-update feed and keeps the
// entitlement store in sync with out-of-band renewals, revocations,
// and refunds. Start it as close to process start as possible so no
// updates are missed.
type Listener struct {
	commerce Commerce
	gate     Gate
	store    *Store
	onNotice func(Notice)
	logger   *slog.Logger

	state  atomic.Int32
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewListener creates a Listener. onNotice, if non-nil, is called for
// every revocation carrying a reason; it runs on the listener
// goroutine and must not block.
func NewListener(commerce Commerce, gate Gate, store *Store, onNotice func(Notice), logger *slog.Logger) *Listener {
	return &Listener{
		commerce: commerce,
		gate:     gate,
		store:    store,
		onNotice: onNotice,
		logger:   logger,
	}
}

// State returns the current lifecycle state.
func (l *Listener) State() ListenerState {
	return ListenerState(l.state.Load())
}

// Start begins consuming the feed. A listener runs at most once:
// starting a running or cancelled listener is an error.
func (l *Listener) Start(ctx context.Context) error {
	if !l.state.CompareAndSwap(int32(ListenerStopped), int32(ListenerRunning)) {
		return errors.New("listener already started")
	}

	l.mu.Lock()
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})
	l.mu.Unlock()

	go l.run(ctx)
	return nil
}

// Stop cancels the listener and waits for the in-flight record, if
// any, to finish processing. Cancellation takes effect at the next
// suspension point: a record being processed completes its
// apply-then-finish sequence before the loop exits.
func (l *Listener) Stop() {
	l.mu.Lock()
	cancel := l.cancel
	done := l.done
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (l *Listener) run(ctx context.Context) {
	defer close(l.done)
	defer l.state.Store(int32(ListenerCancelled))

	updates := l.commerce.Updates(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-updates:
			if !ok {
				return
			}
			l.process(ctx, rec)
		}
	}
}

// process runs one record through the gate, applies it, and finishes
// it. Mutation strictly precedes acknowledgment so a crash in between
// is repaired by redelivery (applies are idempotent).
func (l *Listener) process(ctx context.Context, rec appstore.SignedRecord) {
	tx, err := l.gate.VerifyTransaction(rec)
	if err != nil {
		// The platform produced a receipt it could parse but we could
		// not verify. Don't deliver content; keep the loop alive.
		l.logger.Warn("dropping unverifiable transaction record", "error", err)
		return
	}

	if tx.RevocationDate != nil && tx.RevocationReason != nil {
		notice := Notice{
			ProductID:     tx.ProductID,
			TransactionID: tx.TransactionID,
			RevokedAt:     *tx.RevocationDate,
			Reason:        *tx.RevocationReason,
		}
		l.logger.Info("transaction revoked",
			"product_id", tx.ProductID,
			"revoked_at", tx.RevocationDate,
			"reason", tx.RevocationReason.String(),
		)
		if l.onNotice != nil {
			l.onNotice(notice)
		}
	}

	l.store.Apply(tx)

	if err := l.commerce.Finish(ctx, tx); err != nil {
		l.logger.Error("finish transaction", "transaction_id", tx.TransactionID, "error", err)
	}
}
