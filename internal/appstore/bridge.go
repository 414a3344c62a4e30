package appstore

import (
	"context"
	"fmt"
	"sync"
)

// Bridge relays an interactive purchase to the device and waits for
// the StoreKit outcome the app posts back. One purchase may be in
// flight per product at a time.
type Bridge struct {
	mu      sync.Mutex
	waiters map[string]chan PurchaseResult
	notify  func(productID string)
}

// NewBridge creates a Bridge. notify, if non-nil, is called when a
// purchase is requested so the UI can start the StoreKit flow; it must
// not block.
func NewBridge(notify func(productID string)) *Bridge {
	return &Bridge{
		waiters: make(map[string]chan PurchaseResult),
		notify:  notify,
	}
}

// Purchase requests a purchase of the product and blocks until the
// device posts the outcome or the context ends.
func (b *Bridge) Purchase(ctx context.Context, product Product) (PurchaseResult, error) {
	ch := make(chan PurchaseResult, 1)

	b.mu.Lock()
	if _, inFlight := b.waiters[product.ID]; inFlight {
		b.mu.Unlock()
		return PurchaseResult{}, fmt.Errorf("purchase already in flight for %s", product.ID)
	}
	b.waiters[product.ID] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.waiters, product.ID)
		b.mu.Unlock()
	}()

	if b.notify != nil {
		b.notify(product.ID)
	}

	select {
	case result := <-ch:
		return result, nil
	case <-ctx.Done():
		return PurchaseResult{}, fmt.Errorf("purchase %s: %w", product.ID, ctx.Err())
	}
}

// Complete delivers the device's outcome to the waiting purchase.
// It reports whether a purchase was waiting for the product.
func (b *Bridge) Complete(productID string, result PurchaseResult) bool {
	b.mu.Lock()
	ch, ok := b.waiters[productID]
	b.mu.Unlock()
	if !ok {
		return false
	}

	select {
	case ch <- result:
		return true
	default:
		// Waiter already satisfied
		return false
	}
}
