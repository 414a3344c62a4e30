package entitlement

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/dukerupert/solarc/internal/appstore"
)

// fakeCommerce is a scriptable Commerce for driving the core in tests.
type fakeCommerce struct {
	mu sync.Mutex

	products    []appstore.Product
	productsErr error

	purchaseResult appstore.PurchaseResult
	purchaseErr    error

	statuses    []appstore.SubscriptionStatus
	statusesErr error

	latest    map[string]*appstore.Transaction
	latestErr error

	finishErr error
	finished  []string
	finishCh  chan string

	updates chan appstore.SignedRecord
}

func newFakeCommerce() *fakeCommerce {
	return &fakeCommerce{
		latest:   make(map[string]*appstore.Transaction),
		finishCh: make(chan string, 16),
		updates:  make(chan appstore.SignedRecord, 16),
	}
}

func (f *fakeCommerce) Products(ctx context.Context, ids []string) ([]appstore.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.productsErr != nil {
		return nil, f.productsErr
	}
	out := make([]appstore.Product, len(f.products))
	copy(out, f.products)
	return out, nil
}

func (f *fakeCommerce) Purchase(ctx context.Context, product appstore.Product) (appstore.PurchaseResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.purchaseErr != nil {
		return appstore.PurchaseResult{}, f.purchaseErr
	}
	return f.purchaseResult, nil
}

func (f *fakeCommerce) Statuses(ctx context.Context) ([]appstore.SubscriptionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses, f.statusesErr
}

func (f *fakeCommerce) Finish(ctx context.Context, tx *appstore.Transaction) error {
	f.mu.Lock()
	err := f.finishErr
	if err == nil {
		f.finished = append(f.finished, tx.TransactionID)
	}
	f.mu.Unlock()
	if err == nil {
		f.finishCh <- tx.TransactionID
	}
	return err
}

func (f *fakeCommerce) Updates(ctx context.Context) <-chan appstore.SignedRecord {
	return f.updates
}

func (f *fakeCommerce) Latest(ctx context.Context, productID string) (*appstore.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latestErr != nil {
		return nil, f.latestErr
	}
	return f.latest[productID], nil
}

func (f *fakeCommerce) finishedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.finished))
	copy(out, f.finished)
	return out
}

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(nil, slog.Default())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func testCatalog() []appstore.Product {
	return appstore.DefaultCatalog()
}
