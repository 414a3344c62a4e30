package entitlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/dukerupert/solarc/internal/appstore"
)

// ErrProductNotAvailable is returned when a requested tier has no
// resolvable catalog entry. Recoverable by retrying after a catalog
// refresh.
var ErrProductNotAvailable = errors.New("no product available for tier")

// Flow drives catalog loading and interactive purchases against the
// commerce platform.
type Flow struct {
	commerce Commerce
	gate     Gate
	store    *Store
	logger   *slog.Logger

	mu      sync.RWMutex
	catalog []appstore.Product
	byID    map[string]appstore.Product
}

// NewFlow creates a Flow. The catalog is empty until RequestProducts
// succeeds.
func NewFlow(commerce Commerce, gate Gate, store *Store, logger *slog.Logger) *Flow {
	return &Flow{
		commerce: commerce,
		gate:     gate,
		store:    store,
		logger:   logger,
		byID:     make(map[string]appstore.Product),
	}
}

// RequestProducts fetches the subscription catalog. On failure the
// previous catalog stays in place; callers never see a partial one.
func (f *Flow) RequestProducts(ctx context.Context) error {
	products, err := f.commerce.Products(ctx, ProductIDs())
	if err != nil {
		return fmt.Errorf("request products: %w", err)
	}

	sort.Slice(products, func(i, j int) bool {
		return products[i].Price > products[j].Price
	})
	byID := make(map[string]appstore.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	f.mu.Lock()
	f.catalog = products
	f.byID = byID
	f.mu.Unlock()
	return nil
}

// Products returns the catalog sorted by descending price.
func (f *Flow) Products() []appstore.Product {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]appstore.Product, len(f.catalog))
	copy(out, f.catalog)
	return out
}

// Catalog returns the product lookup map used by reconciliation.
func (f *Flow) Catalog() map[string]appstore.Product {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]appstore.Product, len(f.byID))
	for id, p := range f.byID {
		out[id] = p
	}
	return out
}

// ProductFor resolves the catalog product for a tier.
func (f *Flow) ProductFor(tier Tier) (appstore.Product, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for id, p := range f.byID {
		if TierFor(id) == tier {
			return p, true
		}
	}
	return appstore.Product{}, false
}

// Purchase runs one interactive purchase for the tier and interprets
// the platform's outcome. A nil transaction with nil error means the
// user cancelled or the purchase is pending approval; that is a
// deferral, not a failure, and the entitlement set is untouched.
func (f *Flow) Purchase(ctx context.Context, tier Tier) (*appstore.Transaction, error) {
	product, ok := f.ProductFor(tier)
	if !ok {
		return nil, ErrProductNotAvailable
	}

	result, err := f.commerce.Purchase(ctx, product)
	if err != nil {
		return nil, fmt.Errorf("purchase %s: %w", product.ID, err)
	}

	switch result.State {
	case appstore.PurchaseStateSuccess:
		tx, err := f.gate.VerifyTransaction(result.SignedTransaction)
		if err != nil {
			return nil, err
		}
		// A fresh successful purchase never carries a revocation, so
		// Apply always inserts here.
		f.store.Apply(tx)
		if err := f.commerce.Finish(ctx, tx); err != nil {
			f.logger.Error("finish purchased transaction", "transaction_id", tx.TransactionID, "error", err)
		}
		return tx, nil
	case appstore.PurchaseStateUserCancelled, appstore.PurchaseStatePending:
		// Account verification or parental approval may still be in
		// progress; the listener will deliver the transaction if the
		// purchase completes later.
		return nil, nil
	default:
		return nil, nil
	}
}

// IsPurchased reports whether the latest finished transaction for the
// product still grants it. Revoked transactions no longer count, and
// neither do transactions superseded by an upgrade, since the higher
// tier has its own transaction.
func (f *Flow) IsPurchased(ctx context.Context, productID string) (bool, error) {
	tx, err := f.commerce.Latest(ctx, productID)
	if err != nil {
		return false, fmt.Errorf("latest transaction for %s: %w", productID, err)
	}
	if tx == nil {
		return false, nil
	}
	return !tx.Revoked() && !tx.IsUpgraded, nil
}
