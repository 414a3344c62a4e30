package entitlement

import (
	"log/slog"
	"time"

	"github.com/dukerupert/solarc/internal/appstore"
)

// Plan is the single winning subscription selected from a status
// snapshot, ready for display. Nil means the user has no qualifying
// subscription.
type Plan struct {
	ProductID              string
	Tier                   Tier
	State                  appstore.SubscriptionState
	WillAutoRenew          bool
	AutoRenewProductID     string
	ExpiresDate            *time.Time
	ExpirationIntent       *appstore.ExpirationIntent
	GracePeriodExpiresDate *time.Time
}

// Reconciler reduces a subscription-group status snapshot to the one
// plan worth showing. It is read-only: reconciliation never touches the
// entitlement store.
type Reconciler struct {
	gate   Gate
	logger *slog.Logger
}

func NewReconciler(gate Gate, logger *slog.Logger) *Reconciler {
	return &Reconciler{gate: gate, logger: logger}
}

// Reconcile picks the highest-tier qualifying subscription from the
// snapshot. A status qualifies when it is not expired or revoked, its
// renewal info verifies, and its current product resolves in the
// catalog. Unqualified statuses are skipped individually; one bad entry
// never poisons the rest. Ties on tier keep the first qualifying
// status seen, so the result is deterministic for a fixed input order.
func (r *Reconciler) Reconcile(statuses []appstore.SubscriptionStatus, catalog map[string]appstore.Product) *Plan {
	var best *Plan
	for _, status := range statuses {
		plan := r.qualify(status, catalog)
		if plan == nil {
			continue
		}
		if best == nil || plan.Tier > best.Tier {
			best = plan
		}
	}
	return best
}

func (r *Reconciler) qualify(status appstore.SubscriptionStatus, catalog map[string]appstore.Product) *Plan {
	switch status.State {
	case appstore.StateExpired, appstore.StateRevoked:
		return nil
	}

	renewal, err := r.gate.VerifyRenewalInfo(status.SignedRenewal)
	if err != nil {
		r.logger.Warn("skipping status with unverifiable renewal info", "error", err)
		return nil
	}

	product, ok := catalog[renewal.CurrentProductID]
	if !ok {
		r.logger.Warn("skipping status with unknown product", "product_id", renewal.CurrentProductID)
		return nil
	}

	plan := &Plan{
		ProductID:              product.ID,
		Tier:                   TierFor(product.ID),
		State:                  status.State,
		WillAutoRenew:          renewal.WillAutoRenew,
		AutoRenewProductID:     renewal.AutoRenewProductID,
		ExpirationIntent:       renewal.ExpirationIntent,
		GracePeriodExpiresDate: renewal.GracePeriodExpiresDate,
	}

	// The transaction record only supplies display detail. Its absence
	// or failure does not disqualify the status.
	if status.SignedTransaction != "" {
		if tx, err := r.gate.VerifyTransaction(status.SignedTransaction); err == nil {
			plan.ExpiresDate = tx.ExpiresDate
		}
	}
	return plan
}
