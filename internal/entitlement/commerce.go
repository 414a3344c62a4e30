package entitlement

import (
	"context"

	"github.com/dukerupert/solarc/internal/appstore"
)

// Commerce is the platform collaborator the entitlement core drives.
// It never re-derives financial truth: purchase outcomes and status
// reports come from the platform and are only interpreted here.
type Commerce interface {
	// Products fetches catalog entries for the given identifiers.
	Products(ctx context.Context, ids []string) ([]appstore.Product, error)

	// Purchase runs one interactive purchase round trip.
	Purchase(ctx context.Context, product appstore.Product) (appstore.PurchaseResult, error)

	// Statuses fetches the current subscription-group status snapshot.
	Statuses(ctx context.Context) ([]appstore.SubscriptionStatus, error)

	// Finish acknowledges a transaction after it has been applied to
	// the entitlement store, preventing redelivery.
	Finish(ctx context.Context, tx *appstore.Transaction) error

	// Updates is the live feed of out-of-band transaction records
	// (renewals, revocations, refunds).
	Updates(ctx context.Context) <-chan appstore.SignedRecord

	// Latest returns the most recent finished transaction for a
	// product, or nil when it has never been purchased.
	Latest(ctx context.Context, productID string) (*appstore.Transaction, error)
}

// Gate validates signed records before the core trusts their payloads.
// A failure is terminal for the record: it is logged and dropped, never
// retried.
type Gate interface {
	VerifyTransaction(rec appstore.SignedRecord) (*appstore.Transaction, error)
	VerifyRenewalInfo(rec appstore.SignedRecord) (*appstore.RenewalInfo, error)
}
