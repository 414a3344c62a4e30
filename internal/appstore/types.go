package appstore

import "time"

// Product is one purchasable subscription from the app's subscription
// group. StoreKit owns the canonical product metadata on-device; the
// service carries a configured mirror so it can resolve identifiers
// and rank tiers.
type Product struct {
	ID           string      `json:"id"`
	DisplayName  string      `json:"display_name"`
	Price        float64     `json:"price"`
	DisplayPrice string      `json:"display_price"`
	Period       string      `json:"period"` // "month" or "year"
	Offer        *IntroOffer `json:"offer,omitempty"`
}

// IntroOffer describes an introductory offer attached to a product.
type IntroOffer struct {
	PeriodValue int    `json:"period_value"`
	PeriodUnit  string `json:"period_unit"` // "day", "week", "month", "year"
}

// RevocationReason mirrors the App Store revocationReason codes.
type RevocationReason int

const (
	RevocationReasonOther          RevocationReason = 0
	RevocationReasonDeveloperIssue RevocationReason = 1
)

func (r RevocationReason) String() string {
	switch r {
	case RevocationReasonDeveloperIssue:
		return "developer_issue"
	case RevocationReasonOther:
		return "other"
	default:
		return "unspecified"
	}
}

// Transaction is the decoded payload of a signed transaction record.
type Transaction struct {
	TransactionID         string
	OriginalTransactionID string
	ProductID             string
	PurchaseDate          time.Time
	ExpiresDate           *time.Time
	RevocationDate        *time.Time
	RevocationReason      *RevocationReason
	IsUpgraded            bool
}

// Revoked reports whether the App Store has revoked this transaction
// (refund or family-sharing removal).
func (t *Transaction) Revoked() bool {
	return t.RevocationDate != nil
}

// ExpirationIntent mirrors the App Store expirationIntent codes on a
// renewal-info record.
type ExpirationIntent int

const (
	ExpirationIntentCanceled           ExpirationIntent = 1
	ExpirationIntentBillingError       ExpirationIntent = 2
	ExpirationIntentPriceIncrease      ExpirationIntent = 3
	ExpirationIntentProductUnavailable ExpirationIntent = 4
)

// RenewalInfo is the decoded payload of a signed renewal-info record.
type RenewalInfo struct {
	OriginalTransactionID  string
	CurrentProductID       string
	AutoRenewProductID     string
	WillAutoRenew          bool
	ExpirationIntent       *ExpirationIntent
	GracePeriodExpiresDate *time.Time
}

// SubscriptionState is the status of one subscription in the group.
// Values follow the App Store Server API status codes.
type SubscriptionState int

const (
	StateUnknown        SubscriptionState = 0
	StateSubscribed     SubscriptionState = 1
	StateExpired        SubscriptionState = 2
	StateInBillingRetry SubscriptionState = 3
	StateInGracePeriod  SubscriptionState = 4
	StateRevoked        SubscriptionState = 5
)

func (s SubscriptionState) String() string {
	switch s {
	case StateSubscribed:
		return "subscribed"
	case StateExpired:
		return "expired"
	case StateInBillingRetry:
		return "in_billing_retry"
	case StateInGracePeriod:
		return "in_grace_period"
	case StateRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// SignedRecord is a compact JWS as delivered by the App Store. The
// payload must not be trusted until it passes the Verifier.
type SignedRecord string

// SubscriptionStatus is one row of a subscription-group status query.
// Both embedded records stay signed; callers run them through the
// Verifier before reading their payloads.
type SubscriptionStatus struct {
	State             SubscriptionState
	SignedTransaction SignedRecord
	SignedRenewal     SignedRecord
}

// PurchaseState classifies the outcome of one StoreKit purchase.
type PurchaseState int

const (
	PurchaseStateUnknown       PurchaseState = 0
	PurchaseStateSuccess       PurchaseState = 1
	PurchaseStateUserCancelled PurchaseState = 2
	PurchaseStatePending       PurchaseState = 3
)

func (p PurchaseState) String() string {
	switch p {
	case PurchaseStateSuccess:
		return "success"
	case PurchaseStateUserCancelled:
		return "user_cancelled"
	case PurchaseStatePending:
		return "pending"
	default:
		return "unknown"
	}
}

// ParsePurchaseState maps the wire name of a purchase outcome to its
// state. Unrecognized names map to PurchaseStateUnknown.
func ParsePurchaseState(s string) PurchaseState {
	switch s {
	case "success":
		return PurchaseStateSuccess
	case "user_cancelled", "userCancelled":
		return PurchaseStateUserCancelled
	case "pending":
		return PurchaseStatePending
	default:
		return PurchaseStateUnknown
	}
}

// PurchaseResult is the outcome of one purchase round trip. The signed
// transaction is only present on success.
type PurchaseResult struct {
	State             PurchaseState
	SignedTransaction SignedRecord
}
