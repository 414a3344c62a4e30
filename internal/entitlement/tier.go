// Package entitlement determines what subscription tier the user
// currently holds and keeps that determination consistent as purchase
// and renewal events arrive from the App Store.
package entitlement

// Product identifiers of the Solarc Pro subscription group.
const (
	ProductProMonthly = "subscription.pro.monthly"
	ProductProYearly  = "subscription.pro.yearly"
)

// Tier is the ordered entitlement level derived from a purchased
// product identifier. Higher tiers include the benefits of lower ones,
// so plain integer comparison is the only operation reconciliation
// needs.
type Tier int

const (
	TierNone Tier = iota
	TierProMonthly
	TierProYearly
)

func (t Tier) String() string {
	switch t {
	case TierProMonthly:
		return "pro_monthly"
	case TierProYearly:
		return "pro_yearly"
	default:
		return "none"
	}
}

// TierFor maps a product identifier to its tier. Unrecognized
// identifiers grant nothing.
func TierFor(productID string) Tier {
	switch productID {
	case ProductProMonthly:
		return TierProMonthly
	case ProductProYearly:
		return TierProYearly
	default:
		return TierNone
	}
}

// ParseTier maps a wire name to a tier. Unrecognized names map to
// TierNone.
func ParseTier(s string) Tier {
	switch s {
	case "pro_monthly", "monthly":
		return TierProMonthly
	case "pro_yearly", "yearly":
		return TierProYearly
	default:
		return TierNone
	}
}

// ProductIDs lists every purchasable product identifier, used for
// catalog requests.
func ProductIDs() []string {
	return []string{ProductProMonthly, ProductProYearly}
}
