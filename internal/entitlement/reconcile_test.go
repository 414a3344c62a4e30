package entitlement

import (
	"crypto/ecdsa"
	"log/slog"
	"testing"
	"time"

	"github.com/dukerupert/solarc/internal/appstore"
	"github.com/dukerupert/solarc/internal/appstore/appstoretest"
)

func catalogMap() map[string]appstore.Product {
	m := make(map[string]appstore.Product)
	for _, p := range testCatalog() {
		m[p.ID] = p
	}
	return m
}

func statusFor(t *testing.T, key *ecdsa.PrivateKey, state appstore.SubscriptionState, productID string, willRenew bool) appstore.SubscriptionStatus {
	t.Helper()
	expires := time.Now().UTC().Add(7 * 24 * time.Hour)
	return appstore.SubscriptionStatus{
		State: state,
		SignedTransaction: appstoretest.SignTransaction(t, key, appstoretest.TransactionRecord{
			TransactionID:         "tx-" + productID,
			OriginalTransactionID: "orig-1",
			ProductID:             productID,
			PurchaseDate:          time.Now().UTC().Add(-24 * time.Hour),
			ExpiresDate:           &expires,
		}),
		SignedRenewal: appstoretest.SignRenewalInfo(t, key, appstoretest.RenewalRecord{
			OriginalTransactionID: "orig-1",
			CurrentProductID:      productID,
			WillAutoRenew:         willRenew,
		}),
	}
}

func TestReconcileEmptySnapshot(t *testing.T) {
	key := appstoretest.GenerateKey(t)
	r := NewReconciler(appstore.NewVerifier(&key.PublicKey), slog.Default())

	if plan := r.Reconcile(nil, catalogMap()); plan != nil {
		t.Fatalf("plan = %+v, want nil for empty snapshot", plan)
	}
}

func TestReconcileSkipsExpiredAndRevoked(t *testing.T) {
	key := appstoretest.GenerateKey(t)
	r := NewReconciler(appstore.NewVerifier(&key.PublicKey), slog.Default())

	statuses := []appstore.SubscriptionStatus{
		statusFor(t, key, appstore.StateExpired, ProductProYearly, false),
		statusFor(t, key, appstore.StateRevoked, ProductProYearly, false),
	}
	if plan := r.Reconcile(statuses, catalogMap()); plan != nil {
		t.Fatalf("plan = %+v, want nil (all statuses disqualified)", plan)
	}
}

func TestReconcilePicksSubscribed(t *testing.T) {
	key := appstoretest.GenerateKey(t)
	r := NewReconciler(appstore.NewVerifier(&key.PublicKey), slog.Default())

	statuses := []appstore.SubscriptionStatus{
		statusFor(t, key, appstore.StateSubscribed, ProductProMonthly, true),
	}
	plan := r.Reconcile(statuses, catalogMap())
	if plan == nil {
		t.Fatal("expected a plan")
	}
	if plan.ProductID != ProductProMonthly || plan.Tier != TierProMonthly {
		t.Errorf("plan = %+v", plan)
	}
	if !plan.WillAutoRenew {
		t.Error("expected will_auto_renew from renewal info")
	}
	if plan.ExpiresDate == nil {
		t.Error("expected expires date from transaction detail")
	}
}

func TestReconcileHighestTierWins(t *testing.T) {
	key := appstoretest.GenerateKey(t)
	r := NewReconciler(appstore.NewVerifier(&key.PublicKey), slog.Default())

	statuses := []appstore.SubscriptionStatus{
		statusFor(t, key, appstore.StateSubscribed, ProductProMonthly, true),
		statusFor(t, key, appstore.StateInGracePeriod, ProductProYearly, true),
	}
	plan := r.Reconcile(statuses, catalogMap())
	if plan == nil || plan.Tier != TierProYearly {
		t.Fatalf("plan = %+v, want yearly tier", plan)
	}
	if plan.State != appstore.StateInGracePeriod {
		t.Errorf("state = %v, want grace period carried through", plan.State)
	}
}

func TestReconcileTieKeepsFirst(t *testing.T) {
	key := appstoretest.GenerateKey(t)
	r := NewReconciler(appstore.NewVerifier(&key.PublicKey), slog.Default())

	first := statusFor(t, key, appstore.StateSubscribed, ProductProMonthly, true)
	second := statusFor(t, key, appstore.StateInBillingRetry, ProductProMonthly, false)

	plan := r.Reconcile([]appstore.SubscriptionStatus{first, second}, catalogMap())
	if plan == nil {
		t.Fatal("expected a plan")
	}
	// Equal tiers: replacement requires strictly higher, so the first
	// qualifying status wins.
	if plan.State != appstore.StateSubscribed {
		t.Errorf("state = %v, want the first status's state", plan.State)
	}
}

func TestReconcileSkipsUnverifiableRenewal(t *testing.T) {
	trustedKey := appstoretest.GenerateKey(t)
	rogueKey := appstoretest.GenerateKey(t)
	r := NewReconciler(appstore.NewVerifier(&trustedKey.PublicKey), slog.Default())

	forged := statusFor(t, rogueKey, appstore.StateSubscribed, ProductProYearly, true)
	genuine := statusFor(t, trustedKey, appstore.StateSubscribed, ProductProMonthly, true)

	plan := r.Reconcile([]appstore.SubscriptionStatus{forged, genuine}, catalogMap())
	if plan == nil {
		t.Fatal("expected the genuine status to survive")
	}
	if plan.ProductID != ProductProMonthly {
		t.Errorf("plan product = %s, want monthly (forged yearly skipped)", plan.ProductID)
	}
}

func TestReconcileSkipsUnknownProduct(t *testing.T) {
	key := appstoretest.GenerateKey(t)
	r := NewReconciler(appstore.NewVerifier(&key.PublicKey), slog.Default())

	unknown := statusFor(t, key, appstore.StateSubscribed, "subscription.retired.plan", true)
	plan := r.Reconcile([]appstore.SubscriptionStatus{unknown}, catalogMap())
	if plan != nil {
		t.Fatalf("plan = %+v, want nil for unresolvable product", plan)
	}
}

func TestReconcileMissingTransactionDetailStillQualifies(t *testing.T) {
	key := appstoretest.GenerateKey(t)
	r := NewReconciler(appstore.NewVerifier(&key.PublicKey), slog.Default())

	status := appstore.SubscriptionStatus{
		State: appstore.StateSubscribed,
		SignedRenewal: appstoretest.SignRenewalInfo(t, key, appstoretest.RenewalRecord{
			OriginalTransactionID: "orig-1",
			CurrentProductID:      ProductProYearly,
			WillAutoRenew:         true,
		}),
	}
	plan := r.Reconcile([]appstore.SubscriptionStatus{status}, catalogMap())
	if plan == nil {
		t.Fatal("missing transaction detail must not disqualify the status")
	}
	if plan.ExpiresDate != nil {
		t.Error("no transaction means no expires date detail")
	}
}

func TestReconcileGraceAndBillingRetryDetails(t *testing.T) {
	key := appstoretest.GenerateKey(t)
	r := NewReconciler(appstore.NewVerifier(&key.PublicKey), slog.Default())

	grace := time.Now().UTC().Add(16 * 24 * time.Hour).Truncate(time.Millisecond)
	intent := appstore.ExpirationIntentBillingError
	status := appstore.SubscriptionStatus{
		State: appstore.StateInGracePeriod,
		SignedRenewal: appstoretest.SignRenewalInfo(t, key, appstoretest.RenewalRecord{
			OriginalTransactionID:  "orig-1",
			CurrentProductID:       ProductProMonthly,
			WillAutoRenew:          true,
			ExpirationIntent:       &intent,
			GracePeriodExpiresDate: &grace,
		}),
	}
	plan := r.Reconcile([]appstore.SubscriptionStatus{status}, catalogMap())
	if plan == nil {
		t.Fatal("expected a plan")
	}
	if plan.GracePeriodExpiresDate == nil || !plan.GracePeriodExpiresDate.Equal(grace) {
		t.Errorf("grace period = %v, want %v", plan.GracePeriodExpiresDate, grace)
	}
	if plan.ExpirationIntent == nil || *plan.ExpirationIntent != intent {
		t.Errorf("intent = %v, want billing error", plan.ExpirationIntent)
	}
}
