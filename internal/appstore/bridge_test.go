package appstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/dukerupert/solarc/internal/appstore"
)

func TestBridgePurchaseRoundTrip(t *testing.T) {
	notified := make(chan string, 1)
	b := appstore.NewBridge(func(productID string) { notified <- productID })
	product := appstore.Product{ID: "subscription.pro.monthly"}

	done := make(chan struct{})
	var result appstore.PurchaseResult
	var purchaseErr error
	go func() {
		defer close(done)
		result, purchaseErr = b.Purchase(context.Background(), product)
	}()

	select {
	case id := <-notified:
		if id != product.ID {
			t.Errorf("notified for %q", id)
		}
	case <-time.After(time.Second):
		t.Fatal("purchase never notified the device")
	}

	if !b.Complete(product.ID, appstore.PurchaseResult{State: appstore.PurchaseStateSuccess, SignedTransaction: "signed"}) {
		t.Fatal("complete found no waiter")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("purchase never returned")
	}
	if purchaseErr != nil {
		t.Fatalf("purchase: %v", purchaseErr)
	}
	if result.State != appstore.PurchaseStateSuccess || result.SignedTransaction != "signed" {
		t.Errorf("result = %+v", result)
	}
}

func TestBridgeRejectsDuplicateInFlight(t *testing.T) {
	started := make(chan struct{}, 1)
	b := appstore.NewBridge(func(string) { started <- struct{}{} })
	product := appstore.Product{ID: "subscription.pro.yearly"}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Purchase(ctx, product)
	<-started

	if _, err := b.Purchase(context.Background(), product); err == nil {
		t.Fatal("second purchase for the same product should fail while one is in flight")
	}
}

func TestBridgePurchaseContextCancel(t *testing.T) {
	b := appstore.NewBridge(nil)
	product := appstore.Product{ID: "subscription.pro.monthly"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.Purchase(ctx, product); err == nil {
		t.Fatal("cancelled purchase should fail")
	}

	// The waiter slot is released, so a completion afterwards finds nobody.
	if b.Complete(product.ID, appstore.PurchaseResult{State: appstore.PurchaseStateSuccess}) {
		t.Fatal("complete after cancellation should find no waiter")
	}
}

func TestBridgeCompleteWithoutWaiter(t *testing.T) {
	b := appstore.NewBridge(nil)
	if b.Complete("subscription.pro.monthly", appstore.PurchaseResult{State: appstore.PurchaseStateUserCancelled}) {
		t.Fatal("complete with no purchase waiting should report false")
	}
}
