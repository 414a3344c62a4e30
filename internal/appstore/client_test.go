package appstore_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukerupert/solarc/internal/appstore"
	"github.com/dukerupert/solarc/internal/appstore/appstoretest"
)

func statusBody(t *testing.T, signedTx, signedRenewal appstore.SignedRecord) string {
	t.Helper()
	return fmt.Sprintf(`{"data":[{"subscriptionGroupIdentifier":"group-1","lastTransactions":[{"status":1,"originalTransactionId":"orig-1","signedTransactionInfo":%q,"signedRenewalInfo":%q}]}]}`,
		string(signedTx), string(signedRenewal))
}

func TestSubscriptionStatuses(t *testing.T) {
	key := appstoretest.GenerateKey(t)
	signedTx := appstoretest.SignTransaction(t, key, appstoretest.TransactionRecord{
		TransactionID: "tx-1",
		ProductID:     "subscription.pro.monthly",
		PurchaseDate:  time.Now().UTC(),
	})
	signedRenewal := appstoretest.SignRenewalInfo(t, key, appstoretest.RenewalRecord{
		OriginalTransactionID: "orig-1",
		CurrentProductID:      "subscription.pro.monthly",
		WillAutoRenew:         true,
	})

	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, statusBody(t, signedTx, signedRenewal))
	}))
	defer srv.Close()

	c := appstore.NewClient(appstore.Config{
		IssuerID:   "issuer-1",
		KeyID:      "key-1",
		BundleID:   "com.example.solarc",
		PrivateKey: key,
		BaseURL:    srv.URL,
	})

	statuses, err := c.SubscriptionStatuses(context.Background(), "orig-1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotPath != "/inApps/v1/subscriptions/orig-1" {
		t.Errorf("path = %q", gotPath)
	}
	if !strings.HasPrefix(gotAuth, "Bearer ") || len(gotAuth) < len("Bearer ")+20 {
		t.Errorf("authorization = %q, want a bearer token", gotAuth)
	}
	if len(statuses) != 1 {
		t.Fatalf("statuses = %d, want 1", len(statuses))
	}
	if statuses[0].State != appstore.StateSubscribed {
		t.Errorf("state = %v", statuses[0].State)
	}
	if statuses[0].SignedTransaction != signedTx {
		t.Error("signed transaction not carried through")
	}
}

func TestSubscriptionStatusesRetriesServerErrors(t *testing.T) {
	key := appstoretest.GenerateKey(t)
	signedTx := appstoretest.SignTransaction(t, key, appstoretest.TransactionRecord{
		TransactionID: "tx-1",
		ProductID:     "subscription.pro.yearly",
		PurchaseDate:  time.Now().UTC(),
	})
	signedRenewal := appstoretest.SignRenewalInfo(t, key, appstoretest.RenewalRecord{
		OriginalTransactionID: "orig-1",
		CurrentProductID:      "subscription.pro.yearly",
	})

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, statusBody(t, signedTx, signedRenewal))
	}))
	defer srv.Close()

	c := appstore.NewClient(appstore.Config{
		IssuerID:   "issuer-1",
		KeyID:      "key-1",
		BundleID:   "com.example.solarc",
		PrivateKey: key,
		BaseURL:    srv.URL,
	})

	statuses, err := c.SubscriptionStatuses(context.Background(), "orig-1")
	if err != nil {
		t.Fatalf("fetch after retry: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", calls.Load())
	}
	if len(statuses) != 1 {
		t.Fatalf("statuses = %d, want 1", len(statuses))
	}
}

func TestSubscriptionStatusesClientErrorNotRetried(t *testing.T) {
	key := appstoretest.GenerateKey(t)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := appstore.NewClient(appstore.Config{
		IssuerID:   "issuer-1",
		KeyID:      "key-1",
		BundleID:   "com.example.solarc",
		PrivateKey: key,
		BaseURL:    srv.URL,
	})

	if _, err := c.SubscriptionStatuses(context.Background(), "orig-1"); err == nil {
		t.Fatal("expected error for 404")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (4xx is not retried)", calls.Load())
	}
}
