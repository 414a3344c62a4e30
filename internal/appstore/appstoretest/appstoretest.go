// Package appstoretest provides signing helpers for tests that need
// App Store signed records without real App Store keys.
package appstoretest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dukerupert/solarc/internal/appstore"
)

// GenerateKey creates an ECDSA P-256 key pair for signing test records.
func GenerateKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

// TransactionRecord describes a transaction payload to sign.
type TransactionRecord struct {
	TransactionID         string
	OriginalTransactionID string
	ProductID             string
	PurchaseDate          time.Time
	ExpiresDate           *time.Time
	RevocationDate        *time.Time
	RevocationReason      *appstore.RevocationReason
	IsUpgraded            bool
}

// SignTransaction signs a transaction record with the given key.
func SignTransaction(t *testing.T, key *ecdsa.PrivateKey, rec TransactionRecord) appstore.SignedRecord {
	t.Helper()
	claims := jwt.MapClaims{
		"transactionId":         rec.TransactionID,
		"originalTransactionId": rec.OriginalTransactionID,
		"productId":             rec.ProductID,
	}
	if !rec.PurchaseDate.IsZero() {
		claims["purchaseDate"] = rec.PurchaseDate.UnixMilli()
	}
	if rec.ExpiresDate != nil {
		claims["expiresDate"] = rec.ExpiresDate.UnixMilli()
	}
	if rec.RevocationDate != nil {
		claims["revocationDate"] = rec.RevocationDate.UnixMilli()
	}
	if rec.RevocationReason != nil {
		claims["revocationReason"] = int(*rec.RevocationReason)
	}
	if rec.IsUpgraded {
		claims["isUpgraded"] = true
	}
	return sign(t, key, claims)
}

// RenewalRecord describes a renewal-info payload to sign.
type RenewalRecord struct {
	OriginalTransactionID  string
	CurrentProductID       string
	AutoRenewProductID     string
	WillAutoRenew          bool
	ExpirationIntent       *appstore.ExpirationIntent
	GracePeriodExpiresDate *time.Time
}

// SignRenewalInfo signs a renewal-info record with the given key.
func SignRenewalInfo(t *testing.T, key *ecdsa.PrivateKey, rec RenewalRecord) appstore.SignedRecord {
	t.Helper()
	status := 0
	if rec.WillAutoRenew {
		status = 1
	}
	claims := jwt.MapClaims{
		"originalTransactionId": rec.OriginalTransactionID,
		"productId":             rec.CurrentProductID,
		"autoRenewStatus":       status,
	}
	if rec.AutoRenewProductID != "" {
		claims["autoRenewProductId"] = rec.AutoRenewProductID
	}
	if rec.ExpirationIntent != nil {
		claims["expirationIntent"] = int(*rec.ExpirationIntent)
	}
	if rec.GracePeriodExpiresDate != nil {
		claims["gracePeriodExpiresDate"] = rec.GracePeriodExpiresDate.UnixMilli()
	}
	return sign(t, key, claims)
}

// NotificationBody builds a Server Notifications V2 request body
// wrapping the given signed records.
func NotificationBody(t *testing.T, key *ecdsa.PrivateKey, notificationType, uuid string, signedTx, signedRenewal appstore.SignedRecord) []byte {
	t.Helper()
	payload := sign(t, key, jwt.MapClaims{
		"notificationType": notificationType,
		"notificationUUID": uuid,
		"data": map[string]any{
			"environment":           "Sandbox",
			"signedTransactionInfo": string(signedTx),
			"signedRenewalInfo":     string(signedRenewal),
		},
	})
	body, err := json.Marshal(map[string]string{"signedPayload": string(payload)})
	if err != nil {
		t.Fatalf("marshal notification body: %v", err)
	}
	return body
}

func sign(t *testing.T, key *ecdsa.PrivateKey, claims jwt.MapClaims) appstore.SignedRecord {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	signed, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign record: %v", err)
	}
	return appstore.SignedRecord(signed)
}
