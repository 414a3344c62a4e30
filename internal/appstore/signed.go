package appstore

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrFailedVerification is returned when a signed record cannot be
// cryptographically validated. It is terminal for the record:
// re-verifying the same signature cannot succeed, so callers log and
// drop rather than retry.
var ErrFailedVerification = errors.New("record failed verification")

// Verifier validates the ES256 signature on App Store signed records
// and unwraps their payloads. Only payloads returned by a Verifier may
// influence entitlement state.
type Verifier struct {
	key *ecdsa.PublicKey
}

// NewVerifier creates a Verifier trusting records signed by the given key.
func NewVerifier(key *ecdsa.PublicKey) *Verifier {
	return &Verifier{key: key}
}

func (v *Verifier) keyfunc(*jwt.Token) (any, error) {
	return v.key, nil
}

// transactionClaims is the wire shape of a signed transaction payload.
// Date fields are milliseconds since the epoch, per the App Store.
type transactionClaims struct {
	jwt.RegisteredClaims
	TransactionID         string `json:"transactionId"`
	OriginalTransactionID string `json:"originalTransactionId"`
	ProductID             string `json:"productId"`
	PurchaseDate          int64  `json:"purchaseDate,omitempty"`
	ExpiresDate           int64  `json:"expiresDate,omitempty"`
	RevocationDate        int64  `json:"revocationDate,omitempty"`
	RevocationReason      *int   `json:"revocationReason,omitempty"`
	IsUpgraded            bool   `json:"isUpgraded,omitempty"`
}

type renewalClaims struct {
	jwt.RegisteredClaims
	OriginalTransactionID  string `json:"originalTransactionId"`
	CurrentProductID       string `json:"productId"`
	AutoRenewProductID     string `json:"autoRenewProductId,omitempty"`
	AutoRenewStatus        int    `json:"autoRenewStatus"`
	ExpirationIntent       *int   `json:"expirationIntent,omitempty"`
	GracePeriodExpiresDate int64  `json:"gracePeriodExpiresDate,omitempty"`
}

// VerifyTransaction validates a signed transaction record and returns
// its payload. The payload must be discarded on ErrFailedVerification.
func (v *Verifier) VerifyTransaction(rec SignedRecord) (*Transaction, error) {
	var claims transactionClaims
	_, err := jwt.ParseWithClaims(string(rec), &claims, v.keyfunc, jwt.WithValidMethods([]string{"ES256"}))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFailedVerification, err)
	}

	tx := &Transaction{
		TransactionID:         claims.TransactionID,
		OriginalTransactionID: claims.OriginalTransactionID,
		ProductID:             claims.ProductID,
		PurchaseDate:          msTime(claims.PurchaseDate),
		IsUpgraded:            claims.IsUpgraded,
	}
	if claims.ExpiresDate > 0 {
		t := msTime(claims.ExpiresDate)
		tx.ExpiresDate = &t
	}
	if claims.RevocationDate > 0 {
		t := msTime(claims.RevocationDate)
		tx.RevocationDate = &t
	}
	if claims.RevocationReason != nil {
		r := RevocationReason(*claims.RevocationReason)
		tx.RevocationReason = &r
	}
	return tx, nil
}

// VerifyRenewalInfo validates a signed renewal-info record and returns
// its payload.
func (v *Verifier) VerifyRenewalInfo(rec SignedRecord) (*RenewalInfo, error) {
	var claims renewalClaims
	_, err := jwt.ParseWithClaims(string(rec), &claims, v.keyfunc, jwt.WithValidMethods([]string{"ES256"}))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFailedVerification, err)
	}

	info := &RenewalInfo{
		OriginalTransactionID: claims.OriginalTransactionID,
		CurrentProductID:      claims.CurrentProductID,
		AutoRenewProductID:    claims.AutoRenewProductID,
		WillAutoRenew:         claims.AutoRenewStatus == 1,
	}
	if claims.ExpirationIntent != nil {
		i := ExpirationIntent(*claims.ExpirationIntent)
		info.ExpirationIntent = &i
	}
	if claims.GracePeriodExpiresDate > 0 {
		t := msTime(claims.GracePeriodExpiresDate)
		info.GracePeriodExpiresDate = &t
	}
	return info, nil
}

func msTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// LoadPublicKey reads a PEM-encoded ECDSA public key from disk.
func LoadPublicKey(path string) (*ecdsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	return ParsePublicKey(data)
}

// ParsePublicKey parses a PEM-encoded ECDSA public key.
func ParsePublicKey(pemData []byte) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in public key data")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	key, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, want *ecdsa.PublicKey", pub)
	}
	return key, nil
}

// LoadPrivateKey reads a PEM-encoded ECDSA private key from disk.
// Accepts both PKCS#8 (the App Store Connect download format) and SEC 1.
func LoadPrivateKey(path string) (*ecdsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in private key data")
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := parsed.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, want *ecdsa.PrivateKey", parsed)
	}
	return key, nil
}
