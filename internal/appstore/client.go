package appstore

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sethvargo/go-retry"
)

const defaultBaseURL = "https://api.storekit.itunes.apple.com"

// Config holds App Store Server API credentials.
type Config struct {
	IssuerID   string
	KeyID      string
	BundleID   string
	PrivateKey *ecdsa.PrivateKey
	BaseURL    string // override for sandbox or tests
}

// Client talks to the App Store Server API. Fetch failures leave the
// caller's prior state unchanged; transient server errors are retried
// with backoff.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates an App Store Server API client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// token signs a short-lived request token for the App Store Server API.
func (c *Client) token() (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": c.cfg.IssuerID,
		"iat": now.Unix(),
		"exp": now.Add(5 * time.Minute).Unix(),
		"aud": "appstoreconnect-v1",
		"bid": c.cfg.BundleID,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	tok.Header["kid"] = c.cfg.KeyID

	signed, err := tok.SignedString(c.cfg.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("sign request token: %w", err)
	}
	return signed, nil
}

type statusResponse struct {
	Data []struct {
		SubscriptionGroupIdentifier string `json:"subscriptionGroupIdentifier"`
		LastTransactions            []struct {
			Status                int    `json:"status"`
			OriginalTransactionID string `json:"originalTransactionId"`
			SignedTransactionInfo string `json:"signedTransactionInfo"`
			SignedRenewalInfo     string `json:"signedRenewalInfo"`
		} `json:"lastTransactions"`
	} `json:"data"`
}

// SubscriptionStatuses fetches every status row for the subscription
// groups containing the given original transaction. Server errors
// (5xx) are retried up to three times with exponential backoff.
func (c *Client) SubscriptionStatuses(ctx context.Context, originalTransactionID string) ([]SubscriptionStatus, error) {
	var statuses []SubscriptionStatus

	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		s, err := c.fetchStatuses(ctx, originalTransactionID)
		if err != nil {
			return err
		}
		statuses = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return statuses, nil
}

func (c *Client) fetchStatuses(ctx context.Context, originalTransactionID string) ([]SubscriptionStatus, error) {
	url := fmt.Sprintf("%s/inApps/v1/subscriptions/%s", c.cfg.BaseURL, originalTransactionID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("create status request: %w", err)
	}

	token, err := c.token()
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, retry.RetryableError(fmt.Errorf("status request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, retry.RetryableError(fmt.Errorf("status request returned %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status request returned %d", resp.StatusCode)
	}

	var sr statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}

	var statuses []SubscriptionStatus
	for _, group := range sr.Data {
		for _, last := range group.LastTransactions {
			statuses = append(statuses, SubscriptionStatus{
				State:             SubscriptionState(last.Status),
				SignedTransaction: SignedRecord(last.SignedTransactionInfo),
				SignedRenewal:     SignedRecord(last.SignedRenewalInfo),
			})
		}
	}
	return statuses, nil
}
