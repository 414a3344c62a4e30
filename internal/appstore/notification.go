package appstore

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Notification types delivered by App Store Server Notifications V2
// that carry a transaction the entitlement core must process.
const (
	NotificationSubscribed         = "SUBSCRIBED"
	NotificationDidRenew           = "DID_RENEW"
	NotificationDidChangeRenewal   = "DID_CHANGE_RENEWAL_STATUS"
	NotificationDidFailToRenew     = "DID_FAIL_TO_RENEW"
	NotificationExpired            = "EXPIRED"
	NotificationRefund             = "REFUND"
	NotificationRevoke             = "REVOKE"
	NotificationGracePeriodExpired = "GRACE_PERIOD_EXPIRED"
)

// Notification is the decoded envelope of an App Store Server
// Notification V2. The embedded records remain signed: the envelope is
// only parsed here, and the transaction record is verified by the
// entitlement listener's gate before anything trusts it.
type Notification struct {
	Type              string
	Subtype           string
	UUID              string
	Environment       string
	SignedTransaction SignedRecord
	SignedRenewal     SignedRecord
}

type notificationWrapper struct {
	SignedPayload string `json:"signedPayload"`
}

type notificationPayload struct {
	NotificationType string `json:"notificationType"`
	Subtype          string `json:"subtype"`
	NotificationUUID string `json:"notificationUUID"`
	Data             struct {
		Environment           string `json:"environment"`
		SignedTransactionInfo string `json:"signedTransactionInfo"`
		SignedRenewalInfo     string `json:"signedRenewalInfo"`
	} `json:"data"`
}

// ParseNotification decodes a Server Notifications V2 request body.
// The outer JWS payload is extracted without signature verification;
// the signed transaction inside still has to pass the Verifier.
func ParseNotification(body []byte) (*Notification, error) {
	var wrapper notificationWrapper
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("decode notification wrapper: %w", err)
	}
	if wrapper.SignedPayload == "" {
		return nil, fmt.Errorf("notification has no signedPayload")
	}

	parts := strings.Split(wrapper.SignedPayload, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("signedPayload is not a JWS: %d segments", len(parts))
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decode signedPayload: %w", err)
	}

	var payload notificationPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode notification payload: %w", err)
	}

	return &Notification{
		Type:              payload.NotificationType,
		Subtype:           payload.Subtype,
		UUID:              payload.NotificationUUID,
		Environment:       payload.Data.Environment,
		SignedTransaction: SignedRecord(payload.Data.SignedTransactionInfo),
		SignedRenewal:     SignedRecord(payload.Data.SignedRenewalInfo),
	}, nil
}
