package push

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukerupert/solarc/internal/entitlement"
	"github.com/dukerupert/solarc/internal/store"
)

// Alerter turns entitlement events into push notifications for every
// registered subscription. Delivery is best effort: failures are
// logged, and expired endpoints are pruned.
type Alerter struct {
	service     *Service
	subs        *store.PushStore
	revocations *store.RevocationStore
	logger      *slog.Logger
}

func NewAlerter(service *Service, subs *store.PushStore, revocations *store.RevocationStore, logger *slog.Logger) *Alerter {
	return &Alerter{
		service:     service,
		subs:        subs,
		revocations: revocations,
		logger:      logger,
	}
}

// RevocationAlert records the revocation for audit and notifies every
// subscription. Safe to call from the listener goroutine: it does not
// block on push delivery results beyond the HTTP round trips.
func (a *Alerter) RevocationAlert(n entitlement.Notice) {
	if err := a.revocations.Record(n.TransactionID, n.ProductID, n.RevokedAt, n.Reason); err != nil {
		a.logger.Error("record revocation", "transaction_id", n.TransactionID, "error", err)
	}

	a.broadcast(Payload{
		Title: "Subscription access revoked",
		Body:  fmt.Sprintf("Access to %s was revoked (%s).", n.ProductID, n.Reason),
		Tag:   "revocation-" + n.TransactionID,
	})
}

// EntitlementAlert notifies subscriptions of a purchased-set change.
func (a *Alerter) EntitlementAlert(ev entitlement.Event) {
	title := "Subscription activated"
	body := fmt.Sprintf("%s is now active.", ev.ProductID)
	if !ev.Purchased {
		title = "Subscription ended"
		body = fmt.Sprintf("%s is no longer active.", ev.ProductID)
	}
	a.broadcast(Payload{Title: title, Body: body, Tag: "entitlement-" + ev.ProductID})
}

func (a *Alerter) broadcast(payload Payload) {
	subs, err := a.subs.List()
	if err != nil {
		a.logger.Error("list push subscriptions", "error", err)
		return
	}

	for i := range subs {
		sub := &subs[i]
		if err := a.service.Send(sub, payload); err != nil {
			if errors.Is(err, ErrExpired) {
				if err := a.subs.DeleteByEndpoint(sub.Endpoint); err != nil {
					a.logger.Error("prune expired push subscription", "error", err)
				}
				continue
			}
			a.logger.Warn("send push", "endpoint", sub.Endpoint, "error", err)
		}
	}
}
