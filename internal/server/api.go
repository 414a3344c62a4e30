package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dukerupert/solarc/internal/appstore"
	"github.com/dukerupert/solarc/internal/entitlement"
)

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"products": s.flow.Products(),
	})
}

func (s *Server) handleProductsRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.flow.RequestProducts(r.Context()); err != nil {
		s.logger.Error("refresh products", "error", err)
		http.Error(w, "refresh failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"products": s.flow.Products(),
	})
}

func (s *Server) handleEntitlements(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"purchased": s.entitlements.Snapshot(),
		"tier":      s.entitlements.HighestTier().String(),
	})
}

func (s *Server) handlePurchased(w http.ResponseWriter, r *http.Request) {
	productID := r.PathValue("productID")
	purchased, err := s.flow.IsPurchased(r.Context(), productID)
	if err != nil {
		s.logger.Error("check purchased", "product_id", productID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"product_id": productID,
		"purchased":  purchased,
	})
}

type planResponse struct {
	ProductID              string     `json:"product_id"`
	Tier                   string     `json:"tier"`
	State                  string     `json:"state"`
	WillAutoRenew          bool       `json:"will_auto_renew"`
	AutoRenewProductID     string     `json:"auto_renew_product_id,omitempty"`
	ExpiresDate            *time.Time `json:"expires_date,omitempty"`
	ExpirationIntent       string     `json:"expiration_intent,omitempty"`
	GracePeriodExpiresDate *time.Time `json:"grace_period_expires_date,omitempty"`
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.commerce.Statuses(r.Context())
	if err != nil {
		s.logger.Error("fetch subscription statuses", "error", err)
		http.Error(w, "status fetch failed", http.StatusBadGateway)
		return
	}

	plan := s.reconciler.Reconcile(statuses, s.flow.Catalog())
	if plan == nil {
		writeJSON(w, http.StatusOK, map[string]any{"plan": nil})
		return
	}

	resp := planResponse{
		ProductID:              plan.ProductID,
		Tier:                   plan.Tier.String(),
		State:                  plan.State.String(),
		WillAutoRenew:          plan.WillAutoRenew,
		AutoRenewProductID:     plan.AutoRenewProductID,
		ExpiresDate:            plan.ExpiresDate,
		GracePeriodExpiresDate: plan.GracePeriodExpiresDate,
	}
	if plan.ExpirationIntent != nil {
		resp.ExpirationIntent = expirationIntentLabel(*plan.ExpirationIntent)
	}
	writeJSON(w, http.StatusOK, map[string]any{"plan": resp})
}

func expirationIntentLabel(i appstore.ExpirationIntent) string {
	switch i {
	case appstore.ExpirationIntentCanceled:
		return "canceled"
	case appstore.ExpirationIntentBillingError:
		return "billing_error"
	case appstore.ExpirationIntentPriceIncrease:
		return "price_increase"
	case appstore.ExpirationIntentProductUnavailable:
		return "product_unavailable"
	default:
		return "unknown"
	}
}

type purchaseRequest struct {
	Tier string `json:"tier"`
}

// handlePurchase runs an interactive purchase. It blocks until the
// device posts the StoreKit outcome to /api/purchase/result or the
// request context ends.
func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	tier := entitlement.ParseTier(req.Tier)
	if tier == entitlement.TierNone {
		http.Error(w, "unknown tier", http.StatusBadRequest)
		return
	}

	tx, err := s.flow.Purchase(r.Context(), tier)
	if err != nil {
		if errors.Is(err, entitlement.ErrProductNotAvailable) {
			http.Error(w, "product not available", http.StatusConflict)
			return
		}
		s.logger.Error("purchase", "tier", tier.String(), "error", err)
		http.Error(w, "purchase failed", http.StatusBadGateway)
		return
	}

	if tx == nil {
		// Cancelled or pending; nothing changed.
		writeJSON(w, http.StatusOK, map[string]any{"transaction": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transaction": map[string]any{
			"transaction_id": tx.TransactionID,
			"product_id":     tx.ProductID,
			"purchase_date":  tx.PurchaseDate,
			"expires_date":   tx.ExpiresDate,
		},
	})
}

type purchaseResultRequest struct {
	ProductID         string `json:"product_id"`
	State             string `json:"state"`
	SignedTransaction string `json:"signed_transaction,omitempty"`
}

// handlePurchaseResult receives the StoreKit outcome the device
// observed and hands it to the purchase waiting on the bridge.
func (s *Server) handlePurchaseResult(w http.ResponseWriter, r *http.Request) {
	var req purchaseResultRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxNotificationBody)).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.ProductID == "" {
		http.Error(w, "missing product_id", http.StatusBadRequest)
		return
	}

	state := appstore.ParsePurchaseState(req.State)
	if state == appstore.PurchaseStateUnknown {
		http.Error(w, "unknown state", http.StatusBadRequest)
		return
	}
	if state == appstore.PurchaseStateSuccess && req.SignedTransaction == "" {
		http.Error(w, "success requires signed_transaction", http.StatusBadRequest)
		return
	}

	delivered := s.bridge.Complete(req.ProductID, appstore.PurchaseResult{
		State:             state,
		SignedTransaction: appstore.SignedRecord(req.SignedTransaction),
	})
	if !delivered {
		http.Error(w, "no purchase waiting", http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "delivered"})
}

type pushSubscribeRequest struct {
	Endpoint   string `json:"endpoint"`
	P256dh     string `json:"p256dh"`
	Auth       string `json:"auth"`
	DeviceName string `json:"device_name"`
}

func (s *Server) handlePushKey(w http.ResponseWriter, r *http.Request) {
	if s.pushService == nil {
		http.Error(w, "push not configured", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": s.pushService.VAPIDPublicKey()})
}

func (s *Server) handlePushSubscribe(w http.ResponseWriter, r *http.Request) {
	var req pushSubscribeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Endpoint == "" || req.P256dh == "" || req.Auth == "" {
		http.Error(w, "missing subscription fields", http.StatusBadRequest)
		return
	}

	sub, err := s.pushStore.CreateSubscription(req.Endpoint, req.P256dh, req.Auth, req.DeviceName)
	if err != nil {
		s.logger.Error("create push subscription", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": sub.ID})
}

func (s *Server) handlePushUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.Endpoint == "" {
		http.Error(w, "missing endpoint", http.StatusBadRequest)
		return
	}
	if err := s.pushStore.DeleteByEndpoint(req.Endpoint); err != nil {
		s.logger.Error("delete push subscription", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
