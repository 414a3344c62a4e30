package server

import (
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/dukerupert/solarc/internal/appstore"
)

const maxNotificationBody = 64 * 1024

// handleNotification receives App Store Server Notifications V2.
// Responding 200 acknowledges the notification; anything else makes
// the App Store redeliver it with backoff, so transient failures
// return 5xx and garbage returns 4xx.
func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxNotificationBody))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	n, err := appstore.ParseNotification(body)
	if err != nil {
		s.logger.Warn("parse notification", "error", err)
		http.Error(w, "invalid notification", http.StatusBadRequest)
		return
	}

	if _, err := uuid.Parse(n.UUID); err != nil {
		s.logger.Warn("notification with invalid uuid", "uuid", n.UUID)
		http.Error(w, "invalid notification", http.StatusBadRequest)
		return
	}

	seen, err := s.notifications.Seen(n.UUID)
	if err != nil {
		s.logger.Error("check notification replay", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if seen {
		// Redelivery of a notification already queued; acknowledge.
		w.WriteHeader(http.StatusOK)
		return
	}

	if n.SignedTransaction != "" {
		if err := s.feed.Push(r.Context(), n.SignedTransaction); err != nil {
			s.logger.Error("queue transaction update", "type", n.Type, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	if err := s.notifications.MarkProcessed(n.UUID, n.Type); err != nil {
		// The update is queued; a failed mark only risks one duplicate
		// delivery, which the idempotent apply absorbs.
		s.logger.Error("mark notification processed", "uuid", n.UUID, "error", err)
	}

	s.logger.Info("notification accepted", "type", n.Type, "subtype", n.Subtype, "uuid", n.UUID)
	w.WriteHeader(http.StatusOK)
}
