package store

import (
	"database/sql"
	"fmt"
)

// NotificationStore remembers processed server-notification UUIDs so a
// redelivered notification is acknowledged without being reprocessed.
type NotificationStore struct {
	db *sql.DB
}

func NewNotificationStore(db *sql.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

func (s *NotificationStore) Seen(uuid string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM processed_notifications WHERE uuid = ?`, uuid,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check notification: %w", err)
	}
	return count > 0, nil
}

func (s *NotificationStore) MarkProcessed(uuid, notificationType string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO processed_notifications (uuid, notification_type) VALUES (?, ?)`,
		uuid, notificationType,
	)
	if err != nil {
		return fmt.Errorf("mark notification processed: %w", err)
	}
	return nil
}
