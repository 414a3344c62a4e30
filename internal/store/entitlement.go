// Package store holds the SQLite persistence layer, one store per
// aggregate.
package store

import (
	"database/sql"
	"fmt"
)

// EntitlementStore persists the purchased product set.
type EntitlementStore struct {
	db *sql.DB
}

func NewEntitlementStore(db *sql.DB) *EntitlementStore {
	return &EntitlementStore{db: db}
}

func (s *EntitlementStore) Insert(productID string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO entitlements (product_id) VALUES (?)`,
		productID,
	)
	if err != nil {
		return fmt.Errorf("insert entitlement: %w", err)
	}
	return nil
}

func (s *EntitlementStore) Remove(productID string) error {
	_, err := s.db.Exec(`DELETE FROM entitlements WHERE product_id = ?`, productID)
	if err != nil {
		return fmt.Errorf("remove entitlement: %w", err)
	}
	return nil
}

func (s *EntitlementStore) List() ([]string, error) {
	rows, err := s.db.Query(`SELECT product_id FROM entitlements ORDER BY product_id`)
	if err != nil {
		return nil, fmt.Errorf("list entitlements: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan entitlement: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
