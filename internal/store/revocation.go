package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/solarc/internal/appstore"
)

// Revocation is one audit row for a revoked transaction.
type Revocation struct {
	ID            int64
	TransactionID string
	ProductID     string
	RevokedAt     time.Time
	Reason        appstore.RevocationReason
	RecordedAt    time.Time
}

// RevocationStore keeps an audit trail of revocation notices.
type RevocationStore struct {
	db *sql.DB
}

func NewRevocationStore(db *sql.DB) *RevocationStore {
	return &RevocationStore{db: db}
}

func (s *RevocationStore) Record(transactionID, productID string, revokedAt time.Time, reason appstore.RevocationReason) error {
	_, err := s.db.Exec(
		`INSERT INTO revocations (transaction_id, product_id, revoked_at, reason) VALUES (?, ?, ?, ?)`,
		transactionID, productID, revokedAt.UTC(), int(reason),
	)
	if err != nil {
		return fmt.Errorf("record revocation: %w", err)
	}
	return nil
}

func (s *RevocationStore) ListRecent(limit int) ([]Revocation, error) {
	rows, err := s.db.Query(
		`SELECT id, transaction_id, product_id, revoked_at, reason, recorded_at
		 FROM revocations ORDER BY recorded_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list revocations: %w", err)
	}
	defer rows.Close()

	var out []Revocation
	for rows.Next() {
		var r Revocation
		var reason int
		if err := rows.Scan(&r.ID, &r.TransactionID, &r.ProductID, &r.RevokedAt, &reason, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan revocation: %w", err)
		}
		r.Reason = appstore.RevocationReason(reason)
		r.RevokedAt = r.RevokedAt.UTC()
		r.RecordedAt = r.RecordedAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
