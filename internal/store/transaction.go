package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/solarc/internal/appstore"
)

// TransactionStore archives finished transactions. Recording a
// transaction acknowledges it, so the archive is also the redelivery
// dedup record.
type TransactionStore struct {
	db *sql.DB
}

func NewTransactionStore(db *sql.DB) *TransactionStore {
	return &TransactionStore{db: db}
}

// Record upserts the transaction by its identifier. Re-recording a
// redelivered transaction refreshes its fields and is harmless.
func (s *TransactionStore) Record(tx *appstore.Transaction) error {
	var reason sql.NullInt64
	if tx.RevocationReason != nil {
		reason = sql.NullInt64{Int64: int64(*tx.RevocationReason), Valid: true}
	}
	_, err := s.db.Exec(
		`INSERT INTO transactions (transaction_id, original_transaction_id, product_id, purchase_date, expires_date, revocation_date, revocation_reason, is_upgraded)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(transaction_id) DO UPDATE SET
		   expires_date = excluded.expires_date,
		   revocation_date = excluded.revocation_date,
		   revocation_reason = excluded.revocation_reason,
		   is_upgraded = excluded.is_upgraded`,
		tx.TransactionID, tx.OriginalTransactionID, tx.ProductID, tx.PurchaseDate.UTC(),
		nullTime(tx.ExpiresDate), nullTime(tx.RevocationDate), reason, boolInt(tx.IsUpgraded),
	)
	if err != nil {
		return fmt.Errorf("record transaction: %w", err)
	}
	return nil
}

// LatestByProduct returns the most recently purchased transaction for
// the product, or nil when none exists.
func (s *TransactionStore) LatestByProduct(productID string) (*appstore.Transaction, error) {
	row := s.db.QueryRow(
		`SELECT transaction_id, original_transaction_id, product_id, purchase_date, expires_date, revocation_date, revocation_reason, is_upgraded
		 FROM transactions WHERE product_id = ? ORDER BY purchase_date DESC LIMIT 1`,
		productID,
	)
	return scanTransaction(row)
}

// LatestOriginalID returns the original transaction identifier of the
// most recently recorded transaction, or "" when the archive is empty.
func (s *TransactionStore) LatestOriginalID() (string, error) {
	var id string
	err := s.db.QueryRow(
		`SELECT original_transaction_id FROM transactions ORDER BY recorded_at DESC, purchase_date DESC LIMIT 1`,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("latest original transaction id: %w", err)
	}
	return id, nil
}

// Seen reports whether the transaction has already been recorded.
func (s *TransactionStore) Seen(transactionID string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM transactions WHERE transaction_id = ?`, transactionID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check transaction: %w", err)
	}
	return count > 0, nil
}

func scanTransaction(row *sql.Row) (*appstore.Transaction, error) {
	var tx appstore.Transaction
	var expires, revoked sql.NullTime
	var reason sql.NullInt64
	var upgraded int
	err := row.Scan(&tx.TransactionID, &tx.OriginalTransactionID, &tx.ProductID, &tx.PurchaseDate, &expires, &revoked, &reason, &upgraded)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	if expires.Valid {
		t := expires.Time.UTC()
		tx.ExpiresDate = &t
	}
	if revoked.Valid {
		t := revoked.Time.UTC()
		tx.RevocationDate = &t
	}
	if reason.Valid {
		r := appstore.RevocationReason(reason.Int64)
		tx.RevocationReason = &r
	}
	tx.PurchaseDate = tx.PurchaseDate.UTC()
	tx.IsUpgraded = upgraded != 0
	return &tx, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
