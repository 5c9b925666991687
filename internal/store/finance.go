package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/para"
)

// ErrAccountNotFound is returned when no account matches.
var ErrAccountNotFound = errors.New("account not found")

// ListAccounts returns all financial accounts, oldest first.
func (s *Store) ListAccounts(ctx context.Context) ([]para.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, kind, currency, created_at, updated_at
		 FROM accounts ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var accounts []para.Account
	for rows.Next() {
		var a para.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Kind, &a.Currency, &a.CreatedAt, &a.UpdatedAt); err != nil {
			continue
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// FindAccount resolves an account by name: exact match first, then
// substring in either direction ("กสิกร" matches "กสิกรไทย").
func (s *Store) FindAccount(ctx context.Context, name string) (*para.Account, error) {
	accounts, err := s.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil, ErrAccountNotFound
	}
	for _, a := range accounts {
		if strings.ToLower(a.Name) == needle {
			return &a, nil
		}
	}
	for _, a := range accounts {
		hay := strings.ToLower(a.Name)
		if strings.Contains(hay, needle) || strings.Contains(needle, hay) {
			return &a, nil
		}
	}
	return nil, ErrAccountNotFound
}

// CreateAccount persists a new account.
func (s *Store) CreateAccount(ctx context.Context, a *para.Account) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	return s.writeWithRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO accounts (id, name, kind, currency, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			a.ID, a.Name, a.Kind, a.Currency, a.CreatedAt, a.UpdatedAt)
		return err
	})
}

// CreateTransaction persists one transaction.
func (s *Store) CreateTransaction(ctx context.Context, t *para.Transaction) error {
	ctx, span := tracer.Start(ctx, "store.create_transaction",
		trace.WithAttributes(attribute.String("account_id", t.AccountID)))
	defer span.End()

	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	if t.OccurredAt.IsZero() {
		t.OccurredAt = now
	}
	err := s.writeWithRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO transactions (id, account_id, amount, kind, merchant, note, occurred_at, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.AccountID, t.Amount, t.Kind, t.Merchant, t.Note, t.OccurredAt, t.CreatedAt)
		return err
	})
	if err != nil {
		return fmt.Errorf("inserting transaction: %w", err)
	}
	return nil
}

// TransactionsSince returns transactions in the half-open range [from, now),
// newest first. The digest uses this for its daily summary.
func (s *Store) TransactionsSince(ctx context.Context, from time.Time, limit int) ([]para.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, amount, kind, merchant, note, occurred_at, created_at
		 FROM transactions WHERE occurred_at >= ?
		 ORDER BY occurred_at DESC LIMIT ?`,
		from, limit)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var txs []para.Transaction
	for rows.Next() {
		var t para.Transaction
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Amount, &t.Kind, &t.Merchant,
			&t.Note, &t.OccurredAt, &t.CreatedAt); err != nil {
			continue
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}
