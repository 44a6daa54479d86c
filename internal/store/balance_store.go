package store

import (
	"context"

	"solde/internal/models"
)

type BalanceStore struct {
	db DB
}

func NewBalanceStore(db DB) *BalanceStore {
	return &BalanceStore{db: db}
}

// GetOrCreateForUpdate resolves the caller's balance account inside tx and
// locks its row. The row lock serializes all ledger mutations for one user.
func (s *BalanceStore) GetOrCreateForUpdate(ctx context.Context, tx Tx, userID string) (models.BalanceAccount, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO balance_accounts (id, user_id, balance)
		VALUES (gen_random_uuid()::text, $1, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, userID); err != nil {
		return models.BalanceAccount{}, err
	}
	var row models.BalanceAccount
	err := tx.GetContext(ctx, &row, `
		SELECT id, user_id, balance, created_at, updated_at
		FROM balance_accounts
		WHERE user_id = $1
		FOR UPDATE
	`, userID)
	if err != nil {
		return models.BalanceAccount{}, err
	}
	return row, nil
}

func (s *BalanceStore) GetByUser(ctx context.Context, userID string) (models.BalanceAccount, error) {
	var row models.BalanceAccount
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, balance, created_at, updated_at
		FROM balance_accounts
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return models.BalanceAccount{}, err
	}
	return row, nil
}

func (s *BalanceStore) UpdateBalance(ctx context.Context, tx Execer, accountID string, balance int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE balance_accounts
		SET balance = $1, updated_at = NOW()
		WHERE id = $2
	`, balance, accountID)
	return err
}
