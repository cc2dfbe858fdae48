package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/accountax/marketd/internal/models"
)

func (p *Postgres) EnsureWallet(ctx context.Context, owner uuid.UUID) (models.Wallet, error) {
	// ON CONFLICT keeps concurrent first-touch calls from creating duplicates;
	// the loser of the race falls through to the select.
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO wallets (id, owner, balance, created_at, updated_at)
		VALUES ($1, $2, 0.00, $3, $3)
		ON CONFLICT (owner) DO NOTHING;
	`, uuid.New(), owner, time.Now().UTC())
	if err != nil {
		return models.Wallet{}, err
	}
	return p.WalletByOwner(ctx, owner)
}

func (p *Postgres) WalletByOwner(ctx context.Context, owner uuid.UUID) (models.Wallet, error) {
	var w models.Wallet
	err := p.db.QueryRowContext(ctx, `
		SELECT id, owner, balance, created_at, updated_at FROM wallets WHERE owner = $1;
	`, owner).Scan(&w.ID, &w.Owner, &w.Balance, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Wallet{}, ErrNotFound
		}
		return models.Wallet{}, err
	}
	return w, nil
}

func (p *Postgres) CreditBalance(ctx context.Context, owner uuid.UUID, amount decimal.Decimal) (models.Wallet, error) {
	var w models.Wallet
	err := p.db.QueryRowContext(ctx, `
		UPDATE wallets SET balance = balance + $1, updated_at = $2
		WHERE owner = $3
		RETURNING id, owner, balance, created_at, updated_at;
	`, amount, time.Now().UTC(), owner).Scan(&w.ID, &w.Owner, &w.Balance, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Wallet{}, ErrNotFound
		}
		return models.Wallet{}, err
	}
	return w, nil
}

// DebitBalance is the single guard against concurrent over-holds: the balance
// check and the decrement are one conditional update.
func (p *Postgres) DebitBalance(ctx context.Context, owner uuid.UUID, amount decimal.Decimal) (models.Wallet, bool, error) {
	var w models.Wallet
	err := p.db.QueryRowContext(ctx, `
		UPDATE wallets SET balance = balance - $1, updated_at = $2
		WHERE owner = $3 AND balance >= $1
		RETURNING id, owner, balance, created_at, updated_at;
	`, amount, time.Now().UTC(), owner).Scan(&w.ID, &w.Owner, &w.Balance, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Zero rows updated: wallet missing or balance too low.
			return models.Wallet{}, false, nil
		}
		return models.Wallet{}, false, err
	}
	return w, true, nil
}

func (p *Postgres) InsertTransaction(ctx context.Context, tx models.Transaction) error {
	data, err := json.Marshal(tx.Data)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO transactions (id, wallet_id, type, amount, description, status, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
	`, tx.ID, tx.WalletID, tx.Type, tx.Amount, tx.Description, tx.Status, data, tx.CreatedAt)
	return err
}

func (p *Postgres) TransactionsByWallet(ctx context.Context, walletID uuid.UUID, limit int) ([]models.Transaction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, wallet_id, type, amount, description, status, data, created_at
		FROM transactions WHERE wallet_id = $1
		ORDER BY created_at DESC
		LIMIT NULLIF($2, 0);
	`, walletID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		var tx models.Transaction
		var data []byte
		if err := rows.Scan(&tx.ID, &tx.WalletID, &tx.Type, &tx.Amount, &tx.Description, &tx.Status, &data, &tx.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &tx.Data); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}
