// Package ledger owns wallet balances and the append-only transaction log.
// No other component mutates a balance directly: deposits, holds, releases and
// refunds all come through here, and each balance change writes exactly one
// transaction row.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/accountax/marketd/internal/apperr"
	"github.com/accountax/marketd/internal/logger"
	"github.com/accountax/marketd/internal/models"
	"github.com/accountax/marketd/internal/storage"
)

func EnsureWallet(ctx context.Context, st storage.Store, owner uuid.UUID) (models.Wallet, error) {
	wallet, err := st.EnsureWallet(ctx, owner)
	if err != nil {
		return models.Wallet{}, apperr.Internal("failed to ensure wallet", err)
	}
	return wallet, nil
}

// Deposit credits the owner's wallet. Credits always succeed; there is no
// insufficient-funds path here.
func Deposit(ctx context.Context, st storage.Store, owner uuid.UUID, amount decimal.Decimal) (models.Wallet, models.Transaction, error) {
	if !amount.IsPositive() {
		return models.Wallet{}, models.Transaction{}, apperr.Validation("deposit amount must be positive")
	}

	if _, err := EnsureWallet(ctx, st, owner); err != nil {
		return models.Wallet{}, models.Transaction{}, err
	}

	wallet, err := st.CreditBalance(ctx, owner, amount)
	if err != nil {
		return models.Wallet{}, models.Transaction{}, apperr.Internal("failed to credit balance", err)
	}

	tx := models.Transaction{
		ID:          uuid.New(),
		WalletID:    wallet.ID,
		Type:        models.TransactionDeposit,
		Amount:      amount,
		Description: "Funds added",
		Status:      models.TransactionCompleted,
		CreatedAt:   time.Now().UTC(),
	}
	if err := st.InsertTransaction(ctx, tx); err != nil {
		return models.Wallet{}, models.Transaction{}, apperr.Internal("failed to record deposit", err)
	}

	logger.Log.Info("Deposit completed",
		zap.String("owner", owner.String()),
		zap.String("amount", amount.StringFixed(2)))
	return wallet, tx, nil
}

// Hold earmarks funds for an engagement: the balance check and the debit are a
// single atomic conditional update, so concurrent holds can never overdraw the
// wallet between them.
func Hold(ctx context.Context, st storage.Store, owner uuid.UUID, amount decimal.Decimal, corr models.Correlation) (models.Wallet, models.Transaction, error) {
	if !amount.IsPositive() {
		return models.Wallet{}, models.Transaction{}, apperr.Validation("hold amount must be positive")
	}

	current, err := EnsureWallet(ctx, st, owner)
	if err != nil {
		return models.Wallet{}, models.Transaction{}, err
	}

	wallet, ok, err := st.DebitBalance(ctx, owner, amount)
	if err != nil {
		return models.Wallet{}, models.Transaction{}, apperr.Internal("failed to debit balance", err)
	}
	if !ok {
		return models.Wallet{}, models.Transaction{}, apperr.InsufficientFunds(amount, current.Balance)
	}

	tx := models.Transaction{
		ID:          uuid.New(),
		WalletID:    wallet.ID,
		Type:        models.TransactionHold,
		Amount:      amount,
		Description: describeCorrelation("Escrow hold", corr),
		Status:      models.TransactionCompleted,
		Data:        corr,
		CreatedAt:   time.Now().UTC(),
	}
	if err := st.InsertTransaction(ctx, tx); err != nil {
		return models.Wallet{}, models.Transaction{}, apperr.Internal("failed to record hold", err)
	}

	logger.Log.Info("Funds held",
		zap.String("owner", owner.String()),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("balance", wallet.Balance.StringFixed(2)))
	return wallet, tx, nil
}

// Release moves previously held funds into the provider's wallet. The client
// side needs no further row: their balance dropped when the hold was taken,
// and the hold transaction carries the correlation to this booking.
func Release(ctx context.Context, st storage.Store, client, provider uuid.UUID, amount decimal.Decimal, corr models.Correlation) error {
	if !amount.IsPositive() {
		return apperr.Validation("release amount must be positive")
	}

	if _, err := EnsureWallet(ctx, st, provider); err != nil {
		return err
	}
	providerWallet, err := st.CreditBalance(ctx, provider, amount)
	if err != nil {
		return apperr.Internal("failed to credit provider wallet", err)
	}
	if err := st.InsertTransaction(ctx, models.Transaction{
		ID:          uuid.New(),
		WalletID:    providerWallet.ID,
		Type:        models.TransactionRelease,
		Amount:      amount,
		Description: describeCorrelation("Escrow released", corr),
		Status:      models.TransactionCompleted,
		Data:        corr,
		CreatedAt:   time.Now().UTC(),
	}); err != nil {
		return apperr.Internal("failed to record release", err)
	}

	logger.Log.Info("Funds released",
		zap.String("client", client.String()),
		zap.String("provider", provider.String()),
		zap.String("amount", amount.StringFixed(2)))
	return nil
}

// Refund returns held funds to the original payer.
func Refund(ctx context.Context, st storage.Store, owner uuid.UUID, amount decimal.Decimal, corr models.Correlation) (models.Wallet, models.Transaction, error) {
	if !amount.IsPositive() {
		return models.Wallet{}, models.Transaction{}, apperr.Validation("refund amount must be positive")
	}

	if _, err := EnsureWallet(ctx, st, owner); err != nil {
		return models.Wallet{}, models.Transaction{}, err
	}

	wallet, err := st.CreditBalance(ctx, owner, amount)
	if err != nil {
		return models.Wallet{}, models.Transaction{}, apperr.Internal("failed to credit balance", err)
	}

	tx := models.Transaction{
		ID:          uuid.New(),
		WalletID:    wallet.ID,
		Type:        models.TransactionRefund,
		Amount:      amount,
		Description: describeCorrelation("Escrow refunded", corr),
		Status:      models.TransactionCompleted,
		Data:        corr,
		CreatedAt:   time.Now().UTC(),
	}
	if err := st.InsertTransaction(ctx, tx); err != nil {
		return models.Wallet{}, models.Transaction{}, apperr.Internal("failed to record refund", err)
	}

	logger.Log.Info("Funds refunded",
		zap.String("owner", owner.String()),
		zap.String("amount", amount.StringFixed(2)))
	return wallet, tx, nil
}

// Statement returns the wallet and its most recent transactions, newest first.
func Statement(ctx context.Context, st storage.Store, owner uuid.UUID) (models.Wallet, []models.Transaction, error) {
	wallet, err := EnsureWallet(ctx, st, owner)
	if err != nil {
		return models.Wallet{}, nil, err
	}
	txs, err := st.TransactionsByWallet(ctx, wallet.ID, 50)
	if err != nil {
		return models.Wallet{}, nil, apperr.Internal("failed to load transactions", err)
	}
	return wallet, txs, nil
}

// Reconcile recomputes the balance from the transaction log and reports a
// mismatch against the stored balance. Deposits, releases and refunds are
// credits; holds and payments are debits.
func Reconcile(ctx context.Context, st storage.Store, owner uuid.UUID) (decimal.Decimal, error) {
	wallet, err := st.WalletByOwner(ctx, owner)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return decimal.Zero, apperr.NotFound("wallet")
		}
		return decimal.Zero, apperr.Internal("failed to load wallet", err)
	}

	txs, err := st.TransactionsByWallet(ctx, wallet.ID, 0)
	if err != nil {
		return decimal.Zero, apperr.Internal("failed to load transactions", err)
	}

	sum := decimal.Zero
	for _, tx := range txs {
		if tx.Status != models.TransactionCompleted {
			continue
		}
		if tx.Type.Credit() {
			sum = sum.Add(tx.Amount)
		} else {
			sum = sum.Sub(tx.Amount)
		}
	}

	if !sum.Equal(wallet.Balance) {
		return sum, apperr.Internal(
			fmt.Sprintf("ledger mismatch for wallet %s: log sum %s, balance %s",
				wallet.ID, sum.StringFixed(2), wallet.Balance.StringFixed(2)), nil)
	}
	return sum, nil
}

func describeCorrelation(prefix string, corr models.Correlation) string {
	switch {
	case corr.BookingID != nil:
		return fmt.Sprintf("%s for booking %s", prefix, corr.BookingID)
	case corr.RequestID != nil:
		return fmt.Sprintf("%s for request %s", prefix, corr.RequestID)
	default:
		return prefix
	}
}
