package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/accountax/marketd/internal/apperr"
	"github.com/accountax/marketd/internal/models"
	"github.com/accountax/marketd/internal/storage/memory"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestDeposit(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	owner := uuid.New()

	wallet, tx, err := Deposit(ctx, st, owner, dec("100.50"))
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if !wallet.Balance.Equal(dec("100.50")) {
		t.Errorf("balance = %s, want 100.50", wallet.Balance)
	}
	if tx.Type != models.TransactionDeposit {
		t.Errorf("transaction type = %s, want deposit", tx.Type)
	}

	tests := []struct {
		name   string
		amount decimal.Decimal
	}{
		{"zero", decimal.Zero},
		{"negative", dec("-5")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := Deposit(ctx, st, owner, tt.amount); apperr.KindOf(err) != apperr.KindValidation {
				t.Errorf("Deposit(%s) kind = %v, want validation", tt.amount, apperr.KindOf(err))
			}
		})
	}
}

func TestHold(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	owner := uuid.New()

	if _, _, err := Deposit(ctx, st, owner, dec("1000")); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	bookingID := uuid.New()
	corr := models.Correlation{BookingID: &bookingID}
	wallet, tx, err := Hold(ctx, st, owner, dec("600"), corr)
	if err != nil {
		t.Fatalf("Hold: %v", err)
	}
	if !wallet.Balance.Equal(dec("400")) {
		t.Errorf("balance after hold = %s, want 400", wallet.Balance)
	}
	if tx.Type != models.TransactionHold {
		t.Errorf("transaction type = %s, want hold", tx.Type)
	}
	if tx.Data.BookingID == nil || *tx.Data.BookingID != bookingID {
		t.Errorf("hold transaction missing booking correlation")
	}

	// Second hold exceeds the remaining balance; nothing may change.
	_, _, err = Hold(ctx, st, owner, dec("600"), corr)
	ae := apperr.As(err)
	if ae == nil || ae.Kind != apperr.KindInsufficientFunds {
		t.Fatalf("Hold beyond balance: got %v, want insufficient funds", err)
	}
	if !ae.Required.Equal(dec("600")) || !ae.Available.Equal(dec("400")) {
		t.Errorf("insufficient funds detail = required %s available %s, want 600/400", ae.Required, ae.Available)
	}

	wallet, err = st.WalletByOwner(ctx, owner)
	if err != nil {
		t.Fatalf("WalletByOwner: %v", err)
	}
	if !wallet.Balance.Equal(dec("400")) {
		t.Errorf("balance after failed hold = %s, want 400", wallet.Balance)
	}
}

func TestReleaseCreditsProvider(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	client := uuid.New()
	provider := uuid.New()

	if _, _, err := Deposit(ctx, st, client, dec("1000")); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	bookingID := uuid.New()
	corr := models.Correlation{BookingID: &bookingID}
	if _, _, err := Hold(ctx, st, client, dec("600"), corr); err != nil {
		t.Fatalf("Hold: %v", err)
	}

	if err := Release(ctx, st, client, provider, dec("600"), corr); err != nil {
		t.Fatalf("Release: %v", err)
	}

	providerWallet, err := st.WalletByOwner(ctx, provider)
	if err != nil {
		t.Fatalf("WalletByOwner: %v", err)
	}
	if !providerWallet.Balance.Equal(dec("600")) {
		t.Errorf("provider balance = %s, want 600", providerWallet.Balance)
	}

	// Both ledgers must still reconcile against their transaction logs.
	for _, owner := range []uuid.UUID{client, provider} {
		if _, err := Reconcile(ctx, st, owner); err != nil {
			t.Errorf("Reconcile(%s): %v", owner, err)
		}
	}
}

func TestRefund(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	owner := uuid.New()

	if _, _, err := Deposit(ctx, st, owner, dec("1000")); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	bookingID := uuid.New()
	corr := models.Correlation{BookingID: &bookingID}
	if _, _, err := Hold(ctx, st, owner, dec("600"), corr); err != nil {
		t.Fatalf("Hold: %v", err)
	}

	wallet, tx, err := Refund(ctx, st, owner, dec("600"), corr)
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if !wallet.Balance.Equal(dec("1000")) {
		t.Errorf("balance after refund = %s, want 1000", wallet.Balance)
	}
	if tx.Type != models.TransactionRefund {
		t.Errorf("transaction type = %s, want refund", tx.Type)
	}
	if _, err := Reconcile(ctx, st, owner); err != nil {
		t.Errorf("Reconcile: %v", err)
	}
}

func TestStatement(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	owner := uuid.New()

	if _, _, err := Deposit(ctx, st, owner, dec("100")); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if _, _, err := Deposit(ctx, st, owner, dec("200")); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	wallet, txs, err := Statement(ctx, st, owner)
	if err != nil {
		t.Fatalf("Statement: %v", err)
	}
	if !wallet.Balance.Equal(dec("300")) {
		t.Errorf("balance = %s, want 300", wallet.Balance)
	}
	if len(txs) != 2 {
		t.Errorf("len(transactions) = %d, want 2", len(txs))
	}
}

func TestReconcileDetectsMismatch(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	owner := uuid.New()

	if _, _, err := Deposit(ctx, st, owner, dec("100")); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	// A credit with no matching transaction row breaks the invariant.
	if _, err := st.CreditBalance(ctx, owner, dec("50")); err != nil {
		t.Fatalf("CreditBalance: %v", err)
	}
	if _, err := Reconcile(ctx, st, owner); err == nil {
		t.Error("Reconcile passed on a wallet whose log does not match its balance")
	}
}

func TestConcurrentHoldsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	owner := uuid.New()

	if _, _, err := Deposit(ctx, st, owner, dec("1000")); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	const workers = 10
	amount := dec("300")

	var wg sync.WaitGroup
	succeeded := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := Hold(ctx, st, owner, amount, models.Correlation{}); err == nil {
				succeeded <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(succeeded)

	var n int
	for range succeeded {
		n++
	}
	if n != 3 {
		t.Errorf("holds succeeded = %d, want 3 (1000 / 300)", n)
	}

	wallet, err := st.WalletByOwner(ctx, owner)
	if err != nil {
		t.Fatalf("WalletByOwner: %v", err)
	}
	if !wallet.Balance.Equal(dec("100")) {
		t.Errorf("balance = %s, want 100", wallet.Balance)
	}
	if wallet.Balance.IsNegative() {
		t.Error("wallet overdrawn")
	}
	if _, err := Reconcile(ctx, st, owner); err != nil {
		t.Errorf("Reconcile: %v", err)
	}
}
