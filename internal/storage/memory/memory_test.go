package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/accountax/marketd/internal/models"
	"github.com/accountax/marketd/internal/storage"
)

func TestWithinTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	st := New()
	owner := uuid.New()

	if _, err := st.EnsureWallet(ctx, owner); err != nil {
		t.Fatalf("EnsureWallet: %v", err)
	}
	if _, err := st.CreditBalance(ctx, owner, decimal.NewFromInt(100)); err != nil {
		t.Fatalf("CreditBalance: %v", err)
	}

	boom := errors.New("boom")
	err := st.WithinTx(ctx, func(tx storage.Store) error {
		if _, err := tx.CreditBalance(ctx, owner, decimal.NewFromInt(500)); err != nil {
			return err
		}
		if err := tx.InsertRequest(ctx, models.Request{ID: uuid.New(), Client: owner}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithinTx returned %v, want boom", err)
	}

	wallet, err := st.WalletByOwner(ctx, owner)
	if err != nil {
		t.Fatalf("WalletByOwner: %v", err)
	}
	if !wallet.Balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("balance = %s, want 100 (rolled back)", wallet.Balance)
	}
	requests, err := st.RequestsByClient(ctx, owner)
	if err != nil {
		t.Fatalf("RequestsByClient: %v", err)
	}
	if len(requests) != 0 {
		t.Errorf("request survived the rollback")
	}
}

func TestWithinTxCommits(t *testing.T) {
	ctx := context.Background()
	st := New()
	owner := uuid.New()

	err := st.WithinTx(ctx, func(tx storage.Store) error {
		if _, err := tx.EnsureWallet(ctx, owner); err != nil {
			return err
		}
		_, err := tx.CreditBalance(ctx, owner, decimal.NewFromInt(250))
		return err
	})
	if err != nil {
		t.Fatalf("WithinTx: %v", err)
	}

	wallet, err := st.WalletByOwner(ctx, owner)
	if err != nil {
		t.Fatalf("WalletByOwner: %v", err)
	}
	if !wallet.Balance.Equal(decimal.NewFromInt(250)) {
		t.Errorf("balance = %s, want 250", wallet.Balance)
	}
}

func TestDebitBalanceGuard(t *testing.T) {
	ctx := context.Background()
	st := New()
	owner := uuid.New()

	if _, err := st.EnsureWallet(ctx, owner); err != nil {
		t.Fatal(err)
	}
	if _, err := st.CreditBalance(ctx, owner, decimal.NewFromInt(100)); err != nil {
		t.Fatal(err)
	}

	if _, ok, err := st.DebitBalance(ctx, owner, decimal.NewFromInt(150)); err != nil || ok {
		t.Errorf("DebitBalance over limit: ok=%v err=%v, want refusal", ok, err)
	}
	wallet, ok, err := st.DebitBalance(ctx, owner, decimal.NewFromInt(100))
	if err != nil || !ok {
		t.Fatalf("DebitBalance exact: ok=%v err=%v", ok, err)
	}
	if !wallet.Balance.IsZero() {
		t.Errorf("balance = %s, want 0", wallet.Balance)
	}
}

func TestInsertProposalUniqueGuard(t *testing.T) {
	ctx := context.Background()
	st := New()
	requestID := uuid.New()
	provider := uuid.New()

	first := models.Proposal{ID: uuid.New(), RequestID: requestID, ServiceProvider: provider, Status: models.ProposalPending}
	if err := st.InsertProposal(ctx, first); err != nil {
		t.Fatalf("InsertProposal: %v", err)
	}

	dup := models.Proposal{ID: uuid.New(), RequestID: requestID, ServiceProvider: provider, Status: models.ProposalPending}
	if err := st.InsertProposal(ctx, dup); !errors.Is(err, storage.ErrDuplicate) {
		t.Errorf("duplicate insert: got %v, want ErrDuplicate", err)
	}

	// A rejected proposal no longer blocks the slot.
	if err := st.SetProposalStatus(ctx, first.ID, models.ProposalRejected, "no"); err != nil {
		t.Fatal(err)
	}
	if err := st.InsertProposal(ctx, dup); err != nil {
		t.Errorf("insert after rejection: %v", err)
	}
}

func TestInsertBookingUniqueGuard(t *testing.T) {
	ctx := context.Background()
	st := New()
	requestID := uuid.New()

	first := models.Booking{ID: uuid.New(), RequestID: requestID, Status: models.BookingPending}
	if err := st.InsertBooking(ctx, first); err != nil {
		t.Fatalf("InsertBooking: %v", err)
	}

	second := models.Booking{ID: uuid.New(), RequestID: requestID, Status: models.BookingPending}
	if err := st.InsertBooking(ctx, second); !errors.Is(err, storage.ErrDuplicate) {
		t.Errorf("second booking: got %v, want ErrDuplicate", err)
	}

	// A canceled booking does not block a new one.
	first.Status = models.BookingCanceled
	if err := st.UpdateBooking(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := st.InsertBooking(ctx, second); err != nil {
		t.Errorf("booking after cancellation: %v", err)
	}
}
