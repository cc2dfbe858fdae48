package escrow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/accountax/marketd/internal/apperr"
	"github.com/accountax/marketd/internal/ledger"
	"github.com/accountax/marketd/internal/models"
	"github.com/accountax/marketd/internal/notifier"
	"github.com/accountax/marketd/internal/storage/memory"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type fixture struct {
	st       *memory.Store
	client   uuid.UUID
	provider uuid.UUID
	request  models.Request
	proposal models.Proposal
}

// newFixture seeds an open request with one approved proposal and the given
// client balance.
func newFixture(t *testing.T, balance, price string) fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	client := uuid.New()
	provider := uuid.New()

	if _, _, err := ledger.Deposit(ctx, st, client, dec(balance)); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	now := time.Now().UTC()
	request := models.Request{
		ID:        uuid.New(),
		Client:    client,
		Title:     "Quarterly audit",
		Budget:    dec(price),
		Status:    models.RequestOpen,
		CreatedAt: now.Add(-time.Hour),
		UpdatedAt: now.Add(-time.Hour),
	}
	if err := st.InsertRequest(ctx, request); err != nil {
		t.Fatalf("InsertRequest: %v", err)
	}

	proposal := models.Proposal{
		ID:              uuid.New(),
		RequestID:       request.ID,
		ServiceProvider: provider,
		Price:           dec(price),
		DurationDays:    14,
		Notes:           "two week engagement",
		Status:          models.ProposalActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := st.InsertProposal(ctx, proposal); err != nil {
		t.Fatalf("InsertProposal: %v", err)
	}

	return fixture{st: st, client: client, provider: provider, request: request, proposal: proposal}
}

func TestAcceptProposal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "1000", "600")

	// A pending sibling gets rejected on acceptance, a canceled one is left
	// alone.
	pendingSibling := models.Proposal{
		ID:              uuid.New(),
		RequestID:       f.request.ID,
		ServiceProvider: uuid.New(),
		Price:           dec("550"),
		DurationDays:    10,
		Status:          models.ProposalPending,
	}
	canceledSibling := models.Proposal{
		ID:              uuid.New(),
		RequestID:       f.request.ID,
		ServiceProvider: uuid.New(),
		Price:           dec("700"),
		DurationDays:    20,
		Status:          models.ProposalCanceled,
	}
	for _, p := range []models.Proposal{pendingSibling, canceledSibling} {
		if err := f.st.InsertProposal(ctx, p); err != nil {
			t.Fatalf("InsertProposal: %v", err)
		}
	}

	result, err := AcceptProposal(ctx, f.st, notifier.LogNotifier{}, f.client, f.proposal.ID)
	if err != nil {
		t.Fatalf("AcceptProposal: %v", err)
	}

	if !result.Balance.Equal(dec("400")) {
		t.Errorf("client balance = %s, want 400", result.Balance)
	}
	booking := result.Booking
	if booking.Status != models.BookingPending {
		t.Errorf("booking status = %s, want pending", booking.Status)
	}
	if booking.PaymentStatus != models.PaymentHeld {
		t.Errorf("payment status = %s, want held", booking.PaymentStatus)
	}
	if !booking.Proposal.Price.Equal(dec("600")) || booking.Proposal.DurationDays != 14 {
		t.Errorf("snapshot = %+v, want price 600 duration 14", booking.Proposal)
	}
	if booking.RequestID != f.request.ID || booking.OfferID != f.proposal.ID {
		t.Errorf("booking references wrong request or proposal")
	}
	if result.Hold.Data.BookingID == nil || *result.Hold.Data.BookingID != booking.ID {
		t.Errorf("hold transaction is not correlated to the booking")
	}

	request, err := f.st.RequestByID(ctx, f.request.ID)
	if err != nil {
		t.Fatalf("RequestByID: %v", err)
	}
	if request.Status != models.RequestInProgress {
		t.Errorf("request status = %s, want in-progress", request.Status)
	}

	winner, _ := f.st.ProposalByID(ctx, f.proposal.ID)
	if winner.Status != models.ProposalAccepted {
		t.Errorf("winning proposal status = %s, want accepted", winner.Status)
	}
	sibling, _ := f.st.ProposalByID(ctx, pendingSibling.ID)
	if sibling.Status != models.ProposalRejected {
		t.Errorf("pending sibling status = %s, want rejected", sibling.Status)
	}
	untouched, _ := f.st.ProposalByID(ctx, canceledSibling.ID)
	if untouched.Status != models.ProposalCanceled {
		t.Errorf("canceled sibling status = %s, want canceled", untouched.Status)
	}

	if _, err := ledger.Reconcile(ctx, f.st, f.client); err != nil {
		t.Errorf("Reconcile: %v", err)
	}
}

func TestAcceptProposalInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "100", "600")

	_, err := AcceptProposal(ctx, f.st, notifier.LogNotifier{}, f.client, f.proposal.ID)
	ae := apperr.As(err)
	if ae == nil || ae.Kind != apperr.KindInsufficientFunds {
		t.Fatalf("got %v, want insufficient funds", err)
	}
	if !ae.Required.Equal(dec("600")) || !ae.Available.Equal(dec("100")) {
		t.Errorf("detail = required %s available %s, want 600/100", ae.Required, ae.Available)
	}

	// Nothing may have happened: no booking, proposal and request untouched,
	// balance unchanged.
	exists, err := f.st.HasActiveBooking(ctx, f.request.ID)
	if err != nil {
		t.Fatalf("HasActiveBooking: %v", err)
	}
	if exists {
		t.Error("booking created despite failed hold")
	}
	proposal, _ := f.st.ProposalByID(ctx, f.proposal.ID)
	if proposal.Status != models.ProposalActive {
		t.Errorf("proposal status = %s, want active", proposal.Status)
	}
	request, _ := f.st.RequestByID(ctx, f.request.ID)
	if request.Status != models.RequestOpen {
		t.Errorf("request status = %s, want open", request.Status)
	}
	wallet, _ := f.st.WalletByOwner(ctx, f.client)
	if !wallet.Balance.Equal(dec("100")) {
		t.Errorf("balance = %s, want 100", wallet.Balance)
	}
}

func TestAcceptProposalPreconditions(t *testing.T) {
	ctx := context.Background()

	t.Run("proposal not approved", func(t *testing.T) {
		f := newFixture(t, "1000", "600")
		if err := f.st.SetProposalStatus(ctx, f.proposal.ID, models.ProposalPending, ""); err != nil {
			t.Fatal(err)
		}
		_, err := AcceptProposal(ctx, f.st, notifier.LogNotifier{}, f.client, f.proposal.ID)
		if apperr.KindOf(err) != apperr.KindInvalidState {
			t.Errorf("got %v, want invalid state", err)
		}
	})

	t.Run("foreign request", func(t *testing.T) {
		f := newFixture(t, "1000", "600")
		_, err := AcceptProposal(ctx, f.st, notifier.LogNotifier{}, uuid.New(), f.proposal.ID)
		if apperr.KindOf(err) != apperr.KindForbidden {
			t.Errorf("got %v, want forbidden", err)
		}
	})

	t.Run("unknown proposal", func(t *testing.T) {
		f := newFixture(t, "1000", "600")
		_, err := AcceptProposal(ctx, f.st, notifier.LogNotifier{}, f.client, uuid.New())
		if apperr.KindOf(err) != apperr.KindNotFound {
			t.Errorf("got %v, want not found", err)
		}
	})

	t.Run("second accept", func(t *testing.T) {
		f := newFixture(t, "2000", "600")
		second := models.Proposal{
			ID:              uuid.New(),
			RequestID:       f.request.ID,
			ServiceProvider: uuid.New(),
			Price:           dec("500"),
			DurationDays:    7,
			Status:          models.ProposalActive,
		}
		if err := f.st.InsertProposal(ctx, second); err != nil {
			t.Fatal(err)
		}
		if _, err := AcceptProposal(ctx, f.st, notifier.LogNotifier{}, f.client, f.proposal.ID); err != nil {
			t.Fatalf("first accept: %v", err)
		}
		_, err := AcceptProposal(ctx, f.st, notifier.LogNotifier{}, f.client, second.ID)
		if apperr.KindOf(err) != apperr.KindBookingAlreadyExists {
			t.Errorf("got %v, want booking already exists", err)
		}
	})
}

func TestAcceptProposalConcurrent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "10000", "600")

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := AcceptProposal(ctx, f.st, notifier.LogNotifier{}, f.client, f.proposal.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, conflict int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case apperr.KindOf(err) == apperr.KindBookingAlreadyExists,
			apperr.KindOf(err) == apperr.KindInvalidState:
			conflict++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("accepts succeeded = %d, want exactly 1", ok)
	}
	if conflict != workers-1 {
		t.Errorf("conflicts = %d, want %d", conflict, workers-1)
	}

	// The client paid exactly once.
	wallet, err := f.st.WalletByOwner(ctx, f.client)
	if err != nil {
		t.Fatalf("WalletByOwner: %v", err)
	}
	if !wallet.Balance.Equal(dec("9400")) {
		t.Errorf("balance = %s, want 9400", wallet.Balance)
	}
}

func TestBookingSnapshotIsImmutable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "1000", "600")

	result, err := AcceptProposal(ctx, f.st, notifier.LogNotifier{}, f.client, f.proposal.ID)
	if err != nil {
		t.Fatalf("AcceptProposal: %v", err)
	}

	// Mutating the proposal afterwards must not leak into the booking.
	edited := f.proposal
	edited.Price = dec("9999")
	edited.Notes = "edited after acceptance"
	if err := f.st.UpdateProposal(ctx, edited); err != nil {
		t.Fatalf("UpdateProposal: %v", err)
	}

	booking, err := f.st.BookingByID(ctx, result.Booking.ID)
	if err != nil {
		t.Fatalf("BookingByID: %v", err)
	}
	if !booking.Proposal.Price.Equal(dec("600")) {
		t.Errorf("snapshot price = %s, want 600", booking.Proposal.Price)
	}
	if booking.Proposal.Notes != "two week engagement" {
		t.Errorf("snapshot notes changed: %q", booking.Proposal.Notes)
	}
}
