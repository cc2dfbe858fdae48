package bookings

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/accountax/marketd/internal/apperr"
	"github.com/accountax/marketd/internal/escrow"
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
	booking  models.Booking
}

// newFixture runs the full accept flow so the booking under test carries a
// real hold: client deposited 1000, 600 of it held in escrow.
func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	client := uuid.New()
	provider := uuid.New()

	if _, _, err := ledger.Deposit(ctx, st, client, dec("1000")); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	request := models.Request{
		ID:        uuid.New(),
		Client:    client,
		Title:     "Site relaunch",
		Budget:    dec("600"),
		Status:    models.RequestOpen,
		CreatedAt: time.Now().UTC(),
	}
	if err := st.InsertRequest(ctx, request); err != nil {
		t.Fatalf("InsertRequest: %v", err)
	}
	proposal := models.Proposal{
		ID:              uuid.New(),
		RequestID:       request.ID,
		ServiceProvider: provider,
		Price:           dec("600"),
		DurationDays:    14,
		Status:          models.ProposalActive,
		CreatedAt:       time.Now().UTC(),
	}
	if err := st.InsertProposal(ctx, proposal); err != nil {
		t.Fatalf("InsertProposal: %v", err)
	}

	result, err := escrow.AcceptProposal(ctx, st, notifier.LogNotifier{}, client, proposal.ID)
	if err != nil {
		t.Fatalf("AcceptProposal: %v", err)
	}
	return fixture{st: st, client: client, provider: provider, booking: result.Booking}
}

func TestProviderTransitions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	booking, err := ProviderTransition(ctx, f.st, notifier.LogNotifier{}, f.provider, f.booking.ID, ActionAccept)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if booking.Status != models.BookingActive {
		t.Errorf("status after accept = %s, want active", booking.Status)
	}

	// Accepting twice is a state error.
	if _, err := ProviderTransition(ctx, f.st, notifier.LogNotifier{}, f.provider, f.booking.ID, ActionAccept); apperr.KindOf(err) != apperr.KindInvalidState {
		t.Errorf("second accept: got %v, want invalid state", err)
	}

	booking, err = ProviderTransition(ctx, f.st, notifier.LogNotifier{}, f.provider, f.booking.ID, ActionStart)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if booking.StartDate == nil {
		t.Fatal("start did not record a start date")
	}
	started := *booking.StartDate
	events := len(booking.Timeline)

	// Start is an idempotent marker.
	booking, err = ProviderTransition(ctx, f.st, notifier.LogNotifier{}, f.provider, f.booking.ID, ActionStart)
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if !booking.StartDate.Equal(started) {
		t.Errorf("second start moved the start date")
	}
	if len(booking.Timeline) != events {
		t.Errorf("second start appended a timeline event")
	}

	booking, err = ProviderTransition(ctx, f.st, notifier.LogNotifier{}, f.provider, f.booking.ID, ActionComplete)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if booking.Status != models.BookingCompleted {
		t.Errorf("status after complete = %s, want completed", booking.Status)
	}
	if booking.PaymentStatus != models.PaymentReleased {
		t.Errorf("payment status = %s, want released", booking.PaymentStatus)
	}

	providerWallet, err := f.st.WalletByOwner(ctx, f.provider)
	if err != nil {
		t.Fatalf("WalletByOwner: %v", err)
	}
	if !providerWallet.Balance.Equal(dec("600")) {
		t.Errorf("provider balance = %s, want 600", providerWallet.Balance)
	}
	if _, err := ledger.Reconcile(ctx, f.st, f.provider); err != nil {
		t.Errorf("Reconcile provider: %v", err)
	}
}

func TestProviderTransitionGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("start before accept", func(t *testing.T) {
		f := newFixture(t)
		_, err := ProviderTransition(ctx, f.st, notifier.LogNotifier{}, f.provider, f.booking.ID, ActionStart)
		if apperr.KindOf(err) != apperr.KindInvalidState {
			t.Errorf("got %v, want invalid state", err)
		}
		// The message names both the current and the required status.
		for _, want := range []string{string(models.BookingPending), "requires status " + string(models.BookingActive)} {
			if !strings.Contains(err.Error(), want) {
				t.Errorf("error %q does not mention %q", err, want)
			}
		}
	})

	t.Run("complete before accept", func(t *testing.T) {
		f := newFixture(t)
		if _, err := ProviderTransition(ctx, f.st, notifier.LogNotifier{}, f.provider, f.booking.ID, ActionComplete); apperr.KindOf(err) != apperr.KindInvalidState {
			t.Errorf("got %v, want invalid state", err)
		}
	})

	t.Run("foreign provider", func(t *testing.T) {
		f := newFixture(t)
		if _, err := ProviderTransition(ctx, f.st, notifier.LogNotifier{}, uuid.New(), f.booking.ID, ActionAccept); apperr.KindOf(err) != apperr.KindForbidden {
			t.Errorf("got %v, want forbidden", err)
		}
	})

	t.Run("unknown action", func(t *testing.T) {
		f := newFixture(t)
		if _, err := ProviderTransition(ctx, f.st, notifier.LogNotifier{}, f.provider, f.booking.ID, "archive"); apperr.KindOf(err) != apperr.KindValidation {
			t.Errorf("got %v, want validation", err)
		}
	})
}

func TestClientCancelRefunds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	booking, err := ClientCancel(ctx, f.st, notifier.LogNotifier{}, f.client, f.booking.ID)
	if err != nil {
		t.Fatalf("ClientCancel: %v", err)
	}
	if booking.Status != models.BookingCanceled {
		t.Errorf("status = %s, want canceled", booking.Status)
	}
	if booking.PaymentStatus != models.PaymentRefunded {
		t.Errorf("payment status = %s, want refunded", booking.PaymentStatus)
	}

	// The held 600 came back.
	wallet, err := f.st.WalletByOwner(ctx, f.client)
	if err != nil {
		t.Fatalf("WalletByOwner: %v", err)
	}
	if !wallet.Balance.Equal(dec("1000")) {
		t.Errorf("client balance = %s, want 1000", wallet.Balance)
	}
	if _, err := ledger.Reconcile(ctx, f.st, f.client); err != nil {
		t.Errorf("Reconcile: %v", err)
	}
}

func TestClientCancelCompletedBooking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, action := range []string{ActionAccept, ActionComplete} {
		if _, err := ProviderTransition(ctx, f.st, notifier.LogNotifier{}, f.provider, f.booking.ID, action); err != nil {
			t.Fatalf("%s: %v", action, err)
		}
	}

	_, err := ClientCancel(ctx, f.st, notifier.LogNotifier{}, f.client, f.booking.ID)
	if apperr.KindOf(err) != apperr.KindInvalidState {
		t.Errorf("got %v, want invalid state", err)
	}

	// The release stands.
	providerWallet, _ := f.st.WalletByOwner(ctx, f.provider)
	if !providerWallet.Balance.Equal(dec("600")) {
		t.Errorf("provider balance = %s, want 600", providerWallet.Balance)
	}
}

func TestClientCancelForeignBooking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := ClientCancel(ctx, f.st, notifier.LogNotifier{}, uuid.New(), f.booking.ID); apperr.KindOf(err) != apperr.KindForbidden {
		t.Errorf("got %v, want forbidden", err)
	}
}

func TestAdminUpdateStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := uuid.New()

	before := len(f.booking.Timeline)
	booking, err := AdminUpdateStatus(ctx, f.st, admin, f.booking.ID, models.BookingSuspended)
	if err != nil {
		t.Fatalf("AdminUpdateStatus: %v", err)
	}
	if booking.Status != models.BookingSuspended {
		t.Errorf("status = %s, want suspended", booking.Status)
	}
	if len(booking.Timeline) != before+1 {
		t.Errorf("timeline not extended")
	}
	if len(booking.HistoryLogs) != 1 || booking.HistoryLogs[0].AdminID != admin {
		t.Errorf("history log missing or missing admin id: %+v", booking.HistoryLogs)
	}

	if _, err := AdminUpdateStatus(ctx, f.st, admin, f.booking.ID, "archived"); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("invalid status: got %v, want validation", err)
	}
}

func TestAdminAddWarning(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	admin := uuid.New()

	booking, err := AdminAddWarning(ctx, f.st, admin, f.booking.ID, models.WarnProvider, "deadline at risk")
	if err != nil {
		t.Fatalf("AdminAddWarning: %v", err)
	}
	if len(booking.Warnings) != 1 || booking.Warnings[0].Target != models.WarnProvider {
		t.Errorf("warnings = %+v, want one provider warning", booking.Warnings)
	}
	if len(booking.HistoryLogs) != 1 {
		t.Errorf("history log not written")
	}

	if _, err := AdminAddWarning(ctx, f.st, admin, f.booking.ID, models.WarnClient, ""); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("empty message: got %v, want validation", err)
	}
	if _, err := AdminAddWarning(ctx, f.st, admin, f.booking.ID, "vendor", "x"); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("bad target: got %v, want validation", err)
	}
}

func TestRecalculateRisk(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Force the deadline into the past so the score moves off zero.
	booking, err := f.st.BookingByID(ctx, f.booking.ID)
	if err != nil {
		t.Fatal(err)
	}
	booking.Deadline = time.Now().UTC().Add(-48 * time.Hour)
	if err := f.st.UpdateBooking(ctx, booking); err != nil {
		t.Fatal(err)
	}

	updated, factors, err := RecalculateRisk(ctx, f.st, f.booking.ID)
	if err != nil {
		t.Fatalf("RecalculateRisk: %v", err)
	}
	if updated.RiskScore == 0 {
		t.Error("risk score stayed 0 for an overdue booking")
	}
	if len(factors) == 0 {
		t.Error("no factors reported")
	}

	stored, _ := f.st.BookingByID(ctx, f.booking.ID)
	if stored.RiskScore != updated.RiskScore {
		t.Errorf("stored score = %d, want %d", stored.RiskScore, updated.RiskScore)
	}
}
