// Package escrow coordinates the accept-proposal sequence: hold the client's
// funds, create the booking, reject sibling bids and move the request to
// in-progress, all inside one storage transaction.
package escrow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/accountax/marketd/internal/apperr"
	"github.com/accountax/marketd/internal/ledger"
	"github.com/accountax/marketd/internal/logger"
	"github.com/accountax/marketd/internal/models"
	"github.com/accountax/marketd/internal/notifier"
	"github.com/accountax/marketd/internal/storage"
)

type AcceptResult struct {
	Booking models.Booking     `json:"booking"`
	Balance decimal.Decimal    `json:"balance"`
	Hold    models.Transaction `json:"holdTransaction"`
}

// AcceptProposal runs the whole accept sequence atomically. Either the hold,
// the booking, the sibling rejections and the request status change all become
// visible together, or none of them do. The concurrent-acceptance races are
// closed inside the transaction: the wallet debit is a conditional update and
// the booking insert hits a uniqueness guard on the request, so two racing
// accepts can never both hold funds or both create a booking.
func AcceptProposal(ctx context.Context, st storage.Store, n notifier.Notifier, clientID, proposalID uuid.UUID) (AcceptResult, error) {
	var result AcceptResult
	var provider uuid.UUID

	err := st.WithinTx(ctx, func(tx storage.Store) error {
		proposal, err := tx.ProposalByID(ctx, proposalID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return apperr.NotFound("proposal")
			}
			return apperr.Internal("failed to load proposal", err)
		}

		if proposal.Status != models.ProposalActive {
			return apperr.InvalidStatef("only approved proposals can be accepted (current status: %s)", proposal.Status)
		}

		request, err := tx.RequestByID(ctx, proposal.RequestID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return apperr.NotFound("request")
			}
			return apperr.Internal("failed to load request", err)
		}
		if request.Client != clientID {
			return apperr.Forbidden("request belongs to another client")
		}

		exists, err := tx.HasActiveBooking(ctx, request.ID)
		if err != nil {
			return apperr.Internal("failed to check existing bookings", err)
		}
		if exists {
			return apperr.BookingAlreadyExists()
		}

		// The booking id is allocated before the hold so the hold transaction
		// carries the full correlation from the start; no back-fill update.
		bookingID := uuid.New()
		corr := models.Correlation{
			RequestID:  &request.ID,
			ProposalID: &proposal.ID,
			BookingID:  &bookingID,
		}

		wallet, holdTx, err := ledger.Hold(ctx, tx, clientID, proposal.Price, corr)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		booking := models.Booking{
			ID:              bookingID,
			Client:          clientID,
			ServiceProvider: proposal.ServiceProvider,
			RequestID:       request.ID,
			OfferID:         proposal.ID,
			Proposal: models.ProposalSnapshot{
				Price:        proposal.Price,
				DurationDays: proposal.DurationDays,
				Notes:        proposal.Notes,
			},
			Status:        models.BookingPending,
			PaymentStatus: models.PaymentHeld,
			Deadline:      now.AddDate(0, 0, proposal.DurationDays),
			Timeline: []models.TimelineEvent{
				{Event: "submitted", Date: request.CreatedAt, Description: "Request submitted"},
				{Event: "offer_accepted", Date: now, Description: "Proposal accepted and funds held in escrow"},
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.InsertBooking(ctx, booking); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				return apperr.BookingAlreadyExists()
			}
			return apperr.Internal("failed to create booking", err)
		}

		if err := tx.SetProposalStatus(ctx, proposal.ID, models.ProposalAccepted, ""); err != nil {
			return apperr.Internal("failed to mark proposal accepted", err)
		}
		if _, err := tx.RejectPendingSiblings(ctx, request.ID, proposal.ID); err != nil {
			return apperr.Internal("failed to reject sibling proposals", err)
		}
		if err := tx.SetRequestStatus(ctx, request.ID, models.RequestInProgress, ""); err != nil {
			return apperr.Internal("failed to update request status", err)
		}

		provider = proposal.ServiceProvider
		result = AcceptResult{Booking: booking, Balance: wallet.Balance, Hold: holdTx}
		return nil
	})
	if err != nil {
		// Every precondition failure and every partial-failure rollback lands
		// here with full correlation for support.
		logger.Log.Warn("Accept proposal failed",
			zap.String("clientID", clientID.String()),
			zap.String("proposalID", proposalID.String()),
			zap.Error(err))
		return AcceptResult{}, err
	}

	n.Emit(notifier.EventProposalAccepted, provider, map[string]any{
		"proposalId": proposalID,
		"bookingId":  result.Booking.ID,
		"requestId":  result.Booking.RequestID,
	})

	logger.Log.Info("Proposal accepted",
		zap.String("clientID", clientID.String()),
		zap.String("proposalID", proposalID.String()),
		zap.String("bookingID", result.Booking.ID.String()),
		zap.String("price", result.Booking.Proposal.Price.StringFixed(2)))
	return result, nil
}
