// Package proposals manages the bid lifecycle on a request: submission,
// moderation, edits and withdrawal. Acceptance lives in package escrow because
// it touches wallets, bookings and the request in one transaction.
package proposals

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/accountax/marketd/internal/apperr"
	"github.com/accountax/marketd/internal/logger"
	"github.com/accountax/marketd/internal/models"
	"github.com/accountax/marketd/internal/notifier"
	"github.com/accountax/marketd/internal/storage"
)

type SubmitInput struct {
	Price        decimal.Decimal
	DurationDays int
	Notes        string
	Attachments  []models.Attachment
}

func Submit(ctx context.Context, st storage.Store, n notifier.Notifier, provider, requestID uuid.UUID, in SubmitInput) (models.Proposal, error) {
	if in.Price.IsNegative() {
		return models.Proposal{}, apperr.Validation("price must not be negative")
	}
	if in.DurationDays < 1 {
		return models.Proposal{}, apperr.Validation("durationDays must be at least 1")
	}

	request, err := st.RequestByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.Proposal{}, apperr.NotFound("request")
		}
		return models.Proposal{}, apperr.Internal("failed to load request", err)
	}
	if !request.Proposable() {
		return models.Proposal{}, apperr.InvalidStatef("cannot propose on a request with status %s", request.Status)
	}

	open, err := st.HasOpenProposal(ctx, requestID, provider)
	if err != nil {
		return models.Proposal{}, apperr.Internal("failed to check existing proposals", err)
	}
	if open {
		return models.Proposal{}, apperr.DuplicateProposal()
	}

	now := time.Now().UTC()
	proposal := models.Proposal{
		ID:              uuid.New(),
		RequestID:       requestID,
		ServiceProvider: provider,
		Price:           in.Price,
		DurationDays:    in.DurationDays,
		Notes:           in.Notes,
		Attachments:     in.Attachments,
		Status:          models.ProposalPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := st.InsertProposal(ctx, proposal); err != nil {
		// The pre-check and the insert are not one atomic unit; the unique
		// guard in the store closes the race.
		if errors.Is(err, storage.ErrDuplicate) {
			return models.Proposal{}, apperr.DuplicateProposal()
		}
		return models.Proposal{}, apperr.Internal("failed to create proposal", err)
	}

	n.Emit(notifier.EventProposalSubmitted, request.Client, map[string]any{
		"requestId":  requestID,
		"proposalId": proposal.ID,
		"price":      proposal.Price,
	})

	logger.Log.Info("Proposal submitted",
		zap.String("proposalID", proposal.ID.String()),
		zap.String("requestID", requestID.String()),
		zap.String("provider", provider.String()))
	return proposal, nil
}

// Approve promotes a pending proposal to active, making it acceptable by the
// client. Admin only.
func Approve(ctx context.Context, st storage.Store, n notifier.Notifier, id uuid.UUID) (models.Proposal, error) {
	proposal, err := get(ctx, st, id)
	if err != nil {
		return models.Proposal{}, err
	}
	if proposal.Status != models.ProposalPending {
		return models.Proposal{}, apperr.InvalidStatef("only pending proposals can be approved (current status: %s)", proposal.Status)
	}
	if err := st.SetProposalStatus(ctx, id, models.ProposalActive, ""); err != nil {
		return models.Proposal{}, apperr.Internal("failed to update proposal status", err)
	}
	proposal.Status = models.ProposalActive

	n.Emit(notifier.EventProposalApproved, proposal.ServiceProvider, map[string]any{
		"proposalId": proposal.ID,
	})
	return proposal, nil
}

// Reject turns down a pending proposal. A reason is required. Admin only.
func Reject(ctx context.Context, st storage.Store, n notifier.Notifier, id uuid.UUID, reason string) (models.Proposal, error) {
	if reason == "" {
		return models.Proposal{}, apperr.Validation("rejection reason is required")
	}
	proposal, err := get(ctx, st, id)
	if err != nil {
		return models.Proposal{}, err
	}
	if proposal.Status != models.ProposalPending {
		return models.Proposal{}, apperr.InvalidStatef("only pending proposals can be rejected (current status: %s)", proposal.Status)
	}
	if err := st.SetProposalStatus(ctx, id, models.ProposalRejected, reason); err != nil {
		return models.Proposal{}, apperr.Internal("failed to update proposal status", err)
	}
	proposal.Status = models.ProposalRejected
	proposal.RejectionReason = reason

	n.Emit(notifier.EventProposalRejected, proposal.ServiceProvider, map[string]any{
		"proposalId": proposal.ID,
		"reason":     reason,
	})
	return proposal, nil
}

type UpdateInput struct {
	Price        *decimal.Decimal
	DurationDays *int
	Notes        *string
	Attachments  []models.Attachment
}

// Update edits price, duration, notes or attachments while the proposal is
// still pending. Provider only; nothing else is editable.
func Update(ctx context.Context, st storage.Store, provider, id uuid.UUID, in UpdateInput) (models.Proposal, error) {
	proposal, err := get(ctx, st, id)
	if err != nil {
		return models.Proposal{}, err
	}
	if proposal.ServiceProvider != provider {
		return models.Proposal{}, apperr.Forbidden("proposal belongs to another provider")
	}
	if proposal.Status != models.ProposalPending {
		return models.Proposal{}, apperr.InvalidStatef("only pending proposals can be updated (current status: %s)", proposal.Status)
	}

	if in.Price != nil {
		if in.Price.IsNegative() {
			return models.Proposal{}, apperr.Validation("price must not be negative")
		}
		proposal.Price = *in.Price
	}
	if in.DurationDays != nil {
		if *in.DurationDays < 1 {
			return models.Proposal{}, apperr.Validation("durationDays must be at least 1")
		}
		proposal.DurationDays = *in.DurationDays
	}
	if in.Notes != nil {
		proposal.Notes = *in.Notes
	}
	if in.Attachments != nil {
		proposal.Attachments = in.Attachments
	}

	if err := st.UpdateProposal(ctx, proposal); err != nil {
		return models.Proposal{}, apperr.Internal("failed to update proposal", err)
	}
	return proposal, nil
}

// Cancel withdraws a pending proposal. Provider only.
func Cancel(ctx context.Context, st storage.Store, provider, id uuid.UUID) (models.Proposal, error) {
	proposal, err := get(ctx, st, id)
	if err != nil {
		return models.Proposal{}, err
	}
	if proposal.ServiceProvider != provider {
		return models.Proposal{}, apperr.Forbidden("proposal belongs to another provider")
	}
	if proposal.Status != models.ProposalPending {
		return models.Proposal{}, apperr.InvalidStatef("only pending proposals can be canceled (current status: %s)", proposal.Status)
	}
	if err := st.SetProposalStatus(ctx, id, models.ProposalCanceled, ""); err != nil {
		return models.Proposal{}, apperr.Internal("failed to cancel proposal", err)
	}
	proposal.Status = models.ProposalCanceled
	return proposal, nil
}

// ListByRequest returns a request's proposals to its owning client.
func ListByRequest(ctx context.Context, st storage.Store, client, requestID uuid.UUID) ([]models.Proposal, error) {
	request, err := st.RequestByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperr.NotFound("request")
		}
		return nil, apperr.Internal("failed to load request", err)
	}
	if request.Client != client {
		return nil, apperr.Forbidden("request belongs to another client")
	}
	list, err := st.ProposalsByRequest(ctx, requestID)
	if err != nil {
		return nil, apperr.Internal("failed to list proposals", err)
	}
	return list, nil
}

func get(ctx context.Context, st storage.Store, id uuid.UUID) (models.Proposal, error) {
	proposal, err := st.ProposalByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.Proposal{}, apperr.NotFound("proposal")
		}
		return models.Proposal{}, apperr.Internal("failed to load proposal", err)
	}
	return proposal, nil
}
