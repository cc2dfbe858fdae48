// Package bookings enforces the booking lifecycle after a proposal is
// accepted. Provider and client transitions follow a fixed graph; the admin
// override bypasses it but always leaves timeline and history entries behind.
package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/accountax/marketd/internal/apperr"
	"github.com/accountax/marketd/internal/ledger"
	"github.com/accountax/marketd/internal/logger"
	"github.com/accountax/marketd/internal/models"
	"github.com/accountax/marketd/internal/notifier"
	"github.com/accountax/marketd/internal/risk"
	"github.com/accountax/marketd/internal/storage"
)

const (
	ActionAccept   = "accept"
	ActionStart    = "start"
	ActionComplete = "complete"
)

// ProviderTransition applies one of the provider actions. Complete releases
// the held funds to the provider in the same transaction as the status change.
func ProviderTransition(ctx context.Context, st storage.Store, n notifier.Notifier, provider, bookingID uuid.UUID, action string) (models.Booking, error) {
	var updated models.Booking

	err := st.WithinTx(ctx, func(tx storage.Store) error {
		booking, err := get(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if booking.ServiceProvider != provider {
			return apperr.Forbidden("booking belongs to another provider")
		}

		now := time.Now().UTC()
		switch action {
		case ActionAccept:
			if booking.Status != models.BookingPending {
				return invalidTransition(booking.Status, action, models.BookingPending)
			}
			booking.Status = models.BookingActive
			booking.Timeline = append(booking.Timeline, models.TimelineEvent{
				Event: "provider_accepted", Date: now, Description: "Provider accepted the booking",
			})

		case ActionStart:
			if booking.Status != models.BookingActive {
				return invalidTransition(booking.Status, action, models.BookingActive)
			}
			// Idempotent marker: the status stays active, the first call
			// records when work began.
			if booking.StartDate == nil {
				booking.StartDate = &now
				booking.Timeline = append(booking.Timeline, models.TimelineEvent{
					Event: "work_started", Date: now, Description: "Provider started working",
				})
			}

		case ActionComplete:
			if booking.Status != models.BookingActive {
				return invalidTransition(booking.Status, action, models.BookingActive)
			}
			booking.Status = models.BookingCompleted
			booking.Timeline = append(booking.Timeline, models.TimelineEvent{
				Event: "completed", Date: now, Description: "Provider marked the booking completed",
			})
			if booking.PaymentStatus == models.PaymentHeld {
				corr := correlation(booking)
				if err := ledger.Release(ctx, tx, booking.Client, booking.ServiceProvider, booking.Proposal.Price, corr); err != nil {
					return err
				}
				booking.PaymentStatus = models.PaymentReleased
			}

		default:
			return apperr.Validation(fmt.Sprintf("unknown action %q", action))
		}

		if err := tx.UpdateBooking(ctx, booking); err != nil {
			return apperr.Internal("failed to update booking", err)
		}
		updated = booking
		return nil
	})
	if err != nil {
		return models.Booking{}, err
	}

	if action == ActionComplete {
		n.Emit(notifier.EventBookingCompleted, updated.Client, map[string]any{
			"bookingId": updated.ID,
		})
	}

	logger.Log.Info("Booking transition",
		zap.String("bookingID", bookingID.String()),
		zap.String("action", action),
		zap.String("status", string(updated.Status)))
	return updated, nil
}

// ClientCancel cancels the booking from any non-completed status and refunds
// the held amount, atomically.
func ClientCancel(ctx context.Context, st storage.Store, n notifier.Notifier, client, bookingID uuid.UUID) (models.Booking, error) {
	var updated models.Booking

	err := st.WithinTx(ctx, func(tx storage.Store) error {
		booking, err := get(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if booking.Client != client {
			return apperr.Forbidden("booking belongs to another client")
		}
		if booking.Status == models.BookingCompleted {
			return apperr.InvalidState("cannot cancel a completed booking")
		}

		now := time.Now().UTC()
		booking.Status = models.BookingCanceled
		booking.Timeline = append(booking.Timeline, models.TimelineEvent{
			Event: "canceled", Date: now, Description: "Client canceled the booking",
		})

		if booking.PaymentStatus == models.PaymentHeld {
			corr := correlation(booking)
			if _, _, err := ledger.Refund(ctx, tx, booking.Client, booking.Proposal.Price, corr); err != nil {
				return err
			}
			booking.PaymentStatus = models.PaymentRefunded
		}

		if err := tx.UpdateBooking(ctx, booking); err != nil {
			return apperr.Internal("failed to update booking", err)
		}
		updated = booking
		return nil
	})
	if err != nil {
		return models.Booking{}, err
	}

	n.Emit(notifier.EventBookingCanceled, updated.ServiceProvider, map[string]any{
		"bookingId": updated.ID,
	})

	logger.Log.Info("Booking canceled",
		zap.String("bookingID", bookingID.String()),
		zap.String("clientID", client.String()))
	return updated, nil
}

// AdminUpdateStatus sets any declared status, bypassing the transition graph.
// The escape hatch is intentional; every use appends a timeline event and a
// history log naming the admin and the old/new status.
func AdminUpdateStatus(ctx context.Context, st storage.Store, admin, bookingID uuid.UUID, status models.BookingStatus) (models.Booking, error) {
	if !models.ValidBookingStatus(status) {
		return models.Booking{}, apperr.Validation(fmt.Sprintf("invalid booking status %q", status))
	}

	var updated models.Booking
	err := st.WithinTx(ctx, func(tx storage.Store) error {
		booking, err := get(ctx, tx, bookingID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		oldStatus := booking.Status
		booking.Status = status
		booking.Timeline = append(booking.Timeline, models.TimelineEvent{
			Event:       fmt.Sprintf("status_changed_to_%s", status),
			Date:        now,
			Description: fmt.Sprintf("Status changed from %s to %s by admin", oldStatus, status),
		})
		booking.HistoryLogs = append(booking.HistoryLogs, models.HistoryLog{
			Action:    "status_changed",
			AdminID:   admin,
			Timestamp: now,
			Details:   fmt.Sprintf("Changed from %s to %s", oldStatus, status),
		})

		if err := tx.UpdateBooking(ctx, booking); err != nil {
			return apperr.Internal("failed to update booking", err)
		}
		updated = booking
		return nil
	})
	if err != nil {
		return models.Booking{}, err
	}

	logger.Log.Info("Admin status override",
		zap.String("bookingID", bookingID.String()),
		zap.String("adminID", admin.String()),
		zap.String("status", string(status)))
	return updated, nil
}

// AdminAddWarning records a warning against one side of the booking.
func AdminAddWarning(ctx context.Context, st storage.Store, admin, bookingID uuid.UUID, target models.WarningTarget, message string) (models.Booking, error) {
	if target != models.WarnClient && target != models.WarnProvider {
		return models.Booking{}, apperr.Validation(`target must be "client" or "provider"`)
	}
	if message == "" {
		return models.Booking{}, apperr.Validation("warning message is required")
	}

	var updated models.Booking
	err := st.WithinTx(ctx, func(tx storage.Store) error {
		booking, err := get(ctx, tx, bookingID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		booking.Warnings = append(booking.Warnings, models.Warning{
			Target: target, Message: message, AdminID: admin, CreatedAt: now,
		})
		booking.HistoryLogs = append(booking.HistoryLogs, models.HistoryLog{
			Action:    "warning_added",
			AdminID:   admin,
			Timestamp: now,
			Details:   fmt.Sprintf("Warning added to %s: %s", target, message),
		})

		if err := tx.UpdateBooking(ctx, booking); err != nil {
			return apperr.Internal("failed to update booking", err)
		}
		updated = booking
		return nil
	})
	if err != nil {
		return models.Booking{}, err
	}
	return updated, nil
}

// RecalculateRisk rescores the booking and stores the result. The score is a
// read-only signal: it never triggers a transition.
func RecalculateRisk(ctx context.Context, st storage.Store, bookingID uuid.UUID) (models.Booking, []risk.Factor, error) {
	booking, err := get(ctx, st, bookingID)
	if err != nil {
		return models.Booking{}, nil, err
	}

	score, factors := risk.Score(booking, time.Now().UTC())
	if score != booking.RiskScore {
		booking.RiskScore = score
		if err := st.UpdateBooking(ctx, booking); err != nil {
			return models.Booking{}, nil, apperr.Internal("failed to store risk score", err)
		}
	}
	return booking, factors, nil
}

func get(ctx context.Context, st storage.Store, id uuid.UUID) (models.Booking, error) {
	booking, err := st.BookingByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.Booking{}, apperr.NotFound("booking")
		}
		return models.Booking{}, apperr.Internal("failed to load booking", err)
	}
	return booking, nil
}

func invalidTransition(current models.BookingStatus, action string, required models.BookingStatus) error {
	return apperr.InvalidStatef("cannot %s a booking with status %s (requires status %s)", action, current, required)
}

func correlation(b models.Booking) models.Correlation {
	id := b.ID
	requestID := b.RequestID
	offerID := b.OfferID
	return models.Correlation{RequestID: &requestID, ProposalID: &offerID, BookingID: &id}
}
