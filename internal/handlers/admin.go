package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/accountax/marketd/internal/apperr"
	"github.com/accountax/marketd/internal/bookings"
	"github.com/accountax/marketd/internal/logger"
	"github.com/accountax/marketd/internal/models"
	"github.com/accountax/marketd/internal/notifier"
	"github.com/accountax/marketd/internal/proposals"
	"github.com/accountax/marketd/internal/storage"
)

type RejectionRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type UpdateOrderStatusRequest struct {
	Status models.BookingStatus `json:"status" validate:"required"`
}

type AddWarningRequest struct {
	Target  models.WarningTarget `json:"target" validate:"required"`
	Message string               `json:"message" validate:"required"`
}

// ApproveRequestHandler moves a submitted request into the open pool where
// providers can bid on it.
func ApproveRequestHandler(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	id, err := paramID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	serviceRequest, err := Store.RequestByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return writeError(c, apperr.NotFound("request"))
		}
		return writeError(c, err)
	}
	if serviceRequest.Status != models.RequestSubmitted {
		return writeError(c, apperr.InvalidStatef(
			"only submitted requests can be approved, current status is %s", serviceRequest.Status))
	}

	if err := Store.SetRequestStatus(ctx, id, models.RequestOpen, ""); err != nil {
		logger.Log.Error("Error approving request", zap.Error(err))
		return writeError(c, err)
	}
	serviceRequest.Status = models.RequestOpen
	Notify.Emit(notifier.EventRequestApproved, serviceRequest.Client, map[string]any{
		"requestId": serviceRequest.ID,
	})

	logger.Log.Info("Request approved", zap.String("requestID", id.String()))
	return c.Status(fiber.StatusOK).JSON(serviceRequest)
}

func RejectRequestHandler(c *fiber.Ctx) error {
	var request RejectionRequest
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := c.BodyParser(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if request.Reason == "" {
		return writeError(c, apperr.Validation("rejection reason is required"))
	}

	id, err := paramID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	serviceRequest, err := Store.RequestByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return writeError(c, apperr.NotFound("request"))
		}
		return writeError(c, err)
	}
	if serviceRequest.Status != models.RequestSubmitted {
		return writeError(c, apperr.InvalidStatef(
			"only submitted requests can be rejected, current status is %s", serviceRequest.Status))
	}

	if err := Store.SetRequestStatus(ctx, id, models.RequestRejected, request.Reason); err != nil {
		logger.Log.Error("Error rejecting request", zap.Error(err))
		return writeError(c, err)
	}
	serviceRequest.Status = models.RequestRejected
	serviceRequest.RejectionReason = request.Reason
	Notify.Emit(notifier.EventRequestRejected, serviceRequest.Client, map[string]any{
		"requestId": serviceRequest.ID,
		"reason":    request.Reason,
	})

	return c.Status(fiber.StatusOK).JSON(serviceRequest)
}

// ApproveProposalHandler moderates a pending proposal into the active state,
// making it acceptable by the client.
func ApproveProposalHandler(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	id, err := paramID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	proposal, err := proposals.Approve(ctx, Store, Notify, id)
	if err != nil {
		return writeError(c, err)
	}

	logger.Log.Info("Proposal approved", zap.String("proposalID", id.String()))
	return c.Status(fiber.StatusOK).JSON(proposal)
}

func RejectProposalHandler(c *fiber.Ctx) error {
	var request RejectionRequest
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := c.BodyParser(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	id, err := paramID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	proposal, err := proposals.Reject(ctx, Store, Notify, id, request.Reason)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(proposal)
}

// InProgressOrdersHandler lists every booking still in flight, for the admin
// dashboard.
func InProgressOrdersHandler(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	list, err := Store.BookingsByStatus(ctx,
		models.BookingPending, models.BookingActive, models.BookingInProgress,
		models.BookingPendingReview, models.BookingSuspended)
	if err != nil {
		logger.Log.Error("Error listing orders", zap.Error(err))
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(list)
}

func GetOrderHandler(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	id, err := paramID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	booking, err := Store.BookingByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return writeError(c, apperr.NotFound("booking"))
		}
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(booking)
}

// UpdateOrderStatusHandler is the admin override. It skips the normal
// transition graph but always leaves a timeline event and a history log.
func UpdateOrderStatusHandler(c *fiber.Ctx) error {
	var request UpdateOrderStatusRequest
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := c.BodyParser(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	id, err := paramID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	adminID := currentUser(c)
	booking, err := bookings.AdminUpdateStatus(ctx, Store, adminID, id, request.Status)
	if err != nil {
		return writeError(c, err)
	}

	logger.Log.Info("Order status overridden",
		zap.String("bookingID", id.String()),
		zap.String("status", string(request.Status)),
		zap.String("adminID", adminID.String()))
	return c.Status(fiber.StatusOK).JSON(booking)
}

func AddWarningHandler(c *fiber.Ctx) error {
	var request AddWarningRequest
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := c.BodyParser(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	id, err := paramID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	booking, err := bookings.AdminAddWarning(ctx, Store, currentUser(c), id, request.Target, request.Message)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(booking)
}

func RecalculateRiskHandler(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	id, err := paramID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	booking, factors, err := bookings.RecalculateRisk(ctx, Store, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"booking":   booking,
		"riskScore": booking.RiskScore,
		"factors":   factors,
	})
}
