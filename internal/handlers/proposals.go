package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/accountax/marketd/internal/escrow"
	"github.com/accountax/marketd/internal/logger"
	"github.com/accountax/marketd/internal/models"
	"github.com/accountax/marketd/internal/proposals"
)

type CreateProposalRequest struct {
	RequestID    string              `json:"request" validate:"required"`
	Price        decimal.Decimal     `json:"price" validate:"required"`
	DurationDays int                 `json:"durationDays" validate:"required"`
	Notes        string              `json:"notes"`
	Attachments  []models.Attachment `json:"attachments"`
}

type UpdateProposalRequest struct {
	Price        *decimal.Decimal    `json:"price"`
	DurationDays *int                `json:"durationDays"`
	Notes        *string             `json:"notes"`
	Attachments  []models.Attachment `json:"attachments"`
}

func CreateProposalHandler(c *fiber.Ctx) error {
	var request CreateProposalRequest
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := c.BodyParser(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	requestID, err := uuid.Parse(request.RequestID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request id",
		})
	}

	provider := currentUser(c)
	proposal, err := proposals.Submit(ctx, Store, Notify, provider, requestID, proposals.SubmitInput{
		Price:        request.Price,
		DurationDays: request.DurationDays,
		Notes:        request.Notes,
		Attachments:  request.Attachments,
	})
	if err != nil {
		return writeError(c, err)
	}

	logger.Log.Info("Proposal submitted",
		zap.String("proposalID", proposal.ID.String()),
		zap.String("provider", provider.String()))
	return c.Status(fiber.StatusCreated).JSON(proposal)
}

func MyProposalsHandler(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	list, err := Store.ProposalsByProvider(ctx, currentUser(c))
	if err != nil {
		logger.Log.Error("Error listing proposals", zap.Error(err))
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(list)
}

func UpdateProposalHandler(c *fiber.Ctx) error {
	var request UpdateProposalRequest
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

	proposal, err := proposals.Update(ctx, Store, currentUser(c), id, proposals.UpdateInput{
		Price:        request.Price,
		DurationDays: request.DurationDays,
		Notes:        request.Notes,
		Attachments:  request.Attachments,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(proposal)
}

func CancelProposalHandler(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	id, err := paramID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	proposal, err := proposals.Cancel(ctx, Store, currentUser(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(proposal)
}

// ListRequestProposalsHandler lets the request owner review the approved and
// pending bids on their request.
func ListRequestProposalsHandler(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	requestID, err := paramID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	list, err := proposals.ListByRequest(ctx, Store, currentUser(c), requestID)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(list)
}

// AcceptProposalHandler runs the escrow acceptance: hold the client's funds,
// create the booking, reject competing bids and move the request to
// in-progress, all atomically.
func AcceptProposalHandler(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	proposalID, err := paramID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	clientID := currentUser(c)
	result, err := escrow.AcceptProposal(ctx, Store, Notify, clientID, proposalID)
	if err != nil {
		return writeError(c, err)
	}

	logger.Log.Info("Proposal accepted",
		zap.String("proposalID", proposalID.String()),
		zap.String("bookingID", result.Booking.ID.String()),
		zap.String("client", clientID.String()))
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"booking": result.Booking,
		"balance": result.Balance,
		"hold":    result.Hold,
	})
}
