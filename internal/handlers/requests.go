package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/accountax/marketd/internal/apperr"
	"github.com/accountax/marketd/internal/logger"
	"github.com/accountax/marketd/internal/models"
	"github.com/accountax/marketd/internal/storage"
)

type CreateRequestRequest struct {
	Title       string              `json:"title" validate:"required"`
	Description string              `json:"description"`
	Budget      decimal.Decimal     `json:"budget"`
	Deadline    *time.Time          `json:"deadline"`
	Attachments []models.Attachment `json:"attachments"`
}

type UpdateRequestRequest struct {
	Title       *string             `json:"title"`
	Description *string             `json:"description"`
	Budget      *decimal.Decimal    `json:"budget"`
	Deadline    *time.Time          `json:"deadline"`
	Attachments []models.Attachment `json:"attachments"`
}

// CreateRequestHandler posts a new service request. It starts in the
// "submitted" state and becomes visible to providers once an admin opens it.
func CreateRequestHandler(c *fiber.Ctx) error {
	var request CreateRequestRequest
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := c.BodyParser(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if request.Title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Title is required",
		})
	}
	if request.Budget.IsNegative() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Budget must not be negative",
		})
	}

	now := time.Now().UTC()
	serviceRequest := models.Request{
		ID:          uuid.New(),
		Client:      currentUser(c),
		Title:       request.Title,
		Description: request.Description,
		Attachments: request.Attachments,
		Budget:      request.Budget,
		Deadline:    request.Deadline,
		Status:      models.RequestSubmitted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := Store.InsertRequest(ctx, serviceRequest); err != nil {
		logger.Log.Error("Error creating request", zap.Error(err))
		return writeError(c, err)
	}

	logger.Log.Info("Request created",
		zap.String("requestID", serviceRequest.ID.String()),
		zap.String("client", serviceRequest.Client.String()))
	return c.Status(fiber.StatusCreated).JSON(serviceRequest)
}

func MyRequestsHandler(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	requests, err := Store.RequestsByClient(ctx, currentUser(c))
	if err != nil {
		logger.Log.Error("Error listing requests", zap.Error(err))
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(requests)
}

func GetRequestHandler(c *fiber.Ctx) error {
	serviceRequest, err := ownRequest(c, currentUser(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(serviceRequest)
}

func UpdateRequestHandler(c *fiber.Ctx) error {
	var request UpdateRequestRequest
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := c.BodyParser(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	serviceRequest, err := ownRequest(c, currentUser(c))
	if err != nil {
		return writeError(c, err)
	}
	if !serviceRequest.Proposable() {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Request can no longer be edited",
		})
	}

	if request.Title != nil {
		serviceRequest.Title = *request.Title
	}
	if request.Description != nil {
		serviceRequest.Description = *request.Description
	}
	if request.Budget != nil {
		if request.Budget.IsNegative() {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Budget must not be negative",
			})
		}
		serviceRequest.Budget = *request.Budget
	}
	if request.Deadline != nil {
		serviceRequest.Deadline = request.Deadline
	}
	if request.Attachments != nil {
		serviceRequest.Attachments = request.Attachments
	}
	serviceRequest.UpdatedAt = time.Now().UTC()

	if err := Store.UpdateRequest(ctx, serviceRequest); err != nil {
		logger.Log.Error("Error updating request", zap.Error(err))
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(serviceRequest)
}

func DeleteRequestHandler(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	serviceRequest, err := ownRequest(c, currentUser(c))
	if err != nil {
		return writeError(c, err)
	}
	if !serviceRequest.Proposable() {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Request can no longer be deleted",
		})
	}

	if err := Store.DeleteRequest(ctx, serviceRequest.ID); err != nil {
		logger.Log.Error("Error deleting request", zap.Error(err))
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Request deleted",
	})
}

// ListOpenRequestsHandler is the provider's browse view: only requests an
// admin has opened for bidding.
func ListOpenRequestsHandler(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	requests, err := Store.RequestsByStatus(ctx, models.RequestOpen)
	if err != nil {
		logger.Log.Error("Error listing open requests", zap.Error(err))
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(requests)
}

// GetOpenRequestHandler shows one request to a provider while it still accepts
// bids. Requests that left the bidding phase are hidden.
func GetOpenRequestHandler(c *fiber.Ctx) error {
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
	if !serviceRequest.Proposable() {
		return writeError(c, apperr.NotFound("request"))
	}
	return c.Status(fiber.StatusOK).JSON(serviceRequest)
}

func ownRequest(c *fiber.Ctx, clientID uuid.UUID) (models.Request, error) {
	ctx, cancel := requestContext(c)
	defer cancel()

	id, err := paramID(c, "id")
	if err != nil {
		return models.Request{}, err
	}
	serviceRequest, err := Store.RequestByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.Request{}, apperr.NotFound("request")
		}
		return models.Request{}, err
	}
	if serviceRequest.Client != clientID {
		return models.Request{}, apperr.Forbidden("request belongs to another client")
	}
	return serviceRequest, nil
}
