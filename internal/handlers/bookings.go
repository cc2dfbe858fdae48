package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/accountax/marketd/internal/apperr"
	"github.com/accountax/marketd/internal/bookings"
	"github.com/accountax/marketd/internal/logger"
	"github.com/accountax/marketd/internal/models"
	"github.com/accountax/marketd/internal/storage"
)

func MyBookingsHandler(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	userID := currentUser(c)
	var (
		list []models.Booking
		err  error
	)
	if c.Locals("role") == models.RoleServiceProvider {
		list, err = Store.BookingsByProvider(ctx, userID)
	} else {
		list, err = Store.BookingsByClient(ctx, userID)
	}
	if err != nil {
		logger.Log.Error("Error listing bookings", zap.Error(err))
		return writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(list)
}

// GetBookingHandler returns a single booking to one of its two parties.
func GetBookingHandler(c *fiber.Ctx) error {
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

	userID := currentUser(c)
	if booking.Client != userID && booking.ServiceProvider != userID {
		return writeError(c, apperr.Forbidden("booking belongs to another user"))
	}
	return c.Status(fiber.StatusOK).JSON(booking)
}

func CancelBookingHandler(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	id, err := paramID(c, "id")
	if err != nil {
		return writeError(c, err)
	}

	booking, err := bookings.ClientCancel(ctx, Store, Notify, currentUser(c), id)
	if err != nil {
		return writeError(c, err)
	}

	logger.Log.Info("Booking canceled",
		zap.String("bookingID", booking.ID.String()),
		zap.String("paymentStatus", string(booking.PaymentStatus)))
	return c.Status(fiber.StatusOK).JSON(booking)
}

// TransitionBookingHandler handles the provider's lifecycle actions:
// accept, start and complete.
func TransitionBookingHandler(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	id, err := paramID(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	action := c.Params("action")

	booking, err := bookings.ProviderTransition(ctx, Store, Notify, currentUser(c), id, action)
	if err != nil {
		return writeError(c, err)
	}

	logger.Log.Info("Booking transitioned",
		zap.String("bookingID", booking.ID.String()),
		zap.String("action", action),
		zap.String("status", string(booking.Status)))
	return c.Status(fiber.StatusOK).JSON(booking)
}
