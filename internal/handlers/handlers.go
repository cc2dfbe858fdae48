// Package handlers exposes the HTTP surface. Handlers parse and authenticate,
// then delegate to the domain packages; apperr kinds map onto HTTP statuses in
// one place.
package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/accountax/marketd/internal/apperr"
	"github.com/accountax/marketd/internal/logger"
	"github.com/accountax/marketd/internal/notifier"
	"github.com/accountax/marketd/internal/storage"
)

const requestTimeout = 10 * time.Second

var (
	Store  storage.Store
	Notify notifier.Notifier
)

func Init(st storage.Store, n notifier.Notifier) {
	Store = st
	Notify = n
}

func requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Context(), requestTimeout)
}

func currentUser(c *fiber.Ctx) uuid.UUID {
	return c.Locals("userID").(uuid.UUID)
}

func paramID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid id")
	}
	return id, nil
}

// writeError maps application errors onto HTTP responses. Internal errors get
// a generic message plus a correlation id for support; the detail stays in the
// logs.
func writeError(c *fiber.Ctx, err error) error {
	if ae := apperr.As(err); ae != nil && ae.Kind != apperr.KindInternal {
		body := fiber.Map{"error": ae.Msg}
		if ae.Kind == apperr.KindInsufficientFunds {
			body["required"] = ae.Required
			body["available"] = ae.Available
		}
		return c.Status(apperr.HTTPStatus(ae.Kind)).JSON(body)
	}

	correlationID := uuid.New()
	logger.Log.Error("Internal error",
		zap.String("correlationID", correlationID.String()),
		zap.String("path", c.Path()),
		zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":         "Internal server error",
		"correlationId": correlationID,
	})
}
