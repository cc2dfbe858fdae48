package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/accountax/marketd/internal/ledger"
	"github.com/accountax/marketd/internal/logger"
)

type DepositRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required"`
}

// GetWalletHandler returns the caller's wallet with its recent transactions.
// Shared by clients and providers; each sees only their own ledger.
func GetWalletHandler(c *fiber.Ctx) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	wallet, transactions, err := ledger.Statement(ctx, Store, currentUser(c))
	if err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"wallet":       wallet,
		"transactions": transactions,
	})
}

func DepositHandler(c *fiber.Ctx) error {
	var request DepositRequest
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := c.BodyParser(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	userID := currentUser(c)
	wallet, transaction, err := ledger.Deposit(ctx, Store, userID, request.Amount)
	if err != nil {
		return writeError(c, err)
	}

	logger.Log.Info("Deposit completed",
		zap.String("userID", userID.String()),
		zap.String("amount", request.Amount.String()))
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"wallet":      wallet,
		"transaction": transaction,
	})
}
