package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/accountax/marketd/internal/auth"
	"github.com/accountax/marketd/internal/ledger"
	"github.com/accountax/marketd/internal/logger"
	"github.com/accountax/marketd/internal/models"
	"github.com/accountax/marketd/internal/storage"
	"github.com/accountax/marketd/internal/tokenstorage"
)

type RegisterRequest struct {
	Email    string      `json:"email" validate:"required"`
	Password string      `json:"password" validate:"required"`
	Name     string      `json:"name" validate:"required"`
	Role     models.Role `json:"role" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func setAuthToken(c *fiber.Ctx, token string) {
	tokenstorage.AddToken(token)
	c.Cookie(&fiber.Cookie{
		Name:     "jwt",
		Value:    token,
		Expires:  time.Now().Add(auth.TokenExp),
		HTTPOnly: true,
	})
	c.Set("Authorization", "Bearer "+token)
}

func RegisterHandler(c *fiber.Ctx) error {
	var request RegisterRequest
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := c.BodyParser(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if request.Email == "" || request.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Email and password are required",
		})
	}
	if !models.ValidRole(request.Role) || request.Role == models.RoleAdmin {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Role must be client or serviceProvider",
		})
	}

	_, err := Store.UserByEmail(ctx, request.Email)
	if err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "User already exists",
		})
	}
	if !errors.Is(err, storage.ErrNotFound) {
		logger.Log.Error("Error while querying user", zap.Error(err))
		return writeError(c, err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(request.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.Log.Error("Error hashing password", zap.Error(err))
		return writeError(c, err)
	}

	user := models.User{
		ID:           uuid.New(),
		Email:        request.Email,
		Name:         request.Name,
		PasswordHash: string(hashedPassword),
		Role:         request.Role,
		CreatedAt:    time.Now().UTC(),
	}
	if err := Store.CreateUser(ctx, user); err != nil {
		logger.Log.Error("Error creating user", zap.Error(err))
		return writeError(c, err)
	}

	if _, err := ledger.EnsureWallet(ctx, Store, user.ID); err != nil {
		logger.Log.Error("Error creating wallet", zap.Error(err))
		return writeError(c, err)
	}

	token, err := auth.GenerateToken(user.ID, user.Role)
	if err != nil {
		logger.Log.Error("Error generating token", zap.Error(err))
		return writeError(c, err)
	}
	setAuthToken(c, token)

	logger.Log.Info("User registered",
		zap.String("userID", user.ID.String()), zap.String("role", string(user.Role)))
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "User registered successfully",
		"user":    user,
	})
}

func LoginHandler(c *fiber.Ctx) error {
	var request LoginRequest
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := c.BodyParser(&request); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	user, err := Store.UserByEmail(ctx, request.Email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Wrong email or password",
			})
		}
		logger.Log.Error("Error while querying user", zap.Error(err))
		return writeError(c, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(request.Password)); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Wrong email or password",
		})
	}

	token, err := auth.GenerateToken(user.ID, user.Role)
	if err != nil {
		logger.Log.Error("Error generating token", zap.Error(err))
		return writeError(c, err)
	}
	setAuthToken(c, token)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "User authorized successfully",
		"user":    user,
	})
}
