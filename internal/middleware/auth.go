package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/accountax/marketd/internal/auth"
	"github.com/accountax/marketd/internal/models"
	"github.com/accountax/marketd/internal/tokenstorage"
)

func tokenFromRequest(c *fiber.Ctx) string {
	if token := c.Cookies("jwt"); token != "" {
		return token
	}
	header := c.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

func AuthMiddleware(c *fiber.Ctx) error {
	tokenString := tokenFromRequest(c)
	if tokenString == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}

	userID, role, err := auth.ParseToken(tokenString)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired token",
		})
	}

	if !tokenstorage.CheckToken(tokenString) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid or expired token",
		})
	}

	c.Locals("userID", userID)
	c.Locals("role", role)
	return c.Next()
}

func RequireRole(role models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Locals("role") != role {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Insufficient role",
			})
		}
		return c.Next()
	}
}
