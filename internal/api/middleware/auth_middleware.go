package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/pkg/utils"
	"github.com/rs/zerolog/log"
)

type AuthMiddleware struct {
	secretKey string
}

func NewAuthMiddleware(secretKey string) *AuthMiddleware {
	return &AuthMiddleware{secretKey: secretKey}
}

// AuthMiddleware requires an operator JWT in the Authorization header.
func (m *AuthMiddleware) AuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(tokenString) == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing bearer token",
			})
		}

		claims, err := utils.ValidateToken(m.secretKey, strings.TrimSpace(tokenString))
		if err != nil {
			log.Warn().Err(err).Str("ip", c.IP()).Msg("operator token validation failed")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals("operator", claims.Operator)
		return c.Next()
	}
}
