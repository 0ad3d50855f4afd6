package middleware

import (
	"sapa/internal/utils"

	"github.com/gofiber/fiber/v2"
)

// Auth validates the JWT token cookie and stores the user id in locals.
func Auth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := c.Cookies("token")
		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "Unauthorized - No token provided",
			})
		}

		claims, err := utils.ValidateToken(secret, tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "Unauthorized - Invalid token",
			})
		}

		c.Locals("userID", claims.UserID)
		c.Locals("email", claims.Email)
		return c.Next()
	}
}

// UserID gets the authenticated user id from context.
func UserID(c *fiber.Ctx) string {
	id, ok := c.Locals("userID").(string)
	if !ok {
		return ""
	}
	return id
}
