package handlers

import (
	"errors"
	"time"

	"sapa/internal/middleware"
	"sapa/internal/store"
	"sapa/internal/utils"

	"github.com/gofiber/fiber/v2"
)

// AuthService issues the session cookie that carries the trusted user id.
type AuthService struct {
	Store     store.Store
	JWTSecret string
	TokenTTL  time.Duration
}

// SignupRequest represents registration request body
type SignupRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *AuthService) setTokenCookie(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     "token",
		Value:    token,
		HTTPOnly: true,
		Secure:   false, // Set to true in production with HTTPS
		SameSite: "Lax",
		MaxAge:   int(s.TokenTTL.Seconds()),
	})
}

// Signup handles user registration
func (s *AuthService) Signup(c *fiber.Ctx) error {
	var req SignupRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Email == "" || req.Password == "" || req.FullName == "" {
		return fail(c, fiber.StatusBadRequest, "Email, password, and full name are required")
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to hash password")
	}

	user, err := s.Store.CreateUser(c.Context(), req.Email, req.FullName, hash)
	if errors.Is(err, store.ErrEmailTaken) {
		return fail(c, fiber.StatusConflict, "Email already registered")
	}
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to create user")
	}

	token, err := utils.GenerateToken(s.JWTSecret, user.ID, user.Email, s.TokenTTL)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to generate token")
	}
	s.setTokenCookie(c, token)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    user.ToResponse(),
	})
}

// Login handles user login
func (s *AuthService) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return fail(c, fiber.StatusBadRequest, "Email and password are required")
	}

	user, err := s.Store.UserByEmail(c.Context(), req.Email)
	if errors.Is(err, store.ErrNotFound) {
		return fail(c, fiber.StatusUnauthorized, "Invalid email or password")
	}
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Database error")
	}

	if !utils.CheckPassword(user.Password, req.Password) {
		return fail(c, fiber.StatusUnauthorized, "Invalid email or password")
	}

	token, err := utils.GenerateToken(s.JWTSecret, user.ID, user.Email, s.TokenTTL)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to generate token")
	}
	s.setTokenCookie(c, token)

	return c.JSON(fiber.Map{
		"success": true,
		"data":    user.ToResponse(),
	})
}

// Logout clears the session cookie
func (s *AuthService) Logout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     "token",
		Value:    "",
		HTTPOnly: true,
		SameSite: "Lax",
		MaxAge:   -1,
	})
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Logged out",
	})
}

// Me returns the authenticated user's profile
func (s *AuthService) Me(c *fiber.Ctx) error {
	user, err := s.Store.UserByID(c.Context(), middleware.UserID(c))
	if err != nil {
		return fail(c, storeErrStatus(err), "User not found")
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    user.ToResponse(),
	})
}
