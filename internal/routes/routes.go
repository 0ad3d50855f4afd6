package routes

import (
	"sapa/internal/handlers"
	"sapa/internal/middleware"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// Deps carries the wired services the route tree needs.
type Deps struct {
	Auth      *handlers.AuthService
	Messages  *handlers.MessageService
	WS        *handlers.WSService
	Media     *handlers.MediaService
	JWTSecret string
}

// Setup configures all application routes
func Setup(app *fiber.App, d Deps) {
	api := app.Group("/api")

	// Health check (public)
	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"message": "Sapa API is running",
		})
	})

	authRequired := middleware.Auth(d.JWTSecret)

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/signup", middleware.StrictRateLimiter(), d.Auth.Signup)
	auth.Post("/login", middleware.StrictRateLimiter(), d.Auth.Login)
	auth.Post("/logout", authRequired, d.Auth.Logout)
	auth.Get("/me", authRequired, d.Auth.Me)

	// Message routes (protected)
	messages := api.Group("/messages", authRequired)
	messages.Get("/users", d.Messages.GetUsersForSidebar)
	messages.Get("/detail/:id", d.Messages.GetMessageDetail)
	messages.Put("/mark/:id", d.Messages.MarkMessageSeen)
	messages.Post("/send/:id", middleware.UploadRateLimiter(), d.Messages.SendMessage)
	messages.Post("/reaction/:id", d.Messages.ToggleReaction)
	messages.Get("/:id", d.Messages.GetMessages)
	messages.Delete("/:id", d.Messages.DeleteMessage)

	// Serve uploaded images (public)
	app.Get("/uploads/images/:filename", d.Media.GetImage)

	// WebSocket route (protected)
	api.Get("/ws", authRequired, d.WS.Upgrade, websocket.New(d.WS.Handle))

	// WebSocket stats (protected, for debugging)
	api.Get("/ws/stats", authRequired, d.WS.Stats)
}
