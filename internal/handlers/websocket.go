package handlers

import (
	"fmt"
	"io"

	"sapa/internal/media"
	"sapa/internal/ws"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// WSService upgrades authenticated requests into hub connections.
type WSService struct {
	Hub *ws.Hub
}

// Upgrade checks if the request should be upgraded to WebSocket
func (s *WSService) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fail(c, fiber.StatusUpgradeRequired, "WebSocket upgrade required")
}

// Handle registers the connection with the hub and runs the pumps.
func (s *WSService) Handle(c *websocket.Conn) {
	userID := c.Locals("userID").(string)

	client := ws.NewClient(userID, c, s.Hub)
	s.Hub.Register <- client

	go client.WritePump()
	client.ReadPump() // blocks until the connection closes
}

// Stats returns connection statistics, for debugging.
func (s *WSService) Stats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"onlineUsers": s.Hub.OnlineCount(),
			"userIds":     s.Hub.OnlineUsers(),
		},
	})
}

// MediaService serves stored message attachments.
type MediaService struct {
	Media *media.Store
}

// GetImage streams a stored image back to the client.
func (s *MediaService) GetImage(c *fiber.Ctx) error {
	filename := c.Params("filename")

	file, err := s.Media.Open(filename)
	if err != nil {
		return fail(c, fiber.StatusNotFound, "File not found")
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to get file info")
	}

	c.Set("Content-Type", media.ContentType(filename))
	c.Set("Content-Length", fmt.Sprintf("%d", info.Size()))
	if _, err := io.Copy(c.Response().BodyWriter(), file); err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to send file")
	}
	return nil
}
