package handlers

import (
	"errors"
	"log"
	"strconv"
	"time"

	"sapa/internal/media"
	"sapa/internal/middleware"
	"sapa/internal/models"
	"sapa/internal/store"
	"sapa/internal/ws"

	"github.com/gofiber/fiber/v2"
)

// MessageService exposes the message REST surface and emits the matching
// live events through the hub after each store mutation.
type MessageService struct {
	Store store.Store
	Hub   *ws.Hub
	Media *media.Store
}

// sidebarUser is a user entry in the sidebar listing, with the timestamp of
// the newest message exchanged with them (null when no history exists).
type sidebarUser struct {
	models.UserResponse
	LastMessageAt *time.Time `json:"lastMessageAt"`
}

func storeErrStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, store.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, store.ErrEmptyMessage):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func fail(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   msg,
	})
}

// GetUsersForSidebar returns every other user plus the per-user unseen
// message counts, for the conversation list.
func (s *MessageService) GetUsersForSidebar(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	ctx := c.Context()

	users, err := s.Store.UsersExcept(ctx, userID)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Database error")
	}
	unseen, err := s.Store.UnseenCounts(ctx, userID)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Database error")
	}
	last, err := s.Store.LastMessageTimes(ctx, userID)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Database error")
	}

	out := make([]sidebarUser, 0, len(users))
	for i := range users {
		su := sidebarUser{UserResponse: users[i].ToResponse()}
		if at, ok := last[users[i].ID]; ok {
			su.LastMessageAt = &at
		}
		out = append(out, su)
	}

	if unseen == nil {
		unseen = map[string]int{}
	}
	return c.JSON(fiber.Map{
		"success":        true,
		"users":          out,
		"unseenMessages": unseen,
	})
}

// GetMessages returns one page of the conversation with the user named in
// the path, newest first. Reading page 1 flags everything they sent as seen.
func (s *MessageService) GetMessages(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	otherID := c.Params("id")

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}

	result, err := s.Store.Conversation(c.Context(), userID, otherID, page, limit)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Database error")
	}

	if result.Messages == nil {
		result.Messages = []models.Message{}
	}
	return c.JSON(fiber.Map{
		"success":  true,
		"messages": result.Messages,
		"total":    result.Total,
		"page":     page,
		"limit":    limit,
		"hasMore":  result.HasMore,
	})
}

// GetMessageDetail returns a single message by id.
func (s *MessageService) GetMessageDetail(c *fiber.Ctx) error {
	msg, err := s.Store.MessageByID(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, storeErrStatus(err), "Message not found")
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": msg,
	})
}

// MarkMessageSeen flags one message seen and notifies its sender.
func (s *MessageService) MarkMessageSeen(c *fiber.Ctx) error {
	msg, err := s.Store.MarkSeen(c.Context(), c.Params("id"))
	if err != nil {
		return fail(c, storeErrStatus(err), "Message not found")
	}

	// Only the sender cares that their message was seen.
	s.Hub.EmitToUser(msg.SenderID, ws.Event{Type: ws.EventMessageSeen, Payload: msg})

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Message marked as seen",
		"data":    msg,
	})
}

// SendMessage creates a message from multipart form fields text and/or
// image. The attachment is stored first; its URI goes into the record.
func (s *MessageService) SendMessage(c *fiber.Ctx) error {
	senderID := middleware.UserID(c)
	receiverID := c.Params("id")
	if receiverID == "" {
		return fail(c, fiber.StatusBadRequest, "Receiver is required")
	}

	if _, err := s.Store.UserByID(c.Context(), receiverID); err != nil {
		return fail(c, storeErrStatus(err), "Receiver not found")
	}

	text := c.FormValue("text")
	imageURL := ""

	if file, err := c.FormFile("image"); err == nil && file != nil {
		src, err := file.Open()
		if err != nil {
			return fail(c, fiber.StatusBadRequest, "Failed to read image")
		}
		imageURL, err = s.Media.SaveImage(file.Filename, file.Size, src)
		src.Close()
		if err != nil {
			if errors.Is(err, media.ErrTooLarge) || errors.Is(err, media.ErrBadFormat) {
				return fail(c, fiber.StatusBadRequest, err.Error())
			}
			log.Printf("[messages] image upload failed: %v", err)
			return fail(c, fiber.StatusInternalServerError, "Failed to upload image")
		}
	}

	if text == "" && imageURL == "" {
		return fail(c, fiber.StatusBadRequest, "Message cannot be empty")
	}

	msg, err := s.Store.AppendMessage(c.Context(), senderID, receiverID, text, imageURL)
	if err != nil {
		return fail(c, storeErrStatus(err), "Failed to send message")
	}

	// Self-echo to the sender confirms the optimistic entry; the receiver
	// gets the live push.
	event := ws.Event{Type: ws.EventNewMessage, Payload: msg}
	s.Hub.EmitToUser(msg.SenderID, event)
	s.Hub.EmitToUser(msg.ReceiverID, event)

	return c.JSON(fiber.Map{
		"success": true,
		"message": msg,
	})
}

// DeleteMessage tombstones a message. Only the sender may delete.
func (s *MessageService) DeleteMessage(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	msg, err := s.Store.SoftDelete(c.Context(), c.Params("id"), userID)
	if errors.Is(err, store.ErrForbidden) {
		return fail(c, fiber.StatusForbidden, "Not authorized to delete this message")
	}
	if err != nil {
		return fail(c, storeErrStatus(err), "Message not found")
	}

	event := ws.Event{Type: ws.EventMessageDeleted, Payload: msg}
	s.Hub.EmitToUser(msg.SenderID, event)
	s.Hub.EmitToUser(msg.ReceiverID, event)

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Message deleted",
		"data":    msg,
	})
}

type reactionRequest struct {
	Emoji string `json:"emoji"`
}

// ToggleReaction adds or removes the caller's reaction on a message.
func (s *MessageService) ToggleReaction(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	var req reactionRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Emoji == "" {
		return fail(c, fiber.StatusBadRequest, "Emoji is required")
	}

	msg, err := s.Store.ToggleReaction(c.Context(), c.Params("id"), userID, req.Emoji)
	if err != nil {
		return fail(c, storeErrStatus(err), "Message not found")
	}

	event := ws.Event{Type: ws.EventMessageReactionUpdated, Payload: msg}
	s.Hub.EmitToUser(msg.SenderID, event)
	s.Hub.EmitToUser(msg.ReceiverID, event)

	return c.JSON(fiber.Map{
		"success": true,
		"message": msg,
	})
}
