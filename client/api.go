package client

import (
	"context"
	"time"

	"sapa/internal/models"
)

// PageResult mirrors the body of GET /api/messages/:id.
type PageResult struct {
	Messages []models.Message `json:"messages"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	Limit    int              `json:"limit"`
	HasMore  bool             `json:"hasMore"`
}

// SidebarUser is one entry of GET /api/messages/users.
type SidebarUser struct {
	models.UserResponse
	LastMessageAt *time.Time `json:"lastMessageAt"`
}

// Attachment is an image going out with a message. LocalURI is what the
// provisional entry displays until the upload finishes.
type Attachment struct {
	Name     string
	Data     []byte
	LocalURI string
}

// API is the REST surface the chat core consumes. The live implementation
// is restClient; tests substitute a fake.
type API interface {
	Users(ctx context.Context) ([]SidebarUser, map[string]int, error)
	Messages(ctx context.Context, userID string, page, limit int) (PageResult, error)
	MessageDetail(ctx context.Context, id string) (models.Message, error)
	MarkSeen(ctx context.Context, id string) (models.Message, error)
	Send(ctx context.Context, receiverID, text string, att *Attachment) (models.Message, error)
	Delete(ctx context.Context, id string) (models.Message, error)
	ToggleReaction(ctx context.Context, id, emoji string) (models.Message, error)
}
