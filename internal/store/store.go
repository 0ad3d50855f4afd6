package store

import (
	"context"
	"errors"
	"time"

	"sapa/internal/models"
)

var (
	// ErrEmptyMessage is returned when a message has neither text nor image.
	ErrEmptyMessage = errors.New("message cannot be empty")
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the requester is not allowed to mutate a record.
	ErrForbidden = errors.New("forbidden")
	// ErrEmailTaken is returned when registering with an email that already exists.
	ErrEmailTaken = errors.New("email already registered")
)

// Page is one slice of a conversation, newest first.
type Page struct {
	Messages []models.Message `json:"messages"`
	Total    int              `json:"total"`
	HasMore  bool             `json:"hasMore"`
}

// Store is the persistence contract for users and direct messages.
// A conversation between A and B is the set of messages exchanged in
// either direction; ordering truth is always CreatedAt.
type Store interface {
	// CreateUser persists a new user. Fails with ErrEmailTaken on duplicate email.
	CreateUser(ctx context.Context, email, fullName, passwordHash string) (models.User, error)
	UserByEmail(ctx context.Context, email string) (models.User, error)
	UserByID(ctx context.Context, id string) (models.User, error)
	// UsersExcept returns every user except the given one (sidebar listing).
	UsersExcept(ctx context.Context, id string) ([]models.User, error)
	TouchLastSeen(ctx context.Context, id string) error

	// AppendMessage persists a new message. Fails with ErrEmptyMessage when
	// both text and image are empty.
	AppendMessage(ctx context.Context, senderID, receiverID, text, image string) (models.Message, error)
	// Conversation returns one page of the conversation between userID and
	// otherID, ordered by CreatedAt descending. When page == 1, every unseen
	// message from otherID to userID is flagged seen as part of the same
	// logical read.
	Conversation(ctx context.Context, userID, otherID string, page, limit int) (Page, error)
	MessageByID(ctx context.Context, id string) (models.Message, error)
	// MarkSeen idempotently sets seen=true. Seen never transitions back.
	MarkSeen(ctx context.Context, id string) (models.Message, error)
	// SoftDelete tombstones a message. Only the sender may delete; the text is
	// replaced with models.DeletedPlaceholder and the image cleared.
	SoftDelete(ctx context.Context, id, requesterID string) (models.Message, error)
	// ToggleReaction adds the (userID, emoji) reaction, or removes it if the
	// exact pair is already present.
	ToggleReaction(ctx context.Context, id, userID, emoji string) (models.Message, error)
	// UnseenCounts returns, per partner id, how many of their messages to
	// ownerID are still unseen. Partners with zero unseen are omitted.
	UnseenCounts(ctx context.Context, ownerID string) (map[string]int, error)
	// LastMessageTimes returns, per partner id, the CreatedAt of the newest
	// message exchanged with ownerID in either direction.
	LastMessageTimes(ctx context.Context, ownerID string) (map[string]time.Time, error)
}
