package models

import "time"

// DeletedPlaceholder replaces the text of a soft-deleted message.
const DeletedPlaceholder = "This message was deleted"

// Reaction is a single (user, emoji) pair attached to a message.
// A user holds at most one reaction per distinct emoji on a message.
type Reaction struct {
	UserID string `json:"userId"`
	Emoji  string `json:"emoji"`
}

// Message represents a direct message between two users.
// SenderID and ReceiverID are always plain user ids, never embedded objects.
type Message struct {
	ID         string     `json:"id" db:"id"`
	SenderID   string     `json:"senderId" db:"sender_id"`
	ReceiverID string     `json:"receiverId" db:"receiver_id"`
	Text       string     `json:"text" db:"text"`
	Image      string     `json:"image" db:"image"`
	Seen       bool       `json:"seen" db:"seen"`
	Deleted    bool       `json:"deleted" db:"deleted"`
	Reactions  []Reaction `json:"reactions" db:"reactions"`
	CreatedAt  time.Time  `json:"createdAt" db:"created_at"`
}

// HasReaction reports whether userID already reacted with emoji.
func (m *Message) HasReaction(userID, emoji string) bool {
	for _, r := range m.Reactions {
		if r.UserID == userID && r.Emoji == emoji {
			return true
		}
	}
	return false
}
