package ws

// EventType represents different WebSocket event types
type EventType string

const (
	// Message events, point-to-point
	EventNewMessage             EventType = "newMessage"
	EventMessageSeen            EventType = "messageSeen"
	EventMessageDeleted         EventType = "messageDeleted"
	EventMessageReactionUpdated EventType = "messageReactionUpdated"

	// Typing indicator events, relayed between the two participants
	EventTyping     EventType = "typing"
	EventStopTyping EventType = "stopTyping"

	// Presence event, broadcast to every connected client
	EventOnlineUsers EventType = "onlineUsers"
)

// Event is the wire envelope for every socket emission.
type Event struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload"`
}

// TypingPayload carries a typing indicator between participants.
type TypingPayload struct {
	UserID     string `json:"userId"`
	ReceiverID string `json:"receiverId"`
}

// IncomingEvent represents events received from clients. Only typing
// indicators travel client-to-server; everything else goes through REST.
type IncomingEvent struct {
	Type    EventType `json:"type"`
	Payload struct {
		ReceiverID string `json:"receiverId"`
	} `json:"payload"`
}
