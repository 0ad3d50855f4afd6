package memory

import (
	"context"
	"sync"
	"time"

	"sapa/internal/models"
	"sapa/internal/store"

	"github.com/google/uuid"
)

// Store is an in-memory implementation of store.Store. It backs the test
// suites and works as a throwaway dev backend; nothing survives a restart.
type Store struct {
	mu       sync.RWMutex
	users    []models.User
	messages []models.Message // kept in insertion order, which is creation order
}

func New() *Store {
	return &Store{}
}

var _ store.Store = (*Store)(nil)

func (s *Store) CreateUser(ctx context.Context, email, fullName, passwordHash string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email {
			return models.User{}, store.ErrEmailTaken
		}
	}
	u := models.User{
		ID:        uuid.New().String(),
		Email:     email,
		FullName:  fullName,
		Password:  passwordHash,
		LastSeen:  time.Now(),
		CreatedAt: time.Now(),
	}
	s.users = append(s.users, u)
	return u, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, store.ErrNotFound
}

func (s *Store) UserByID(ctx context.Context, id string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return models.User{}, store.ErrNotFound
}

func (s *Store) UsersExcept(ctx context.Context, id string) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		if u.ID != id {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *Store) TouchLastSeen(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.users {
		if s.users[i].ID == id {
			s.users[i].LastSeen = time.Now()
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) AppendMessage(ctx context.Context, senderID, receiverID, text, image string) (models.Message, error) {
	if text == "" && image == "" {
		return models.Message{}, store.ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m := models.Message{
		ID:         uuid.New().String(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		Image:      image,
		Reactions:  []models.Reaction{},
		CreatedAt:  time.Now(),
	}
	s.messages = append(s.messages, m)
	return m, nil
}

// conversationDesc returns indexes of the conversation's messages, newest first.
func (s *Store) conversationDesc(userID, otherID string) []int {
	var idx []int
	for i := len(s.messages) - 1; i >= 0; i-- {
		m := &s.messages[i]
		if (m.SenderID == userID && m.ReceiverID == otherID) ||
			(m.SenderID == otherID && m.ReceiverID == userID) {
			idx = append(idx, i)
		}
	}
	return idx
}

func (s *Store) Conversation(ctx context.Context, userID, otherID string, page, limit int) (store.Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.conversationDesc(userID, otherID)
	total := len(idx)
	offset := (page - 1) * limit

	var msgs []models.Message
	for i := offset; i < total && i < offset+limit; i++ {
		msgs = append(msgs, s.messages[idx[i]])
	}

	if page == 1 {
		for _, i := range idx {
			m := &s.messages[i]
			if m.SenderID == otherID && m.ReceiverID == userID && !m.Seen {
				m.Seen = true
			}
		}
	}

	return store.Page{
		Messages: msgs,
		Total:    total,
		HasMore:  offset+len(msgs) < total,
	}, nil
}

func (s *Store) find(id string) (*models.Message, error) {
	for i := range s.messages {
		if s.messages[i].ID == id {
			return &s.messages[i], nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) MessageByID(ctx context.Context, id string) (models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, err := s.find(id)
	if err != nil {
		return models.Message{}, err
	}
	return *m, nil
}

func (s *Store) MarkSeen(ctx context.Context, id string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.find(id)
	if err != nil {
		return models.Message{}, err
	}
	m.Seen = true
	return *m, nil
}

func (s *Store) SoftDelete(ctx context.Context, id, requesterID string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.find(id)
	if err != nil {
		return models.Message{}, err
	}
	if m.SenderID != requesterID {
		return models.Message{}, store.ErrForbidden
	}
	m.Deleted = true
	m.Text = models.DeletedPlaceholder
	m.Image = ""
	return *m, nil
}

func (s *Store) ToggleReaction(ctx context.Context, id, userID, emoji string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.find(id)
	if err != nil {
		return models.Message{}, err
	}
	for i, r := range m.Reactions {
		if r.UserID == userID && r.Emoji == emoji {
			m.Reactions = append(m.Reactions[:i], m.Reactions[i+1:]...)
			return *m, nil
		}
	}
	m.Reactions = append(m.Reactions, models.Reaction{UserID: userID, Emoji: emoji})
	return *m, nil
}

func (s *Store) UnseenCounts(ctx context.Context, ownerID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for i := range s.messages {
		m := &s.messages[i]
		if m.ReceiverID == ownerID && !m.Seen {
			counts[m.SenderID]++
		}
	}
	return counts, nil
}

func (s *Store) LastMessageTimes(ctx context.Context, ownerID string) (map[string]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	last := make(map[string]time.Time)
	for i := range s.messages {
		m := &s.messages[i]
		var partner string
		switch ownerID {
		case m.SenderID:
			partner = m.ReceiverID
		case m.ReceiverID:
			partner = m.SenderID
		default:
			continue
		}
		if m.CreatedAt.After(last[partner]) {
			last[partner] = m.CreatedAt
		}
	}
	return last, nil
}
