package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"sapa/internal/models"
	"sapa/internal/store"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store is the embedded SQLite implementation of store.Store. Timestamps are
// stored as RFC3339Nano text and reactions as a JSON array column.
type Store struct {
	Db *sql.DB
}

var _ store.Store = (*Store)(nil)

func New(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if _, err = db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return nil, err
	}

	// Single connection; SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec(`PRAGMA journal_mode=WAL;`)
	_, _ = db.Exec(`PRAGMA busy_timeout = 5000;`)

	return &Store{Db: db}, nil
}

func (s *Store) Close() error {
	return s.Db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Db.PingContext(ctx)
}

// timeLayout is fixed-width so lexical order of stored timestamps matches
// chronological order (RFC3339Nano trims trailing zeros and does not).
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func now() string {
	return time.Now().UTC().Format(timeLayout)
}

func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

const messageColumns = `id, sender_id, receiver_id, text, image, seen, deleted, reactions, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (models.Message, error) {
	var m models.Message
	var reactions, createdAt string
	err := row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Text, &m.Image,
		&m.Seen, &m.Deleted, &reactions, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, store.ErrNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	m.CreatedAt = parseTime(createdAt)
	if err := json.Unmarshal([]byte(reactions), &m.Reactions); err != nil {
		return models.Message{}, err
	}
	if m.Reactions == nil {
		m.Reactions = []models.Reaction{}
	}
	return m, nil
}

func scanUser(row rowScanner) (models.User, error) {
	var u models.User
	var lastSeen, createdAt string
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &u.Password, &u.Bio, &u.Avatar, &lastSeen, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, store.ErrNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	u.LastSeen = parseTime(lastSeen)
	u.CreatedAt = parseTime(createdAt)
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, email, fullName, passwordHash string) (models.User, error) {
	var exists bool
	if err := s.Db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`, email).Scan(&exists); err != nil {
		return models.User{}, err
	}
	if exists {
		return models.User{}, store.ErrEmailTaken
	}

	id := uuid.New().String()
	ts := now()
	_, err := s.Db.ExecContext(ctx, `
		INSERT INTO users (id, email, full_name, password_hash, bio, avatar, last_seen, created_at)
		VALUES (?, ?, ?, ?, '', '', ?, ?)
	`, id, email, fullName, passwordHash, ts, ts)
	if err != nil {
		return models.User{}, err
	}
	return s.UserByID(ctx, id)
}

func (s *Store) userBy(ctx context.Context, field, value string) (models.User, error) {
	return scanUser(s.Db.QueryRowContext(ctx, `
		SELECT id, email, full_name, password_hash, bio, avatar, last_seen, created_at
		FROM users WHERE `+field+` = ?`, value))
}

func (s *Store) UserByEmail(ctx context.Context, email string) (models.User, error) {
	return s.userBy(ctx, "email", email)
}

func (s *Store) UserByID(ctx context.Context, id string) (models.User, error) {
	return s.userBy(ctx, "id", id)
}

func (s *Store) UsersExcept(ctx context.Context, id string) ([]models.User, error) {
	rows, err := s.Db.QueryContext(ctx, `
		SELECT id, email, full_name, password_hash, bio, avatar, last_seen, created_at
		FROM users WHERE id != ? ORDER BY created_at`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) TouchLastSeen(ctx context.Context, id string) error {
	_, err := s.Db.ExecContext(ctx, `UPDATE users SET last_seen = ? WHERE id = ?`, now(), id)
	return err
}

func (s *Store) AppendMessage(ctx context.Context, senderID, receiverID, text, image string) (models.Message, error) {
	if text == "" && image == "" {
		return models.Message{}, store.ErrEmptyMessage
	}

	id := uuid.New().String()
	_, err := s.Db.ExecContext(ctx, `
		INSERT INTO messages (id, sender_id, receiver_id, text, image, seen, deleted, reactions, created_at)
		VALUES (?, ?, ?, ?, ?, 0, 0, '[]', ?)
	`, id, senderID, receiverID, text, image, now())
	if err != nil {
		return models.Message{}, err
	}
	return s.MessageByID(ctx, id)
}

func (s *Store) Conversation(ctx context.Context, userID, otherID string, page, limit int) (store.Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	offset := (page - 1) * limit

	var total int
	err := s.Db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
	`, userID, otherID, otherID, userID).Scan(&total)
	if err != nil {
		return store.Page{}, err
	}

	rows, err := s.Db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, userID, otherID, otherID, userID, limit, offset)
	if err != nil {
		return store.Page{}, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return store.Page{}, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return store.Page{}, err
	}

	if page == 1 {
		_, err = s.Db.ExecContext(ctx, `
			UPDATE messages SET seen = 1
			WHERE sender_id = ? AND receiver_id = ? AND seen = 0
		`, otherID, userID)
		if err != nil {
			return store.Page{}, err
		}
	}

	return store.Page{
		Messages: msgs,
		Total:    total,
		HasMore:  offset+len(msgs) < total,
	}, nil
}

func (s *Store) MessageByID(ctx context.Context, id string) (models.Message, error) {
	return scanMessage(s.Db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
}

func (s *Store) MarkSeen(ctx context.Context, id string) (models.Message, error) {
	res, err := s.Db.ExecContext(ctx, `UPDATE messages SET seen = 1 WHERE id = ?`, id)
	if err != nil {
		return models.Message{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.Message{}, store.ErrNotFound
	}
	return s.MessageByID(ctx, id)
}

func (s *Store) SoftDelete(ctx context.Context, id, requesterID string) (models.Message, error) {
	m, err := s.MessageByID(ctx, id)
	if err != nil {
		return models.Message{}, err
	}
	if m.SenderID != requesterID {
		return models.Message{}, store.ErrForbidden
	}

	_, err = s.Db.ExecContext(ctx, `
		UPDATE messages SET deleted = 1, text = ?, image = '' WHERE id = ?
	`, models.DeletedPlaceholder, id)
	if err != nil {
		return models.Message{}, err
	}
	return s.MessageByID(ctx, id)
}

func (s *Store) ToggleReaction(ctx context.Context, id, userID, emoji string) (models.Message, error) {
	m, err := s.MessageByID(ctx, id)
	if err != nil {
		return models.Message{}, err
	}

	removed := false
	for i, r := range m.Reactions {
		if r.UserID == userID && r.Emoji == emoji {
			m.Reactions = append(m.Reactions[:i], m.Reactions[i+1:]...)
			removed = true
			break
		}
	}
	if !removed {
		m.Reactions = append(m.Reactions, models.Reaction{UserID: userID, Emoji: emoji})
	}

	raw, err := json.Marshal(m.Reactions)
	if err != nil {
		return models.Message{}, err
	}
	if _, err := s.Db.ExecContext(ctx,
		`UPDATE messages SET reactions = ? WHERE id = ?`, string(raw), id); err != nil {
		return models.Message{}, err
	}
	return m, nil
}

func (s *Store) UnseenCounts(ctx context.Context, ownerID string) (map[string]int, error) {
	rows, err := s.Db.QueryContext(ctx, `
		SELECT sender_id, COUNT(*) FROM messages
		WHERE receiver_id = ? AND seen = 0
		GROUP BY sender_id
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var sender string
		var n int
		if err := rows.Scan(&sender, &n); err != nil {
			return nil, err
		}
		counts[sender] = n
	}
	return counts, rows.Err()
}

func (s *Store) LastMessageTimes(ctx context.Context, ownerID string) (map[string]time.Time, error) {
	rows, err := s.Db.QueryContext(ctx, `
		SELECT CASE WHEN sender_id = ? THEN receiver_id ELSE sender_id END AS partner,
		       MAX(created_at)
		FROM messages
		WHERE sender_id = ? OR receiver_id = ?
		GROUP BY partner
	`, ownerID, ownerID, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	last := make(map[string]time.Time)
	for rows.Next() {
		var partner, at string
		if err := rows.Scan(&partner, &at); err != nil {
			return nil, err
		}
		last[partner] = parseTime(at)
	}
	return last, rows.Err()
}
