package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sapa/internal/models"
	"sapa/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const messageColumns = `id, sender_id, receiver_id, text, image, seen, deleted, reactions, created_at`

// Store is the Postgres implementation of store.Store backed by a pgx pool.
type Store struct {
	Pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}

func scanMessage(row pgx.Row) (models.Message, error) {
	var m models.Message
	err := row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Text, &m.Image,
		&m.Seen, &m.Deleted, &m.Reactions, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Message{}, store.ErrNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	if m.Reactions == nil {
		m.Reactions = []models.Reaction{}
	}
	return m, nil
}

func (s *Store) CreateUser(ctx context.Context, email, fullName, passwordHash string) (models.User, error) {
	var u models.User
	err := s.Pool.QueryRow(ctx, `
		INSERT INTO users (email, full_name, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, email, full_name, password_hash, bio, avatar, last_seen, created_at
	`, email, fullName, passwordHash).
		Scan(&u.ID, &u.Email, &u.FullName, &u.Password, &u.Bio, &u.Avatar, &u.LastSeen, &u.CreatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return models.User{}, store.ErrEmailTaken
	}
	if err != nil {
		return models.User{}, err
	}
	return u, nil
}

func (s *Store) userBy(ctx context.Context, field, value string) (models.User, error) {
	var u models.User
	err := s.Pool.QueryRow(ctx, `
		SELECT id, email, full_name, password_hash, bio, avatar, last_seen, created_at
		FROM users WHERE `+field+` = $1
	`, value).Scan(&u.ID, &u.Email, &u.FullName, &u.Password, &u.Bio, &u.Avatar, &u.LastSeen, &u.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, store.ErrNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	return u, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (models.User, error) {
	return s.userBy(ctx, "email", email)
}

func (s *Store) UserByID(ctx context.Context, id string) (models.User, error) {
	return s.userBy(ctx, "id", id)
}

func (s *Store) UsersExcept(ctx context.Context, id string) ([]models.User, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, email, full_name, password_hash, bio, avatar, last_seen, created_at
		FROM users WHERE id != $1
		ORDER BY created_at
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Email, &u.FullName, &u.Password, &u.Bio,
			&u.Avatar, &u.LastSeen, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) TouchLastSeen(ctx context.Context, id string) error {
	_, err := s.Pool.Exec(ctx, `UPDATE users SET last_seen = $1 WHERE id = $2`, time.Now(), id)
	return err
}

func (s *Store) AppendMessage(ctx context.Context, senderID, receiverID, text, image string) (models.Message, error) {
	if text == "" && image == "" {
		return models.Message{}, store.ErrEmptyMessage
	}
	return scanMessage(s.Pool.QueryRow(ctx, `
		INSERT INTO messages (sender_id, receiver_id, text, image)
		VALUES ($1, $2, $3, $4)
		RETURNING `+messageColumns,
		senderID, receiverID, text, image))
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
	err := s.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
	`, userID, otherID).Scan(&total)
	if err != nil {
		return store.Page{}, err
	}

	rows, err := s.Pool.Query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4
	`, userID, otherID, limit, offset)
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

	// Opening page 1 means the reader is looking at the newest messages, so
	// everything the other party sent is flagged seen in the same logical read.
	if page == 1 {
		_, err = s.Pool.Exec(ctx, `
			UPDATE messages SET seen = true
			WHERE sender_id = $1 AND receiver_id = $2 AND seen = false
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
	return scanMessage(s.Pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
}

func (s *Store) MarkSeen(ctx context.Context, id string) (models.Message, error) {
	return scanMessage(s.Pool.QueryRow(ctx, `
		UPDATE messages SET seen = true WHERE id = $1
		RETURNING `+messageColumns, id))
}

func (s *Store) SoftDelete(ctx context.Context, id, requesterID string) (models.Message, error) {
	var senderID string
	err := s.Pool.QueryRow(ctx, `SELECT sender_id FROM messages WHERE id = $1`, id).Scan(&senderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Message{}, store.ErrNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	if senderID != requesterID {
		return models.Message{}, store.ErrForbidden
	}

	return scanMessage(s.Pool.QueryRow(ctx, `
		UPDATE messages SET deleted = true, text = $2, image = '' WHERE id = $1
		RETURNING `+messageColumns, id, models.DeletedPlaceholder))
}

func (s *Store) ToggleReaction(ctx context.Context, id, userID, emoji string) (models.Message, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return models.Message{}, err
	}
	defer tx.Rollback(ctx)

	m, err := scanMessage(tx.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1 FOR UPDATE`, id))
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

	if _, err := tx.Exec(ctx,
		`UPDATE messages SET reactions = $2 WHERE id = $1`, id, m.Reactions); err != nil {
		return models.Message{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Message{}, err
	}
	return m, nil
}

func (s *Store) UnseenCounts(ctx context.Context, ownerID string) (map[string]int, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT sender_id, COUNT(*) FROM messages
		WHERE receiver_id = $1 AND seen = false
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
	rows, err := s.Pool.Query(ctx, `
		SELECT CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END AS partner,
		       MAX(created_at)
		FROM messages
		WHERE sender_id = $1 OR receiver_id = $1
		GROUP BY partner
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	last := make(map[string]time.Time)
	for rows.Next() {
		var partner string
		var at time.Time
		if err := rows.Scan(&partner, &at); err != nil {
			return nil, err
		}
		last[partner] = at
	}
	return last, rows.Err()
}
