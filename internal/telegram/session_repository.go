package telegram

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const sessionTimeLayout = "2006-01-02T15:04:05.000000000Z"

// Session types.
const (
	SessionAwaitingAdaptReason = "awaiting_adapt_reason"
)

// Session is a pending conversation step for one Telegram user.
type Session struct {
	TelegramID  int64
	SessionType string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// SessionRepository persists at most one pending session per Telegram user.
type SessionRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSessionRepository creates a new SessionRepository instance.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db, now: time.Now}
}

// Start replaces any pending session for the user.
func (r *SessionRepository) Start(ctx context.Context, telegramID int64, sessionType string, ttl time.Duration) error {
	now := r.now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO telegram_sessions (telegram_id, session_type, expires_at, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (telegram_id) DO UPDATE SET
			session_type = excluded.session_type,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at`,
		telegramID, sessionType, now.Add(ttl).Format(sessionTimeLayout), now.Format(sessionTimeLayout))
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	return nil
}

// Take returns and clears the user's unexpired session, or nil.
func (r *SessionRepository) Take(ctx context.Context, telegramID int64) (*Session, error) {
	var s Session
	var expiresAt, createdAt string
	err := r.db.QueryRowContext(ctx, `
		DELETE FROM telegram_sessions WHERE telegram_id = ?
		RETURNING telegram_id, session_type, expires_at, created_at`, telegramID).
		Scan(&s.TelegramID, &s.SessionType, &expiresAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take session: %w", err)
	}

	if s.ExpiresAt, err = time.Parse(sessionTimeLayout, expiresAt); err != nil {
		return nil, fmt.Errorf("failed to parse session expiry: %w", err)
	}
	if s.CreatedAt, err = time.Parse(sessionTimeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse session creation: %w", err)
	}
	if !s.ExpiresAt.After(r.now()) {
		return nil, nil
	}
	return &s, nil
}

// CleanupExpired removes expired sessions.
func (r *SessionRepository) CleanupExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM telegram_sessions WHERE expires_at <= ?`,
		r.now().UTC().Format(sessionTimeLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to clean up sessions: %w", err)
	}
	return res.RowsAffected()
}
