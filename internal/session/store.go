package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toddbot/todd/internal/agent"
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const sessionCols = `id, username, title, message_count, created_at, updated_at`

const (
	createSessionSQL = `INSERT INTO sessions (username, title)
		VALUES ($1, $2)
		RETURNING ` + sessionCols

	getSessionSQL = `SELECT ` + sessionCols + ` FROM sessions WHERE id = $1`

	listSessionsSQL = `SELECT ` + sessionCols + ` FROM sessions
		WHERE username = $1
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3`

	deleteSessionSQL = `DELETE FROM sessions WHERE id = $1`

	renameSessionSQL = `UPDATE sessions SET title = $2, updated_at = now() WHERE id = $1`

	// lockSessionSQL serializes appends per session. The row lock is
	// held until the surrounding transaction commits.
	lockSessionSQL = `SELECT id FROM sessions WHERE id = $1 FOR UPDATE`

	maxSequenceSQL = `SELECT COALESCE(MAX(sequence_number), 0)
		FROM session_messages WHERE session_id = $1`

	insertMessageSQL = `INSERT INTO session_messages (session_id, role, content, sequence_number)
		VALUES ($1, $2, $3, $4)`

	touchSessionSQL = `UPDATE sessions
		SET message_count = $2, updated_at = now()
		WHERE id = $1`

	historySQL = `SELECT role, content, created_at
		FROM session_messages
		WHERE session_id = $1
		ORDER BY sequence_number ASC
		LIMIT $2`
)

// historyLimit bounds how many turns a single load returns.
const historyLimit = 1000

// Store manages session persistence with a PostgreSQL backend.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a session Store.
func New(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Create starts a new session for the given user.
func (s *Store) Create(ctx context.Context, username, title string) (*Session, error) {
	if username == "" {
		return nil, errors.New("username is required")
	}
	title = truncateTitle(title)

	var titlePtr *string
	if title != "" {
		titlePtr = &title
	}

	sess, err := scanSession(s.pool.QueryRow(ctx, createSessionSQL, username, titlePtr))
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	s.logger.Debug("created session", "id", sess.ID, "username", username)
	return sess, nil
}

// Get retrieves a session by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	sess, err := scanSession(s.pool.QueryRow(ctx, getSessionSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("getting session %s: %w", id, err)
	}
	return sess, nil
}

// List returns the user's sessions, most recently updated first.
func (s *Store) List(ctx context.Context, username string, limit, offset int32) ([]*Session, error) {
	rows, err := s.pool.Query(ctx, listSessionsSQL, username, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return sessions, nil
}

// Delete removes a session and all its turns (CASCADE).
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, deleteSessionSQL, id)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	s.logger.Debug("deleted session", "id", id)
	return nil
}

// Rename updates a session's title.
func (s *Store) Rename(ctx context.Context, id uuid.UUID, title string) error {
	tag, err := s.pool.Exec(ctx, renameSessionSQL, id, truncateTitle(title))
	if err != nil {
		return fmt.Errorf("renaming session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

// AppendTurns appends conversation turns to a session in order.
//
// All inserts run in one transaction. The session row is locked first
// (SELECT ... FOR UPDATE) so concurrent appends to the same session
// serialize instead of racing on sequence numbers.
func (s *Store) AppendTurns(ctx context.Context, id uuid.UUID, turns []agent.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	var locked uuid.UUID
	if err := tx.QueryRow(ctx, lockSessionSQL, id).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("session %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("locking session: %w", err)
	}

	var maxSeq int32
	if err := tx.QueryRow(ctx, maxSequenceSQL, id).Scan(&maxSeq); err != nil {
		return fmt.Errorf("reading max sequence: %w", err)
	}

	for i, turn := range turns {
		seq := maxSeq + int32(i) + 1 // #nosec G115 -- i is a loop index bounded by slice length
		if _, err := tx.Exec(ctx, insertMessageSQL, id, string(turn.Role), turn.Content, seq); err != nil {
			return fmt.Errorf("inserting turn %d: %w", i, err)
		}
	}

	newCount := maxSeq + int32(len(turns)) // #nosec G115 -- len bounded by practical turn limits
	if _, err := tx.Exec(ctx, touchSessionSQL, id, newCount); err != nil {
		return fmt.Errorf("updating session metadata: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	s.logger.Debug("appended turns", "session_id", id, "count", len(turns))
	return nil
}

// History loads a session's turns in order, oldest first.
func (s *Store) History(ctx context.Context, id uuid.UUID) ([]agent.Turn, error) {
	rows, err := s.pool.Query(ctx, historySQL, id, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	defer rows.Close()

	var turns []agent.Turn
	for rows.Next() {
		var turn agent.Turn
		var role string
		if err := rows.Scan(&role, &turn.Content, &turn.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		turn.Role = agent.Role(role)
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	return turns, nil
}

// truncateTitle trims a title to TitleMaxLength runes.
func truncateTitle(title string) string {
	if utf8.RuneCountInString(title) <= TitleMaxLength {
		return title
	}
	runes := []rune(title)
	return string(runes[:TitleMaxLength-3]) + "..."
}

func scanSession(row pgx.Row) (*Session, error) {
	var sess Session
	var title *string
	if err := row.Scan(&sess.ID, &sess.Username, &title, &sess.MessageCount,
		&sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return nil, err
	}
	if title != nil {
		sess.Title = *title
	}
	return &sess, nil
}
