package conversations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog"
)

const messagesTable = "messages"

// Role is the author of a stored message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the two storable roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one row of the durable message log.
type Message struct {
	ID             int64   `json:"id"`
	ConversationID string  `json:"conversation_id"`
	Role           Role    `json:"role"`
	Content        string  `json:"content"`
	Timestamp      string  `json:"timestamp"`
	ExternalID     *string `json:"external_id,omitempty"`
}

// ErrInvalidRole is returned by Append for roles outside user/assistant.
var ErrInvalidRole = errors.New("invalid message role")

// Store is the append-only message log. It owns message identity and ordering.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewStore wraps an already-migrated database handle.
func NewStore(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "conversation_store").Logger(),
	}
}

func messageColumns() []string {
	return []string{"id", "conversation_id", "role", "content", "timestamp", "external_id"}
}

// Append inserts a message and returns it with its server-assigned id and timestamp.
// The insert is a single statement, so it either lands completely or not at all.
func (s *Store) Append(ctx context.Context, conversationID string, role Role, content string) (Message, error) {
	if !role.Valid() {
		return Message{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	queryStr, args, err := sq.Insert(messagesTable).
		Columns("conversation_id", "role", "content").
		Values(conversationID, string(role), content).
		Suffix("RETURNING id, timestamp").
		ToSql()
	if err != nil {
		return Message{}, fmt.Errorf("build insert: %w", err)
	}

	msg := Message{ConversationID: conversationID, Role: role, Content: content}
	if err := s.db.QueryRowContext(ctx, queryStr, args...).Scan(&msg.ID, &msg.Timestamp); err != nil {
		s.logger.Error().Err(err).Str("conversation", conversationID).Msg("Failed to append message")
		return Message{}, fmt.Errorf("insert message: %w", err)
	}

	s.logger.Debug().
		Int64("id", msg.ID).
		Str("conversation", conversationID).
		Str("role", string(role)).
		Msg("Appended message")
	return msg, nil
}

// Recent returns the last limit messages of a conversation, oldest first.
func (s *Store) Recent(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		return []Message{}, nil
	}

	queryStr, args, err := sq.Select(messageColumns()...).
		From(messagesTable).
		Where(sq.Eq{"conversation_id": conversationID}).
		OrderBy("id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	msgs, err := s.query(ctx, queryStr, args...)
	if err != nil {
		return nil, err
	}

	// Scanned newest-first; callers want chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// LinkExternalID records the semantic-index id for a message. It only fills a
// null column, so repeating the call or naming an unknown id is a no-op.
func (s *Store) LinkExternalID(ctx context.Context, id int64, externalID string) error {
	queryStr, args, err := sq.Update(messagesTable).
		Set("external_id", externalID).
		Where(sq.And{sq.Eq{"id": id}, sq.Eq{"external_id": nil}}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, queryStr, args...)
	if err != nil {
		return fmt.Errorf("link external id: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		s.logger.Debug().Int64("id", id).Str("external_id", externalID).Msg("External id already linked or message missing")
	}
	return nil
}

// Unindexed returns up to limit messages that have no external id yet, oldest first.
func (s *Store) Unindexed(ctx context.Context, limit int) ([]Message, error) {
	queryStr, args, err := sq.Select(messageColumns()...).
		From(messagesTable).
		Where(sq.Eq{"external_id": nil}).
		OrderBy("id ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	return s.query(ctx, queryStr, args...)
}

// Count returns how many messages a conversation holds.
func (s *Store) Count(ctx context.Context, conversationID string) (int, error) {
	queryStr, args, err := sq.Select("COUNT(*)").
		From(messagesTable).
		Where(sq.Eq{"conversation_id": conversationID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, queryStr, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

func (s *Store) query(ctx context.Context, queryStr string, args ...any) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close() //nolint:errcheck // rows.Err is checked below

	msgs := make([]Message, 0)
	for rows.Next() {
		var (
			m        Message
			role     string
			external sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.Timestamp, &external); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = Role(role)
		if external.Valid {
			ext := external.String
			m.ExternalID = &ext
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}
