// Package storage persists the session collection in a local SQLite
// key-value table. Loading validates every entry and silently drops
// malformed ones; an older flat-message schema is migrated on first load.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hazemksouri/parley/internal/chat"
)

const (
	// sessionsKey holds the current schema: a JSON array of sessions.
	sessionsKey = "chat_sessions"
	// legacyMessagesKey holds the pre-session schema: one flat JSON array
	// of messages. Migration source only; deleted once migrated.
	legacyMessagesKey = "chat_messages"

	// maxStoredSessions caps how many sessions Save writes. The collection
	// is already ordered most-recently-created first.
	maxStoredSessions = 50
)

// Store is the persistence adapter backed by SQLite.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the database at dbPath and initializes the
// key-value schema.
func NewStore(ctx context.Context, dbPath string) (*Store, error) {
	// WAL mode and a busy timeout; SQLite handles one writer at a time.
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	const schema = `CREATE TABLE IF NOT EXISTS kv (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save writes the session collection under the current-schema key, truncated
// to the most recent maxStoredSessions entries.
func (s *Store) Save(sessions []*chat.Session) error {
	if len(sessions) > maxStoredSessions {
		sessions = sessions[:maxStoredSessions]
	}

	data, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("failed to marshal sessions: %w", err)
	}
	return s.setValue(sessionsKey, string(data))
}

// Load reads the persisted collection. Malformed sessions and messages are
// dropped, not fatal. When the current-schema key is absent or yields
// nothing valid, Load attempts the legacy migration; failing that it returns
// an empty collection.
func (s *Store) Load() ([]*chat.Session, error) {
	raw, found, err := s.getValue(sessionsKey)
	if err != nil {
		return nil, err
	}
	if found {
		if sessions := decodeSessions([]byte(raw)); len(sessions) > 0 {
			return sessions, nil
		}
	}
	return s.migrateLegacy()
}

// Clear removes every persisted key, current and legacy.
func (s *Store) Clear() error {
	if err := s.deleteKey(sessionsKey); err != nil {
		return err
	}
	return s.deleteKey(legacyMessagesKey)
}

// migrateLegacy wraps all valid legacy flat messages into one synthesized
// session, saves it under the current schema and removes the legacy key.
func (s *Store) migrateLegacy() ([]*chat.Session, error) {
	raw, found, err := s.getValue(legacyMessagesKey)
	if err != nil {
		return nil, err
	}
	if !found {
		return []*chat.Session{}, nil
	}

	messages := decodeMessages([]byte(raw))
	if len(messages) == 0 {
		return []*chat.Session{}, nil
	}

	title := chat.DefaultTitle
	for _, m := range messages {
		if m.Role == chat.RoleUser {
			title = chat.TitleFromContent(m.Content)
			break
		}
	}

	session := &chat.Session{
		ID:        uuid.NewString(),
		Title:     title,
		Messages:  messages,
		CreatedAt: messages[0].Timestamp,
		UpdatedAt: messages[len(messages)-1].Timestamp,
	}

	if err := s.Save([]*chat.Session{session}); err != nil {
		return nil, err
	}
	if err := s.deleteKey(legacyMessagesKey); err != nil {
		return nil, err
	}
	return []*chat.Session{session}, nil
}

// sessionEnvelope mirrors chat.Session but defers message decoding so
// individual malformed messages can be dropped.
type sessionEnvelope struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Messages  []json.RawMessage `json:"messages"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
	Starred   bool              `json:"starred,omitempty"`
}

func decodeSessions(data []byte) []*chat.Session {
	var rawSessions []json.RawMessage
	if err := json.Unmarshal(data, &rawSessions); err != nil {
		return nil
	}

	var sessions []*chat.Session
	for _, rawSession := range rawSessions {
		if !validRaw(sessionSchema, rawSession) {
			continue
		}
		var env sessionEnvelope
		if err := json.Unmarshal(rawSession, &env); err != nil {
			continue
		}

		session := &chat.Session{
			ID:        env.ID,
			Title:     env.Title,
			Messages:  []chat.Message{},
			CreatedAt: env.CreatedAt,
			UpdatedAt: env.UpdatedAt,
			Starred:   env.Starred,
		}
		for _, rawMessage := range env.Messages {
			if msg, ok := decodeMessage(rawMessage); ok {
				session.Messages = append(session.Messages, msg)
			}
		}
		sessions = append(sessions, session)
	}
	return sessions
}

func decodeMessages(data []byte) []chat.Message {
	var rawMessages []json.RawMessage
	if err := json.Unmarshal(data, &rawMessages); err != nil {
		return nil
	}

	var messages []chat.Message
	for _, rawMessage := range rawMessages {
		if msg, ok := decodeMessage(rawMessage); ok {
			messages = append(messages, msg)
		}
	}
	return messages
}

func decodeMessage(raw json.RawMessage) (chat.Message, bool) {
	if !validRaw(messageSchema, raw) {
		return chat.Message{}, false
	}
	var msg chat.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return chat.Message{}, false
	}
	return msg, true
}

func (s *Store) getValue(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) setValue(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

func (s *Store) deleteKey(key string) error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}
