package chat

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/hazemksouri/parley/internal/completion"
)

// Completer produces the final assistant text for a message history.
// Satisfied by *completion.Client.
type Completer interface {
	Complete(ctx context.Context, history []completion.ChatMessage, onStatus func(completion.Status)) (string, error)
}

// Persister saves and loads the session collection. Satisfied by
// *storage.Store. Save failures are logged here and never propagated:
// persistence is best-effort.
type Persister interface {
	Save(sessions []*Session) error
	Load() ([]*Session, error)
}

// StoreConfig wires the store's collaborators.
type StoreConfig struct {
	Completer Completer
	Persister Persister
	// Confirm gates destructive operations. Nil means always confirmed.
	Confirm func(prompt string) bool
	// OnStatus, when set, is notified of every status transition. It must
	// not call back into the store.
	OnStatus func(completion.Status)
}

// Store owns the ordered session collection and the active-session pointer,
// and coordinates persistence and completion. All exported methods are safe
// for concurrent use; at most one send is in flight per store.
type Store struct {
	mu       sync.Mutex
	sessions []*Session
	activeID string
	status   completion.Status
	sending  bool

	completer Completer
	persister Persister
	confirm   func(prompt string) bool
	onStatus  func(completion.Status)
}

// NewStore creates a session store. Call Load before use.
func NewStore(cfg StoreConfig) *Store {
	return &Store{
		completer: cfg.Completer,
		persister: cfg.Persister,
		confirm:   cfg.Confirm,
		onStatus:  cfg.OnStatus,
		status:    completion.StatusIdle,
	}
}

// Load populates the store from the persister. The collection is never left
// empty: when nothing was persisted, one fresh session is created. The first
// session becomes active.
func (s *Store) Load() error {
	sessions, err := s.persister.Load()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(sessions) == 0 {
		sessions = []*Session{NewSession()}
	}
	s.sessions = sessions
	s.activeID = sessions[0].ID
	return nil
}

// Sessions returns the session collection, newest-created first.
func (s *Store) Sessions() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, len(s.sessions))
	copy(out, s.sessions)
	return out
}

// ActiveSession returns the active session, or nil when the pointer
// references no existing session.
func (s *Store) ActiveSession() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findLocked(s.activeID)
}

// ActiveID returns the active-session pointer.
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Status returns the current send status.
func (s *Store) Status() completion.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Sending reports whether a send is in flight.
func (s *Store) Sending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending
}

// NewChatSession creates a new empty session, prepends it to the collection
// and makes it active. No-op when the active session has no messages yet,
// so back-to-back creation never accumulates empty sessions. Returns the
// resulting active session.
func (s *Store) NewChatSession() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if active := s.findLocked(s.activeID); active != nil && len(active.Messages) == 0 {
		return active
	}

	session := NewSession()
	s.sessions = append([]*Session{session}, s.sessions...)
	s.activeID = session.ID
	s.persistLocked()
	return session
}

// SwitchSession sets the active pointer unconditionally. Callers are
// responsible for passing an existing id; reads of an absent active session
// yield nil/empty.
func (s *Store) SwitchSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeID = id
}

// DeleteSession removes a session. Deleting the last remaining session
// substitutes a fresh empty one; deleting the active session moves the
// pointer to the first session in the collection.
func (s *Store) DeleteSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.sessions[:0]
	for _, sess := range s.sessions {
		if sess.ID != id {
			kept = append(kept, sess)
		}
	}
	s.sessions = kept

	if len(s.sessions) == 0 {
		fresh := NewSession()
		s.sessions = []*Session{fresh}
		s.activeID = fresh.ID
	} else if s.activeID == id {
		s.activeID = s.sessions[0].ID
	}
	s.persistLocked()
}

// RenameSession replaces a session's title with the trimmed input. No-op
// when the trimmed title is empty or the id is unknown.
func (s *Store) RenameSession(id, title string) {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess := s.findLocked(id); sess != nil {
		sess.Title = trimmed
		s.persistLocked()
	}
}

// ToggleStar flips a session's starred flag.
func (s *Store) ToggleStar(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess := s.findLocked(id); sess != nil {
		sess.Starred = !sess.Starred
		s.persistLocked()
	}
}

// ClearActiveSession empties the active session's transcript and resets its
// title, after the injected confirmation. Declined confirmation leaves the
// session untouched.
func (s *Store) ClearActiveSession() {
	if s.confirm != nil && !s.confirm("Clear all messages in this chat?") {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.findLocked(s.activeID)
	if sess == nil {
		return
	}
	sess.Messages = []Message{}
	sess.Title = DefaultTitle
	sess.UpdatedAt = time.Now().UTC()
	s.persistLocked()
}

// SendMessage runs the send state machine: append the user message
// optimistically, call the completer with the history captured at entry, and
// append the response (or an inline error message) to the session identified
// by the captured id. A call while another send is in flight, with a blank
// message, or with no active session is a silent no-op.
func (s *Store) SendMessage(ctx context.Context, content string) {
	trimmed := strings.TrimSpace(content)

	s.mu.Lock()
	active := s.findLocked(s.activeID)
	if active == nil || trimmed == "" || s.sending {
		s.mu.Unlock()
		return
	}

	// Snapshot the outbound history before mutating: a mid-flight session
	// switch or append must not change what this request was built from.
	// Error messages are never replayed to the model.
	targetID := active.ID
	outbound := make([]completion.ChatMessage, 0, len(active.Messages)+1)
	for _, m := range active.Messages {
		if m.IsError {
			continue
		}
		outbound = append(outbound, completion.ChatMessage{
			Role:    completion.MessageRole(m.Role),
			Content: m.Content,
		})
	}
	outbound = append(outbound, completion.ChatMessage{Role: completion.RoleUser, Content: trimmed})

	s.sending = true
	s.status = completion.StatusThinking

	firstUserMessage := !active.HasUserMessage()
	active.Append(NewMessage(RoleUser, trimmed))
	if firstUserMessage {
		active.Title = TitleFromContent(trimmed)
	}
	s.persistLocked()
	s.mu.Unlock()
	s.notify(completion.StatusThinking)

	text, err := s.completer.Complete(ctx, outbound, s.setStatus)

	s.mu.Lock()
	// Look the target up again by the captured id: the user may have
	// switched or deleted sessions while the request was in flight.
	if target := s.findLocked(targetID); target != nil {
		reply := NewMessage(RoleAssistant, text)
		if err != nil {
			reply = NewMessage(RoleAssistant, userFacingError(err))
			reply.IsError = true
		}
		target.Append(reply)
		s.persistLocked()
	}
	s.sending = false
	s.status = completion.StatusIdle
	s.mu.Unlock()
	s.notify(completion.StatusIdle)
}

func (s *Store) setStatus(st completion.Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
	s.notify(st)
}

func (s *Store) notify(st completion.Status) {
	if s.onStatus != nil {
		s.onStatus(st)
	}
}

// findLocked returns the session with the given id. Caller holds s.mu.
func (s *Store) findLocked(id string) *Session {
	for _, sess := range s.sessions {
		if sess.ID == id {
			return sess
		}
	}
	return nil
}

// persistLocked saves the collection, logging and swallowing failures.
// Caller holds s.mu.
func (s *Store) persistLocked() {
	if err := s.persister.Save(s.sessions); err != nil {
		log.Printf("failed to persist sessions: %v", err)
	}
}

// userFacingError renders a completion failure as the inline transcript text.
func userFacingError(err error) string {
	var ce *completion.Error
	if !errors.As(err, &ce) {
		return "Something went wrong: " + err.Error()
	}

	switch ce.Kind {
	case completion.KindNetwork:
		return "Could not reach the assistant. Check your network connection and try again."
	case completion.KindMissingAPIKey:
		return "No API key is configured. Add one to your config file or environment."
	case completion.KindUnauthorized:
		return "The API key was rejected. Check your credentials."
	case completion.KindRateLimited:
		return "Rate limit reached. Wait a moment and try again."
	case completion.KindServiceUnavailable, completion.KindServerError:
		return "The provider is having trouble right now. Try again shortly."
	case completion.KindEmptyResponse:
		return "The assistant returned an empty response. Try rephrasing your message."
	case completion.KindInvalidToolArguments:
		return "The assistant produced an invalid search request. Try again."
	default:
		if ce.Message != "" {
			return ce.Message
		}
		return "Something went wrong: " + err.Error()
	}
}
