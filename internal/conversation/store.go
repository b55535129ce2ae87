// Package conversation keeps multi-turn chat history in memory, keyed by
// session ID. Sessions expire after a TTL of inactivity and are reclaimed
// lazily by CleanupExpired, which the server runs on a timer.
package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"algodraft/internal/logging"
)

// DefaultTTL is how long an idle session survives before cleanup.
const DefaultTTL = 30 * time.Minute

// DefaultMaxTurns bounds how many user/assistant exchange pairs a session
// retains.
const DefaultMaxTurns = 10

// Message is one turn of a conversation.
type Message struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// Entry is the role/content pair handed to model backends as history.
type Entry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SessionInfo is the metadata snapshot returned by ListSessions.
type SessionInfo struct {
	ID           string `json:"id"`
	MessageCount int    `json:"message_count"`
	CreatedAt    int64  `json:"created_at"`
	LastActive   int64  `json:"last_active"`
}

type session struct {
	id         string
	messages   []Message
	createdAt  time.Time
	lastActive time.Time
}

// Store is a concurrency-safe in-memory conversation store.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*session
	ttl      time.Duration
	maxTurns int
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithTTL overrides the idle expiry. Zero or negative means sessions
// expire immediately on the next cleanup.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithMaxTurns overrides how many exchange pairs are retained per session.
func WithMaxTurns(n int) Option {
	return func(s *Store) { s.maxTurns = n }
}

// WithClock substitutes the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore returns an empty store with the default TTL and turn limit.
func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions: make(map[string]*session),
		ttl:      DefaultTTL,
		maxTurns: DefaultMaxTurns,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession allocates an empty session and returns its ID. An empty
// id gets a fresh UUID; a caller-supplied id is used as-is, replacing any
// existing session under that id with an empty one.
func (s *Store) CreateSession(id string) string {
	if id == "" {
		id = uuid.New().String()
	}
	now := s.now()
	s.mu.Lock()
	s.sessions[id] = &session{id: id, createdAt: now, lastActive: now}
	s.mu.Unlock()
	logging.Session("Created session %s", id)
	return id
}

// AddMessage appends a turn to the session, creating the session if the ID
// is unknown. After appending, history is trimmed: system messages are
// always kept, and only the most recent maxTurns*2 non-system messages
// survive.
func (s *Store) AddMessage(sessionID, role, content string) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &session{id: sessionID, createdAt: now}
		s.sessions[sessionID] = sess
	}
	sess.messages = append(sess.messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: now.Unix(),
	})
	sess.lastActive = now
	sess.messages = trim(sess.messages, s.maxTurns)
}

// trim keeps all system messages plus the last maxTurns*2 non-system
// messages, preserving relative order.
func trim(messages []Message, maxTurns int) []Message {
	limit := maxTurns * 2
	var nonSystem int
	for _, m := range messages {
		if m.Role != "system" {
			nonSystem++
		}
	}
	if nonSystem <= limit {
		return messages
	}
	drop := nonSystem - limit
	trimmed := make([]Message, 0, len(messages)-drop)
	for _, m := range messages {
		if m.Role != "system" && drop > 0 {
			drop--
			continue
		}
		trimmed = append(trimmed, m)
	}
	return trimmed
}

// History returns the most recent turns of a session as backend entries.
// maxTurns <= 0 means all retained messages. Unknown sessions yield an
// empty slice, never an error.
func (s *Store) History(sessionID string, maxTurns int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	messages := sess.messages
	if maxTurns > 0 && len(messages) > maxTurns*2 {
		messages = messages[len(messages)-maxTurns*2:]
	}
	entries := make([]Entry, len(messages))
	for i, m := range messages {
		entries[i] = Entry{Role: m.Role, Content: m.Content}
	}
	return entries
}

// Messages returns a copy of the full retained message list for a session,
// including timestamps, for API exposure.
func (s *Store) Messages(sessionID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]Message, len(sess.messages))
	copy(out, sess.messages)
	return out
}

// ClearSession removes a session, reporting whether it existed.
func (s *Store) ClearSession(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return false
	}
	delete(s.sessions, sessionID)
	logging.Session("Cleared session %s", sessionID)
	return true
}

// CleanupExpired removes sessions idle longer than the TTL and returns how
// many were removed.
func (s *Store) CleanupExpired() int {
	cutoff := s.now().Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int
	for id, sess := range s.sessions {
		if !sess.lastActive.After(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		logging.Session("Expired %d idle session(s)", removed)
	}
	return removed
}

// ListSessions returns metadata for every live session. Order is
// unspecified.
func (s *Store) ListSessions() []SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	infos := make([]SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		infos = append(infos, SessionInfo{
			ID:           sess.id,
			MessageCount: len(sess.messages),
			CreatedAt:    sess.createdAt.Unix(),
			LastActive:   sess.lastActive.Unix(),
		})
	}
	return infos
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
