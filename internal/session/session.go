// Package session keeps per-conversation state in process memory.
package session

import (
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"

	"personal-rag/internal/config"
	"personal-rag/internal/helper"
)

type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Sources   []string  `json:"sources"`
	Timestamp time.Time `json:"timestamp"`
}

type Session struct {
	ID        string
	CreatedAt time.Time

	maxMessages int

	// turn serializes whole queries against one session.
	turn sync.Mutex

	mu       sync.RWMutex
	messages []Message
	context  []string
	sources  []string
}

// BeginTurn blocks until no other query holds the session and returns the release func.
func (s *Session) BeginTurn() func() {
	s.turn.Lock()
	return s.turn.Unlock
}

// AppendMessage adds a message, dropping the oldest beyond the bound.
func (s *Session) AppendMessage(role, content string, sources []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, Message{
		Role:      role,
		Content:   content,
		Sources:   cloneStrings(sources),
		Timestamp: time.Now(),
	})
	if over := len(s.messages) - s.maxMessages; over > 0 {
		s.messages = append([]Message(nil), s.messages[over:]...)
	}
}

// Messages returns a copy of the message log, oldest first.
func (s *Session) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Recent returns up to n of the newest messages, oldest first.
func (s *Session) Recent(n int) []Message {
	msgs := s.Messages()
	if n >= 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs
}

func (s *Session) Context() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneStrings(s.context)
}

func (s *Session) Sources() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneStrings(s.sources)
}

// SetRetrieval replaces the cached context and sources; nothing is merged.
func (s *Session) SetRetrieval(context, sources []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.context = cloneStrings(context)
	s.sources = dedupe(sources)
}

type Store struct {
	mu          sync.Mutex
	sessions    *expirable.LRU[string, *Session]
	maxMessages int
}

func NewStore(cfg config.SessionConfig) *Store {
	size := cfg.MaxSessions
	if size <= 0 {
		size = config.DefaultMaxSessions
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = config.DefaultSessionTTL
	}
	maxMessages := cfg.MaxMessages
	if maxMessages <= 0 {
		maxMessages = config.DefaultMaxMessages
	}
	onEvict := func(id string, _ *Session) {
		log.Debug().Str("session_id", id).Msg("Session evicted")
	}
	return &Store{
		sessions:    expirable.NewLRU[string, *Session](size, onEvict, ttl),
		maxMessages: maxMessages,
	}
}

// GetOrCreate returns the session for id, creating it on first reference.
// An empty id gets a freshly generated one.
func (st *Store) GetOrCreate(id string) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()

	if id == "" {
		generated, err := helper.GenerateUUID()
		if err != nil {
			generated = helper.ShortID()
		}
		id = generated
	}
	if s, ok := st.sessions.Get(id); ok {
		// re-adding restarts the expiry clock
		st.sessions.Add(id, s)
		return s
	}

	s := &Session{ID: id, CreatedAt: time.Now(), maxMessages: st.maxMessages}
	st.sessions.Add(id, s)
	log.Debug().Str("session_id", id).Msg("Session created")
	return s
}

// Get returns an existing session without creating one.
func (st *Store) Get(id string) (*Session, bool) {
	return st.sessions.Peek(id)
}

func (st *Store) AppendMessage(id, role, content string, sources []string) {
	st.GetOrCreate(id).AppendMessage(role, content, sources)
}

func (st *Store) Len() int {
	return st.sessions.Len()
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func dedupe(in []string) []string {
	if in == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// FormatConversation renders messages as "role: content" lines.
func FormatConversation(msgs []Message) string {
	var sb strings.Builder
	for _, m := range msgs {
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
