// Package conversation keeps the per-channel message log of workflow runs.
//
// The channel set is fixed. Messages are appended and may be completed in
// place exactly once; nothing is ever deleted. The log lives in memory for
// the lifetime of the process.
package conversation

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hlabs/openclaw/internal/agent"
)

var (
	ErrUnknownChannel  = errors.New("unknown channel")
	ErrMessageNotFound = errors.New("message not found")
)

// WelcomeMessage seeds the general channel of every new store.
const WelcomeMessage = "🚀 **Welcome to the OpenClaw lab**\n\n" +
	"Send a task and the director will plan it, route it to the engineer or the copywriter, " +
	"have it audited, and deliver the approved result to you privately.\n\n" +
	"- 👑 Director: ready\n- ✒️ Copywriter: search enabled\n- ⚖️ Critic: strict mode (temperature 0)\n- 🚀 Growth lead: ready"

// Message is one entry in a channel.
type Message struct {
	ID         string     `json:"id"`
	Role       agent.Role `json:"role"`
	Content    string     `json:"content"`
	CreatedAt  time.Time  `json:"created_at"`
	InProgress bool       `json:"in_progress"`
}

// Store is a concurrency-safe, append-only message log keyed by channel.
type Store struct {
	mu    sync.RWMutex
	log   map[Channel][]Message
	index map[string]int // message id -> position within its channel
	now   func() time.Time
}

// NewStore creates a store with every channel present and the welcome
// message posted to General.
func NewStore() *Store {
	s := &Store{
		log:   make(map[Channel][]Message, len(channels)),
		index: make(map[string]int),
		now:   time.Now,
	}
	for _, info := range channels {
		s.log[info.ID] = nil
	}
	s.append(General, Message{ID: "welcome", Role: agent.RoleDirector, Content: WelcomeMessage, CreatedAt: s.now()})
	return s
}

// Begin appends an empty in-progress message and returns its id.
func (s *Store) Begin(ch Channel, role agent.Role) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.log[ch]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
	}
	id := uuid.NewString()
	s.append(ch, Message{ID: id, Role: role, CreatedAt: s.now(), InProgress: true})
	return id, nil
}

// Complete sets the content of message id and clears its in-progress flag.
// The message keeps its position.
func (s *Store) Complete(ch Channel, id, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs, ok := s.log[ch]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
	}
	pos, ok := s.index[id]
	if !ok || pos >= len(msgs) || msgs[pos].ID != id {
		return fmt.Errorf("%w: %s in %s", ErrMessageNotFound, id, ch)
	}
	msgs[pos].Content = content
	msgs[pos].InProgress = false
	return nil
}

// Post appends a finished message.
func (s *Store) Post(ch Channel, role agent.Role, content string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.log[ch]; !ok {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
	}
	m := Message{ID: uuid.NewString(), Role: role, Content: content, CreatedAt: s.now()}
	s.append(ch, m)
	return m, nil
}

// Messages returns a copy of the channel log in insertion order.
func (s *Store) Messages(ch Channel) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs, ok := s.log[ch]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Get returns a copy of one message.
func (s *Store) Get(ch Channel, id string) (Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs, ok := s.log[ch]
	if !ok {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
	}
	pos, ok := s.index[id]
	if !ok || pos >= len(msgs) || msgs[pos].ID != id {
		return Message{}, fmt.Errorf("%w: %s in %s", ErrMessageNotFound, id, ch)
	}
	return msgs[pos], nil
}

// Len returns the number of messages in ch, or 0 for an unknown channel.
func (s *Store) Len(ch Channel) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.log[ch])
}

// append must be called with mu held.
func (s *Store) append(ch Channel, m Message) {
	s.index[m.ID] = len(s.log[ch])
	s.log[ch] = append(s.log[ch], m)
}
