package contacts

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and local runs.
type MemoryStore struct {
	mu            sync.RWMutex
	contacts      map[string]Contact
	conversations []Conversation
	excluded      exclusions
	now           func() time.Time
	seq           int
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore(excludePhones ...string) *MemoryStore {
	return &MemoryStore{
		contacts: make(map[string]Contact),
		excluded: newExclusions(excludePhones),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Touch(_ context.Context, phone string) error {
	if s.excluded.has(phone) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	c, ok := s.contacts[phone]
	if !ok {
		c = Contact{PhoneNumber: phone, FirstContactDate: now}
	}
	c.LastContactDate = now
	c.TotalConversations++
	s.contacts[phone] = c
	return nil
}

func (s *MemoryStore) SaveExchange(_ context.Context, x Exchange) error {
	if s.excluded.has(x.Phone) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if x.At.IsZero() {
		x.At = s.now()
	}
	s.seq++
	s.conversations = append(s.conversations, x.conversation("conv-"+strconv.Itoa(s.seq)))
	if c, ok := s.contacts[x.Phone]; ok {
		c.TotalInputTokens += int64(x.InputTokens)
		c.TotalOutputTokens += int64(x.OutputTokens)
		s.contacts[x.Phone] = c
	}
	return nil
}

func (s *MemoryStore) ListContacts(_ context.Context, search string, page Page) ([]Contact, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	search = strings.ToLower(strings.TrimSpace(search))
	var matched []Contact
	for _, c := range s.contacts {
		if strings.Contains(strings.ToLower(c.PhoneNumber), search) {
			matched = append(matched, c)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].LastContactDate.After(matched[j].LastContactDate)
	})
	return paginate(matched, page), len(matched), nil
}

func (s *MemoryStore) GetContact(_ context.Context, phone string) (*Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contacts[phone]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *MemoryStore) ListConversations(_ context.Context, phone string, page Page) ([]Conversation, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []Conversation
	for i := len(s.conversations) - 1; i >= 0; i-- {
		if c := s.conversations[i]; c.PhoneNumber == phone {
			c.Messages = append([]Message(nil), c.Messages...)
			matched = append(matched, c)
		}
	}
	return paginate(matched, page), len(matched), nil
}

func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{TotalContacts: len(s.contacts), TotalConversations: len(s.conversations)}
	for _, c := range s.contacts {
		st.TotalInputTokens += c.TotalInputTokens
		st.TotalOutputTokens += c.TotalOutputTokens
	}
	st.TotalTokens = st.TotalInputTokens + st.TotalOutputTokens
	return st, nil
}

func paginate[T any](items []T, page Page) []T {
	page = page.Normalize()
	start := page.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
