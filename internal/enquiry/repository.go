package enquiry

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultListLimit caps list queries without an explicit limit.
const DefaultListLimit = 100

// Filter narrows List results. Zero values mean "any".
type Filter struct {
	Status            Status
	Tags              []string
	CallbackRequested *bool
	Destination       string
	Limit             int
}

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

// Stats are the dashboard counters.
type Stats struct {
	Total              int `json:"total"`
	NewEnquiries       int `json:"newEnquiries"`
	InProgress         int `json:"inProgress"`
	CallbackRequests   int `json:"callbackRequests"`
	HoneymoonLeads     int `json:"honeymoonLeads"`
	GroupLeads         int `json:"groupLeads"`
	InternationalLeads int `json:"internationalLeads"`
}

// Repository persists enquiries.
type Repository interface {
	// FindActive returns the newest enquiry with status new or in_progress.
	FindActive(ctx context.Context, phone string) (*Enquiry, error)
	Create(ctx context.Context, e *Enquiry) error
	Save(ctx context.Context, e *Enquiry) error
	GetByID(ctx context.Context, id string) (*Enquiry, error)
	List(ctx context.Context, filter Filter) ([]*Enquiry, error)
	UpdateStatus(ctx context.Context, id string, status Status) (*Enquiry, error)
	Stats(ctx context.Context) (Stats, error)
}

// InMemoryRepository keeps enquiries in process memory.
type InMemoryRepository struct {
	mu        sync.RWMutex
	enquiries map[string]*Enquiry
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		enquiries: make(map[string]*Enquiry),
	}
}

func (r *InMemoryRepository) FindActive(ctx context.Context, phone string) (*Enquiry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var newest *Enquiry
	for _, e := range r.enquiries {
		if e.PhoneNumber != phone || !e.Status.IsActive() {
			continue
		}
		if newest == nil || e.CreatedAt.After(newest.CreatedAt) {
			newest = e
		}
	}
	if newest == nil {
		return nil, ErrNotFound
	}
	return newest.Clone(), nil
}

func (r *InMemoryRepository) Create(ctx context.Context, e *Enquiry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enquiries[e.ID] = e.Clone()
	return nil
}

func (r *InMemoryRepository) Save(ctx context.Context, e *Enquiry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.enquiries[e.ID]; !ok {
		return ErrNotFound
	}
	r.enquiries[e.ID] = e.Clone()
	return nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Enquiry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.enquiries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e.Clone(), nil
}

func (r *InMemoryRepository) List(ctx context.Context, filter Filter) ([]*Enquiry, error) {
	var destRe *regexp.Regexp
	if filter.Destination != "" {
		destRe = regexp.MustCompile("(?i)" + regexp.QuoteMeta(filter.Destination))
	}

	r.mu.RLock()
	out := make([]*Enquiry, 0, len(r.enquiries))
	for _, e := range r.enquiries {
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		if filter.CallbackRequested != nil && e.CallbackRequested != *filter.CallbackRequested {
			continue
		}
		if len(filter.Tags) > 0 && !hasAnyTag(e.Tags, filter.Tags) {
			continue
		}
		if destRe != nil && !destRe.MatchString(deref(e.Destination)) {
			continue
		}
		out = append(out, e.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > filter.limit() {
		out = out[:filter.limit()]
	}
	return out, nil
}

func (r *InMemoryRepository) UpdateStatus(ctx context.Context, id string, status Status) (*Enquiry, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.enquiries[id]
	if !ok {
		return nil, ErrNotFound
	}
	e.Status = status
	e.UpdatedAt = time.Now().UTC()
	return e.Clone(), nil
}

func (r *InMemoryRepository) Stats(ctx context.Context) (Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var s Stats
	for _, e := range r.enquiries {
		s.Total++
		switch e.Status {
		case StatusNew:
			s.NewEnquiries++
		case StatusInProgress:
			s.InProgress++
		}
		if e.CallbackRequested && e.Status.IsActive() {
			s.CallbackRequests++
		}
		for _, tag := range e.Tags {
			switch tag {
			case TagHoneymoon:
				s.HoneymoonLeads++
			case TagGroup:
				s.GroupLeads++
			case TagInternational:
				s.InternationalLeads++
			}
		}
	}
	return s, nil
}

func hasAnyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(h, w) {
				return true
			}
		}
	}
	return false
}
