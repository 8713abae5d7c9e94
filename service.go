package mymem

import (
	"context"
	"errors"
	"fmt"
	"strings"

	memorystore "github.com/maxfong/my-mem-mcp/memory_store"
	"github.com/maxfong/my-mem-mcp/memory_store/providers/persister"
)

var (
	// ErrMissingUserId means no user id could be resolved from the session,
	// the process default, or the request itself.
	ErrMissingUserId = errors.New("mymem: missing user id")

	// ErrMissingRequiredField flags an invalid request before any embedding
	// or storage I/O happens.
	ErrMissingRequiredField = errors.New("mymem: missing required field")
)

// AddMessageRequest adds one question/answer pair for a user.
type AddMessageRequest struct {
	UserId   string `json:"user_id,omitempty"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// SearchMessageRequest searches a user's pairs by semantic similarity.
type SearchMessageRequest struct {
	UserId string `json:"user_id,omitempty"`
	Query  string `json:"query"`
	Limit  int    `json:"limit,omitempty"`
}

// DeleteMessageRequest removes one pair by id.
type DeleteMessageRequest struct {
	UserId string `json:"user_id,omitempty"`
	Id     string `json:"id"`
}

// SearchResult is one search hit for presentation.
type SearchResult struct {
	Memory persister.View `json:"memory"`
	Score  float64        `json:"score"`
}

// Status summarizes the store for status reporting.
type Status struct {
	Users           int  `json:"users"`
	Records         int  `json:"records"`
	EmbedderHealthy bool `json:"embedder_healthy"`
}

// Service fronts the memory store for every transport. It owns request
// validation and user-id resolution; the store below it never sees an
// unresolved or invalid request.
type Service struct {
	store         *memorystore.Store
	sessionUserId string
	defaultUserId string
}

type Option func(*Service)

// WithSessionUserId binds every call on this service to one user,
// overriding both the process default and per-request user ids.
func WithSessionUserId(userId string) Option {
	return func(s *Service) {
		s.sessionUserId = userId
	}
}

// WithDefaultUserId sets the process-wide fallback user id, consulted when
// no session binding exists.
func WithDefaultUserId(userId string) Option {
	return func(s *Service) {
		s.defaultUserId = userId
	}
}

func New(store *memorystore.Store, opts ...Option) *Service {
	s := &Service{
		store: store,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveUserId applies the precedence rule: session-bound id, then process
// default, then the id supplied with the request.
func (s *Service) ResolveUserId(requested string) (string, error) {
	for _, candidate := range []string{s.sessionUserId, s.defaultUserId, requested} {
		if len(strings.TrimSpace(candidate)) > 0 {
			return candidate, nil
		}
	}
	return "", ErrMissingUserId
}

func (s *Service) AddMessage(ctx context.Context, req AddMessageRequest) (persister.Record, error) {
	userId, err := s.ResolveUserId(req.UserId)
	if err != nil {
		return persister.Record{}, err
	}

	if len(strings.TrimSpace(req.Question)) == 0 {
		return persister.Record{}, fmt.Errorf("%w: question", ErrMissingRequiredField)
	}
	if len(strings.TrimSpace(req.Answer)) == 0 {
		return persister.Record{}, fmt.Errorf("%w: answer", ErrMissingRequiredField)
	}

	return s.store.Add(ctx, userId, req.Question, req.Answer)
}

func (s *Service) SearchMessages(ctx context.Context, req SearchMessageRequest) ([]SearchResult, error) {
	userId, err := s.ResolveUserId(req.UserId)
	if err != nil {
		return nil, err
	}

	if len(strings.TrimSpace(req.Query)) == 0 {
		return nil, fmt.Errorf("%w: query", ErrMissingRequiredField)
	}

	scored, err := s.store.Search(ctx, userId, req.Query, req.Limit)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(scored))
	for _, hit := range scored {
		results = append(results, SearchResult{
			Memory: persister.ViewOf(hit.Record),
			Score:  hit.Score,
		})
	}

	return results, nil
}

func (s *Service) DeleteMessage(ctx context.Context, req DeleteMessageRequest) (bool, error) {
	userId, err := s.ResolveUserId(req.UserId)
	if err != nil {
		return false, err
	}

	if len(strings.TrimSpace(req.Id)) == 0 {
		return false, fmt.Errorf("%w: id", ErrMissingRequiredField)
	}

	return s.store.Delete(ctx, userId, req.Id)
}

// ListMessages returns a user's records without embeddings. Unlike the tool
// operations it takes an explicit user id; the admin console lists any user.
func (s *Service) ListMessages(userId string) []persister.View {
	return s.store.List(userId)
}

// DeleteMessageFor removes one record for an explicit user id, bypassing
// session and default resolution. The admin console manages any user's
// records, so a session binding must not reroute its deletes.
func (s *Service) DeleteMessageFor(ctx context.Context, userId string, id string) (bool, error) {
	if len(strings.TrimSpace(userId)) == 0 {
		return false, ErrMissingUserId
	}
	if len(strings.TrimSpace(id)) == 0 {
		return false, fmt.Errorf("%w: id", ErrMissingRequiredField)
	}

	return s.store.Delete(ctx, userId, id)
}

func (s *Service) ListUsers() []string {
	return s.store.Users()
}

func (s *Service) CountMessages(userId string) int {
	return s.store.Count(userId)
}

func (s *Service) Status(ctx context.Context) Status {
	return Status{
		Users:           len(s.store.Users()),
		Records:         s.store.Total(),
		EmbedderHealthy: s.store.Healthy(ctx),
	}
}
