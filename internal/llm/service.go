package llm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	ErrNoModel       = errors.New("no model selected")
	ErrMissingAPIKey = errors.New("provider API key not configured")
)

// Service sends conversations to the currently selected model. It is safe for
// concurrent use; Reload swaps the registry without disturbing calls already
// in flight.
type Service struct {
	client   Client
	log      *zap.Logger
	registry atomic.Pointer[Registry]

	mu      sync.RWMutex
	current string
}

// NewService creates a Service over providers.
func NewService(client Client, providers []Provider, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{client: client, log: logger}
	s.registry.Store(NewRegistry(providers))
	return s
}

// Registry returns the registry currently in use.
func (s *Service) Registry() *Registry {
	return s.registry.Load()
}

// Reload replaces the registry. The current model is kept only if it still
// exists.
func (s *Service) Reload(providers []Provider) {
	r := NewRegistry(providers)
	s.registry.Store(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != "" {
		if _, err := r.Model(s.current); err != nil {
			s.log.Warn("current model dropped by reload", zap.String("model", s.current))
			s.current = ""
		}
	}
	s.log.Info("llm configuration reloaded",
		zap.Int("providers", len(r.providers)),
		zap.Int("models", len(r.models)))
}

// SetCurrentModel selects a model by id or alias.
func (s *Service) SetCurrentModel(idOrAlias string) error {
	m, err := s.Registry().Model(idOrAlias)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.current = m.ID
	s.mu.Unlock()
	return nil
}

// CurrentModel returns the selected model, if any.
func (s *Service) CurrentModel() (Model, bool) {
	return s.currentIn(s.Registry())
}

func (s *Service) currentIn(reg *Registry) (Model, bool) {
	s.mu.RLock()
	id := s.current
	s.mu.RUnlock()
	if id == "" {
		return Model{}, false
	}
	m, err := reg.Model(id)
	if err != nil {
		return Model{}, false
	}
	return m, true
}

func (s *Service) Models() []Model {
	return s.Registry().Models()
}

func (s *Service) Providers() []Provider {
	return s.Registry().Providers()
}

// VerifyPrompt is the fixed request Verify sends.
const VerifyPrompt = "Say this is a test!"

// Verification reports a test round trip to a model.
type Verification struct {
	Provider Provider
	Model    Model
	Response Response
}

// resolve returns the current model and its provider from one registry
// snapshot, so a concurrent Reload cannot split them.
func (s *Service) resolve() (Model, Provider, error) {
	reg := s.Registry()
	m, ok := s.currentIn(reg)
	if !ok {
		return Model{}, Provider{}, ErrNoModel
	}
	p, err := reg.Provider(m.ProviderID)
	if err != nil {
		return Model{}, Provider{}, err
	}
	if p.APIKey == "" {
		return Model{}, Provider{}, fmt.Errorf("provider %s: %w", p.ID, ErrMissingAPIKey)
	}
	return m, p, nil
}

// Send completes messages with the current model.
func (s *Service) Send(ctx context.Context, messages []Message) (Response, error) {
	m, p, err := s.resolve()
	if err != nil {
		return Response{}, err
	}
	return s.complete(ctx, m, p, messages)
}

// Verify sends VerifyPrompt to the current model to check its provider URL,
// key and model name.
func (s *Service) Verify(ctx context.Context) (Verification, error) {
	m, p, err := s.resolve()
	if err != nil {
		return Verification{}, err
	}
	resp, err := s.complete(ctx, m, p, []Message{{Role: RoleUser, Content: VerifyPrompt}})
	if err != nil {
		return Verification{}, fmt.Errorf("verify: %w", err)
	}
	return Verification{Provider: p, Model: m, Response: resp}, nil
}

func (s *Service) complete(ctx context.Context, m Model, p Provider, messages []Message) (Response, error) {
	s.log.Info("sending conversation",
		zap.String("provider", p.ID),
		zap.String("model", m.ID),
		zap.Int("messages", len(messages)))

	resp, err := s.client.Complete(ctx, Call{
		URL:        p.URL,
		APIKey:     p.APIKey,
		Model:      m.Name,
		Messages:   messages,
		Parameters: m.Parameters,
	})
	if err != nil {
		return Response{}, fmt.Errorf("complete with %s: %w", m.ID, err)
	}
	return resp, nil
}
