package llm

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrProviderNotFound = errors.New("provider not found")
	ErrModelNotFound    = errors.New("model not found")
)

// Provider is an OpenAI-compatible endpoint and the models it serves.
type Provider struct {
	ID     string
	Name   string
	URL    string
	APIKey string
	Models []Model
}

// Model is a model offered by a provider. Name is what goes on the wire; ID
// and Alias are how users refer to it.
type Model struct {
	ID         string
	Name       string
	ProviderID string
	Alias      string
	Parameters map[string]any
}

// Registry is an immutable index of providers, models and aliases. Replace it
// as a whole rather than mutating it.
type Registry struct {
	providers map[string]Provider
	models    map[string]Model
	aliases   map[string]string
	order     []string
}

// NewRegistry indexes providers. Every model takes its parent's id as its
// ProviderID regardless of what it declared. Later duplicates replace earlier
// ones.
func NewRegistry(providers []Provider) *Registry {
	r := &Registry{
		providers: make(map[string]Provider, len(providers)),
		models:    make(map[string]Model),
		aliases:   make(map[string]string),
	}
	for _, p := range providers {
		p.Models = append([]Model(nil), p.Models...)
		for i := range p.Models {
			m := p.Models[i]
			m.ProviderID = p.ID
			p.Models[i] = m
			if _, seen := r.models[m.ID]; !seen {
				r.order = append(r.order, m.ID)
			}
			r.models[m.ID] = m
			if m.Alias != "" {
				r.aliases[m.Alias] = m.ID
			}
		}
		r.providers[p.ID] = p
	}
	return r
}

// Provider looks up a provider by id.
func (r *Registry) Provider(id string) (Provider, error) {
	p, ok := r.providers[id]
	if !ok {
		return Provider{}, fmt.Errorf("provider %s: %w", id, ErrProviderNotFound)
	}
	return p, nil
}

// Model resolves a model id, falling back to an alias.
func (r *Registry) Model(idOrAlias string) (Model, error) {
	if m, ok := r.models[idOrAlias]; ok {
		return m, nil
	}
	if id, ok := r.aliases[idOrAlias]; ok {
		return r.models[id], nil
	}
	return Model{}, fmt.Errorf("model %s: %w", idOrAlias, ErrModelNotFound)
}

// Models lists models in configuration order.
func (r *Registry) Models() []Model {
	out := make([]Model, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.models[id])
	}
	return out
}

// Providers lists providers sorted by id.
func (r *Registry) Providers() []Provider {
	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
