// Package adapter holds the platform adapters that turn remote model
// listings into observation rows, plus the registry the scrape command
// selects them from.
package adapter

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/modelpulse/tracker-cli/internal/classify"
	"github.com/modelpulse/tracker-cli/internal/fetcher"
	"github.com/modelpulse/tracker-cli/internal/model"
)

// Adapter produces raw observation rows for one platform. Rows always fill
// date, platform, model_name, publisher and download_count; optional fields
// use the explicit missing marker (empty string), never a shifted column.
type Adapter interface {
	// Name returns the unique adapter identifier.
	Name() string

	// Platform returns the platform key rows are written under.
	Platform() string

	// Fetch scrapes the platform and returns rows stamped with the given day.
	Fetch(ctx context.Context, f *fetcher.HTTP, day model.Day) ([]model.Observation, error)
}

// Registry maps adapter names to their implementations.
type Registry struct {
	adapters map[string]Adapter
	order    []string // insertion order for deterministic iteration
}

// NewRegistry creates a registry populated with one adapter per tracked
// platform, using the rule set's family keywords as search terms.
func NewRegistry(rules classify.Rules) *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}

	keywords := searchTerms(rules)
	r.Register(NewHub("huggingface", hubBaseURL, keywords))
	r.Register(NewMarketplace("modelscope", marketplaceBaseURL, keywords))
	for _, p := range defaultPortals() {
		r.Register(p)
	}
	return r
}

func searchTerms(rules classify.Rules) []string {
	terms := make([]string, 0, len(rules.Families))
	for _, f := range rules.Families {
		terms = append(terms, f.Name)
	}
	return terms
}

// Register adds an adapter to the registry.
func (r *Registry) Register(a Adapter) {
	name := a.Name()
	r.adapters[name] = a
	r.order = append(r.order, name)
}

// Get returns an adapter by name.
func (r *Registry) Get(name string) (Adapter, error) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, eris.Errorf("adapter: unknown adapter %q", name)
	}
	return a, nil
}

// Select returns the named adapters, or all of them when names is empty.
func (r *Registry) Select(names []string) ([]Adapter, error) {
	if len(names) == 0 {
		return r.All(), nil
	}
	result := make([]Adapter, 0, len(names))
	for _, name := range names {
		a, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, nil
}

// All returns all adapters in registration order.
func (r *Registry) All() []Adapter {
	result := make([]Adapter, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.adapters[name])
	}
	return result
}

// AllNames returns all registered adapter names in registration order.
func (r *Registry) AllNames() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
