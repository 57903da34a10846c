package search

import (
	"context"
	"sort"
	"strings"

	"torrentstream/resolverservice/internal/debrid"
	"torrentstream/resolverservice/internal/domain"
)

// SourceAdapter is one content index. Errors are converted to an empty
// contribution by the scheduler, so implementations just return them.
type SourceAdapter interface {
	Name() string
	Info() domain.ProviderInfo
	Search(ctx context.Context, term string, year int) ([]domain.CandidateRecord, error)
}

type AggregatorRequest struct {
	MediaID   string
	MediaType domain.MediaType
	IMDbID    string
	Term      string
}

// Aggregator is the external fallback consulted when the adapters come back
// nearly empty.
type Aggregator interface {
	Name() string
	Search(ctx context.Context, request AggregatorRequest) ([]domain.CandidateRecord, error)
}

type MetadataResolver interface {
	Resolve(ctx context.Context, ref domain.MediaRef) (domain.MediaQuery, error)
}

type UnlockResolver interface {
	Resolve(ctx context.Context, provider debrid.Provider, candidates []debrid.Candidate, showUnresolved bool) []domain.StreamRecord
}

type DebridFactory interface {
	ForKey(apiKey string) debrid.Provider
}

type adapterRegistry struct {
	ordered  []SourceAdapter
	byName   map[string]SourceAdapter
	disabled map[string]bool
}

func newAdapterRegistry(adapters []SourceAdapter) adapterRegistry {
	reg := adapterRegistry{
		byName:   make(map[string]SourceAdapter, len(adapters)),
		disabled: make(map[string]bool),
	}
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(adapter.Name()))
		if name == "" {
			continue
		}
		if _, exists := reg.byName[name]; exists {
			continue
		}
		reg.byName[name] = adapter
		reg.ordered = append(reg.ordered, adapter)
		for _, alias := range providerAliases(name) {
			if _, exists := reg.byName[alias]; !exists {
				reg.byName[alias] = adapter
			}
		}
	}
	return reg
}

func providerAliases(name string) []string {
	switch name {
	case "piratebay":
		return []string{"bittorrent", "tpb"}
	case "1337x":
		return []string{"x1337"}
	case "corsaro":
		return []string{"ilcorsaronero", "icn"}
	default:
		return nil
	}
}

// disable switches adapters off by name or alias. Unknown names are
// returned so the caller can log them.
func (r adapterRegistry) disable(names []string) []string {
	var unknown []string
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		adapter, ok := r.byName[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		r.disabled[strings.ToLower(adapter.Name())] = true
	}
	return unknown
}

func (r adapterRegistry) isEnabled(adapter SourceAdapter) bool {
	return adapter.Info().Enabled && !r.disabled[strings.ToLower(adapter.Name())]
}

func (r adapterRegistry) enabled() []SourceAdapter {
	out := make([]SourceAdapter, 0, len(r.ordered))
	for _, adapter := range r.ordered {
		if r.isEnabled(adapter) {
			out = append(out, adapter)
		}
	}
	return out
}

// localSources lists adapters whose catalog is local-language only; their
// records skip the language check.
func (r adapterRegistry) localSources() map[string]bool {
	out := make(map[string]bool)
	for _, adapter := range r.ordered {
		info := adapter.Info()
		if info.LocalOnly {
			out[sourceKey(adapter.Name())] = true
		}
	}
	return out
}

func (s *Service) Providers() []domain.ProviderInfo {
	items := make([]domain.ProviderInfo, 0, len(s.adapters.ordered)+1)
	for _, adapter := range s.adapters.ordered {
		info := adapter.Info()
		info.Name = strings.ToLower(strings.TrimSpace(info.Name))
		if info.Name == "" {
			info.Name = strings.ToLower(strings.TrimSpace(adapter.Name()))
		}
		if info.Label == "" {
			info.Label = info.Name
		}
		info.Enabled = s.adapters.isEnabled(adapter)
		items = append(items, info)
	}
	if s.aggregator != nil {
		items = append(items, domain.ProviderInfo{
			Name:    sourceKey(s.aggregator.Name()),
			Label:   s.aggregator.Name(),
			Kind:    sourceKindAggregator,
			Enabled: true,
		})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Name < items[j].Name
	})
	return items
}
