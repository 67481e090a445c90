package brains

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"cortex/internal/logging"
	"cortex/internal/store"
	"cortex/internal/types"
)

// metaBrainName keys specialist index documents back to registered stages.
const metaBrainName = "brain"

// DefaultSpecialistTopN specialists are selected per request.
const DefaultSpecialistTopN = 3

// Registry holds every registered stage. Core stages form the fixed chain;
// specialist descriptions are indexed in the vector store for per-request
// nearest-neighbor selection.
type Registry struct {
	mu          sync.RWMutex
	store       *store.VectorStore
	stages      map[string]Stage
	coreNames   map[string]bool
	specialists []string
}

// NewRegistry creates an empty registry over the given store.
func NewRegistry(vs *store.VectorStore) *Registry {
	return &Registry{
		store:     vs,
		stages:    make(map[string]Stage),
		coreNames: make(map[string]bool),
	}
}

// RegisterCore adds a core stage. Core stages are never index-selected.
func (r *Registry) RegisterCore(stages ...Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range stages {
		r.stages[s.Name()] = s
		r.coreNames[s.Name()] = true
	}
}

// RegisterSpecialists adds specialist stages and indexes their descriptions.
func (r *Registry) RegisterSpecialists(ctx context.Context, stages ...Stage) error {
	docs := make([]types.Document, 0, len(stages))
	r.mu.Lock()
	for _, s := range stages {
		r.stages[s.Name()] = s
		r.specialists = append(r.specialists, s.Name())
		docs = append(docs, types.Document{
			ID:       "brain:" + s.Name(),
			Text:     s.Name() + ": " + s.Description(),
			Metadata: map[string]string{metaBrainName: s.Name()},
		})
	}
	r.mu.Unlock()

	if err := r.store.Add(ctx, store.CollectionBrains, docs); err != nil {
		return fmt.Errorf("failed to index specialist descriptions: %w", err)
	}
	logging.Brains("registered %d specialists", len(stages))
	return nil
}

// Get looks a stage up by name.
func (r *Registry) Get(name string) (Stage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stages[name]
	return s, ok
}

// Core returns the core chain prefix and suffix stages sorted by order.
func (r *Registry) Core() []Stage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Stage, 0, len(r.coreNames))
	for name := range r.coreNames {
		out = append(out, r.stages[name])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order() < out[j].Order() })
	return out
}

// SpecialistNames returns every registered specialist name, sorted.
func (r *Registry) SpecialistNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]string(nil), r.specialists...)
	sort.Strings(out)
	return out
}

// SelectSpecialists returns the topN specialists whose descriptions are
// nearest to the query, plus any explicitly included names, in ascending
// stage order.
func (r *Registry) SelectSpecialists(ctx context.Context, query string, topN int, include ...string) ([]Stage, error) {
	if topN <= 0 {
		topN = DefaultSpecialistTopN
	}
	docs, err := r.store.Search(ctx, store.CollectionBrains, query, topN)
	if err != nil {
		return nil, fmt.Errorf("specialist selection failed: %w", err)
	}

	seen := make(map[string]bool)
	var selected []Stage
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		if stage, ok := r.Get(name); ok && !r.isCore(name) {
			seen[name] = true
			selected = append(selected, stage)
		}
	}
	for _, d := range docs {
		add(d.Metadata[metaBrainName])
	}
	for _, name := range include {
		add(name)
	}

	sort.SliceStable(selected, func(i, j int) bool { return selected[i].Order() < selected[j].Order() })
	names := make([]string, 0, len(selected))
	for _, s := range selected {
		names = append(names, s.Name())
	}
	logging.Brains("selected specialists: %v", names)
	return selected, nil
}

func (r *Registry) isCore(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.coreNames[name]
}

// =============================================================================
// PROFILES
// =============================================================================

// Profile is the optional .cortex/brains.yaml override file: per-specialist
// order and description tweaks, plus a disable switch.
type Profile struct {
	Specialists []ProfileEntry `yaml:"specialists"`
}

// ProfileEntry overrides one specialist.
type ProfileEntry struct {
	Name        string `yaml:"name"`
	Order       int    `yaml:"order,omitempty"`
	Description string `yaml:"description,omitempty"`
	Disabled    bool   `yaml:"disabled,omitempty"`
}

// LoadProfile reads a brains profile. A missing file yields an empty profile.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Profile{}, nil
	}
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("invalid brains profile %s: %w", path, err)
	}
	return &p, nil
}

// Apply filters and adjusts specialist stages per the profile: disabled
// stages are dropped, order and description overrides are applied in place.
func (p *Profile) Apply(stages []Stage) []Stage {
	byName := make(map[string]ProfileEntry, len(p.Specialists))
	for _, e := range p.Specialists {
		byName[e.Name] = e
	}

	out := make([]Stage, 0, len(stages))
	for _, s := range stages {
		entry, ok := byName[s.Name()]
		if !ok {
			out = append(out, s)
			continue
		}
		if entry.Disabled {
			logging.Brains("specialist %s disabled by profile", s.Name())
			continue
		}
		if pr, ok := s.(profiled); ok {
			if entry.Order >= OrderSpecialistMin && entry.Order < OrderJudge {
				pr.setOrder(entry.Order)
			}
			if entry.Description != "" {
				pr.setDescription(entry.Description)
			}
		}
		out = append(out, s)
	}
	return out
}
