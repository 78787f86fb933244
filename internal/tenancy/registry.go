package tenancy

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/wolfman30/studio-booking-assistant/internal/assistant"
)

// ErrUnknownStudio is returned when a slug is not registered.
var ErrUnknownStudio = errors.New("tenancy: unknown studio")

// Registry maps studio slugs to their public identity. An empty Registry
// accepts any slug, which is how single-tenant deployments run.
type Registry struct {
	mu      sync.RWMutex
	studios map[string]assistant.Studio
}

// NewRegistry creates a registry from studios; later duplicates win.
func NewRegistry(studios ...assistant.Studio) *Registry {
	r := &Registry{studios: make(map[string]assistant.Studio, len(studios))}
	for _, s := range studios {
		r.Put(s)
	}
	return r
}

// ParseRegistry decodes a JSON array of studios, as found in STUDIOS_JSON.
// Blank input yields an empty registry.
func ParseRegistry(raw string) (*Registry, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return NewRegistry(), nil
	}
	var studios []assistant.Studio
	if err := json.Unmarshal([]byte(raw), &studios); err != nil {
		return nil, fmt.Errorf("tenancy: parse studios: %w", err)
	}
	for i, s := range studios {
		if NormalizeSlug(s.Slug) == "" {
			return nil, fmt.Errorf("tenancy: studio %d has no slug", i)
		}
	}
	return NewRegistry(studios...), nil
}

// NormalizeSlug lowercases and trims a slug.
func NormalizeSlug(slug string) string {
	return strings.ToLower(strings.TrimSpace(slug))
}

// Put registers or replaces a studio.
func (r *Registry) Put(s assistant.Studio) {
	s.Slug = NormalizeSlug(s.Slug)
	s.Vertical = strings.ToLower(strings.TrimSpace(s.Vertical))
	if s.Slug == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.studios[s.Slug] = s
}

// Lookup returns the studio registered under slug.
func (r *Registry) Lookup(slug string) (assistant.Studio, error) {
	if r == nil {
		return assistant.Studio{}, ErrUnknownStudio
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.studios[NormalizeSlug(slug)]
	if !ok {
		return assistant.Studio{}, ErrUnknownStudio
	}
	return s, nil
}

// Resolve is Lookup for multi-tenant registries. An empty registry returns a
// bare identity carrying only the slug.
func (r *Registry) Resolve(slug string) (assistant.Studio, error) {
	slug = NormalizeSlug(slug)
	if slug == "" {
		return assistant.Studio{}, ErrUnknownStudio
	}
	if r.Len() == 0 {
		return assistant.Studio{Slug: slug}, nil
	}
	return r.Lookup(slug)
}

// Len reports the number of registered studios.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.studios)
}

// Slugs lists registered slugs in sorted order.
func (r *Registry) Slugs() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.studios))
	for slug := range r.studios {
		out = append(out, slug)
	}
	sort.Strings(out)
	return out
}
