// Package capability implements the capability registry: a catalog of agent
// capabilities keyed by ID and matched through intent-tag intersection.
// The registry is populated during startup and effectively immutable
// afterwards, so reads take only a shared lock.
package capability

import (
	"sort"
	"sync"

	"github.com/talentmesh/talentmesh/core"
	"github.com/talentmesh/talentmesh/internal/util"
)

// Registry holds registered capability descriptors in registration order.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]int // id -> index into ordered
	order []core.CapabilityDescriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]int)}
}

// Register adds a descriptor. It fails with DuplicateCapabilityError if the
// ID is already taken and with ValidationError if the descriptor is
// malformed (empty ID or no intent tags).
func (r *Registry) Register(d core.CapabilityDescriptor) error {
	if d.ID == "" {
		return &core.ValidationError{Field: "id", Message: "capability id must not be empty"}
	}
	if len(d.IntentTags) == 0 {
		return &core.ValidationError{Field: "intent_tags", Message: "capability must declare at least one intent tag"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[d.ID]; exists {
		return &core.DuplicateCapabilityError{ID: d.ID}
	}
	r.byID[d.ID] = len(r.order)
	r.order = append(r.order, d)
	return nil
}

// Lookup returns the descriptor for an ID or UnknownCapabilityError.
func (r *Registry) Lookup(id string) (core.CapabilityDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byID[id]
	if !ok {
		return core.CapabilityDescriptor{}, &core.UnknownCapabilityError{ID: id}
	}
	return r.order[idx], nil
}

// Match returns descriptors whose intent tags intersect the query tags,
// ranked by overlap count with registration order as the stable tie-break.
// Extracted parameters are validated against each candidate's schema; a
// candidate whose schema rejects the parameters is skipped rather than
// surfaced as an error, since other candidates may still fit.
func (r *Registry) Match(intentTags []string, params map[string]any) []core.CapabilityDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type scored struct {
		d       core.CapabilityDescriptor
		overlap int
		regIdx  int
	}

	query := make(map[string]bool, len(intentTags))
	for _, tag := range intentTags {
		query[tag] = true
	}

	var candidates []scored
	for i, d := range r.order {
		overlap := 0
		for _, t := range d.IntentTags {
			if query[t] {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}
		if params != nil && d.Parameters != nil {
			if err := util.ValidateParameters(params, d.Parameters); err != nil {
				continue
			}
		}
		candidates = append(candidates, scored{d: d, overlap: overlap, regIdx: i})
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		if candidates[a].overlap != candidates[b].overlap {
			return candidates[a].overlap > candidates[b].overlap
		}
		return candidates[a].regIdx < candidates[b].regIdx
	})

	out := make([]core.CapabilityDescriptor, len(candidates))
	for i, c := range candidates {
		out[i] = c.d
	}
	return out
}

// Tags returns the deduplicated set of all registered intent tags in first
// occurrence order. The router hands this list to the classifier so it can
// only answer with known tags.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	var tags []string
	for _, d := range r.order {
		for _, t := range d.IntentTags {
			if !seen[t] {
				seen[t] = true
				tags = append(tags, t)
			}
		}
	}
	return tags
}

// All returns descriptors in registration order.
func (r *Registry) All() []core.CapabilityDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.CapabilityDescriptor, len(r.order))
	copy(out, r.order)
	return out
}
