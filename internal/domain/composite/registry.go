package composite

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Registry holds every promoted weight vector and the one in live use.
// Versions are append-only; readers load the active vector without locking.
type Registry struct {
	mu        sync.Mutex
	versions  []WeightVector
	index     map[string]int
	active    atomic.Pointer[WeightVector]
	tolerance float64
}

// NewRegistry seeds the registry with initial, which becomes active.
// An empty version on initial is replaced by "default".
func NewRegistry(initial WeightVector, tolerance float64) (*Registry, error) {
	if initial.Version == "" {
		initial.Version = "default"
	}
	r := &Registry{index: make(map[string]int), tolerance: tolerance}
	if _, err := r.Promote(initial, initial.Version); err != nil {
		return nil, err
	}
	return r, nil
}

// Promote validates w, stores it under version and makes it active.
// Vectors already handed out by Active are unaffected.
func (r *Registry) Promote(w WeightVector, version string) (WeightVector, error) {
	if version == "" {
		return WeightVector{}, ErrEmptyVersion
	}
	if err := w.Validate(r.tolerance); err != nil {
		return WeightVector{}, err
	}

	stored := NewWeightVector(version, w.Weights)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.index[version]; ok {
		return WeightVector{}, fmt.Errorf("%w: %s", ErrVersionExists, version)
	}
	r.index[version] = len(r.versions)
	r.versions = append(r.versions, stored)
	live := stored.Clone()
	r.active.Store(&live)
	return stored.Clone(), nil
}

// Active returns a copy of the live vector.
func (r *Registry) Active() WeightVector {
	return r.active.Load().Clone()
}

// Get returns a copy of a stored version.
func (r *Registry) Get(version string) (WeightVector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[version]
	if !ok {
		return WeightVector{}, fmt.Errorf("%w: %s", ErrVersionNotFound, version)
	}
	return r.versions[i].Clone(), nil
}

// Versions lists version tags in promotion order.
func (r *Registry) Versions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.versions))
	for i, v := range r.versions {
		out[i] = v.Version
	}
	return out
}

// Rollback makes a previously promoted version active again.
func (r *Registry) Rollback(version string) (WeightVector, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[version]
	if !ok {
		return WeightVector{}, fmt.Errorf("%w: %s", ErrVersionNotFound, version)
	}
	v := r.versions[i].Clone()
	r.active.Store(&v)
	return v.Clone(), nil
}
