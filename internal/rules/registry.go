package rules

import (
	"net/http"
	"sync/atomic"
)

// Registry holds the active rule set and lets a config reload replace it
// while requests are being matched.
type Registry struct {
	current atomic.Pointer[Set]
}

// NewRegistry creates a registry serving set. A nil set matches nothing.
func NewRegistry(set *Set) *Registry {
	r := &Registry{}
	if set != nil {
		r.current.Store(set)
	}
	return r
}

// Load returns the active set.
func (r *Registry) Load() *Set {
	return r.current.Load()
}

// Swap installs set and returns the previous one.
func (r *Registry) Swap(set *Set) *Set {
	return r.current.Swap(set)
}

// Match matches req against the active set.
func (r *Registry) Match(req *http.Request) *Rule {
	return r.current.Load().Match(req)
}

// Len returns the number of active rules.
func (r *Registry) Len() int {
	return r.current.Load().Len()
}
