// Package reusekey derives the translation-memory fingerprint: a per-namespace
// key reduction, a source-text normalization, and a stable hash over both.
package reusekey

import (
	"regexp"
	"sync"
)

// Versions baked into every TM key. Bump PolicyVersion when a namespace
// policy changes meaning, HashAlgoVersion when the hash construction changes.
const (
	PolicyVersion   = 1
	HashAlgoVersion = 1
)

// Policy controls how a namespace's structural keys are reduced before
// hashing. A strict policy performs no reduction at all.
type Policy struct {
	Strict   bool
	DropKeys []string
	// NormalizeKeys maps a field name to a prefix pattern; the field's string
	// value is replaced by the pattern's match (e.g. truncating a semantic
	// version to its major.minor component).
	NormalizeKeys map[string]*regexp.Regexp
}

// Reduce applies the policy to a key-map and returns the reduced copy. The
// input is never mutated.
func (p Policy) Reduce(keys map[string]any) map[string]any {
	out := make(map[string]any, len(keys))
	for k, v := range keys {
		out[k] = v
	}
	if p.Strict {
		return out
	}
	for _, k := range p.DropKeys {
		delete(out, k)
	}
	for k, re := range p.NormalizeKeys {
		s, ok := out[k].(string)
		if !ok || re == nil {
			continue
		}
		if m := re.FindString(s); m != "" {
			out[k] = m
		}
	}
	return out
}

// Registry holds the closed set of namespace policies, populated explicitly
// at startup. Unregistered namespaces get a strict (no-reduction) policy.
type Registry struct {
	mu       sync.RWMutex
	policies map[string]Policy
}

func NewRegistry() *Registry {
	return &Registry{policies: make(map[string]Policy)}
}

func (r *Registry) Register(namespace string, p Policy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[namespace] = p
}

func (r *Registry) Get(namespace string) Policy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.policies[namespace]; ok {
		return p
	}
	return Policy{Strict: true}
}
