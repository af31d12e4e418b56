// Package project flattens raw items into field-value records. The output
// field set is declared per run kind in a single mapping table; pagination
// and write-back never need to change when a field is added.
package project

import (
	"time"

	"github.com/sells-group/collector-cli/internal/model"
)

// KeySet is the per-run set of seen dedup keys. It is owned by one run,
// seeded from the pre-scan, grown as records are written, never shrunk.
// Single-worker access only; no locking.
type KeySet struct {
	m map[string]struct{}
}

// NewKeySet returns an empty key set.
func NewKeySet() *KeySet {
	return &KeySet{m: make(map[string]struct{})}
}

// Add inserts the key and reports whether it was newly added.
func (s *KeySet) Add(k string) bool {
	if _, dup := s.m[k]; dup {
		return false
	}
	s.m[k] = struct{}{}
	return true
}

// Has reports whether the key has been seen.
func (s *KeySet) Has(k string) bool {
	_, ok := s.m[k]
	return ok
}

// Len returns the number of seen keys.
func (s *KeySet) Len() int { return len(s.m) }

// RunContext is the immutable projection context of one run plus its mutable
// dedup set. Built once at run start; live caller state is never consulted.
type RunContext struct {
	Run         model.RunConfig
	CollectedAt time.Time
	Seen        *KeySet

	selection map[string]struct{}
}

// NewRunContext captures the run configuration. An empty field selection
// means every declared field is emitted.
func NewRunContext(cfg model.RunConfig, seen *KeySet) *RunContext {
	rc := &RunContext{
		Run:         cfg,
		CollectedAt: time.Now().UTC(),
		Seen:        seen,
	}
	if len(cfg.Fields) > 0 {
		rc.selection = make(map[string]struct{}, len(cfg.Fields))
		for _, f := range cfg.Fields {
			rc.selection[f] = struct{}{}
		}
	}
	return rc
}

// Selected reports whether the caller asked for the named field.
func (rc *RunContext) Selected(name string) bool {
	if rc.selection == nil {
		return true
	}
	_, ok := rc.selection[name]
	return ok
}
