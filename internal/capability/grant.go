// Package capability implements the Filament capability router: grant sets,
// outbound authorization, affinity enforcement, and the special
// kernel-handled topics (time, logging, panic, kv, fs, http).
package capability

import (
	"errors"
	"strings"
)

var (
	ErrPerm = errors.New("capability: topic not granted")
)

// Affinity controls whether a capability may be granted to a Stateless
// module instance.
type Affinity int

const (
	Agnostic Affinity = iota
	Pinned
)

// Grant is one capability token held by a process: a URN (exact topic, or a
// "prefix/*" wildcard matching every topic under prefix/) and its affinity.
type Grant struct {
	URN      string
	Affinity Affinity
}

func (g Grant) matches(topic string) bool {
	if strings.HasSuffix(g.URN, "/*") {
		prefix := strings.TrimSuffix(g.URN, "*")
		return strings.HasPrefix(topic, prefix)
	}
	return g.URN == topic
}

// Set is a process's granted capability set.
type Set struct {
	grants []Grant
}

// NewSet builds a Set from grants.
func NewSet(grants []Grant) *Set {
	return &Set{grants: grants}
}

// Authorize looks up topic in the granting set. It returns the matching
// Grant, or ErrPerm if no grant covers topic.
func (s *Set) Authorize(topic string) (Grant, error) {
	for _, g := range s.grants {
		if g.matches(topic) {
			return g, nil
		}
	}
	return Grant{}, ErrPerm
}

// CheckAffinity enforces that a Pinned capability is never handed to a
// Stateless module instance: a pooled instance can be recycled to a
// different owner mid-lifetime, which would leak a Pinned grant across
// processes.
func CheckAffinity(g Grant, stateless bool) error {
	if g.Affinity == Pinned && stateless {
		return ErrPerm
	}
	return nil
}

// Subset reports whether every grant in want is covered by s, the check a
// supervisor performs when spawning a child with a requested capability set.
func (s *Set) Subset(want []Grant) bool {
	for _, w := range want {
		if _, err := s.Authorize(w.URN); err != nil {
			return false
		}
	}
	return true
}
