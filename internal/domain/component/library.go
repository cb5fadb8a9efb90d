package component

import (
	"fmt"

	"github.com/measurekit/measurekit/internal/engine/identity"
)

// Library is the in-memory component collection the engines operate on.
// It preserves insertion order — the matcher's first-match-wins tie-break
// depends on it — and maintains an id index plus an identity-digest index
// for exact-match scans over large libraries.
type Library struct {
	components []*Component
	byID       map[string]*Component
	byDigest   map[uint64][]*Component
}

// NewLibrary builds a library from components in the given order.
func NewLibrary(components ...*Component) *Library {
	l := &Library{
		byID:     make(map[string]*Component, len(components)),
		byDigest: make(map[uint64][]*Component, len(components)),
	}
	for _, c := range components {
		// Duplicate ids in stored data indicate corruption upstream;
		// keep the first occurrence so iteration order stays stable.
		if _, exists := l.byID[c.ID]; exists {
			continue
		}
		l.add(c)
	}
	return l
}

func (l *Library) add(c *Component) {
	l.components = append(l.components, c)
	l.byID[c.ID] = c
	if key := c.IdentityKey(); key != "" {
		d := identity.Digest(key)
		l.byDigest[d] = append(l.byDigest[d], c)
	}
}

// Add appends a new component, rejecting duplicate ids.
func (l *Library) Add(c *Component) error {
	if c.ID == "" {
		return fmt.Errorf("component has no id")
	}
	if _, exists := l.byID[c.ID]; exists {
		return fmt.Errorf("component %s already in library", c.ID)
	}
	l.add(c)
	return nil
}

// Get returns the component with the given id.
func (l *Library) Get(id string) (*Component, bool) {
	c, ok := l.byID[id]
	return c, ok
}

// Components returns all components in insertion order. The slice is shared;
// callers must not reorder it.
func (l *Library) Components() []*Component {
	return l.components
}

// ByIdentity returns the atomic components whose identity key equals key, in
// insertion order.
func (l *Library) ByIdentity(key string) []*Component {
	bucket := l.byDigest[identity.Digest(key)]
	if len(bucket) == 0 {
		return nil
	}
	// The digest bucket can theoretically hold hash collisions; confirm on
	// the full key.
	var out []*Component
	for _, c := range bucket {
		if c.IdentityKey() == key {
			out = append(out, c)
		}
	}
	return out
}

// Len returns the number of components.
func (l *Library) Len() int { return len(l.components) }

// InconsistentUsage returns the ids of components whose cached usage count
// disagrees with their measure-id set. A non-empty result means some write
// path bypassed the usage methods and a rebuild pass is needed.
func (l *Library) InconsistentUsage() []string {
	var bad []string
	for _, c := range l.components {
		if !c.Usage.Consistent() {
			bad = append(bad, c.ID)
		}
	}
	return bad
}
