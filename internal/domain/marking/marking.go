// Package marking defines classification markings and the containment rule
// that decides whether a viewer may observe marked content.
package marking

// Marking is an opaque classification or compartment label.
type Marking string

// Set is an unordered collection of markings with O(1) membership.
type Set map[Marking]struct{}

// NewSet builds a Set from the given markings. Duplicates collapse.
func NewSet(ms ...Marking) Set {
	s := make(Set, len(ms))
	for _, m := range ms {
		s[m] = struct{}{}
	}
	return s
}

// FromStrings builds a Set from raw identifiers, skipping empty ones.
func FromStrings(ids []string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		s[Marking(id)] = struct{}{}
	}
	return s
}

// Contains reports whether m is a member of s. A nil Set contains nothing.
func (s Set) Contains(m Marking) bool {
	_, ok := s[m]
	return ok
}

// Len returns the number of distinct markings.
func (s Set) Len() int { return len(s) }

// Slice returns the members of s in unspecified order.
func (s Set) Slice() []Marking {
	out := make([]Marking, 0, len(s))
	for m := range s {
		out = append(out, m)
	}
	return out
}

// Permits reports whether a viewer holding allowed may observe content
// carrying required. Content must carry at least one marking and every one
// of them must be held by the viewer; there is no hierarchy between markings.
//
// Unmarked content is never permitted.
func Permits(allowed Set, required []Marking) bool {
	if len(required) == 0 {
		return false
	}
	for _, m := range required {
		if !allowed.Contains(m) {
			return false
		}
	}
	return true
}
