package reconcile

import "strings"

// Entry is one destination row reduced to what reconciliation needs.
// A nil Fingerprint means the row has no stored fingerprint.
type Entry struct {
	RowID       string
	Identity    string
	Fingerprint *string
}

// Snapshot is the destination's current state, indexed by identity. Build
// one with FromEntries or FromMap; both normalize to the same index.
type Snapshot struct {
	index      map[string]Entry
	duplicates int
}

// FromEntries builds a Snapshot from destination entries. Entries without
// an identity are ignored. When an identity repeats, the later entry wins.
func FromEntries(entries []Entry) Snapshot {
	s := Snapshot{index: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		if e.Identity == "" {
			continue
		}
		if _, seen := s.index[e.Identity]; seen {
			s.duplicates++
		}
		e.Fingerprint = cleanFingerprint(e.Fingerprint)
		s.index[e.Identity] = e
	}
	return s
}

// FromMap builds a Snapshot from an identity -> fingerprint map, for
// destinations that do not expose row IDs.
func FromMap(m map[string]*string) Snapshot {
	s := Snapshot{index: make(map[string]Entry, len(m))}
	for id, fp := range m {
		if id == "" {
			continue
		}
		s.index[id] = Entry{Identity: id, Fingerprint: cleanFingerprint(fp)}
	}
	return s
}

// Len returns the number of distinct identities in the snapshot.
func (s Snapshot) Len() int {
	return len(s.index)
}

// Duplicates returns how many entries were replaced by a later entry with
// the same identity.
func (s Snapshot) Duplicates() int {
	return s.duplicates
}

// Lookup returns the entry for identity.
func (s Snapshot) Lookup(identity string) (Entry, bool) {
	e, ok := s.index[identity]
	return e, ok
}

// fold rebuilds the index with identities passed through f. On collision
// the lexicographically last original identity wins so the result does not
// depend on map iteration order.
func (s Snapshot) fold(f func(string) string) Snapshot {
	out := Snapshot{index: make(map[string]Entry, len(s.index)), duplicates: s.duplicates}
	origin := make(map[string]string, len(s.index))
	for id, e := range s.index {
		key := f(id)
		if prev, ok := origin[key]; ok {
			out.duplicates++
			if prev > id {
				continue
			}
		}
		origin[key] = id
		out.index[key] = e
	}
	return out
}

func cleanFingerprint(fp *string) *string {
	if fp == nil {
		return nil
	}
	s := strings.TrimSpace(*fp)
	if s == "" {
		return nil
	}
	return &s
}
