package protocol

import "strings"

// Pair is one name/value entry of an ordered mapping.
type Pair struct {
	Key   string
	Value string
}

// Pairs is an insertion-ordered, case-preserving string mapping.
// The zero value is ready to use.
type Pairs struct {
	entries []Pair
}

// Set stores value under key. An existing entry with the same key keeps
// its position and has its value replaced.
func (p *Pairs) Set(key, value string) {
	for i := range p.entries {
		if p.entries[i].Key == key {
			p.entries[i].Value = value
			return
		}
	}
	p.entries = append(p.entries, Pair{Key: key, Value: value})
}

// SetFold is Set with case-insensitive key matching. The original spelling
// of the key is kept.
func (p *Pairs) SetFold(key, value string) {
	for i := range p.entries {
		if strings.EqualFold(p.entries[i].Key, key) {
			p.entries[i].Value = value
			return
		}
	}
	p.entries = append(p.entries, Pair{Key: key, Value: value})
}

// Add appends an entry even if the key already exists.
func (p *Pairs) Add(key, value string) {
	p.entries = append(p.entries, Pair{Key: key, Value: value})
}

// Get returns the first value stored under exactly key.
func (p Pairs) Get(key string) (string, bool) {
	for _, e := range p.entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// GetFold returns the first value whose key matches case-insensitively.
func (p Pairs) GetFold(key string) (string, bool) {
	for _, e := range p.entries {
		if strings.EqualFold(e.Key, key) {
			return e.Value, true
		}
	}
	return "", false
}

// Values returns every value whose key matches case-insensitively, in order.
func (p Pairs) Values(key string) []string {
	var out []string
	for _, e := range p.entries {
		if strings.EqualFold(e.Key, key) {
			out = append(out, e.Value)
		}
	}
	return out
}

// Len returns the number of entries.
func (p Pairs) Len() int {
	return len(p.entries)
}

// All returns a copy of the entries in insertion order.
func (p Pairs) All() []Pair {
	out := make([]Pair, len(p.entries))
	copy(out, p.entries)
	return out
}

// Keys returns the keys in insertion order.
func (p Pairs) Keys() []string {
	out := make([]string, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e.Key)
	}
	return out
}

func (p Pairs) clone() Pairs {
	return Pairs{entries: p.All()}
}
