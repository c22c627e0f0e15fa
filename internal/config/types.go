package config

import (
	"fmt"
	"io/fs"
	"sort"
)

const (
	// DefaultEnvironment is used when neither Options.Environment nor ENV is set.
	DefaultEnvironment = "dev"

	// EnvironmentVariable selects the overlay document.
	EnvironmentVariable = "ENV"

	baseConfigFile    = "config/application.yml"
	overlayConfigFile = "config/application-%s.yml"
)

// Options controls how a Resolver is loaded.
type Options struct {
	// Environment selects config/application-<env>.yml. Empty means ENV, then "dev".
	Environment string
	// Resources is the resource root holding the config/ directory.
	// Nil means the current working directory.
	Resources fs.FS
	// Overrides are process-level values that win over every other source.
	Overrides map[string]string
}

// Snapshot is an immutable flat view of one or more merged YAML documents.
type Snapshot struct {
	values map[string]string
	// nulls records keys explicitly set to null; they mask lower layers.
	nulls map[string]struct{}
}

func newSnapshot() Snapshot {
	return Snapshot{
		values: make(map[string]string),
		nulls:  make(map[string]struct{}),
	}
}

// Get returns the value stored under key.
func (s Snapshot) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// masks reports whether the snapshot explicitly nulls key.
func (s Snapshot) masks(key string) bool {
	_, ok := s.nulls[key]
	return ok
}

// Len returns the number of keys with a value.
func (s Snapshot) Len() int {
	return len(s.values)
}

// Keys returns the keys with a value, sorted.
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map returns a copy of the flattened values.
func (s Snapshot) Map() map[string]string {
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// merge returns a new snapshot with overlay applied on top of s.
func (s Snapshot) merge(overlay Snapshot) Snapshot {
	merged := newSnapshot()
	for k, v := range s.values {
		merged.values[k] = v
	}
	for k := range s.nulls {
		merged.nulls[k] = struct{}{}
	}
	for k := range overlay.nulls {
		delete(merged.values, k)
		merged.nulls[k] = struct{}{}
	}
	for k, v := range overlay.values {
		delete(merged.nulls, k)
		merged.values[k] = v
	}
	return merged
}

// ParseError reports a configuration value that exists but has the wrong shape.
type ParseError struct {
	Key   string
	Value string
	Kind  string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("config key %q: cannot parse %q as %s: %v", e.Key, e.Value, e.Kind, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
