package config

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Resolver answers typed lookups against overrides, environment variables and YAML layers.
// It is safe for concurrent use; nothing in it changes after Load.
type Resolver struct {
	env       string
	base      Snapshot
	overlay   Snapshot
	merged    Snapshot
	overrides map[string]string
}

// Environment returns the environment name the overlay was loaded for.
func (r *Resolver) Environment() string {
	return r.env
}

// Snapshot returns the merged YAML layers (overlay over base), without
// overrides or environment variables applied.
func (r *Resolver) Snapshot() Snapshot {
	return r.merged
}

// EnvKey converts a dotted key into its environment variable name.
func EnvKey(key string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(strings.ToUpper(key))
}

// Lookup resolves key through the precedence chain.
func (r *Resolver) Lookup(key string) (string, bool) {
	if v, ok := r.overrides[key]; ok {
		return v, true
	}
	if v, ok := osLookupEnv(EnvKey(key)); ok {
		return v, true
	}
	if v, ok := r.overlay.Get(key); ok {
		return v, true
	}
	if r.overlay.masks(key) {
		return "", false
	}
	if v, ok := r.base.Get(key); ok {
		return v, true
	}
	return "", false
}

// Source reports which layer currently supplies key.
func (r *Resolver) Source(key string) string {
	if _, ok := r.overrides[key]; ok {
		return "override"
	}
	if _, ok := osLookupEnv(EnvKey(key)); ok {
		return "env:" + EnvKey(key)
	}
	if _, ok := r.overlay.Get(key); ok {
		return "application-" + r.env + ".yml"
	}
	if r.overlay.masks(key) {
		return ""
	}
	if _, ok := r.base.Get(key); ok {
		return "application.yml"
	}
	return ""
}

// Keys returns every key known from overrides and YAML layers, sorted.
// Keys that only exist as environment variables cannot be enumerated.
func (r *Resolver) Keys() []string {
	seen := make(map[string]struct{})
	for _, k := range r.merged.Keys() {
		seen[k] = struct{}{}
	}
	for k := range r.overrides {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns the value of key or def when it is not set.
func (r *Resolver) String(key, def string) string {
	if v, ok := r.Lookup(key); ok {
		return v
	}
	return def
}

// Int returns key parsed as an int.
func (r *Resolver) Int(key string, def int) (int, error) {
	v, ok := r.Lookup(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def, &ParseError{Key: key, Value: v, Kind: "int", Err: err}
	}
	return n, nil
}

// Int64 returns key parsed as a 64-bit integer.
func (r *Resolver) Int64(key string, def int64) (int64, error) {
	v, ok := r.Lookup(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return def, &ParseError{Key: key, Value: v, Kind: "long", Err: err}
	}
	return n, nil
}

// Float64 returns key parsed as a float.
func (r *Resolver) Float64(key string, def float64) (float64, error) {
	v, ok := r.Lookup(key)
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def, &ParseError{Key: key, Value: v, Kind: "float", Err: err}
	}
	return f, nil
}

// Bool returns key parsed with strconv.ParseBool.
func (r *Resolver) Bool(key string, def bool) (bool, error) {
	v, ok := r.Lookup(key)
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def, &ParseError{Key: key, Value: v, Kind: "boolean", Err: err}
	}
	return b, nil
}

// Duration accepts Go duration syntax ("1500ms", "2s") or a plain number of milliseconds.
func (r *Resolver) Duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := r.Lookup(key)
	if !ok {
		return def, nil
	}
	s := strings.TrimSpace(v)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def, &ParseError{Key: key, Value: v, Kind: "duration", Err: err}
	}
	return d, nil
}
