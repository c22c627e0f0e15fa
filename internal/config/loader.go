package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"apiprobe/pkg/logging"

	"gopkg.in/yaml.v3"
)

// For mocking in tests
var osLookupEnv = os.LookupEnv

// Load reads the base document and the environment overlay and returns a Resolver.
func Load(opts Options) (*Resolver, error) {
	env := opts.Environment
	if env == "" {
		if v, ok := osLookupEnv(EnvironmentVariable); ok && v != "" {
			env = v
		} else {
			env = DefaultEnvironment
		}
	}

	resources := opts.Resources
	if resources == nil {
		resources = os.DirFS(".")
	}

	// 1. Start with the base configuration
	base, err := loadDocument(resources, baseConfigFile)
	if err != nil {
		return nil, err
	}

	// 2. Overlay the environment-specific configuration
	overlayPath := fmt.Sprintf(overlayConfigFile, env)
	overlay, err := loadDocument(resources, overlayPath)
	if err != nil {
		return nil, err
	}

	overrides := make(map[string]string, len(opts.Overrides))
	for k, v := range opts.Overrides {
		overrides[k] = v
	}

	r := &Resolver{
		env:       env,
		base:      base,
		overlay:   overlay,
		merged:    base.merge(overlay),
		overrides: overrides,
	}
	logging.Info("config", "Configuration loaded for environment '%s' (%d keys)", env, r.merged.Len())
	return r, nil
}

// loadDocument reads and flattens one YAML document. A missing file yields an empty snapshot.
func loadDocument(resources fs.FS, path string) (Snapshot, error) {
	snap := newSnapshot()

	data, err := fs.ReadFile(resources, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logging.Debug("config", "Config file not found: %s", path)
			return snap, nil
		}
		return snap, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return snap, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	flatten("", raw, snap)
	logging.Debug("config", "Loaded %d properties from %s", len(snap.values), path)
	return snap, nil
}

// flatten turns {a: {b: {c: v}}} into a.b.c -> v.
func flatten(prefix string, m map[string]interface{}, into Snapshot) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		flattenValue(key, v, into)
	}
}

func flattenValue(key string, v interface{}, into Snapshot) {
	switch val := v.(type) {
	case map[string]interface{}:
		flatten(key, val, into)
	case map[interface{}]interface{}:
		converted := make(map[string]interface{}, len(val))
		for mk, mv := range val {
			converted[fmt.Sprint(mk)] = mv
		}
		flatten(key, converted, into)
	case nil:
		into.nulls[key] = struct{}{}
	default:
		into.values[key] = stringify(val)
	}
}

// stringify renders a YAML scalar or list the way it should read back from a lookup.
func stringify(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case []interface{}:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, stringify(item))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprint(val)
	}
}
