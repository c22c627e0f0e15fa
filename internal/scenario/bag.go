package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// ErrKeyNotFound is wrapped by typed accessors when the bag has no such key.
var ErrKeyNotFound = errors.New("key not found in scenario bag")

// BagTypeError reports a bag value that does not have the requested type.
type BagTypeError struct {
	Key    string
	Wanted string
	Value  any
}

func (e *BagTypeError) Error() string {
	return fmt.Sprintf("scenario value %q is %T, not %s", e.Key, e.Value, e.Wanted)
}

// Set stores a value in the scenario bag.
func (c *Context) Set(key string, value any) {
	c.bag[key] = value
}

// Get returns the value stored under key.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.bag[key]
	return v, ok
}

// GetOr returns the value stored under key, or def.
func (c *Context) GetOr(key string, def any) any {
	if v, ok := c.bag[key]; ok {
		return v
	}
	return def
}

// Len returns the number of entries in the bag.
func (c *Context) Len() int {
	return len(c.bag)
}

// GetString returns a string value.
func (c *Context) GetString(key string) (string, error) {
	v, ok := c.bag[key]
	if !ok {
		return "", fmt.Errorf("%q: %w", key, ErrKeyNotFound)
	}
	s, ok := v.(string)
	if !ok {
		return "", &BagTypeError{Key: key, Wanted: "string", Value: v}
	}
	return s, nil
}

// GetInt returns an integer value. Integer kinds and integral json.Number
// values are accepted; strings are not.
func (c *Context) GetInt(key string) (int64, error) {
	v, ok := c.bag[key]
	if !ok {
		return 0, fmt.Errorf("%q: %w", key, ErrKeyNotFound)
	}
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			return int64(n), nil
		}
	}
	return 0, &BagTypeError{Key: key, Wanted: "integer", Value: v}
}

// GetJSON returns a decoded JSON value. Strings and byte slices are parsed;
// maps and slices are returned as stored.
func (c *Context) GetJSON(key string) (any, error) {
	v, ok := c.bag[key]
	if !ok {
		return nil, fmt.Errorf("%q: %w", key, ErrKeyNotFound)
	}
	var raw []byte
	switch val := v.(type) {
	case map[string]any, []any:
		return val, nil
	case string:
		raw = []byte(val)
	case []byte:
		raw = val
	case json.RawMessage:
		raw = val
	default:
		return nil, &BagTypeError{Key: key, Wanted: "JSON", Value: v}
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &BagTypeError{Key: key, Wanted: "JSON", Value: v}
	}
	return out, nil
}

var templatePattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// Expand replaces {{key}} references with bag values. Unknown keys are left as is.
func (c *Context) Expand(s string) string {
	if len(c.bag) == 0 {
		return s
	}
	return templatePattern.ReplaceAllStringFunc(s, func(m string) string {
		key := templatePattern.FindStringSubmatch(m)[1]
		v, ok := c.bag[key]
		if !ok {
			return m
		}
		return Stringify(v)
	})
}

// Stringify renders a value the way assertions compare it: numbers in plain
// decimal form, booleans lower case, null as "null", containers as JSON.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case int64:
		return strconv.FormatInt(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case fmt.Stringer:
		return val.String()
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	default:
		return fmt.Sprint(val)
	}
}
