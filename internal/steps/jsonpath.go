package steps

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"reflect"
	"strings"

	"k8s.io/client-go/util/jsonpath"
)

// PathNotFoundError is returned when a JSON path selects nothing.
type PathNotFoundError struct {
	Path string
	Err  error
}

func (e *PathNotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("JSON path %q not found: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("JSON path %q not found", e.Path)
}

func (e *PathNotFoundError) Unwrap() error { return e.Err }

// EvaluateJSONPath runs a JSONPath query such as `$.items[0].name` against a
// JSON document. Definite paths yield a single value; paths with wildcards,
// filters, slices, unions or recursive descent yield a []any of every match.
// Integral numbers are returned as int64, others as float64.
//
// Filters compare numbers as float64, so integer literals in a filter are
// read as floats and integers beyond 2^53 lose precision there. Paths
// without a filter keep 64-bit integers exact.
func EvaluateJSONPath(document, path string) (any, error) {
	expr := strings.TrimSpace(path)
	if !strings.HasPrefix(expr, "{") {
		if !strings.HasPrefix(expr, "$") {
			expr = "$." + strings.TrimPrefix(expr, ".")
		}
		expr = "{" + expr + "}"
	}

	parsed, err := jsonpath.Parse("step", expr)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON path %q: %w", path, err)
	}
	var shape pathShape
	shape.inspect(parsed.Root.Nodes)

	data, err := decodeDocument(document, shape.filtered)
	if err != nil {
		return nil, err
	}
	if shape.filtered {
		expr = floatLiterals(expr)
	}

	jp := jsonpath.New("step").AllowMissingKeys(shape.indefinite)
	if err := jp.Parse(expr); err != nil {
		return nil, fmt.Errorf("invalid JSON path %q: %w", path, err)
	}

	results, err := jp.FindResults(data)
	if err != nil {
		return nil, &PathNotFoundError{Path: path, Err: err}
	}

	var values []any
	for _, group := range results {
		for _, v := range group {
			values = append(values, normalize(unwrap(v)))
		}
	}

	if shape.indefinite {
		if values == nil {
			values = []any{}
		}
		return values, nil
	}
	if len(values) == 0 {
		return nil, &PathNotFoundError{Path: path}
	}
	return values[0], nil
}

// pathShape records what the parsed path can select.
type pathShape struct {
	indefinite bool
	filtered   bool
}

func (s *pathShape) inspect(nodes []jsonpath.Node) {
	for _, n := range nodes {
		switch node := n.(type) {
		case *jsonpath.ListNode:
			s.inspect(node.Nodes)
		case *jsonpath.FilterNode:
			s.indefinite = true
			s.filtered = true
		case *jsonpath.UnionNode:
			s.indefinite = true
			for _, branch := range node.Nodes {
				s.inspect(branch.Nodes)
			}
		case *jsonpath.WildcardNode, *jsonpath.RecursiveNode:
			s.indefinite = true
		case *jsonpath.ArrayNode:
			// A plain index derives its end from the start; anything else is a slice.
			if !node.Params[1].Derived || node.Params[2].Known {
				s.indefinite = true
			}
		}
	}
}

// decodeDocument parses document keeping number precision. With floats set
// every number becomes float64, otherwise integers become int64.
func decodeDocument(document string, floats bool) (any, error) {
	dec := json.NewDecoder(strings.NewReader(document))
	dec.UseNumber()

	var data any
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("response body is not valid JSON: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("response body is not valid JSON: unexpected data after the top-level value")
	}
	return convertNumbers(data, floats), nil
}

func convertNumbers(v any, floats bool) any {
	switch val := v.(type) {
	case json.Number:
		if !floats {
			if i, err := val.Int64(); err == nil {
				return i
			}
		}
		f, err := val.Float64()
		if err != nil {
			return val.String()
		}
		return f
	case []any:
		for i, item := range val {
			val[i] = convertNumbers(item, floats)
		}
		return val
	case map[string]any:
		for k, item := range val {
			val[k] = convertNumbers(item, floats)
		}
		return val
	default:
		return v
	}
}

// floatLiterals rewrites the integer operands of filter comparisons as
// floats: `[?(@.price < 10)]` becomes `[?(@.price < 10.0)]`. Quoted text,
// array indices and literals that already have a fraction are left alone.
func floatLiterals(expr string) string {
	var (
		b     strings.Builder
		quote byte
		prev  byte
	)
	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case isDigit(c) && strings.IndexByte("<>=!(", prev) >= 0:
			j := i
			for j < len(expr) && isDigit(expr[j]) {
				j++
			}
			b.WriteString(expr[i:j])
			if j == len(expr) || (expr[j] != '.' && !isWordByte(expr[j])) {
				b.WriteString(".0")
			}
			prev = expr[j-1]
			i = j - 1
			continue
		}
		b.WriteByte(c)
		// Signs and blanks do not separate an operator from its operand.
		if c != ' ' && c != '-' && c != '+' {
			prev = c
		}
	}
	return b.String()
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isWordByte(c byte) bool {
	return isDigit(c) || c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func unwrap(v reflect.Value) any {
	for v.IsValid() && (v.Kind() == reflect.Interface || v.Kind() == reflect.Ptr) {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return nil
	}
	return v.Interface()
}

// normalize turns integral float64 values into int64, recursively.
func normalize(v any) any {
	switch val := v.(type) {
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return int64(val)
		}
		return val
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	default:
		return v
	}
}

// toFloat converts JSON numbers to float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
