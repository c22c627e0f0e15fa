package steps

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/patrickmn/go-cache"
)

// parameterType describes one {placeholder} of a step phrase.
type parameterType struct {
	name    string
	pattern string
	goType  reflect.Type
}

var parameterTypes = map[string]parameterType{
	"string": {name: "string", pattern: `"([^"]*)"`, goType: reflect.TypeOf("")},
	"word":   {name: "word", pattern: `([^\s]+)`, goType: reflect.TypeOf("")},
	"int":    {name: "int", pattern: `(-?\d+)`, goType: reflect.TypeOf(int(0))},
	"long":   {name: "long", pattern: `(-?\d+)`, goType: reflect.TypeOf(int64(0))},
	"float":  {name: "float", pattern: `(-?\d*\.?\d+)`, goType: reflect.TypeOf(float64(0))},
}

var placeholder = regexp.MustCompile(`\{([a-z]+)\}`)

// Expression is a compiled step phrase.
type Expression struct {
	Source string
	Regexp *regexp.Regexp
	params []parameterType
}

// Compiled phrases never change, so they are kept for the life of the process.
var expressionCache = cache.New(cache.NoExpiration, 0)

// CompileExpression turns a phrase such as `I set header {string} to {string}`
// into an anchored regular expression with one group per placeholder.
func CompileExpression(source string) (*Expression, error) {
	if cached, ok := expressionCache.Get(source); ok {
		return cached.(*Expression), nil
	}

	var (
		b      strings.Builder
		params []parameterType
		last   int
	)
	b.WriteByte('^')
	for _, loc := range placeholder.FindAllStringSubmatchIndex(source, -1) {
		name := source[loc[2]:loc[3]]
		pt, ok := parameterTypes[name]
		if !ok {
			return nil, fmt.Errorf("step phrase %q: unknown parameter type {%s}", source, name)
		}
		b.WriteString(regexp.QuoteMeta(source[last:loc[0]]))
		b.WriteString(pt.pattern)
		params = append(params, pt)
		last = loc[1]
	}
	b.WriteString(regexp.QuoteMeta(source[last:]))
	b.WriteByte('$')

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("step phrase %q: %w", source, err)
	}

	expr := &Expression{Source: source, Regexp: re, params: params}
	expressionCache.Set(source, expr, cache.NoExpiration)
	return expr, nil
}

// Match returns the captured arguments when text matches the expression.
func (e *Expression) Match(text string) ([]string, bool) {
	m := e.Regexp.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return nil, false
	}
	return m[1:], true
}

// ParameterTypes returns the Go types of the placeholders in order.
func (e *Expression) ParameterTypes() []reflect.Type {
	out := make([]reflect.Type, len(e.params))
	for i, p := range e.params {
		out[i] = p.goType
	}
	return out
}
