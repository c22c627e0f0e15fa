package steps

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/cucumber/godog"
)

// Category groups step definitions for listings.
type Category string

const (
	CategorySetup   Category = "setup"
	CategoryExecute Category = "execute"
	CategoryAssert  Category = "assert"
)

// Definition binds a phrase to a handler. The handler is a function that
// may take a leading context.Context, then one argument per placeholder, then
// an optional trailing *godog.DocString or *godog.Table, and returns error.
type Definition struct {
	Phrase   string
	Category Category
	Handler  interface{}
}

// Expander rewrites string arguments before a handler sees them.
// *scenario.Context satisfies it.
type Expander interface {
	Expand(string) string
}

var (
	contextType   = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType     = reflect.TypeOf((*error)(nil)).Elem()
	docStringType = reflect.TypeOf(&godog.DocString{})
	tableType     = reflect.TypeOf(&godog.Table{})
)

type binding struct {
	def      Definition
	expr     *Expression
	fn       reflect.Value
	hasCtx   bool
	trailing reflect.Type
}

// Library is an ordered set of validated step definitions.
type Library struct {
	bindings []binding
	expander Expander
}

// NewLibrary compiles and validates defs. expander may be nil.
func NewLibrary(expander Expander, defs ...Definition) (*Library, error) {
	l := &Library{expander: expander}
	for _, def := range defs {
		b, err := bind(def)
		if err != nil {
			return nil, err
		}
		l.bindings = append(l.bindings, b)
	}
	return l, nil
}

func bind(def Definition) (binding, error) {
	expr, err := CompileExpression(def.Phrase)
	if err != nil {
		return binding{}, err
	}
	b := binding{def: def, expr: expr, fn: reflect.ValueOf(def.Handler)}
	if err := b.validate(); err != nil {
		return binding{}, fmt.Errorf("step %q: %w", def.Phrase, err)
	}
	return b, nil
}

// validate checks the handler signature against the phrase placeholders.
func (b *binding) validate() error {
	if !b.fn.IsValid() || b.fn.Kind() != reflect.Func {
		return fmt.Errorf("handler must be a function, got %T", b.def.Handler)
	}
	t := b.fn.Type()
	if t.NumOut() != 1 || t.Out(0) != errorType {
		return fmt.Errorf("handler must return exactly one error")
	}

	in := make([]reflect.Type, t.NumIn())
	for i := range in {
		in[i] = t.In(i)
	}
	if len(in) > 0 && in[0] == contextType {
		b.hasCtx = true
		in = in[1:]
	}

	params := b.expr.ParameterTypes()
	switch {
	case len(in) == len(params):
	case len(in) == len(params)+1 && (in[len(in)-1] == docStringType || in[len(in)-1] == tableType):
		b.trailing = in[len(in)-1]
		in = in[:len(in)-1]
	default:
		return fmt.Errorf("handler takes %d arguments, phrase has %d placeholders", len(in), len(params))
	}

	for i, p := range params {
		if in[i] != p {
			return fmt.Errorf("argument %d is %s, placeholder needs %s", i+1, in[i], p)
		}
	}
	return nil
}

// Definitions returns the definitions in registration order.
func (l *Library) Definitions() []Definition {
	out := make([]Definition, len(l.bindings))
	for i, b := range l.bindings {
		out[i] = b.def
	}
	return out
}

// Match finds the single definition matching text.
func (l *Library) Match(text string) (Definition, []string, error) {
	var (
		found   *binding
		args    []string
		matches []string
	)
	for i := range l.bindings {
		if a, ok := l.bindings[i].expr.Match(text); ok {
			if found == nil {
				found = &l.bindings[i]
				args = a
			}
			matches = append(matches, l.bindings[i].def.Phrase)
		}
	}
	switch len(matches) {
	case 0:
		return Definition{}, nil, &UndefinedStepError{Text: text}
	case 1:
		return found.def, args, nil
	default:
		return Definition{}, nil, fmt.Errorf("step %q is ambiguous: %s", text, strings.Join(matches, " | "))
	}
}

// UndefinedStepError is returned when no definition matches a step.
type UndefinedStepError struct {
	Text string
}

func (e *UndefinedStepError) Error() string {
	return fmt.Sprintf("undefined step: %q", e.Text)
}

// Execute runs the definition matching text. arg is the optional trailing
// *godog.DocString or *godog.Table.
func (l *Library) Execute(ctx context.Context, text string, arg interface{}) error {
	def, captured, err := l.Match(text)
	if err != nil {
		return err
	}
	var b *binding
	for i := range l.bindings {
		if l.bindings[i].def.Phrase == def.Phrase {
			b = &l.bindings[i]
			break
		}
	}

	in := make([]reflect.Value, 0, len(captured)+2)
	if b.hasCtx {
		in = append(in, reflect.ValueOf(ctx))
	}
	for i, t := range b.expr.ParameterTypes() {
		v, err := convert(captured[i], t)
		if err != nil {
			return fmt.Errorf("step %q: %w", text, err)
		}
		in = append(in, v)
	}
	if b.trailing != nil {
		if arg == nil || reflect.TypeOf(arg) != b.trailing {
			return fmt.Errorf("step %q needs a %s argument", text, b.trailing)
		}
		in = append(in, reflect.ValueOf(arg))
	}

	return l.call(b.fn, in)
}

func convert(s string, t reflect.Type) (reflect.Value, error) {
	switch t.Kind() {
	case reflect.String:
		return reflect.ValueOf(s), nil
	case reflect.Int:
		n, err := strconv.Atoi(s)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("cannot convert %q to int: %w", s, err)
		}
		return reflect.ValueOf(n), nil
	case reflect.Int64:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("cannot convert %q to int64: %w", s, err)
		}
		return reflect.ValueOf(n), nil
	case reflect.Float64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("cannot convert %q to float64: %w", s, err)
		}
		return reflect.ValueOf(f), nil
	}
	return reflect.Value{}, fmt.Errorf("unsupported parameter type %s", t)
}

// call expands string and doc-string arguments, then invokes fn.
// Table cells are left to the handler.
func (l *Library) call(fn reflect.Value, in []reflect.Value) error {
	if l.expander != nil {
		for i, v := range in {
			switch v.Type() {
			case reflect.TypeOf(""):
				in[i] = reflect.ValueOf(l.expander.Expand(v.String()))
			case docStringType:
				if doc := v.Interface().(*godog.DocString); doc != nil {
					expanded := *doc
					expanded.Content = l.expander.Expand(doc.Content)
					in[i] = reflect.ValueOf(&expanded)
				}
			}
		}
	}

	out := fn.Call(in)
	if err, _ := out[0].Interface().(error); err != nil {
		return err
	}
	return nil
}

// Register binds every definition to a godog scenario. godog converts the
// captured arguments; the registered function expands them before calling
// the handler.
func (l *Library) Register(sc *godog.ScenarioContext) {
	for i := range l.bindings {
		b := l.bindings[i]
		wrapper := reflect.MakeFunc(b.fn.Type(), func(in []reflect.Value) []reflect.Value {
			err := l.call(b.fn, in)
			if err == nil {
				return []reflect.Value{reflect.Zero(errorType)}
			}
			return []reflect.Value{reflect.ValueOf(&err).Elem()}
		})
		sc.Step(b.expr.Regexp, wrapper.Interface())
	}
}
