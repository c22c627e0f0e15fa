package steps

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"apiprobe/internal/protocol"
	"apiprobe/internal/scenario"
	"apiprobe/pkg/logging"
)

// Assertions holds the response assertion and capture steps of one scenario.
type Assertions struct {
	sc *scenario.Context
}

// NewAssertions binds assertion steps to a scenario context.
func NewAssertions(sc *scenario.Context) *Assertions {
	return &Assertions{sc: sc}
}

// Definitions returns the assertion phrases.
func (a *Assertions) Definitions() []Definition {
	return []Definition{
		{Phrase: "the response status code should be {int}", Category: CategoryAssert, Handler: a.StatusCode},
		{Phrase: "the response status code should be one of {string}", Category: CategoryAssert, Handler: a.StatusCodeOneOf},
		{Phrase: "the response body should contain {string}", Category: CategoryAssert, Handler: a.BodyContains},
		{Phrase: "the response body should not contain {string}", Category: CategoryAssert, Handler: a.BodyNotContains},
		{Phrase: "the response header {string} should be {string}", Category: CategoryAssert, Handler: a.HeaderEquals},
		{Phrase: "the response header {string} should contain {string}", Category: CategoryAssert, Handler: a.HeaderContains},
		{Phrase: "the response time should be less than {long} ms", Category: CategoryAssert, Handler: a.ResponseTimeBelow},
		{Phrase: "the response content type should be {string}", Category: CategoryAssert, Handler: a.ContentType},
		{Phrase: "the JSON path {string} should equal {string}", Category: CategoryAssert, Handler: a.JSONPathEquals},
		{Phrase: "the JSON path {string} should equal {int}", Category: CategoryAssert, Handler: a.JSONPathEqualsInt},
		{Phrase: "the JSON path {string} should not be empty", Category: CategoryAssert, Handler: a.JSONPathNotEmpty},
		{Phrase: "the JSON path {string} should have {int} items", Category: CategoryAssert, Handler: a.JSONPathLength},
		{Phrase: "the JSON path {string} should contain {string}", Category: CategoryAssert, Handler: a.JSONPathContains},
		{Phrase: "I store the JSON path {string} as {string}", Category: CategoryAssert, Handler: a.StoreJSONPath},
		{Phrase: "I store the response header {string} as {string}", Category: CategoryAssert, Handler: a.StoreHeader},
		{Phrase: "the response body should be valid JSON", Category: CategoryAssert, Handler: a.BodyIsJSON},
		{Phrase: "I print the response body", Category: CategoryAssert, Handler: a.PrintBody},
	}
}

func (a *Assertions) response(subject string) (*protocol.Response, error) {
	resp := a.sc.LastResponse()
	if resp == nil {
		return nil, &AssertionError{Subject: subject, Expected: "a response", Actual: noResponse}
	}
	return resp, nil
}

func (a *Assertions) StatusCode(expected int) error {
	const subject = "HTTP status code"
	resp, err := a.response(subject)
	if err != nil {
		return err
	}
	if resp.StatusCode() != expected {
		return assertionf(subject, strconv.Itoa(resp.StatusCode()), "%d", expected)
	}
	return nil
}

func (a *Assertions) StatusCodeOneOf(codes string) error {
	const subject = "HTTP status code"
	var expected []int
	for _, part := range strings.Split(codes, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return fmt.Errorf("invalid status code list %q: %w", codes, err)
		}
		expected = append(expected, n)
	}

	resp, err := a.response(subject)
	if err != nil {
		return err
	}
	for _, n := range expected {
		if resp.StatusCode() == n {
			return nil
		}
	}
	return assertionf(subject, strconv.Itoa(resp.StatusCode()), "one of [%s]", codes)
}

func (a *Assertions) BodyContains(expected string) error {
	const subject = "response body"
	resp, err := a.response(subject)
	if err != nil {
		return err
	}
	if !strings.Contains(resp.Body(), expected) {
		return assertionf(subject, quote(resp.Body()), "to contain %q", expected)
	}
	return nil
}

func (a *Assertions) BodyNotContains(unexpected string) error {
	const subject = "response body"
	resp, err := a.response(subject)
	if err != nil {
		return err
	}
	if strings.Contains(resp.Body(), unexpected) {
		return assertionf(subject, quote(resp.Body()), "not to contain %q", unexpected)
	}
	return nil
}

func (a *Assertions) header(name string) (string, error) {
	subject := fmt.Sprintf("response header %q", name)
	resp, err := a.response(subject)
	if err != nil {
		return "", err
	}
	v, ok := resp.Header(name)
	if !ok {
		return "", &AssertionError{Subject: subject, Expected: "to be present", Actual: missing}
	}
	return v, nil
}

func (a *Assertions) HeaderEquals(name, expected string) error {
	actual, err := a.header(name)
	if err != nil {
		return err
	}
	if actual != expected {
		return assertionf(fmt.Sprintf("response header %q", name), quote(actual), "%q", expected)
	}
	return nil
}

func (a *Assertions) HeaderContains(name, expected string) error {
	actual, err := a.header(name)
	if err != nil {
		return err
	}
	if !strings.Contains(actual, expected) {
		return assertionf(fmt.Sprintf("response header %q", name), quote(actual), "to contain %q", expected)
	}
	return nil
}

func (a *Assertions) ResponseTimeBelow(maxMs int64) error {
	const subject = "response time in milliseconds"
	resp, err := a.response(subject)
	if err != nil {
		return err
	}
	if resp.ResponseTimeMs() >= maxMs {
		return assertionf(subject, strconv.FormatInt(resp.ResponseTimeMs(), 10), "less than %d", maxMs)
	}
	return nil
}

func (a *Assertions) ContentType(expected string) error {
	const subject = "response content type"
	resp, err := a.response(subject)
	if err != nil {
		return err
	}
	if !strings.Contains(strings.ToLower(resp.ContentType()), strings.ToLower(expected)) {
		return assertionf(subject, quote(resp.ContentType()), "to contain %q (ignoring case)", expected)
	}
	return nil
}

// jsonPath evaluates path against the last response body. Failures to
// resolve the path are reported as assertion failures.
func (a *Assertions) jsonPath(path string) (any, error) {
	subject := fmt.Sprintf("JSON path %q", path)
	resp, err := a.response(subject)
	if err != nil {
		return nil, err
	}
	v, err := EvaluateJSONPath(resp.Body(), path)
	if err != nil {
		return nil, &AssertionError{Subject: subject, Expected: "a value", Actual: err.Error()}
	}
	return v, nil
}

func (a *Assertions) JSONPathEquals(path, expected string) error {
	v, err := a.jsonPath(path)
	if err != nil {
		return err
	}
	if actual := scenario.Stringify(v); actual != expected {
		return assertionf(fmt.Sprintf("JSON path %q", path), quote(actual), "%q", expected)
	}
	return nil
}

func (a *Assertions) JSONPathEqualsInt(path string, expected int) error {
	v, err := a.jsonPath(path)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("JSON path %q", path)
	if n, isInt := v.(int64); isInt {
		if n != int64(expected) {
			return assertionf(subject, strconv.FormatInt(n, 10), "%d", expected)
		}
		return nil
	}
	f, ok := toFloat(v)
	if !ok {
		return assertionf(subject, fmt.Sprintf("%s (%T)", scenario.Stringify(v), v), "number %d", expected)
	}
	if f != float64(expected) {
		return assertionf(subject, scenario.Stringify(v), "%d", expected)
	}
	return nil
}

func (a *Assertions) JSONPathNotEmpty(path string) error {
	v, err := a.jsonPath(path)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("JSON path %q", path)
	switch val := v.(type) {
	case nil:
		return assertionf(subject, "null", "not to be null or empty")
	case string:
		if val == "" {
			return assertionf(subject, `""`, "not to be null or empty")
		}
	case []any:
		if len(val) == 0 {
			return assertionf(subject, "[]", "not to be null or empty")
		}
	}
	return nil
}

func (a *Assertions) JSONPathLength(path string, expected int) error {
	v, err := a.jsonPath(path)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("JSON path %q array size", path)
	list, ok := v.([]any)
	if !ok {
		return assertionf(subject, fmt.Sprintf("not an array (%s)", scenario.Stringify(v)), "%d", expected)
	}
	if len(list) != expected {
		return assertionf(subject, strconv.Itoa(len(list)), "%d", expected)
	}
	return nil
}

func (a *Assertions) JSONPathContains(path, expected string) error {
	v, err := a.jsonPath(path)
	if err != nil {
		return err
	}
	if actual := scenario.Stringify(v); !strings.Contains(actual, expected) {
		return assertionf(fmt.Sprintf("JSON path %q", path), quote(actual), "to contain %q", expected)
	}
	return nil
}

func (a *Assertions) StoreJSONPath(path, key string) error {
	v, err := a.jsonPath(path)
	if err != nil {
		return err
	}
	a.sc.Set(key, v)
	logging.Info("steps", "Stored JSON path '%s' = '%s' as '%s'", path, scenario.Stringify(v), key)
	return nil
}

func (a *Assertions) StoreHeader(name, key string) error {
	v, err := a.header(name)
	if err != nil {
		return err
	}
	a.sc.Set(key, v)
	logging.Info("steps", "Stored header '%s' = '%s' as '%s'", name, v, key)
	return nil
}

func (a *Assertions) BodyIsJSON() error {
	const subject = "response body"
	resp, err := a.response(subject)
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal([]byte(resp.Body()), &v); err != nil {
		return &AssertionError{Subject: subject, Expected: "valid JSON", Actual: fmt.Sprintf("invalid JSON (%v)", err)}
	}
	return nil
}

func (a *Assertions) PrintBody() error {
	resp, err := a.response("response body")
	if err != nil {
		return err
	}
	logging.Info("steps", "Response body:\n%s", resp.Body())
	return nil
}

// quote shortens long values for assertion messages.
func quote(s string) string {
	const max = 200
	if len(s) > max {
		return strconv.Quote(s[:max]) + "..."
	}
	return strconv.Quote(s)
}
