package steps

import "fmt"

// AssertionError reports a check that did not hold.
type AssertionError struct {
	Subject  string
	Expected string
	Actual   string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %s but was %s", e.Subject, e.Expected, e.Actual)
}

const (
	noResponse = "<no response>"
	missing    = "<missing>"
)

func assertionf(subject, actual, expectedFormat string, args ...interface{}) *AssertionError {
	return &AssertionError{Subject: subject, Expected: fmt.Sprintf(expectedFormat, args...), Actual: actual}
}
