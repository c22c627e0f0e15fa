// Package steps binds Gherkin step phrases to actions on a scenario context
// and provides the response assertions.
package steps

import "apiprobe/internal/scenario"

// Definitions returns every step definition bound to sc.
func Definitions(sc *scenario.Context) []Definition {
	var defs []Definition
	defs = append(defs, NewRestSteps(sc).Definitions()...)
	defs = append(defs, NewProtocolSteps(sc).Definitions()...)
	defs = append(defs, NewAssertions(sc).Definitions()...)
	return defs
}

// ForScenario builds the library for one scenario. Step arguments are
// expanded against the scenario bag.
func ForScenario(sc *scenario.Context) (*Library, error) {
	return NewLibrary(sc, Definitions(sc)...)
}

// Catalogue returns the definitions without a scenario, for listings.
// The handlers must not be called.
func Catalogue() ([]Definition, error) {
	lib, err := NewLibrary(nil, Definitions(nil)...)
	if err != nil {
		return nil, err
	}
	return lib.Definitions(), nil
}
