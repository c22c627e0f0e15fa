// Package engine runs Gherkin feature files against the protocol clients.
//
// An Engine owns the state shared by every scenario of a run: the protocol
// registry, the response-time statistics and the Prometheus collectors.
// Each scenario gets a fresh scenario.Context and step library, built in
// the godog scenario initializer, so scenarios never see each other's
// requests, responses or stored values.
//
// Results flow through scenario.Event values. The engine fans them out to
// a result collector, the metrics sink and the configured reporters, and
// returns a SuiteResult with the exit code of the run:
//
//	0  every scenario passed
//	1  at least one scenario failed
//	2  the engine could not run the suite
package engine
