// Package rules implements the Rules Engine (spec §4.1.3.2, C9): evaluates
// enabled rules against fresh sensor readings and picks the highest-priority
// match per device, ties broken by lowest rule ID.
//
// Ranking reuses pkg/priority.Highest, which picks the *lowest* Priority()
// value; rule priority is the opposite convention (highest number wins), so
// Rule.Priority is negated when wrapped as a priority.Candidate.
package rules
