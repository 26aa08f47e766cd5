// Package interlock implements the Interlock Manager (spec §4.7, C11):
// iterative mutual-exclusion resolution between device pairs, applied after
// all other arbitration.
package interlock
