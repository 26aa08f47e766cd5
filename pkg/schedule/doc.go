// Package schedule implements the Schedule Engine (spec §4.1.3.3, C10):
// evaluates the time-of-day/day-of-week windows configured for a device and
// decides whether any is currently active.
package schedule
