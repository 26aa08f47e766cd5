// Package climate implements the Climate Mode Engine (spec §4.5, C8): it
// derives the zone's current climate phase (PRE_DAY, DAY, PRE_NIGHT, NIGHT)
// from the photoperiod boundaries and two pre-phase durations, and
// interpolates the active setpoint tuple linearly across phase boundaries.
// It is deliberately independent of pkg/photoperiod (spec §9 design note):
// both packages consume the same day_start/day_end, but neither calls the
// other.
//
// There is no HVAC setpoint scheduler in the retrieval pack; phase
// partitioning and linear interpolation are transcribed directly from spec
// §4.5's equations.
package climate
