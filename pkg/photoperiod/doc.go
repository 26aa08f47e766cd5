// Package photoperiod implements the Photoperiod Engine (spec §4.4, C7): it
// computes DAY/NIGHT state and ramp-up/ramp-down light intensity for a zone
// from a configured day_start/day_end/ramp schedule, independent of the
// climate mode engine (spec §9 design note: the light overlay must not
// alter climate phase computation).
//
// There is no lighting/dimmer controller in the retrieval pack; the
// linear-interpolation shape here is transcribed directly from spec §4.4's
// equations, with the overlap-reshape rule (spec B3) implemented as a
// config-normalization step run once at load, mirroring the teacher's habit
// (pkg/usecase/resolve.go) of normalizing config at the boundary rather
// than at each evaluation.
package photoperiod
