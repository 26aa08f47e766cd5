package interlock

import (
	"time"

	"github.com/Phoenix5595/cea-automation-core/pkg/failsafe"
	"github.com/Phoenix5595/cea-automation-core/pkg/model"
)

// MaxPasses bounds the iterative cascade resolution (spec §4.7).
const MaxPasses = 8

// Rule is an explicit ordered mutual-exclusion pair within a zone: if both
// Winner and Loser candidates are ON in the same tick, Loser is forced OFF
// (spec §4.7, supplemented as explicit config data per SPEC_FULL.md §12
// rather than an implicit device-type default).
type Rule struct {
	Zone   model.ZoneKey
	Winner string // device name
	Loser  string // device name
}

// Manager resolves interlock conflicts among candidate commands.
type Manager struct {
	failsafe  *failsafe.Manager
	maxPasses int
}

// NewManager constructs an Interlock Manager reporting pass counts to fsm,
// capped at the spec default of MaxPasses.
func NewManager(fsm *failsafe.Manager) *Manager {
	return &Manager{failsafe: fsm, maxPasses: MaxPasses}
}

// NewManagerWithCap is NewManager with an overridden pass cap (spec §6
// control.interlock_max_passes). Also used by tests to exercise the
// non-convergence freeze path without an 8-deep rule chain.
func NewManagerWithCap(fsm *failsafe.Manager, cap int) *Manager {
	return &Manager{failsafe: fsm, maxPasses: cap}
}

// Resolve applies rules to candidates (keyed by device name, within one
// zone) iteratively until stable or MaxPasses is reached. current supplies
// each device's pre-tick state, used to freeze affected devices if the
// cascade does not converge. Modified candidates have Reason set to
// ReasonInterlock.
func (m *Manager) Resolve(rules []Rule, zone model.ZoneKey, candidates map[string]model.Command, current map[string]model.DeviceState, now time.Time) map[string]model.Command {
	var zoneRules []Rule
	for _, r := range rules {
		if r.Zone == zone {
			zoneRules = append(zoneRules, r)
		}
	}
	if len(zoneRules) == 0 {
		return candidates
	}

	// Each pass evaluates rules against the PREVIOUS pass's snapshot, not
	// values just written in the same pass: cascades are caught by running
	// another pass, matching the spec's "pass 2 re-evaluates to catch
	// cascades" framing rather than resolving a whole chain in one sweep.
	passes := 0
	converged := false
	for passes < m.maxPasses {
		passes++
		snapshot := make(map[string]model.Command, len(candidates))
		for k, v := range candidates {
			snapshot[k] = v
		}

		changed := false
		for _, r := range zoneRules {
			winner, hasWinner := snapshot[r.Winner]
			loser, hasLoser := snapshot[r.Loser]
			if !hasWinner || !hasLoser {
				continue
			}
			if winner.State && loser.State {
				loser.State = false
				loser.DutyCyclePct = nil
				loser.Reason = model.ReasonInterlock
				candidates[r.Loser] = loser
				changed = true
			}
		}
		if !changed {
			converged = true
			break
		}
	}

	if m.failsafe != nil {
		reported := passes
		if !converged {
			// Still cascading after the pass cap: report one beyond the
			// spec's 8-pass threshold so the Alarm Manager's alert fires
			// regardless of what this Manager's own cap happens to be.
			reported = MaxPasses + 1
		}
		m.failsafe.ReportInterlockPasses(zone, reported, now)
	}

	if !converged {
		affected := make(map[string]struct{})
		for _, r := range zoneRules {
			affected[r.Winner] = struct{}{}
			affected[r.Loser] = struct{}{}
		}
		for name := range affected {
			cur, ok := current[name]
			if !ok {
				continue
			}
			candidates[name] = model.Command{
				Device:       cur.Key,
				State:        cur.State,
				IntensityPct: floatPtrOrNil(cur.IntensityPct, cur.State),
				DutyCyclePct: cur.DutyCyclePct,
				Reason:       model.ReasonInterlock,
			}
		}
	}

	return candidates
}

func floatPtrOrNil(v float64, state bool) *float64 {
	if !state {
		return nil
	}
	return &v
}
