// Package priority resolves the winner among several candidate sources for
// the same decision, by integer priority (lower wins) with a deterministic
// tie-break. It generalizes the "highest priority wins" half of
// mash-go's pkg/zone.MultiZoneValue.ResolveSetpoints, which picks the
// lowest-priority-number zone among several simultaneous setpoint writers;
// here the candidates are rules competing for the same device (spec
// §4.1.3.2), rather than zones competing for the same attribute.
package priority

// Candidate is anything that can be ranked: a priority (lower wins) and a
// tie-break id (lower wins on equal priority).
type Candidate interface {
	Priority() int
	TieBreakID() int64
}

// Highest returns the winning candidate among cs: the lowest Priority(),
// ties broken by the lowest TieBreakID(). Returns the zero value and false
// if cs is empty.
func Highest[T Candidate](cs []T) (winner T, ok bool) {
	if len(cs) == 0 {
		return winner, false
	}
	winner = cs[0]
	ok = true
	for _, c := range cs[1:] {
		if c.Priority() < winner.Priority() {
			winner = c
			continue
		}
		if c.Priority() == winner.Priority() && c.TieBreakID() < winner.TieBreakID() {
			winner = c
		}
	}
	return winner, true
}
