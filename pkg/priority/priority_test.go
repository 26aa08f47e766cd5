package priority_test

import (
	"testing"

	"github.com/Phoenix5595/cea-automation-core/pkg/priority"
	"github.com/stretchr/testify/require"
)

type fakeCandidate struct {
	id  int64
	pri int
}

func (c fakeCandidate) Priority() int     { return c.pri }
func (c fakeCandidate) TieBreakID() int64 { return c.id }

func TestHighest_PicksLowestPriorityNumber(t *testing.T) {
	cs := []fakeCandidate{{id: 3, pri: 50}, {id: 1, pri: 10}, {id: 2, pri: 20}}
	winner, ok := priority.Highest(cs)
	require.True(t, ok)
	require.Equal(t, int64(1), winner.id)
}

func TestHighest_TieBreaksOnLowestID(t *testing.T) {
	cs := []fakeCandidate{{id: 5, pri: 10}, {id: 2, pri: 10}, {id: 9, pri: 10}}
	winner, ok := priority.Highest(cs)
	require.True(t, ok)
	require.Equal(t, int64(2), winner.id)
}

func TestHighest_Empty(t *testing.T) {
	_, ok := priority.Highest([]fakeCandidate{})
	require.False(t, ok)
}
