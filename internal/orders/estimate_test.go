package orders

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEstimateUsesLowerNeighborLevel(t *testing.T) {
	cases := []struct {
		prev, next, incoming float64
	}{
		{10, 12, 3},
		{12, 10, 3},
		{1.2344, 4, 0.5},
		{2, 3, 5},
		{0, 0, 0},
	}
	for _, c := range cases {
		got := Estimate(EstimateInput{
			Articles:  []string{"A"},
			Previous:  map[string]float64{"A": c.prev},
			Next:      map[string]float64{"A": c.next},
			MinLevels: map[string]float64{"A": 99},
			Incoming:  map[string]float64{"A": c.incoming},
		})
		want := math.Max(0, math.Round(math.Min(c.prev, c.next)*1000)/1000-c.incoming)
		require.InDelta(t, want, got["A"], 1e-9)
		require.GreaterOrEqual(t, got["A"], 0.0)
	}
}

func TestEstimateFallsBackToCatalogMinimum(t *testing.T) {
	in := EstimateInput{
		Articles:  []string{"A", "B"},
		Previous:  map[string]float64{"A": 10, "B": 8},
		Next:      map[string]float64{"A": 9},
		MinLevels: map[string]float64{"A": 1, "B": 4},
		Incoming:  map[string]float64{"B": 1.5},
	}
	got := Estimate(in)
	require.InDelta(t, 9.0, got["A"], 1e-9)
	require.InDelta(t, 2.5, got["B"], 1e-9)

	in.Next = nil
	got = Estimate(in)
	require.InDelta(t, 1.0, got["A"], 1e-9)
	require.InDelta(t, 2.5, got["B"], 1e-9)
}

func TestEstimateWithoutNeighborsIsZero(t *testing.T) {
	got := Estimate(EstimateInput{
		Articles:  []string{"A", "B"},
		MinLevels: map[string]float64{"A": 5, "B": 4},
	})
	require.Equal(t, map[string]float64{"A": 0, "B": 0}, got)
}

func TestSuggestOrder(t *testing.T) {
	require.InDelta(t, 1.6, SuggestOrder(2, 0.4), 1e-9)
	require.Zero(t, SuggestOrder(2, 3))
}

func TestStateTransitionsOnlyStepForward(t *testing.T) {
	require.True(t, CanTransition(StateInProgress, StateSent))
	require.True(t, CanTransition(StateSent, StateReceived))
	require.False(t, CanTransition(StateInProgress, StateReceived))
	require.False(t, CanTransition(StateSent, StateInProgress))
	require.False(t, CanTransition(StateReceived, StateSent))
	require.False(t, CanTransition(StateReceived, StateReceived))
	require.False(t, CanTransition("BOGUS", StateSent))
	require.Equal(t, ModeEdit, StateInProgress.Mode())
	require.Equal(t, ModeReview, StateSent.Mode())
}
