package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition_HappyPath(t *testing.T) {
	chain := []RunState{
		StateInitialized,
		StateLibraryBuilt,
		StateSparseFitted,
		StateSymbolicFitted,
		StateRanked,
		StateUncertaintyComputed,
		StateDone,
	}
	for i := 0; i < len(chain)-1; i++ {
		assert.True(t, CanTransition(chain[i], chain[i+1]),
			"%s -> %s should be allowed", chain[i], chain[i+1])
	}
}

func TestCanTransition_OptionalSteps(t *testing.T) {
	// Symbolic step skipped.
	assert.True(t, CanTransition(StateSparseFitted, StateRanked))
	// Uncertainty step skipped.
	assert.True(t, CanTransition(StateRanked, StateDone))
}

func TestCanTransition_NoSkippingForward(t *testing.T) {
	assert.False(t, CanTransition(StateInitialized, StateSparseFitted))
	assert.False(t, CanTransition(StateLibraryBuilt, StateRanked))
	assert.False(t, CanTransition(StateInitialized, StateDone))
}

func TestCanTransition_NoGoingBack(t *testing.T) {
	assert.False(t, CanTransition(StateRanked, StateSparseFitted))
	assert.False(t, CanTransition(StateDone, StateInitialized))
}

func TestCanTransition_AbortedFromAnywhere(t *testing.T) {
	for _, s := range []RunState{
		StateInitialized, StateLibraryBuilt, StateSparseFitted,
		StateSymbolicFitted, StateRanked, StateUncertaintyComputed,
	} {
		assert.True(t, CanTransition(s, StateAborted), "%s -> aborted", s)
	}
}

func TestCanTransition_TerminalStatesHaveNoExits(t *testing.T) {
	for _, from := range []RunState{StateDone, StateAborted} {
		for to := StateInitialized; to <= StateAborted; to++ {
			assert.False(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestRunState_Terminal(t *testing.T) {
	assert.True(t, StateDone.Terminal())
	assert.True(t, StateAborted.Terminal())
	assert.False(t, StateRanked.Terminal())
	assert.False(t, StateInitialized.Terminal())
}

func TestRunState_StringRoundTrip(t *testing.T) {
	for s := StateInitialized; s <= StateAborted; s++ {
		assert.Equal(t, s, ParseRunState(s.String()))
	}
	assert.Equal(t, StateAborted, ParseRunState("no such state"))
	assert.Equal(t, "unknown", RunState(99).String())
}
