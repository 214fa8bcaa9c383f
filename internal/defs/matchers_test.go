package defs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEntityMatcherPriority(t *testing.T) {
	entities := []EntityDefinition{
		{Name: "huntmaster", IDs: []int64{111, 222}},
	}

	byRoster := MatchByEntity("huntmaster")
	require.True(t, byRoster.Matches(entities, 111, "Huntmaster Avantel"))
	require.False(t, byRoster.Matches(entities, 999, "Someone Else"))

	byID := MatchByNPCID(333)
	require.True(t, byID.Matches(entities, 333, "Anything"))
	require.False(t, byID.Matches(entities, 444, "Anything"))

	byName := MatchByName("Bestia")
	require.True(t, byName.Matches(entities, 0, "bestia"))
}

func TestEntityMatcherEmptyMatchesNothing(t *testing.T) {
	var m EntityMatcher
	require.True(t, m.IsEmpty())
	require.False(t, m.Matches(nil, 123, "anything"))
}

func TestEntityMatcherUnknownRosterAliasFails(t *testing.T) {
	m := MatchByEntity("does-not-exist")
	require.False(t, m.Matches([]EntityDefinition{{Name: "other", IDs: []int64{1}}}, 1, "x"))
}

func TestAbilitySelectorCaseInsensitiveName(t *testing.T) {
	sel := AbilityByName("Smash")
	require.True(t, sel.Matches(0, "smash"))
	require.False(t, sel.Matches(0, "backhand"))
}

func TestMatchesAnyEmptyListIsAny(t *testing.T) {
	require.True(t, MatchesAnyAbility(nil, 42, "whatever"))
	require.True(t, MatchesAnyEffect(nil, 42, "whatever"))
}
