package logline

import (
	"testing"
	"time"

	"github.com/raidforge/combatlog/internal/intern"
	"github.com/stretchr/testify/require"
)

func newTestParser() *Parser {
	return NewParser(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), intern.New())
}

func TestParseEmptyLineSkipped(t *testing.T) {
	p := newTestParser()
	_, ok := p.Parse("", 1)
	require.False(t, ok)
}

func TestParseHeaderLineSkipped(t *testing.T) {
	p := newTestParser()
	_, ok := p.Parse("CombatLogStart 1.0", 1)
	require.False(t, ok)
}

func TestParsePlayerEntity(t *testing.T) {
	p := newTestParser()
	ev, ok := p.Parse(`[12:00:01.500] [@Korriban Vandal#112233(9000/9000)] [] [] [] [] []`, 1)
	require.True(t, ok)
	require.Equal(t, EntityPlayer, ev.Source.Kind)
	require.Equal(t, EntityID(112233), ev.Source.EntityID)
	require.Equal(t, int64(9000), ev.Source.HPCur)
}

func TestParseMidnightWrapAdvancesDate(t *testing.T) {
	p := newTestParser()
	ev1, ok := p.Parse(`[23:59:59.000] [] [] [] [] [] []`, 1)
	require.True(t, ok)
	ev2, ok := p.Parse(`[00:00:01.000] [] [] [] [] [] []`, 2)
	require.True(t, ok)
	require.True(t, ev2.Timestamp.After(ev1.Timestamp))
	require.Equal(t, 2, ev2.Timestamp.Day())
}

func TestParseDamageDetails(t *testing.T) {
	p := newTestParser()
	ev, ok := p.Parse(`[12:00:00.000] [Bestia {123}:1] [@Han#1] [Smash {99}] [Damage {-3}: Kinetic {10}] [1500*~1200 Kinetic {10}-shield absorbed(300) <450.0>] []`, 1)
	require.True(t, ok)
	require.Equal(t, int64(1500), ev.Details.DmgAmount)
	require.Equal(t, int64(1200), ev.Details.DmgEffective)
	require.Equal(t, int64(300), ev.Details.DmgAbsorbed)
	require.True(t, ev.Details.IsCrit)
	require.Equal(t, 450.0, ev.Details.Threat)
}

func TestParseInvariantsHold(t *testing.T) {
	p := newTestParser()
	ev, ok := p.Parse(`[12:00:00.000] [] [] [] [Damage {-3}: Kinetic {10}] [500~400 Kinetic {10}] []`, 1)
	require.True(t, ok)
	require.LessOrEqual(t, ev.Details.DmgEffective, ev.Details.DmgAmount)
	require.LessOrEqual(t, ev.Source.HPCur, ev.Source.HPMax)
}
