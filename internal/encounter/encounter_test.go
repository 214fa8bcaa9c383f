package encounter

import (
	"testing"
	"time"

	"github.com/raidforge/combatlog/internal/intern"
	"github.com/raidforge/combatlog/internal/logline"
	"github.com/stretchr/testify/require"
)

func newTestEvent(table *intern.Table, effectID logline.EffectID, source, target logline.EntityID, amount, effective, absorbed int64, at time.Time) *logline.CombatEvent {
	return &logline.CombatEvent{
		Timestamp: at,
		Source:    logline.Entity{Kind: logline.EntityPlayer, EntityID: source},
		Target:    logline.Entity{Kind: logline.EntityNPC, EntityID: target},
		Effect:    logline.Effect{EffectID: effectID},
		Details: logline.Details{
			DmgAmount:    amount,
			DmgEffective: effective,
			DmgAbsorbed:  absorbed,
			AvoidType:    table.Intern(""),
		},
	}
}

func TestAccumulateDataDamage(t *testing.T) {
	table := intern.New()
	e := New(1)
	e.Table = table

	ev := newTestEvent(table, logline.EffectIDDamage, 10, 20, 500, 500, 0, time.Now())
	e.AccumulateData(ev)

	require.EqualValues(t, 500, e.Accumulators[10].DamageDealt)
	require.EqualValues(t, 500, e.Accumulators[20].DamageReceived)
}

func TestShieldAttributionCreditsEarliestLiveShield(t *testing.T) {
	table := intern.New()
	e := New(1)
	e.Table = table
	SetShieldEffectIDs([]logline.EffectID{99})

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	apply := &logline.CombatEvent{
		Timestamp: base,
		Source:    logline.Entity{Kind: logline.EntityPlayer, EntityID: 1},
		Target:    logline.Entity{Kind: logline.EntityPlayer, EntityID: 2},
		Effect:    logline.Effect{EffectID: 99, TypeID: logline.EffectTypeApplyEffect},
	}
	e.ApplyEffect(apply)

	dmg := newTestEvent(table, logline.EffectIDDamage, 3, 2, 1000, 900, 200, base.Add(1*time.Second))
	e.AccumulateData(dmg)

	require.EqualValues(t, 200, e.Accumulators[1].ShieldingGiven)
}

func TestShieldAttributionRespectsGraceWindowAfterRemoval(t *testing.T) {
	table := intern.New()
	e := New(1)
	e.Table = table
	SetShieldEffectIDs([]logline.EffectID{99})

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	apply := &logline.CombatEvent{
		Timestamp: base,
		Source:    logline.Entity{Kind: logline.EntityPlayer, EntityID: 1},
		Target:    logline.Entity{Kind: logline.EntityPlayer, EntityID: 2},
		Effect:    logline.Effect{EffectID: 99, TypeID: logline.EffectTypeApplyEffect},
	}
	e.ApplyEffect(apply)

	remove := &logline.CombatEvent{
		Timestamp: base.Add(2 * time.Second),
		Source:    logline.Entity{Kind: logline.EntityPlayer, EntityID: 1},
		Target:    logline.Entity{Kind: logline.EntityPlayer, EntityID: 2},
		Effect:    logline.Effect{EffectID: 99, TypeID: logline.EffectTypeRemoveEffect},
	}
	e.RemoveEffect(remove)

	// well within the 750ms grace window after removal
	dmg := newTestEvent(table, logline.EffectIDDamage, 3, 2, 1000, 900, 200, base.Add(2200*time.Millisecond))
	e.AccumulateData(dmg)
	require.EqualValues(t, 200, e.Accumulators[1].ShieldingGiven)
}

func TestCalculateEntityMetricsSortedByDPS(t *testing.T) {
	table := intern.New()
	e := New(1)
	e.Table = table
	e.EnterTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	slow := newTestEvent(table, logline.EffectIDDamage, 1, 100, 100, 100, 0, e.EnterTime)
	fast := newTestEvent(table, logline.EffectIDDamage, 2, 100, 1000, 1000, 0, e.EnterTime)
	e.AccumulateData(slow)
	e.AccumulateData(fast)

	metrics := e.CalculateEntityMetrics(e.EnterTime.Add(10 * time.Second))
	require.True(t, len(metrics) >= 2)
	require.GreaterOrEqual(t, metrics[0].DPS, metrics[1].DPS)
}

func TestCheckAllPlayersDeadEmptyRosterIsFalse(t *testing.T) {
	e := New(1)
	e.CheckAllPlayersDead()
	require.False(t, e.AllPlayersDead)
}

func TestDurationSecondsHandlesMidnightWrap(t *testing.T) {
	e := New(1)
	e.EnterTime = time.Date(2026, 1, 1, 23, 59, 0, 0, time.UTC)
	now := time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC) // wrapped past midnight

	d, ok := e.DurationSeconds(now)
	require.True(t, ok)
	require.EqualValues(t, 120, d)
}
