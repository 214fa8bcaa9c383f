package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/raidforge/combatlog/internal/logline"
)

// newTestStore opens an in-memory query store and seeds it with a single
// flushed encounter file built from rows, mirroring how a real Store is
// populated by LoadEncounter after a Writer.Flush.
func newTestStore(t *testing.T, encounterIdx uint32, rows []Row) *Store {
	t.Helper()
	dir := t.TempDir()

	data, err := marshalRows(rows)
	require.NoError(t, err)
	w, err := NewWriter(dir, nil)
	require.NoError(t, err)
	w.buffer = rows
	require.NoError(t, w.Flush(encounterIdx))
	_ = data // marshalRows already exercised via Flush; kept for clarity

	store, err := OpenStore(":memory:", dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.LoadEncounter(context.Background(), encounterIdx))
	return store
}

func TestAbilityBreakdownComputesPercentOfTotal(t *testing.T) {
	rows := []Row{
		{EncounterIdx: 1, SourceEntityID: 1, EffectID: int64(logline.EffectIDDamage), AbilityID: 10, AbilityName: "Fireball", DmgEffective: 300},
		{EncounterIdx: 1, SourceEntityID: 1, EffectID: int64(logline.EffectIDDamage), AbilityID: 11, AbilityName: "Firebolt", DmgEffective: 100, IsCrit: true},
		{EncounterIdx: 1, SourceEntityID: 2, EffectID: int64(logline.EffectIDDamage), AbilityID: 10, AbilityName: "Fireball", DmgEffective: 999},
	}
	store := newTestStore(t, 1, rows)

	got, err := store.AbilityBreakdown(context.Background(), 1, Filter{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Fireball", got[0].AbilityName)
	require.Equal(t, int64(300), got[0].TotalDamage)
	require.InDelta(t, 75.0, got[0].PercentOfTotal, 0.01)
	require.Equal(t, "Firebolt", got[1].AbilityName)
	require.Equal(t, int64(1), got[1].Crits)
}

func TestEntityBreakdownAggregatesDealtHealedTakenAbsorbed(t *testing.T) {
	rows := []Row{
		{EncounterIdx: 1, SourceEntityID: 1, SourceName: "Alice", TargetEntityID: 2, EffectID: int64(logline.EffectIDDamage), DmgEffective: 200, DmgAbsorbed: 50},
		{EncounterIdx: 1, SourceEntityID: 1, SourceName: "Alice", TargetEntityID: 2, EffectID: int64(logline.EffectIDHeal), HealEffective: 80},
		{EncounterIdx: 1, SourceEntityID: 2, TargetEntityID: 1, TargetName: "Alice", EffectID: int64(logline.EffectIDDamage), DmgEffective: 30},
	}
	store := newTestStore(t, 1, rows)

	got, err := store.EntityBreakdown(context.Background(), Filter{})
	require.NoError(t, err)

	byID := map[int64]EntityBreakdownRow{}
	for _, r := range got {
		byID[r.EntityID] = r
	}
	require.Equal(t, int64(200), byID[1].TotalDamage)
	require.Equal(t, int64(80), byID[1].TotalHealing)
	require.Equal(t, int64(30), byID[1].DamageTaken)
	require.Equal(t, int64(200), byID[2].DamageTaken)
	require.Equal(t, int64(50), byID[2].DamageAbsorbed)
}

func TestRaidOverviewAttributesShieldByFIFO(t *testing.T) {
	const shieldEffectID = 500
	rows := []Row{
		// Healer 1 shields the tank at t=1000, healer 2 re-shields at t=2000.
		{EncounterIdx: 1, TargetEntityID: 9, SourceEntityID: 1, EffectID: shieldEffectID, EffectType: logline.EffectTypeApplyEffect, TimestampMs: 1000},
		{EncounterIdx: 1, TargetEntityID: 9, SourceEntityID: 2, EffectID: shieldEffectID, EffectType: logline.EffectTypeApplyEffect, TimestampMs: 2000},
		// Damage at t=1500 should attribute to healer 1 (the shield active at the time).
		{EncounterIdx: 1, TargetEntityID: 9, DmgAbsorbed: 40, TimestampMs: 1500},
		// Damage at t=2500 should attribute to healer 2.
		{EncounterIdx: 1, TargetEntityID: 9, DmgAbsorbed: 60, TimestampMs: 2500},
	}
	store := newTestStore(t, 1, rows)

	got, err := store.RaidOverview(context.Background(), []int64{shieldEffectID}, Filter{})
	require.NoError(t, err)

	byID := map[int64]int64{}
	for _, r := range got {
		byID[r.EntityID] = r.ShieldingGiven
	}
	require.Equal(t, int64(40), byID[1])
	require.Equal(t, int64(60), byID[2])
}

func TestPlayerDeathsFindsZeroHPCrossings(t *testing.T) {
	rows := []Row{
		{EncounterIdx: 1, TargetKind: int(logline.EntityPlayer), TargetEntityID: 3, TargetName: "Bob", TargetHPCur: 0, TargetHPMax: 1000, TimestampMs: 5000},
		{EncounterIdx: 1, TargetKind: int(logline.EntityPlayer), TargetEntityID: 3, TargetName: "Bob", TargetHPCur: 400, TargetHPMax: 1000, TimestampMs: 4000},
		{EncounterIdx: 1, TargetKind: int(logline.EntityNPC), TargetEntityID: 9, TargetHPCur: 0, TargetHPMax: 500, TimestampMs: 5500},
	}
	store := newTestStore(t, 1, rows)

	got, err := store.PlayerDeaths(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "Bob", got[0].Name)
	require.Equal(t, int64(5000), got[0].TimestampMs)
}

func TestFilterRestrictsByTimeRange(t *testing.T) {
	rows := []Row{
		{EncounterIdx: 1, SourceEntityID: 1, EffectID: int64(logline.EffectIDDamage), AbilityID: 10, AbilityName: "Fireball", DmgEffective: 100, TimestampMs: 1000},
		{EncounterIdx: 1, SourceEntityID: 1, EffectID: int64(logline.EffectIDDamage), AbilityID: 10, AbilityName: "Fireball", DmgEffective: 900, TimestampMs: 9000},
	}
	store := newTestStore(t, 1, rows)

	got, err := store.AbilityBreakdown(context.Background(), 1, Filter{HasTimeRange: true, StartSecs: 0, EndSecs: 2})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, int64(100), got[0].TotalDamage)
}
