package effects

import (
	"testing"
	"time"

	"github.com/raidforge/combatlog/internal/defs"
	"github.com/raidforge/combatlog/internal/logline"
	"github.com/stretchr/testify/require"
)

func applyEvent(at time.Time, target, source logline.EntityID, effectID logline.EffectID) *logline.CombatEvent {
	return &logline.CombatEvent{
		Timestamp: at,
		Source:    logline.Entity{Kind: logline.EntityPlayer, EntityID: source},
		Target:    logline.Entity{Kind: logline.EntityPlayer, EntityID: target},
		Effect:    logline.Effect{EffectID: effectID, TypeID: logline.EffectTypeApplyEffect},
	}
}

func removeEvent(at time.Time, target, source logline.EntityID, effectID logline.EffectID) *logline.CombatEvent {
	return &logline.CombatEvent{
		Timestamp: at,
		Source:    logline.Entity{Kind: logline.EntityPlayer, EntityID: source},
		Target:    logline.Entity{Kind: logline.EntityPlayer, EntityID: target},
		Effect:    logline.Effect{EffectID: effectID, TypeID: logline.EffectTypeRemoveEffect},
	}
}

func TestEvaluateApplyCreatesActiveEffect(t *testing.T) {
	m := NewManager()
	m.LoadDefinitions([]defs.EffectDefinition{
		{ID: "shield-id", Trigger: defs.Trigger{Kind: defs.TriggerEffectApplied, Effects: []defs.EffectSelector{defs.EffectByID(42)}}, DurationSecs: 10, Category: defs.CategoryShield},
	})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	m.EvaluateEvent(applyEvent(base, 2, 1, 42), nil, base, 0)

	require.Equal(t, 1, m.ActiveCount())
	views := m.ActiveEffects(base, base, Filter{})
	require.Len(t, views, 1)
	require.Equal(t, "shield-id", views[0].DefID)
	require.InDelta(t, 10.0, views[0].RemainingSecs, 0.01)
}

func TestEvaluateApplyTwiceRefreshesRatherThanDuplicates(t *testing.T) {
	m := NewManager()
	m.LoadDefinitions([]defs.EffectDefinition{
		{ID: "hot", Trigger: defs.Trigger{Kind: defs.TriggerEffectApplied, Effects: []defs.EffectSelector{defs.EffectByID(7)}}, DurationSecs: 10, Category: defs.CategoryHOT},
	})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	m.EvaluateEvent(applyEvent(base, 2, 1, 7), nil, base, 0)
	m.EvaluateEvent(applyEvent(base.Add(8*time.Second), 2, 1, 7), nil, base.Add(8*time.Second), 0)

	require.Equal(t, 1, m.ActiveCount())
	views := m.ActiveEffects(base.Add(8*time.Second), base.Add(8*time.Second), Filter{})
	require.Len(t, views, 1)
	require.InDelta(t, 10.0, views[0].RemainingSecs, 0.01, "refresh should restart the duration rather than add a second instance")
}

func TestEvaluateRemoveMarksRemovedAndOpacityFades(t *testing.T) {
	m := NewManager()
	m.LoadDefinitions([]defs.EffectDefinition{
		{ID: "debuff", Trigger: defs.Trigger{Kind: defs.TriggerEffectApplied, Effects: []defs.EffectSelector{defs.EffectByID(9)}}, DurationSecs: 30, Category: defs.CategoryDebuff},
	})

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.EvaluateEvent(applyEvent(base, 2, 1, 9), nil, base, 0)
	require.Equal(t, 1, m.ActiveCount())

	m.EvaluateEvent(removeEvent(base.Add(time.Second), 2, 1, 9), nil, base.Add(time.Second), 0)

	views := m.ActiveEffects(base.Add(time.Second), base.Add(2*time.Second), Filter{})
	require.Len(t, views, 1, "still present until the fade window elapses")
	require.Less(t, views[0].Opacity, 1.0)

	m.Tick(base.Add(time.Second), base.Add(time.Second+fadeWindow+time.Millisecond))
	require.Equal(t, 0, m.ActiveCount(), "deleted once past the fade window")
}

func TestCooldownDefinitionIgnoresEffectRemoved(t *testing.T) {
	m := NewManager()
	m.LoadDefinitions([]defs.EffectDefinition{
		{ID: "cd", Trigger: defs.Trigger{Kind: defs.TriggerEffectApplied, Effects: []defs.EffectSelector{defs.EffectByID(5)}}, DurationSecs: 20, DisplayTarget: defs.DisplayCooldowns},
	})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.EvaluateEvent(applyEvent(base, 2, 1, 5), nil, base, 0)

	m.EvaluateEvent(removeEvent(base.Add(time.Second), 2, 1, 5), nil, base.Add(time.Second), 0)

	views := m.ActiveEffects(base.Add(time.Second), base.Add(time.Second), Filter{})
	require.Len(t, views, 1)
	require.Equal(t, 1.0, views[0].Opacity, "cooldown-style effects only end via duration expiry, not game removal")

	m.Tick(base.Add(20*time.Second), base.Add(20*time.Second))
	require.Equal(t, 0, m.ActiveCount())
}

func TestTickExpiresAtDuration(t *testing.T) {
	m := NewManager()
	m.LoadDefinitions([]defs.EffectDefinition{
		{ID: "dot", Trigger: defs.Trigger{Kind: defs.TriggerEffectApplied, Effects: []defs.EffectSelector{defs.EffectByID(3)}}, DurationSecs: 6},
	})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.EvaluateEvent(applyEvent(base, 2, 1, 3), nil, base, 0)

	m.Tick(base.Add(6*time.Second), base.Add(6*time.Second))
	require.Equal(t, 1, m.ActiveCount(), "removed but still fading")
	views := m.ActiveEffects(base.Add(6*time.Second), base.Add(6*time.Second), Filter{})
	require.Len(t, views, 1)
	require.Equal(t, 0.0, views[0].RemainingSecs)

	m.Tick(base.Add(6*time.Second), base.Add(6*time.Second+fadeWindow+time.Millisecond))
	require.Equal(t, 0, m.ActiveCount())
}

func TestAlacrityScalesEffectiveDuration(t *testing.T) {
	m := NewManager()
	m.LoadDefinitions([]defs.EffectDefinition{
		{ID: "fast-hot", Trigger: defs.Trigger{Kind: defs.TriggerEffectApplied, Effects: []defs.EffectSelector{defs.EffectByID(11)}}, DurationSecs: 20, IsAffectedByAlacrity: true},
	})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	m.EvaluateEvent(applyEvent(base, 2, 1, 11), nil, base, 25) // 20 / 1.25 = 16

	views := m.ActiveEffects(base, base, Filter{})
	require.Len(t, views, 1)
	require.InDelta(t, 16.0, views[0].RemainingSecs, 0.01)
}

func TestShowAtSecsGateHidesUntilClose(t *testing.T) {
	m := NewManager()
	m.LoadDefinitions([]defs.EffectDefinition{
		{ID: "late-show", Trigger: defs.Trigger{Kind: defs.TriggerEffectApplied, Effects: []defs.EffectSelector{defs.EffectByID(13)}}, DurationSecs: 30, ShowAtSecs: 10},
	})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.EvaluateEvent(applyEvent(base, 2, 1, 13), nil, base, 0)

	require.Empty(t, m.ActiveEffects(base.Add(5*time.Second), base.Add(5*time.Second), Filter{}))

	views := m.ActiveEffects(base.Add(22*time.Second), base.Add(22*time.Second), Filter{})
	require.Len(t, views, 1)
	require.InDelta(t, 8.0, views[0].RemainingSecs, 0.01)
}

func TestEvaluateModifyChargesRefreshesWhenOptedIn(t *testing.T) {
	m := NewManager()
	m.LoadDefinitions([]defs.EffectDefinition{
		{ID: "charges", Trigger: defs.Trigger{Kind: defs.TriggerEffectApplied, Effects: []defs.EffectSelector{defs.EffectByID(21)}}, DurationSecs: 10, IsRefreshedOnModify: true},
	})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.EvaluateEvent(applyEvent(base, 2, 1, 21), nil, base, 0)

	modify := applyEvent(base.Add(8*time.Second), 2, 1, 21)
	modify.Details.HasCharges = true

	m.EvaluateEvent(modify, nil, base.Add(8*time.Second), 0)

	views := m.ActiveEffects(base.Add(8*time.Second), base.Add(8*time.Second), Filter{})
	require.Len(t, views, 1)
	require.InDelta(t, 10.0, views[0].RemainingSecs, 0.01, "charge modification should have refreshed the duration")
}

func TestFilterByTargetEntityID(t *testing.T) {
	m := NewManager()
	m.LoadDefinitions([]defs.EffectDefinition{
		{ID: "raid-buff", Trigger: defs.Trigger{Kind: defs.TriggerEffectApplied, Effects: []defs.EffectSelector{defs.EffectByID(1)}}, DurationSecs: 30},
	})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.EvaluateEvent(applyEvent(base, 2, 1, 1), nil, base, 0)
	m.EvaluateEvent(applyEvent(base, 3, 1, 1), nil, base, 0)

	require.Len(t, m.ActiveEffects(base, base, Filter{}), 2)
	require.Len(t, m.ActiveEffects(base, base, Filter{TargetEntityID: 2}), 1)
}
