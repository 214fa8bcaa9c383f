package processor

import (
	"testing"
	"time"

	"github.com/raidforge/combatlog/internal/encounter"
	"github.com/raidforge/combatlog/internal/logline"
	"github.com/raidforge/combatlog/internal/session"
	"github.com/raidforge/combatlog/internal/signal"
	"github.com/stretchr/testify/require"
)

func enterCombat(at time.Time, source logline.EntityID) *logline.CombatEvent {
	return &logline.CombatEvent{
		Timestamp: at,
		Source:    logline.Entity{Kind: logline.EntityPlayer, EntityID: source},
		Effect:    logline.Effect{EffectID: logline.EffectIDEnterCombat},
	}
}

func exitCombat(at time.Time, source logline.EntityID) *logline.CombatEvent {
	return &logline.CombatEvent{
		Timestamp: at,
		Source:    logline.Entity{Kind: logline.EntityPlayer, EntityID: source},
		Effect:    logline.Effect{EffectID: logline.EffectIDExitCombat},
	}
}

func damage(at time.Time, source, target logline.EntityID, amount int64) *logline.CombatEvent {
	return &logline.CombatEvent{
		Timestamp: at,
		Source:    logline.Entity{Kind: logline.EntityPlayer, EntityID: source, HPCur: 100, HPMax: 100},
		Target:    logline.Entity{Kind: logline.EntityNPC, EntityID: target, ClassID: 7, HPCur: 100, HPMax: 100},
		Effect:    logline.Effect{EffectID: logline.EffectIDDamage},
		Details:   logline.Details{DmgAmount: amount, DmgEffective: amount},
	}
}

func newHarness() (*Processor, *session.Cache, *[]signal.Signal) {
	cache := session.New()
	bus := signal.NewBus()
	var seen []signal.Signal
	bus.Subscribe(signal.HandlerFunc(func(batch []signal.Signal) { seen = append(seen, batch...) }))
	p := New(cache, bus)
	return p, cache, &seen
}

func kindsOf(signals []signal.Signal) []signal.Kind {
	out := make([]signal.Kind, len(signals))
	for i, s := range signals {
		out[i] = s.Kind
	}
	return out
}

func TestProcessEnterCombatStartsEncounter(t *testing.T) {
	p, cache, seen := newHarness()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	p.Process(enterCombat(base, 1))

	require.Contains(t, kindsOf(*seen), signal.KindCombatStarted)
	require.Equal(t, uint64(1), cache.Current().ID)
}

func TestProcessExitCombatEndsEncounter(t *testing.T) {
	p, cache, seen := newHarness()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	p.Process(enterCombat(base, 1))
	*seen = nil
	p.Process(exitCombat(base.Add(5*time.Second), 1))

	require.Contains(t, kindsOf(*seen), signal.KindCombatEnded)
	require.Equal(t, encounter.StatePostCombat, cache.Current().State)
}

func TestProcessInactivityTimeoutClosesAtLastActivity(t *testing.T) {
	p, cache, seen := newHarness()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	p.Process(enterCombat(base, 1))
	p.Process(damage(base.Add(1*time.Second), 1, 10, 50))
	*seen = nil

	// next event arrives 61s after last damage, beyond the 60s timeout
	p.Process(damage(base.Add(62*time.Second), 1, 10, 50))

	kinds := kindsOf(*seen)
	require.Contains(t, kinds, signal.KindCombatEnded)
	require.NotContains(t, kinds, signal.KindCombatStarted, "reprocessed event is DAMAGE, not ENTERCOMBAT, so the fresh encounter stays NotStarted")
	require.Equal(t, 1, len(cache.History()))
	require.Equal(t, cache.History()[0].ExitTime, base.Add(1*time.Second))
}

func TestProcessAnomalousReentryClosesAndRestarts(t *testing.T) {
	p, cache, seen := newHarness()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	p.Process(enterCombat(base, 1))
	*seen = nil
	p.Process(enterCombat(base.Add(1*time.Second), 1))

	kinds := kindsOf(*seen)
	require.Contains(t, kinds, signal.KindCombatEnded)
	require.Contains(t, kinds, signal.KindCombatStarted)
	require.Equal(t, 1, len(cache.History()))
	require.Equal(t, uint64(2), cache.Current().ID)
}

func TestProcessPostCombatGraceKeepsTrailingDamage(t *testing.T) {
	p, cache, seen := newHarness()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	p.Process(enterCombat(base, 1))
	p.Process(exitCombat(base.Add(1*time.Second), 1))
	closedID := cache.Current().ID
	*seen = nil

	p.Process(damage(base.Add(1*time.Second+2*time.Second), 1, 10, 50))

	require.Equal(t, closedID, cache.Current().ID, "damage within grace stays in the closing encounter")
	require.EqualValues(t, 50, cache.Current().Accumulators[1].DamageDealt)
}

func TestProcessPostCombatGraceExpiredAllocatesNewEncounter(t *testing.T) {
	p, cache, _ := newHarness()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	p.Process(enterCombat(base, 1))
	p.Process(exitCombat(base.Add(1*time.Second), 1))
	closedID := cache.Current().ID

	p.Process(damage(base.Add(1*time.Second+6*time.Second), 1, 10, 50))

	require.NotEqual(t, closedID, cache.Current().ID)
}

func TestProcessAreaEnteredClosesAndPushesNewEncounter(t *testing.T) {
	p, cache, seen := newHarness()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	p.Process(enterCombat(base, 1))
	closedID := cache.Current().ID
	*seen = nil

	areaEvent := &logline.CombatEvent{
		Timestamp: base.Add(1 * time.Second),
		Effect:    logline.Effect{TypeID: logline.EffectTypeAreaEntered},
	}
	p.Process(areaEvent)

	require.Contains(t, kindsOf(*seen), signal.KindCombatEnded)
	require.NotEqual(t, closedID, cache.Current().ID)
}

func TestProcessNpcFirstSeenEmitsSignalOnce(t *testing.T) {
	p, _, seen := newHarness()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	p.Process(enterCombat(base, 1))
	p.Process(damage(base.Add(1*time.Second), 1, 10, 50))
	firstCount := countKind(*seen, signal.KindNpcFirstSeen)
	p.Process(damage(base.Add(2*time.Second), 1, 10, 50))

	require.Equal(t, 1, firstCount)
	require.Equal(t, 1, countKind(*seen, signal.KindNpcFirstSeen))
}

func countKind(signals []signal.Signal, kind signal.Kind) int {
	n := 0
	for _, s := range signals {
		if s.Kind == kind {
			n++
		}
	}
	return n
}
