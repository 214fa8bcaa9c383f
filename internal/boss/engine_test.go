package boss

import (
	"testing"
	"time"

	"github.com/raidforge/combatlog/internal/defs"
	"github.com/raidforge/combatlog/internal/encounter"
	"github.com/raidforge/combatlog/internal/logline"
	"github.com/raidforge/combatlog/internal/signal"
	"github.com/stretchr/testify/require"
)

func TestEvaluateHPChangeEntersPhaseOnCrossing(t *testing.T) {
	def := &defs.BossEncounterDefinition{
		Phases: []defs.PhaseDefinition{
			{ID: "p2", Name: "Phase 2", StartTrigger: defs.BossHPBelow(50, defs.EntityMatcher{})},
		},
	}
	e := New(def)
	enc := encounter.New(1)

	signals := e.EvaluateHPChange(enc, 0, "Boss", 60, 40, time.Now())
	require.Len(t, signals, 1)
	require.Equal(t, "p2", enc.CurrentPhase)
}

func TestEligibleRespectsPrecededBy(t *testing.T) {
	def := &defs.BossEncounterDefinition{
		Phases: []defs.PhaseDefinition{
			{ID: "p2", PrecededBy: "p1", StartTrigger: defs.BossHPBelow(50, defs.EntityMatcher{})},
		},
	}
	e := New(def)
	enc := encounter.New(1)

	signals := e.EvaluateHPChange(enc, 0, "Boss", 60, 40, time.Now())
	require.Empty(t, signals, "phase requiring preceded_by p1 must not fire before p1")
}

func TestEvaluateCountersIncrementsOnTrigger(t *testing.T) {
	def := &defs.BossEncounterDefinition{
		Counters: []defs.CounterDefinition{
			{ID: "adds", IncrementOn: defs.CombatStart(), ResetOn: defs.Never()},
		},
	}
	e := New(def)
	enc := encounter.New(1)

	ev := &logline.CombatEvent{Timestamp: time.Now()}
	currentSignals := []signal.Signal{{Kind: signal.KindCombatStarted}}

	out := e.EvaluateCounters(enc, ev, currentSignals)
	require.Len(t, out, 1)
	require.EqualValues(t, 1, enc.Counters["adds"])
}
