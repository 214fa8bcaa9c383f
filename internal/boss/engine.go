// Package boss implements the stateless phase/counter bridge (component H):
// a thin layer over the active encounter and its bound BossEncounterDefinition
// that decides phase transitions and counter mutations, and hands back the
// signals those decisions produce. The engine holds no state of its own —
// every method takes the encounter it operates on explicitly, grounded on
// the teacher's preference for small, explicit collaborators over hidden
// singleton state (see internal/game/combat's handler-table style).
package boss

import (
	"time"

	"github.com/raidforge/combatlog/internal/defs"
	"github.com/raidforge/combatlog/internal/encounter"
	"github.com/raidforge/combatlog/internal/logline"
	"github.com/raidforge/combatlog/internal/signal"
	"github.com/raidforge/combatlog/internal/trigger"
)

// Engine evaluates phase/counter transitions for one boss definition.
type Engine struct {
	Def *defs.BossEncounterDefinition
}

// New binds an Engine to a boss definition.
func New(def *defs.BossEncounterDefinition) *Engine { return &Engine{Def: def} }

func (e *Engine) eligible(enc *encounter.Encounter, phase defs.PhaseDefinition) bool {
	if enc.CurrentPhase == phase.ID {
		return false
	}
	if phase.PrecededBy != "" {
		last := enc.CurrentPhase
		if last == "" {
			last = enc.PreviousPhase
		}
		if last != phase.PrecededBy {
			return false
		}
	}
	if phase.CounterCondition != nil && !checkCounterCondition(enc, *phase.CounterCondition) {
		return false
	}
	return true
}

// checkCounterCondition evaluates a CounterReaches condition against the
// encounter's current counter value directly, rather than against a
// just-emitted CounterChanged signal: a phase's entry gate must hold
// regardless of whether the counter changed on this exact tick.
func checkCounterCondition(enc *encounter.Encounter, cond defs.Trigger) bool {
	if cond.Kind != defs.TriggerCounterReaches {
		return true
	}
	return enc.Counters[cond.CounterID] == cond.Value
}

func (e *Engine) enterPhase(enc *encounter.Encounter, phase defs.PhaseDefinition, at time.Time) signal.Signal {
	old := enc.CurrentPhase
	enc.PreviousPhase = enc.CurrentPhase
	enc.CurrentPhase = phase.ID
	enc.PhaseStartedAt = at

	resetSet := make(map[string]struct{}, len(phase.ResetsCounters))
	for _, id := range phase.ResetsCounters {
		resetSet[id] = struct{}{}
	}
	for _, cd := range e.Def.Counters {
		if _, ok := resetSet[cd.ID]; ok {
			enc.Counters[cd.ID] = cd.InitialValue
		}
	}

	return signal.Signal{
		Kind:      signal.KindPhaseChanged,
		Timestamp: at,
		PhaseOld:  old,
		PhaseNew:  phase.ID,
	}
}

// EvaluateHPChange checks HP-based phase start triggers for an NPC whose HP
// just moved from oldHP to newHP (percent of max, 0-100).
func (e *Engine) EvaluateHPChange(enc *encounter.Encounter, npcID logline.ClassID, entityName string, oldHP, newHP float64, at time.Time) []signal.Signal {
	ctx := trigger.Context{OldHPPercent: oldHP, NewHPPercent: newHP, NPCID: npcID, EntityName: entityName}
	return e.tryPhases(enc, ctx, at)
}

// EvaluateEvent checks ability/effect-based phase start triggers for one
// combat event, plus the current phase's end trigger.
func (e *Engine) EvaluateEvent(enc *encounter.Encounter, ev *logline.CombatEvent, currentSignals []signal.Signal) []signal.Signal {
	ctx := trigger.Context{Event: ev, Signals: currentSignals}
	out := e.tryPhases(enc, ctx, ev.Timestamp)

	if enc.CurrentPhase != "" {
		for _, p := range e.Def.Phases {
			if p.ID != enc.CurrentPhase || p.EndTrigger == nil {
				continue
			}
			if trigger.Matches(*p.EndTrigger, ctx) {
				out = append(out, signal.Signal{
					Kind:      signal.KindPhaseEndTriggered,
					Timestamp: ev.Timestamp,
					PhaseOld:  p.ID,
				})
			}
			break
		}
	}
	return out
}

// EvaluateEntitySignals checks signal-based phase triggers (NpcAppears,
// EntityDeath, PhaseEnded, CounterReaches) against this tick's signal batch.
func (e *Engine) EvaluateEntitySignals(enc *encounter.Encounter, currentSignals []signal.Signal, at time.Time) []signal.Signal {
	ctx := trigger.Context{Signals: currentSignals, Roster: e.Def.Entities}
	return e.tryPhases(enc, ctx, at)
}

// EvaluateTime checks TimeElapsed phase triggers given the encounter's
// updated combat-time crossing.
func (e *Engine) EvaluateTime(enc *encounter.Encounter, oldSecs, newSecs float64, at time.Time) []signal.Signal {
	if newSecs <= oldSecs {
		return nil
	}
	ctx := trigger.Context{OldTimeSecs: oldSecs, NewTimeSecs: newSecs}
	return e.tryPhases(enc, ctx, at)
}

// tryPhases walks phases in definition order and fires at most one
// transition (matching the original's "only one phase transition per
// event" rule).
func (e *Engine) tryPhases(enc *encounter.Encounter, ctx trigger.Context, at time.Time) []signal.Signal {
	for _, p := range e.Def.Phases {
		if !e.eligible(enc, p) {
			continue
		}
		if trigger.Matches(p.StartTrigger, ctx) {
			return []signal.Signal{e.enterPhase(enc, p, at)}
		}
	}
	return nil
}

// EvaluateCounters checks every counter's increment/decrement/reset triggers
// against the current event and signal batch, mutating enc.Counters and
// returning a CounterChanged signal per change.
func (e *Engine) EvaluateCounters(enc *encounter.Encounter, ev *logline.CombatEvent, currentSignals []signal.Signal) []signal.Signal {
	var out []signal.Signal
	ctx := trigger.Context{Event: ev, Signals: currentSignals, Roster: e.Def.Entities}

	for _, c := range e.Def.Counters {
		if trigger.Matches(c.IncrementOn, ctx) {
			old, new := e.modifyCounter(enc, c, c.Decrement, c.SetValue)
			out = append(out, signal.Signal{Kind: signal.KindCounterChanged, Timestamp: ev.Timestamp, CounterID: c.ID, CounterOld: old, CounterNew: new})
		}
		if c.DecrementOn != nil && trigger.Matches(*c.DecrementOn, ctx) {
			old, new := e.modifyCounter(enc, c, true, nil)
			out = append(out, signal.Signal{Kind: signal.KindCounterChanged, Timestamp: ev.Timestamp, CounterID: c.ID, CounterOld: old, CounterNew: new})
		}
		if trigger.Matches(c.ResetOn, ctx) {
			old := enc.Counters[c.ID]
			if old != c.InitialValue {
				enc.Counters[c.ID] = c.InitialValue
				out = append(out, signal.Signal{Kind: signal.KindCounterChanged, Timestamp: ev.Timestamp, CounterID: c.ID, CounterOld: old, CounterNew: c.InitialValue})
			}
		}
	}
	return out
}

func (e *Engine) modifyCounter(enc *encounter.Encounter, c defs.CounterDefinition, decrement bool, setValue *uint32) (old, new uint32) {
	old = enc.Counters[c.ID]
	switch {
	case setValue != nil:
		new = *setValue
	case decrement:
		if old > 0 {
			new = old - 1
		}
	default:
		new = old + 1
	}
	enc.Counters[c.ID] = new
	return old, new
}
