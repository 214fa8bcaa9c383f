package processor

import (
	"github.com/raidforge/combatlog/internal/intern"
	"github.com/raidforge/combatlog/internal/logline"
	"github.com/raidforge/combatlog/internal/signal"
	"github.com/raidforge/combatlog/internal/trigger"
)

// postSignals runs the reactive procedure: BossHpChanged on NPC HP deltas,
// phase transitions across all four trigger families, and counter mutation.
// currentSignals is the batch already produced by preSignals/advanceCombatState
// for this event; trigger evaluation against CounterReaches/PhaseEnded/etc.
// reads that batch, so each step appends to it before the next step runs.
func (p *Processor) postSignals(ev *logline.CombatEvent, currentSignals []signal.Signal, prevHP [2]int64, hadPrevHP bool) []signal.Signal {
	var out []signal.Signal
	enc := p.Cache.Current()

	if hp, changed := p.checkBossHPChange(ev, prevHP, hadPrevHP); changed {
		out = append(out, hp)
		currentSignals = append(currentSignals, hp)
	}

	if p.Boss != nil {
		if hp := lastBossHP(out); hp != nil {
			signals := p.Boss.EvaluateHPChange(enc, hp.ClassID, hp.Name, hpPercent(hp.PreviousHP, hp.MaxHP), hpPercent(hp.CurrentHP, hp.MaxHP), ev.Timestamp)
			out = append(out, signals...)
			currentSignals = append(currentSignals, signals...)
		}

		signals := p.Boss.EvaluateEvent(enc, ev, currentSignals)
		out = append(out, signals...)
		currentSignals = append(currentSignals, signals...)

		signals = p.Boss.EvaluateEntitySignals(enc, currentSignals, ev.Timestamp)
		out = append(out, signals...)
		currentSignals = append(currentSignals, signals...)

		oldSecs := enc.CombatTimeSecs
		newSecs, ok := enc.DurationSeconds(ev.Timestamp)
		if ok {
			enc.PrevCombatTimeSecs = oldSecs
			enc.CombatTimeSecs = float64(newSecs)
			signals = p.Boss.EvaluateTime(enc, oldSecs, enc.CombatTimeSecs, ev.Timestamp)
			out = append(out, signals...)
			currentSignals = append(currentSignals, signals...)
		}

		signals = p.Boss.EvaluateCounters(enc, ev, currentSignals)
		out = append(out, signals...)
		currentSignals = append(currentSignals, signals...)
	}

	p.Timers.ScopeState.CurrentPhase = enc.CurrentPhase
	p.Timers.ScopeState.Counters = enc.Counters

	tctx := trigger.Context{Event: ev, Signals: currentSignals}
	out = append(out, p.Timers.EvaluateStart(tctx, ev.Target.EntityID, ev.Timestamp)...)
	p.Timers.EvaluateCancel(tctx)

	p.Effects.EvaluateEvent(ev, currentSignals, ev.Timestamp, p.Alacrity)

	return out
}

// checkBossHPChange reports an HP delta on the event's target NPC relative to
// its last-tracked HP. The first sighting of an NPC (hadPrevHP == false)
// establishes a baseline and never emits, matching "no BossHpChanged when
// nothing has actually changed yet".
func (p *Processor) checkBossHPChange(ev *logline.CombatEvent, prevHP [2]int64, hadPrevHP bool) (signal.Signal, bool) {
	if !hadPrevHP {
		return signal.Signal{}, false
	}
	t := ev.Target
	if t.Kind != logline.EntityNPC && t.Kind != logline.EntityCompanion {
		return signal.Signal{}, false
	}
	if t.HPCur == prevHP[0] {
		return signal.Signal{}, false
	}
	return signal.Signal{
		Kind:       signal.KindBossHpChanged,
		Timestamp:  ev.Timestamp,
		EntityID:   t.EntityID,
		ClassID:    t.ClassID,
		Name:       intern.Resolve(t.Name),
		PreviousHP: prevHP[0],
		CurrentHP:  t.HPCur,
		MaxHP:      t.HPMax,
	}, true
}

func lastBossHP(signals []signal.Signal) *signal.Signal {
	for i := len(signals) - 1; i >= 0; i-- {
		if signals[i].Kind == signal.KindBossHpChanged {
			return &signals[i]
		}
	}
	return nil
}

func hpPercent(cur, max int64) float64 {
	if max <= 0 {
		return 0
	}
	return float64(cur) / float64(max) * 100
}
