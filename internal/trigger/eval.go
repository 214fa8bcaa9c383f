// Package trigger evaluates the unified defs.Trigger grammar against an
// incoming combat event, the signals already emitted this tick, an HP
// crossing, or an elapsed-time crossing. Shared by the boss engine, the
// timer manager, and counter mutation so the matching rules live in exactly
// one place.
package trigger

import (
	"github.com/raidforge/combatlog/internal/defs"
	"github.com/raidforge/combatlog/internal/intern"
	"github.com/raidforge/combatlog/internal/logline"
	"github.com/raidforge/combatlog/internal/signal"
)

// Context carries whichever inputs are relevant to the trigger being
// evaluated; callers only need to populate the fields their call site has.
type Context struct {
	Event   *logline.CombatEvent
	Signals []signal.Signal

	OldHPPercent, NewHPPercent float64
	NPCID                      logline.ClassID
	EntityName                 string

	OldTimeSecs, NewTimeSecs float64

	Roster []defs.EntityDefinition

	// Resolve turns an interned name handle back into a string. Defaults to
	// the process-wide global table if left nil.
	Resolve func(intern.IStr) string
}

// Matches reports whether trigger t is satisfied by ctx.
func Matches(t defs.Trigger, ctx Context) bool {
	switch t.Kind {
	case defs.TriggerCombatStart:
		return anySignal(ctx.Signals, signal.KindCombatStarted)
	case defs.TriggerCombatEnd:
		return anySignal(ctx.Signals, signal.KindCombatEnded)

	case defs.TriggerAbilityCast:
		return matchAbilityCast(t, ctx)
	case defs.TriggerEffectApplied:
		return matchEffectApplied(t, ctx)
	case defs.TriggerEffectRemoved:
		return matchEffectRemoved(t, ctx)
	case defs.TriggerDamageTaken:
		return matchDamageTaken(t, ctx)

	case defs.TriggerBossHPBelow:
		return matchHPCrossing(t, ctx, true)
	case defs.TriggerBossHPAbove:
		return matchHPCrossing(t, ctx, false)

	case defs.TriggerNpcAppears:
		return matchEntitySignal(t, ctx, signal.KindNpcFirstSeen)
	case defs.TriggerEntityDeath:
		return matchEntitySignal(t, ctx, signal.KindEntityDeath)

	case defs.TriggerTargetSet:
		return anySignal(ctx.Signals, signal.KindTargetChanged)

	case defs.TriggerPhaseEntered:
		for _, s := range ctx.Signals {
			if s.Kind == signal.KindPhaseChanged && s.PhaseNew == t.PhaseID {
				return true
			}
		}
		return false
	case defs.TriggerPhaseEnded:
		for _, s := range ctx.Signals {
			if s.Kind == signal.KindPhaseChanged && s.PhaseOld == t.PhaseID {
				return true
			}
			if s.Kind == signal.KindPhaseEndTriggered && s.PhaseOld == t.PhaseID {
				return true
			}
		}
		return false
	case defs.TriggerAnyPhaseChange:
		return anySignal(ctx.Signals, signal.KindPhaseChanged)

	case defs.TriggerCounterReaches:
		for _, s := range ctx.Signals {
			if s.Kind == signal.KindCounterChanged && s.CounterID == t.CounterID && s.CounterNew == t.Value {
				return true
			}
		}
		return false

	case defs.TriggerTimerExpires:
		for _, s := range ctx.Signals {
			if s.Kind == signal.KindTimerExpires && s.TimerID == t.TimerID {
				return true
			}
		}
		return false
	case defs.TriggerTimerStarted:
		for _, s := range ctx.Signals {
			if s.Kind == signal.KindTimerStarted && s.TimerID == t.TimerID {
				return true
			}
		}
		return false

	case defs.TriggerTimeElapsed:
		return ctx.OldTimeSecs < t.Seconds && ctx.NewTimeSecs >= t.Seconds

	case defs.TriggerManual, defs.TriggerNever:
		return false

	case defs.TriggerAnyOf:
		for _, child := range t.Children {
			if Matches(child, ctx) {
				return true
			}
		}
		return false
	}
	return false
}

func anySignal(signals []signal.Signal, kind signal.Kind) bool {
	for _, s := range signals {
		if s.Kind == kind {
			return true
		}
	}
	return false
}

func matchAbilityCast(t defs.Trigger, ctx Context) bool {
	ev := ctx.Event
	if ev == nil || ev.Effect.EffectID != logline.EffectIDAbilityActivate {
		return false
	}
	name := resolveStr(ctx, ev.Action.Name)
	if !defs.MatchesAnyAbility(t.Abilities, int64(ev.Action.ActionID), name) {
		return false
	}
	if !t.Source.IsEmpty() {
		sourceName := resolveStr(ctx, ev.Source.Name)
		if !t.Source.MatchesNPCID(int64(ev.Source.ClassID)) && !t.Source.MatchesName(sourceName) {
			return false
		}
	}
	return true
}

func matchEffectApplied(t defs.Trigger, ctx Context) bool {
	ev := ctx.Event
	if ev == nil || ev.Effect.TypeID != logline.EffectTypeApplyEffect {
		return false
	}
	name := resolveStr(ctx, ev.Effect.EffectName)
	if !defs.MatchesAnyEffect(t.Effects, int64(ev.Effect.EffectID), name) {
		return false
	}
	return matchTargetFilter(t.Target, ctx, ev)
}

func matchEffectRemoved(t defs.Trigger, ctx Context) bool {
	ev := ctx.Event
	if ev == nil || ev.Effect.TypeID != logline.EffectTypeRemoveEffect {
		return false
	}
	name := resolveStr(ctx, ev.Effect.EffectName)
	if !defs.MatchesAnyEffect(t.Effects, int64(ev.Effect.EffectID), name) {
		return false
	}
	return matchTargetFilter(t.Target, ctx, ev)
}

func matchTargetFilter(target defs.EntityMatcher, ctx Context, ev *logline.CombatEvent) bool {
	if target.IsEmpty() {
		return true
	}
	targetName := resolveStr(ctx, ev.Target.Name)
	return target.MatchesNPCID(int64(ev.Target.ClassID)) || target.MatchesName(targetName)
}

func matchDamageTaken(t defs.Trigger, ctx Context) bool {
	ev := ctx.Event
	if ev == nil || ev.Effect.EffectID != logline.EffectIDDamage {
		return false
	}
	name := resolveStr(ctx, ev.Action.Name)
	if !defs.MatchesAnyAbility(t.Abilities, int64(ev.Action.ActionID), name) {
		return false
	}
	if !t.Source.IsEmpty() {
		sourceName := resolveStr(ctx, ev.Source.Name)
		if !t.Source.MatchesNPCID(int64(ev.Source.ClassID)) && !t.Source.MatchesName(sourceName) {
			return false
		}
	}
	if !t.Target.IsEmpty() {
		targetName := resolveStr(ctx, ev.Target.Name)
		if !t.Target.MatchesName(targetName) {
			return false
		}
	}
	return true
}

func matchHPCrossing(t defs.Trigger, ctx Context, below bool) bool {
	var crossed bool
	if below {
		crossed = ctx.OldHPPercent > t.Percent && ctx.NewHPPercent <= t.Percent
	} else {
		crossed = ctx.OldHPPercent < t.Percent && ctx.NewHPPercent >= t.Percent
	}
	if !crossed {
		return false
	}
	if t.Entity.IsEmpty() {
		return true
	}
	return t.Entity.MatchesNPCID(int64(ctx.NPCID)) || t.Entity.MatchesName(ctx.EntityName)
}

func matchEntitySignal(t defs.Trigger, ctx Context, kind signal.Kind) bool {
	for _, s := range ctx.Signals {
		if s.Kind != kind {
			continue
		}
		if kind == signal.KindEntityDeath && (t.Entity.IsEmpty()) {
			return true
		}
		if t.Entity.Matches(ctx.Roster, int64(s.ClassID), s.Name) {
			return true
		}
	}
	return false
}

func resolveStr(ctx Context, id intern.IStr) string {
	if ctx.Resolve != nil {
		return ctx.Resolve(id)
	}
	return intern.Resolve(id)
}
