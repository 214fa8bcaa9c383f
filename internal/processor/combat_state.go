package processor

import (
	"github.com/raidforge/combatlog/internal/encounter"
	"github.com/raidforge/combatlog/internal/logline"
	"github.com/raidforge/combatlog/internal/signal"
)

// advanceCombatState runs the NotStarted/InCombat/PostCombat transition
// table for one event and returns the CombatStarted/CombatEnded signals it
// produces. Effect tracking (shield apply/remove bookkeeping) happens first,
// mirroring track_encounter_effects running ahead of the state dispatch.
func (p *Processor) advanceCombatState(ev *logline.CombatEvent) []signal.Signal {
	enc := p.Cache.Current()

	if ev.Effect.TypeID == logline.EffectTypeApplyEffect && !ev.Target.IsEmpty() {
		enc.ApplyEffect(ev)
	} else if ev.Effect.TypeID == logline.EffectTypeRemoveEffect && !ev.Source.IsEmpty() {
		enc.RemoveEffect(ev)
	}

	switch enc.State {
	case encounter.StateNotStarted:
		return p.handleNotStarted(ev)
	case encounter.StateInCombat:
		return p.handleInCombat(ev)
	default:
		return p.handlePostCombat(ev)
	}
}

func (p *Processor) handleNotStarted(ev *logline.CombatEvent) []signal.Signal {
	enc := p.Cache.Current()

	if ev.Effect.EffectID == logline.EffectIDEnterCombat {
		enc.State = encounter.StateInCombat
		enc.EnterTime = ev.Timestamp
		enc.LastActivityTime = ev.Timestamp
		enc.TrackEventEntities(ev)
		enc.AccumulateData(ev)
		return []signal.Signal{{Kind: signal.KindCombatStarted, Timestamp: ev.Timestamp, EncounterID: enc.ID}}
	}

	enc.AccumulateData(ev)
	return nil
}

func (p *Processor) handleInCombat(ev *logline.CombatEvent) []signal.Signal {
	enc := p.Cache.Current()

	if !enc.LastActivityTime.IsZero() {
		elapsed := ev.Timestamp.Sub(enc.LastActivityTime)
		if elapsed >= CombatTimeout {
			encounterID := enc.ID
			lastActivity := enc.LastActivityTime

			enc.FlushPendingAbsorptions()
			enc.ExitTime = lastActivity
			enc.State = encounter.StatePostCombat
			duration, _ := enc.DurationSeconds(lastActivity)
			enc.ChallengeTracker.Finalize(lastActivity, float32(duration))

			signals := []signal.Signal{{Kind: signal.KindCombatEnded, Timestamp: lastActivity, EncounterID: encounterID}}
			p.Cache.PushNewEncounter(lastActivity)
			signals = append(signals, p.advanceCombatState(ev)...)
			return signals
		}
	}

	allPlayersDead := enc.AllPlayersDead
	allKillTargetsDead := p.allKillTargetsDead()

	switch {
	case ev.Effect.EffectID == logline.EffectIDEnterCombat:
		encounterID := enc.ID
		enc.FlushPendingAbsorptions()
		enc.ExitTime = ev.Timestamp
		enc.State = encounter.StatePostCombat
		duration, _ := enc.DurationSeconds(ev.Timestamp)
		enc.ChallengeTracker.Finalize(ev.Timestamp, float32(duration))

		signals := []signal.Signal{{Kind: signal.KindCombatEnded, Timestamp: ev.Timestamp, EncounterID: encounterID}}
		p.Cache.PushNewEncounter(ev.Timestamp)
		signals = append(signals, p.advanceCombatState(ev)...)
		return signals

	case ev.Effect.EffectID == logline.EffectIDExitCombat || allPlayersDead || allKillTargetsDead:
		encounterID := enc.ID
		enc.FlushPendingAbsorptions()
		enc.ExitTime = ev.Timestamp
		enc.State = encounter.StatePostCombat
		duration, _ := enc.DurationSeconds(ev.Timestamp)
		enc.ChallengeTracker.Finalize(ev.Timestamp, float32(duration))
		return []signal.Signal{{Kind: signal.KindCombatEnded, Timestamp: ev.Timestamp, EncounterID: encounterID}}

	case ev.Effect.TypeID == logline.EffectTypeAreaEntered:
		encounterID := enc.ID
		enc.FlushPendingAbsorptions()
		enc.ExitTime = ev.Timestamp
		enc.State = encounter.StatePostCombat
		duration, _ := enc.DurationSeconds(ev.Timestamp)
		enc.ChallengeTracker.Finalize(ev.Timestamp, float32(duration))

		signals := []signal.Signal{{Kind: signal.KindCombatEnded, Timestamp: ev.Timestamp, EncounterID: encounterID}}
		p.Cache.PushNewEncounter(ev.Timestamp)
		return signals

	default:
		enc.TrackEventEntities(ev)
		enc.AccumulateData(ev)
		if ev.Effect.EffectID == logline.EffectIDDamage || ev.Effect.EffectID == logline.EffectIDHeal {
			enc.LastActivityTime = ev.Timestamp
		}
		return nil
	}
}

func (p *Processor) handlePostCombat(ev *logline.CombatEvent) []signal.Signal {
	enc := p.Cache.Current()
	exitTime := enc.ExitTime

	switch {
	case ev.Effect.EffectID == logline.EffectIDEnterCombat:
		p.Cache.PushNewEncounter(ev.Timestamp)
		enc := p.Cache.Current()
		enc.State = encounter.StateInCombat
		enc.EnterTime = ev.Timestamp
		enc.LastActivityTime = ev.Timestamp
		enc.AccumulateData(ev)
		return []signal.Signal{{Kind: signal.KindCombatStarted, Timestamp: ev.Timestamp, EncounterID: enc.ID}}

	case ev.Effect.EffectID == logline.EffectIDDamage:
		if ev.Timestamp.Sub(exitTime) <= PostCombatGrace {
			enc.TrackEventEntities(ev)
			enc.AccumulateData(ev)
			return nil
		}
		p.Cache.PushNewEncounter(ev.Timestamp)
		enc := p.Cache.Current()
		enc.TrackEventEntities(ev)
		enc.AccumulateData(ev)
		return nil

	default:
		p.Cache.PushNewEncounter(ev.Timestamp)
		enc := p.Cache.Current()
		enc.TrackEventEntities(ev)
		enc.AccumulateData(ev)
		return nil
	}
}

// allKillTargetsDead reports whether every kill-target NPC id of the
// currently bound boss has been recorded dead in this encounter.
func (p *Processor) allKillTargetsDead() bool {
	boss, ok := p.Cache.ActiveBoss()
	if !ok {
		return false
	}
	ids := boss.KillTargetIDs()
	if len(ids) == 0 {
		return false
	}
	current := p.Cache.Current()
	for _, id := range ids {
		if _, dead := current.DeadKillTargets[logline.ClassID(id)]; !dead {
			return false
		}
	}
	return true
}
