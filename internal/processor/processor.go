// Package processor implements the combat state machine and per-event
// procedure (component F): pre-signals, the NotStarted/InCombat/PostCombat
// lifecycle, and post-signals (HP change, phase transitions, counter
// mutation), wired to a signal.Bus. Grounded on the teacher's
// injected-callback CombatManager style in internal/game/combat, generalized
// to a Handler-slice bus (internal/signal).
package processor

import (
	"time"

	"github.com/raidforge/combatlog/internal/boss"
	"github.com/raidforge/combatlog/internal/effects"
	"github.com/raidforge/combatlog/internal/encounter"
	"github.com/raidforge/combatlog/internal/intern"
	"github.com/raidforge/combatlog/internal/logline"
	"github.com/raidforge/combatlog/internal/session"
	"github.com/raidforge/combatlog/internal/signal"
	"github.com/raidforge/combatlog/internal/timers"
)

// CombatTimeout is the inactivity window (no damage/heal) after which an
// active encounter closes at its last-activity time.
const CombatTimeout = 60 * time.Second

// PostCombatGrace is how long trailing damage still belongs to a just-closed
// encounter before it is discarded into a fresh one.
const PostCombatGrace = 5 * time.Second

// Processor owns the session cache and signal bus and advances the combat
// state machine one event at a time. Not safe for concurrent Process calls:
// per §5, exactly one goroutine drives the tail-to-processor pipeline.
type Processor struct {
	Cache   *session.Cache
	Bus     *signal.Bus
	Boss    *boss.Engine     // nil until a boss definition is bound
	Timers  *timers.Manager  // empty definition set until a boss binds
	Effects *effects.Manager // empty definition set until a boss binds

	// Alacrity is the caller-supplied scalar effects.Manager applies to
	// alacrity-affected effect durations (§4.9); left at 0 when the host
	// has no such stat to report.
	Alacrity float64

	StoreEvents bool

	// TargetSetTypeID/TargetClearedTypeID recognize intent-only effect type
	// ids that a given log source's grammar assigns; unset (0) means "never
	// matches" until the caller configures them for its definition set.
	targetSetTypeID     int64
	targetClearedTypeID int64

	seenNPCs map[logline.EntityID]struct{}
}

// SetIntentTypeIDs configures the TARGETSET/TARGETCLEARED type ids this log
// source uses, propagating the same ids to the encounter package's
// TrackEventEntities guard.
func (p *Processor) SetIntentTypeIDs(targetSet, targetCleared int64) {
	p.targetSetTypeID = targetSet
	p.targetClearedTypeID = targetCleared
	encounter.SetIntentTypeIDs(targetSet, targetCleared)
}

// New creates a Processor. Boss stays nil until the processor binds it
// itself, when a newly seen NPC matches a loaded boss definition
// (session.Cache.BindBossForClassID).
func New(cache *session.Cache, bus *signal.Bus) *Processor {
	return &Processor{
		Cache:    cache,
		Bus:      bus,
		Timers:   timers.NewManager(),
		Effects:  effects.NewManager(),
		seenNPCs: make(map[logline.EntityID]struct{}),
	}
}

// TickTimers advances the active-timer store against the game clock gameNow
// and dispatches any TimerExpires/TimerStarted signals it produces, in line
// with the rest of the pipeline. The host calls this at 10-60 Hz, independent
// of event arrival, since expiry must not wait for the next log line. The
// returned audio intents are not signals (see internal/timers) and are
// handed back to the host for its own renderer to act on.
func (p *Processor) TickTimers(gameNow, processNow time.Time) []timers.AudioIntent {
	out, audio := p.Timers.Tick(gameNow, processNow)
	p.Bus.Dispatch(out)
	return audio
}

// TickEffects advances the active-effect tracker against the game clock,
// expiring durations and deleting faded-out instances. Unlike timers, the
// effect tracker emits no signals of its own (§4.9) — it is a pure reactive
// store the host reads via ActiveEffects.
func (p *Processor) TickEffects(gameNow, processNow time.Time) {
	p.Effects.Tick(gameNow, processNow)
}

// Process runs one combat event through the full per-event procedure and
// dispatches the resulting signals to the bus in emission order.
func (p *Processor) Process(ev *logline.CombatEvent) {
	var batch []signal.Signal

	prevHP, hadPrevHP := p.snapshotTargetNPCHP(ev)

	batch = append(batch, p.preSignals(ev)...)
	batch = append(batch, p.advanceCombatState(ev)...)
	batch = append(batch, p.postSignals(ev, batch, prevHP, hadPrevHP)...)

	p.Bus.Dispatch(batch)
}

// snapshotTargetNPCHP reads the target NPC's last-known HP before this
// event's TrackEventEntities call overwrites it, so postSignals can detect
// an HP change against the event's own carried HPCur/HPMax.
func (p *Processor) snapshotTargetNPCHP(ev *logline.CombatEvent) (hp [2]int64, ok bool) {
	if ev.Target.Kind != logline.EntityNPC && ev.Target.Kind != logline.EntityCompanion {
		return [2]int64{}, false
	}
	enc := p.Cache.Current()
	n, found := enc.NPCs[ev.Target.EntityID]
	if !found {
		return [2]int64{}, false
	}
	return [2]int64{n.HPCur, n.HPMax}, true
}

func (p *Processor) preSignals(ev *logline.CombatEvent) []signal.Signal {
	var out []signal.Signal

	if ev.Effect.TypeID == logline.EffectTypeAreaEntered {
		out = append(out, signal.Signal{
			Kind:      signal.KindAreaEntered,
			Timestamp: ev.Timestamp,
			AreaID:    p.Cache.Area.AreaID,
			AreaName:  p.Cache.Area.Name,
		})
		p.Cache.ClearActiveBoss()
		p.Boss = nil
		p.Timers.Shutdown()
		p.Timers.LoadDefinitions(nil)
		p.Timers.ScopeState.BossID = ""
		p.Timers.ScopeState.AreaID = p.Cache.Area.AreaID
		p.Effects.Shutdown()
		p.Effects.LoadDefinitions(nil)
	}

	if ev.Target.Kind == logline.EntityNPC {
		if _, ok := p.seenNPCs[ev.Target.EntityID]; !ok {
			p.seenNPCs[ev.Target.EntityID] = struct{}{}
			out = append(out, signal.Signal{
				Kind:      signal.KindNpcFirstSeen,
				Timestamp: ev.Timestamp,
				EntityID:  ev.Target.EntityID,
				ClassID:   ev.Target.ClassID,
				Name:      intern.Resolve(ev.Target.Name),
			})
			if p.Boss == nil {
				if def, ok := p.Cache.BindBossForClassID(ev.Target.ClassID); ok {
					bound := def
					p.Boss = boss.New(&bound)
					p.Timers.LoadDefinitions(bound.Timers)
					p.Timers.ScopeState.BossID = bound.ID
					p.Timers.ScopeState.AreaID = bound.AreaID
					p.Effects.LoadDefinitions(bound.Effects)
				}
			}
		}
	}

	if p.targetSetTypeID != 0 && ev.Effect.TypeID == p.targetSetTypeID {
		out = append(out, signal.Signal{Kind: signal.KindTargetChanged, Timestamp: ev.Timestamp, EntityID: ev.Target.EntityID, Name: intern.Resolve(ev.Target.Name)})
	}
	if p.targetClearedTypeID != 0 && ev.Effect.TypeID == p.targetClearedTypeID {
		out = append(out, signal.Signal{Kind: signal.KindTargetCleared, Timestamp: ev.Timestamp, EntityID: ev.Source.EntityID})
	}

	if ev.Effect.EffectID == logline.EffectIDAbilityActivate {
		out = append(out, signal.Signal{
			Kind:      signal.KindAbilityActivated,
			Timestamp: ev.Timestamp,
			EntityID:  ev.Source.EntityID,
			AbilityID: ev.Action.ActionID,
			Name:      intern.Resolve(ev.Action.Name),
		})
	}

	switch ev.Effect.TypeID {
	case logline.EffectTypeApplyEffect:
		if !ev.Target.IsEmpty() {
			out = append(out, signal.Signal{
				Kind: signal.KindEffectApplied, Timestamp: ev.Timestamp,
				EntityID: ev.Target.EntityID, EffectID: ev.Effect.EffectID,
				Name: intern.Resolve(ev.Effect.EffectName),
			})
		}
	case logline.EffectTypeRemoveEffect:
		if !ev.Source.IsEmpty() {
			out = append(out, signal.Signal{
				Kind: signal.KindEffectRemoved, Timestamp: ev.Timestamp,
				EntityID: ev.Target.EntityID, EffectID: ev.Effect.EffectID,
				Name: intern.Resolve(ev.Effect.EffectName),
			})
		}
	}

	if ev.Details.HasCharges {
		out = append(out, signal.Signal{
			Kind: signal.KindEffectChargesChanged, Timestamp: ev.Timestamp,
			EntityID: ev.Target.EntityID, AbilityID: ev.Details.AbilityID,
			Charges: ev.Details.Charges,
		})
	}

	out = append(out, p.entityDeathSignals(ev)...)
	return out
}

// entityDeathSignals detects death/revive purely from an HP transition to/
// from zero, since the log grammar carries no explicit death marker.
func (p *Processor) entityDeathSignals(ev *logline.CombatEvent) []signal.Signal {
	var out []signal.Signal
	enc := p.Cache.Current()

	for _, ent := range []logline.Entity{ev.Source, ev.Target} {
		if ent.IsEmpty() || ent.HPMax == 0 {
			continue
		}
		wasDead := p.wasDead(enc, ent)
		isDead := ent.HPCur <= 0

		if isDead && !wasDead {
			enc.SetEntityDeath(ent.EntityID, ent.Kind, ev.Timestamp)
			out = append(out, signal.Signal{
				Kind: signal.KindEntityDeath, Timestamp: ev.Timestamp,
				EntityID: ent.EntityID, ClassID: ent.ClassID, Name: intern.Resolve(ent.Name),
			})
		} else if !isDead && wasDead {
			enc.SetEntityAlive(ent.EntityID, ent.Kind)
			out = append(out, signal.Signal{
				Kind: signal.KindEntityRevived, Timestamp: ev.Timestamp,
				EntityID: ent.EntityID, ClassID: ent.ClassID, Name: intern.Resolve(ent.Name),
			})
		}
	}
	if len(out) > 0 {
		enc.CheckAllPlayersDead()
	}
	return out
}

func (p *Processor) wasDead(enc *encounter.Encounter, ent logline.Entity) bool {
	switch ent.Kind {
	case logline.EntityPlayer:
		if pl, ok := enc.Players[ent.EntityID]; ok {
			return pl.Dead
		}
	case logline.EntityNPC, logline.EntityCompanion:
		if n, ok := enc.NPCs[ent.EntityID]; ok {
			return n.Dead
		}
	}
	return false
}
