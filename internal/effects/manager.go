// Package effects implements the active-effect tracker (component J):
// buff/debuff/HOT/DOT/shield instances keyed by (definition, target), with
// refresh-on-reapply, fade-on-removal, and duration-expiry lifecycles.
//
// Grounded on the teacher's internal/game/skill.EffectManager (mutex-guarded
// active-effect slices with a stacking/refresh rule and a defensive-copy
// accessor for readers), generalized from the teacher's fixed buff/debuff
// capacity and AbnormalType stacking rule to the spec's richer per-definition
// refresh/ignore-removal/alacrity/visibility-gate rules. Like internal/timers
// this package replaces the teacher's goroutine-per-effect durability model
// with an explicit Tick(now) poll so expiry follows the lag-compensated game
// clock (internal/clock) rather than a real-time sleep.
package effects

import (
	"sync"
	"time"

	"github.com/raidforge/combatlog/internal/clock"
	"github.com/raidforge/combatlog/internal/defs"
	"github.com/raidforge/combatlog/internal/intern"
	"github.com/raidforge/combatlog/internal/logline"
	"github.com/raidforge/combatlog/internal/signal"
	"github.com/raidforge/combatlog/internal/trigger"
)

// fadeWindow is how long a removed (non-cooldown) effect lingers, opacity
// ramping to zero, before deletion (§3.7).
const fadeWindow = 2 * time.Second

// Key identifies one active effect: its definition plus the target it is
// applied to.
type Key struct {
	DefID          string
	TargetEntityID logline.EntityID
}

// ActiveEffect is a live record of one tracked buff/debuff/HOT/DOT/shield.
type ActiveEffect struct {
	Def    *defs.EffectDefinition
	Source logline.EntityID
	Target logline.EntityID
	Clock  clock.Dual

	HasExpiry    bool
	DurationSecs float64 // alacrity-scaled effective duration, when HasExpiry

	Stacks int

	removedAt time.Time // zero means still live
}

// Live reports whether the effect has not yet been marked removed.
func (a *ActiveEffect) Live() bool { return a.removedAt.IsZero() }

// RemainingGame returns the game-time-clock remaining duration. Effects with
// no duration (HasExpiry == false) never expire on their own and always
// report a positive sentinel so callers don't mistake them for expired.
func (a *ActiveEffect) RemainingGame(gameNow time.Time) time.Duration {
	if !a.HasExpiry {
		return time.Hour
	}
	total := time.Duration(a.DurationSecs * float64(time.Second))
	rem := total - a.Clock.GameElapsed(gameNow)
	if rem < 0 {
		return 0
	}
	return rem
}

// Opacity is 1.0 while live, then decreases monotonically to 0 across
// fadeWindow once removed — the invariant §8.1 requires of every ActiveEffect.
func (a *ActiveEffect) Opacity(processNow time.Time) float64 {
	if a.Live() {
		return 1.0
	}
	elapsed := processNow.Sub(a.removedAt)
	if elapsed <= 0 {
		return 1.0
	}
	frac := 1.0 - elapsed.Seconds()/fadeWindow.Seconds()
	if frac < 0 {
		return 0
	}
	return frac
}

func (a *ActiveEffect) markRemoved(at time.Time) {
	if a.removedAt.IsZero() {
		a.removedAt = at
	}
}

// refresh restarts the clock and, when the definition is alacrity-affected,
// rescales the effective duration by the supplied scalar.
func (a *ActiveEffect) refresh(eventTimestamp, now time.Time, alacrity float64) {
	a.Clock.Restart(eventTimestamp, now)
	a.removedAt = time.Time{}
	if a.Def.DurationSecs > 0 {
		a.HasExpiry = true
		a.DurationSecs = effectiveDuration(a.Def, alacrity)
	}
}

// effectiveDuration applies the alacrity formula from §4.9: base duration
// divided by (1 + alacrity/100) when the definition opts in.
func effectiveDuration(d *defs.EffectDefinition, alacrity float64) float64 {
	if d.IsAffectedByAlacrity && alacrity != 0 {
		return d.DurationSecs / (1 + alacrity/100)
	}
	return d.DurationSecs
}

// Manager owns the active-effect store for one session.
type Manager struct {
	mu     sync.Mutex
	defs   []defs.EffectDefinition
	active map[Key]*ActiveEffect
}

// NewManager creates an empty effect tracker.
func NewManager() *Manager {
	return &Manager{active: make(map[Key]*ActiveEffect)}
}

// LoadDefinitions replaces the effect definition set for the bound boss/area.
func (m *Manager) LoadDefinitions(ds []defs.EffectDefinition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defs = ds
}

// EvaluateEvent matches one combat event against every effect definition's
// trigger and applies the apply/remove/refresh/charge-modify rules of §4.9.
// alacrity is the caller-supplied scalar used to scale alacrity-affected
// durations (0 when unknown/not applicable).
func (m *Manager) EvaluateEvent(ev *logline.CombatEvent, currentSignals []signal.Signal, now time.Time, alacrity float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev.Effect.TypeID {
	case logline.EffectTypeApplyEffect:
		m.evaluateApply(ev, now, alacrity)
	case logline.EffectTypeRemoveEffect:
		m.evaluateRemove(ev, currentSignals, now)
	}

	if ev.Details.HasCharges {
		m.evaluateModifyCharges(ev, now, alacrity)
	}
}

func (m *Manager) evaluateApply(ev *logline.CombatEvent, now time.Time, alacrity float64) {
	ctx := trigger.Context{Event: ev}
	for i := range m.defs {
		d := &m.defs[i]
		if !trigger.Matches(d.Trigger, ctx) {
			continue
		}
		key := Key{DefID: d.ID, TargetEntityID: ev.Target.EntityID}
		if existing, ok := m.active[key]; ok {
			existing.refresh(ev.Timestamp, now, alacrity)
			continue
		}
		ae := &ActiveEffect{
			Def:    d,
			Source: ev.Source.EntityID,
			Target: ev.Target.EntityID,
			Clock:  clock.NewDual(ev.Timestamp, now),
			Stacks: 1,
		}
		if d.DurationSecs > 0 {
			ae.HasExpiry = true
			ae.DurationSecs = effectiveDuration(d, alacrity)
		}
		m.active[key] = ae
	}
}

// evaluateRemove resolves a REMOVEEFFECT event against every live effect
// whose definition names the removed effect. A definition's Trigger is the
// condition that creates the instance (almost always TriggerEffectApplied),
// so running it through trigger.Matches against a removal event would never
// succeed; instead this matches directly on the definition's effect
// selector, which is exactly the identity a removal event and its creating
// apply event share. Cooldown-style definitions (display_target =
// Cooldowns) and any definition with IgnoreEffectRemoved set ignore game
// removal entirely — only duration expiry (Tick) ends them. A definition
// with RefreshAbilities may instead refresh if this tick's signal batch
// carries a matching AbilityActivated, modeling "the removal was really a
// recast" rather than a true end.
func (m *Manager) evaluateRemove(ev *logline.CombatEvent, currentSignals []signal.Signal, now time.Time) {
	effectName := intern.Resolve(ev.Effect.EffectName)
	targetName := intern.Resolve(ev.Target.Name)
	for i := range m.defs {
		d := &m.defs[i]
		if !defs.MatchesAnyEffect(d.Trigger.Effects, int64(ev.Effect.EffectID), effectName) {
			continue
		}
		if !d.Trigger.Target.IsEmpty() &&
			!d.Trigger.Target.MatchesNPCID(int64(ev.Target.ClassID)) &&
			!d.Trigger.Target.MatchesName(targetName) {
			continue
		}
		key := Key{DefID: d.ID, TargetEntityID: ev.Target.EntityID}
		ae, ok := m.active[key]
		if !ok || !ae.Live() {
			continue
		}
		if d.IgnoreEffectRemoved || d.DisplayTarget == defs.DisplayCooldowns {
			continue
		}
		if len(d.RefreshAbilities) > 0 && recastedThisTick(d.RefreshAbilities, currentSignals) {
			ae.refresh(ev.Timestamp, now, 0)
			continue
		}
		ae.markRemoved(ev.Timestamp)
	}
}

func recastedThisTick(abilities []defs.AbilitySelector, currentSignals []signal.Signal) bool {
	for _, s := range currentSignals {
		if s.Kind != signal.KindAbilityActivated {
			continue
		}
		if defs.MatchesAnyAbility(abilities, int64(s.AbilityID), s.Name) {
			return true
		}
	}
	return false
}

// evaluateModifyCharges refreshes any definition opted into
// IsRefreshedOnModify whose trigger matches this charge-modification event.
func (m *Manager) evaluateModifyCharges(ev *logline.CombatEvent, now time.Time, alacrity float64) {
	ctx := trigger.Context{Event: ev}
	for i := range m.defs {
		d := &m.defs[i]
		if !d.IsRefreshedOnModify {
			continue
		}
		if !trigger.Matches(d.Trigger, ctx) {
			continue
		}
		key := Key{DefID: d.ID, TargetEntityID: ev.Target.EntityID}
		if ae, ok := m.active[key]; ok && ae.Live() {
			ae.refresh(ev.Timestamp, now, alacrity)
		}
	}
}

// Tick advances every active effect against the game clock gameNow: expired
// durations are marked removed, and anything removed longer than fadeWindow
// (or, for cooldown-style definitions, CooldownReadyGraceMs) is deleted.
func (m *Manager) Tick(gameNow, processNow time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, ae := range m.active {
		if ae.Live() && ae.HasExpiry && ae.RemainingGame(gameNow) <= 0 {
			ae.markRemoved(gameNow)
		}
		if ae.Live() {
			continue
		}
		grace := fadeWindow
		if ae.Def.DisplayTarget == defs.DisplayCooldowns {
			grace = time.Duration(ae.Def.CooldownReadyGraceMs) * time.Millisecond
		}
		if processNow.Sub(ae.removedAt) >= grace {
			delete(m.active, key)
		}
	}
}

// ActiveCount returns the number of currently tracked effects (live or
// fading).
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Shutdown clears all tracked effects, e.g. on area change.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = make(map[Key]*ActiveEffect)
}

// ActiveEffectView is a read-only projection of one tracked effect for
// display (§6.3).
type ActiveEffectView struct {
	DefID          string
	Name           string
	TargetEntityID logline.EntityID
	RemainingSecs  float64
	Stacks         int
	Opacity        float64
	Color          string
	IconAbilityID  int64
	FillPercent    float64
	Category       defs.EffectCategory
	DisplayTarget  defs.DisplayTarget
}

// Filter narrows ActiveEffects to a single target; TargetEntityID == 0 means
// "every target".
type Filter struct {
	TargetEntityID logline.EntityID
}

// ActiveEffects lists every tracked effect (live or still fading) matching
// filter, gated by each definition's ShowAtSecs visibility threshold exactly
// as internal/timers gates ActiveTimers — hidden until remaining crosses the
// threshold.
func (m *Manager) ActiveEffects(gameNow, processNow time.Time, filter Filter) []ActiveEffectView {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ActiveEffectView, 0, len(m.active))
	for _, ae := range m.active {
		if filter.TargetEntityID != 0 && ae.Target != filter.TargetEntityID {
			continue
		}
		remaining := ae.RemainingGame(gameNow).Seconds()
		if ae.Def.ShowAtSecs > 0 && remaining > ae.Def.ShowAtSecs {
			continue
		}
		fill := 0.0
		if ae.HasExpiry && ae.DurationSecs > 0 {
			fill = remaining / ae.DurationSecs * 100
		}
		out = append(out, ActiveEffectView{
			DefID:          ae.Def.ID,
			Name:           ae.Def.ID,
			TargetEntityID: ae.Target,
			RemainingSecs:  remaining,
			Stacks:         ae.Stacks,
			Opacity:        ae.Opacity(processNow),
			Color:          ae.Def.Color,
			IconAbilityID:  ae.Def.IconAbility.ID,
			FillPercent:    fill,
			Category:       ae.Def.Category,
			DisplayTarget:  ae.Def.DisplayTarget,
		})
	}
	return out
}
