// Package timers implements the active-timer store (component I): per-signal
// trigger matching starts and cancels timers, and a host-driven Tick computes
// expiry, chaining, repeats, and the alert/countdown audio windows.
//
// Structurally grounded on the teacher's internal/game/quest.TimerManager
// (map-keyed store behind a mutex, StartTimer/CancelTimer/ActiveCount/
// Shutdown method set), generalized from quest-timer semantics (one
// goroutine sleeping per timer, woken by context cancellation) to
// combat-timer semantics: there is no real-time sleep here, since expiry must
// follow the lag-compensated game clock rather than wall-clock delay, so the
// goroutine-per-timer design is replaced by an explicit Tick(now) poll that
// the host calls at 10-60 Hz (see internal/clock).
package timers

import (
	"sync"
	"time"

	"github.com/raidforge/combatlog/internal/clock"
	"github.com/raidforge/combatlog/internal/defs"
	"github.com/raidforge/combatlog/internal/logline"
	"github.com/raidforge/combatlog/internal/signal"
	"github.com/raidforge/combatlog/internal/trigger"
)

// Key identifies one active timer: its definition plus the entity it is
// scoped to, if any (0 for boss-wide/standalone timers).
type Key struct {
	DefID          string
	TargetEntityID logline.EntityID
}

// AudioIntentKind discriminates the audio cue windows Tick computes.
type AudioIntentKind int

const (
	AudioCountdownTick AudioIntentKind = iota
	AudioOffsetCue
	AudioExpirationCue
)

// AudioIntent is one audio cue a renderer should fire; purely a computed
// intent, this package does not play sound itself.
type AudioIntent struct {
	Kind     AudioIntentKind
	TimerID  string
	TargetID logline.EntityID
	Second   int // for AudioCountdownTick, which integer second this is
}

// ActiveTimer is a running countdown bound to one TimerDefinition.
type ActiveTimer struct {
	Def    *defs.TimerDefinition
	Target logline.EntityID
	Clock  clock.Dual

	RepeatCount int

	alertFired      bool
	offsetFired     bool
	expirationFired bool
	countdownFired  map[int]struct{}
}

// RemainingGame returns the game-time-clock remaining duration, floored at 0.
func (t *ActiveTimer) RemainingGame(gameNow time.Time) time.Duration {
	total := time.Duration(t.Def.DurationSecs * float64(time.Second))
	rem := total - t.Clock.GameElapsed(gameNow)
	if rem < 0 {
		return 0
	}
	return rem
}

// Manager owns the active-timer store for one session.
type Manager struct {
	mu     sync.Mutex
	defs   []defs.TimerDefinition
	byID   map[string]*defs.TimerDefinition
	active map[Key]*ActiveTimer

	// ScopeState is read on every evaluation to decide whether a timer
	// definition's scope accepts the current encounter; set by the caller
	// (normally the processor) before each EvaluateStart/EvaluateCancel call.
	ScopeState ScopeState
}

// ScopeState carries the subset of encounter/session state a timer's scope
// fields are checked against.
type ScopeState struct {
	AreaID       int64
	BossID       string
	Difficulty   string
	CurrentPhase string
	Counters     map[string]uint32
}

// NewManager creates an empty timer manager.
func NewManager() *Manager {
	return &Manager{
		byID:   make(map[string]*defs.TimerDefinition),
		active: make(map[Key]*ActiveTimer),
	}
}

// LoadDefinitions replaces the timer definition set (boss-scoped + standalone
// combined) and rebuilds the chains-to lookup index.
func (m *Manager) LoadDefinitions(ds []defs.TimerDefinition) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.defs = ds
	m.byID = make(map[string]*defs.TimerDefinition, len(ds))
	for i := range ds {
		m.byID[ds[i].ID] = &ds[i]
	}
}

// inScope does not check d.Difficulties: no difficulty is tracked anywhere
// in session/encounter state yet, so a timer with difficulties set is
// currently scoped as if that field were absent (see DESIGN.md).
func (m *Manager) inScope(d *defs.TimerDefinition) bool {
	if len(d.AreaIDs) > 0 {
		found := false
		for _, id := range d.AreaIDs {
			if id == m.ScopeState.AreaID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if d.Boss != "" && d.Boss != m.ScopeState.BossID {
		return false
	}
	if len(d.Phases) > 0 {
		found := false
		for _, p := range d.Phases {
			if p == m.ScopeState.CurrentPhase {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if d.CounterCondition != nil && d.CounterCondition.Kind == defs.TriggerCounterReaches {
		if m.ScopeState.Counters[d.CounterCondition.CounterID] != d.CounterCondition.Value {
			return false
		}
	}
	return true
}

// EvaluateStart checks every definition's trigger against ctx and the current
// ScopeState, starting (or restarting) a matching timer and returning the
// TimerStarted signals produced.
func (m *Manager) EvaluateStart(ctx trigger.Context, targetID logline.EntityID, now time.Time) []signal.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []signal.Signal
	for i := range m.defs {
		d := &m.defs[i]
		if !m.inScope(d) {
			continue
		}
		if !trigger.Matches(d.Trigger, ctx) {
			continue
		}
		gameNow := now
		if ctx.Event != nil {
			gameNow = ctx.Event.Timestamp
		}
		out = append(out, m.start(d, targetID, gameNow, now))
	}
	return out
}

func (m *Manager) start(d *defs.TimerDefinition, targetID logline.EntityID, gameNow, processNow time.Time) signal.Signal {
	key := Key{DefID: d.ID, TargetEntityID: targetID}
	m.active[key] = &ActiveTimer{
		Def:            d,
		Target:         targetID,
		Clock:          clock.NewDual(gameNow, processNow),
		countdownFired: make(map[int]struct{}),
	}
	return signal.Signal{Kind: signal.KindTimerStarted, Timestamp: gameNow, TimerID: d.ID, EntityID: targetID}
}

// EvaluateCancel checks every active timer's cancel_trigger against ctx and
// removes matches. Reports how many were cancelled.
func (m *Manager) EvaluateCancel(ctx trigger.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for key, t := range m.active {
		if t.Def.CancelTrigger == nil {
			continue
		}
		if trigger.Matches(*t.Def.CancelTrigger, ctx) {
			delete(m.active, key)
			n++
		}
	}
	return n
}

// Tick advances every active timer against the game clock gameNow, firing
// TimerExpires on expiry (chaining or repeating as configured), and computes
// the audio intents due this tick. gameNow should be the most recently
// observed event timestamp, since expiry must follow game time, not wall
// time (see internal/clock).
func (m *Manager) Tick(gameNow, processNow time.Time) ([]signal.Signal, []AudioIntent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var signals []signal.Signal
	var audio []AudioIntent

	for key, t := range m.active {
		remaining := t.RemainingGame(gameNow)

		if t.Def.AlertAtSecs > 0 && !t.alertFired {
			if remaining.Seconds() <= t.Def.AlertAtSecs {
				t.alertFired = true
			}
		}

		if t.Def.AudioOffsetSecs > 0 && !t.offsetFired {
			if remaining.Seconds() <= t.Def.AudioOffsetSecs {
				t.offsetFired = true
				audio = append(audio, AudioIntent{Kind: AudioOffsetCue, TimerID: t.Def.ID, TargetID: t.Target})
			}
		}

		if t.Def.CountdownStart > 0 {
			for sec := 1; sec <= t.Def.CountdownStart; sec++ {
				if _, fired := t.countdownFired[sec]; fired {
					continue
				}
				lo := float64(sec)
				hi := lo + 0.3
				rem := remaining.Seconds()
				if rem >= lo && rem < hi {
					t.countdownFired[sec] = struct{}{}
					audio = append(audio, AudioIntent{Kind: AudioCountdownTick, TimerID: t.Def.ID, TargetID: t.Target, Second: sec})
				}
			}
		}

		if remaining > 0 {
			continue
		}

		if !t.expirationFired {
			t.expirationFired = true
			audio = append(audio, AudioIntent{Kind: AudioExpirationCue, TimerID: t.Def.ID, TargetID: t.Target})
		}
		signals = append(signals, signal.Signal{Kind: signal.KindTimerExpires, Timestamp: gameNow, TimerID: t.Def.ID, EntityID: t.Target})

		delete(m.active, key)

		if t.Def.ChainsTo != "" {
			if next, ok := m.byID[t.Def.ChainsTo]; ok {
				sig := m.start(next, t.Target, gameNow, processNow)
				signals = append(signals, sig)
			}
			continue
		}

		if t.RepeatCount < t.Def.MaxRepeats {
			t.RepeatCount++
			t.Clock.Restart(gameNow, processNow)
			t.alertFired = false
			t.offsetFired = false
			t.expirationFired = false
			t.countdownFired = make(map[int]struct{})
			m.active[key] = t
			signals = append(signals, signal.Signal{Kind: signal.KindTimerStarted, Timestamp: gameNow, TimerID: t.Def.ID, EntityID: t.Target})
		}
	}

	return signals, audio
}

// ActiveCount returns the number of currently running timers.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Shutdown clears all active timers without emitting signals.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = make(map[Key]*ActiveTimer)
}

// ActiveTimerView is a read-only projection of one running timer for display.
type ActiveTimerView struct {
	ID               string
	Name             string
	TargetEntityID   logline.EntityID
	RemainingSecs    float64
	FillPercent      float64
	Color            string
	ShowOnRaidFrames bool
}

// ActiveTimers lists every running timer visible at gameNow (i.e. past its
// ShowAtSecs gate), for UI consumption.
func (m *Manager) ActiveTimers(gameNow time.Time) []ActiveTimerView {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ActiveTimerView, 0, len(m.active))
	for _, t := range m.active {
		remaining := t.RemainingGame(gameNow).Seconds()
		if t.Def.ShowAtSecs > 0 && remaining > t.Def.ShowAtSecs {
			continue
		}
		total := t.Def.DurationSecs
		fill := 0.0
		if total > 0 {
			fill = remaining / total * 100
		}
		out = append(out, ActiveTimerView{
			ID:               t.Def.ID,
			Name:             t.Def.Name,
			TargetEntityID:   t.Target,
			RemainingSecs:    remaining,
			FillPercent:      fill,
			Color:            t.Def.Color,
			ShowOnRaidFrames: t.Def.ShowOnRaidFrames,
		})
	}
	return out
}
