package encounter

import (
	"time"

	"github.com/raidforge/combatlog/internal/logline"
)

// TrackEventEntities registers an event's source and target into Players /
// NPCs, ignoring TARGETSET/TARGETCLEARED (which merely reflect intent), and
// refreshes NPC HP from whatever the event reports.
func (e *Encounter) TrackEventEntities(ev *logline.CombatEvent) {
	if ev.Effect.TypeID == targetSetTypeID || ev.Effect.TypeID == targetClearedTypeID {
		return
	}
	e.tryTrackEntity(ev.Source, ev.Timestamp)
	e.tryTrackEntity(ev.Target, ev.Timestamp)
	e.updateNPCHealth(ev.Source)
	e.updateNPCHealth(ev.Target)
}

// Sentinel type ids for the intent-only signals that must not register
// entities. These are distinct from the lifecycle effect ids in logline and
// are resolved by the caller's definition set in a full integration; the
// negative values here are placeholders that stay in effect until a caller
// wires real ids via SetIntentTypeIDs.
var targetSetTypeID int64 = -101
var targetClearedTypeID int64 = -102

// SetIntentTypeIDs configures the TARGETSET/TARGETCLEARED type ids recognised
// by TrackEventEntities, so the guard can be grounded on whatever numeric ids
// a given log source actually uses.
func SetIntentTypeIDs(targetSet, targetCleared int64) {
	targetSetTypeID = targetSet
	targetClearedTypeID = targetCleared
}

func (e *Encounter) updateNPCHealth(ent logline.Entity) {
	if npc, ok := e.NPCs[ent.EntityID]; ok {
		npc.HPCur = ent.HPCur
		npc.HPMax = ent.HPMax
		e.HPByEntity[ent.EntityID] = [2]int64{ent.HPCur, ent.HPMax}
		if ent.ClassID != 0 {
			e.HPByNPCID[ent.ClassID] = [2]int64{ent.HPCur, ent.HPMax}
		}
		e.HPByName[npc.Name] = [2]int64{ent.HPCur, ent.HPMax}
	}
}

func (e *Encounter) tryTrackEntity(ent logline.Entity, timestamp time.Time) {
	switch ent.Kind {
	case logline.EntityPlayer:
		if _, ok := e.Players[ent.EntityID]; !ok {
			e.Players[ent.EntityID] = &PlayerEntry{}
		}
	case logline.EntityNPC, logline.EntityCompanion:
		if _, ok := e.NPCs[ent.EntityID]; !ok {
			e.NPCs[ent.EntityID] = &NPCEntry{
				ClassID:   ent.ClassID,
				FirstSeen: timestamp,
				HPCur:     ent.HPCur,
				HPMax:     ent.HPMax,
			}
		}
	}
}

// SetEntityDeath marks entityID dead at timestamp.
func (e *Encounter) SetEntityDeath(entityID logline.EntityID, kind logline.EntityKind, timestamp time.Time) {
	switch kind {
	case logline.EntityPlayer:
		if p, ok := e.Players[entityID]; ok {
			p.Dead = true
			p.DeathTime = timestamp
		}
	case logline.EntityNPC, logline.EntityCompanion:
		if n, ok := e.NPCs[entityID]; ok {
			n.Dead = true
			n.DeathTime = timestamp
		}
	}
}

// SetEntityAlive clears a dead flag (used on EntityRevived).
func (e *Encounter) SetEntityAlive(entityID logline.EntityID, kind logline.EntityKind) {
	switch kind {
	case logline.EntityPlayer:
		if p, ok := e.Players[entityID]; ok {
			p.Dead = false
			p.DeathTime = time.Time{}
		}
	case logline.EntityNPC, logline.EntityCompanion:
		if n, ok := e.NPCs[entityID]; ok {
			n.Dead = false
			n.DeathTime = time.Time{}
		}
	}
}

// CheckAllPlayersDead recomputes AllPlayersDead. A roster with zero players
// never satisfies "all dead" — preserving the original's intentional
// behavior that NPC-only combat does not end by death (see DESIGN.md).
func (e *Encounter) CheckAllPlayersDead() {
	if len(e.Players) == 0 {
		e.AllPlayersDead = false
		return
	}
	for _, p := range e.Players {
		if !p.Dead {
			e.AllPlayersDead = false
			return
		}
	}
	e.AllPlayersDead = true
}

// DurationSeconds returns the encounter's elapsed combat time, resolving a
// midnight wrap by adding 24h if the raw difference is negative. Returns
// (0, false) if combat has not yet started.
func (e *Encounter) DurationSeconds(now time.Time) (int64, bool) {
	if e.EnterTime.IsZero() {
		return 0, false
	}
	terminal := now
	if !e.ExitTime.IsZero() {
		terminal = e.ExitTime
	}
	d := terminal.Sub(e.EnterTime)
	if d < 0 {
		d += 24 * time.Hour
	}
	return int64(d.Seconds()), true
}

func (e *Encounter) accumulator(id logline.EntityID) *MetricAccumulator {
	acc, ok := e.Accumulators[id]
	if !ok {
		acc = &MetricAccumulator{}
		e.Accumulators[id] = acc
	}
	return acc
}
