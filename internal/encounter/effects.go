package encounter

import (
	"github.com/raidforge/combatlog/internal/logline"
)

// ShieldEffectIDs is the compile-time set of effect ids recognised as
// absorb-shield sources. Configured once at process start from the loaded
// definition set (definitions may name any effect id as a shield).
var ShieldEffectIDs = map[logline.EffectID]struct{}{}

// SetShieldEffectIDs replaces the recognised shield-effect-id set.
func SetShieldEffectIDs(ids []logline.EffectID) {
	m := make(map[logline.EffectID]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	ShieldEffectIDs = m
}

func isShieldEffect(id logline.EffectID) bool {
	_, ok := ShieldEffectIDs[id]
	return ok
}

// ApplyEffect appends a new EffectInstance for an APPLYEFFECT event.
func (e *Encounter) ApplyEffect(ev *logline.CombatEvent) {
	inst := &EffectInstance{
		EffectID:  ev.Effect.EffectID,
		SourceID:  ev.Source.EntityID,
		TargetID:  ev.Target.EntityID,
		AppliedAt: ev.Timestamp,
		IsShield:  isShieldEffect(ev.Effect.EffectID),
	}
	e.EffectInstances[ev.Target.EntityID] = append(e.EffectInstances[ev.Target.EntityID], inst)
}

// RemoveEffect resolves the most recent still-live matching instance for a
// REMOVEEFFECT event (searched newest-first, matching the original's
// reverse scan), and if it was a shield, resolves any pending absorptions
// waiting on it.
func (e *Encounter) RemoveEffect(ev *logline.CombatEvent) {
	instances := e.EffectInstances[ev.Target.EntityID]
	var removedShield *EffectInstance

	for i := len(instances) - 1; i >= 0; i-- {
		inst := instances[i]
		if inst.EffectID == ev.Effect.EffectID && inst.SourceID == ev.Source.EntityID && inst.RemovedAt.IsZero() {
			inst.RemovedAt = ev.Timestamp
			if inst.IsShield {
				removedShield = inst
			}
			break
		}
	}

	if removedShield != nil {
		e.resolvePendingAbsorptions(ev.Target.EntityID, removedShield)
	}
}

// attributeShieldAbsorption credits a damage event's DmgAbsorbed to the
// earliest not-yet-credited shield on the target (FIFO), applied at or before
// the event and either not removed or removed no more than ShieldGraceWindow
// before the event (the 750ms grace heuristic). If no such shield is found,
// the absorption is queued as pending; resolvePendingAbsorptions credits it
// when a shield on the target that was applied at or before it is later
// removed.
func (e *Encounter) attributeShieldAbsorption(ev *logline.CombatEvent) {
	targetID := ev.Target.EntityID
	instances := e.EffectInstances[targetID]

	for _, inst := range instances {
		if !inst.IsShield || inst.HasAbsorbed {
			continue
		}
		if inst.AppliedAt.After(ev.Timestamp) {
			continue
		}
		if !inst.RemovedAt.IsZero() {
			graceDeadline := inst.RemovedAt.Add(e.ShieldGraceWindow)
			if ev.Timestamp.After(graceDeadline) {
				continue
			}
		}
		inst.HasAbsorbed = true
		e.accumulator(inst.SourceID).ShieldingGiven += ev.Details.DmgAbsorbed
		return
	}

	e.PendingAbsorptions[targetID] = append(e.PendingAbsorptions[targetID], PendingAbsorption{
		SourceID:  ev.Source.EntityID,
		TargetID:  targetID,
		Amount:    ev.Details.DmgAbsorbed,
		Timestamp: ev.Timestamp,
	})
}

// resolvePendingAbsorptions attributes any absorptions queued for targetID
// that the just-removed shield covers, to that shield's source entity.
func (e *Encounter) resolvePendingAbsorptions(targetID logline.EntityID, shield *EffectInstance) {
	pending := e.PendingAbsorptions[targetID]
	if len(pending) == 0 {
		return
	}
	var remaining []PendingAbsorption
	for _, p := range pending {
		graceDeadline := shield.RemovedAt.Add(e.ShieldGraceWindow)
		if !shield.AppliedAt.After(p.Timestamp) && !p.Timestamp.After(graceDeadline) {
			e.accumulator(shield.SourceID).ShieldingGiven += p.Amount
			shield.HasAbsorbed = true
			continue
		}
		remaining = append(remaining, p)
	}
	e.PendingAbsorptions[targetID] = remaining
}

// FlushPendingAbsorptions is called on combat end: any absorption still
// unresolved is discarded (its shield never reported removal in time).
func (e *Encounter) FlushPendingAbsorptions() {
	for k := range e.PendingAbsorptions {
		delete(e.PendingAbsorptions, k)
	}
}
