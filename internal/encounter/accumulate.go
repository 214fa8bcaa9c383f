package encounter

import (
	"sort"
	"time"

	"github.com/raidforge/combatlog/internal/logline"
)

// BossClassIDs is the set of NPC class ids considered boss damage sinks for
// the purpose of the DamageDealtBoss bucket. Populated from the active
// BossEncounterDefinition's entity roster when a boss is bound.
var BossClassIDs = map[logline.ClassID]struct{}{}

// SetBossClassIDs replaces the boss-damage-bucket class id set.
func SetBossClassIDs(ids []logline.ClassID) {
	m := make(map[logline.ClassID]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	BossClassIDs = m
}

func isBossClass(id logline.ClassID) bool {
	_, ok := BossClassIDs[id]
	return ok
}

// AccumulateData folds one combat event's damage/heal/threat/action figures
// into the source and target accumulators. Must run after TrackEventEntities
// so both sides already have an accumulator slot, and after ApplyEffect/
// RemoveEffect so shield state is current for absorption attribution.
func (e *Encounter) AccumulateData(ev *logline.CombatEvent) {
	e.accumulateSource(ev)
	e.accumulateTarget(ev)
	e.accumulateActions(ev)
}

func (e *Encounter) accumulateSource(ev *logline.CombatEvent) {
	d := ev.Details
	switch ev.Effect.EffectID {
	case logline.EffectIDDamage:
		acc := e.accumulator(ev.Source.EntityID)
		acc.DamageDealt += d.DmgAmount
		acc.DamageDealtEffective += d.DmgEffective
		acc.DamageHitCount++
		if d.IsCrit {
			acc.DamageCritCount++
		}
		if isBossClass(ev.Target.ClassID) {
			acc.DamageDealtBoss += d.DmgEffective
		}
		if d.DmgAbsorbed > 0 {
			e.attributeShieldAbsorption(ev)
		}
	case logline.EffectIDHeal:
		acc := e.accumulator(ev.Source.EntityID)
		acc.HealingDone += d.HealAmount
		acc.HealingEffective += d.HealEffective
		acc.HealCount++
		if d.IsCrit {
			acc.HealCritCount++
		}
	}

	if d.Threat != 0 {
		e.accumulator(ev.Source.EntityID).ThreatGenerated += d.Threat
	}
}

func (e *Encounter) accumulateTarget(ev *logline.CombatEvent) {
	d := ev.Details
	switch ev.Effect.EffectID {
	case logline.EffectIDDamage:
		acc := e.accumulator(ev.Target.EntityID)
		acc.DamageReceived += d.DmgAmount
		acc.DamageReceivedEffective += d.DmgEffective
		acc.DamageAbsorbed += d.DmgAbsorbed
		acc.AttacksReceived++

		switch e.Table.Resolve(d.AvoidType) {
		case logline.AvoidDodge, logline.AvoidParry, logline.AvoidResist, logline.AvoidDeflect:
			acc.DefenseCount++
		case logline.AvoidShield:
			acc.ShieldRollCount++
			acc.ShieldRollAbsorbed += d.DmgAbsorbed
		}
	case logline.EffectIDHeal:
		acc := e.accumulator(ev.Target.EntityID)
		acc.HealingReceived += d.HealAmount
		acc.HealingReceivedEffective += d.HealEffective
	}
}

func (e *Encounter) accumulateActions(ev *logline.CombatEvent) {
	if e.EnterTime.IsZero() {
		return
	}
	windowEnd := e.ExitTime
	if windowEnd.IsZero() {
		windowEnd = ev.Timestamp
	}
	if ev.Timestamp.Before(e.EnterTime) || ev.Timestamp.After(windowEnd) {
		return
	}
	if ev.Action.Name == 0 {
		return
	}
	e.accumulator(ev.Source.EntityID).Actions++
}

// CalculateEntityMetrics derives per-entity display metrics from the raw
// accumulators, dividing by elapsed combat duration. Entities are returned
// sorted by DPS, descending. Guarded against division by zero when duration
// is not yet positive: a one-second duration is used instead, so each rate
// equals its raw total rather than the entity being skipped.
func (e *Encounter) CalculateEntityMetrics(now time.Time) []EntityMetrics {
	durationSecs, ok := e.DurationSeconds(now)
	if !ok || durationSecs <= 0 {
		durationSecs = 1
	}

	out := make([]EntityMetrics, 0, len(e.Accumulators))
	for id, acc := range e.Accumulators {
		m := EntityMetrics{
			EntityID:                  id,
			Name:                      e.nameOf(id),
			TotalDamage:               acc.DamageDealt,
			TotalDamageBoss:           acc.DamageDealtBoss,
			TotalDamageEffective:      acc.DamageDealtEffective,
			DPS:                       acc.DamageDealt / durationSecs,
			EDPS:                      acc.DamageDealtEffective / durationSecs,
			BossDPS:                   acc.DamageDealtBoss / durationSecs,
			TotalHealing:              acc.HealingDone,
			TotalHealingEffective:     acc.HealingEffective,
			HPS:                       acc.HealingDone / durationSecs,
			EHPS:                      acc.HealingEffective / durationSecs,
			TotalShielding:            acc.ShieldingGiven,
			TotalDamageTaken:          acc.DamageReceived,
			TotalDamageTakenEffective: acc.DamageReceivedEffective,
			DTPS:                      acc.DamageReceived / durationSecs,
			EDTPS:                     acc.DamageReceivedEffective / durationSecs,
			HTPS:                      acc.HealingReceived / durationSecs,
			EHTPS:                     acc.HealingReceivedEffective / durationSecs,
			TotalShieldAbsorbed:       acc.DamageAbsorbed,
			TauntCount:                acc.TauntCount,
			TPS:                       int64(acc.ThreatGenerated) / durationSecs,
			TotalThreat:               int64(acc.ThreatGenerated),
		}

		if acc.DamageHitCount > 0 {
			m.DamageCritPct = float64(acc.DamageCritCount) / float64(acc.DamageHitCount) * 100
		}
		if acc.HealCount > 0 {
			m.HealCritPct = float64(acc.HealCritCount) / float64(acc.HealCount) * 100
		}
		if acc.HealingDone > 0 {
			m.EffectiveHealPct = float64(acc.HealingEffective) / float64(acc.HealingDone) * 100
		}
		if acc.AttacksReceived > 0 {
			m.DefensePct = float64(acc.DefenseCount) / float64(acc.AttacksReceived) * 100
		}
		if acc.ShieldRollCount > 0 {
			m.ShieldPct = float64(acc.ShieldRollCount) / float64(acc.AttacksReceived) * 100
		}
		if durationSecs > 0 {
			m.APM = float64(acc.Actions) / (float64(durationSecs) / 60.0)
		}

		out = append(out, m)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].DPS > out[j].DPS })
	return out
}

// RecordTaunt increments a source entity's taunt counter. Taunt-ability
// recognition is a definition-level concern (an AbilitySelector match against
// the event's action), so the processor calls this rather than AccumulateData
// inferring it from raw event shape.
func (e *Encounter) RecordTaunt(sourceID logline.EntityID) {
	e.accumulator(sourceID).TauntCount++
}

func (e *Encounter) nameOf(id logline.EntityID) string {
	if p, ok := e.Players[id]; ok {
		return p.Name
	}
	if n, ok := e.NPCs[id]; ok {
		return n.Name
	}
	return ""
}
