// Package logline converts raw combat log lines into typed CombatEvent values
// (component B).
package logline

import (
	"time"

	"github.com/raidforge/combatlog/internal/intern"
)

// LineNumber is a monotonic position in the source file.
type LineNumber uint64

// EntityID is a 64-bit game-assigned identifier for a runtime entity instance.
type EntityID int64

// ClassID is a 64-bit game template/class identifier. 0 for players.
type ClassID int64

// AbilityID is a 64-bit game ability identifier.
type AbilityID int64

// EffectID is a 64-bit game effect identifier.
type EffectID int64

// EntityKind distinguishes the five entity-syntax cases in the log grammar.
type EntityKind int

const (
	EntityEmpty EntityKind = iota
	EntityPlayer
	EntityNPC
	EntityCompanion
	EntitySelfReference
)

func (k EntityKind) String() string {
	switch k {
	case EntityPlayer:
		return "player"
	case EntityNPC:
		return "npc"
	case EntityCompanion:
		return "companion"
	case EntitySelfReference:
		return "self"
	default:
		return "empty"
	}
}

// Entity identifies the source or target of a combat event.
type Entity struct {
	Kind     EntityKind
	Name     intern.IStr
	EntityID EntityID
	ClassID  ClassID
	HPCur    int64
	HPMax    int64
}

// IsEmpty reports whether this entity slot was absent on the log line.
func (e Entity) IsEmpty() bool { return e.Kind == EntityEmpty }

// Effect identifies the combat-log effect family applied by an event.
type Effect struct {
	EffectID   EffectID
	TypeID     int64
	EffectName intern.IStr
}

// Action identifies the ability/action that produced an event, if any.
type Action struct {
	ActionID AbilityID
	Name     intern.IStr
}

// Details holds the numeric payload of an event, dispatched by (EffectID, TypeID).
type Details struct {
	DmgAmount     int64
	DmgEffective  int64
	DmgAbsorbed   int64
	HealAmount    int64
	HealEffective int64
	Threat        float64
	AvoidType     intern.IStr
	DefenseTypeID int64
	IsCrit        bool
	IsReflect     bool
	Charges       int32
	HasCharges    bool
	AbilityID     AbilityID
}

// CombatEvent is the fully typed result of parsing one log line.
type CombatEvent struct {
	Timestamp  time.Time
	LineNumber LineNumber
	Source     Entity
	Target     Entity
	Action     Action
	Effect     Effect
	Details    Details
}

// Well-known effect ids recognised by the combat state machine and encounter
// model. These mirror the fixed identifiers the original game log emits for
// lifecycle-relevant events; unrecognized ids are treated as ordinary combat
// events.
const (
	EffectIDEnterCombat     EffectID = -1
	EffectIDExitCombat      EffectID = -2
	EffectIDDamage          EffectID = -3
	EffectIDHeal            EffectID = -4
	EffectIDAbilityActivate EffectID = -5
)

// Well-known effect type ids.
const (
	EffectTypeApplyEffect  int64 = 1
	EffectTypeRemoveEffect int64 = 2
	EffectTypeAreaEntered  int64 = 3
)

// AvoidType string values recognised for defense-bucket dispatch.
const (
	AvoidDodge  = "dodge"
	AvoidParry  = "parry"
	AvoidResist = "resist"
	AvoidDeflect = "deflect"
	AvoidShield = "shield"
)
