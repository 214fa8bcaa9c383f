// Package encounter implements the per-encounter state, metric accumulators,
// effect-instance bookkeeping, and shield attribution (component D).
package encounter

import (
	"time"

	"github.com/raidforge/combatlog/internal/intern"
	"github.com/raidforge/combatlog/internal/logline"
)

// State is the combat lifecycle state of an Encounter.
type State int

const (
	StateNotStarted State = iota
	StateInCombat
	StatePostCombat
)

// PlayerEntry tracks a player participant across the encounter.
type PlayerEntry struct {
	Name       string
	Discipline string
	Dead       bool
	DeathTime  time.Time
}

// NPCEntry tracks an NPC/companion participant across the encounter.
type NPCEntry struct {
	Name      string
	ClassID   logline.ClassID
	FirstSeen time.Time
	Dead      bool
	DeathTime time.Time
	HPCur     int64
	HPMax     int64
}

// EffectInstance records one application of an effect for shield-attribution
// and general effect-instance bookkeeping purposes.
type EffectInstance struct {
	EffectID  logline.EffectID
	SourceID  logline.EntityID
	TargetID  logline.EntityID
	AppliedAt time.Time
	RemovedAt time.Time // zero value means still live
	IsShield  bool
	HasAbsorbed bool
}

// Live reports whether the instance has not yet been removed as of at.
func (e *EffectInstance) Live(at time.Time) bool {
	return e.RemovedAt.IsZero() || e.RemovedAt.After(at)
}

// PendingAbsorption is a shield-credit event awaiting resolution to the
// shield effect instance that covered it.
type PendingAbsorption struct {
	SourceID  logline.EntityID // attacker dealing the absorbed damage (for reference only)
	TargetID  logline.EntityID
	Amount    int64
	Timestamp time.Time
}

// MetricAccumulator holds running sums for one entity across an encounter.
type MetricAccumulator struct {
	DamageDealt          int64
	DamageDealtEffective int64
	DamageDealtBoss      int64
	DamageHitCount       int64
	DamageCritCount      int64

	HealingDone          int64
	HealingEffective     int64
	HealCount            int64
	HealCritCount        int64

	DamageReceived          int64
	DamageReceivedEffective int64
	DamageAbsorbed          int64
	AttacksReceived         int64
	DefenseCount            int64
	ShieldRollCount         int64
	ShieldRollAbsorbed      int64

	HealingReceived          int64
	HealingReceivedEffective int64

	ShieldingGiven int64
	ThreatGenerated float64
	Actions         int64
	TauntCount      int64
}

// ChallengeTracker accumulates per-encounter challenge scoring (e.g. deaths,
// time limit). Kept minimal: the spec treats it as an opaque per-encounter
// accumulator finalized at combat end.
type ChallengeTracker struct {
	Deaths   int
	Finalized bool
	FinalizedAt time.Time
	DurationSecs float32
}

func (c *ChallengeTracker) Finalize(at time.Time, durationSecs float32) {
	c.Finalized = true
	c.FinalizedAt = at
	c.DurationSecs = durationSecs
}

// EntityMetrics is the derived, per-entity result of CalculateEntityMetrics.
type EntityMetrics struct {
	EntityID logline.EntityID
	Name     string

	TotalDamage          int64
	TotalDamageBoss      int64
	TotalDamageEffective int64
	DPS, EDPS, BossDPS   int64
	DamageCritPct        float64

	TotalHealing          int64
	TotalHealingEffective int64
	HPS, EHPS             int64
	HealCritPct           float64
	EffectiveHealPct      float64

	TotalShielding int64
	ShieldAbs      int64

	TotalDamageTaken          int64
	TotalDamageTakenEffective int64
	DTPS, EDTPS               int64

	HTPS, EHTPS int64

	DefensePct           float64
	ShieldPct            float64
	TotalShieldAbsorbed  int64
	TauntCount           int64

	APM   float64
	TPS   int64
	TotalThreat int64
}

// Encounter is a contiguous combat period: the central, mutable per-fight
// state that the event processor writes into.
type Encounter struct {
	ID    uint64
	State State

	EnterTime        time.Time
	ExitTime         time.Time
	LastActivityTime time.Time

	Players map[logline.EntityID]*PlayerEntry
	NPCs    map[logline.EntityID]*NPCEntry

	EffectInstances    map[logline.EntityID][]*EffectInstance
	PendingAbsorptions map[logline.EntityID][]PendingAbsorption
	Accumulators       map[logline.EntityID]*MetricAccumulator

	AllPlayersDead bool

	ActiveBossIdx  int // -1 when none bound
	CurrentPhase   string
	PreviousPhase  string
	PhaseStartedAt time.Time
	Counters       map[string]uint32

	HPByEntity map[logline.EntityID][2]int64
	HPByNPCID  map[logline.ClassID][2]int64
	HPByName   map[string][2]int64

	CombatTimeSecs     float64
	PrevCombatTimeSecs float64
	DeadKillTargets    map[logline.ClassID]struct{}

	ChallengeTracker ChallengeTracker

	// ShieldGraceWindow is the maximum interval by which a shield's removal
	// may precede the damage event it covers and still receive credit. Per
	// §9 Design Notes this may not be tightened below 500ms.
	ShieldGraceWindow time.Duration

	// Table resolves interned names (e.g. Details.AvoidType) back to their
	// string form. Defaults to the process-wide global table.
	Table *intern.Table
}

const defaultShieldGraceWindow = 750 * time.Millisecond

// New creates an empty encounter in StateNotStarted.
func New(id uint64) *Encounter {
	return &Encounter{
		ID:                 id,
		State:              StateNotStarted,
		Players:            make(map[logline.EntityID]*PlayerEntry),
		NPCs:               make(map[logline.EntityID]*NPCEntry),
		EffectInstances:    make(map[logline.EntityID][]*EffectInstance),
		PendingAbsorptions: make(map[logline.EntityID][]PendingAbsorption),
		Accumulators:       make(map[logline.EntityID]*MetricAccumulator),
		Counters:           make(map[string]uint32),
		HPByEntity:         make(map[logline.EntityID][2]int64),
		HPByNPCID:          make(map[logline.ClassID][2]int64),
		HPByName:           make(map[string][2]int64),
		DeadKillTargets:    make(map[logline.ClassID]struct{}),
		ActiveBossIdx:      -1,
		ShieldGraceWindow:  defaultShieldGraceWindow,
		Table:              intern.Global(),
	}
}

// IsActive reports whether the encounter is InCombat or PostCombat.
func (e *Encounter) IsActive() bool {
	return e.State == StateInCombat || e.State == StatePostCombat
}
