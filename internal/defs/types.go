package defs

// EntityDefinition names a roster member and the NPC class ids that identify
// it at runtime.
type EntityDefinition struct {
	Name             string  `yaml:"name"`
	IDs              []int64 `yaml:"ids"`
	IsBoss           bool    `yaml:"is_boss,omitempty"`
	TriggersEncounter bool   `yaml:"triggers_encounter,omitempty"`
	IsKillTarget     bool    `yaml:"is_kill_target,omitempty"`
	ShowOnHPOverlay  bool    `yaml:"show_on_hp_overlay,omitempty"`
}

// PhaseDefinition describes a named sub-period of a boss encounter.
type PhaseDefinition struct {
	ID               string    `yaml:"id"`
	Name             string    `yaml:"name"`
	StartTrigger     Trigger   `yaml:"start_trigger"`
	EndTrigger       *Trigger  `yaml:"end_trigger,omitempty"`
	PrecededBy       string    `yaml:"preceded_by,omitempty"`
	CounterCondition *Trigger  `yaml:"counter_condition,omitempty"`
	ResetsCounters   []string  `yaml:"resets_counters,omitempty"`
}

// CounterDefinition describes a named non-negative integer scoped to an
// encounter, mutated by triggers.
type CounterDefinition struct {
	ID            string   `yaml:"id"`
	InitialValue  uint32   `yaml:"initial_value"`
	IncrementOn   Trigger  `yaml:"increment_on"`
	DecrementOn   *Trigger `yaml:"decrement_on,omitempty"`
	ResetOn       Trigger  `yaml:"reset_on"`
	Decrement     bool     `yaml:"decrement,omitempty"`
	SetValue      *uint32  `yaml:"set_value,omitempty"`
}

// EffectCategory classifies an EffectDefinition for display/behavior routing.
type EffectCategory int

const (
	CategoryBuff EffectCategory = iota
	CategoryDebuff
	CategoryHOT
	CategoryShield
	CategoryCleansable
	CategoryProc
	CategoryMechanic
)

// DisplayTarget routes an active effect to a UI surface.
type DisplayTarget int

const (
	DisplayDefault DisplayTarget = iota
	DisplayCooldowns
	DisplayRaidFrames
	DisplayHidden
)

// EffectDefinition describes a tracked buff/debuff/HOT/shield.
type EffectDefinition struct {
	ID                   string         `yaml:"id"`
	Trigger              Trigger        `yaml:"trigger"`
	DurationSecs         float64        `yaml:"duration_secs,omitempty"`
	Category             EffectCategory `yaml:"category"`
	DisplayTarget        DisplayTarget  `yaml:"display_target,omitempty"`
	IconAbility          AbilitySelector `yaml:"icon_ability,omitempty"`
	RefreshAbilities     []AbilitySelector `yaml:"refresh_abilities,omitempty"`
	IgnoreEffectRemoved  bool           `yaml:"ignore_effect_removed,omitempty"`
	CooldownReadyGraceMs int64          `yaml:"cooldown_ready_grace_ms,omitempty"`
	IsAffectedByAlacrity bool           `yaml:"is_affected_by_alacrity,omitempty"`
	IsRefreshedOnModify  bool           `yaml:"is_refreshed_on_modify,omitempty"`
	ShowAtSecs           float64        `yaml:"show_at_secs,omitempty"`
	Color                string         `yaml:"color,omitempty"`
	AudioOnApply         string         `yaml:"audio_on_apply,omitempty"`
	TimerHandoff         string         `yaml:"timer_handoff,omitempty"`
}

// TimerDefinition describes a countdown started by a trigger, with chaining,
// repetition, cancellation, and audio hooks. Used for both boss-scoped and
// standalone timers.
type TimerDefinition struct {
	ID              string   `yaml:"id"`
	Name            string   `yaml:"name"`
	Trigger         Trigger  `yaml:"trigger"`
	DurationSecs    float64  `yaml:"duration_secs"`
	Color           string   `yaml:"color,omitempty"`
	AlertAtSecs     float64  `yaml:"alert_at_secs,omitempty"`
	AlertText       string   `yaml:"alert_text,omitempty"`
	Repeats         int      `yaml:"repeats,omitempty"`
	MaxRepeats      int      `yaml:"max_repeats,omitempty"`
	ChainsTo        string   `yaml:"chains_to,omitempty"`
	CancelTrigger   *Trigger `yaml:"cancel_trigger,omitempty"`

	// Scoping
	AreaIDs         []int64  `yaml:"area_ids,omitempty"`
	Boss            string   `yaml:"boss,omitempty"`
	Difficulties    []string `yaml:"difficulties,omitempty"`
	Phases          []string `yaml:"phases,omitempty"`
	CounterCondition *Trigger `yaml:"counter_condition,omitempty"`

	ShowAtSecs        float64 `yaml:"show_at_secs,omitempty"`
	ShowOnRaidFrames  bool    `yaml:"show_on_raid_frames,omitempty"`
	AudioOffsetSecs   float64 `yaml:"audio_offset_secs,omitempty"`
	CountdownStart    int     `yaml:"countdown_start,omitempty"`
}

// ChallengeDefinition is an encounter-scoped scoring rule (e.g. "no deaths",
// "under N minutes"); the challenge_tracker in Encounter accumulates against
// these across the encounter's lifetime.
type ChallengeDefinition struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

// AreaType classifies a BossEncounterDefinition's area.
type AreaType int

const (
	AreaOpenWorld AreaType = iota
	AreaFlashpoint
	AreaOperation
	AreaArena
)

// BossEncounterDefinition is the top-level, fully-resolved definition for one
// boss fight, including a precomputed O(1) NPC-id lookup set.
type BossEncounterDefinition struct {
	ID           string                `yaml:"id"`
	Name         string                `yaml:"name"`
	AreaName     string                `yaml:"area_name"`
	AreaID       int64                 `yaml:"area_id"`
	AreaType     AreaType              `yaml:"area_type"`
	Difficulties []string              `yaml:"difficulties,omitempty"`
	Entities     []EntityDefinition    `yaml:"entities"`
	Phases       []PhaseDefinition     `yaml:"phases,omitempty"`
	Counters     []CounterDefinition   `yaml:"counters,omitempty"`
	Timers       []TimerDefinition     `yaml:"timers,omitempty"`
	Effects      []EffectDefinition    `yaml:"effects,omitempty"`
	Challenges   []ChallengeDefinition `yaml:"challenges,omitempty"`

	// AllNPCIDs is precomputed by Finalize() for O(1) membership checks.
	AllNPCIDs map[int64]struct{} `yaml:"-"`
}

// Finalize precomputes derived indexes after loading/merging a definition.
// Must be called once after YAML unmarshal and before use.
func (b *BossEncounterDefinition) Finalize() {
	b.AllNPCIDs = make(map[int64]struct{})
	for _, e := range b.Entities {
		for _, id := range e.IDs {
			b.AllNPCIDs[id] = struct{}{}
		}
	}
}

// KillTargetIDs returns the flattened NPC ids of every entity marked as a
// kill target, used by the all-kill-targets-dead combat-end predicate.
func (b *BossEncounterDefinition) KillTargetIDs() []int64 {
	var ids []int64
	for _, e := range b.Entities {
		if e.IsKillTarget {
			ids = append(ids, e.IDs...)
		}
	}
	return ids
}

// AreaDefinitionFile is the root document shape for one YAML definition file
// (§6.2): an optional area header plus zero or more boss sections.
type AreaDefinitionFile struct {
	Area  *AreaHeader                `yaml:"area,omitempty"`
	Boss  []BossEncounterDefinition  `yaml:"bosses,omitempty"`
}

// AreaHeader is the `area:` block of a definition file.
type AreaHeader struct {
	Name     string   `yaml:"name"`
	AreaID   int64    `yaml:"area_id"`
	AreaType AreaType `yaml:"area_type,omitempty"`
}
