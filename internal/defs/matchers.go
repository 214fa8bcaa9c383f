package defs

import "strings"

// EffectSelector matches by effect id (preferred, locale-independent) or by
// name (fallback, locale-dependent). Exactly one of ID/Name is meaningful;
// HasID discriminates since the zero value of ID is a valid effect id.
type EffectSelector struct {
	ID    int64  `yaml:"id,omitempty"`
	Name  string `yaml:"name,omitempty"`
	HasID bool   `yaml:"-"`
}

func EffectByID(id int64) EffectSelector     { return EffectSelector{ID: id, HasID: true} }
func EffectByName(name string) EffectSelector { return EffectSelector{Name: name} }

// Matches checks effectID/effectName against the selector.
func (s EffectSelector) Matches(effectID int64, effectName string) bool {
	if s.HasID {
		return s.ID == effectID
	}
	return strings.EqualFold(s.Name, effectName)
}

// AbilitySelector matches by ability id or by name, mirroring EffectSelector.
type AbilitySelector struct {
	ID    int64  `yaml:"id,omitempty"`
	Name  string `yaml:"name,omitempty"`
	HasID bool   `yaml:"-"`
}

func AbilityByID(id int64) AbilitySelector      { return AbilitySelector{ID: id, HasID: true} }
func AbilityByName(name string) AbilitySelector { return AbilitySelector{Name: name} }

func (s AbilitySelector) Matches(abilityID int64, abilityName string) bool {
	if s.HasID {
		return s.ID == abilityID
	}
	return strings.EqualFold(s.Name, abilityName)
}

// MatchesAnyAbility reports whether any selector in an OR-list matches. An empty
// list is "any" (always matches), per §4.6 trigger evaluation rules.
func MatchesAnyAbility(selectors []AbilitySelector, abilityID int64, abilityName string) bool {
	if len(selectors) == 0 {
		return true
	}
	for _, s := range selectors {
		if s.Matches(abilityID, abilityName) {
			return true
		}
	}
	return false
}

func MatchesAnyEffect(selectors []EffectSelector, effectID int64, effectName string) bool {
	if len(selectors) == 0 {
		return true
	}
	for _, s := range selectors {
		if s.Matches(effectID, effectName) {
			return true
		}
	}
	return false
}

// EntityMatcher matches entities by roster reference, NPC class id, or name,
// in that priority order. An empty matcher matches nothing by design — it
// requires an explicit filter rather than silently matching everything.
type EntityMatcher struct {
	Entity string `yaml:"entity,omitempty"` // roster alias, e.g. "huntmaster"
	NPCID  int64  `yaml:"npc_id,omitempty"`
	Name   string `yaml:"name,omitempty"`

	HasNPCID bool `yaml:"-"`
}

func MatchByEntity(entity string) EntityMatcher { return EntityMatcher{Entity: entity} }
func MatchByNPCID(id int64) EntityMatcher       { return EntityMatcher{NPCID: id, HasNPCID: true} }
func MatchByName(name string) EntityMatcher     { return EntityMatcher{Name: name} }

// IsEmpty reports whether no filters are set.
func (m EntityMatcher) IsEmpty() bool {
	return m.Entity == "" && !m.HasNPCID && m.Name == ""
}

// Matches checks the matcher against an observed (npcID, name) pair, using
// entities to resolve roster-alias references.
func (m EntityMatcher) Matches(entities []EntityDefinition, npcID int64, name string) bool {
	if m.Entity != "" {
		for _, e := range entities {
			if strings.EqualFold(e.Name, m.Entity) {
				for _, id := range e.IDs {
					if id == npcID {
						return true
					}
				}
				return false
			}
		}
		return false // referenced roster entry not found
	}

	if m.HasNPCID {
		return m.NPCID == npcID
	}

	if m.Name != "" {
		return strings.EqualFold(m.Name, name)
	}

	return false
}

// MatchesNPCID matches by NPC id only, ignoring roster and name — useful
// when no roster is available (e.g. the boss engine evaluating a raw event).
func (m EntityMatcher) MatchesNPCID(npcID int64) bool {
	return m.HasNPCID && m.NPCID == npcID
}

// MatchesName matches by name only, ignoring roster and NPC id.
func (m EntityMatcher) MatchesName(name string) bool {
	return m.Name != "" && strings.EqualFold(m.Name, name)
}
