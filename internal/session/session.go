// Package session holds the global per-session state that survives across
// encounters: the player's own identity, the current area, the loaded boss
// definition roster, and the append-only encounter history (component E).
package session

import (
	"sync"
	"time"

	"github.com/raidforge/combatlog/internal/defs"
	"github.com/raidforge/combatlog/internal/encounter"
	"github.com/raidforge/combatlog/internal/logline"
)

// PlayerInfo identifies the log owner, once known.
type PlayerInfo struct {
	EntityID logline.EntityID
	Name     string
}

// AreaInfo identifies the zone the session is currently in.
type AreaInfo struct {
	AreaID int64
	Name   string
}

// EncounterSummary is the durable, read-only record of a finished encounter
// appended to history. It never holds a pointer into the live Encounter.
type EncounterSummary struct {
	ID           uint64
	EnterTime    time.Time
	ExitTime     time.Time
	DurationSecs int64
	BossName     string
	AreaName     string
	Wiped        bool
	Players      []string
	NPCs         []string
	Metrics      []encounter.EntityMetrics
}

// Cache is the mutable global session state. Owned by the parsing goroutine;
// downstream consumers only ever see value-copy snapshots.
type Cache struct {
	mu sync.RWMutex

	Player PlayerInfo
	Area   AreaInfo

	current *encounter.Encounter
	history []EncounterSummary

	bosses     []defs.BossEncounterDefinition
	byClassID  map[logline.ClassID]int
	activeBoss int // index into bosses, -1 if unbound
}

// New creates an empty session cache with no current encounter.
func New() *Cache {
	return &Cache{
		byClassID:  make(map[logline.ClassID]int),
		activeBoss: -1,
	}
}

// Current returns the live encounter, creating one in StateNotStarted if
// none exists yet.
func (c *Cache) Current() *encounter.Encounter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		c.current = encounter.New(uint64(len(c.history)) + 1)
	}
	return c.current
}

// PushNewEncounter summarises the current encounter and appends it to the
// append-only history, then clears current so the next event starts fresh.
func (c *Cache) PushNewEncounter(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return
	}
	cur := c.current
	duration, _ := cur.DurationSeconds(now)

	summary := EncounterSummary{
		ID:           cur.ID,
		EnterTime:    cur.EnterTime,
		ExitTime:     cur.ExitTime,
		DurationSecs: duration,
		Wiped:        cur.AllPlayersDead,
		Metrics:      cur.CalculateEntityMetrics(now),
	}
	if c.activeBoss >= 0 && c.activeBoss < len(c.bosses) {
		summary.BossName = c.bosses[c.activeBoss].Name
		summary.AreaName = c.bosses[c.activeBoss].AreaName
	} else {
		summary.AreaName = c.Area.Name
	}
	for _, p := range cur.Players {
		summary.Players = append(summary.Players, p.Name)
	}
	for _, n := range cur.NPCs {
		summary.NPCs = append(summary.NPCs, n.Name)
	}

	c.history = append(c.history, summary)
	c.current = encounter.New(cur.ID + 1)
}

// History returns a copy of the encounter summaries recorded this session.
func (c *Cache) History() []EncounterSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]EncounterSummary, len(c.history))
	copy(out, c.history)
	return out
}

// LoadBossDefinitions replaces the boss roster and rebuilds the O(1)
// ClassID → definition-index lookup used to bind an encounter to a boss.
func (c *Cache) LoadBossDefinitions(defList []defs.BossEncounterDefinition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.bosses = defList
	c.byClassID = make(map[logline.ClassID]int, len(defList)*2)
	for idx, b := range defList {
		for npcID := range b.AllNPCIDs {
			c.byClassID[logline.ClassID(npcID)] = idx
		}
	}
	c.activeBoss = -1
}

// BindBossForClassID looks up and activates the boss definition owning
// npcID, if any. Returns false if no definition claims that class id.
func (c *Cache) BindBossForClassID(npcID logline.ClassID) (defs.BossEncounterDefinition, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx, ok := c.byClassID[npcID]
	if !ok {
		return defs.BossEncounterDefinition{}, false
	}
	c.activeBoss = idx
	return c.bosses[idx], true
}

// ActiveBoss returns the currently bound boss definition, if any.
func (c *Cache) ActiveBoss() (defs.BossEncounterDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.activeBoss < 0 || c.activeBoss >= len(c.bosses) {
		return defs.BossEncounterDefinition{}, false
	}
	return c.bosses[c.activeBoss], true
}

// ClearActiveBoss unbinds the current boss (e.g. on area change).
func (c *Cache) ClearActiveBoss() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activeBoss = -1
}
