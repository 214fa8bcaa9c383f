package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strconv"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/raidforge/combatlog/internal/corerr"
	"github.com/raidforge/combatlog/internal/logline"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// sq is the shared squirrel statement builder; SQLite's bind syntax is the
// "?" placeholder, set explicitly here as squirrel.Question, matching
// Depthborn's own sqlite persistence layer.
var sq = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)

// Store is the read-side query engine (component K): an in-process SQLite
// database loaded on demand from encounter files, queried with
// squirrel-built aggregate SQL. Grounded on davidmovas-Depthborn's
// internal/persistence/store/sqlite package (embedded goose migrations,
// single-connection *sql.DB, squirrel statement building).
type Store struct {
	db  *sql.DB
	dir string
}

// OpenStore opens a SQLite database at dsn (":memory:" for a live session,
// or a file path for a long-lived historical index) and provisions its
// schema via goose migrations, repurposing the teacher's own migration
// tool — previously pointed at PostgreSQL — against SQLite instead.
// encountersDir is where LoadEncounter reads flushed encounter files from.
func OpenStore(dsn, encountersDir string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", corerr.ErrQuery, dsn, err)
	}
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: set dialect: %v", corerr.ErrQuery, err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", corerr.ErrQuery, err)
	}

	return &Store{db: db, dir: encountersDir}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadEncounter reads a previously flushed encounter file and inserts its
// rows into the query table, replacing any rows already loaded for that
// encounter (idempotent re-load).
func (s *Store) LoadEncounter(ctx context.Context, encounterIdx uint32) error {
	rows, err := ReadEncounterFile(s.dir, encounterIdx)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin load tx: %v", corerr.ErrQuery, err)
	}
	defer func() { _ = tx.Rollback() }()

	delQuery, delArgs, err := sq.Delete("rows").Where(squirrel.Eq{"encounter_idx": encounterIdx}).ToSql()
	if err != nil {
		return fmt.Errorf("%w: build delete: %v", corerr.ErrQuery, err)
	}
	if _, err := tx.ExecContext(ctx, delQuery, delArgs...); err != nil {
		return fmt.Errorf("%w: clear existing rows: %v", corerr.ErrQuery, err)
	}

	for _, r := range rows {
		if err := insertRow(ctx, tx, r); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit load tx: %v", corerr.ErrQuery, err)
	}
	return nil
}

func insertRow(ctx context.Context, tx *sql.Tx, r Row) error {
	query, args, err := sq.Insert("rows").
		Columns(
			"encounter_idx", "line_number", "timestamp_ms",
			"phase_id", "phase_name", "area_name", "boss_name", "difficulty",
			"source_kind", "source_entity_id", "source_class_id", "source_name",
			"target_kind", "target_entity_id", "target_class_id", "target_name", "target_hp_cur", "target_hp_max",
			"ability_id", "ability_name",
			"effect_id", "effect_type", "effect_name",
			"dmg_amount", "dmg_effective", "dmg_absorbed", "heal_amount", "heal_effective",
			"threat", "avoid_type", "defense_type_id", "is_crit", "is_reflect",
		).
		Values(
			r.EncounterIdx, r.LineNumber, r.TimestampMs,
			r.PhaseID, r.PhaseName, r.AreaName, r.BossName, r.Difficulty,
			r.SourceKind, r.SourceEntityID, r.SourceClassID, r.SourceName,
			r.TargetKind, r.TargetEntityID, r.TargetClassID, r.TargetName, r.TargetHPCur, r.TargetHPMax,
			r.AbilityID, r.AbilityName,
			r.EffectID, r.EffectType, r.EffectName,
			r.DmgAmount, r.DmgEffective, r.DmgAbsorbed, r.HealAmount, r.HealEffective,
			r.Threat, r.AvoidType, r.DefenseTypeID, r.IsCrit, r.IsReflect,
		).ToSql()
	if err != nil {
		return fmt.Errorf("%w: build insert: %v", corerr.ErrQuery, err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: insert row: %v", corerr.ErrQuery, err)
	}
	return nil
}

// Filter narrows an aggregate query to a time range and/or a set of
// encounters; zero values mean "no restriction" (§6.5/§4.10). StartSecs and
// EndSecs are compared against the rows' absolute Unix-millisecond
// timestamps, so they are Unix times in seconds, not offsets from the start
// of an encounter.
type Filter struct {
	EncounterIdxs []uint32
	HasTimeRange  bool
	StartSecs     float64
	EndSecs       float64
}

func (f Filter) apply(b squirrel.SelectBuilder, col string) squirrel.SelectBuilder {
	if len(f.EncounterIdxs) > 0 {
		b = b.Where(squirrel.Eq{"encounter_idx": f.EncounterIdxs})
	}
	if f.HasTimeRange {
		b = b.Where(squirrel.GtOrEq{col: int64(f.StartSecs * 1000)})
		b = b.Where(squirrel.LtOrEq{col: int64(f.EndSecs * 1000)})
	}
	return b
}

// AbilityBreakdownRow is one ability's contribution to an entity's total
// damage, including its share of that entity's total (§4.10).
type AbilityBreakdownRow struct {
	AbilityID      int64
	AbilityName    string
	TotalDamage    int64
	Hits           int64
	Crits          int64
	PercentOfTotal float64
}

// AbilityBreakdown ranks sourceEntityID's outgoing-damage abilities,
// including each ability's percent-of-total share computed with a SQL
// window function rather than a second round trip.
func (s *Store) AbilityBreakdown(ctx context.Context, sourceEntityID int64, filter Filter) ([]AbilityBreakdownRow, error) {
	b := sq.Select(
		"ability_id", "ability_name",
		"SUM(dmg_effective) AS total_damage",
		"COUNT(*) AS hits",
		"SUM(CASE WHEN is_crit THEN 1 ELSE 0 END) AS crits",
		"SUM(dmg_effective) * 100.0 / NULLIF(SUM(SUM(dmg_effective)) OVER (), 0) AS percent_of_total",
	).
		From("rows").
		Where(squirrel.Eq{"source_entity_id": sourceEntityID}).
		Where(squirrel.Eq{"effect_id": int64(logline.EffectIDDamage)}).
		GroupBy("ability_id", "ability_name").
		OrderBy("total_damage DESC")
	b = filter.apply(b, "timestamp_ms")

	rows, err := queryRows(ctx, s.db, b)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AbilityBreakdownRow
	for rows.Next() {
		var r AbilityBreakdownRow
		if err := rows.Scan(&r.AbilityID, &r.AbilityName, &r.TotalDamage, &r.Hits, &r.Crits, &r.PercentOfTotal); err != nil {
			return nil, fmt.Errorf("%w: scan ability breakdown: %v", corerr.ErrQuery, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// EntityBreakdownRow is one entity's aggregate contribution across an
// encounter or time range.
type EntityBreakdownRow struct {
	EntityID      int64
	Name          string
	TotalDamage   int64
	TotalHealing  int64
	DamageTaken   int64
	DamageAbsorbed int64
}

// EntityBreakdown aggregates damage dealt, healing done, damage taken, and
// damage absorbed per source/target entity across the filtered rows.
func (s *Store) EntityBreakdown(ctx context.Context, filter Filter) ([]EntityBreakdownRow, error) {
	dealt := sq.Select(
		"source_entity_id AS entity_id",
		"source_name AS name",
		"SUM(dmg_effective) AS total_damage",
		"0 AS total_healing",
		"0 AS damage_taken",
		"0 AS damage_absorbed",
	).From("rows").
		Where(squirrel.Eq{"effect_id": int64(logline.EffectIDDamage)}).
		GroupBy("source_entity_id", "source_name")
	dealt = filter.apply(dealt, "timestamp_ms")

	healed := sq.Select(
		"source_entity_id AS entity_id",
		"source_name AS name",
		"0 AS total_damage",
		"SUM(heal_effective) AS total_healing",
		"0 AS damage_taken",
		"0 AS damage_absorbed",
	).From("rows").
		Where(squirrel.Eq{"effect_id": int64(logline.EffectIDHeal)}).
		GroupBy("source_entity_id", "source_name")
	healed = filter.apply(healed, "timestamp_ms")

	taken := sq.Select(
		"target_entity_id AS entity_id",
		"target_name AS name",
		"0 AS total_damage",
		"0 AS total_healing",
		"SUM(dmg_effective) AS damage_taken",
		"SUM(dmg_absorbed) AS damage_absorbed",
	).From("rows").
		Where(squirrel.Eq{"effect_id": int64(logline.EffectIDDamage)}).
		GroupBy("target_entity_id", "target_name")
	taken = filter.apply(taken, "timestamp_ms")

	dealtSQL, dealtArgs, err := dealt.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: build dealt: %v", corerr.ErrQuery, err)
	}
	healedSQL, healedArgs, err := healed.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: build healed: %v", corerr.ErrQuery, err)
	}
	takenSQL, takenArgs, err := taken.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: build taken: %v", corerr.ErrQuery, err)
	}

	outer := fmt.Sprintf(`
		SELECT entity_id, MAX(name) AS name,
		       SUM(total_damage) AS total_damage,
		       SUM(total_healing) AS total_healing,
		       SUM(damage_taken) AS damage_taken,
		       SUM(damage_absorbed) AS damage_absorbed
		FROM (%s UNION ALL %s UNION ALL %s)
		GROUP BY entity_id
		ORDER BY total_damage DESC`, dealtSQL, healedSQL, takenSQL)

	args := append(append(dealtArgs, healedArgs...), takenArgs...)
	rows, err := s.db.QueryContext(ctx, outer, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: entity breakdown: %v", corerr.ErrQuery, err)
	}
	defer rows.Close()

	var out []EntityBreakdownRow
	for rows.Next() {
		var r EntityBreakdownRow
		if err := rows.Scan(&r.EntityID, &r.Name, &r.TotalDamage, &r.TotalHealing, &r.DamageTaken, &r.DamageAbsorbed); err != nil {
			return nil, fmt.Errorf("%w: scan entity breakdown: %v", corerr.ErrQuery, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RaidOverviewRow is one entity's shielding contribution, attributed by a
// match against the nearest preceding shield-apply row on the same target
// (§4.10's correlated-subquery shield attribution).
type RaidOverviewRow struct {
	EntityID       int64
	ShieldingGiven int64
}

// RaidOverview attributes every absorbed-damage row to the source of the
// most recently applied shield-category effect on that row's target at or
// before the damage timestamp, expressed as a correlated subquery rather than
// in-memory bookkeeping. Shield removals and already-consumed shields are not
// considered, so where several shields are live at once the result can
// differ from the live encounter engine's earliest-unconsumed-shield
// attribution (internal/encounter.attributeShieldAbsorption).
func (s *Store) RaidOverview(ctx context.Context, shieldEffectIDs []int64, filter Filter) ([]RaidOverviewRow, error) {
	idList := sqlIntList(shieldEffectIDs)
	corr := fmt.Sprintf(`(
		SELECT s.source_entity_id FROM rows s
		WHERE s.target_entity_id = r.target_entity_id
		  AND s.effect_type = %d
		  AND s.effect_id IN (%s)
		  AND s.timestamp_ms <= r.timestamp_ms
		ORDER BY s.timestamp_ms DESC LIMIT 1
	)`, logline.EffectTypeApplyEffect, idList)

	b := sq.Select(
		fmt.Sprintf("COALESCE(%s, 0) AS shield_source_entity_id", corr),
		"SUM(r.dmg_absorbed) AS shielding_given",
	).
		From("rows r").
		Where(squirrel.Gt{"r.dmg_absorbed": 0}).
		GroupBy("shield_source_entity_id").
		OrderBy("shielding_given DESC")
	b = filter.apply(b, "r.timestamp_ms")

	rows, err := queryRows(ctx, s.db, b)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RaidOverviewRow
	for rows.Next() {
		var r RaidOverviewRow
		if err := rows.Scan(&r.EntityID, &r.ShieldingGiven); err != nil {
			return nil, fmt.Errorf("%w: scan raid overview: %v", corerr.ErrQuery, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PlayerDeathRow records one HP-to-zero crossing observed for a player
// entity.
type PlayerDeathRow struct {
	EntityID     int64
	Name         string
	EncounterIdx uint32
	TimestampMs  int64
}

// PlayerDeaths finds every row where a player target's HP reached zero,
// the same signal internal/processor uses live to emit EntityDeath.
func (s *Store) PlayerDeaths(ctx context.Context, filter Filter) ([]PlayerDeathRow, error) {
	b := sq.Select("target_entity_id", "target_name", "encounter_idx", "timestamp_ms").
		From("rows").
		Where(squirrel.Eq{"target_kind": int(logline.EntityPlayer)}).
		Where(squirrel.LtOrEq{"target_hp_cur": 0}).
		Where(squirrel.Gt{"target_hp_max": 0}).
		OrderBy("timestamp_ms ASC")
	b = filter.apply(b, "timestamp_ms")

	rows, err := queryRows(ctx, s.db, b)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PlayerDeathRow
	for rows.Next() {
		var r PlayerDeathRow
		if err := rows.Scan(&r.EntityID, &r.Name, &r.EncounterIdx, &r.TimestampMs); err != nil {
			return nil, fmt.Errorf("%w: scan player deaths: %v", corerr.ErrQuery, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func queryRows(ctx context.Context, db *sql.DB, b squirrel.SelectBuilder) (*sql.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: build query: %v", corerr.ErrQuery, err)
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: execute query: %v", corerr.ErrQuery, err)
	}
	return rows, nil
}

// sqlIntList renders ids as a comma-separated literal list for embedding in
// a raw SQL fragment. Safe here because every caller sources ids from
// server-side definition config (shield effect ids), never user input, and
// each element is format-verified as an integer.
func sqlIntList(ids []int64) string {
	if len(ids) == 0 {
		return "-1"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
