// Package storage implements the encounter writer and historical query
// engine (component K): buffering each combat event as a flat row, flushing
// finished encounters to msgpack files on disk, and answering SQL-like
// aggregate queries over those files via an in-process SQLite database.
//
// Grounded on the reference corpus's own analytics persistence stack
// (davidmovas-Depthborn's internal/persistence/store/sqlite), not
// hand-rolled: vmihailenco/msgpack for the row codec, modernc.org/sqlite +
// pressly/goose/v3 for the query store and its schema migrations, and
// Masterminds/squirrel for building every aggregate query.
package storage

import (
	"bytes"
	"compress/flate"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/raidforge/combatlog/internal/intern"
	"github.com/raidforge/combatlog/internal/logline"
)

// Row is one buffered combat event plus the encounter-context fields it was
// observed under (§4.10). It is the unit serialised to and read back from a
// finished encounter's file.
type Row struct {
	EncounterIdx uint32 `msgpack:"encounter_idx"`
	LineNumber   uint64 `msgpack:"line_number"`
	TimestampMs  int64  `msgpack:"timestamp_ms"`

	PhaseID    string `msgpack:"phase_id"`
	PhaseName  string `msgpack:"phase_name"`
	AreaName   string `msgpack:"area_name"`
	BossName   string `msgpack:"boss_name"`
	Difficulty string `msgpack:"difficulty"`

	SourceKind     int    `msgpack:"source_kind"`
	SourceEntityID int64  `msgpack:"source_entity_id"`
	SourceClassID  int64  `msgpack:"source_class_id"`
	SourceName     string `msgpack:"source_name"`

	TargetKind     int    `msgpack:"target_kind"`
	TargetEntityID int64  `msgpack:"target_entity_id"`
	TargetClassID  int64  `msgpack:"target_class_id"`
	TargetName     string `msgpack:"target_name"`
	TargetHPCur    int64  `msgpack:"target_hp_cur"`
	TargetHPMax    int64  `msgpack:"target_hp_max"`

	AbilityID   int64  `msgpack:"ability_id"`
	AbilityName string `msgpack:"ability_name"`

	EffectID   int64  `msgpack:"effect_id"`
	EffectType int64  `msgpack:"effect_type"`
	EffectName string `msgpack:"effect_name"`

	DmgAmount     int64   `msgpack:"dmg_amount"`
	DmgEffective  int64   `msgpack:"dmg_effective"`
	DmgAbsorbed   int64   `msgpack:"dmg_absorbed"`
	HealAmount    int64   `msgpack:"heal_amount"`
	HealEffective int64   `msgpack:"heal_effective"`
	Threat        float64 `msgpack:"threat"`
	AvoidType     string  `msgpack:"avoid_type"`
	DefenseTypeID int64   `msgpack:"defense_type_id"`
	IsCrit        bool    `msgpack:"is_crit"`
	IsReflect     bool    `msgpack:"is_reflect"`
}

// RowContext carries the encounter-scoped fields a Writer stamps onto every
// row it buffers; these are not present on logline.CombatEvent itself.
type RowContext struct {
	EncounterIdx uint32
	PhaseID      string
	PhaseName    string
	AreaName     string
	BossName     string
	Difficulty   string
}

// NewRow builds a Row from a parsed event and the encounter context it was
// observed under.
func NewRow(ev *logline.CombatEvent, ctx RowContext) Row {
	return Row{
		EncounterIdx: ctx.EncounterIdx,
		LineNumber:   uint64(ev.LineNumber),
		TimestampMs:  ev.Timestamp.UnixMilli(),

		PhaseID:    ctx.PhaseID,
		PhaseName:  ctx.PhaseName,
		AreaName:   ctx.AreaName,
		BossName:   ctx.BossName,
		Difficulty: ctx.Difficulty,

		SourceKind:     int(ev.Source.Kind),
		SourceEntityID: int64(ev.Source.EntityID),
		SourceClassID:  int64(ev.Source.ClassID),
		SourceName:     intern.Resolve(ev.Source.Name),

		TargetKind:     int(ev.Target.Kind),
		TargetEntityID: int64(ev.Target.EntityID),
		TargetClassID:  int64(ev.Target.ClassID),
		TargetName:     intern.Resolve(ev.Target.Name),
		TargetHPCur:    ev.Target.HPCur,
		TargetHPMax:    ev.Target.HPMax,

		AbilityID:   int64(ev.Action.ActionID),
		AbilityName: intern.Resolve(ev.Action.Name),

		EffectID:   int64(ev.Effect.EffectID),
		EffectType: ev.Effect.TypeID,
		EffectName: intern.Resolve(ev.Effect.EffectName),

		DmgAmount:     ev.Details.DmgAmount,
		DmgEffective:  ev.Details.DmgEffective,
		DmgAbsorbed:   ev.Details.DmgAbsorbed,
		HealAmount:    ev.Details.HealAmount,
		HealEffective: ev.Details.HealEffective,
		Threat:        ev.Details.Threat,
		AvoidType:     intern.Resolve(ev.Details.AvoidType),
		DefenseTypeID: ev.Details.DefenseTypeID,
		IsCrit:        ev.Details.IsCrit,
		IsReflect:     ev.Details.IsReflect,
	}
}

// marshalRows encodes a row slice with msgpack and compresses it with
// flate. No corpus repo imports a dedicated compression library, so flate
// is used directly from the standard library — documented in DESIGN.md.
func marshalRows(rows []Row) ([]byte, error) {
	raw, err := msgpack.Marshal(rows)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// unmarshalRows reverses marshalRows.
func unmarshalRows(data []byte) ([]Row, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var rows []Row
	if err := msgpack.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
