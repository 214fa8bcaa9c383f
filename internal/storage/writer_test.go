package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/raidforge/combatlog/internal/logline"
)

func TestWriterFlushAndReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, nil)
	require.NoError(t, err)
	require.Equal(t, 0, w.BufferedRows())

	ev := &logline.CombatEvent{
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Source:    logline.Entity{Kind: logline.EntityPlayer, EntityID: 1},
		Target:    logline.Entity{Kind: logline.EntityNPC, EntityID: 2},
		Effect:    logline.Effect{EffectID: logline.EffectIDDamage},
		Details:   logline.Details{DmgEffective: 500},
	}
	w.AddRow(ev, RowContext{EncounterIdx: 3})
	w.AddRow(ev, RowContext{EncounterIdx: 3})
	require.Equal(t, 2, w.BufferedRows())

	require.NoError(t, w.Flush(3))
	require.Equal(t, 0, w.BufferedRows())

	rows, err := ReadEncounterFile(dir, 3)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, int64(500), rows[0].DmgEffective)
}

func TestFlushWithNoBufferedRowsIsNoop(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, nil)
	require.NoError(t, err)
	require.NoError(t, w.Flush(9))

	_, err = ReadEncounterFile(dir, 9)
	require.Error(t, err, "nothing was ever flushed for encounter 9")
}
