package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/raidforge/combatlog/internal/corerr"
	"github.com/raidforge/combatlog/internal/logline"
)

// Writer buffers one encounter's rows and flushes them to a file on
// CombatEnded. Not safe for concurrent use — owned by the same parsing
// goroutine that drives the processor, matching §5's single-writer model.
type Writer struct {
	dir    string
	log    *slog.Logger
	buffer []Row
}

// NewWriter creates a Writer that flushes encounter files into dir. dir is
// created if missing. log may be nil to use slog's default logger.
func NewWriter(dir string, log *slog.Logger) (*Writer, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create encounter dir: %w", err)
	}
	return &Writer{dir: dir, log: log}, nil
}

// AddRow buffers one event row. Safe to call on every processed event
// regardless of combat state; rows accumulated before CombatStarted are
// flushed along with the rest on the next Flush.
func (w *Writer) AddRow(ev *logline.CombatEvent, ctx RowContext) {
	w.buffer = append(w.buffer, NewRow(ev, ctx))
}

// BufferedRows returns the number of rows accumulated since the last Flush.
func (w *Writer) BufferedRows() int {
	return len(w.buffer)
}

// FileName returns the deterministic file name for encounterIdx.
func FileName(encounterIdx uint32) string {
	return fmt.Sprintf("encounter_%d.msgpack.flate", encounterIdx)
}

// Flush serialises the buffered rows for encounterIdx, writes them to a
// deterministically-named file in Writer's directory, and resets the
// buffer. A flush failure is wrapped in corerr.ErrWriterIO and returned; the
// buffer is then left as it is, and the session's encounter history is not
// modified.
func (w *Writer) Flush(encounterIdx uint32) error {
	if len(w.buffer) == 0 {
		return nil
	}
	data, err := marshalRows(w.buffer)
	if err != nil {
		return fmt.Errorf("%w: marshal rows for encounter %d: %v", corerr.ErrWriterIO, encounterIdx, err)
	}
	path := filepath.Join(w.dir, FileName(encounterIdx))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		w.log.Warn("encounter flush failed", "encounter_idx", encounterIdx, "path", path, "error", err)
		return fmt.Errorf("%w: write %s: %v", corerr.ErrWriterIO, path, err)
	}
	w.log.Info("encounter flushed", "encounter_idx", encounterIdx, "rows", len(w.buffer), "path", path)
	w.buffer = w.buffer[:0]
	return nil
}

// ReadEncounterFile loads and decodes one previously-flushed encounter file.
func ReadEncounterFile(dir string, encounterIdx uint32) ([]Row, error) {
	path := filepath.Join(dir, FileName(encounterIdx))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", corerr.ErrWriterIO, path, err)
	}
	rows, err := unmarshalRows(data)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", corerr.ErrWriterIO, path, err)
	}
	return rows, nil
}
