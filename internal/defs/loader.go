package defs

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/raidforge/combatlog/internal/corerr"
	"gopkg.in/yaml.v3"
)

// Store holds every loaded boss definition plus an area-id index for lazy
// per-area loading, directly grounded on the teacher's internal/html.Cache
// directory-walk loader (lazy vs eager modes, RWMutex, path-traversal guard),
// generalized from HTML templates to YAML definition documents.
type Store struct {
	mu   sync.RWMutex
	dir  string
	lazy bool

	byAreaID map[int64]string // area_id -> source file path, for lazy loads
	bosses   []BossEncounterDefinition
	byClass  map[int64]int // ClassID -> index into bosses, O(1) binding
}

// NewStore creates a Store rooted at dir. If lazy is false, every *.yaml/
// *.yml file under dir that declares an area header is parsed immediately;
// files without one are indexed but never loaded. If lazy is true, only the
// area-id index is built and a file is parsed when LoadForAreaID is called
// for its area.
func NewStore(dir string, lazy bool) (*Store, error) {
	s := &Store{
		dir:      dir,
		lazy:     lazy,
		byAreaID: make(map[int64]string),
		byClass:  make(map[int64]int),
	}

	if err := s.indexDirectory(); err != nil {
		return nil, err
	}
	if !lazy {
		if err := s.loadAll(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// indexDirectory walks dir, recording each file's declared area_id without
// fully materialising boss definitions, so lazy mode stays cheap at startup.
func (s *Store) indexDirectory() error {
	info, err := os.Stat(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Warn("definitions directory does not exist, skipping", "dir", s.dir)
			return nil
		}
		return fmt.Errorf("stat definitions dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("definitions path is not a directory: %s", s.dir)
	}

	return filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		lower := strings.ToLower(d.Name())
		if !strings.HasSuffix(lower, ".yaml") && !strings.HasSuffix(lower, ".yml") {
			return nil
		}

		doc, err := readDefinitionFile(path)
		if err != nil {
			slog.Warn("failed to index definition file", "path", path, "error", err)
			return nil // skip broken files, others still load
		}
		if doc.Area != nil {
			s.byAreaID[doc.Area.AreaID] = path
		}
		return nil
	})
}

// loadAll eagerly parses every indexed file's boss definitions.
func (s *Store) loadAll() error {
	seen := make(map[string]struct{})
	for _, path := range s.byAreaID {
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		if err := s.loadFile(path); err != nil {
			slog.Warn("failed to load definition file", "path", path, "error", err)
		}
	}
	return nil
}

// LoadForAreaID ensures the definitions for areaID are materialised, loading
// the backing file on first use in lazy mode. A cache miss (unknown area) is
// not an error — it simply means no boss is defined for that area.
func (s *Store) LoadForAreaID(areaID int64) error {
	s.mu.RLock()
	path, ok := s.byAreaID[areaID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	return s.loadFile(path)
}

func (s *Store) loadFile(path string) error {
	if strings.Contains(path, "..") {
		return fmt.Errorf("%w: path traversal denied: %s", corerr.ErrDefinitionLoad, path)
	}

	doc, err := readDefinitionFile(path)
	if err != nil {
		return &corerr.DefinitionLoadError{Path: path, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range doc.Boss {
		b := doc.Boss[i]
		b.Finalize()
		idx := len(s.bosses)
		s.bosses = append(s.bosses, b)
		for classID := range b.AllNPCIDs {
			s.byClass[classID] = idx
		}
	}
	return nil
}

func readDefinitionFile(path string) (AreaDefinitionFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return AreaDefinitionFile{}, fmt.Errorf("reading %s: %w", path, err)
	}
	var doc AreaDefinitionFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return AreaDefinitionFile{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return doc, nil
}

// Bosses returns a snapshot copy of every loaded boss definition.
func (s *Store) Bosses() []BossEncounterDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]BossEncounterDefinition, len(s.bosses))
	copy(out, s.bosses)
	return out
}

// IndexForClassID returns the boss-definition index bound to classID, the
// O(1) ClassId -> definition-index lookup used to bind an encounter to a
// boss the moment a matching NPC appears.
func (s *Store) IndexForClassID(classID int64) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byClass[classID]
	return idx, ok
}

// BossAt returns the boss definition at idx.
func (s *Store) BossAt(idx int) (BossEncounterDefinition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx < 0 || idx >= len(s.bosses) {
		return BossEncounterDefinition{}, false
	}
	return s.bosses[idx], true
}
