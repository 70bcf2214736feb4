package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/dzakarias/orderbook-replayer/logger"
	"github.com/dzakarias/orderbook-replayer/models"
)

// Store serves archives from a local directory, one file per
// symbol/date/depth. It is read-only; the recorder and transcoder write
// files through their own paths.
type Store struct {
	dir string
	log *logger.Log
}

// NewStore returns a store over dir. The directory is created when absent
// so an empty deployment lists no markets instead of failing.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &Store{dir: dir, log: logger.GetLogger()}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) scan(date string) ([]models.ArchiveID, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read archive dir: %w", err)
	}
	var ids []models.ArchiveID
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, err := ParseFilename(e.Name())
		if err != nil {
			continue // foreign files are not archives
		}
		if date == "" || id.Date == date {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ListMarkets returns the symbols with at least one archive for date,
// sorted and de-duplicated across depths.
func (s *Store) ListMarkets(date string) ([]string, error) {
	ids, err := s.scan(date)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(ids))
	symbols := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id.Symbol]; ok {
			continue
		}
		seen[id.Symbol] = struct{}{}
		symbols = append(symbols, id.Symbol)
	}
	sort.Strings(symbols)
	return symbols, nil
}

// Resolve picks the archive for symbol/date: the shallowest stored depth
// that still covers minDepth, falling back to the deepest available when
// none does. models.ErrNotFound when no archive exists at all.
func (s *Store) Resolve(symbol, date string, minDepth int) (models.ArchiveID, error) {
	ids, err := s.scan(date)
	if err != nil {
		return models.ArchiveID{}, err
	}
	var candidates []models.ArchiveID
	for _, id := range ids {
		if id.Symbol == symbol {
			candidates = append(candidates, id)
		}
	}
	if len(candidates) == 0 {
		return models.ArchiveID{}, fmt.Errorf("%w: %s on %s", models.ErrNotFound, symbol, date)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Depth < candidates[j].Depth })
	for _, id := range candidates {
		if id.Depth >= minDepth {
			return id, nil
		}
	}
	return candidates[len(candidates)-1], nil
}

// Open returns the archive content for id.
func (s *Store) Open(id models.ArchiveID) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.dir, Filename(id)))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s on %s", models.ErrNotFound, id.Symbol, id.Date)
	}
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return f, nil
}

// Load resolves and fully decodes the archive for symbol/date.
func (s *Store) Load(symbol, date string, minDepth int) (models.Snapshot, []models.DeltaSet, models.ArchiveID, error) {
	id, err := s.Resolve(symbol, date, minDepth)
	if err != nil {
		return models.Snapshot{}, nil, models.ArchiveID{}, err
	}
	r, err := s.Open(id)
	if err != nil {
		return models.Snapshot{}, nil, models.ArchiveID{}, err
	}
	defer r.Close()

	snap, deltas, err := ReadAll(r)
	if err != nil {
		s.log.WithComponent("archive_store").WithError(err).WithFields(logger.Fields{
			"symbol": symbol,
			"date":   date,
			"depth":  id.Depth,
		}).Error("failed to decode archive")
		return models.Snapshot{}, nil, models.ArchiveID{}, err
	}
	return snap, deltas, id, nil
}
