package replay

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dzakarias/orderbook-replayer/internal/archive"
	"github.com/dzakarias/orderbook-replayer/logger"
	"github.com/dzakarias/orderbook-replayer/models"
)

// Session exposes the navigation operations over one selected market and
// serializes them. Every operation returns the resulting book state
// truncated to the session's display depth.
type Session struct {
	id           string
	store        *archive.Store
	displayDepth int
	cpInterval   time.Duration
	log          *logger.Entry

	mu     sync.Mutex
	market models.ArchiveID
	trav   *Traverser
}

// NewSession creates a session over the given archive store. displayDepth
// bounds the levels per side returned to callers; checkpointInterval
// tunes the traverser's seek cache.
func NewSession(store *archive.Store, displayDepth int, checkpointInterval time.Duration) *Session {
	id := uuid.New().String()
	return &Session{
		id:           id,
		store:        store,
		displayDepth: displayDepth,
		cpInterval:   checkpointInterval,
		log: logger.GetLogger().WithComponent("replay").WithFields(logger.Fields{
			"session_id": id,
		}),
	}
}

// ID returns the session's identifier.
func (s *Session) ID() string {
	return s.id
}

// ListMarkets returns the symbols with at least one archive for the date.
func (s *Session) ListMarkets(date string) ([]string, error) {
	return s.store.ListMarkets(date)
}

// SelectMarket loads the shallowest archive for symbol and date that still
// covers the display depth, replaces any previously selected market, and
// returns the book state at the archive's snapshot.
func (s *Session) SelectMarket(symbol, date string) (models.BookState, error) {
	snap, deltas, id, err := s.store.Load(symbol, date, s.displayDepth)
	if err != nil {
		return models.BookState{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.market = id
	s.trav = NewTraverser(snap, deltas, s.cpInterval)

	s.log.WithFields(logger.Fields{
		"symbol": id.Symbol,
		"date":   id.Date,
		"depth":  id.Depth,
		"deltas": len(deltas),
	}).Info("market selected")
	return s.trav.State(s.displayDepth), nil
}

// Market returns the currently selected archive, if any.
func (s *Session) Market() (models.ArchiveID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.market, s.trav != nil
}

// StepForward applies the next delta set. At the end of the archive it
// returns models.ErrEndOfArchive and the unchanged current state.
func (s *Session) StepForward() (models.BookState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trav == nil {
		return models.BookState{}, models.ErrNoMarket
	}
	if err := s.trav.Step(); err != nil {
		return s.trav.State(s.displayDepth), err
	}
	return s.trav.State(s.displayDepth), nil
}

// Skip moves the position by the signed number of seconds, clamped to the
// archive's time range.
func (s *Session) Skip(seconds float64) (models.BookState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trav == nil {
		return models.BookState{}, models.ErrNoMarket
	}
	s.trav.Skip(seconds)
	return s.trav.State(s.displayDepth), nil
}

// Goto moves the position to an absolute millisecond timestamp. Targets
// outside the archive's range fail with models.ErrOutOfRange and leave
// the position unchanged.
func (s *Session) Goto(timestampMillis int64) (models.BookState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trav == nil {
		return models.BookState{}, models.ErrNoMarket
	}
	if err := s.trav.Goto(timestampMillis); err != nil {
		return s.trav.State(s.displayDepth), err
	}
	return s.trav.State(s.displayDepth), nil
}

// Reset rewinds the position to the archive snapshot.
func (s *Session) Reset() (models.BookState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trav == nil {
		return models.BookState{}, models.ErrNoMarket
	}
	s.trav.Reset()
	return s.trav.State(s.displayDepth), nil
}

// Range returns the selected archive's [start, end] timestamps.
func (s *Session) Range() (start, end int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trav == nil {
		return 0, 0, models.ErrNoMarket
	}
	return s.trav.Start(), s.trav.End(), nil
}
