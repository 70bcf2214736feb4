package recorder

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/dzakarias/orderbook-replayer/internal/archive"
	"github.com/dzakarias/orderbook-replayer/internal/book"
	"github.com/dzakarias/orderbook-replayer/internal/metrics"
	"github.com/dzakarias/orderbook-replayer/logger"
	"github.com/dzakarias/orderbook-replayer/models"
)

// flushEvery bounds how much buffered archive data a crash can lose.
const flushEvery = 500

// Uploader receives completed archive files, typically for object
// storage replication.
type Uploader interface {
	Upload(ctx context.Context, path string) error
}

// symbolState is the writer's view of one symbol: the open archive file
// and a live book used to synthesize the snapshot at day rollover.
type symbolState struct {
	id      models.ArchiveID
	file    *os.File
	enc     *archive.Encoder
	live    *book.Book
	lastTs  int64
	pending int
}

// ArchiveWriter serializes updates from all feeds into archive files,
// one per symbol and trading day. Not safe for concurrent use; Run is
// the single consumer of the update channel.
type ArchiveWriter struct {
	dir      string
	uploader Uploader
	states   map[string]*symbolState
	log      *logger.Entry
}

// NewArchiveWriter creates a writer rooted at dir, creating it if needed.
func NewArchiveWriter(dir string, uploader Uploader) (*ArchiveWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &ArchiveWriter{
		dir:      dir,
		uploader: uploader,
		states:   make(map[string]*symbolState),
		log:      logger.GetLogger().WithComponent("archive_writer"),
	}, nil
}

// Run consumes updates until the channel is closed, then closes every
// open archive file.
func (w *ArchiveWriter) Run(ctx context.Context, updates <-chan Update) {
	for upd := range updates {
		w.handle(ctx, upd)
	}
	for sym := range w.states {
		w.closeSymbol(ctx, sym)
	}
}

func (w *ArchiveWriter) handle(ctx context.Context, upd Update) {
	if upd.Snapshot {
		w.handleSnapshot(ctx, upd)
		return
	}
	w.handleDelta(ctx, upd)
}

func (w *ArchiveWriter) handleSnapshot(ctx context.Context, upd Update) {
	snap := models.Snapshot{
		Timestamp: upd.Timestamp,
		Seq:       upd.Seq,
		Bids:      upd.Bids,
		Asks:      upd.Asks,
	}
	depth := len(snap.Bids)
	if len(snap.Asks) > depth {
		depth = len(snap.Asks)
	}
	id := models.ArchiveID{
		Symbol: upd.Symbol,
		Date:   models.DateOf(time.UnixMilli(upd.Timestamp)),
		Depth:  depth,
	}
	if err := w.openSymbol(ctx, id, snap); err != nil {
		w.log.WithError(err).WithFields(logger.Fields{
			"exchange": upd.Exchange,
			"symbol":   upd.Symbol,
		}).Error("failed to open archive file")
	}
}

func (w *ArchiveWriter) handleDelta(ctx context.Context, upd Update) {
	s, ok := w.states[upd.Symbol]
	if !ok {
		w.log.WithFields(logger.Fields{
			"exchange": upd.Exchange,
			"symbol":   upd.Symbol,
		}).Warn("delta before snapshot, dropping")
		return
	}
	if upd.Timestamp <= s.lastTs {
		w.log.WithFields(logger.Fields{
			"symbol":  upd.Symbol,
			"ts":      upd.Timestamp,
			"last_ts": s.lastTs,
		}).Warn("out of order delta, dropping")
		return
	}

	d := models.DeltaSet{
		Timestamp: upd.Timestamp,
		Seq:       upd.Seq,
		Bids:      upd.Bids,
		Asks:      upd.Asks,
	}
	if d.Empty() {
		return
	}
	s.live.ApplyDeltaSet(d)

	// Day rollover: start the new day's file with a snapshot synthesized
	// from the live book, so every file replays standalone.
	if date := models.DateOf(time.UnixMilli(upd.Timestamp)); date != s.id.Date {
		id := s.id
		id.Date = date
		if err := w.openSymbol(ctx, id, s.live.Snapshot(0)); err != nil {
			w.log.WithError(err).WithFields(logger.Fields{"symbol": upd.Symbol}).Error("failed to roll archive file")
		}
		return
	}

	if err := s.enc.WriteDeltaSet(d); err != nil {
		w.log.WithError(err).WithFields(logger.Fields{"symbol": upd.Symbol}).Error("failed to write delta set")
		return
	}
	s.lastTs = upd.Timestamp
	metrics.Inc(metrics.DeltasWritten)
	s.pending++
	if s.pending >= flushEvery {
		if err := s.enc.Flush(); err != nil {
			w.log.WithError(err).WithFields(logger.Fields{"symbol": upd.Symbol}).Error("failed to flush archive file")
		}
		s.pending = 0
	}
}

// openSymbol closes any open file for the snapshot's symbol and starts a
// new archive file beginning with the snapshot.
func (w *ArchiveWriter) openSymbol(ctx context.Context, id models.ArchiveID, snap models.Snapshot) error {
	w.closeSymbol(ctx, id.Symbol)

	path := filepath.Join(w.dir, archive.Filename(id))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	enc := archive.NewEncoder(f)
	if err := enc.WriteSnapshot(snap); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}

	w.states[id.Symbol] = &symbolState{
		id:     id,
		file:   f,
		enc:    enc,
		live:   book.FromSnapshot(snap),
		lastTs: snap.Timestamp,
	}
	metrics.Inc(metrics.SnapshotsWritten)
	w.log.WithFields(logger.Fields{
		"symbol": id.Symbol,
		"date":   id.Date,
		"depth":  id.Depth,
	}).Info("archive file opened")
	return nil
}

func (w *ArchiveWriter) closeSymbol(ctx context.Context, symbol string) {
	s, ok := w.states[symbol]
	if !ok {
		return
	}
	delete(w.states, symbol)

	log := w.log.WithFields(logger.Fields{"symbol": symbol, "date": s.id.Date})
	if err := s.enc.Flush(); err != nil {
		log.WithError(err).Error("failed to flush archive file")
	}
	if err := s.file.Close(); err != nil {
		log.WithError(err).Error("failed to close archive file")
	}
	log.Info("archive file closed")

	if w.uploader != nil {
		path := filepath.Join(w.dir, archive.Filename(s.id))
		if err := w.uploader.Upload(ctx, path); err != nil {
			log.WithError(err).Error("failed to upload archive file")
		} else {
			metrics.Inc(metrics.ArchivesUploaded)
		}
	}
}
