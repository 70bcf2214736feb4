// Package recorder captures live order book streams from exchanges and
// writes them as replayable archives: one full snapshot followed by
// timestamped delta sets, one file per symbol and trading day.
package recorder

import (
	"context"
	"fmt"
	"sync"

	"github.com/dzakarias/orderbook-replayer/config"
	"github.com/dzakarias/orderbook-replayer/logger"
	"github.com/dzakarias/orderbook-replayer/models"
)

// Update is one normalized order book message from any feed. A snapshot
// carries the complete book; a delta carries only changed levels, with
// zero quantity removing a price.
type Update struct {
	Exchange  string
	Symbol    string
	Snapshot  bool
	Timestamp int64
	Seq       int64
	Bids      []models.PriceLevel
	Asks      []models.PriceLevel
}

// Feed is one exchange connection producing updates until stopped.
type Feed interface {
	Name() string
	Start(ctx context.Context) error
	Stop()
}

// Recorder wires the configured feeds to an archive writer.
type Recorder struct {
	config  *config.Config
	updates chan Update
	writer  *ArchiveWriter
	feeds   []Feed

	ctx     context.Context
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

// NewRecorder builds a recorder from the configuration. uploader may be
// nil; when set, every completed archive file is handed to it.
func NewRecorder(cfg *config.Config, uploader Uploader) (*Recorder, error) {
	updates := make(chan Update, cfg.Recorder.WriteBuffer)

	writer, err := NewArchiveWriter(cfg.Archive.Dir, uploader)
	if err != nil {
		return nil, err
	}

	r := &Recorder{
		config:  cfg,
		updates: updates,
		writer:  writer,
		log:     logger.GetLogger(),
	}
	if cfg.Recorder.Binance.Enabled {
		r.feeds = append(r.feeds, NewBinanceFeed(cfg.Recorder.Binance, cfg.Recorder.RateLimit, updates))
	}
	if cfg.Recorder.Bybit.Enabled {
		r.feeds = append(r.feeds, NewBybitFeed(cfg.Recorder.Bybit, updates))
	}
	if cfg.Recorder.Okx.Enabled {
		r.feeds = append(r.feeds, NewOkxFeed(cfg.Recorder.Okx, updates))
	}
	if len(r.feeds) == 0 {
		return nil, fmt.Errorf("no feeds enabled")
	}
	return r, nil
}

// Start launches the writer and all configured feeds.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("recorder already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	log := r.log.WithComponent("recorder")

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.writer.Run(ctx, r.updates)
	}()

	for _, f := range r.feeds {
		if err := f.Start(ctx); err != nil {
			log.WithError(err).WithFields(logger.Fields{"feed": f.Name()}).Error("failed to start feed")
			return fmt.Errorf("start feed %s: %w", f.Name(), err)
		}
		log.WithFields(logger.Fields{"feed": f.Name()}).Info("feed started")
	}

	log.Info("recorder started successfully")
	return nil
}

// Stop terminates the feeds, drains the update channel and closes every
// open archive file.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	log := r.log.WithComponent("recorder")
	log.Info("stopping recorder")

	for _, f := range r.feeds {
		f.Stop()
	}
	close(r.updates)
	r.wg.Wait()

	log.Info("recorder stopped")
}
