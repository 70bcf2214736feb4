package recorder

import (
	"context"
	"fmt"
	"sync"

	futures "github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/dzakarias/orderbook-replayer/config"
	"github.com/dzakarias/orderbook-replayer/internal/metrics"
	"github.com/dzakarias/orderbook-replayer/logger"
	"github.com/dzakarias/orderbook-replayer/models"
)

// BinanceFeed records futures order books from Binance: one REST depth
// snapshot per symbol, then the websocket diff depth stream. REST calls
// share a rate limiter so many symbols cannot burst the API.
type BinanceFeed struct {
	cfg     config.BinanceFeedConfig
	updates chan<- Update
	limiter *rate.Limiter
	client  *futures.Client

	ctx     context.Context
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

// NewBinanceFeed creates the feed; no connection is made until Start.
func NewBinanceFeed(cfg config.BinanceFeedConfig, rl config.FeedRateLimitConfig, updates chan<- Update) *BinanceFeed {
	return &BinanceFeed{
		cfg:     cfg,
		updates: updates,
		limiter: rate.NewLimiter(rate.Limit(rl.RequestsPerSecond), rl.BurstSize),
		client:  futures.NewClient("", ""),
		log:     logger.GetLogger(),
	}
}

func (f *BinanceFeed) Name() string { return "binance" }

// Start launches one stream worker per configured symbol.
func (f *BinanceFeed) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return fmt.Errorf("binance feed already running")
	}
	f.running = true
	f.ctx = ctx
	f.mu.Unlock()

	log := f.log.WithComponent("binance_feed")
	log.WithFields(logger.Fields{"symbols": f.cfg.Symbols, "depth": f.cfg.Depth}).Info("starting binance feed")

	for _, symbol := range f.cfg.Symbols {
		f.wg.Add(1)
		go f.streamSymbol(symbol)
	}
	return nil
}

// Stop waits for all stream workers to terminate.
func (f *BinanceFeed) Stop() {
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
	f.wg.Wait()
	f.log.WithComponent("binance_feed").Info("binance feed stopped")
}

func (f *BinanceFeed) streamSymbol(symbol string) {
	defer f.wg.Done()

	log := f.log.WithComponent("binance_feed").WithFields(logger.Fields{
		"symbol": symbol,
		"worker": "depth_stream",
	})

	if err := f.snapshot(symbol); err != nil {
		log.WithError(err).Error("failed to fetch depth snapshot")
		return
	}

	handler := func(event *futures.WsDepthEvent) {
		upd := Update{
			Exchange:  "binance",
			Symbol:    symbol,
			Timestamp: event.Time,
			Seq:       event.LastUpdateID,
			Bids:      binanceBids(event.Bids),
			Asks:      binanceAsks(event.Asks),
		}
		f.send(upd, log)
	}
	errHandler := func(err error) {
		if err != nil {
			log.WithError(err).Warn("websocket error")
		}
	}

	doneC, stopC, err := futures.WsDiffDepthServe(symbol, handler, errHandler)
	if err != nil {
		log.WithError(err).Error("failed to subscribe to diff depth stream")
		return
	}

	select {
	case <-f.ctx.Done():
		close(stopC)
		<-doneC
	case <-doneC:
		log.Warn("depth stream ended")
	}
}

// snapshot fetches the REST depth snapshot and emits it as the symbol's
// opening update.
func (f *BinanceFeed) snapshot(symbol string) error {
	if err := f.limiter.Wait(f.ctx); err != nil {
		return err
	}
	res, err := f.client.NewDepthService().Symbol(symbol).Limit(f.cfg.Depth).Do(f.ctx)
	if err != nil {
		return err
	}
	upd := Update{
		Exchange:  "binance",
		Symbol:    symbol,
		Snapshot:  true,
		Timestamp: res.TradeTime,
		Seq:       res.LastUpdateID,
		Bids:      binanceBids(res.Bids),
		Asks:      binanceAsks(res.Asks),
	}
	f.send(upd, f.log.WithComponent("binance_feed").WithFields(logger.Fields{"symbol": symbol}))
	return nil
}

func (f *BinanceFeed) send(upd Update, log *logger.Entry) {
	select {
	case f.updates <- upd:
		metrics.Inc(metrics.UpdatesReceived)
	case <-f.ctx.Done():
	default:
		metrics.Inc(metrics.MessagesDropped)
		log.Warn("update channel full, dropping message")
	}
}

func binanceBids(levels []futures.Bid) []models.PriceLevel {
	out := make([]models.PriceLevel, 0, len(levels))
	for _, l := range levels {
		pl, err := parseLevel(l.Price, l.Quantity)
		if err != nil {
			continue
		}
		out = append(out, pl)
	}
	return out
}

func binanceAsks(levels []futures.Ask) []models.PriceLevel {
	out := make([]models.PriceLevel, 0, len(levels))
	for _, l := range levels {
		pl, err := parseLevel(l.Price, l.Quantity)
		if err != nil {
			continue
		}
		out = append(out, pl)
	}
	return out
}

func parseLevel(price, qty string) (models.PriceLevel, error) {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return models.PriceLevel{}, err
	}
	q, err := decimal.NewFromString(qty)
	if err != nil {
		return models.PriceLevel{}, err
	}
	return models.PriceLevel{Price: p, Qty: q}, nil
}
