package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	bybit "github.com/bybit-exchange/bybit.go.api"

	"github.com/dzakarias/orderbook-replayer/config"
	"github.com/dzakarias/orderbook-replayer/internal/metrics"
	"github.com/dzakarias/orderbook-replayer/logger"
	"github.com/dzakarias/orderbook-replayer/models"
)

// BybitFeed records linear futures order books from the Bybit v5 public
// websocket. Bybit pushes a full snapshot on subscribe and deltas after,
// which maps directly onto the archive format.
type BybitFeed struct {
	cfg     config.BybitFeedConfig
	updates chan<- Update

	ctx     context.Context
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

// NewBybitFeed creates the feed; no connection is made until Start.
func NewBybitFeed(cfg config.BybitFeedConfig, updates chan<- Update) *BybitFeed {
	return &BybitFeed{
		cfg:     cfg,
		updates: updates,
		log:     logger.GetLogger(),
	}
}

func (f *BybitFeed) Name() string { return "bybit" }

// Start subscribes to order book streams for all configured symbols over
// one websocket connection.
func (f *BybitFeed) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return fmt.Errorf("bybit feed already running")
	}
	f.running = true
	f.ctx = ctx
	f.mu.Unlock()

	log := f.log.WithComponent("bybit_feed")
	log.WithFields(logger.Fields{"symbols": f.cfg.Symbols, "depth": f.cfg.Depth}).Info("starting bybit feed")

	f.wg.Add(1)
	go f.stream()
	return nil
}

// Stop waits for the stream worker to terminate.
func (f *BybitFeed) Stop() {
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
	f.wg.Wait()
	f.log.WithComponent("bybit_feed").Info("bybit feed stopped")
}

// orderbookMessage is the v5 public websocket order book payload.
type orderbookMessage struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
	Ts    int64  `json:"ts"`
	Data  struct {
		Symbol string     `json:"s"`
		Bids   [][]string `json:"b"`
		Asks   [][]string `json:"a"`
		Seq    int64      `json:"seq"`
	} `json:"data"`
}

func (f *BybitFeed) stream() {
	defer f.wg.Done()

	log := f.log.WithComponent("bybit_feed").WithFields(logger.Fields{
		"symbols": strings.Join(f.cfg.Symbols, ","),
		"worker":  "orderbook_stream",
	})

	args := make([]string, len(f.cfg.Symbols))
	for i, s := range f.cfg.Symbols {
		args[i] = fmt.Sprintf("orderbook.%d.%s", f.cfg.Depth, s)
	}

	handler := func(message string) error {
		var msg orderbookMessage
		if err := json.Unmarshal([]byte(message), &msg); err != nil {
			return nil
		}
		if !strings.HasPrefix(msg.Topic, "orderbook.") {
			return nil
		}
		f.handleMessage(&msg, log)
		return nil
	}

	ws := bybit.NewBybitPublicWebSocket(f.cfg.URL, handler)
	ws.Connect().SendSubscription(args)

	<-f.ctx.Done()
	ws.Disconnect()
}

func (f *BybitFeed) handleMessage(msg *orderbookMessage, log *logger.Entry) {
	upd := Update{
		Exchange:  "bybit",
		Symbol:    msg.Data.Symbol,
		Snapshot:  msg.Type == "snapshot",
		Timestamp: msg.Ts,
		Seq:       msg.Data.Seq,
		Bids:      parsePairs(msg.Data.Bids),
		Asks:      parsePairs(msg.Data.Asks),
	}
	select {
	case f.updates <- upd:
		metrics.Inc(metrics.UpdatesReceived)
	case <-f.ctx.Done():
	default:
		metrics.Inc(metrics.MessagesDropped)
		log.Warn("update channel full, dropping message")
	}
}

// parsePairs converts [price, qty] string pairs, skipping malformed ones.
func parsePairs(raw [][]string) []models.PriceLevel {
	out := make([]models.PriceLevel, 0, len(raw))
	for _, pair := range raw {
		if len(pair) < 2 {
			continue
		}
		pl, err := parseLevel(pair[0], pair[1])
		if err != nil {
			continue
		}
		out = append(out, pl)
	}
	return out
}
