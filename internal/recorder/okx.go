package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dzakarias/orderbook-replayer/config"
	"github.com/dzakarias/orderbook-replayer/internal/metrics"
	"github.com/dzakarias/orderbook-replayer/logger"
)

// OkxFeed records swap order books from the OKX public websocket. It
// connects directly with gorilla/websocket; OKX sends a snapshot action
// on subscribe and update actions after, and expects an application-level
// ping at least every 30 seconds.
type OkxFeed struct {
	cfg     config.OkxFeedConfig
	updates chan<- Update

	ctx     context.Context
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

// NewOkxFeed creates the feed; no connection is made until Start.
func NewOkxFeed(cfg config.OkxFeedConfig, updates chan<- Update) *OkxFeed {
	return &OkxFeed{
		cfg:     cfg,
		updates: updates,
		log:     logger.GetLogger(),
	}
}

func (f *OkxFeed) Name() string { return "okx" }

// Start establishes the websocket connection and subscribes to the book
// channel for all configured symbols. Dropped connections reconnect
// until the context is cancelled.
func (f *OkxFeed) Start(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return fmt.Errorf("okx feed already running")
	}
	f.running = true
	f.ctx = ctx
	f.mu.Unlock()

	log := f.log.WithComponent("okx_feed")
	log.WithFields(logger.Fields{"symbols": f.cfg.Symbols}).Info("starting okx feed")

	f.wg.Add(1)
	go f.stream()
	return nil
}

// Stop waits for the stream worker to terminate.
func (f *OkxFeed) Stop() {
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
	f.wg.Wait()
	f.log.WithComponent("okx_feed").Info("okx feed stopped")
}

func (f *OkxFeed) stream() {
	defer f.wg.Done()
	log := f.log.WithComponent("okx_feed").WithFields(logger.Fields{
		"symbols": f.cfg.Symbols,
		"worker":  "book_stream",
	})

	for {
		if f.ctx.Err() != nil {
			return
		}

		dialer := websocket.Dialer{}
		conn, _, err := dialer.Dial(f.cfg.URL, nil)
		if err != nil {
			log.WithError(err).Warn("failed to connect websocket, retrying")
			select {
			case <-time.After(5 * time.Second):
				continue
			case <-f.ctx.Done():
				return
			}
		}

		if err := f.subscribe(conn); err != nil {
			log.WithError(err).Warn("failed to subscribe")
			conn.Close()
			continue
		}

		pingTicker := time.NewTicker(20 * time.Second)
		done := make(chan struct{})
		go func() {
			defer pingTicker.Stop()
			for {
				select {
				case <-done:
					return
				case <-f.ctx.Done():
					conn.Close()
					return
				case <-pingTicker.C:
					conn.WriteMessage(websocket.TextMessage, []byte("ping"))
				}
			}
		}()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				close(done)
				conn.Close()
				if f.ctx.Err() != nil {
					return
				}
				log.WithError(err).Warn("websocket read error, reconnecting")
				break
			}
			f.processMessage(msg, log)
		}

		time.Sleep(time.Second)
	}
}

func (f *OkxFeed) subscribe(conn *websocket.Conn) error {
	args := make([]map[string]string, 0, len(f.cfg.Symbols))
	for _, sym := range f.cfg.Symbols {
		args = append(args, map[string]string{
			"channel": "books",
			"instId":  sym,
		})
	}
	return conn.WriteJSON(map[string]interface{}{"op": "subscribe", "args": args})
}

// bookEvent is the OKX books channel payload.
type bookEvent struct {
	Arg struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Action string `json:"action"`
	Data   []struct {
		Bids  [][]string `json:"bids"`
		Asks  [][]string `json:"asks"`
		Ts    string     `json:"ts"`
		SeqID int64      `json:"seqId"`
	} `json:"data"`
}

func (f *OkxFeed) processMessage(msg []byte, log *logger.Entry) {
	if string(msg) == "pong" {
		return
	}
	var base map[string]json.RawMessage
	if err := json.Unmarshal(msg, &base); err != nil {
		log.WithError(err).Debug("failed to decode message")
		return
	}
	if _, ok := base["event"]; ok {
		// subscribe confirmations and errors
		return
	}

	var evt bookEvent
	if err := json.Unmarshal(msg, &evt); err != nil || len(evt.Data) == 0 {
		return
	}
	book := evt.Data[0]
	ts, _ := strconv.ParseInt(book.Ts, 10, 64)

	upd := Update{
		Exchange:  "okx",
		Symbol:    evt.Arg.InstID,
		Snapshot:  evt.Action == "snapshot",
		Timestamp: ts,
		Seq:       book.SeqID,
		Bids:      parsePairs(book.Bids),
		Asks:      parsePairs(book.Asks),
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
