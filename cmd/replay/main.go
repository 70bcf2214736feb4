// Command replay is an interactive console over recorded archives: pick
// a market and day, then walk the order book through time.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dzakarias/orderbook-replayer/config"
	"github.com/dzakarias/orderbook-replayer/internal/archive"
	"github.com/dzakarias/orderbook-replayer/internal/replay"
	"github.com/dzakarias/orderbook-replayer/logger"
	"github.com/dzakarias/orderbook-replayer/models"
)

const usage = `commands:
  markets [date]          list recorded markets (date YYYY-MM-DD, default today)
  select <symbol> [date]  load a market for replay
  step                    apply the next delta set
  skip <seconds>          move by a signed number of seconds
  goto <millis>           jump to an absolute timestamp
  reset                   rewind to the snapshot
  show                    print the current book
  quit`

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	log := logger.GetLogger()
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}
	// Interactive tool: keep the console clean unless something breaks.
	if err := log.Configure("warn", "text", "stderr", 0); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	store, err := archive.NewStore(cfg.Archive.Dir)
	if err != nil {
		log.WithError(err).Error("failed to open archive store")
		os.Exit(1)
	}
	session := replay.NewSession(store, cfg.Replay.DisplayDepth, cfg.Replay.CheckpointInterval)

	fmt.Printf("orderbook replay console, archives in %s\n%s\n", store.Dir(), usage)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "markets":
			date := models.DateOf(time.Now())
			if len(fields) > 1 {
				date = fields[1]
			}
			symbols, err := session.ListMarkets(date)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			if len(symbols) == 0 {
				fmt.Println("no markets recorded for", date)
				continue
			}
			for _, s := range symbols {
				fmt.Println(" ", s)
			}

		case "select":
			if len(fields) < 2 {
				fmt.Println("usage: select <symbol> [date]")
				continue
			}
			date := models.DateOf(time.Now())
			if len(fields) > 2 {
				date = fields[2]
			}
			state, err := session.SelectMarket(fields[1], date)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			printState(state)

		case "step":
			state, err := session.StepForward()
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			printState(state)

		case "skip":
			if len(fields) < 2 {
				fmt.Println("usage: skip <seconds>")
				continue
			}
			seconds, err := strconv.ParseFloat(fields[1], 64)
			if err != nil {
				fmt.Println("error: bad seconds:", fields[1])
				continue
			}
			state, err := session.Skip(seconds)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			printState(state)

		case "goto":
			if len(fields) < 2 {
				fmt.Println("usage: goto <millis>")
				continue
			}
			millis, err := strconv.ParseInt(fields[1], 10, 64)
			if err != nil {
				fmt.Println("error: bad timestamp:", fields[1])
				continue
			}
			state, err := session.Goto(millis)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			printState(state)

		case "reset":
			state, err := session.Reset()
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			printState(state)

		case "show":
			state, err := session.Skip(0)
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			printState(state)

		case "help":
			fmt.Println(usage)

		case "quit", "exit":
			return

		default:
			fmt.Println("unknown command:", fields[0])
		}
	}
}

func printState(st models.BookState) {
	ts := time.UnixMilli(st.Timestamp).UTC().Format("2006-01-02 15:04:05.000")
	fmt.Printf("%s (%d)\n", ts, st.Timestamp)
	fmt.Printf("%20s %16s | %-16s %-20s\n", "bid qty", "bid", "ask", "ask qty")
	rows := len(st.Bids)
	if len(st.Asks) > rows {
		rows = len(st.Asks)
	}
	for i := 0; i < rows; i++ {
		bidPrice, bidQty, askPrice, askQty := "", "", "", ""
		if i < len(st.Bids) {
			bidPrice, bidQty = st.Bids[i].Price.String(), st.Bids[i].Qty.String()
		}
		if i < len(st.Asks) {
			askPrice, askQty = st.Asks[i].Price.String(), st.Asks[i].Qty.String()
		}
		fmt.Printf("%20s %16s | %-16s %-20s\n", bidQty, bidPrice, askPrice, askQty)
	}
}
