package replay

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dzakarias/orderbook-replayer/internal/archive"
	"github.com/dzakarias/orderbook-replayer/models"
)

const sessionArchive = `{"t":1000,"s":1,"b":[["100.00","5"],["99.50","3"],["99.00","2"]],"a":[["100.50","4"],["101.00","2"],["101.50","6"]]}
{"t":2000,"s":2,"b":[["100.00","0"],["98.50","1"]]}
{"t":3000,"s":3,"a":[["100.50","0"]]}
`

func newTestSession(t *testing.T, displayDepth int) *Session {
	t.Helper()
	dir := t.TempDir()
	name := archive.Filename(models.ArchiveID{Symbol: "BTCUSDT", Date: "2026-08-25", Depth: 500})
	if err := os.WriteFile(filepath.Join(dir, name), []byte(sessionArchive), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := archive.NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return NewSession(store, displayDepth, time.Second)
}

func TestSessionRequiresSelectedMarket(t *testing.T) {
	s := newTestSession(t, 10)

	if _, err := s.StepForward(); !errors.Is(err, models.ErrNoMarket) {
		t.Fatalf("StepForward = %v, want ErrNoMarket", err)
	}
	if _, err := s.Skip(5); !errors.Is(err, models.ErrNoMarket) {
		t.Fatalf("Skip = %v, want ErrNoMarket", err)
	}
	if _, err := s.Goto(2000); !errors.Is(err, models.ErrNoMarket) {
		t.Fatalf("Goto = %v, want ErrNoMarket", err)
	}
	if _, err := s.Reset(); !errors.Is(err, models.ErrNoMarket) {
		t.Fatalf("Reset = %v, want ErrNoMarket", err)
	}
	if _, _, err := s.Range(); !errors.Is(err, models.ErrNoMarket) {
		t.Fatalf("Range = %v, want ErrNoMarket", err)
	}
}

func TestSessionSelectMarket(t *testing.T) {
	s := newTestSession(t, 2)

	st, err := s.SelectMarket("BTCUSDT", "2026-08-25")
	if err != nil {
		t.Fatalf("SelectMarket failed: %v", err)
	}
	if st.Timestamp != 1000 {
		t.Fatalf("state at %d, want snapshot time 1000", st.Timestamp)
	}
	// display depth truncates the 3-level archive to 2 per side
	if len(st.Bids) != 2 || len(st.Asks) != 2 {
		t.Fatalf("state not truncated to display depth: %d bids, %d asks", len(st.Bids), len(st.Asks))
	}

	id, ok := s.Market()
	if !ok || id.Symbol != "BTCUSDT" || id.Depth != 500 {
		t.Fatalf("unexpected market: %+v ok=%v", id, ok)
	}

	start, end, err := s.Range()
	if err != nil {
		t.Fatalf("Range failed: %v", err)
	}
	if start != 1000 || end != 3000 {
		t.Fatalf("range = [%d, %d], want [1000, 3000]", start, end)
	}
}

func TestSessionSelectMarketNotFound(t *testing.T) {
	s := newTestSession(t, 10)
	if _, err := s.SelectMarket("ETHUSDT", "2026-08-25"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("SelectMarket = %v, want ErrNotFound", err)
	}
}

func TestSessionNavigation(t *testing.T) {
	s := newTestSession(t, 2)
	if _, err := s.SelectMarket("BTCUSDT", "2026-08-25"); err != nil {
		t.Fatalf("SelectMarket failed: %v", err)
	}

	st, err := s.StepForward()
	if err != nil {
		t.Fatalf("StepForward failed: %v", err)
	}
	if st.Timestamp != 2000 {
		t.Fatalf("position = %d, want 2000", st.Timestamp)
	}
	if bid, _ := st.BestBid(); bid.Price.String() != "99.5" {
		t.Fatalf("unexpected best bid after step: %v", bid.Price)
	}

	st, err = s.Goto(3000)
	if err != nil {
		t.Fatalf("Goto failed: %v", err)
	}
	if ask, _ := st.BestAsk(); ask.Price.String() != "101" {
		t.Fatalf("unexpected best ask after goto: %v", ask.Price)
	}

	if _, err := s.Goto(500); !errors.Is(err, models.ErrOutOfRange) {
		t.Fatalf("Goto(500) = %v, want ErrOutOfRange", err)
	}

	st, err = s.StepForward()
	if !errors.Is(err, models.ErrEndOfArchive) {
		t.Fatalf("StepForward at end = %v, want ErrEndOfArchive", err)
	}
	if st.Timestamp != 3000 {
		t.Fatal("failed step moved the position")
	}

	st, err = s.Reset()
	if err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if st.Timestamp != 1000 {
		t.Fatalf("position after reset = %d, want 1000", st.Timestamp)
	}
}

func TestSessionSelectMarketReplacesPrevious(t *testing.T) {
	s := newTestSession(t, 2)
	if _, err := s.SelectMarket("BTCUSDT", "2026-08-25"); err != nil {
		t.Fatalf("SelectMarket failed: %v", err)
	}
	if _, err := s.Skip(10); err != nil {
		t.Fatalf("Skip failed: %v", err)
	}

	st, err := s.SelectMarket("BTCUSDT", "2026-08-25")
	if err != nil {
		t.Fatalf("reselect failed: %v", err)
	}
	if st.Timestamp != 1000 {
		t.Fatalf("reselect did not rewind: position %d", st.Timestamp)
	}
}

func TestSessionIDs(t *testing.T) {
	a, b := newTestSession(t, 10), newTestSession(t, 10)
	if a.ID() == "" || a.ID() == b.ID() {
		t.Fatalf("session ids not unique: %q vs %q", a.ID(), b.ID())
	}
}
