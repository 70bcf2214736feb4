package archive

import (
	"errors"
	"testing"

	"github.com/dzakarias/orderbook-replayer/models"
)

func TestFilenameRoundTrip(t *testing.T) {
	id := models.ArchiveID{Symbol: "BTCUSDT", Date: "2026-08-25", Depth: 500}
	name := Filename(id)
	if name != "2026-08-25_BTCUSDT_ob500.data" {
		t.Fatalf("unexpected name: %s", name)
	}
	parsed, err := ParseFilename(name)
	if err != nil {
		t.Fatalf("ParseFilename failed: %v", err)
	}
	if parsed != id {
		t.Fatalf("round trip mismatch: %+v", parsed)
	}
}

func TestParseFilenameSymbolWithUnderscore(t *testing.T) {
	id, err := ParseFilename("2026-08-25_BTC_USDT_ob50.data")
	if err != nil {
		t.Fatalf("ParseFilename failed: %v", err)
	}
	if id.Symbol != "BTC_USDT" || id.Depth != 50 {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestParseFilenameRejectsForeignNames(t *testing.T) {
	for _, name := range []string{
		"notes.txt",
		"BTCUSDT_ob500.data",
		"2026-08-25_BTCUSDT_ob500.json",
		"2026-08-25_BTCUSDT_ob0.data",
	} {
		if _, err := ParseFilename(name); !errors.Is(err, models.ErrMalformed) {
			t.Errorf("ParseFilename(%q) = %v, want ErrMalformed", name, err)
		}
	}
}

func TestWithDepthRewritesOnlyDepth(t *testing.T) {
	out, err := WithDepth("2026-08-25_ETHUSDT_ob500.data", 10)
	if err != nil {
		t.Fatalf("WithDepth failed: %v", err)
	}
	if out != "2026-08-25_ETHUSDT_ob10.data" {
		t.Fatalf("unexpected name: %s", out)
	}
}
