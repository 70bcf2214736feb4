package archive

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/dzakarias/orderbook-replayer/models"
)

const sampleArchive = `{"t":1000,"s":1,"b":[["100.00","5"],["99.50","3"]],"a":[["100.50","2"]]}
{"t":2000,"s":2,"b":[["100.00","0"],["99.00","1"]]}
{"t":3000,"s":3,"a":[["100.50","7"]]}
`

func TestReadAll(t *testing.T) {
	snap, deltas, err := ReadAll(strings.NewReader(sampleArchive))
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if snap.Timestamp != 1000 || snap.Seq != 1 {
		t.Fatalf("unexpected snapshot position: %d/%d", snap.Timestamp, snap.Seq)
	}
	if len(snap.Bids) != 2 || len(snap.Asks) != 1 {
		t.Fatalf("unexpected snapshot sides: %d bids, %d asks", len(snap.Bids), len(snap.Asks))
	}
	if snap.Bids[0].Price.String() != "100" {
		t.Fatalf("unexpected first bid: %v", snap.Bids[0])
	}
	if len(deltas) != 2 {
		t.Fatalf("unexpected delta count: %d", len(deltas))
	}
	if !deltas[0].Bids[0].IsTombstone() {
		t.Fatal("first delta change should be a tombstone")
	}
	if len(deltas[1].Bids) != 0 || len(deltas[1].Asks) != 1 {
		t.Fatal("omitted side must decode as empty")
	}
}

func TestDecoderSkipsBlankLines(t *testing.T) {
	in := "{\"t\":1000,\"b\":[[\"1\",\"1\"]]}\n\n{\"t\":2000,\"b\":[[\"1\",\"2\"]]}\n"
	_, deltas, err := ReadAll(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(deltas) != 1 {
		t.Fatalf("unexpected delta count: %d", len(deltas))
	}
}

func TestDecoderMalformedInputs(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"empty archive", ""},
		{"broken json", "{not json}\n"},
		{"missing timestamp", `{"s":1,"b":[["1","1"]]}` + "\n"},
		{"bad decimal", `{"t":1,"b":[["abc","1"]]}` + "\n"},
		{"negative qty", `{"t":1,"b":[["1","-2"]]}` + "\n"},
		{"zero qty in snapshot", `{"t":1,"b":[["1","0"]]}` + "\n"},
		{
			"non-increasing timestamp",
			`{"t":2,"b":[["1","1"]]}` + "\n" + `{"t":2,"b":[["1","2"]]}` + "\n",
		},
		{
			"backward timestamp",
			`{"t":2,"b":[["1","1"]]}` + "\n" + `{"t":1,"b":[["1","2"]]}` + "\n",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, _, err := ReadAll(strings.NewReader(c.in)); !errors.Is(err, models.ErrMalformed) {
				t.Fatalf("ReadAll = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestEncoderDecoderRoundTrip(t *testing.T) {
	snap := models.Snapshot{
		Timestamp: 1000,
		Seq:       7,
		Bids:      []models.PriceLevel{models.Level("100.00", "5")},
		Asks:      []models.PriceLevel{models.Level("100.50", "2")},
	}
	deltas := []models.DeltaSet{
		{Timestamp: 1500, Seq: 8, Bids: []models.PriceLevel{models.Level("100.00", "0")}},
		{Timestamp: 2500, Seq: 9, Asks: []models.PriceLevel{models.Level("101.25", "0.0001")}},
	}

	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	if err := enc.WriteSnapshot(snap); err != nil {
		t.Fatalf("WriteSnapshot failed: %v", err)
	}
	for _, d := range deltas {
		if err := enc.WriteDeltaSet(d); err != nil {
			t.Fatalf("WriteDeltaSet failed: %v", err)
		}
	}
	if err := enc.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	gotSnap, gotDeltas, err := ReadAll(&buf)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if gotSnap.Timestamp != snap.Timestamp || gotSnap.Seq != snap.Seq {
		t.Fatalf("snapshot position mismatch: %+v", gotSnap)
	}
	if len(gotDeltas) != len(deltas) {
		t.Fatalf("delta count mismatch: %d", len(gotDeltas))
	}
	if got := gotDeltas[1].Asks[0].Qty.String(); got != "0.0001" {
		t.Fatalf("decimal did not round-trip: %s", got)
	}
}

func TestEncoderRejectsNonIncreasingTimestamps(t *testing.T) {
	enc := NewEncoder(io.Discard)
	if err := enc.WriteSnapshot(models.Snapshot{Timestamp: 1000}); err != nil {
		t.Fatalf("WriteSnapshot failed: %v", err)
	}
	if err := enc.WriteDeltaSet(models.DeltaSet{Timestamp: 1000}); err == nil {
		t.Fatal("expected error for repeated timestamp")
	}
}
