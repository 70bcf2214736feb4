// Package archive reads and writes order book history archives: one
// snapshot record followed by delta-set records with strictly increasing
// timestamps. The on-disk encoding is JSON lines with decimal strings for
// prices and quantities; the codec hides it behind Snapshot/DeltaSet so
// the format can change without touching transcoder or replay logic.
package archive

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/shopspring/decimal"

	"github.com/dzakarias/orderbook-replayer/models"
)

// maxRecordBytes bounds a single archive line. A 500-level snapshot with
// long decimal strings stays well under this.
const maxRecordBytes = 4 << 20

// record is the wire shape shared by snapshot and delta lines.
type record struct {
	Timestamp int64       `json:"t"`
	Seq       int64       `json:"s"`
	Bids      [][2]string `json:"b,omitempty"`
	Asks      [][2]string `json:"a,omitempty"`
}

func parseLevels(raw [][2]string) ([]models.PriceLevel, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	levels := make([]models.PriceLevel, 0, len(raw))
	for _, pair := range raw {
		price, err := decimal.NewFromString(pair[0])
		if err != nil {
			return nil, fmt.Errorf("price %q: %w", pair[0], err)
		}
		qty, err := decimal.NewFromString(pair[1])
		if err != nil {
			return nil, fmt.Errorf("qty %q: %w", pair[1], err)
		}
		if qty.IsNegative() {
			return nil, fmt.Errorf("negative qty %q at price %q", pair[1], pair[0])
		}
		levels = append(levels, models.PriceLevel{Price: price, Qty: qty})
	}
	return levels, nil
}

func formatLevels(levels []models.PriceLevel) [][2]string {
	if len(levels) == 0 {
		return nil
	}
	raw := make([][2]string, len(levels))
	for i, l := range levels {
		raw[i] = [2]string{l.Price.String(), l.Qty.String()}
	}
	return raw
}

// Decoder reads one archive record stream. Snapshot must be called before
// the first Next. Any format violation is reported as models.ErrMalformed.
type Decoder struct {
	scanner  *bufio.Scanner
	line     int
	lastTS   int64
	started  bool
	snapDone bool
}

// NewDecoder wraps r. The reader is consumed line by line; the caller
// retains ownership and closes it.
func NewDecoder(r io.Reader) *Decoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxRecordBytes)
	return &Decoder{scanner: sc}
}

func (d *Decoder) next() (record, error) {
	for d.scanner.Scan() {
		d.line++
		raw := d.scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return record{}, fmt.Errorf("%w: line %d: %v", models.ErrMalformed, d.line, err)
		}
		if rec.Timestamp <= 0 {
			return record{}, fmt.Errorf("%w: line %d: missing timestamp", models.ErrMalformed, d.line)
		}
		return rec, nil
	}
	if err := d.scanner.Err(); err != nil {
		return record{}, fmt.Errorf("%w: line %d: %v", models.ErrMalformed, d.line, err)
	}
	return record{}, io.EOF
}

// Snapshot reads the archive's leading snapshot record.
func (d *Decoder) Snapshot() (models.Snapshot, error) {
	if d.snapDone {
		return models.Snapshot{}, fmt.Errorf("snapshot already read")
	}
	rec, err := d.next()
	if err == io.EOF {
		return models.Snapshot{}, fmt.Errorf("%w: empty archive", models.ErrMalformed)
	}
	if err != nil {
		return models.Snapshot{}, err
	}
	bids, err := parseLevels(rec.Bids)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("%w: line %d: bids: %v", models.ErrMalformed, d.line, err)
	}
	asks, err := parseLevels(rec.Asks)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("%w: line %d: asks: %v", models.ErrMalformed, d.line, err)
	}
	for _, l := range append(bids[:len(bids):len(bids)], asks...) {
		if l.IsTombstone() {
			return models.Snapshot{}, fmt.Errorf("%w: line %d: zero qty in snapshot", models.ErrMalformed, d.line)
		}
	}
	d.lastTS = rec.Timestamp
	d.snapDone = true
	return models.Snapshot{Timestamp: rec.Timestamp, Seq: rec.Seq, Bids: bids, Asks: asks}, nil
}

// Next reads the following delta set, returning io.EOF at the end of the
// archive. Timestamps must strictly increase.
func (d *Decoder) Next() (models.DeltaSet, error) {
	if !d.snapDone {
		return models.DeltaSet{}, fmt.Errorf("snapshot not read")
	}
	rec, err := d.next()
	if err != nil {
		return models.DeltaSet{}, err
	}
	if rec.Timestamp <= d.lastTS {
		return models.DeltaSet{}, fmt.Errorf("%w: line %d: timestamp %d not after %d",
			models.ErrMalformed, d.line, rec.Timestamp, d.lastTS)
	}
	bids, err := parseLevels(rec.Bids)
	if err != nil {
		return models.DeltaSet{}, fmt.Errorf("%w: line %d: bids: %v", models.ErrMalformed, d.line, err)
	}
	asks, err := parseLevels(rec.Asks)
	if err != nil {
		return models.DeltaSet{}, fmt.Errorf("%w: line %d: asks: %v", models.ErrMalformed, d.line, err)
	}
	d.lastTS = rec.Timestamp
	return models.DeltaSet{Timestamp: rec.Timestamp, Seq: rec.Seq, Bids: bids, Asks: asks}, nil
}

// ReadAll decodes a complete archive from r.
func ReadAll(r io.Reader) (models.Snapshot, []models.DeltaSet, error) {
	dec := NewDecoder(r)
	snap, err := dec.Snapshot()
	if err != nil {
		return models.Snapshot{}, nil, err
	}
	var deltas []models.DeltaSet
	for {
		ds, err := dec.Next()
		if err == io.EOF {
			return snap, deltas, nil
		}
		if err != nil {
			return models.Snapshot{}, nil, err
		}
		deltas = append(deltas, ds)
	}
}

// Encoder writes one archive record stream. Flush must be called before
// the underlying writer is closed.
type Encoder struct {
	w        *bufio.Writer
	lastTS   int64
	snapDone bool
}

// NewEncoder wraps w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

func (e *Encoder) write(rec record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := e.w.Write(data); err != nil {
		return err
	}
	return e.w.WriteByte('\n')
}

// WriteSnapshot writes the leading snapshot record.
func (e *Encoder) WriteSnapshot(s models.Snapshot) error {
	if e.snapDone {
		return fmt.Errorf("snapshot already written")
	}
	e.snapDone = true
	e.lastTS = s.Timestamp
	return e.write(record{Timestamp: s.Timestamp, Seq: s.Seq, Bids: formatLevels(s.Bids), Asks: formatLevels(s.Asks)})
}

// WriteDeltaSet appends one delta set. Timestamps must strictly increase.
func (e *Encoder) WriteDeltaSet(d models.DeltaSet) error {
	if !e.snapDone {
		return fmt.Errorf("snapshot not written")
	}
	if d.Timestamp <= e.lastTS {
		return fmt.Errorf("%w: timestamp %d not after %d", models.ErrMalformed, d.Timestamp, e.lastTS)
	}
	e.lastTS = d.Timestamp
	return e.write(record{Timestamp: d.Timestamp, Seq: d.Seq, Bids: formatLevels(d.Bids), Asks: formatLevels(d.Asks)})
}

// Flush drains buffered output to the underlying writer.
func (e *Encoder) Flush() error {
	return e.w.Flush()
}
