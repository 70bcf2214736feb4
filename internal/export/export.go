// Package export replays an archive and writes the top-of-book history
// as a Parquet dataset, one row per timestamp, side and level. Prices
// and quantities are kept as decimal strings so downstream consumers
// see exactly the values the exchange published.
package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/dzakarias/orderbook-replayer/internal/archive"
	"github.com/dzakarias/orderbook-replayer/internal/book"
	"github.com/dzakarias/orderbook-replayer/logger"
	"github.com/dzakarias/orderbook-replayer/models"
)

// Row is one price level observation in the exported dataset.
type Row struct {
	Symbol    string `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Timestamp int64  `parquet:"name=timestamp, type=INT64"`
	Seq       int64  `parquet:"name=seq, type=INT64"`
	Side      string `parquet:"name=side, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Level     int32  `parquet:"name=level, type=INT32"`
	Price     string `parquet:"name=price, type=BYTE_ARRAY, convertedtype=UTF8"`
	Qty       string `parquet:"name=qty, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// Options controls one export run.
type Options struct {
	Depth       int    // levels per side in every emitted state
	Compression string // snappy, gzip or none
	RowGroupKB  int    // parquet row group size, zero for the default
}

// File exports the archive at inputPath into dir and returns the output
// path. The output name mirrors the archive name with a .parquet suffix.
func File(inputPath, dir string, opts Options) (string, error) {
	log := logger.GetLogger().WithComponent("export").WithFields(logger.Fields{
		"input": inputPath,
		"depth": opts.Depth,
	})

	id, err := archive.ParseFilename(filepath.Base(inputPath))
	if err != nil {
		return "", err
	}
	if opts.Depth <= 0 || opts.Depth > id.Depth {
		return "", fmt.Errorf("%w: export depth %d for a depth-%d archive", models.ErrInvalidDepth, opts.Depth, id.Depth)
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return "", fmt.Errorf("open input archive: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	outputPath := filepath.Join(dir, base+".parquet")

	start := time.Now()
	rows, err := write(in, outputPath, id.Symbol, opts)
	if err != nil {
		os.Remove(outputPath)
		return "", err
	}

	log.WithFields(logger.Fields{
		"output":      outputPath,
		"rows":        rows,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("archive exported")
	return outputPath, nil
}

func write(in io.Reader, outputPath, symbol string, opts Options) (int64, error) {
	fw, err := local.NewLocalFileWriter(outputPath)
	if err != nil {
		return 0, fmt.Errorf("create parquet file: %w", err)
	}

	pw, err := writer.NewParquetWriter(fw, new(Row), 4)
	if err != nil {
		fw.Close()
		return 0, fmt.Errorf("create parquet writer: %w", err)
	}
	if opts.RowGroupKB > 0 {
		pw.RowGroupSize = int64(opts.RowGroupKB) * 1024
	}
	codec, err := compressionCodec(opts.Compression)
	if err != nil {
		fw.Close()
		return 0, err
	}
	pw.CompressionType = codec

	rows, err := writeRows(in, pw, symbol, opts.Depth)
	if err != nil {
		fw.Close()
		return 0, err
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return 0, fmt.Errorf("finalize parquet file: %w", err)
	}
	if err := fw.Close(); err != nil {
		return 0, fmt.Errorf("close parquet file: %w", err)
	}
	return rows, nil
}

func writeRows(in io.Reader, pw *writer.ParquetWriter, symbol string, depth int) (int64, error) {
	dec := archive.NewDecoder(in)
	snap, err := dec.Snapshot()
	if err != nil {
		return 0, err
	}

	live := book.FromSnapshot(snap)
	var rows int64
	emit := func() error {
		st := live.State(depth)
		for i, l := range st.Bids {
			if err := pw.Write(Row{
				Symbol: symbol, Timestamp: live.Timestamp, Seq: live.Seq,
				Side: "bid", Level: int32(i), Price: l.Price.String(), Qty: l.Qty.String(),
			}); err != nil {
				return fmt.Errorf("write parquet row: %w", err)
			}
			rows++
		}
		for i, l := range st.Asks {
			if err := pw.Write(Row{
				Symbol: symbol, Timestamp: live.Timestamp, Seq: live.Seq,
				Side: "ask", Level: int32(i), Price: l.Price.String(), Qty: l.Qty.String(),
			}); err != nil {
				return fmt.Errorf("write parquet row: %w", err)
			}
			rows++
		}
		return nil
	}

	if err := emit(); err != nil {
		return 0, err
	}
	for {
		ds, err := dec.Next()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return 0, err
		}
		live.ApplyDeltaSet(ds)
		if err := emit(); err != nil {
			return 0, err
		}
	}
}

func compressionCodec(name string) (parquet.CompressionCodec, error) {
	switch strings.ToLower(name) {
	case "", "snappy":
		return parquet.CompressionCodec_SNAPPY, nil
	case "gzip":
		return parquet.CompressionCodec_GZIP, nil
	case "none":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return parquet.CompressionCodec_UNCOMPRESSED, fmt.Errorf("unsupported compression %q", name)
	}
}
