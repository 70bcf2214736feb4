package transcoder

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dzakarias/orderbook-replayer/internal/archive"
	"github.com/dzakarias/orderbook-replayer/internal/metrics"
	"github.com/dzakarias/orderbook-replayer/logger"
	"github.com/dzakarias/orderbook-replayer/models"
)

// progressEvery controls how often a long run logs throughput.
const progressEvery = 100000

// TranscodeFile reduces the archive at inputPath to depth levels per side
// and writes the result next to it, substituting the depth marker in the
// file name. It returns the output path. The whole run is aborted, and
// any partial output removed, on the first malformed input record.
func TranscodeFile(inputPath string, depth int) (string, error) {
	log := logger.GetLogger().WithComponent("transcoder").WithFields(logger.Fields{
		"input": inputPath,
		"depth": depth,
	})

	id, err := archive.ParseFilename(filepath.Base(inputPath))
	if err != nil {
		return "", err
	}
	if depth >= id.Depth {
		return "", fmt.Errorf("%w: target %d must be smaller than source depth %d",
			models.ErrInvalidDepth, depth, id.Depth)
	}

	outName, err := archive.WithDepth(filepath.Base(inputPath), depth)
	if err != nil {
		return "", err
	}
	outputPath := filepath.Join(filepath.Dir(inputPath), outName)

	in, err := os.Open(inputPath)
	if err != nil {
		return "", fmt.Errorf("open input archive: %w", err)
	}
	defer in.Close()

	out, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("create output archive: %w", err)
	}

	start := time.Now()
	if err := Transcode(in, out, depth); err != nil {
		out.Close()
		os.Remove(outputPath)
		return "", err
	}
	if err := out.Close(); err != nil {
		os.Remove(outputPath)
		return "", fmt.Errorf("close output archive: %w", err)
	}

	metrics.Inc(metrics.ArchivesTranscode)
	log.WithFields(logger.Fields{
		"output":      outputPath,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("archive transcoded")
	return outputPath, nil
}

// Transcode streams the archive on r through a Reducer at the given depth
// and writes the reduced archive to w.
func Transcode(r io.Reader, w io.Writer, depth int) error {
	log := logger.GetLogger().WithComponent("transcoder")

	red, err := NewReducer(depth)
	if err != nil {
		return err
	}

	dec := archive.NewDecoder(r)
	enc := archive.NewEncoder(w)

	snap, err := dec.Snapshot()
	if err != nil {
		return err
	}
	if err := enc.WriteSnapshot(red.ProcessSnapshot(snap)); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	var processed int64
	for {
		ds, err := dec.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		out, ok, err := red.ProcessDeltaSet(ds)
		if err != nil {
			return err
		}
		if ok {
			if err := enc.WriteDeltaSet(out); err != nil {
				return fmt.Errorf("write delta set: %w", err)
			}
		}

		processed++
		if processed%progressEvery == 0 {
			in, outCnt, _, _, _, _ := red.Stats()
			log.WithFields(logger.Fields{
				"deltas_in":  in,
				"deltas_out": outCnt,
			}).Info("transcoding progress")
		}
	}

	if err := enc.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	in, out, chIn, chOut, promotions, suppressed := red.Stats()
	log.WithFields(logger.Fields{
		"deltas_in":         in,
		"deltas_out":        out,
		"changes_in":        chIn,
		"changes_out":       chOut,
		"promotions":        promotions,
		"suppressed_deltas": suppressed,
	}).Info("transcoding complete")
	return nil
}
