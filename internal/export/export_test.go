package export

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/dzakarias/orderbook-replayer/models"
)

const exportArchive = `{"t":1000,"s":1,"b":[["100.00","5"],["99.50","3"],["99.00","1"]],"a":[["100.50","4"],["101.00","2"],["101.50","6"]]}
{"t":2000,"s":2,"b":[["100.00","0"]]}
{"t":3000,"s":3,"a":[["100.50","7"]]}
`

func writeInput(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "2026-08-25_BTCUSDT_ob3.data")
	if err := os.WriteFile(path, []byte(exportArchive), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFileExportsArchive(t *testing.T) {
	inputPath := writeInput(t)
	dir := t.TempDir()

	outputPath, err := File(inputPath, dir, Options{Depth: 2, Compression: "none"})
	if err != nil {
		t.Fatalf("File failed: %v", err)
	}
	if filepath.Base(outputPath) != "2026-08-25_BTCUSDT_ob3.parquet" {
		t.Fatalf("unexpected output name: %s", outputPath)
	}

	fr, err := local.NewLocalFileReader(outputPath)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(Row), 1)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	defer pr.ReadStop()

	// 3 states, 2 levels per side each
	if got := pr.GetNumRows(); got != 12 {
		t.Fatalf("row count = %d, want 12", got)
	}
	rows := make([]Row, 4)
	if err := pr.Read(&rows); err != nil {
		t.Fatalf("read rows: %v", err)
	}
	first := rows[0]
	if first.Symbol != "BTCUSDT" || first.Timestamp != 1000 || first.Side != "bid" || first.Level != 0 {
		t.Fatalf("unexpected first row: %+v", first)
	}
	if first.Price != "100" || first.Qty != "5" {
		t.Fatalf("decimal values not preserved: %+v", first)
	}
}

func TestFileRejectsExcessiveDepth(t *testing.T) {
	inputPath := writeInput(t)

	for _, depth := range []int{0, 4} {
		if _, err := File(inputPath, t.TempDir(), Options{Depth: depth}); !errors.Is(err, models.ErrInvalidDepth) {
			t.Errorf("File(depth=%d) = %v, want ErrInvalidDepth", depth, err)
		}
	}
}

func TestFileRejectsForeignFilename(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.csv")
	if err := os.WriteFile(path, []byte(exportArchive), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := File(path, t.TempDir(), Options{Depth: 2}); !errors.Is(err, models.ErrMalformed) {
		t.Fatalf("File = %v, want ErrMalformed", err)
	}
}

func TestFileRemovesPartialOutputOnError(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "2026-08-25_BTCUSDT_ob3.data")
	if err := os.WriteFile(inputPath, []byte(exportArchive+"{broken\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	outDir := t.TempDir()
	if _, err := File(inputPath, outDir, Options{Depth: 2}); !errors.Is(err, models.ErrMalformed) {
		t.Fatalf("File = %v, want ErrMalformed", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "2026-08-25_BTCUSDT_ob3.parquet")); !os.IsNotExist(err) {
		t.Fatal("partial output file was not removed")
	}
}
