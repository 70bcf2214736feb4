// Command export flattens an archive into a Parquet dataset for offline
// analysis, optionally uploading the result to S3.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/dzakarias/orderbook-replayer/config"
	"github.com/dzakarias/orderbook-replayer/internal/archive/s3"
	"github.com/dzakarias/orderbook-replayer/internal/export"
	"github.com/dzakarias/orderbook-replayer/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	inputPath := flag.String("f", "", "Path to the source archive file")
	depth := flag.Int("d", 0, "Levels per side to export, default from config")
	upload := flag.Bool("upload", false, "Upload the result to the configured S3 bucket")
	flag.Parse()

	log := logger.GetLogger()
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}
	if err := log.Configure(cfg.Logging.Level, "text", "stderr", 0); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	if *inputPath == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *depth <= 0 {
		*depth = cfg.Export.Depth
	}

	outputPath, err := export.File(*inputPath, cfg.Export.Dir, export.Options{
		Depth:       *depth,
		Compression: cfg.Export.Compression,
		RowGroupKB:  cfg.Export.RowGroup,
	})
	if err != nil {
		log.WithError(err).Error("export failed")
		os.Exit(1)
	}
	fmt.Println(outputPath)

	if *upload {
		if !cfg.Storage.S3.Enabled {
			log.Error("upload requested but storage.s3 is disabled")
			os.Exit(1)
		}
		ctx := context.Background()
		store, err := s3.NewStore(ctx, cfg.Storage.S3)
		if err != nil {
			log.WithError(err).Error("failed to create S3 store")
			os.Exit(1)
		}
		if err := store.UploadFile(ctx, outputPath); err != nil {
			log.WithError(err).Error("upload failed")
			os.Exit(1)
		}
	}
}
