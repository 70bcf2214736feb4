// Command transcode rewrites a full-depth archive into a reduced-depth
// archive next to it, substituting the depth marker in the file name.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/dzakarias/orderbook-replayer/internal/transcoder"
	"github.com/dzakarias/orderbook-replayer/logger"
	"github.com/dzakarias/orderbook-replayer/models"
)

func main() {
	inputPath := flag.String("f", "", "Path to the source archive file")
	depth := flag.Int("d", 0, "Target depth, levels per side")
	level := flag.String("log-level", "info", "Log level")
	flag.Parse()

	log := logger.GetLogger()
	if err := log.Configure(*level, "text", "stderr", 0); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if *inputPath == "" || *depth <= 0 {
		flag.Usage()
		os.Exit(2)
	}

	outputPath, err := transcoder.TranscodeFile(*inputPath, *depth)
	if err != nil {
		log.WithError(err).Error("transcode failed")
		if errors.Is(err, models.ErrInvalidDepth) {
			os.Exit(2)
		}
		os.Exit(1)
	}
	fmt.Println(outputPath)
}
