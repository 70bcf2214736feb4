package archive

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/dzakarias/orderbook-replayer/models"
)

// Archive file names carry the identifying triple: {date}_{symbol}_ob{depth}.data.
// The transcoder rewrites only the depth marker and preserves the rest.
var namePattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})_(.+)_ob(\d+)\.data$`)

// Filename renders the canonical archive file name for id.
func Filename(id models.ArchiveID) string {
	return fmt.Sprintf("%s_%s_ob%d.data", id.Date, id.Symbol, id.Depth)
}

// ParseFilename extracts the archive identity from a file name (without
// directory components).
func ParseFilename(name string) (models.ArchiveID, error) {
	m := namePattern.FindStringSubmatch(name)
	if m == nil {
		return models.ArchiveID{}, fmt.Errorf("%w: unrecognized archive name %q", models.ErrMalformed, name)
	}
	depth, err := strconv.Atoi(m[3])
	if err != nil || depth <= 0 {
		return models.ArchiveID{}, fmt.Errorf("%w: bad depth in archive name %q", models.ErrMalformed, name)
	}
	return models.ArchiveID{Date: m[1], Symbol: m[2], Depth: depth}, nil
}

// WithDepth returns the file name with the depth marker substituted,
// keeping symbol and date untouched.
func WithDepth(name string, depth int) (string, error) {
	id, err := ParseFilename(name)
	if err != nil {
		return "", err
	}
	id.Depth = depth
	return Filename(id), nil
}
