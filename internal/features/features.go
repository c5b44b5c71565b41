// Package features turns masked raster chips into fixed-length feature vectors.
package features

import (
	"errors"
	"fmt"
	"sort"

	"github.com/PlatformStories/rf-pool-classifier/internal/mask"
)

// DefaultExtractor is the extractor used when none is configured.
const DefaultExtractor = "pool_basic"

// ErrUnknownExtractor is returned by Lookup for unregistered names.
var ErrUnknownExtractor = errors.New("unknown feature extractor")

// Extractor maps a masked chip to a feature vector. Implementations must be
// deterministic, free of side effects, and only read pixels marked valid.
// For a given band count every vector has length Dim(bands).
type Extractor interface {
	Name() string
	Dim(bands int) int
	Extract(chip *mask.Chip) []float64
}

var registry = map[string]Extractor{
	"pool_basic": PoolBasic{},
	"band_stats": BandStats{},
}

// Lookup returns the registered extractor with the given name.
func Lookup(name string) (Extractor, error) {
	e, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownExtractor, name, Names())
	}
	return e, nil
}

// Names returns the registered extractor names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
