package raster

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// worldFileExtensions lists sidecar names tried for an image, in order.
var worldFileExtensions = []string{".tfw", ".tifw", ".tiffw", ".wld"}

// readWorldFileFor looks for a world file next to imagePath.
func readWorldFileFor(imagePath string) (GeoTransform, bool, error) {
	base := strings.TrimSuffix(imagePath, filepath.Ext(imagePath))
	for _, ext := range worldFileExtensions {
		for _, candidate := range []string{base + ext, base + strings.ToUpper(ext)} {
			if _, err := os.Stat(candidate); err != nil {
				continue
			}
			gt, err := ReadWorldFile(candidate)
			if err != nil {
				return GeoTransform{}, false, err
			}
			return gt, true, nil
		}
	}
	return GeoTransform{}, false, nil
}

// ReadWorldFile parses an ESRI world file. The six lines are the pixel
// width, row rotation, column rotation, pixel height and the centre of the
// upper-left pixel; the result is shifted to the pixel corner.
func ReadWorldFile(path string) (GeoTransform, error) {
	f, err := os.Open(path)
	if err != nil {
		return GeoTransform{}, fmt.Errorf("failed to open world file: %w", err)
	}
	defer f.Close()

	var values []float64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return GeoTransform{}, fmt.Errorf("invalid world file %s: %w", path, err)
		}
		values = append(values, v)
	}
	if err := scanner.Err(); err != nil {
		return GeoTransform{}, fmt.Errorf("failed to read world file: %w", err)
	}
	if len(values) != 6 {
		return GeoTransform{}, fmt.Errorf("invalid world file %s: expected 6 values, got %d", path, len(values))
	}

	a, d, b, e, c, f0 := values[0], values[1], values[2], values[3], values[4], values[5]
	gt := GeoTransform{c - a/2 - b/2, a, b, f0 - d/2 - e/2, d, e}
	if err := gt.Validate(); err != nil {
		return GeoTransform{}, fmt.Errorf("invalid world file %s: %w", path, err)
	}
	return gt, nil
}
