package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/PlatformStories/rf-pool-classifier/internal/artifact"
	"github.com/PlatformStories/rf-pool-classifier/internal/fsutil"
	"github.com/PlatformStories/rf-pool-classifier/internal/raster"
	"github.com/PlatformStories/rf-pool-classifier/internal/stac"
	"github.com/PlatformStories/rf-pool-classifier/pkg/geojson"
)

// Inputs locates the files of one training run.
type Inputs struct {
	// ImagePaths holds one GeoTIFF or several single-band files stacked in order.
	ImagePaths  []string
	GeoJSONPath string
	OutputDir   string
}

// Run loads the inputs, trains and writes the artifact (plus its STAC item
// when enabled) to the output directory. Nothing is written unless training
// succeeds and ctx is still live.
func (t *Trainer) Run(ctx context.Context, in Inputs) (*Result, error) {
	r, err := raster.Open(in.ImagePaths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load raster: %w", err)
	}
	t.logger.Info("loaded raster",
		"bands", r.Bands(),
		"width", r.Width,
		"height", r.Height,
		"georeferenced", r.Georeferenced,
	)

	fc, err := geojson.ReadFeatureCollection(in.GeoJSONPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load training polygons: %w", err)
	}

	samples, loadSkips, err := LoadSamples(fc, t.opts.LabelProperty)
	for _, s := range loadSkips {
		t.logger.Warn("skipping feature", "index", s.Index, "label", s.Label, "reason", s.Reason)
	}
	if err != nil {
		return nil, err
	}
	t.logger.Info("loaded training polygons", "features", len(fc.Features), "samples", len(samples))

	res, err := t.Train(ctx, r, samples)
	if err != nil {
		return nil, err
	}
	res.Skipped = append(loadSkips, res.Skipped...)
	sort.Slice(res.Skipped, func(i, j int) bool { return res.Skipped[i].Index < res.Skipped[j].Index })

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(in.OutputDir, t.opts.ArtifactName)
	written, err := artifact.Save(path, res.Model)
	if err != nil {
		return nil, err
	}
	res.Written = written
	t.logger.Info("wrote classifier", "path", written.Path, "bytes", written.Size, "sha256", written.SHA256)

	if t.opts.WriteSTAC {
		if err := t.writeItem(res); err != nil {
			// Leave no artifact behind a failed run.
			_ = os.Remove(written.Path)
			return nil, err
		}
	}

	return res, nil
}

func (t *Trainer) writeItem(res *Result) error {
	f := res.Model.Forest
	item, err := stac.NewModelItem(stac.ModelMetadata{
		RunID:          res.Model.RunID,
		TrainedAt:      res.Model.TrainedAt,
		Bound:          res.Bound,
		ArtifactPath:   res.Written.Path,
		ArtifactSize:   res.Written.Size,
		ArtifactSHA256: res.Written.SHA256,
		NEstimators:    len(f.Trees),
		Extractor:      res.Model.Extractor,
		FeatureCount:   f.NFeatures,
		Classes:        f.Classes,
		ClassCounts:    res.Dataset.ClassCounts(),
		Samples:        res.Dataset.Len(),
		Skipped:        len(res.Skipped),
		Sanitized:      res.Dataset.Sanitized,
		OOBScore:       f.OOBScore,
		Importances:    f.FeatureImportances(),
	})
	if err != nil {
		return fmt.Errorf("failed to build STAC item: %w", err)
	}

	data, err := stac.Marshal(item)
	if err != nil {
		return err
	}

	path := stac.SidecarPath(res.Written.Path)
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write STAC item: %w", err)
	}
	t.logger.Info("wrote STAC item", "path", path)
	return nil
}
