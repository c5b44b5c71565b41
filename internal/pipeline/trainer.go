// Package pipeline trains the pool classifier: it masks every labeled
// polygon out of the raster, extracts feature vectors, fits the forest and
// persists the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/PlatformStories/rf-pool-classifier/internal/artifact"
	"github.com/PlatformStories/rf-pool-classifier/internal/dataset"
	"github.com/PlatformStories/rf-pool-classifier/internal/features"
	"github.com/PlatformStories/rf-pool-classifier/internal/forest"
	"github.com/PlatformStories/rf-pool-classifier/internal/mask"
	"github.com/PlatformStories/rf-pool-classifier/internal/raster"
)

// maxWKT bounds the geometry text attached to skip warnings.
const maxWKT = 256

// Options configures a Trainer.
type Options struct {
	Extractor     features.Extractor
	Forest        forest.Config
	LabelProperty string

	// Workers bounds concurrent polygon masking; 0 means NumCPU.
	Workers int

	ArtifactName string
	WriteSTAC    bool
}

// Result is the outcome of a training run.
type Result struct {
	Model   *artifact.Model
	Dataset *dataset.Dataset
	Skipped []Skip

	// Bound covers the polygons that were trained on.
	Bound orb.Bound

	// Written is set once the artifact is on disk.
	Written *artifact.Written
}

// Trainer runs the training pipeline.
type Trainer struct {
	opts   Options
	logger *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewTrainer creates a Trainer. A nil extractor selects the default one.
func NewTrainer(opts Options, logger *slog.Logger) (*Trainer, error) {
	if opts.Extractor == nil {
		e, err := features.Lookup(features.DefaultExtractor)
		if err != nil {
			return nil, err
		}
		opts.Extractor = e
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.ArtifactName == "" {
		opts.ArtifactName = "classifier.gob"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Trainer{
		opts:   opts,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}, nil
}

type outcome struct {
	vector []float64
	err    error
}

// Train extracts a feature vector for every sample and fits the forest.
// Polygons that are degenerate, self-intersecting, outside the raster or
// cover no pixel centre are skipped together with their labels.
func (t *Trainer) Train(ctx context.Context, r *raster.Raster, samples []Sample) (*Result, error) {
	if len(samples) == 0 {
		return nil, ErrNoTrainingSamples
	}

	outcomes, err := t.extractAll(ctx, r, samples)
	if err != nil {
		return nil, err
	}

	vectors := make([][]float64, 0, len(samples))
	labels := make([]string, 0, len(samples))
	var skipped []Skip
	bound := orb.Bound{}
	first := true

	for i, s := range samples {
		o := outcomes[i]
		if o.err != nil {
			if !isGeometryError(o.err) {
				return nil, fmt.Errorf("failed to process polygon %d: %w", s.Index, o.err)
			}
			skip := Skip{Index: s.Index, Label: s.Label, Reason: o.err.Error()}
			skipped = append(skipped, skip)
			t.logger.Warn("skipping polygon",
				"index", skip.Index,
				"label", skip.Label,
				"reason", skip.Reason,
				"wkt", truncate(wkt.MarshalString(s.Geometry), maxWKT),
			)
			continue
		}

		vectors = append(vectors, o.vector)
		labels = append(labels, s.Label)
		if first {
			bound = s.Geometry.Bound()
			first = false
		} else {
			bound = bound.Union(s.Geometry.Bound())
		}
	}

	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: all %d polygons were skipped", ErrNoTrainingSamples, len(samples))
	}

	ds, err := dataset.Assemble(vectors, labels)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble dataset: %w", err)
	}
	if ds.Sanitized > 0 {
		t.logger.Warn("replaced non-finite feature values with zero", "count", ds.Sanitized)
	}

	t.logger.Info("fitting forest",
		"samples", ds.Len(),
		"features", ds.Features(),
		"classes", ds.ClassCounts(),
		"n_estimators", t.opts.Forest.NEstimators,
		"extractor", t.opts.Extractor.Name(),
	)

	f, err := forest.Fit(ds.X, ds.Y, t.opts.Forest)
	if err != nil {
		return nil, fmt.Errorf("failed to fit forest: %w", err)
	}

	t.logger.Info("forest fitted", "trees", len(f.Trees), "oob_score", f.OOBScore)

	return &Result{
		Model: &artifact.Model{
			Extractor:     t.opts.Extractor.Name(),
			Bands:         r.Bands(),
			LabelProperty: t.opts.LabelProperty,
			RunID:         t.newID(),
			TrainedAt:     t.now().UTC(),
			Forest:        f,
		},
		Dataset: ds,
		Skipped: skipped,
		Bound:   bound,
	}, nil
}

// extractAll masks and extracts every sample on a bounded worker pool.
// outcomes[i] belongs to samples[i] regardless of completion order.
func (t *Trainer) extractAll(ctx context.Context, r *raster.Raster, samples []Sample) ([]outcome, error) {
	outcomes := make([]outcome, len(samples))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < min(t.opts.Workers, len(samples)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				outcomes[i] = t.extract(r, samples[i])
			}
		}()
	}

send:
	for i := range samples {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break send
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (t *Trainer) extract(r *raster.Raster, s Sample) outcome {
	if err := mask.Validate(s.Geometry); err != nil {
		return outcome{err: err}
	}
	chip, err := mask.Mask(r, s.Geometry)
	if err != nil {
		return outcome{err: err}
	}
	return outcome{vector: t.opts.Extractor.Extract(chip)}
}

func isGeometryError(err error) bool {
	return errors.Is(err, mask.ErrDegenerate) ||
		errors.Is(err, mask.ErrSelfIntersecting) ||
		errors.Is(err, mask.ErrOutsideRaster) ||
		errors.Is(err, mask.ErrEmptyMask)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
