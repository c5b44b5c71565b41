// Random forest pool classifier training task entry point
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/PlatformStories/rf-pool-classifier/internal/config"
	"github.com/PlatformStories/rf-pool-classifier/internal/features"
	"github.com/PlatformStories/rf-pool-classifier/internal/pipeline"
	"github.com/PlatformStories/rf-pool-classifier/internal/task"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ws, err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if ws != nil {
			if serr := ws.WriteStatus(task.Status{Status: task.StatusFailed, Reason: err.Error()}); serr != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", serr)
			}
		}
		stop()
		os.Exit(1)
	}

	if err := ws.WriteStatus(task.Status{Status: task.StatusSuccess, Reason: "trained classifier"}); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// run returns the workspace once it is known so failures can be recorded
// in its status file.
func run(ctx context.Context) (*task.Workspace, error) {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Set up logger
	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)

	ws := task.New(cfg.Task.WorkDir)

	logger.Info("starting pool classifier training",
		"work_dir", cfg.Task.WorkDir,
		"features", cfg.Train.Features,
		"label_property", cfg.Train.LabelProperty,
	)

	// The string port overrides the environment default.
	raw, err := ws.StringPort("n_estimators", cfg.Train.NEstimators)
	if err != nil {
		return ws, err
	}
	nEstimators, err := config.ParseNEstimators(raw)
	if err != nil {
		return ws, err
	}

	forestCfg, err := cfg.Train.ForestConfig(nEstimators)
	if err != nil {
		return ws, err
	}

	extractor, err := features.Lookup(cfg.Train.Features)
	if err != nil {
		return ws, err
	}

	images, err := ws.InputFiles(cfg.Task.ImagePort, ".tif", ".tiff")
	if err != nil {
		return ws, err
	}
	polygons, err := ws.InputFiles(cfg.Task.GeoJSONPort, ".geojson", ".json")
	if err != nil {
		return ws, err
	}
	if len(polygons) > 1 {
		logger.Warn("multiple polygon files, using the first", "path", polygons[0], "count", len(polygons))
	}

	trainer, err := pipeline.NewTrainer(pipeline.Options{
		Extractor:     extractor,
		Forest:        forestCfg,
		LabelProperty: cfg.Train.LabelProperty,
		Workers:       cfg.Train.Workers,
		ArtifactName:  cfg.Output.ArtifactName,
		WriteSTAC:     cfg.Output.STACItem,
	}, logger)
	if err != nil {
		return ws, err
	}

	outputDir, err := ws.OutputDir(cfg.Task.OutputPort)
	if err != nil {
		return ws, err
	}

	res, err := trainer.Run(ctx, pipeline.Inputs{
		ImagePaths:  images,
		GeoJSONPath: polygons[0],
		OutputDir:   outputDir,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("training interrupted")
		}
		return ws, err
	}

	logger.Info("training complete",
		"run_id", res.Model.RunID,
		"samples", res.Dataset.Len(),
		"skipped", len(res.Skipped),
		"n_estimators", nEstimators,
		"artifact", res.Written.Path,
	)
	return ws, nil
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
