// Package config provides configuration management for the pool classifier trainer.
package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v10"

	"github.com/PlatformStories/rf-pool-classifier/internal/features"
	"github.com/PlatformStories/rf-pool-classifier/internal/forest"
)

// Config holds the complete application configuration loaded from environment variables.
type Config struct {
	Task    TaskConfig    `envPrefix:"TASK_"`
	Train   TrainConfig   `envPrefix:"TRAIN_"`
	Output  OutputConfig  `envPrefix:"OUTPUT_"`
	Logging LoggingConfig `envPrefix:"LOG_"`
}

// TaskConfig locates the task work directory and its ports.
type TaskConfig struct {
	WorkDir     string `env:"WORK_DIR" envDefault:"/mnt/work"`
	ImagePort   string `env:"IMAGE_PORT" envDefault:"image"`
	GeoJSONPort string `env:"GEOJSON_PORT" envDefault:"geojson"`
	OutputPort  string `env:"OUTPUT_PORT" envDefault:"trained_classifier"`
}

// TrainConfig contains feature extraction and forest hyperparameters.
type TrainConfig struct {
	// NEstimators is string-encoded like the n_estimators string port,
	// which overrides it.
	NEstimators string `env:"N_ESTIMATORS" envDefault:"100"`
	// Seed fixes the forest's random streams; empty means unseeded.
	Seed            string `env:"SEED" envDefault:""`
	Features        string `env:"FEATURES" envDefault:"pool_basic"`
	LabelProperty   string `env:"LABEL_PROPERTY" envDefault:"class_name"`
	MaxDepth        int    `env:"MAX_DEPTH" envDefault:"0"`
	MinSamplesSplit int    `env:"MIN_SAMPLES_SPLIT" envDefault:"2"`
	MaxFeatures     int    `env:"MAX_FEATURES" envDefault:"0"`
	Bootstrap       bool   `env:"BOOTSTRAP" envDefault:"true"`
	Workers         int    `env:"WORKERS" envDefault:"0"`
}

// OutputConfig controls what is written to the output port.
type OutputConfig struct {
	ArtifactName string `env:"ARTIFACT_NAME" envDefault:"classifier.gob"`
	STACItem     bool   `env:"STAC_ITEM" envDefault:"true"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// Load parses configuration from environment variables.
// It returns an error if required fields are missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}

	opts := env.Options{
		RequiredIfNoDef: true,
	}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	// Validate task config
	if c.Task.WorkDir == "" {
		return fmt.Errorf("task work directory is required")
	}

	for name, port := range map[string]string{
		"image":   c.Task.ImagePort,
		"geojson": c.Task.GeoJSONPort,
		"output":  c.Task.OutputPort,
	} {
		if port == "" {
			return fmt.Errorf("%s port name is required", name)
		}
	}

	// Validate train config
	if _, err := ParseNEstimators(c.Train.NEstimators); err != nil {
		return err
	}

	if _, _, err := c.Train.ParseSeed(); err != nil {
		return err
	}

	if _, err := features.Lookup(c.Train.Features); err != nil {
		return fmt.Errorf("invalid feature extractor %q, must be one of: %s", c.Train.Features, strings.Join(features.Names(), ", "))
	}

	if c.Train.LabelProperty == "" {
		return fmt.Errorf("label property is required")
	}

	if c.Train.MaxDepth < 0 {
		return fmt.Errorf("max depth must not be negative, got %d", c.Train.MaxDepth)
	}

	if c.Train.MinSamplesSplit < 2 {
		return fmt.Errorf("min samples split must be at least 2, got %d", c.Train.MinSamplesSplit)
	}

	if c.Train.MaxFeatures < 0 {
		return fmt.Errorf("max features must not be negative, got %d", c.Train.MaxFeatures)
	}

	if c.Train.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Train.Workers)
	}

	// Validate output config
	if c.Output.ArtifactName == "" || c.Output.ArtifactName != filepath.Base(c.Output.ArtifactName) {
		return fmt.Errorf("artifact name must be a plain file name, got %q", c.Output.ArtifactName)
	}

	// Validate logging config
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.Logging.Level) {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}

	validLogFormats := []string{"json", "text"}
	if !slices.Contains(validLogFormats, c.Logging.Format) {
		return fmt.Errorf("invalid log format %q, must be one of: json, text", c.Logging.Format)
	}

	return nil
}

// ParseNEstimators parses a string-encoded ensemble size.
func ParseNEstimators(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("n_estimators must be an integer, got %q", s)
	}
	if n < 1 {
		return 0, fmt.Errorf("n_estimators must be positive, got %d", n)
	}
	return n, nil
}

// ParseSeed returns the configured seed and whether one was set.
func (t *TrainConfig) ParseSeed() (uint64, bool, error) {
	s := strings.TrimSpace(t.Seed)
	if s == "" {
		return 0, false, nil
	}
	seed, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("seed must be a 64-bit integer, got %q", t.Seed)
	}
	return uint64(seed), true, nil
}

// ForestConfig builds the forest hyperparameters for nEstimators trees.
func (t *TrainConfig) ForestConfig(nEstimators int) (forest.Config, error) {
	seed, seeded, err := t.ParseSeed()
	if err != nil {
		return forest.Config{}, err
	}

	cfg := forest.DefaultConfig()
	cfg.NEstimators = nEstimators
	cfg.MaxDepth = t.MaxDepth
	cfg.MinSamplesSplit = t.MinSamplesSplit
	cfg.MaxFeatures = t.MaxFeatures
	cfg.Bootstrap = t.Bootstrap
	cfg.Workers = t.Workers
	cfg.Seed = seed
	cfg.Seeded = seeded
	return cfg, nil
}
