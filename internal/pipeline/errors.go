package pipeline

import "errors"

// ErrNoTrainingSamples is returned when no polygon survives loading,
// validation and masking.
var ErrNoTrainingSamples = errors.New("no training samples")
