package forest

import "errors"

var (
	// ErrInvalidConfig is returned for unusable hyperparameters.
	ErrInvalidConfig = errors.New("invalid forest configuration")

	// ErrNoSamples is returned when fitting on an empty matrix.
	ErrNoSamples = errors.New("cannot fit on zero samples")

	// ErrShapeMismatch is returned when row and label counts differ.
	ErrShapeMismatch = errors.New("feature rows and labels differ in count")

	// ErrSingleClass is returned when the labels contain fewer than two classes.
	ErrSingleClass = errors.New("training labels contain a single class")

	// ErrFeatureCount is returned when a prediction input has the wrong width.
	ErrFeatureCount = errors.New("feature count does not match the fitted model")
)
