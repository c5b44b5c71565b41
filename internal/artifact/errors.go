package artifact

import "errors"

var (
	// ErrBadMagic is returned when a file does not start with the model header.
	ErrBadMagic = errors.New("not a classifier artifact")

	// ErrUnsupportedVersion is returned for artifacts written by a newer format.
	ErrUnsupportedVersion = errors.New("unsupported artifact format version")

	// ErrNoModel is returned when saving a model without a fitted forest.
	ErrNoModel = errors.New("model has no fitted forest")
)
