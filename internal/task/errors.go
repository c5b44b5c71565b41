package task

import "errors"

var (
	// ErrNoInputFiles is returned when an input port holds no usable file.
	ErrNoInputFiles = errors.New("no input files")

	// ErrInvalidPorts is returned when ports.json cannot be decoded.
	ErrInvalidPorts = errors.New("invalid string ports file")
)
