// Package artifact serializes trained classifiers to a single binary file.
package artifact

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/PlatformStories/rf-pool-classifier/internal/forest"
	"github.com/PlatformStories/rf-pool-classifier/internal/fsutil"
)

// Version is the artifact format version written by Save.
const Version uint16 = 1

// magic opens every artifact file.
var magic = [8]byte{'R', 'F', 'P', 'C', 'L', 'S', 'F', 0}

// Model is everything a downstream classifier needs to reproduce the
// training-time feature pipeline and predict.
type Model struct {
	// Extractor names the feature extractor the forest was trained on.
	Extractor string
	// Bands is the raster band count the extractor saw.
	Bands         int
	LabelProperty string
	RunID         string
	TrainedAt     time.Time
	Forest        *forest.Forest
}

// Written describes an artifact on disk.
type Written struct {
	Path   string
	Size   int64
	SHA256 string
}

// Encode writes the header and gob stream of m to w.
func Encode(w io.Writer, m *Model) error {
	if m == nil || m.Forest == nil {
		return ErrNoModel
	}
	if _, err := w.Write(magic[:]); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, Version); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := gob.NewEncoder(w).Encode(m); err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	return nil
}

// Decode reads a model written by Encode.
func Decode(r io.Reader) (*Model, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMagic, err)
	}
	if header != magic {
		return nil, ErrBadMagic
	}

	var version uint16
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, fmt.Errorf("failed to read format version: %w", err)
	}
	if version != Version {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	m := &Model{}
	if err := gob.NewDecoder(r).Decode(m); err != nil {
		return nil, fmt.Errorf("failed to decode model: %w", err)
	}
	if m.Forest == nil {
		return nil, ErrNoModel
	}
	return m, nil
}

// Save writes m to path, creating missing parent directories. An existing
// file is replaced only once the new one is complete.
func Save(path string, m *Model) (*Written, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, m); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write artifact: %w", err)
	}

	sum := sha256.Sum256(buf.Bytes())
	return &Written{
		Path:   path,
		Size:   int64(buf.Len()),
		SHA256: hex.EncodeToString(sum[:]),
	}, nil
}

// Load reads the artifact at path.
func Load(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	return Decode(bufio.NewReader(f))
}
