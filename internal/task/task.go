// Package task maps the task work directory to input ports, output ports
// and the status file.
//
// Layout:
//
//	<work>/input/<port>/...    data input ports
//	<work>/input/ports.json    string input ports
//	<work>/output/<port>/...   data output ports
//	<work>/status.json         run status
package task

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/PlatformStories/rf-pool-classifier/internal/fsutil"
)

// Status values written to status.json.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Status is the body of status.json.
type Status struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// Workspace is a task work directory.
type Workspace struct {
	Dir string

	portsOnce sync.Once
	ports     map[string]string
	portsErr  error
}

// New returns the workspace rooted at dir.
func New(dir string) *Workspace {
	return &Workspace{Dir: dir}
}

// InputDir returns the directory of a data input port.
func (w *Workspace) InputDir(port string) string {
	return filepath.Join(w.Dir, "input", port)
}

// InputFiles lists the regular files of a data input port in sorted order.
// When exts are given only files with one of those extensions are
// returned; the comparison ignores case.
func (w *Workspace) InputFiles(port string, exts ...string) ([]string, error) {
	dir := w.InputDir(port)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read input port %q: %w", port, err)
	}

	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if len(exts) > 0 && !hasExt(e.Name(), exts) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	if len(files) == 0 {
		if len(exts) > 0 {
			return nil, fmt.Errorf("%w: port %q has no %s files", ErrNoInputFiles, port, strings.Join(exts, "/"))
		}
		return nil, fmt.Errorf("%w: port %q is empty", ErrNoInputFiles, port)
	}
	sort.Strings(files)
	return files, nil
}

func hasExt(name string, exts []string) bool {
	ext := filepath.Ext(name)
	for _, want := range exts {
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}

// StringPort returns the value of a string input port, or def when the
// port or the whole ports file is absent.
func (w *Workspace) StringPort(name, def string) (string, error) {
	w.portsOnce.Do(func() {
		w.ports, w.portsErr = readPorts(filepath.Join(w.Dir, "input", "ports.json"))
	})
	if w.portsErr != nil {
		return "", w.portsErr
	}
	if v, ok := w.ports[name]; ok {
		return v, nil
	}
	return def, nil
}

func readPorts(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read string ports: %w", err)
	}

	raw := make(map[string]any)
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPorts, err)
	}

	ports := make(map[string]string, len(raw))
	for k, v := range raw {
		switch v := v.(type) {
		case string:
			ports[k] = v
		case json.Number:
			ports[k] = v.String()
		case bool:
			ports[k] = strconv.FormatBool(v)
		default:
			return nil, fmt.Errorf("%w: port %q is not a string", ErrInvalidPorts, k)
		}
	}
	return ports, nil
}

// OutputDir returns the directory of a data output port, creating it.
func (w *Workspace) OutputDir(port string) (string, error) {
	dir := filepath.Join(w.Dir, "output", port)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output port %q: %w", port, err)
	}
	return dir, nil
}

// WriteStatus replaces status.json.
func (w *Workspace) WriteStatus(s Status) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create work directory: %w", err)
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(w.Dir, "status.json"), data, 0o644); err != nil {
		return fmt.Errorf("failed to write status: %w", err)
	}
	return nil
}
