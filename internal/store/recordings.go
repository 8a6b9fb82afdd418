package store

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"sdr-monitor/internal/wire"
)

// recordingTypes maps the extensions of listed recordings to their
// content types.
var recordingTypes = map[string]string{
	".flac": "audio/flac",
	".wav":  "audio/wav",
}

// SidecarExt is appended to a recording's base name for its telemetry file.
const SidecarExt = ".rssi.parquet"

// ErrBadName rejects names that would escape the recordings directory.
var ErrBadName = errors.New("store: invalid recording name")

func isRecording(name string) bool {
	_, ok := recordingTypes[filepath.Ext(name)]
	return ok && len(name) > len(filepath.Ext(name))
}

// ContentType returns the media type of a recording name.
func ContentType(name string) string {
	if t, ok := recordingTypes[filepath.Ext(name)]; ok {
		return t
	}
	return "application/octet-stream"
}

// SidecarPath returns the telemetry file path for a recording path.
func SidecarPath(recording string) string {
	return strings.TrimSuffix(recording, filepath.Ext(recording)) + SidecarExt
}

// Recordings is the directory recordings are written to.
type Recordings struct {
	dir string
}

// OpenRecordings creates dir if needed.
func OpenRecordings(dir string) (*Recordings, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return &Recordings{dir: dir}, nil
}

// Dir returns the directory path.
func (r *Recordings) Dir() string {
	return r.dir
}

// Path resolves name inside the directory.
func (r *Recordings) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) ||
		name == "." || name == ".." || !isRecording(name) {
		return "", fmt.Errorf("%w: %q", ErrBadName, name)
	}
	return filepath.Join(r.dir, name), nil
}

// List returns recordings newest name first. Errors yield an empty list.
func (r *Recordings) List() []wire.Recording {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		log.Printf("[WARN] store: list %s: %v", r.dir, err)
		return []wire.Recording{}
	}
	out := make([]wire.Recording, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !isRecording(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, wire.Recording{Name: e.Name(), Size: info.Size()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name > out[j].Name })
	return out
}

// Delete removes a recording and its sidecar.
func (r *Recordings) Delete(name string) error {
	p, err := r.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	sidecar := SidecarPath(p)
	if err := os.Remove(sidecar); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[WARN] store: remove %s: %v", sidecar, err)
	}
	log.Printf("[INFO] store: deleted %s", name)
	return nil
}
