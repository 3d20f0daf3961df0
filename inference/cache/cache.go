// Package cache persists calibrated, quantized model artifacts so that calibration runs once
// per model configuration.
//
// Artifacts are keyed by a fingerprint of the model identifier, the precision, the input shape
// and the graph variant. A cached artifact is read if it exists and written only when absent.
package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-ml-bench/inference/quant"
)

// FormatVersion is bumped whenever the artifact encoding changes.
const FormatVersion = 1

// ErrNotFound is returned by Load when no artifact exists for a key.
var ErrNotFound = errors.New("artifact not found")

// Key identifies one compiled artifact.
type Key struct {
	Model      string `json:"model"`
	Precision  string `json:"precision"`
	InputShape []int  `json:"input_shape"`
	// Variant distinguishes graph rewrites that change the parameter set (e.g. fused attention).
	Variant string `json:"variant"`
}

// Fingerprint returns the hex SHA-256 of the key fields and the format version.
func (k Key) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "v%d\x00%s\x00%s\x00%s\x00", FormatVersion, k.Model, k.Precision, k.Variant)
	for _, d := range k.InputShape {
		fmt.Fprintf(h, "%d,", d)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Artifact is a calibrated and quantized model.
type Artifact struct {
	Key         Key
	Fingerprint string
	// Weights maps a parameter id ("<layer>/<param>") to its int8 representation.
	Weights map[string]*quant.QuantizedTensor
	// ActivationScales maps a layer name to the calibrated scale of its input. The emulated
	// int8 forward pass quantizes only the graph input (InputScale); these scales are kept
	// for reporting and for runtimes that execute int8 activations natively.
	ActivationScales map[string]float32
	// InputScale quantizes the graph input.
	InputScale         float32
	CalibrationBatches int
	CreatedAt          time.Time
}

// Store is a directory of artifacts.
type Store struct {
	dir    string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewStore creates a store rooted at dir. The directory is created lazily on the first write,
// so a store that is never written leaves no trace on disk.
//
// Arguments:
//   - dir: The artifact directory.
//   - logger: The logger; slog.Default() when nil.
//
// Returns:
//   - *Store: The store.
func NewStore(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger}
}

// Dir returns the store directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the deterministic artifact path for a key.
func (s *Store) Path(k Key) string {
	name := fmt.Sprintf("%s-%s-%s.gob", sanitize(k.Model), strings.ToLower(k.Precision), k.Fingerprint()[:16])
	return filepath.Join(s.dir, name)
}

// Load reads the artifact for k.
//
// Returns:
//   - *Artifact: The stored artifact.
//   - error: ErrNotFound if absent, or a decode error if the file is corrupt.
func (s *Store) Load(k Key) (*Artifact, error) {
	path := s.Path(k)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "read artifact %s", path)
	}

	var a Artifact
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&a); err != nil {
		return nil, errors.Wrapf(err, "decode artifact %s", path)
	}
	if a.Fingerprint != k.Fingerprint() {
		return nil, errors.Errorf("artifact %s has fingerprint %s, want %s", path, a.Fingerprint, k.Fingerprint())
	}
	return &a, nil
}

// Save writes the artifact atomically. The fingerprint is derived from a.Key.
func (s *Store) Save(a *Artifact) error {
	a.Fingerprint = a.Key.Fingerprint()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(a); err != nil {
		return errors.Wrap(err, "encode artifact")
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.Wrapf(err, "create artifact directory %s", s.dir)
	}

	path := s.Path(a.Key)
	tmp, err := os.CreateTemp(s.dir, ".artifact-*")
	if err != nil {
		return errors.Wrap(err, "create temporary artifact")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return errors.Wrap(err, "write temporary artifact")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temporary artifact")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "install artifact %s", path)
	}
	return nil
}

// GetOrBuild returns the stored artifact for k, building and saving it when absent.
//
// Arguments:
//   - k: The artifact key.
//   - build: Produces the artifact on a miss. Its Key is overwritten with k.
//
// Returns:
//   - *Artifact: The artifact.
//   - bool: True when the artifact came from disk.
//   - error: An error if building or saving failed.
func (s *Store) GetOrBuild(k Key, build func() (*Artifact, error)) (*Artifact, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.Load(k)
	switch {
	case err == nil:
		s.logger.Debug("artifact cache hit", "model", k.Model, "precision", k.Precision, "path", s.Path(k))
		return a, true, nil
	case errors.Is(err, ErrNotFound):
	default:
		s.logger.Warn("discarding unreadable artifact", "path", s.Path(k), "error", err)
	}

	a, err = build()
	if err != nil {
		return nil, false, err
	}
	a.Key = k
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	if err := s.Save(a); err != nil {
		return nil, false, err
	}
	s.logger.Info("artifact cached", "model", k.Model, "precision", k.Precision, "path", s.Path(k))
	return a, false, nil
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
