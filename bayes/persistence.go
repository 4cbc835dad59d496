package bayes

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hickeroar/naivebayes/bayes/category"
)

const persistedModelVersion = 1
const defaultModelFilePath = "/tmp/naivebayes.gob"

type tempFile interface {
	io.Writer
	Sync() error
	Close() error
	Name() string
}

var (
	errNilWriter          = errors.New("writer is nil")
	errNilReader          = errors.New("reader is nil")
	errPathNotAbsolute    = errors.New("path must be absolute")
	errUnsupportedVersion = errors.New("unsupported model version")
	createTemp            = func(dir, pattern string) (tempFile, error) { return os.CreateTemp(dir, pattern) }
	renameFile            = os.Rename
	removeFile            = os.Remove
)

// State is the complete counting state of a classifier: the per-category
// feature tables and sample counts, plus the global feature table.
type State[C comparable, F comparable] struct {
	Categories map[C]category.PersistedCategory[F]
	Features   map[F]int
}

type modelState[C comparable, F comparable] struct {
	Version    int
	Categories map[C]category.PersistedCategory[F]
	Features   map[F]int
}

// State returns a deep copy of the classifier tables.
func (c *Classifier[C, F]) State() State[C, F] {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return State[C, F]{
		Categories: c.categories.ExportStates(),
		Features:   c.categories.ExportFeatures(),
	}
}

// Restore validates state and replaces all classifier tables with it.
func (c *Classifier[C, F]) Restore(state State[C, F]) error {
	cats := category.NewCategories[C, F]()
	if err := cats.ReplaceStates(state.Categories, state.Features); err != nil {
		return fmt.Errorf("restore state: %w", err)
	}

	c.mu.Lock()
	c.categories = cats
	c.mu.Unlock()

	return nil
}

// Save writes classifier model data to a writer using gob encoding.
func (c *Classifier[C, F]) Save(w io.Writer) error {
	if w == nil {
		return errNilWriter
	}

	state := c.State()
	model := modelState[C, F]{
		Version:    persistedModelVersion,
		Categories: state.Categories,
		Features:   state.Features,
	}

	if err := gob.NewEncoder(w).Encode(model); err != nil {
		return fmt.Errorf("encode model: %w", err)
	}

	return nil
}

// Load reads classifier model data from a gob-encoded reader and replaces
// state. Counts are persisted; the smoothing constant is not.
func (c *Classifier[C, F]) Load(r io.Reader) error {
	if r == nil {
		return errNilReader
	}

	var model modelState[C, F]
	if err := gob.NewDecoder(r).Decode(&model); err != nil {
		return fmt.Errorf("decode model: %w", err)
	}

	if model.Version != persistedModelVersion {
		return fmt.Errorf("%w: %d", errUnsupportedVersion, model.Version)
	}

	return c.Restore(State[C, F]{Categories: model.Categories, Features: model.Features})
}

// SaveToFile writes classifier model data to a file atomically.
func (c *Classifier[C, F]) SaveToFile(path string) error {
	path = resolveModelPath(path)
	if !filepath.IsAbs(path) {
		return fmt.Errorf("%w: %q", errPathNotAbsolute, path)
	}

	dir := filepath.Dir(path)
	tempFile, err := createTemp(dir, ".naivebayes-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()
	defer removeFile(tempPath)

	if err := c.Save(tempFile); err != nil {
		tempFile.Close()
		return err
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := renameFile(tempPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}

// LoadFromFile reads classifier model data from a gob-encoded file.
func (c *Classifier[C, F]) LoadFromFile(path string) error {
	path = resolveModelPath(path)
	if !filepath.IsAbs(path) {
		return fmt.Errorf("%w: %q", errPathNotAbsolute, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open model file: %w", err)
	}
	defer f.Close()

	return c.Load(f)
}

func resolveModelPath(path string) string {
	if path == "" {
		return defaultModelFilePath
	}
	return path
}
