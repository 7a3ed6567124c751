package features

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// Feature is a product area whose thread roots share a set of run names
type Feature struct {
	ID          string   `json:"id" yaml:"id" toml:"id"`
	Name        string   `json:"name" yaml:"name" toml:"name"`
	Description string   `json:"description,omitempty" yaml:"description" toml:"description"`
	RunNames    []string `json:"run_names" yaml:"run_names" toml:"run_names"`
	// CrossTrace marks sessions whose turns are separate top-level traces
	// correlated by topic thread metadata
	CrossTrace bool `json:"cross_trace" yaml:"cross_trace" toml:"cross_trace"`
}

// Validate checks the feature can be turned into a query
func (f Feature) Validate() error {
	if strings.TrimSpace(f.ID) == "" {
		return errors.New("feature id is required")
	}
	if len(f.RunNames) == 0 {
		return fmt.Errorf("feature %q has no run names", f.ID)
	}
	for _, name := range f.RunNames {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("feature %q has an empty run name", f.ID)
		}
	}
	return nil
}

// UnknownFeatureError is returned for ids missing from the registry
type UnknownFeatureError struct {
	ID string
}

func (e *UnknownFeatureError) Error() string {
	return fmt.Sprintf("unknown feature %q", e.ID)
}

// Registry maps feature ids to features, safe for concurrent use
type Registry struct {
	mu       sync.RWMutex
	features map[string]Feature
	order    []string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{features: make(map[string]Feature)}
}

// Register adds or replaces a feature
func (r *Registry) Register(f Feature) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if f.Name == "" {
		f.Name = f.ID
	}
	f.RunNames = append([]string(nil), f.RunNames...)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.features[f.ID]; !exists {
		r.order = append(r.order, f.ID)
	}
	r.features[f.ID] = f
	return nil
}

// Lookup returns the feature with the given id
func (r *Registry) Lookup(id string) (Feature, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.features[id]
	if !ok {
		return Feature{}, &UnknownFeatureError{ID: id}
	}
	f.RunNames = append([]string(nil), f.RunNames...)
	return f, nil
}

// List returns all features in registration order
func (r *Registry) List() []Feature {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Feature, 0, len(r.order))
	for _, id := range r.order {
		f := r.features[id]
		f.RunNames = append([]string(nil), f.RunNames...)
		out = append(out, f)
	}
	return out
}

// Len returns the number of registered features
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.features)
}

type featureFile struct {
	Features []Feature `yaml:"features" toml:"features"`
}

// LoadFiles registers every feature found in files matching pattern.
// Files are read in lexical order, so later files override earlier ids.
func (r *Registry) LoadFiles(pattern string) (int, error) {
	paths, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return 0, fmt.Errorf("invalid feature pattern %q: %w", pattern, err)
	}
	sort.Strings(paths)

	loaded := 0
	for _, path := range paths {
		features, err := readFile(path)
		if err != nil {
			return loaded, err
		}
		for _, f := range features {
			if err := r.Register(f); err != nil {
				return loaded, fmt.Errorf("%s: %w", path, err)
			}
			loaded++
		}
	}
	return loaded, nil
}

func readFile(path string) ([]Feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feature file: %w", err)
	}

	var file featureFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &file)
	case ".toml":
		err = toml.Unmarshal(data, &file)
	default:
		return nil, fmt.Errorf("%s: unsupported feature file type", path)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return file.Features, nil
}
