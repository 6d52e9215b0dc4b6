// Package series holds the static metadata of every series the service can
// serve: its unit, its aggregation kind and a human description.
//
// The registry is loaded once at start-up, either from the embedded
// series.yaml or from a file with the same layout:
//
//	series:
//	  - key: health.stepcount
//	    unit: steps
//	    kind: count
//	    description: Number of steps taken throughout the day.
package series

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed series.yaml
var defaultSeries []byte

// Kind is the aggregation semantics of a series.
type Kind string

const (
	// KindCount series are summable (steps, energy).
	KindCount Kind = "count"
	// KindRate series are instantaneous and averaged (heart rate).
	KindRate Kind = "rate"
	// KindEvent series are discrete interval occurrences (workouts).
	KindEvent Kind = "event"
)

var (
	// ErrUnsupportedKind is returned for a kind outside count, rate and event.
	// It is a configuration error and must not be swallowed.
	ErrUnsupportedKind = errors.New("unsupported series kind")
	ErrInvalidKey      = errors.New("invalid series key")
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindCount, KindRate, KindEvent:
		return true
	}
	return false
}

// Descriptor is the immutable metadata of one series.
type Descriptor struct {
	Namespace   string `json:"namespace"`
	Name        string `json:"name"`
	Unit        string `json:"unit"`
	Kind        Kind   `json:"kind"`
	Description string `json:"description"`
}

// Key returns the registry key, "namespace.name".
func (d Descriptor) Key() string {
	return d.Namespace + "." + d.Name
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s: %s (Measured in %s)", d.Key(), d.Description, d.Unit)
}

// Registry is a read-only set of descriptors keyed by "namespace.name".
type Registry struct {
	byKey map[string]Descriptor
}

type registryFile struct {
	Series []struct {
		Key         string `yaml:"key"`
		Unit        string `yaml:"unit"`
		Kind        string `yaml:"kind"`
		Description string `yaml:"description"`
	} `yaml:"series"`
}

// Default returns the registry built from the embedded series.yaml.
func Default() (*Registry, error) {
	return Load(bytes.NewReader(defaultSeries))
}

// LoadFile reads a registry from a YAML file.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open series file: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes a registry and validates every entry.
func Load(r io.Reader) (*Registry, error) {
	var raw registryFile
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode series registry: %w", err)
	}

	reg := &Registry{byKey: make(map[string]Descriptor, len(raw.Series))}
	for _, s := range raw.Series {
		namespace, name, err := SplitKey(s.Key)
		if err != nil {
			return nil, err
		}
		kind := Kind(s.Kind)
		if !kind.Valid() {
			return nil, fmt.Errorf("%w: %q for series %s", ErrUnsupportedKind, s.Kind, s.Key)
		}
		reg.byKey[s.Key] = Descriptor{
			Namespace:   namespace,
			Name:        name,
			Unit:        s.Unit,
			Kind:        kind,
			Description: s.Description,
		}
	}
	return reg, nil
}

// SplitKey splits "namespace.name" into its two parts.
func SplitKey(key string) (namespace, name string, err error) {
	namespace, name, ok := strings.Cut(key, ".")
	if !ok || namespace == "" || name == "" || strings.Contains(name, ".") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return namespace, name, nil
}

// Lookup returns the descriptor registered under key.
func (r *Registry) Lookup(key string) (Descriptor, bool) {
	d, ok := r.byKey[key]
	return d, ok
}

// All returns every descriptor sorted by key.
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, 0, len(r.byKey))
	for _, d := range r.byKey {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}
