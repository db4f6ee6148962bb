package recipe

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Kind separates the two recipe namespaces. Each kind lives in its own YAML
// document under the configured recipes directory.
type Kind string

const (
	KindService   Kind = "service"
	KindBenchmark Kind = "benchmark"
)

// recipe file names, fixed relative to the recipes directory
const (
	serviceRecipesFile   = "service_recipes.yaml"
	benchmarkRecipesFile = "benchmark_recipes.yaml"
)

// Recipe is a named submission template: default parameters plus the script
// the scheduler should run.
type Recipe struct {
	Name        string
	Kind        Kind
	Description string                 `yaml:"description"`
	Script      string                 `yaml:"script"`
	Defaults    map[string]interface{} `yaml:"defaults"`
	Required    []string               `yaml:"required"`
}

// Store holds all loaded recipes, keyed by (kind, name).
type Store struct {
	recipes map[Kind]map[string]*Recipe
}

// Load reads both recipe documents from dir. A missing document yields an
// empty namespace rather than an error, so a deployment that only runs
// services does not need a benchmark file.
func Load(dir string) (*Store, error) {
	s := &Store{recipes: map[Kind]map[string]*Recipe{
		KindService:   {},
		KindBenchmark: {},
	}}

	files := map[Kind]string{
		KindService:   filepath.Join(dir, serviceRecipesFile),
		KindBenchmark: filepath.Join(dir, benchmarkRecipesFile),
	}
	for kind, path := range files {
		if err := s.loadFile(kind, path); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) loadFile(kind Kind, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read recipe file %s: %w", path, err)
	}

	var raw map[string]*Recipe
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse recipe file %s: %w", path, err)
	}

	for name, r := range raw {
		if r == nil {
			r = &Recipe{}
		}
		r.Name = name
		r.Kind = kind
		if r.Defaults == nil {
			r.Defaults = make(map[string]interface{})
		}
		if err := validate(r); err != nil {
			return fmt.Errorf("invalid recipe %q in %s: %w", name, path, err)
		}
		s.recipes[kind][name] = r
	}
	return nil
}

// validate checks structural invariants at load time so resolution never
// meets a half-formed recipe.
func validate(r *Recipe) error {
	if r.Script == "" {
		return fmt.Errorf("recipe has no script")
	}
	for _, key := range r.Required {
		if key == "" {
			return fmt.Errorf("required list contains an empty key")
		}
	}
	return nil
}

// Lookup returns the recipe for (kind, name).
func (s *Store) Lookup(kind Kind, name string) (*Recipe, error) {
	byName, ok := s.recipes[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrRecipeNotFound, kind)
	}
	r, ok := byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s recipe %q", ErrRecipeNotFound, kind, name)
	}
	return r, nil
}

// Names returns the sorted recipe names for a kind.
func (s *Store) Names(kind Kind) []string {
	byName := s.recipes[kind]
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every recipe of a kind, ordered by name.
func (s *Store) All(kind Kind) []*Recipe {
	var out []*Recipe
	for _, name := range s.Names(kind) {
		out = append(out, s.recipes[kind][name])
	}
	return out
}
