// Package env provides the environment-variable collaborator the factory
// bootstrap reads its Che settings from.
package env

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// Well-known variable names.
const (
	APIExternal  = "CHE_API_EXTERNAL"
	ProjectsRoot = "CHE_PROJECTS_ROOT"
)

// DefaultProjectsRoot is used when CHE_PROJECTS_ROOT is absent or empty.
const DefaultProjectsRoot = "/projects"

// Variable is a single name/value pair.
type Variable struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Provider lists environment variables.
type Provider interface {
	Variables(ctx context.Context) ([]Variable, error)
}

// Lookup returns the variable with the given name, if present.
func Lookup(vars []Variable, name string) (Variable, bool) {
	for _, v := range vars {
		if v.Name == name {
			return v, true
		}
	}
	return Variable{}, false
}

// Value returns the value of the named variable, or "" when absent.
func Value(vars []Variable, name string) string {
	v, _ := Lookup(vars, name)
	return v.Value
}

// OSProvider reads the process environment, merged over optional dotenv
// files. Process variables win over file entries.
type OSProvider struct {
	files []string
}

// NewOSProvider creates a provider reading os.Environ and the given dotenv files.
func NewOSProvider(files ...string) *OSProvider {
	return &OSProvider{files: files}
}

// Variables implements Provider. Output is sorted by name.
func (p *OSProvider) Variables(ctx context.Context) ([]Variable, error) {
	merged := make(map[string]string)
	if len(p.files) > 0 {
		fromFiles, err := godotenv.Read(p.files...)
		if err != nil {
			return nil, fmt.Errorf("reading env files: %w", err)
		}
		for k, v := range fromFiles {
			merged[k] = v
		}
	}
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		merged[name] = value
	}
	return toVariables(merged), nil
}

// Static is a fixed set of variables.
type Static map[string]string

// Variables implements Provider.
func (s Static) Variables(ctx context.Context) ([]Variable, error) {
	return toVariables(s), nil
}

// Snapshot memoizes the first successful listing of a provider, so every
// component sees the same environment for the whole session.
type Snapshot struct {
	provider Provider

	mu   sync.Mutex
	vars []Variable
	done bool
}

// NewSnapshot wraps a provider.
func NewSnapshot(p Provider) *Snapshot {
	return &Snapshot{provider: p}
}

// Variables implements Provider. A failed listing is not memoized.
func (s *Snapshot) Variables(ctx context.Context) ([]Variable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return s.vars, nil
	}
	vars, err := s.provider.Variables(ctx)
	if err != nil {
		return nil, err
	}
	s.vars = vars
	s.done = true
	return vars, nil
}

func toVariables(m map[string]string) []Variable {
	vars := make([]Variable, 0, len(m))
	for k, v := range m {
		vars = append(vars, Variable{Name: k, Value: v})
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i].Name < vars[j].Name })
	return vars
}
