package env

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	vars := []Variable{{Name: "A", Value: "1"}, {Name: "B", Value: ""}}

	v, ok := Lookup(vars, "A")
	assert.True(t, ok)
	assert.Equal(t, "1", v.Value)

	_, ok = Lookup(vars, "B")
	assert.True(t, ok)

	_, ok = Lookup(vars, "C")
	assert.False(t, ok)
	assert.Equal(t, "", Value(vars, "C"))
}

func TestStatic(t *testing.T) {
	vars, err := Static{"Z": "26", "A": "1"}.Variables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Variable{{Name: "A", Value: "1"}, {Name: "Z", Value: "26"}}, vars)
}

func TestOSProvider_ProcessEnv(t *testing.T) {
	t.Setenv(APIExternal, "https://che.example.com/api")

	vars, err := NewOSProvider().Variables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://che.example.com/api", Value(vars, APIExternal))
}

func TestOSProvider_EnvFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "che.env")
	require.NoError(t, os.WriteFile(path, []byte("CHE_PROJECTS_ROOT=/ws\nFACTORY_TEST_ONLY_FILE=from-file\n"), 0o600))
	t.Setenv("FACTORY_TEST_ONLY_FILE", "from-process")

	vars, err := NewOSProvider(path).Variables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-process", Value(vars, "FACTORY_TEST_ONLY_FILE"))
	if _, set := os.LookupEnv(ProjectsRoot); !set {
		assert.Equal(t, "/ws", Value(vars, ProjectsRoot))
	}
}

func TestOSProvider_MissingFile(t *testing.T) {
	_, err := NewOSProvider(filepath.Join(t.TempDir(), "nope.env")).Variables(context.Background())
	assert.Error(t, err)
}

type countingProvider struct {
	calls int
	err   error
}

func (c *countingProvider) Variables(ctx context.Context) ([]Variable, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []Variable{{Name: "N", Value: "v"}}, nil
}

func TestSnapshot_Memoizes(t *testing.T) {
	inner := &countingProvider{}
	s := NewSnapshot(inner)

	for i := 0; i < 3; i++ {
		vars, err := s.Variables(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "v", Value(vars, "N"))
	}
	assert.Equal(t, 1, inner.calls)
}

func TestSnapshot_ErrorNotMemoized(t *testing.T) {
	inner := &countingProvider{err: errors.New("boom")}
	s := NewSnapshot(inner)

	_, err := s.Variables(context.Background())
	assert.Error(t, err)

	inner.err = nil
	vars, err := s.Variables(context.Background())
	require.NoError(t, err)
	assert.Len(t, vars, 1)
	assert.Equal(t, 2, inner.calls)
}
