package factory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	perrors "github.com/p-blackswan/factory-agent/internal/errors"
)

var fileExtensions = []string{".yaml", ".yml", ".json"}

// FileStore serves factories from {dir}/factory/{id}.{yaml,yml,json}.
type FileStore struct {
	dir    string
	logger zerolog.Logger
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string, logger zerolog.Logger) *FileStore {
	return &FileStore{
		dir:    dir,
		logger: logger.With().Str("component", "factory_files").Logger(),
	}
}

// GetByID implements Fetcher. The first existing extension wins.
func (s *FileStore) GetByID(ctx context.Context, factoryID string) (*Definition, error) {
	if factoryID == "" || strings.ContainsAny(factoryID, `/\`) || factoryID == ".." {
		return nil, fmt.Errorf("factory id %q: %w", factoryID, perrors.ErrInvalidInput)
	}
	for _, ext := range fileExtensions {
		path := filepath.Join(s.dir, "factory", factoryID+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		s.logger.Debug().Str("path", path).Msg("loading factory from file")
		if ext == ".json" {
			return decodeJSON(data)
		}
		return decodeYAML(data)
	}
	return nil, fmt.Errorf("factory %q in %s: %w", factoryID, s.dir, perrors.ErrNotFound)
}

func decodeYAML(data []byte) (*Definition, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("decoding yaml: %w", err)
	}
	return &def, nil
}
