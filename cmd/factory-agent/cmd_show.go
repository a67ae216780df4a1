package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/p-blackswan/factory-agent/internal/env"
	perrors "github.com/p-blackswan/factory-agent/internal/errors"
	"github.com/p-blackswan/factory-agent/internal/factory"
)

var showFlags struct {
	location  string
	factoryID string
	output    string
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Fetch and print the session's factory",
	RunE:  runShow,
}

func init() {
	f := showCmd.Flags()
	f.StringVar(&showFlags.location, "location", "", "Session URL carrying the factory-id query parameter (default $FACTORY_LOCATION)")
	f.StringVar(&showFlags.factoryID, "factory-id", "", "Factory ID; overrides --location")
	f.StringVarP(&showFlags.output, "output", "o", "yaml", "Output format: yaml or json")
}

func runShow(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	location := resolveLocation(cfg, showFlags.location, showFlags.factoryID)

	vars := env.NewSnapshot(env.NewOSProvider(cfg.EnvFileList()...))
	cache := newCache(cfg, location, vars, nil, logger)
	if cache.FactoryID() == "" {
		return fmt.Errorf("no factory-id in location %q: %w", location, perrors.ErrInvalidInput)
	}

	def := cache.FetchCurrent(cmd.Context())
	if def == nil {
		return fmt.Errorf("factory %s: %w", cache.FactoryID(), perrors.ErrNoFactory)
	}
	return writeDefinition(cmd.OutOrStdout(), def, showFlags.output)
}

func writeDefinition(w io.Writer, def *factory.Definition, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(def)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(def); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q: %w", format, perrors.ErrInvalidInput)
	}
}
