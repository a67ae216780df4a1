package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all agent configuration loaded from environment variables.
//
// The Che variables (CHE_API_EXTERNAL, CHE_PROJECTS_ROOT) are not part of
// this struct. They are read through the env provider at startup.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Factory
	Location     string        `envconfig:"FACTORY_LOCATION"`  // URL carrying the factory-id query parameter
	EnvFiles     string        `envconfig:"FACTORY_ENV_FILES"` // Comma-separated dotenv files merged into the env provider
	HTTPTimeout  time.Duration `envconfig:"FACTORY_HTTP_TIMEOUT" default:"30s"`
	CloseTimeout time.Duration `envconfig:"FACTORY_CLOSE_TIMEOUT" default:"5s"`

	// Collaborators
	GitBin      string `envconfig:"FACTORY_GIT_BIN" default:"git"`
	OpenCommand string `envconfig:"FACTORY_OPEN_COMMAND"` // e.g. "code --reuse-window"; empty = log only

	// Status server (empty disables it)
	StatusAddr string `envconfig:"FACTORY_STATUS_ADDR" default:":8095"`

	// Slack (optional; notifications go to the log only without it)
	SlackBotToken string `envconfig:"FACTORY_SLACK_BOT_TOKEN"`
	SlackChannel  string `envconfig:"FACTORY_SLACK_CHANNEL"`
}

// SlackEnabled returns true if Slack notifications are configured.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackChannel != ""
}

// StatusEnabled returns true if the status server should be started.
func (c *Config) StatusEnabled() bool {
	return c.StatusAddr != ""
}

// EnvFileList returns the parsed list of dotenv files.
// Returns nil if not configured.
func (c *Config) EnvFileList() []string {
	if c.EnvFiles == "" {
		return nil
	}
	parts := strings.Split(c.EnvFiles, ",")
	files := make([]string, 0, len(parts))
	for _, f := range parts {
		f = strings.TrimSpace(f)
		if f != "" {
			files = append(files, f)
		}
	}
	return files
}

// LocationFor builds a location carrying the given factory ID, for hosts
// that know the ID but have no page URL.
func LocationFor(factoryID string) string {
	return "?" + url.Values{"factory-id": {factoryID}}.Encode()
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}
