// Package opener asks the IDE to open workspace files.
package opener

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"path/filepath"
	"strings"

	shellquote "github.com/kballard/go-shellquote"
	"github.com/rs/zerolog"
)

// Opener opens an absolute file:// reference in the IDE.
type Opener interface {
	Open(ctx context.Context, uri string) error
}

// FileURI builds a file:// reference for an absolute local path.
func FileURI(path string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

// PathFromURI extracts the local path of a file:// reference.
func PathFromURI(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parsing %q: %w", uri, err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("unsupported reference %q: want file://", uri)
	}
	if u.Path == "" || !strings.HasPrefix(u.Path, "/") {
		return "", fmt.Errorf("reference %q is not absolute", uri)
	}
	return filepath.FromSlash(u.Path), nil
}

// Runner starts an external command.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %s: %w", name, strings.TrimSpace(string(out)), err)
	}
	return nil
}

// CommandOpener opens files by running a configured command with the
// local path appended, e.g. "code --reuse-window".
type CommandOpener struct {
	argv   []string
	runner Runner
	logger zerolog.Logger
}

// NewCommandOpener parses a shell-quoted command line.
func NewCommandOpener(command string, logger zerolog.Logger) (*CommandOpener, error) {
	argv, err := shellquote.Split(command)
	if err != nil {
		return nil, fmt.Errorf("parsing open command: %w", err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("open command is empty")
	}
	return &CommandOpener{
		argv:   argv,
		runner: execRunner{},
		logger: logger.With().Str("component", "opener").Logger(),
	}, nil
}

// SetRunner replaces the command runner (for testing).
func (o *CommandOpener) SetRunner(r Runner) {
	o.runner = r
}

// Open implements Opener.
func (o *CommandOpener) Open(ctx context.Context, uri string) error {
	path, err := PathFromURI(uri)
	if err != nil {
		return err
	}
	args := append(append([]string{}, o.argv[1:]...), path)
	o.logger.Debug().Str("command", shellquote.Join(append([]string{o.argv[0]}, args...)...)).Msg("opening file")
	if err := o.runner.Run(ctx, o.argv[0], args...); err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	return nil
}

// LogOpener only records the request, for hosts that watch the log.
type LogOpener struct {
	logger zerolog.Logger
}

// NewLogOpener creates a log-only opener.
func NewLogOpener(logger zerolog.Logger) *LogOpener {
	return &LogOpener{logger: logger.With().Str("component", "opener").Logger()}
}

// Open implements Opener.
func (o *LogOpener) Open(ctx context.Context, uri string) error {
	if _, err := PathFromURI(uri); err != nil {
		return err
	}
	o.logger.Info().Str("uri", uri).Msg("open file requested")
	return nil
}

// New returns a CommandOpener when command is set, a LogOpener otherwise.
func New(command string, logger zerolog.Logger) (Opener, error) {
	if strings.TrimSpace(command) == "" {
		return NewLogOpener(logger), nil
	}
	return NewCommandOpener(command, logger)
}
