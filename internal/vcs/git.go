// Package vcs clones and checks out project repositories.
package vcs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// Repository is a handle on a cloned working copy.
type Repository struct {
	LocalPath string
	RemoteURL string
}

// CloneOptions controls a clone.
type CloneOptions struct {
	LocalPath string
}

// CheckoutOptions controls a checkout.
type CheckoutOptions struct {
	Branch string
}

// Client is the version-control collaborator used by the bootstrap.
type Client interface {
	Clone(ctx context.Context, remoteURL string, opts CloneOptions) (*Repository, error)
	Checkout(ctx context.Context, repo *Repository, opts CheckoutOptions) error
}

// Runner executes a command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands through os/exec with terminal prompts disabled,
// so a clone needing credentials fails instead of hanging.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.Bytes(), err
}

// Git implements Client on top of the git command line.
type Git struct {
	bin    string
	runner Runner
	logger zerolog.Logger
}

// NewGit creates a git client. An empty bin means "git" from PATH.
func NewGit(bin string, logger zerolog.Logger) *Git {
	if bin == "" {
		bin = "git"
	}
	return &Git{
		bin:    bin,
		runner: ExecRunner{},
		logger: logger.With().Str("component", "git").Logger(),
	}
}

// SetRunner replaces the command runner (for testing).
func (g *Git) SetRunner(r Runner) {
	g.runner = r
}

// Clone runs git clone into opts.LocalPath.
func (g *Git) Clone(ctx context.Context, remoteURL string, opts CloneOptions) (*Repository, error) {
	if remoteURL == "" {
		return nil, fmt.Errorf("clone: remote url is required")
	}
	if opts.LocalPath == "" {
		return nil, fmt.Errorf("clone: local path is required")
	}

	g.logger.Debug().Str("remote", remoteURL).Str("path", opts.LocalPath).Msg("git clone")

	out, err := g.runner.Run(ctx, "", g.bin, "clone", "--", remoteURL, opts.LocalPath)
	if err != nil {
		return nil, fmt.Errorf("git clone %s: %s: %w", remoteURL, strings.TrimSpace(string(out)), err)
	}
	return &Repository{LocalPath: opts.LocalPath, RemoteURL: remoteURL}, nil
}

// Checkout switches the working copy to opts.Branch.
func (g *Git) Checkout(ctx context.Context, repo *Repository, opts CheckoutOptions) error {
	if repo == nil || repo.LocalPath == "" {
		return fmt.Errorf("checkout: repository is required")
	}
	if opts.Branch == "" {
		return fmt.Errorf("checkout: branch is required")
	}

	g.logger.Debug().Str("path", repo.LocalPath).Str("branch", opts.Branch).Msg("git checkout")

	out, err := g.runner.Run(ctx, "", g.bin, "-C", repo.LocalPath, "checkout", opts.Branch)
	if err != nil {
		return fmt.Errorf("git checkout %s: %s: %w", opts.Branch, strings.TrimSpace(string(out)), err)
	}
	return nil
}
