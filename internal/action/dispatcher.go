// Package action performs the declarative lifecycle actions of a factory.
package action

import (
	"context"
	"errors"
	"fmt"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/factory-agent/internal/errors"
	"github.com/p-blackswan/factory-agent/internal/factory"
	"github.com/p-blackswan/factory-agent/internal/metrics"
	"github.com/p-blackswan/factory-agent/internal/notify"
	"github.com/p-blackswan/factory-agent/internal/opener"
)

// Batch is the action list of one fired phase.
type Batch struct {
	Phase        factory.Phase
	ProjectsRoot string
	Actions      []factory.Action
}

// Dispatcher runs the actions of a batch one after another.
type Dispatcher struct {
	opener   opener.Opener
	notifier notify.Notifier
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewDispatcher creates a dispatcher. m may be nil.
func NewDispatcher(o opener.Opener, n notify.Notifier, m *metrics.Metrics, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		opener:   o,
		notifier: n,
		metrics:  m,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch performs every action of the batch in order. The first failing
// action stops the batch; its error is logged, reported to the user and
// returned.
func (d *Dispatcher) Dispatch(ctx context.Context, b Batch) error {
	logger := d.logger.With().Str("phase", string(b.Phase)).Logger()
	logger.Debug().Int("actions", len(b.Actions)).Msg("dispatching phase")

	for i, a := range b.Actions {
		if err := ctx.Err(); err != nil {
			logger.Warn().Err(err).Int("remaining", len(b.Actions)-i).Msg("dispatch interrupted")
			return err
		}
		if err := d.perform(ctx, b, a, logger); err != nil {
			logger.Error().Err(err).Int("index", i).Int("skipped", len(b.Actions)-i-1).Msg("action failed, stopping phase")
			d.notifier.Error(ctx, userMessage(err))
			return err
		}
	}
	return nil
}

func (d *Dispatcher) perform(ctx context.Context, b Batch, a factory.Action, logger zerolog.Logger) error {
	phase := string(b.Phase)
	switch a.ID {
	case factory.ActionOpenFile:
		file := a.File()
		if file == "" {
			logger.Debug().Msg("openFile without file, skipping")
			d.metrics.RecordAction(phase, a.ID, metrics.ResultNoop)
			return nil
		}
		path, err := securejoin.SecureJoin(b.ProjectsRoot, file)
		if err != nil {
			d.metrics.RecordAction(phase, a.ID, metrics.ResultError)
			return &perrors.ActionError{Phase: phase, ID: a.ID, Err: fmt.Errorf("resolving %s: %w", file, err)}
		}
		uri := opener.FileURI(path)
		if err := d.opener.Open(ctx, uri); err != nil {
			d.metrics.RecordAction(phase, a.ID, metrics.ResultError)
			return &perrors.ActionError{Phase: phase, ID: a.ID, Err: err}
		}
		logger.Info().Str("uri", uri).Msg("opened file")
		d.metrics.RecordAction(phase, a.ID, metrics.ResultOK)
		return nil

	case factory.ActionRunCommand:
		// Reserved; commands are not executed yet.
		logger.Debug().Str("command", a.Name()).Msg("runCommand is not implemented, skipping")
		d.metrics.RecordAction(phase, a.ID, metrics.ResultNoop)
		return nil

	default:
		d.metrics.RecordAction(phase, a.ID, metrics.ResultUnsupported)
		return &perrors.ActionError{Phase: phase, ID: a.ID, Err: perrors.ErrUnsupportedAction}
	}
}

func userMessage(err error) string {
	var ae *perrors.ActionError
	if errors.As(err, &ae) {
		if errors.Is(ae.Err, perrors.ErrUnsupportedAction) {
			return fmt.Sprintf("Unsupported action: %s", ae.ID)
		}
		return fmt.Sprintf("Action %s failed: %v", ae.ID, ae.Err)
	}
	return err.Error()
}
