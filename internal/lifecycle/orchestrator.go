// Package lifecycle drives a factory bootstrap session: it loads the
// factory, imports its projects and fires the three lifecycle phases.
//
// The projects track runs once from Start:
//
//	idle → definition_loading → cloning → projects_ready | projects_failed_partially
//
// with no_factory as the terminal state when the session has no factory.
// The app-loaded and app-closed phases are driven independently by the
// host through OnReady and OnClosing.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/p-blackswan/factory-agent/internal/action"
	"github.com/p-blackswan/factory-agent/internal/env"
	"github.com/p-blackswan/factory-agent/internal/factory"
	"github.com/p-blackswan/factory-agent/internal/metrics"
	"github.com/p-blackswan/factory-agent/internal/notify"
	"github.com/p-blackswan/factory-agent/internal/vcs"
)

// State is the position of the projects track.
type State string

const (
	StateIdle                    State = "idle"
	StateDefinitionLoading       State = "definition_loading"
	StateNoFactory               State = "no_factory"
	StateCloning                 State = "cloning"
	StateProjectsReady           State = "projects_ready"
	StateProjectsFailedPartially State = "projects_failed_partially"
)

// Definitions supplies the session's factory; nil means no factory.
type Definitions interface {
	FetchCurrent(ctx context.Context) *factory.Definition
}

// Dispatcher handles the action list of a fired phase.
type Dispatcher interface {
	Dispatch(ctx context.Context, b action.Batch) error
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Definitions Definitions
	Env         env.Provider
	VCS         vcs.Client
	Notifier    notify.Notifier
	Dispatcher  Dispatcher
	Metrics     *metrics.Metrics // optional
	Logger      zerolog.Logger
}

// ProjectOutcome is the result of one import unit.
type ProjectOutcome struct {
	Path        string `json:"path"`
	Location    string `json:"location"`
	Destination string `json:"destination,omitempty"`
	Branch      string `json:"branch,omitempty"`
	Settled     bool   `json:"settled"`
	Cloned      bool   `json:"cloned"`
	CheckedOut  bool   `json:"checked_out"`
	Err         error  `json:"-"`
	CheckoutErr error  `json:"-"`
}

// Failed reports whether the import unit failed. A failed checkout
// after a successful clone does not fail the unit.
func (p ProjectOutcome) Failed() bool {
	return p.Err != nil
}

// Report summarizes the startup sequence.
type Report struct {
	State        State
	ProjectsRoot string
	Projects     []ProjectOutcome
}

// Failed counts failed import units.
func (r *Report) Failed() int {
	n := 0
	for _, p := range r.Projects {
		if p.Failed() {
			n++
		}
	}
	return n
}

// Snapshot is a point-in-time view of the session.
type Snapshot struct {
	State        State                         `json:"state"`
	ProjectsRoot string                        `json:"projects_root,omitempty"`
	Projects     []ProjectOutcome              `json:"projects"`
	Phases       map[factory.Phase]PhaseStatus `json:"phases"`
	Finished     bool                          `json:"finished"`
}

// Orchestrator sequences one bootstrap session.
type Orchestrator struct {
	deps   Deps
	logger zerolog.Logger

	startOnce sync.Once
	report    *Report
	settled   chan struct{} // closed once the definition is loaded (or known absent)
	finished  chan struct{} // closed once Start has returned its report

	// Session fields, written before settled is closed and read-only after.
	definition   *factory.Definition
	projectsRoot string
	actions      map[factory.Phase][]factory.Action

	gates map[factory.Phase]*gate

	mu       sync.RWMutex
	state    State
	outcomes []ProjectOutcome
}

// New creates an orchestrator in the idle state.
func New(deps Deps) *Orchestrator {
	gates := make(map[factory.Phase]*gate, len(factory.Phases))
	for _, p := range factory.Phases {
		gates[p] = newGate(p)
	}
	return &Orchestrator{
		deps:     deps,
		logger:   deps.Logger.With().Str("component", "lifecycle").Logger(),
		settled:  make(chan struct{}),
		finished: make(chan struct{}),
		actions:  make(map[factory.Phase][]factory.Action, len(factory.Phases)),
		gates:    gates,
		state:    StateIdle,
	}
}

// Start runs the startup sequence once. Later calls wait for and return
// the first report. Start never fails: every error is logged and
// reported to the user.
func (o *Orchestrator) Start(ctx context.Context) *Report {
	o.startOnce.Do(func() {
		o.report = o.run(ctx)
		close(o.finished)
	})
	<-o.finished
	return o.report
}

// Finished is closed when the startup sequence has settled.
func (o *Orchestrator) Finished() <-chan struct{} {
	return o.finished
}

// OnReady is called by the host when the application is ready. It fires
// the app-loaded phase as soon as the definition is known, without
// waiting for project imports.
func (o *Orchestrator) OnReady(ctx context.Context) {
	o.fireWhenSettled(ctx, factory.PhaseAppLoaded)
}

// OnClosing is called by the host when the session ends. Delivery of the
// app-closed phase is best-effort and bounded by ctx.
func (o *Orchestrator) OnClosing(ctx context.Context) {
	o.fireWhenSettled(ctx, factory.PhaseAppClosed)
}

// Wait blocks until the given phase has fired and its actions have been
// dispatched, returning the dispatch outcome.
func (o *Orchestrator) Wait(ctx context.Context, p factory.Phase) error {
	g, ok := o.gates[p]
	if !ok {
		return fmt.Errorf("unknown phase %q", p)
	}
	return g.wait(ctx)
}

// Snapshot returns the current session view.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	snap := Snapshot{
		State:    o.state,
		Projects: append([]ProjectOutcome{}, o.outcomes...),
		Phases:   make(map[factory.Phase]PhaseStatus, len(o.gates)),
	}
	o.mu.RUnlock()

	select {
	case <-o.settled:
		snap.ProjectsRoot = o.projectsRoot
	default:
	}
	select {
	case <-o.finished:
		snap.Finished = true
	default:
	}
	for p, g := range o.gates {
		snap.Phases[p] = g.status()
	}
	return snap
}

func (o *Orchestrator) run(ctx context.Context) *Report {
	o.setState(StateDefinitionLoading)

	def := o.deps.Definitions.FetchCurrent(ctx)
	if def == nil {
		o.logger.Debug().Msg("no factory for this session")
		o.setState(StateNoFactory)
		close(o.settled)
		return &Report{State: StateNoFactory}
	}

	root := o.resolveProjectsRoot(ctx)
	o.definition = def
	o.projectsRoot = root
	for _, p := range factory.Phases {
		o.actions[p] = factory.ActionsFor(def, p)
	}
	close(o.settled)

	var units []factory.Project
	for _, p := range factory.ProjectsOf(def) {
		if !p.Clonable() {
			o.logger.Debug().Str("path", p.Path).Msg("project has no source, skipping")
			continue
		}
		units = append(units, p)
	}

	if len(units) == 0 {
		o.setState(StateProjectsReady)
		return &Report{State: StateProjectsReady, ProjectsRoot: root, Projects: []ProjectOutcome{}}
	}

	o.mu.Lock()
	o.state = StateCloning
	o.outcomes = make([]ProjectOutcome, len(units))
	for i, p := range units {
		o.outcomes[i] = ProjectOutcome{Path: p.Path, Location: p.Location(), Branch: p.Branch()}
	}
	o.mu.Unlock()

	o.logger.Info().Int("projects", len(units)).Str("root", root).Msg("importing projects")

	// Units never return an error, so no sibling is cancelled by a failure.
	var g errgroup.Group
	for i, p := range units {
		i, p := i, p
		g.Go(func() error {
			out := o.importProject(ctx, root, p)
			o.mu.Lock()
			o.outcomes[i] = out
			o.mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	o.mu.Lock()
	outcomes := append([]ProjectOutcome(nil), o.outcomes...)
	report := &Report{State: StateProjectsReady, ProjectsRoot: root, Projects: outcomes}
	if report.Failed() > 0 {
		report.State = StateProjectsFailedPartially
	}
	o.state = report.State
	o.mu.Unlock()

	o.logger.Info().
		Str("state", string(report.State)).
		Int("projects", len(outcomes)).
		Int("failed", report.Failed()).
		Msg("project imports settled")

	o.fire(ctx, factory.PhaseProjectsLoaded)
	return report
}

func (o *Orchestrator) resolveProjectsRoot(ctx context.Context) string {
	vars, err := o.deps.Env.Variables(ctx)
	if err != nil {
		o.logger.Warn().Err(err).Str("default", env.DefaultProjectsRoot).Msg("environment unavailable, using default projects root")
		return env.DefaultProjectsRoot
	}
	if root := env.Value(vars, env.ProjectsRoot); root != "" {
		return root
	}
	return env.DefaultProjectsRoot
}

// importProject clones one project and checks out its branch. It never
// panics or returns early without a settled outcome.
func (o *Orchestrator) importProject(ctx context.Context, root string, p factory.Project) (out ProjectOutcome) {
	out = ProjectOutcome{Path: p.Path, Location: p.Location(), Branch: p.Branch()}
	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("import panicked: %v", r)
			o.logger.Error().Interface("panic", r).Str("path", p.Path).Msg("project import panicked")
		}
		out.Settled = true
	}()

	location := p.Location()
	dest, err := securejoin.SecureJoin(root, p.Path)
	if err != nil {
		out.Err = fmt.Errorf("resolving destination %s: %w", p.Path, err)
		o.logger.Error().Err(err).Str("path", p.Path).Msg("invalid project path")
		o.deps.Notifier.Error(ctx, fmt.Sprintf("Couldn't clone %s to %s%s... %v", location, root, p.Path, err))
		return out
	}
	out.Destination = dest
	logger := o.logger.With().Str("remote", location).Str("path", dest).Logger()

	o.deps.Notifier.Info(ctx, fmt.Sprintf("Cloning ... %s to %s...", location, dest))

	start := time.Now()
	repo, err := o.deps.VCS.Clone(ctx, location, vcs.CloneOptions{LocalPath: dest})
	if err != nil {
		o.deps.Metrics.RecordClone(metrics.ResultError, time.Since(start).Seconds())
		out.Err = err
		logger.Error().Err(err).Msg("clone failed")
		o.deps.Notifier.Error(ctx, fmt.Sprintf("Couldn't clone %s to %s... %v", location, dest, err))
		return out
	}
	o.deps.Metrics.RecordClone(metrics.ResultOK, time.Since(start).Seconds())
	out.Cloned = true
	logger.Info().Msg("project cloned")
	o.deps.Notifier.Info(ctx, fmt.Sprintf("Project %s successfully cloned.", dest))

	branch := p.Branch()
	if branch == "" {
		return out
	}
	if err := o.deps.VCS.Checkout(ctx, repo, vcs.CheckoutOptions{Branch: branch}); err != nil {
		o.deps.Metrics.RecordCheckout(metrics.ResultError)
		out.CheckoutErr = err
		logger.Error().Err(err).Str("branch", branch).Msg("checkout failed")
		o.deps.Notifier.Error(ctx, fmt.Sprintf("Couldn't checkout branch %s in %s... %v", branch, dest, err))
		return out
	}
	o.deps.Metrics.RecordCheckout(metrics.ResultOK)
	out.CheckedOut = true
	logger.Info().Str("branch", branch).Msg("branch checked out")
	return out
}

func (o *Orchestrator) fireWhenSettled(ctx context.Context, p factory.Phase) {
	select {
	case <-o.settled:
	case <-ctx.Done():
		o.logger.Warn().Err(ctx.Err()).Str("phase", string(p)).Msg("factory not loaded in time, phase dropped")
		return
	}
	if o.definition == nil {
		return
	}
	o.fire(ctx, p)
}

// fire delivers the phase's actions to the dispatcher, at most once per
// session.
func (o *Orchestrator) fire(ctx context.Context, p factory.Phase) {
	actions := o.actions[p]
	_ = o.gates[p].fire(len(actions), func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("dispatch panicked: %v", r)
				o.logger.Error().Interface("panic", r).Str("phase", string(p)).Msg("phase dispatch panicked")
			}
		}()

		o.deps.Metrics.RecordPhase(string(p))
		o.logger.Info().Str("phase", string(p)).Int("actions", len(actions)).Msg("firing phase")

		err = o.deps.Dispatcher.Dispatch(ctx, action.Batch{
			Phase:        p,
			ProjectsRoot: o.projectsRoot,
			Actions:      actions,
		})
		if err != nil {
			o.logger.Warn().Err(err).Str("phase", string(p)).Msg("phase dispatch stopped early")
		}
		return err
	})
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = s
}
