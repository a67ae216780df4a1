// Package factory holds the factory definition model, the repository
// clients that fetch it and the per-session definition cache.
package factory

// Phase names one of the three lifecycle points a factory declares actions for.
type Phase string

const (
	PhaseAppLoaded      Phase = "onAppLoaded"
	PhaseProjectsLoaded Phase = "onProjectsLoaded"
	PhaseAppClosed      Phase = "onAppClosed"
)

// Phases lists every lifecycle phase in firing order of a typical session.
var Phases = []Phase{PhaseAppLoaded, PhaseProjectsLoaded, PhaseAppClosed}

// Known action identifiers.
const (
	ActionOpenFile   = "openFile"
	ActionRunCommand = "runCommand"
)

// Definition is the factory document served by the factory API.
// Every section is optional.
type Definition struct {
	ID        string     `json:"id,omitempty" yaml:"id,omitempty"`
	Name      string     `json:"name,omitempty" yaml:"name,omitempty"`
	Version   string     `json:"v,omitempty" yaml:"v,omitempty"`
	Workspace *Workspace `json:"workspace,omitempty" yaml:"workspace,omitempty"`
	IDE       *IDE       `json:"ide,omitempty" yaml:"ide,omitempty"`
}

// Workspace is the workspace configuration embedded in a factory.
type Workspace struct {
	Name     string    `json:"name,omitempty" yaml:"name,omitempty"`
	Projects []Project `json:"projects,omitempty" yaml:"projects,omitempty"`
}

// Project is one repository to materialize under the projects root.
type Project struct {
	Name   string  `json:"name,omitempty" yaml:"name,omitempty"`
	Path   string  `json:"path" yaml:"path"`
	Source *Source `json:"source,omitempty" yaml:"source,omitempty"`
}

// Source describes where a project comes from.
type Source struct {
	Type       string            `json:"type,omitempty" yaml:"type,omitempty"`
	Location   string            `json:"location,omitempty" yaml:"location,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// Clonable reports whether the project has a remote location to clone from.
func (p Project) Clonable() bool {
	return p.Source != nil && p.Source.Location != ""
}

// Location returns the remote location, or "".
func (p Project) Location() string {
	if p.Source == nil {
		return ""
	}
	return p.Source.Location
}

// Branch returns the branch parameter, or "" when none is declared.
func (p Project) Branch() string {
	if p.Source == nil {
		return ""
	}
	return p.Source.Parameters["branch"]
}

// IDE groups the lifecycle action sets.
type IDE struct {
	OnAppLoaded      *ActionSet `json:"onAppLoaded,omitempty" yaml:"onAppLoaded,omitempty"`
	OnProjectsLoaded *ActionSet `json:"onProjectsLoaded,omitempty" yaml:"onProjectsLoaded,omitempty"`
	OnAppClosed      *ActionSet `json:"onAppClosed,omitempty" yaml:"onAppClosed,omitempty"`
}

// ActionSet wraps the ordered action list of one phase.
type ActionSet struct {
	Actions []Action `json:"actions,omitempty" yaml:"actions,omitempty"`
}

// Action is one declarative effect. Unknown IDs are accepted here and
// rejected only when dispatched.
type Action struct {
	ID         string            `json:"id" yaml:"id"`
	Properties *ActionProperties `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// ActionProperties carries the per-action settings. Only File is
// interpreted; the rest are carried for forward compatibility.
type ActionProperties struct {
	Name               string `json:"name,omitempty" yaml:"name,omitempty"`
	File               string `json:"file,omitempty" yaml:"file,omitempty"`
	GreetingTitle      string `json:"greetingTitle,omitempty" yaml:"greetingTitle,omitempty"`
	GreetingContentURL string `json:"greetingContentUrl,omitempty" yaml:"greetingContentUrl,omitempty"`
}

// File returns properties.file, or "".
func (a Action) File() string {
	if a.Properties == nil {
		return ""
	}
	return a.Properties.File
}

// Name returns properties.name, or "".
func (a Action) Name() string {
	if a.Properties == nil {
		return ""
	}
	return a.Properties.Name
}

// ProjectsOf returns the factory projects, or an empty slice.
func ProjectsOf(d *Definition) []Project {
	if d == nil || d.Workspace == nil || d.Workspace.Projects == nil {
		return []Project{}
	}
	return d.Workspace.Projects
}

// ActionsOnAppLoaded returns the onAppLoaded actions, or an empty slice.
func ActionsOnAppLoaded(d *Definition) []Action {
	return ActionsFor(d, PhaseAppLoaded)
}

// ActionsOnProjectsLoaded returns the onProjectsLoaded actions, or an empty slice.
func ActionsOnProjectsLoaded(d *Definition) []Action {
	return ActionsFor(d, PhaseProjectsLoaded)
}

// ActionsOnAppClosed returns the onAppClosed actions, or an empty slice.
func ActionsOnAppClosed(d *Definition) []Action {
	return ActionsFor(d, PhaseAppClosed)
}

// ActionsFor returns the actions of the given phase, or an empty slice
// when any level of the ide section is missing.
func ActionsFor(d *Definition, phase Phase) []Action {
	if d == nil || d.IDE == nil {
		return []Action{}
	}
	var set *ActionSet
	switch phase {
	case PhaseAppLoaded:
		set = d.IDE.OnAppLoaded
	case PhaseProjectsLoaded:
		set = d.IDE.OnProjectsLoaded
	case PhaseAppClosed:
		set = d.IDE.OnAppClosed
	}
	if set == nil || set.Actions == nil {
		return []Action{}
	}
	return set.Actions
}
