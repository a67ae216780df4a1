package server

import (
	"github.com/p-blackswan/factory-agent/internal/factory"
	"github.com/p-blackswan/factory-agent/internal/lifecycle"
)

type statusView struct {
	State        lifecycle.State                         `json:"state"`
	Finished     bool                                    `json:"finished"`
	ProjectsRoot string                                  `json:"projects_root,omitempty"`
	Projects     []projectView                           `json:"projects"`
	Phases       map[factory.Phase]lifecycle.PhaseStatus `json:"phases"`
}

type projectView struct {
	Path          string `json:"path"`
	Location      string `json:"location"`
	Destination   string `json:"destination,omitempty"`
	Branch        string `json:"branch,omitempty"`
	Settled       bool   `json:"settled"`
	Cloned        bool   `json:"cloned"`
	CheckedOut    bool   `json:"checked_out"`
	Error         string `json:"error,omitempty"`
	CheckoutError string `json:"checkout_error,omitempty"`
}

func newStatusView(s lifecycle.Snapshot) statusView {
	v := statusView{
		State:        s.State,
		Finished:     s.Finished,
		ProjectsRoot: s.ProjectsRoot,
		Projects:     make([]projectView, 0, len(s.Projects)),
		Phases:       s.Phases,
	}
	for _, p := range s.Projects {
		pv := projectView{
			Path:        p.Path,
			Location:    p.Location,
			Destination: p.Destination,
			Branch:      p.Branch,
			Settled:     p.Settled,
			Cloned:      p.Cloned,
			CheckedOut:  p.CheckedOut,
		}
		if p.Err != nil {
			pv.Error = p.Err.Error()
		}
		if p.CheckoutErr != nil {
			pv.CheckoutError = p.CheckoutErr.Error()
		}
		v.Projects = append(v.Projects, pv)
	}
	return v
}
