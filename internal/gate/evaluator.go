// Package gate computes which workflow steps of a scenario are navigable.
//
// Evaluation is a pure function of a Snapshot: the same snapshot always
// yields the same descriptors, and every rule is evaluated on its own so a
// disabled upstream step never hides the reason a downstream step is
// disabled.
package gate

import (
	"github.com/pitabwire/trialscope/model"
)

// Snapshot is the part of a scenario the gates depend on.
type Snapshot struct {
	Steps     map[model.StepName]model.StepStatus
	Artifacts model.Artifacts
}

// SnapshotOf extracts a gate snapshot from a scenario.
func SnapshotOf(s model.Scenario) Snapshot {
	return Snapshot{Steps: s.Steps, Artifacts: s.Artifacts}
}

func (s Snapshot) status(step model.StepName) model.StepStatus {
	if st, ok := s.Steps[step]; ok {
		return st
	}
	return model.StepIncomplete
}

func (s Snapshot) started(step model.StepName) bool {
	return s.status(step) != model.StepIncomplete
}

// rule describes one step: its static presentation and the predicate that
// enables it.
type rule struct {
	step           model.StepName
	label          string
	route          string
	disabledReason string
	readOnly       bool
	enabled        func(Snapshot) bool
}

var workflowRules = []rule{
	{
		step:  model.StepPatientProfile,
		label: "Patient Profile",
		route: "patient-profile",
		enabled: func(Snapshot) bool {
			return true
		},
	},
	{
		step:           model.StepSiteProfile,
		label:          "Site Profile",
		route:          "site-profile",
		disabledReason: "Start the patient profile before defining site profiles.",
		enabled: func(s Snapshot) bool {
			return s.started(model.StepPatientProfile)
		},
	},
	{
		step:           model.StepCountrySelection,
		label:          "Country Selection",
		route:          "country-selection",
		disabledReason: "Start both the patient profile and the site profile before selecting countries.",
		enabled: func(s Snapshot) bool {
			return s.started(model.StepPatientProfile) && s.started(model.StepSiteProfile)
		},
	},
	{
		step:           model.StepSiteRecommendation,
		label:          "Site Recommendation",
		route:          "site-recommendation",
		disabledReason: "Approve the country selection to unlock site recommendations.",
		enabled: func(s Snapshot) bool {
			return s.Artifacts.CountriesApproved
		},
	},
	{
		step:           model.StepReviewApproval,
		label:          "Review & Approval",
		route:          "review-approval",
		disabledReason: "Site recommendations must be ready before review can begin.",
		enabled: func(s Snapshot) bool {
			return s.Artifacts.SiteRecommendationsReady
		},
	},
}

var outputRules = []rule{
	{
		step:           model.StepOptionSnapshot,
		label:          "Option Snapshot",
		route:          "option-snapshot",
		disabledReason: "Available once a review has started.",
		readOnly:       true,
		enabled: func(s Snapshot) bool {
			return s.Artifacts.ReviewStarted
		},
	},
	{
		step:           model.StepExportAudit,
		label:          "Export & Audit",
		route:          "export-audit",
		disabledReason: "Available once a review has started.",
		readOnly:       true,
		enabled: func(s Snapshot) bool {
			return s.Artifacts.ReviewStarted
		},
	},
}

// Evaluate returns the descriptors of the five workflow steps, in order.
func Evaluate(s Snapshot) []model.StepDescriptor {
	return describe(workflowRules, s)
}

// EvaluateOutputs returns the descriptors of the read-only outputs.
func EvaluateOutputs(s Snapshot) []model.StepDescriptor {
	return describe(outputRules, s)
}

func describe(rules []rule, s Snapshot) []model.StepDescriptor {
	out := make([]model.StepDescriptor, 0, len(rules))
	for _, r := range rules {
		d := model.StepDescriptor{
			Step:     r.step,
			Label:    r.label,
			Route:    r.route,
			Status:   s.status(r.step),
			Enabled:  r.enabled(s),
			ReadOnly: r.readOnly,
		}
		if !d.Enabled {
			d.DisabledReason = r.disabledReason
		}
		out = append(out, d)
	}
	return out
}

// Lookup returns the descriptor for route across workflow steps and outputs.
func Lookup(s Snapshot, route string) (model.StepDescriptor, bool) {
	for _, d := range Evaluate(s) {
		if d.Route == route {
			return d, true
		}
	}
	for _, d := range EvaluateOutputs(s) {
		if d.Route == route {
			return d, true
		}
	}
	return model.StepDescriptor{}, false
}

// CheckNavigable returns nil if route may be opened, a STEP_DISABLED error
// carrying the disabled reason if it may not, and NOT_FOUND for unknown
// routes.
func CheckNavigable(s Snapshot, route string) error {
	d, ok := Lookup(s, route)
	if !ok {
		return model.NewNotFoundError("unknown route " + route)
	}
	if !d.Enabled {
		return model.NewStepDisabledError(string(d.Step), d.DisabledReason)
	}
	return nil
}

// RouteOf returns the route of a workflow step or output.
func RouteOf(step model.StepName) string {
	for _, r := range workflowRules {
		if r.step == step {
			return r.route
		}
	}
	for _, r := range outputRules {
		if r.step == step {
			return r.route
		}
	}
	return ""
}
