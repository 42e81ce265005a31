package model

import "time"

// StepName identifies one of the fixed workflow steps of a scenario.
type StepName string

// Workflow steps, in navigation order.
const (
	StepPatientProfile     StepName = "patientProfile"
	StepSiteProfile        StepName = "siteProfile"
	StepCountrySelection   StepName = "countrySelection"
	StepSiteRecommendation StepName = "siteRecommendation"
	StepReviewApproval     StepName = "reviewApproval"

	// Read-only outputs.
	StepOptionSnapshot StepName = "optionSnapshot"
	StepExportAudit    StepName = "exportAudit"
)

// WorkflowSteps lists the five navigable steps in order.
var WorkflowSteps = []StepName{
	StepPatientProfile,
	StepSiteProfile,
	StepCountrySelection,
	StepSiteRecommendation,
	StepReviewApproval,
}

// StepStatus is the completion status of a workflow step.
type StepStatus string

// Step status values.
const (
	StepIncomplete StepStatus = "incomplete"
	StepInProgress StepStatus = "in_progress"
	StepComplete   StepStatus = "complete"
)

// Valid reports whether s is a known step status.
func (s StepStatus) Valid() bool {
	switch s {
	case StepIncomplete, StepInProgress, StepComplete:
		return true
	}
	return false
}

// Scenario status values.
const (
	ScenarioStatusDraft    = "draft"
	ScenarioStatusActive   = "active"
	ScenarioStatusApproved = "approved"
)

// Artifact names, as accepted by the store and session scripts.
const (
	ArtifactCountriesApproved        = "countriesApproved"
	ArtifactSiteRecommendationsReady = "siteRecommendationsReady"
	ArtifactReviewStarted            = "reviewStarted"
)

// Artifacts are the cross-step outputs that unlock downstream steps.
type Artifacts struct {
	CountriesApproved        bool `json:"countries_approved" yaml:"countries_approved"`
	SiteRecommendationsReady bool `json:"site_recommendations_ready" yaml:"site_recommendations_ready"`
	ReviewStarted            bool `json:"review_started" yaml:"review_started"`
}

// Scenario is one feasibility exploration. Version increments on every
// stored mutation.
type Scenario struct {
	ID        string                  `json:"id"`
	Name      string                  `json:"name"`
	Status    string                  `json:"status"`
	Steps     map[StepName]StepStatus `json:"steps"`
	Artifacts Artifacts               `json:"artifacts"`
	Version   int                     `json:"version"`
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
}

// StepStatusOf returns the status of step, treating a missing entry as
// incomplete.
func (s Scenario) StepStatusOf(step StepName) StepStatus {
	if st, ok := s.Steps[step]; ok {
		return st
	}
	return StepIncomplete
}

// Clone returns a deep copy of the scenario.
func (s Scenario) Clone() Scenario {
	out := s
	out.Steps = make(map[StepName]StepStatus, len(s.Steps))
	for k, v := range s.Steps {
		out.Steps[k] = v
	}
	return out
}

// StepDescriptor is the derived navigation state of a step. It is
// recomputed on every read and never stored.
type StepDescriptor struct {
	Step           StepName   `json:"step"`
	Label          string     `json:"label"`
	Route          string     `json:"route"`
	Status         StepStatus `json:"status"`
	Enabled        bool       `json:"enabled"`
	DisabledReason string     `json:"disabled_reason"`
	ReadOnly       bool       `json:"read_only,omitempty"`
}

// CountrySelection is a candidate country for site placement.
type CountrySelection struct {
	Code      string `json:"code" yaml:"code"`
	Name      string `json:"name" yaml:"name"`
	Selected  bool   `json:"selected" yaml:"selected"`
	Rationale string `json:"rationale,omitempty" yaml:"rationale"`
}

// SiteCandidate is an exploratory site recommendation. It only becomes
// authoritative once added to the shortlist.
type SiteCandidate struct {
	SiteID    string `json:"site_id" yaml:"site_id"`
	Name      string `json:"name" yaml:"name"`
	Country   string `json:"country" yaml:"country"`
	City      string `json:"city" yaml:"city"`
	Rationale string `json:"rationale,omitempty" yaml:"rationale"`
}
