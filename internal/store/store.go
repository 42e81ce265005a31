// Package store holds scenario records and the entity collections that
// belong to them.
package store

import (
	"context"

	"github.com/pitabwire/trialscope/model"
)

// Store persists scenario records.
type Store interface {
	// Create persists a new scenario record. Returns CONFLICT if the
	// scenario ID is taken.
	Create(ctx context.Context, rec Record) error

	// Get returns a deep copy of the record for scenarioID. Returns
	// NOT_FOUND if the scenario doesn't exist.
	Get(ctx context.Context, scenarioID string) (Record, error)

	// Update replaces a record with optimistic locking. The scenario version
	// must match the stored version. Returns CONFLICT if it has changed.
	Update(ctx context.Context, rec Record) error

	// List returns all scenarios ordered by creation time.
	List(ctx context.Context) ([]model.Scenario, error)

	// Exists reports whether a scenario is stored.
	Exists(scenarioID string) bool
}

// Record is a scenario together with every entity scoped to it.
type Record struct {
	Scenario   model.Scenario
	Profiles   []model.ProfileOption
	Countries  []model.CountrySelection
	Candidates []model.SiteCandidate
	Shortlist  []model.ShortlistEntry
	Reviews    map[string]model.ReviewItem // key: profile ID
}

// NewRecord returns an empty record for scn with every workflow step
// incomplete.
func NewRecord(scn model.Scenario) Record {
	if scn.Status == "" {
		scn.Status = model.ScenarioStatusDraft
	}
	if scn.Steps == nil {
		scn.Steps = make(map[model.StepName]model.StepStatus, len(model.WorkflowSteps))
	}
	for _, step := range model.WorkflowSteps {
		if _, ok := scn.Steps[step]; !ok {
			scn.Steps[step] = model.StepIncomplete
		}
	}
	return Record{
		Scenario: scn,
		Reviews:  make(map[string]model.ReviewItem),
	}
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := Record{
		Scenario:   r.Scenario.Clone(),
		Profiles:   make([]model.ProfileOption, len(r.Profiles)),
		Countries:  append([]model.CountrySelection(nil), r.Countries...),
		Candidates: append([]model.SiteCandidate(nil), r.Candidates...),
		Shortlist:  make([]model.ShortlistEntry, len(r.Shortlist)),
		Reviews:    make(map[string]model.ReviewItem, len(r.Reviews)),
	}
	for i, p := range r.Profiles {
		out.Profiles[i] = p.Clone()
	}
	for i, e := range r.Shortlist {
		if e.DecisionAt != nil {
			at := *e.DecisionAt
			e.DecisionAt = &at
		}
		out.Shortlist[i] = e
	}
	for id, item := range r.Reviews {
		out.Reviews[id] = item.Clone()
	}
	return out
}
