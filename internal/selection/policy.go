// Package selection enforces the cardinality bounds on active patient
// profiles.
//
// The policy never mutates its input. It validates a requested change
// against the whole collection and returns the next version of the
// collection, so callers either apply all of a change or none of it.
package selection

import (
	"fmt"
	"time"

	"github.com/pitabwire/trialscope/model"
)

// Default bounds for active patient profiles.
const (
	DefaultMinActive = 1
	DefaultMaxActive = 3
)

// Policy holds the inclusive bounds on the active count.
type Policy struct {
	Min int
	Max int
	now func() time.Time
}

// NewPolicy creates a policy with the given bounds.
func NewPolicy(minActive, maxActive int) *Policy {
	return &Policy{Min: minActive, Max: maxActive, now: func() time.Time { return time.Now().UTC() }}
}

// Banner is the soft blocking state shown when the active count is outside
// the bounds. It blocks advancement past the patient profile step but is not
// an error.
type Banner struct {
	Blocking    bool   `json:"blocking"`
	ActiveCount int    `json:"active_count"`
	Message     string `json:"message,omitempty"`
}

// ActiveCount returns the number of patient profiles flagged active.
func ActiveCount(profiles []model.ProfileOption) int {
	n := 0
	for _, p := range profiles {
		if p.Kind == model.ProfileKindPatient && p.IsActiveSelection {
			n++
		}
	}
	return n
}

// TrySetActive flags every candidate as an active selection. The count is
// computed as the active profiles outside the candidate set plus the number
// of candidates; above Max the call fails with COUNT_VIOLATION and nothing
// changes. Unrelated profiles are never deactivated. An empty candidate set
// changes nothing.
func (p *Policy) TrySetActive(profiles []model.ProfileOption, candidateIDs []string) ([]model.ProfileOption, error) {
	if len(candidateIDs) == 0 {
		return cloneAll(profiles), nil
	}

	candidates := make(map[string]struct{}, len(candidateIDs))
	for _, id := range candidateIDs {
		candidates[id] = struct{}{}
	}

	index := make(map[string]int, len(profiles))
	for i, prof := range profiles {
		index[prof.ID] = i
	}

	for id := range candidates {
		i, ok := index[id]
		if !ok {
			return nil, model.NewNotFoundError(fmt.Sprintf("profile %q not found", id))
		}
		prof := profiles[i]
		if prof.Kind != model.ProfileKindPatient {
			return nil, model.NewInvalidTransitionError(fmt.Sprintf("profile %q is not a patient profile", id))
		}
		if prof.Archived() {
			return nil, model.NewInvalidTransitionError(fmt.Sprintf("profile %q is archived and cannot be activated", id))
		}
	}

	others := 0
	for _, prof := range profiles {
		if _, isCandidate := candidates[prof.ID]; isCandidate {
			continue
		}
		if prof.Kind == model.ProfileKindPatient && prof.IsActiveSelection {
			others++
		}
	}
	attempted := others + len(candidates)
	if attempted > p.Max {
		return nil, model.NewCountViolationError(attempted, p.Max)
	}

	now := p.now()
	next := cloneAll(profiles)
	for id := range candidates {
		prof := &next[index[id]]
		if !prof.IsActiveSelection {
			prof.IsActiveSelection = true
			prof.LastModified = now
		}
	}
	return next, nil
}

// Deactivate clears the active flag of one profile. The resulting count may
// drop below Min; Banner reports that state.
func (p *Policy) Deactivate(profiles []model.ProfileOption, id string) ([]model.ProfileOption, error) {
	i := indexOf(profiles, id)
	if i < 0 {
		return nil, model.NewNotFoundError(fmt.Sprintf("profile %q not found", id))
	}
	next := cloneAll(profiles)
	if next[i].IsActiveSelection {
		next[i].IsActiveSelection = false
		next[i].LastModified = p.now()
	}
	return next, nil
}

// Archive moves a profile to the terminal archived status and deactivates
// it. Archiving an archived profile is an invalid transition. Profiles
// derived from it are left untouched.
func (p *Policy) Archive(profiles []model.ProfileOption, id string) ([]model.ProfileOption, error) {
	i := indexOf(profiles, id)
	if i < 0 {
		return nil, model.NewNotFoundError(fmt.Sprintf("profile %q not found", id))
	}
	if profiles[i].Archived() {
		return nil, model.NewInvalidTransitionError(fmt.Sprintf("profile %q is already archived", id))
	}
	next := cloneAll(profiles)
	next[i].Status = model.ProfileStatusArchived
	next[i].IsActiveSelection = false
	next[i].LastModified = p.now()
	return next, nil
}

// Banner reports whether the active count is outside [Min, Max].
func (p *Policy) Banner(profiles []model.ProfileOption) Banner {
	n := ActiveCount(profiles)
	b := Banner{ActiveCount: n}
	switch {
	case n < p.Min:
		b.Blocking = true
		b.Message = fmt.Sprintf("Select at least %d active patient profile(s) to continue.", p.Min)
	case n > p.Max:
		b.Blocking = true
		b.Message = fmt.Sprintf("At most %d patient profiles may be active.", p.Max)
	}
	return b
}

func indexOf(profiles []model.ProfileOption, id string) int {
	for i, prof := range profiles {
		if prof.ID == id {
			return i
		}
	}
	return -1
}

func cloneAll(profiles []model.ProfileOption) []model.ProfileOption {
	out := make([]model.ProfileOption, len(profiles))
	for i, prof := range profiles {
		out[i] = prof.Clone()
	}
	return out
}
