package model

import "time"

// ProfileKind distinguishes patient profiles from site profiles.
type ProfileKind string

// Profile kinds.
const (
	ProfileKindPatient ProfileKind = "patient"
	ProfileKindSite    ProfileKind = "site"
)

// ProfileStatus is the lifecycle status of a profile option. Archived is
// terminal but the record is retained.
type ProfileStatus string

// Profile status values.
const (
	ProfileStatusActive   ProfileStatus = "active"
	ProfileStatusArchived ProfileStatus = "archived"
)

// ProfileSource records how a profile option was created.
type ProfileSource string

// Profile sources.
const (
	ProfileSourceManual      ProfileSource = "manual"
	ProfileSourceDerived     ProfileSource = "derived"
	ProfileSourceRecommended ProfileSource = "recommended"
)

// ProfileOption is a patient or site profile under consideration.
//
// ParentID points at the profile this one was duplicated or derived from.
// It is a lookup-only relation: it never implies ownership and archiving a
// parent does not touch its children.
type ProfileOption struct {
	ID                string            `json:"id" yaml:"id"`
	Kind              ProfileKind       `json:"kind" yaml:"kind"`
	Name              string            `json:"name" yaml:"name"`
	Description       string            `json:"description,omitempty" yaml:"description"`
	Criteria          map[string]string `json:"criteria,omitempty" yaml:"criteria"`
	Status            ProfileStatus     `json:"status" yaml:"status"`
	IsActiveSelection bool              `json:"is_active_selection" yaml:"is_active_selection"`
	Source            ProfileSource     `json:"source" yaml:"source"`
	ParentID          *string           `json:"parent_id,omitempty" yaml:"parent_id"`
	LastModified      time.Time         `json:"last_modified" yaml:"-"`
}

// Archived reports whether the profile has been archived.
func (p ProfileOption) Archived() bool {
	return p.Status == ProfileStatusArchived
}

// Clone returns a deep copy of the profile.
func (p ProfileOption) Clone() ProfileOption {
	out := p
	if p.Criteria != nil {
		out.Criteria = make(map[string]string, len(p.Criteria))
		for k, v := range p.Criteria {
			out.Criteria[k] = v
		}
	}
	if p.ParentID != nil {
		parent := *p.ParentID
		out.ParentID = &parent
	}
	return out
}

// ProfileInput carries user-editable profile fields.
type ProfileInput struct {
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description" yaml:"description"`
	Criteria    map[string]string `json:"criteria" yaml:"criteria"`
}
