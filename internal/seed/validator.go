package seed

import (
	"fmt"
	"slices"

	"github.com/pitabwire/trialscope/model"
)

// VError describes a single validation error in a seed file.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validator checks seed files structurally and referentially, and enforces
// the active patient profile bound.
type Validator struct {
	maxActive int
}

// NewValidator creates a Validator that allows at most maxActive active
// patient profiles per scenario.
func NewValidator(maxActive int) *Validator {
	return &Validator{maxActive: maxActive}
}

// Validate checks all files. Scenario IDs must be unique across files.
func (v *Validator) Validate(files []File) []VError {
	var errs []VError
	seen := make(map[string]string) // scenario ID -> path
	for i, f := range files {
		prefix := fmt.Sprintf("files[%d]", i)
		if f.SourceFile != "" {
			prefix = f.SourceFile
		}
		for j, sf := range f.Scenarios {
			sp := fmt.Sprintf("%s.scenarios[%d]", prefix, j)
			if first, dup := seen[sf.ID]; dup && sf.ID != "" {
				errs = append(errs, VError{Path: sp + ".id", Code: "DUPLICATE", Message: fmt.Sprintf("scenario %q already defined at %s", sf.ID, first)})
			}
			seen[sf.ID] = sp
			errs = append(errs, v.validateScenario(sp, sf)...)
		}
	}
	return errs
}

func (v *Validator) validateScenario(prefix string, sf ScenarioFixture) []VError {
	var errs []VError

	if sf.ID == "" {
		errs = append(errs, VError{Path: prefix + ".id", Code: "REQUIRED", Message: "id is required"})
	}
	if sf.Name == "" {
		errs = append(errs, VError{Path: prefix + ".name", Code: "REQUIRED", Message: "name is required"})
	}
	for step, status := range sf.Steps {
		if !slices.Contains(model.WorkflowSteps, step) {
			errs = append(errs, VError{Path: fmt.Sprintf("%s.steps.%s", prefix, step), Code: "INVALID", Message: fmt.Sprintf("unknown step %q", step)})
		}
		if !status.Valid() {
			errs = append(errs, VError{Path: fmt.Sprintf("%s.steps.%s", prefix, step), Code: "INVALID", Message: fmt.Sprintf("unknown step status %q", status)})
		}
	}

	profiles := make(map[string]model.ProfileOption, len(sf.Profiles))
	for _, p := range sf.Profiles {
		profiles[p.ID] = p
	}
	errs = append(errs, v.validateProfiles(prefix, sf.Profiles, profiles)...)

	codes := make(map[string]bool)
	for i, c := range sf.Countries {
		cp := fmt.Sprintf("%s.countries[%d]", prefix, i)
		if c.Code == "" {
			errs = append(errs, VError{Path: cp + ".code", Code: "REQUIRED", Message: "code is required"})
		} else if codes[c.Code] {
			errs = append(errs, VError{Path: cp + ".code", Code: "DUPLICATE", Message: fmt.Sprintf("country %q listed twice", c.Code)})
		}
		codes[c.Code] = true
	}

	sites := make(map[string]bool)
	for i, c := range sf.Candidates {
		cp := fmt.Sprintf("%s.candidates[%d]", prefix, i)
		if c.SiteID == "" {
			errs = append(errs, VError{Path: cp + ".site_id", Code: "REQUIRED", Message: "site_id is required"})
		} else if sites[c.SiteID] {
			errs = append(errs, VError{Path: cp + ".site_id", Code: "DUPLICATE", Message: fmt.Sprintf("candidate %q listed twice", c.SiteID)})
		}
		sites[c.SiteID] = true
	}

	errs = append(errs, validateShortlist(prefix, sf.Shortlist)...)
	errs = append(errs, validateReviews(prefix, sf.Reviews, profiles)...)
	return errs
}

func (v *Validator) validateProfiles(prefix string, list []model.ProfileOption, byID map[string]model.ProfileOption) []VError {
	var errs []VError
	ids := make(map[string]bool)
	active := 0
	for i, p := range list {
		pp := fmt.Sprintf("%s.profiles[%d]", prefix, i)
		if p.ID == "" {
			errs = append(errs, VError{Path: pp + ".id", Code: "REQUIRED", Message: "id is required"})
		} else if ids[p.ID] {
			errs = append(errs, VError{Path: pp + ".id", Code: "DUPLICATE", Message: fmt.Sprintf("profile %q defined twice", p.ID)})
		}
		ids[p.ID] = true

		if p.Name == "" {
			errs = append(errs, VError{Path: pp + ".name", Code: "REQUIRED", Message: "name is required"})
		}
		if p.Kind != model.ProfileKindPatient && p.Kind != model.ProfileKindSite {
			errs = append(errs, VError{Path: pp + ".kind", Code: "INVALID", Message: fmt.Sprintf("unknown profile kind %q", p.Kind)})
		}
		switch p.Status {
		case "", model.ProfileStatusActive, model.ProfileStatusArchived:
		default:
			errs = append(errs, VError{Path: pp + ".status", Code: "INVALID", Message: fmt.Sprintf("unknown profile status %q", p.Status)})
		}
		switch p.Source {
		case "", model.ProfileSourceManual, model.ProfileSourceDerived, model.ProfileSourceRecommended:
		default:
			errs = append(errs, VError{Path: pp + ".source", Code: "INVALID", Message: fmt.Sprintf("unknown profile source %q", p.Source)})
		}
		if p.ParentID != nil {
			if _, ok := byID[*p.ParentID]; !ok {
				errs = append(errs, VError{Path: pp + ".parent_id", Code: "NOT_FOUND", Message: fmt.Sprintf("parent profile %q not found", *p.ParentID)})
			}
		}

		if !p.IsActiveSelection {
			continue
		}
		if p.Kind != model.ProfileKindPatient {
			errs = append(errs, VError{Path: pp + ".is_active_selection", Code: "INVALID", Message: "only patient profiles can be active"})
			continue
		}
		if p.Status == model.ProfileStatusArchived {
			errs = append(errs, VError{Path: pp + ".is_active_selection", Code: "INVALID", Message: "an archived profile cannot be active"})
			continue
		}
		active++
	}
	if active > v.maxActive {
		errs = append(errs, VError{Path: prefix + ".profiles", Code: model.ErrCountViolation, Message: fmt.Sprintf("%d active patient profiles exceed the limit of %d", active, v.maxActive)})
	}
	return errs
}

func validateShortlist(prefix string, list []ShortlistFixture) []VError {
	var errs []VError
	sites := make(map[string]bool)
	for i, e := range list {
		ep := fmt.Sprintf("%s.shortlist[%d]", prefix, i)
		if e.SiteID == "" {
			errs = append(errs, VError{Path: ep + ".site_id", Code: "REQUIRED", Message: "site_id is required"})
		} else if sites[e.SiteID] {
			errs = append(errs, VError{Path: ep + ".site_id", Code: "DUPLICATE", Message: fmt.Sprintf("site %q shortlisted twice", e.SiteID)})
		}
		sites[e.SiteID] = true

		switch e.Source {
		case "", model.ShortlistSourceRecommendation, model.ShortlistSourceManual:
		default:
			errs = append(errs, VError{Path: ep + ".source", Code: "INVALID", Message: fmt.Sprintf("unknown shortlist source %q", e.Source)})
		}
		switch e.Decision {
		case "", model.DecisionPending:
		case model.DecisionIncluded, model.DecisionExcluded:
			if e.DecisionBy == "" {
				errs = append(errs, VError{Path: ep + ".decision_by", Code: "REQUIRED", Message: "a decided entry needs decision_by"})
			}
		default:
			errs = append(errs, VError{Path: ep + ".decision", Code: "INVALID", Message: fmt.Sprintf("unknown decision %q", e.Decision)})
		}
	}
	return errs
}

func validateReviews(prefix string, list []ReviewFixture, profiles map[string]model.ProfileOption) []VError {
	var errs []VError
	items := make(map[string]bool)
	for i, r := range list {
		rp := fmt.Sprintf("%s.reviews[%d]", prefix, i)
		if _, ok := profiles[r.ProfileID]; !ok {
			errs = append(errs, VError{Path: rp + ".profile_id", Code: model.ErrDataIntegrity, Message: fmt.Sprintf("review item references missing profile %q", r.ProfileID)})
		}
		if items[r.ProfileID] {
			errs = append(errs, VError{Path: rp + ".profile_id", Code: "DUPLICATE", Message: fmt.Sprintf("profile %q reviewed twice", r.ProfileID)})
		}
		items[r.ProfileID] = true

		switch r.Status {
		case "", model.ReviewStatusDraft, model.ReviewStatusUnderReview, model.ReviewStatusReviewed:
		default:
			errs = append(errs, VError{Path: rp + ".status", Code: "INVALID", Message: fmt.Sprintf("unknown review status %q", r.Status)})
		}

		ids := make(map[string]bool)
		unresolved := false
		for j, c := range r.Comments {
			cp := fmt.Sprintf("%s.comments[%d]", rp, j)
			if c.ID == "" {
				errs = append(errs, VError{Path: cp + ".id", Code: "REQUIRED", Message: "id is required"})
			} else if ids[c.ID] {
				errs = append(errs, VError{Path: cp + ".id", Code: "DUPLICATE", Message: fmt.Sprintf("comment %q defined twice", c.ID)})
			}
			ids[c.ID] = true
			if c.Text == "" {
				errs = append(errs, VError{Path: cp + ".text", Code: "REQUIRED", Message: "text is required"})
			}
			if c.Tag != "" && !c.Tag.Valid() {
				errs = append(errs, VError{Path: cp + ".tag", Code: "INVALID", Message: fmt.Sprintf("unknown comment tag %q", c.Tag)})
			}
			if c.Blocking && !c.Acknowledged {
				unresolved = true
			}
		}
		if r.Status == model.ReviewStatusReviewed && unresolved {
			errs = append(errs, VError{Path: rp + ".status", Code: model.ErrBlockingConcernsUnresolved, Message: "a reviewed item cannot have unacknowledged blocking comments"})
		}
	}
	return errs
}
