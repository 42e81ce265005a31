package store

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/pitabwire/trialscope/model"
)

// The mutators below change the receiver in place. Callers work on a copy
// obtained from Get and write it back with Update. Every mutator validates
// before it changes anything.

// SetStepStatus sets the completion status of a workflow step.
func (r *Record) SetStepStatus(step model.StepName, status model.StepStatus) error {
	if !slices.Contains(model.WorkflowSteps, step) {
		return model.NewValidationError([]model.FieldError{
			{Field: "step", Code: "UNKNOWN", Message: fmt.Sprintf("unknown workflow step %q", step)},
		})
	}
	if !status.Valid() {
		return model.NewValidationError([]model.FieldError{
			{Field: "status", Code: "INVALID", Message: fmt.Sprintf("unknown step status %q", status)},
		})
	}
	if r.Scenario.Steps == nil {
		r.Scenario.Steps = make(map[model.StepName]model.StepStatus, len(model.WorkflowSteps))
	}
	r.Scenario.Steps[step] = status
	return nil
}

// SetArtifact sets a named cross-step artifact flag.
func (r *Record) SetArtifact(name string, value bool) error {
	switch name {
	case model.ArtifactCountriesApproved:
		r.Scenario.Artifacts.CountriesApproved = value
	case model.ArtifactSiteRecommendationsReady:
		r.Scenario.Artifacts.SiteRecommendationsReady = value
	case model.ArtifactReviewStarted:
		r.Scenario.Artifacts.ReviewStarted = value
	default:
		return model.NewValidationError([]model.FieldError{
			{Field: "artifact", Code: "UNKNOWN", Message: fmt.Sprintf("unknown artifact %q", name)},
		})
	}
	return nil
}

// --- Profiles ---

// ProfileIndex returns the slice index of a profile.
func (r *Record) ProfileIndex(id string) (int, bool) {
	i := slices.IndexFunc(r.Profiles, func(p model.ProfileOption) bool { return p.ID == id })
	return i, i >= 0
}

// Profile returns a copy of a profile, or NOT_FOUND.
func (r *Record) Profile(id string) (model.ProfileOption, error) {
	i, ok := r.ProfileIndex(id)
	if !ok {
		return model.ProfileOption{}, model.NewNotFoundError(fmt.Sprintf("profile %q not found", id))
	}
	return r.Profiles[i].Clone(), nil
}

func validateProfileInput(in model.ProfileInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return model.NewValidationError([]model.FieldError{
			{Field: "name", Code: "REQUIRED", Message: "Profile name is required"},
		})
	}
	return nil
}

// AddProfile appends a new active, unselected profile.
func (r *Record) AddProfile(id string, kind model.ProfileKind, in model.ProfileInput, source model.ProfileSource, now time.Time) (model.ProfileOption, error) {
	if kind != model.ProfileKindPatient && kind != model.ProfileKindSite {
		return model.ProfileOption{}, model.NewValidationError([]model.FieldError{
			{Field: "kind", Code: "INVALID", Message: fmt.Sprintf("unknown profile kind %q", kind)},
		})
	}
	if err := validateProfileInput(in); err != nil {
		return model.ProfileOption{}, err
	}
	if _, exists := r.ProfileIndex(id); exists {
		return model.ProfileOption{}, model.NewConflictError(fmt.Sprintf("profile %q already exists", id))
	}

	p := model.ProfileOption{
		ID:           id,
		Kind:         kind,
		Name:         strings.TrimSpace(in.Name),
		Description:  in.Description,
		Criteria:     in.Criteria,
		Status:       model.ProfileStatusActive,
		Source:       source,
		LastModified: now,
	}
	p = p.Clone()
	r.Profiles = append(r.Profiles, p)
	return p.Clone(), nil
}

// DuplicateProfile copies an existing profile under a new ID. The copy is
// unselected and points back at its source.
func (r *Record) DuplicateProfile(sourceID, newID string, now time.Time) (model.ProfileOption, error) {
	src, err := r.Profile(sourceID)
	if err != nil {
		return model.ProfileOption{}, err
	}
	in := model.ProfileInput{Name: src.Name + " (copy)", Description: src.Description, Criteria: src.Criteria}
	return r.addChild(src, newID, in, src.Source, now)
}

// DeriveProfile creates a variant of an existing profile with edited
// fields. Unset criteria are inherited from the parent.
func (r *Record) DeriveProfile(parentID, newID string, in model.ProfileInput, now time.Time) (model.ProfileOption, error) {
	parent, err := r.Profile(parentID)
	if err != nil {
		return model.ProfileOption{}, err
	}
	merged := make(map[string]string, len(parent.Criteria)+len(in.Criteria))
	for k, v := range parent.Criteria {
		merged[k] = v
	}
	for k, v := range in.Criteria {
		merged[k] = v
	}
	in.Criteria = merged
	if in.Description == "" {
		in.Description = parent.Description
	}
	return r.addChild(parent, newID, in, model.ProfileSourceDerived, now)
}

func (r *Record) addChild(parent model.ProfileOption, newID string, in model.ProfileInput, source model.ProfileSource, now time.Time) (model.ProfileOption, error) {
	if parent.Archived() {
		return model.ProfileOption{}, model.NewInvalidTransitionError(
			fmt.Sprintf("profile %q is archived", parent.ID),
		)
	}
	p, err := r.AddProfile(newID, parent.Kind, in, source, now)
	if err != nil {
		return model.ProfileOption{}, err
	}
	parentID := parent.ID
	i, _ := r.ProfileIndex(p.ID)
	r.Profiles[i].ParentID = &parentID
	return r.Profiles[i].Clone(), nil
}

// EditProfile replaces the editable fields of a profile. Archived profiles
// cannot be edited.
func (r *Record) EditProfile(id string, in model.ProfileInput, now time.Time) (model.ProfileOption, error) {
	i, ok := r.ProfileIndex(id)
	if !ok {
		return model.ProfileOption{}, model.NewNotFoundError(fmt.Sprintf("profile %q not found", id))
	}
	if r.Profiles[i].Archived() {
		return model.ProfileOption{}, model.NewInvalidTransitionError(
			fmt.Sprintf("profile %q is archived", id),
		)
	}
	if err := validateProfileInput(in); err != nil {
		return model.ProfileOption{}, err
	}

	p := r.Profiles[i]
	p.Name = strings.TrimSpace(in.Name)
	p.Description = in.Description
	p.Criteria = in.Criteria
	p.LastModified = now
	r.Profiles[i] = p.Clone()
	return r.Profiles[i].Clone(), nil
}

// --- Countries ---

// SetCountries replaces the candidate country list.
func (r *Record) SetCountries(countries []model.CountrySelection) error {
	seen := make(map[string]bool, len(countries))
	for _, c := range countries {
		if c.Code == "" {
			return model.NewValidationError([]model.FieldError{
				{Field: "code", Code: "REQUIRED", Message: "Country code is required"},
			})
		}
		if seen[c.Code] {
			return model.NewConflictError(fmt.Sprintf("country %q listed twice", c.Code))
		}
		seen[c.Code] = true
	}
	r.Countries = append([]model.CountrySelection(nil), countries...)
	return nil
}

// SelectCountry marks a country selected or deselected.
func (r *Record) SelectCountry(code string, selected bool) error {
	i := slices.IndexFunc(r.Countries, func(c model.CountrySelection) bool { return c.Code == code })
	if i < 0 {
		return model.NewNotFoundError(fmt.Sprintf("country %q not found", code))
	}
	r.Countries[i].Selected = selected
	return nil
}

// SelectedCountries returns the selected country codes in list order.
func (r *Record) SelectedCountries() []string {
	var out []string
	for _, c := range r.Countries {
		if c.Selected {
			out = append(out, c.Code)
		}
	}
	return out
}

// ApproveCountries completes the Country Selection step and sets the
// countriesApproved artifact. At least one country must be selected.
func (r *Record) ApproveCountries() error {
	if len(r.SelectedCountries()) == 0 {
		return model.NewValidationError([]model.FieldError{
			{Field: "countries", Code: "REQUIRED", Message: "Select at least one country before approving"},
		})
	}
	r.Scenario.Steps[model.StepCountrySelection] = model.StepComplete
	r.Scenario.Artifacts.CountriesApproved = true
	return nil
}

// --- Site candidates ---

// LoadCandidates replaces the exploratory site candidates.
func (r *Record) LoadCandidates(candidates []model.SiteCandidate) error {
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if c.SiteID == "" || c.Name == "" {
			return model.NewValidationError([]model.FieldError{
				{Field: "site_id", Code: "REQUIRED", Message: "Candidates need a site ID and name"},
			})
		}
		if seen[c.SiteID] {
			return model.NewConflictError(fmt.Sprintf("candidate %q listed twice", c.SiteID))
		}
		seen[c.SiteID] = true
	}
	r.Candidates = append([]model.SiteCandidate(nil), candidates...)
	return nil
}

// Candidate returns a site candidate, or NOT_FOUND.
func (r *Record) Candidate(siteID string) (model.SiteCandidate, error) {
	i := slices.IndexFunc(r.Candidates, func(c model.SiteCandidate) bool { return c.SiteID == siteID })
	if i < 0 {
		return model.SiteCandidate{}, model.NewNotFoundError(fmt.Sprintf("site candidate %q not found", siteID))
	}
	return r.Candidates[i], nil
}

// PublishRecommendations completes the Site Recommendation step and sets the
// siteRecommendationsReady artifact. At least one candidate must be loaded.
func (r *Record) PublishRecommendations() error {
	if len(r.Candidates) == 0 {
		return model.NewValidationError([]model.FieldError{
			{Field: "candidates", Code: "REQUIRED", Message: "No site candidates to publish"},
		})
	}
	r.Scenario.Steps[model.StepSiteRecommendation] = model.StepComplete
	r.Scenario.Artifacts.SiteRecommendationsReady = true
	return nil
}

// --- Shortlist ---

// ShortlistIndex returns the slice index of a shortlist entry.
func (r *Record) ShortlistIndex(siteID string) (int, bool) {
	i := slices.IndexFunc(r.Shortlist, func(e model.ShortlistEntry) bool { return e.SiteID == siteID })
	return i, i >= 0
}

// Entry returns a shortlist entry, or NOT_FOUND.
func (r *Record) Entry(siteID string) (model.ShortlistEntry, error) {
	i, ok := r.ShortlistIndex(siteID)
	if !ok {
		return model.ShortlistEntry{}, model.NewNotFoundError(fmt.Sprintf("site %q is not on the shortlist", siteID))
	}
	return r.Shortlist[i], nil
}

// AddShortlistEntry appends an entry. A site can be shortlisted once.
func (r *Record) AddShortlistEntry(entry model.ShortlistEntry) error {
	if _, exists := r.ShortlistIndex(entry.SiteID); exists {
		return model.NewConflictError(fmt.Sprintf("site %q is already on the shortlist", entry.SiteID))
	}
	r.Shortlist = append(r.Shortlist, entry)
	return nil
}

// PutShortlistEntry replaces an existing entry.
func (r *Record) PutShortlistEntry(entry model.ShortlistEntry) error {
	i, ok := r.ShortlistIndex(entry.SiteID)
	if !ok {
		return model.NewNotFoundError(fmt.Sprintf("site %q is not on the shortlist", entry.SiteID))
	}
	r.Shortlist[i] = entry
	return nil
}

// RemoveShortlistEntry hard-deletes an entry and returns it.
func (r *Record) RemoveShortlistEntry(siteID string) (model.ShortlistEntry, error) {
	i, ok := r.ShortlistIndex(siteID)
	if !ok {
		return model.ShortlistEntry{}, model.NewNotFoundError(fmt.Sprintf("site %q is not on the shortlist", siteID))
	}
	removed := r.Shortlist[i]
	r.Shortlist = slices.Delete(r.Shortlist, i, i+1)
	return removed, nil
}
