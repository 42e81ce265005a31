// Package decision implements include/exclude decisions on shortlisted
// sites.
package decision

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pitabwire/trialscope/model"
)

// MaxNoteLength bounds the free-text note on a shortlist entry, in
// characters.
const MaxNoteLength = 2000

// Machine applies decision transitions to shortlist entries. Methods take
// entries by value and return the next version.
type Machine struct {
	now func() time.Time
}

// NewMachine creates a decision machine. A nil clock uses UTC wall time.
func NewMachine(now func() time.Time) *Machine {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Machine{now: now}
}

// Include records an include decision, overwriting any prior decision and
// re-stamping attribution.
func (m *Machine) Include(entry model.ShortlistEntry, actor string) (model.ShortlistEntry, error) {
	return m.decide(entry, model.DecisionIncluded, actor)
}

// Exclude records an exclude decision, overwriting any prior decision and
// re-stamping attribution.
func (m *Machine) Exclude(entry model.ShortlistEntry, actor string) (model.ShortlistEntry, error) {
	return m.decide(entry, model.DecisionExcluded, actor)
}

func (m *Machine) decide(entry model.ShortlistEntry, status model.DecisionStatus, actor string) (model.ShortlistEntry, error) {
	if actor == "" {
		return entry, model.NewBadRequestError("a decision requires an acting user")
	}
	now := m.now()
	entry.DecisionStatus = status
	entry.DecisionBy = actor
	entry.DecisionAt = &now
	return entry, nil
}

// AddNote replaces the entry's note. The decision status never changes.
// When a decision exists but carries no attribution, the note writer is
// stamped as decider; existing attribution is kept.
func (m *Machine) AddNote(entry model.ShortlistEntry, text, actor string) (model.ShortlistEntry, error) {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) > MaxNoteLength {
		return entry, model.NewValidationError([]model.FieldError{{
			Field:   "notes",
			Code:    "TOO_LONG",
			Message: fmt.Sprintf("Notes must be at most %d characters", MaxNoteLength),
		}})
	}
	entry.Notes = text
	if entry.Decided() && entry.DecisionBy == "" && actor != "" {
		now := m.now()
		entry.DecisionBy = actor
		entry.DecisionAt = &now
	}
	return entry, nil
}

// NewEntryFromCandidate builds a pending shortlist entry from a
// recommendation candidate.
func (m *Machine) NewEntryFromCandidate(c model.SiteCandidate, actor string) model.ShortlistEntry {
	return model.ShortlistEntry{
		SiteID:         c.SiteID,
		SiteName:       c.Name,
		Country:        c.Country,
		City:           c.City,
		Source:         model.ShortlistSourceRecommendation,
		DecisionStatus: model.DecisionPending,
		AddedAt:        m.now(),
		AddedBy:        actor,
	}
}

// NewManualEntry builds a pending shortlist entry for a manually added site.
func (m *Machine) NewManualEntry(siteID, name, country, city, actor string) (model.ShortlistEntry, error) {
	var details []model.FieldError
	if strings.TrimSpace(siteID) == "" {
		details = append(details, model.FieldError{Field: "site_id", Code: "REQUIRED", Message: "Site ID is required"})
	}
	if strings.TrimSpace(name) == "" {
		details = append(details, model.FieldError{Field: "site_name", Code: "REQUIRED", Message: "Site name is required"})
	}
	if len(details) > 0 {
		return model.ShortlistEntry{}, model.NewValidationError(details)
	}
	return model.ShortlistEntry{
		SiteID:         siteID,
		SiteName:       name,
		Country:        country,
		City:           city,
		Source:         model.ShortlistSourceManual,
		DecisionStatus: model.DecisionPending,
		AddedAt:        m.now(),
		AddedBy:        actor,
	}, nil
}
