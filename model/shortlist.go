package model

import "time"

// DecisionStatus is the decision state of a shortlisted site.
type DecisionStatus string

// Decision status values. Included and Excluded may be re-entered.
const (
	DecisionPending  DecisionStatus = "pending"
	DecisionIncluded DecisionStatus = "included"
	DecisionExcluded DecisionStatus = "excluded"
)

// Shortlist entry sources.
const (
	ShortlistSourceRecommendation = "recommendation"
	ShortlistSourceManual         = "manual"
)

// ShortlistEntry is a site carried into Review & Approval.
type ShortlistEntry struct {
	SiteID         string         `json:"site_id"`
	SiteName       string         `json:"site_name"`
	Country        string         `json:"country"`
	City           string         `json:"city"`
	Source         string         `json:"source"`
	DecisionStatus DecisionStatus `json:"decision_status"`
	DecisionBy     string         `json:"decision_by,omitempty"`
	DecisionAt     *time.Time     `json:"decision_at,omitempty"`
	Notes          string         `json:"notes,omitempty"`
	AddedAt        time.Time      `json:"added_at"`
	AddedBy        string         `json:"added_by"`
}

// Decided reports whether a decision other than pending has been made.
func (e ShortlistEntry) Decided() bool {
	return e.DecisionStatus == DecisionIncluded || e.DecisionStatus == DecisionExcluded
}
