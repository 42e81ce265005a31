package model

import "time"

// Audit actions.
const (
	AuditShortlistAdd     = "shortlist.add"
	AuditShortlistRemove  = "shortlist.remove"
	AuditDecisionInclude  = "decision.include"
	AuditDecisionExclude  = "decision.exclude"
	AuditNoteUpdate       = "note.update"
	AuditReviewStart      = "review.start"
	AuditReviewComplete   = "review.complete"
	AuditCommentAdd       = "review.comment"
	AuditCommentAck       = "review.acknowledge"
	AuditSelectionChange  = "selection.activate"
	AuditProfileArchive   = "profile.archive"
	AuditScenarioSwitch   = "scenario.switch"
	AuditCountriesApprove = "countries.approve"
)

// Audit subject types.
const (
	SubjectScenario = "scenario"
	SubjectProfile  = "profile"
	SubjectSite     = "site"
	SubjectComment  = "comment"
)

// AuditEntry records one state-changing action. Entries are append-only.
type AuditEntry struct {
	ID          string         `json:"id"`
	ScenarioID  string         `json:"scenario_id"`
	Action      string         `json:"action"`
	SubjectType string         `json:"subject_type"`
	SubjectID   string         `json:"subject_id"`
	Actor       string         `json:"actor"`
	Surface     string         `json:"surface"`
	Detail      map[string]any `json:"detail,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}
