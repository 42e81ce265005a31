package workspace

import (
	"context"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pitabwire/trialscope/internal/observability"
	"github.com/pitabwire/trialscope/internal/store"
	"github.com/pitabwire/trialscope/model"
)

// AddToShortlist shortlists a recommended site candidate. The entry starts
// pending.
func (s *Service) AddToShortlist(ctx context.Context, rctx *model.RequestContext, scenarioID, siteID string) (model.ShortlistEntry, error) {
	var added model.ShortlistEntry
	err := s.apply(ctx, rctx, mutation{
		op: "shortlist_add", scenarioID: scenarioID, capability: model.CapShortlistEdit, dirty: true,
		attrs: attrsSite(siteID),
	}, func(rec *store.Record) ([]model.AuditEntry, error) {
		c, err := rec.Candidate(siteID)
		if err != nil {
			return nil, err
		}
		entry := s.decisions.NewEntryFromCandidate(c, rctx.Actor())
		if err := rec.AddShortlistEntry(entry); err != nil {
			return nil, err
		}
		added = entry
		return []model.AuditEntry{shortlistAdded(entry)}, nil
	})
	return added, err
}

// AddManualSite shortlists a site that was not recommended.
func (s *Service) AddManualSite(ctx context.Context, rctx *model.RequestContext, scenarioID string, site model.SiteCandidate) (model.ShortlistEntry, error) {
	var added model.ShortlistEntry
	err := s.apply(ctx, rctx, mutation{
		op: "shortlist_add_manual", scenarioID: scenarioID, capability: model.CapShortlistEdit, dirty: true,
		attrs: attrsSite(site.SiteID),
	}, func(rec *store.Record) ([]model.AuditEntry, error) {
		entry, err := s.decisions.NewManualEntry(site.SiteID, site.Name, site.Country, site.City, rctx.Actor())
		if err != nil {
			return nil, err
		}
		if err := rec.AddShortlistEntry(entry); err != nil {
			return nil, err
		}
		added = entry
		return []model.AuditEntry{shortlistAdded(entry)}, nil
	})
	return added, err
}

// RemoveFromShortlist removes a site and its decision from the shortlist.
func (s *Service) RemoveFromShortlist(ctx context.Context, rctx *model.RequestContext, scenarioID, siteID string) error {
	return s.apply(ctx, rctx, mutation{
		op: "shortlist_remove", scenarioID: scenarioID, capability: model.CapShortlistEdit, dirty: true,
		attrs: attrsSite(siteID),
	}, func(rec *store.Record) ([]model.AuditEntry, error) {
		removed, err := rec.RemoveShortlistEntry(siteID)
		if err != nil {
			return nil, err
		}
		return []model.AuditEntry{{
			Action:      model.AuditShortlistRemove,
			SubjectType: model.SubjectSite,
			SubjectID:   siteID,
			Detail:      map[string]any{"decision_status": string(removed.DecisionStatus)},
		}}, nil
	})
}

// Include records an include decision on a shortlisted site.
func (s *Service) Include(ctx context.Context, rctx *model.RequestContext, scenarioID, siteID string) error {
	return s.decide(ctx, rctx, "include", scenarioID, siteID, model.AuditDecisionInclude, s.decisions.Include)
}

// Exclude records an exclude decision on a shortlisted site.
func (s *Service) Exclude(ctx context.Context, rctx *model.RequestContext, scenarioID, siteID string) error {
	return s.decide(ctx, rctx, "exclude", scenarioID, siteID, model.AuditDecisionExclude, s.decisions.Exclude)
}

func (s *Service) decide(
	ctx context.Context,
	rctx *model.RequestContext,
	op, scenarioID, siteID, action string,
	transition func(model.ShortlistEntry, string) (model.ShortlistEntry, error),
) error {
	return s.apply(ctx, rctx, mutation{
		op: op, scenarioID: scenarioID, capability: model.CapShortlistDecide, dirty: true,
		attrs: attrsSite(siteID),
	}, func(rec *store.Record) ([]model.AuditEntry, error) {
		entry, err := rec.Entry(siteID)
		if err != nil {
			return nil, err
		}
		next, err := transition(entry, rctx.Actor())
		if err != nil {
			return nil, err
		}
		if err := rec.PutShortlistEntry(next); err != nil {
			return nil, err
		}
		return []model.AuditEntry{{
			Action:      action,
			SubjectType: model.SubjectSite,
			SubjectID:   siteID,
			Detail:      map[string]any{"from": string(entry.DecisionStatus), "to": string(next.DecisionStatus)},
		}}, nil
	})
}

// AddNote replaces the note on a shortlisted site. The decision is left
// unchanged.
func (s *Service) AddNote(ctx context.Context, rctx *model.RequestContext, scenarioID, siteID, text string) error {
	return s.apply(ctx, rctx, mutation{
		op: "add_note", scenarioID: scenarioID, capability: model.CapShortlistEdit, dirty: true,
		attrs: attrsSite(siteID),
	}, func(rec *store.Record) ([]model.AuditEntry, error) {
		entry, err := rec.Entry(siteID)
		if err != nil {
			return nil, err
		}
		next, err := s.decisions.AddNote(entry, text, rctx.Actor())
		if err != nil {
			return nil, err
		}
		if err := rec.PutShortlistEntry(next); err != nil {
			return nil, err
		}
		return []model.AuditEntry{{
			Action:      model.AuditNoteUpdate,
			SubjectType: model.SubjectSite,
			SubjectID:   siteID,
			Detail:      map[string]any{"length": utf8.RuneCountInString(next.Notes)},
		}}, nil
	})
}

// Shortlist returns the shortlisted sites of a scenario in the order they
// were added.
func (s *Service) Shortlist(ctx context.Context, scenarioID string) ([]model.ShortlistEntry, error) {
	rec, err := s.store.Get(ctx, scenarioID)
	if err != nil {
		return nil, err
	}
	return rec.Shortlist, nil
}

func shortlistAdded(entry model.ShortlistEntry) model.AuditEntry {
	return model.AuditEntry{
		Action:      model.AuditShortlistAdd,
		SubjectType: model.SubjectSite,
		SubjectID:   entry.SiteID,
		Detail:      map[string]any{"source": entry.Source, "to": string(entry.DecisionStatus)},
	}
}

func attrsSite(siteID string) []attribute.KeyValue {
	return []attribute.KeyValue{observability.AttrSiteID.String(siteID)}
}
