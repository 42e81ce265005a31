package workspace

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pitabwire/trialscope/internal/observability"
	"github.com/pitabwire/trialscope/internal/store"
	"github.com/pitabwire/trialscope/model"
)

// AddProfile creates a patient or site profile. Source distinguishes manual
// entry from accepted recommendations.
func (s *Service) AddProfile(ctx context.Context, rctx *model.RequestContext, scenarioID string, kind model.ProfileKind, source model.ProfileSource, in model.ProfileInput) (model.ProfileOption, error) {
	if source == "" {
		source = model.ProfileSourceManual
	}
	var created model.ProfileOption
	err := s.apply(ctx, rctx, mutation{op: "add_profile", scenarioID: scenarioID, capability: model.CapWorkspaceEdit, dirty: true},
		func(rec *store.Record) ([]model.AuditEntry, error) {
			p, err := rec.AddProfile(s.newID(), kind, in, source, s.now())
			if err != nil {
				return nil, err
			}
			created = p
			return nil, nil
		})
	return created, err
}

// DuplicateProfile copies a profile. The copy is not active.
func (s *Service) DuplicateProfile(ctx context.Context, rctx *model.RequestContext, scenarioID, profileID string) (model.ProfileOption, error) {
	var created model.ProfileOption
	err := s.apply(ctx, rctx, mutation{
		op: "duplicate_profile", scenarioID: scenarioID, capability: model.CapWorkspaceEdit, dirty: true,
		attrs: attrsProfile(profileID),
	}, func(rec *store.Record) ([]model.AuditEntry, error) {
		p, err := rec.DuplicateProfile(profileID, s.newID(), s.now())
		if err != nil {
			return nil, err
		}
		created = p
		return nil, nil
	})
	return created, err
}

// DeriveProfile creates a variant of a profile with edited fields.
func (s *Service) DeriveProfile(ctx context.Context, rctx *model.RequestContext, scenarioID, parentID string, in model.ProfileInput) (model.ProfileOption, error) {
	var created model.ProfileOption
	err := s.apply(ctx, rctx, mutation{
		op: "derive_profile", scenarioID: scenarioID, capability: model.CapWorkspaceEdit, dirty: true,
		attrs: attrsProfile(parentID),
	}, func(rec *store.Record) ([]model.AuditEntry, error) {
		p, err := rec.DeriveProfile(parentID, s.newID(), in, s.now())
		if err != nil {
			return nil, err
		}
		created = p
		return nil, nil
	})
	return created, err
}

// EditProfile replaces the editable fields of a profile.
func (s *Service) EditProfile(ctx context.Context, rctx *model.RequestContext, scenarioID, profileID string, in model.ProfileInput) (model.ProfileOption, error) {
	var edited model.ProfileOption
	err := s.apply(ctx, rctx, mutation{
		op: "edit_profile", scenarioID: scenarioID, capability: model.CapWorkspaceEdit, dirty: true,
		attrs: attrsProfile(profileID),
	}, func(rec *store.Record) ([]model.AuditEntry, error) {
		p, err := rec.EditProfile(profileID, in, s.now())
		if err != nil {
			return nil, err
		}
		edited = p
		return nil, nil
	})
	return edited, err
}

// TrySetActive flags the given patient profiles as active selections. If
// the result would exceed the maximum active count the call fails with
// COUNT_VIOLATION and no profile changes.
func (s *Service) TrySetActive(ctx context.Context, rctx *model.RequestContext, scenarioID string, profileIDs []string) error {
	return s.apply(ctx, rctx, mutation{op: "try_set_active", scenarioID: scenarioID, capability: model.CapWorkspaceEdit, dirty: true},
		func(rec *store.Record) ([]model.AuditEntry, error) {
			next, err := s.policy.TrySetActive(rec.Profiles, profileIDs)
			if err != nil {
				return nil, err
			}

			var entries []model.AuditEntry
			seen := make(map[string]bool, len(profileIDs))
			for _, id := range profileIDs {
				i, _ := rec.ProfileIndex(id)
				if seen[id] || rec.Profiles[i].IsActiveSelection {
					continue
				}
				seen[id] = true
				entries = append(entries, model.AuditEntry{
					Action:      model.AuditSelectionChange,
					SubjectType: model.SubjectProfile,
					SubjectID:   id,
					Detail:      map[string]any{"from": "inactive", "to": "active"},
				})
			}
			if len(entries) == 0 {
				return nil, errNoChange
			}
			rec.Profiles = next
			return entries, nil
		})
}

// DeactivateProfile clears the active flag of a profile. The active count
// may fall below the minimum; the gate banner reports that.
func (s *Service) DeactivateProfile(ctx context.Context, rctx *model.RequestContext, scenarioID, profileID string) error {
	return s.apply(ctx, rctx, mutation{
		op: "deactivate_profile", scenarioID: scenarioID, capability: model.CapWorkspaceEdit, dirty: true,
		attrs: attrsProfile(profileID),
	}, func(rec *store.Record) ([]model.AuditEntry, error) {
		wasActive := false
		if i, ok := rec.ProfileIndex(profileID); ok {
			wasActive = rec.Profiles[i].IsActiveSelection
		}
		next, err := s.policy.Deactivate(rec.Profiles, profileID)
		if err != nil {
			return nil, err
		}
		if !wasActive {
			return nil, errNoChange
		}
		rec.Profiles = next
		return []model.AuditEntry{{
			Action:      model.AuditSelectionChange,
			SubjectType: model.SubjectProfile,
			SubjectID:   profileID,
			Detail:      map[string]any{"from": "active", "to": "inactive"},
		}}, nil
	})
}

// ArchiveProfile archives a profile. Archive is terminal and the record is
// kept; profiles derived from it are unaffected.
func (s *Service) ArchiveProfile(ctx context.Context, rctx *model.RequestContext, scenarioID, profileID string) error {
	return s.apply(ctx, rctx, mutation{
		op: "archive_profile", scenarioID: scenarioID, capability: model.CapWorkspaceEdit, dirty: true,
		attrs: attrsProfile(profileID),
	}, func(rec *store.Record) ([]model.AuditEntry, error) {
		next, err := s.policy.Archive(rec.Profiles, profileID)
		if err != nil {
			return nil, err
		}
		rec.Profiles = next
		return []model.AuditEntry{{
			Action:      model.AuditProfileArchive,
			SubjectType: model.SubjectProfile,
			SubjectID:   profileID,
			Detail:      map[string]any{"from": string(model.ProfileStatusActive), "to": string(model.ProfileStatusArchived)},
		}}, nil
	})
}

// --- Countries and site candidates ---

// SetCountries replaces the candidate countries of a scenario.
func (s *Service) SetCountries(ctx context.Context, rctx *model.RequestContext, scenarioID string, countries []model.CountrySelection) error {
	return s.apply(ctx, rctx, mutation{op: "set_countries", scenarioID: scenarioID, capability: model.CapWorkspaceEdit, dirty: true},
		func(rec *store.Record) ([]model.AuditEntry, error) {
			return nil, rec.SetCountries(countries)
		})
}

// SelectCountry selects or deselects a candidate country.
func (s *Service) SelectCountry(ctx context.Context, rctx *model.RequestContext, scenarioID, code string, selected bool) error {
	return s.apply(ctx, rctx, mutation{op: "select_country", scenarioID: scenarioID, capability: model.CapWorkspaceEdit, dirty: true},
		func(rec *store.Record) ([]model.AuditEntry, error) {
			return nil, rec.SelectCountry(code, selected)
		})
}

// ApproveCountries approves the selected countries, which unlocks Site
// Recommendation.
func (s *Service) ApproveCountries(ctx context.Context, rctx *model.RequestContext, scenarioID string) error {
	return s.apply(ctx, rctx, mutation{op: "approve_countries", scenarioID: scenarioID, capability: model.CapWorkspaceEdit, dirty: true},
		func(rec *store.Record) ([]model.AuditEntry, error) {
			if err := s.requireStep(rec, model.StepCountrySelection); err != nil {
				return nil, err
			}
			if err := rec.ApproveCountries(); err != nil {
				return nil, err
			}
			return []model.AuditEntry{{
				Action:      model.AuditCountriesApprove,
				SubjectType: model.SubjectScenario,
				SubjectID:   rec.Scenario.ID,
				Detail:      map[string]any{"countries": rec.SelectedCountries()},
			}}, nil
		})
}

// LoadCandidates replaces the exploratory site candidates.
func (s *Service) LoadCandidates(ctx context.Context, rctx *model.RequestContext, scenarioID string, candidates []model.SiteCandidate) error {
	return s.apply(ctx, rctx, mutation{op: "load_candidates", scenarioID: scenarioID, capability: model.CapWorkspaceEdit, dirty: true},
		func(rec *store.Record) ([]model.AuditEntry, error) {
			return nil, rec.LoadCandidates(candidates)
		})
}

// PublishRecommendations marks the site recommendations ready, which
// unlocks Review & Approval.
func (s *Service) PublishRecommendations(ctx context.Context, rctx *model.RequestContext, scenarioID string) error {
	return s.apply(ctx, rctx, mutation{op: "publish_recommendations", scenarioID: scenarioID, capability: model.CapWorkspaceEdit, dirty: true},
		func(rec *store.Record) ([]model.AuditEntry, error) {
			if err := s.requireStep(rec, model.StepSiteRecommendation); err != nil {
				return nil, err
			}
			return nil, rec.PublishRecommendations()
		})
}

func attrsProfile(profileID string) []attribute.KeyValue {
	return []attribute.KeyValue{observability.AttrProfileID.String(profileID)}
}
