package workspace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pitabwire/trialscope/model"
)

func TestTrySetActive_fourthProfileIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scn := f.scenario(t, "A")
	p1 := f.patient(t, scn, "Adults 18-65")
	p2 := f.patient(t, scn, "Adults 65+")
	p3 := f.patient(t, scn, "Adolescents")
	p4 := f.patient(t, scn, "Pregnant women")

	require.NoError(t, f.svc.TrySetActive(ctx, f.admin, scn, []string{p1, p2, p3}))

	err := f.svc.TrySetActive(ctx, f.admin, scn, []string{p4})
	require.True(t, model.IsCode(err, model.ErrCountViolation), "got %v", err)

	rec, err := f.svc.Record(ctx, scn)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{p1, p2, p3}, activeIDs(rec))
	require.NotContains(t, activeIDs(rec), p4)
}

func TestTrySetActive_allOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scn := f.scenario(t, "A")
	p1 := f.patient(t, scn, "One")
	p2 := f.patient(t, scn, "Two")
	p3 := f.patient(t, scn, "Three")
	p4 := f.patient(t, scn, "Four")

	require.NoError(t, f.svc.TrySetActive(ctx, f.admin, scn, []string{p1, p2}))
	err := f.svc.TrySetActive(ctx, f.admin, scn, []string{p3, p4})
	require.True(t, model.IsCode(err, model.ErrCountViolation), "got %v", err)

	rec, _ := f.svc.Record(ctx, scn)
	require.ElementsMatch(t, []string{p1, p2}, activeIDs(rec))

	// Re-selecting active profiles does not count them twice.
	require.NoError(t, f.svc.TrySetActive(ctx, f.admin, scn, []string{p1, p2, p3}))
	rec, _ = f.svc.Record(ctx, scn)
	require.ElementsMatch(t, []string{p1, p2, p3}, activeIDs(rec))

	// Only newly activated profiles are audited.
	entries, err := f.log.List(ctx, auditFilter(scn, model.AuditSelectionChange))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, p3, entries[0].SubjectID)
	require.Equal(t, "active", entries[0].Detail["to"])
}

func TestTrySetActive_siteProfilesAndArchived(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scn := f.scenario(t, "A")
	site, err := f.svc.AddProfile(ctx, f.admin, scn, model.ProfileKindSite, "", model.ProfileInput{Name: "Academic centres"})
	require.NoError(t, err)
	p := f.patient(t, scn, "Adults")
	require.NoError(t, f.svc.ArchiveProfile(ctx, f.admin, scn, p))

	err = f.svc.TrySetActive(ctx, f.admin, scn, []string{site.ID})
	require.True(t, model.IsCode(err, model.ErrInvalidTransition), "site profile: %v", err)
	err = f.svc.TrySetActive(ctx, f.admin, scn, []string{p})
	require.True(t, model.IsCode(err, model.ErrInvalidTransition), "archived: %v", err)
	err = f.svc.TrySetActive(ctx, f.admin, scn, []string{"p-404"})
	require.True(t, model.IsCode(err, model.ErrNotFound), "unknown: %v", err)
}

func TestTrySetActive_alreadyActiveLeavesWorkspaceSaved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scn := f.scenario(t, "A")
	p := f.patient(t, scn, "Adults")
	_, err := f.svc.RequestSwitch(ctx, f.admin, scn)
	require.NoError(t, err)
	require.NoError(t, f.svc.TrySetActive(ctx, f.admin, scn, []string{p}))
	require.NoError(t, f.svc.Save(ctx, f.admin))
	before, _ := f.svc.Record(ctx, scn)

	require.NoError(t, f.svc.TrySetActive(ctx, f.admin, scn, []string{p}))
	require.NoError(t, f.svc.TrySetActive(ctx, f.admin, scn, nil))
	require.NoError(t, f.svc.DeactivateProfile(ctx, f.admin, scn, p))
	require.NoError(t, f.svc.Save(ctx, f.admin))
	require.NoError(t, f.svc.DeactivateProfile(ctx, f.admin, scn, p))

	after, _ := f.svc.Record(ctx, scn)
	require.Equal(t, before.Scenario.Version+1, after.Scenario.Version, "only the real deactivation writes")
	require.False(t, f.svc.SwitchState().Unsaved)
	entries, _ := f.log.List(ctx, auditFilter(scn, model.AuditSelectionChange))
	require.Len(t, entries, 2)
}

func TestDeactivateProfile_bannerBlocksAdvancement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scn := f.scenario(t, "A")
	p := f.patient(t, scn, "Adults")
	require.NoError(t, f.svc.SetStepStatus(ctx, f.admin, scn, model.StepPatientProfile, model.StepComplete))
	require.NoError(t, f.svc.TrySetActive(ctx, f.admin, scn, []string{p}))

	_, err := f.svc.Navigate(ctx, f.admin, scn, "site-profile")
	require.NoError(t, err)

	require.NoError(t, f.svc.DeactivateProfile(ctx, f.admin, scn, p))
	gates, err := f.svc.StepGates(ctx, scn)
	require.NoError(t, err)
	require.True(t, gates.Banner.Blocking)
	require.Equal(t, 0, gates.Banner.ActiveCount)
	// The gate itself stays a function of step state.
	require.True(t, gates.Steps[1].Enabled)

	_, err = f.svc.Navigate(ctx, f.admin, scn, "site-profile")
	require.True(t, model.IsCode(err, model.ErrStepDisabled), "got %v", err)
	_, err = f.svc.Navigate(ctx, f.admin, scn, "patient-profile")
	require.NoError(t, err)

	// Deactivating an inactive profile succeeds without an audit entry.
	require.NoError(t, f.svc.DeactivateProfile(ctx, f.admin, scn, p))
	entries, _ := f.log.List(ctx, auditFilter(scn, model.AuditSelectionChange))
	require.Len(t, entries, 2)
	require.Equal(t, "inactive", entries[0].Detail["to"])
}

func TestProfileLineage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scn := f.scenario(t, "A")
	p := f.patient(t, scn, "Adults")
	require.NoError(t, f.svc.TrySetActive(ctx, f.admin, scn, []string{p}))

	dup, err := f.svc.DuplicateProfile(ctx, f.admin, scn, p)
	require.NoError(t, err)
	require.Equal(t, "Adults (copy)", dup.Name)
	require.False(t, dup.IsActiveSelection)
	require.Equal(t, p, *dup.ParentID)

	derived, err := f.svc.DeriveProfile(ctx, f.admin, scn, p, model.ProfileInput{
		Name:     "Adults, renal impairment",
		Criteria: map[string]string{"egfr": "<60"},
	})
	require.NoError(t, err)
	require.Equal(t, model.ProfileSourceDerived, derived.Source)

	// Archiving the parent leaves its children alone.
	require.NoError(t, f.svc.ArchiveProfile(ctx, f.admin, scn, p))
	rec, _ := f.svc.Record(ctx, scn)
	parent, _ := rec.Profile(p)
	require.Equal(t, model.ProfileStatusArchived, parent.Status)
	require.False(t, parent.IsActiveSelection)
	child, _ := rec.Profile(derived.ID)
	require.Equal(t, model.ProfileStatusActive, child.Status)

	err = f.svc.ArchiveProfile(ctx, f.admin, scn, p)
	require.True(t, model.IsCode(err, model.ErrInvalidTransition), "got %v", err)
	_, err = f.svc.EditProfile(ctx, f.admin, scn, p, model.ProfileInput{Name: "Renamed"})
	require.True(t, model.IsCode(err, model.ErrInvalidTransition), "got %v", err)

	edited, err := f.svc.EditProfile(ctx, f.admin, scn, derived.ID, model.ProfileInput{Name: "Adults, CKD 3"})
	require.NoError(t, err)
	require.Equal(t, "Adults, CKD 3", edited.Name)
}

func TestCountriesAndRecommendationsUnlockSteps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scn := f.scenario(t, "A")

	require.NoError(t, f.svc.SetCountries(ctx, f.admin, scn, []model.CountrySelection{
		{Code: "KE", Name: "Kenya"},
		{Code: "UG", Name: "Uganda"},
	}))
	require.NoError(t, f.svc.SelectCountry(ctx, f.admin, scn, "KE", true))
	err := f.svc.ApproveCountries(ctx, f.admin, scn)
	require.True(t, model.IsCode(err, model.ErrStepDisabled), "country selection disabled: %v", err)

	p := f.patient(t, scn, "Adults")
	require.NoError(t, f.svc.SetStepStatus(ctx, f.admin, scn, model.StepPatientProfile, model.StepComplete))
	require.NoError(t, f.svc.SetStepStatus(ctx, f.admin, scn, model.StepSiteProfile, model.StepInProgress))
	err = f.svc.ApproveCountries(ctx, f.admin, scn)
	require.True(t, model.IsCode(err, model.ErrStepDisabled), "no active profile: %v", err)
	require.NoError(t, f.svc.TrySetActive(ctx, f.admin, scn, []string{p}))

	require.NoError(t, f.svc.SelectCountry(ctx, f.admin, scn, "KE", false))
	err = f.svc.ApproveCountries(ctx, f.admin, scn)
	require.True(t, model.IsCode(err, model.ErrValidationError), "nothing selected: %v", err)

	require.NoError(t, f.svc.LoadCandidates(ctx, f.admin, scn, []model.SiteCandidate{
		{SiteID: "s-1", Name: "Kenyatta National Hospital", Country: "KE", City: "Nairobi"},
	}))
	err = f.svc.PublishRecommendations(ctx, f.admin, scn)
	require.True(t, model.IsCode(err, model.ErrStepDisabled), "site recommendation disabled: %v", err)

	require.NoError(t, f.svc.SelectCountry(ctx, f.admin, scn, "KE", true))
	require.NoError(t, f.svc.ApproveCountries(ctx, f.admin, scn))

	gates, err := f.svc.StepGates(ctx, scn)
	require.NoError(t, err)
	require.True(t, gates.Steps[3].Enabled, "site recommendation")
	require.False(t, gates.Steps[4].Enabled, "review & approval")

	require.NoError(t, f.svc.DeactivateProfile(ctx, f.admin, scn, p))
	err = f.svc.PublishRecommendations(ctx, f.admin, scn)
	require.True(t, model.IsCode(err, model.ErrStepDisabled), "no active profile: %v", err)
	require.NoError(t, f.svc.TrySetActive(ctx, f.admin, scn, []string{p}))

	require.NoError(t, f.svc.LoadCandidates(ctx, f.admin, scn, nil))
	err = f.svc.PublishRecommendations(ctx, f.admin, scn)
	require.True(t, model.IsCode(err, model.ErrValidationError), "no candidates: %v", err)
	require.NoError(t, f.svc.LoadCandidates(ctx, f.admin, scn, []model.SiteCandidate{
		{SiteID: "s-1", Name: "Kenyatta National Hospital", Country: "KE", City: "Nairobi"},
	}))
	require.NoError(t, f.svc.PublishRecommendations(ctx, f.admin, scn))

	gates, _ = f.svc.StepGates(ctx, scn)
	require.True(t, gates.Steps[4].Enabled, "review & approval")

	entries, _ := f.log.List(ctx, auditFilter(scn, model.AuditCountriesApprove))
	require.Len(t, entries, 1)
	require.Equal(t, []string{"KE"}, entries[0].Detail["countries"])
}
