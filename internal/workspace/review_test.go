package workspace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pitabwire/trialscope/internal/scenario"
	"github.com/pitabwire/trialscope/internal/store"
	"github.com/pitabwire/trialscope/model"
)

func TestMarkReviewed_blockedUntilConcernAcknowledged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scn := f.scenario(t, "A")
	p := f.patient(t, scn, "Adults")
	reviewer := actor("u-r", "Robin", "reviewer")
	f.readyForReview(t, scn, p)

	require.NoError(t, f.svc.StartReview(ctx, f.admin, scn, p))
	c, err := f.svc.AddComment(ctx, reviewer, scn, p, model.CommentInput{
		Text:     "Exclusion criteria conflict with the protocol",
		Tag:      model.CommentTagConcern,
		Blocking: true,
	})
	require.NoError(t, err)

	err = f.svc.MarkReviewed(ctx, reviewer, scn, p)
	require.True(t, model.IsCode(err, model.ErrBlockingConcernsUnresolved), "got %v", err)
	item, _ := f.svc.ReviewItem(ctx, scn, p)
	require.Equal(t, model.ReviewStatusUnderReview, item.Status)

	require.NoError(t, f.svc.AcknowledgeComment(ctx, f.admin, scn, p, c.ID))
	require.NoError(t, f.svc.MarkReviewed(ctx, reviewer, scn, p))

	item, err = f.svc.ReviewItem(ctx, scn, p)
	require.NoError(t, err)
	require.Equal(t, model.ReviewStatusReviewed, item.Status)
	require.NotNil(t, item.ReviewEndAt)
	require.ElementsMatch(t, []string{"Dana", "Robin"}, item.Participants)
}

func TestMarkReviewed_everyAcknowledgementOrder(t *testing.T) {
	orders := [][]int{
		{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0},
	}
	for _, order := range orders {
		f := newFixture(t)
		ctx := context.Background()
		scn := f.scenario(t, "A")
		p := f.patient(t, scn, "Adults")
		f.readyForReview(t, scn, p)
		require.NoError(t, f.svc.StartReview(ctx, f.admin, scn, p))

		var ids []string
		for _, text := range []string{"dosing", "eligibility", "endpoints"} {
			c, err := f.svc.AddComment(ctx, f.admin, scn, p, model.CommentInput{Text: text, Tag: model.CommentTagConcern, Blocking: true})
			require.NoError(t, err)
			ids = append(ids, c.ID)
		}
		_, err := f.svc.AddComment(ctx, f.admin, scn, p, model.CommentInput{Text: "nice work"})
		require.NoError(t, err)

		for i, idx := range order {
			err := f.svc.MarkReviewed(ctx, f.admin, scn, p)
			require.True(t, model.IsCode(err, model.ErrBlockingConcernsUnresolved), "order %v step %d: %v", order, i, err)
			require.NoError(t, f.svc.AcknowledgeComment(ctx, f.admin, scn, p, ids[idx]))
		}
		require.NoError(t, f.svc.MarkReviewed(ctx, f.admin, scn, p), "order %v", order)
	}
}

func TestStartReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scn := f.scenario(t, "A")
	p := f.patient(t, scn, "Adults")

	err := f.svc.MarkReviewed(ctx, f.admin, scn, p)
	require.True(t, model.IsCode(err, model.ErrInvalidTransition), "draft: %v", err)

	err = f.svc.StartReview(ctx, f.admin, scn, p)
	require.True(t, model.IsCode(err, model.ErrStepDisabled), "review & approval disabled: %v", err)

	require.NoError(t, f.svc.SetArtifact(ctx, f.admin, scn, model.ArtifactSiteRecommendationsReady, true))
	err = f.svc.StartReview(ctx, f.admin, scn, p)
	require.True(t, model.IsCode(err, model.ErrStepDisabled), "no active profile: %v", err)

	rec, _ := f.svc.Record(ctx, scn)
	require.False(t, rec.Scenario.Artifacts.ReviewStarted)
	gates, _ := f.svc.StepGates(ctx, scn)
	require.False(t, gates.Outputs[0].Enabled)

	require.NoError(t, f.svc.TrySetActive(ctx, f.admin, scn, []string{p}))
	require.NoError(t, f.svc.StartReview(ctx, f.admin, scn, p))
	err = f.svc.StartReview(ctx, f.admin, scn, p)
	require.True(t, model.IsCode(err, model.ErrInvalidTransition), "restart: %v", err)

	rec, _ = f.svc.Record(ctx, scn)
	require.True(t, rec.Scenario.Artifacts.ReviewStarted)
	require.Equal(t, model.StepInProgress, rec.Scenario.StepStatusOf(model.StepReviewApproval))

	gates, _ = f.svc.StepGates(ctx, scn)
	for _, out := range gates.Outputs {
		require.True(t, out.Enabled, out.Label)
		require.True(t, out.ReadOnly, out.Label)
	}

	err = f.svc.StartReview(ctx, f.admin, scn, "p-404")
	require.True(t, model.IsCode(err, model.ErrNotFound), "unknown profile: %v", err)
}

func TestAddComment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scn := f.scenario(t, "A")
	p := f.patient(t, scn, "Adults")

	// Comments are allowed before the review starts and leave the status alone.
	c, err := f.svc.AddComment(ctx, f.admin, scn, p, model.CommentInput{Text: "  Is HbA1c > 7 too strict? "})
	require.NoError(t, err)
	require.Equal(t, "Is HbA1c > 7 too strict?", c.Text)
	require.Equal(t, model.CommentTagFYI, c.Tag)
	require.NotEmpty(t, c.ID)

	item, _ := f.svc.ReviewItem(ctx, scn, p)
	require.Equal(t, model.ReviewStatusDraft, item.Status)
	require.Len(t, item.Comments, 1)

	_, err = f.svc.AddComment(ctx, f.admin, scn, p, model.CommentInput{Text: " "})
	require.True(t, model.IsCode(err, model.ErrValidationError), "empty: %v", err)
	_, err = f.svc.AddComment(ctx, f.admin, scn, p, model.CommentInput{Text: "x", Tag: "rant"})
	require.True(t, model.IsCode(err, model.ErrValidationError), "tag: %v", err)
	_, err = f.svc.AddComment(ctx, f.admin, scn, "p-404", model.CommentInput{Text: "x"})
	require.True(t, model.IsCode(err, model.ErrNotFound), "profile: %v", err)
}

func TestAcknowledgeComment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scn := f.scenario(t, "A")
	p := f.patient(t, scn, "Adults")
	c, err := f.svc.AddComment(ctx, f.admin, scn, p, model.CommentInput{Text: "check", Blocking: true})
	require.NoError(t, err)

	err = f.svc.AcknowledgeComment(ctx, f.admin, scn, p, "c-404")
	require.True(t, model.IsCode(err, model.ErrCommentNotFound), "got %v", err)

	require.NoError(t, f.svc.AcknowledgeComment(ctx, f.admin, scn, p, c.ID))
	require.NoError(t, f.svc.AcknowledgeComment(ctx, actor("u-2", "Sam"), scn, p, c.ID))

	item, _ := f.svc.ReviewItem(ctx, scn, p)
	require.Equal(t, "Dana", item.Comments[0].AcknowledgedBy)

	entries, _ := f.log.List(ctx, auditFilter(scn, model.AuditCommentAck))
	require.Len(t, entries, 1)
}

func TestAcknowledgeComment_repeatLeavesWorkspaceSaved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scn := f.scenario(t, "A")
	other := f.scenario(t, "B")
	p := f.patient(t, scn, "Adults")
	c, err := f.svc.AddComment(ctx, f.admin, scn, p, model.CommentInput{Text: "check", Blocking: true})
	require.NoError(t, err)

	_, err = f.svc.RequestSwitch(ctx, f.admin, scn)
	require.NoError(t, err)
	require.NoError(t, f.svc.AcknowledgeComment(ctx, f.admin, scn, p, c.ID))
	require.NoError(t, f.svc.Save(ctx, f.admin))
	before, _ := f.svc.Record(ctx, scn)

	require.NoError(t, f.svc.AcknowledgeComment(ctx, f.admin, scn, p, c.ID))
	after, _ := f.svc.Record(ctx, scn)
	require.Equal(t, before.Scenario.Version, after.Scenario.Version)
	require.False(t, f.svc.SwitchState().Unsaved)

	outcome, err := f.svc.RequestSwitch(ctx, f.admin, other)
	require.NoError(t, err)
	require.Equal(t, scenario.SwitchImmediate, outcome)
}

func TestReviewItem_missingProfileIsDataIntegrityViolation(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	f := newFixture(t, WithLogger(zap.New(core)))
	ctx := context.Background()

	rec := store.NewRecord(model.Scenario{ID: "scn-broken", Name: "Broken"})
	rec.Reviews["p-gone"] = model.ReviewItem{ProfileID: "p-gone", Status: model.ReviewStatusUnderReview}
	require.NoError(t, f.store.Create(ctx, rec))

	err := f.svc.MarkReviewed(ctx, f.admin, "scn-broken", "p-gone")
	require.True(t, model.IsCode(err, model.ErrDataIntegrity), "got %v", err)

	_, err = f.svc.ReviewItem(ctx, "scn-broken", "p-gone")
	require.True(t, model.IsCode(err, model.ErrDataIntegrity), "got %v", err)

	violations := logs.FilterMessage("review item without profile").All()
	require.Len(t, violations, 2)
	require.Equal(t, zapcore.ErrorLevel, violations[0].Level)

	rejected := logs.FilterMessage("mark_reviewed rejected").All()
	require.Len(t, rejected, 1)
	require.Equal(t, zapcore.ErrorLevel, rejected[0].Level)
}
