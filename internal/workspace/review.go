package workspace

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/pitabwire/trialscope/internal/observability"
	"github.com/pitabwire/trialscope/internal/review"
	"github.com/pitabwire/trialscope/internal/store"
	"github.com/pitabwire/trialscope/model"
)

// StartReview moves the review of a profile from draft to under review. The
// first review started in a scenario sets the reviewStarted artifact, which
// unlocks the read-only outputs. Review & Approval must be enabled.
func (s *Service) StartReview(ctx context.Context, rctx *model.RequestContext, scenarioID, profileID string) error {
	return s.apply(ctx, rctx, mutation{
		op: "start_review", scenarioID: scenarioID, capability: model.CapReviewComment, dirty: true,
		attrs: attrsProfile(profileID),
	}, func(rec *store.Record) ([]model.AuditEntry, error) {
		if err := s.requireStep(rec, model.StepReviewApproval); err != nil {
			return nil, err
		}
		item, err := s.reviewItem(ctx, rec, profileID)
		if err != nil {
			return nil, err
		}
		next, err := s.reviews.Start(item, rctx.Actor())
		if err != nil {
			return nil, err
		}
		rec.Reviews[profileID] = next
		rec.Scenario.Artifacts.ReviewStarted = true
		if rec.Scenario.StepStatusOf(model.StepReviewApproval) == model.StepIncomplete {
			if err := rec.SetStepStatus(model.StepReviewApproval, model.StepInProgress); err != nil {
				return nil, err
			}
		}
		return []model.AuditEntry{{
			Action:      model.AuditReviewStart,
			SubjectType: model.SubjectProfile,
			SubjectID:   profileID,
			Detail:      map[string]any{"from": string(item.Status), "to": string(next.Status)},
		}}, nil
	})
}

// MarkReviewed completes the review of a profile. It fails with
// BLOCKING_CONCERNS_UNRESOLVED while a blocking comment is unacknowledged.
func (s *Service) MarkReviewed(ctx context.Context, rctx *model.RequestContext, scenarioID, profileID string) error {
	return s.apply(ctx, rctx, mutation{
		op: "mark_reviewed", scenarioID: scenarioID, capability: model.CapReviewApprove, dirty: true,
		attrs: attrsProfile(profileID),
	}, func(rec *store.Record) ([]model.AuditEntry, error) {
		item, err := s.reviewItem(ctx, rec, profileID)
		if err != nil {
			return nil, err
		}
		next, err := s.reviews.MarkReviewed(item, rctx.Actor())
		if err != nil {
			return nil, err
		}
		rec.Reviews[profileID] = next
		return []model.AuditEntry{{
			Action:      model.AuditReviewComplete,
			SubjectType: model.SubjectProfile,
			SubjectID:   profileID,
			Detail:      map[string]any{"from": string(item.Status), "to": string(next.Status)},
		}}, nil
	})
}

// AddComment attaches a comment to the review of a profile in any state.
func (s *Service) AddComment(ctx context.Context, rctx *model.RequestContext, scenarioID, profileID string, in model.CommentInput) (model.Comment, error) {
	var added model.Comment
	err := s.apply(ctx, rctx, mutation{
		op: "add_comment", scenarioID: scenarioID, capability: model.CapReviewComment, dirty: true,
		attrs: attrsProfile(profileID),
	}, func(rec *store.Record) ([]model.AuditEntry, error) {
		item, err := s.reviewItem(ctx, rec, profileID)
		if err != nil {
			return nil, err
		}
		next, c, err := s.reviews.AddComment(item, rctx.Actor(), in)
		if err != nil {
			return nil, err
		}
		rec.Reviews[profileID] = next
		added = c
		return []model.AuditEntry{{
			Action:      model.AuditCommentAdd,
			SubjectType: model.SubjectComment,
			SubjectID:   c.ID,
			Detail: map[string]any{
				"profile_id": profileID,
				"tag":        string(c.Tag),
				"blocking":   c.Blocking,
			},
		}}, nil
	})
	return added, err
}

// AcknowledgeComment acknowledges a comment on the review of a profile.
// Acknowledging an acknowledged comment changes nothing and is not audited.
func (s *Service) AcknowledgeComment(ctx context.Context, rctx *model.RequestContext, scenarioID, profileID, commentID string) error {
	return s.apply(ctx, rctx, mutation{
		op: "acknowledge_comment", scenarioID: scenarioID, capability: model.CapReviewComment, dirty: true,
		attrs: []attribute.KeyValue{
			observability.AttrProfileID.String(profileID),
			observability.AttrCommentID.String(commentID),
		},
	}, func(rec *store.Record) ([]model.AuditEntry, error) {
		item, err := s.reviewItem(ctx, rec, profileID)
		if err != nil {
			return nil, err
		}
		next, err := s.reviews.Acknowledge(item, commentID, rctx.Actor())
		if err != nil {
			return nil, err
		}
		if acknowledgedBefore(item, commentID) {
			return nil, errNoChange
		}
		rec.Reviews[profileID] = next
		return []model.AuditEntry{{
			Action:      model.AuditCommentAck,
			SubjectType: model.SubjectComment,
			SubjectID:   commentID,
			Detail:      map[string]any{"profile_id": profileID},
		}}, nil
	})
}

// ReviewItem returns the review of a profile. A profile that was never
// reviewed or commented on has a draft item.
func (s *Service) ReviewItem(ctx context.Context, scenarioID, profileID string) (model.ReviewItem, error) {
	rec, err := s.store.Get(ctx, scenarioID)
	if err != nil {
		return model.ReviewItem{}, err
	}
	return s.reviewItem(ctx, &rec, profileID)
}

// reviewItem returns the stored review of a profile or a new draft. A
// review item whose profile no longer exists is a data-integrity violation.
func (s *Service) reviewItem(ctx context.Context, rec *store.Record, profileID string) (model.ReviewItem, error) {
	item, reviewed := rec.Reviews[profileID]
	if _, err := rec.Profile(profileID); err != nil {
		if !reviewed {
			return model.ReviewItem{}, err
		}
		integrity := model.NewDataIntegrityError(
			fmt.Sprintf("review item references missing profile %q", profileID),
		)
		observability.ScenarioLogger(ctx, s.logger, rec.Scenario.ID).Error("review item without profile",
			zap.String("profile_id", profileID),
			zap.Error(integrity),
		)
		return model.ReviewItem{}, integrity
	}
	if !reviewed {
		item = review.NewItem(profileID)
	}
	if rec.Reviews == nil {
		rec.Reviews = make(map[string]model.ReviewItem)
	}
	return item, nil
}

func acknowledgedBefore(item model.ReviewItem, commentID string) bool {
	for _, c := range item.Comments {
		if c.ID == commentID {
			return c.Acknowledged
		}
	}
	return false
}
