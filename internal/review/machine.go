// Package review implements the review lifecycle of profile options:
// draft, under review, reviewed. Completion is gated on every blocking
// comment having been acknowledged.
package review

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pitabwire/trialscope/model"
)

// Machine applies review transitions. Every method takes a review item by
// value and returns the next version; the input is never modified.
type Machine struct {
	now   func() time.Time
	newID func() string
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithIDGenerator overrides comment ID generation.
func WithIDGenerator(gen func() string) Option {
	return func(m *Machine) { m.newID = gen }
}

// NewMachine creates a review state machine.
func NewMachine(opts ...Option) *Machine {
	m := &Machine{
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewItem returns the draft review item for a profile.
func NewItem(profileID string) model.ReviewItem {
	return model.ReviewItem{
		ProfileID: profileID,
		Status:    model.ReviewStatusDraft,
	}
}

// Start moves a draft item under review.
func (m *Machine) Start(item model.ReviewItem, actor string) (model.ReviewItem, error) {
	if item.Status != model.ReviewStatusDraft {
		return item, model.NewInvalidTransitionError(
			fmt.Sprintf("review of %q is %s, only drafts can be started", item.ProfileID, item.Status),
		)
	}
	next := item.Clone()
	now := m.now()
	next.Status = model.ReviewStatusUnderReview
	next.ReviewStartAt = &now
	next.Participants = addParticipant(next.Participants, actor)
	return next, nil
}

// MarkReviewed completes the review. It fails with
// BLOCKING_CONCERNS_UNRESOLVED while any blocking comment is unacknowledged.
func (m *Machine) MarkReviewed(item model.ReviewItem, actor string) (model.ReviewItem, error) {
	if item.Status != model.ReviewStatusUnderReview {
		return item, model.NewInvalidTransitionError(
			fmt.Sprintf("review of %q is %s, only reviews in progress can be completed", item.ProfileID, item.Status),
		)
	}
	if open := Unresolved(item); len(open) > 0 {
		return item, model.NewBlockingConcernsError(item.ProfileID, open)
	}
	next := item.Clone()
	now := m.now()
	next.Status = model.ReviewStatusReviewed
	next.ReviewEndAt = &now
	next.Participants = addParticipant(next.Participants, actor)
	return next, nil
}

// AddComment attaches a comment in any state. The review status is left
// unchanged. An empty tag defaults to FYI.
func (m *Machine) AddComment(item model.ReviewItem, actor string, in model.CommentInput) (model.ReviewItem, model.Comment, error) {
	text := strings.TrimSpace(in.Text)
	tag := in.Tag
	if tag == "" {
		tag = model.CommentTagFYI
	}

	var details []model.FieldError
	if text == "" {
		details = append(details, model.FieldError{Field: "text", Code: "REQUIRED", Message: "Comment text is required"})
	}
	if !tag.Valid() {
		details = append(details, model.FieldError{Field: "tag", Code: "INVALID", Message: fmt.Sprintf("Unknown comment tag %q", tag)})
	}
	if len(details) > 0 {
		return item, model.Comment{}, model.NewValidationError(details)
	}

	c := model.Comment{
		ID:        m.newID(),
		Author:    actor,
		Text:      text,
		Tag:       tag,
		Blocking:  in.Blocking,
		CreatedAt: m.now(),
	}
	next := item.Clone()
	next.Comments = append(next.Comments, c)
	next.Participants = addParticipant(next.Participants, actor)
	return next, c, nil
}

// Acknowledge marks a comment acknowledged. Acknowledging twice is a no-op
// that keeps the first acknowledgment.
func (m *Machine) Acknowledge(item model.ReviewItem, commentID, actor string) (model.ReviewItem, error) {
	idx := -1
	for i, c := range item.Comments {
		if c.ID == commentID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return item, model.NewCommentNotFoundError(item.ProfileID, commentID)
	}
	if item.Comments[idx].Acknowledged {
		return item, nil
	}
	next := item.Clone()
	now := m.now()
	next.Comments[idx].Acknowledged = true
	next.Comments[idx].AcknowledgedBy = actor
	next.Comments[idx].AcknowledgedAt = &now
	next.Participants = addParticipant(next.Participants, actor)
	return next, nil
}

// Unresolved returns the IDs of blocking comments not yet acknowledged, in
// comment order.
func Unresolved(item model.ReviewItem) []string {
	var ids []string
	for _, c := range item.Comments {
		if c.Unresolved() {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

func addParticipant(participants []string, actor string) []string {
	if actor == "" {
		return participants
	}
	for _, p := range participants {
		if p == actor {
			return participants
		}
	}
	return append(participants, actor)
}
