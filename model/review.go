package model

import "time"

// ReviewStatus is the lifecycle status of a review item.
type ReviewStatus string

// Review status values. Reviewed is terminal.
const (
	ReviewStatusDraft       ReviewStatus = "draft"
	ReviewStatusUnderReview ReviewStatus = "under_review"
	ReviewStatusReviewed    ReviewStatus = "reviewed"
)

// CommentTag classifies a review comment.
type CommentTag string

// Comment tags.
const (
	CommentTagConcern    CommentTag = "concern"
	CommentTagSuggestion CommentTag = "suggestion"
	CommentTagQuestion   CommentTag = "question"
	CommentTagFYI        CommentTag = "fyi"
)

// Valid reports whether t is a known comment tag.
func (t CommentTag) Valid() bool {
	switch t {
	case CommentTagConcern, CommentTagSuggestion, CommentTagQuestion, CommentTagFYI:
		return true
	}
	return false
}

// Comment is a reviewer remark on a profile. A blocking comment must be
// acknowledged before the profile can be marked reviewed.
type Comment struct {
	ID             string     `json:"id"`
	Author         string     `json:"author"`
	Text           string     `json:"text"`
	Tag            CommentTag `json:"tag"`
	Blocking       bool       `json:"blocking"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Unresolved reports whether the comment still blocks review completion.
func (c Comment) Unresolved() bool {
	return c.Blocking && !c.Acknowledged
}

// CommentInput is the caller-supplied part of a new comment.
type CommentInput struct {
	Text     string     `json:"text" yaml:"text"`
	Tag      CommentTag `json:"tag" yaml:"tag"`
	Blocking bool       `json:"blocking" yaml:"blocking"`
}

// ReviewItem tracks the review of one profile option.
type ReviewItem struct {
	ProfileID     string       `json:"profile_id"`
	Status        ReviewStatus `json:"status"`
	Comments      []Comment    `json:"comments"`
	Participants  []string     `json:"participants"`
	ReviewStartAt *time.Time   `json:"review_start_at,omitempty"`
	ReviewEndAt   *time.Time   `json:"review_end_at,omitempty"`
}

// Clone returns a deep copy of the review item.
func (r ReviewItem) Clone() ReviewItem {
	out := r
	out.Comments = append([]Comment(nil), r.Comments...)
	out.Participants = append([]string(nil), r.Participants...)
	return out
}
