package model

import (
	"context"
	"errors"
	"fmt"
)

// Surfaces a user can act from. Audit entries record which one originated
// an action.
const (
	SurfaceWorkspace = "workspace"
	SurfaceReview    = "review"
	SurfaceShortlist = "shortlist"
	SurfaceSession   = "session"
)

// RequestContext identifies who is acting on the workspace and from which
// surface. It is immutable after construction and safe for concurrent reads.
type RequestContext struct {
	SubjectID     string
	DisplayName   string
	Roles         []string
	Surface       string
	CorrelationID string
	TraceID       string
}

// Validate checks that all mandatory fields are present.
func (rc *RequestContext) Validate() error {
	var errs []error
	if rc.SubjectID == "" {
		errs = append(errs, fmt.Errorf("SubjectID is required"))
	}
	if rc.Surface == "" {
		errs = append(errs, fmt.Errorf("Surface is required"))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Actor returns the name stamped on decisions and audit entries: the display
// name when set, otherwise the subject ID.
func (rc *RequestContext) Actor() string {
	if rc.DisplayName != "" {
		return rc.DisplayName
	}
	return rc.SubjectID
}

// HasRole returns true if the RequestContext contains the given role.
func (rc *RequestContext) HasRole(role string) bool {
	for _, r := range rc.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type contextKey struct{}

// WithRequestContext attaches a RequestContext to the given context.
func WithRequestContext(ctx context.Context, rctx *RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rctx)
}

// RequestContextFrom extracts the RequestContext from the context, or returns nil
// if not present.
func RequestContextFrom(ctx context.Context) *RequestContext {
	rctx, _ := ctx.Value(contextKey{}).(*RequestContext)
	return rctx
}
