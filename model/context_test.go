package model

import (
	"context"
	"testing"
)

func TestRequestContext_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rc      *RequestContext
		wantErr bool
	}{
		{
			name:    "valid context",
			rc:      &RequestContext{SubjectID: "user-1", Surface: SurfaceWorkspace},
			wantErr: false,
		},
		{
			name:    "missing SubjectID",
			rc:      &RequestContext{Surface: SurfaceReview},
			wantErr: true,
		},
		{
			name:    "missing Surface",
			rc:      &RequestContext{SubjectID: "user-1"},
			wantErr: true,
		},
		{
			name:    "missing both",
			rc:      &RequestContext{},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rc.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRequestContext_Actor(t *testing.T) {
	rc := &RequestContext{SubjectID: "user-1"}
	if got := rc.Actor(); got != "user-1" {
		t.Errorf("Actor() = %q, want user-1", got)
	}
	rc.DisplayName = "Dr. Okafor"
	if got := rc.Actor(); got != "Dr. Okafor" {
		t.Errorf("Actor() = %q, want Dr. Okafor", got)
	}
}

func TestRequestContext_HasRole(t *testing.T) {
	rc := &RequestContext{
		Roles: []string{"planner", "reviewer"},
	}
	if !rc.HasRole("planner") {
		t.Error("HasRole(planner) = false, want true")
	}
	if rc.HasRole("approver") {
		t.Error("HasRole(approver) = true, want false")
	}
}

func TestWithRequestContext_and_RequestContextFrom(t *testing.T) {
	rctx := &RequestContext{SubjectID: "user-1", Surface: SurfaceWorkspace}
	ctx := WithRequestContext(context.Background(), rctx)
	if got := RequestContextFrom(ctx); got != rctx {
		t.Errorf("RequestContextFrom() = %v, want %v", got, rctx)
	}
}

func TestRequestContextFrom_absent(t *testing.T) {
	if got := RequestContextFrom(context.Background()); got != nil {
		t.Errorf("RequestContextFrom(empty context) = %v, want nil", got)
	}
}
