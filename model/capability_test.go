package model

import "testing"

func TestCapabilitySet_Has_exact(t *testing.T) {
	cs := CapabilitySet{CapShortlistDecide: true}
	if !cs.Has(CapShortlistDecide) {
		t.Error("Has(shortlist:decide) = false, want true")
	}
	if cs.Has(CapReviewApprove) {
		t.Error("Has(review:approve) = true, want false")
	}
}

func TestCapabilitySet_Has_nil(t *testing.T) {
	var cs CapabilitySet
	if cs.Has(CapWorkspaceEdit) {
		t.Error("nil set should not match anything")
	}
}

func TestCapabilitySet_HasAll(t *testing.T) {
	cs := CapabilitySet{"review:*": true, CapWorkspaceEdit: true}
	if !cs.HasAll(CapReviewApprove, CapReviewComment, CapWorkspaceEdit) {
		t.Error("HasAll should be true when every capability is covered")
	}
	if cs.HasAll(CapReviewApprove, CapShortlistDecide) {
		t.Error("HasAll should be false when one is missing")
	}
	if !cs.HasAll() {
		t.Error("HasAll with no args should be true")
	}
}

func TestMatchWildcard(t *testing.T) {
	tests := []struct {
		pattern string
		cap     string
		want    bool
	}{
		{"*", "shortlist:decide", true},
		{"shortlist:*", "shortlist:decide", true},
		{"shortlist:*", "review:approve", false},
		{"shortlist:decide", "shortlist:decide", false},
		{"shortlist", "shortlist:decide", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"_vs_"+tt.cap, func(t *testing.T) {
			if got := matchWildcard(tt.pattern, tt.cap); got != tt.want {
				t.Errorf("matchWildcard(%q, %q) = %v, want %v", tt.pattern, tt.cap, got, tt.want)
			}
		})
	}
}
