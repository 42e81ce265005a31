package model

import "strings"

// Capabilities checked by the workspace service.
const (
	CapWorkspaceEdit   = "workspace:edit"
	CapReviewComment   = "review:comment"
	CapReviewApprove   = "review:approve"
	CapShortlistEdit   = "shortlist:edit"
	CapShortlistDecide = "shortlist:decide"
)

// CapabilitySet is the set of capabilities granted to an actor. Keys are
// capability strings such as "shortlist:decide" and may end in a wildcard
// ("review:*", or "*" for everything).
type CapabilitySet map[string]bool

// Has returns true if the set contains the capability or a wildcard
// covering it.
func (cs CapabilitySet) Has(cap string) bool {
	if cs[cap] {
		return true
	}
	for pattern := range cs {
		if matchWildcard(pattern, cap) {
			return true
		}
	}
	return false
}

// HasAll returns true if every given capability is covered.
func (cs CapabilitySet) HasAll(caps ...string) bool {
	for _, cap := range caps {
		if !cs.Has(cap) {
			return false
		}
	}
	return true
}

// matchWildcard returns true if pattern, which must be "*" or end in ":*",
// covers cap. Exact matches are handled by the map lookup in Has.
func matchWildcard(pattern, cap string) bool {
	if pattern == "*" {
		return true
	}
	if !strings.HasSuffix(pattern, ":*") {
		return false
	}
	return strings.HasPrefix(cap, pattern[:len(pattern)-1])
}

// CapabilityResolver resolves the capability set of an actor.
type CapabilityResolver interface {
	Resolve(rctx *RequestContext) (CapabilitySet, error)
}

// PolicyEvaluator maps an actor's roles to capabilities.
type PolicyEvaluator interface {
	ResolveCapabilities(rctx *RequestContext) (CapabilitySet, error)

	// Sync reloads policy data from its source.
	Sync() error
}
