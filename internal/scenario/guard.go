// Package scenario guards changes of the active scenario against loss of
// unsaved work and remembers where the user left each scenario.
package scenario

import (
	"fmt"
	"sync"

	"github.com/pitabwire/trialscope/model"
)

// SwitchOutcome reports how a switch request was handled.
type SwitchOutcome string

// Switch outcomes.
const (
	SwitchImmediate           SwitchOutcome = "immediate"
	SwitchPendingConfirmation SwitchOutcome = "pending_confirmation"
)

// State is a point-in-time view of the guard.
type State struct {
	ActiveScenarioID  string `json:"active_scenario_id"`
	PendingScenarioID string `json:"pending_scenario_id,omitempty"`
	Unsaved           bool   `json:"unsaved"`
	Route             string `json:"route"`
}

// Guard owns the active scenario selection.
type Guard struct {
	mu           sync.Mutex
	active       string
	pending      string
	unsaved      bool
	lastRoute    map[string]string
	defaultRoute string
	exists       func(id string) bool
}

// NewGuard creates a guard with no active scenario. exists reports whether a
// scenario ID is known; defaultRoute is where a never-visited scenario opens.
func NewGuard(defaultRoute string, exists func(id string) bool) *Guard {
	return &Guard{
		lastRoute:    make(map[string]string),
		defaultRoute: defaultRoute,
		exists:       exists,
	}
}

// RequestSwitch asks to make target the active scenario. Without unsaved
// changes the switch happens at once; otherwise it is held until
// ConfirmSwitch or CancelSwitch. A new request replaces an earlier pending
// one.
func (g *Guard) RequestSwitch(target string) (SwitchOutcome, error) {
	if g.exists != nil && !g.exists(target) {
		return "", model.NewNotFoundError(fmt.Sprintf("scenario %q not found", target))
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if target == g.active {
		g.pending = ""
		return SwitchImmediate, nil
	}
	if g.unsaved {
		g.pending = target
		return SwitchPendingConfirmation, nil
	}
	g.active = target
	g.pending = ""
	return SwitchImmediate, nil
}

// ConfirmSwitch performs the pending switch and discards the unsaved flag.
// It returns the newly active scenario ID.
func (g *Guard) ConfirmSwitch() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending == "" {
		return "", model.NewInvalidTransitionError("no scenario switch is pending")
	}
	g.active = g.pending
	g.pending = ""
	g.unsaved = false
	return g.active, nil
}

// CancelSwitch drops the pending target. The active scenario and its unsaved
// flag are left as they were.
func (g *Guard) CancelSwitch() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending == "" {
		return model.NewInvalidTransitionError("no scenario switch is pending")
	}
	g.pending = ""
	return nil
}

// MarkUnsaved flags the active scenario as having unsaved changes.
func (g *Guard) MarkUnsaved() {
	g.mu.Lock()
	g.unsaved = true
	g.mu.Unlock()
}

// MarkSaved clears the unsaved flag.
func (g *Guard) MarkSaved() {
	g.mu.Lock()
	g.unsaved = false
	g.mu.Unlock()
}

// RecordRoute remembers route as the last one visited in the active
// scenario.
func (g *Guard) RecordRoute(route string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active != "" {
		g.lastRoute[g.active] = route
	}
}

// ResumeRoute returns the last route visited in scenarioID, or the default
// route if it was never visited.
func (g *Guard) ResumeRoute(scenarioID string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.resumeRouteLocked(scenarioID)
}

func (g *Guard) resumeRouteLocked(scenarioID string) string {
	if r, ok := g.lastRoute[scenarioID]; ok {
		return r
	}
	return g.defaultRoute
}

// State returns the current guard state.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return State{
		ActiveScenarioID:  g.active,
		PendingScenarioID: g.pending,
		Unsaved:           g.unsaved,
		Route:             g.resumeRouteLocked(g.active),
	}
}

// Active returns the active scenario ID.
func (g *Guard) Active() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}
