// Package command replays scripted user intents against the workspace. A
// script stands in for the rendering layer: each command is one button press
// or form submission, applied through the workspace service.
package command

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pitabwire/trialscope/model"
)

// Intents understood by the runner.
const (
	IntentCreateScenario         = "create_scenario"
	IntentSetStepStatus          = "set_step_status"
	IntentSetArtifact            = "set_artifact"
	IntentAddProfile             = "add_profile"
	IntentDuplicateProfile       = "duplicate_profile"
	IntentDeriveProfile          = "derive_profile"
	IntentEditProfile            = "edit_profile"
	IntentSetActive              = "set_active"
	IntentDeactivateProfile      = "deactivate_profile"
	IntentArchiveProfile         = "archive_profile"
	IntentSetCountries           = "set_countries"
	IntentSelectCountry          = "select_country"
	IntentApproveCountries       = "approve_countries"
	IntentLoadCandidates         = "load_candidates"
	IntentPublishRecommendations = "publish_recommendations"
	IntentAddToShortlist         = "add_to_shortlist"
	IntentAddManualSite          = "add_manual_site"
	IntentRemoveFromShortlist    = "remove_from_shortlist"
	IntentInclude                = "include"
	IntentExclude                = "exclude"
	IntentAddNote                = "add_note"
	IntentStartReview            = "start_review"
	IntentMarkReviewed           = "mark_reviewed"
	IntentAddComment             = "add_comment"
	IntentAcknowledgeComment     = "acknowledge_comment"
	IntentNavigate               = "navigate"
	IntentRequestSwitch          = "request_switch"
	IntentConfirmSwitch          = "confirm_switch"
	IntentCancelSwitch           = "cancel_switch"
	IntentSave                   = "save"
	IntentEvaluateGates          = "evaluate_gates"
)

// Script is a named sequence of commands with the actors that issue them.
type Script struct {
	Name     string               `yaml:"name"`
	Actors   map[string]ActorSpec `yaml:"actors"`
	Commands []Command            `yaml:"commands"`

	// Computed at load time.
	Checksum   string `yaml:"-"`
	SourceFile string `yaml:"-"`
}

// ActorSpec describes a user issuing commands.
type ActorSpec struct {
	SubjectID   string   `yaml:"subject_id"`
	DisplayName string   `yaml:"display_name"`
	Roles       []string `yaml:"roles"`
	Surface     string   `yaml:"surface"`
}

// RequestContext builds the request context of the actor.
func (a ActorSpec) RequestContext() *model.RequestContext {
	surface := a.Surface
	if surface == "" {
		surface = model.SurfaceSession
	}
	return &model.RequestContext{
		SubjectID:   a.SubjectID,
		DisplayName: a.DisplayName,
		Roles:       a.Roles,
		Surface:     surface,
	}
}

// Command is one user intent. Only the fields the intent needs are read.
// Reference fields (scenario, profile, profiles, site, comment) accept
// expressions; see Resolver.
type Command struct {
	Intent string `yaml:"intent" json:"intent"`
	Actor  string `yaml:"actor,omitempty" json:"actor,omitempty"`

	Scenario string   `yaml:"scenario,omitempty" json:"scenario,omitempty"`
	Profile  string   `yaml:"profile,omitempty" json:"profile,omitempty"`
	Profiles []string `yaml:"profiles,omitempty" json:"profiles,omitempty"`
	Site     string   `yaml:"site,omitempty" json:"site,omitempty"`
	Comment  string   `yaml:"comment,omitempty" json:"comment,omitempty"`

	Name       string                   `yaml:"name,omitempty" json:"name,omitempty"`
	Step       model.StepName           `yaml:"step,omitempty" json:"step,omitempty"`
	Status     model.StepStatus         `yaml:"status,omitempty" json:"status,omitempty"`
	Artifact   string                   `yaml:"artifact,omitempty" json:"artifact,omitempty"`
	Value      bool                     `yaml:"value,omitempty" json:"value,omitempty"`
	Kind       model.ProfileKind        `yaml:"kind,omitempty" json:"kind,omitempty"`
	Source     model.ProfileSource      `yaml:"source,omitempty" json:"source,omitempty"`
	Input      model.ProfileInput       `yaml:"input,omitempty" json:"input,omitempty"`
	Note       model.CommentInput       `yaml:"note,omitempty" json:"note,omitempty"`
	Text       string                   `yaml:"text,omitempty" json:"text,omitempty"`
	Countries  []model.CountrySelection `yaml:"countries,omitempty" json:"countries,omitempty"`
	Country    string                   `yaml:"country,omitempty" json:"country,omitempty"`
	Selected   bool                     `yaml:"selected,omitempty" json:"selected,omitempty"`
	Candidates []model.SiteCandidate    `yaml:"candidates,omitempty" json:"candidates,omitempty"`
	Manual     model.SiteCandidate      `yaml:"manual,omitempty" json:"manual,omitempty"`
	Route      string                   `yaml:"route,omitempty" json:"route,omitempty"`

	// SaveAs names the ID the command creates so later commands can refer
	// to it as ref.<name>.
	SaveAs string `yaml:"save_as,omitempty" json:"save_as,omitempty"`

	// IdempotencyKey deduplicates a double-submitted command.
	IdempotencyKey string `yaml:"idempotency_key,omitempty" json:"-"`

	// ExpectError is the error code the command is expected to fail with.
	ExpectError string `yaml:"expect_error,omitempty" json:"expect_error,omitempty"`
}

// LoadScript reads and validates a session script. Unknown YAML fields are
// rejected.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	s, err := ParseScript(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	s.SourceFile = path
	return s, nil
}

// ParseScript decodes and validates a session script.
func ParseScript(data []byte) (*Script, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Script
	if err := dec.Decode(&s); err != nil {
		return nil, err
	}
	s.Checksum = fmt.Sprintf("%x", sha256.Sum256(data))
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks that every command names a known intent and a declared
// actor. All problems are reported together.
func (s *Script) Validate() error {
	var errs []error
	if len(s.Commands) == 0 {
		errs = append(errs, errors.New("script has no commands"))
	}
	for name, a := range s.Actors {
		if a.SubjectID == "" {
			errs = append(errs, fmt.Errorf("actor %q: subject_id is required", name))
		}
	}
	for i, c := range s.Commands {
		if _, ok := handlers[c.Intent]; !ok {
			errs = append(errs, fmt.Errorf("commands[%d]: unknown intent %q", i, c.Intent))
		}
		if c.Actor != "" {
			if _, ok := s.Actors[c.Actor]; !ok {
				errs = append(errs, fmt.Errorf("commands[%d]: unknown actor %q", i, c.Actor))
			}
		}
	}
	return errors.Join(errs...)
}
