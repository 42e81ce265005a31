package command

import (
	"context"

	"github.com/pitabwire/trialscope/internal/scenario"
	"github.com/pitabwire/trialscope/internal/workspace"
	"github.com/pitabwire/trialscope/model"
)

// call is one command bound to its actor and resolved scenario.
type call struct {
	svc      *workspace.Service
	rctx     *model.RequestContext
	cmd      Command
	scenario string
	refs     *Resolver
}

func (c *call) profile() (string, error) { return c.ref("profile", c.cmd.Profile) }
func (c *call) site() (string, error)    { return c.ref("site", c.cmd.Site) }
func (c *call) comment() (string, error) { return c.ref("comment", c.cmd.Comment) }

func (c *call) ref(field, expr string) (string, error) {
	if expr == "" {
		return "", model.NewBadRequestError(field + " is required")
	}
	id, err := c.refs.Resolve(expr)
	if err != nil {
		return "", model.NewBadRequestError(err.Error())
	}
	return id, nil
}

// handler applies one intent. It returns the result shown to the caller and
// the ID the command created or selected, if any.
type handler struct {
	// scenario marks intents that act on a scenario.
	scenario bool
	// selects makes the returned ID the session's current scenario.
	selects bool
	fn      func(ctx context.Context, c *call) (result any, id string, err error)
}

var handlers = map[string]handler{
	IntentCreateScenario: {selects: true, fn: func(ctx context.Context, c *call) (any, string, error) {
		scn, err := c.svc.CreateScenario(ctx, c.rctx, c.cmd.Name)
		return scn, scn.ID, err
	}},
	IntentSetStepStatus: {scenario: true, fn: func(ctx context.Context, c *call) (any, string, error) {
		return nil, "", c.svc.SetStepStatus(ctx, c.rctx, c.scenario, c.cmd.Step, c.cmd.Status)
	}},
	IntentSetArtifact: {scenario: true, fn: func(ctx context.Context, c *call) (any, string, error) {
		return nil, "", c.svc.SetArtifact(ctx, c.rctx, c.scenario, c.cmd.Artifact, c.cmd.Value)
	}},

	// Profiles.
	IntentAddProfile: {scenario: true, fn: func(ctx context.Context, c *call) (any, string, error) {
		p, err := c.svc.AddProfile(ctx, c.rctx, c.scenario, c.cmd.Kind, c.cmd.Source, c.cmd.Input)
		return p, p.ID, err
	}},
	IntentDuplicateProfile: {scenario: true, fn: func(ctx context.Context, c *call) (any, string, error) {
		id, err := c.profile()
		if err != nil {
			return nil, "", err
		}
		p, err := c.svc.DuplicateProfile(ctx, c.rctx, c.scenario, id)
		return p, p.ID, err
	}},
	IntentDeriveProfile: {scenario: true, fn: func(ctx context.Context, c *call) (any, string, error) {
		id, err := c.profile()
		if err != nil {
			return nil, "", err
		}
		p, err := c.svc.DeriveProfile(ctx, c.rctx, c.scenario, id, c.cmd.Input)
		return p, p.ID, err
	}},
	IntentEditProfile: {scenario: true, fn: func(ctx context.Context, c *call) (any, string, error) {
		id, err := c.profile()
		if err != nil {
			return nil, "", err
		}
		p, err := c.svc.EditProfile(ctx, c.rctx, c.scenario, id, c.cmd.Input)
		return p, p.ID, err
	}},
	IntentSetActive: {scenario: true, fn: func(ctx context.Context, c *call) (any, string, error) {
		ids, err := c.refs.ResolveAll(c.cmd.Profiles)
		if err != nil {
			return nil, "", model.NewBadRequestError(err.Error())
		}
		return nil, "", c.svc.TrySetActive(ctx, c.rctx, c.scenario, ids)
	}},
	IntentDeactivateProfile: {scenario: true, fn: func(ctx context.Context, c *call) (any, string, error) {
		id, err := c.profile()
		if err != nil {
			return nil, "", err
		}
		return nil, "", c.svc.DeactivateProfile(ctx, c.rctx, c.scenario, id)
	}},
	IntentArchiveProfile: {scenario: true, fn: func(ctx context.Context, c *call) (any, string, error) {
		id, err := c.profile()
		if err != nil {
			return nil, "", err
		}
		return nil, "", c.svc.ArchiveProfile(ctx, c.rctx, c.scenario, id)
	}},

	// Countries and site recommendations.
	IntentSetCountries: {scenario: true, fn: func(ctx context.Context, c *call) (any, string, error) {
		return nil, "", c.svc.SetCountries(ctx, c.rctx, c.scenario, c.cmd.Countries)
	}},
	IntentSelectCountry: {scenario: true, fn: func(ctx context.Context, c *call) (any, string, error) {
		return nil, "", c.svc.SelectCountry(ctx, c.rctx, c.scenario, c.cmd.Country, c.cmd.Selected)
	}},
	IntentApproveCountries: {scenario: true, fn: func(ctx context.Context, c *call) (any, string, error) {
		return nil, "", c.svc.ApproveCountries(ctx, c.rctx, c.scenario)
	}},
	IntentLoadCandidates: {scenario: true, fn: func(ctx context.Context, c *call) (any, string, error) {
		return nil, "", c.svc.LoadCandidates(ctx, c.rctx, c.scenario, c.cmd.Candidates)
	}},
	IntentPublishRecommendations: {scenario: true, fn: func(ctx context.Context, c *call) (any, string, error) {
		return nil, "", c.svc.PublishRecommendations(ctx, c.rctx, c.scenario)
	}},

	// Shortlist.
	IntentAddToShortlist: {scenario: true, fn: func(ctx context.Context, c *call) (any, string, error) {
		id, err := c.site()
		if err != nil {
			return nil, "", err
		}
		e, err := c.svc.AddToShortlist(ctx, c.rctx, c.scenario, id)
		return e, e.SiteID, err
	}},
	IntentAddManualSite: {scenario: true, fn: func(ctx context.Context, c *call) (any, string, error) {
		e, err := c.svc.AddManualSite(ctx, c.rctx, c.scenario, c.cmd.Manual)
		return e, e.SiteID, err
	}},
	IntentRemoveFromShortlist: {scenario: true, fn: func(ctx context.Context, c *call) (any, string, error) {
		id, err := c.site()
		if err != nil {
			return nil, "", err
		}
		return nil, "", c.svc.RemoveFromShortlist(ctx, c.rctx, c.scenario, id)
	}},
	IntentInclude: {scenario: true, fn: func(ctx context.Context, c *call) (any, string, error) {
		id, err := c.site()
		if err != nil {
			return nil, "", err
		}
		return nil, "", c.svc.Include(ctx, c.rctx, c.scenario, id)
	}},
	IntentExclude: {scenario: true, fn: func(ctx context.Context, c *call) (any, string, error) {
		id, err := c.site()
		if err != nil {
			return nil, "", err
		}
		return nil, "", c.svc.Exclude(ctx, c.rctx, c.scenario, id)
	}},
	IntentAddNote: {scenario: true, fn: func(ctx context.Context, c *call) (any, string, error) {
		id, err := c.site()
		if err != nil {
			return nil, "", err
		}
		return nil, "", c.svc.AddNote(ctx, c.rctx, c.scenario, id, c.cmd.Text)
	}},

	// Review.
	IntentStartReview: {scenario: true, fn: func(ctx context.Context, c *call) (any, string, error) {
		id, err := c.profile()
		if err != nil {
			return nil, "", err
		}
		return nil, "", c.svc.StartReview(ctx, c.rctx, c.scenario, id)
	}},
	IntentMarkReviewed: {scenario: true, fn: func(ctx context.Context, c *call) (any, string, error) {
		id, err := c.profile()
		if err != nil {
			return nil, "", err
		}
		return nil, "", c.svc.MarkReviewed(ctx, c.rctx, c.scenario, id)
	}},
	IntentAddComment: {scenario: true, fn: func(ctx context.Context, c *call) (any, string, error) {
		id, err := c.profile()
		if err != nil {
			return nil, "", err
		}
		cm, err := c.svc.AddComment(ctx, c.rctx, c.scenario, id, c.cmd.Note)
		return cm, cm.ID, err
	}},
	IntentAcknowledgeComment: {scenario: true, fn: func(ctx context.Context, c *call) (any, string, error) {
		profileID, err := c.profile()
		if err != nil {
			return nil, "", err
		}
		commentID, err := c.comment()
		if err != nil {
			return nil, "", err
		}
		return nil, "", c.svc.AcknowledgeComment(ctx, c.rctx, c.scenario, profileID, commentID)
	}},

	// Navigation.
	IntentNavigate: {scenario: true, fn: func(ctx context.Context, c *call) (any, string, error) {
		d, err := c.svc.Navigate(ctx, c.rctx, c.scenario, c.cmd.Route)
		return d, "", err
	}},
	IntentRequestSwitch: {scenario: true, selects: true, fn: func(ctx context.Context, c *call) (any, string, error) {
		outcome, err := c.svc.RequestSwitch(ctx, c.rctx, c.scenario)
		if err != nil || outcome != scenario.SwitchImmediate {
			return outcome, "", err
		}
		return outcome, c.scenario, nil
	}},
	IntentConfirmSwitch: {selects: true, fn: func(ctx context.Context, c *call) (any, string, error) {
		active, err := c.svc.ConfirmSwitch(ctx, c.rctx)
		return active, active, err
	}},
	IntentCancelSwitch: {fn: func(ctx context.Context, c *call) (any, string, error) {
		return nil, "", c.svc.CancelSwitch(ctx, c.rctx)
	}},
	IntentSave: {fn: func(ctx context.Context, c *call) (any, string, error) {
		return nil, "", c.svc.Save(ctx, c.rctx)
	}},
	IntentEvaluateGates: {scenario: true, fn: func(ctx context.Context, c *call) (any, string, error) {
		gates, err := c.svc.StepGates(ctx, c.scenario)
		return gates, "", err
	}},
}
