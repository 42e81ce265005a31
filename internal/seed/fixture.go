package seed

import (
	"time"

	"github.com/pitabwire/trialscope/internal/store"
	"github.com/pitabwire/trialscope/model"
)

// File is one seed file. A file may hold several scenarios.
type File struct {
	Version   string            `yaml:"version"`
	Scenarios []ScenarioFixture `yaml:"scenarios"`

	// Computed at load time.
	Checksum   string `yaml:"-"`
	SourceFile string `yaml:"-"`
}

// ScenarioFixture is the stored state of one scenario.
type ScenarioFixture struct {
	ID         string                              `yaml:"id"`
	Name       string                              `yaml:"name"`
	Steps      map[model.StepName]model.StepStatus `yaml:"steps"`
	Artifacts  model.Artifacts                     `yaml:"artifacts"`
	Profiles   []model.ProfileOption               `yaml:"profiles"`
	Countries  []model.CountrySelection            `yaml:"countries"`
	Candidates []model.SiteCandidate               `yaml:"candidates"`
	Shortlist  []ShortlistFixture                  `yaml:"shortlist"`
	Reviews    []ReviewFixture                     `yaml:"reviews"`
}

// ShortlistFixture is a seeded shortlist entry.
type ShortlistFixture struct {
	SiteID     string               `yaml:"site_id"`
	SiteName   string               `yaml:"site_name"`
	Country    string               `yaml:"country"`
	City       string               `yaml:"city"`
	Source     string               `yaml:"source"`
	Decision   model.DecisionStatus `yaml:"decision"`
	DecisionBy string               `yaml:"decision_by"`
	Notes      string               `yaml:"notes"`
	AddedBy    string               `yaml:"added_by"`
}

// ReviewFixture is a seeded review item.
type ReviewFixture struct {
	ProfileID    string             `yaml:"profile_id"`
	Status       model.ReviewStatus `yaml:"status"`
	Participants []string           `yaml:"participants"`
	Comments     []CommentFixture   `yaml:"comments"`
}

// CommentFixture is a seeded review comment.
type CommentFixture struct {
	ID             string           `yaml:"id"`
	Author         string           `yaml:"author"`
	Text           string           `yaml:"text"`
	Tag            model.CommentTag `yaml:"tag"`
	Blocking       bool             `yaml:"blocking"`
	Acknowledged   bool             `yaml:"acknowledged"`
	AcknowledgedBy string           `yaml:"acknowledged_by"`
}

// Records converts validated seed files into store records. Every timestamp
// is set to now; defaults fill empty status and source fields.
func Records(files []File, now time.Time) []store.Record {
	var out []store.Record
	for _, f := range files {
		for _, sf := range f.Scenarios {
			out = append(out, sf.record(now))
		}
	}
	return out
}

func (sf ScenarioFixture) record(now time.Time) store.Record {
	steps := make(map[model.StepName]model.StepStatus, len(sf.Steps))
	for k, v := range sf.Steps {
		steps[k] = v
	}
	rec := store.NewRecord(model.Scenario{
		ID:        sf.ID,
		Name:      sf.Name,
		Steps:     steps,
		Artifacts: sf.Artifacts,
		CreatedAt: now,
		UpdatedAt: now,
	})

	for _, p := range sf.Profiles {
		p = p.Clone()
		if p.Status == "" {
			p.Status = model.ProfileStatusActive
		}
		if p.Source == "" {
			p.Source = model.ProfileSourceManual
		}
		p.LastModified = now
		rec.Profiles = append(rec.Profiles, p)
	}
	rec.Countries = append(rec.Countries, sf.Countries...)
	rec.Candidates = append(rec.Candidates, sf.Candidates...)

	for _, e := range sf.Shortlist {
		entry := model.ShortlistEntry{
			SiteID:         e.SiteID,
			SiteName:       e.SiteName,
			Country:        e.Country,
			City:           e.City,
			Source:         e.Source,
			DecisionStatus: e.Decision,
			Notes:          e.Notes,
			AddedAt:        now,
			AddedBy:        e.AddedBy,
		}
		if entry.Source == "" {
			entry.Source = model.ShortlistSourceRecommendation
		}
		if entry.DecisionStatus == "" {
			entry.DecisionStatus = model.DecisionPending
		}
		if entry.Decided() {
			at := now
			entry.DecisionBy = e.DecisionBy
			entry.DecisionAt = &at
		}
		rec.Shortlist = append(rec.Shortlist, entry)
	}

	for _, r := range sf.Reviews {
		item := model.ReviewItem{
			ProfileID:    r.ProfileID,
			Status:       r.Status,
			Participants: append([]string(nil), r.Participants...),
		}
		if item.Status == "" {
			item.Status = model.ReviewStatusDraft
		}
		if item.Status != model.ReviewStatusDraft {
			start := now
			item.ReviewStartAt = &start
		}
		if item.Status == model.ReviewStatusReviewed {
			end := now
			item.ReviewEndAt = &end
		}
		for _, c := range r.Comments {
			cm := model.Comment{
				ID:        c.ID,
				Author:    c.Author,
				Text:      c.Text,
				Tag:       c.Tag,
				Blocking:  c.Blocking,
				CreatedAt: now,
			}
			if cm.Tag == "" {
				cm.Tag = model.CommentTagFYI
			}
			if c.Acknowledged {
				at := now
				cm.Acknowledged = true
				cm.AcknowledgedBy = c.AcknowledgedBy
				cm.AcknowledgedAt = &at
			}
			item.Comments = append(item.Comments, cm)
		}
		rec.Reviews[r.ProfileID] = item
	}
	return rec
}
