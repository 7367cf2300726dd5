package plan

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"netsleuth/internal/logging"
	"netsleuth/internal/oracle"
	"netsleuth/internal/session"
)

// Selector is the oracle capability that picks a plan intent for a query.
type Selector interface {
	SelectPlan(ctx context.Context, query, catalog, insights string, devices []string) (*oracle.PlanChoice, error)
}

// Planner assigns each targeted device its plan and objective.
type Planner struct {
	Repo          *Repository
	Selector      Selector
	DefaultIntent string
}

func NewPlanner(repo *Repository, sel Selector, defaultIntent string) *Planner {
	return &Planner{Repo: repo, Selector: sel, DefaultIntent: defaultIntent}
}

// Plan selects a plan for the session and populates every device's
// intent, steps and objective. A malformed plan document is fatal.
func (p *Planner) Plan(ctx context.Context, sess *session.Session) error {
	var names []string
	for _, d := range sess.Devices {
		names = append(names, d.DeviceName)
	}

	intent := p.DefaultIntent
	var objectives map[string]string
	choice, err := p.Selector.SelectPlan(ctx, sess.UserQuery, p.Repo.CatalogPrompt(), sess.Insights, names)
	if err != nil {
		logging.L.Warnw("plan selection failed, using default intent",
			"intent", p.DefaultIntent, "err", err)
	} else {
		intent = choice.Intent
		objectives = choice.Objectives
	}

	pl, err := p.Repo.Load(intent)
	if err != nil {
		var mpe *MalformedPlanError
		if errors.As(err, &mpe) {
			return err
		}
		// Oracle picked an unknown intent: fall back before failing.
		if intent != p.DefaultIntent {
			logging.L.Warnw("selected plan not loadable, using default intent",
				"selected", intent, "err", err)
			pl, err = p.Repo.Load(p.DefaultIntent)
		}
		if err != nil {
			return fmt.Errorf("load plan: %w", err)
		}
	}

	for _, dev := range sess.Devices {
		dev.PlanIntent = pl.Intent
		dev.PlanSteps = pl.Steps
		dev.Objective = pl.Description
		if obj, ok := objectives[dev.DeviceName]; ok && strings.TrimSpace(obj) != "" {
			dev.Objective = obj
		}
		dev.RetryFeedback = ""
	}
	return nil
}
