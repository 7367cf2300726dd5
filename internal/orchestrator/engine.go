package orchestrator

import (
	"context"
	"fmt"
	"time"

	"netsleuth/internal/assessor"
	"netsleuth/internal/logging"
	"netsleuth/internal/metrics"
	"netsleuth/internal/session"
)

// Collaborator contracts of the loop. The concrete implementations live
// in validator, plan, fanout, assessor, reporter and learning.
type (
	TargetResolver interface {
		Resolve(ctx context.Context, query string) ([]*session.DeviceInvestigation, error)
	}
	Planner interface {
		Plan(ctx context.Context, sess *session.Session) error
	}
	Coordinator interface {
		RunAll(ctx context.Context, devices []*session.DeviceInvestigation) map[string]*session.DeviceInvestigation
	}
	SessionAssessor interface {
		Assess(ctx context.Context, sess *session.Session) *assessor.Verdict
	}
	Summarizer interface {
		Summarize(ctx context.Context, sess *session.Session) (string, error)
	}
	InsightStore interface {
		Record(ctx context.Context, sess *session.Session) error
		Recall(ctx context.Context, devices []string, limit int) (string, error)
	}
)

const recallLimit = 10

// Engine drives one session through the state machine:
// Validating -> Planning -> (Executing -> Assessing)* -> Reporting -> Done.
// CurrentRetries strictly increases on every loop-back and the assessor
// forces acceptance at the bound, so a session finishes in at most
// MaxRetries+1 executing passes.
type Engine struct {
	MaxRetries  int
	Validator   TargetResolver
	Planner     Planner
	Coordinator Coordinator
	Assessor    SessionAssessor
	Reporter    Summarizer
	Learning    InsightStore // optional
}

// Run executes one full session for the query. The returned session is
// always non-nil; on a fatal error its state tells which phase failed.
func (e *Engine) Run(ctx context.Context, userQuery string) (*session.Session, *metrics.SessionMetrics, error) {
	return e.RunWithID(ctx, "", userQuery)
}

// RunWithID is Run with a caller-assigned session ID, so the dispatcher
// can hand out the ID before the session starts.
func (e *Engine) RunWithID(ctx context.Context, id, userQuery string) (*session.Session, *metrics.SessionMetrics, error) {
	sess := session.New(userQuery, e.MaxRetries)
	if id != "" {
		sess.ID = id
	}
	sm := &metrics.SessionMetrics{SessionID: sess.ID, Start: time.Now()}
	defer sm.Finalize()

	logging.L.Infow("session started", "session", sess.ID, "query", userQuery)

	sess.State = session.StatusValidating
	devices, err := e.Validator.Resolve(ctx, userQuery)
	if err != nil {
		sess.State = session.StatusFailed
		return sess, sm, fmt.Errorf("validate targets: %w", err)
	}
	sess.Devices = devices

	sess.State = session.StatusPlanning
	if e.Learning != nil {
		var names []string
		for _, d := range devices {
			names = append(names, d.DeviceName)
		}
		insights, err := e.Learning.Recall(ctx, names, recallLimit)
		if err != nil {
			logging.L.Warnw("insight recall failed", "session", sess.ID, "err", err)
		} else {
			sess.Insights = insights
		}
	}
	if err := e.Planner.Plan(ctx, sess); err != nil {
		sess.State = session.StatusFailed
		return sess, sm, fmt.Errorf("plan session: %w", err)
	}

	for pass := 1; ; pass++ {
		sess.State = session.StatusExecuting
		targets := sess.Unresolved()
		logging.L.Infow("executing pass", "session", sess.ID, "pass", pass, "devices", len(targets))

		pm := metrics.PassMetrics{Pass: pass, Start: time.Now()}
		before := outcomeCounts(targets)
		e.Coordinator.RunAll(ctx, targets)
		pm.End = time.Now()
		pm.Finalize()
		pm.Devices = deviceDeltas(targets, before)
		sm.Passes = append(sm.Passes, pm)

		if ctx.Err() != nil {
			// Recorded outcomes stay; the session just ends in its own
			// terminal state instead of a normal report.
			sess.State = session.StatusCancelled
			sess.Summary = "investigation cancelled; partial results retained"
			logging.L.Infow("session cancelled", "session", sess.ID, "pass", pass)
			return sess, sm, ctx.Err()
		}

		sess.State = session.StatusAssessing
		verdict := e.Assessor.Assess(ctx, sess)
		sess.AssessorNotes = verdict.Notes
		for name, note := range verdict.Resolved {
			if dev := sess.Device(name); dev != nil {
				dev.Resolved = true
				dev.ResolvedNote = note
				dev.RetryFeedback = ""
			}
		}

		if verdict.Achieved {
			sess.Achieved = session.OutcomeAchieved
			break
		}

		if sess.CurrentRetries >= sess.MaxRetries {
			// The assessor is supposed to force acceptance at the bound;
			// enforce it here too so termination never depends on the
			// judge implementation.
			sess.Achieved = session.OutcomeAchieved
			sess.AssessorNotes = joinNotes(verdict.Notes, fmt.Sprintf("max retries reached (%d)", sess.MaxRetries))
			break
		}

		sess.Achieved = session.OutcomeNotAchieved
		sess.CurrentRetries++
		for name, fb := range verdict.Feedback {
			if dev := sess.Device(name); dev != nil {
				dev.RetryFeedback = fb
			}
		}
		logging.L.Infow("objective not met, retrying",
			"session", sess.ID, "retry", sess.CurrentRetries, "max", sess.MaxRetries)
	}

	sess.State = session.StatusReporting
	summary, err := e.Reporter.Summarize(ctx, sess)
	if err != nil {
		logging.L.Warnw("report synthesis failed", "session", sess.ID, "err", err)
		summary = "report synthesis failed; see assessor notes"
	}
	sess.Summary = summary
	sess.State = session.StatusDone
	sm.Achieved = true

	if e.Learning != nil {
		if err := e.Learning.Record(ctx, sess); err != nil {
			logging.L.Warnw("insight record failed", "session", sess.ID, "err", err)
		}
	}

	logging.L.Infow("session done",
		"session", sess.ID, "passes", len(sm.Passes), "retries", sess.CurrentRetries)
	return sess, sm, nil
}

func joinNotes(a, b string) string {
	if a == "" {
		return b
	}
	return a + "\n" + b
}

func outcomeCounts(devices []*session.DeviceInvestigation) map[string]int {
	out := make(map[string]int, len(devices))
	for _, d := range devices {
		out[d.DeviceName] = len(d.StepOutcomes)
	}
	return out
}

func deviceDeltas(devices []*session.DeviceInvestigation, before map[string]int) []metrics.DeviceMetrics {
	var out []metrics.DeviceMetrics
	for _, d := range devices {
		dm := metrics.DeviceMetrics{Device: d.DeviceName}
		for _, o := range d.StepOutcomes[before[d.DeviceName]:] {
			dm.Steps++
			dm.Invocations += len(o.Invocations)
			for _, inv := range o.Invocations {
				if inv.Error != "" {
					dm.Errors++
				}
			}
		}
		out = append(out, dm)
	}
	return out
}
