package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netsleuth/internal/assessor"
	"netsleuth/internal/session"
	"netsleuth/internal/validator"
)

type fakeResolver struct {
	devices []*session.DeviceInvestigation
	err     error
}

func (f *fakeResolver) Resolve(context.Context, string) ([]*session.DeviceInvestigation, error) {
	return f.devices, f.err
}

type fakePlanner struct {
	steps []string
	err   error
}

func (f *fakePlanner) Plan(_ context.Context, sess *session.Session) error {
	if f.err != nil {
		return f.err
	}
	for _, d := range sess.Devices {
		d.PlanIntent = "device_health"
		d.PlanSteps = f.steps
	}
	return nil
}

// fakeCoordinator appends one outcome per plan step for every device it
// is handed, and remembers which devices each pass targeted.
type fakeCoordinator struct {
	passes [][]string
	cancel context.CancelFunc // when set, fires mid-pass
}

func (f *fakeCoordinator) RunAll(_ context.Context, devices []*session.DeviceInvestigation) map[string]*session.DeviceInvestigation {
	var names []string
	out := map[string]*session.DeviceInvestigation{}
	for _, d := range devices {
		names = append(names, d.DeviceName)
		for _, step := range d.PlanSteps {
			d.StepOutcomes = append(d.StepOutcomes, session.StepOutcome{
				StepIndex:   len(d.StepOutcomes),
				Instruction: step,
				Report:      "ok",
				Invocations: []session.ToolInvocation{{Function: "get_system_health", Result: map[string]any{"status": "healthy"}}},
			})
		}
		out[d.DeviceName] = d
	}
	f.passes = append(f.passes, names)
	if f.cancel != nil {
		f.cancel()
	}
	return out
}

// scriptedAssessor returns one pre-built verdict per pass.
type scriptedAssessor struct {
	verdicts []*assessor.Verdict
	call     int
}

func (s *scriptedAssessor) Assess(_ context.Context, _ *session.Session) *assessor.Verdict {
	v := s.verdicts[s.call%len(s.verdicts)]
	s.call++
	return v
}

type fakeReporter struct{ summary string }

func (f *fakeReporter) Summarize(context.Context, *session.Session) (string, error) {
	return f.summary, nil
}

type fakeStore struct {
	insights string
	recorded bool
}

func (f *fakeStore) Record(context.Context, *session.Session) error { f.recorded = true; return nil }
func (f *fakeStore) Recall(context.Context, []string, int) (string, error) {
	return f.insights, nil
}

func devs(names ...string) []*session.DeviceInvestigation {
	var out []*session.DeviceInvestigation
	for _, n := range names {
		out = append(out, &session.DeviceInvestigation{DeviceName: n, Address: n + ".lab"})
	}
	return out
}

func achievedVerdict(resolved ...string) *assessor.Verdict {
	v := &assessor.Verdict{Achieved: true, Resolved: map[string]string{}}
	for _, name := range resolved {
		v.Resolved[name] = "objective met"
	}
	return v
}

func TestRunSingleDeviceFirstPassSuccess(t *testing.T) {
	coord := &fakeCoordinator{}
	store := &fakeStore{insights: "core-r1: fan tray replaced last week"}
	e := &Engine{
		MaxRetries:  2,
		Validator:   &fakeResolver{devices: devs("core-r1")},
		Planner:     &fakePlanner{steps: []string{"check health", "check routing", "check interfaces"}},
		Coordinator: coord,
		Assessor:    &scriptedAssessor{verdicts: []*assessor.Verdict{achievedVerdict("core-r1")}},
		Reporter:    &fakeReporter{summary: "core-r1 is healthy"},
		Learning:    store,
	}

	sess, sm, err := e.Run(context.Background(), "is core-r1 healthy?")
	require.NoError(t, err)

	assert.Equal(t, session.StatusDone, sess.State)
	assert.Equal(t, session.OutcomeAchieved, sess.Achieved)
	assert.Equal(t, 0, sess.CurrentRetries)
	assert.Equal(t, "core-r1 is healthy", sess.Summary)
	assert.Equal(t, store.insights, sess.Insights)
	assert.True(t, store.recorded)

	dev := sess.Device("core-r1")
	require.NotNil(t, dev)
	assert.Len(t, dev.StepOutcomes, 3)
	assert.True(t, dev.Resolved)

	require.Len(t, sm.Passes, 1)
	assert.Equal(t, 3, sm.Passes[0].Devices[0].Steps)
}

func TestRunTerminatesAtRetryBound(t *testing.T) {
	// A judge that never accepts must not loop forever: the engine runs
	// at most MaxRetries+1 passes and then forces acceptance.
	coord := &fakeCoordinator{}
	never := &scriptedAssessor{verdicts: []*assessor.Verdict{{
		Achieved: false,
		Feedback: map[string]string{"core-r1": "look again"},
		Resolved: map[string]string{},
	}}}
	e := &Engine{
		MaxRetries:  2,
		Validator:   &fakeResolver{devices: devs("core-r1")},
		Planner:     &fakePlanner{steps: []string{"check health"}},
		Coordinator: coord,
		Assessor:    never,
		Reporter:    &fakeReporter{summary: "done"},
	}

	sess, sm, err := e.Run(context.Background(), "is core-r1 healthy?")
	require.NoError(t, err)

	assert.Equal(t, session.StatusDone, sess.State)
	assert.Equal(t, session.OutcomeAchieved, sess.Achieved)
	assert.Equal(t, 2, sess.CurrentRetries)
	assert.Len(t, coord.passes, 3, "MaxRetries+1 executing passes")
	assert.Len(t, sm.Passes, 3)
	assert.Contains(t, sess.AssessorNotes, "max retries reached")
}

func TestRunRetriesOnlyUnresolvedDevices(t *testing.T) {
	coord := &fakeCoordinator{}
	scripts := &scriptedAssessor{verdicts: []*assessor.Verdict{
		{
			Achieved: false,
			Feedback: map[string]string{"core-r2": "inspect BGP peers on core-r2"},
			Resolved: map[string]string{"core-r1": "objective met"},
		},
		achievedVerdict("core-r2"),
	}}
	e := &Engine{
		MaxRetries:  2,
		Validator:   &fakeResolver{devices: devs("core-r1", "core-r2")},
		Planner:     &fakePlanner{steps: []string{"check health", "check routing"}},
		Coordinator: coord,
		Assessor:    scripts,
		Reporter:    &fakeReporter{summary: "done"},
	}

	sess, _, err := e.Run(context.Background(), "compare core-r1 and core-r2")
	require.NoError(t, err)

	require.Len(t, coord.passes, 2)
	assert.ElementsMatch(t, []string{"core-r1", "core-r2"}, coord.passes[0])
	assert.Equal(t, []string{"core-r2"}, coord.passes[1], "only the unresolved device re-runs")

	// History is append-only: the retried device carries both passes.
	assert.Len(t, sess.Device("core-r2").StepOutcomes, 4)
	assert.Len(t, sess.Device("core-r1").StepOutcomes, 2)
	assert.Equal(t, 1, sess.CurrentRetries)
	assert.Empty(t, sess.Device("core-r2").RetryFeedback, "feedback cleared on resolution")
}

func TestRunInvalidTargetFailsFast(t *testing.T) {
	coord := &fakeCoordinator{}
	e := &Engine{
		MaxRetries:  2,
		Validator:   &fakeResolver{err: &validator.InvalidTargetError{Query: "ping mars"}},
		Planner:     &fakePlanner{},
		Coordinator: coord,
		Assessor:    &scriptedAssessor{verdicts: []*assessor.Verdict{achievedVerdict()}},
		Reporter:    &fakeReporter{},
	}

	sess, _, err := e.Run(context.Background(), "ping mars")
	var ite *validator.InvalidTargetError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, session.StatusFailed, sess.State)
	assert.Empty(t, coord.passes, "no execution on fatal validation errors")
}

func TestRunPlannerErrorIsFatal(t *testing.T) {
	e := &Engine{
		MaxRetries:  2,
		Validator:   &fakeResolver{devices: devs("core-r1")},
		Planner:     &fakePlanner{err: errors.New("plan file truncated")},
		Coordinator: &fakeCoordinator{},
		Assessor:    &scriptedAssessor{verdicts: []*assessor.Verdict{achievedVerdict()}},
		Reporter:    &fakeReporter{},
	}

	sess, _, err := e.Run(context.Background(), "is core-r1 healthy?")
	require.Error(t, err)
	assert.Equal(t, session.StatusFailed, sess.State)
	assert.Contains(t, err.Error(), "plan session")
}

func TestRunCancellationKeepsPartialResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	coord := &fakeCoordinator{cancel: cancel}
	e := &Engine{
		MaxRetries:  2,
		Validator:   &fakeResolver{devices: devs("core-r1")},
		Planner:     &fakePlanner{steps: []string{"check health"}},
		Coordinator: coord,
		Assessor:    &scriptedAssessor{verdicts: []*assessor.Verdict{achievedVerdict("core-r1")}},
		Reporter:    &fakeReporter{summary: "should not be reached"},
	}

	sess, _, err := e.Run(ctx, "is core-r1 healthy?")
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, session.StatusCancelled, sess.State)
	assert.NotEmpty(t, sess.Device("core-r1").StepOutcomes, "partial results retained")
	assert.Contains(t, sess.Summary, "cancelled")
}

func TestRunWithIDKeepsCallerID(t *testing.T) {
	e := &Engine{
		MaxRetries:  1,
		Validator:   &fakeResolver{devices: devs("core-r1")},
		Planner:     &fakePlanner{steps: []string{"check health"}},
		Coordinator: &fakeCoordinator{},
		Assessor:    &scriptedAssessor{verdicts: []*assessor.Verdict{achievedVerdict("core-r1")}},
		Reporter:    &fakeReporter{summary: "done"},
	}

	sess, sm, err := e.RunWithID(context.Background(), "ab12cd34", "is core-r1 healthy?")
	require.NoError(t, err)
	assert.Equal(t, "ab12cd34", sess.ID)
	assert.Equal(t, "ab12cd34", sm.SessionID)
}
