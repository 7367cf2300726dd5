package assessor

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netsleuth/internal/oracle"
	"netsleuth/internal/session"
)

// tableJudge answers per device name.
type tableJudge struct {
	judgments map[string]*oracle.Judgment
	errs      map[string]error
	calls     []string
}

func (j *tableJudge) JudgeObjective(_ context.Context, _, _ string, dev *session.DeviceInvestigation) (*oracle.Judgment, error) {
	j.calls = append(j.calls, dev.DeviceName)
	if err := j.errs[dev.DeviceName]; err != nil {
		return nil, err
	}
	if jm := j.judgments[dev.DeviceName]; jm != nil {
		return jm, nil
	}
	return &oracle.Judgment{}, nil
}

func sessionWith(retries, maxRetries int, devices ...*session.DeviceInvestigation) *session.Session {
	sess := session.New("why is the network slow", maxRetries)
	sess.CurrentRetries = retries
	sess.Devices = devices
	return sess
}

func TestAssessAllMet(t *testing.T) {
	judge := &tableJudge{judgments: map[string]*oracle.Judgment{
		"core-r1": {ObjectiveMet: true},
		"core-r2": {ObjectiveMet: true, Notes: "all peers established"},
	}}
	sess := sessionWith(0, 2,
		&session.DeviceInvestigation{DeviceName: "core-r1"},
		&session.DeviceInvestigation{DeviceName: "core-r2"},
	)

	v := New(judge).Assess(context.Background(), sess)

	assert.True(t, v.Achieved)
	assert.Empty(t, v.Feedback)
	assert.Equal(t, "objective met", v.Resolved["core-r1"])
	assert.Equal(t, "objective met: all peers established", v.Resolved["core-r2"])
}

func TestAssessUnmetProducesTargetedFeedback(t *testing.T) {
	judge := &tableJudge{judgments: map[string]*oracle.Judgment{
		"core-r1": {ObjectiveMet: true},
		"core-r2": {FeedbackForRetry: "query the BGP peers directly"},
	}}
	sess := sessionWith(0, 2,
		&session.DeviceInvestigation{DeviceName: "core-r1"},
		&session.DeviceInvestigation{DeviceName: "core-r2"},
	)

	v := New(judge).Assess(context.Background(), sess)

	assert.False(t, v.Achieved)
	// Feedback only for the unmet device.
	require.Len(t, v.Feedback, 1)
	assert.Equal(t, "query the BGP peers directly", v.Feedback["core-r2"])
	assert.Equal(t, "objective met", v.Resolved["core-r1"])
}

func TestAssessUnrecoverableLimitationResolves(t *testing.T) {
	judge := &tableJudge{judgments: map[string]*oracle.Judgment{
		"edge-sw1": {UnrecoverableLimitation: true},
	}}
	dev := &session.DeviceInvestigation{DeviceName: "edge-sw1"}
	dev.AddLimitation("step 2: no applicable tool (device has no BGP)")
	sess := sessionWith(0, 2, dev)

	v := New(judge).Assess(context.Background(), sess)

	assert.True(t, v.Achieved)
	assert.Contains(t, v.Resolved["edge-sw1"], "accepted with limitations")
	assert.Contains(t, v.Resolved["edge-sw1"], "no applicable tool")
}

func TestAssessForcedAcceptanceAtBound(t *testing.T) {
	judge := &tableJudge{} // never met
	sess := sessionWith(2, 2, &session.DeviceInvestigation{DeviceName: "core-r1"})

	v := New(judge).Assess(context.Background(), sess)

	assert.True(t, v.Achieved, "retry bound forces acceptance")
	assert.Empty(t, v.Feedback)
	assert.Contains(t, v.Notes, "max retries reached")
	assert.Contains(t, v.Resolved["core-r1"], "max retries reached")
}

func TestAssessJudgeErrorCountsAsUnmet(t *testing.T) {
	judge := &tableJudge{errs: map[string]error{"core-r1": fmt.Errorf("oracle down")}}
	sess := sessionWith(0, 2, &session.DeviceInvestigation{DeviceName: "core-r1"})

	v := New(judge).Assess(context.Background(), sess)

	assert.False(t, v.Achieved)
	assert.Equal(t, defaultRetryFeedback, v.Feedback["core-r1"])
	assert.Contains(t, v.Notes, "assessment error")
}

func TestAssessSkipsResolvedDevices(t *testing.T) {
	judge := &tableJudge{judgments: map[string]*oracle.Judgment{
		"core-r2": {ObjectiveMet: true},
	}}
	sess := sessionWith(1, 2,
		&session.DeviceInvestigation{DeviceName: "core-r1", Resolved: true, ResolvedNote: "objective met"},
		&session.DeviceInvestigation{DeviceName: "core-r2"},
	)

	v := New(judge).Assess(context.Background(), sess)

	assert.True(t, v.Achieved)
	assert.Equal(t, []string{"core-r2"}, judge.calls, "already resolved devices are not re-judged")
}
