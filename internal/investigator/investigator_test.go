package investigator

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netsleuth/internal/oracle"
	"netsleuth/internal/session"
	"netsleuth/internal/tool"
)

// scriptedOracle returns one canned response per step, in order.
type scriptedOracle struct {
	responses []*oracle.StepResponse
	errs      []error
	requests  []oracle.StepRequest
}

func (o *scriptedOracle) ProposeCalls(_ context.Context, req oracle.StepRequest) (*oracle.StepResponse, error) {
	i := len(o.requests)
	o.requests = append(o.requests, req)
	if i < len(o.errs) && o.errs[i] != nil {
		return nil, o.errs[i]
	}
	if i < len(o.responses) {
		return o.responses[i], nil
	}
	return &oracle.StepResponse{Report: "nothing to do"}, nil
}

// scriptedExecutor fails calls whose function appears in failures.
type scriptedExecutor struct {
	failures map[string]error
	calls    []tool.Call
}

func (e *scriptedExecutor) Execute(_ context.Context, call tool.Call) (map[string]any, error) {
	e.calls = append(e.calls, call)
	if err, bad := e.failures[call.Function]; bad {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

func oneCall(function string) *oracle.StepResponse {
	return &oracle.StepResponse{
		Report: "running " + function,
		Calls:  []oracle.ToolCall{{Function: function, Params: map[string]any{}}},
	}
}

func newDevice(steps ...string) *session.DeviceInvestigation {
	return &session.DeviceInvestigation{
		DeviceName: "core-r1",
		Address:    "10.0.0.1",
		Objective:  "check device health",
		PlanSteps:  steps,
	}
}

func TestRunHappyPath(t *testing.T) {
	o := &scriptedOracle{responses: []*oracle.StepResponse{
		oneCall("get_system_health"),
		oneCall("get_interface_table"),
		oneCall("get_routing_summary"),
	}}
	ex := &scriptedExecutor{}
	dev := newDevice("step 1", "step 2", "step 3")

	New(o, ex).Run(context.Background(), dev)

	require.Len(t, dev.StepOutcomes, 3)
	for i, out := range dev.StepOutcomes {
		assert.Equal(t, i, out.StepIndex)
		require.Len(t, out.Invocations, 1)
		assert.Empty(t, out.Invocations[0].Error)
		assert.NotNil(t, out.Invocations[0].Result)
	}
	assert.Empty(t, dev.Limitations)

	// Each invocation carries the device binding.
	for _, call := range ex.calls {
		assert.Equal(t, "core-r1", call.Device)
		assert.Equal(t, "10.0.0.1", call.Address)
	}
}

func TestRunStepsSeeEarlierOutcomes(t *testing.T) {
	o := &scriptedOracle{responses: []*oracle.StepResponse{
		oneCall("get_system_health"),
		oneCall("get_interface_table"),
	}}
	dev := newDevice("step 1", "step 2")
	dev.RetryFeedback = "focus on ge-0/0/1"

	New(o, &scriptedExecutor{}).Run(context.Background(), dev)

	require.Len(t, o.requests, 2)
	assert.Empty(t, o.requests[0].Prior)
	require.Len(t, o.requests[1].Prior, 1, "step 2 sees step 1's outcome")
	assert.Equal(t, "focus on ge-0/0/1", o.requests[1].RetryFeedback)
}

func TestRunToleratesStepFailures(t *testing.T) {
	o := &scriptedOracle{
		responses: []*oracle.StepResponse{
			nil, // oracle error on step 1
			{Report: "no tool can do this"},
			oneCall("get_bgp_peers"),
			oneCall("get_system_health"),
		},
		errs: []error{fmt.Errorf("oracle timeout"), nil, nil, nil},
	}
	ex := &scriptedExecutor{failures: map[string]error{
		"get_bgp_peers": fmt.Errorf("%w: connection refused", tool.ErrCommunication),
	}}
	dev := newDevice("s1", "s2", "s3", "s4")

	New(o, ex).Run(context.Background(), dev)

	// Every step is recorded even though three of them went wrong.
	require.Len(t, dev.StepOutcomes, 4)
	assert.Contains(t, dev.StepOutcomes[0].Report, "oracle unavailable")
	assert.Empty(t, dev.StepOutcomes[1].Invocations)
	assert.Contains(t, dev.StepOutcomes[2].Invocations[0].Error, "communication failure")
	assert.Empty(t, dev.StepOutcomes[3].Invocations[0].Error)

	assert.Contains(t, dev.Limitations, "step 1")
	assert.Contains(t, dev.Limitations, "step 2: no applicable tool")
	assert.Contains(t, dev.Limitations, "step 3")
	assert.NotContains(t, dev.Limitations, "step 4")
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := &scriptedOracle{}
	dev := newDevice("s1", "s2")
	New(o, &scriptedExecutor{}).Run(ctx, dev)

	assert.Empty(t, dev.StepOutcomes)
	assert.Empty(t, o.requests)
}

func TestRunAppendsAcrossAttempts(t *testing.T) {
	o := &scriptedOracle{responses: []*oracle.StepResponse{
		oneCall("get_system_health"),
		oneCall("get_system_health"),
	}}
	dev := newDevice("s1")
	inv := New(o, &scriptedExecutor{})

	inv.Run(context.Background(), dev)
	inv.Run(context.Background(), dev)

	// Retries append, they never erase history.
	require.Len(t, dev.StepOutcomes, 2)
	assert.Len(t, o.requests[1].Prior, 1)
}
