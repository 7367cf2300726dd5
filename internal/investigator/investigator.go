package investigator

import (
	"context"
	"fmt"

	"netsleuth/internal/logging"
	"netsleuth/internal/oracle"
	"netsleuth/internal/session"
	"netsleuth/internal/tool"
)

// Oracle is the slice of the reasoning oracle the investigator needs.
type Oracle interface {
	ProposeCalls(ctx context.Context, req oracle.StepRequest) (*oracle.StepResponse, error)
}

// Investigator runs one device's plan. Steps execute strictly in order
// because later instructions may reference earlier results. A failing
// step is recorded and the run continues; nothing short of cancellation
// aborts the whole device.
type Investigator struct {
	Oracle   Oracle
	Executor tool.Executor
}

func New(o Oracle, e tool.Executor) *Investigator {
	return &Investigator{Oracle: o, Executor: e}
}

// Run executes every plan step for the device, appending outcomes to
// dev.StepOutcomes. Prior outcomes from earlier attempts are kept and
// passed to the oracle as context.
func (v *Investigator) Run(ctx context.Context, dev *session.DeviceInvestigation) {
	for i, instruction := range dev.PlanSteps {
		if ctx.Err() != nil {
			logging.L.Infow("investigation interrupted", "device", dev.DeviceName, "step", i+1)
			return
		}

		out := session.StepOutcome{StepIndex: i, Instruction: instruction}

		resp, err := v.Oracle.ProposeCalls(ctx, oracle.StepRequest{
			Device:        dev.DeviceName,
			Objective:     dev.Objective,
			Instruction:   instruction,
			Prior:         dev.StepOutcomes,
			RetryFeedback: dev.RetryFeedback,
		})
		if err != nil {
			out.Report = fmt.Sprintf("oracle unavailable: %v", err)
			dev.StepOutcomes = append(dev.StepOutcomes, out)
			dev.AddLimitation(fmt.Sprintf("step %d: %s", i+1, out.Report))
			continue
		}
		out.Report = resp.Report

		if len(resp.Calls) == 0 {
			// No applicable tool is a limitation, not an error.
			dev.StepOutcomes = append(dev.StepOutcomes, out)
			dev.AddLimitation(fmt.Sprintf("step %d: no applicable tool (%s)", i+1, resp.Report))
			continue
		}

		for _, call := range resp.Calls {
			inv := session.ToolInvocation{Function: call.Function, Params: call.Params}
			result, err := v.Executor.Execute(ctx, tool.Call{
				Function: call.Function,
				Params:   call.Params,
				Device:   dev.DeviceName,
				Address:  dev.Address,
			})
			if err != nil {
				inv.Error = err.Error()
				logging.L.Warnw("tool invocation failed",
					"device", dev.DeviceName, "function", call.Function, "err", err)
			} else {
				inv.Result = result
			}
			out.Invocations = append(out.Invocations, inv)
		}

		if out.Failed() {
			dev.AddLimitation(fmt.Sprintf("step %d: all %d invocation(s) failed", i+1, len(out.Invocations)))
		} else {
			for _, inv := range out.Invocations {
				if inv.Error != "" {
					dev.AddLimitation(fmt.Sprintf("step %d: %s failed: %s", i+1, inv.Function, inv.Error))
				}
			}
		}

		dev.StepOutcomes = append(dev.StepOutcomes, out)
	}
}
