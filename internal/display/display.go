package display

import (
	"fmt"
	"strings"

	"netsleuth/internal/metrics"
	"netsleuth/internal/plan"
	"netsleuth/internal/session"
)

const maxResultValueLength = 100

// FormatPlansCatalog renders the plan repository contents for the REPL.
func FormatPlansCatalog(dir string, plans []plan.Plan) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d plan(s) in %s:\n", len(plans), dir))
	for i, p := range plans {
		sb.WriteString(fmt.Sprintf("  %2d. %s  (%d steps) - %s\n",
			i+1, p.Intent, len(p.Steps), p.Description))
	}
	return sb.String()
}

// FormatSession renders a finished session, truncating result payloads
// for the terminal.
func FormatSession(sess *session.Session) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Session %s [%s] - %q\n", sess.ID, sess.State, sess.UserQuery))
	sb.WriteString(fmt.Sprintf("Outcome: %s, retries: %d/%d\n", sess.Achieved, sess.CurrentRetries, sess.MaxRetries))
	sb.WriteString("--------------------------------------------------\n")

	for _, dev := range sess.Devices {
		sb.WriteString(fmt.Sprintf("Device %s (%s):\n", dev.DeviceName, dev.PlanIntent))
		sb.WriteString(fmt.Sprintf("  Objective: %s\n", dev.Objective))
		if dev.ResolvedNote != "" {
			sb.WriteString(fmt.Sprintf("  Verdict: %s\n", dev.ResolvedNote))
		}
		for _, o := range dev.StepOutcomes {
			sb.WriteString(fmt.Sprintf("  Step %d: %s\n", o.StepIndex+1, o.Instruction))
			for _, inv := range o.Invocations {
				if inv.Error != "" {
					sb.WriteString(fmt.Sprintf("    - %s: ERROR %s\n", inv.Function, truncate(inv.Error)))
					continue
				}
				sb.WriteString(fmt.Sprintf("    - %s: %s\n", inv.Function, truncate(fmt.Sprintf("%v", inv.Result))))
			}
		}
		if dev.Limitations != "" {
			sb.WriteString("  Limitations:\n")
			for _, line := range strings.Split(dev.Limitations, "\n") {
				sb.WriteString("    " + line + "\n")
			}
		}
	}
	sb.WriteString("--------------------------------------------------")
	return sb.String()
}

// FormatSessionMetrics renders per-pass timing for the REPL.
func FormatSessionMetrics(sm *metrics.SessionMetrics) string {
	if sm == nil {
		return "No metrics available."
	}
	var sb strings.Builder
	sb.WriteString("Investigation metrics:\n")
	sb.WriteString(fmt.Sprintf("- Total: %d ms  (achieved=%v, passes=%d)\n",
		sm.DurationMs, sm.Achieved, len(sm.Passes)))
	for _, p := range sm.Passes {
		sb.WriteString(fmt.Sprintf("  Pass %d: %d ms\n", p.Pass, p.DurationMs))
		for _, d := range p.Devices {
			sb.WriteString(fmt.Sprintf("    %-16s steps=%d invocations=%d errors=%d\n",
				d.Device, d.Steps, d.Invocations, d.Errors))
		}
	}
	return sb.String()
}

func truncate(s string) string {
	s = strings.ReplaceAll(s, "\n", "\\n")
	if len(s) > maxResultValueLength {
		return s[:maxResultValueLength] + "..."
	}
	return s
}
