package assessor

import (
	"context"
	"fmt"
	"strings"

	"netsleuth/internal/logging"
	"netsleuth/internal/oracle"
	"netsleuth/internal/session"
)

// Default feedback when the judge leaves the field empty, mirroring the
// retry guidance the executor prompt expects.
const defaultRetryFeedback = "The objective was not fully met. Review the execution results " +
	"against the objective and plan steps, then try again, focusing on any identified gaps."

// Judge is the semantic comparison capability, delegated to the
// reasoning oracle. The decision policy below holds regardless of how
// the judge is implemented.
type Judge interface {
	JudgeObjective(ctx context.Context, userQuery, insights string, dev *session.DeviceInvestigation) (*oracle.Judgment, error)
}

// Verdict is the assessor's decision for one pass. Resolved lists
// devices that reached a terminal verdict this pass (name -> note); the
// orchestration loop applies it, keeping the assessor a pure function
// of the session snapshot.
type Verdict struct {
	Achieved bool
	Notes    string
	Feedback map[string]string
	Resolved map[string]string
}

type Assessor struct {
	Judge Judge
}

func New(j Judge) *Assessor {
	return &Assessor{Judge: j}
}

// Assess evaluates the session snapshot after an executing pass.
//
// Policy, in order:
//  1. every device met or accepted-with-limitations -> achieved;
//  2. unmet devices remain and retries are left -> not achieved, with
//     per-device feedback for the next attempt;
//  3. retry bound reached -> forced acceptance, noted as such.
func (a *Assessor) Assess(ctx context.Context, sess *session.Session) *Verdict {
	v := &Verdict{
		Feedback: map[string]string{},
		Resolved: map[string]string{},
	}
	var notes []string
	var unmet []string

	for _, dev := range sess.Devices {
		if dev.Resolved {
			continue
		}

		j, err := a.Judge.JudgeObjective(ctx, sess.UserQuery, sess.Insights, dev)
		if err != nil {
			// Judge failure counts as unmet; the retry bound still
			// guarantees termination.
			logging.L.Warnw("assessment failed", "device", dev.DeviceName, "err", err)
			unmet = append(unmet, dev.DeviceName)
			v.Feedback[dev.DeviceName] = defaultRetryFeedback
			notes = append(notes, fmt.Sprintf("%s: assessment error: %v", dev.DeviceName, err))
			continue
		}

		switch {
		case j.ObjectiveMet:
			v.Resolved[dev.DeviceName] = "objective met"
			if j.Notes != "" {
				v.Resolved[dev.DeviceName] = "objective met: " + j.Notes
			}
			notes = append(notes, fmt.Sprintf("%s: objective met", dev.DeviceName))

		case j.UnrecoverableLimitation:
			// Retrying cannot help; accept this device with its limitations.
			note := "accepted with limitations"
			if dev.Limitations != "" {
				note = "accepted with limitations: " + firstLine(dev.Limitations)
			}
			v.Resolved[dev.DeviceName] = note
			notes = append(notes, fmt.Sprintf("%s: %s", dev.DeviceName, note))

		default:
			unmet = append(unmet, dev.DeviceName)
			fb := strings.TrimSpace(j.FeedbackForRetry)
			if fb == "" {
				fb = defaultRetryFeedback
			}
			v.Feedback[dev.DeviceName] = fb
			if j.Notes != "" {
				notes = append(notes, fmt.Sprintf("%s: %s", dev.DeviceName, j.Notes))
			}
		}
	}

	if len(unmet) == 0 {
		v.Achieved = true
		v.Feedback = nil
		if len(notes) == 0 {
			notes = append(notes, "objective met")
		}
		v.Notes = strings.Join(notes, "\n")
		return v
	}

	if sess.CurrentRetries >= sess.MaxRetries {
		// Mandatory escape valve: the loop must terminate here.
		v.Achieved = true
		v.Feedback = nil
		for _, name := range unmet {
			v.Resolved[name] = fmt.Sprintf("objective not met after %d retries (max retries reached)", sess.MaxRetries)
		}
		notes = append(notes, fmt.Sprintf("max retries reached (%d); accepting with unmet objectives on: %s",
			sess.MaxRetries, strings.Join(unmet, ", ")))
		v.Notes = strings.Join(notes, "\n")
		return v
	}

	v.Achieved = false
	v.Notes = strings.Join(notes, "\n")
	return v
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
