package reporter

import (
	"context"
	"fmt"
	"strings"

	"netsleuth/internal/logging"
	"netsleuth/internal/session"
)

// Generator is the text-generation capability behind the synthesizer,
// satisfied by llmclient.Generate.
type Generator func(ctx context.Context, prompt, model string) (string, error)

// Reporter turns a finished session into the final summary. When the
// generator is unavailable it falls back to a deterministic rendering so
// a session never ends without a report.
type Reporter struct {
	Generate Generator
	Model    string
}

func New(gen Generator, model string) *Reporter {
	return &Reporter{Generate: gen, Model: model}
}

func (r *Reporter) Summarize(ctx context.Context, sess *session.Session) (string, error) {
	if r.Generate != nil {
		summary, err := r.Generate(ctx, buildReportPrompt(sess), r.Model)
		if err == nil && strings.TrimSpace(summary) != "" {
			return strings.TrimSpace(summary), nil
		}
		logging.L.Warnw("report generation failed, using fallback rendering",
			"session", sess.ID, "err", err)
	}
	return Fallback(sess), nil
}

func buildReportPrompt(sess *session.Session) string {
	var sb strings.Builder

	sb.WriteString("You are a network operations reporter. Write a concise investigation report for the engineer who asked the question. Plain text, short sections per device, findings first.\n\n")
	sb.WriteString(fmt.Sprintf("User query: %q\n", sess.UserQuery))
	sb.WriteString(fmt.Sprintf("Retries used: %d of %d\n", sess.CurrentRetries, sess.MaxRetries))
	if sess.AssessorNotes != "" {
		sb.WriteString("Assessor notes:\n")
		sb.WriteString(sess.AssessorNotes)
		sb.WriteString("\n")
	}

	for _, dev := range sess.Devices {
		sb.WriteString(fmt.Sprintf("\n--- Device %s ---\n", dev.DeviceName))
		sb.WriteString(fmt.Sprintf("Objective: %s\n", dev.Objective))
		sb.WriteString(fmt.Sprintf("Verdict: %s\n", dev.ResolvedNote))
		if dev.Limitations != "" {
			sb.WriteString("Limitations:\n")
			sb.WriteString(dev.Limitations)
			sb.WriteString("\n")
		}
		for _, o := range dev.StepOutcomes {
			sb.WriteString(fmt.Sprintf("Step %d: %s\n", o.StepIndex+1, o.Instruction))
			if o.Report != "" {
				sb.WriteString(fmt.Sprintf("  note: %s\n", o.Report))
			}
			for _, inv := range o.Invocations {
				if inv.Error != "" {
					sb.WriteString(fmt.Sprintf("  %s -> ERROR: %s\n", inv.Function, inv.Error))
				} else {
					sb.WriteString(fmt.Sprintf("  %s -> ok\n", inv.Function))
				}
			}
		}
	}

	sb.WriteString("\nReport: ")
	return sb.String()
}

// Fallback renders a plain report straight from session state.
func Fallback(sess *session.Session) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Investigation report for: %s\n", sess.UserQuery))
	sb.WriteString(fmt.Sprintf("Outcome: %s, retries used: %d/%d\n", sess.Achieved, sess.CurrentRetries, sess.MaxRetries))
	if sess.AssessorNotes != "" {
		sb.WriteString(sess.AssessorNotes + "\n")
	}
	for _, dev := range sess.Devices {
		verdict := dev.ResolvedNote
		if verdict == "" {
			verdict = "no verdict recorded"
		}
		sb.WriteString(fmt.Sprintf("- %s: %s (%d step outcomes", dev.DeviceName, verdict, len(dev.StepOutcomes)))
		if dev.Limitations != "" {
			sb.WriteString(", with limitations")
		}
		sb.WriteString(")\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
