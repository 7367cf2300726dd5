package session

import (
	"strings"

	"github.com/google/uuid"
)

// Lifecycle states for an investigation session.
const (
	StatusPending    = "PENDING"
	StatusValidating = "VALIDATING"
	StatusPlanning   = "PLANNING"
	StatusExecuting  = "EXECUTING"
	StatusAssessing  = "ASSESSING"
	StatusReporting  = "REPORTING"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
	StatusCancelled  = "CANCELLED"
)

// Outcome is the tri-state assessment result for a session.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeAchieved
	OutcomeNotAchieved
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAchieved:
		return "achieved"
	case OutcomeNotAchieved:
		return "not_achieved"
	}
	return "unknown"
}

// ToolInvocation is one concrete call to a device-facing tool function.
// After execution exactly one of Result/Error is set.
type ToolInvocation struct {
	Function string         `json:"function"`
	Params   map[string]any `json:"params"`
	Result   map[string]any `json:"result,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// StepOutcome records everything one plan step produced for one device.
// A step may yield zero invocations (no applicable tool) or several.
type StepOutcome struct {
	StepIndex   int              `json:"step_index"`
	Instruction string           `json:"instruction"`
	Report      string           `json:"report,omitempty"`
	Invocations []ToolInvocation `json:"invocations"`
}

// Failed reports whether the step produced no usable data: either no
// invocation at all or every invocation errored.
func (o *StepOutcome) Failed() bool {
	if len(o.Invocations) == 0 {
		return true
	}
	for _, inv := range o.Invocations {
		if inv.Error == "" {
			return false
		}
	}
	return true
}

// DeviceInvestigation holds all per-device state. Each instance is owned
// by exactly one investigator goroutine during an executing pass; the
// orchestrator touches it only between passes.
type DeviceInvestigation struct {
	DeviceName    string        `json:"device_name"`
	Address       string        `json:"address,omitempty"`
	Role          string        `json:"role,omitempty"`
	Objective     string        `json:"objective"`
	PlanIntent    string        `json:"plan_intent"`
	PlanSteps     []string      `json:"plan_steps"`
	StepOutcomes  []StepOutcome `json:"step_outcomes"`
	Limitations   string        `json:"limitations,omitempty"`
	RetryFeedback string        `json:"retry_feedback,omitempty"`
	Resolved      bool          `json:"resolved"`
	ResolvedNote  string        `json:"resolved_note,omitempty"`
}

// AddLimitation appends a line to the device's free-text limitations.
func (d *DeviceInvestigation) AddLimitation(note string) {
	note = strings.TrimSpace(note)
	if note == "" {
		return
	}
	if d.Limitations == "" {
		d.Limitations = note
		return
	}
	d.Limitations += "\n" + note
}

// Session is the root aggregate for one user request. It is mutated only
// by the orchestration loop and becomes immutable once Summary is set.
type Session struct {
	ID             string                 `json:"id"`
	UserQuery      string                 `json:"user_query"`
	State          string                 `json:"state"`
	Devices        []*DeviceInvestigation `json:"devices"`
	CurrentRetries int                    `json:"current_retries"`
	MaxRetries     int                    `json:"max_retries"`
	Achieved       Outcome                `json:"achieved"`
	AssessorNotes  string                 `json:"assessor_notes,omitempty"`
	Insights       string                 `json:"insights,omitempty"`
	Summary        string                 `json:"summary,omitempty"`
}

func New(userQuery string, maxRetries int) *Session {
	return &Session{
		ID:         uuid.New().String()[:8],
		UserQuery:  userQuery,
		State:      StatusPending,
		MaxRetries: maxRetries,
	}
}

// Device returns the investigation for the named device, or nil.
func (s *Session) Device(name string) *DeviceInvestigation {
	for _, d := range s.Devices {
		if strings.EqualFold(d.DeviceName, name) {
			return d
		}
	}
	return nil
}

// Unresolved returns devices whose objective is still open. The next
// executing pass re-runs only these.
func (s *Session) Unresolved() []*DeviceInvestigation {
	var out []*DeviceInvestigation
	for _, d := range s.Devices {
		if !d.Resolved {
			out = append(out, d)
		}
	}
	return out
}

// AllResolved reports whether every device has reached a terminal verdict.
func (s *Session) AllResolved() bool {
	for _, d := range s.Devices {
		if !d.Resolved {
			return false
		}
	}
	return len(s.Devices) > 0
}
