package oracle

import "netsleuth/internal/session"

// ToolCall is one tool invocation the oracle wants performed.
type ToolCall struct {
	Function string         `json:"function"`
	Params   map[string]any `json:"params"`
}

// StepRequest carries everything the oracle needs to turn one plan step
// into concrete tool calls for one device.
type StepRequest struct {
	Device        string
	Objective     string
	Instruction   string
	Prior         []session.StepOutcome
	RetryFeedback string
}

// StepResponse is the oracle's answer for a step. Zero calls is valid
// and means no applicable tool exists for the instruction.
type StepResponse struct {
	Report string     `json:"report"`
	Calls  []ToolCall `json:"calls"`
}

// Judgment is the oracle's semantic verdict on one device's results.
type Judgment struct {
	ObjectiveMet            bool   `json:"objective_met"`
	UnrecoverableLimitation bool   `json:"unrecoverable_limitation"`
	FeedbackForRetry        string `json:"feedback_for_retry"`
	Notes                   string `json:"notes"`
}

// PlanChoice is the oracle's plan selection for a user query, with an
// optionally tailored objective per device.
type PlanChoice struct {
	Intent     string            `json:"intent"`
	Objectives map[string]string `json:"objectives"`
}
