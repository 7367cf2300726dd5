package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"netsleuth/internal/config"
	"netsleuth/internal/llmclient"
	"netsleuth/internal/session"
	"netsleuth/internal/tool"
)

// Client is the LLM-backed reasoning oracle. One instance serves the
// investigator, assessor, validator and planner; each of those declares
// its own narrow interface over the methods it needs.
type Client struct {
	Registry *tool.Registry
	Model    string
}

func NewClient(reg *tool.Registry, model string) *Client {
	return &Client{Registry: reg, Model: model}
}

// ProposeCalls maps one natural-language plan step to tool calls.
func (c *Client) ProposeCalls(ctx context.Context, req StepRequest) (*StepResponse, error) {
	prompt := c.buildStepPrompt(req)

	raw, err := llmclient.GenerateJSON(ctx, prompt, c.Model, nil)
	if err != nil {
		return nil, fmt.Errorf("oracle step call failed: %w", err)
	}
	var resp StepResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("error parsing oracle step JSON: %v\nRaw Response: %s", err, raw)
	}
	return &resp, nil
}

// JudgeObjective decides whether a device's accumulated results satisfy
// its objective.
func (c *Client) JudgeObjective(ctx context.Context, userQuery, insights string, dev *session.DeviceInvestigation) (*Judgment, error) {
	prompt := buildJudgePrompt(userQuery, insights, dev)

	raw, err := llmclient.GenerateJSON(ctx, prompt, c.Model, nil)
	if err != nil {
		return nil, fmt.Errorf("oracle judgment failed: %w", err)
	}
	var j Judgment
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		return nil, fmt.Errorf("error parsing oracle judgment JSON: %v\nRaw Response: %s", err, raw)
	}
	return &j, nil
}

// ExtractDevices resolves a user query to device names present in the
// inventory.
func (c *Client) ExtractDevices(ctx context.Context, query string, inventory []config.Device) ([]string, error) {
	prompt := buildExtractPrompt(query, inventory)

	raw, err := llmclient.GenerateJSON(ctx, prompt, c.Model, nil)
	if err != nil {
		return nil, fmt.Errorf("oracle device extraction failed: %w", err)
	}
	var out struct {
		Devices []string `json:"devices"`
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("error parsing oracle extraction JSON: %v\nRaw Response: %s", err, raw)
	}
	return out.Devices, nil
}

// SelectPlan picks a plan intent for the query from the catalog and may
// tailor the objective per device.
func (c *Client) SelectPlan(ctx context.Context, query, catalog, insights string, devices []string) (*PlanChoice, error) {
	prompt := buildSelectPrompt(query, catalog, insights, devices)

	raw, err := llmclient.GenerateJSON(ctx, prompt, c.Model, nil)
	if err != nil {
		return nil, fmt.Errorf("oracle plan selection failed: %w", err)
	}
	var choice PlanChoice
	if err := json.Unmarshal([]byte(raw), &choice); err != nil {
		return nil, fmt.Errorf("error parsing oracle plan choice JSON: %v\nRaw Response: %s", err, raw)
	}
	if strings.TrimSpace(choice.Intent) == "" {
		return nil, fmt.Errorf("oracle plan choice has no intent\nRaw Response: %s", raw)
	}
	return &choice, nil
}

func (c *Client) buildStepPrompt(req StepRequest) string {
	var sb strings.Builder

	sb.WriteString("You are a network investigation executor. Convert the instruction below into zero or more tool calls for ONE device. Respond ONLY with JSON. No extra text.\n\n")
	sb.WriteString("OUTPUT JSON SCHEMA:\n")
	sb.WriteString("{\"report\": \"<one-sentence note on what you are doing or why no tool applies>\", \"calls\": [{\"function\": \"<name>\", \"params\": {}}]}\n\n")

	sb.WriteString(fmt.Sprintf("Device: %s\n", req.Device))
	sb.WriteString(fmt.Sprintf("Objective: %s\n", req.Objective))
	sb.WriteString(fmt.Sprintf("IMPORTANT: Focus ONLY on device %s. Do not gather information from any other device.\n\n", req.Device))

	if strings.TrimSpace(req.RetryFeedback) != "" {
		sb.WriteString(fmt.Sprintf("RETRY FEEDBACK from the previous attempt: %s\n\n", req.RetryFeedback))
	}

	if len(req.Prior) > 0 {
		sb.WriteString("RESULTS FROM EARLIER STEPS (context):\n")
		for _, o := range req.Prior {
			sb.WriteString(fmt.Sprintf("Step %d: %q\n", o.StepIndex+1, o.Instruction))
			for _, inv := range o.Invocations {
				if inv.Error != "" {
					sb.WriteString(fmt.Sprintf("  %s -> ERROR: %s\n", inv.Function, inv.Error))
					continue
				}
				sb.WriteString(fmt.Sprintf("  %s -> %s\n", inv.Function, compactJSON(inv.Result)))
			}
		}
		sb.WriteString("\n")
	}

	sb.WriteString(c.Registry.PromptPart())
	sb.WriteString("\nRULES:\n")
	sb.WriteString("- Use ONLY the functions listed above with their required params.\n")
	sb.WriteString("- If no listed function can satisfy the instruction, return an empty calls array and say why in report.\n")
	sb.WriteString("- Never invent device names, addresses, or data.\n\n")

	sb.WriteString("Instruction: \"")
	sb.WriteString(req.Instruction)
	sb.WriteString("\"\nAssistant JSON response: ")
	return sb.String()
}

func buildJudgePrompt(userQuery, insights string, dev *session.DeviceInvestigation) string {
	var sb strings.Builder

	sb.WriteString("You are a network investigation assessor. Judge whether the gathered results satisfy the objective for this device. Respond ONLY with JSON. No extra text.\n\n")
	sb.WriteString("OUTPUT JSON SCHEMA:\n")
	sb.WriteString("{\"objective_met\": <bool>, \"unrecoverable_limitation\": <bool>, \"feedback_for_retry\": \"<guidance for the next attempt, or empty>\", \"notes\": \"<short note for the final report>\"}\n\n")

	sb.WriteString("Rules:\n")
	sb.WriteString("- objective_met: true only if the results actually answer the objective.\n")
	sb.WriteString("- unrecoverable_limitation: true if the recorded limitations show a tool or device-side inability that a retry cannot fix.\n")
	sb.WriteString("- feedback_for_retry: when unmet and retryable, say concretely what the next attempt should do differently (narrower focus, other params).\n\n")

	sb.WriteString(fmt.Sprintf("User query: %q\n", userQuery))
	sb.WriteString(fmt.Sprintf("Device: %s\n", dev.DeviceName))
	sb.WriteString(fmt.Sprintf("Objective: %s\n", dev.Objective))
	if strings.TrimSpace(insights) != "" {
		sb.WriteString("Insights from previous sessions:\n")
		sb.WriteString(insights)
		sb.WriteString("\n")
	}
	if strings.TrimSpace(dev.Limitations) != "" {
		sb.WriteString("Recorded limitations:\n")
		sb.WriteString(dev.Limitations)
		sb.WriteString("\n")
	}

	sb.WriteString("\nExecution results:\n")
	for _, o := range dev.StepOutcomes {
		sb.WriteString(fmt.Sprintf("Step %d: %q\n", o.StepIndex+1, o.Instruction))
		if o.Report != "" {
			sb.WriteString(fmt.Sprintf("  note: %s\n", o.Report))
		}
		for _, inv := range o.Invocations {
			if inv.Error != "" {
				sb.WriteString(fmt.Sprintf("  %s -> ERROR: %s\n", inv.Function, inv.Error))
				continue
			}
			sb.WriteString(fmt.Sprintf("  %s -> %s\n", inv.Function, compactJSON(inv.Result)))
		}
	}

	sb.WriteString("\nAssistant JSON response: ")
	return sb.String()
}

func buildExtractPrompt(query string, inventory []config.Device) string {
	var sb strings.Builder

	sb.WriteString("You are a network operations dispatcher. Identify which known devices the user wants investigated. Respond ONLY with JSON. No extra text.\n\n")
	sb.WriteString("OUTPUT JSON SCHEMA:\n{\"devices\": [<zero or more device names from the inventory>]}\n\n")

	sb.WriteString("KNOWN DEVICE INVENTORY:\n")
	for _, d := range inventory {
		sb.WriteString(fmt.Sprintf("- %s (role: %s, vendor: %s)\n", d.Name, d.Role, d.Vendor))
	}
	sb.WriteString("\nRules:\n")
	sb.WriteString("- Return ONLY names that appear in the inventory, spelled exactly as listed.\n")
	sb.WriteString("- If the user names a device not in the inventory, include it anyway so it can be rejected explicitly.\n")
	sb.WriteString("- If the user refers to a role (\"the core routers\"), expand it to the matching inventory names.\n\n")

	sb.WriteString(fmt.Sprintf("User query: %q\n", query))
	sb.WriteString("Assistant JSON response: ")
	return sb.String()
}

func buildSelectPrompt(query, catalog, insights string, devices []string) string {
	var sb strings.Builder

	sb.WriteString("You are a network investigation planner. Pick the single best plan for the user query and tailor the objective per device. Respond ONLY with JSON. No extra text.\n\n")
	sb.WriteString("OUTPUT JSON SCHEMA:\n")
	sb.WriteString("{\"intent\": \"<plan intent from the catalog>\", \"objectives\": {\"<device>\": \"<one-sentence objective>\"}}\n\n")

	sb.WriteString(catalog)
	if strings.TrimSpace(insights) != "" {
		sb.WriteString("\nInsights from previous sessions:\n")
		sb.WriteString(insights)
		sb.WriteString("\n")
	}
	sb.WriteString(fmt.Sprintf("\nTarget devices: %s\n", strings.Join(devices, ", ")))
	sb.WriteString(fmt.Sprintf("User query: %q\n", query))
	sb.WriteString("Assistant JSON response: ")
	return sb.String()
}

func compactJSON(v map[string]any) string {
	if v == nil {
		return "{}"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	const maxResultLen = 600
	s := string(b)
	if len(s) > maxResultLen {
		return s[:maxResultLen] + "..."
	}
	return s
}
