package tool

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Definition describes one tool function the oracle may request.
type Definition struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	ParamsSchema struct {
		Required []string `json:"required"`
	} `json:"params_schema"`
}

type Registry struct {
	Defs   []Definition
	byName map[string]Definition
}

// LoadRegistry reads the tool definitions from a JSON file.
func LoadRegistry(filePath string) (*Registry, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("could not read tool registry file: %w", err)
	}

	var doc struct {
		Tools []Definition `json:"tools"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("could not parse tool registry JSON: %w", err)
	}

	byName := make(map[string]Definition, len(doc.Tools))
	for _, d := range doc.Tools {
		byName[d.Name] = d
	}
	return &Registry{Defs: doc.Tools, byName: byName}, nil
}

func (r *Registry) Definition(name string) (Definition, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// PromptPart renders the registry as the tool section of an oracle prompt.
func (r *Registry) PromptPart() string {
	var sb strings.Builder
	sb.WriteString("AVAILABLE TOOL FUNCTIONS & PARAMS:\n")
	for _, d := range r.Defs {
		required := strings.Join(d.ParamsSchema.Required, ", ")
		sb.WriteString(fmt.Sprintf("- `%s`: %s Params requires keys: `[%s]`.\n", d.Name, d.Description, required))
	}
	return sb.String()
}

// ValidateCall checks a proposed call against its definition.
func (r *Registry) ValidateCall(c *Call) error {
	def, ok := r.Definition(c.Function)
	if !ok {
		return &ValidationError{Function: c.Function, Reason: "not defined in the registry"}
	}
	for _, key := range def.ParamsSchema.Required {
		if _, present := c.Params[key]; !present {
			return &ValidationError{
				Function: c.Function,
				Reason:   fmt.Sprintf("missing required param %q", key),
			}
		}
	}
	return nil
}
