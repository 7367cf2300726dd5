package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Plan is an immutable investigation template loaded by intent key.
// Steps are natural-language instructions executed strictly in order.
type Plan struct {
	Intent      string   `json:"intent"`
	Description string   `json:"description"`
	Steps       []string `json:"steps"`
}

var ErrPlanNotFound = errors.New("plan not found")

// MalformedPlanError means a plan document exists but cannot be used.
// It is fatal for the session: no partial report is produced.
type MalformedPlanError struct {
	Path   string
	Reason string
}

func (e *MalformedPlanError) Error() string {
	return fmt.Sprintf("malformed plan %s: %s", e.Path, e.Reason)
}

// Repository loads plan documents from a directory. The filename of a
// plan must be its intent key plus ".json".
type Repository struct {
	dir string
}

func NewRepository(dir string) *Repository {
	return &Repository{dir: dir}
}

// Load reads the plan for one intent key.
func (r *Repository) Load(intent string) (*Plan, error) {
	intent = strings.TrimSpace(intent)
	if intent == "" {
		return nil, ErrPlanNotFound
	}
	path := filepath.Join(r.dir, intent+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, intent)
		}
		return nil, fmt.Errorf("read plan %s: %w", path, err)
	}

	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &MalformedPlanError{Path: path, Reason: err.Error()}
	}
	if err := validate(&p); err != nil {
		return nil, &MalformedPlanError{Path: path, Reason: err.Error()}
	}
	if !strings.EqualFold(p.Intent, intent) {
		return nil, &MalformedPlanError{
			Path:   path,
			Reason: fmt.Sprintf("intent %q does not match filename", p.Intent),
		}
	}
	return &p, nil
}

// List returns every loadable plan in the directory, sorted by intent.
// Broken documents are skipped; listing is a browsing aid, not a gate.
func (r *Repository) List() ([]Plan, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("read plans dir %s: %w", r.dir, err)
	}
	var plans []Plan
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		intent := strings.TrimSuffix(e.Name(), ".json")
		p, err := r.Load(intent)
		if err != nil {
			continue
		}
		plans = append(plans, *p)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].Intent < plans[j].Intent })
	return plans, nil
}

// CatalogPrompt renders the available plans as a prompt fragment for
// the plan-selection oracle call.
func (r *Repository) CatalogPrompt() string {
	plans, err := r.List()
	if err != nil || len(plans) == 0 {
		return "AVAILABLE PLANS: none\n"
	}
	var sb strings.Builder
	sb.WriteString("AVAILABLE PLANS:\n")
	for _, p := range plans {
		sb.WriteString(fmt.Sprintf("- `%s`: %s (%d steps)\n", p.Intent, p.Description, len(p.Steps)))
	}
	return sb.String()
}

func validate(p *Plan) error {
	if strings.TrimSpace(p.Intent) == "" {
		return fmt.Errorf("missing intent")
	}
	if len(p.Steps) == 0 {
		return fmt.Errorf("plan has no steps")
	}
	for i, s := range p.Steps {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("step %d is empty", i+1)
		}
	}
	return nil
}
