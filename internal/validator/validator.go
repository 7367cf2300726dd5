package validator

import (
	"context"
	"fmt"
	"strings"

	"netsleuth/internal/config"
	"netsleuth/internal/logging"
	"netsleuth/internal/session"
)

// InvalidTargetError is fatal: the query names no known device, so there
// is nothing to investigate and no retry will change that.
type InvalidTargetError struct {
	Query   string
	Unknown []string
}

func (e *InvalidTargetError) Error() string {
	if len(e.Unknown) > 0 {
		return fmt.Sprintf("unknown target device(s): %s", strings.Join(e.Unknown, ", "))
	}
	return fmt.Sprintf("no target device recognized in query %q", e.Query)
}

// Extractor is the oracle capability that maps a query to device names.
type Extractor interface {
	ExtractDevices(ctx context.Context, query string, inventory []config.Device) ([]string, error)
}

// Validator resolves a user query to a concrete set of inventory devices.
type Validator struct {
	Inventory []config.Device
	Extractor Extractor
}

func New(inventory []config.Device, ex Extractor) *Validator {
	return &Validator{Inventory: inventory, Extractor: ex}
}

// Resolve returns one fresh DeviceInvestigation per targeted device, or
// an InvalidTargetError when the query matches nothing in the inventory.
func (v *Validator) Resolve(ctx context.Context, query string) ([]*session.DeviceInvestigation, error) {
	names, err := v.Extractor.ExtractDevices(ctx, query, v.Inventory)
	if err != nil {
		// Oracle down: fall back to literal name matching so obvious
		// queries still work.
		logging.L.Warnw("device extraction failed, falling back to lexical match", "err", err)
		names = v.lexicalMatch(query)
	}

	var targets []*session.DeviceInvestigation
	var unknown []string
	seen := map[string]struct{}{}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		dev, ok := findDevice(v.Inventory, name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		key := strings.ToLower(dev.Name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		targets = append(targets, &session.DeviceInvestigation{
			DeviceName: dev.Name,
			Address:    dev.Address,
			Role:       dev.Role,
		})
	}

	if len(unknown) > 0 {
		return nil, &InvalidTargetError{Query: query, Unknown: unknown}
	}
	if len(targets) == 0 {
		return nil, &InvalidTargetError{Query: query}
	}
	return targets, nil
}

func (v *Validator) lexicalMatch(query string) []string {
	q := strings.ToLower(query)
	var names []string
	for _, d := range v.Inventory {
		if strings.Contains(q, strings.ToLower(d.Name)) {
			names = append(names, d.Name)
		}
	}
	return names
}

func findDevice(inventory []config.Device, name string) (config.Device, bool) {
	for _, d := range inventory {
		if strings.EqualFold(d.Name, name) {
			return d, true
		}
	}
	return config.Device{}, false
}
