package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const defaultCallTimeout = 30 * time.Second

// HTTPExecutor queries devices over their management HTTP interface.
// Structured endpoints return JSON; older devices expose only HTML
// status pages, which get scraped.
type HTTPExecutor struct {
	Registry *Registry
	Client   *http.Client
	Scheme   string
}

func NewHTTPExecutor(reg *Registry, scheme string) *HTTPExecutor {
	if scheme == "" {
		scheme = "http"
	}
	return &HTTPExecutor{
		Registry: reg,
		Client:   &http.Client{Timeout: defaultCallTimeout},
		Scheme:   scheme,
	}
}

func (e *HTTPExecutor) Execute(ctx context.Context, call Call) (map[string]any, error) {
	if err := e.Registry.ValidateCall(&call); err != nil {
		return nil, err
	}
	if strings.TrimSpace(call.Address) == "" {
		return nil, fmt.Errorf("%w: no management address for %s", ErrCommunication, call.Device)
	}

	switch call.Function {
	case "get_system_health":
		return e.getJSON(ctx, call, "/api/health")
	case "get_routing_summary":
		return e.getJSON(ctx, call, "/api/routing/summary")
	case "get_bgp_peers":
		return e.getJSON(ctx, call, "/api/routing/bgp/peers")
	case "get_interface_table":
		return e.scrapeInterfaces(ctx, call)
	case "get_neighbor_table":
		return e.scrapeNeighbors(ctx, call)
	case "run_show_command":
		return e.postExec(ctx, call)
	default:
		return nil, &ValidationError{Function: call.Function, Reason: "no executor backend for function"}
	}
}

func (e *HTTPExecutor) url(call Call, path string) string {
	return fmt.Sprintf("%s://%s%s", e.Scheme, call.Address, path)
}

func (e *HTTPExecutor) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := e.Client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCommunication, err)
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: device returned %d", ErrAuthentication, resp.StatusCode)
	case resp.StatusCode >= 400:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: device returned %d", ErrProtocol, resp.StatusCode)
	}
	return resp, nil
}

func (e *HTTPExecutor) getJSON(ctx context.Context, call Call, path string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.url(call, path), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCommunication, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: bad JSON from %s: %v", ErrProtocol, call.Device, err)
	}
	return out, nil
}

// scrapeInterfaces parses the interface status table from the device's
// HTML status page.
func (e *HTTPExecutor) scrapeInterfaces(ctx context.Context, call Call) (map[string]any, error) {
	doc, err := e.getHTML(ctx, call, "/status/interfaces")
	if err != nil {
		return nil, err
	}

	var interfaces []map[string]any
	doc.Find("table#interfaces tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 3 {
			return
		}
		interfaces = append(interfaces, map[string]any{
			"name":   strings.TrimSpace(cells.Eq(0).Text()),
			"status": strings.TrimSpace(cells.Eq(1).Text()),
			"errors": strings.TrimSpace(cells.Eq(2).Text()),
		})
	})
	if len(interfaces) == 0 {
		return nil, fmt.Errorf("%w: no interface table on status page of %s", ErrProtocol, call.Device)
	}
	return map[string]any{"interfaces": interfaces}, nil
}

// scrapeNeighbors parses the discovery-protocol neighbor table.
func (e *HTTPExecutor) scrapeNeighbors(ctx context.Context, call Call) (map[string]any, error) {
	doc, err := e.getHTML(ctx, call, "/status/neighbors")
	if err != nil {
		return nil, err
	}

	var neighbors []map[string]any
	doc.Find("table#neighbors tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		neighbors = append(neighbors, map[string]any{
			"neighbor":   strings.TrimSpace(cells.Eq(0).Text()),
			"local_port": strings.TrimSpace(cells.Eq(1).Text()),
		})
	})
	return map[string]any{"neighbors": neighbors}, nil
}

func (e *HTTPExecutor) getHTML(ctx context.Context, call Call, path string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.url(call, path), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCommunication, err)
	}
	resp, err := e.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: bad HTML from %s: %v", ErrProtocol, call.Device, err)
	}
	return doc, nil
}

func (e *HTTPExecutor) postExec(ctx context.Context, call Call) (map[string]any, error) {
	command, _ := call.Params["command"].(string)
	if strings.TrimSpace(command) == "" {
		return nil, &ValidationError{Function: call.Function, Reason: "param \"command\" must be a non-empty string"}
	}

	body, err := json.Marshal(map[string]string{"command": command})
	if err != nil {
		return nil, &ValidationError{Function: call.Function, Reason: err.Error()}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url(call, "/api/exec"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCommunication, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: bad JSON from %s: %v", ErrProtocol, call.Device, err)
	}
	return out, nil
}
