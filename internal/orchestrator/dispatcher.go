package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"netsleuth/internal/logging"
	"netsleuth/internal/metrics"
)

// Result is what the dispatcher reports back for every finished session.
type Result struct {
	SessionID string                  `json:"session_id"`
	UserQuery string                  `json:"user_query"`
	State     string                  `json:"state"`
	Summary   string                  `json:"summary,omitempty"`
	Error     string                  `json:"error,omitempty"`
	Metrics   *metrics.SessionMetrics `json:"metrics,omitempty"`
}

type job struct {
	id    string
	query string
}

// Dispatcher runs sessions from a queue, one at a time, and publishes
// results on Results. It tracks the running session so it can be
// cancelled by ID from the CLI.
type Dispatcher struct {
	Engine  *Engine
	Timeout time.Duration
	Results chan Result

	queue chan job

	mu        sync.Mutex
	curID     string
	curCancel context.CancelFunc
}

func NewDispatcher(e *Engine, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		Engine:  e,
		Timeout: timeout,
		Results: make(chan Result, 100),
		queue:   make(chan job, 100),
	}
}

// Start launches the worker goroutine draining the queue.
func (d *Dispatcher) Start() {
	go func() {
		for j := range d.queue {
			logging.L.Infow("dispatching session", "session", j.id, "query", j.query)
			d.runOne(j)
		}
	}()
}

// Submit enqueues a query and returns the session ID it will run under.
func (d *Dispatcher) Submit(query string) string {
	id := uuid.New().String()[:8]
	d.queue <- job{id: id, query: query}
	return id
}

// Cancel aborts the currently running session. With an empty id any
// running session is cancelled; with an id only a match is.
func (d *Dispatcher) Cancel(id string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.curCancel == nil {
		return "", fmt.Errorf("no session is currently running")
	}
	if id != "" && !strings.EqualFold(id, d.curID) {
		return "", fmt.Errorf("session %s is not running (current: %s)", id, d.curID)
	}
	d.curCancel()
	return d.curID, nil
}

func (d *Dispatcher) runOne(j job) {
	ctx := context.Background()
	var cancel context.CancelFunc
	if d.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	d.mu.Lock()
	d.curID = j.id
	d.curCancel = cancel
	d.mu.Unlock()
	defer func() {
		cancel()
		d.mu.Lock()
		if d.curID == j.id {
			d.curID = ""
			d.curCancel = nil
		}
		d.mu.Unlock()
	}()

	sess, sm, err := d.Engine.RunWithID(ctx, j.id, j.query)

	res := Result{
		SessionID: sess.ID,
		UserQuery: j.query,
		State:     sess.State,
		Summary:   sess.Summary,
		Metrics:   sm,
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		res.Error = err.Error()
	}
	d.Results <- res
}
