// Package core provides the default backend behind the host boundary:
// a RuntimeHandler wired to the kv-backed scheduler store and the
// file-backed config store, plus the Open assembly point the C ABI and
// the CLI both use.
//
// The real conversation subsystems (speech, models, audio) hang off this
// package in the full runtime; the boundary only ever sees them through
// the RuntimeHandler interface.
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/saorsa-labs/fae/pkg/config"
	"github.com/saorsa-labs/fae/pkg/host"
	"github.com/saorsa-labs/fae/pkg/kv"
	"github.com/saorsa-labs/fae/pkg/scheduler"
)

// Handler is the default RuntimeHandler implementation.
type Handler struct {
	store kv.Store
	tasks *scheduler.Store
	cfg   *config.Store
	emit  host.EventEmitter

	mu           sync.Mutex
	started      bool
	startedAt    time.Time
	gateActive   bool
	lastInjected string
	approvals    map[string]bool
}

var _ host.RuntimeHandler = (*Handler)(nil)

// NewHandler creates a Handler over the given stores. The kv store is
// owned by the handler and closed by Close; the config store is not
// (it has no resources to release).
func NewHandler(store kv.Store, cfg *config.Store) *Handler {
	return &Handler{
		store:     store,
		tasks:     scheduler.NewStore(store),
		cfg:       cfg,
		emit:      func(string, any) error { return nil },
		approvals: make(map[string]bool),
	}
}

// BindEmitter gives the backend its channel for asynchronous events:
// notifications produced outside the context of a specific command. Bound
// by core.Open once the runtime exists; unbound handlers drop emissions.
func (h *Handler) BindEmitter(emit host.EventEmitter) {
	if emit != nil {
		h.emit = emit
	}
}

func (h *Handler) RuntimeStart(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.started {
		h.started = true
		h.startedAt = time.Now().UTC()
	}
	return nil
}

func (h *Handler) RuntimeStop(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started = false
	return nil
}

func (h *Handler) RuntimeStatus(ctx context.Context) (any, error) {
	tasks, err := h.tasks.List(ctx)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	status := "idle"
	doc := map[string]any{
		"gate_active": h.gateActive,
		"task_count":  len(tasks),
	}
	if h.started {
		status = "active"
		doc["started_at"] = h.startedAt.Format(time.RFC3339)
	}
	if h.lastInjected != "" {
		doc["last_injected_text"] = h.lastInjected
	}
	if len(h.approvals) > 0 {
		doc["approvals_seen"] = len(h.approvals)
	}
	doc["status"] = status
	return doc, nil
}

func (h *Handler) ConversationInjectText(_ context.Context, text string) error {
	h.mu.Lock()
	h.lastInjected = text
	h.mu.Unlock()
	return nil
}

func (h *Handler) ConversationGateSet(_ context.Context, active bool) error {
	h.mu.Lock()
	h.gateActive = active
	h.mu.Unlock()
	return nil
}

func (h *Handler) ConversationLinkDetected(_ context.Context, url string) error {
	if !strings.Contains(url, "://") {
		return fmt.Errorf("core: link_detected: %q is not a url", url)
	}
	return nil
}

func (h *Handler) ApprovalRespond(_ context.Context, requestID string, approved bool, _ string) error {
	h.mu.Lock()
	h.approvals[requestID] = approved
	h.mu.Unlock()
	return nil
}

func (h *Handler) SchedulerList(ctx context.Context) (any, error) {
	tasks, err := h.tasks.List(ctx)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []*scheduler.Task{}
	}
	return map[string]any{"tasks": tasks}, nil
}

func (h *Handler) SchedulerCreate(ctx context.Context, rawSpec json.RawMessage) (any, error) {
	var spec scheduler.Spec
	if err := json.Unmarshal(rawSpec, &spec); err != nil {
		return nil, fmt.Errorf("core: scheduler.create: %w", err)
	}
	return h.tasks.Create(ctx, spec)
}

func (h *Handler) SchedulerUpdate(ctx context.Context, id string, rawSpec json.RawMessage) error {
	var spec scheduler.Spec
	if err := json.Unmarshal(rawSpec, &spec); err != nil {
		return fmt.Errorf("core: scheduler.update: %w", err)
	}
	_, err := h.tasks.Update(ctx, id, spec)
	return err
}

func (h *Handler) SchedulerDelete(ctx context.Context, id string) error {
	return h.tasks.Delete(ctx, id)
}

func (h *Handler) SchedulerTriggerNow(ctx context.Context, id string) error {
	task, err := h.tasks.Get(ctx, id)
	if err != nil {
		return err
	}
	// Firing is asynchronous from the command's point of view: the
	// notification goes out as a backend event, not in the response.
	return h.emit("scheduler.task_fired", map[string]any{
		"id":   task.ID,
		"name": task.Name,
	})
}

func (h *Handler) ConfigGet(_ context.Context, key string) (any, error) {
	if key == "" {
		return h.cfg.Document(), nil
	}
	// Keys starting with '.' are jq expressions; plain keys are dotted
	// paths.
	var (
		value any
		err   error
	)
	if strings.HasPrefix(key, ".") {
		value, err = h.cfg.Query(key)
	} else {
		value, err = h.cfg.Get(key)
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{"key": key, "value": value}, nil
}

func (h *Handler) ConfigPatch(_ context.Context, key string, rawValue json.RawMessage) error {
	var value any
	if err := json.Unmarshal(rawValue, &value); err != nil {
		return fmt.Errorf("core: config.patch: %w", err)
	}
	return h.cfg.Patch(key, value)
}

func (h *Handler) DataDeleteAll(ctx context.Context) error {
	if err := h.tasks.DeleteAll(ctx); err != nil {
		return err
	}
	return h.cfg.Reset()
}

func (h *Handler) Close() error {
	return h.store.Close()
}
