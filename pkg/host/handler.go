package host

import (
	"context"
	"encoding/json"
)

// RuntimeHandler is the backend dispatch point behind the command channel.
// The router interprets command payloads, calls into the handler, and turns
// its results into response envelopes; everything past this interface is
// opaque to the boundary.
//
// Implementations must be safe for use from the single server goroutine;
// they are never called concurrently.
type RuntimeHandler interface {
	// RuntimeStart asks the backend to start its subsystems.
	RuntimeStart(ctx context.Context) error

	// RuntimeStop asks the backend to stop its subsystems.
	RuntimeStop(ctx context.Context) error

	// RuntimeStatus reports the backend's current status document.
	RuntimeStatus(ctx context.Context) (any, error)

	// ConversationInjectText injects user text into the conversation loop.
	ConversationInjectText(ctx context.Context, text string) error

	// ConversationGateSet opens or closes the conversation gate.
	ConversationGateSet(ctx context.Context, active bool) error

	// ConversationLinkDetected notifies the backend of a link the shell
	// detected in conversation.
	ConversationLinkDetected(ctx context.Context, url string) error

	// ApprovalRespond resolves a pending approval request.
	ApprovalRespond(ctx context.Context, requestID string, approved bool, reason string) error

	// SchedulerList returns the scheduled task list document.
	SchedulerList(ctx context.Context) (any, error)

	// SchedulerCreate creates a task from a spec document and returns the
	// created task document.
	SchedulerCreate(ctx context.Context, spec json.RawMessage) (any, error)

	// SchedulerUpdate updates an existing task from a spec document.
	SchedulerUpdate(ctx context.Context, id string, spec json.RawMessage) error

	// SchedulerDelete removes a task.
	SchedulerDelete(ctx context.Context, id string) error

	// SchedulerTriggerNow fires a task immediately.
	SchedulerTriggerNow(ctx context.Context, id string) error

	// ConfigGet returns the runtime config document, or one key of it.
	// An empty key means the whole document.
	ConfigGet(ctx context.Context, key string) (any, error)

	// ConfigPatch sets one config key and persists the document.
	ConfigPatch(ctx context.Context, key string, value json.RawMessage) error

	// DataDeleteAll wipes all backend-owned data.
	DataDeleteAll(ctx context.Context) error

	// Close releases backend resources. Called once, from Runtime.Close.
	Close() error
}

// NoopHandler is a RuntimeHandler that accepts everything and does nothing.
// Useful for tests and latency benchmarks of the boundary itself.
type NoopHandler struct{}

var _ RuntimeHandler = NoopHandler{}

func (NoopHandler) RuntimeStart(context.Context) error { return nil }
func (NoopHandler) RuntimeStop(context.Context) error  { return nil }

func (NoopHandler) RuntimeStatus(context.Context) (any, error) {
	return map[string]any{"status": "unknown"}, nil
}

func (NoopHandler) ConversationInjectText(context.Context, string) error   { return nil }
func (NoopHandler) ConversationGateSet(context.Context, bool) error        { return nil }
func (NoopHandler) ConversationLinkDetected(context.Context, string) error { return nil }

func (NoopHandler) ApprovalRespond(context.Context, string, bool, string) error { return nil }

func (NoopHandler) SchedulerList(context.Context) (any, error) {
	return map[string]any{"tasks": []any{}}, nil
}

func (NoopHandler) SchedulerCreate(context.Context, json.RawMessage) (any, error) {
	return map[string]any{"id": nil}, nil
}

func (NoopHandler) SchedulerUpdate(context.Context, string, json.RawMessage) error { return nil }
func (NoopHandler) SchedulerDelete(context.Context, string) error                  { return nil }
func (NoopHandler) SchedulerTriggerNow(context.Context, string) error              { return nil }

func (NoopHandler) ConfigGet(context.Context, string) (any, error) {
	return map[string]any{}, nil
}

func (NoopHandler) ConfigPatch(context.Context, string, json.RawMessage) error { return nil }
func (NoopHandler) DataDeleteAll(context.Context) error                        { return nil }
func (NoopHandler) Close() error                                               { return nil }
