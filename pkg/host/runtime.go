package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/saorsa-labs/fae/pkg/buffer"
)

// Errors returned by Runtime operations.
var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("host: runtime closed")
	// ErrNotRunning is returned by SendCommand before Start or after Stop.
	ErrNotRunning = errors.New("host: runtime not running")
	// ErrInvalidCommand is returned when a command payload cannot be
	// parsed as a command envelope.
	ErrInvalidCommand = errors.New("host: invalid command")
)

// State is the lifecycle state of a Runtime.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateStopped
	StateDestroyed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// EventCallback receives one event envelope, already serialized to JSON.
// It runs on the goroutine that called SendCommand, inside that call. The
// string is only guaranteed valid for the duration of the callback at the
// C edge; pure-Go callers may retain it.
//
// The callback must not call any method of the Runtime that delivered it.
// SendCommand holds the lifecycle lock while dispatching callbacks, so
// re-entering the runtime from the callback deadlocks by contract.
type EventCallback func(eventJSON string)

// Runtime is one embedded fae runtime instance: the handle the C ABI and
// the bridges operate on.
//
// Lifecycle: created -> running -> stopped, with destroyed reachable from
// every state via Close. All methods are safe to call from any goroutine
// at any time. After Close, every method fails soft (ErrClosed or a
// negative result); none dereferences freed state.
type Runtime struct {
	cfg     *Config
	handler RuntimeHandler
	log     Logger
	queue   *buffer.Queue[EventEnvelope]

	cbMu     sync.Mutex
	callback EventCallback

	// mu is the lifecycle lock. SendCommand and PollEvent hold it for
	// reading for their full extent; Start, Stop and Close take it for
	// writing. A state transition therefore waits for in-flight commands
	// to drain before it proceeds.
	mu         sync.RWMutex
	state      State
	client     *Client
	cancel     context.CancelFunc
	serverDone <-chan struct{}
}

// NewRuntime creates a runtime in the created state. The handler is the
// backend dispatch point; ownership transfers to the runtime, which closes
// it on Close. A nil logger uses the slog default.
func NewRuntime(cfg *Config, handler RuntimeHandler, log Logger) *Runtime {
	if cfg == nil {
		cfg = &Config{}
	}
	if log == nil {
		log = DefaultLogger()
	}
	var q *buffer.Queue[EventEnvelope]
	if cfg.EventBufferSize > 0 {
		q = buffer.NewBoundedQueue[EventEnvelope](cfg.EventBufferSize)
	} else {
		q = buffer.NewQueue[EventEnvelope]()
	}
	return &Runtime{
		cfg:     cfg,
		handler: handler,
		log:     log,
		queue:   q,
		state:   StateCreated,
	}
}

// State returns the current lifecycle state.
func (r *Runtime) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Start transitions the runtime to running, spawning the command server
// goroutine. Starting an already-running runtime is a no-op success.
// Restart after Stop is supported and equivalent to a fresh start.
func (r *Runtime) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case StateDestroyed:
		return ErrClosed
	case StateRunning:
		return nil
	}

	client, server := CommandChannel(r.cfg.requestCapacity(), r.handler, r.log)
	ctx, cancel := context.WithCancel(context.Background())
	go server.Run(ctx)

	r.client = client
	r.cancel = cancel
	r.serverDone = client.Done()
	r.state = StateRunning
	r.log.DebugPrintf("runtime started")
	return nil
}

// Stop transitions the runtime to stopped, canceling the command server
// and waiting for it to exit. In-flight SendCommand calls complete first.
// Stopping a non-running runtime is a safe no-op. The runtime remains
// valid; call Start to resume or Close to free it.
func (r *Runtime) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

func (r *Runtime) stopLocked() {
	if r.state != StateRunning {
		return
	}
	r.cancel()
	<-r.serverDone
	r.client = nil
	r.cancel = nil
	r.serverDone = nil
	r.state = StateStopped
	r.log.DebugPrintf("runtime stopped")
}

// SendCommand dispatches one JSON command envelope and returns the JSON
// response envelope. It blocks until the backend produces the response.
//
// Safe to call concurrently; the server goroutine processes one command
// at a time. Commands are rejected unless the runtime is running (there
// is no auto-start).
//
// Events the command emits are delivered before SendCommand returns: all
// through the registered callback (synchronously, on this goroutine, in
// emission order, after any queued backlog) when one is registered at
// dispatch time, otherwise all appended to the poll queue. A command's
// events are never split across the two paths.
func (r *Runtime) SendCommand(commandJSON string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch r.state {
	case StateDestroyed:
		return "", ErrClosed
	case StateRunning:
	default:
		return "", ErrNotRunning
	}

	var env CommandEnvelope
	if err := json.Unmarshal([]byte(commandJSON), &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}

	resp, events, err := r.client.Send(context.Background(), &env)
	if err != nil {
		return "", fmt.Errorf("host: dispatch: %w", err)
	}

	r.deliver(events)

	out, err := json.Marshal(resp)
	if err != nil {
		return "", fmt.Errorf("host: marshal response: %w", err)
	}
	return string(out), nil
}

// deliver routes one command's events. The callback registration is
// snapshotted once, so a concurrent SetEventCallback cannot split this
// command's events across the callback and the queue.
func (r *Runtime) deliver(events []EventEnvelope) {
	cb := r.snapshotCallback()
	if cb == nil {
		for _, ev := range events {
			if r.queue.Push(ev) {
				r.log.WarnPrintf("event buffer full; dropped oldest event")
			}
		}
		return
	}

	// Flush queued backlog first so the callback observes all events in
	// emission order, then this command's events, bypassing the queue.
	for _, ev := range r.queue.Drain() {
		r.invokeCallback(cb, ev)
	}
	for _, ev := range events {
		r.invokeCallback(cb, ev)
	}
}

func (r *Runtime) snapshotCallback() EventCallback {
	r.cbMu.Lock()
	defer r.cbMu.Unlock()
	return r.callback
}

func (r *Runtime) invokeCallback(cb EventCallback, ev EventEnvelope) {
	data, err := json.Marshal(ev)
	if err != nil {
		r.log.ErrorPrintf("marshal event %s: %v", ev.Event, err)
		return
	}
	cb(string(data))
}

// EventEmitter appends an asynchronous (non-command) event to a runtime's
// event queue. Backend subsystems hold one instead of the runtime itself.
type EventEmitter func(event string, payload any) error

// EmitEvent appends an event that is not tied to a specific command (an
// asynchronous backend notification). It is retrievable via PollEvent, or
// flushed through the callback during the next SendCommand.
func (r *Runtime) EmitEvent(event string, payload any) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.state == StateDestroyed {
		return ErrClosed
	}
	return r.emitAsync(event, payload)
}

// Emitter returns an EventEmitter bound to this runtime. Unlike EmitEvent
// it does not take the lifecycle lock, so the backend handler may call it
// while a command dispatch is in flight (EmitEvent there would deadlock
// against a pending Stop or Close). Events emitted after Close are
// discarded by PollEvent.
func (r *Runtime) Emitter() EventEmitter {
	return r.emitAsync
}

func (r *Runtime) emitAsync(event string, payload any) error {
	if r.queue.Push(NewEvent(event, payload)) {
		r.log.WarnPrintf("event buffer full; dropped oldest event")
	}
	return nil
}

// EventNotify returns a channel signaled whenever an event lands in the
// poll queue. One signal may cover several events; drain with PollEvent
// on each wakeup. Bridges use this to forward events that arrive between
// commands.
func (r *Runtime) EventNotify() <-chan struct{} {
	return r.queue.Notify()
}

// PollEvent removes and returns the oldest pending event as JSON.
// Non-blocking: the second return value is false when no event is
// pending (or the runtime is closed). Concurrent pollers each receive
// distinct events, in FIFO order.
func (r *Runtime) PollEvent() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.state == StateDestroyed {
		return "", false
	}
	ev, ok := r.queue.TryPop()
	if !ok {
		return "", false
	}
	data, err := json.Marshal(ev)
	if err != nil {
		r.log.ErrorPrintf("marshal event %s: %v", ev.Event, err)
		return "", false
	}
	return string(data), true
}

// SetEventCallback registers cb for synchronous event delivery during
// SendCommand, or unregisters it when cb is nil. The swap is atomic with
// respect to in-flight dispatch: each dispatch uses a single consistent
// snapshot of the registration.
//
// The callback must not call back into this runtime; doing so deadlocks
// (see EventCallback).
func (r *Runtime) SetEventCallback(cb EventCallback) {
	r.cbMu.Lock()
	r.callback = cb
	r.cbMu.Unlock()
}

// Close destroys the runtime from any state: stops the command server if
// running (draining in-flight commands first), clears the callback and
// event buffer, and closes the backend handler. Idempotent. Every other
// operation on the runtime fails with ErrClosed afterwards.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateDestroyed {
		return nil
	}
	r.stopLocked()

	r.cbMu.Lock()
	r.callback = nil
	r.cbMu.Unlock()
	r.queue.Clear()

	var err error
	if r.handler != nil {
		err = r.handler.Close()
	}
	r.state = StateDestroyed
	r.log.DebugPrintf("runtime destroyed")
	if err != nil {
		return fmt.Errorf("host: close handler: %w", err)
	}
	return nil
}
