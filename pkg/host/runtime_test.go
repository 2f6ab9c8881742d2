package host

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func newTestRuntime(t *testing.T, cfg *Config, handler RuntimeHandler) *Runtime {
	t.Helper()
	if handler == nil {
		handler = NoopHandler{}
	}
	rt := NewRuntime(cfg, handler, nil)
	t.Cleanup(func() { rt.Close() })
	return rt
}

func commandJSON(id string, cmd CommandName, payload string) string {
	if payload == "" {
		return fmt.Sprintf(`{"v":1,"request_id":%q,"command":%q}`, id, cmd)
	}
	return fmt.Sprintf(`{"v":1,"request_id":%q,"command":%q,"payload":%s}`, id, cmd, payload)
}

func decodeResponse(t *testing.T, respJSON string) *ResponseEnvelope {
	t.Helper()
	var resp ResponseEnvelope
	if err := json.Unmarshal([]byte(respJSON), &resp); err != nil {
		t.Fatalf("unmarshal response %q: %v", respJSON, err)
	}
	return &resp
}

func decodeEvent(t *testing.T, evJSON string) *EventEnvelope {
	t.Helper()
	var ev EventEnvelope
	if err := json.Unmarshal([]byte(evJSON), &ev); err != nil {
		t.Fatalf("unmarshal event %q: %v", evJSON, err)
	}
	return &ev
}

func TestRuntime_InitDoesNotStart(t *testing.T) {
	h := &recordingHandler{}
	rt := newTestRuntime(t, nil, h)

	if got := rt.State(); got != StateCreated {
		t.Errorf("State = %v; want created", got)
	}
	if len(h.callNames()) != 0 {
		t.Errorf("handler called before Start: %v", h.callNames())
	}
	if _, ok := rt.PollEvent(); ok {
		t.Error("PollEvent returned an event on a fresh runtime")
	}
}

func TestRuntime_Lifecycle(t *testing.T) {
	rt := newTestRuntime(t, nil, nil)
	ping := commandJSON("r1", CmdHostPing, "")

	// Commands are rejected before Start; there is no auto-start.
	if _, err := rt.SendCommand(ping); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("SendCommand before Start err = %v; want ErrNotRunning", err)
	}

	if err := rt.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := rt.State(); got != StateRunning {
		t.Errorf("State after Start = %v; want running", got)
	}
	// Starting again is a no-op success.
	if err := rt.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	if _, err := rt.SendCommand(ping); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}

	rt.Stop()
	if got := rt.State(); got != StateStopped {
		t.Errorf("State after Stop = %v; want stopped", got)
	}
	if _, err := rt.SendCommand(ping); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("SendCommand after Stop err = %v; want ErrNotRunning", err)
	}
	// Stop again is a safe no-op.
	rt.Stop()

	// Restart after Stop.
	if err := rt.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if _, err := rt.SendCommand(ping); err != nil {
		t.Fatalf("SendCommand after restart: %v", err)
	}

	if err := rt.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := rt.State(); got != StateDestroyed {
		t.Errorf("State after Close = %v; want destroyed", got)
	}
	if _, err := rt.SendCommand(ping); !errors.Is(err, ErrClosed) {
		t.Errorf("SendCommand after Close err = %v; want ErrClosed", err)
	}
	if err := rt.Start(); !errors.Is(err, ErrClosed) {
		t.Errorf("Start after Close err = %v; want ErrClosed", err)
	}
	if _, ok := rt.PollEvent(); ok {
		t.Error("PollEvent after Close returned an event")
	}
	// Close is idempotent.
	if err := rt.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestRuntime_CloseClosesHandler(t *testing.T) {
	h := &recordingHandler{}
	rt := NewRuntime(nil, h, nil)
	if err := rt.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !h.closed.Load() {
		t.Error("Close did not close the handler")
	}
}

func TestRuntime_SendCommandMalformedJSON(t *testing.T) {
	rt := newTestRuntime(t, nil, nil)
	if err := rt.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := rt.SendCommand("{not json"); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("SendCommand err = %v; want ErrInvalidCommand", err)
	}
}

func TestRuntime_ResponseCorrelation(t *testing.T) {
	rt := newTestRuntime(t, nil, nil)
	if err := rt.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var wg sync.WaitGroup
	for i := range 32 {
		id := fmt.Sprintf("req-%d", i)
		wg.Go(func() {
			out, err := rt.SendCommand(commandJSON(id, CmdHostPing, ""))
			if err != nil {
				t.Errorf("SendCommand(%s): %v", id, err)
				return
			}
			var resp ResponseEnvelope
			if err := json.Unmarshal([]byte(out), &resp); err != nil {
				t.Errorf("unmarshal response: %v", err)
				return
			}
			if resp.RequestID != id {
				t.Errorf("response request_id = %s; want %s", resp.RequestID, id)
			}
		})
	}
	wg.Wait()
}

func TestRuntime_EventsQueuedWithoutCallback(t *testing.T) {
	rt := newTestRuntime(t, nil, nil)
	if err := rt.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	out, err := rt.SendCommand(commandJSON("r1", CmdConversationInjectText, `{"text":"hi"}`))
	if err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if resp := decodeResponse(t, out); !resp.OK {
		t.Fatalf("response error: %s", resp.Error)
	}

	evJSON, ok := rt.PollEvent()
	if !ok {
		t.Fatal("PollEvent: no event after inject_text")
	}
	if ev := decodeEvent(t, evJSON); ev.Event != "conversation.text_injected" {
		t.Errorf("event = %s", ev.Event)
	}
	if _, ok := rt.PollEvent(); ok {
		t.Error("PollEvent returned a second event")
	}
}

func TestRuntime_EventsThroughCallback(t *testing.T) {
	rt := newTestRuntime(t, nil, nil)
	if err := rt.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var got []string
	rt.SetEventCallback(func(eventJSON string) {
		got = append(got, decodeEvent(t, eventJSON).Event)
	})

	if _, err := rt.SendCommand(commandJSON("r1", CmdConversationInjectText, `{"text":"hi"}`)); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if len(got) != 1 || got[0] != "conversation.text_injected" {
		t.Errorf("callback events = %v", got)
	}
	// With a callback registered nothing reaches the poll queue.
	if _, ok := rt.PollEvent(); ok {
		t.Error("event reached the poll queue despite callback")
	}

	// Unregister: events queue again.
	rt.SetEventCallback(nil)
	if _, err := rt.SendCommand(commandJSON("r2", CmdConversationInjectText, `{"text":"hi"}`)); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("callback invoked after unregister: %v", got)
	}
	if _, ok := rt.PollEvent(); !ok {
		t.Error("no queued event after unregister")
	}
}

func TestRuntime_CallbackFlushesBacklogInOrder(t *testing.T) {
	rt := newTestRuntime(t, nil, nil)
	if err := rt.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Backlog accumulated before the callback existed.
	if err := rt.EmitEvent("backend.first", nil); err != nil {
		t.Fatalf("EmitEvent: %v", err)
	}
	if err := rt.EmitEvent("backend.second", nil); err != nil {
		t.Fatalf("EmitEvent: %v", err)
	}

	var got []string
	rt.SetEventCallback(func(eventJSON string) {
		got = append(got, decodeEvent(t, eventJSON).Event)
	})

	if _, err := rt.SendCommand(commandJSON("r1", CmdConversationInjectText, `{"text":"hi"}`)); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}

	want := []string{"backend.first", "backend.second", "conversation.text_injected"}
	if len(got) != len(want) {
		t.Fatalf("callback events = %v; want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %s; want %s", i, got[i], want[i])
		}
	}
}

func TestRuntime_ConcurrentPollersExactlyOnce(t *testing.T) {
	rt := newTestRuntime(t, nil, nil)
	if err := rt.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	const n = 200
	for i := range n {
		if err := rt.EmitEvent(fmt.Sprintf("backend.ev_%d", i), nil); err != nil {
			t.Fatalf("EmitEvent: %v", err)
		}
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for range 8 {
		wg.Go(func() {
			for {
				evJSON, ok := rt.PollEvent()
				if !ok {
					return
				}
				var ev EventEnvelope
				if err := json.Unmarshal([]byte(evJSON), &ev); err != nil {
					t.Errorf("unmarshal event: %v", err)
					return
				}
				mu.Lock()
				seen[ev.Event]++
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	if len(seen) != n {
		t.Fatalf("distinct events = %d; want %d", len(seen), n)
	}
	for name, count := range seen {
		if count != 1 {
			t.Errorf("event %s polled %d times", name, count)
		}
	}
}

func TestRuntime_EmitterAndNotify(t *testing.T) {
	rt := newTestRuntime(t, nil, nil)
	if err := rt.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-rt.EventNotify():
		t.Fatal("EventNotify fired before any event")
	default:
	}

	emit := rt.Emitter()
	if err := emit("backend.reminder_due", map[string]any{"task": "nap"}); err != nil {
		t.Fatalf("emit: %v", err)
	}

	select {
	case <-rt.EventNotify():
	default:
		t.Fatal("no wakeup pending after emit")
	}
	evJSON, ok := rt.PollEvent()
	if !ok {
		t.Fatal("PollEvent: no event after emit")
	}
	if ev := decodeEvent(t, evJSON); ev.Event != "backend.reminder_due" {
		t.Errorf("event = %s", ev.Event)
	}

	// The emitter stays safe after Close; the event is simply
	// unobservable.
	if err := rt.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := emit("backend.late", nil); err != nil {
		t.Errorf("emit after Close: %v", err)
	}
	if _, ok := rt.PollEvent(); ok {
		t.Error("PollEvent after Close returned an event")
	}
}

func TestRuntime_BoundedBufferDropsOldest(t *testing.T) {
	rt := newTestRuntime(t, &Config{EventBufferSize: 2}, nil)
	if err := rt.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for _, name := range []string{"backend.a", "backend.b", "backend.c"} {
		if err := rt.EmitEvent(name, nil); err != nil {
			t.Fatalf("EmitEvent: %v", err)
		}
	}

	var got []string
	for {
		evJSON, ok := rt.PollEvent()
		if !ok {
			break
		}
		got = append(got, decodeEvent(t, evJSON).Event)
	}
	if len(got) != 2 || got[0] != "backend.b" || got[1] != "backend.c" {
		t.Errorf("polled = %v; want [backend.b backend.c]", got)
	}
}

func TestRuntime_CloseConcurrentWithCommands(t *testing.T) {
	rt := NewRuntime(nil, NoopHandler{}, nil)
	if err := rt.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var wg sync.WaitGroup
	for i := range 16 {
		id := fmt.Sprintf("r%d", i)
		wg.Go(func() {
			for range 50 {
				_, err := rt.SendCommand(commandJSON(id, CmdHostPing, ""))
				switch {
				case err == nil:
				case errors.Is(err, ErrClosed), errors.Is(err, ErrNotRunning):
					return
				default:
					t.Errorf("SendCommand: %v", err)
					return
				}
			}
		})
	}
	wg.Go(func() {
		if err := rt.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	wg.Wait()

	if got := rt.State(); got != StateDestroyed {
		t.Errorf("State = %v; want destroyed", got)
	}
}

// The minimal embedding session: init, start, ping, poll, stop, destroy.
func TestRuntime_ExampleSession(t *testing.T) {
	cfg, err := ParseConfig("{}")
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	rt := NewRuntime(cfg, NoopHandler{}, nil)

	if err := rt.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	out, err := rt.SendCommand(commandJSON("req-1", CmdHostPing, ""))
	if err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
	resp := decodeResponse(t, out)
	if !resp.OK || resp.RequestID != "req-1" {
		t.Fatalf("response = %+v", resp)
	}
	if _, ok := rt.PollEvent(); ok {
		t.Error("ping left a pending event")
	}
	rt.Stop()
	if err := rt.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
