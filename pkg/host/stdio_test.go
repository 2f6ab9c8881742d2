package host

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func runBridge(t *testing.T, rt *Runtime, input string) []string {
	t.Helper()
	var out bytes.Buffer
	if err := RunStdioBridge(context.Background(), rt, strings.NewReader(input), &out, nil); err != nil {
		t.Fatalf("RunStdioBridge: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil
	}
	return lines
}

func TestStdioBridge_Session(t *testing.T) {
	rt := newTestRuntime(t, nil, nil)
	if err := rt.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	input := strings.Join([]string{
		commandJSON("r1", CmdHostPing, ""),
		"",
		commandJSON("r2", CmdConversationInjectText, `{"text":"hello"}`),
		commandJSON("r3", CmdRuntimeStop, ""),
	}, "\n") + "\n"

	lines := runBridge(t, rt, input)

	// r1 response, r2 response, r2's event, r3 response, r3's event.
	if len(lines) != 5 {
		t.Fatalf("output lines = %d: %v", len(lines), lines)
	}
	if resp := decodeResponse(t, lines[0]); !resp.OK || resp.RequestID != "r1" {
		t.Errorf("line 0 = %s", lines[0])
	}
	if resp := decodeResponse(t, lines[1]); !resp.OK || resp.RequestID != "r2" {
		t.Errorf("line 1 = %s", lines[1])
	}
	if ev := decodeEvent(t, lines[2]); ev.Event != "conversation.text_injected" {
		t.Errorf("line 2 = %s", lines[2])
	}
	if resp := decodeResponse(t, lines[3]); !resp.OK || resp.RequestID != "r3" {
		t.Errorf("line 3 = %s", lines[3])
	}
	if ev := decodeEvent(t, lines[4]); ev.Event != "runtime.stop_requested" {
		t.Errorf("line 4 = %s", lines[4])
	}
}

func TestStdioBridge_MalformedLineKeepsGoing(t *testing.T) {
	rt := newTestRuntime(t, nil, nil)
	if err := rt.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	input := "{not json\n" + commandJSON("r2", CmdHostPing, "") + "\n"
	lines := runBridge(t, rt, input)

	if len(lines) != 2 {
		t.Fatalf("output lines = %d: %v", len(lines), lines)
	}
	if resp := decodeResponse(t, lines[0]); resp.OK || resp.Error == "" {
		t.Errorf("line 0 = %s; want error response", lines[0])
	}
	if resp := decodeResponse(t, lines[1]); !resp.OK || resp.RequestID != "r2" {
		t.Errorf("line 1 = %s", lines[1])
	}
}

func TestStdioBridge_ErrorResponseKeepsRequestID(t *testing.T) {
	// Runtime never started: dispatch fails, but the request id from the
	// line must still come back on the error response.
	rt := newTestRuntime(t, nil, nil)

	lines := runBridge(t, rt, commandJSON("r9", CmdHostPing, "")+"\n")
	if len(lines) != 1 {
		t.Fatalf("output lines = %d: %v", len(lines), lines)
	}
	resp := decodeResponse(t, lines[0])
	if resp.OK || resp.RequestID != "r9" {
		t.Errorf("response = %+v", resp)
	}
}

func TestStdioBridge_EOF(t *testing.T) {
	rt := newTestRuntime(t, nil, nil)
	if err := rt.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if lines := runBridge(t, rt, ""); lines != nil {
		t.Errorf("output on empty input: %v", lines)
	}
}
