package host

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
)

// maxLineBytes bounds one NDJSON protocol line.
const maxLineBytes = 4 << 20

// lineWriter serializes newline-delimited JSON writes to the protocol
// stream. Responses and events share one writer, so all writes go through
// its mutex.
type lineWriter struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func (lw *lineWriter) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("host: marshal protocol line: %w", err)
	}
	lw.mu.Lock()
	defer lw.mu.Unlock()
	if _, err := lw.w.Write(data); err != nil {
		return err
	}
	if err := lw.w.WriteByte('\n'); err != nil {
		return err
	}
	return lw.w.Flush()
}

// RunStdioBridge bridges the runtime over newline-delimited JSON: one
// CommandEnvelope per input line, ResponseEnvelope and EventEnvelope lines
// on the output. Malformed lines produce error responses, not termination.
//
// The bridge returns when the input reaches EOF, ctx is canceled, or a
// runtime.stop command has been dispatched. The output stream carries the
// protocol exclusively; diagnostics go through the runtime's logger.
func RunStdioBridge(ctx context.Context, rt *Runtime, in io.Reader, out io.Writer, log Logger) error {
	if log == nil {
		log = DefaultLogger()
	}
	lw := &lineWriter{w: bufio.NewWriter(out)}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if ctx.Err() != nil {
			log.InfoPrintf("stdio bridge canceled")
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		stop, err := bridgeDispatch(rt, lw, line)
		if err != nil {
			return err
		}
		if stop {
			log.InfoPrintf("runtime.stop received; shutting down stdio bridge")
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("host: read protocol input: %w", err)
	}
	log.InfoPrintf("protocol input closed (EOF); shutting down stdio bridge")
	return nil
}

// bridgeDispatch sends one protocol line through the runtime and writes
// the response plus any events left in the poll queue. It reports whether
// the line was a successful runtime.stop.
func bridgeDispatch(rt *Runtime, lw *lineWriter, line string) (stop bool, err error) {
	respJSON, sendErr := rt.SendCommand(line)
	if sendErr != nil {
		resp := NewErrorResponse(peekRequestID(line), sendErr.Error())
		return false, lw.writeLine(resp)
	}

	if err := lw.writeRaw(respJSON); err != nil {
		return false, err
	}

	// With no callback registered the command's events are in the poll
	// queue; forward them after the response, preserving order.
	for {
		evJSON, ok := rt.PollEvent()
		if !ok {
			break
		}
		if err := lw.writeRaw(evJSON); err != nil {
			return false, err
		}
	}

	var env CommandEnvelope
	if jsonErr := json.Unmarshal([]byte(line), &env); jsonErr == nil && env.Command == CmdRuntimeStop {
		return true, nil
	}
	return false, nil
}

// writeRaw writes an already-serialized JSON document as one protocol line.
func (lw *lineWriter) writeRaw(jsonText string) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	if _, err := lw.w.WriteString(jsonText); err != nil {
		return err
	}
	if err := lw.w.WriteByte('\n'); err != nil {
		return err
	}
	return lw.w.Flush()
}

// peekRequestID best-effort extracts request_id from a line that failed
// dispatch so the error response can still be correlated.
func peekRequestID(line string) string {
	var probe struct {
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal([]byte(line), &probe); err != nil {
		return ""
	}
	return probe.RequestID
}
