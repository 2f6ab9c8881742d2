package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrChannelClosed is returned by Client.Send when the server has stopped.
var ErrChannelClosed = errors.New("host: command channel closed")

// DefaultRequestCapacity is the default command channel buffer size.
const DefaultRequestCapacity = 32

// request carries one command envelope to the server goroutine together
// with the channel its result is delivered on.
type request struct {
	envelope *CommandEnvelope
	respCh   chan result
}

// result is the server's reply to one request: the response envelope plus
// the events the command emitted, in emission order.
type result struct {
	resp   *ResponseEnvelope
	events []EventEnvelope
}

// Client is the caller-side half of the command channel. It is safe for
// concurrent use; requests are serialized by the server goroutine.
type Client struct {
	reqCh chan<- request
	done  <-chan struct{}
}

// Server is the backend-side half of the command channel. It owns the
// RuntimeHandler: commands are processed one at a time on the Run
// goroutine, so the backend is never accessed concurrently.
type Server struct {
	reqCh   <-chan request
	handler RuntimeHandler
	log     Logger
	done    chan struct{}
}

// CommandChannel creates a connected client/server pair. The server must
// be started with Run before the client can make progress.
func CommandChannel(capacity int, handler RuntimeHandler, log Logger) (*Client, *Server) {
	if capacity < 1 {
		capacity = 1
	}
	if log == nil {
		log = DefaultLogger()
	}
	ch := make(chan request, capacity)
	done := make(chan struct{})
	return &Client{reqCh: ch, done: done},
		&Server{reqCh: ch, handler: handler, log: log, done: done}
}

// Send dispatches one command and returns its response together with the
// events it emitted. It blocks until the server replies, ctx is done, or
// the server stops.
func (c *Client) Send(ctx context.Context, env *CommandEnvelope) (*ResponseEnvelope, []EventEnvelope, error) {
	req := request{envelope: env, respCh: make(chan result, 1)}
	select {
	case c.reqCh <- req:
	case <-c.done:
		return nil, nil, ErrChannelClosed
	case <-ctx.Done():
		return nil, nil, fmt.Errorf("host: send command: %w", ctx.Err())
	}
	select {
	case res := <-req.respCh:
		return res.resp, res.events, nil
	case <-c.done:
		return nil, nil, ErrChannelClosed
	case <-ctx.Done():
		return nil, nil, fmt.Errorf("host: send command: %w", ctx.Err())
	}
}

// Done is closed when the server goroutine has exited.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Run processes requests until ctx is canceled. Requests already buffered
// at cancellation time are failed rather than dropped, so no caller is
// left waiting.
func (s *Server) Run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			s.failPending()
			return
		case req := <-s.reqCh:
			resp, events := s.route(ctx, req.envelope)
			req.respCh <- result{resp: resp, events: events}
		}
	}
}

func (s *Server) failPending() {
	for {
		select {
		case req := <-s.reqCh:
			req.respCh <- result{
				resp: NewErrorResponse(req.envelope.RequestID, "command channel stopped"),
			}
		default:
			return
		}
	}
}

// collector accumulates the events one command emits, in order.
type collector struct {
	events []EventEnvelope
}

func (c *collector) emit(event string, payload any) {
	c.events = append(c.events, NewEvent(event, payload))
}

// route dispatches one command envelope to the appropriate handler and
// returns the response plus emitted events. Routing failures are reported
// as error response envelopes; route never panics past this point.
func (s *Server) route(ctx context.Context, env *CommandEnvelope) (*ResponseEnvelope, []EventEnvelope) {
	if err := env.Validate(); err != nil {
		return NewErrorResponse(env.RequestID, err.Error()), nil
	}
	if !env.Command.Known() {
		return NewErrorResponse(env.RequestID, fmt.Sprintf("unknown command %q", env.Command)), nil
	}

	ec := &collector{}
	resp, err := s.dispatch(ctx, env, ec)
	if err != nil {
		s.log.DebugPrintf("command %s failed: %v", env.Command, err)
		return NewErrorResponse(env.RequestID, err.Error()), nil
	}
	return resp, ec.events
}

func (s *Server) dispatch(ctx context.Context, env *CommandEnvelope, ec *collector) (*ResponseEnvelope, error) {
	id := env.RequestID
	switch env.Command {
	case CmdHostPing:
		return NewResponse(id, map[string]any{"pong": true}), nil

	case CmdHostVersion:
		return NewResponse(id, map[string]any{
			"contract_version": ContractVersion,
			"channel":          "host_command_v0",
		}), nil

	case CmdRuntimeStart:
		if err := s.handler.RuntimeStart(ctx); err != nil {
			return nil, err
		}
		ec.emit("runtime.start_requested", map[string]any{"request_id": id})
		return NewResponse(id, map[string]any{"accepted": true}), nil

	case CmdRuntimeStop:
		if err := s.handler.RuntimeStop(ctx); err != nil {
			return nil, err
		}
		ec.emit("runtime.stop_requested", map[string]any{"request_id": id})
		return NewResponse(id, map[string]any{"accepted": true}), nil

	case CmdRuntimeStatus:
		status, err := s.handler.RuntimeStatus(ctx)
		if err != nil {
			return nil, err
		}
		return NewResponse(id, status), nil

	case CmdConversationInjectText:
		var p struct {
			Text string `json:"text"`
		}
		if err := decodePayload(env.Payload, &p); err != nil {
			return nil, err
		}
		if p.Text == "" {
			return nil, errors.New("host: inject_text: text cannot be empty")
		}
		if err := s.handler.ConversationInjectText(ctx, p.Text); err != nil {
			return nil, err
		}
		ec.emit("conversation.text_injected", map[string]any{
			"request_id": id,
			"chars":      len(p.Text),
		})
		return NewResponse(id, map[string]any{"accepted": true}), nil

	case CmdConversationGateSet:
		var p struct {
			Active bool `json:"active"`
		}
		if err := decodePayload(env.Payload, &p); err != nil {
			return nil, err
		}
		if err := s.handler.ConversationGateSet(ctx, p.Active); err != nil {
			return nil, err
		}
		ec.emit("conversation.gate_set", map[string]any{
			"request_id": id,
			"active":     p.Active,
		})
		return NewResponse(id, map[string]any{"accepted": true, "active": p.Active}), nil

	case CmdConversationLinkDetected:
		var p struct {
			URL string `json:"url"`
		}
		if err := decodePayload(env.Payload, &p); err != nil {
			return nil, err
		}
		if p.URL == "" {
			return nil, errors.New("host: link_detected: url cannot be empty")
		}
		if err := s.handler.ConversationLinkDetected(ctx, p.URL); err != nil {
			return nil, err
		}
		ec.emit("conversation.link_detected", map[string]any{
			"request_id": id,
			"url":        p.URL,
		})
		return NewResponse(id, map[string]any{"accepted": true}), nil

	case CmdApprovalRespond:
		var p struct {
			RequestID string `json:"request_id"`
			Approved  bool   `json:"approved"`
			Reason    string `json:"reason"`
		}
		if err := decodePayload(env.Payload, &p); err != nil {
			return nil, err
		}
		if p.RequestID == "" {
			return nil, errors.New("host: approval.respond: request_id cannot be empty")
		}
		if err := s.handler.ApprovalRespond(ctx, p.RequestID, p.Approved, p.Reason); err != nil {
			return nil, err
		}
		ec.emit("approval.responded", map[string]any{
			"request_id": p.RequestID,
			"approved":   p.Approved,
		})
		return NewResponse(id, map[string]any{"accepted": true}), nil

	case CmdSchedulerList:
		doc, err := s.handler.SchedulerList(ctx)
		if err != nil {
			return nil, err
		}
		return NewResponse(id, doc), nil

	case CmdSchedulerCreate:
		doc, err := s.handler.SchedulerCreate(ctx, env.Payload)
		if err != nil {
			return nil, err
		}
		ec.emit("scheduler.created", doc)
		return NewResponse(id, doc), nil

	case CmdSchedulerUpdate:
		taskID, err := payloadID(env.Payload)
		if err != nil {
			return nil, err
		}
		if err := s.handler.SchedulerUpdate(ctx, taskID, env.Payload); err != nil {
			return nil, err
		}
		ec.emit("scheduler.updated", map[string]any{"id": taskID})
		return NewResponse(id, map[string]any{"accepted": true, "id": taskID}), nil

	case CmdSchedulerDelete:
		taskID, err := payloadID(env.Payload)
		if err != nil {
			return nil, err
		}
		if err := s.handler.SchedulerDelete(ctx, taskID); err != nil {
			return nil, err
		}
		ec.emit("scheduler.deleted", map[string]any{"id": taskID})
		return NewResponse(id, map[string]any{"accepted": true, "id": taskID}), nil

	case CmdSchedulerTriggerNow:
		taskID, err := payloadID(env.Payload)
		if err != nil {
			return nil, err
		}
		if err := s.handler.SchedulerTriggerNow(ctx, taskID); err != nil {
			return nil, err
		}
		ec.emit("scheduler.triggered", map[string]any{"id": taskID})
		return NewResponse(id, map[string]any{"accepted": true, "id": taskID}), nil

	case CmdConfigGet:
		var p struct {
			Key string `json:"key"`
		}
		if err := decodePayload(env.Payload, &p); err != nil {
			return nil, err
		}
		doc, err := s.handler.ConfigGet(ctx, p.Key)
		if err != nil {
			return nil, err
		}
		return NewResponse(id, doc), nil

	case CmdConfigPatch:
		var p struct {
			Key   string          `json:"key"`
			Value json.RawMessage `json:"value"`
		}
		if err := decodePayload(env.Payload, &p); err != nil {
			return nil, err
		}
		if p.Key == "" {
			return nil, errors.New("host: config.patch: key cannot be empty")
		}
		if err := s.handler.ConfigPatch(ctx, p.Key, p.Value); err != nil {
			return nil, err
		}
		ec.emit("config.patched", map[string]any{"key": p.Key})
		return NewResponse(id, map[string]any{"accepted": true, "key": p.Key}), nil

	case CmdDataDeleteAll:
		if err := s.handler.DataDeleteAll(ctx); err != nil {
			return nil, err
		}
		ec.emit("data.deleted", map[string]any{"request_id": id})
		return NewResponse(id, map[string]any{"accepted": true}), nil
	}

	return nil, fmt.Errorf("host: unhandled command %q", env.Command)
}

// decodePayload unmarshals a command payload. A missing payload decodes as
// the zero value so commands with all-optional fields accept it.
func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("host: invalid payload: %w", err)
	}
	return nil
}

// payloadID extracts the required "id" field shared by the scheduler
// mutation commands.
func payloadID(raw json.RawMessage) (string, error) {
	var p struct {
		ID string `json:"id"`
	}
	if err := decodePayload(raw, &p); err != nil {
		return "", err
	}
	if p.ID == "" {
		return "", errors.New("host: id cannot be empty")
	}
	return p.ID, nil
}
