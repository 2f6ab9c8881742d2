// Package host implements the embedding boundary of the fae runtime: the
// versioned command/response/event wire contract, the serialized command
// channel in front of the backend, the runtime handle lifecycle, and the
// transports (stdio, websocket) native shells drive it through.
//
// The C ABI in cmd/libfae is a thin wrapper over this package.
package host

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/saorsa-labs/fae/pkg/jsontime"
)

// ContractVersion is the wire contract version carried in every envelope.
const ContractVersion = 1

// CommandName identifies a host command in wire format.
type CommandName string

// The v0 host command set.
const (
	CmdHostPing                 CommandName = "host.ping"
	CmdHostVersion              CommandName = "host.version"
	CmdRuntimeStart             CommandName = "runtime.start"
	CmdRuntimeStop              CommandName = "runtime.stop"
	CmdRuntimeStatus            CommandName = "runtime.status"
	CmdConversationInjectText   CommandName = "conversation.inject_text"
	CmdConversationGateSet      CommandName = "conversation.gate_set"
	CmdConversationLinkDetected CommandName = "conversation.link_detected"
	CmdApprovalRespond          CommandName = "approval.respond"
	CmdSchedulerList            CommandName = "scheduler.list"
	CmdSchedulerCreate          CommandName = "scheduler.create"
	CmdSchedulerUpdate          CommandName = "scheduler.update"
	CmdSchedulerDelete          CommandName = "scheduler.delete"
	CmdSchedulerTriggerNow      CommandName = "scheduler.trigger_now"
	CmdConfigGet                CommandName = "config.get"
	CmdConfigPatch              CommandName = "config.patch"
	CmdDataDeleteAll            CommandName = "data.delete_all"
)

var commandNames = map[CommandName]bool{
	CmdHostPing:                 true,
	CmdHostVersion:              true,
	CmdRuntimeStart:             true,
	CmdRuntimeStop:              true,
	CmdRuntimeStatus:            true,
	CmdConversationInjectText:   true,
	CmdConversationGateSet:      true,
	CmdConversationLinkDetected: true,
	CmdApprovalRespond:          true,
	CmdSchedulerList:            true,
	CmdSchedulerCreate:          true,
	CmdSchedulerUpdate:          true,
	CmdSchedulerDelete:          true,
	CmdSchedulerTriggerNow:      true,
	CmdConfigGet:                true,
	CmdConfigPatch:              true,
	CmdDataDeleteAll:            true,
}

// Known reports whether n is part of the v0 command set.
func (n CommandName) Known() bool {
	return commandNames[n]
}

// CommandEnvelope is a versioned command from frontend -> backend host.
// The payload is opaque to the boundary; only the router's per-command
// handlers interpret it.
type CommandEnvelope struct {
	V         uint32          `json:"v"`
	RequestID string          `json:"request_id"`
	Command   CommandName     `json:"command"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Validate checks envelope version and required identifiers.
func (e *CommandEnvelope) Validate() error {
	if e.V != ContractVersion {
		return fmt.Errorf("host: unsupported contract version %d; expected %d", e.V, ContractVersion)
	}
	if e.RequestID == "" {
		return fmt.Errorf("host: request_id cannot be empty")
	}
	return nil
}

// ResponseEnvelope is a versioned response from backend host -> frontend,
// correlated 1:1 with a command via RequestID.
type ResponseEnvelope struct {
	V         uint32          `json:"v"`
	RequestID string          `json:"request_id"`
	OK        bool            `json:"ok"`
	Payload   json.RawMessage `json:"payload"`
	Error     string          `json:"error,omitempty"`
}

// NewResponse builds a successful response envelope. The payload is
// marshaled to JSON; a marshal failure degrades to an error envelope.
func NewResponse(requestID string, payload any) *ResponseEnvelope {
	raw, err := json.Marshal(payload)
	if err != nil {
		return NewErrorResponse(requestID, fmt.Sprintf("marshal response payload: %v", err))
	}
	return &ResponseEnvelope{
		V:         ContractVersion,
		RequestID: requestID,
		OK:        true,
		Payload:   raw,
	}
}

// NewErrorResponse builds an error response envelope.
func NewErrorResponse(requestID, message string) *ResponseEnvelope {
	return &ResponseEnvelope{
		V:         ContractVersion,
		RequestID: requestID,
		OK:        false,
		Payload:   json.RawMessage("null"),
		Error:     message,
	}
}

// EventEnvelope is a versioned event from backend host -> frontend. Events
// are not correlated with a specific command on the wire; the boundary
// delivers them either through the registered callback or the poll queue.
type EventEnvelope struct {
	V       uint32          `json:"v"`
	EventID string          `json:"event_id"`
	Event   string          `json:"event"`
	Time    jsontime.Milli  `json:"time"`
	Payload json.RawMessage `json:"payload"`
}

// NewEvent builds a v1 event envelope with a fresh event id.
func NewEvent(event string, payload any) EventEnvelope {
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = json.RawMessage("null")
	}
	return EventEnvelope{
		V:       ContractVersion,
		EventID: uuid.NewString(),
		Event:   event,
		Time:    jsontime.Now(),
		Payload: raw,
	}
}
