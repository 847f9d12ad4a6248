// Package wire defines the JSON frame formats spoken between the client and
// the agent server: the two outbound lifecycle commands and the tagged union
// of inbound events.
//
// One JSON object per text frame. Inbound frames are discriminated by the
// "type" field; outbound frames by the "command" field. Unrecognized inbound
// types are preserved (not rejected) so newer servers can add event types
// without breaking older clients.
package wire

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Command names for client -> server frames.
const (
	// CommandInitialize starts a new agent task.
	CommandInitialize = "initialize"
	// CommandTerminate asks the agent to stop the current task.
	CommandTerminate = "terminate"
)

// EventType discriminates inbound server -> client frames.
type EventType string

const (
	EventStatus            EventType = "status"
	EventThought           EventType = "thought"
	EventToolCall          EventType = "tool_call"
	EventToolResult        EventType = "tool_result"
	EventCode              EventType = "code"
	EventError             EventType = "error"
	EventFinalAnswer       EventType = "final_answer"
	EventExecutionComplete EventType = "execution_complete"
)

// Command is a client -> server frame.
type Command struct {
	// Command is the command name ("initialize" or "terminate").
	Command string `json:"command"`
	// Task is the task description; set only for "initialize".
	Task string `json:"task,omitempty"`
}

// Initialize builds the command frame that starts a task.
func Initialize(task string) Command {
	return Command{Command: CommandInitialize, Task: task}
}

// Terminate builds the command frame that stops the current task.
func Terminate() Command {
	return Command{Command: CommandTerminate}
}

// Encode serializes the command as a single JSON text frame.
func (c Command) Encode() ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode %s command: %w", c.Command, err)
	}
	return data, nil
}

// Event is a server -> client frame.
//
// Fields beyond Type are tag-dependent; absent fields stay at their zero
// value. Optional tool_result sub-parts use pointers so "absent" and
// "present but empty/false" remain distinguishable, which the rendering
// rules depend on.
type Event struct {
	// Type is the event tag. Any value outside the Event* constants is a
	// forward-compatible unknown tag; Raw carries the full frame for those.
	Type EventType `json:"type"`
	// Content is free text (status, thought, code, error, final_answer) or
	// the optional content sub-part of a tool_result.
	Content *string `json:"content,omitempty"`
	// Tool is the tool name for tool_call and tool_result.
	Tool string `json:"tool,omitempty"`
	// Args holds the tool_call argument structure, if present.
	Args map[string]any `json:"args,omitempty"`
	// Success is the tool_result success flag; only an explicit false marks
	// the result as failed.
	Success *bool `json:"success,omitempty"`
	// Stdout is the optional captured stdout of a tool_result.
	Stdout *string `json:"stdout,omitempty"`
	// Error is the optional error text of a tool_result.
	Error *string `json:"error,omitempty"`

	// Raw is the frame as received, retained for unknown tags so they can be
	// surfaced verbatim. Not serialized.
	Raw json.RawMessage `json:"-"`
}

// Known reports whether the event tag is one of the defined types.
func (e Event) Known() bool {
	switch e.Type {
	case EventStatus, EventThought, EventToolCall, EventToolResult,
		EventCode, EventError, EventFinalAnswer, EventExecutionComplete:
		return true
	}
	return false
}

// EndsRun reports whether the event forces the run-state back to idle.
func (e Event) EndsRun() bool {
	return e.Type == EventFinalAnswer || e.Type == EventExecutionComplete
}

// ContentText returns Content or "" when absent.
func (e Event) ContentText() string {
	if e.Content == nil {
		return ""
	}
	return *e.Content
}

// Failed reports whether a tool_result carries an explicit success=false.
func (e Event) Failed() bool {
	return e.Success != nil && !*e.Success
}

// DecodeEvent parses one inbound text frame.
//
// A frame that is not a JSON object is a per-frame protocol error; it never
// affects the connection or subsequent frames, so callers surface the error
// and move on.
func DecodeEvent(data []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return Event{}, fmt.Errorf("decode frame: %w", err)
	}
	evt.Raw = append(json.RawMessage(nil), bytes.TrimSpace(data)...)
	return evt, nil
}

// PrettyArgs renders a tool_call argument structure as indented JSON.
// Returns "" when there are no args.
func (e Event) PrettyArgs() string {
	if len(e.Args) == 0 {
		return ""
	}
	out, err := json.MarshalIndent(e.Args, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", e.Args)
	}
	return string(out)
}
