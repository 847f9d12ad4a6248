package wire

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }
func boolp(b bool) *bool    { return &b }

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  Event
	}{
		{
			name:  "status",
			frame: `{"type":"status","content":"working on it"}`,
			want:  Event{Type: EventStatus, Content: strp("working on it")},
		},
		{
			name:  "thought",
			frame: `{"type":"thought","content":"let me think"}`,
			want:  Event{Type: EventThought, Content: strp("let me think")},
		},
		{
			name:  "tool call with args",
			frame: `{"type":"tool_call","tool":"execute_python","args":{"code":"print(1)"}}`,
			want: Event{
				Type: EventToolCall,
				Tool: "execute_python",
				Args: map[string]any{"code": "print(1)"},
			},
		},
		{
			name:  "tool call without args",
			frame: `{"type":"tool_call","tool":"final_answer"}`,
			want:  Event{Type: EventToolCall, Tool: "final_answer"},
		},
		{
			name:  "tool result full",
			frame: `{"type":"tool_result","tool":"shell","success":true,"content":"done","stdout":"ok\n","error":""}`,
			want: Event{
				Type:    EventToolResult,
				Tool:    "shell",
				Success: boolp(true),
				Content: strp("done"),
				Stdout:  strp("ok\n"),
				Error:   strp(""),
			},
		},
		{
			name:  "tool result failure",
			frame: `{"type":"tool_result","tool":"execute_python","success":false,"error":"ZeroDivisionError"}`,
			want: Event{
				Type:    EventToolResult,
				Tool:    "execute_python",
				Success: boolp(false),
				Error:   strp("ZeroDivisionError"),
			},
		},
		{
			name:  "code",
			frame: `{"type":"code","content":"x = 1"}`,
			want:  Event{Type: EventCode, Content: strp("x = 1")},
		},
		{
			name:  "error",
			frame: `{"type":"error","content":"boom"}`,
			want:  Event{Type: EventError, Content: strp("boom")},
		},
		{
			name:  "final answer",
			frame: `{"type":"final_answer","content":"42"}`,
			want:  Event{Type: EventFinalAnswer, Content: strp("42")},
		},
		{
			name:  "execution complete",
			frame: `{"type":"execution_complete"}`,
			want:  Event{Type: EventExecutionComplete},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeEvent([]byte(tt.frame))
			require.NoError(t, err)
			require.Equal(t, tt.frame, string(got.Raw))
			got.Raw = nil
			require.Equal(t, tt.want, got)
		})
	}
}

// Every defined tag shape must survive an encode/decode round trip
// field-for-field.
func TestEventRoundTrip(t *testing.T) {
	events := []Event{
		{Type: EventStatus, Content: strp("s")},
		{Type: EventThought, Content: strp("t")},
		{Type: EventToolCall, Tool: "search", Args: map[string]any{"q": "go"}},
		{Type: EventToolResult, Tool: "shell", Success: boolp(false), Stdout: strp("out"), Error: strp("err"), Content: strp("c")},
		{Type: EventCode, Content: strp("print(1)")},
		{Type: EventError, Content: strp("bad")},
		{Type: EventFinalAnswer, Content: strp("answer")},
		{Type: EventExecutionComplete},
	}

	for _, evt := range events {
		t.Run(string(evt.Type), func(t *testing.T) {
			data, err := json.Marshal(evt)
			require.NoError(t, err)
			got, err := DecodeEvent(data)
			require.NoError(t, err)
			got.Raw = nil
			require.Equal(t, evt, got)
		})
	}
}

func TestDecodeEventUnknownTag(t *testing.T) {
	frame := `{"type":"telemetry","cpu":0.5}`
	got, err := DecodeEvent([]byte(frame))
	require.NoError(t, err)
	require.False(t, got.Known())
	require.Equal(t, EventType("telemetry"), got.Type)
	require.JSONEq(t, frame, string(got.Raw))
}

func TestDecodeEventInvalidJSON(t *testing.T) {
	_, err := DecodeEvent([]byte("not json"))
	require.Error(t, err)
}

func TestEndsRun(t *testing.T) {
	require.True(t, Event{Type: EventFinalAnswer}.EndsRun())
	require.True(t, Event{Type: EventExecutionComplete}.EndsRun())
	require.False(t, Event{Type: EventStatus}.EndsRun())
	require.False(t, Event{Type: EventType("telemetry")}.EndsRun())
}

func TestCommandEncode(t *testing.T) {
	init, err := Initialize("write a haiku").Encode()
	require.NoError(t, err)
	require.JSONEq(t, `{"command":"initialize","task":"write a haiku"}`, string(init))

	term, err := Terminate().Encode()
	require.NoError(t, err)
	require.JSONEq(t, `{"command":"terminate"}`, string(term))
}

func TestFailedRequiresExplicitFalse(t *testing.T) {
	require.False(t, Event{Type: EventToolResult}.Failed())
	require.False(t, Event{Type: EventToolResult, Success: boolp(true)}.Failed())
	require.True(t, Event{Type: EventToolResult, Success: boolp(false)}.Failed())
}
