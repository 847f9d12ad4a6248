package controller

import (
	"strings"

	"github.com/tetherlabs/tether/internal/wire"
)

// EffectKind classifies a render effect so view layers can style it without
// re-inspecting the wire event that produced it.
type EffectKind string

const (
	// EffectStatus is plain status text.
	EffectStatus EffectKind = "status"
	// EffectThought is agent reasoning text.
	EffectThought EffectKind = "thought"
	// EffectToolCall announces a tool invocation.
	EffectToolCall EffectKind = "tool_call"
	// EffectToolResult reports a tool outcome.
	EffectToolResult EffectKind = "tool_result"
	// EffectCode is a preformatted code block.
	EffectCode EffectKind = "code"
	// EffectError is an error-styled message.
	EffectError EffectKind = "error"
	// EffectAnswer is the labeled final answer block.
	EffectAnswer EffectKind = "answer"
)

// Effect is one UI-visible rendering produced by the controller. Text is
// fully assembled; views only style it by Kind.
type Effect struct {
	Kind EffectKind
	Text string
}

// effectFor maps one decoded event to its render effect, per the fixed
// dispatch table. Unknown tags degrade to a status rendering of the raw
// frame; they are never dropped.
func effectFor(evt wire.Event) Effect {
	switch evt.Type {
	case wire.EventStatus:
		return Effect{Kind: EffectStatus, Text: evt.ContentText()}
	case wire.EventThought:
		return Effect{Kind: EffectThought, Text: evt.ContentText()}
	case wire.EventToolCall:
		return Effect{Kind: EffectToolCall, Text: toolCallText(evt)}
	case wire.EventToolResult:
		return Effect{Kind: EffectToolResult, Text: toolResultText(evt)}
	case wire.EventCode:
		return Effect{Kind: EffectCode, Text: evt.ContentText()}
	case wire.EventError:
		return Effect{Kind: EffectError, Text: evt.ContentText()}
	case wire.EventFinalAnswer:
		return Effect{Kind: EffectAnswer, Text: evt.ContentText()}
	case wire.EventExecutionComplete:
		return Effect{Kind: EffectStatus, Text: "Execution complete."}
	default:
		return Effect{Kind: EffectStatus, Text: string(evt.Raw)}
	}
}

func toolCallText(evt wire.Event) string {
	if args := evt.PrettyArgs(); args != "" {
		return evt.Tool + "\n" + args
	}
	return evt.Tool
}

// toolResultText assembles the four optional sub-parts in their fixed order:
// header (with failure marker), stdout block, error block, free text.
func toolResultText(evt wire.Event) string {
	header := evt.Tool
	if evt.Failed() {
		header += " (Failed)"
	}
	parts := []string{header}
	if evt.Stdout != nil && *evt.Stdout != "" {
		parts = append(parts, "stdout:\n"+strings.TrimRight(*evt.Stdout, "\n"))
	}
	if evt.Error != nil && *evt.Error != "" {
		parts = append(parts, "error:\n"+*evt.Error)
	}
	if text := evt.ContentText(); text != "" {
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n")
}
