// Package controller translates user intent into wire commands and inbound
// frames into run-state transitions and render effects.
//
// View layers should be pure views: they render the effects and the control
// snapshot pushed through Listener and never re-derive run-state or
// affordance logic themselves.
package controller

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tetherlabs/tether/internal/logging"
	"github.com/tetherlabs/tether/internal/wire"
)

// defaultQueueSize is the mailbox size of the controller dispatcher.
const defaultQueueSize = 256

// ErrEmptyTask is returned by Start when the task is empty after trimming.
var ErrEmptyTask = errors.New("task must not be empty")

// RunState is the controller's belief about whether a remote task is
// currently executing.
type RunState int

const (
	// Idle means no task is running.
	Idle RunState = iota
	// Running means a task was started and no terminal event arrived yet.
	Running
)

// String returns the lower-case run-state name.
func (s RunState) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Controls is the enable state of the two user actions, derived from
// connectivity and run-state.
type Controls struct {
	// StartEnabled is true only while the session is connected.
	StartEnabled bool
	// StopEnabled is true only while connected and a task is running.
	StopEnabled bool
}

// Listener receives controller output. All methods are invoked from the
// controller's single dispatch goroutine, in order, with no re-entrancy.
type Listener interface {
	// OnEffect delivers one render effect.
	OnEffect(e Effect)
	// OnControls delivers a new control snapshot whenever it changes.
	OnControls(c Controls)
	// OnClear asks the view to drop its rendered history.
	OnClear()
	// OnConnected fires when the session comes up.
	OnConnected()
	// OnDisconnected fires when the session goes down.
	OnDisconnected(reason string)
}

// Sender is the slice of the transport session the controller needs.
type Sender interface {
	Send(data []byte) error
}

// Controller owns the run-state machine and the frame dispatch table for one
// session. Exactly one instance per session; all state lives on the dispatch
// goroutine.
type Controller struct {
	session  Sender
	listener Listener
	dispatch *dispatcher
	log      zerolog.Logger

	// Owned by the dispatch goroutine.
	connected bool
	running   RunState
	controls  Controls
}

// New builds a controller over the given session. The listener must be
// non-nil.
func New(session Sender, listener Listener) *Controller {
	return &Controller{
		session:  session,
		listener: listener,
		dispatch: newDispatcher(defaultQueueSize),
		log:      logging.WithComponent("controller"),
	}
}

// Start validates and submits a new task. The task must be non-empty after
// trimming; an empty task produces exactly one error effect and no command.
// On acceptance the rendered history is cleared, a status effect announces
// the task, the run-state moves to Running, and an initialize command is
// sent.
func (c *Controller) Start(task string) error {
	return c.dispatch.call(func() error {
		trimmed := strings.TrimSpace(task)
		if trimmed == "" {
			c.listener.OnEffect(Effect{Kind: EffectError, Text: "Task must not be empty."})
			return ErrEmptyTask
		}

		c.listener.OnClear()
		c.listener.OnEffect(Effect{Kind: EffectStatus, Text: "Starting task: " + trimmed})
		c.running = Running
		c.pushControls()

		data, err := wire.Initialize(trimmed).Encode()
		if err == nil {
			err = c.session.Send(data)
		}
		if err != nil {
			// The start action is gated on connectivity, so this is
			// unexpected; fail loudly instead of dropping the command.
			c.listener.OnEffect(Effect{Kind: EffectError, Text: "Failed to start task: " + err.Error()})
			c.running = Idle
			c.pushControls()
			return err
		}

		c.log.Info().Str("task", trimmed).Msg("task started")
		return nil
	})
}

// Stop asks the agent to terminate the current task and optimistically moves
// the run-state back to Idle without waiting for confirmation. Calling Stop
// while idle is a no-op.
func (c *Controller) Stop() error {
	return c.dispatch.call(func() error {
		if c.running != Running {
			return nil
		}

		c.listener.OnEffect(Effect{Kind: EffectStatus, Text: "Stopping agent..."})

		data, err := wire.Terminate().Encode()
		if err == nil {
			err = c.session.Send(data)
		}
		if err != nil {
			c.listener.OnEffect(Effect{Kind: EffectError, Text: "Failed to send stop: " + err.Error()})
		}

		// Optimistic: re-enable start immediately rather than waiting for
		// execution_complete from the peer.
		c.running = Idle
		c.pushControls()
		c.log.Info().Msg("stop requested")
		return err
	})
}

// HandleFrame routes one raw inbound frame. Called by the transport layer;
// frames are processed strictly in arrival order.
func (c *Controller) HandleFrame(data []byte) {
	_ = c.dispatch.do(func() {
		evt, err := wire.DecodeEvent(data)
		if err != nil {
			// A bad frame is terminal for that frame only.
			c.log.Warn().Err(err).Msg("undecodable frame")
			c.listener.OnEffect(Effect{Kind: EffectError, Text: "Bad frame from server: " + err.Error()})
			return
		}

		if !evt.Known() {
			c.log.Debug().Str("type", string(evt.Type)).Msg("unknown event tag")
		}
		c.listener.OnEffect(effectFor(evt))

		if evt.EndsRun() {
			c.running = Idle
			c.pushControls()
		}
	})
}

// HandleConnected mirrors the session's connected signal into the control
// state.
func (c *Controller) HandleConnected() {
	_ = c.dispatch.do(func() {
		c.connected = true
		c.listener.OnConnected()
		c.pushControls()
	})
}

// HandleDisconnected resets both actions to their disconnected defaults. An
// in-flight task cannot be tracked across a dropped connection, so the
// run-state is forced back to Idle.
func (c *Controller) HandleDisconnected(reason string) {
	_ = c.dispatch.do(func() {
		c.connected = false
		c.running = Idle
		c.listener.OnDisconnected(reason)
		c.pushControls()
	})
}

// HandleTransportError surfaces a transport-level fault as an error effect.
// It does not change connection or run-state; the disconnect signal is
// authoritative for that.
func (c *Controller) HandleTransportError(err error) {
	_ = c.dispatch.do(func() {
		c.listener.OnEffect(Effect{Kind: EffectError, Text: fmt.Sprintf("Connection error: %v", err)})
	})
}

// RunState returns the current run-state.
func (c *Controller) RunState() RunState {
	var state RunState
	_ = c.dispatch.call(func() error {
		state = c.running
		return nil
	})
	return state
}

// Controls returns the current control snapshot.
func (c *Controller) Controls() Controls {
	var controls Controls
	_ = c.dispatch.call(func() error {
		controls = c.controls
		return nil
	})
	return controls
}

// pushControls recomputes the control snapshot and notifies the listener if
// it changed. Runs on the dispatch goroutine.
func (c *Controller) pushControls() {
	next := Controls{
		StartEnabled: c.connected,
		StopEnabled:  c.connected && c.running == Running,
	}
	if next == c.controls {
		return
	}
	c.controls = next
	c.listener.OnControls(next)
}
