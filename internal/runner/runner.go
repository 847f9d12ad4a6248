// Package runner implements the one-shot mode: connect, submit a single
// task, stream rendered events to a writer, and exit when the run ends.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tetherlabs/tether/internal/config"
	"github.com/tetherlabs/tether/internal/controller"
	"github.com/tetherlabs/tether/internal/transport"
)

// connectTimeout bounds the initial wait for the session to come up. The
// session itself retries forever; a one-shot invocation should not.
const connectTimeout = 15 * time.Second

// ErrDisconnected is returned when the connection drops mid-run. A one-shot
// run cannot be tracked across a reconnect, so it fails instead of resuming.
var ErrDisconnected = errors.New("connection lost during run")

// Printer renders controller output as plain lines and tracks run
// completion. It is the runner's controller.Listener.
type Printer struct {
	out io.Writer

	mu        sync.Mutex
	started   bool
	connected chan struct{}
	connOnce  sync.Once
	done      chan error
}

// NewPrinter builds a printer writing to out.
func NewPrinter(out io.Writer) *Printer {
	return &Printer{
		out:       out,
		connected: make(chan struct{}),
		done:      make(chan error, 1),
	}
}

// OnEffect renders one effect as plain text.
func (p *Printer) OnEffect(e controller.Effect) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch e.Kind {
	case controller.EffectStatus:
		fmt.Fprintf(p.out, "[*] %s\n", e.Text)
	case controller.EffectThought:
		fmt.Fprintf(p.out, "[thought] %s\n", e.Text)
	case controller.EffectToolCall:
		fmt.Fprintf(p.out, "[tool] %s\n", e.Text)
	case controller.EffectToolResult:
		fmt.Fprintf(p.out, "[tool result] %s\n", e.Text)
	case controller.EffectCode:
		fmt.Fprintf(p.out, "[code]\n%s\n", e.Text)
	case controller.EffectError:
		fmt.Fprintf(p.out, "[error] %s\n", e.Text)
	case controller.EffectAnswer:
		fmt.Fprintf(p.out, "\n=== Final Answer ===\n%s\n", e.Text)
	default:
		fmt.Fprintf(p.out, "[*] %s\n", e.Text)
	}
}

// OnControls watches for the end of the run: once the stop action has been
// enabled, its disabling while still connected means the task finished.
func (p *Printer) OnControls(c controller.Controls) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c.StopEnabled {
		p.started = true
		return
	}
	if p.started && c.StartEnabled {
		p.finishLocked(nil)
	}
}

// OnClear is a no-op; a streaming console has no history to drop.
func (p *Printer) OnClear() {}

// OnConnected unblocks WaitConnected.
func (p *Printer) OnConnected() {
	p.connOnce.Do(func() { close(p.connected) })
}

// OnDisconnected fails the run; one-shot mode does not ride out reconnects.
func (p *Printer) OnDisconnected(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "[error] disconnected: %s\n", reason)
	if p.started {
		p.finishLocked(ErrDisconnected)
	}
}

func (p *Printer) finishLocked(err error) {
	p.started = false
	select {
	case p.done <- err:
	default:
	}
}

// WaitConnected blocks until the session connects or the timeout expires.
func (p *Printer) WaitConnected(timeout time.Duration) error {
	select {
	case <-p.connected:
		return nil
	case <-time.After(timeout):
		return errors.New("timed out waiting for connection")
	}
}

// Wait blocks until the run finishes or ctx is cancelled.
func (p *Printer) Wait(ctx context.Context) error {
	select {
	case err := <-p.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run connects to the configured server, starts the task, and streams
// events to out until the run completes. Cancelling ctx sends a terminate
// command before tearing the session down.
func Run(ctx context.Context, cfg *config.Config, task string, out io.Writer) error {
	printer := NewPrinter(out)

	var ctrl *controller.Controller
	sess, err := transport.NewSession(transport.Config{
		ServerURL:      cfg.ServerURL,
		Identity:       uuid.NewString(),
		ReconnectDelay: cfg.ReconnectDelay,
	}, transport.Callbacks{
		OnConnected:    func() { ctrl.HandleConnected() },
		OnDisconnected: func(reason string) { ctrl.HandleDisconnected(reason) },
		OnFrame:        func(data []byte) { ctrl.HandleFrame(data) },
		OnError:        func(err error) { ctrl.HandleTransportError(err) },
	})
	if err != nil {
		return err
	}
	defer sess.Close()
	ctrl = controller.New(sess, printer)

	if err := sess.Open(); err != nil {
		return fmt.Errorf("connect to %s: %w", sess.URL(), err)
	}
	if err := printer.WaitConnected(connectTimeout); err != nil {
		return err
	}

	if err := ctrl.Start(task); err != nil {
		return err
	}

	if err := printer.Wait(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			// Best effort: ask the agent to stop before leaving.
			_ = ctrl.Stop()
		}
		return err
	}
	return nil
}
