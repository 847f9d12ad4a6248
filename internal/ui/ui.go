// Package ui is the interactive terminal front end: a transcript of render
// effects, a task input line, and start/stop actions whose enabled state
// mirrors the controller's control snapshot.
package ui

import (
	"fmt"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/tetherlabs/tether/internal/config"
	"github.com/tetherlabs/tether/internal/controller"
	"github.com/tetherlabs/tether/internal/logging"
	"github.com/tetherlabs/tether/internal/transport"
)

// Messages forwarded from the controller into the Bubble Tea loop.
type (
	effectMsg       struct{ effect controller.Effect }
	controlsMsg     struct{ controls controller.Controls }
	clearMsg        struct{}
	connectedMsg    struct{}
	disconnectedMsg struct{ reason string }
)

// relay adapts controller.Listener to tea program messages. Controller
// callbacks can fire before the program loop starts, so messages are held
// back until SetProgram.
type relay struct {
	mu      sync.Mutex
	program *tea.Program
	backlog []tea.Msg
}

func (r *relay) send(msg tea.Msg) {
	r.mu.Lock()
	p := r.program
	if p == nil {
		r.backlog = append(r.backlog, msg)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	p.Send(msg)
}

// SetProgram attaches the running program and flushes held-back messages.
func (r *relay) SetProgram(p *tea.Program) {
	r.mu.Lock()
	r.program = p
	backlog := r.backlog
	r.backlog = nil
	r.mu.Unlock()
	for _, msg := range backlog {
		p.Send(msg)
	}
}

func (r *relay) OnEffect(e controller.Effect) { r.send(effectMsg{effect: e}) }

func (r *relay) OnControls(c controller.Controls) { r.send(controlsMsg{controls: c}) }

func (r *relay) OnClear() { r.send(clearMsg{}) }

func (r *relay) OnConnected() { r.send(connectedMsg{}) }

func (r *relay) OnDisconnected(reason string) { r.send(disconnectedMsg{reason: reason}) }

// Run starts the interactive session and blocks until the user quits.
func Run(cfg *config.Config) error {
	// The TUI owns the terminal; logs go to a file instead.
	logFile, err := os.OpenFile(cfg.LogFile(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	logging.Configure(logging.Config{Level: cfg.LogLevel, Output: logFile})

	listener := &relay{}

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
	ctrl = controller.New(sess, listener)

	program := tea.NewProgram(newModel(cfg, ctrl), tea.WithAltScreen())
	listener.SetProgram(program)

	// Connection failures surface in the UI; the session keeps retrying.
	_ = sess.Open()

	_, err = program.Run()
	return err
}
