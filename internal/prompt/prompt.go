// Package prompt implements the human-decision layer: it watches the
// coordinator for pending confirmations and resolves them, either through
// an interactive terminal form or automatically (headless hosts and tests).
package prompt

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/toolgate/toolgate/internal/confirm"
)

// Mode selects how pending confirmations are decided.
type Mode string

// Prompter modes. ModeOff leaves resolution entirely to the HTTP decision
// API.
const (
	ModeTerminal    Mode = "terminal"
	ModeAutoApprove Mode = "auto_approve"
	ModeAutoDeny    Mode = "auto_deny"
	ModeOff         Mode = "off"
)

// ParseMode validates a mode string from configuration.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeTerminal, ModeAutoApprove, ModeAutoDeny, ModeOff:
		return Mode(s), nil
	}
	return "", fmt.Errorf("prompt: unknown mode %q", s)
}

// queueSize bounds the backlog of confirmations awaiting a prompt. The
// coordinator guarantees at most one pending entry per server, so this only
// overflows with a very large server fleet.
const queueSize = 64

// Prompter resolves pending confirmations one at a time. It implements
// confirm.Observer; prompts are serialized so the operator never faces two
// dialogs at once.
type Prompter struct {
	mode        Mode
	coordinator *confirm.Coordinator
	logger      *slog.Logger

	// decide is swappable for tests; defaults per mode.
	decide func(p confirm.Pending) (confirm.Result, error)

	queue    chan confirm.Pending
	stopOnce sync.Once
	done     chan struct{}
	finished chan struct{}
}

// New creates a prompter. For ModeOff it still constructs, but Start is a
// no-op and nothing is ever resolved.
func New(mode Mode, coordinator *confirm.Coordinator, logger *slog.Logger) *Prompter {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Prompter{
		mode:        mode,
		coordinator: coordinator,
		logger:      logger.With("component", "prompt"),
		queue:       make(chan confirm.Pending, queueSize),
		done:        make(chan struct{}),
		finished:    make(chan struct{}),
	}

	switch mode {
	case ModeAutoApprove:
		p.decide = func(confirm.Pending) (confirm.Result, error) { return confirm.ResultAllowOnce, nil }
	case ModeAutoDeny:
		p.decide = func(confirm.Pending) (confirm.Result, error) { return confirm.ResultDenied, nil }
	case ModeTerminal:
		p.decide = decideTerminal
	}
	return p
}

// ConfirmationRequested implements confirm.Observer.
func (p *Prompter) ConfirmationRequested(pend confirm.Pending) {
	if p.mode == ModeOff {
		return
	}
	select {
	case p.queue <- pend:
	default:
		p.logger.Warn("prompt queue full, leaving confirmation to the API",
			"server", pend.ServerID,
		)
	}
}

// ConfirmationSettled implements confirm.Observer. Settlements need no
// prompt work; stale queue entries are skipped at dequeue time.
func (p *Prompter) ConfirmationSettled(confirm.Pending, confirm.Result) {}

// Start launches the prompt loop.
func (p *Prompter) Start() {
	if p.mode == ModeOff {
		close(p.finished)
		return
	}
	go p.loop()
}

// Stop terminates the prompt loop and waits for it to finish.
func (p *Prompter) Stop() {
	p.stopOnce.Do(func() { close(p.done) })
	<-p.finished
}

func (p *Prompter) loop() {
	defer close(p.finished)
	for {
		select {
		case <-p.done:
			return
		case pend := <-p.queue:
			// The entry may have been resolved through another path
			// (API, sweeper, cancellation signal) while queued.
			if !p.coordinator.IsPending(pend.ServerID) {
				continue
			}
			result, err := p.decide(pend)
			if err != nil {
				p.logger.Error("prompt failed, leaving confirmation pending",
					"server", pend.ServerID,
					"error", err,
				)
				continue
			}
			if !p.coordinator.Resolve(pend.ServerID, result) {
				p.logger.Debug("confirmation settled before prompt completed",
					"server", pend.ServerID,
				)
			}
		}
	}
}

// summarize renders a short tool list for prompt titles.
func summarize(p confirm.Pending) string {
	names := make([]string, 0, len(p.Tools))
	for _, t := range p.Tools {
		names = append(names, t.Name)
	}
	return strings.Join(names, ", ")
}
