// Package command executes command-like items through the shell,
// reporting combined output to the event queue.
package command

import (
	"context"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/snipvault/snipvault/internal/types"
)

// execTimeout bounds a single command run.
const execTimeout = 30 * time.Second

// Sink receives command results.
type Sink interface {
	Enqueue(msg types.Message) error
}

// Runner executes commands asynchronously. Each run produces exactly
// one CommandResult message.
type Runner struct {
	sink Sink

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a runner delivering results to sink.
func NewRunner(sink Sink) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		sink:   sink,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Run executes cmdText through the shell on a worker goroutine.
func (r *Runner) Run(cmdText string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(cmdText)
	}()
}

// Close cancels running commands and waits for workers to finish.
func (r *Runner) Close() {
	r.cancel()
	r.wg.Wait()
}

func (r *Runner) run(cmdText string) {
	ctx, cancel := context.WithTimeout(r.ctx, execTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", cmdText)
	out, err := cmd.CombinedOutput()

	output := string(out)
	if err != nil && output == "" {
		output = err.Error()
	}

	msg := types.CommandResult{
		Output:  output,
		Success: err == nil,
	}
	if qerr := r.sink.Enqueue(msg); qerr != nil {
		slog.Warn("enqueue command result", "error", qerr)
	}
}
