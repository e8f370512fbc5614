// Package shutdown drains ambient resources before the supervisor gives up
// its process image. Everything opened during provisioning (status API,
// tracer, journal) must be released before handoff: exec replaces the
// process in place, so no deferred cleanup can run afterwards.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Drainer releases resources registered during the launch sequence.
type Drainer struct {
	mu      sync.Mutex
	funcs   []func(context.Context) error
	names   []string
	timeout time.Duration
	drained bool
}

// NewDrainer creates a drainer with a total drain timeout.
func NewDrainer(timeout time.Duration) *Drainer {
	return &Drainer{timeout: timeout}
}

// Register adds a drain function. Functions run in reverse order (LIFO).
func (d *Drainer) Register(name string, fn func(context.Context) error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.names = append(d.names, name)
	d.funcs = append(d.funcs, fn)
}

// Drain executes all registered functions once, in reverse order. Errors
// are collected but do not stop the remaining functions: the sequence is
// about to exit or exec either way.
func (d *Drainer) Drain() map[string]error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.drained {
		return nil
	}
	d.drained = true

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	errs := make(map[string]error)
	for i := len(d.funcs) - 1; i >= 0; i-- {
		if err := d.funcs[i](ctx); err != nil {
			errs[d.names[i]] = err
		}
	}
	return errs
}

// Signals wires container-runtime termination signals into a context. The
// returned Received func reports which signal arrived, if any, so the
// overall exit code can be 128+N as an orchestrator expects.
func Signals(parent context.Context) (ctx context.Context, received func() (syscall.Signal, bool), stop func()) {
	ctx, cancel := context.WithCancel(parent)

	var mu sync.Mutex
	var sig syscall.Signal
	var got bool

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		s, ok := <-ch
		if !ok {
			return
		}
		mu.Lock()
		if ss, isSys := s.(syscall.Signal); isSys {
			sig = ss
			got = true
		}
		mu.Unlock()
		cancel()
	}()

	received = func() (syscall.Signal, bool) {
		mu.Lock()
		defer mu.Unlock()
		return sig, got
	}
	stop = func() {
		signal.Stop(ch)
		close(ch)
		cancel()
	}
	return ctx, received, stop
}
