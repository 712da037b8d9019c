package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const spinnerInterval = 80 * time.Millisecond

// spinner animates a one-line status on w while a step runs. It stops on
// its own when ctx ends, and leaves either nothing or a final status line.
type spinner struct {
	w     io.Writer
	label string

	ctx    context.Context
	cancel context.CancelFunc
	exited chan struct{}

	mu      sync.Mutex
	started bool
	once    sync.Once
}

func newSpinner(ctx context.Context, w io.Writer, label string) *spinner {
	ctx, cancel := context.WithCancel(ctx)
	return &spinner{w: w, label: label, ctx: ctx, cancel: cancel, exited: make(chan struct{})}
}

// Start begins the animation. Calling it more than once has no effect.
func (s *spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	go s.animate()
}

func (s *spinner) animate() {
	defer close(s.exited)
	tick := time.NewTicker(spinnerInterval)
	defer tick.Stop()

	for i := 0; ; i++ {
		select {
		case <-s.ctx.Done():
			return
		case <-tick.C:
			frame := spinnerFrames[i%len(spinnerFrames)]
			s.mu.Lock()
			fmt.Fprintf(s.w, "\r%s %s", styleIconSpinner.Render(frame), StyleDim.Render(s.label))
			s.mu.Unlock()
		}
	}
}

// Stop halts the animation and erases the status line. It is safe to call
// repeatedly and before Start.
func (s *spinner) Stop() {
	s.once.Do(func() {
		s.cancel()
		s.mu.Lock()
		started := s.started
		s.mu.Unlock()
		if started {
			<-s.exited
		}
		s.mu.Lock()
		fmt.Fprintf(s.w, "\r%s\r", strings.Repeat(" ", len(s.label)+4))
		s.mu.Unlock()
	})
}

// Succeed stops the spinner and leaves a success line in its place.
func (s *spinner) Succeed(msg string) {
	s.finish(styleIconSuccess.Render(iconSuccess), msg)
}

// Fail stops the spinner and leaves a failure line in its place.
func (s *spinner) Fail(msg string) {
	s.finish(styleIconFailure.Render(iconFailure), msg)
}

func (s *spinner) finish(icon, msg string) {
	s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "%s %s\n", icon, msg)
}

// Cancelled reports whether the spinner's context has ended.
func (s *spinner) Cancelled() bool {
	return s.ctx.Err() != nil
}
