package cli

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer guards a bytes.Buffer shared with the animation goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestSpinnerStop(t *testing.T) {
	var out syncBuffer
	s := newSpinner(context.Background(), &out, "Rendering card...")
	s.Start()
	s.Start()
	time.Sleep(3 * spinnerInterval)
	s.Stop()
	s.Stop()

	if !strings.Contains(out.String(), "Rendering card...") {
		t.Errorf("no frames drawn: %q", out.String())
	}
	if !strings.HasSuffix(out.String(), "\r") {
		t.Errorf("line not cleared: %q", out.String())
	}
}

func TestSpinnerStopBeforeStart(t *testing.T) {
	var out syncBuffer
	done := make(chan struct{})
	go func() {
		newSpinner(context.Background(), &out, "Clearing cache...").Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a spinner that never started")
	}
}

func TestSpinnerContext(t *testing.T) {
	tests := []struct {
		name string
		ctx  func() (context.Context, context.CancelFunc)
	}{
		{"cancel", func() (context.Context, context.CancelFunc) { return context.WithCancel(context.Background()) }},
		{"timeout", func() (context.Context, context.CancelFunc) {
			return context.WithTimeout(context.Background(), 10*time.Millisecond)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := tt.ctx()
			s := newSpinner(ctx, &syncBuffer{}, "Fetching avatar...")
			s.Start()
			cancel()
			time.Sleep(50 * time.Millisecond)
			if !s.Cancelled() {
				t.Error("spinner should report cancellation")
			}
			s.Stop()
		})
	}
}

func TestSpinnerFinalLine(t *testing.T) {
	tests := []struct {
		name   string
		finish func(*spinner)
		want   string
	}{
		{"succeed", func(s *spinner) { s.Succeed("Cache cleared") }, iconSuccess + " Cache cleared\n"},
		{"fail", func(s *spinner) { s.Fail("Render failed") }, iconFailure + " Render failed\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out syncBuffer
			s := newSpinner(context.Background(), &out, "Working...")
			s.Start()
			tt.finish(s)
			if !strings.HasSuffix(out.String(), tt.want) {
				t.Errorf("output = %q, want suffix %q", out.String(), tt.want)
			}
			if !s.Cancelled() {
				t.Error("a finished spinner reports its context as done")
			}
		})
	}
}
