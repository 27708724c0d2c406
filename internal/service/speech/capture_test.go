package speech

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// countingEngine 记录同时打开的识别流数量。
type countingEngine struct {
	active  atomic.Int32
	peak    atomic.Int32
	opened  atomic.Int32
	fail    error
	mu      sync.Mutex
	streams []chan string
}

func (e *countingEngine) Recognize(ctx context.Context) (<-chan string, error) {
	if e.fail != nil {
		return nil, e.fail
	}
	ch := make(chan string, 4)
	n := e.active.Add(1)
	e.opened.Add(1)
	for {
		peak := e.peak.Load()
		if n <= peak || e.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	e.mu.Lock()
	e.streams = append(e.streams, ch)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.active.Add(-1)
		close(ch)
	}()
	return ch, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestCaptureStartTwiceKeepsOneStream(t *testing.T) {
	engine := &countingEngine{}
	capture := NewCapture(engine)

	capture.Start()
	if !capture.Listening() {
		t.Fatal("expected listening after first start")
	}
	capture.Start()
	if !capture.Listening() {
		t.Fatal("expected listening after second start")
	}

	if got := engine.active.Load(); got != 1 {
		t.Fatalf("expected exactly one active stream, got %d", got)
	}
	if got := engine.opened.Load(); got != 2 {
		t.Fatalf("expected two streams opened in total, got %d", got)
	}
	if got := engine.peak.Load(); got != 1 {
		t.Fatalf("streams overlapped, peak=%d", got)
	}

	capture.Stop()
	if engine.active.Load() != 0 {
		t.Fatal("stop should close the stream")
	}
}

func TestCaptureTranscriptLifecycle(t *testing.T) {
	engine := NewFeedEngine()
	capture := NewCapture(engine)

	var updates atomic.Int32
	capture.OnUpdate(func(string) { updates.Add(1) })

	capture.Start()
	if !engine.Push("hello there") || !engine.Push("  how are you  ") {
		t.Fatal("push should reach the active stream")
	}
	waitFor(t, func() bool { return capture.Transcript() == "hello there how are you" })

	final := capture.Stop()
	if final != "hello there how are you" {
		t.Fatalf("unexpected final transcript %q", final)
	}
	if capture.Listening() {
		t.Fatal("listening should be false after stop")
	}
	if capture.Transcript() != final {
		t.Fatal("transcript must survive stop until reset")
	}
	if updates.Load() != 2 {
		t.Fatalf("expected 2 updates, got %d", updates.Load())
	}

	capture.Reset()
	if capture.Transcript() != "" {
		t.Fatal("reset should clear transcript")
	}
	if engine.Push("late") {
		t.Fatal("push after stop must not be delivered")
	}
}

func TestCaptureStartFailureReportsOnSideChannel(t *testing.T) {
	boom := errors.New("audio session busy")
	capture := NewCapture(&countingEngine{fail: boom})

	capture.Start()
	if capture.Listening() {
		t.Fatal("listening must stay false when the engine fails")
	}

	select {
	case err := <-capture.Errors():
		if !errors.Is(err, boom) {
			t.Fatalf("unexpected error %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("expected error on side channel")
	}
}

func TestCaptureStopWhenIdle(t *testing.T) {
	capture := NewCapture(NewFeedEngine())
	if got := capture.Stop(); got != "" {
		t.Fatalf("expected empty transcript, got %q", got)
	}
	if capture.Listening() {
		t.Fatal("idle stop must leave listening false")
	}
}
