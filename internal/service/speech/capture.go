package speech

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/wutongtree/backend/pkg/log"
)

// ErrEngineUnavailable 识别引擎无法启动。
var ErrEngineUnavailable = errors.New("speech engine unavailable")

// Engine is a speech recognizer. Each Recognize call opens one recognition
// stream that emits recognized fragments and is closed after ctx is cancelled.
type Engine interface {
	Recognize(ctx context.Context) (<-chan string, error)
}

// Capture wraps an Engine with start/stop dictation semantics. At most one
// recognition stream is active at a time.
type Capture struct {
	engine Engine

	// opMu 串行化 Start/Stop，保证重启时旧任务先退出
	opMu sync.Mutex

	mu         sync.Mutex
	listening  bool
	transcript string
	cancel     context.CancelFunc
	done       chan struct{}
	onUpdate   func(transcript string)

	errs chan error
}

// NewCapture 创建识别适配器。
func NewCapture(engine Engine) *Capture {
	return &Capture{
		engine: engine,
		errs:   make(chan error, 8),
	}
}

// OnUpdate registers a callback invoked with the growing transcript after every fragment.
func (c *Capture) OnUpdate(fn func(transcript string)) {
	c.mu.Lock()
	c.onUpdate = fn
	c.mu.Unlock()
}

// Errors 启动失败等异常通过该通道上报，不会同步返回给调用方。
func (c *Capture) Errors() <-chan error {
	return c.errs
}

// Listening reports whether dictation is active.
func (c *Capture) Listening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listening
}

// Transcript returns the current transcript.
func (c *Capture) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript
}

// Start begins continuous dictation. A running task is cancelled and awaited
// first so two streams never overlap.
func (c *Capture) Start() {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.cancelActive()

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := c.engine.Recognize(ctx)
	if err != nil {
		cancel()
		c.mu.Lock()
		c.listening = false
		c.mu.Unlock()
		c.report(err)
		return
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.listening = true
	c.transcript = ""
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go c.consume(ctx, stream, done)
}

// Stop finalizes the utterance and flips listening off. The transcript stays
// available until Reset.
func (c *Capture) Stop() string {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.cancelActive()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.listening = false
	return c.transcript
}

// Reset clears the transcript once the caller has consumed it.
func (c *Capture) Reset() {
	c.mu.Lock()
	c.transcript = ""
	c.mu.Unlock()
}

// cancelActive 取消并等待当前任务退出。调用方持有 opMu。
func (c *Capture) cancelActive() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *Capture) consume(ctx context.Context, stream <-chan string, done chan struct{}) {
	defer close(done)

	for fragment := range stream {
		fragment = strings.TrimSpace(fragment)
		if fragment == "" {
			continue
		}

		c.mu.Lock()
		if c.done != done {
			c.mu.Unlock()
			continue
		}
		if c.transcript == "" {
			c.transcript = fragment
		} else {
			c.transcript += " " + fragment
		}
		transcript := c.transcript
		onUpdate := c.onUpdate
		c.mu.Unlock()

		if onUpdate != nil {
			onUpdate(transcript)
		}
	}

	// 引擎主动结束（而不是被取消）时视为本次听写结束
	if ctx.Err() == nil {
		c.mu.Lock()
		if c.done == done {
			c.listening = false
			c.cancel, c.done = nil, nil
		}
		c.mu.Unlock()
	}
}

func (c *Capture) report(err error) {
	log.Warnf("[capture] failed to start recognition: %v", err)
	select {
	case c.errs <- err:
	default:
	}
}

// FeedEngine is an Engine fed by externally recognized fragments, for example
// transcripts pushed by a client running on-device recognition.
type FeedEngine struct {
	mu     sync.Mutex
	active chan string
}

// NewFeedEngine 创建外部推送的识别引擎。
func NewFeedEngine() *FeedEngine {
	return &FeedEngine{}
}

// Recognize implements Engine.
func (e *FeedEngine) Recognize(ctx context.Context) (<-chan string, error) {
	ch := make(chan string, 32)

	e.mu.Lock()
	if e.active != nil {
		e.mu.Unlock()
		return nil, ErrEngineUnavailable
	}
	e.active = ch
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.mu.Lock()
		e.active = nil
		close(ch)
		e.mu.Unlock()
	}()
	return ch, nil
}

// Push delivers a fragment to the active stream. It reports false when no
// stream is listening or the stream buffer is full.
func (e *FeedEngine) Push(fragment string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return false
	}
	select {
	case e.active <- fragment:
		return true
	default:
		log.Warnf("[capture] dropping transcript fragment, buffer full")
		return false
	}
}

// Active reports whether a recognition stream is open.
func (e *FeedEngine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active != nil
}
