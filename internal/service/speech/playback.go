package speech

import (
	"context"
	"sync"
	"time"

	"github.com/wutongtree/backend/pkg/log"
)

// Sink plays synthesized audio and returns once playback has finished or ctx is cancelled.
type Sink interface {
	Play(ctx context.Context, audio Audio) error
}

// PacingSink 不输出声音，只按音频时长等待，模拟设备播放。
type PacingSink struct{}

// Play implements Sink.
func (PacingSink) Play(ctx context.Context, audio Audio) error {
	if audio.Duration <= 0 {
		return nil
	}
	timer := time.NewTimer(audio.Duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Tap receives every synthesized clip before it is played.
type Tap func(speakerID string, audio Audio)

// PlaybackOptions 可选配置。
type PlaybackOptions struct {
	Sink     Sink
	Fallback Synthesizer
	Tap      Tap
}

// Playback speaks text for a participant. A vendor failure falls back to the
// local synthesizer so Speak never fails from the caller's point of view.
type Playback struct {
	primary  Synthesizer
	fallback Synthesizer
	sink     Sink

	mu             sync.Mutex
	tap            Tap
	speaking       bool
	currentSpeaker string
	generation     uint64
	cancel         context.CancelFunc
	outputEnabled  bool
}

// NewPlayback 创建播放适配器。primary 为 nil 时直接使用本地合成。
func NewPlayback(primary Synthesizer, opts PlaybackOptions) *Playback {
	if opts.Fallback == nil {
		opts.Fallback = NewLocalSynthesizer(0)
	}
	if opts.Sink == nil {
		opts.Sink = PacingSink{}
	}
	if primary == nil {
		primary = opts.Fallback
	}
	return &Playback{
		primary:       primary,
		fallback:      opts.Fallback,
		sink:          opts.Sink,
		tap:           opts.Tap,
		outputEnabled: true,
	}
}

// SetTap replaces the audio tap. Pass nil to detach.
func (p *Playback) SetTap(tap Tap) {
	p.mu.Lock()
	p.tap = tap
	p.mu.Unlock()
}

// SetOutputEnabled 关闭扬声器时仍按时长等待，但不把音频交给 Sink。
func (p *Playback) SetOutputEnabled(enabled bool) {
	p.mu.Lock()
	p.outputEnabled = enabled
	p.mu.Unlock()
}

// Speaking reports whether something is currently playing.
func (p *Playback) Speaking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speaking
}

// CurrentSpeaker returns the id being voiced, or "" when idle.
func (p *Playback) CurrentSpeaker() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentSpeaker
}

// SpeakOption 调整单次朗读的参数。
type SpeakOption func(*Request)

// WithEmotion 设置自建 TTS 使用的情绪标签。
func WithEmotion(emotion string) SpeakOption {
	return func(r *Request) { r.Emotion = emotion }
}

// Speak starts playback and returns a channel that is closed exactly once when
// playback ends, whether it finished, was cancelled or failed. A new Speak
// interrupts the one in progress.
func (p *Playback) Speak(ctx context.Context, text, speakerID string, role VoiceRole, opts ...SpeakOption) <-chan struct{} {
	done := make(chan struct{})
	req := Request{Text: text, Role: role}
	for _, opt := range opts {
		opt(&req)
	}

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	playCtx, cancel := context.WithCancel(ctx)
	p.generation++
	gen := p.generation
	p.cancel = cancel
	p.speaking = true
	p.currentSpeaker = speakerID
	tap := p.tap
	output := p.outputEnabled
	p.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		defer p.finish(gen)

		audio := p.synthesize(playCtx, req)
		if playCtx.Err() != nil {
			return
		}
		if tap != nil && len(audio.Data) > 0 {
			tap(speakerID, audio)
		}

		var sink Sink = PacingSink{}
		if output {
			sink = p.sink
		}
		if err := sink.Play(playCtx, audio); err != nil && playCtx.Err() == nil {
			log.Warnf("[tts] playback failed for %s: %v", speakerID, err)
		}
	}()

	return done
}

func (p *Playback) synthesize(ctx context.Context, req Request) Audio {
	audio, err := p.primary.Synthesize(ctx, req)
	if err == nil {
		return audio
	}
	if ctx.Err() != nil {
		return Audio{}
	}
	log.Warnf("[tts] %s synthesis failed, falling back to %s: %v", p.primary.Name(), p.fallback.Name(), err)

	audio, err = p.fallback.Synthesize(ctx, req)
	if err != nil {
		log.Warnf("[tts] fallback synthesis failed: %v", err)
		return Audio{}
	}
	return audio
}

// finish 只清理属于本次播放的状态，避免覆盖后来者。
func (p *Playback) finish(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.generation != gen {
		return
	}
	p.speaking = false
	p.currentSpeaker = ""
	p.cancel = nil
}

// Stop halts playback immediately. Calling it while idle is a no-op.
func (p *Playback) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.speaking {
		return
	}
	if p.cancel != nil {
		p.cancel()
	}
	p.generation++
	p.speaking = false
	p.currentSpeaker = ""
	p.cancel = nil
}
