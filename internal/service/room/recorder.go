package room

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wutongtree/backend/internal/service/speech"
)

// Recorder writes the synthesized audio of a room into one file.
type Recorder struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	started time.Time
	bytes   int64
}

// maxRecordingSuffix 同一秒内最多尝试的文件名数
const maxRecordingSuffix = 100

// RecordingFileName 录音文件名，按开始时间的 unix 秒命名。n > 0 时追加序号，
// 用于同一秒内开始的多段录音。
func RecordingFileName(start time.Time, n int) string {
	if n == 0 {
		return fmt.Sprintf("conversation_%d.mp3", start.Unix())
	}
	return fmt.Sprintf("conversation_%d_%d.mp3", start.Unix(), n)
}

// StartRecorder 在 dir 下创建录音文件，已有的文件不会被覆盖。
func StartRecorder(dir string, now time.Time) (*Recorder, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recording dir: %w", err)
	}

	for n := 0; n < maxRecordingSuffix; n++ {
		path := filepath.Join(dir, RecordingFileName(now, n))
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create recording file: %w", err)
		}
		return &Recorder{file: file, path: path, started: now}, nil
	}
	return nil, fmt.Errorf("create recording file: too many recordings at %d", now.Unix())
}

// Path returns the file being written.
func (r *Recorder) Path() string {
	return r.path
}

// Write 作为播放器的音频旁路，追加一段音频。
func (r *Recorder) Write(_ string, audio speech.Audio) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return
	}
	n, err := r.file.Write(audio.Data)
	r.bytes += int64(n)
	if err != nil {
		// 写失败只影响录音，不影响对话
		r.file.Close()
		r.file = nil
	}
}

// Stop closes the file and returns the recorded duration in whole seconds.
func (r *Recorder) Stop(now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seconds := int(now.Sub(r.started) / time.Second)
	if seconds < 0 {
		seconds = 0
	}
	if r.file == nil {
		return seconds, nil
	}
	err := r.file.Close()
	r.file = nil
	return seconds, err
}

// Bytes returns how much audio has been written.
func (r *Recorder) Bytes() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bytes
}
