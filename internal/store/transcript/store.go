// Package transcript 归档房间内的每一条消息。优先写 SQLite，打不开数据库时退回内存。
package transcript

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"github.com/wutongtree/backend/internal/model/chat"
	"github.com/wutongtree/backend/pkg/log"
)

// ErrSessionRequired 消息缺少 session id。
var ErrSessionRequired = errors.New("session id is required")

// Store archives messages and loads them back per session.
type Store interface {
	Archive(ctx context.Context, msg chat.Message) error
	LoadTranscript(ctx context.Context, sessionID string) ([]chat.Message, error)
	Close() error
}

// Open 打开 SQLite 归档；失败时记录日志并返回内存实现。
func Open(path string) Store {
	if path == "" {
		return NewMemoryStore()
	}
	s, err := OpenSQLite(path)
	if err != nil {
		log.Warnf("[transcript] sqlite unavailable, using in-memory archive: %v", err)
		return NewMemoryStore()
	}
	return s
}

// MemoryStore keeps transcripts in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]chat.Message
}

// NewMemoryStore 创建内存归档。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{messages: make(map[string][]chat.Message)}
}

// Archive appends a message to its session.
func (s *MemoryStore) Archive(_ context.Context, msg chat.Message) error {
	if msg.SessionID == "" {
		return ErrSessionRequired
	}
	s.mu.Lock()
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], msg)
	s.mu.Unlock()
	return nil
}

// LoadTranscript returns the session's messages ordered by creation time.
func (s *MemoryStore) LoadTranscript(_ context.Context, sessionID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	messages := s.messages[sessionID]
	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	sortByTime(copied)
	return copied, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

// SQLiteStore archives messages in a SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	sender_id TEXT NOT NULL,
	sender_name TEXT NOT NULL,
	kind TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages (session_id, created_at);`

// OpenSQLite opens the database file and creates the table if needed.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create transcript dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(10000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create messages table: %w", err)
	}
	log.Infof("[transcript] sqlite archive ready at %s", path)
	return &SQLiteStore{db: db}, nil
}

// Archive inserts one message. Re-archiving the same id is a no-op.
func (s *SQLiteStore) Archive(ctx context.Context, msg chat.Message) error {
	if msg.SessionID == "" {
		return ErrSessionRequired
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO messages (id, session_id, sender_id, sender_name, kind, content, created_at) VALUES (?,?,?,?,?,?,?);`,
		msg.ID, msg.SessionID, msg.SenderID, msg.SenderName, string(msg.Kind), msg.Content, msg.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// LoadTranscript returns the session's messages ordered by creation time.
func (s *SQLiteStore) LoadTranscript(ctx context.Context, sessionID string) ([]chat.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, sender_id, sender_name, kind, content, created_at FROM messages WHERE session_id = ? ORDER BY created_at ASC;`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	out := make([]chat.Message, 0, 16)
	for rows.Next() {
		var (
			m       chat.Message
			kind    string
			created int64
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &m.SenderID, &m.SenderName, &kind, &m.Content, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Kind = chat.Kind(kind)
		m.CreatedAt = time.Unix(0, created)
		out = append(out, m)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
