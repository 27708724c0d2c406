// Package kv 是本地键值存储，对应移动端的 UserDefaults：一个 bbolt 文件，一个 bucket。
package kv

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/wutongtree/backend/internal/model/conversation"
	"github.com/wutongtree/backend/internal/model/user"
)

const (
	KeySavedConversations = "savedConversations"
	KeyCurrentUser        = "currentUser"
)

var bucketName = []byte("wutongtree")

// Store persists conversation records and the signed-in user.
type Store struct {
	db *bolt.DB
}

// Open 打开（必要时创建）bbolt 文件。
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create kv dir: %w", err)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open kv store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create kv bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) get(key string, out any) (bool, error) {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketName).Get([]byte(key)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil || raw == nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) put(key string, value any) error {
	enc, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), enc)
	})
}

// Conversations returns the saved records in insertion order.
func (s *Store) Conversations() ([]conversation.Record, error) {
	var records []conversation.Record
	if _, err := s.get(KeySavedConversations, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// UpsertConversation 按 id 线性查找：存在则原地更新，否则追加到末尾。
// 已有评分不会被未评分的新记录覆盖，改评分走 RateConversation。
func (s *Store) UpsertConversation(rec conversation.Record) error {
	return s.updateConversations(func(records []conversation.Record) ([]conversation.Record, error) {
		for i := range records {
			if records[i].ID != rec.ID {
				continue
			}
			if rec.Rating == 0 {
				rec.Rating = records[i].Rating
			}
			records[i] = rec
			return records, nil
		}
		return append(records, rec), nil
	})
}

// RateConversation overwrites the rating of a saved record, including
// setting it back to 0. ok is false when no record has the id.
func (s *Store) RateConversation(id string, rating int) (rec conversation.Record, ok bool, err error) {
	err = s.updateConversations(func(records []conversation.Record) ([]conversation.Record, error) {
		for i := range records {
			if records[i].ID == id {
				records[i].Rating = rating
				rec, ok = records[i], true
				break
			}
		}
		return records, nil
	})
	if err != nil {
		return conversation.Record{}, false, err
	}
	return rec, ok, nil
}

// updateConversations 在同一个写事务里读改写记录列表。
func (s *Store) updateConversations(fn func([]conversation.Record) ([]conversation.Record, error)) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		var records []conversation.Record
		if raw := b.Get([]byte(KeySavedConversations)); raw != nil {
			if err := json.Unmarshal(raw, &records); err != nil {
				return fmt.Errorf("decode %s: %w", KeySavedConversations, err)
			}
		}

		records, err := fn(records)
		if err != nil {
			return err
		}

		enc, err := json.Marshal(records)
		if err != nil {
			return fmt.Errorf("encode %s: %w", KeySavedConversations, err)
		}
		return b.Put([]byte(KeySavedConversations), enc)
	})
}

// CurrentUser returns the signed-in user, if any.
func (s *Store) CurrentUser() (user.User, bool, error) {
	var u user.User
	ok, err := s.get(KeyCurrentUser, &u)
	return u, ok, err
}

// SaveCurrentUser overwrites the signed-in user.
func (s *Store) SaveCurrentUser(u user.User) error {
	if u.ID == "" {
		return errors.New("user id is required")
	}
	return s.put(KeyCurrentUser, u)
}

// ClearCurrentUser signs the user out. Missing keys are not an error.
func (s *Store) ClearCurrentUser() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(KeyCurrentUser))
	})
}
