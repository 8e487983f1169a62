package server

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble"
)

// LogStore is the append-only message log behind the backend.
type LogStore interface {
	All() ([]string, error)
	Append(msg string) (int, error)
	Len() int
	Close() error
}

// MemoryLog keeps the log in process memory.
type MemoryLog struct {
	mu       sync.RWMutex
	messages []string
}

// NewMemoryLog returns an empty in-memory log, optionally seeded.
func NewMemoryLog(seed ...string) *MemoryLog {
	return &MemoryLog{messages: append([]string(nil), seed...)}
}

func (m *MemoryLog) All() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append(make([]string, 0, len(m.messages)), m.messages...), nil
}

func (m *MemoryLog) Append(msg string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return len(m.messages), nil
}

func (m *MemoryLog) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages)
}

func (m *MemoryLog) Close() error { return nil }

// PebbleLog persists the log in pebble. Keys are 8-byte big-endian sequence
// numbers so iteration order is append order.
type PebbleLog struct {
	db   *pebble.DB
	mu   sync.Mutex
	next uint64
}

// OpenPebbleLog opens or creates a log under dir.
func OpenPebbleLog(dir string) (*PebbleLog, error) {
	if dir == "" {
		return nil, fmt.Errorf("pebble log: data dir required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble log: %w", err)
	}
	s := &PebbleLog{db: db}
	it, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	defer func() { _ = it.Close() }()
	if it.Last() && len(it.Key()) >= 8 {
		s.next = binary.BigEndian.Uint64(it.Key()[:8]) + 1
	}
	return s, nil
}

func (s *PebbleLog) All() ([]string, error) {
	it, err := s.db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()
	out := make([]string, 0, 256)
	for it.First(); it.Valid(); it.Next() {
		out = append(out, string(it.Value()))
	}
	return out, it.Error()
}

func (s *PebbleLog) Append(msg string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, s.next)
	if err := s.db.Set(key, []byte(msg), pebble.Sync); err != nil {
		return 0, err
	}
	s.next++
	return int(s.next), nil
}

func (s *PebbleLog) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.next)
}

func (s *PebbleLog) Close() error {
	return s.db.Close()
}
