// Package jsonl implements the history store port as an append-only JSONL
// log with a bounded in-memory window. Each line is one self-describing call
// record; the on-disk log is independently replayable.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/agentlens/agentlens/internal/domain"
	"github.com/agentlens/agentlens/internal/domain/call"
	"github.com/agentlens/agentlens/internal/port/history"
)

// DefaultCap is the default number of records retained in memory.
const DefaultCap = 1000

// maxLineBytes bounds a single persisted record line during load.
const maxLineBytes = 4 << 20

// Options configures a Store.
type Options struct {
	// Cap is the retained window size. Zero means DefaultCap.
	Cap int
	// MaxLogBytes triggers rotation of the active log once exceeded.
	// Zero disables rotation.
	MaxLogBytes int64
}

// Store is an append-only JSONL history store. The append mutex serializes
// the assign/persist/rotate sequence; the state lock guards only the
// in-memory window, so a stalled durable write blocks later appends while
// snapshot readers keep serving the last committed window.
type Store struct {
	appendMu sync.Mutex
	mu       sync.RWMutex
	f        *os.File
	path     string
	cap      int
	maxSize  int64
	size     int64
	records  []call.Record
	nextSeq  int64
	gen      uint64

	fsync  func() error
	rename func(oldpath, newpath string) error
}

var _ history.Store = (*Store)(nil)

// Open loads the persisted log at path, retaining the most recent Cap
// records in memory. Unparsable lines are skipped and logged; the valid
// prefix is always kept (recovery favors availability over completeness).
func Open(path string, opts Options) (*Store, error) {
	if opts.Cap <= 0 {
		opts.Cap = DefaultCap
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600) //nolint:gosec // G304: path comes from validated config
	if err != nil {
		return nil, fmt.Errorf("open history log %s: %w", path, err)
	}

	s := &Store{
		f:       f,
		path:    path,
		cap:     opts.Cap,
		maxSize: opts.MaxLogBytes,
		nextSeq: 1,
		fsync:   f.Sync,
		rename:  os.Rename,
	}

	if err := s.load(); err != nil {
		_ = f.Close()
		return nil, err
	}

	if info, err := f.Stat(); err == nil {
		s.size = info.Size()
	}

	return s, nil
}

// load replays the active log into the retained window.
func (s *Store) load() error {
	if _, err := s.f.Seek(0, 0); err != nil {
		return fmt.Errorf("seek history log: %w", err)
	}

	sc := bufio.NewScanner(s.f)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)

	var corrupt int
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec call.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			corrupt++
			slog.Warn("skipping corrupt history record",
				"path", s.path, "line", line,
				"error", fmt.Errorf("%v: %w", err, domain.ErrCorruptRecord))
			continue
		}
		s.admit(rec)
	}
	if err := sc.Err(); err != nil {
		// A truncated tail (e.g. crash mid-write) is recoverable: keep what
		// parsed and let the next append continue the log.
		slog.Warn("history log read stopped early", "path", s.path, "error", err)
	}
	if corrupt > 0 {
		slog.Warn("history log recovered with corrupt records skipped",
			"path", s.path, "skipped", corrupt, "retained", len(s.records))
	}

	slog.Info("history loaded",
		"path", s.path, "retained", len(s.records), "next_sequence", s.nextSeq)
	return nil
}

// admit appends a record to the retained window, evicting over cap and
// advancing the sequence counter past it. Caller holds the state lock (or is
// single-threaded during load).
func (s *Store) admit(rec call.Record) {
	s.records = append(s.records, rec)
	if len(s.records) > s.cap {
		s.records = s.records[1:]
	}
	if rec.SequenceID >= s.nextSeq {
		s.nextSeq = rec.SequenceID + 1
	}
	s.gen++
}

// Append persists rec durably and admits it to the retained window. The
// record's SequenceID is assigned here; on failure the record is not
// committed and the sequence ID is not consumed.
func (s *Store) Append(_ context.Context, rec *call.Record) error {
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	s.mu.RLock()
	rec.SequenceID = s.nextSeq
	s.mu.RUnlock()

	data, err := json.Marshal(rec)
	if err != nil {
		rec.SequenceID = 0
		return fmt.Errorf("marshal call record: %w", err)
	}
	data = append(data, '\n')

	// The durable write happens outside the state lock: a partial write
	// leaves a corrupt tail on disk that load() skips, and a stalled sync
	// holds up later appends without touching snapshot readers.
	if _, err := s.f.Write(data); err != nil {
		rec.SequenceID = 0
		return fmt.Errorf("write call record: %v: %w", err, domain.ErrPersistence)
	}
	if err := s.fsync(); err != nil {
		rec.SequenceID = 0
		return fmt.Errorf("sync history log: %v: %w", err, domain.ErrPersistence)
	}

	s.mu.Lock()
	s.admit(*rec)
	s.mu.Unlock()
	s.size += int64(len(data))

	if s.maxSize > 0 && s.size > s.maxSize {
		if err := s.rotate(); err != nil {
			// The append itself is committed; rotation retries on a later append.
			slog.Warn("history log rotation failed", "path", s.path, "error", err)
		}
	}
	return nil
}

// Snapshot returns an immutable copy of the retained window.
func (s *Store) Snapshot() history.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]call.Record, len(s.records))
	copy(records, s.records)
	return history.Snapshot{Records: records, Generation: s.gen}
}

// Len reports the number of currently retained records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// NextSequence reports the sequence ID the next append will receive.
func (s *Store) NextSequence() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextSeq
}

// Close flushes and closes the active log.
func (s *Store) Close() error {
	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("sync history log: %w", err)
	}
	return s.f.Close()
}
