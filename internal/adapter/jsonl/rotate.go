package jsonl

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/agentlens/agentlens/internal/domain/call"
)

// rotate rewrites the retained window into a fresh active log and moves the
// full log aside as an archive segment. The archive is compressed in the
// background; the active log stays independently replayable at all times.
// Caller holds the append lock.
func (s *Store) rotate() error {
	s.mu.RLock()
	records := make([]call.Record, len(s.records))
	copy(records, s.records)
	s.mu.RUnlock()

	tmp := s.path + ".tmp"
	nf, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600) //nolint:gosec // G304: derived from validated config path
	if err != nil {
		return fmt.Errorf("create rotated log: %w", err)
	}

	var written int64
	for i := range records {
		data, err := json.Marshal(&records[i])
		if err != nil {
			_ = nf.Close()
			_ = os.Remove(tmp)
			return fmt.Errorf("marshal retained record: %w", err)
		}
		data = append(data, '\n')
		n, err := nf.Write(data)
		if err != nil {
			_ = nf.Close()
			_ = os.Remove(tmp)
			return fmt.Errorf("write rotated log: %w", err)
		}
		written += int64(n)
	}
	if err := nf.Sync(); err != nil {
		_ = nf.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("sync rotated log: %w", err)
	}
	if err := nf.Close(); err != nil {
		return fmt.Errorf("close rotated log: %w", err)
	}

	archive := fmt.Sprintf("%s.%d", s.path, time.Now().Unix())
	if err := s.rename(s.path, archive); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("archive history log: %w", err)
	}
	if err := s.rename(tmp, s.path); err != nil {
		// The active path must never disappear: put the archived log back so
		// s.f and s.path still refer to the same file.
		if rbErr := s.rename(archive, s.path); rbErr != nil {
			slog.Error("restore history log after failed rotation",
				"path", s.path, "archive", archive, "error", rbErr)
		}
		_ = os.Remove(tmp)
		return fmt.Errorf("activate rotated log: %w", err)
	}

	old := s.f
	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_APPEND, 0o600) //nolint:gosec // G304: derived from validated config path
	if err != nil {
		return fmt.Errorf("reopen history log: %w", err)
	}
	_ = old.Close()
	s.f = f
	s.fsync = f.Sync
	s.size = written

	go compressArchive(archive)

	slog.Info("history log rotated",
		"path", s.path, "archive", archive, "retained", len(records))
	return nil
}

// compressArchive zstd-compresses an archived segment and removes the plain
// copy. Archives are audit artifacts only; failure leaves the plain file in
// place.
func compressArchive(path string) {
	in, err := os.Open(path) //nolint:gosec // G304: path produced by rotate
	if err != nil {
		slog.Warn("open archive for compression failed", "path", path, "error", err)
		return
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(path+".zst", os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600) //nolint:gosec // G304: path produced by rotate
	if err != nil {
		slog.Warn("create compressed archive failed", "path", path, "error", err)
		return
	}

	enc, err := zstd.NewWriter(out)
	if err != nil {
		_ = out.Close()
		slog.Warn("init zstd encoder failed", "path", path, "error", err)
		return
	}

	if _, err := io.Copy(enc, in); err != nil {
		_ = enc.Close()
		_ = out.Close()
		_ = os.Remove(path + ".zst")
		slog.Warn("compress archive failed", "path", path, "error", err)
		return
	}
	if err := enc.Close(); err != nil {
		_ = out.Close()
		_ = os.Remove(path + ".zst")
		slog.Warn("finish compressed archive failed", "path", path, "error", err)
		return
	}
	if err := out.Close(); err != nil {
		slog.Warn("close compressed archive failed", "path", path, "error", err)
		return
	}

	_ = os.Remove(path)
	slog.Info("history archive compressed", "archive", path+".zst")
}
