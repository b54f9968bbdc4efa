// Package ingest discovers soil report images in watch folders and queues them for scanning.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/farm-advisor/internal/async"
)

// Service feeds discovered files into the scan queue. A file whose content was
// already queued is not queued again.
type Service struct {
	queue  async.Queue
	logger *slog.Logger

	mu   sync.Mutex
	seen map[string]string // path -> sha256 of the last queued content
}

func NewService(queue async.Queue, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{queue: queue, logger: logger, seen: make(map[string]string)}
}

// Submit queues path unless its content is unchanged since it was last queued.
// It reports whether the file was queued.
func (s *Service) Submit(ctx context.Context, path string) (bool, error) {
	sum, err := hashFile(path)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	if s.seen[path] == sum {
		s.mu.Unlock()
		s.logger.Debug("ingest.skip_unchanged", "path", path)
		return false, nil
	}
	s.seen[path] = sum
	s.mu.Unlock()

	job := async.Job{Path: path, SubmittedAt: time.Now(), TraceID: uuid.NewString()}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		s.mu.Lock()
		delete(s.seen, path)
		s.mu.Unlock()
		return false, err
	}
	return true, nil
}

// SubmitDir queues every image under root.
func (s *Service) SubmitDir(ctx context.Context, root string) (int, error) {
	paths, stats, err := ListImages(root, true)
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, p := range paths {
		ok, err := s.Submit(ctx, p)
		if err != nil {
			if errors.Is(err, async.ErrQueueClosed) || ctx.Err() != nil {
				return queued, err
			}
			s.logger.Warn("ingest.submit_failed", "path", p, "error", err)
			continue
		}
		if ok {
			queued++
		}
	}
	s.logger.Info("ingest.dir.done", "root", root, "scanned", stats.Scanned, "matched", stats.Matched, "queued", queued)
	return queued, nil
}

// Run watches cfg.Roots until ctx is done, optionally queueing existing files first.
func (s *Service) Run(ctx context.Context, cfg WatchConfig, initialScan bool) error {
	if cfg.Logger == nil {
		cfg.Logger = s.logger
	}
	events, errs, err := StartWatcher(ctx, cfg)
	if err != nil {
		return err
	}
	if initialScan {
		for _, root := range cfg.Roots {
			if _, err := s.SubmitDir(ctx, root); err != nil {
				s.logger.Warn("ingest.initial_scan_failed", "root", root, "error", err)
			}
		}
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case p, ok := <-events:
			if !ok {
				return nil
			}
			if _, err := s.Submit(ctx, p); err != nil {
				if errors.Is(err, async.ErrQueueClosed) {
					return err
				}
				s.logger.Warn("ingest.submit_failed", "path", p, "error", err)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.logger.Warn("ingest.watch_error", "error", err)
		}
	}
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
