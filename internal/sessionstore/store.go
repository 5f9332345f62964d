// Package sessionstore persists sessions as a content-addressed, append-only
// tree under a base directory. Every session lives at
// sessions/<projectHash>/<sessionId>/ alongside a per-project current.json
// pointer; fc-log.jsonl is append-only and summary.md is plain text.
// Metadata and summary writes go through write-temp-then-rename so a crash
// mid-write never corrupts the previous state.
package sessionstore

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ccjk/ctxrd/internal/secrets"
	"github.com/ccjk/ctxrd/internal/tokens"
)

const instrumentationName = "github.com/ccjk/ctxrd/internal/sessionstore"

// Store is the persistence boundary for sessions, their fc-logs, and
// summaries. It is the sole writer of the on-disk layout.
type Store interface {
	CreateSession(ctx context.Context, projectPath, projectHash, description string) (*Session, error)
	GetSession(ctx context.Context, projectHash, sessionID string) (*Session, error)
	UpdateSession(ctx context.Context, sess *Session) error
	CompleteSession(ctx context.Context, projectHash, sessionID string) error
	ArchiveSession(ctx context.Context, projectHash, sessionID string) error
	ListSessions(ctx context.Context, filter ListFilter) ([]SessionMeta, error)
	DeleteSession(ctx context.Context, projectHash, sessionID string) error

	AppendFCLog(ctx context.Context, projectHash, sessionID string, entry FCLogEntry) error
	GetFCLogs(ctx context.Context, projectHash, sessionID string, filter FCLogFilter) (iter.Seq[FCLogEntry], error)

	SaveSummary(ctx context.Context, projectHash, sessionID, summary string) error
	GetSummary(ctx context.Context, projectHash, sessionID string) (string, error)

	GetCurrentSession(ctx context.Context, projectHash string) (string, error)
	SetCurrentSession(ctx context.Context, projectHash, sessionID string) error

	CleanOldSessions(ctx context.Context, maxAge time.Duration) (CleanupResult, error)
	GetStorageStats(ctx context.Context) (StorageStats, error)

	Close() error
}

// Config configures the filesystem store.
type Config struct {
	// BaseDir is the root directory; sessions live under BaseDir/sessions.
	BaseDir string
	// Scrubber redacts secrets from args/results before they are persisted.
	// A nil Scrubber disables scrubbing (used by NoopScrubber in tests).
	Scrubber secrets.Scrubber
}

// DefaultConfig returns a Config rooted at ~/.ccjk/context, falling back to
// the working directory if the home directory cannot be resolved.
func DefaultConfig() *Config {
	base := ".ccjk/context"
	if home, err := os.UserHomeDir(); err == nil {
		base = filepath.Join(home, ".ccjk", "context")
	}
	return &Config{BaseDir: base}
}

type store struct {
	cfg         *Config
	sessionsDir string
	logger      *zap.Logger

	tracer         trace.Tracer
	meter          metric.Meter
	opCounter      metric.Int64Counter
	opDuration     metric.Float64Histogram

	mu     sync.RWMutex
	closed bool
}

// New creates a Store rooted at cfg.BaseDir, creating the sessions directory
// (mode 0700) if it does not already exist.
func New(cfg *Config, logger *zap.Logger) (Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.BaseDir == "" {
		return nil, errors.New("base dir is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sessionsDir := filepath.Join(cfg.BaseDir, "sessions")
	if err := os.MkdirAll(sessionsDir, dirPerm); err != nil {
		return nil, fmt.Errorf("creating sessions dir: %w", err)
	}

	s := &store{
		cfg:         cfg,
		sessionsDir: sessionsDir,
		logger:      logger,
		tracer:      otel.Tracer(instrumentationName),
		meter:       otel.Meter(instrumentationName),
	}
	s.initMetrics()
	return s, nil
}

func (s *store) initMetrics() {
	var err error
	s.opCounter, err = s.meter.Int64Counter(
		"ctxrd.sessionstore.operations_total",
		metric.WithDescription("Total session store operations, by op and outcome"),
	)
	if err != nil {
		s.logger.Warn("failed to create sessionstore op counter", zap.Error(err))
	}
	s.opDuration, err = s.meter.Float64Histogram(
		"ctxrd.sessionstore.operation_duration_seconds",
		metric.WithDescription("Session store operation latency"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5),
	)
	if err != nil {
		s.logger.Warn("failed to create sessionstore duration histogram", zap.Error(err))
	}
}

func (s *store) instrument(ctx context.Context, op string, fn func(ctx context.Context, span trace.Span) error) error {
	ctx, span := s.tracer.Start(ctx, "sessionstore."+op)
	defer span.End()

	start := time.Now()
	err := fn(ctx, span)
	elapsed := time.Since(start).Seconds()

	outcome := "ok"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if s.opCounter != nil {
		s.opCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op), attribute.String("outcome", outcome)))
	}
	if s.opDuration != nil {
		s.opDuration.Record(ctx, elapsed, metric.WithAttributes(attribute.String("op", op)))
	}
	return err
}

func (s *store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func (s *store) projectDir(projectHash string) string {
	return filepath.Join(s.sessionsDir, projectHash)
}

func (s *store) sessionDir(projectHash, sessionID string) string {
	return filepath.Join(s.projectDir(projectHash), sessionID)
}

// CreateSession allocates a new session directory and persists its initial
// metadata. projectHash is resolved upstream by the gitidentity package
// (ProjectIdentity.Hash); this package has no dependency on git lookups.
func (s *store) CreateSession(ctx context.Context, projectPath, projectHash, description string) (*Session, error) {
	if projectPath == "" {
		return nil, ErrEmptyProjectPath
	}
	if projectHash == "" {
		return nil, ErrEmptyProjectHash
	}

	var sess *Session
	err := s.instrument(ctx, "create_session", func(ctx context.Context, span trace.Span) error {
		if err := s.checkOpen(); err != nil {
			return err
		}

		hash := projectHash
		id := uuid.New().String()
		now := time.Now()

		meta := SessionMeta{
			ID:          id,
			ProjectPath: projectPath,
			ProjectHash: hash,
			StartTime:   now,
			Status:      StatusActive,
			Version:     1,
			Description: description,
			LastUpdated: now,
		}

		dir := s.sessionDir(hash, id)
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return fmt.Errorf("creating session dir: %w", err)
		}

		sess = &Session{
			Meta:        meta,
			Dir:         dir,
			FCLogPath:   filepath.Join(dir, "fc-log.jsonl"),
			SummaryPath: filepath.Join(dir, "summary.md"),
		}

		if err := s.writeMeta(sess); err != nil {
			return err
		}
		if err := s.SetCurrentSession(ctx, hash, id); err != nil {
			return err
		}

		span.SetAttributes(attribute.String("session_id", id), attribute.String("project_hash", hash))
		s.logger.Info("created session", zap.String("session_id", id), zap.String("project_hash", hash))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *store) GetSession(ctx context.Context, projectHash, sessionID string) (*Session, error) {
	var sess *Session
	err := s.instrument(ctx, "get_session", func(ctx context.Context, span trace.Span) error {
		if err := s.checkOpen(); err != nil {
			return err
		}
		meta, err := s.readMeta(projectHash, sessionID)
		if err != nil {
			return err
		}
		dir := s.sessionDir(projectHash, sessionID)
		sess = &Session{
			Meta:        *meta,
			Dir:         dir,
			FCLogPath:   filepath.Join(dir, "fc-log.jsonl"),
			SummaryPath: filepath.Join(dir, "summary.md"),
		}
		return nil
	})
	return sess, err
}

func (s *store) UpdateSession(ctx context.Context, sess *Session) error {
	return s.instrument(ctx, "update_session", func(ctx context.Context, span trace.Span) error {
		if err := s.checkOpen(); err != nil {
			return err
		}
		sess.Meta.LastUpdated = time.Now()
		sess.Meta.Version++
		return s.writeMeta(sess)
	})
}

func (s *store) CompleteSession(ctx context.Context, projectHash, sessionID string) error {
	return s.transitionStatus(ctx, "complete_session", projectHash, sessionID, StatusCompleted)
}

func (s *store) ArchiveSession(ctx context.Context, projectHash, sessionID string) error {
	return s.transitionStatus(ctx, "archive_session", projectHash, sessionID, StatusArchived)
}

func (s *store) transitionStatus(ctx context.Context, op, projectHash, sessionID string, next Status) error {
	return s.instrument(ctx, op, func(ctx context.Context, span trace.Span) error {
		if err := s.checkOpen(); err != nil {
			return err
		}
		meta, err := s.readMeta(projectHash, sessionID)
		if err != nil {
			return err
		}
		if !meta.Status.CanTransitionTo(next) {
			return ErrInvalidTransition
		}
		meta.Status = next
		now := time.Now()
		if next != StatusActive {
			meta.EndTime = &now
		}
		meta.LastUpdated = now
		meta.Version++

		dir := s.sessionDir(projectHash, sessionID)
		sess := &Session{
			Meta:        *meta,
			Dir:         dir,
			FCLogPath:   filepath.Join(dir, "fc-log.jsonl"),
			SummaryPath: filepath.Join(dir, "summary.md"),
		}
		return s.writeMeta(sess)
	})
}

func (s *store) ListSessions(ctx context.Context, filter ListFilter) ([]SessionMeta, error) {
	var out []SessionMeta
	err := s.instrument(ctx, "list_sessions", func(ctx context.Context, span trace.Span) error {
		if err := s.checkOpen(); err != nil {
			return err
		}

		projectHashes := []string{filter.ProjectHash}
		if filter.ProjectHash == "" {
			entries, err := os.ReadDir(s.sessionsDir)
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return fmt.Errorf("reading sessions dir: %w", err)
			}
			projectHashes = nil
			for _, e := range entries {
				if e.IsDir() {
					projectHashes = append(projectHashes, e.Name())
				}
			}
		}

		for _, hash := range projectHashes {
			metas, err := s.listProjectSessions(hash)
			if err != nil {
				return err
			}
			for _, m := range metas {
				if filter.Status != "" && m.Status != filter.Status {
					continue
				}
				out = append(out, m)
			}
		}

		if filter.Limit > 0 && len(out) > filter.Limit {
			out = out[:filter.Limit]
		}
		return nil
	})
	return out, err
}

func (s *store) listProjectSessions(projectHash string) ([]SessionMeta, error) {
	dir := s.projectDir(projectHash)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading project dir: %w", err)
	}

	var metas []SessionMeta
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		meta, err := s.readMeta(projectHash, e.Name())
		if err != nil {
			continue
		}
		metas = append(metas, *meta)
	}
	return metas, nil
}

func (s *store) DeleteSession(ctx context.Context, projectHash, sessionID string) error {
	return s.instrument(ctx, "delete_session", func(ctx context.Context, span trace.Span) error {
		if err := s.checkOpen(); err != nil {
			return err
		}
		dir := s.sessionDir(projectHash, sessionID)
		if _, err := os.Stat(dir); err != nil {
			if os.IsNotExist(err) {
				return ErrSessionNotFound
			}
			return err
		}
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("removing session dir: %w", err)
		}
		s.logger.Info("deleted session", zap.String("session_id", sessionID), zap.String("project_hash", projectHash))
		return nil
	})
}

// AppendFCLog scrubs secrets from args and result, truncates both to their
// bounded sizes, appends one JSON line to fc-log.jsonl, and atomically
// rewrites the session's meta with recomputed counters.
func (s *store) AppendFCLog(ctx context.Context, projectHash, sessionID string, entry FCLogEntry) error {
	return s.instrument(ctx, "append_fc_log", func(ctx context.Context, span trace.Span) error {
		if err := s.checkOpen(); err != nil {
			return err
		}

		entry = s.scrubAndTruncate(entry)

		dir := s.sessionDir(projectHash, sessionID)
		logPath := filepath.Join(dir, "fc-log.jsonl")

		f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
		if err != nil {
			return fmt.Errorf("opening fc-log: %w", err)
		}
		defer f.Close()

		line, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("marshalling fc-log entry: %w", err)
		}
		line = append(line, '\n')
		if _, err := f.Write(line); err != nil {
			return fmt.Errorf("appending fc-log: %w", err)
		}

		meta, err := s.readMeta(projectHash, sessionID)
		if err != nil {
			return err
		}
		meta.FCCount++
		meta.TokenCount += entry.Tokens
		meta.LastUpdated = time.Now()
		meta.Version++

		sess := &Session{
			Meta:        *meta,
			Dir:         dir,
			FCLogPath:   logPath,
			SummaryPath: filepath.Join(dir, "summary.md"),
		}
		return s.writeMeta(sess)
	})
}

func (s *store) scrubAndTruncate(entry FCLogEntry) FCLogEntry {
	scrubbedCount := 0
	scrub := func(v string) string {
		if s.cfg.Scrubber != nil {
			res := s.cfg.Scrubber.Scrub(v)
			scrubbedCount += res.TotalFindings
			v = res.Scrubbed
		}
		return truncateString(v, maxArgValueLen)
	}

	if entry.Args != nil {
		scrubbedArgs := make(map[string]string, len(entry.Args))
		for k, v := range entry.Args {
			scrubbedArgs[k] = scrub(v)
		}
		entry.Args = scrubbedArgs
	}

	if s.cfg.Scrubber != nil {
		res := s.cfg.Scrubber.ScrubDeep(entry.Result)
		scrubbedCount += res.TotalFindings
		entry.Result = res.Scrubbed
	}
	entry.Result = truncateString(entry.Result, maxResultLen)
	entry.Scrubbed = scrubbedCount
	return entry
}

func truncateString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + fmt.Sprintf("... [truncated %d chars]", len(s)-max)
}

// GetFCLogs returns a lazy, single-pass sequence over the session's
// fc-log.jsonl. Unparseable lines are silently skipped; filters apply
// during iteration so callers can stop early without reading the whole
// file.
func (s *store) GetFCLogs(ctx context.Context, projectHash, sessionID string, filter FCLogFilter) (iter.Seq[FCLogEntry], error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	dir := s.sessionDir(projectHash, sessionID)
	logPath := filepath.Join(dir, "fc-log.jsonl")

	return func(yield func(FCLogEntry) bool) {
		f, err := os.Open(logPath)
		if err != nil {
			return
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		const maxLine = 1 << 20
		buf := make([]byte, maxLine)
		scanner.Buffer(buf, maxLine)

		count := 0
		for scanner.Scan() {
			var entry FCLogEntry
			if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
				continue
			}
			if !matchesFCFilter(entry, filter) {
				continue
			}
			count++
			if !yield(entry) {
				return
			}
			if filter.Limit > 0 && count >= filter.Limit {
				return
			}
		}
	}, nil
}

func matchesFCFilter(entry FCLogEntry, filter FCLogFilter) bool {
	if filter.Start != nil && entry.Timestamp.Before(*filter.Start) {
		return false
	}
	if filter.End != nil && entry.Timestamp.After(*filter.End) {
		return false
	}
	if filter.FCName != "" && entry.FC != filter.FCName {
		return false
	}
	if filter.Status != "" && entry.Status != filter.Status {
		return false
	}
	return true
}

func (s *store) SaveSummary(ctx context.Context, projectHash, sessionID, summary string) error {
	return s.instrument(ctx, "save_summary", func(ctx context.Context, span trace.Span) error {
		if err := s.checkOpen(); err != nil {
			return err
		}
		dir := s.sessionDir(projectHash, sessionID)
		path := filepath.Join(dir, "summary.md")
		if err := atomicWrite(path, []byte(summary)); err != nil {
			return fmt.Errorf("saving summary: %w", err)
		}

		meta, err := s.readMeta(projectHash, sessionID)
		if err != nil {
			return err
		}
		meta.SummaryTokens = tokens.Estimate(summary)
		meta.LastUpdated = time.Now()
		meta.Version++
		sess := &Session{Meta: *meta, Dir: dir, FCLogPath: filepath.Join(dir, "fc-log.jsonl"), SummaryPath: path}
		return s.writeMeta(sess)
	})
}

func (s *store) GetSummary(ctx context.Context, projectHash, sessionID string) (string, error) {
	var out string
	err := s.instrument(ctx, "get_summary", func(ctx context.Context, span trace.Span) error {
		if err := s.checkOpen(); err != nil {
			return err
		}
		path := filepath.Join(s.sessionDir(projectHash, sessionID), "summary.md")
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("reading summary: %w", err)
		}
		out = string(data)
		return nil
	})
	return out, err
}

type currentPointer struct {
	SessionID   string    `json:"sessionId"`
	LastUpdated time.Time `json:"lastUpdated"`
}

func (s *store) GetCurrentSession(ctx context.Context, projectHash string) (string, error) {
	var id string
	err := s.instrument(ctx, "get_current_session", func(ctx context.Context, span trace.Span) error {
		if err := s.checkOpen(); err != nil {
			return err
		}
		path := filepath.Join(s.projectDir(projectHash), "current.json")
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return ErrNoCurrentSession
			}
			return fmt.Errorf("reading current pointer: %w", err)
		}
		var ptr currentPointer
		if err := json.Unmarshal(data, &ptr); err != nil {
			return fmt.Errorf("parsing current pointer: %w", err)
		}
		id = ptr.SessionID
		return nil
	})
	return id, err
}

func (s *store) SetCurrentSession(ctx context.Context, projectHash, sessionID string) error {
	return s.instrument(ctx, "set_current_session", func(ctx context.Context, span trace.Span) error {
		if err := s.checkOpen(); err != nil {
			return err
		}
		dir := s.projectDir(projectHash)
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return fmt.Errorf("creating project dir: %w", err)
		}
		ptr := currentPointer{SessionID: sessionID, LastUpdated: time.Now()}
		data, err := json.Marshal(ptr)
		if err != nil {
			return fmt.Errorf("marshalling current pointer: %w", err)
		}
		return atomicWrite(filepath.Join(dir, "current.json"), data)
	})
}

func (s *store) CleanOldSessions(ctx context.Context, maxAge time.Duration) (CleanupResult, error) {
	var result CleanupResult
	err := s.instrument(ctx, "clean_old_sessions", func(ctx context.Context, span trace.Span) error {
		if err := s.checkOpen(); err != nil {
			return err
		}
		cutoff := time.Now().Add(-maxAge)

		projectEntries, err := os.ReadDir(s.sessionsDir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("reading sessions dir: %w", err)
		}

		for _, pe := range projectEntries {
			if !pe.IsDir() {
				continue
			}
			projectHash := pe.Name()
			metas, err := s.listProjectSessions(projectHash)
			if err != nil {
				continue
			}
			for _, m := range metas {
				if m.Status == StatusActive {
					continue
				}
				ref := m.LastUpdated
				if m.EndTime != nil {
					ref = *m.EndTime
				}
				if ref.After(cutoff) {
					continue
				}
				dir := s.sessionDir(projectHash, m.ID)
				size := dirSize(dir)
				if err := os.RemoveAll(dir); err != nil {
					continue
				}
				result.Removed++
				result.BytesFreed += size
				result.IDs = append(result.IDs, m.ID)
			}
		}
		span.SetAttributes(attribute.Int("removed", result.Removed))
		s.logger.Info("cleaned old sessions", zap.Int("removed", result.Removed), zap.Int64("bytes_freed", result.BytesFreed))
		return nil
	})
	return result, err
}

func (s *store) GetStorageStats(ctx context.Context) (StorageStats, error) {
	var stats StorageStats
	err := s.instrument(ctx, "get_storage_stats", func(ctx context.Context, span trace.Span) error {
		if err := s.checkOpen(); err != nil {
			return err
		}
		projectEntries, err := os.ReadDir(s.sessionsDir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("reading sessions dir: %w", err)
		}
		for _, pe := range projectEntries {
			if !pe.IsDir() {
				continue
			}
			stats.ProjectCount++
			metas, err := s.listProjectSessions(pe.Name())
			if err != nil {
				continue
			}
			for _, m := range metas {
				stats.SessionCount++
				stats.TotalBytes += dirSize(s.sessionDir(pe.Name(), m.ID))
			}
		}
		return nil
	})
	return stats, err
}

func (s *store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *store) writeMeta(sess *Session) error {
	data, err := json.MarshalIndent(sess.Meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling session meta: %w", err)
	}
	return atomicWrite(filepath.Join(sess.Dir, "meta.json"), data)
}

func (s *store) readMeta(projectHash, sessionID string) (*SessionMeta, error) {
	path := filepath.Join(s.sessionDir(projectHash, sessionID), "meta.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("reading session meta: %w", err)
	}
	var meta SessionMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing session meta: %w", err)
	}
	return &meta, nil
}

// atomicWrite writes data to a temp file in the same directory as path and
// renames it into place, so a crash never leaves a half-written target.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, filePerm); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

func dirSize(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(_ string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	return total
}

var _ Store = (*store)(nil)
var _ io.Closer = (*store)(nil)
