package memory

import (
	"sync"
	"time"
)

const (
	defaultMaxRecentFCs   = 50
	defaultMaxActiveFiles = 20
)

// Session wraps SessionCache (L2): a bounded FIFO of recent FC summaries and
// a bounded insertion-ordered set of active files. The bounding behaviour
// mirrors SessionBufferManager.BufferTurn's oldest-dropped FIFO.
type Session struct {
	mu             sync.RWMutex
	data           SessionCache
	maxRecentFCs   int
	maxActiveFiles int
	fileSet        map[string]struct{}
}

// NewSession returns an empty L2 cache. maxRecentFCs/maxActiveFiles of 0 fall
// back to the spec defaults (50 and 20 respectively).
func NewSession(maxRecentFCs, maxActiveFiles int) *Session {
	if maxRecentFCs <= 0 {
		maxRecentFCs = defaultMaxRecentFCs
	}
	if maxActiveFiles <= 0 {
		maxActiveFiles = defaultMaxActiveFiles
	}
	return &Session{
		data: SessionCache{
			SessionStartTime: time.Now(),
		},
		maxRecentFCs:   maxRecentFCs,
		maxActiveFiles: maxActiveFiles,
		fileSet:        make(map[string]struct{}),
	}
}

// AddFCSummary appends a summary to the recent-FC FIFO, dropping the oldest
// once the buffer exceeds its capacity.
func (s *Session) AddFCSummary(fc FCSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.RecentFCs = append(s.data.RecentFCs, fc)
	if excess := len(s.data.RecentFCs) - s.maxRecentFCs; excess > 0 {
		s.data.RecentFCs = s.data.RecentFCs[excess:]
	}
}

// TouchActiveFile inserts path into the active-file set if not already
// present, evicting the oldest entry once the set exceeds its capacity.
// Re-touching an existing path is a no-op (insertion order is preserved,
// not refreshed).
func (s *Session) TouchActiveFile(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.fileSet[path]; ok {
		return
	}
	s.fileSet[path] = struct{}{}
	s.data.ActiveFiles = append(s.data.ActiveFiles, path)
	if excess := len(s.data.ActiveFiles) - s.maxActiveFiles; excess > 0 {
		for _, dropped := range s.data.ActiveFiles[:excess] {
			delete(s.fileSet, dropped)
		}
		s.data.ActiveFiles = s.data.ActiveFiles[excess:]
	}
}

// SetCurrentGoal records the session's current goal string.
func (s *Session) SetCurrentGoal(goal string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.CurrentGoal = goal
}

// SetWorkingDirectory records the session's working directory.
func (s *Session) SetWorkingDirectory(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.WorkingDirectory = dir
}

// Snapshot returns a copy of the current L2 cache state.
func (s *Session) Snapshot() SessionCache {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := s.data
	cp.RecentFCs = make([]FCSummary, len(s.data.RecentFCs))
	copy(cp.RecentFCs, s.data.RecentFCs)
	cp.ActiveFiles = make([]string, len(s.data.ActiveFiles))
	copy(cp.ActiveFiles, s.data.ActiveFiles)
	return cp
}
