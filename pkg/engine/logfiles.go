package engine

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/orderly/pkg/hook"
	"github.com/go-go-golems/orderly/pkg/specs"
)

// logFileSet lazily opens one append-mode log file per service under the
// cohort's configured LogDir (SPEC_FULL.md section 9's -log-dir
// supplement), shared across every action that service's Actor invokes.
// An empty dir makes every streamsFor call return a zero Streams, which
// hook.buildCmd treats as "inherit orderly's own stdout/stderr".
type logFileSet struct {
	dir string

	mu    sync.Mutex
	files map[string]*os.File
}

func newLogFileSet(dir string) *logFileSet {
	return &logFileSet{dir: dir, files: make(map[string]*os.File)}
}

func (s *logFileSet) streamsFor(service string) func(specs.Action) hook.Streams {
	return func(specs.Action) hook.Streams {
		if s.dir == "" {
			return hook.Streams{}
		}
		f := s.fileFor(service)
		if f == nil {
			return hook.Streams{}
		}
		return hook.Streams{Stdout: f, Stderr: f}
	}
}

func (s *logFileSet) fileFor(service string) *os.File {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.files[service]; ok {
		return f
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		log.Warn().Err(err).Str("service", service).Msg("failed to create log directory")
		s.files[service] = nil
		return nil
	}
	path := filepath.Join(s.dir, service+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Warn().Err(err).Str("service", service).Msg("failed to open log file")
		s.files[service] = nil
		return nil
	}
	s.files[service] = f
	return f
}

func (s *logFileSet) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.files {
		if f != nil {
			_ = f.Close()
		}
	}
}
