package asmref

import (
	"log/slog"
	"path/filepath"
	"sync"

	"go.opentelemetry.io/otel/trace"
)

// Session owns the loaders opened for one analysis: the ordered assembly
// list, the ModuleCache their modules are registered in, and the shared
// configuration. It is safe for concurrent use.
type Session struct {
	cfg     *sessionConfig
	logger  *slog.Logger
	cache   *ModuleCache
	metrics *metrics
	tracer  trace.Tracer

	mu      sync.Mutex
	loaders []*Loader
	byPath  map[string]*Loader
}

// NewSession creates a session.
func NewSession(opts ...Option) (*Session, error) {
	cfg, err := newSessionConfig(opts...)
	if err != nil {
		return nil, err
	}
	m, err := newMetrics(cfg.registerer)
	if err != nil {
		return nil, err
	}
	return &Session{
		cfg:     cfg,
		logger:  cfg.log(),
		cache:   NewModuleCache(),
		metrics: m,
		tracer:  cfg.tracer(),
		byPath:  make(map[string]*Loader),
	}, nil
}

// Cache returns the session's module cache.
func (s *Session) Cache() *ModuleCache { return s.cache }

// NewLoader appends a new loader for path to the assembly list and starts
// loading it. Every call creates an independent loader, even for a path
// that is already open.
func (s *Session) NewLoader(path string) *Loader {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(absPath(path), false)
}

// Open returns the loader already opened for path, or starts a new one.
func (s *Session) Open(path string) *Loader {
	return s.open(path, false)
}

func (s *Session) open(path string, auto bool) *Loader {
	path = absPath(path)

	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.byPath[path]; ok {
		return l
	}
	return s.startLocked(path, auto)
}

func (s *Session) startLocked(path string, auto bool) *Loader {
	l := newLoader(s, path, auto)
	s.loaders = append(s.loaders, l)
	if _, ok := s.byPath[path]; !ok {
		s.byPath[path] = l
	}
	s.logger.Debug("assembly opened", "path", path, "auto_loaded", auto)
	go l.load()
	return l
}

// Assemblies returns a snapshot of the assembly list in open order.
func (s *Session) Assemblies() []*Loader {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Loader, len(s.loaders))
	copy(out, s.loaders)
	return out
}

// LoaderFor returns the loader that produced m.
func (s *Session) LoaderFor(m *Module) (*Loader, error) {
	return s.cache.Lookup(m)
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
