package asmref

import (
	"context"
	"errors"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/albertocavalcante/go-asmref/framework"
)

// Loader owns the load of one assembly file. The load starts when the
// loader is created, runs exactly once, and its outcome (a Module or a
// *LoadError) never changes. Contexts passed to the accessors bound only
// the caller's wait.
type Loader struct {
	session    *Session
	path       string
	autoLoaded bool

	done   chan struct{}
	module *Module
	err    error

	frameworkID atomic.Pointer[string]
	runtimePack atomic.Pointer[string]
	finder      atomic.Pointer[finderCell]
}

type finderCell struct {
	f FileFinder
}

func newLoader(s *Session, path string, auto bool) *Loader {
	return &Loader{
		session:    s,
		path:       path,
		autoLoaded: auto,
		done:       make(chan struct{}),
	}
}

func (l *Loader) load() {
	defer close(l.done)

	s := l.session
	_, span := s.tracer.Start(context.Background(), "asmref.Load",
		trace.WithAttributes(attribute.String("asmref.path", l.path)))
	defer span.End()

	f, err := s.cfg.readModule(l.path)
	if err == nil {
		m := newModule(l, f)
		if err = s.cache.Register(m, l); err == nil {
			l.module = m
		}
	}
	if err != nil {
		l.err = &LoadError{Path: l.path, Err: err}
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		s.metrics.loads.WithLabelValues("error").Inc()
		s.logger.Debug("assembly load failed", "path", l.path, "error", err)
		return
	}
	span.SetAttributes(attribute.String("asmref.assembly", l.module.FullName()))
	s.metrics.loads.WithLabelValues("ok").Inc()
	s.logger.Debug("assembly loaded", "path", l.path, "assembly", l.module.FullName())
}

func (l *Loader) wait(ctx context.Context) error {
	select {
	case <-l.done:
		return nil
	default:
	}
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Module waits for the load and returns the module or the cached
// *LoadError. A context error means only the wait was abandoned.
func (l *Loader) Module(ctx context.Context) (*Module, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	if l.err != nil {
		return nil, l.err
	}
	return l.module, nil
}

// ModuleOrNil is Module with failures turned into nil. Load failures are
// logged; an abandoned wait is not.
func (l *Loader) ModuleOrNil(ctx context.Context) *Module {
	m, err := l.Module(ctx)
	if err != nil {
		if errors.Is(err, ErrLoadFailed) {
			l.session.logger.Error("assembly unavailable", "path", l.path, "error", err)
		}
		return nil
	}
	return m
}

// ModuleOrNilBlocking waits without a deadline. It exists for callers
// that have no context to pass.
func (l *Loader) ModuleOrNilBlocking() *Module {
	return l.ModuleOrNil(context.Background())
}

// IsLoaded reports whether the load has finished, successfully or not.
func (l *Loader) IsLoaded() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// FileName returns the absolute path of the file.
func (l *Loader) FileName() string { return l.path }

// ShortName returns the module's short name once loaded, else the file
// name without extension.
func (l *Loader) ShortName() string {
	if l.IsLoaded() && l.module != nil {
		return l.module.ShortName()
	}
	return fileStem(l.path)
}

// IsAutoLoaded reports whether the loader was opened by a resolver rather
// than by the host.
func (l *Loader) IsAutoLoaded() bool { return l.autoLoaded }

// FrameworkID returns the target framework id of the assembly, as
// detected from its attributes or path. It is computed once.
func (l *Loader) FrameworkID(ctx context.Context) (string, error) {
	if p := l.frameworkID.Load(); p != nil {
		return *p, nil
	}
	m, err := l.Module(ctx)
	if err != nil {
		return "", err
	}
	id := framework.DetectID(m.file.AssemblyAttributes(), l.path)
	l.frameworkID.CompareAndSwap(nil, &id)
	return *l.frameworkID.Load(), nil
}

// TargetFramework parses FrameworkID.
func (l *Loader) TargetFramework(ctx context.Context) (framework.TargetFramework, error) {
	id, err := l.FrameworkID(ctx)
	if err != nil {
		return framework.TargetFramework{}, err
	}
	return framework.Parse(id), nil
}

// RuntimePack returns the shared framework the assembly runs on. It is
// computed once.
func (l *Loader) RuntimePack(ctx context.Context) (string, error) {
	if p := l.runtimePack.Load(); p != nil {
		return *p, nil
	}
	m, err := l.Module(ctx)
	if err != nil {
		return "", err
	}
	pack := framework.DetectRuntimePack(m.file.AssemblyReferences())
	l.runtimePack.CompareAndSwap(nil, &pack)
	return *l.runtimePack.Load(), nil
}

// Resolver returns a resolver for references made by this assembly. It
// sees the assemblies open in the session at the time of the call.
func (l *Loader) Resolver(loadOnDemand bool) *ReferenceResolver {
	return newReferenceResolver(l, l.session.Assemblies(), loadOnDemand)
}

// fileFinder returns the loader's file-search collaborator, building it on
// first use. A nil FileFinder means none could be built.
func (l *Loader) fileFinder(ctx context.Context) (FileFinder, error) {
	if c := l.finder.Load(); c != nil {
		return c.f, nil
	}
	fc := FinderContext{MainAssemblyPath: l.path}
	var err error
	if fc.TargetFrameworkID, err = l.FrameworkID(ctx); err != nil && !errors.Is(err, ErrLoadFailed) {
		return nil, err
	}
	if fc.RuntimePack, err = l.RuntimePack(ctx); err != nil && !errors.Is(err, ErrLoadFailed) {
		return nil, err
	}

	f, err := l.session.cfg.finderFactory(fc)
	if err != nil {
		l.session.logger.Warn("file finder unavailable", "path", l.path, "error", err)
		f = nil
	}
	l.finder.CompareAndSwap(nil, &finderCell{f: f})
	return l.finder.Load().f, nil
}
