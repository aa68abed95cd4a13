package asmref

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/albertocavalcante/go-asmref/version"
)

// ReferenceResolver resolves the references of one assembly against a
// fixed snapshot of the session's assembly list.
//
// Resolve tries, in order: the delegate resolver; assemblies in the
// snapshot whose identity and target framework match exactly; the file
// finder (opening the file only when loadOnDemand is set); and finally
// the snapshot assembly of the same name with the closest version at
// least the requested one, else the highest.
type ReferenceResolver struct {
	owner        *Loader
	session      *Session
	snapshot     []*Loader
	loadOnDemand bool

	tables atomic.Pointer[lookupTables]
}

// lookupTables index the loaded modules of a snapshot.
type lookupTables struct {
	// modules lists loaded modules in snapshot order.
	modules []*Module
	// byFullName and byShortName are keyed by
	// lower("<framework id>;<name>"). The first module in snapshot order
	// wins.
	byFullName  map[string]*Module
	byShortName map[string]*Module
}

func newReferenceResolver(owner *Loader, snapshot []*Loader, loadOnDemand bool) *ReferenceResolver {
	return &ReferenceResolver{
		owner:        owner,
		session:      owner.session,
		snapshot:     snapshot,
		loadOnDemand: loadOnDemand,
	}
}

// LoadOnDemand reports whether the resolver opens files the finder
// returns.
func (r *ReferenceResolver) LoadOnDemand() bool { return r.loadOnDemand }

func lookupKey(frameworkID, name string) string {
	return strings.ToLower(frameworkID + ";" + name)
}

// Resolve returns the module that satisfies ref, or nil when no strategy
// finds one. Errors are returned only when ctx ends.
func (r *ReferenceResolver) Resolve(ctx context.Context, ref Reference) (*Module, error) {
	ctx, span := r.session.tracer.Start(ctx, "asmref.Resolve",
		trace.WithAttributes(attribute.String("asmref.reference", ref.FullName())))
	defer span.End()

	m, strategy, err := r.resolve(ctx, ref)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("asmref.strategy", strategy))
	r.session.metrics.resolutions.WithLabelValues(strategy).Inc()
	if m != nil {
		r.session.logger.Debug("reference resolved", "reference", ref.FullName(), "strategy", strategy, "path", m.FileName())
	} else {
		r.session.logger.Debug("reference unresolved", "reference", ref.FullName(), "strategy", strategy)
	}
	return m, nil
}

func (r *ReferenceResolver) resolve(ctx context.Context, ref Reference) (*Module, string, error) {
	if d := r.session.cfg.delegate; d != nil {
		m, err := d.Resolve(ctx, ref)
		if err != nil {
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			r.session.logger.Warn("delegate resolver failed", "reference", ref.FullName(), "error", err)
		}
		if m != nil {
			return m, strategyDelegate, nil
		}
	}

	tables, err := r.lookupTables(ctx)
	if err != nil {
		return nil, "", err
	}
	frameworkID, err := r.ownerFrameworkID(ctx)
	if err != nil {
		return nil, "", err
	}
	var m *Module
	if ref.IsWindowsRuntime() {
		m = tables.byShortName[lookupKey(frameworkID, ref.Name)]
	} else {
		m = tables.byFullName[lookupKey(frameworkID, ref.FullName())]
	}
	if m != nil {
		return m, strategyLoaded, nil
	}

	path, err := r.findFile(ctx, ref)
	if err != nil {
		return nil, "", err
	}
	if path != "" {
		if !r.loadOnDemand {
			return nil, strategyNotLoaded, nil
		}
		m, err := r.openModule(ctx, path)
		if err != nil {
			return nil, "", err
		}
		return m, strategyLoadOnDemand, nil
	}

	if m := closestVersion(tables.modules, ref); m != nil {
		return m, strategyClosest, nil
	}
	return nil, strategyUnresolved, nil
}

// ownerFrameworkID returns the owner's framework id, or "" when the owner
// failed to load.
func (r *ReferenceResolver) ownerFrameworkID(ctx context.Context) (string, error) {
	id, err := r.owner.FrameworkID(ctx)
	if err != nil && !errors.Is(err, ErrLoadFailed) {
		return "", err
	}
	return id, nil
}

func (r *ReferenceResolver) findFile(ctx context.Context, ref Reference) (string, error) {
	f, err := r.owner.fileFinder(ctx)
	if err != nil || f == nil {
		return "", err
	}
	path, err := f.FindAssemblyFile(ctx, ref)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		r.session.logger.Warn("file finder failed", "reference", ref.FullName(), "error", err)
		return "", nil
	}
	return path, nil
}

// openModule opens path in the session, reusing an existing loader for
// the same file. A file that fails to load yields nil.
func (r *ReferenceResolver) openModule(ctx context.Context, path string) (*Module, error) {
	l := r.session.open(path, true)
	m, err := l.Module(ctx)
	if err != nil {
		if errors.Is(err, ErrLoadFailed) {
			r.session.logger.Warn("resolved file could not be loaded", "path", path, "error", err)
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// closestVersion picks, among assemblies named like ref, the smallest
// version at least ref.Version, else the highest. Earlier modules win
// ties.
func closestVersion(modules []*Module, ref Reference) *Module {
	var (
		candidates []*Module
		versions   []version.Version
	)
	for _, m := range modules {
		if m.IsAssembly() && strings.EqualFold(m.name.Name, ref.Name) {
			candidates = append(candidates, m)
			versions = append(versions, m.name.Version)
		}
	}
	if i := version.Closest(versions, ref.Version); i >= 0 {
		return candidates[i]
	}
	return nil
}

// lookupTables builds the snapshot index once. Loaders that fail to load
// are left out. A build interrupted by ctx is not memoized.
func (r *ReferenceResolver) lookupTables(ctx context.Context) (*lookupTables, error) {
	if t := r.tables.Load(); t != nil {
		return t, nil
	}

	type entry struct {
		module      *Module
		frameworkID string
	}
	entries := make([]entry, len(r.snapshot))

	g, gctx := errgroup.WithContext(ctx)
	for i, l := range r.snapshot {
		g.Go(func() error {
			m, err := l.Module(gctx)
			if err != nil {
				if errors.Is(err, ErrLoadFailed) {
					return nil
				}
				return err
			}
			id, err := l.FrameworkID(gctx)
			if err != nil {
				return err
			}
			entries[i] = entry{module: m, frameworkID: id}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	t := &lookupTables{
		byFullName:  make(map[string]*Module),
		byShortName: make(map[string]*Module),
	}
	for _, e := range entries {
		if e.module == nil {
			continue
		}
		t.modules = append(t.modules, e.module)
		if !e.module.IsAssembly() {
			continue
		}
		full := lookupKey(e.frameworkID, e.module.FullName())
		if _, ok := t.byFullName[full]; !ok {
			t.byFullName[full] = e.module
		}
		short := lookupKey(e.frameworkID, e.module.ShortName())
		if _, ok := t.byShortName[short]; !ok {
			t.byShortName[short] = e.module
		}
	}

	r.tables.CompareAndSwap(nil, t)
	return r.tables.Load(), nil
}

// ResolveModule resolves a module of a multi-module assembly: the
// delegate first, then moduleName next to owner's file, then a module
// without manifest in the snapshot with that module name. A file next to
// owner ends the search; without loadOnDemand the result is then nil.
func (r *ReferenceResolver) ResolveModule(ctx context.Context, owner *Module, moduleName string) (*Module, error) {
	ctx, span := r.session.tracer.Start(ctx, "asmref.ResolveModule",
		trace.WithAttributes(attribute.String("asmref.module", moduleName)))
	defer span.End()

	if d := r.session.cfg.delegate; d != nil {
		m, err := d.ResolveModule(ctx, owner, moduleName)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			r.session.logger.Warn("delegate resolver failed", "module", moduleName, "error", err)
		}
		if m != nil {
			return m, nil
		}
	}

	if owner != nil {
		path := filepath.Join(filepath.Dir(owner.FileName()), moduleName)
		if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() {
			if !r.loadOnDemand {
				return nil, nil
			}
			return r.openModule(ctx, path)
		}
	}

	tables, err := r.lookupTables(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range tables.modules {
		if !m.IsAssembly() && strings.EqualFold(m.file.ModuleName(), moduleName) {
			return m, nil
		}
	}
	return nil, nil
}
