package asmref

import (
	"context"
	"log/slog"

	"github.com/albertocavalcante/go-asmref/finder"
)

// FileFinder locates the file that defines an assembly reference.
// FindAssemblyFile returns "" when nothing is found; errors are reserved
// for context cancellation and I/O the finder cannot recover from.
type FileFinder interface {
	FindAssemblyFile(ctx context.Context, ref Reference) (string, error)
}

// FinderContext describes the assembly whose references a FileFinder
// resolves.
type FinderContext struct {
	// MainAssemblyPath is empty when the finder must not look next to the
	// referencing assembly.
	MainAssemblyPath  string
	TargetFrameworkID string
	RuntimePack       string
}

// FinderFactory builds the FileFinder of one loader. It is called at most
// once per loader.
type FinderFactory func(FinderContext) (FileFinder, error)

// DefaultFinderFactory returns a factory of finder.Finder values sharing
// cfg.
func DefaultFinderFactory(cfg finder.Config, logger *slog.Logger) FinderFactory {
	return func(fc FinderContext) (FileFinder, error) {
		return finder.New(cfg, finder.Options{
			MainAssemblyPath:  fc.MainAssemblyPath,
			TargetFrameworkID: fc.TargetFrameworkID,
			RuntimePack:       fc.RuntimePack,
			Logger:            logger,
		})
	}
}

// DelegateResolver is consulted before every other resolution strategy.
// A nil module without error lets resolution continue.
type DelegateResolver interface {
	Resolve(ctx context.Context, ref Reference) (*Module, error)
	ResolveModule(ctx context.Context, owner *Module, moduleName string) (*Module, error)
}

var _ FileFinder = (*finder.Finder)(nil)
