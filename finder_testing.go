package asmref

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// Compile-time interface compliance checks
var _ FileFinder = NoopFinder{}
var _ FileFinder = (*StaticFinder)(nil)
var _ FileFinder = (*FailingFinder)(nil)

// NoopFinder never finds anything.
type NoopFinder struct{}

// FindAssemblyFile always returns "".
func (NoopFinder) FindAssemblyFile(ctx context.Context, ref Reference) (string, error) {
	return "", nil
}

// StaticFinder maps simple assembly names (case-insensitively) to paths
// and records every lookup. It is safe for concurrent use.
type StaticFinder struct {
	mu      sync.Mutex
	paths   map[string]string
	lookups []string
}

// NewStaticFinder creates a finder for the given name to path map.
func NewStaticFinder(paths map[string]string) *StaticFinder {
	f := &StaticFinder{paths: make(map[string]string, len(paths))}
	for name, path := range paths {
		f.paths[strings.ToLower(name)] = path
	}
	return f
}

// FindAssemblyFile returns the path registered for ref.Name.
func (f *StaticFinder) FindAssemblyFile(ctx context.Context, ref Reference) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups = append(f.lookups, ref.Name)
	return f.paths[strings.ToLower(ref.Name)], nil
}

// Lookups returns the names looked up so far, in call order.
func (f *StaticFinder) Lookups() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.lookups))
	copy(out, f.lookups)
	return out
}

// Factory returns a FinderFactory that always yields f.
func (f *StaticFinder) Factory() FinderFactory {
	return func(FinderContext) (FileFinder, error) { return f, nil }
}

// FailingFinder always returns Err. Useful for asserting that resolution
// never reached the file search.
type FailingFinder struct {
	Err error

	mu    sync.Mutex
	calls int
}

// NewFailingFinder creates a finder that fails with err.
func NewFailingFinder(err error) *FailingFinder {
	if err == nil {
		err = errors.New("file finder called")
	}
	return &FailingFinder{Err: err}
}

// FindAssemblyFile counts the call and returns Err.
func (f *FailingFinder) FindAssemblyFile(ctx context.Context, ref Reference) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return "", f.Err
}

// Calls returns how many times FindAssemblyFile was called.
func (f *FailingFinder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Factory returns a FinderFactory that always yields f.
func (f *FailingFinder) Factory() FinderFactory {
	return func(FinderContext) (FileFinder, error) { return f, nil }
}
