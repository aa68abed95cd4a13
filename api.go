// Package asmref resolves references between compiled .NET assemblies.
//
// Given an assembly file and one of its references (name, version,
// culture, public key token), the package finds the module that
// satisfies the reference: an assembly already opened in the session,
// a file located on disk, or, when versions disagree, the closest loaded
// version.
//
// # Overview
//
// The package provides four main components:
//
//   - Session: owns the opened assemblies, the ModuleCache and the
//     configuration shared by every loader
//   - Loader: loads one file exactly once in the background and exposes
//     its Module, target framework id and runtime pack
//   - ReferenceResolver: resolves references of one assembly through an
//     ordered strategy chain over a snapshot of the session
//   - FileFinder: the file search used by resolvers, implemented by
//     package finder
//
// # Quick Start
//
//	s, err := asmref.NewSession(asmref.WithLogger(slog.Default()))
//	main := s.Open("bin/Debug/net8.0/App.dll")
//	ref, _ := asmref.ParseReference("Newtonsoft.Json, Version=13.0.0.0, Culture=neutral, PublicKeyToken=30ad4fe6b2a6aeed")
//	m, err := main.Resolver(true).Resolve(ctx, ref)
//
// For one-off lookups ResolveFile does the same in one call.
//
// # Thread Safety
//
// All public types in this package are safe for concurrent use.
package asmref

import (
	"context"
	"fmt"
)

// LoadFile opens path in a new session and waits for its module.
func LoadFile(ctx context.Context, path string, opts ...Option) (*Module, error) {
	s, err := NewSession(opts...)
	if err != nil {
		return nil, err
	}
	return s.Open(path).Module(ctx)
}

// ResolveFile resolves a reference of the assembly at mainPath, given as
// a display name, opening files on demand. It returns nil when the
// reference cannot be resolved.
func ResolveFile(ctx context.Context, mainPath, reference string, opts ...Option) (*Module, error) {
	ref, err := ParseReference(reference)
	if err != nil {
		return nil, fmt.Errorf("parse reference: %w", err)
	}
	s, err := NewSession(opts...)
	if err != nil {
		return nil, err
	}
	main := s.Open(mainPath)
	if _, err := main.Module(ctx); err != nil {
		return nil, err
	}
	return main.Resolver(true).Resolve(ctx, ref)
}
