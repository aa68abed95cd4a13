package asmref

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/albertocavalcante/go-asmref/docid"
	"github.com/albertocavalcante/go-asmref/framework"
)

// SymbolRequest describes a symbol whose definition a host wants to
// navigate to.
type SymbolRequest struct {
	// AssemblyPath is the file the host compiled against. Empty when the
	// host has no file for the containing assembly.
	AssemblyPath string
	// AssemblyName is the simple name of the containing assembly.
	AssemblyName string
	// DocID is the documentation comment id of the symbol.
	DocID string
	// IndexID is passed through to SymbolInfo.
	IndexID string
	// IsLocal reports whether the symbol is defined in the host's own
	// sources.
	IsLocal bool
}

// SymbolInfo tells a host where a symbol's implementation lives.
type SymbolInfo struct {
	TargetFramework framework.TargetFramework
	IndexID         string
	IsLocal         bool
	AssemblyPath    string
	AssemblyName    string
}

// LocateSymbol maps a symbol to the assembly that implements it. For
// .NET Core and .NET Standard targets the compile-time file is often a
// reference assembly; LocateSymbol then searches for the implementation
// file of the same identity and reports it when it defines the symbol.
func (s *Session) LocateSymbol(ctx context.Context, req SymbolRequest) (*SymbolInfo, error) {
	info := &SymbolInfo{
		IndexID:      req.IndexID,
		IsLocal:      req.IsLocal,
		AssemblyPath: req.AssemblyPath,
		AssemblyName: req.AssemblyName,
	}
	if req.AssemblyPath == "" {
		return info, nil
	}
	if info.AssemblyName == "" {
		info.AssemblyName = fileStem(req.AssemblyPath)
	}

	id, err := docid.Parse(req.DocID)
	if err != nil {
		return nil, err
	}

	l := s.Open(req.AssemblyPath)
	m, err := l.Module(ctx)
	if err != nil {
		return nil, err
	}
	frameworkID, err := l.FrameworkID(ctx)
	if err != nil {
		return nil, err
	}
	info.TargetFramework = framework.Parse(frameworkID)
	if info.TargetFramework.IsLegacy() {
		return info, nil
	}

	fc := FinderContext{TargetFrameworkID: frameworkID}
	if !m.IsReferenceAssembly() {
		fc.MainAssemblyPath = l.FileName()
	}
	if fc.RuntimePack, err = l.RuntimePack(ctx); err != nil {
		return nil, err
	}
	f, err := s.cfg.finderFactory(fc)
	if err != nil {
		return nil, fmt.Errorf("locate %s: %w", req.DocID, err)
	}
	path, err := f.FindAssemblyFile(ctx, m.Name())
	if err != nil {
		return nil, fmt.Errorf("locate %s: %w", req.DocID, err)
	}
	if path == "" {
		s.logger.Debug("implementation file not found", "assembly", m.FullName())
		return info, nil
	}

	e, err := FindEntity(ctx, s.Open(path), id)
	if err != nil {
		if errors.Is(err, ErrNotRegistered) {
			return info, nil
		}
		return nil, err
	}
	if e != nil {
		info.AssemblyPath = e.Module.FileName()
		info.AssemblyName = e.Module.ShortName()
	}
	return info, nil
}

func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
