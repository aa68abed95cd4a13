package asmref

import (
	"github.com/albertocavalcante/go-asmref/framework"
	"github.com/albertocavalcante/go-asmref/metadata"
)

// Reference identifies an assembly by simple name, version, culture and
// public key token.
type Reference = metadata.AssemblyName

// ParseReference parses an assembly display name such as
//
//	System.Runtime, Version=4.2.2.0, Culture=neutral, PublicKeyToken=b03f5f7f11d50a3a
func ParseReference(s string) (Reference, error) {
	return metadata.ParseAssemblyName(s)
}

// Module is a successfully loaded module. Each Module is produced by
// exactly one Loader and keeps it reachable.
type Module struct {
	file   *metadata.File
	loader *Loader

	name      Reference
	fullName  string
	shortName string
	refAsm    bool
}

func newModule(l *Loader, f *metadata.File) *Module {
	m := &Module{file: f, loader: l}
	if asm, ok := f.Assembly(); ok {
		m.name = asm
		m.fullName = asm.FullName()
		m.shortName = asm.Name
		m.refAsm = framework.IsReferenceAssembly(f.AssemblyAttributes(), l.path)
	} else {
		m.fullName = f.ModuleName()
		m.shortName = f.ModuleName()
	}
	return m
}

// FullName returns the assembly identity, or the module name of a module
// without a manifest.
func (m *Module) FullName() string { return m.fullName }

// ShortName returns the simple assembly name, or the module name.
func (m *Module) ShortName() string { return m.shortName }

// Name returns the assembly identity. It is the zero value for modules
// without a manifest.
func (m *Module) Name() Reference { return m.name }

// FileName returns the path the module was loaded from.
func (m *Module) FileName() string { return m.loader.path }

// Metadata returns the parsed metadata.
func (m *Module) Metadata() *metadata.File { return m.file }

// IsAssembly reports whether the module carries an assembly manifest.
func (m *Module) IsAssembly() bool { return m.file.IsAssembly() }

// IsReferenceAssembly reports whether the module is a reference-only stub.
func (m *Module) IsReferenceAssembly() bool { return m.refAsm }

func (m *Module) String() string { return m.fullName }
