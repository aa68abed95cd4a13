// Package metadatatest builds small managed PE files in memory for tests.
//
// The generated images are minimal but well formed: one .text section
// holding a CLI header and a metadata root with the #~, #Strings, #US,
// #GUID and #Blob streams. They carry no IL and cannot be executed.
//
//	asm := metadatatest.NewAssembly("Contoso.Core", "1.2.0.0").
//		TargetFramework(".NETCoreApp,Version=v3.1")
//	asm.Type("Contoso", "Widget").Method("Spin", metadatatest.Int32)
//	path := asm.WriteFile(t, t.TempDir(), "Contoso.Core.dll")
package metadatatest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/albertocavalcante/go-asmref/metadata"
	"github.com/albertocavalcante/go-asmref/version"
)

// Well-known attribute types.
const (
	TargetFrameworkAttribute   = "System.Runtime.Versioning.TargetFrameworkAttribute"
	ReferenceAssemblyAttribute = "System.Runtime.CompilerServices.ReferenceAssemblyAttribute"
)

// Assembly describes the module to generate.
type Assembly struct {
	name       string
	moduleName string
	version    version.Version
	culture    string
	publicKey  []byte
	flags      uint32
	isAssembly bool

	refs       []metadata.AssemblyName
	attrs      []attribute
	types      []*Type
	forwarders []forwarder
}

type attribute struct {
	typeName string
	args     []string
}

type forwarder struct {
	namespace string
	name      string
	target    string
}

// NewAssembly starts an assembly manifest module. The module name
// defaults to name + ".dll".
func NewAssembly(name, ver string) *Assembly {
	return &Assembly{
		name:       name,
		moduleName: name + ".dll",
		version:    version.MustParse(ver),
		isAssembly: true,
	}
}

// NewModule starts a module without an assembly manifest, as found in
// multi-file assemblies.
func NewModule(moduleName string) *Assembly {
	return &Assembly{moduleName: moduleName}
}

// Culture sets the assembly culture.
func (a *Assembly) Culture(culture string) *Assembly {
	a.culture = culture
	return a
}

// PublicKey sets the full public key of the assembly definition.
func (a *Assembly) PublicKey(key []byte) *Assembly {
	a.publicKey = key
	return a
}

// WindowsRuntime marks the assembly with the WindowsRuntime content type.
func (a *Assembly) WindowsRuntime() *Assembly {
	a.flags |= metadata.AssemblyFlagWindowsRuntime
	return a
}

// TargetFramework adds a TargetFrameworkAttribute with the given id.
func (a *Assembly) TargetFramework(id string) *Assembly {
	return a.Attribute(TargetFrameworkAttribute, id)
}

// ReferenceAssembly adds a ReferenceAssemblyAttribute.
func (a *Assembly) ReferenceAssembly() *Assembly {
	return a.Attribute(ReferenceAssemblyAttribute)
}

// Attribute adds an assembly-level attribute whose constructor takes one
// string per argument.
func (a *Assembly) Attribute(typeName string, args ...string) *Assembly {
	a.attrs = append(a.attrs, attribute{typeName: typeName, args: args})
	return a
}

// Reference adds an AssemblyRef row. ref may be a display name such as
// "System.Runtime, Version=4.2.2.0, PublicKeyToken=b03f5f7f11d50a3a".
func (a *Assembly) Reference(ref string) *Assembly {
	name, err := metadata.ParseAssemblyName(ref)
	if err != nil {
		panic("metadatatest: " + err.Error())
	}
	a.refs = append(a.refs, name)
	return a
}

// Forward adds a type forwarder to the referenced assembly named target,
// which must have been added with Reference.
func (a *Assembly) Forward(namespace, name, target string) *Assembly {
	a.forwarders = append(a.forwarders, forwarder{namespace: namespace, name: name, target: target})
	return a
}

// Type adds a public top-level type.
func (a *Assembly) Type(namespace, name string) *Type {
	t := &Type{namespace: namespace, name: name, flags: metadata.TypeAttrPublic}
	a.types = append(a.types, t)
	return t
}

// Bytes encodes the module.
func (a *Assembly) Bytes() []byte {
	return newWriter(a).image()
}

// WriteFile writes the module to dir/file and returns the path.
func (a *Assembly) WriteFile(tb testing.TB, dir, file string) string {
	tb.Helper()
	path := filepath.Join(dir, file)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		tb.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, a.Bytes(), 0o644); err != nil {
		tb.Fatalf("write %s: %v", path, err)
	}
	return path
}

// Type describes a type definition and its members.
type Type struct {
	namespace string
	name      string
	flags     uint32
	nested    []*Type

	fields     []string
	methods    []method
	properties []method
	events     []string
}

type method struct {
	name   string
	arity  int
	params []Param
}

// Nested adds a public nested type.
func (t *Type) Nested(name string) *Type {
	n := &Type{name: name, flags: metadata.TypeAttrNestedPublic}
	t.nested = append(t.nested, n)
	return n
}

// Method adds an instance method returning void.
func (t *Type) Method(name string, params ...Param) *Type {
	return t.GenericMethod(name, 0, params...)
}

// GenericMethod adds a generic instance method with arity type parameters.
func (t *Type) GenericMethod(name string, arity int, params ...Param) *Type {
	t.methods = append(t.methods, method{name: name, arity: arity, params: params})
	return t
}

// Field adds an int field.
func (t *Type) Field(name string) *Type {
	t.fields = append(t.fields, name)
	return t
}

// Property adds an int property; params make it an indexer.
func (t *Type) Property(name string, params ...Param) *Type {
	t.properties = append(t.properties, method{name: name, params: params})
	return t
}

// Event adds an event.
func (t *Type) Event(name string) *Type {
	t.events = append(t.events, name)
	return t
}

// Param is a signature type.
type Param struct {
	elem     byte
	typeName string
	num      int
	inner    *Param
	args     []Param
}

// Primitive parameter types.
var (
	Bool   = Param{elem: 0x02}
	Char   = Param{elem: 0x03}
	Int32  = Param{elem: 0x08}
	Int64  = Param{elem: 0x0A}
	Double = Param{elem: 0x0D}
	String = Param{elem: 0x0E}
	Object = Param{elem: 0x1C}
)

// Class is a reference type given by namespace-qualified name. Types
// defined by the same assembly are encoded as TypeDef tokens, others as
// TypeRef tokens.
func Class(fullName string) Param { return Param{elem: 0x12, typeName: fullName} }

// ValueType is a value type given by namespace-qualified name.
func ValueType(fullName string) Param { return Param{elem: 0x11, typeName: fullName} }

// SZArray is a single-dimensional zero-based array of p.
func SZArray(p Param) Param { return Param{elem: 0x1D, inner: &p} }

// ByRef is a managed reference to p.
func ByRef(p Param) Param { return Param{elem: 0x10, inner: &p} }

// Ptr is an unmanaged pointer to p.
func Ptr(p Param) Param { return Param{elem: 0x0F, inner: &p} }

// TypeVar is the n-th type parameter of the declaring type.
func TypeVar(n int) Param { return Param{elem: 0x13, num: n} }

// MethodVar is the n-th type parameter of the method.
func MethodVar(n int) Param { return Param{elem: 0x1E, num: n} }

// Generic instantiates the generic class fullName (with its "`N" suffix)
// with args.
func Generic(fullName string, args ...Param) Param {
	return Param{elem: 0x15, typeName: fullName, args: args}
}

func splitName(full string) (ns, name string) {
	i := strings.LastIndexByte(full, '.')
	if i < 0 {
		return "", full
	}
	return full[:i], full[i+1:]
}
