package metadata

// Type attribute bits used by the model (ECMA-335 II.23.1.15).
const (
	TypeAttrVisibilityMask uint32 = 0x00000007
	TypeAttrPublic         uint32 = 0x00000001
	TypeAttrNestedPublic   uint32 = 0x00000002
	TypeAttrInterface      uint32 = 0x00000020

	// TypeAttrForwarder marks an ExportedType row that forwards to another
	// assembly.
	TypeAttrForwarder uint32 = 0x00200000
)

// TypeDef is a type defined in a module.
type TypeDef struct {
	Namespace string
	// Name is the metadata name, including any "`N" arity suffix.
	Name  string
	Flags uint32

	// DeclaringType is nil for top-level types.
	DeclaringType *TypeDef
	NestedTypes   []*TypeDef

	Fields     []Field
	Methods    []Method
	Properties []Property
	Events     []Event

	// Token is the TypeDef metadata token (0x02xxxxxx).
	Token uint32
}

// FullName returns the reflection name: namespace-qualified, with nested
// types separated by '+'.
func (t *TypeDef) FullName() string {
	return t.joinName("+")
}

// DocName returns the name used in documentation comment ids: nested types
// separated by '.'.
func (t *TypeDef) DocName() string {
	return t.joinName(".")
}

func (t *TypeDef) joinName(sep string) string {
	if t.DeclaringType != nil {
		return t.DeclaringType.joinName(sep) + sep + t.Name
	}
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

// IsNested reports whether t is declared inside another type.
func (t *TypeDef) IsNested() bool {
	return t.DeclaringType != nil
}

// NestedType returns the directly nested type with the given metadata
// name, or nil.
func (t *TypeDef) NestedType(name string) *TypeDef {
	for _, n := range t.NestedTypes {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// Method is a method definition. Params hold the documentation-id spelling
// of each parameter type.
type Method struct {
	Name         string
	Flags        uint16
	GenericArity int
	Params       []string
	Token        uint32
}

// Field is a field definition.
type Field struct {
	Name  string
	Flags uint16
	Token uint32
}

// Property is a property definition. Params is non-empty for indexers.
type Property struct {
	Name   string
	Params []string
	Token  uint32
}

// Event is an event definition.
type Event struct {
	Name  string
	Token uint32
}

// ExportedType is a row of the ExportedType table: either a type defined
// in another module of the same assembly or a type forwarder.
type ExportedType struct {
	Namespace string
	Name      string
	Flags     uint32

	// DeclaringType is set for nested exported types.
	DeclaringType *ExportedType
	// Scope is the target assembly of a forwarder, nil otherwise.
	Scope *AssemblyName
	// File names the module holding the type when the implementation is
	// a File row.
	File string
}

// IsForwarder reports whether the row forwards the type to Scope.
func (e *ExportedType) IsForwarder() bool {
	return e.Flags&TypeAttrForwarder != 0 || (e.Scope != nil && e.File == "")
}

// FullName returns the reflection name of the exported type.
func (e *ExportedType) FullName() string {
	if e.DeclaringType != nil {
		return e.DeclaringType.FullName() + "+" + e.Name
	}
	if e.Namespace == "" {
		return e.Name
	}
	return e.Namespace + "." + e.Name
}

// CustomAttribute is a decoded custom attribute row.
type CustomAttribute struct {
	// Parent is the metadata token of the annotated entity.
	Parent uint32
	// Type is the reflection name of the attribute type.
	Type string
	// Args are the decoded fixed constructor arguments. Decoding stops at
	// the first argument of an unsupported kind.
	Args []any
}

// StringArg returns fixed argument i if it is a string.
func (a CustomAttribute) StringArg(i int) (string, bool) {
	if i < 0 || i >= len(a.Args) {
		return "", false
	}
	s, ok := a.Args[i].(string)
	return s, ok
}

// Is reports whether the attribute type matches a namespace-qualified name.
func (a CustomAttribute) Is(fullName string) bool {
	return a.Type == fullName
}

