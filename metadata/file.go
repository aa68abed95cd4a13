package metadata

import (
	"bytes"
	"debug/pe"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/albertocavalcante/go-asmref/version"
)

const (
	cliHeaderDirectory = 14
	cliHeaderSize      = 72
	metadataSignature  = 0x424A5342
)

// Token table prefixes.
const (
	tokenTypeDef     = uint32(tTypeDef) << 24
	tokenField       = uint32(tField) << 24
	tokenMethodDef   = uint32(tMethodDef) << 24
	tokenProperty    = uint32(tProperty) << 24
	tokenEvent       = uint32(tEvent) << 24
	tokenAssembly    = uint32(tAssembly) << 24
	tokenAssemblyRef = uint32(tAssemblyRef) << 24
)

// AssemblyToken is the metadata token of the single Assembly row.
const AssemblyToken = tokenAssembly | 1

// File is a parsed managed module.
type File struct {
	fileName       string
	runtimeVersion string
	moduleName     string
	mvid           []byte

	assembly   *AssemblyName
	references []AssemblyName
	moduleRefs []string
	files      []string

	types    []*TypeDef
	topLevel map[string]*TypeDef
	exported []*ExportedType
	attrs    []CustomAttribute
}

// Open reads and parses the managed module at path.
func Open(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := NewFile(path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// NewFile parses a managed module from r. fileName is recorded verbatim
// and reported by FileName.
func NewFile(fileName string, r io.ReaderAt) (*File, error) {
	pf, err := pe.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("read PE image: %w", err)
	}
	defer pf.Close()

	dir, ok := dataDirectory(pf, cliHeaderDirectory)
	if !ok || dir.VirtualAddress == 0 || dir.Size == 0 {
		return nil, ErrNotManaged
	}
	cli, err := readRVA(pf, dir.VirtualAddress, cliHeaderSize)
	if err != nil {
		return nil, err
	}
	cr := newByteReader("CLI header", cli)
	cr.skip(4) // cb
	cr.skip(4) // runtime major, minor
	mdRVA := cr.u32()
	mdSize := cr.u32()
	if cr.err != nil {
		return nil, cr.err
	}
	md, err := readRVA(pf, mdRVA, mdSize)
	if err != nil {
		return nil, err
	}
	return parseMetadata(fileName, md)
}

func dataDirectory(pf *pe.File, i int) (pe.DataDirectory, bool) {
	var dirs []pe.DataDirectory
	switch oh := pf.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		dirs = oh.DataDirectory[:min(int(oh.NumberOfRvaAndSizes), len(oh.DataDirectory))]
	case *pe.OptionalHeader64:
		dirs = oh.DataDirectory[:min(int(oh.NumberOfRvaAndSizes), len(oh.DataDirectory))]
	}
	if i >= len(dirs) {
		return pe.DataDirectory{}, false
	}
	return dirs[i], true
}

func readRVA(pf *pe.File, rva, size uint32) ([]byte, error) {
	for _, s := range pf.Sections {
		extent := max(s.VirtualSize, s.Size)
		if rva < s.VirtualAddress || rva >= s.VirtualAddress+extent {
			continue
		}
		off := rva - s.VirtualAddress
		if uint64(off)+uint64(size) > uint64(s.Size) {
			return nil, formatErr(s.Name, int(off), "%d bytes at RVA %#x exceed raw section data", size, rva)
		}
		buf := make([]byte, size)
		if _, err := s.ReadAt(buf, int64(off)); err != nil {
			return nil, fmt.Errorf("read RVA %#x: %w", rva, err)
		}
		return buf, nil
	}
	return nil, formatErr("PE", -1, "RVA %#x not mapped by any section", rva)
}

func parseMetadata(fileName string, md []byte) (*File, error) {
	r := newByteReader("metadata root", md)
	if sig := r.u32(); sig != metadataSignature {
		if r.err != nil {
			return nil, r.err
		}
		return nil, formatErr("metadata root", 0, "bad signature %#x", sig)
	}
	r.skip(4) // major, minor
	r.skip(4) // reserved
	vlen := r.u32()
	runtimeVersion := strings.TrimRight(string(r.bytes(int(vlen))), "\x00")
	r.skip(2) // flags
	count := r.u16()

	streams := make(map[string][]byte, count)
	for i := 0; i < int(count) && r.err == nil; i++ {
		off := r.u32()
		size := r.u32()
		name := r.cstring()
		r.align(4)
		if uint64(off)+uint64(size) > uint64(len(md)) {
			return nil, formatErr("metadata root", r.off, "stream %q out of range", name)
		}
		streams[name] = md[off : off+size]
	}
	if r.err != nil {
		return nil, r.err
	}

	tablesData, ok := streams["#~"]
	if !ok {
		tablesData, ok = streams["#-"]
	}
	if !ok {
		return nil, formatErr("metadata root", -1, "no table stream")
	}
	ts, err := parseTableStream(tablesData)
	if err != nil {
		return nil, err
	}

	p := &builder{
		ts: ts,
		h: heaps{
			strings: streams["#Strings"],
			blob:    streams["#Blob"],
			guid:    streams["#GUID"],
		},
		f: &File{
			fileName:       fileName,
			runtimeVersion: runtimeVersion,
			topLevel:       make(map[string]*TypeDef),
		},
	}
	if err := p.build(); err != nil {
		return nil, err
	}
	return p.f, nil
}

// FileName returns the name the file was opened with.
func (f *File) FileName() string { return f.fileName }

// RuntimeVersion returns the metadata version string, e.g. "v4.0.30319".
func (f *File) RuntimeVersion() string { return f.runtimeVersion }

// ModuleName returns the name recorded in the Module table.
func (f *File) ModuleName() string { return f.moduleName }

// MVID returns the module version id.
func (f *File) MVID() []byte { return f.mvid }

// IsAssembly reports whether the module carries an assembly manifest.
func (f *File) IsAssembly() bool { return f.assembly != nil }

// Assembly returns the assembly definition, if any.
func (f *File) Assembly() (AssemblyName, bool) {
	if f.assembly == nil {
		return AssemblyName{}, false
	}
	return *f.assembly, true
}

// AssemblyReferences returns the AssemblyRef rows in table order.
func (f *File) AssemblyReferences() []AssemblyName { return f.references }

// ModuleReferences returns the ModuleRef names in table order.
func (f *File) ModuleReferences() []string { return f.moduleRefs }

// Files returns the names from the File table.
func (f *File) Files() []string { return f.files }

// CustomAttributes returns every decoded custom attribute.
func (f *File) CustomAttributes() []CustomAttribute { return f.attrs }

// AssemblyAttributes returns the attributes applied to the assembly.
func (f *File) AssemblyAttributes() []CustomAttribute {
	return f.AttributesOf(AssemblyToken)
}

// AttributesOf returns the attributes whose parent is token.
func (f *File) AttributesOf(token uint32) []CustomAttribute {
	var out []CustomAttribute
	for _, a := range f.attrs {
		if a.Parent == token {
			out = append(out, a)
		}
	}
	return out
}

// Types returns every type definition in table order, including the
// "<Module>" pseudo type and nested types.
func (f *File) Types() []*TypeDef { return f.types }

// FindType returns the top-level type with the given namespace and
// metadata name, or nil.
func (f *File) FindType(namespace, name string) *TypeDef {
	return f.topLevel[typeKey(namespace, name)]
}

// ExportedTypes returns the ExportedType rows in table order.
func (f *File) ExportedTypes() []*ExportedType { return f.exported }

// FindExportedType returns the top-level exported type with the given
// namespace and metadata name, or nil.
func (f *File) FindExportedType(namespace, name string) *ExportedType {
	for _, e := range f.exported {
		if e.DeclaringType == nil && e.Namespace == namespace && e.Name == name {
			return e
		}
	}
	return nil
}

func typeKey(namespace, name string) string {
	return namespace + "\x00" + name
}

// builder turns decoded tables into the File model.
type builder struct {
	ts *tableStream
	h  heaps
	f  *File

	methodOwner []*TypeDef
}

func (p *builder) build() error {
	p.buildModule()
	p.buildAssembly()
	p.buildReferences()
	if err := p.buildTypes(); err != nil {
		return err
	}
	p.buildExportedTypes()
	p.buildAttributes()
	return nil
}

func (p *builder) tbl(t int) *table { return &p.ts.tables[t] }

// deref follows a Ptr table when present.
func (p *builder) deref(ptr int, i uint32) uint32 {
	if p.ts.rows(ptr) == 0 {
		return i
	}
	return p.tbl(ptr).get(i, 0)
}

// listRange returns the half-open row range [start, end) of target owned
// by row of owner, where listCol holds the first row of each run.
func (p *builder) listRange(owner, listCol int, row uint32, target, ptr int) (uint32, uint32) {
	limit := p.ts.rows(target)
	if p.ts.rows(ptr) > 0 {
		limit = p.ts.rows(ptr)
	}
	start := p.tbl(owner).get(row, listCol)
	end := limit + 1
	if row < p.ts.rows(owner) {
		end = p.tbl(owner).get(row+1, listCol)
	}
	start = max(start, 1)
	end = min(end, limit+1)
	if start > end {
		start = end
	}
	return start, end
}

func (p *builder) buildModule() {
	m := p.tbl(tModule)
	if m.rows == 0 {
		return
	}
	p.f.moduleName = p.h.string(m.get(1, 1))
	p.f.mvid = p.h.guidAt(m.get(1, 2))
}

func (p *builder) buildAssembly() {
	a := p.tbl(tAssembly)
	if a.rows == 0 {
		return
	}
	name := AssemblyName{
		Version: version.FromUint16(uint16(a.get(1, 1)), uint16(a.get(1, 2)), uint16(a.get(1, 3)), uint16(a.get(1, 4))),
		Flags:   a.get(1, 5),
		Name:    p.h.string(a.get(1, 7)),
		Culture: p.h.string(a.get(1, 8)),
	}
	// The definition always stores the full key.
	name.PublicKeyToken = PublicKeyToken(p.h.blobAt(a.get(1, 6)))
	name.Flags &^= AssemblyFlagPublicKey
	p.f.assembly = &name
}

func (p *builder) assemblyRef(row uint32) AssemblyName {
	a := p.tbl(tAssemblyRef)
	name := AssemblyName{
		Version: version.FromUint16(uint16(a.get(row, 0)), uint16(a.get(row, 1)), uint16(a.get(row, 2)), uint16(a.get(row, 3))),
		Flags:   a.get(row, 4),
		Name:    p.h.string(a.get(row, 6)),
		Culture: p.h.string(a.get(row, 7)),
	}
	key := p.h.blobAt(a.get(row, 5))
	if name.Flags&AssemblyFlagPublicKey != 0 {
		name.PublicKeyToken = PublicKeyToken(key)
		name.Flags &^= AssemblyFlagPublicKey
	} else if len(key) > 0 {
		name.PublicKeyToken = append([]byte(nil), key...)
	}
	return name
}

func (p *builder) buildReferences() {
	for row := uint32(1); row <= p.ts.rows(tAssemblyRef); row++ {
		p.f.references = append(p.f.references, p.assemblyRef(row))
	}
	for row := uint32(1); row <= p.ts.rows(tModuleRef); row++ {
		p.f.moduleRefs = append(p.f.moduleRefs, p.h.string(p.tbl(tModuleRef).get(row, 0)))
	}
	for row := uint32(1); row <= p.ts.rows(tFile); row++ {
		p.f.files = append(p.f.files, p.h.string(p.tbl(tFile).get(row, 1)))
	}
}

func (p *builder) buildTypes() error {
	td := p.tbl(tTypeDef)
	p.f.types = make([]*TypeDef, td.rows)
	for row := uint32(1); row <= td.rows; row++ {
		p.f.types[row-1] = &TypeDef{
			Flags:     td.get(row, 0),
			Name:      p.h.string(td.get(row, 1)),
			Namespace: p.h.string(td.get(row, 2)),
			Token:     tokenTypeDef | row,
		}
	}

	nc := p.tbl(tNestedClass)
	for row := uint32(1); row <= nc.rows; row++ {
		nested, enclosing := nc.get(row, 0), nc.get(row, 1)
		if nested == 0 || enclosing == 0 || nested > td.rows || enclosing > td.rows || nested == enclosing {
			return formatErr("NestedClass", -1, "row %d links invalid types %d -> %d", row, nested, enclosing)
		}
		inner, outer := p.f.types[nested-1], p.f.types[enclosing-1]
		inner.DeclaringType = outer
		outer.NestedTypes = append(outer.NestedTypes, inner)
	}
	for _, t := range p.f.types {
		if t.DeclaringType == nil {
			p.f.topLevel[typeKey(t.Namespace, t.Name)] = t
		}
	}

	p.methodOwner = make([]*TypeDef, p.ts.rows(tMethodDef)+1)
	for row := uint32(1); row <= td.rows; row++ {
		t := p.f.types[row-1]

		start, end := p.listRange(tTypeDef, 4, row, tField, tFieldPtr)
		for i := start; i < end; i++ {
			fr := p.deref(tFieldPtr, i)
			t.Fields = append(t.Fields, Field{
				Flags: uint16(p.tbl(tField).get(fr, 0)),
				Name:  p.h.string(p.tbl(tField).get(fr, 1)),
				Token: tokenField | fr,
			})
		}

		start, end = p.listRange(tTypeDef, 5, row, tMethodDef, tMethodPtr)
		for i := start; i < end; i++ {
			mr := p.deref(tMethodPtr, i)
			md := p.tbl(tMethodDef)
			m := Method{
				Flags: uint16(md.get(mr, 2)),
				Name:  p.h.string(md.get(mr, 3)),
				Token: tokenMethodDef | mr,
			}
			if sig, err := decodeMethodSig(p.h.blobAt(md.get(mr, 4)), p); err == nil {
				m.GenericArity = sig.genericArity
				m.Params = sig.paramNames()
			}
			if int(mr) < len(p.methodOwner) {
				p.methodOwner[mr] = t
			}
			t.Methods = append(t.Methods, m)
		}
	}

	pm := p.tbl(tPropertyMap)
	for row := uint32(1); row <= pm.rows; row++ {
		parent := pm.get(row, 0)
		if parent == 0 || parent > td.rows {
			continue
		}
		t := p.f.types[parent-1]
		start, end := p.listRange(tPropertyMap, 1, row, tProperty, tPropertyPtr)
		for i := start; i < end; i++ {
			pr := p.deref(tPropertyPtr, i)
			prop := Property{
				Name:  p.h.string(p.tbl(tProperty).get(pr, 1)),
				Token: tokenProperty | pr,
			}
			if sig, err := decodePropertySig(p.h.blobAt(p.tbl(tProperty).get(pr, 2)), p); err == nil {
				prop.Params = sig.paramNames()
			}
			t.Properties = append(t.Properties, prop)
		}
	}

	em := p.tbl(tEventMap)
	for row := uint32(1); row <= em.rows; row++ {
		parent := em.get(row, 0)
		if parent == 0 || parent > td.rows {
			continue
		}
		t := p.f.types[parent-1]
		start, end := p.listRange(tEventMap, 1, row, tEvent, tEventPtr)
		for i := start; i < end; i++ {
			er := p.deref(tEventPtr, i)
			t.Events = append(t.Events, Event{
				Name:  p.h.string(p.tbl(tEvent).get(er, 1)),
				Token: tokenEvent | er,
			})
		}
	}
	return nil
}

func (p *builder) buildExportedTypes() {
	et := p.tbl(tExportedType)
	p.f.exported = make([]*ExportedType, et.rows)
	for row := uint32(1); row <= et.rows; row++ {
		p.f.exported[row-1] = &ExportedType{
			Flags:     et.get(row, 0),
			Name:      p.h.string(et.get(row, 2)),
			Namespace: p.h.string(et.get(row, 3)),
		}
	}
	for row := uint32(1); row <= et.rows; row++ {
		e := p.f.exported[row-1]
		table, target, ok := ciImplementation.decode(et.get(row, 4))
		if !ok || target == 0 {
			continue
		}
		switch table {
		case tAssemblyRef:
			if target <= p.ts.rows(tAssemblyRef) {
				ref := p.assemblyRef(target)
				e.Scope = &ref
			}
		case tFile:
			e.File = p.h.string(p.tbl(tFile).get(target, 1))
		case tExportedType:
			if target <= et.rows && target != row {
				e.DeclaringType = p.f.exported[target-1]
			}
		}
	}
}

func (p *builder) buildAttributes() {
	ca := p.tbl(tCustomAttribute)
	for row := uint32(1); row <= ca.rows; row++ {
		parentTable, parentRow, ok := ciHasCustomAttribute.decode(ca.get(row, 0))
		if !ok {
			continue
		}
		ctorTable, ctorRow, ok := ciCustomAttributeType.decode(ca.get(row, 1))
		if !ok {
			continue
		}
		typeName, sigBlob := p.attributeCtor(ctorTable, ctorRow)
		attr := CustomAttribute{
			Parent: uint32(parentTable)<<24 | parentRow,
			Type:   typeName,
		}
		if sig, err := decodeMethodSig(sigBlob, p); err == nil {
			attr.Args = decodeAttributeArgs(p.h.blobAt(ca.get(row, 2)), sig)
		}
		p.f.attrs = append(p.f.attrs, attr)
	}
}

// attributeCtor returns the reflection name of the type declaring the
// constructor and the constructor signature blob.
func (p *builder) attributeCtor(table int, row uint32) (string, []byte) {
	switch table {
	case tMethodDef:
		sig := p.h.blobAt(p.tbl(tMethodDef).get(row, 4))
		if int(row) < len(p.methodOwner) && p.methodOwner[row] != nil {
			return p.methodOwner[row].FullName(), sig
		}
		return "", sig
	case tMemberRef:
		mr := p.tbl(tMemberRef)
		sig := p.h.blobAt(mr.get(row, 2))
		parentTable, parentRow, ok := ciMemberRefParent.decode(mr.get(row, 0))
		if !ok {
			return "", sig
		}
		switch parentTable {
		case tTypeRef:
			return p.typeRefName(parentRow, "+", 0), sig
		case tTypeDef:
			if parentRow >= 1 && parentRow <= uint32(len(p.f.types)) {
				return p.f.types[parentRow-1].FullName(), sig
			}
		}
		return "", sig
	}
	return "", nil
}

func (p *builder) typeRefName(row uint32, sep string, depth int) string {
	tr := p.tbl(tTypeRef)
	if row == 0 || row > tr.rows || depth > maxSigDepth {
		return "?"
	}
	name := p.h.string(tr.get(row, 1))
	ns := p.h.string(tr.get(row, 2))
	if table, outer, ok := ciResolutionScope.decode(tr.get(row, 0)); ok && table == tTypeRef && outer != row {
		return p.typeRefName(outer, sep, depth+1) + sep + name
	}
	if ns == "" {
		return name
	}
	return ns + "." + name
}

func (p *builder) typeDefDocName(row uint32) string {
	if row == 0 || row > uint32(len(p.f.types)) {
		return "?"
	}
	return p.f.types[row-1].DocName()
}

func (p *builder) typeRefDocName(row uint32) string {
	return p.typeRefName(row, ".", 0)
}

func (p *builder) typeSpecBlob(row uint32) []byte {
	if row == 0 || row > p.ts.rows(tTypeSpec) {
		return nil
	}
	return p.h.blobAt(p.tbl(tTypeSpec).get(row, 0))
}

// IsNotManaged reports whether err means the file is not a managed module.
func IsNotManaged(err error) bool {
	return errors.Is(err, ErrNotManaged)
}
