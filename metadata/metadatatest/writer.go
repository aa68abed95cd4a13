package metadatatest

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"strings"
)

const (
	fileAlignment = 0x200
	sectionRVA    = 0x2000
	cliHeaderSize = 72
	runtimeString = "v4.0.30319"
)

// Table numbers written by this package.
const (
	tModule          = 0x00
	tTypeRef         = 0x01
	tTypeDef         = 0x02
	tField           = 0x04
	tMethodDef       = 0x06
	tMemberRef       = 0x0A
	tCustomAttribute = 0x0C
	tEventMap        = 0x12
	tEvent           = 0x14
	tPropertyMap     = 0x15
	tProperty        = 0x17
	tAssembly        = 0x20
	tAssemblyRef     = 0x23
	tExportedType    = 0x27
	tNestedClass     = 0x29
)

// row is a table row; every column value is written with the width given
// by the matching entry of wide (false means two bytes).
type row []uint32

type writer struct {
	asm *Assembly

	strings    bytes.Buffer
	stringIdx  map[string]uint32
	blob       bytes.Buffer
	typeRefIdx map[string]uint32
	typeDefIdx map[string]uint32

	tables map[int][]row
	wide   map[int][]bool
}

func newWriter(a *Assembly) *writer {
	w := &writer{
		asm:        a,
		stringIdx:  map[string]uint32{"": 0},
		typeRefIdx: make(map[string]uint32),
		typeDefIdx: make(map[string]uint32),
		tables:     make(map[int][]row),
		wide: map[int][]bool{
			tTypeDef:      {true, false, false, false, false, false},
			tMethodDef:    {true, false, false, false, false, false},
			tAssembly:     {true, false, false, false, false, true, false, false, false},
			tAssemblyRef:  {false, false, false, false, true, false, false, false, false},
			tExportedType: {true, true, false, false, false},
		},
	}
	w.strings.WriteByte(0)
	w.blob.WriteByte(0)
	return w
}

func (w *writer) str(s string) uint32 {
	if idx, ok := w.stringIdx[s]; ok {
		return idx
	}
	idx := uint32(w.strings.Len())
	w.strings.WriteString(s)
	w.strings.WriteByte(0)
	w.stringIdx[s] = idx
	return idx
}

func (w *writer) blobOf(b []byte) uint32 {
	if len(b) == 0 {
		return 0
	}
	idx := uint32(w.blob.Len())
	w.blob.Write(compressed(uint32(len(b))))
	w.blob.Write(b)
	return idx
}

func (w *writer) add(table int, r row) uint32 {
	w.tables[table] = append(w.tables[table], r)
	return uint32(len(w.tables[table]))
}

func compressed(v uint32) []byte {
	switch {
	case v < 0x80:
		return []byte{byte(v)}
	case v < 0x4000:
		return []byte{byte(v>>8) | 0x80, byte(v)}
	default:
		return []byte{byte(v>>24) | 0xC0, byte(v >> 16), byte(v >> 8), byte(v)}
	}
}

func serString(s string) []byte {
	return append(compressed(uint32(len(s))), s...)
}

// typeToken returns the TypeDefOrRef coded value for a type name.
func (w *writer) typeToken(fullName string) uint32 {
	if r, ok := w.typeDefIdx[fullName]; ok {
		return r << 2
	}
	return w.typeRef(fullName)<<2 | 1
}

func (w *writer) typeRef(fullName string) uint32 {
	if r, ok := w.typeRefIdx[fullName]; ok {
		return r
	}
	ns, name := splitName(fullName)
	// ResolutionScope: first AssemblyRef when present, else this module.
	scope := uint32(1<<2 | 0)
	if len(w.asm.refs) > 0 {
		scope = 1<<2 | 2
	}
	r := w.add(tTypeRef, row{scope, w.str(name), w.str(ns)})
	w.typeRefIdx[fullName] = r
	return r
}

func (w *writer) encode(p Param) []byte {
	switch p.elem {
	case 0x11, 0x12:
		return append([]byte{p.elem}, compressed(w.typeToken(p.typeName))...)
	case 0x0F, 0x10, 0x1D:
		return append([]byte{p.elem}, w.encode(*p.inner)...)
	case 0x13, 0x1E:
		return append([]byte{p.elem}, compressed(uint32(p.num))...)
	case 0x15:
		b := []byte{p.elem, 0x12}
		b = append(b, compressed(w.typeToken(p.typeName))...)
		b = append(b, compressed(uint32(len(p.args)))...)
		for _, a := range p.args {
			b = append(b, w.encode(a)...)
		}
		return b
	default:
		return []byte{p.elem}
	}
}

func (w *writer) methodSig(m method) []byte {
	conv := byte(0x20)
	if m.arity > 0 {
		conv |= 0x10
	}
	b := []byte{conv}
	if m.arity > 0 {
		b = append(b, compressed(uint32(m.arity))...)
	}
	b = append(b, compressed(uint32(len(m.params)))...)
	b = append(b, 0x01)
	for _, p := range m.params {
		b = append(b, w.encode(p)...)
	}
	return b
}

func (w *writer) propertySig(m method) []byte {
	b := []byte{0x28}
	b = append(b, compressed(uint32(len(m.params)))...)
	b = append(b, 0x08)
	for _, p := range m.params {
		b = append(b, w.encode(p)...)
	}
	return b
}

type flatType struct {
	t     *Type
	ns    string
	outer uint32
}

// flatten lists types depth-first so each type is followed by its nested
// types, keeping member lists contiguous.
func flatten(types []*Type, outer uint32, out *[]flatType) {
	for _, t := range types {
		ns := t.namespace
		if outer != 0 {
			ns = ""
		}
		*out = append(*out, flatType{t: t, ns: ns, outer: outer})
		flatten(t.nested, uint32(len(*out))+1, out)
	}
}

func (w *writer) buildTables() {
	a := w.asm
	w.add(tModule, row{0, w.str(a.moduleName), 1, 0, 0})

	for _, ref := range a.refs {
		w.add(tAssemblyRef, row{
			uint32(ref.Version.Major), uint32(ref.Version.Minor),
			uint32(ref.Version.Build), uint32(ref.Version.Revision),
			ref.Flags &^ 1,
			w.blobOf(ref.PublicKeyToken),
			w.str(ref.Name), w.str(ref.Culture), 0,
		})
	}

	var flat []flatType
	flatten(a.types, 0, &flat)
	// Row 1 is <Module>; user types start at row 2.
	for i, ft := range flat {
		if ft.outer == 0 {
			full := ft.t.name
			if ft.ns != "" {
				full = ft.ns + "." + ft.t.name
			}
			w.typeDefIdx[full] = uint32(i + 2)
		}
	}

	fieldSig := w.blobOf([]byte{0x06, 0x08})
	w.add(tTypeDef, row{0, w.str("<Module>"), 0, 0, 1, 1})
	fieldRow, methodRow := uint32(1), uint32(1)
	for _, ft := range flat {
		w.add(tTypeDef, row{ft.t.flags, w.str(ft.t.name), w.str(ft.ns), 0, fieldRow, methodRow})
		for _, f := range ft.t.fields {
			w.add(tField, row{0x0006, w.str(f), fieldSig})
			fieldRow++
		}
		for _, m := range ft.t.methods {
			w.add(tMethodDef, row{0, 0, 0x0086, w.str(m.name), w.blobOf(w.methodSig(m)), 1})
			methodRow++
		}
	}

	for i, ft := range flat {
		typeRow := uint32(i + 2)
		if len(ft.t.properties) > 0 {
			w.add(tPropertyMap, row{typeRow, uint32(len(w.tables[tProperty]) + 1)})
			for _, p := range ft.t.properties {
				w.add(tProperty, row{0, w.str(p.name), w.blobOf(w.propertySig(p))})
			}
		}
	}
	for i, ft := range flat {
		typeRow := uint32(i + 2)
		if len(ft.t.events) > 0 {
			w.add(tEventMap, row{typeRow, uint32(len(w.tables[tEvent]) + 1)})
			for _, e := range ft.t.events {
				w.add(tEvent, row{0, w.str(e), 0})
			}
		}
	}

	for i, ft := range flat {
		if ft.outer != 0 {
			w.add(tNestedClass, row{uint32(i + 2), ft.outer})
		}
	}

	if a.isAssembly {
		w.add(tAssembly, row{
			0x8004,
			uint32(a.version.Major), uint32(a.version.Minor),
			uint32(a.version.Build), uint32(a.version.Revision),
			a.flags | publicKeyFlag(a.publicKey),
			w.blobOf(a.publicKey),
			w.str(a.name), w.str(a.culture),
		})
		for _, attr := range a.attrs {
			ctorSig := []byte{0x20, byte(len(attr.args)), 0x01}
			value := []byte{0x01, 0x00}
			for _, arg := range attr.args {
				ctorSig = append(ctorSig, 0x0E)
				value = append(value, serString(arg)...)
			}
			value = append(value, 0x00, 0x00)
			typeRow := w.typeRef(attr.typeName)
			ctor := w.add(tMemberRef, row{typeRow<<3 | 1, w.str(".ctor"), w.blobOf(ctorSig)})
			w.add(tCustomAttribute, row{1<<5 | 14, ctor<<3 | 3, w.blobOf(value)})
		}
	}

	for _, fw := range a.forwarders {
		target := uint32(0)
		for i, ref := range a.refs {
			if strings.EqualFold(ref.Name, fw.target) {
				target = uint32(i + 1)
				break
			}
		}
		if target == 0 {
			panic("metadatatest: forwarder target " + fw.target + " is not a reference")
		}
		w.add(tExportedType, row{0x00200000, 0, w.str(fw.name), w.str(fw.namespace), target<<2 | 1})
	}
}

func publicKeyFlag(key []byte) uint32 {
	if len(key) > 0 {
		return 1
	}
	return 0
}

func pad4(b *bytes.Buffer) {
	for b.Len()%4 != 0 {
		b.WriteByte(0)
	}
}

func (w *writer) tableStream() []byte {
	var b bytes.Buffer
	le := binary.LittleEndian
	var valid uint64
	for t, rows := range w.tables {
		if len(rows) > 0 {
			valid |= 1 << uint(t)
		}
	}
	_ = binary.Write(&b, le, uint32(0))
	b.Write([]byte{2, 0, 0, 1})
	_ = binary.Write(&b, le, valid)
	_ = binary.Write(&b, le, uint64(0))
	for t := 0; t < 64; t++ {
		if valid&(1<<uint(t)) != 0 {
			_ = binary.Write(&b, le, uint32(len(w.tables[t])))
		}
	}
	for t := 0; t < 64; t++ {
		for _, r := range w.tables[t] {
			wide := w.wide[t]
			for i, v := range r {
				if i < len(wide) && wide[i] {
					_ = binary.Write(&b, le, v)
				} else {
					_ = binary.Write(&b, le, uint16(v))
				}
			}
		}
	}
	pad4(&b)
	return b.Bytes()
}

type stream struct {
	name string
	data []byte
}

func (w *writer) metadataRoot() []byte {
	w.buildTables()
	tables := w.tableStream()
	pad4(&w.strings)
	pad4(&w.blob)
	guid := make([]byte, 16)
	copy(guid, w.asm.moduleName)

	streams := []stream{
		{"#~", tables},
		{"#Strings", w.strings.Bytes()},
		{"#US", []byte{0, 0, 0, 0}},
		{"#GUID", guid},
		{"#Blob", w.blob.Bytes()},
	}

	versionLen := (len(runtimeString) + 1 + 3) &^ 3
	headerLen := 16 + versionLen + 4
	for _, s := range streams {
		headerLen += 8 + (len(s.name)+1+3)&^3
	}

	var b bytes.Buffer
	le := binary.LittleEndian
	_ = binary.Write(&b, le, uint32(0x424A5342))
	_ = binary.Write(&b, le, uint16(1))
	_ = binary.Write(&b, le, uint16(1))
	_ = binary.Write(&b, le, uint32(0))
	_ = binary.Write(&b, le, uint32(versionLen))
	v := make([]byte, versionLen)
	copy(v, runtimeString)
	b.Write(v)
	_ = binary.Write(&b, le, uint16(0))
	_ = binary.Write(&b, le, uint16(len(streams)))

	off := uint32(headerLen)
	for _, s := range streams {
		_ = binary.Write(&b, le, off)
		_ = binary.Write(&b, le, uint32(len(s.data)))
		b.WriteString(s.name)
		b.WriteByte(0)
		pad4(&b)
		off += uint32(len(s.data))
	}
	for _, s := range streams {
		b.Write(s.data)
	}
	return b.Bytes()
}

func (w *writer) image() []byte {
	md := w.metadataRoot()
	le := binary.LittleEndian

	var text bytes.Buffer
	_ = binary.Write(&text, le, uint32(cliHeaderSize))
	_ = binary.Write(&text, le, uint16(2))
	_ = binary.Write(&text, le, uint16(5))
	_ = binary.Write(&text, le, uint32(sectionRVA+cliHeaderSize))
	_ = binary.Write(&text, le, uint32(len(md)))
	_ = binary.Write(&text, le, uint32(1)) // ILONLY
	text.Write(make([]byte, cliHeaderSize-text.Len()))
	text.Write(md)
	virtualSize := uint32(text.Len())
	for text.Len()%fileAlignment != 0 {
		text.WriteByte(0)
	}

	var img bytes.Buffer
	dos := make([]byte, 0x80)
	dos[0], dos[1] = 'M', 'Z'
	le.PutUint32(dos[0x3C:], 0x80)
	img.Write(dos)
	img.WriteString("PE\x00\x00")

	_ = binary.Write(&img, le, pe.FileHeader{
		Machine:              pe.IMAGE_FILE_MACHINE_I386,
		NumberOfSections:     1,
		SizeOfOptionalHeader: uint16(binary.Size(pe.OptionalHeader32{})),
		Characteristics:      pe.IMAGE_FILE_EXECUTABLE_IMAGE | pe.IMAGE_FILE_32BIT_MACHINE | pe.IMAGE_FILE_DLL,
	})

	oh := pe.OptionalHeader32{
		Magic:                 0x10b,
		SizeOfCode:            uint32(text.Len()),
		BaseOfCode:            sectionRVA,
		ImageBase:             0x400000,
		SectionAlignment:      0x2000,
		FileAlignment:         fileAlignment,
		MajorSubsystemVersion: 4,
		SizeOfImage:           sectionRVA + 0x2000*((virtualSize+0x1FFF)/0x2000),
		SizeOfHeaders:         fileAlignment,
		Subsystem:             pe.IMAGE_SUBSYSTEM_WINDOWS_CUI,
		NumberOfRvaAndSizes:   16,
	}
	oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_COM_DESCRIPTOR] = pe.DataDirectory{
		VirtualAddress: sectionRVA,
		Size:           cliHeaderSize,
	}
	_ = binary.Write(&img, le, oh)

	sh := pe.SectionHeader32{
		VirtualSize:      virtualSize,
		VirtualAddress:   sectionRVA,
		SizeOfRawData:    uint32(text.Len()),
		PointerToRawData: fileAlignment,
		Characteristics:  pe.IMAGE_SCN_CNT_CODE | pe.IMAGE_SCN_MEM_EXECUTE | pe.IMAGE_SCN_MEM_READ,
	}
	copy(sh.Name[:], ".text")
	_ = binary.Write(&img, le, sh)

	for img.Len() < fileAlignment {
		img.WriteByte(0)
	}
	img.Write(text.Bytes())
	return img.Bytes()
}
