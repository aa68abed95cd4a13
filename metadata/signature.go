package metadata

import (
	"math"
	"strconv"
	"strings"
)

// Element types (ECMA-335 II.23.1.16).
const (
	elemEnd         = 0x00
	elemVoid        = 0x01
	elemBoolean     = 0x02
	elemChar        = 0x03
	elemI1          = 0x04
	elemU1          = 0x05
	elemI2          = 0x06
	elemU2          = 0x07
	elemI4          = 0x08
	elemU4          = 0x09
	elemI8          = 0x0A
	elemU8          = 0x0B
	elemR4          = 0x0C
	elemR8          = 0x0D
	elemString      = 0x0E
	elemPtr         = 0x0F
	elemByRef       = 0x10
	elemValueType   = 0x11
	elemClass       = 0x12
	elemVar         = 0x13
	elemArray       = 0x14
	elemGenericInst = 0x15
	elemTypedByRef  = 0x16
	elemI           = 0x18
	elemU           = 0x19
	elemFnPtr       = 0x1B
	elemObject      = 0x1C
	elemSZArray     = 0x1D
	elemMVar        = 0x1E
	elemCModReqd    = 0x1F
	elemCModOpt     = 0x20
	elemSentinel    = 0x41
	elemPinned      = 0x45

	// Custom attribute encodings (II.23.3).
	elemSystemType = 0x50
	elemBoxed      = 0x51
	elemEnum       = 0x55
)

// Signature calling-convention bits.
const (
	sigGeneric  = 0x10
	sigHasThis  = 0x20
	sigProperty = 0x08
)

var primitiveNames = map[byte]string{
	elemVoid:       "System.Void",
	elemBoolean:    "System.Boolean",
	elemChar:       "System.Char",
	elemI1:         "System.SByte",
	elemU1:         "System.Byte",
	elemI2:         "System.Int16",
	elemU2:         "System.UInt16",
	elemI4:         "System.Int32",
	elemU4:         "System.UInt32",
	elemI8:         "System.Int64",
	elemU8:         "System.UInt64",
	elemR4:         "System.Single",
	elemR8:         "System.Double",
	elemString:     "System.String",
	elemTypedByRef: "System.TypedReference",
	elemI:          "System.IntPtr",
	elemU:          "System.UIntPtr",
	elemObject:     "System.Object",
}

// maxSigDepth bounds recursion through nested and TypeSpec signatures.
const maxSigDepth = 32

// sigType is one decoded type from a signature. name uses the
// documentation-comment id spelling.
type sigType struct {
	elem byte
	name string
}

// methodSig is a decoded MethodDefSig, MethodRefSig or PropertySig.
type methodSig struct {
	genericArity int
	ret          sigType
	params       []sigType
}

func (s methodSig) paramNames() []string {
	names := make([]string, len(s.params))
	for i, p := range s.params {
		names[i] = p.name
	}
	return names
}

type sigDecoder struct {
	r     *byteReader
	names typeNamer
	depth int
}

// typeNamer maps TypeDefOrRef rows to documentation-id type names.
type typeNamer interface {
	typeDefDocName(row uint32) string
	typeRefDocName(row uint32) string
	typeSpecBlob(row uint32) []byte
}

func newSigDecoder(b []byte, names typeNamer) *sigDecoder {
	return &sigDecoder{r: newByteReader("signature", b), names: names}
}

func decodeMethodSig(b []byte, names typeNamer) (methodSig, error) {
	d := newSigDecoder(b, names)
	conv := d.r.u8()
	var sig methodSig
	if conv&sigGeneric != 0 {
		sig.genericArity = int(d.r.compressed())
	}
	count := int(d.r.compressed())
	if d.r.err != nil {
		return methodSig{}, d.r.err
	}
	sig.ret = d.typ()
	for i := 0; i < count && d.r.err == nil; i++ {
		if d.peek() == elemSentinel {
			d.r.u8()
		}
		sig.params = append(sig.params, d.typ())
	}
	return sig, d.r.err
}

func decodePropertySig(b []byte, names typeNamer) (methodSig, error) {
	d := newSigDecoder(b, names)
	conv := d.r.u8()
	if conv&sigProperty == 0 {
		return methodSig{}, formatErr("signature", 0, "not a property signature (%#x)", conv)
	}
	count := int(d.r.compressed())
	var sig methodSig
	sig.ret = d.typ()
	for i := 0; i < count && d.r.err == nil; i++ {
		sig.params = append(sig.params, d.typ())
	}
	return sig, d.r.err
}

func (d *sigDecoder) peek() byte {
	if d.r.err != nil || d.r.off >= len(d.r.buf) {
		return elemEnd
	}
	return d.r.buf[d.r.off]
}

func (d *sigDecoder) typeToken() string {
	v := d.r.compressed()
	row := v >> 2
	switch v & 3 {
	case 0:
		return d.names.typeDefDocName(row)
	case 1:
		return d.names.typeRefDocName(row)
	case 2:
		spec := d.names.typeSpecBlob(row)
		if spec == nil {
			return "?"
		}
		inner := &sigDecoder{r: newByteReader("TypeSpec", spec), names: d.names, depth: d.depth + 1}
		t := inner.typ()
		return t.name
	default:
		d.r.fail("invalid TypeDefOrRefOrSpec tag")
		return ""
	}
}

func (d *sigDecoder) typ() sigType {
	if d.depth > maxSigDepth {
		d.r.fail("signature nesting too deep")
		return sigType{}
	}
	d.depth++
	defer func() { d.depth-- }()

	elem := d.r.u8()
	if d.r.err != nil {
		return sigType{}
	}
	if name, ok := primitiveNames[elem]; ok {
		return sigType{elem: elem, name: name}
	}

	switch elem {
	case elemCModReqd, elemCModOpt:
		d.typeToken()
		return d.typ()
	case elemPinned:
		return d.typ()
	case elemPtr:
		inner := d.typ()
		return sigType{elem: elem, name: inner.name + "*"}
	case elemByRef:
		inner := d.typ()
		return sigType{elem: elem, name: inner.name + "@"}
	case elemValueType, elemClass:
		return sigType{elem: elem, name: d.typeToken()}
	case elemVar:
		return sigType{elem: elem, name: "`" + strconv.Itoa(int(d.r.compressed()))}
	case elemMVar:
		return sigType{elem: elem, name: "``" + strconv.Itoa(int(d.r.compressed()))}
	case elemSZArray:
		inner := d.typ()
		return sigType{elem: elem, name: inner.name + "[]"}
	case elemArray:
		inner := d.typ()
		rank := int(d.r.compressed())
		for n := d.r.compressed(); n > 0 && d.r.err == nil; n-- {
			d.r.compressed()
		}
		for n := d.r.compressed(); n > 0 && d.r.err == nil; n-- {
			d.r.compressed()
		}
		dims := make([]string, rank)
		for i := range dims {
			dims[i] = "0:"
		}
		return sigType{elem: elem, name: inner.name + "[" + strings.Join(dims, ",") + "]"}
	case elemGenericInst:
		d.r.u8() // CLASS or VALUETYPE
		base := stripArity(d.typeToken())
		count := int(d.r.compressed())
		args := make([]string, 0, count)
		for i := 0; i < count && d.r.err == nil; i++ {
			args = append(args, d.typ().name)
		}
		return sigType{elem: elem, name: base + "{" + strings.Join(args, ",") + "}"}
	case elemFnPtr:
		if _, err := decodeMethodSig(d.r.buf[d.r.off:], d.names); err != nil {
			d.r.fail("bad function pointer signature")
		}
		// The nested signature length is not encoded; function pointers
		// only appear as trailing parameters in practice.
		d.r.off = len(d.r.buf)
		return sigType{elem: elem, name: "=FUNC"}
	default:
		d.r.fail("unsupported element type 0x" + strconv.FormatUint(uint64(elem), 16))
		return sigType{}
	}
}

// stripArity removes the "`N" generic arity markers from every segment.
func stripArity(name string) string {
	if !strings.Contains(name, "`") {
		return name
	}
	var b strings.Builder
	for i := 0; i < len(name); i++ {
		if name[i] == '`' {
			for i+1 < len(name) && name[i+1] >= '0' && name[i+1] <= '9' {
				i++
			}
			continue
		}
		b.WriteByte(name[i])
	}
	return b.String()
}

// decodeAttributeArgs decodes the fixed arguments of a custom attribute
// value blob. Decoding stops at the first argument whose encoding cannot
// be determined from the constructor signature alone (enums, arrays),
// returning the arguments read so far.
func decodeAttributeArgs(value []byte, ctor methodSig) []any {
	r := newByteReader("CustomAttribute", value)
	if r.u16() != 0x0001 {
		return nil
	}
	args := make([]any, 0, len(ctor.params))
	for _, p := range ctor.params {
		elem := p.elem
		if elem == elemClass && p.name == "System.Type" {
			elem = elemSystemType
		}
		if elem == elemObject {
			elem = r.u8()
		}
		v, ok := decodeFixedArg(r, elem)
		if !ok || r.err != nil {
			break
		}
		args = append(args, v)
	}
	return args
}

func decodeFixedArg(r *byteReader, elem byte) (any, bool) {
	switch elem {
	case elemBoolean:
		return r.u8() != 0, true
	case elemChar:
		return rune(r.u16()), true
	case elemI1:
		return int8(r.u8()), true
	case elemU1:
		return r.u8(), true
	case elemI2:
		return int16(r.u16()), true
	case elemU2:
		return r.u16(), true
	case elemI4:
		return int32(r.u32()), true
	case elemU4:
		return r.u32(), true
	case elemI8:
		return int64(r.u64()), true
	case elemU8:
		return r.u64(), true
	case elemR4:
		return math.Float32frombits(r.u32()), true
	case elemR8:
		return math.Float64frombits(r.u64()), true
	case elemString, elemSystemType:
		s, ok := r.serString()
		if !ok {
			return nil, r.err == nil
		}
		return s, true
	default:
		return nil, false
	}
}
