package metadata

// Table numbers from ECMA-335 II.22.
const (
	tModule                 = 0x00
	tTypeRef                = 0x01
	tTypeDef                = 0x02
	tFieldPtr               = 0x03
	tField                  = 0x04
	tMethodPtr              = 0x05
	tMethodDef              = 0x06
	tParamPtr               = 0x07
	tParam                  = 0x08
	tInterfaceImpl          = 0x09
	tMemberRef              = 0x0A
	tConstant               = 0x0B
	tCustomAttribute        = 0x0C
	tFieldMarshal           = 0x0D
	tDeclSecurity           = 0x0E
	tClassLayout            = 0x0F
	tFieldLayout            = 0x10
	tStandAloneSig          = 0x11
	tEventMap               = 0x12
	tEventPtr               = 0x13
	tEvent                  = 0x14
	tPropertyMap            = 0x15
	tPropertyPtr            = 0x16
	tProperty               = 0x17
	tMethodSemantics        = 0x18
	tMethodImpl             = 0x19
	tModuleRef              = 0x1A
	tTypeSpec               = 0x1B
	tImplMap                = 0x1C
	tFieldRVA               = 0x1D
	tEncLog                 = 0x1E
	tEncMap                 = 0x1F
	tAssembly               = 0x20
	tAssemblyProcessor      = 0x21
	tAssemblyOS             = 0x22
	tAssemblyRef            = 0x23
	tAssemblyRefProcessor   = 0x24
	tAssemblyRefOS          = 0x25
	tFile                   = 0x26
	tExportedType           = 0x27
	tManifestResource       = 0x28
	tNestedClass            = 0x29
	tGenericParam           = 0x2A
	tMethodSpec             = 0x2B
	tGenericParamConstraint = 0x2C

	numTables = 0x2D
)

var tableNames = [numTables]string{
	"Module", "TypeRef", "TypeDef", "FieldPtr", "Field", "MethodPtr", "MethodDef", "ParamPtr",
	"Param", "InterfaceImpl", "MemberRef", "Constant", "CustomAttribute", "FieldMarshal",
	"DeclSecurity", "ClassLayout", "FieldLayout", "StandAloneSig", "EventMap", "EventPtr",
	"Event", "PropertyMap", "PropertyPtr", "Property", "MethodSemantics", "MethodImpl",
	"ModuleRef", "TypeSpec", "ImplMap", "FieldRVA", "EncLog", "EncMap", "Assembly",
	"AssemblyProcessor", "AssemblyOS", "AssemblyRef", "AssemblyRefProcessor", "AssemblyRefOS",
	"File", "ExportedType", "ManifestResource", "NestedClass", "GenericParam", "MethodSpec",
	"GenericParamConstraint",
}

// codedIndex describes an ECMA-335 II.24.2.6 coded index. A -1 entry is a
// tag value that is reserved.
type codedIndex struct {
	bits   uint
	tables []int
}

var (
	ciTypeDefOrRef        = &codedIndex{2, []int{tTypeDef, tTypeRef, tTypeSpec}}
	ciHasConstant         = &codedIndex{2, []int{tField, tParam, tProperty}}
	ciHasFieldMarshal     = &codedIndex{1, []int{tField, tParam}}
	ciHasDeclSecurity     = &codedIndex{2, []int{tTypeDef, tMethodDef, tAssembly}}
	ciMemberRefParent     = &codedIndex{3, []int{tTypeDef, tTypeRef, tModuleRef, tMethodDef, tTypeSpec}}
	ciHasSemantics        = &codedIndex{1, []int{tEvent, tProperty}}
	ciMethodDefOrRef      = &codedIndex{1, []int{tMethodDef, tMemberRef}}
	ciMemberForwarded     = &codedIndex{1, []int{tField, tMethodDef}}
	ciImplementation      = &codedIndex{2, []int{tFile, tAssemblyRef, tExportedType}}
	ciCustomAttributeType = &codedIndex{3, []int{-1, -1, tMethodDef, tMemberRef, -1}}
	ciResolutionScope     = &codedIndex{2, []int{tModule, tModuleRef, tAssemblyRef, tTypeRef}}
	ciTypeOrMethodDef     = &codedIndex{1, []int{tTypeDef, tMethodDef}}
	ciHasCustomAttribute  = &codedIndex{5, []int{
		tMethodDef, tField, tTypeRef, tTypeDef, tParam, tInterfaceImpl, tMemberRef, tModule,
		tDeclSecurity, tProperty, tEvent, tStandAloneSig, tModuleRef, tTypeSpec, tAssembly,
		tAssemblyRef, tFile, tExportedType, tManifestResource, tGenericParam,
		tGenericParamConstraint, tMethodSpec,
	}}
)

// decode splits a coded value into its table number and 1-based row.
// ok is false for reserved tags.
func (ci *codedIndex) decode(v uint32) (table int, row uint32, ok bool) {
	tag := v & (1<<ci.bits - 1)
	if int(tag) >= len(ci.tables) || ci.tables[tag] < 0 {
		return 0, 0, false
	}
	return ci.tables[tag], v >> ci.bits, true
}

type colKind uint8

const (
	colU16 colKind = iota
	colU32
	colString
	colGUID
	colBlob
	colTable
	colCoded
)

type column struct {
	kind  colKind
	table int
	coded *codedIndex
}

var (
	cU16   = column{kind: colU16}
	cU32   = column{kind: colU32}
	cStr   = column{kind: colString}
	cGUID  = column{kind: colGUID}
	cBlob  = column{kind: colBlob}
	cIdx   = func(t int) column { return column{kind: colTable, table: t} }
	cCoded = func(ci *codedIndex) column { return column{kind: colCoded, coded: ci} }
	schema = [numTables][]column{
		tModule:                 {cU16, cStr, cGUID, cGUID, cGUID},
		tTypeRef:                {cCoded(ciResolutionScope), cStr, cStr},
		tTypeDef:                {cU32, cStr, cStr, cCoded(ciTypeDefOrRef), cIdx(tField), cIdx(tMethodDef)},
		tFieldPtr:               {cIdx(tField)},
		tField:                  {cU16, cStr, cBlob},
		tMethodPtr:              {cIdx(tMethodDef)},
		tMethodDef:              {cU32, cU16, cU16, cStr, cBlob, cIdx(tParam)},
		tParamPtr:               {cIdx(tParam)},
		tParam:                  {cU16, cU16, cStr},
		tInterfaceImpl:          {cIdx(tTypeDef), cCoded(ciTypeDefOrRef)},
		tMemberRef:              {cCoded(ciMemberRefParent), cStr, cBlob},
		tConstant:               {cU16, cCoded(ciHasConstant), cBlob},
		tCustomAttribute:        {cCoded(ciHasCustomAttribute), cCoded(ciCustomAttributeType), cBlob},
		tFieldMarshal:           {cCoded(ciHasFieldMarshal), cBlob},
		tDeclSecurity:           {cU16, cCoded(ciHasDeclSecurity), cBlob},
		tClassLayout:            {cU16, cU32, cIdx(tTypeDef)},
		tFieldLayout:            {cU32, cIdx(tField)},
		tStandAloneSig:          {cBlob},
		tEventMap:               {cIdx(tTypeDef), cIdx(tEvent)},
		tEventPtr:               {cIdx(tEvent)},
		tEvent:                  {cU16, cStr, cCoded(ciTypeDefOrRef)},
		tPropertyMap:            {cIdx(tTypeDef), cIdx(tProperty)},
		tPropertyPtr:            {cIdx(tProperty)},
		tProperty:               {cU16, cStr, cBlob},
		tMethodSemantics:        {cU16, cIdx(tMethodDef), cCoded(ciHasSemantics)},
		tMethodImpl:             {cIdx(tTypeDef), cCoded(ciMethodDefOrRef), cCoded(ciMethodDefOrRef)},
		tModuleRef:              {cStr},
		tTypeSpec:               {cBlob},
		tImplMap:                {cU16, cCoded(ciMemberForwarded), cStr, cIdx(tModuleRef)},
		tFieldRVA:               {cU32, cIdx(tField)},
		tEncLog:                 {cU32, cU32},
		tEncMap:                 {cU32},
		tAssembly:               {cU32, cU16, cU16, cU16, cU16, cU32, cBlob, cStr, cStr},
		tAssemblyProcessor:      {cU32},
		tAssemblyOS:             {cU32, cU32, cU32},
		tAssemblyRef:            {cU16, cU16, cU16, cU16, cU32, cBlob, cStr, cStr, cBlob},
		tAssemblyRefProcessor:   {cU32, cIdx(tAssemblyRef)},
		tAssemblyRefOS:          {cU32, cU32, cU32, cIdx(tAssemblyRef)},
		tFile:                   {cU32, cStr, cBlob},
		tExportedType:           {cU32, cU32, cStr, cStr, cCoded(ciImplementation)},
		tManifestResource:       {cU32, cU32, cStr, cCoded(ciImplementation)},
		tNestedClass:            {cIdx(tTypeDef), cIdx(tTypeDef)},
		tGenericParam:           {cU16, cU16, cCoded(ciTypeOrMethodDef), cStr},
		tMethodSpec:             {cCoded(ciMethodDefOrRef), cBlob},
		tGenericParamConstraint: {cIdx(tGenericParam), cCoded(ciTypeDefOrRef)},
	}
)

// table holds the decoded rows of one metadata table. Values are stored
// row-major; rows are 1-based as in metadata tokens.
type table struct {
	rows   uint32
	stride int
	values []uint32
}

// get returns column col of the 1-based row. Out-of-range rows read as 0.
func (t *table) get(row uint32, col int) uint32 {
	if row == 0 || row > t.rows {
		return 0
	}
	return t.values[int(row-1)*t.stride+col]
}

// tableStream is a decoded "#~" stream.
type tableStream struct {
	tables [numTables]table
}

func (ts *tableStream) rows(t int) uint32 {
	return ts.tables[t].rows
}

// parseTableStream decodes the "#~" (or "#-") stream header and every
// present table.
func parseTableStream(data []byte) (*tableStream, error) {
	r := newByteReader("#~", data)
	r.skip(4) // reserved
	r.skip(2) // major, minor
	heapSizes := r.u8()
	r.skip(1) // reserved
	valid := r.u64()
	r.skip(8) // sorted
	if r.err != nil {
		return nil, r.err
	}

	if valid>>numTables != 0 {
		return nil, formatErr("#~", r.off, "unsupported tables present (mask %#x)", valid)
	}

	ts := &tableStream{}
	for t := 0; t < numTables; t++ {
		if valid&(1<<uint(t)) != 0 {
			ts.tables[t].rows = r.u32()
		}
	}
	// Uncompressed streams written with the EnC extra-data flag carry
	// four more bytes before the tables.
	if heapSizes&0x40 != 0 {
		r.skip(4)
	}
	if r.err != nil {
		return nil, r.err
	}

	strSize, guidSize, blobSize := 2, 2, 2
	if heapSizes&0x01 != 0 {
		strSize = 4
	}
	if heapSizes&0x02 != 0 {
		guidSize = 4
	}
	if heapSizes&0x04 != 0 {
		blobSize = 4
	}

	widths := func(c column) int {
		switch c.kind {
		case colU16:
			return 2
		case colU32:
			return 4
		case colString:
			return strSize
		case colGUID:
			return guidSize
		case colBlob:
			return blobSize
		case colTable:
			if ts.rows(c.table) < 1<<16 {
				return 2
			}
			return 4
		default:
			var maxRows uint32
			for _, t := range c.coded.tables {
				if t >= 0 && ts.rows(t) > maxRows {
					maxRows = ts.rows(t)
				}
			}
			if maxRows < 1<<(16-c.coded.bits) {
				return 2
			}
			return 4
		}
	}

	for t := 0; t < numTables; t++ {
		tbl := &ts.tables[t]
		if tbl.rows == 0 {
			continue
		}
		cols := schema[t]
		sizes := make([]int, len(cols))
		rowSize := 0
		for i, c := range cols {
			sizes[i] = widths(c)
			rowSize += sizes[i]
		}
		if uint64(tbl.rows)*uint64(rowSize) > uint64(len(data)-r.off) {
			return nil, formatErr(tableNames[t], -1, "%d rows of %d bytes exceed stream size", tbl.rows, rowSize)
		}
		tbl.stride = len(cols)
		tbl.values = make([]uint32, int(tbl.rows)*len(cols))
		for row := 0; row < int(tbl.rows); row++ {
			for i := range cols {
				tbl.values[row*len(cols)+i] = r.index(sizes[i])
			}
		}
		if r.err != nil {
			return nil, r.err
		}
	}
	return ts, nil
}
