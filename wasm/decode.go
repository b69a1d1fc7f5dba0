package wasm

import (
	"errors"
	"fmt"
	"io"

	"github.com/dejan-stankovic/wasmer/wasm/internal/binary"
)

// Parsing errors returned by ParseModule.
var (
	ErrInvalidMagic   = errors.New("invalid wasm magic number")
	ErrInvalidVersion = errors.New("invalid wasm version")
)

// ParseError locates a decoding failure by section and byte offset.
type ParseError = binary.ParseError

// ParseModule parses a WebAssembly binary module
func ParseModule(data []byte) (*Module, error) {
	r := binary.NewReader(data)

	// Check magic number
	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if magic != Magic {
		return nil, ErrInvalidMagic
	}

	// Check version
	version, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if version != Version {
		return nil, ErrInvalidVersion
	}

	m := &Module{}
	var lastSection byte
	var declaredFuncs = -1

	// Parse sections
	for {
		sectionID, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, r.WrapError("section header", err)
		}

		// Custom sections can appear anywhere
		if sectionID != SectionCustom {
			if sectionID > SectionData {
				return nil, r.WrapError("section header", fmt.Errorf("unknown section ID: 0x%02x", sectionID))
			}
			if sectionID <= lastSection {
				return nil, r.WrapError("section header", fmt.Errorf("section %d appears out of order", sectionID))
			}
			lastSection = sectionID
		}

		sectionSize, err := r.ReadU32()
		if err != nil {
			return nil, r.WrapError("section size", err)
		}

		sectionData, err := r.ReadBytes(int(sectionSize))
		if err != nil {
			return nil, r.WrapError("section data", err)
		}

		sr := r.Sub(sectionData)
		name := sectionName(sectionID)

		switch sectionID {
		case SectionCustom:
			err = parseCustomSection(sr, m)
		case SectionType:
			err = parseTypeSection(sr, m)
		case SectionImport:
			err = parseImportSection(sr, m)
		case SectionFunction:
			err = parseFunctionSection(sr, m)
			declaredFuncs = len(m.Funcs)
		case SectionTable:
			err = parseTableSection(sr, m)
		case SectionMemory:
			err = parseMemorySection(sr, m)
		case SectionGlobal:
			err = parseGlobalSection(sr, m)
		case SectionExport:
			err = parseExportSection(sr, m)
		case SectionStart:
			err = parseStartSection(sr, m)
		case SectionElement:
			err = parseElementSection(sr, m)
		case SectionCode:
			err = parseCodeSection(sr, m)
		case SectionData:
			err = parseDataSection(sr, m)
		}
		if err != nil {
			return nil, sr.WrapError(name, err)
		}
		if sr.Len() != 0 {
			return nil, sr.WrapError(name, fmt.Errorf("%d trailing bytes", sr.Len()))
		}
	}

	if declaredFuncs < 0 {
		declaredFuncs = 0
	}
	if declaredFuncs != len(m.Code) {
		return nil, fmt.Errorf("function and code section have inconsistent lengths: %d != %d", declaredFuncs, len(m.Code))
	}

	return m, nil
}

func sectionName(id byte) string {
	switch id {
	case SectionCustom:
		return "custom section"
	case SectionType:
		return "type section"
	case SectionImport:
		return "import section"
	case SectionFunction:
		return "function section"
	case SectionTable:
		return "table section"
	case SectionMemory:
		return "memory section"
	case SectionGlobal:
		return "global section"
	case SectionExport:
		return "export section"
	case SectionStart:
		return "start section"
	case SectionElement:
		return "element section"
	case SectionCode:
		return "code section"
	case SectionData:
		return "data section"
	}
	return "unknown section"
}

// readCount reads a vector length. Every element takes at least one byte,
// so a count larger than the remaining input is rejected before allocating.
func readCount(r *binary.Reader) (uint32, error) {
	count, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	if int(count) > r.Len() {
		return 0, fmt.Errorf("vector length %d exceeds remaining %d bytes", count, r.Len())
	}
	return count, nil
}

func parseCustomSection(r *binary.Reader, m *Module) error {
	name, err := r.ReadName()
	if err != nil {
		return err
	}
	m.CustomSections = append(m.CustomSections, CustomSection{
		Name: name,
		Data: r.ReadRemaining(),
	})
	return nil
}

func parseTypeSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r)
	if err != nil {
		return err
	}
	m.Types = make([]FuncType, count)
	for i := uint32(0); i < count; i++ {
		form, err := r.ReadByte()
		if err != nil {
			return err
		}
		if form != FuncTypeByte {
			return fmt.Errorf("type %d: expected func type 0x60, got 0x%02x", i, form)
		}
		if m.Types[i].Params, err = readValTypes(r); err != nil {
			return err
		}
		if m.Types[i].Results, err = readValTypes(r); err != nil {
			return err
		}
	}
	return nil
}

func readValTypes(r *binary.Reader) ([]ValType, error) {
	count, err := readCount(r)
	if err != nil {
		return nil, err
	}
	out := make([]ValType, count)
	for i := range out {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		out[i] = ValType(b)
		if !out[i].IsNumeric() {
			return nil, fmt.Errorf("unsupported value type 0x%02x", b)
		}
	}
	return out, nil
}

func parseImportSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r)
	if err != nil {
		return err
	}
	m.Imports = make([]Import, count)
	for i := uint32(0); i < count; i++ {
		module, err := r.ReadName()
		if err != nil {
			return err
		}
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}

		imp := Import{Module: module, Name: name, Desc: ImportDesc{Kind: kind}}

		switch kind {
		case KindFunc:
			imp.Desc.TypeIdx, err = r.ReadU32()
			if err != nil {
				return err
			}
		case KindTable:
			table, err := readTableType(r)
			if err != nil {
				return err
			}
			imp.Desc.Table = &table
		case KindMemory:
			memory, err := readMemoryType(r)
			if err != nil {
				return err
			}
			imp.Desc.Memory = &memory
		case KindGlobal:
			global, err := readGlobalType(r)
			if err != nil {
				return err
			}
			imp.Desc.Global = &global
		default:
			return fmt.Errorf("unknown import kind: %d", kind)
		}

		m.Imports[i] = imp
	}
	return nil
}

func parseFunctionSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r)
	if err != nil {
		return err
	}
	m.Funcs = make([]uint32, count)
	for i := uint32(0); i < count; i++ {
		m.Funcs[i], err = r.ReadU32()
		if err != nil {
			return err
		}
	}
	return nil
}

func parseTableSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r)
	if err != nil {
		return err
	}
	m.Tables = make([]TableType, count)
	for i := uint32(0); i < count; i++ {
		m.Tables[i], err = readTableType(r)
		if err != nil {
			return err
		}
	}
	return nil
}

func parseMemorySection(r *binary.Reader, m *Module) error {
	count, err := readCount(r)
	if err != nil {
		return err
	}
	m.Memories = make([]MemoryType, count)
	for i := uint32(0); i < count; i++ {
		m.Memories[i], err = readMemoryType(r)
		if err != nil {
			return err
		}
	}
	return nil
}

func parseGlobalSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r)
	if err != nil {
		return err
	}
	m.Globals = make([]Global, count)
	for i := uint32(0); i < count; i++ {
		globalType, err := readGlobalType(r)
		if err != nil {
			return err
		}
		init, err := readInitExpr(r)
		if err != nil {
			return err
		}
		m.Globals[i] = Global{
			Type: globalType,
			Init: init,
		}
	}
	return nil
}

func parseExportSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r)
	if err != nil {
		return err
	}
	m.Exports = make([]Export, count)
	for i := uint32(0); i < count; i++ {
		name, err := r.ReadName()
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		if kind > KindGlobal {
			return fmt.Errorf("invalid export kind: 0x%02x", kind)
		}
		idx, err := r.ReadU32()
		if err != nil {
			return err
		}
		m.Exports[i] = Export{Name: name, Kind: kind, Idx: idx}
	}
	return nil
}

func parseStartSection(r *binary.Reader, m *Module) error {
	idx, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Start = &idx
	return nil
}

// parseElementSection accepts the MVP encoding: table index, offset
// expression, vector of function indices.
func parseElementSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r)
	if err != nil {
		return err
	}
	m.Elements = make([]Element, count)
	for i := uint32(0); i < count; i++ {
		tableIdx, err := r.ReadU32()
		if err != nil {
			return err
		}
		if tableIdx != 0 {
			return fmt.Errorf("element segment %d: unsupported table index %d", i, tableIdx)
		}
		offset, err := readInitExpr(r)
		if err != nil {
			return err
		}
		n, err := readCount(r)
		if err != nil {
			return err
		}
		idxs := make([]uint32, n)
		for j := range idxs {
			if idxs[j], err = r.ReadU32(); err != nil {
				return err
			}
		}
		m.Elements[i] = Element{TableIdx: tableIdx, Offset: offset, FuncIdxs: idxs}
	}
	return nil
}

func parseCodeSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r)
	if err != nil {
		return err
	}
	m.Code = make([]FuncBody, count)
	for i := uint32(0); i < count; i++ {
		bodySize, err := r.ReadU32()
		if err != nil {
			return err
		}
		bodyData, err := r.ReadBytes(int(bodySize))
		if err != nil {
			return err
		}

		br := r.Sub(bodyData)

		localCount, err := readCount(br)
		if err != nil {
			return err
		}
		var locals []LocalEntry
		var total uint64
		for j := uint32(0); j < localCount; j++ {
			n, err := br.ReadU32()
			if err != nil {
				return err
			}
			t, err := br.ReadByte()
			if err != nil {
				return err
			}
			if !ValType(t).IsNumeric() {
				return fmt.Errorf("function %d: unsupported local type 0x%02x", i, t)
			}
			total += uint64(n)
			if total > MaxLocals {
				return fmt.Errorf("function %d: too many locals", i)
			}
			locals = append(locals, LocalEntry{Count: n, ValType: ValType(t)})
		}

		code := br.ReadRemaining()
		if len(code) == 0 || code[len(code)-1] != OpEnd {
			return fmt.Errorf("function %d: body does not end with end opcode", i)
		}

		m.Code[i] = FuncBody{Locals: locals, Code: code}
	}
	return nil
}

// parseDataSection accepts the MVP encoding: memory index, offset
// expression, byte vector.
func parseDataSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r)
	if err != nil {
		return err
	}
	m.Data = make([]DataSegment, count)
	for i := uint32(0); i < count; i++ {
		memIdx, err := r.ReadU32()
		if err != nil {
			return err
		}
		if memIdx != 0 {
			return fmt.Errorf("data segment %d: unsupported memory index %d", i, memIdx)
		}
		offset, err := readInitExpr(r)
		if err != nil {
			return err
		}
		initLen, err := r.ReadU32()
		if err != nil {
			return err
		}
		init, err := r.ReadBytes(int(initLen))
		if err != nil {
			return err
		}
		m.Data[i] = DataSegment{MemIdx: memIdx, Offset: offset, Init: init}
	}
	return nil
}

func readLimits(r *binary.Reader) (Limits, error) {
	flags, err := r.ReadByte()
	if err != nil {
		return Limits{}, err
	}
	if flags != LimitsMinOnly && flags != LimitsMinMax {
		return Limits{}, fmt.Errorf("unsupported limits flags 0x%02x", flags)
	}

	var l Limits
	if l.Min, err = r.ReadU32(); err != nil {
		return Limits{}, err
	}
	if flags == LimitsMinMax {
		maxVal, err := r.ReadU32()
		if err != nil {
			return Limits{}, err
		}
		l.Max = &maxVal
	}

	// Validate min <= max
	if l.Max != nil && l.Min > *l.Max {
		return Limits{}, fmt.Errorf("limits min (%d) exceeds max (%d)", l.Min, *l.Max)
	}

	return l, nil
}

func readTableType(r *binary.Reader) (TableType, error) {
	elem, err := r.ReadByte()
	if err != nil {
		return TableType{}, err
	}
	if elem != ElemTypeFunc {
		return TableType{}, fmt.Errorf("unsupported table element type 0x%02x", elem)
	}
	limits, err := readLimits(r)
	if err != nil {
		return TableType{}, err
	}
	return TableType{ElemType: elem, Limits: limits}, nil
}

func readMemoryType(r *binary.Reader) (MemoryType, error) {
	limits, err := readLimits(r)
	if err != nil {
		return MemoryType{}, err
	}
	return MemoryType{Limits: limits}, nil
}

func readGlobalType(r *binary.Reader) (GlobalType, error) {
	vt, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	if !ValType(vt).IsNumeric() {
		return GlobalType{}, fmt.Errorf("unsupported global type 0x%02x", vt)
	}
	mut, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	if mut > 1 {
		return GlobalType{}, fmt.Errorf("invalid global mutability 0x%02x", mut)
	}
	return GlobalType{ValType: ValType(vt), Mutable: mut == 1}, nil
}

// readInitExpr captures a constant expression up to and including its end
// opcode. The expression shape is checked by DecodeConstExpr.
func readInitExpr(r *binary.Reader) ([]byte, error) {
	peek := *r
	expr, err := DecodeConstExpr(peek.ReadRemaining())
	if err != nil {
		return nil, err
	}
	return r.ReadBytes(expr.Size)
}
