package wasm

import "fmt"

// Maximum sizes accepted by the structural validator.
const (
	MemoryMaxPages uint64 = 65536
	TableMaxSize   uint64 = 1<<32 - 1
)

// Validate checks the module for structural validity. It checks indices,
// limits, constant expressions, and the shape of every function body; it
// does not type check operand stacks.
func (m *Module) Validate() error {
	if err := m.validateTypeIndices(); err != nil {
		return err
	}
	if err := m.validateFunctionIndices(); err != nil {
		return err
	}
	if err := m.validateTables(); err != nil {
		return err
	}
	if err := m.validateMemories(); err != nil {
		return err
	}
	if err := m.validateGlobals(); err != nil {
		return err
	}
	if err := m.validateExports(); err != nil {
		return err
	}
	if err := m.validateStart(); err != nil {
		return err
	}
	if err := m.validateSegments(); err != nil {
		return err
	}
	if err := m.validateCode(); err != nil {
		return err
	}
	return nil
}

// ParseModuleValidate parses a WebAssembly binary and validates it.
// This is a convenience function combining ParseModule and Validate.
func ParseModuleValidate(data []byte) (*Module, error) {
	m, err := ParseModule(data)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Module) validateTypeIndices() error {
	numTypes := uint32(len(m.Types))

	for i, typeIdx := range m.Funcs {
		if typeIdx >= numTypes {
			return fmt.Errorf("function %d references invalid type index %d", i, typeIdx)
		}
	}

	for i, imp := range m.Imports {
		if imp.Desc.Kind == KindFunc && imp.Desc.TypeIdx >= numTypes {
			return fmt.Errorf("import %d (%s.%s) references invalid type index %d", i, imp.Module, imp.Name, imp.Desc.TypeIdx)
		}
	}

	return nil
}

func (m *Module) validateFunctionIndices() error {
	numFuncs := uint32(m.NumFuncs())

	for i, elem := range m.Elements {
		for j, funcIdx := range elem.FuncIdxs {
			if funcIdx >= numFuncs {
				return fmt.Errorf("element %d, entry %d references invalid function index %d", i, j, funcIdx)
			}
		}
	}

	for i, exp := range m.Exports {
		if exp.Kind == KindFunc && exp.Idx >= numFuncs {
			return fmt.Errorf("export %d (%s) references invalid function index %d", i, exp.Name, exp.Idx)
		}
	}

	return nil
}

func (m *Module) validateTables() error {
	if m.NumTables() > 1 {
		return fmt.Errorf("multiple tables: %d", m.NumTables())
	}
	for i, exp := range m.Exports {
		if exp.Kind == KindTable && exp.Idx >= uint32(m.NumTables()) {
			return fmt.Errorf("export %d (%s) references invalid table index %d", i, exp.Name, exp.Idx)
		}
	}
	for i, t := range m.Tables {
		if err := validateLimits(t.Limits, TableMaxSize); err != nil {
			return fmt.Errorf("table %d: %w", i, err)
		}
	}
	return nil
}

func (m *Module) validateMemories() error {
	if m.NumMemories() > 1 {
		return fmt.Errorf("multiple memories: %d", m.NumMemories())
	}
	for i, exp := range m.Exports {
		if exp.Kind == KindMemory && exp.Idx >= uint32(m.NumMemories()) {
			return fmt.Errorf("export %d (%s) references invalid memory index %d", i, exp.Name, exp.Idx)
		}
	}
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindMemory && imp.Desc.Memory != nil {
			if err := validateLimits(imp.Desc.Memory.Limits, MemoryMaxPages); err != nil {
				return fmt.Errorf("imported memory %s.%s: %w", imp.Module, imp.Name, err)
			}
		}
	}
	for i, mem := range m.Memories {
		if err := validateLimits(mem.Limits, MemoryMaxPages); err != nil {
			return fmt.Errorf("memory %d: %w", i, err)
		}
	}
	return nil
}

func validateLimits(l Limits, ceiling uint64) error {
	if uint64(l.Min) > ceiling {
		return fmt.Errorf("min %d exceeds maximum %d", l.Min, ceiling)
	}
	if l.Max != nil {
		if uint64(*l.Max) > ceiling {
			return fmt.Errorf("max %d exceeds maximum %d", *l.Max, ceiling)
		}
		if l.Min > *l.Max {
			return fmt.Errorf("min %d exceeds max %d", l.Min, *l.Max)
		}
	}
	return nil
}

func (m *Module) validateGlobals() error {
	for i, exp := range m.Exports {
		if exp.Kind == KindGlobal && exp.Idx >= uint32(m.NumGlobals()) {
			return fmt.Errorf("export %d (%s) references invalid global index %d", i, exp.Name, exp.Idx)
		}
	}
	for i, g := range m.Globals {
		t, err := m.constExprType(g.Init)
		if err != nil {
			return fmt.Errorf("global %d: %w", i, err)
		}
		if t != g.Type.ValType {
			return fmt.Errorf("global %d: initializer type %s does not match %s", i, t, g.Type.ValType)
		}
	}
	return nil
}

// constExprType returns the result type of a constant expression. Only
// imported globals may be referenced.
func (m *Module) constExprType(expr []byte) (ValType, error) {
	c, err := DecodeConstExpr(expr)
	if err != nil {
		return 0, err
	}
	if c.Size != len(expr) {
		return 0, fmt.Errorf("%w: trailing bytes", ErrConstExpr)
	}
	if t, ok := c.Type(); ok {
		return t, nil
	}
	if int(c.GlobalIdx) >= m.NumImportedGlobals() {
		return 0, fmt.Errorf("%w: global.get %d does not reference an imported global", ErrConstExpr, c.GlobalIdx)
	}
	gt := m.GlobalTypeAt(c.GlobalIdx)
	if gt.Mutable {
		return 0, fmt.Errorf("%w: global.get %d references a mutable global", ErrConstExpr, c.GlobalIdx)
	}
	return gt.ValType, nil
}

func (m *Module) validateExports() error {
	seen := make(map[string]bool)
	for i, exp := range m.Exports {
		if seen[exp.Name] {
			return fmt.Errorf("duplicate export name %q at index %d", exp.Name, i)
		}
		seen[exp.Name] = true
	}
	return nil
}

func (m *Module) validateStart() error {
	if m.Start == nil {
		return nil
	}

	funcType := m.GetFuncType(*m.Start)
	if funcType == nil {
		return fmt.Errorf("start function index %d out of range", *m.Start)
	}

	if len(funcType.Params) != 0 || len(funcType.Results) != 0 {
		return fmt.Errorf("start function must have signature [] -> [], got [%d params] -> [%d results]",
			len(funcType.Params), len(funcType.Results))
	}

	return nil
}

func (m *Module) validateSegments() error {
	for i, elem := range m.Elements {
		if m.NumTables() == 0 {
			return fmt.Errorf("element %d: module has no table", i)
		}
		t, err := m.constExprType(elem.Offset)
		if err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
		if t != ValI32 {
			return fmt.Errorf("element %d: offset type %s, want i32", i, t)
		}
	}
	for i, d := range m.Data {
		if m.NumMemories() == 0 {
			return fmt.Errorf("data segment %d: module has no memory", i)
		}
		t, err := m.constExprType(d.Offset)
		if err != nil {
			return fmt.Errorf("data segment %d: %w", i, err)
		}
		if t != ValI32 {
			return fmt.Errorf("data segment %d: offset type %s, want i32", i, t)
		}
	}
	return nil
}

// validateCode decodes every body and checks nesting and immediates.
func (m *Module) validateCode() error {
	if len(m.Code) != len(m.Funcs) {
		return fmt.Errorf("code section has %d entries but function section has %d",
			len(m.Code), len(m.Funcs))
	}
	numImported := m.NumImportedFuncs()
	for i := range m.Code {
		if err := m.validateBody(uint32(numImported+i), &m.Code[i]); err != nil {
			return fmt.Errorf("function %d: %w", numImported+i, err)
		}
	}
	return nil
}

func (m *Module) validateBody(funcIdx uint32, body *FuncBody) error {
	ft := m.GetFuncType(funcIdx)
	instrs, err := DecodeInstructions(body.Code)
	if err != nil {
		return err
	}

	numLocals := uint64(len(ft.Params)) + body.NumLocals()
	numFuncs := uint32(m.NumFuncs())
	numGlobals := uint32(m.NumGlobals())
	hasMemory := m.NumMemories() > 0

	// depth counts open blocks including the function body itself.
	depth := uint32(1)
	var ifs []bool
	for pc, in := range instrs {
		if depth == 0 {
			return fmt.Errorf("instruction %d after final end", pc)
		}
		switch imm := in.Imm.(type) {
		case BlockImm:
			if imm.Type >= 0 && int(imm.Type) >= len(m.Types) {
				return fmt.Errorf("block type index %d out of range", imm.Type)
			}
			depth++
			ifs = append(ifs, in.Opcode == OpIf)
		case BranchImm:
			if imm.LabelIdx >= depth {
				return fmt.Errorf("branch depth %d exceeds nesting %d", imm.LabelIdx, depth)
			}
		case BrTableImm:
			if imm.Default >= depth {
				return fmt.Errorf("br_table default %d exceeds nesting %d", imm.Default, depth)
			}
			for _, l := range imm.Labels {
				if l >= depth {
					return fmt.Errorf("br_table label %d exceeds nesting %d", l, depth)
				}
			}
		case CallImm:
			if imm.FuncIdx >= numFuncs {
				return fmt.Errorf("call to unknown function %d", imm.FuncIdx)
			}
		case CallIndirectImm:
			if m.NumTables() == 0 || imm.TableIdx != 0 {
				return fmt.Errorf("call_indirect without table 0")
			}
			if int(imm.TypeIdx) >= len(m.Types) {
				return fmt.Errorf("call_indirect type index %d out of range", imm.TypeIdx)
			}
		case LocalImm:
			if uint64(imm.LocalIdx) >= numLocals {
				return fmt.Errorf("local index %d out of range", imm.LocalIdx)
			}
		case GlobalImm:
			if imm.GlobalIdx >= numGlobals {
				return fmt.Errorf("global index %d out of range", imm.GlobalIdx)
			}
			if in.Opcode == OpGlobalSet && !m.GlobalTypeAt(imm.GlobalIdx).Mutable {
				return fmt.Errorf("global.set on immutable global %d", imm.GlobalIdx)
			}
		case MemoryImm:
			if !hasMemory {
				return fmt.Errorf("memory access without memory")
			}
			if imm.Align > NaturalAlignment(in.Opcode) {
				return fmt.Errorf("alignment 2**%d exceeds natural alignment", imm.Align)
			}
		case MemoryIdxImm:
			if !hasMemory || imm.MemIdx != 0 {
				return fmt.Errorf("memory instruction without memory 0")
			}
		}

		switch in.Opcode {
		case OpElse:
			if len(ifs) == 0 || !ifs[len(ifs)-1] {
				return fmt.Errorf("else without matching if")
			}
			ifs[len(ifs)-1] = false
		case OpEnd:
			depth--
			if len(ifs) > 0 {
				ifs = ifs[:len(ifs)-1]
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("unbalanced blocks: %d left open", depth)
	}
	return nil
}
