package interp

import (
	"encoding/binary"

	"github.com/dejan-stankovic/wasmer/engine"
	"github.com/dejan-stankovic/wasmer/store"
	"github.com/dejan-stankovic/wasmer/wasm"
)

// access returns the size bytes at the effective address of a load or
// store. The buffer is fetched on every access since memory.grow and host
// functions may replace it.
func access(mem *store.Memory, addr uint32, imm wasm.MemoryImm, size uint64) ([]byte, error) {
	if mem == nil {
		return nil, trap(engine.TrapMemoryOutOfBounds)
	}
	data := mem.Data()
	ea := uint64(addr) + uint64(imm.Offset)
	if ea+size > uint64(len(data)) {
		return nil, trap(engine.TrapMemoryOutOfBounds)
	}
	return data[ea : ea+size], nil
}

func (m *machine) load(mem *store.Memory, op byte, imm wasm.MemoryImm) error {
	var size uint64
	switch op {
	case wasm.OpI32Load8S, wasm.OpI32Load8U, wasm.OpI64Load8S, wasm.OpI64Load8U:
		size = 1
	case wasm.OpI32Load16S, wasm.OpI32Load16U, wasm.OpI64Load16S, wasm.OpI64Load16U:
		size = 2
	case wasm.OpI32Load, wasm.OpF32Load, wasm.OpI64Load32S, wasm.OpI64Load32U:
		size = 4
	default:
		size = 8
	}
	b, err := access(mem, uint32(m.pop()), imm, size)
	if err != nil {
		return err
	}

	var v uint64
	switch op {
	case wasm.OpI32Load, wasm.OpF32Load, wasm.OpI64Load32U:
		v = uint64(binary.LittleEndian.Uint32(b))
	case wasm.OpI64Load, wasm.OpF64Load:
		v = binary.LittleEndian.Uint64(b)
	case wasm.OpI32Load8S:
		v = uint64(uint32(int32(int8(b[0]))))
	case wasm.OpI32Load8U, wasm.OpI64Load8U:
		v = uint64(b[0])
	case wasm.OpI32Load16S:
		v = uint64(uint32(int32(int16(binary.LittleEndian.Uint16(b)))))
	case wasm.OpI32Load16U, wasm.OpI64Load16U:
		v = uint64(binary.LittleEndian.Uint16(b))
	case wasm.OpI64Load8S:
		v = uint64(int64(int8(b[0])))
	case wasm.OpI64Load16S:
		v = uint64(int64(int16(binary.LittleEndian.Uint16(b))))
	case wasm.OpI64Load32S:
		v = uint64(int64(int32(binary.LittleEndian.Uint32(b))))
	}
	m.push(v)
	return nil
}

func (m *machine) store(mem *store.Memory, op byte, imm wasm.MemoryImm) error {
	v := m.pop()
	var size uint64
	switch op {
	case wasm.OpI32Store8, wasm.OpI64Store8:
		size = 1
	case wasm.OpI32Store16, wasm.OpI64Store16:
		size = 2
	case wasm.OpI32Store, wasm.OpF32Store, wasm.OpI64Store32:
		size = 4
	default:
		size = 8
	}
	b, err := access(mem, uint32(m.pop()), imm, size)
	if err != nil {
		return err
	}
	switch size {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	default:
		binary.LittleEndian.PutUint64(b, v)
	}
	return nil
}
