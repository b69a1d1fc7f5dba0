package interp

import (
	"math"
	"math/bits"

	"github.com/dejan-stankovic/wasmer/engine"
	"github.com/dejan-stankovic/wasmer/wasm"
)

func f32bits(f float32) uint64 { return uint64(math.Float32bits(f)) }
func f64bits(f float64) uint64 { return math.Float64bits(f) }
func f32of(v uint64) float32   { return math.Float32frombits(uint32(v)) }
func f64of(v uint64) float64   { return math.Float64frombits(v) }

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

const (
	f32SignBit = 1 << 31
	f64SignBit = 1 << 63
)

// numeric executes a comparison, arithmetic or conversion instruction.
func (m *machine) numeric(op byte) error {
	switch op {
	// i32 tests and comparisons
	case wasm.OpI32Eqz:
		m.unary(func(a uint64) uint64 { return b2u(uint32(a) == 0) })
	case wasm.OpI32Eq:
		m.i32cmp(func(a, b uint32) bool { return a == b })
	case wasm.OpI32Ne:
		m.i32cmp(func(a, b uint32) bool { return a != b })
	case wasm.OpI32LtS:
		m.i32cmp(func(a, b uint32) bool { return int32(a) < int32(b) })
	case wasm.OpI32LtU:
		m.i32cmp(func(a, b uint32) bool { return a < b })
	case wasm.OpI32GtS:
		m.i32cmp(func(a, b uint32) bool { return int32(a) > int32(b) })
	case wasm.OpI32GtU:
		m.i32cmp(func(a, b uint32) bool { return a > b })
	case wasm.OpI32LeS:
		m.i32cmp(func(a, b uint32) bool { return int32(a) <= int32(b) })
	case wasm.OpI32LeU:
		m.i32cmp(func(a, b uint32) bool { return a <= b })
	case wasm.OpI32GeS:
		m.i32cmp(func(a, b uint32) bool { return int32(a) >= int32(b) })
	case wasm.OpI32GeU:
		m.i32cmp(func(a, b uint32) bool { return a >= b })

	// i64 tests and comparisons
	case wasm.OpI64Eqz:
		m.unary(func(a uint64) uint64 { return b2u(a == 0) })
	case wasm.OpI64Eq:
		m.i64cmp(func(a, b uint64) bool { return a == b })
	case wasm.OpI64Ne:
		m.i64cmp(func(a, b uint64) bool { return a != b })
	case wasm.OpI64LtS:
		m.i64cmp(func(a, b uint64) bool { return int64(a) < int64(b) })
	case wasm.OpI64LtU:
		m.i64cmp(func(a, b uint64) bool { return a < b })
	case wasm.OpI64GtS:
		m.i64cmp(func(a, b uint64) bool { return int64(a) > int64(b) })
	case wasm.OpI64GtU:
		m.i64cmp(func(a, b uint64) bool { return a > b })
	case wasm.OpI64LeS:
		m.i64cmp(func(a, b uint64) bool { return int64(a) <= int64(b) })
	case wasm.OpI64LeU:
		m.i64cmp(func(a, b uint64) bool { return a <= b })
	case wasm.OpI64GeS:
		m.i64cmp(func(a, b uint64) bool { return int64(a) >= int64(b) })
	case wasm.OpI64GeU:
		m.i64cmp(func(a, b uint64) bool { return a >= b })

	// float comparisons; any comparison with NaN is false except ne
	case wasm.OpF32Eq:
		m.f32cmp(func(a, b float32) bool { return a == b })
	case wasm.OpF32Ne:
		m.f32cmp(func(a, b float32) bool { return a != b })
	case wasm.OpF32Lt:
		m.f32cmp(func(a, b float32) bool { return a < b })
	case wasm.OpF32Gt:
		m.f32cmp(func(a, b float32) bool { return a > b })
	case wasm.OpF32Le:
		m.f32cmp(func(a, b float32) bool { return a <= b })
	case wasm.OpF32Ge:
		m.f32cmp(func(a, b float32) bool { return a >= b })
	case wasm.OpF64Eq:
		m.f64cmp(func(a, b float64) bool { return a == b })
	case wasm.OpF64Ne:
		m.f64cmp(func(a, b float64) bool { return a != b })
	case wasm.OpF64Lt:
		m.f64cmp(func(a, b float64) bool { return a < b })
	case wasm.OpF64Gt:
		m.f64cmp(func(a, b float64) bool { return a > b })
	case wasm.OpF64Le:
		m.f64cmp(func(a, b float64) bool { return a <= b })
	case wasm.OpF64Ge:
		m.f64cmp(func(a, b float64) bool { return a >= b })

	// i32 arithmetic
	case wasm.OpI32Clz:
		m.unary(func(a uint64) uint64 { return uint64(bits.LeadingZeros32(uint32(a))) })
	case wasm.OpI32Ctz:
		m.unary(func(a uint64) uint64 { return uint64(bits.TrailingZeros32(uint32(a))) })
	case wasm.OpI32Popcnt:
		m.unary(func(a uint64) uint64 { return uint64(bits.OnesCount32(uint32(a))) })
	case wasm.OpI32Add:
		m.i32bin(func(a, b uint32) uint32 { return a + b })
	case wasm.OpI32Sub:
		m.i32bin(func(a, b uint32) uint32 { return a - b })
	case wasm.OpI32Mul:
		m.i32bin(func(a, b uint32) uint32 { return a * b })
	case wasm.OpI32DivS:
		return m.binaryErr(func(a, b uint64) (uint64, error) {
			x, y := int32(a), int32(b)
			switch {
			case y == 0:
				return 0, trap(engine.TrapIntegerDivideByZero)
			case x == math.MinInt32 && y == -1:
				return 0, trap(engine.TrapIntegerOverflow)
			}
			return uint64(uint32(x / y)), nil
		})
	case wasm.OpI32DivU:
		return m.binaryErr(func(a, b uint64) (uint64, error) {
			if uint32(b) == 0 {
				return 0, trap(engine.TrapIntegerDivideByZero)
			}
			return uint64(uint32(a) / uint32(b)), nil
		})
	case wasm.OpI32RemS:
		return m.binaryErr(func(a, b uint64) (uint64, error) {
			x, y := int32(a), int32(b)
			switch {
			case y == 0:
				return 0, trap(engine.TrapIntegerDivideByZero)
			case y == -1:
				return 0, nil
			}
			return uint64(uint32(x % y)), nil
		})
	case wasm.OpI32RemU:
		return m.binaryErr(func(a, b uint64) (uint64, error) {
			if uint32(b) == 0 {
				return 0, trap(engine.TrapIntegerDivideByZero)
			}
			return uint64(uint32(a) % uint32(b)), nil
		})
	case wasm.OpI32And:
		m.i32bin(func(a, b uint32) uint32 { return a & b })
	case wasm.OpI32Or:
		m.i32bin(func(a, b uint32) uint32 { return a | b })
	case wasm.OpI32Xor:
		m.i32bin(func(a, b uint32) uint32 { return a ^ b })
	case wasm.OpI32Shl:
		m.i32bin(func(a, b uint32) uint32 { return a << (b & 31) })
	case wasm.OpI32ShrS:
		m.i32bin(func(a, b uint32) uint32 { return uint32(int32(a) >> (b & 31)) })
	case wasm.OpI32ShrU:
		m.i32bin(func(a, b uint32) uint32 { return a >> (b & 31) })
	case wasm.OpI32Rotl:
		m.i32bin(func(a, b uint32) uint32 { return bits.RotateLeft32(a, int(b&31)) })
	case wasm.OpI32Rotr:
		m.i32bin(func(a, b uint32) uint32 { return bits.RotateLeft32(a, -int(b&31)) })

	// i64 arithmetic
	case wasm.OpI64Clz:
		m.unary(func(a uint64) uint64 { return uint64(bits.LeadingZeros64(a)) })
	case wasm.OpI64Ctz:
		m.unary(func(a uint64) uint64 { return uint64(bits.TrailingZeros64(a)) })
	case wasm.OpI64Popcnt:
		m.unary(func(a uint64) uint64 { return uint64(bits.OnesCount64(a)) })
	case wasm.OpI64Add:
		m.binary(func(a, b uint64) uint64 { return a + b })
	case wasm.OpI64Sub:
		m.binary(func(a, b uint64) uint64 { return a - b })
	case wasm.OpI64Mul:
		m.binary(func(a, b uint64) uint64 { return a * b })
	case wasm.OpI64DivS:
		return m.binaryErr(func(a, b uint64) (uint64, error) {
			x, y := int64(a), int64(b)
			switch {
			case y == 0:
				return 0, trap(engine.TrapIntegerDivideByZero)
			case x == math.MinInt64 && y == -1:
				return 0, trap(engine.TrapIntegerOverflow)
			}
			return uint64(x / y), nil
		})
	case wasm.OpI64DivU:
		return m.binaryErr(func(a, b uint64) (uint64, error) {
			if b == 0 {
				return 0, trap(engine.TrapIntegerDivideByZero)
			}
			return a / b, nil
		})
	case wasm.OpI64RemS:
		return m.binaryErr(func(a, b uint64) (uint64, error) {
			x, y := int64(a), int64(b)
			switch {
			case y == 0:
				return 0, trap(engine.TrapIntegerDivideByZero)
			case y == -1:
				return 0, nil
			}
			return uint64(x % y), nil
		})
	case wasm.OpI64RemU:
		return m.binaryErr(func(a, b uint64) (uint64, error) {
			if b == 0 {
				return 0, trap(engine.TrapIntegerDivideByZero)
			}
			return a % b, nil
		})
	case wasm.OpI64And:
		m.binary(func(a, b uint64) uint64 { return a & b })
	case wasm.OpI64Or:
		m.binary(func(a, b uint64) uint64 { return a | b })
	case wasm.OpI64Xor:
		m.binary(func(a, b uint64) uint64 { return a ^ b })
	case wasm.OpI64Shl:
		m.binary(func(a, b uint64) uint64 { return a << (b & 63) })
	case wasm.OpI64ShrS:
		m.binary(func(a, b uint64) uint64 { return uint64(int64(a) >> (b & 63)) })
	case wasm.OpI64ShrU:
		m.binary(func(a, b uint64) uint64 { return a >> (b & 63) })
	case wasm.OpI64Rotl:
		m.binary(func(a, b uint64) uint64 { return bits.RotateLeft64(a, int(b&63)) })
	case wasm.OpI64Rotr:
		m.binary(func(a, b uint64) uint64 { return bits.RotateLeft64(a, -int(b&63)) })

	// f32 arithmetic; sign operations work on the bits so NaN payloads
	// survive
	case wasm.OpF32Abs:
		m.unary(func(a uint64) uint64 { return a &^ f32SignBit })
	case wasm.OpF32Neg:
		m.unary(func(a uint64) uint64 { return a ^ f32SignBit })
	case wasm.OpF32Ceil:
		m.f32un(func(a float32) float32 { return float32(math.Ceil(float64(a))) })
	case wasm.OpF32Floor:
		m.f32un(func(a float32) float32 { return float32(math.Floor(float64(a))) })
	case wasm.OpF32Trunc:
		m.f32un(func(a float32) float32 { return float32(math.Trunc(float64(a))) })
	case wasm.OpF32Nearest:
		m.f32un(func(a float32) float32 { return float32(math.RoundToEven(float64(a))) })
	case wasm.OpF32Sqrt:
		m.f32un(func(a float32) float32 { return float32(math.Sqrt(float64(a))) })
	case wasm.OpF32Add:
		m.f32bin(func(a, b float32) float32 { return a + b })
	case wasm.OpF32Sub:
		m.f32bin(func(a, b float32) float32 { return a - b })
	case wasm.OpF32Mul:
		m.f32bin(func(a, b float32) float32 { return a * b })
	case wasm.OpF32Div:
		m.f32bin(func(a, b float32) float32 { return a / b })
	case wasm.OpF32Min:
		m.f32bin(func(a, b float32) float32 { return float32(math.Min(float64(a), float64(b))) })
	case wasm.OpF32Max:
		m.f32bin(func(a, b float32) float32 { return float32(math.Max(float64(a), float64(b))) })
	case wasm.OpF32Copysign:
		m.binary(func(a, b uint64) uint64 { return a&^f32SignBit | b&f32SignBit })

	// f64 arithmetic
	case wasm.OpF64Abs:
		m.unary(func(a uint64) uint64 { return a &^ f64SignBit })
	case wasm.OpF64Neg:
		m.unary(func(a uint64) uint64 { return a ^ f64SignBit })
	case wasm.OpF64Ceil:
		m.f64un(math.Ceil)
	case wasm.OpF64Floor:
		m.f64un(math.Floor)
	case wasm.OpF64Trunc:
		m.f64un(math.Trunc)
	case wasm.OpF64Nearest:
		m.f64un(math.RoundToEven)
	case wasm.OpF64Sqrt:
		m.f64un(math.Sqrt)
	case wasm.OpF64Add:
		m.f64bin(func(a, b float64) float64 { return a + b })
	case wasm.OpF64Sub:
		m.f64bin(func(a, b float64) float64 { return a - b })
	case wasm.OpF64Mul:
		m.f64bin(func(a, b float64) float64 { return a * b })
	case wasm.OpF64Div:
		m.f64bin(func(a, b float64) float64 { return a / b })
	case wasm.OpF64Min:
		m.f64bin(math.Min)
	case wasm.OpF64Max:
		m.f64bin(math.Max)
	case wasm.OpF64Copysign:
		m.binary(func(a, b uint64) uint64 { return a&^f64SignBit | b&f64SignBit })

	// conversions
	case wasm.OpI32WrapI64:
		m.unary(func(a uint64) uint64 { return uint64(uint32(a)) })
	case wasm.OpI32TruncF32S:
		return m.unaryErr(func(a uint64) (uint64, error) { return truncS32(float64(f32of(a))) })
	case wasm.OpI32TruncF32U:
		return m.unaryErr(func(a uint64) (uint64, error) { return truncU32(float64(f32of(a))) })
	case wasm.OpI32TruncF64S:
		return m.unaryErr(func(a uint64) (uint64, error) { return truncS32(f64of(a)) })
	case wasm.OpI32TruncF64U:
		return m.unaryErr(func(a uint64) (uint64, error) { return truncU32(f64of(a)) })
	case wasm.OpI64ExtendI32S:
		m.unary(func(a uint64) uint64 { return uint64(int64(int32(a))) })
	case wasm.OpI64ExtendI32U:
		m.unary(func(a uint64) uint64 { return uint64(uint32(a)) })
	case wasm.OpI64TruncF32S:
		return m.unaryErr(func(a uint64) (uint64, error) { return truncS64(float64(f32of(a))) })
	case wasm.OpI64TruncF32U:
		return m.unaryErr(func(a uint64) (uint64, error) { return truncU64(float64(f32of(a))) })
	case wasm.OpI64TruncF64S:
		return m.unaryErr(func(a uint64) (uint64, error) { return truncS64(f64of(a)) })
	case wasm.OpI64TruncF64U:
		return m.unaryErr(func(a uint64) (uint64, error) { return truncU64(f64of(a)) })
	case wasm.OpF32ConvertI32S:
		m.unary(func(a uint64) uint64 { return f32bits(float32(int32(a))) })
	case wasm.OpF32ConvertI32U:
		m.unary(func(a uint64) uint64 { return f32bits(float32(uint32(a))) })
	case wasm.OpF32ConvertI64S:
		m.unary(func(a uint64) uint64 { return f32bits(float32(int64(a))) })
	case wasm.OpF32ConvertI64U:
		m.unary(func(a uint64) uint64 { return f32bits(float32(a)) })
	case wasm.OpF32DemoteF64:
		m.unary(func(a uint64) uint64 { return f32bits(float32(f64of(a))) })
	case wasm.OpF64ConvertI32S:
		m.unary(func(a uint64) uint64 { return f64bits(float64(int32(a))) })
	case wasm.OpF64ConvertI32U:
		m.unary(func(a uint64) uint64 { return f64bits(float64(uint32(a))) })
	case wasm.OpF64ConvertI64S:
		m.unary(func(a uint64) uint64 { return f64bits(float64(int64(a))) })
	case wasm.OpF64ConvertI64U:
		m.unary(func(a uint64) uint64 { return f64bits(float64(a)) })
	case wasm.OpF64PromoteF32:
		m.unary(func(a uint64) uint64 { return f64bits(float64(f32of(a))) })

	// Reinterpretations leave the slot bits unchanged.
	case wasm.OpI32ReinterpretF32, wasm.OpI64ReinterpretF64,
		wasm.OpF32ReinterpretI32, wasm.OpF64ReinterpretI64:
	}
	return nil
}

func (m *machine) unary(f func(a uint64) uint64) {
	top := len(m.stack) - 1
	m.stack[top] = f(m.stack[top])
}

func (m *machine) unaryErr(f func(a uint64) (uint64, error)) error {
	top := len(m.stack) - 1
	v, err := f(m.stack[top])
	if err != nil {
		return err
	}
	m.stack[top] = v
	return nil
}

func (m *machine) binary(f func(a, b uint64) uint64) {
	b := m.pop()
	top := len(m.stack) - 1
	m.stack[top] = f(m.stack[top], b)
}

func (m *machine) binaryErr(f func(a, b uint64) (uint64, error)) error {
	b := m.pop()
	top := len(m.stack) - 1
	v, err := f(m.stack[top], b)
	if err != nil {
		return err
	}
	m.stack[top] = v
	return nil
}

func (m *machine) i32bin(f func(a, b uint32) uint32) {
	m.binary(func(a, b uint64) uint64 { return uint64(f(uint32(a), uint32(b))) })
}

func (m *machine) i32cmp(f func(a, b uint32) bool) {
	m.binary(func(a, b uint64) uint64 { return b2u(f(uint32(a), uint32(b))) })
}

func (m *machine) i64cmp(f func(a, b uint64) bool) {
	m.binary(func(a, b uint64) uint64 { return b2u(f(a, b)) })
}

func (m *machine) f32un(f func(a float32) float32) {
	m.unary(func(a uint64) uint64 { return f32bits(f(f32of(a))) })
}

func (m *machine) f32bin(f func(a, b float32) float32) {
	m.binary(func(a, b uint64) uint64 { return f32bits(f(f32of(a), f32of(b))) })
}

func (m *machine) f32cmp(f func(a, b float32) bool) {
	m.binary(func(a, b uint64) uint64 { return b2u(f(f32of(a), f32of(b))) })
}

func (m *machine) f64un(f func(a float64) float64) {
	m.unary(func(a uint64) uint64 { return f64bits(f(f64of(a))) })
}

func (m *machine) f64bin(f func(a, b float64) float64) {
	m.binary(func(a, b uint64) uint64 { return f64bits(f(f64of(a), f64of(b))) })
}

func (m *machine) f64cmp(f func(a, b float64) bool) {
	m.binary(func(a, b uint64) uint64 { return b2u(f(f64of(a), f64of(b))) })
}

// The trunc helpers take the source already widened to float64, which is
// exact for f32 inputs. Bounds are on the truncated value.

func truncS32(f float64) (uint64, error) {
	if math.IsNaN(f) {
		return 0, trap(engine.TrapInvalidConversion)
	}
	t := math.Trunc(f)
	if t < math.MinInt32 || t > math.MaxInt32 {
		return 0, trap(engine.TrapIntegerOverflow)
	}
	return uint64(uint32(int32(t))), nil
}

func truncU32(f float64) (uint64, error) {
	if math.IsNaN(f) {
		return 0, trap(engine.TrapInvalidConversion)
	}
	t := math.Trunc(f)
	if t <= -1 || t > math.MaxUint32 {
		return 0, trap(engine.TrapIntegerOverflow)
	}
	return uint64(uint32(t)), nil
}

func truncS64(f float64) (uint64, error) {
	if math.IsNaN(f) {
		return 0, trap(engine.TrapInvalidConversion)
	}
	t := math.Trunc(f)
	if t < math.MinInt64 || t >= 1<<63 {
		return 0, trap(engine.TrapIntegerOverflow)
	}
	return uint64(int64(t)), nil
}

func truncU64(f float64) (uint64, error) {
	if math.IsNaN(f) {
		return 0, trap(engine.TrapInvalidConversion)
	}
	t := math.Trunc(f)
	if t <= -1 || t >= 1<<64 {
		return 0, trap(engine.TrapIntegerOverflow)
	}
	return uint64(t), nil
}
