package interpreter

import (
	"math"
	"math/bits"

	"github.com/wasmine-go/wasmine/internal/ssa"
)

// mask truncates v to t's bit width: the interpreter always keeps i32
// values zero-extended in their 64-bit register slot, so every i32 op must
// mask its result back down (otherwise a later read that expects a clean
// unsigned 32-bit value would see garbage high bits).
func mask(t ssa.Type, v uint64) uint64 {
	if t == ssa.TypeI32 {
		return v & 0xffffffff
	}
	return v
}

func shiftMask(t ssa.Type) uint64 {
	if t == ssa.TypeI32 {
		return 31
	}
	return 63
}

func sdiv(t ssa.Type, x, y uint64) int64 {
	if y == 0 {
		trap(ssa.TrapReasonIntegerDivideByZero)
	}
	if t == ssa.TypeI32 {
		xs, ys := int32(x), int32(y)
		if xs == math.MinInt32 && ys == -1 {
			trap(ssa.TrapReasonIntegerOverflow)
		}
		return int64(xs / ys)
	}
	xs, ys := int64(x), int64(y)
	if xs == math.MinInt64 && ys == -1 {
		trap(ssa.TrapReasonIntegerOverflow)
	}
	return xs / ys
}

func udiv(t ssa.Type, x, y uint64) uint64 {
	if y == 0 {
		trap(ssa.TrapReasonIntegerDivideByZero)
	}
	if t == ssa.TypeI32 {
		return uint64(uint32(x) / uint32(y))
	}
	return x / y
}

func srem(t ssa.Type, x, y uint64) int64 {
	if y == 0 {
		trap(ssa.TrapReasonIntegerDivideByZero)
	}
	if t == ssa.TypeI32 {
		xs, ys := int32(x), int32(y)
		if xs == math.MinInt32 && ys == -1 {
			return 0
		}
		return int64(xs % ys)
	}
	xs, ys := int64(x), int64(y)
	if xs == math.MinInt64 && ys == -1 {
		return 0
	}
	return xs % ys
}

func urem(t ssa.Type, x, y uint64) uint64 {
	if y == 0 {
		trap(ssa.TrapReasonIntegerDivideByZero)
	}
	if t == ssa.TypeI32 {
		return uint64(uint32(x) % uint32(y))
	}
	return x % y
}

func sshr(t ssa.Type, x, y uint64) int64 {
	amt := y & shiftMask(t)
	if t == ssa.TypeI32 {
		return int64(int32(x) >> amt)
	}
	return int64(x) >> amt
}

func rotl(t ssa.Type, x, y uint64) uint64 {
	if t == ssa.TypeI32 {
		return uint64(bits.RotateLeft32(uint32(x), int(y&31)))
	}
	return bits.RotateLeft64(x, int(y&63))
}

func rotr(t ssa.Type, x, y uint64) uint64 {
	if t == ssa.TypeI32 {
		return uint64(bits.RotateLeft32(uint32(x), -int(y&31)))
	}
	return bits.RotateLeft64(x, -int(y&63))
}

func clz(t ssa.Type, x uint64) uint64 {
	if t == ssa.TypeI32 {
		return uint64(bits.LeadingZeros32(uint32(x)))
	}
	return uint64(bits.LeadingZeros64(x))
}

func ctz(t ssa.Type, x uint64) uint64 {
	if t == ssa.TypeI32 {
		if uint32(x) == 0 {
			return 32
		}
		return uint64(bits.TrailingZeros32(uint32(x)))
	}
	if x == 0 {
		return 64
	}
	return uint64(bits.TrailingZeros64(x))
}

func evalIcmp(c ssa.IntegerCmpCond, t ssa.Type, x, y uint64) bool {
	if t == ssa.TypeI32 {
		x, y = x&0xffffffff, y&0xffffffff
	}
	switch c {
	case ssa.IntegerCmpCondEqual:
		return x == y
	case ssa.IntegerCmpCondNotEqual:
		return x != y
	case ssa.IntegerCmpCondUnsignedLessThan:
		return x < y
	case ssa.IntegerCmpCondUnsignedLessThanOrEqual:
		return x <= y
	case ssa.IntegerCmpCondUnsignedGreaterThan:
		return x > y
	case ssa.IntegerCmpCondUnsignedGreaterThanOrEqual:
		return x >= y
	}
	var xs, ys int64
	if t == ssa.TypeI32 {
		xs, ys = int64(int32(x)), int64(int32(y))
	} else {
		xs, ys = int64(x), int64(y)
	}
	switch c {
	case ssa.IntegerCmpCondSignedLessThan:
		return xs < ys
	case ssa.IntegerCmpCondSignedLessThanOrEqual:
		return xs <= ys
	case ssa.IntegerCmpCondSignedGreaterThan:
		return xs > ys
	case ssa.IntegerCmpCondSignedGreaterThanOrEqual:
		return xs >= ys
	}
	panic("BUG: unhandled IntegerCmpCond")
}

func toFloat(t ssa.Type, bits uint64) float64 {
	if t == ssa.TypeF32 {
		return float64(math.Float32frombits(uint32(bits)))
	}
	return math.Float64frombits(bits)
}

func fromFloat(t ssa.Type, f float64) uint64 {
	if t == ssa.TypeF32 {
		return uint64(math.Float32bits(float32(f)))
	}
	return math.Float64bits(f)
}

func evalFcmp(c ssa.FloatCmpCond, t ssa.Type, xb, yb uint64) bool {
	x, y := toFloat(t, xb), toFloat(t, yb)
	switch c {
	case ssa.FloatCmpCondEqual:
		return x == y
	case ssa.FloatCmpCondNotEqual:
		return x != y
	case ssa.FloatCmpCondLessThan:
		return x < y
	case ssa.FloatCmpCondLessThanOrEqual:
		return x <= y
	case ssa.FloatCmpCondGreaterThan:
		return x > y
	case ssa.FloatCmpCondGreaterThanOrEqual:
		return x >= y
	}
	panic("BUG: unhandled FloatCmpCond")
}

func fbin(t ssa.Type, xb, yb uint64, f func(a, b float64) float64) uint64 {
	return fromFloat(t, f(toFloat(t, xb), toFloat(t, yb)))
}

func funary(t ssa.Type, xb uint64, f func(a float64) float64) uint64 {
	return fromFloat(t, f(toFloat(t, xb)))
}

// wasmFmin/wasmFmax implement Wasm's min/max, which differ from Go's
// math.Min/Max on ±0 and NaN: any NaN operand propagates a NaN, and
// between +0 and -0, min picks -0 and max picks +0.
func wasmFmin(a, b float64) float64 {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.NaN()
	}
	if a == 0 && b == 0 {
		if math.Signbit(a) {
			return a
		}
		return b
	}
	return math.Min(a, b)
}

func wasmFmax(a, b float64) float64 {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.NaN()
	}
	if a == 0 && b == 0 {
		if math.Signbit(a) {
			return b
		}
		return a
	}
	return math.Max(a, b)
}

func extend(x uint64, from, to byte, signed bool) uint64 {
	var v uint64
	switch from {
	case 8:
		if signed {
			v = uint64(int64(int8(x)))
		} else {
			v = uint64(uint8(x))
		}
	case 16:
		if signed {
			v = uint64(int64(int16(x)))
		} else {
			v = uint64(uint16(x))
		}
	case 32:
		if signed {
			v = uint64(int64(int32(x)))
		} else {
			v = uint64(uint32(x))
		}
	default:
		panic("BUG: unsupported extend width")
	}
	if to == 32 {
		return v & 0xffffffff
	}
	return v
}

func evalFcvtFromInt(op ssa.Opcode, srcTyp, dstTyp ssa.Type, x uint64) uint64 {
	signed := op == ssa.OpcodeFcvtFromSint
	var f float64
	if signed {
		if srcTyp == ssa.TypeI32 {
			f = float64(int32(x))
		} else {
			f = float64(int64(x))
		}
	} else {
		if srcTyp == ssa.TypeI32 {
			f = float64(uint32(x))
		} else {
			f = float64(x)
		}
	}
	return fromFloat(dstTyp, f)
}

func evalFcvtToInt(op ssa.Opcode, srcTyp, dstTyp ssa.Type, xb uint64) uint64 {
	f := toFloat(srcTyp, xb)
	signed := op == ssa.OpcodeFcvtToSint || op == ssa.OpcodeFcvtToSintSat
	sat := op == ssa.OpcodeFcvtToSintSat || op == ssa.OpcodeFcvtToUintSat

	if math.IsNaN(f) {
		if sat {
			return 0
		}
		trap(ssa.TrapReasonIntegerOverflow)
	}

	trunc := math.Trunc(f)
	if dstTyp == ssa.TypeI32 {
		if signed {
			if trunc < math.MinInt32 || trunc > math.MaxInt32 {
				if sat {
					return saturateI32(trunc, true)
				}
				trap(ssa.TrapReasonIntegerOverflow)
			}
			return uint64(uint32(int32(trunc)))
		}
		if trunc < 0 || trunc > math.MaxUint32 {
			if sat {
				return saturateI32(trunc, false)
			}
			trap(ssa.TrapReasonIntegerOverflow)
		}
		return uint64(uint32(trunc))
	}
	if signed {
		if trunc < math.MinInt64 || trunc >= math.MaxInt64 {
			if sat {
				return saturateI64(trunc, true)
			}
			trap(ssa.TrapReasonIntegerOverflow)
		}
		return uint64(int64(trunc))
	}
	if trunc < 0 || trunc >= math.MaxUint64 {
		if sat {
			return saturateI64(trunc, false)
		}
		trap(ssa.TrapReasonIntegerOverflow)
	}
	return uint64(trunc)
}

func saturateI32(f float64, signed bool) uint64 {
	switch {
	case math.IsNaN(f):
		return 0
	case signed && f < 0, !signed && f < 0:
		if signed {
			return uint64(uint32(int32(math.MinInt32)))
		}
		return 0
	case signed:
		return uint64(uint32(int32(math.MaxInt32)))
	default:
		return uint64(uint32(math.MaxUint32))
	}
}

func saturateI64(f float64, signed bool) uint64 {
	switch {
	case math.IsNaN(f):
		return 0
	case f < 0:
		if signed {
			return uint64(int64(math.MinInt64))
		}
		return 0
	case signed:
		return uint64(int64(math.MaxInt64))
	default:
		return math.MaxUint64
	}
}
