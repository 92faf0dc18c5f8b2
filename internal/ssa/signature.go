package ssa

import "fmt"

// SignatureID uniquely identifies a Signature within a compiled function.
type SignatureID uint32

// String implements fmt.Stringer.
func (s SignatureID) String() string { return fmt.Sprintf("sig%d", s) }

// Signature is the parameter/result shape referenced by OpcodeCall and
// OpcodeCallIndirect. It mirrors a Wasm function type (§4.3 "function
// signature") but is declared once per compiled function via
// Builder.DeclareSignature and referenced by SignatureID thereafter, the
// same way a real backend keys call sites off an interned type.
type Signature struct {
	ID      SignatureID
	Params  []Type
	Results []Type

	// used is set once an OpcodeCall/OpcodeCallIndirect references this
	// signature, so Builder.UsedSignatures can skip declared-but-dead ones.
	used bool
}

// String implements fmt.Stringer.
func (s *Signature) String() string {
	return fmt.Sprintf("%s: %v -> %v", s.ID, s.Params, s.Results)
}

// FuncRef identifies a callee in a direct call (OpcodeCall): the target's
// function index in the module's combined function index space (§3).
type FuncRef uint32

// String implements fmt.Stringer.
func (r FuncRef) String() string { return fmt.Sprintf("f%d", uint32(r)) }

// IntegerCmpCond is the condition code for OpcodeIcmp (Wasm's i32.eq,
// i32.lt_s, i32.lt_u, etc. all lower to Icmp with a condition here).
type IntegerCmpCond byte

const (
	IntegerCmpCondEqual IntegerCmpCond = iota
	IntegerCmpCondNotEqual
	IntegerCmpCondSignedLessThan
	IntegerCmpCondSignedGreaterThanOrEqual
	IntegerCmpCondSignedGreaterThan
	IntegerCmpCondSignedLessThanOrEqual
	IntegerCmpCondUnsignedLessThan
	IntegerCmpCondUnsignedGreaterThanOrEqual
	IntegerCmpCondUnsignedGreaterThan
	IntegerCmpCondUnsignedLessThanOrEqual
)

// String implements fmt.Stringer.
func (c IntegerCmpCond) String() string {
	switch c {
	case IntegerCmpCondEqual:
		return "eq"
	case IntegerCmpCondNotEqual:
		return "neq"
	case IntegerCmpCondSignedLessThan:
		return "lt_s"
	case IntegerCmpCondSignedGreaterThanOrEqual:
		return "ge_s"
	case IntegerCmpCondSignedGreaterThan:
		return "gt_s"
	case IntegerCmpCondSignedLessThanOrEqual:
		return "le_s"
	case IntegerCmpCondUnsignedLessThan:
		return "lt_u"
	case IntegerCmpCondUnsignedGreaterThanOrEqual:
		return "ge_u"
	case IntegerCmpCondUnsignedGreaterThan:
		return "gt_u"
	case IntegerCmpCondUnsignedLessThanOrEqual:
		return "le_u"
	default:
		return "unknown"
	}
}

// FloatCmpCond is the condition code for OpcodeFcmp.
type FloatCmpCond byte

const (
	FloatCmpCondEqual FloatCmpCond = iota
	FloatCmpCondNotEqual
	FloatCmpCondLessThan
	FloatCmpCondLessThanOrEqual
	FloatCmpCondGreaterThan
	FloatCmpCondGreaterThanOrEqual
)

// String implements fmt.Stringer.
func (c FloatCmpCond) String() string {
	switch c {
	case FloatCmpCondEqual:
		return "eq"
	case FloatCmpCondNotEqual:
		return "neq"
	case FloatCmpCondLessThan:
		return "lt"
	case FloatCmpCondLessThanOrEqual:
		return "le"
	case FloatCmpCondGreaterThan:
		return "gt"
	case FloatCmpCondGreaterThanOrEqual:
		return "ge"
	default:
		return "unknown"
	}
}

// VecLane names the lane width of a 128-bit vector operand. SIMD is a
// Non-goal (spec.md §1); this exists only so instructions.go's vector
// opcodes, kept for Format/debugging completeness, type-check.
type VecLane byte

const (
	VecLaneI8x16 VecLane = iota
	VecLaneI16x8
	VecLaneI32x4
	VecLaneI64x2
	VecLaneF32x4
	VecLaneF64x2
)

// String implements fmt.Stringer.
func (l VecLane) String() string {
	switch l {
	case VecLaneI8x16:
		return "i8x16"
	case VecLaneI16x8:
		return "i16x8"
	case VecLaneI32x4:
		return "i32x4"
	case VecLaneI64x2:
		return "i64x2"
	case VecLaneF32x4:
		return "f32x4"
	case VecLaneF64x2:
		return "f64x2"
	default:
		return "unknown"
	}
}
