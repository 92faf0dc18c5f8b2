package binary

import (
	"fmt"

	"github.com/wasmine-go/wasmine/internal/reader"
	"github.com/wasmine-go/wasmine/internal/wasm"
)

// Opcodes recognized inside a constant initializer expression. Only a
// handful of opcodes are legal here; anything else is a validation error
// (§4.2 "active data/element segments have a constant i32 offset expression
// resolvable against imported constants").
const (
	opI32Const  = 0x41
	opI64Const  = 0x42
	opF32Const  = 0x43
	opF64Const  = 0x44
	opGlobalGet = 0x23
	opRefNull   = 0xd0
	opRefFunc   = 0xd2
	opEnd       = 0x0b
)

// decodeConstExpr decodes a single constant expression terminated by `end`.
func decodeConstExpr(r *reader.Reader) (wasm.ConstExpr, error) {
	op, err := r.Byte()
	if err != nil {
		return wasm.ConstExpr{}, err
	}
	var e wasm.ConstExpr
	switch op {
	case opI32Const:
		v, err := r.VarInt32()
		if err != nil {
			return e, err
		}
		e = wasm.ConstExpr{Kind: wasm.ConstExprI32Const, I32: v}
	case opI64Const:
		v, err := r.VarInt64()
		if err != nil {
			return e, err
		}
		e = wasm.ConstExpr{Kind: wasm.ConstExprI64Const, I64: v}
	case opF32Const:
		v, err := r.F32()
		if err != nil {
			return e, err
		}
		e = wasm.ConstExpr{Kind: wasm.ConstExprF32Const, F32: v}
	case opF64Const:
		v, err := r.F64()
		if err != nil {
			return e, err
		}
		e = wasm.ConstExpr{Kind: wasm.ConstExprF64Const, F64: v}
	case opGlobalGet:
		idx, err := r.VarUint32()
		if err != nil {
			return e, err
		}
		e = wasm.ConstExpr{Kind: wasm.ConstExprGlobalGet, Index: idx}
	case opRefNull:
		if _, err := decodeRefType(r); err != nil {
			return e, err
		}
		e = wasm.ConstExpr{Kind: wasm.ConstExprRefNull}
	case opRefFunc:
		idx, err := r.VarUint32()
		if err != nil {
			return e, err
		}
		e = wasm.ConstExpr{Kind: wasm.ConstExprRefFunc, Index: idx}
	default:
		return e, fmt.Errorf("%w: opcode %#x is not valid in a constant expression (offset %d)",
			wasm.ErrNotConstant, op, r.Offset())
	}
	end, err := r.Byte()
	if err != nil {
		return e, err
	}
	if end != opEnd {
		return e, fmt.Errorf("%w: constant expression missing end marker at offset %d", wasm.ErrNotConstant, r.Offset())
	}
	return e, nil
}
