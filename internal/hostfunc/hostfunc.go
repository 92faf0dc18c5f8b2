// Package hostfunc implements C12's host-function wrapping: turning an
// ordinary Go function into a wasm.HostFunction trampoline by reflecting
// over its signature once, at module-build time, rather than asking every
// caller to hand-write a []uint64-stack-shuffling adapter.
//
// Grounded on the teacher's own reflective host-function binding
// (hostfunc.ModuleBuilder.SetFunction/getSignature/getTypeOf in the
// example pack's hostfunc package): a Go func's reflect.Type is walked
// once to infer its Wasm FunctionType, exactly as getSignature does,
// generalized here to also recognize two optional leading parameters
// (context.Context, api.Module) and an optional trailing error result —
// the calling convention wazero's own api.GoModuleFunction documents.
package hostfunc

import (
	"context"
	"fmt"
	"reflect"

	"github.com/wasmine-go/wasmine/api"
	"github.com/wasmine-go/wasmine/internal/wasm"
)

var (
	ctxType    = reflect.TypeOf((*context.Context)(nil)).Elem()
	moduleType = reflect.TypeOf((*api.Module)(nil)).Elem()
	errType    = reflect.TypeOf((*error)(nil)).Elem()
)

// maxParams bounds the number of Wasm-visible parameters a wrapped host
// function may declare, matching the function-type parameter count this
// engine's signature machinery supports (internal/ssa.Signature has no
// fixed arity limit itself, but a sane upper bound catches a caller
// accidentally passing a variadic-looking func they didn't mean to
// expose).
const maxParams = 16

// New reflects over fn (which must be a Go func value) and returns a
// wasm.HostFunction trampoline plus fn's inferred wasm.FunctionType. fn's
// signature may start with a context.Context and/or an api.Module
// parameter (in that order) and may end its results with an error; every
// other parameter/result must be int32/uint32/int64/uint64/float32/
// float64, mapped to i32/i64/f32/f64 (§4.1's four value types — this
// engine does not expose externref/funcref to host functions).
func New(fn interface{}) (wasm.HostFunction, wasm.FunctionType, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return nil, wasm.FunctionType{}, fmt.Errorf("hostfunc: %T is not a function", fn)
	}
	t := v.Type()

	wantsCtx, wantsMod := false, false
	in := 0
	if in < t.NumIn() && t.In(in) == ctxType {
		wantsCtx = true
		in++
	}
	if in < t.NumIn() && t.In(in) == moduleType {
		wantsMod = true
		in++
	}

	paramCount := t.NumIn() - in
	if paramCount > maxParams {
		return nil, wasm.FunctionType{}, fmt.Errorf("hostfunc: %d params exceeds the %d-param limit", paramCount, maxParams)
	}

	params := make([]byte, paramCount)
	for i := 0; i < paramCount; i++ {
		vt, err := valueTypeOf(t.In(in + i).Kind())
		if err != nil {
			return nil, wasm.FunctionType{}, fmt.Errorf("hostfunc: param %d: %w", i, err)
		}
		params[i] = vt
	}

	hasErrorResult := t.NumOut() > 0 && t.Out(t.NumOut()-1) == errType
	resultCount := t.NumOut()
	if hasErrorResult {
		resultCount--
	}
	results := make([]byte, resultCount)
	for i := 0; i < resultCount; i++ {
		vt, err := valueTypeOf(t.Out(i).Kind())
		if err != nil {
			return nil, wasm.FunctionType{}, fmt.Errorf("hostfunc: result %d: %w", i, err)
		}
		results[i] = vt
	}

	tr := &trampoline{
		fn:             v,
		wantsCtx:       wantsCtx,
		wantsMod:       wantsMod,
		paramTypes:     append([]byte(nil), params...),
		resultTypes:    append([]byte(nil), results...),
		hasErrorResult: hasErrorResult,
	}
	return tr, wasm.FunctionType{Params: params, Results: results}, nil
}

// trampoline is the wasm.HostFunction produced by New.
type trampoline struct {
	fn             reflect.Value
	wantsCtx       bool
	wantsMod       bool
	paramTypes     []byte
	resultTypes    []byte
	hasErrorResult bool
}

// Call implements wasm.HostFunction.
func (tr *trampoline) Call(ctx context.Context, mod api.Module, stack []uint64) ([]uint64, error) {
	args := make([]reflect.Value, 0, len(tr.paramTypes)+2)
	if tr.wantsCtx {
		args = append(args, reflect.ValueOf(ctx))
	}
	if tr.wantsMod {
		args = append(args, reflect.ValueOf(mod))
	}
	for i, vt := range tr.paramTypes {
		args = append(args, decodeArg(vt, stack[i], tr.fn.Type().In(len(args))))
	}

	out := tr.fn.Call(args)

	if tr.hasErrorResult {
		if errVal := out[len(out)-1]; !errVal.IsNil() {
			return nil, errVal.Interface().(error)
		}
		out = out[:len(out)-1]
	}

	results := make([]uint64, len(out))
	for i, rv := range out {
		results[i] = encodeResult(tr.resultTypes[i], rv)
	}
	return results, nil
}

func valueTypeOf(kind reflect.Kind) (byte, error) {
	switch kind {
	case reflect.Int32, reflect.Uint32:
		return api.ValueTypeI32, nil
	case reflect.Int64, reflect.Uint64:
		return api.ValueTypeI64, nil
	case reflect.Float32:
		return api.ValueTypeF32, nil
	case reflect.Float64:
		return api.ValueTypeF64, nil
	default:
		return 0, fmt.Errorf("unsupported Go kind %s", kind)
	}
}

func decodeArg(vt byte, raw uint64, argType reflect.Type) reflect.Value {
	switch vt {
	case api.ValueTypeI32:
		if argType.Kind() == reflect.Int32 {
			return reflect.ValueOf(int32(uint32(raw))).Convert(argType)
		}
		return reflect.ValueOf(uint32(raw)).Convert(argType)
	case api.ValueTypeI64:
		if argType.Kind() == reflect.Int64 {
			return reflect.ValueOf(int64(raw)).Convert(argType)
		}
		return reflect.ValueOf(raw).Convert(argType)
	case api.ValueTypeF32:
		return reflect.ValueOf(api.DecodeF32(raw)).Convert(argType)
	case api.ValueTypeF64:
		return reflect.ValueOf(api.DecodeF64(raw)).Convert(argType)
	default:
		panic("BUG: unhandled value type in hostfunc decode")
	}
}

func encodeResult(vt byte, rv reflect.Value) uint64 {
	switch vt {
	case api.ValueTypeI32:
		if rv.Kind() == reflect.Int32 {
			return api.EncodeI32(int32(rv.Int()))
		}
		return uint64(uint32(rv.Uint()))
	case api.ValueTypeI64:
		if rv.Kind() == reflect.Int64 {
			return api.EncodeI64(rv.Int())
		}
		return rv.Uint()
	case api.ValueTypeF32:
		return api.EncodeF32(float32(rv.Float()))
	case api.ValueTypeF64:
		return api.EncodeF64(rv.Float())
	default:
		panic("BUG: unhandled value type in hostfunc encode")
	}
}
