// Package interpreter implements C6's tree-walking engine: it compiles a
// module by lowering every local function body to SSA IR once (C4) and
// retaining the ssa.Builder that holds it, then executes a call by walking
// that IR's basic blocks and instructions directly, maintaining a flat
// per-activation register file rather than generating any machine code.
//
// This is a deliberate, documented simplification of the specification's
// native-linking engine vocabulary (init/set_symbol_addr/
// get_internal_function_ptr/...): see internal/engine's package doc. The
// payoff is that the same ssa.Builder IR internal/lower already produces
// is consumed completely literally here — no separate bytecode format, no
// register allocator, no machine code buffer.
package interpreter

import (
	"context"
	"fmt"
	"math"
	"math/bits"

	"go.uber.org/zap"

	"github.com/wasmine-go/wasmine/internal/abi"
	"github.com/wasmine-go/wasmine/internal/engine"
	"github.com/wasmine-go/wasmine/internal/lower"
	"github.com/wasmine-go/wasmine/internal/rt"
	"github.com/wasmine-go/wasmine/internal/ssa"
	"github.com/wasmine-go/wasmine/internal/wasm"
)

// Engine is the module-independent compiler: CompileModule lowers every
// local function body and hands back a Code ready for repeated
// instantiation.
type Engine struct {
	log *zap.Logger

	// MaxCallDepth bounds Go-stack recursion through nested Wasm/host
	// calls before a TrapReasonExhaustion is raised (§7 "Exhaustion"), the
	// interpreter's stand-in for the native ExecCtxStackBoundOffset check
	// a compiled backend would do by comparing a real stack pointer.
	MaxCallDepth int
}

// New returns an Engine. A nil logger installs zap's no-op logger, the
// same default the teacher's own server packages fall back to when the
// caller doesn't care about structured output.
func New(log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{log: log, MaxCallDepth: 8192}
}

// CompileModule implements engine.Engine.
func (e *Engine) CompileModule(ctx context.Context, m *wasm.Module, src []byte) (engine.Code, error) {
	funcs := make([]*engine.CompiledFunction, len(m.FunctionSection))
	for idx := range m.FunctionSection {
		fn := &m.FunctionSection[idx]
		if fn.Kind != wasm.FunctionKindUnparsed {
			continue
		}
		b := ssa.NewBuilder()
		lm := lower.NewModule(b, m)
		sig := lm.SignatureFor(fn.TypeIndex)
		b.Init(sig)

		body := src[fn.Code.Offset : fn.Code.Offset+fn.Code.Size]
		lowerer := lower.NewFunctionLowerer(b, lm, wasm.Index(idx))
		if err := lowerer.Lower(body, fn.Code.LocalTypes); err != nil {
			_, name := m.FunctionDefinition(wasm.Index(idx))
			return nil, fmt.Errorf("compiling function %d (%s): %w", idx, name, err)
		}

		_, name := m.FunctionDefinition(wasm.Index(idx))
		funcs[idx] = &engine.CompiledFunction{Builder: b, Signature: sig, Index: wasm.Index(idx), DebugName: name}
		e.log.Debug("lowered function", zap.Int("index", idx), zap.String("name", name), zap.Int("blocks", b.Blocks()))
	}
	return &code{m: m, funcs: funcs, eng: e}, nil
}

// code is the module-level compiled artifact (engine.Code).
type code struct {
	m     *wasm.Module
	funcs []*engine.CompiledFunction
	eng   *Engine
}

func (c *code) NewModuleEngine(inst *rt.Instance) engine.ModuleEngine {
	return &moduleEngine{code: c, inst: inst, log: c.eng.log}
}

// moduleEngine is the per-instance engine.ModuleEngine.
type moduleEngine struct {
	code *code
	inst *rt.Instance
	log  *zap.Logger
}

func (me *moduleEngine) Call(ctx context.Context, funcIdx wasm.Index, params []uint64) ([]uint64, error) {
	return me.callDepth(ctx, funcIdx, params, 0)
}

func (me *moduleEngine) callDepth(ctx context.Context, funcIdx wasm.Index, params []uint64, depth int) (results []uint64, err error) {
	if depth >= me.code.eng.MaxCallDepth {
		return nil, &engine.Trap{Reason: ssa.TrapReasonExhaustion, FuncIndex: funcIdx}
	}

	fn := &me.code.m.FunctionSection[funcIdx]
	switch fn.Kind {
	case wasm.FunctionKindImport:
		call := me.inst.ImportedFuncs[funcIdx]
		if call == nil {
			return nil, fmt.Errorf("function %d: unresolved import", funcIdx)
		}
		return call(ctx, params)
	case wasm.FunctionKindHost:
		return fn.Code.HostFn.Call(ctx, me.inst.PublicModule, params)
	}

	cf := me.code.funcs[funcIdx]
	if cf == nil {
		return nil, fmt.Errorf("function %d has no compiled body", funcIdx)
	}

	defer func() {
		if r := recover(); r != nil {
			t, ok := r.(*engine.Trap)
			if !ok {
				panic(r)
			}
			t.FuncIndex = funcIdx
			if t.DebugName == "" {
				t.DebugName = cf.DebugName
			}
			err = t
			results = nil
		}
	}()

	ex := &execution{me: me, depth: depth, ctx: ctx}
	return ex.run(cf, params), nil
}

// trap aborts the current call via panic, caught by callDepth's recover.
// Modeled on the teacher's own setjmp-style "trap dispatch is synchronous"
// design (§5 "Blocking and suspension"): panic/recover is Go's equivalent
// unwind mechanism, scoped to exactly one call frame's boundary.
func trap(reason ssa.TrapReason) {
	panic(&engine.Trap{Reason: reason})
}

// execution is one activation record: the frame plus enough of the call's
// ambient state (the instance, recursion depth) to service builtins and
// nested calls.
type execution struct {
	me    *moduleEngine
	depth int
	ctx   context.Context
}

func (ex *execution) run(cf *engine.CompiledFunction, params []uint64) []uint64 {
	b := cf.Builder
	fr := newFrame(len(b.ValueRefCounts()))

	blk := b.BlockIteratorBegin()
	if blk == nil || !blk.EntryBlock() {
		panic(fmt.Sprintf("BUG: function %d has no entry block", cf.Index))
	}

	// entry block params are [execCtx, moduleCtx, param0, param1, ...]
	// (internal/lower.Lowerer.Lower). execCtx/moduleCtx carry no real
	// numeric value in this engine (see values.go's tag model); only
	// their identity as the Load pattern's ptr operand matters.
	execCtxVal := blk.Param(0)
	globalsBaseVal := blk.Param(1)
	_ = globalsBaseVal
	for i, p := range params {
		fr.set(blk.Param(2+i), p)
	}

	return ex.runBlock(fr, blk, execCtxVal)
}

// runBlock executes blk and, on a normal (non-trapping) path, follows Jump/
// Brnz/Brz/BrTable to the next block, looping until a Return is reached.
func (ex *execution) runBlock(fr *frame, blk ssa.BasicBlock, execCtxVal ssa.Value) []uint64 {
	for {
		instr := blk.Root()
		for instr != nil {
			next, results, done := ex.step(fr, instr, execCtxVal)
			if done {
				return results
			}
			if next != nil {
				blk = next
				break
			}
			instr = instr.Next()
		}
	}
}

// step executes one instruction. It returns a non-nil next block if
// control transferred (the caller resumes at blk.Root()), a non-nil
// results slice with done=true if the function returned, or
// (nil, nil, false) to continue to instr.Next() within the same block.
func (ex *execution) step(fr *frame, instr *ssa.Instruction, execCtxVal ssa.Value) (next ssa.BasicBlock, results []uint64, done bool) {
	op := instr.Opcode()
	switch op {
	case ssa.OpcodeJump:
		vs, _, target := instr.BranchData()
		ex.passArgs(fr, target, vs)
		return target, nil, false

	case ssa.OpcodeBrnz:
		cond, vs, target := instr.BranchData()
		if fr.get(cond) != 0 {
			ex.passArgs(fr, target, vs)
			return target, nil, false
		}
		return nil, nil, false

	case ssa.OpcodeBrz:
		cond, vs, target := instr.BranchData()
		if fr.get(cond) == 0 {
			ex.passArgs(fr, target, vs)
			return target, nil, false
		}
		return nil, nil, false

	case ssa.OpcodeBrTable:
		idx, targets := instr.BrTableData()
		i := fr.get(idx)
		dflt := uint64(len(targets) - 1)
		if i >= dflt {
			i = dflt
		}
		return targets[i], nil, false

	case ssa.OpcodeReturn:
		vs := instr.ReturnVals()
		out := make([]uint64, len(vs))
		for i, v := range vs {
			out[i] = fr.get(v)
		}
		return nil, out, true

	case ssa.OpcodeExitWithCode:
		_, code := instr.ExitWithCodeData()
		trap(code)
		return nil, nil, false

	case ssa.OpcodeExitIfTrueWithCode:
		_, c, code := instr.ExitIfTrueWithCodeData()
		if fr.get(c) != 0 {
			trap(code)
		}
		return nil, nil, false

	default:
		ex.evalOne(fr, instr, execCtxVal)
		return nil, nil, false
	}
}

func (ex *execution) passArgs(fr *frame, target ssa.BasicBlock, vs []ssa.Value) {
	// vs are evaluated against the current frame's registers before any
	// are written into target's params, matching simultaneous-assignment
	// phi semantics (a swap like br (x, y) -> (y, x) must not clobber).
	vals := make([]uint64, len(vs))
	tags := make([]addrTag, len(vs))
	for i, v := range vs {
		vals[i] = fr.get(v)
		tags[i] = fr.tag(v)
	}
	for i := 0; i < target.Params(); i++ {
		p := target.Param(i)
		fr.set(p, vals[i])
		fr.setTag(p, tags[i])
	}
}

// evalOne executes any non-terminator instruction, writing its result (if
// any) into the frame.
func (ex *execution) evalOne(fr *frame, instr *ssa.Instruction, execCtxVal ssa.Value) {
	op := instr.Opcode()

	if instr.Constant() {
		fr.set(instr.Return(), instr.ConstantVal())
		return
	}

	switch op {
	case ssa.OpcodeLoad:
		ptr, offset, typ := instr.LoadData()
		ex.evalLoad(fr, instr.Return(), ptr, offset, typ, execCtxVal)
		return
	case ssa.OpcodeUload8, ssa.OpcodeSload8, ssa.OpcodeUload16, ssa.OpcodeSload16, ssa.OpcodeUload32, ssa.OpcodeSload32:
		ptr, offset, _ := instr.LoadData()
		ex.evalExtLoad(fr, instr, ptr, offset, execCtxVal)
		return
	case ssa.OpcodeStore, ssa.OpcodeIstore8, ssa.OpcodeIstore16, ssa.OpcodeIstore32:
		val, ptr, offset, bits := instr.StoreData()
		ex.evalStore(fr, val, ptr, offset, bits, execCtxVal)
		return
	case ssa.OpcodeCall:
		ex.evalCall(fr, instr)
		return
	case ssa.OpcodeCallIndirect:
		ex.evalCallIndirect(fr, instr)
		return
	}

	v1, v2, v3, _ := instr.Args()
	result := instr.Return()
	resTyp := result.Type()

	switch op {
	case ssa.OpcodeIadd:
		ex.evalAddrAwareAdd(fr, result, v1, v2, resTyp)
	case ssa.OpcodeIsub:
		fr.set(result, mask(resTyp, fr.get(v1)-fr.get(v2)))
	case ssa.OpcodeImul:
		fr.set(result, mask(resTyp, fr.get(v1)*fr.get(v2)))
	case ssa.OpcodeSdiv:
		fr.set(result, mask(resTyp, uint64(sdiv(resTyp, fr.get(v1), fr.get(v2)))))
	case ssa.OpcodeUdiv:
		fr.set(result, udiv(resTyp, fr.get(v1), fr.get(v2)))
	case ssa.OpcodeSrem:
		fr.set(result, mask(resTyp, uint64(srem(resTyp, fr.get(v1), fr.get(v2)))))
	case ssa.OpcodeUrem:
		fr.set(result, urem(resTyp, fr.get(v1), fr.get(v2)))
	case ssa.OpcodeBand:
		fr.set(result, fr.get(v1)&fr.get(v2))
	case ssa.OpcodeBor:
		fr.set(result, fr.get(v1)|fr.get(v2))
	case ssa.OpcodeBxor:
		fr.set(result, fr.get(v1)^fr.get(v2))
	case ssa.OpcodeIshl:
		fr.set(result, mask(resTyp, fr.get(v1)<<(fr.get(v2)&shiftMask(resTyp))))
	case ssa.OpcodeUshr:
		fr.set(result, mask(resTyp, fr.get(v1)>>(fr.get(v2)&shiftMask(resTyp))))
	case ssa.OpcodeSshr:
		fr.set(result, mask(resTyp, uint64(sshr(resTyp, fr.get(v1), fr.get(v2)))))
	case ssa.OpcodeRotl:
		fr.set(result, rotl(resTyp, fr.get(v1), fr.get(v2)))
	case ssa.OpcodeRotr:
		fr.set(result, rotr(resTyp, fr.get(v1), fr.get(v2)))
	case ssa.OpcodeClz:
		fr.set(result, clz(v1.Type(), fr.get(v1)))
	case ssa.OpcodeCtz:
		fr.set(result, ctz(v1.Type(), fr.get(v1)))
	case ssa.OpcodePopcnt:
		fr.set(result, uint64(bits.OnesCount64(fr.get(v1))))
	case ssa.OpcodeIcmp:
		x, y, c := instr.IcmpData()
		fr.set(result, b2i(evalIcmp(c, x.Type(), fr.get(x), fr.get(y))))
	case ssa.OpcodeFcmp:
		x, y, c := instr.FcmpData()
		fr.set(result, b2i(evalFcmp(c, x.Type(), fr.get(x), fr.get(y))))
	case ssa.OpcodeSelect:
		c, x, y := instr.SelectData()
		if fr.get(c) != 0 {
			fr.set(result, fr.get(x))
			fr.setTag(result, fr.tag(x))
		} else {
			fr.set(result, fr.get(y))
			fr.setTag(result, fr.tag(y))
		}
	case ssa.OpcodeIreduce:
		fr.set(result, mask(resTyp, fr.get(v1)))
	case ssa.OpcodeSExtend, ssa.OpcodeUExtend:
		from, to, signed := instr.ExtendData()
		fr.set(result, extend(fr.get(v1), from, to, signed))
	case ssa.OpcodeBitcast:
		fr.set(result, fr.get(v1))
	case ssa.OpcodeFdemote:
		fr.set(result, uint64(math.Float32bits(float32(math.Float64frombits(fr.get(v1))))))
	case ssa.OpcodeFpromote:
		fr.set(result, math.Float64bits(float64(math.Float32frombits(uint32(fr.get(v1))))))
	case ssa.OpcodeFcvtFromSint, ssa.OpcodeFcvtFromUint:
		fr.set(result, evalFcvtFromInt(op, v1.Type(), resTyp, fr.get(v1)))
	case ssa.OpcodeFcvtToSint, ssa.OpcodeFcvtToUint, ssa.OpcodeFcvtToSintSat, ssa.OpcodeFcvtToUintSat:
		fr.set(result, evalFcvtToInt(op, v1.Type(), resTyp, fr.get(v1)))
	case ssa.OpcodeFadd:
		fr.set(result, fbin(resTyp, fr.get(v1), fr.get(v2), func(a, b float64) float64 { return a + b }))
	case ssa.OpcodeFsub:
		fr.set(result, fbin(resTyp, fr.get(v1), fr.get(v2), func(a, b float64) float64 { return a - b }))
	case ssa.OpcodeFmul:
		fr.set(result, fbin(resTyp, fr.get(v1), fr.get(v2), func(a, b float64) float64 { return a * b }))
	case ssa.OpcodeFdiv:
		fr.set(result, fbin(resTyp, fr.get(v1), fr.get(v2), func(a, b float64) float64 { return a / b }))
	case ssa.OpcodeFmin:
		fr.set(result, fbin(resTyp, fr.get(v1), fr.get(v2), wasmFmin))
	case ssa.OpcodeFmax:
		fr.set(result, fbin(resTyp, fr.get(v1), fr.get(v2), wasmFmax))
	case ssa.OpcodeFcopysign:
		fr.set(result, fbin(resTyp, fr.get(v1), fr.get(v2), math.Copysign))
	case ssa.OpcodeFabs:
		fr.set(result, funary(resTyp, fr.get(v1), math.Abs))
	case ssa.OpcodeFneg:
		fr.set(result, funary(resTyp, fr.get(v1), func(a float64) float64 { return -a }))
	case ssa.OpcodeCeil:
		fr.set(result, funary(resTyp, fr.get(v1), math.Ceil))
	case ssa.OpcodeFloor:
		fr.set(result, funary(resTyp, fr.get(v1), math.Floor))
	case ssa.OpcodeTrunc:
		fr.set(result, funary(resTyp, fr.get(v1), math.Trunc))
	case ssa.OpcodeNearest:
		fr.set(result, funary(resTyp, fr.get(v1), math.RoundToEven))
	case ssa.OpcodeSqrt:
		fr.set(result, funary(resTyp, fr.get(v1), math.Sqrt))
	default:
		_ = v3
		panic(fmt.Sprintf("BUG: interpreter has no handler for opcode %s", op))
	}
}

func b2i(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
