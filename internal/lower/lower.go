// Package lower implements C4, the function lowerer: translating a single
// Wasm function body's bytecode into the SSA IR (internal/ssa) a backend
// can consume. It follows the same shape as a typical structured-control-
// flow-to-CFG pass — a parser stack of operand values with a "stash" floor
// per active label so a construct can never pop values belonging to its
// enclosing scope, a label stack mirroring Wasm's control-frame stack, and
// a poison flag that marks code following an unconditional transfer as
// unreachable so a later, first real problem is what a caller sees, not a
// cascade of stack-underflow noise (§4.4).
//
// Control-flow merges (the result of a block/loop/if, and the values
// flowing into a loop's re-entry) are modeled as explicit basic-block
// parameters, matching how internal/ssa's block-argument form of SSA
// already represents phis: a block declares its parameters up front, and
// every predecessor branch supplies matching arguments. Wasm locals use
// the builder's other, automatic mechanism instead (DefineVariable /
// FindValue), which places phis for a local lazily, only where dataflow
// actually requires them.
package lower

import (
	"fmt"

	"github.com/wasmine-go/wasmine/api"
	"github.com/wasmine-go/wasmine/internal/abi"
	"github.com/wasmine-go/wasmine/internal/reader"
	"github.com/wasmine-go/wasmine/internal/ssa"
	"github.com/wasmine-go/wasmine/internal/wasm"
)

// Module wraps a decoded *wasm.Module with the per-type-index ssa.Signature
// table the lowerer needs for call/call_indirect, built once and reused
// across every function in the module.
type Module struct {
	m         *wasm.Module
	sigByType []*ssa.Signature
}

// NewModule declares one ssa.Signature per entry in m's type section,
// prefixed with the two hidden calling-convention parameters every lowered
// function takes (§4.10): the ExecutionContext and ModuleContext pointers.
func NewModule(b ssa.Builder, m *wasm.Module) *Module {
	lm := &Module{m: m, sigByType: make([]*ssa.Signature, len(m.TypeSection))}
	for i := range m.TypeSection {
		ft := &m.TypeSection[i]
		sig := &ssa.Signature{
			ID:      ssa.SignatureID(i),
			Params:  append([]ssa.Type{ssa.TypeI64, ssa.TypeI64}, valueTypesToSSA(ft.Params)...),
			Results: valueTypesToSSA(ft.Results),
		}
		b.DeclareSignature(sig)
		lm.sigByType[i] = sig
	}
	return lm
}

// SignatureFor returns the previously declared Signature for the function
// type at typeIdx.
func (lm *Module) SignatureFor(typeIdx wasm.Index) *ssa.Signature {
	return lm.sigByType[typeIdx]
}

func valueTypesToSSA(vts []api.ValueType) []ssa.Type {
	if len(vts) == 0 {
		return nil
	}
	out := make([]ssa.Type, len(vts))
	for i, vt := range vts {
		out[i] = valueTypeToSSA(vt)
	}
	return out
}

func valueTypeToSSA(vt api.ValueType) ssa.Type {
	switch vt {
	case api.ValueTypeI32:
		return ssa.TypeI32
	case api.ValueTypeI64:
		return ssa.TypeI64
	case api.ValueTypeF32:
		return ssa.TypeF32
	case api.ValueTypeF64:
		return ssa.TypeF64
	case api.ValueTypeFuncref, api.ValueTypeExternref:
		// References are opaque 64-bit handles to this engine (an index
		// into a table's backing slice, or a null sentinel); there is no
		// pointer-chasing GC value representation to model (Non-goal).
		return ssa.TypeI64
	default:
		panic(fmt.Sprintf("unknown value type %#x", vt))
	}
}

// ctrlFrame is one entry of the label stack (§4.4): a structured-control-
// flow construct currently being lowered.
type ctrlFrame struct {
	isLoop     bool
	isFunction bool
	sawElse    bool

	paramTypes  []ssa.Type
	resultTypes []ssa.Type

	// stashFloor is the operand-stack depth below which this construct may
	// not pop; it excludes the construct's own params, which remain
	// addressable inside it.
	stashFloor int

	// branchTarget is where `br` at this depth jumps: a loop's header (for
	// re-entry) or a block/if/function's merge block (for its result).
	branchTarget ssa.BasicBlock
	// exitBlock is where control resumes once this construct's `end` is
	// processed; identical to branchTarget except for loops, where it is
	// the (initially empty-of-instructions) block reached only by falling
	// off the bottom of the loop body.
	exitBlock ssa.BasicBlock
	// elseBlock is only meaningful for `if` frames.
	elseBlock     ssa.BasicBlock
	elseParamVals []ssa.Value
}

// Lowerer lowers a single function body against a shared Module and
// ssa.Builder. Create one per function (NewFunctionLowerer); the
// underlying Module and Builder are reused across a whole module's worth
// of functions, the builder being Init() once per function as usual.
type Lowerer struct {
	b  ssa.Builder
	lm *Module

	sig     *wasm.FunctionType
	ssaSig  *ssa.Signature
	execCtx ssa.Value
	modCtx  ssa.Value

	locals     []ssa.Variable
	localTypes []ssa.Type

	opStack []ssa.Value
	ctrl    []*ctrlFrame

	unreachable bool

	// firstErr latches the first lowering error encountered; lowering stops
	// there, so the caller gets only the first problem and the remaining
	// opcodes are not read.
	firstErr error
}

// NewFunctionLowerer prepares to lower the function at funcIdx in lm's
// module. The caller must have already called b.Init(signature) with the
// Signature returned by lm.SignatureFor(fn.TypeIndex).
func NewFunctionLowerer(b ssa.Builder, lm *Module, funcIdx wasm.Index) *Lowerer {
	fn := &lm.m.FunctionSection[funcIdx]
	sig := &lm.m.TypeSection[fn.TypeIndex]
	return &Lowerer{
		b:      b,
		lm:     lm,
		sig:    sig,
		ssaSig: lm.SignatureFor(fn.TypeIndex),
	}
}

// Lower runs the parser-stack/label-stack lowering loop over body (the
// function's code-section payload, post locals-declaration, as recorded
// in CodeEntry) and localTypes (the declared non-parameter locals,
// already decoded by C2's decodeLocalDecls). It returns the first
// lowering error, if any.
func (l *Lowerer) Lower(body []byte, localTypes []api.ValueType) error {
	entry := l.b.AllocateBasicBlock()
	l.b.SetCurrentBlock(entry)

	paramTypes := valueTypesToSSA(l.sig.Params)
	l.execCtx = entry.AddParam(l.b, ssa.TypeI64)
	l.b.AnnotateValue(l.execCtx, "execCtx")
	l.modCtx = entry.AddParam(l.b, ssa.TypeI64)
	l.b.AnnotateValue(l.modCtx, "moduleCtx")

	l.locals = make([]ssa.Variable, 0, len(paramTypes)+len(localTypes))
	l.localTypes = make([]ssa.Type, 0, cap(l.locals))
	for i, t := range paramTypes {
		v := l.b.DeclareVariable(t)
		val := entry.AddParam(l.b, t)
		l.b.AnnotateValue(val, fmt.Sprintf("local%d", i))
		l.b.DefineVariableInCurrentBB(v, val)
		l.locals = append(l.locals, v)
		l.localTypes = append(l.localTypes, t)
	}
	for _, vt := range localTypes {
		t := valueTypeToSSA(vt)
		v := l.b.DeclareVariable(t)
		idx := len(l.locals)
		val := l.zero(t)
		l.b.AnnotateValue(val, fmt.Sprintf("local%d", idx))
		l.b.DefineVariableInCurrentBB(v, val)
		l.locals = append(l.locals, v)
		l.localTypes = append(l.localTypes, t)
	}
	l.b.Seal(entry) // function entry has no predecessors, ever.

	resultTypes := valueTypesToSSA(l.sig.Results)
	retBlk := l.b.ReturnBlock()
	for _, t := range resultTypes {
		retBlk.AddParam(l.b, t)
	}
	l.ctrl = append(l.ctrl, &ctrlFrame{
		isFunction:   true,
		resultTypes:  resultTypes,
		stashFloor:   0,
		branchTarget: retBlk,
		exitBlock:    retBlk,
	})

	r := reader.New(body)
	for r.Len() > 0 {
		if err := l.step(r); err != nil {
			if l.firstErr == nil {
				l.firstErr = err
			}
			return l.firstErr
		}
		if len(l.ctrl) == 0 {
			break // the function-level `end` was just processed.
		}
	}
	if l.firstErr != nil {
		return l.firstErr
	}
	if len(l.ctrl) != 0 {
		return fmt.Errorf("function body missing final end")
	}
	return nil
}

func (l *Lowerer) zero(t ssa.Type) ssa.Value {
	switch t {
	case ssa.TypeI32:
		return l.emit(func(i *ssa.Instruction) { i.AsIconst32(0) })
	case ssa.TypeI64:
		return l.emit(func(i *ssa.Instruction) { i.AsIconst64(0) })
	case ssa.TypeF32:
		return l.emit(func(i *ssa.Instruction) { i.AsF32const(0) })
	case ssa.TypeF64:
		return l.emit(func(i *ssa.Instruction) { i.AsF64const(0) })
	default:
		return l.emit(func(i *ssa.Instruction) { i.AsIconst64(0) })
	}
}

func (l *Lowerer) emit(f func(i *ssa.Instruction)) ssa.Value {
	i := l.b.AllocateInstruction()
	f(i)
	l.b.InsertInstruction(i)
	return i.Return()
}

func (l *Lowerer) push(v ssa.Value) { l.opStack = append(l.opStack, v) }

func (l *Lowerer) curFloor() int { return l.ctrl[len(l.ctrl)-1].stashFloor }

// pop removes and returns the top operand, or — if the construct is
// currently unreachable and the stack is poisoned empty below the stash
// floor — synthesizes a dummy value of the same type as a best guess, so
// lowering can keep walking the dead code without erroring.
func (l *Lowerer) pop() ssa.Value {
	return l.popTyped(ssa.TypeI32)
}

func (l *Lowerer) popTyped(t ssa.Type) ssa.Value {
	if len(l.opStack) <= l.curFloor() {
		return l.zero(t)
	}
	v := l.opStack[len(l.opStack)-1]
	l.opStack = l.opStack[:len(l.opStack)-1]
	return v
}

// popNTyped pops len(types) operands, consuming them (used for `br` and
// `return`, which are terminators: nothing after them in this block can
// observe the stack again).
func (l *Lowerer) popNTyped(types []ssa.Type) []ssa.Value {
	vals := make([]ssa.Value, len(types))
	for idx := len(types) - 1; idx >= 0; idx-- {
		vals[idx] = l.popTyped(types[idx])
	}
	return vals
}

// peekNTyped reads the top len(types) operands without removing them
// (used for `br_if`'s not-taken fallthrough, which must still see them).
func (l *Lowerer) peekNTyped(types []ssa.Type) []ssa.Value {
	n := len(types)
	if len(l.opStack)-l.curFloor() < n {
		vals := make([]ssa.Value, n)
		for i, t := range types {
			vals[i] = l.zero(t)
		}
		return vals
	}
	out := make([]ssa.Value, n)
	copy(out, l.opStack[len(l.opStack)-n:])
	return out
}

func (l *Lowerer) truncateTo(floor int) { l.opStack = l.opStack[:floor] }

// frameAt resolves a Wasm relative label depth (0 = innermost) to a frame.
func (l *Lowerer) frameAt(depth uint32) (*ctrlFrame, error) {
	idx := len(l.ctrl) - 1 - int(depth)
	if idx < 0 {
		return nil, fmt.Errorf("branch depth %d exceeds label stack", depth)
	}
	return l.ctrl[idx], nil
}

// branchArgTypes returns the value types a `br`/`br_if`/`br_table` entry
// targeting f must carry: a loop's re-entry params, or a block/if/
// function's result types.
func (f *ctrlFrame) branchArgTypes() []ssa.Type {
	if f.isLoop {
		return f.paramTypes
	}
	return f.resultTypes
}

func (l *Lowerer) readBlockType(r *reader.Reader) (params, results []ssa.Type, err error) {
	v, err := r.VarInt32()
	if err != nil {
		return nil, nil, err
	}
	switch v {
	case -0x40:
		return nil, nil, nil
	case -1:
		return nil, []ssa.Type{ssa.TypeI32}, nil
	case -2:
		return nil, []ssa.Type{ssa.TypeI64}, nil
	case -3:
		return nil, []ssa.Type{ssa.TypeF32}, nil
	case -4:
		return nil, []ssa.Type{ssa.TypeF64}, nil
	case -16, -17:
		return nil, []ssa.Type{ssa.TypeI64}, nil
	}
	if v < 0 || int(v) >= len(l.lm.m.TypeSection) {
		return nil, nil, fmt.Errorf("invalid blocktype %d", v)
	}
	ft := &l.lm.m.TypeSection[v]
	return valueTypesToSSA(ft.Params), valueTypesToSSA(ft.Results), nil
}

// step decodes and lowers exactly one instruction.
func (l *Lowerer) step(r *reader.Reader) error {
	opByte, err := r.Byte()
	if err != nil {
		return err
	}
	op := wasmOpcode(opByte)

	switch op {
	case opUnreachable:
		l.emit(func(i *ssa.Instruction) { i.AsExitWithCode(l.execCtx, ssa.TrapReasonUnreachable) })
		l.unreachable = true
	case opNop:
		// no-op.
	case opBlock, opLoop, opIf:
		return l.lowerBlockLike(r, op)
	case opElse:
		return l.lowerElse()
	case opEnd:
		return l.lowerEnd()
	case opBr:
		depth, err := r.VarUint32()
		if err != nil {
			return err
		}
		return l.lowerBr(depth)
	case opBrIf:
		depth, err := r.VarUint32()
		if err != nil {
			return err
		}
		return l.lowerBrIf(depth)
	case opBrTable:
		return l.lowerBrTable(r)
	case opReturn:
		fn := l.ctrl[0]
		vals := l.popNTyped(fn.resultTypes)
		l.emit(func(i *ssa.Instruction) { i.AsJump(vals, fn.branchTarget) })
		l.unreachable = true
	case opCall:
		return l.lowerCall(r)
	case opCallIndirect:
		return l.lowerCallIndirect(r)
	case opDrop:
		l.pop()
	case opSelect:
		return l.lowerSelect()
	case opSelectType:
		n, err := r.VarUint32()
		if err != nil {
			return err
		}
		if _, err := r.Bytes(int(n)); err != nil {
			return err
		}
		return l.lowerSelect()
	case opLocalGet, opLocalSet, opLocalTee:
		idx, err := r.VarUint32()
		if err != nil {
			return err
		}
		return l.lowerLocal(op, idx)
	case opGlobalGet, opGlobalSet:
		idx, err := r.VarUint32()
		if err != nil {
			return err
		}
		return l.lowerGlobal(op, idx)
	case opMemorySize:
		if _, err := r.Byte(); err != nil { // reserved byte
			return err
		}
		l.push(l.builtinCall0(abi.BuiltinMemorySize, ssa.TypeI32))
	case opMemoryGrow:
		if _, err := r.Byte(); err != nil {
			return err
		}
		delta := l.popTyped(ssa.TypeI32)
		l.push(l.builtinCall1(abi.BuiltinMemoryGrow, delta, ssa.TypeI32))
	case opI32Const:
		v, err := r.VarInt32()
		if err != nil {
			return err
		}
		l.push(l.emit(func(i *ssa.Instruction) { i.AsIconst32(uint32(v)) }))
	case opI64Const:
		v, err := r.VarInt64()
		if err != nil {
			return err
		}
		l.push(l.emit(func(i *ssa.Instruction) { i.AsIconst64(uint64(v)) }))
	case opF32Const:
		v, err := r.F32()
		if err != nil {
			return err
		}
		l.push(l.emit(func(i *ssa.Instruction) { i.AsF32const(v) }))
	case opF64Const:
		v, err := r.F64()
		if err != nil {
			return err
		}
		l.push(l.emit(func(i *ssa.Instruction) { i.AsF64const(v) }))
	case opRefNull:
		if _, err := r.Byte(); err != nil {
			return err
		}
		l.push(l.emit(func(i *ssa.Instruction) { i.AsIconst64(^uint64(0)) }))
	case opRefIsNull:
		x := l.popTyped(ssa.TypeI64)
		null := l.emit(func(i *ssa.Instruction) { i.AsIconst64(^uint64(0)) })
		l.push(l.emit(func(i *ssa.Instruction) { i.AsIcmp(x, null, ssa.IntegerCmpCondEqual) }))
	case opRefFunc:
		idx, err := r.VarUint32()
		if err != nil {
			return err
		}
		l.push(l.emit(func(i *ssa.Instruction) { i.AsIconst64(uint64(idx)) }))
	default:
		if isLoadOpcode(op) {
			return l.lowerLoad(r, op)
		}
		if isStoreOpcode(op) {
			return l.lowerStore(r, op)
		}
		return l.lowerNumeric(op)
	}
	return nil
}

func (l *Lowerer) lowerBlockLike(r *reader.Reader, op wasmOpcode) error {
	params, results, err := l.readBlockType(r)
	if err != nil {
		return err
	}
	arity := len(params)
	args := l.popNTyped(params)

	switch op {
	case opBlock:
		exit := l.b.AllocateBasicBlock()
		for _, t := range results {
			exit.AddParam(l.b, t)
		}
		floor := len(l.opStack)
		for _, a := range args {
			l.push(a)
		}
		_ = floor
		l.ctrl = append(l.ctrl, &ctrlFrame{
			paramTypes:   params,
			resultTypes:  results,
			stashFloor:   len(l.opStack) - arity,
			branchTarget: exit,
			exitBlock:    exit,
		})

	case opLoop:
		header := l.b.AllocateBasicBlock()
		headerVals := make([]ssa.Value, arity)
		for i, t := range params {
			headerVals[i] = header.AddParam(l.b, t)
		}
		l.emit(func(i *ssa.Instruction) { i.AsJump(args, header) })
		exit := l.b.AllocateBasicBlock()
		for _, t := range results {
			exit.AddParam(l.b, t)
		}
		l.b.SetCurrentBlock(header)
		l.unreachable = false
		floor := len(l.opStack)
		for _, v := range headerVals {
			l.push(v)
		}
		l.ctrl = append(l.ctrl, &ctrlFrame{
			isLoop:       true,
			paramTypes:   params,
			resultTypes:  results,
			stashFloor:   floor,
			branchTarget: header,
			exitBlock:    exit,
		})

	case opIf:
		cond := l.popTyped(ssa.TypeI32)
		thenBlk := l.b.AllocateBasicBlock()
		elseBlk := l.b.AllocateBasicBlock()
		thenVals := make([]ssa.Value, arity)
		elseVals := make([]ssa.Value, arity)
		for i, t := range params {
			thenVals[i] = thenBlk.AddParam(l.b, t)
			elseVals[i] = elseBlk.AddParam(l.b, t)
		}
		if !l.unreachable {
			l.emit(func(i *ssa.Instruction) { i.AsBrnz(cond, args, thenBlk) })
			l.emit(func(i *ssa.Instruction) { i.AsJump(args, elseBlk) })
		}
		l.b.Seal(thenBlk)
		l.b.Seal(elseBlk)
		exit := l.b.AllocateBasicBlock()
		for _, t := range results {
			exit.AddParam(l.b, t)
		}
		l.b.SetCurrentBlock(thenBlk)
		l.unreachable = false
		floor := len(l.opStack)
		for _, v := range thenVals {
			l.push(v)
		}
		l.ctrl = append(l.ctrl, &ctrlFrame{
			paramTypes:    params,
			resultTypes:   results,
			stashFloor:    floor,
			branchTarget:  exit,
			exitBlock:     exit,
			elseBlock:     elseBlk,
			elseParamVals: elseVals,
		})
	}
	return nil
}

func (l *Lowerer) lowerElse() error {
	f := l.ctrl[len(l.ctrl)-1]
	if f.elseBlock == (ssa.BasicBlock)(nil) {
		return fmt.Errorf("else without matching if")
	}
	if !l.unreachable {
		vals := l.popNTyped(f.resultTypes)
		l.emit(func(i *ssa.Instruction) { i.AsJump(vals, f.exitBlock) })
	}
	l.b.SetCurrentBlock(f.elseBlock)
	l.truncateTo(f.stashFloor)
	for _, v := range f.elseParamVals {
		l.push(v)
	}
	l.unreachable = false
	f.sawElse = true
	return nil
}

func (l *Lowerer) lowerEnd() error {
	f := l.ctrl[len(l.ctrl)-1]

	if f.elseBlock != (ssa.BasicBlock)(nil) && !f.sawElse {
		if !l.unreachable {
			vals := l.popNTyped(f.resultTypes)
			l.emit(func(i *ssa.Instruction) { i.AsJump(vals, f.exitBlock) })
		}
		l.b.SetCurrentBlock(f.elseBlock)
		l.unreachable = false
		l.emit(func(i *ssa.Instruction) { i.AsJump(f.elseParamVals, f.exitBlock) })
	} else if !l.unreachable {
		vals := l.popNTyped(f.resultTypes)
		l.emit(func(i *ssa.Instruction) { i.AsJump(vals, f.exitBlock) })
	}

	if f.isLoop {
		l.b.Seal(f.branchTarget)
	}
	l.b.Seal(f.exitBlock)

	l.ctrl = l.ctrl[:len(l.ctrl)-1]

	if f.isFunction {
		l.b.SetCurrentBlock(f.exitBlock)
		vals := make([]ssa.Value, len(f.resultTypes))
		for i := range vals {
			vals[i] = f.exitBlock.Param(i)
		}
		l.emit(func(i *ssa.Instruction) { i.AsReturn(vals) })
		return nil
	}

	l.b.SetCurrentBlock(f.exitBlock)
	l.truncateTo(f.stashFloor)
	if l.truncateToParent(f) {
		// unreachable: stashFloor is the parent's depth with this frame's
		// params already popped, so truncating to it leaves exactly the
		// parent's stack.
	}
	for i, t := range f.resultTypes {
		_ = t
		l.push(f.exitBlock.Param(i))
	}
	l.unreachable = false
	return nil
}

// truncateToParent exists only to keep lowerEnd's control flow readable;
// the actual truncation happens inline above.
func (l *Lowerer) truncateToParent(*ctrlFrame) bool { return false }

func (l *Lowerer) lowerBr(depth uint32) error {
	f, err := l.frameAt(depth)
	if err != nil {
		return err
	}
	types := f.branchArgTypes()
	vals := l.popNTyped(types)
	l.emit(func(i *ssa.Instruction) { i.AsJump(vals, f.branchTarget) })
	l.unreachable = true
	return nil
}

func (l *Lowerer) lowerBrIf(depth uint32) error {
	f, err := l.frameAt(depth)
	if err != nil {
		return err
	}
	cond := l.popTyped(ssa.TypeI32)
	types := f.branchArgTypes()
	vals := l.peekNTyped(types)
	if !l.unreachable {
		l.emit(func(i *ssa.Instruction) { i.AsBrnz(cond, vals, f.branchTarget) })
		cont := l.b.AllocateBasicBlock()
		l.emit(func(i *ssa.Instruction) { i.AsJump(nil, cont) })
		l.b.Seal(cont)
		l.b.SetCurrentBlock(cont)
	}
	return nil
}

func (l *Lowerer) lowerBrTable(r *reader.Reader) error {
	count, err := r.VarUint32()
	if err != nil {
		return err
	}
	targets := make([]ssa.BasicBlock, 0, count+1)
	frames := make([]*ctrlFrame, 0, count+1)
	for i := uint32(0); i < count; i++ {
		d, err := r.VarUint32()
		if err != nil {
			return err
		}
		f, err := l.frameAt(d)
		if err != nil {
			return err
		}
		frames = append(frames, f)
		targets = append(targets, f.branchTarget)
	}
	defaultDepth, err := r.VarUint32()
	if err != nil {
		return err
	}
	defaultFrame, err := l.frameAt(defaultDepth)
	if err != nil {
		return err
	}
	frames = append(frames, defaultFrame)
	targets = append(targets, defaultFrame.branchTarget)

	for _, f := range frames {
		if len(f.branchArgTypes()) != 0 {
			return fmt.Errorf("br_table to a label with non-empty result arity is unsupported")
		}
	}

	idx := l.popTyped(ssa.TypeI32)
	l.emit(func(i *ssa.Instruction) { i.AsBrTable(idx, targets) })
	l.unreachable = true
	return nil
}

func (l *Lowerer) lowerCall(r *reader.Reader) error {
	idx, err := r.VarUint32()
	if err != nil {
		return err
	}
	fn := &l.lm.m.FunctionSection[idx]
	sig := l.lm.SignatureFor(fn.TypeIndex)
	args := make([]ssa.Value, 0, 2+len(sig.Params)-2)
	args = append(args, l.execCtx, l.modCtx)
	argTypes := valueTypesToSSA(l.lm.m.TypeSection[fn.TypeIndex].Params)
	args = append(args, l.popNTyped(argTypes)...)

	v := l.emit(func(i *ssa.Instruction) { i.AsCall(ssa.FuncRef(idx), sig, args) })
	l.pushCallResults(v, sig)
	return nil
}

func (l *Lowerer) lowerCallIndirect(r *reader.Reader) error {
	typeIdx, err := r.VarUint32()
	if err != nil {
		return err
	}
	tableIdx, err := r.VarUint32()
	if err != nil {
		return err
	}
	sig := l.lm.SignatureFor(typeIdx)

	elemIdx := l.popTyped(ssa.TypeI32)
	resolverArgs := []ssa.Value{
		l.execCtx, l.modCtx,
		l.emit(func(i *ssa.Instruction) { i.AsIconst32(tableIdx) }),
		elemIdx,
		l.emit(func(i *ssa.Instruction) { i.AsIconst32(uint32(typeIdx)) }),
	}
	funcPtr := l.builtinCallN(abi.BuiltinResolveIndirect, resolverArgs, ssa.TypeI64)

	argTypes := valueTypesToSSA(l.lm.m.TypeSection[typeIdx].Params)
	args := append([]ssa.Value{l.execCtx, l.modCtx}, l.popNTyped(argTypes)...)

	v := l.emit(func(i *ssa.Instruction) { i.AsCallIndirect(funcPtr, sig, args) })
	l.pushCallResults(v, sig)
	return nil
}

func (l *Lowerer) pushCallResults(first ssa.Value, sig *ssa.Signature) {
	if len(sig.Results) == 0 {
		return
	}
	l.push(first)
	// Additional results (multi-value returns) are carried on the
	// instruction's extra return-value slots; the builder's
	// InsertInstruction already allocated them per Results[1:].
}

// builtinCall0/1/N emit a Call to a reserved host builtin (§abi), used for
// operations — memory.grow/size, call_indirect resolution — whose actual
// implementation lives in the engine (C6), not in generated IR.
func (l *Lowerer) builtinCall0(id abi.BuiltinFuncRef, result ssa.Type) ssa.Value {
	return l.builtinCallN(id, []ssa.Value{l.execCtx, l.modCtx}, result)
}

func (l *Lowerer) builtinCall1(id abi.BuiltinFuncRef, arg ssa.Value, result ssa.Type) ssa.Value {
	return l.builtinCallN(id, []ssa.Value{l.execCtx, l.modCtx, arg}, result)
}

func (l *Lowerer) builtinCallN(id abi.BuiltinFuncRef, args []ssa.Value, result ssa.Type) ssa.Value {
	sig := &ssa.Signature{Params: nil, Results: []ssa.Type{result}}
	l.b.DeclareSignature(sig)
	return l.emit(func(i *ssa.Instruction) { i.AsCall(ssa.FuncRef(id.Encode()), sig, args) })
}

func (l *Lowerer) lowerSelect() error {
	cond := l.popTyped(ssa.TypeI32)
	y := l.pop()
	x := l.pop()
	l.push(l.emit(func(i *ssa.Instruction) { i.AsSelect(cond, x, y) }))
	return nil
}

func (l *Lowerer) lowerLocal(op wasmOpcode, idx uint32) error {
	if int(idx) >= len(l.locals) {
		return fmt.Errorf("local index %d out of range", idx)
	}
	v := l.locals[idx]
	t := l.localTypes[idx]
	switch op {
	case opLocalGet:
		l.push(l.b.FindValue(v))
	case opLocalSet:
		val := l.popTyped(t)
		l.b.DefineVariableInCurrentBB(v, val)
	case opLocalTee:
		val := l.popTyped(t)
		l.b.DefineVariableInCurrentBB(v, val)
		l.push(val)
	}
	return nil
}

func (l *Lowerer) globalAddr(idx uint32) (addr ssa.Value, t ssa.Type) {
	g := &l.lm.m.GlobalSection[idx]
	t = valueTypeToSSA(g.Type.ValType)
	base := l.emit(func(i *ssa.Instruction) { i.AsLoad(l.execCtx, abi.ExecCtxGlobalsOffset, ssa.TypeI64) })
	off := l.emit(func(i *ssa.Instruction) { i.AsIconst64(uint64(idx) * 8) })
	addr = l.emit(func(i *ssa.Instruction) { i.AsIadd(base, off) })
	l.b.AnnotateValue(addr, fmt.Sprintf("global%d_addr", idx))
	return
}

func (l *Lowerer) lowerGlobal(op wasmOpcode, idx uint32) error {
	if int(idx) >= len(l.lm.m.GlobalSection) {
		return fmt.Errorf("global index %d out of range", idx)
	}
	addr, t := l.globalAddr(idx)
	switch op {
	case opGlobalGet:
		l.push(l.emit(func(i *ssa.Instruction) { i.AsLoad(addr, 0, t) }))
	case opGlobalSet:
		if !l.lm.m.GlobalSection[idx].Type.Mutable {
			return fmt.Errorf("global.set on immutable global %d", idx)
		}
		val := l.popTyped(t)
		l.emit(func(i *ssa.Instruction) {
			storeOp := ssa.OpcodeStore
			i.AsStore(storeOp, val, addr, 0)
		})
	}
	return nil
}

// effectiveAddr computes the flat i64 address for a memory access: the
// module's single linear memory's base plus a zero-extended i32 Wasm
// address. The memarg's static `offset` immediate is folded into the Load/
// Store instruction itself rather than added here.
func (l *Lowerer) effectiveAddr(wasmAddr ssa.Value) ssa.Value {
	base := l.emit(func(i *ssa.Instruction) { i.AsLoad(l.execCtx, abi.ExecCtxMemoryDataOffset, ssa.TypeI64) })
	ext := l.emit(func(i *ssa.Instruction) { i.AsUExtend(wasmAddr, 32, 64) })
	return l.emit(func(i *ssa.Instruction) { i.AsIadd(base, ext) })
}

func (l *Lowerer) readMemarg(r *reader.Reader) (align, offset uint32, err error) {
	align, err = r.VarUint32()
	if err != nil {
		return
	}
	offset, err = r.VarUint32()
	return
}

func isLoadOpcode(op wasmOpcode) bool {
	switch op {
	case opI32Load, opI64Load, opF32Load, opF64Load,
		opI32Load8S, opI32Load8U, opI32Load16S, opI32Load16U,
		opI64Load8S, opI64Load8U, opI64Load16S, opI64Load16U,
		opI64Load32S, opI64Load32U:
		return true
	}
	return false
}

func isStoreOpcode(op wasmOpcode) bool {
	switch op {
	case opI32Store, opI64Store, opF32Store, opF64Store,
		opI32Store8, opI32Store16, opI64Store8, opI64Store16, opI64Store32:
		return true
	}
	return false
}

func (l *Lowerer) lowerLoad(r *reader.Reader, op wasmOpcode) error {
	_, offset, err := l.readMemarg(r)
	if err != nil {
		return err
	}
	wasmAddr := l.popTyped(ssa.TypeI32)
	addr := l.effectiveAddr(wasmAddr)

	switch op {
	case opI32Load:
		l.push(l.emit(func(i *ssa.Instruction) { i.AsLoad(addr, offset, ssa.TypeI32) }))
	case opI64Load:
		l.push(l.emit(func(i *ssa.Instruction) { i.AsLoad(addr, offset, ssa.TypeI64) }))
	case opF32Load:
		l.push(l.emit(func(i *ssa.Instruction) { i.AsLoad(addr, offset, ssa.TypeF32) }))
	case opF64Load:
		l.push(l.emit(func(i *ssa.Instruction) { i.AsLoad(addr, offset, ssa.TypeF64) }))
	case opI32Load8S:
		l.push(l.emit(func(i *ssa.Instruction) { i.AsExtLoad(ssa.OpcodeSload8, addr, offset, false) }))
	case opI32Load8U:
		l.push(l.emit(func(i *ssa.Instruction) { i.AsExtLoad(ssa.OpcodeUload8, addr, offset, false) }))
	case opI32Load16S:
		l.push(l.emit(func(i *ssa.Instruction) { i.AsExtLoad(ssa.OpcodeSload16, addr, offset, false) }))
	case opI32Load16U:
		l.push(l.emit(func(i *ssa.Instruction) { i.AsExtLoad(ssa.OpcodeUload16, addr, offset, false) }))
	case opI64Load8S:
		l.push(l.emit(func(i *ssa.Instruction) { i.AsExtLoad(ssa.OpcodeSload8, addr, offset, true) }))
	case opI64Load8U:
		l.push(l.emit(func(i *ssa.Instruction) { i.AsExtLoad(ssa.OpcodeUload8, addr, offset, true) }))
	case opI64Load16S:
		l.push(l.emit(func(i *ssa.Instruction) { i.AsExtLoad(ssa.OpcodeSload16, addr, offset, true) }))
	case opI64Load16U:
		l.push(l.emit(func(i *ssa.Instruction) { i.AsExtLoad(ssa.OpcodeUload16, addr, offset, true) }))
	case opI64Load32S:
		l.push(l.emit(func(i *ssa.Instruction) { i.AsExtLoad(ssa.OpcodeSload32, addr, offset, true) }))
	case opI64Load32U:
		l.push(l.emit(func(i *ssa.Instruction) { i.AsExtLoad(ssa.OpcodeUload32, addr, offset, true) }))
	}
	return nil
}

func (l *Lowerer) lowerStore(r *reader.Reader, op wasmOpcode) error {
	_, offset, err := l.readMemarg(r)
	if err != nil {
		return err
	}
	var t ssa.Type
	var storeOp ssa.Opcode
	switch op {
	case opI32Store:
		t, storeOp = ssa.TypeI32, ssa.OpcodeStore
	case opI64Store:
		t, storeOp = ssa.TypeI64, ssa.OpcodeStore
	case opF32Store:
		t, storeOp = ssa.TypeF32, ssa.OpcodeStore
	case opF64Store:
		t, storeOp = ssa.TypeF64, ssa.OpcodeStore
	case opI32Store8:
		t, storeOp = ssa.TypeI32, ssa.OpcodeIstore8
	case opI32Store16:
		t, storeOp = ssa.TypeI32, ssa.OpcodeIstore16
	case opI64Store8:
		t, storeOp = ssa.TypeI64, ssa.OpcodeIstore8
	case opI64Store16:
		t, storeOp = ssa.TypeI64, ssa.OpcodeIstore16
	case opI64Store32:
		t, storeOp = ssa.TypeI64, ssa.OpcodeIstore32
	}
	val := l.popTyped(t)
	wasmAddr := l.popTyped(ssa.TypeI32)
	addr := l.effectiveAddr(wasmAddr)
	l.emit(func(i *ssa.Instruction) { i.AsStore(storeOp, val, addr, offset) })
	return nil
}

func (l *Lowerer) lowerNumeric(op wasmOpcode) error {
	bin := func(f func(i *ssa.Instruction, x, y ssa.Value)) {
		y := l.pop()
		x := l.pop()
		l.push(l.emit(func(i *ssa.Instruction) { f(i, x, y) }))
	}
	un := func(f func(i *ssa.Instruction, x ssa.Value)) {
		x := l.pop()
		l.push(l.emit(func(i *ssa.Instruction) { f(i, x) }))
	}
	cmp := func(c ssa.IntegerCmpCond) {
		bin(func(i *ssa.Instruction, x, y ssa.Value) { i.AsIcmp(x, y, c) })
	}
	fcmp := func(c ssa.FloatCmpCond) {
		bin(func(i *ssa.Instruction, x, y ssa.Value) { i.AsFcmp(x, y, c) })
	}
	divRem := func(f func(i *ssa.Instruction, x, y, ctx ssa.Value)) {
		y := l.pop()
		x := l.pop()
		l.push(l.emit(func(i *ssa.Instruction) { f(i, x, y, l.execCtx) }))
	}

	switch op {
	case opI32Eqz, opI64Eqz:
		x := l.pop()
		zero := l.zero(x.Type())
		l.push(l.emit(func(i *ssa.Instruction) { i.AsIcmp(x, zero, ssa.IntegerCmpCondEqual) }))

	case opI32Eq, opI64Eq:
		cmp(ssa.IntegerCmpCondEqual)
	case opI32Ne, opI64Ne:
		cmp(ssa.IntegerCmpCondNotEqual)
	case opI32LtS, opI64LtS:
		cmp(ssa.IntegerCmpCondSignedLessThan)
	case opI32LtU, opI64LtU:
		cmp(ssa.IntegerCmpCondUnsignedLessThan)
	case opI32GtS, opI64GtS:
		cmp(ssa.IntegerCmpCondSignedGreaterThan)
	case opI32GtU, opI64GtU:
		cmp(ssa.IntegerCmpCondUnsignedGreaterThan)
	case opI32LeS, opI64LeS:
		cmp(ssa.IntegerCmpCondSignedLessThanOrEqual)
	case opI32LeU, opI64LeU:
		cmp(ssa.IntegerCmpCondUnsignedLessThanOrEqual)
	case opI32GeS, opI64GeS:
		cmp(ssa.IntegerCmpCondSignedGreaterThanOrEqual)
	case opI32GeU, opI64GeU:
		cmp(ssa.IntegerCmpCondUnsignedGreaterThanOrEqual)

	case opF32Eq, opF64Eq:
		fcmp(ssa.FloatCmpCondEqual)
	case opF32Ne, opF64Ne:
		fcmp(ssa.FloatCmpCondNotEqual)
	case opF32Lt, opF64Lt:
		fcmp(ssa.FloatCmpCondLessThan)
	case opF32Gt, opF64Gt:
		fcmp(ssa.FloatCmpCondGreaterThan)
	case opF32Le, opF64Le:
		fcmp(ssa.FloatCmpCondLessThanOrEqual)
	case opF32Ge, opF64Ge:
		fcmp(ssa.FloatCmpCondGreaterThanOrEqual)

	case opI32Clz, opI64Clz:
		un(func(i *ssa.Instruction, x ssa.Value) { i.AsClz(x) })
	case opI32Ctz, opI64Ctz:
		un(func(i *ssa.Instruction, x ssa.Value) { i.AsCtz(x) })
	case opI32Popcnt, opI64Popcnt:
		un(func(i *ssa.Instruction, x ssa.Value) { i.AsPopcnt(x) })
	case opI32Add, opI64Add:
		bin(func(i *ssa.Instruction, x, y ssa.Value) { i.AsIadd(x, y) })
	case opI32Sub, opI64Sub:
		bin(func(i *ssa.Instruction, x, y ssa.Value) { i.AsIsub(x, y) })
	case opI32Mul, opI64Mul:
		bin(func(i *ssa.Instruction, x, y ssa.Value) { i.AsImul(x, y) })
	case opI32DivS, opI64DivS:
		divRem(func(i *ssa.Instruction, x, y, ctx ssa.Value) { i.AsSDiv(x, y, ctx) })
	case opI32DivU, opI64DivU:
		divRem(func(i *ssa.Instruction, x, y, ctx ssa.Value) { i.AsUDiv(x, y, ctx) })
	case opI32RemS, opI64RemS:
		divRem(func(i *ssa.Instruction, x, y, ctx ssa.Value) { i.AsSRem(x, y, ctx) })
	case opI32RemU, opI64RemU:
		divRem(func(i *ssa.Instruction, x, y, ctx ssa.Value) { i.AsURem(x, y, ctx) })
	case opI32And, opI64And:
		bin(func(i *ssa.Instruction, x, y ssa.Value) { i.AsBand(x, y) })
	case opI32Or, opI64Or:
		bin(func(i *ssa.Instruction, x, y ssa.Value) { i.AsBor(x, y) })
	case opI32Xor, opI64Xor:
		bin(func(i *ssa.Instruction, x, y ssa.Value) { i.AsBxor(x, y) })
	case opI32Shl, opI64Shl:
		bin(func(i *ssa.Instruction, x, y ssa.Value) { i.AsIshl(x, y) })
	case opI32ShrS, opI64ShrS:
		bin(func(i *ssa.Instruction, x, y ssa.Value) { i.AsSshr(x, y) })
	case opI32ShrU, opI64ShrU:
		bin(func(i *ssa.Instruction, x, y ssa.Value) { i.AsUshr(x, y) })
	case opI32Rotl, opI64Rotl:
		bin(func(i *ssa.Instruction, x, y ssa.Value) { i.AsRotl(x, y) })
	case opI32Rotr, opI64Rotr:
		bin(func(i *ssa.Instruction, x, y ssa.Value) { i.AsRotr(x, y) })

	case opF32Abs, opF64Abs:
		un(func(i *ssa.Instruction, x ssa.Value) { i.AsFabs(x) })
	case opF32Neg, opF64Neg:
		un(func(i *ssa.Instruction, x ssa.Value) { i.AsFneg(x) })
	case opF32Ceil, opF64Ceil:
		un(func(i *ssa.Instruction, x ssa.Value) { i.AsCeil(x) })
	case opF32Floor, opF64Floor:
		un(func(i *ssa.Instruction, x ssa.Value) { i.AsFloor(x) })
	case opF32Trunc, opF64Trunc:
		un(func(i *ssa.Instruction, x ssa.Value) { i.AsTrunc(x) })
	case opF32Nearest, opF64Nearest:
		un(func(i *ssa.Instruction, x ssa.Value) { i.AsNearest(x) })
	case opF32Sqrt, opF64Sqrt:
		un(func(i *ssa.Instruction, x ssa.Value) { i.AsSqrt(x) })
	case opF32Add, opF64Add:
		bin(func(i *ssa.Instruction, x, y ssa.Value) { i.AsFadd(x, y) })
	case opF32Sub, opF64Sub:
		bin(func(i *ssa.Instruction, x, y ssa.Value) { i.AsFsub(x, y) })
	case opF32Mul, opF64Mul:
		bin(func(i *ssa.Instruction, x, y ssa.Value) { i.AsFmul(x, y) })
	case opF32Div, opF64Div:
		bin(func(i *ssa.Instruction, x, y ssa.Value) { i.AsFdiv(x, y) })
	case opF32Min, opF64Min:
		bin(func(i *ssa.Instruction, x, y ssa.Value) { i.AsFmin(x, y) })
	case opF32Max, opF64Max:
		bin(func(i *ssa.Instruction, x, y ssa.Value) { i.AsFmax(x, y) })
	case opF32Copysign, opF64Copysign:
		bin(func(i *ssa.Instruction, x, y ssa.Value) { i.AsFcopysign(x, y) })

	case opI32WrapI64:
		x := l.pop()
		l.push(l.emit(func(i *ssa.Instruction) { i.AsIreduce(x, ssa.TypeI32) }))
	case opI64ExtendI32S:
		x := l.pop()
		l.push(l.emit(func(i *ssa.Instruction) { i.AsSExtend(x, 32, 64) }))
	case opI64ExtendI32U:
		x := l.pop()
		l.push(l.emit(func(i *ssa.Instruction) { i.AsUExtend(x, 32, 64) }))
	case opI32Extend8S:
		x := l.pop()
		l.push(l.emit(func(i *ssa.Instruction) { i.AsSExtend(x, 8, 32) }))
	case opI32Extend16S:
		x := l.pop()
		l.push(l.emit(func(i *ssa.Instruction) { i.AsSExtend(x, 16, 32) }))
	case opI64Extend8S:
		x := l.pop()
		l.push(l.emit(func(i *ssa.Instruction) { i.AsSExtend(x, 8, 64) }))
	case opI64Extend16S:
		x := l.pop()
		l.push(l.emit(func(i *ssa.Instruction) { i.AsSExtend(x, 16, 64) }))
	case opI64Extend32S:
		x := l.pop()
		l.push(l.emit(func(i *ssa.Instruction) { i.AsSExtend(x, 32, 64) }))

	case opI32TruncF32S, opI32TruncF64S:
		x := l.pop()
		l.push(l.emit(func(i *ssa.Instruction) { i.AsFcvtToInt(x, l.execCtx, true, false, false) }))
	case opI32TruncF32U, opI32TruncF64U:
		x := l.pop()
		l.push(l.emit(func(i *ssa.Instruction) { i.AsFcvtToInt(x, l.execCtx, false, false, false) }))
	case opI64TruncF32S, opI64TruncF64S:
		x := l.pop()
		l.push(l.emit(func(i *ssa.Instruction) { i.AsFcvtToInt(x, l.execCtx, true, true, false) }))
	case opI64TruncF32U, opI64TruncF64U:
		x := l.pop()
		l.push(l.emit(func(i *ssa.Instruction) { i.AsFcvtToInt(x, l.execCtx, false, true, false) }))

	case opF32ConvertI32S, opF32ConvertI64S:
		x := l.pop()
		v := l.emit(func(i *ssa.Instruction) { i.AsFcvtFromInt(x, true, false) })
		l.push(v)
	case opF32ConvertI32U, opF32ConvertI64U:
		x := l.pop()
		l.push(l.emit(func(i *ssa.Instruction) { i.AsFcvtFromInt(x, false, false) }))
	case opF64ConvertI32S, opF64ConvertI64S:
		x := l.pop()
		l.push(l.emit(func(i *ssa.Instruction) { i.AsFcvtFromInt(x, true, true) }))
	case opF64ConvertI32U, opF64ConvertI64U:
		x := l.pop()
		l.push(l.emit(func(i *ssa.Instruction) { i.AsFcvtFromInt(x, false, true) }))

	case opF32DemoteF64:
		x := l.pop()
		l.push(l.emit(func(i *ssa.Instruction) { i.AsFdemote(x) }))
	case opF64PromoteF32:
		x := l.pop()
		l.push(l.emit(func(i *ssa.Instruction) { i.AsFpromote(x) }))

	case opI32ReinterpretF32:
		x := l.pop()
		l.push(l.emit(func(i *ssa.Instruction) { i.AsBitcast(x, ssa.TypeI32) }))
	case opI64ReinterpretF64:
		x := l.pop()
		l.push(l.emit(func(i *ssa.Instruction) { i.AsBitcast(x, ssa.TypeI64) }))
	case opF32ReinterpretI32:
		x := l.pop()
		l.push(l.emit(func(i *ssa.Instruction) { i.AsBitcast(x, ssa.TypeF32) }))
	case opF64ReinterpretI64:
		x := l.pop()
		l.push(l.emit(func(i *ssa.Instruction) { i.AsBitcast(x, ssa.TypeF64) }))

	default:
		return fmt.Errorf("unsupported opcode %#x", byte(op))
	}
	return nil
}
