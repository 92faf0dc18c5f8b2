package binary

import (
	"crypto/sha256"
	"fmt"

	"github.com/wasmine-go/wasmine/api"
	"github.com/wasmine-go/wasmine/internal/reader"
	"github.com/wasmine-go/wasmine/internal/wasm"
)

func decodeTypeSection(r *reader.Reader) ([]wasm.FunctionType, error) {
	count, err := r.VarUint32()
	if err != nil {
		return nil, err
	}
	types := make([]wasm.FunctionType, count)
	for i := range types {
		tag, err := r.Byte()
		if err != nil {
			return nil, err
		}
		if tag != 0x60 {
			return nil, fmt.Errorf("invalid functype tag %#x at offset %d", tag, r.Offset())
		}
		if types[i].Params, err = decodeValueTypes(r); err != nil {
			return nil, err
		}
		if types[i].Results, err = decodeValueTypes(r); err != nil {
			return nil, err
		}
	}
	return types, nil
}

func decodeValueTypes(r *reader.Reader) ([]api.ValueType, error) {
	n, err := r.VarUint32()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	vs := make([]api.ValueType, n)
	for i := range vs {
		if vs[i], err = decodeValueType(r); err != nil {
			return nil, err
		}
	}
	return vs, nil
}

func decodeImportSection(r *reader.Reader, m *wasm.Module) error {
	count, err := r.VarUint32()
	if err != nil {
		return err
	}
	imports := make([]wasm.Import, count)
	for i := uint32(0); i < count; i++ {
		mod, err := r.Name()
		if err != nil {
			return err
		}
		name, err := r.Name()
		if err != nil {
			return err
		}
		kind, err := r.Byte()
		if err != nil {
			return err
		}
		imp := wasm.Import{Module: mod, Name: name, Kind: kind}
		switch kind {
		case api.ExternTypeFunc:
			if imp.TypeIndex, err = r.VarUint32(); err != nil {
				return err
			}
			if int(imp.TypeIndex) >= len(m.TypeSection) {
				return fmt.Errorf("%w: import function type index %d", wasm.ErrIndexOutOfBounds, imp.TypeIndex)
			}
			m.ImportFuncCount++
		case api.ExternTypeTable:
			rt, err := decodeRefType(r)
			if err != nil {
				return err
			}
			lim, err := decodeLimits(r)
			if err != nil {
				return err
			}
			imp.Table = wasm.TableType{RefType: rt, Limits: lim}
			m.ImportTableCount++
		case api.ExternTypeMemory:
			lim, err := decodeLimits(r)
			if err != nil {
				return err
			}
			imp.Memory = wasm.MemoryType{Limits: lim}
			m.ImportMemoryCount++
		case api.ExternTypeGlobal:
			vt, err := decodeValueType(r)
			if err != nil {
				return err
			}
			mut, err := r.Byte()
			if err != nil {
				return err
			}
			imp.Global = wasm.GlobalType{ValType: vt, Mutable: mut == 1}
			m.ImportGlobalCount++
		default:
			return fmt.Errorf("invalid import kind %#x at offset %d", kind, r.Offset())
		}
		imports[i] = imp
	}
	m.ImportSection = imports
	// Imported functions/tables/memories/globals occupy the low end of each
	// combined index space (§3 "imports first"), each pointing back at its
	// own slot in the now-stable ImportSection backing array.
	for i := range imports {
		imp := &imports[i]
		switch imp.Kind {
		case api.ExternTypeFunc:
			m.FunctionSection = append(m.FunctionSection, wasm.Function{
				Kind: wasm.FunctionKindImport, TypeIndex: imp.TypeIndex, Import: imp,
			})
		case api.ExternTypeTable:
			m.TableSection = append(m.TableSection, wasm.Table{Type: imp.Table, Import: imp})
		case api.ExternTypeMemory:
			m.MemorySection = append(m.MemorySection, wasm.Memory{Type: imp.Memory, Import: imp})
		case api.ExternTypeGlobal:
			m.GlobalSection = append(m.GlobalSection, wasm.Global{Type: imp.Global, Import: imp})
		}
	}
	return nil
}

func decodeFunctionSection(r *reader.Reader, m *wasm.Module) error {
	count, err := r.VarUint32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		typeIdx, err := r.VarUint32()
		if err != nil {
			return err
		}
		if int(typeIdx) >= len(m.TypeSection) {
			return fmt.Errorf("%w: function type index %d", wasm.ErrIndexOutOfBounds, typeIdx)
		}
		m.FunctionSection = append(m.FunctionSection, wasm.Function{
			Kind: wasm.FunctionKindUnparsed, TypeIndex: typeIdx,
		})
	}
	return nil
}

func decodeTableSection(r *reader.Reader, m *wasm.Module) error {
	count, err := r.VarUint32()
	if err != nil {
		return err
	}
	if count > 1 {
		return wasm.ErrMultipleTables
	}
	for i := uint32(0); i < count; i++ {
		rt, err := decodeRefType(r)
		if err != nil {
			return err
		}
		lim, err := decodeLimits(r)
		if err != nil {
			return err
		}
		m.TableSection = append(m.TableSection, wasm.Table{Type: wasm.TableType{RefType: rt, Limits: lim}})
	}
	if len(m.TableSection) > 1 {
		return wasm.ErrMultipleTables
	}
	return nil
}

func decodeMemorySection(r *reader.Reader, m *wasm.Module) error {
	count, err := r.VarUint32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		lim, err := decodeLimits(r)
		if err != nil {
			return err
		}
		m.MemorySection = append(m.MemorySection, wasm.Memory{Type: wasm.MemoryType{Limits: lim}})
	}
	if len(m.MemorySection) > 1 {
		return wasm.ErrMultipleMemories
	}
	return nil
}

func decodeGlobalSection(r *reader.Reader, m *wasm.Module) error {
	count, err := r.VarUint32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		vt, err := decodeValueType(r)
		if err != nil {
			return err
		}
		mut, err := r.Byte()
		if err != nil {
			return err
		}
		init, err := decodeConstExpr(r)
		if err != nil {
			return err
		}
		m.GlobalSection = append(m.GlobalSection, wasm.Global{
			Type: wasm.GlobalType{ValType: vt, Mutable: mut == 1}, Init: init,
		})
	}
	return nil
}

func decodeExportSection(r *reader.Reader, m *wasm.Module) error {
	count, err := r.VarUint32()
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	for i := uint32(0); i < count; i++ {
		name, err := r.Name()
		if err != nil {
			return err
		}
		if seen[name] {
			return fmt.Errorf("duplicate export name %q", name)
		}
		seen[name] = true
		kind, err := r.Byte()
		if err != nil {
			return err
		}
		idx, err := r.VarUint32()
		if err != nil {
			return err
		}
		if err := checkExportIndex(m, kind, idx); err != nil {
			return err
		}
		m.ExportSection = append(m.ExportSection, wasm.Export{Name: name, Kind: kind, Index: idx})
	}
	return nil
}

func checkExportIndex(m *wasm.Module, kind byte, idx uint32) error {
	var n int
	switch kind {
	case api.ExternTypeFunc:
		n = len(m.FunctionSection)
	case api.ExternTypeTable:
		n = len(m.TableSection)
	case api.ExternTypeMemory:
		n = len(m.MemorySection)
	case api.ExternTypeGlobal:
		n = len(m.GlobalSection)
	default:
		return fmt.Errorf("invalid export kind %#x", kind)
	}
	if int(idx) >= n {
		return fmt.Errorf("%w: export index %d (kind %#x)", wasm.ErrIndexOutOfBounds, idx, kind)
	}
	return nil
}

func decodeStartSection(r *reader.Reader, m *wasm.Module) error {
	idx, err := r.VarUint32()
	if err != nil {
		return err
	}
	if int(idx) >= len(m.FunctionSection) {
		return fmt.Errorf("%w: start function index %d", wasm.ErrUnknownStartFunction, idx)
	}
	m.StartSection = &idx
	return nil
}

func decodeElementSection(r *reader.Reader, m *wasm.Module) error {
	count, err := r.VarUint32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		flags, err := r.VarUint32()
		if err != nil {
			return err
		}
		seg := wasm.ElementSegment{RefType: api.RefTypeFuncref}
		switch flags {
		case 0: // active, table 0, funcref, vec(funcidx)
			if seg.Offset, err = decodeConstExpr(r); err != nil {
				return err
			}
			if seg.Init, err = decodeFuncIndexInits(r); err != nil {
				return err
			}
		case 1: // passive, elemkind, vec(funcidx)
			seg.Mode = wasm.ElementModePassive
			if _, err := r.Byte(); err != nil { // elemkind, always 0x00 (funcref)
				return err
			}
			if seg.Init, err = decodeFuncIndexInits(r); err != nil {
				return err
			}
		case 2: // active, explicit table index, elemkind, vec(funcidx)
			if seg.TableIndex, err = r.VarUint32(); err != nil {
				return err
			}
			if seg.Offset, err = decodeConstExpr(r); err != nil {
				return err
			}
			if _, err := r.Byte(); err != nil {
				return err
			}
			if seg.Init, err = decodeFuncIndexInits(r); err != nil {
				return err
			}
		case 3: // declarative, elemkind, vec(funcidx)
			seg.Mode = wasm.ElementModeDeclarative
			if _, err := r.Byte(); err != nil {
				return err
			}
			if seg.Init, err = decodeFuncIndexInits(r); err != nil {
				return err
			}
		case 4: // active, table 0, vec(expr)
			if seg.Offset, err = decodeConstExpr(r); err != nil {
				return err
			}
			if seg.Init, err = decodeExprInits(r); err != nil {
				return err
			}
		case 5: // passive, reftype, vec(expr)
			seg.Mode = wasm.ElementModePassive
			if seg.RefType, err = decodeRefType(r); err != nil {
				return err
			}
			if seg.Init, err = decodeExprInits(r); err != nil {
				return err
			}
		case 6: // active, explicit table index, reftype, vec(expr)
			if seg.TableIndex, err = r.VarUint32(); err != nil {
				return err
			}
			if seg.Offset, err = decodeConstExpr(r); err != nil {
				return err
			}
			if seg.RefType, err = decodeRefType(r); err != nil {
				return err
			}
			if seg.Init, err = decodeExprInits(r); err != nil {
				return err
			}
		case 7: // declarative, reftype, vec(expr)
			seg.Mode = wasm.ElementModeDeclarative
			if seg.RefType, err = decodeRefType(r); err != nil {
				return err
			}
			if seg.Init, err = decodeExprInits(r); err != nil {
				return err
			}
		default:
			return fmt.Errorf("invalid element segment flags %d at offset %d", flags, r.Offset())
		}
		if seg.Mode == wasm.ElementModeActive {
			for _, e := range seg.Init {
				if e.Kind == wasm.ConstExprRefFunc && int(e.Index) >= len(m.FunctionSection) {
					return fmt.Errorf("%w: element function index %d", wasm.ErrIndexOutOfBounds, e.Index)
				}
			}
		}
		m.ElementSection = append(m.ElementSection, seg)
	}
	return nil
}

func decodeFuncIndexInits(r *reader.Reader) ([]wasm.ConstExpr, error) {
	n, err := r.VarUint32()
	if err != nil {
		return nil, err
	}
	init := make([]wasm.ConstExpr, n)
	for i := range init {
		idx, err := r.VarUint32()
		if err != nil {
			return nil, err
		}
		init[i] = wasm.ConstExpr{Kind: wasm.ConstExprRefFunc, Index: idx}
	}
	return init, nil
}

func decodeExprInits(r *reader.Reader) ([]wasm.ConstExpr, error) {
	n, err := r.VarUint32()
	if err != nil {
		return nil, err
	}
	init := make([]wasm.ConstExpr, n)
	for i := range init {
		e, err := decodeConstExpr(r)
		if err != nil {
			return nil, err
		}
		init[i] = e
	}
	return init, nil
}

func decodeDataCountSection(r *reader.Reader, m *wasm.Module) error {
	n, err := r.VarUint32()
	if err != nil {
		return err
	}
	m.DataCountSection = &n
	return nil
}

func decodeCodeSection(r *reader.Reader, m *wasm.Module, src []byte, payloadBase int) error {
	_ = src
	count, err := r.VarUint32()
	if err != nil {
		return err
	}
	firstLocal := int(m.ImportFuncCount)
	if int(count) != len(m.FunctionSection)-firstLocal {
		return fmt.Errorf("code section has %d entries, function section declares %d local functions",
			count, len(m.FunctionSection)-firstLocal)
	}
	for i := uint32(0); i < count; i++ {
		size, err := r.VarUint32()
		if err != nil {
			return err
		}
		bodyAbsOffset := payloadBase + r.Offset()
		body, err := r.Bytes(int(size))
		if err != nil {
			return err
		}
		br := reader.NewLimited(body, len(body))
		localTypes, err := decodeLocalDecls(br)
		if err != nil {
			return err
		}
		codeStart := bodyAbsOffset + (len(body) - br.Len())
		fn := &m.FunctionSection[firstLocal+int(i)]
		fn.Code = wasm.CodeEntry{
			Offset:     codeStart,
			Size:       br.Len(),
			LocalTypes: localTypes,
		}
	}
	return nil
}

func decodeLocalDecls(r *reader.Reader) ([]api.ValueType, error) {
	n, err := r.VarUint32()
	if err != nil {
		return nil, err
	}
	var locals []api.ValueType
	for i := uint32(0); i < n; i++ {
		cnt, err := r.VarUint32()
		if err != nil {
			return nil, err
		}
		vt, err := decodeValueType(r)
		if err != nil {
			return nil, err
		}
		for j := uint32(0); j < cnt; j++ {
			locals = append(locals, vt)
		}
	}
	return locals, nil
}

func decodeDataSection(r *reader.Reader, m *wasm.Module) error {
	count, err := r.VarUint32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		flags, err := r.VarUint32()
		if err != nil {
			return err
		}
		seg := wasm.DataSegment{}
		switch flags {
		case 0:
			if seg.Offset, err = decodeConstExpr(r); err != nil {
				return err
			}
		case 1:
			seg.Mode = wasm.DataModePassive
		case 2:
			if seg.MemoryIndex, err = r.VarUint32(); err != nil {
				return err
			}
			if seg.Offset, err = decodeConstExpr(r); err != nil {
				return err
			}
		default:
			return fmt.Errorf("invalid data segment flags %d at offset %d", flags, r.Offset())
		}
		n, err := r.VarUint32()
		if err != nil {
			return err
		}
		init, err := r.Bytes(int(n))
		if err != nil {
			return err
		}
		seg.Init = init
		m.DataSection = append(m.DataSection, seg)
	}
	return nil
}

// decodeNameSection is a best-effort decode (SPEC_FULL §3b): any malformed
// subsection simply stops further name decoding rather than failing the
// whole parse, since names are diagnostics-only.
func decodeNameSection(m *wasm.Module, payload []byte) {
	r := reader.NewLimited(payload, len(payload))
	m.NameSection.FunctionNames = map[wasm.Index]string{}
	m.NameSection.LocalNames = map[wasm.Index]map[wasm.Index]string{}
	for r.Len() > 0 {
		id, err := r.Byte()
		if err != nil {
			return
		}
		size, err := r.VarUint32()
		if err != nil {
			return
		}
		sub, err := r.Bytes(int(size))
		if err != nil {
			return
		}
		sr := reader.NewLimited(sub, len(sub))
		switch id {
		case 0: // module name
			if name, err := sr.Name(); err == nil {
				m.NameSection.ModuleName = name
			}
		case 1: // function names
			n, err := sr.VarUint32()
			if err != nil {
				continue
			}
			for j := uint32(0); j < n; j++ {
				idx, err := sr.VarUint32()
				if err != nil {
					break
				}
				name, err := sr.Name()
				if err != nil {
					break
				}
				m.NameSection.FunctionNames[idx] = name
			}
		case 2: // local names
			n, err := sr.VarUint32()
			if err != nil {
				continue
			}
			for j := uint32(0); j < n; j++ {
				fnIdx, err := sr.VarUint32()
				if err != nil {
					break
				}
				localCount, err := sr.VarUint32()
				if err != nil {
					break
				}
				locals := map[wasm.Index]string{}
				for k := uint32(0); k < localCount; k++ {
					idx, err := sr.VarUint32()
					if err != nil {
						break
					}
					name, err := sr.Name()
					if err != nil {
						break
					}
					locals[idx] = name
				}
				m.NameSection.LocalNames[fnIdx] = locals
			}
		}
	}
}

// validateModule enforces the cross-section invariants listed in spec.md §3
// that a single top-to-bottom decode pass can't check locally: at most one
// start function (single field, trivially true), at most one memory
// (checked per-section already), datacount/data section agreement, and that
// every instruction-reachable index is in range is deferred to C4 (the
// function lowerer sees real instructions; this only checks metadata-level
// references already resolved above).
func validateModule(m *wasm.Module) error {
	if m.DataCountSection != nil && int(*m.DataCountSection) != len(m.DataSection) {
		return fmt.Errorf("%w: datacount=%d, data section has %d entries",
			wasm.ErrDataCountMismatch, *m.DataCountSection, len(m.DataSection))
	}
	for _, seg := range m.ElementSection {
		if seg.Mode == wasm.ElementModeActive && int(seg.TableIndex) >= len(m.TableSection) {
			return fmt.Errorf("%w: element segment table index %d", wasm.ErrIndexOutOfBounds, seg.TableIndex)
		}
	}
	for _, seg := range m.DataSection {
		if seg.Mode == wasm.DataModeActive && int(seg.MemoryIndex) >= len(m.MemorySection) {
			return fmt.Errorf("%w: data segment memory index %d", wasm.ErrIndexOutOfBounds, seg.MemoryIndex)
		}
	}
	return nil
}

func sha256Sum(b []byte) wasm.ModuleID {
	return sha256.Sum256(b)
}
