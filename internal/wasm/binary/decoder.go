// Package binary implements C2, the type & section catalog: decoding a Wasm
// binary's preamble and sections into a *wasm.Module. Per §4.2, the code
// section's entries are not parsed here — each is recorded as an (offset,
// size) byte range into the source buffer so function bodies can be lowered
// lazily or in parallel later (C4).
package binary

import (
	"bytes"
	"fmt"

	"github.com/wasmine-go/wasmine/internal/reader"
	"github.com/wasmine-go/wasmine/internal/wasm"
)

// DecodeModule parses a complete Wasm binary's metadata (preamble and all
// sections) from src. The returned Module's CodeEntry values record offsets
// into src rather than copies of the function bodies, so src must be kept
// for as long as any function is lowered from it.
func DecodeModule(src []byte) (*wasm.Module, error) {
	r := reader.New(src)

	if err := decodePreamble(r); err != nil {
		return nil, err
	}

	m := &wasm.Module{}
	var lastID sectionID = -1
	seen := map[sectionID]bool{}
	var codePayload []byte

	for r.Len() > 0 {
		idByte, err := r.Byte()
		if err != nil {
			return nil, err
		}
		id := sectionID(idByte)
		size, err := r.VarUint32()
		if err != nil {
			return nil, err
		}
		payload, err := r.Bytes(int(size))
		if err != nil {
			return nil, err
		}

		if id == sectionIDCustom {
			if err := decodeCustomSection(m, payload); err != nil {
				return nil, err
			}
			continue
		}
		if id < sectionIDType || id > sectionIDDataCount {
			return nil, fmt.Errorf("%w: %d at offset %d", wasm.ErrUnknownSection, id, r.Offset())
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: section %d at offset %d", wasm.ErrDuplicateSection, id, r.Offset())
		}
		// sectionIDDataCount has the highest numeric id but must precede the
		// code section in the stream (§4.2); every other section follows
		// strict ascending order.
		if id == sectionIDDataCount {
			if seen[sectionIDCode] || seen[sectionIDData] {
				return nil, fmt.Errorf("%w: section %d follows section %d at offset %d",
					wasm.ErrSectionOutOfOrder, id, lastID, r.Offset())
			}
		} else if id <= lastID {
			return nil, fmt.Errorf("%w: section %d follows section %d at offset %d",
				wasm.ErrSectionOutOfOrder, id, lastID, r.Offset())
		}
		seen[id] = true
		if id != sectionIDDataCount {
			lastID = id
		}

		sr := reader.NewLimited(payload, len(payload))
		var decodeErr error
		switch id {
		case sectionIDType:
			m.TypeSection, decodeErr = decodeTypeSection(sr)
		case sectionIDImport:
			decodeErr = decodeImportSection(sr, m)
		case sectionIDFunction:
			decodeErr = decodeFunctionSection(sr, m)
		case sectionIDTable:
			decodeErr = decodeTableSection(sr, m)
		case sectionIDMemory:
			decodeErr = decodeMemorySection(sr, m)
		case sectionIDGlobal:
			decodeErr = decodeGlobalSection(sr, m)
		case sectionIDExport:
			decodeErr = decodeExportSection(sr, m)
		case sectionIDStart:
			decodeErr = decodeStartSection(sr, m)
		case sectionIDElement:
			decodeErr = decodeElementSection(sr, m)
		case sectionIDDataCount:
			decodeErr = decodeDataCountSection(sr, m)
		case sectionIDCode:
			codePayload = payload
			decodeErr = decodeCodeSection(sr, m, src, len(src)-r.Len()-len(payload))
		case sectionIDData:
			decodeErr = decodeDataSection(sr, m)
		}
		if decodeErr != nil {
			return nil, decodeErr
		}
		if sr.Len() != 0 {
			return nil, fmt.Errorf("%w: section %d", wasm.ErrSectionLengthMismatch, id)
		}
	}
	_ = codePayload

	if err := validateModule(m); err != nil {
		return nil, err
	}
	m.ID = computeModuleID(src)
	return m, nil
}

func decodePreamble(r *reader.Reader) error {
	magic, err := r.Bytes(4)
	if err != nil {
		return err
	}
	if !bytes.Equal(magic, []byte(wasmMagic)) {
		return wasm.ErrInvalidMagic
	}
	version, err := r.U32()
	if err != nil {
		return err
	}
	if version != wasmVersion {
		return fmt.Errorf("%w: %d", wasm.ErrInvalidVersion, version)
	}
	return nil
}

// decodeCustomSection only validates that the declared length matches the
// bytes actually present (§4.2); the one exception is the "name" section,
// decoded best-effort for diagnostics (SPEC_FULL §3b).
func decodeCustomSection(m *wasm.Module, payload []byte) error {
	r := reader.NewLimited(payload, len(payload))
	name, err := r.Name()
	if err != nil {
		// Malformed custom section names are ignored entirely: custom
		// sections are validated only for declared-length consistency.
		return nil
	}
	if name == "name" {
		decodeNameSection(m, r.Remaining())
	}
	return nil
}

func computeModuleID(src []byte) wasm.ModuleID {
	return sha256Sum(src)
}
