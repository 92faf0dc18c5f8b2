package binary

// sectionID identifies a top-level Wasm binary section. Non-custom section
// ids must appear in this ascending order at most once each (§4.2).
type sectionID byte

const (
	sectionIDCustom sectionID = iota
	sectionIDType
	sectionIDImport
	sectionIDFunction
	sectionIDTable
	sectionIDMemory
	sectionIDGlobal
	sectionIDExport
	sectionIDStart
	sectionIDElement
	sectionIDCode
	sectionIDData
	// sectionIDDataCount has the highest id but, when present, is required to
	// appear in the stream before the code section (it exists so a lowerer
	// can validate memory.init/data.drop instructions without a second pass
	// over the whole module). DecodeModule special-cases its ordering.
	sectionIDDataCount
)

const (
	wasmMagic   = "\x00asm"
	wasmVersion = uint32(1)
)
