package lower

// wasmOpcode is a raw instruction opcode byte as it appears in a function
// body (§4.4). Named individually, rather than reused from an encoding
// package, because C4 only ever needs to switch on them once, during
// lowering.
type wasmOpcode byte

const (
	opUnreachable wasmOpcode = 0x00
	opNop         wasmOpcode = 0x01
	opBlock       wasmOpcode = 0x02
	opLoop        wasmOpcode = 0x03
	opIf          wasmOpcode = 0x04
	opElse        wasmOpcode = 0x05
	opEnd         wasmOpcode = 0x0b
	opBr          wasmOpcode = 0x0c
	opBrIf        wasmOpcode = 0x0d
	opBrTable     wasmOpcode = 0x0e
	opReturn      wasmOpcode = 0x0f
	opCall        wasmOpcode = 0x10
	opCallIndirect wasmOpcode = 0x11

	opDrop       wasmOpcode = 0x1a
	opSelect     wasmOpcode = 0x1b
	opSelectType wasmOpcode = 0x1c

	opLocalGet  wasmOpcode = 0x20
	opLocalSet  wasmOpcode = 0x21
	opLocalTee  wasmOpcode = 0x22
	opGlobalGet wasmOpcode = 0x23
	opGlobalSet wasmOpcode = 0x24

	opI32Load    wasmOpcode = 0x28
	opI64Load    wasmOpcode = 0x29
	opF32Load    wasmOpcode = 0x2a
	opF64Load    wasmOpcode = 0x2b
	opI32Load8S  wasmOpcode = 0x2c
	opI32Load8U  wasmOpcode = 0x2d
	opI32Load16S wasmOpcode = 0x2e
	opI32Load16U wasmOpcode = 0x2f
	opI64Load8S  wasmOpcode = 0x30
	opI64Load8U  wasmOpcode = 0x31
	opI64Load16S wasmOpcode = 0x32
	opI64Load16U wasmOpcode = 0x33
	opI64Load32S wasmOpcode = 0x34
	opI64Load32U wasmOpcode = 0x35
	opI32Store   wasmOpcode = 0x36
	opI64Store   wasmOpcode = 0x37
	opF32Store   wasmOpcode = 0x38
	opF64Store   wasmOpcode = 0x39
	opI32Store8  wasmOpcode = 0x3a
	opI32Store16 wasmOpcode = 0x3b
	opI64Store8  wasmOpcode = 0x3c
	opI64Store16 wasmOpcode = 0x3d
	opI64Store32 wasmOpcode = 0x3e
	opMemorySize wasmOpcode = 0x3f
	opMemoryGrow wasmOpcode = 0x40

	opI32Const wasmOpcode = 0x41
	opI64Const wasmOpcode = 0x42
	opF32Const wasmOpcode = 0x43
	opF64Const wasmOpcode = 0x44

	opI32Eqz wasmOpcode = 0x45
	opI32Eq  wasmOpcode = 0x46
	opI32Ne  wasmOpcode = 0x47
	opI32LtS wasmOpcode = 0x48
	opI32LtU wasmOpcode = 0x49
	opI32GtS wasmOpcode = 0x4a
	opI32GtU wasmOpcode = 0x4b
	opI32LeS wasmOpcode = 0x4c
	opI32LeU wasmOpcode = 0x4d
	opI32GeS wasmOpcode = 0x4e
	opI32GeU wasmOpcode = 0x4f

	opI64Eqz wasmOpcode = 0x50
	opI64Eq  wasmOpcode = 0x51
	opI64Ne  wasmOpcode = 0x52
	opI64LtS wasmOpcode = 0x53
	opI64LtU wasmOpcode = 0x54
	opI64GtS wasmOpcode = 0x55
	opI64GtU wasmOpcode = 0x56
	opI64LeS wasmOpcode = 0x57
	opI64LeU wasmOpcode = 0x58
	opI64GeS wasmOpcode = 0x59
	opI64GeU wasmOpcode = 0x5a

	opF32Eq wasmOpcode = 0x5b
	opF32Ne wasmOpcode = 0x5c
	opF32Lt wasmOpcode = 0x5d
	opF32Gt wasmOpcode = 0x5e
	opF32Le wasmOpcode = 0x5f
	opF32Ge wasmOpcode = 0x60

	opF64Eq wasmOpcode = 0x61
	opF64Ne wasmOpcode = 0x62
	opF64Lt wasmOpcode = 0x63
	opF64Gt wasmOpcode = 0x64
	opF64Le wasmOpcode = 0x65
	opF64Ge wasmOpcode = 0x66

	opI32Clz    wasmOpcode = 0x67
	opI32Ctz    wasmOpcode = 0x68
	opI32Popcnt wasmOpcode = 0x69
	opI32Add    wasmOpcode = 0x6a
	opI32Sub    wasmOpcode = 0x6b
	opI32Mul    wasmOpcode = 0x6c
	opI32DivS   wasmOpcode = 0x6d
	opI32DivU   wasmOpcode = 0x6e
	opI32RemS   wasmOpcode = 0x6f
	opI32RemU   wasmOpcode = 0x70
	opI32And    wasmOpcode = 0x71
	opI32Or     wasmOpcode = 0x72
	opI32Xor    wasmOpcode = 0x73
	opI32Shl    wasmOpcode = 0x74
	opI32ShrS   wasmOpcode = 0x75
	opI32ShrU   wasmOpcode = 0x76
	opI32Rotl   wasmOpcode = 0x77
	opI32Rotr   wasmOpcode = 0x78

	opI64Clz    wasmOpcode = 0x79
	opI64Ctz    wasmOpcode = 0x7a
	opI64Popcnt wasmOpcode = 0x7b
	opI64Add    wasmOpcode = 0x7c
	opI64Sub    wasmOpcode = 0x7d
	opI64Mul    wasmOpcode = 0x7e
	opI64DivS   wasmOpcode = 0x7f
	opI64DivU   wasmOpcode = 0x80
	opI64RemS   wasmOpcode = 0x81
	opI64RemU   wasmOpcode = 0x82
	opI64And    wasmOpcode = 0x83
	opI64Or     wasmOpcode = 0x84
	opI64Xor    wasmOpcode = 0x85
	opI64Shl    wasmOpcode = 0x86
	opI64ShrS   wasmOpcode = 0x87
	opI64ShrU   wasmOpcode = 0x88
	opI64Rotl   wasmOpcode = 0x89
	opI64Rotr   wasmOpcode = 0x8a

	opF32Abs      wasmOpcode = 0x8b
	opF32Neg      wasmOpcode = 0x8c
	opF32Ceil     wasmOpcode = 0x8d
	opF32Floor    wasmOpcode = 0x8e
	opF32Trunc    wasmOpcode = 0x8f
	opF32Nearest  wasmOpcode = 0x90
	opF32Sqrt     wasmOpcode = 0x91
	opF32Add      wasmOpcode = 0x92
	opF32Sub      wasmOpcode = 0x93
	opF32Mul      wasmOpcode = 0x94
	opF32Div      wasmOpcode = 0x95
	opF32Min      wasmOpcode = 0x96
	opF32Max      wasmOpcode = 0x97
	opF32Copysign wasmOpcode = 0x98

	opF64Abs      wasmOpcode = 0x99
	opF64Neg      wasmOpcode = 0x9a
	opF64Ceil     wasmOpcode = 0x9b
	opF64Floor    wasmOpcode = 0x9c
	opF64Trunc    wasmOpcode = 0x9d
	opF64Nearest  wasmOpcode = 0x9e
	opF64Sqrt     wasmOpcode = 0x9f
	opF64Add      wasmOpcode = 0xa0
	opF64Sub      wasmOpcode = 0xa1
	opF64Mul      wasmOpcode = 0xa2
	opF64Div      wasmOpcode = 0xa3
	opF64Min      wasmOpcode = 0xa4
	opF64Max      wasmOpcode = 0xa5
	opF64Copysign wasmOpcode = 0xa6

	opI32WrapI64    wasmOpcode = 0xa7
	opI32TruncF32S  wasmOpcode = 0xa8
	opI32TruncF32U  wasmOpcode = 0xa9
	opI32TruncF64S  wasmOpcode = 0xaa
	opI32TruncF64U  wasmOpcode = 0xab
	opI64ExtendI32S wasmOpcode = 0xac
	opI64ExtendI32U wasmOpcode = 0xad
	opI64TruncF32S  wasmOpcode = 0xae
	opI64TruncF32U  wasmOpcode = 0xaf
	opI64TruncF64S  wasmOpcode = 0xb0
	opI64TruncF64U  wasmOpcode = 0xb1
	opF32ConvertI32S wasmOpcode = 0xb2
	opF32ConvertI32U wasmOpcode = 0xb3
	opF32ConvertI64S wasmOpcode = 0xb4
	opF32ConvertI64U wasmOpcode = 0xb5
	opF32DemoteF64   wasmOpcode = 0xb6
	opF64ConvertI32S wasmOpcode = 0xb7
	opF64ConvertI32U wasmOpcode = 0xb8
	opF64ConvertI64S wasmOpcode = 0xb9
	opF64ConvertI64U wasmOpcode = 0xba
	opF64PromoteF32  wasmOpcode = 0xbb
	opI32ReinterpretF32 wasmOpcode = 0xbc
	opI64ReinterpretF64 wasmOpcode = 0xbd
	opF32ReinterpretI32 wasmOpcode = 0xbe
	opF64ReinterpretI64 wasmOpcode = 0xbf

	opI32Extend8S  wasmOpcode = 0xc0
	opI32Extend16S wasmOpcode = 0xc1
	opI64Extend8S  wasmOpcode = 0xc2
	opI64Extend16S wasmOpcode = 0xc3
	opI64Extend32S wasmOpcode = 0xc4

	opRefNull   wasmOpcode = 0xd0
	opRefIsNull wasmOpcode = 0xd1
	opRefFunc   wasmOpcode = 0xd2

	// opMiscPrefix introduces the 0xfc-prefixed bulk-memory/table/
	// saturating-truncation subspace, out of scope for this pass (see
	// DESIGN.md): memory.copy/fill, table.copy/init/grow/size/fill,
	// elem.drop, data.drop, and the trunc_sat family.
	opMiscPrefix wasmOpcode = 0xfc
)

// blockTypeEmpty is the single-byte encoding of an empty blocktype
// immediate (§4.4). readBlockType reads every blocktype as a signed LEB128
// value and tells the empty type and single value types apart from a
// type-section index by its sign.
const (
	blockTypeEmpty = 0x40
)
