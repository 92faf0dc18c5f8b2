package api

import (
	"context"
	"fmt"
	"math"
)

// CoreFeatures toggles optional parts of the WebAssembly Core specification.
// Each bit gates acceptance of a binary construct during parsing/validation
// (C2) and, where relevant, the operations the engine (C6) supports.
//
// Non-goals (spec.md §1) keep this set small: no threads, SIMD, GC, or
// component-model bits are defined, since this engine does not implement
// those proposals.
type CoreFeatures uint64

const (
	CoreFeatureBulkMemoryOperations CoreFeatures = 1 << iota
	CoreFeatureMultiValue
	CoreFeatureMutableGlobal
	CoreFeatureNonTrappingFloatToIntConversion
	CoreFeatureReferenceTypes
	CoreFeatureSignExtensionOps

	// CoreFeaturesV2 is every feature stabilized in the WebAssembly 2.0 Core
	// specification, the default enabled by NewRuntimeConfig.
	CoreFeaturesV2 = CoreFeatureBulkMemoryOperations | CoreFeatureMultiValue |
		CoreFeatureMutableGlobal | CoreFeatureNonTrappingFloatToIntConversion |
		CoreFeatureReferenceTypes | CoreFeatureSignExtensionOps
)

// IsEnabled reports whether all bits in f are set.
func (c CoreFeatures) IsEnabled(f CoreFeatures) bool { return c&f == f }

// Module return functions exported in a module, post-instantiation.
//
// # Notes
//
//   - Closing the wasmine.Runtime does not close the Modules it instantiated; each Module is closed on its own.
//   - This is an interface for decoupling, not third-party implementations. All implementations are in wasmine.
type Module interface {
	fmt.Stringer

	// Name is the name this module was instantiated with.
	Name() string

	// Memory returns a memory defined in this module or nil if there was none.
	Memory() Memory

	// ExportedFunction returns a function exported from this module or nil if it wasn't.
	ExportedFunction(name string) Function

	// ExportedMemory returns a memory exported from this module or nil if it wasn't.
	ExportedMemory(name string) Memory

	// ExportedGlobal returns a global exported from this module or nil if it wasn't.
	ExportedGlobal(name string) Global

	// ExportedTable returns a table exported from this module or nil if it wasn't.
	ExportedTable(name string) Table

	// CloseWithExitCode releases resources allocated for this Module, recording exitCode for
	// any Function callers still in flight. When the context is nil, it defaults to context.Background.
	CloseWithExitCode(ctx context.Context, exitCode uint32) error

	// Closer closes this module by delegating to CloseWithExitCode with an exit code of zero.
	Closer
}

// Closer closes a resource.
type Closer interface {
	// Close closes the resource. When the context is nil, it defaults to context.Background.
	Close(context.Context) error
}

// FunctionDefinition is a WebAssembly function exported or defined in a module.
type FunctionDefinition interface {
	// ModuleName is the possibly empty name of the module defining this function.
	ModuleName() string

	// Index is the position in the module's function index namespace, imports first.
	Index() uint32

	// Name is the module-defined name of the function.
	Name() string

	// DebugName identifies this function based on Index or Name, for errors and traces.
	// Ex. "env.abort" or "$f3" when no name is available.
	DebugName() string

	// Import returns true with the module and function name when this function is imported.
	Import() (moduleName, name string, isImport bool)

	// ExportNames include all exported names for the given function.
	ExportNames() []string

	// ParamTypes are the possibly empty sequence of value types accepted by a function with this signature.
	ParamTypes() []ValueType

	// ResultTypes are the results of the function.
	ResultTypes() []ValueType
}

// Function is a WebAssembly function exported from an instantiated module.
type Function interface {
	// Definition is metadata about this function from its defining module.
	Definition() FunctionDefinition

	// Call invokes the function with parameters encoded according to ParamTypes. Results are
	// encoded according to ResultTypes. An error is returned for any failure, including a
	// runtime trap (§7) converted to an error at the host boundary (C10).
	Call(ctx context.Context, params ...uint64) ([]uint64, error)
}

// Global is a WebAssembly global exported from an instantiated module.
type Global interface {
	fmt.Stringer

	// Type describes the numeric type of the global.
	Type() ValueType

	// Get returns the last known value of this global.
	Get(context.Context) uint64
}

// MutableGlobal is a Global whose value can be updated at runtime.
type MutableGlobal interface {
	Global

	// Set updates the value of this global.
	Set(ctx context.Context, v uint64)
}

// Table allows restricted access to a module's table (C9). Tables store
// either function references or extern references, never both.
type Table interface {
	// Type is the reference type stored in this table.
	Type() RefType

	// Size returns the current number of elements.
	Size() uint32
}

// Memory allows restricted access to a module's memory: reading, writing, and growing it by whole pages.
type Memory interface {
	// Size returns the size in bytes available. Ex. If the underlying memory has 1 page: 65536
	Size(context.Context) uint32

	// Grow increases memory by the delta in pages (65536 bytes per page).
	// The return val is the previous memory size in pages, or false if the
	// delta was ignored as it exceeds max memory (§4.9 "grow returns −1 on failure").
	Grow(ctx context.Context, deltaPages uint32) (previousPages uint32, ok bool)

	// ReadByte reads a single byte from the underlying buffer at the offset or returns false if out of range.
	ReadByte(ctx context.Context, offset uint32) (byte, bool)

	// ReadUint32Le reads a uint32 in little-endian encoding at the offset or returns false if out of range.
	ReadUint32Le(ctx context.Context, offset uint32) (uint32, bool)

	// ReadUint64Le reads a uint64 in little-endian encoding at the offset or returns false if out of range.
	ReadUint64Le(ctx context.Context, offset uint32) (uint64, bool)

	// Read reads byteCount bytes from the underlying buffer at the offset, or returns false if out of range.
	//
	// This returns a view of the underlying memory, not a copy: writes to the returned slice are visible to
	// Wasm and vice versa, until the memory's capacity changes (e.g. via memory.grow).
	Read(ctx context.Context, offset, byteCount uint32) ([]byte, bool)

	// WriteByte writes a single byte to the underlying buffer at the offset, or returns false if out of range.
	WriteByte(ctx context.Context, offset uint32, v byte) bool

	// WriteUint32Le writes v in little-endian encoding to the underlying buffer at the offset, or returns false
	// if out of range.
	WriteUint32Le(ctx context.Context, offset, v uint32) bool

	// Write writes v to the underlying buffer at the offset, or returns false if out of range.
	Write(ctx context.Context, offset uint32, v []byte) bool
}

// EncodeExternref encodes the input as a ValueTypeExternref.
func EncodeExternref(input uintptr) uint64 { return uint64(input) }

// DecodeExternref decodes the input as a ValueTypeExternref.
func DecodeExternref(input uint64) uintptr { return uintptr(input) }

// EncodeI32 encodes the input as a ValueTypeI32.
func EncodeI32(input int32) uint64 { return uint64(uint32(input)) }

// EncodeI64 encodes the input as a ValueTypeI64.
func EncodeI64(input int64) uint64 { return uint64(input) }

// EncodeF32 encodes the input as a ValueTypeF32.
func EncodeF32(input float32) uint64 { return uint64(math.Float32bits(input)) }

// DecodeF32 decodes the input as a ValueTypeF32.
func DecodeF32(input uint64) float32 { return math.Float32frombits(uint32(input)) }

// EncodeF64 encodes the input as a ValueTypeF64.
func EncodeF64(input float64) uint64 { return math.Float64bits(input) }

// DecodeF64 decodes the input as a ValueTypeF64.
func DecodeF64(input uint64) float64 { return math.Float64frombits(input) }

// GoModuleFunction is a function implemented in Go, invoked with the
// calling Module's context (C12 "Host-Function Wrapping"). Use this
// signature instead of GoFunc when the host function needs access to the
// importing module's memory.
type GoModuleFunction interface {
	Call(ctx context.Context, mod Module, stack []uint64)
}

// GoModuleFunc is a closure adapter for GoModuleFunction.
type GoModuleFunc func(ctx context.Context, mod Module, stack []uint64)

// Call implements GoModuleFunction.Call.
func (f GoModuleFunc) Call(ctx context.Context, mod Module, stack []uint64) { f(ctx, mod, stack) }
