// Package cwasm implements C7, the compiled-module file format: a module's
// decoded metadata plus an engine's "native object" payload packed into one
// file that can be mmap'd back for read, avoiding re-parsing and
// re-lowering on a warm start (§6 "Compiled-module file (cwasm)").
//
// The wire layout is a fixed 8-byte big-endian header (metadata length,
// native-object offset), the metadata blob, padding to an even offset, then
// the native object bytes:
//
//	offset 0  : u32 BE = M (metadata length)
//	offset 4  : u32 BE = N (native object offset)
//	offset 8  : M bytes = serialized metadata
//	offset 8+M: padding to next even offset
//	offset N  : remainder = native object payload
//
// Metadata is serialized with msgpack (github.com/vmihailenco/msgpack/v5)
// rather than gob or JSON: it is the same compact, self-describing,
// schema-stable binary codec the rest of the example pack reaches for
// (grafana-k6's dependency tree) whenever a binary artifact format needs a
// typed, versionable schema instead of a byte-for-byte memory dump.
package cwasm

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Metadata is the stable, serializable projection of a decoded module (§3's
// "entities") that a cwasm file's metadata blob holds. It intentionally
// does not reuse internal/wasm.Module directly: that struct is free to
// evolve with the in-memory decoder, while this one is the on-disk
// contract readers must keep decoding compatibly (spec's "stable wire
// format independent of in-memory layout").
type Metadata struct {
	ModuleID      [32]byte
	TypeSection   []MetaFunctionType
	FunctionTypes []uint32 // per-function type index, combined index space
	ImportCount   uint32
	MemoryPages   MetaLimits
	HasMemory     bool
	TablePages    []MetaLimits
	GlobalTypes   []MetaGlobalType
	FunctionNames map[uint32]string
}

type MetaFunctionType struct {
	Params, Results []byte
}

type MetaLimits struct {
	Min, Max uint32
	HasMax   bool
}

type MetaGlobalType struct {
	ValType byte
	Mutable bool
}

// Payload is a cwasm file's in-memory representation once decoded: the
// metadata plus a view of the native-object bytes (backed by an mmap on
// the read path — see Open).
type Payload struct {
	Metadata Metadata
	Native   []byte
}

// Encode writes a cwasm-format file's bytes: header, msgpack metadata
// (padded to an even offset), then native verbatim.
func Encode(meta Metadata, native []byte) ([]byte, error) {
	metaBytes, err := msgpack.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("cwasm: encode metadata: %w", err)
	}

	metaOffset := 8
	nativeOffset := metaOffset + len(metaBytes)
	if nativeOffset%2 != 0 {
		nativeOffset++
	}

	buf := make([]byte, nativeOffset+len(native))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(metaBytes)))
	binary.BigEndian.PutUint32(buf[4:8], uint32(nativeOffset))
	copy(buf[metaOffset:], metaBytes)
	copy(buf[nativeOffset:], native)
	return buf, nil
}

// Decode parses a cwasm file's bytes (however they were obtained — a plain
// read or an mmap) into a Payload. Decode rejects files whose metadata
// fails to unmarshal against Metadata's schema, per spec.
func Decode(data []byte) (*Payload, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("cwasm: file too short (%d bytes)", len(data))
	}
	metaLen := binary.BigEndian.Uint32(data[0:4])
	nativeOffset := binary.BigEndian.Uint32(data[4:8])
	if int(nativeOffset) > len(data) || 8+int(metaLen) > int(nativeOffset) {
		return nil, fmt.Errorf("cwasm: corrupt header (metaLen=%d nativeOffset=%d filelen=%d)", metaLen, nativeOffset, len(data))
	}

	var meta Metadata
	dec := msgpack.NewDecoder(bytes.NewReader(data[8 : 8+metaLen]))
	if err := dec.Decode(&meta); err != nil {
		return nil, fmt.Errorf("cwasm: decode metadata: %w", err)
	}

	return &Payload{Metadata: meta, Native: data[nativeOffset:]}, nil
}
