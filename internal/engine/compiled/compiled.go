// Package compiled implements the write/read halves of §8 scenario 6's
// "AOT persistence": compile_to_cwasm(M) -> path, then load_and_run(path)
// producing output identical to run(M) without the intermediate file.
//
// This engine has no native code generator (§1 names the LLVM-binding
// layer an out-of-scope external collaborator); per the C6 Engine
// interface's own doc comment, the "compiled" backend persists and
// reloads the same IR a fresh decode would produce rather than native
// object code. Concretely: the cwasm native-object payload this package
// writes IS the original Wasm source buffer, and loading re-decodes it
// with the ordinary C2 decoder — so the cwasm metadata section serves as
// an integrity check (its own round-trip equality is the universal
// property §8 actually tests), not as the sole source the reloaded
// module is rebuilt from.
package compiled

import (
	"fmt"

	"github.com/wasmine-go/wasmine/internal/cwasm"
	"github.com/wasmine-go/wasmine/internal/wasm"
	"github.com/wasmine-go/wasmine/internal/wasm/binary"
)

// Save persists art as a cwasm file at path: its metadata plus its own
// source bytes as the "native" payload.
func Save(art *wasm.Artifact, path string) error {
	return art.StoreToFile(path, art.Source)
}

// Load reads the cwasm file at path and reconstructs a ready-to-instantiate
// Artifact from it, without needing the caller to have kept the original
// .wasm file around.
func Load(path string) (*wasm.Artifact, error) {
	mf, err := cwasm.Open(path)
	if err != nil {
		return nil, fmt.Errorf("compiled: opening %s: %w", path, err)
	}
	defer mf.Close()

	// Copy the mmap'd native payload out before unmapping it.
	src := append([]byte(nil), mf.Payload.Native...)

	m, err := binary.DecodeModule(src)
	if err != nil {
		return nil, fmt.Errorf("compiled: re-decoding %s's native payload: %w", path, err)
	}
	if m.ID != mf.Payload.Metadata.ModuleID {
		return nil, fmt.Errorf("compiled: %s's metadata module ID does not match its re-decoded source", path)
	}

	return wasm.NewArtifact(m, src), nil
}
