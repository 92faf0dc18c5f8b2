package wasmine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/wasmine-go/wasmine/internal/engine/compiled"
	"github.com/wasmine-go/wasmine/internal/wasm"
)

// CompilationCache persists compiled modules as cwasm files on disk across
// process restarts (§6, §8 scenario 6), grounded on the teacher's own
// Cache/NewCache + FileCache split (cache.go), simplified here to a single
// directory-backed cache since this engine has one artifact format, not
// several codegen backends to key by.
type CompilationCache struct {
	dir string
}

// NewCompilationCache creates (if needed) and returns a cache rooted at
// dir.
func NewCompilationCache(dir string) (*CompilationCache, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("wasmine: creating cache dir %s: %w", dir, err)
	}
	return &CompilationCache{dir: dir}, nil
}

func (c *CompilationCache) pathFor(id wasm.ModuleID) string {
	return filepath.Join(c.dir, fmt.Sprintf("%x.cwasm", id))
}

// Store writes art to the cache under a name derived from its module ID.
func (c *CompilationCache) Store(art *wasm.Artifact) error {
	return compiled.Save(art, c.pathFor(art.Module.ID))
}

// Load fetches a previously stored Artifact for id, or (nil, false) on a
// cache miss.
func (c *CompilationCache) Load(id wasm.ModuleID) (*wasm.Artifact, bool) {
	path := c.pathFor(id)
	if _, err := os.Stat(path); err != nil {
		return nil, false
	}
	art, err := compiled.Load(path)
	if err != nil {
		return nil, false
	}
	return art, true
}

// CompileToCWasm decodes src, then persists it at path as a cwasm file —
// the store_to_file half of §8 scenario 6, exposed directly for callers
// that want the file without going through a CompilationCache directory.
func CompileToCWasm(src []byte, path string) error {
	m, err := decodeModule(src)
	if err != nil {
		return err
	}
	return compiled.Save(wasm.NewArtifact(m, src), path)
}

// LoadFromCWasm reads a previously written cwasm file back into an
// Artifact ready for CompileArtifact and Runtime.InstantiateModule, without needing the
// original .wasm bytes — the load_and_run half of §8 scenario 6.
func LoadFromCWasm(path string) (*wasm.Artifact, error) {
	return compiled.Load(path)
}
