package cwasm

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// MappedFile is a cwasm file opened for read via mmap: the native-object
// payload is exposed as a byte slice backed directly by the page cache
// rather than copied into the Go heap, for the same reason the source
// buffer (C1) is mmap'd — large modules shouldn't cost a full read()
// copy just to be looked at.
type MappedFile struct {
	data    []byte
	Payload *Payload
}

// Open mmaps path and decodes its cwasm header/metadata. The returned
// MappedFile must be Closed to release the mapping.
func Open(path string) (*MappedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if st.Size() == 0 {
		return nil, fmt.Errorf("cwasm: %s is empty", path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("cwasm: mmap %s: %w", path, err)
	}

	payload, err := Decode(data)
	if err != nil {
		_ = unix.Munmap(data)
		return nil, err
	}
	return &MappedFile{data: data, Payload: payload}, nil
}

// Close unmaps the file.
func (m *MappedFile) Close() error {
	if m.data == nil {
		return nil
	}
	err := unix.Munmap(m.data)
	m.data = nil
	return err
}

// WriteFile encodes meta/native into cwasm format and writes it to path,
// the store_to_file operation (§3, §8 scenario 6 "AOT persistence").
func WriteFile(path string, meta Metadata, native []byte) error {
	buf, err := Encode(meta, native)
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o644)
}
