package reader

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReader_Basics(t *testing.T) {
	r := New([]byte{0x2a, 0x01, 0x00, 0x00, 0x00, 0x05, 0x68, 0x65, 0x6c, 0x6c, 0x6f})
	b, err := r.Byte()
	require.NoError(t, err)
	require.Equal(t, byte(0x2a), b)

	u, err := r.U32()
	require.NoError(t, err)
	require.Equal(t, uint32(1), u)

	name, err := r.Name()
	require.NoError(t, err)
	require.Equal(t, "hello", name)

	require.Equal(t, 0, r.Len())
}

func TestReader_UnexpectedEOF(t *testing.T) {
	r := New([]byte{0x01})
	_, err := r.U32()
	require.ErrorIs(t, err, ErrUnexpectedEOF)
}

func TestReader_VarInts(t *testing.T) {
	r := New([]byte{0x7f, 0xe5, 0x8e, 0x26})
	v, err := r.VarInt32()
	require.NoError(t, err)
	require.Equal(t, int32(-1), v)

	u, err := r.VarUint32()
	require.NoError(t, err)
	require.Equal(t, uint32(624485), u)
}

func TestReader_InvalidUTF8(t *testing.T) {
	r := New([]byte{0x01, 0xff})
	_, err := r.Name()
	require.ErrorIs(t, err, ErrInvalidUTF8)
}

func TestReader_Advance(t *testing.T) {
	r := New([]byte{1, 2, 3, 4})
	require.NoError(t, r.Advance(2))
	require.Equal(t, 2, r.Len())
	require.Error(t, r.Advance(10))
}
