package pdb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/microsoft/pdb-rs-sub001/msf"
)

// newTestMSFFile writes a brand-new, minimal MSF container to path with the
// given stream contents and returns it for reading back.
func newTestMSFFile(t *testing.T, path string, streams [][]byte) {
	t.Helper()

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	require.NoError(t, err)
	defer f.Close()

	w := msf.NewWriter(f, msf.BlockSize4096)
	for _, s := range streams {
		w.AddStream(s)
	}
	require.NoError(t, w.Commit())
}

func TestModifyRejectsMSFZContainer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fake.msfz")

	data := append([]byte("Microsoft MSFZ Container\r\n\x1aALD\x00\x00"), make([]byte, 64)...)
	require.NoError(t, os.WriteFile(path, data, 0644))

	_, err := Modify(path)
	require.ErrorIs(t, err, ErrMSFZReadOnly)
}

func TestModifySetStreamCommitRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.pdb")

	newTestMSFFile(t, path, [][]byte{
		[]byte("stream zero"),
		[]byte("stream one"),
	})

	f, err := Modify(path)
	require.NoError(t, err)

	require.NoError(t, f.SetStream(1, []byte("stream one, revised")))
	require.NoError(t, f.Commit())
	require.NoError(t, f.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	got0, err := reopened.msf.ReadStream(0)
	require.NoError(t, err)
	require.Equal(t, "stream zero", string(got0))

	got1, err := reopened.msf.ReadStream(1)
	require.NoError(t, err)
	require.Equal(t, "stream one, revised", string(got1))
}

func TestSetStreamAndCommitRejectReadOnlyFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "readonly.pdb")
	newTestMSFFile(t, path, [][]byte{[]byte("only stream")})

	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	require.ErrorIs(t, f.SetStream(0, []byte("nope")), ErrReadOnly)
	require.ErrorIs(t, f.Commit(), ErrReadOnly)
	require.ErrorIs(t, f.FlushAll(), ErrReadOnly)
}
