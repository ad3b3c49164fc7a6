package disk

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Blackdeer1524/RelDB/src/pkg/common"
)

func TestManager_CreatesHeaderPage(t *testing.T) {
	fs := afero.NewMemMapFs()

	m, err := New(fs, "test.data", nil)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, common.PageID(1), m.PageCount())
	assert.NotEqual(t, [16]byte{}, [16]byte(m.DatabaseID()))
}

func TestManager_PageRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()

	m, err := New(fs, "test.data", nil)
	require.NoError(t, err)
	defer m.Close()

	out := make([]byte, common.PageSize)
	copy(out, []byte("page one payload"))
	require.NoError(t, m.WritePage(1, out))

	in := make([]byte, common.PageSize)
	require.NoError(t, m.ReadPage(1, in))
	assert.True(t, bytes.Equal(out, in))

	assert.Equal(t, common.PageID(2), m.PageCount())
}

func TestManager_ReadBeyondEOF(t *testing.T) {
	fs := afero.NewMemMapFs()

	m, err := New(fs, "test.data", nil)
	require.NoError(t, err)
	defer m.Close()

	buf := make([]byte, common.PageSize)
	err = m.ReadPage(10, buf)
	assert.ErrorIs(t, err, ErrNoSuchPage)
}

func TestManager_RejectsShortBuffers(t *testing.T) {
	fs := afero.NewMemMapFs()

	m, err := New(fs, "test.data", nil)
	require.NoError(t, err)
	defer m.Close()

	assert.ErrorIs(t, m.ReadPage(1, make([]byte, 100)), ErrShortBuffer)
	assert.ErrorIs(t, m.WritePage(1, make([]byte, 100)), ErrShortBuffer)
}

func TestManager_ReopenKeepsIdentity(t *testing.T) {
	fs := afero.NewMemMapFs()

	m, err := New(fs, "test.data", nil)
	require.NoError(t, err)
	dbID := m.DatabaseID()

	out := make([]byte, common.PageSize)
	copy(out, []byte("survives reopen"))
	require.NoError(t, m.WritePage(1, out))
	require.NoError(t, m.Sync())
	require.NoError(t, m.Close())

	reopened, err := New(fs, "test.data", nil)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, dbID, reopened.DatabaseID())
	assert.Equal(t, common.PageID(2), reopened.PageCount())

	in := make([]byte, common.PageSize)
	require.NoError(t, reopened.ReadPage(1, in))
	assert.True(t, bytes.Equal(out, in))
}

func TestManager_RejectsForeignFiles(t *testing.T) {
	fs := afero.NewMemMapFs()

	garbage := make([]byte, common.PageSize)
	copy(garbage, []byte("not a database"))
	require.NoError(t, afero.WriteFile(fs, "foreign.data", garbage, 0o600))

	_, err := New(fs, "foreign.data", nil)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestManager_RejectsTruncatedFiles(t *testing.T) {
	fs := afero.NewMemMapFs()

	require.NoError(t, afero.WriteFile(fs, "torn.data", make([]byte, 100), 0o600))

	_, err := New(fs, "torn.data", nil)
	assert.ErrorIs(t, err, ErrFileCorrupted)
}

func TestInMemoryManager_RoundTrip(t *testing.T) {
	m := NewInMemoryManager()

	buf := make([]byte, common.PageSize)
	require.ErrorIs(t, m.ReadPage(0, buf), ErrNoSuchPage)

	copy(buf, []byte("in memory"))
	require.NoError(t, m.WritePage(0, buf))

	in := make([]byte, common.PageSize)
	require.NoError(t, m.ReadPage(0, in))
	assert.True(t, bytes.Equal(buf, in))
	assert.Equal(t, 1, m.WriteCount())
}
