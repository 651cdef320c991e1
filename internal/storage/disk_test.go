package storage

import (
	"fmt"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapNamer names every file "<id>.rel" unless it is listed in missing.
type mapNamer struct {
	missing map[FileID]bool
}

func (n mapNamer) FileName(id FileID) (string, error) {
	if n.missing[id] {
		return "", fmt.Errorf("no entry %d", id)
	}
	return fmt.Sprintf("%d.rel", id), nil
}

func newTestDisk(t *testing.T, opts DiskOptions) (*DiskManager, afero.Fs) {
	t.Helper()

	fsys := afero.NewMemMapFs()
	dm, err := NewDiskManager(fsys, mapNamer{missing: map[FileID]bool{99: true}}, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dm.Close() })
	return dm, fsys
}

func TestDiskManager_CreateFile(t *testing.T) {
	dm, fsys := newTestDisk(t, DiskOptions{FileCapacity: 8})

	require.NoError(t, dm.CreateFile(1))

	exists, err := afero.Exists(fsys, "1.rel")
	require.NoError(t, err)
	require.True(t, exists)

	size, err := dm.Size(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), size)

	capacity, err := dm.Capacity(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(8), capacity)

	require.ErrorIs(t, dm.CreateFile(1), ErrFileExists)
	require.ErrorIs(t, dm.CreateFile(99), ErrInvalidFileID)
}

func TestDiskManager_AllocatePage_LowestFreeFirst(t *testing.T) {
	dm, _ := newTestDisk(t, DiskOptions{FileCapacity: 4})
	require.NoError(t, dm.CreateFile(1))

	for want := range 4 {
		id, err := dm.AllocatePage(1)
		require.NoError(t, err)
		assert.Equal(t, PageID{FileID: 1, PageNum: PageNum(want)}, id)
	}

	_, err := dm.AllocatePage(1)
	require.ErrorIs(t, err, ErrInsufficientSpace)

	require.NoError(t, dm.DeallocatePage(PageID{FileID: 1, PageNum: 2}))
	size, err := dm.Size(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), size)

	id, err := dm.AllocatePage(1)
	require.NoError(t, err)
	assert.Equal(t, PageNum(2), id.PageNum)
}

func TestDiskManager_ReadWrite_RoundTrip(t *testing.T) {
	dm, _ := newTestDisk(t, DiskOptions{FileCapacity: 4})
	require.NoError(t, dm.CreateFile(1))

	id, err := dm.AllocatePage(1)
	require.NoError(t, err)

	buf := make([]byte, PageSize)
	require.NoError(t, dm.ReadPage(id, buf))
	assert.Equal(t, make([]byte, PageSize), buf, "fresh page reads as zeroes")

	for i := range buf {
		buf[i] = byte(i % 251)
	}
	require.NoError(t, dm.WritePage(id, buf))

	got := make([]byte, PageSize)
	require.NoError(t, dm.ReadPage(id, got))
	assert.Equal(t, buf, got)
}

func TestDiskManager_InvalidIdentity(t *testing.T) {
	dm, _ := newTestDisk(t, DiskOptions{FileCapacity: 4})
	require.NoError(t, dm.CreateFile(1))
	buf := make([]byte, PageSize)

	// Never created.
	_, err := dm.AllocatePage(2)
	require.ErrorIs(t, err, ErrInvalidFileID)
	require.ErrorIs(t, dm.ReadPage(PageID{FileID: 2, PageNum: 0}, buf), ErrInvalidFileID)

	// Not allocated and out of range.
	require.ErrorIs(t, dm.ReadPage(PageID{FileID: 1, PageNum: 0}, buf), ErrInvalidPageNum)
	require.ErrorIs(t, dm.WritePage(PageID{FileID: 1, PageNum: 100}, buf), ErrInvalidPageNum)
	require.ErrorIs(t, dm.DeallocatePage(PageID{FileID: 1, PageNum: 3}), ErrInvalidPageNum)

	// Wrong buffer size.
	require.ErrorIs(t, dm.ReadPage(PageID{FileID: 1, PageNum: 0}, buf[:10]), ErrWrongSize)
}

func TestDiskManager_RemoveFile(t *testing.T) {
	dm, fsys := newTestDisk(t, DiskOptions{FileCapacity: 4})
	require.NoError(t, dm.CreateFile(1))
	_, err := dm.AllocatePage(1)
	require.NoError(t, err)

	require.NoError(t, dm.RemoveFile(1))
	exists, err := afero.Exists(fsys, "1.rel")
	require.NoError(t, err)
	require.False(t, exists)

	_, err = dm.Size(1)
	require.ErrorIs(t, err, ErrInvalidFileID)
	require.ErrorIs(t, dm.RemoveFile(1), ErrInvalidFileID)

	// The id can be reused after removal.
	require.NoError(t, dm.CreateFile(1))
}

func TestDiskManager_HandleEviction_ReopensFromHeader(t *testing.T) {
	dm, _ := newTestDisk(t, DiskOptions{FileCapacity: 4, MaxOpenFiles: 1})

	require.NoError(t, dm.CreateFile(1))
	a, err := dm.AllocatePage(1)
	require.NoError(t, err)

	buf := make([]byte, PageSize)
	buf[0] = 0xAB
	require.NoError(t, dm.WritePage(a, buf))

	// Opening file 2 evicts the handle of file 1.
	require.NoError(t, dm.CreateFile(2))
	require.Equal(t, 1, dm.handles.Len())

	size, err := dm.Size(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), size, "allocation map survives reopen")

	got := make([]byte, PageSize)
	require.NoError(t, dm.ReadPage(a, got))
	assert.Equal(t, byte(0xAB), got[0])
}

func TestDiskManager_CorruptHeader(t *testing.T) {
	dm, fsys := newTestDisk(t, DiskOptions{})
	require.NoError(t, afero.WriteFile(fsys, "5.rel", []byte("not a header"), FileMode0644))

	_, err := dm.Size(5)
	require.ErrorIs(t, err, ErrCorruptHeader)
}

func TestDiskOptions_Defaults(t *testing.T) {
	o := DiskOptions{}.withDefaults()
	assert.Equal(t, uint32(DefaultFileCapacity), o.FileCapacity)
	assert.Equal(t, DefaultMaxOpenFiles, o.MaxOpenFiles)

	o = DiskOptions{FileCapacity: MaxPagesPerFile + 1}.withDefaults()
	assert.Equal(t, uint32(MaxPagesPerFile), o.FileCapacity)
}
