package bufferpool

import "github.com/nkhmaladze/BufferManagerDB/internal/storage"

// DiskManager is the on-disk side of the pool: page allocation per file
// and whole-page I/O.
type DiskManager interface {
	AllocatePage(fid storage.FileID) (storage.PageID, error)
	DeallocatePage(id storage.PageID) error
	ReadPage(id storage.PageID, dst []byte) error
	WritePage(id storage.PageID, src []byte) error
	CreateFile(fid storage.FileID) error
	RemoveFile(fid storage.FileID) error
	Size(fid storage.FileID) (uint32, error)
	Capacity(fid storage.FileID) (uint32, error)
}

var _ DiskManager = (*storage.DiskManager)(nil)

// Manager is the page-level surface a FileView is built on.
type Manager interface {
	AllocatePage(fid storage.FileID) (*storage.Page, storage.PageID, error)
	GetPage(id storage.PageID) (*storage.Page, error)
	ReleasePage(id storage.PageID, dirty bool) error
	DeallocatePage(id storage.PageID) error
	FlushFile(fid storage.FileID) error
	FileSize(fid storage.FileID) (uint32, error)
}

var _ Manager = (*BufferManager)(nil)
