package storage

import (
	"errors"
	"fmt"
	"math"
)

const (
	PageSize = 1 << 12 // 4,096 (4 KiB)

	// headerFixedSize covers magic, capacity and allocated count of a file header page.
	headerFixedSize = 12
	// MaxPagesPerFile is bounded by the allocation bitmap that fits in the header page.
	MaxPagesPerFile = (PageSize - headerFixedSize) * 8

	DefaultFileCapacity = 1024
	DefaultMaxOpenFiles = 64
)

const (
	FileMode0644 = 0o644
	FileMode0755 = 0o755
)

var (
	ErrInvalidFileID     = errors.New("storage: invalid file id")
	ErrInvalidPageNum    = errors.New("storage: invalid page number")
	ErrInsufficientSpace = errors.New("storage: no free page left in file")
	ErrFileExists        = errors.New("storage: file already exists")
	ErrWrongSize         = errors.New("storage: buffer size != PageSize")
	ErrCorruptHeader     = errors.New("storage: corrupt file header")
)

// FileID identifies a file registered in the catalog.
type FileID uint32

// PageNum is the page number inside a file.
type PageNum uint32

const (
	InvalidFileID  FileID  = math.MaxUint32
	InvalidPageNum PageNum = math.MaxUint32
)

// PageID is the logical identity of a page: {file, page number}.
type PageID struct {
	FileID  FileID
	PageNum PageNum
}

// InvalidPageID marks an empty frame.
var InvalidPageID = PageID{FileID: InvalidFileID, PageNum: InvalidPageNum}

func (id PageID) IsValid() bool {
	return id.FileID != InvalidFileID && id.PageNum != InvalidPageNum
}

func (id PageID) String() string {
	return fmt.Sprintf("{%d,%d}", id.FileID, id.PageNum)
}
