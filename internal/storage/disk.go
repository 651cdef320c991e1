package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/nkhmaladze/BufferManagerDB/internal/alias/bx"
	"github.com/nkhmaladze/BufferManagerDB/internal/alias/util"
)

// Header page layout (page slot 0 of every file).
const (
	offMagic     = 0
	offCapacity  = 4
	offAllocated = 8
	offBitmap    = headerFixedSize

	headerMagic uint32 = 0x46465542 // "BUFF"
)

// Namer resolves a file id to the name of its backing file.
type Namer interface {
	FileName(id FileID) (string, error)
}

type DiskOptions struct {
	FileCapacity uint32 // pages per file, capped at MaxPagesPerFile
	MaxOpenFiles int
}

func (o DiskOptions) withDefaults() DiskOptions {
	if o.FileCapacity == 0 {
		o.FileCapacity = DefaultFileCapacity
	}
	if o.FileCapacity > MaxPagesPerFile {
		o.FileCapacity = MaxPagesPerFile
	}
	if o.MaxOpenFiles <= 0 {
		o.MaxOpenFiles = DefaultMaxOpenFiles
	}
	return o
}

type fileHandle struct {
	name string
	f    afero.File
	hdr  []byte // header page, written through on every allocation change
}

func (h *fileHandle) capacity() uint32  { return bx.U32At(h.hdr, offCapacity) }
func (h *fileHandle) allocated() uint32 { return bx.U32At(h.hdr, offAllocated) }
func (h *fileHandle) bitmap() []byte    { return h.hdr[offBitmap:] }

func (h *fileHandle) isAllocated(num PageNum) bool {
	return uint32(num) < h.capacity() && bx.Bit(h.bitmap(), int(num))
}

func (h *fileHandle) writeHeader() error {
	_, err := h.f.WriteAt(h.hdr, 0)
	return err
}

// pageOffset maps a page number to its byte offset; slot 0 holds the header.
func pageOffset(num PageNum) int64 {
	return (int64(num) + 1) * PageSize
}

// DiskManager owns the on-disk files: page allocation per file, and page
// reads/writes at fixed offsets. Open handles are kept in an LRU cache.
type DiskManager struct {
	fs    afero.Fs
	names Namer
	opts  DiskOptions

	mu      sync.Mutex
	handles *lru.Cache // FileID -> *fileHandle
}

func NewDiskManager(fsys afero.Fs, names Namer, opts DiskOptions) (*DiskManager, error) {
	opts = opts.withDefaults()
	handles, err := lru.NewWithEvict(opts.MaxOpenFiles, func(key, value interface{}) {
		h := value.(*fileHandle)
		slog.Debug("storage: close handle", "file", key, "name", h.name)
		util.CloseLogged(h.f, h.name)
	})
	if err != nil {
		return nil, fmt.Errorf("storage: handle cache: %w", err)
	}
	return &DiskManager{
		fs:      fsys,
		names:   names,
		opts:    opts,
		handles: handles,
	}, nil
}

func (dm *DiskManager) fileName(id FileID) (string, error) {
	name, err := dm.names.FileName(id)
	if err != nil {
		return "", fmt.Errorf("%w: %d (%v)", ErrInvalidFileID, id, err)
	}
	return name, nil
}

// open returns the cached handle of id, opening the file on a miss.
// Caller must hold dm.mu.
func (dm *DiskManager) open(id FileID) (*fileHandle, error) {
	if v, ok := dm.handles.Get(id); ok {
		return v.(*fileHandle), nil
	}

	name, err := dm.fileName(id)
	if err != nil {
		return nil, err
	}
	f, err := dm.fs.OpenFile(name, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %d (%s not created)", ErrInvalidFileID, id, name)
		}
		return nil, err
	}

	hdr := make([]byte, PageSize)
	if n, err := f.ReadAt(hdr, 0); n != PageSize {
		util.CloseLogged(f, name)
		return nil, fmt.Errorf("%w: %s: short header (%d bytes, %v)", ErrCorruptHeader, name, n, err)
	}
	if bx.U32At(hdr, offMagic) != headerMagic {
		util.CloseLogged(f, name)
		return nil, fmt.Errorf("%w: %s: bad magic", ErrCorruptHeader, name)
	}

	h := &fileHandle{name: name, f: f, hdr: hdr}
	dm.handles.Add(id, h)
	return h, nil
}

// CreateFile creates the backing file of id with an empty allocation map.
func (dm *DiskManager) CreateFile(id FileID) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	name, err := dm.fileName(id)
	if err != nil {
		return err
	}
	exists, err := afero.Exists(dm.fs, name)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrFileExists, name)
	}

	f, err := dm.fs.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, FileMode0644)
	if err != nil {
		return err
	}
	h := &fileHandle{name: name, f: f, hdr: make([]byte, PageSize)}
	bx.PutU32At(h.hdr, offMagic, headerMagic)
	bx.PutU32At(h.hdr, offCapacity, dm.opts.FileCapacity)
	bx.PutU32At(h.hdr, offAllocated, 0)
	if err := h.writeHeader(); err != nil {
		util.CloseLogged(f, name)
		return err
	}

	dm.handles.Add(id, h)
	slog.Debug("storage: file created", "file", id, "name", name, "capacity", dm.opts.FileCapacity)
	return nil
}

// RemoveFile closes and deletes the backing file of id.
func (dm *DiskManager) RemoveFile(id FileID) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	name, err := dm.fileName(id)
	if err != nil {
		return err
	}
	dm.handles.Remove(id)

	exists, err := afero.Exists(dm.fs, name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %d (%s not created)", ErrInvalidFileID, id, name)
	}
	return dm.fs.Remove(name)
}

// AllocatePage reserves the lowest free page number of file id.
func (dm *DiskManager) AllocatePage(id FileID) (PageID, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	h, err := dm.open(id)
	if err != nil {
		return InvalidPageID, err
	}

	slot := bx.FirstClear(h.bitmap(), int(h.capacity()))
	if slot < 0 {
		return InvalidPageID, fmt.Errorf("%w: file %d holds %d pages", ErrInsufficientSpace, id, h.capacity())
	}
	num := PageNum(slot)

	// Extend the file so the new page reads back as zeroes.
	if _, err := h.f.WriteAt(make([]byte, PageSize), pageOffset(num)); err != nil {
		return InvalidPageID, err
	}

	bx.SetBit(h.bitmap(), slot)
	bx.PutU32At(h.hdr, offAllocated, h.allocated()+1)
	if err := h.writeHeader(); err != nil {
		bx.ClearBit(h.bitmap(), slot)
		bx.PutU32At(h.hdr, offAllocated, h.allocated()-1)
		return InvalidPageID, err
	}
	return PageID{FileID: id, PageNum: num}, nil
}

// DeallocatePage returns page id to its file's free pages.
func (dm *DiskManager) DeallocatePage(id PageID) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	h, err := dm.checkedHandle(id)
	if err != nil {
		return err
	}

	bx.ClearBit(h.bitmap(), int(id.PageNum))
	bx.PutU32At(h.hdr, offAllocated, h.allocated()-1)
	if err := h.writeHeader(); err != nil {
		bx.SetBit(h.bitmap(), int(id.PageNum))
		bx.PutU32At(h.hdr, offAllocated, h.allocated()+1)
		return err
	}
	return nil
}

// ReadPage reads exactly one page into dst. Bytes past the end of the file
// read as zero.
func (dm *DiskManager) ReadPage(id PageID, dst []byte) error {
	if len(dst) != PageSize {
		return ErrWrongSize
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()

	h, err := dm.checkedHandle(id)
	if err != nil {
		return err
	}

	n, err := h.f.ReadAt(dst, pageOffset(id.PageNum))
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return err
	}
	clear(dst[n:])
	return nil
}

// WritePage writes exactly one page from src.
func (dm *DiskManager) WritePage(id PageID, src []byte) error {
	if len(src) != PageSize {
		return ErrWrongSize
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()

	h, err := dm.checkedHandle(id)
	if err != nil {
		return err
	}

	n, err := h.f.WriteAt(src, pageOffset(id.PageNum))
	if err != nil {
		return err
	}
	if n != PageSize {
		return io.ErrShortWrite
	}
	return nil
}

// Size returns the number of allocated pages of file id.
func (dm *DiskManager) Size(id FileID) (uint32, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	h, err := dm.open(id)
	if err != nil {
		return 0, err
	}
	return h.allocated(), nil
}

// Capacity returns the maximum number of pages file id can hold.
func (dm *DiskManager) Capacity(id FileID) (uint32, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	h, err := dm.open(id)
	if err != nil {
		return 0, err
	}
	return h.capacity(), nil
}

// Close syncs and closes every open handle.
func (dm *DiskManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	var err error
	for _, k := range dm.handles.Keys() {
		v, ok := dm.handles.Peek(k)
		if !ok {
			continue
		}
		err = multierr.Append(err, v.(*fileHandle).f.Sync())
	}
	dm.handles.Purge()
	return err
}

func (dm *DiskManager) checkedHandle(id PageID) (*fileHandle, error) {
	h, err := dm.open(id.FileID)
	if err != nil {
		return nil, err
	}
	if !h.isAllocated(id.PageNum) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPageNum, id)
	}
	return h, nil
}
