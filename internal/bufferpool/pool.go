package bufferpool

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.uber.org/multierr"

	"github.com/nkhmaladze/BufferManagerDB/internal/storage"
)

const DefaultCapacity = 128

var (
	ErrInsufficientSpace = errors.New("bufferpool: insufficient space (all frames pinned)")
	ErrInvalidPolicy     = errors.New("bufferpool: invalid replacement policy")
	ErrPageNotFound      = errors.New("bufferpool: page not resident")
	ErrPageNotPinned     = errors.New("bufferpool: page is not pinned")
	ErrPagePinned        = errors.New("bufferpool: page is pinned")
	ErrPageAlreadyLoaded = errors.New("bufferpool: page already loaded")
	ErrInvalidPageID     = errors.New("bufferpool: invalid page id")
	ErrClosed            = errors.New("bufferpool: manager closed")
)

type Options struct {
	Size   int // number of frames; <= 0 means DefaultCapacity
	Policy PolicyType
	Seed   uint64 // used by PolicyRandom
}

// BufferManager caches pages of many files in a fixed set of frames.
// Every exported method runs under one mutex covering frames, the buffer
// map and the policy; disk I/O happens inside that critical section.
type BufferManager struct {
	disk DiskManager

	mu        sync.Mutex
	frames    frameTable
	pages     []storage.Page // pages[i] is the data of frames[i]
	bufMap    *BufferMap
	policy    Policy
	numPinned int    // frames with Pin > 0
	scratch   []byte // read target on a miss
	closed    bool
}

func New(disk DiskManager, opts Options) (*BufferManager, error) {
	size := opts.Size
	if size <= 0 {
		size = DefaultCapacity
	}

	frames := newFrameTable(size)
	policy, err := newPolicy(opts.Policy, frames, opts.Seed)
	if err != nil {
		return nil, err
	}

	return &BufferManager{
		disk:    disk,
		frames:  frames,
		pages:   storage.Arena(size),
		bufMap:  NewBufferMap(size),
		policy:  policy,
		scratch: make([]byte, storage.PageSize),
	}, nil
}

func (bm *BufferManager) Size() int { return len(bm.frames) }

func (bm *BufferManager) allPinned() bool { return bm.numPinned == len(bm.frames) }

// install makes frame f hold id, pinned once.
func (bm *BufferManager) install(f FrameID, id storage.PageID) error {
	if err := bm.bufMap.Insert(id, f); err != nil {
		bm.frames[f].reset()
		bm.policy.FreeFrame(f)
		return err
	}
	bm.frames[f].load(id)
	bm.numPinned++
	bm.policy.Pin(f)
	bm.policy.RecordRequest()
	return nil
}

// acquireFrame takes a victim from the policy, writes it back if dirty and
// returns it reset. On a failed write-back the victim stays resident.
func (bm *BufferManager) acquireFrame() (FrameID, error) {
	f, err := bm.policy.Replace()
	if err != nil {
		return InvalidFrameID, err
	}

	fr := &bm.frames[f]
	if fr.Valid {
		if err := bm.writeBack(f); err != nil {
			return InvalidFrameID, err
		}
		if err := bm.bufMap.Remove(fr.PageID); err != nil {
			return InvalidFrameID, err
		}
		slog.Debug("bufferpool: evict", "frame", f, "page", fr.PageID)
	}
	fr.reset()
	return f, nil
}

// writeBack flushes frame f if it is dirty.
func (bm *BufferManager) writeBack(f FrameID) error {
	fr := &bm.frames[f]
	if !fr.Dirty {
		return nil
	}
	if err := bm.disk.WritePage(fr.PageID, bm.pages[f].Buf); err != nil {
		return fmt.Errorf("bufferpool: write back %s: %w", fr.PageID, err)
	}
	fr.Dirty = false
	slog.Debug("bufferpool: flush", "frame", f, "page", fr.PageID)
	return nil
}

// AllocatePage allocates a new page in file fid and returns it pinned,
// zeroed and clean.
func (bm *BufferManager) AllocatePage(fid storage.FileID) (*storage.Page, storage.PageID, error) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if bm.closed {
		return nil, storage.InvalidPageID, ErrClosed
	}
	if bm.allPinned() {
		return nil, storage.InvalidPageID, fmt.Errorf("%w: allocate in file %d", ErrInsufficientSpace, fid)
	}

	id, err := bm.disk.AllocatePage(fid)
	if err != nil {
		return nil, storage.InvalidPageID, err
	}

	f, err := bm.acquireFrame()
	if err != nil {
		if derr := bm.disk.DeallocatePage(id); derr != nil {
			err = multierr.Append(err, derr)
		}
		return nil, storage.InvalidPageID, err
	}

	page := &bm.pages[f]
	page.Zero()
	if err := bm.install(f, id); err != nil {
		return nil, storage.InvalidPageID, err
	}
	return page, id, nil
}

// GetPage returns page id pinned, reading it from disk on a miss.
func (bm *BufferManager) GetPage(id storage.PageID) (*storage.Page, error) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if bm.closed {
		return nil, ErrClosed
	}
	if !id.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPageID, id)
	}

	if f, err := bm.bufMap.Get(id); err == nil {
		fr := &bm.frames[f]
		fr.Pin++
		if fr.Pin == 1 {
			bm.numPinned++
			bm.policy.Pin(f)
		}
		bm.policy.RecordRequest()
		return &bm.pages[f], nil
	}

	if bm.allPinned() {
		return nil, fmt.Errorf("%w: fetch %s", ErrInsufficientSpace, id)
	}

	f, err := bm.policy.Replace()
	if err != nil {
		return nil, err
	}
	fr := &bm.frames[f]
	if fr.Valid {
		if err := bm.writeBack(f); err != nil {
			return nil, err
		}
	}

	if err := bm.disk.ReadPage(id, bm.scratch); err != nil {
		if !fr.Valid {
			bm.policy.FreeFrame(f)
		}
		if errors.Is(err, storage.ErrInvalidFileID) || errors.Is(err, storage.ErrInvalidPageNum) {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPageID, id, err)
		}
		return nil, err
	}

	if fr.Valid {
		if err := bm.bufMap.Remove(fr.PageID); err != nil {
			return nil, err
		}
		slog.Debug("bufferpool: evict", "frame", f, "page", fr.PageID, "for", id)
	}
	fr.reset()

	page := &bm.pages[f]
	copy(page.Buf, bm.scratch)
	if err := bm.install(f, id); err != nil {
		return nil, err
	}
	return page, nil
}

// ReleasePage drops one pin of id and marks it dirty if dirty is set.
func (bm *BufferManager) ReleasePage(id storage.PageID, dirty bool) error {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if bm.closed {
		return ErrClosed
	}

	f, err := bm.bufMap.Get(id)
	if err != nil {
		return err
	}
	fr := &bm.frames[f]
	if fr.Pin == 0 {
		return fmt.Errorf("%w: %s", ErrPageNotPinned, id)
	}

	fr.Pin--
	fr.Dirty = fr.Dirty || dirty
	if fr.Pin == 0 {
		bm.numPinned--
		bm.policy.Unpin(f)
	}
	return nil
}

func (bm *BufferManager) SetDirty(id storage.PageID) error {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if bm.closed {
		return ErrClosed
	}

	f, err := bm.bufMap.Get(id)
	if err != nil {
		return err
	}
	bm.frames[f].Dirty = true
	return nil
}

// FlushPage writes id back if it is dirty. The page stays resident.
func (bm *BufferManager) FlushPage(id storage.PageID) error {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if bm.closed {
		return ErrClosed
	}

	f, err := bm.bufMap.Get(id)
	if err != nil {
		return err
	}
	return bm.writeBack(f)
}

// DeallocatePage frees id on disk and drops it from the pool if resident.
func (bm *BufferManager) DeallocatePage(id storage.PageID) error {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if bm.closed {
		return ErrClosed
	}

	f, err := bm.bufMap.Get(id)
	resident := err == nil
	if resident && bm.frames[f].Pin > 0 {
		return fmt.Errorf("%w: deallocate %s", ErrPagePinned, id)
	}

	if err := bm.disk.DeallocatePage(id); err != nil {
		return err
	}

	if resident {
		bm.drop(f)
	}
	return nil
}

// drop discards the unpinned resident frame f without writing it back.
func (bm *BufferManager) drop(f FrameID) {
	fr := &bm.frames[f]
	_ = bm.bufMap.Remove(fr.PageID)
	fr.reset()
	bm.policy.FreeFrame(f)
}

func (bm *BufferManager) CreateFile(fid storage.FileID) error {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if bm.closed {
		return ErrClosed
	}
	return bm.disk.CreateFile(fid)
}

// RemoveFile deletes file fid. Resident pages of the file are discarded,
// dirty or not; it fails without side effects if any of them is pinned.
func (bm *BufferManager) RemoveFile(fid storage.FileID) error {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if bm.closed {
		return ErrClosed
	}

	var resident []FrameID
	for i := range bm.frames {
		fr := &bm.frames[i]
		if !fr.Valid || fr.PageID.FileID != fid {
			continue
		}
		if fr.Pin > 0 {
			return fmt.Errorf("%w: remove file %d: %s", ErrPagePinned, fid, fr.PageID)
		}
		resident = append(resident, FrameID(i))
	}

	if err := bm.disk.RemoveFile(fid); err != nil {
		return err
	}

	for _, f := range resident {
		bm.drop(f)
	}
	slog.Debug("bufferpool: file removed", "file", fid, "dropped", len(resident))
	return nil
}

func (bm *BufferManager) FileSize(fid storage.FileID) (uint32, error) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if bm.closed {
		return 0, ErrClosed
	}
	return bm.disk.Size(fid)
}

func (bm *BufferManager) FileCapacity(fid storage.FileID) (uint32, error) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if bm.closed {
		return 0, ErrClosed
	}
	return bm.disk.Capacity(fid)
}

// FlushAll writes back every dirty resident page. It keeps going after a
// failed write and returns all failures combined.
func (bm *BufferManager) FlushAll() error {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if bm.closed {
		return ErrClosed
	}
	return bm.flushWhere(func(*Frame) bool { return true })
}

// FlushFile writes back every dirty resident page of file fid.
func (bm *BufferManager) FlushFile(fid storage.FileID) error {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if bm.closed {
		return ErrClosed
	}
	return bm.flushWhere(func(fr *Frame) bool { return fr.PageID.FileID == fid })
}

func (bm *BufferManager) flushWhere(match func(*Frame) bool) error {
	var err error
	for i := range bm.frames {
		fr := &bm.frames[i]
		if !fr.Valid || !fr.Dirty || !match(fr) {
			continue
		}
		err = multierr.Append(err, bm.writeBack(FrameID(i)))
	}
	return err
}

// Close writes back every dirty page. The manager is unusable afterwards,
// even if some write-backs failed.
func (bm *BufferManager) Close() error {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if bm.closed {
		return ErrClosed
	}
	bm.closed = true

	err := bm.flushWhere(func(*Frame) bool { return true })
	if err != nil {
		slog.Warn("bufferpool: close with unflushed pages", "err", err)
	}
	return err
}
