package bufferpool

import (
	"fmt"

	"github.com/nkhmaladze/BufferManagerDB/internal/storage"
)

// BufferMap maps each resident page to the frame holding it.
// A page is present iff its frame is valid and holds that page.
type BufferMap struct {
	m map[storage.PageID]FrameID
}

func NewBufferMap(capacity int) *BufferMap {
	return &BufferMap{m: make(map[storage.PageID]FrameID, capacity)}
}

func (b *BufferMap) Len() int { return len(b.m) }

func (b *BufferMap) Contains(id storage.PageID) bool {
	_, ok := b.m[id]
	return ok
}

func (b *BufferMap) Get(id storage.PageID) (FrameID, error) {
	f, ok := b.m[id]
	if !ok {
		return InvalidFrameID, fmt.Errorf("%w: %s", ErrPageNotFound, id)
	}
	return f, nil
}

func (b *BufferMap) Insert(id storage.PageID, f FrameID) error {
	if _, ok := b.m[id]; ok {
		return fmt.Errorf("%w: %s", ErrPageAlreadyLoaded, id)
	}
	b.m[id] = f
	return nil
}

func (b *BufferMap) Remove(id storage.PageID) error {
	if _, ok := b.m[id]; !ok {
		return fmt.Errorf("%w: %s", ErrPageNotFound, id)
	}
	delete(b.m, id)
	return nil
}
