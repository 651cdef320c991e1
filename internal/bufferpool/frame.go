package bufferpool

import "github.com/nkhmaladze/BufferManagerDB/internal/storage"

// FrameID is a slot index in [0, pool size).
type FrameID int

const InvalidFrameID FrameID = -1

// Frame is the metadata of one buffer slot. A frame that is not valid is
// free; a frame with Pin > 0 must not be evicted.
type Frame struct {
	PageID storage.PageID
	Pin    int32
	Valid  bool
	Dirty  bool
}

func (f *Frame) reset() {
	*f = Frame{PageID: storage.InvalidPageID}
}

// load marks the frame as holding id, pinned once and clean.
func (f *Frame) load(id storage.PageID) {
	f.reset()
	f.PageID = id
	f.Pin = 1
	f.Valid = true
}

// FrameView is the read-only window replacement policies get on the frame
// table. Policies never write frame fields.
type FrameView interface {
	Len() int
	Pinned(id FrameID) bool
	Valid(id FrameID) bool
}

type frameTable []Frame

var _ FrameView = frameTable(nil)

func newFrameTable(n int) frameTable {
	t := make(frameTable, n)
	for i := range t {
		t[i].reset()
	}
	return t
}

func (t frameTable) Len() int               { return len(t) }
func (t frameTable) Pinned(id FrameID) bool { return t[id].Pin > 0 }
func (t frameTable) Valid(id FrameID) bool  { return t[id].Valid }
