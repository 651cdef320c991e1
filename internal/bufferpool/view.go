package bufferpool

import "github.com/nkhmaladze/BufferManagerDB/internal/storage"

// FileView binds a Manager to one file so callers address pages by page
// number only.
type FileView struct {
	bm  Manager
	fid storage.FileID
}

func NewFileView(m Manager, fid storage.FileID) *FileView {
	return &FileView{bm: m, fid: fid}
}

// View returns a file-scoped handle backed by the shared pool.
func (bm *BufferManager) View(fid storage.FileID) *FileView {
	return NewFileView(bm, fid)
}

func (v *FileView) FileID() storage.FileID { return v.fid }

func (v *FileView) pageID(num storage.PageNum) storage.PageID {
	return storage.PageID{FileID: v.fid, PageNum: num}
}

func (v *FileView) Allocate() (*storage.Page, storage.PageNum, error) {
	page, id, err := v.bm.AllocatePage(v.fid)
	if err != nil {
		return nil, storage.InvalidPageNum, err
	}
	return page, id.PageNum, nil
}

func (v *FileView) Get(num storage.PageNum) (*storage.Page, error) {
	return v.bm.GetPage(v.pageID(num))
}

func (v *FileView) Release(num storage.PageNum, dirty bool) error {
	return v.bm.ReleasePage(v.pageID(num), dirty)
}

func (v *FileView) Deallocate(num storage.PageNum) error {
	return v.bm.DeallocatePage(v.pageID(num))
}

// Flush writes back the dirty pages of this file only.
func (v *FileView) Flush() error {
	return v.bm.FlushFile(v.fid)
}

func (v *FileView) Size() (uint32, error) {
	return v.bm.FileSize(v.fid)
}
