package storage

// Page is a fixed-size in-memory page buffer. Its contents are opaque to the
// buffer and disk layers beyond identity and size.
type Page struct {
	Buf []byte // exactly PageSize bytes
}

// Zero clears the page.
func (p *Page) Zero() {
	clear(p.Buf)
}

// Arena allocates n pages backed by one contiguous byte slice.
func Arena(n int) []Page {
	mem := make([]byte, n*PageSize)
	pages := make([]Page, n)
	for i := range pages {
		pages[i].Buf = mem[i*PageSize : (i+1)*PageSize : (i+1)*PageSize]
	}
	return pages
}
