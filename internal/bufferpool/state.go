package bufferpool

// BufferState is a read-only snapshot of the pool.
type BufferState struct {
	Total    int
	Valid    int
	Pinned   int
	Unpinned int // valid and not pinned
	Dirty    int
	Policy   PolicyStats
}

func (bm *BufferManager) State() BufferState {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	s := BufferState{Total: len(bm.frames)}
	for i := range bm.frames {
		fr := &bm.frames[i]
		if !fr.Valid {
			continue
		}
		s.Valid++
		if fr.Pin > 0 {
			s.Pinned++
		} else {
			s.Unpinned++
		}
		if fr.Dirty {
			s.Dirty++
		}
	}
	s.Policy = bm.policy.Stats()
	return s
}
