package bufferpool

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// Random evicts a uniformly drawn unpinned frame. After 1+N/2 unlucky draws
// it falls back to the first unpinned frame from the left.
//
// Frames examined per scan is the number of draws made, including the one
// that hit; on the fallback path it is the failed draws plus the pinned
// frames passed by the scan.
type Random struct {
	freeList
	rng      *rand.Rand
	selected []uint64 // victims chosen per frame
}

var _ Policy = (*Random)(nil)

func NewRandom(frames FrameView, seed uint64) *Random {
	return &Random{
		freeList: newFreeList(frames),
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		selected: make([]uint64, frames.Len()),
	}
}

func (r *Random) Replace() (FrameID, error) {
	r.replaceCalls++

	if id, ok := r.pop(); ok {
		return id, nil
	}

	n := r.frames.Len()
	examined := 0
	for range 1 + n/2 {
		id := FrameID(r.rng.IntN(n))
		examined++
		if !r.frames.Pinned(id) {
			return r.accept(id, examined), nil
		}
	}

	for i := range n {
		id := FrameID(i)
		if !r.frames.Pinned(id) {
			return r.accept(id, examined), nil
		}
		examined++
	}

	return InvalidFrameID, fmt.Errorf("%w: all %d frames pinned", ErrInsufficientSpace, n)
}

func (r *Random) accept(id FrameID, examined int) FrameID {
	r.selected[id]++
	r.recordScan(examined)
	return id
}

func (r *Random) Pin(FrameID)   {}
func (r *Random) Unpin(FrameID) {}

func (r *Random) FreeFrame(id FrameID) {
	r.push(id)
}

func (r *Random) Stats() PolicyStats {
	s := r.stats(PolicyRandom)
	s.SelectionStdDev = stddev(r.selected)
	return s
}

// stddev is the population standard deviation of xs.
func stddev(xs []uint64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var mean float64
	for i, x := range xs {
		mean += (float64(x) - mean) / float64(i+1)
	}
	var sq float64
	for _, x := range xs {
		d := float64(x) - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(xs)))
}
