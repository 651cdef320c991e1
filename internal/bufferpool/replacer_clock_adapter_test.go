package bufferpool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeFrames is a FrameView whose state tests set directly.
type fakeFrames struct {
	pinned []bool
	valid  []bool
}

func newFakeFrames(n int) *fakeFrames {
	return &fakeFrames{pinned: make([]bool, n), valid: make([]bool, n)}
}

// loadAll marks every frame valid and pinned, as after filling a pool.
func (f *fakeFrames) loadAll() {
	for i := range f.valid {
		f.valid[i] = true
		f.pinned[i] = true
	}
}

func (f *fakeFrames) Len() int               { return len(f.valid) }
func (f *fakeFrames) Pinned(id FrameID) bool { return f.pinned[id] }
func (f *fakeFrames) Valid(id FrameID) bool  { return f.valid[id] }

func TestClock_Replace_FreeListFIFO(t *testing.T) {
	frames := newFakeFrames(3)
	c := NewClock(frames)

	for want := range 3 {
		id, err := c.Replace()
		require.NoError(t, err)
		require.Equal(t, FrameID(want), id)
	}

	s := c.Stats()
	require.Equal(t, PolicyClock, s.Type)
	require.Equal(t, uint64(3), s.ReplaceCalls)
	require.Zero(t, s.Scans)
	require.Zero(t, s.AvgFramesExamined)
	require.Equal(t, FrameID(0), s.ClockHand, "free list pops leave the hand alone")
}

func TestClock_Replace_AllPinned(t *testing.T) {
	frames := newFakeFrames(4)
	frames.loadAll()
	c := NewClock(frames)

	_, err := c.Replace()
	require.ErrorIs(t, err, ErrInsufficientSpace)
	require.Zero(t, c.Stats().Scans)
}

func TestClock_FreeFrame_BeatsReferencedFrames(t *testing.T) {
	frames := newFakeFrames(4)
	frames.loadAll()
	c := NewClock(frames)

	for i := range 4 {
		frames.pinned[i] = false
		c.Unpin(FrameID(i))
	}
	require.Equal(t, 4, c.Stats().RefBitCount)

	frames.valid[3] = false
	c.FreeFrame(3)
	c.FreeFrame(3)
	require.Equal(t, 1, c.Len(), "free list holds no duplicates")
	require.Equal(t, 3, c.Stats().RefBitCount)

	id, err := c.Replace()
	require.NoError(t, err)
	require.Equal(t, FrameID(3), id)
	require.Equal(t, 3, c.Stats().RefBitCount)
}

func TestClock_Replace_VisitsInHandOrder(t *testing.T) {
	frames := newFakeFrames(6)
	frames.loadAll()
	c := NewClock(frames)

	// Unreferenced unpinned frames 4 and 1: the hand reaches 1 first.
	frames.pinned[1] = false
	frames.pinned[4] = false

	id, err := c.Replace()
	require.NoError(t, err)
	require.Equal(t, FrameID(1), id)

	id, err = c.Replace()
	require.NoError(t, err)
	require.Equal(t, FrameID(4), id)

	// Hand now past 4; wraparound brings it back to 1.
	id, err = c.Replace()
	require.NoError(t, err)
	require.Equal(t, FrameID(1), id)

	s := c.Stats()
	require.Equal(t, uint64(3), s.Scans)
	// Examined: {0}, {2,3}, {5,0}.
	require.InDelta(t, 5.0/3.0, s.AvgFramesExamined, 1e-9)
}

func TestClock_PinIsNoop(t *testing.T) {
	frames := newFakeFrames(2)
	frames.loadAll()
	c := NewClock(frames)

	frames.pinned[0] = false
	c.Unpin(0)
	c.Pin(0)
	require.Equal(t, 1, c.Stats().RefBitCount)
}

func TestFreeList_RecordScan_StableMean(t *testing.T) {
	fl := newFreeList(newFakeFrames(1))

	for _, x := range []int{4, 0, 8, 2, 6} {
		fl.recordScan(x)
	}
	require.Equal(t, uint64(5), fl.scans)
	require.InDelta(t, 4.0, fl.avgExamined, 1e-12)

	fl.RecordRequest()
	require.Equal(t, uint64(1), fl.stats(PolicyRandom).Requests)
}

func TestPolicyType_ParseAndText(t *testing.T) {
	cases := map[string]PolicyType{
		"clock":    PolicyClock,
		" Random ": PolicyRandom,
		"MRU":      PolicyMRU,
		"lru":      PolicyLRU,
	}
	for in, want := range cases {
		got, err := ParsePolicyType(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got)
	}

	_, err := ParsePolicyType("fifo")
	require.ErrorIs(t, err, ErrInvalidPolicy)

	var p PolicyType
	require.NoError(t, p.UnmarshalText([]byte("random")))
	require.Equal(t, PolicyRandom, p)
	text, err := p.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "random", string(text))

	require.Equal(t, "PolicyType(9)", PolicyType(9).String())
}

func TestClock_Replace_ExaminedIgnoresSecondChances(t *testing.T) {
	frames := newFakeFrames(4)
	frames.loadAll()
	c := NewClock(frames)

	frames.pinned[1] = false
	frames.pinned[2] = false
	c.Unpin(1)
	c.Unpin(2)

	id, err := c.Replace()
	require.NoError(t, err)
	require.Equal(t, FrameID(1), id)

	s := c.Stats()
	require.Equal(t, uint64(1), s.Scans)
	// Pinned frames 0, 3, 0 were skipped.
	require.InDelta(t, 3.0, s.AvgFramesExamined, 1e-9)
	require.Equal(t, 0, s.RefBitCount)
}
