package bufferpool

import (
	"fmt"

	"github.com/nkhmaladze/BufferManagerDB/pkg/clockx"
)

// Clock is second-chance replacement on top of clockx.Ring. Unpinned frames
// get their reference bit set and survive one pass of the hand.
type Clock struct {
	freeList
	ring *clockx.Ring
}

var _ Policy = (*Clock)(nil)

func NewClock(frames FrameView) *Clock {
	return &Clock{
		freeList: newFreeList(frames),
		ring:     clockx.New(frames.Len()),
	}
}

func (c *Clock) slotState(id int) clockx.SlotState {
	switch f := FrameID(id); {
	case !c.frames.Valid(f):
		return clockx.Empty
	case c.frames.Pinned(f):
		return clockx.Pinned
	default:
		return clockx.Evictable
	}
}

func (c *Clock) Replace() (FrameID, error) {
	c.replaceCalls++

	// Free frames go first and leave the hand alone.
	if id, ok := c.pop(); ok {
		return id, nil
	}

	victim, examined, ok := c.ring.Sweep(c.slotState)
	if !ok {
		return InvalidFrameID, fmt.Errorf("%w: all %d frames pinned", ErrInsufficientSpace, c.ring.Len())
	}
	c.recordScan(examined)
	return FrameID(victim), nil
}

func (c *Clock) Pin(FrameID) {}

func (c *Clock) Unpin(id FrameID) {
	c.ring.Reference(int(id))
}

func (c *Clock) FreeFrame(id FrameID) {
	c.push(id)
	c.ring.Clear(int(id))
}

func (c *Clock) Stats() PolicyStats {
	s := c.stats(PolicyClock)
	s.RefBitCount = c.ring.Referenced()
	s.ClockHand = FrameID(c.ring.Hand())
	return s
}
