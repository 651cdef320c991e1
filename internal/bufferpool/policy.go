package bufferpool

import (
	"fmt"
	"strings"
)

// PolicyType selects the replacement policy of a BufferManager.
type PolicyType uint8

const (
	PolicyClock PolicyType = iota
	PolicyRandom
	// PolicyMRU and PolicyLRU are reserved names without an implementation.
	PolicyMRU
	PolicyLRU
)

var policyNames = [...]string{
	PolicyClock:  "clock",
	PolicyRandom: "random",
	PolicyMRU:    "mru",
	PolicyLRU:    "lru",
}

func (t PolicyType) String() string {
	if int(t) < len(policyNames) {
		return policyNames[t]
	}
	return fmt.Sprintf("PolicyType(%d)", uint8(t))
}

// ParsePolicyType accepts the lower-case policy names, ignoring case.
func ParsePolicyType(s string) (PolicyType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for t, n := range policyNames {
		if n == name {
			return PolicyType(t), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
}

func (t PolicyType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *PolicyType) UnmarshalText(text []byte) error {
	v, err := ParsePolicyType(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Policy picks replacement victims. It is driven only from inside the
// BufferManager critical section and is not safe for concurrent use.
type Policy interface {
	// Replace returns a free frame if one exists, otherwise an unpinned
	// valid frame chosen by the policy. It never returns a pinned frame.
	Replace() (FrameID, error)
	// Pin and Unpin are called on the 0->1 and 1->0 pin count edges.
	Pin(id FrameID)
	Unpin(id FrameID)
	// FreeFrame is called when a frame becomes invalid outside Replace.
	FreeFrame(id FrameID)
	// RecordRequest counts one successful allocate or fetch.
	RecordRequest()
	Stats() PolicyStats
}

// PolicyStats is a snapshot of replacement statistics.
type PolicyStats struct {
	Type         PolicyType
	ReplaceCalls uint64
	Requests     uint64
	// Scans counts Replace calls that had to look past the free list.
	Scans             uint64
	AvgFramesExamined float64

	// Clock only.
	RefBitCount int
	ClockHand   FrameID

	// Random only.
	SelectionStdDev float64
}

// newPolicy builds the policy of type t over frames.
func newPolicy(t PolicyType, frames FrameView, seed uint64) (Policy, error) {
	switch t {
	case PolicyClock:
		return NewClock(frames), nil
	case PolicyRandom:
		return NewRandom(frames, seed), nil
	case PolicyMRU, PolicyLRU:
		return nil, fmt.Errorf("%w: %s is not implemented", ErrInvalidPolicy, t)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidPolicy, t)
	}
}

// freeList is the FIFO of invalid frames plus the counters every policy
// shares.
type freeList struct {
	frames FrameView

	queue  []FrameID
	queued []bool

	replaceCalls uint64
	requests     uint64
	scans        uint64
	avgExamined  float64
}

func newFreeList(frames FrameView) freeList {
	n := frames.Len()
	fl := freeList{
		frames: frames,
		queue:  make([]FrameID, 0, n),
		queued: make([]bool, n),
	}
	for i := range n {
		if !frames.Valid(FrameID(i)) {
			fl.push(FrameID(i))
		}
	}
	return fl
}

func (fl *freeList) push(id FrameID) {
	if fl.queued[id] {
		return
	}
	fl.queued[id] = true
	fl.queue = append(fl.queue, id)
}

func (fl *freeList) pop() (FrameID, bool) {
	if len(fl.queue) == 0 {
		return InvalidFrameID, false
	}
	id := fl.queue[0]
	fl.queue = fl.queue[1:]
	fl.queued[id] = false
	return id, true
}

func (fl *freeList) Len() int { return len(fl.queue) }

func (fl *freeList) RecordRequest() { fl.requests++ }

// recordScan folds one scan into the running mean.
func (fl *freeList) recordScan(examined int) {
	fl.scans++
	fl.avgExamined += (float64(examined) - fl.avgExamined) / float64(fl.scans)
}

func (fl *freeList) stats(t PolicyType) PolicyStats {
	return PolicyStats{
		Type:              t,
		ReplaceCalls:      fl.replaceCalls,
		Requests:          fl.requests,
		Scans:             fl.scans,
		AvgFramesExamined: fl.avgExamined,
		ClockHand:         InvalidFrameID,
	}
}
