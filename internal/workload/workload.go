package workload

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/nkhmaladze/BufferManagerDB/internal/alias/bx"
	"github.com/nkhmaladze/BufferManagerDB/internal/bufferpool"
	"github.com/nkhmaladze/BufferManagerDB/internal/storage"
)

var (
	ErrUnknownKind = errors.New("workload: unknown kind")
	ErrTooFewPages = errors.New("workload: not enough pages")
	ErrCorruptPage = errors.New("workload: page digest mismatch")
)

// Kind names an access pattern.
type Kind string

const (
	// Sequential reads every page once, in order.
	Sequential Kind = "sequential"
	// Repeated loops over the whole file.
	Repeated Kind = "repeated"
	// Random picks pages uniformly, like a non-clustered index lookup.
	Random Kind = "random"
	// HotSet sends 80% of requests to the first 20% of pages.
	HotSet Kind = "hotset"
	// Hierarchical walks root, one of two branch pages, then a random leaf.
	Hierarchical Kind = "hierarchical"
)

func Kinds() []Kind {
	return []Kind{Sequential, Repeated, Random, HotSet, Hierarchical}
}

func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

type Params struct {
	Ops  int // requests to issue; Sequential always issues one per page
	Seed uint64
}

type Result struct {
	Kind        Kind
	Policy      bufferpool.PolicyType
	Requests    uint64
	Misses      uint64 // replace calls issued by the pool during the run
	AvgExamined float64
	Elapsed     time.Duration
}

func (r Result) HitRatio() float64 {
	if r.Requests == 0 {
		return 0
	}
	return 1 - float64(r.Misses)/float64(r.Requests)
}

// Dataset is a file of stamped pages whose digests are checked on every
// fetch.
type Dataset struct {
	view *bufferpool.FileView
	nums []storage.PageNum
	sums []uint64
}

// Prepare allocates pages pages in the file behind view and stamps each one.
func Prepare(view *bufferpool.FileView, pages int) (*Dataset, error) {
	d := &Dataset{
		view: view,
		nums: make([]storage.PageNum, 0, pages),
		sums: make([]uint64, 0, pages),
	}
	for range pages {
		page, num, err := view.Allocate()
		if err != nil {
			return nil, fmt.Errorf("workload: allocate: %w", err)
		}
		stamp(page.Buf, view.FileID(), num)
		d.nums = append(d.nums, num)
		d.sums = append(d.sums, xxhash.Sum64(page.Buf))
		if err := view.Release(num, true); err != nil {
			return nil, err
		}
	}
	if err := view.Flush(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dataset) Len() int { return len(d.nums) }

// stamp fills buf with bytes derived from the page identity.
func stamp(buf []byte, fid storage.FileID, num storage.PageNum) {
	bx.PutU32At(buf, 0, uint32(fid))
	bx.PutU32At(buf, 4, uint32(num))
	seed := byte(uint32(fid)*131 + uint32(num)*31)
	for i := 8; i < len(buf); i++ {
		buf[i] = seed + byte(i)
	}
}

// touch fetches page i, verifies its digest and releases it clean.
func (d *Dataset) touch(i int) error {
	num := d.nums[i]
	page, err := d.view.Get(num)
	if err != nil {
		return err
	}
	sum := xxhash.Sum64(page.Buf)
	if err := d.view.Release(num, false); err != nil {
		return err
	}
	if sum != d.sums[i] {
		return fmt.Errorf("%w: file %d page %d", ErrCorruptPage, d.view.FileID(), num)
	}
	return nil
}

// Sequence returns the page indexes kind touches over n pages.
func Sequence(kind Kind, n int, p Params) ([]int, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: %s over %d pages", ErrTooFewPages, kind, n)
	}
	rng := rand.New(rand.NewPCG(p.Seed, p.Seed+1))
	ops := max(p.Ops, 0)

	var seq []int
	switch kind {
	case Sequential:
		seq = make([]int, n)
		for i := range seq {
			seq[i] = i
		}

	case Repeated:
		seq = make([]int, ops)
		for i := range seq {
			seq[i] = i % n
		}

	case Random:
		seq = make([]int, ops)
		for i := range seq {
			seq[i] = rng.IntN(n)
		}

	case HotSet:
		hot := max(n/5, 1)
		seq = make([]int, ops)
		for i := range seq {
			if rng.IntN(10) < 8 || hot == n {
				seq[i] = rng.IntN(hot)
			} else {
				seq[i] = hot + rng.IntN(n-hot)
			}
		}

	case Hierarchical:
		if n < 4 {
			return nil, fmt.Errorf("%w: %s needs 4 pages, have %d", ErrTooFewPages, kind, n)
		}
		seq = make([]int, 0, 3*ops)
		for range ops {
			seq = append(seq, 0, 1+rng.IntN(2), 3+rng.IntN(n-3))
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return seq, nil
}

// Run drives kind against bm over d and reports what the policy did.
func Run(bm *bufferpool.BufferManager, d *Dataset, kind Kind, p Params) (Result, error) {
	seq, err := Sequence(kind, d.Len(), p)
	if err != nil {
		return Result{}, err
	}

	before := bm.State().Policy
	start := time.Now()
	for _, i := range seq {
		if err := d.touch(i); err != nil {
			return Result{}, err
		}
	}
	elapsed := time.Since(start)
	after := bm.State().Policy

	res := Result{
		Kind:     kind,
		Policy:   after.Type,
		Requests: after.Requests - before.Requests,
		Misses:   after.ReplaceCalls - before.ReplaceCalls,
		Elapsed:  elapsed,
	}
	if scans := after.Scans - before.Scans; scans > 0 {
		total := after.AvgFramesExamined*float64(after.Scans) - before.AvgFramesExamined*float64(before.Scans)
		res.AvgExamined = total / float64(scans)
	}

	slog.Debug("workload: done",
		"kind", kind,
		"policy", res.Policy,
		"requests", res.Requests,
		"misses", res.Misses,
		"elapsed", elapsed,
	)
	return res, nil
}
