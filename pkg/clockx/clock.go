package clockx

// SlotState is what the owner of a slot reports to Sweep.
type SlotState uint8

const (
	// Evictable slots hold data nobody is using.
	Evictable SlotState = iota
	// Pinned slots are skipped.
	Pinned
	// Empty slots are taken as soon as the hand reaches them.
	Empty
)

// Ring implements CLOCK (second-chance) selection over slot IDs [0..n).
// It only keeps reference bits and the hand; pin and validity state
// belong to the caller and are queried during Sweep.
type Ring struct {
	ref  []bool
	hand int
	set  int // number of referenced slots
}

func New(n int) *Ring {
	if n <= 0 {
		n = 1
	}
	return &Ring{ref: make([]bool, n)}
}

func (r *Ring) Len() int        { return len(r.ref) }
func (r *Ring) Hand() int       { return r.hand }
func (r *Ring) Referenced() int { return r.set }

func (r *Ring) IsReferenced(id int) bool {
	return id >= 0 && id < len(r.ref) && r.ref[id]
}

// Reference sets the reference bit of slot id.
func (r *Ring) Reference(id int) {
	if id < 0 || id >= len(r.ref) || r.ref[id] {
		return
	}
	r.ref[id] = true
	r.set++
}

// Clear drops the reference bit of slot id.
func (r *Ring) Clear(id int) {
	if id < 0 || id >= len(r.ref) || !r.ref[id] {
		return
	}
	r.ref[id] = false
	r.set--
}

func (r *Ring) advance() { r.hand = (r.hand + 1) % len(r.ref) }

// Sweep moves the hand until it reaches an empty slot or an evictable slot
// whose reference bit is clear, and returns it with the hand one past it.
// Referenced evictable slots lose their bit on the way. examined counts
// the pinned slots skipped; second chances and the victim are not counted.
// Sweep gives up once len consecutive pinned slots have been skipped.
func (r *Ring) Sweep(state func(id int) SlotState) (victim, examined int, ok bool) {
	n := len(r.ref)
	pinnedRun := 0

	for {
		idx := r.hand

		switch state(idx) {
		case Pinned:
			examined++
			pinnedRun++
			if pinnedRun >= n {
				r.advance()
				return -1, examined, false
			}

		case Empty:
			r.Clear(idx)
			r.advance()
			return idx, examined, true

		default:
			if !r.ref[idx] {
				r.advance()
				return idx, examined, true
			}
			// Second chance.
			r.Clear(idx)
			pinnedRun = 0
		}

		r.advance()
	}
}
