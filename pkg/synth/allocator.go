package synth

// Allocation binds a sounding MIDI key to a physical chip channel.
type Allocation struct {
	MIDIChannel int
	Note        int
	ChipChannel int
}

type key struct {
	channel int
	note    int
}

type slot struct {
	active bool
	key    key
}

// Allocator assigns physical chip channels to MIDI keys. A free channel is
// always preferred, lowest index first; when every channel is busy the
// channel allocated longest ago is stolen. Allocator is not safe for
// concurrent use.
type Allocator struct {
	slots  []slot
	order  []int // active chip channels, oldest first
	index  map[key]int
	steals int
}

// NewAllocator returns an allocator over capacity chip channels.
func NewAllocator(capacity int) *Allocator {
	if capacity < 0 {
		capacity = 0
	}
	return &Allocator{
		slots: make([]slot, capacity),
		order: make([]int, 0, capacity),
		index: make(map[key]int, capacity),
	}
}

// Lookup returns the chip channel playing note on MIDI channel mch.
func (a *Allocator) Lookup(mch, note int) (int, bool) {
	ch, ok := a.index[key{mch, note}]
	return ch, ok
}

// Acquire returns the chip channel for a new note. A key that is already
// sounding keeps its channel and its place in the steal queue, and
// reports retrigger. When a busy channel is taken over, stolen describes
// the key that lost it. ch is -1 only when the allocator has no channels
// at all.
func (a *Allocator) Acquire(mch, note int) (ch int, stolen *Allocation, retrigger bool) {
	k := key{mch, note}
	if ch, ok := a.index[k]; ok {
		return ch, nil, true
	}
	for i := range a.slots {
		if !a.slots[i].active {
			a.assign(i, k)
			return i, nil, false
		}
	}
	if len(a.order) == 0 {
		return -1, nil, false
	}
	ch = a.order[0]
	old := a.slots[ch].key
	delete(a.index, old)
	a.unlink(ch)
	a.assign(ch, k)
	a.steals++
	return ch, &Allocation{MIDIChannel: old.channel, Note: old.note, ChipChannel: ch}, false
}

func (a *Allocator) assign(ch int, k key) {
	a.slots[ch] = slot{active: true, key: k}
	a.index[k] = ch
	a.order = append(a.order, ch)
}

func (a *Allocator) unlink(ch int) {
	for i, c := range a.order {
		if c == ch {
			a.order = append(a.order[:i], a.order[i+1:]...)
			return
		}
	}
}

// Release frees the channel playing note on mch. Releasing a key that is
// not sounding is a no-op and reports false.
func (a *Allocator) Release(mch, note int) (int, bool) {
	k := key{mch, note}
	ch, ok := a.index[k]
	if !ok {
		return -1, false
	}
	delete(a.index, k)
	a.slots[ch] = slot{}
	a.unlink(ch)
	return ch, true
}

// At returns the allocation holding chip channel ch.
func (a *Allocator) At(ch int) (Allocation, bool) {
	if ch < 0 || ch >= len(a.slots) || !a.slots[ch].active {
		return Allocation{}, false
	}
	k := a.slots[ch].key
	return Allocation{MIDIChannel: k.channel, Note: k.note, ChipChannel: ch}, true
}

// Active lists the chip channels sounding for MIDI channel mch in
// ascending order.
func (a *Allocator) Active(mch int) []int {
	var out []int
	for i, s := range a.slots {
		if s.active && s.key.channel == mch {
			out = append(out, i)
		}
	}
	return out
}

// Allocations lists every live allocation, oldest first.
func (a *Allocator) Allocations() []Allocation {
	out := make([]Allocation, 0, len(a.order))
	for _, ch := range a.order {
		al, _ := a.At(ch)
		out = append(out, al)
	}
	return out
}

func (a *Allocator) Count() int    { return len(a.order) }
func (a *Allocator) Capacity() int { return len(a.slots) }
func (a *Allocator) Steals() int   { return a.steals }

// Reset frees every channel. The steal counter is kept.
func (a *Allocator) Reset() {
	for i := range a.slots {
		a.slots[i] = slot{}
	}
	a.order = a.order[:0]
	clear(a.index)
}
