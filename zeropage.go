// Completion: 100% - Zero-page region allocators: bump for fixed slots, LIFO for spills
package main

type zpSlot struct {
	addr int
	size int
	free bool
}

// ZPAlloc hands out addresses from one zero-page region. Slots are
// stacked; freeing marks a slot and trailing freed slots pop lazily,
// so release order follows allocation order in reverse.
type ZPAlloc struct {
	region string
	base   int
	limit  int // inclusive
	next   int
	peak   int
	slots  []zpSlot
}

// NewZPAlloc creates an allocator over one region of the profile
func NewZPAlloc(region string, r ZPRange) *ZPAlloc {
	return &ZPAlloc{
		region: region,
		base:   r.Start,
		limit:  r.End,
		next:   r.Start,
	}
}

// Alloc reserves size consecutive bytes. The second result is false
// when the region cannot hold them; the caller owns the diagnostic.
func (z *ZPAlloc) Alloc(size int) (uint8, bool) {
	if size <= 0 {
		size = 1
	}
	if z.next+size-1 > z.limit {
		return 0, false
	}
	addr := z.next
	z.next += size
	z.slots = append(z.slots, zpSlot{addr: addr, size: size})
	if used := z.next - z.base; used > z.peak {
		z.peak = used
	}
	return uint8(addr), true
}

// Free marks the slot at addr free and pops every freed slot on top
// of the stack
func (z *ZPAlloc) Free(addr uint8) {
	for i := len(z.slots) - 1; i >= 0; i-- {
		if z.slots[i].addr == int(addr) {
			z.slots[i].free = true
			break
		}
	}
	for n := len(z.slots); n > 0 && z.slots[n-1].free; n = len(z.slots) {
		z.next = z.slots[n-1].addr
		z.slots = z.slots[:n-1]
	}
}

// Reset returns the whole region, keeping the peak statistic
func (z *ZPAlloc) Reset() {
	z.next = z.base
	z.slots = z.slots[:0]
}

// ResetPeak clears the peak statistic, for per-function reporting
func (z *ZPAlloc) ResetPeak() {
	z.peak = 0
}

// InUse returns the bytes currently reserved
func (z *ZPAlloc) InUse() int {
	return z.next - z.base
}

// Peak returns the highest number of bytes ever reserved at once
func (z *ZPAlloc) Peak() int {
	return z.peak
}

// Cap returns the total size of the region
func (z *ZPAlloc) Cap() int {
	return z.limit - z.base + 1
}

// Avail returns the bytes still free
func (z *ZPAlloc) Avail() int {
	return z.Cap() - z.InUse()
}

// Region returns the region name, for diagnostics
func (z *ZPAlloc) Region() string {
	return z.region
}
