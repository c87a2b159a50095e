package fnle

import (
	"reflect"
	"sort"
)

// directEntry holds either a single payload or, under PolicyAll, an
// insertion-order-preserving list of payloads for one host address.
type directEntry[P any] struct {
	single P
	multi  []P
	isMany bool
}

// family indexes one address family (IPv4 or IPv6) for a single Index.
type family[P any] struct {
	isV4 bool

	ranges   []Range
	payloads []P

	line     []event
	where    []uint32   // slot -> line index of its START event
	overlaps [][]uint32 // slot -> neighbour slots, descending size

	// afterEvent[idx] is the smallest slot id still open (started, not
	// yet ended) immediately after line[idx] is applied, or -1 if no
	// range is open. A query address falling strictly between two
	// events takes its anchor from afterEvent at the preceding index,
	// since the line's events alone don't say whether an enclosing
	// range (one that started earlier and hasn't ended yet) still
	// covers that gap.
	afterEvent []int64

	direct map[Addr]directEntry[P]

	sealed bool

	rejectedOversize int
	rejectedDup      int

	// seen de-dups exact [start,end] pairs added before build.
	seen map[Range]struct{}
}

func newFamily[P any](isV4 bool) *family[P] {
	return &family[P]{
		isV4:   isV4,
		direct: make(map[Addr]directEntry[P]),
		seen:   make(map[Range]struct{}),
	}
}

func (f *family[P]) maxBits() uint {
	if f.isV4 {
		return MaxRangeBitsV4
	}
	return MaxRangeBitsV6
}

// addRange appends a range/payload pair, the slot id being the append
// index.
func (f *family[P]) addRange(r Range, payload P) error {
	if f.sealed {
		return ErrSealed
	}
	if r.Start.Compare(r.End) > 0 {
		return ErrInvalidRange
	}
	if sizeExceeds(r.Start, r.End, f.maxBits()) {
		f.rejectedOversize++
		return ErrOversizeRange
	}
	if _, dup := f.seen[r]; dup {
		f.rejectedDup++
		return ErrDuplicateRange
	}
	f.seen[r] = struct{}{}
	f.ranges = append(f.ranges, r)
	f.payloads = append(f.payloads, payload)
	return nil
}

// addDirect inserts a single-host entry. Under PolicyAll entries
// accumulate in insertion order; otherwise the entry is overwritten.
func (f *family[P]) addDirect(addr Addr, payload P, policy Policy) {
	if policy != PolicyAll {
		f.direct[addr] = directEntry[P]{single: payload}
		return
	}
	existing, ok := f.direct[addr]
	if !ok {
		f.direct[addr] = directEntry[P]{multi: []P{payload}, isMany: true}
		return
	}
	if !existing.isMany {
		existing = directEntry[P]{multi: []P{existing.single}, isMany: true}
	}
	existing.multi = append(existing.multi, payload)
	f.direct[addr] = existing
}

// build seals the family: sorts the sweep line, computes overlaps,
// where[], and mate back-pointers.
func (f *family[P]) build(policy Policy, equal func(a, b P) bool) {
	if f.sealed {
		return
	}
	n := len(f.ranges)
	f.line = make([]event, 0, 2*n)
	for i, r := range f.ranges {
		f.line = append(f.line,
			event{kind: KindStart, coord: r.Start, slot: uint32(i)},
			event{kind: KindEnd, coord: r.End, slot: uint32(i)},
		)
	}

	sort.SliceStable(f.line, func(i, j int) bool {
		a, b := f.line[i], f.line[j]
		if c := a.coord.Compare(b.coord); c != 0 {
			return c < 0
		}
		// START before END at equal coordinate.
		return a.kind == KindStart && b.kind == KindEnd
	})

	// where[slot] = index of its START event; back-patch mate pointers.
	f.where = make([]uint32, n)
	startIdx := make([]int, n)
	endIdx := make([]int, n)
	for idx, ev := range f.line {
		if ev.kind == KindStart {
			f.where[ev.slot] = uint32(idx)
			startIdx[ev.slot] = idx
		} else {
			endIdx[ev.slot] = idx
		}
	}
	for slot := 0; slot < n; slot++ {
		f.line[startIdx[slot]].mate = uint32(endIdx[slot])
		f.line[endIdx[slot]].mate = uint32(startIdx[slot])
	}

	// overlaps: walk the line maintaining an open set, snapshotting a
	// representative open slot after each event for gap lookups.
	pairSeen := make(map[[2]uint32]struct{})
	overlapSets := make([]map[uint32]struct{}, n)
	open := make(map[uint32]struct{})
	f.afterEvent = make([]int64, len(f.line))
	for idx, ev := range f.line {
		if ev.kind == KindStart {
			if len(open) > 0 {
				for j := range open {
					addOverlapPair(overlapSets, pairSeen, ev.slot, j)
				}
			}
			open[ev.slot] = struct{}{}
		} else {
			delete(open, ev.slot)
		}
		f.afterEvent[idx] = minOpenSlot(open)
	}

	f.overlaps = make([][]uint32, n)
	for slot, set := range overlapSets {
		if set == nil {
			continue
		}
		neighbours := make([]uint32, 0, len(set))
		for j := range set {
			neighbours = append(neighbours, j)
		}
		sort.Slice(neighbours, func(i, k int) bool {
			si, sk := f.ranges[neighbours[i]].size(), f.ranges[neighbours[k]].size()
			if si != sk {
				return si > sk // descending size
			}
			return neighbours[i] < neighbours[k]
		})
		f.overlaps[slot] = neighbours
	}

	// Under ALL, collapse direct[addr] lists whose entries are all equal.
	if policy == PolicyAll {
		if equal == nil {
			equal = func(a, b P) bool { return reflect.DeepEqual(a, b) }
		}
		for addr, entry := range f.direct {
			if !entry.isMany || len(entry.multi) == 0 {
				continue
			}
			allEqual := true
			for _, p := range entry.multi[1:] {
				if !equal(p, entry.multi[0]) {
					allEqual = false
					break
				}
			}
			if allEqual {
				f.direct[addr] = directEntry[P]{single: entry.multi[0]}
			}
		}
	}

	f.seen = nil
	f.sealed = true
}

// minOpenSlot returns the smallest slot id in open, or -1 if open is
// empty.
func minOpenSlot(open map[uint32]struct{}) int64 {
	rep := int64(-1)
	for slot := range open {
		if rep == -1 || uint32(rep) > slot {
			rep = int64(slot)
		}
	}
	return rep
}

func addOverlapPair(sets []map[uint32]struct{}, seen map[[2]uint32]struct{}, a, b uint32) {
	if a == b {
		return
	}
	key := [2]uint32{a, b}
	if a > b {
		key = [2]uint32{b, a}
	}
	if _, ok := seen[key]; ok {
		return
	}
	seen[key] = struct{}{}
	if sets[a] == nil {
		sets[a] = make(map[uint32]struct{})
	}
	if sets[b] == nil {
		sets[b] = make(map[uint32]struct{})
	}
	sets[a][b] = struct{}{}
	sets[b][a] = struct{}{}
}

// Index composes a v4 and v6 family under a single tie-break policy.
// P is the payload type stored verbatim by slot id.
type Index[P any] struct {
	Name   string
	Policy Policy
	Equal  func(a, b P) bool // optional, used to collapse direct[] lists under ALL

	v4 *family[P]
	v6 *family[P]
}

// New constructs an empty, buildable index.
func New[P any](name string, policy Policy) *Index[P] {
	return &Index[P]{
		Name:   name,
		Policy: policy,
		v4:     newFamily[P](true),
		v6:     newFamily[P](false),
	}
}

// Stats reports build-time rejection counters, for diagnostics.
type Stats struct {
	IPv4Ranges, IPv6Ranges           int
	IPv4Rejected, IPv6Rejected       int
	IPv4DupRejected, IPv6DupRejected int
}

func (ix *Index[P]) Stats() Stats {
	return Stats{
		IPv4Ranges:      len(ix.v4.ranges),
		IPv6Ranges:      len(ix.v6.ranges),
		IPv4Rejected:    ix.v4.rejectedOversize,
		IPv6Rejected:    ix.v6.rejectedOversize,
		IPv4DupRejected: ix.v4.rejectedDup,
		IPv6DupRejected: ix.v6.rejectedDup,
	}
}

// Build seals both families.
func (ix *Index[P]) Build() {
	ix.v4.build(ix.Policy, ix.Equal)
	ix.v6.build(ix.Policy, ix.Equal)
}
