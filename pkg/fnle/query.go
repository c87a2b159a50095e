package fnle

import "sort"

// Result is returned by Lookup.
type Result[P any] struct {
	Found    bool
	Single   P
	Multiple []P // populated only under PolicyAll
	Network  []Range
}

// Lookup resolves addr against the index using the configured policy.
// Mirrors the lookup walk described for the sweep-line index.
func (ix *Index[P]) Lookup(addr string) Result[P] {
	a, isV4, err := ParseAddr(addr)
	if err != nil {
		return Result[P]{}
	}
	f := ix.v6
	if isV4 {
		f = ix.v4
	}
	return f.lookup(a, ix.Policy)
}

// LookupAddr is the same as Lookup but takes an already-parsed address,
// avoiding a re-parse when the pipeline has already classified the
// query (used by the request path for hot-loop efficiency).
func (ix *Index[P]) LookupAddr(a Addr, isV4 bool) Result[P] {
	f := ix.v6
	if isV4 {
		f = ix.v4
	}
	return f.lookup(a, ix.Policy)
}

func (f *family[P]) lookup(addr Addr, policy Policy) Result[P] {
	if entry, ok := f.direct[addr]; ok {
		if policy == PolicyAll {
			if entry.isMany {
				return Result[P]{Found: true, Multiple: append([]P(nil), entry.multi...)}
			}
			return Result[P]{Found: true, Multiple: []P{entry.single}}
		}
		return Result[P]{Found: true, Single: entry.single}
	}

	if len(f.line) == 0 {
		return Result[P]{}
	}

	// Binary search for the insertion point of addr.
	i := sort.Search(len(f.line), func(i int) bool {
		return f.line[i].coord.Compare(addr) >= 0
	})

	var primarySlot uint32
	havePrimary := false

	if i < len(f.line) && f.line[i].coord.Compare(addr) == 0 {
		// Straight match.
		primarySlot = f.line[i].slot
		havePrimary = true
	} else if i > 0 {
		// addr falls strictly between line[i-1] and line[i]. Whether
		// the preceding event was a START or an END, what matters is
		// whether some range is still open across that gap -- a range
		// that started earlier and ends after addr stays open even
		// when a nested range's END is the immediately preceding
		// event. afterEvent reflects that gap's true open set, not
		// just the preceding event's own slot.
		if rep := f.afterEvent[i-1]; rep >= 0 {
			primarySlot = uint32(rep)
			havePrimary = true
		}
	}

	switch policy {
	case PolicyFirst:
		if havePrimary {
			return Result[P]{Found: true, Single: f.payloads[primarySlot]}
		}
		return Result[P]{}

	case PolicySmallest, PolicyLargest:
		if !havePrimary {
			return Result[P]{}
		}
		best := primarySlot
		bestSize := f.ranges[primarySlot].size()
		neighbours := f.overlaps[primarySlot]
		if len(neighbours) > overlapCutoff {
			neighbours = neighbours[:overlapCutoff]
		}
		for _, nb := range neighbours {
			if !f.ranges[nb].Contains(addr) {
				continue
			}
			size := f.ranges[nb].size()
			if policy == PolicySmallest {
				if size < bestSize {
					best, bestSize = nb, size
				}
			} else {
				if size > bestSize {
					best, bestSize = nb, size
				}
			}
		}
		return Result[P]{Found: true, Single: f.payloads[best]}

	case PolicyAll:
		var out []P
		if havePrimary {
			out = append(out, f.payloads[primarySlot])
		}
		neighbours := f.overlaps[primarySlot]
		if !havePrimary {
			neighbours = nil
		}
		if len(neighbours) > overlapCutoff {
			neighbours = neighbours[:overlapCutoff]
		}
		for _, nb := range neighbours {
			if f.ranges[nb].Contains(addr) {
				out = append(out, f.payloads[nb])
			}
		}
		if len(out) == 0 {
			return Result[P]{}
		}
		return Result[P]{Found: true, Multiple: out}

	default:
		return Result[P]{}
	}
}

// LookupWithNetwork runs the same lookup as Lookup and, under PolicyAll,
// also reconstructs the [start, end] ranges of the matched entries.
// The returned ranges are nil under the other policies and for direct
// (single-address) hits, which have no backing range.
func (ix *Index[P]) LookupWithNetwork(addr string) (Result[P], []Range) {
	a, isV4, err := ParseAddr(addr)
	if err != nil {
		return Result[P]{}, nil
	}
	f := ix.v6
	if isV4 {
		f = ix.v4
	}
	res := f.lookup(a, ix.Policy)
	if !res.Found {
		return res, nil
	}
	var nets []Range
	if ix.Policy == PolicyAll {
		// Re-derive which ranges matched by scanning primary+overlaps
		// again, with the overlap list capped at overlapCutoff.
		if entry, ok := f.direct[a]; ok {
			_ = entry
			return res, nil // direct hits have no backing range
		}
		i := sort.Search(len(f.line), func(i int) bool { return f.line[i].coord.Compare(a) >= 0 })
		var primarySlot uint32
		havePrimary := false
		if i < len(f.line) && f.line[i].coord.Compare(a) == 0 {
			primarySlot, havePrimary = f.line[i].slot, true
		} else if i > 0 {
			if rep := f.afterEvent[i-1]; rep >= 0 {
				primarySlot, havePrimary = uint32(rep), true
			}
		}
		if havePrimary {
			nets = append(nets, f.ranges[primarySlot])
			neighbours := f.overlaps[primarySlot]
			if len(neighbours) > overlapCutoff {
				neighbours = neighbours[:overlapCutoff]
			}
			for _, nb := range neighbours {
				if f.ranges[nb].Contains(a) {
					nets = append(nets, f.ranges[nb])
				}
			}
		}
	}
	return res, nets
}
