package wfs

import "fmt"

// FragmentChain is an in-memory, non-owning view over one main
// descriptor and its secondaries. Descriptor records remain owned by
// the classifier's mains/secondaries maps; the chain only holds
// back-references keyed by slot (main) and relative_order
// (secondaries), never a second copy of the record.
type FragmentChain struct {
	MainSlot    uint32
	Main        *MainDescriptor
	Secondaries map[uint16]*SecondaryDescriptor // keyed by one-based relative_order
}

// FragmentCount returns how many fragments (main + secondaries) this
// chain contributes, counting only slots actually filled.
func (c *FragmentChain) FragmentCount() int {
	return 1 + len(c.Secondaries)
}

// reconstructor runs the two-pass algorithm over one classifier
// result, producing ValidChains and IncompleteChains plus any
// anomalies raised along the way.
type reconstructor struct {
	cr               *classifyResult
	geo              Geometry
	validChains      map[uint32]*FragmentChain
	incompleteChains map[uint32]*FragmentChain
	anomalies        []Anomaly
}

func newReconstructor(cr *classifyResult, geo Geometry) *reconstructor {
	return &reconstructor{
		cr:               cr,
		geo:              geo,
		validChains:      make(map[uint32]*FragmentChain),
		incompleteChains: make(map[uint32]*FragmentChain),
	}
}

func (r *reconstructor) logf(slot uint32, offset uint64, hexSource []byte, format string, args ...any) {
	a := Anomaly{Slot: slot, Offset: offset, Reason: fmt.Sprintf(format, args...)}
	if hexSource != nil {
		a.HexDump = hexDump(offset, hexSource)
	}
	r.anomalies = append(r.anomalies, a)
}

// passA rebuilds intact chains from every main descriptor the
// classifier accepted, per spec §4.5 Pass A.
func (r *reconstructor) passA() {
	for slot, m := range r.cr.mains {
		offset := r.geo.indexSlotOffset(slot)

		if m.SecondaryCount == 0 && m.NextSecondaryIndex == 0 {
			m.Claimed = true
			r.validChains[slot] = &FragmentChain{MainSlot: slot, Main: m, Secondaries: make(map[uint16]*SecondaryDescriptor)}
			continue
		}

		if m.NextSecondaryIndex == 0 || uint64(m.NextSecondaryIndex) > r.geo.FragmentCount {
			r.logf(slot, offset, nil, "SecDesc reference out of range (next=%d)", m.NextSecondaryIndex)
			continue
		}

		head, ok := r.cr.secondaries[m.NextSecondaryIndex]
		if !ok {
			r.logf(slot, offset, nil, "first secondary missing (slot %d)", m.NextSecondaryIndex)
			continue
		}
		if head.PrevIndex != slot {
			r.logf(slot, offset, nil, "head secondary slot %d does not reference main back (prev=%d)", head.Slot, head.PrevIndex)
			continue
		}
		if head.CameraValid && m.CameraValid && head.CameraNumber != m.CameraNumber {
			r.logf(slot, offset, nil, "camera mismatch: main=%d head secondary=%d", m.CameraNumber, head.CameraNumber)
		}

		chain := &FragmentChain{MainSlot: slot, Main: m, Secondaries: make(map[uint16]*SecondaryDescriptor)}
		chain.Secondaries[1] = head
		head.Claimed = true
		cursor := head.NextIndex

		for k := 2; k <= int(m.SecondaryCount); k++ {
			next, ok := r.cr.secondaries[cursor]
			if !ok {
				r.logf(slot, offset, nil, "broken chain at k=%d (cursor=%d)", k, cursor)
				break
			}
			if int(next.RelativeOrder) != k {
				r.logf(slot, offset, nil, "relative_order mismatch at k=%d: secondary slot %d carries order %d; skipping, continuing walk", k, next.Slot, next.RelativeOrder)
				cursor = next.NextIndex
				continue
			}
			if next.CameraValid && m.CameraValid && next.CameraNumber != m.CameraNumber {
				r.logf(slot, offset, nil, "camera mismatch: main=%d secondary %d=%d", m.CameraNumber, next.Slot, next.CameraNumber)
			}
			chain.Secondaries[uint16(k)] = next
			next.Claimed = true
			cursor = next.NextIndex
		}

		m.Claimed = true
		r.validChains[slot] = chain
	}
}

// passB recovers secondaries whose main never survived, per spec §4.5
// Pass B. Attachment always prefers an existing slot: if a position is
// already filled (Pass A precedes Pass B) the earlier entry wins.
func (r *reconstructor) passB() {
	for _, s := range r.cr.secondaries {
		if s.Claimed {
			continue
		}
		m := s.MainIndex

		if chain, ok := r.validChains[m]; ok {
			attach(chain, s)
			s.Claimed = true
			s.Recovered = true
			continue
		}

		chain, ok := r.incompleteChains[m]
		if !ok || chain.Main == nil {
			synth := &MainDescriptor{Slot: m, Claimed: true, Synthesized: true}
			r.cr.mains[m] = synth
			chain = &FragmentChain{MainSlot: m, Main: synth, Secondaries: make(map[uint16]*SecondaryDescriptor)}
			r.incompleteChains[m] = chain
		}
		attach(chain, s)
		s.Claimed = true
		s.Recovered = true
	}
}

func attach(chain *FragmentChain, s *SecondaryDescriptor) {
	if _, occupied := chain.Secondaries[s.RelativeOrder]; occupied {
		return
	}
	chain.Secondaries[s.RelativeOrder] = s
}

// fillInSynthesizedMains computes, for every synthesized main, its
// camera number and ts_start/ts_end bounds from its attached
// secondaries, per spec §4.5's fill-in sweep. It also resolves
// secondary_count: rather than the original firmware's off-by-
// construction counter (it increments once on synthesis and never
// again, so a recovered chain of any length ends up reporting 1), this
// sets it to the highest relative_order actually attached.
func (r *reconstructor) fillInSynthesizedMains() {
	for slot, chain := range r.incompleteChains {
		if chain.Main == nil || !chain.Main.Synthesized {
			continue
		}
		cameras := map[int]bool{}
		var maxOrder uint16
		var haveBounds bool
		var minStart, maxEnd = chain.Main.TimeStampStart, chain.Main.TimeStampEnd
		for order, s := range chain.Secondaries {
			if order > maxOrder {
				maxOrder = order
			}
			if s.CameraValid {
				cameras[s.CameraNumber] = true
			}
			if !haveBounds || s.TimeStampStart.Before(minStart) {
				minStart = s.TimeStampStart
			}
			if !haveBounds || maxEnd.Before(s.TimeStampEnd) {
				maxEnd = s.TimeStampEnd
			}
			haveBounds = true
		}
		chain.Main.SecondaryCount = maxOrder

		switch len(cameras) {
		case 0:
			// no secondary carried a valid camera number; leave unset.
		case 1:
			for c := range cameras {
				chain.Main.CameraNumber = c
				chain.Main.CameraValid = true
			}
			if haveBounds {
				chain.Main.TimeStampStart = minStart
				chain.Main.TimeStampEnd = maxEnd
			}
		default:
			r.logf(slot, r.geo.indexSlotOffset(slot), nil, "incomplete chain secondaries disagree on camera number")
		}
	}
}

// unclaimedSecondaries counts secondaries that remain unclaimed after
// both passes, for the informational diagnostic spec §4.5 requires.
func (r *reconstructor) unclaimedSecondaries() int {
	n := 0
	for _, s := range r.cr.secondaries {
		if !s.Claimed {
			n++
		}
	}
	return n
}
