package wfs

// Magic-number thresholds for the tag+heuristic classifier. These are
// reverse-engineered and intentional: corruption commonly zeroes most
// of a slot while leaving the tag byte intact, so the classifier is
// permissive on tag and strict on content.
const (
	mainMinNonZero      = 10
	mainMaxZero         = 22
	secondaryMinNonZero = 13
	secondaryMaxZero    = 19
	reservedNonZero     = 1
)

// ClassificationCounts tallies how many of the N Index Area slots fell
// into each bucket. Kept as an explicit return value, not mutated
// through a shared aggregate, so callers can't observe a half-updated
// count.
type ClassificationCounts struct {
	Mains       int
	Secondaries int
	Reserveds   int
	Others      int
}

// classifyResult is everything the Index Area Classifier produces from
// one pass over the buffer.
type classifyResult struct {
	mains       map[uint32]*MainDescriptor
	secondaries map[uint32]*SecondaryDescriptor
	counts      ClassificationCounts
	anomalies   []Anomaly
}

// classifyIndexArea walks slots 0..N-1 of the Index Area buffer,
// dispatching on the tag byte at offset 1 of each 32-byte slot and
// applying the heuristic validation in the spec's classification table.
func classifyIndexArea(buf []byte, geo Geometry) classifyResult {
	n := int(geo.FragmentCount)
	res := classifyResult{
		mains:       make(map[uint32]*MainDescriptor),
		secondaries: make(map[uint32]*SecondaryDescriptor),
	}
	for i := 0; i < n; i++ {
		start := i * descriptorSize
		end := start + descriptorSize
		if end > len(buf) {
			break
		}
		slotData := buf[start:end]
		slot := uint32(i)
		offset := geo.indexSlotOffset(slot)
		tag := slotData[descOffTag]

		switch tag {
		case tagMainA, tagMainB:
			if isLikelyMain(slotData, slot) {
				m := decodeMain(slotData, slot)
				res.mains[slot] = &m
				res.counts.Mains++
			} else {
				res.anomalies = append(res.anomalies, Anomaly{
					Slot: slot, Offset: offset,
					Reason:  "plausible main tag failed heuristic validation",
					HexDump: hexDump(offset, slotData),
				})
				res.counts.Others++
			}
		case tagSecondary:
			if isLikelySecondary(slotData) {
				s := decodeSecondary(slotData, slot)
				res.secondaries[slot] = &s
				res.counts.Secondaries++
			} else {
				res.anomalies = append(res.anomalies, Anomaly{
					Slot: slot, Offset: offset,
					Reason:  "plausible secondary tag failed heuristic validation",
					HexDump: hexDump(offset, slotData),
				})
				res.counts.Others++
			}
		case tagReserved:
			if nonZeroCount(slotData) == reservedNonZero {
				res.counts.Reserveds++
			} else {
				res.anomalies = append(res.anomalies, Anomaly{
					Slot: slot, Offset: offset,
					Reason:  "plausible reserved tag failed heuristic validation",
					HexDump: hexDump(offset, slotData),
				})
				res.counts.Others++
			}
		default:
			res.counts.Others++
		}
	}
	return res
}

// isLikelyMain applies the four-part check from the classification
// table: zero-byte budget, self-reference, timestamp validity, and a
// zeroed prev_secondary_index.
func isLikelyMain(data []byte, slot uint32) bool {
	zeros := len(data) - nonZeroCount(data)
	if nonZeroCount(data) < mainMinNonZero || zeros > mainMaxZero {
		return false
	}
	if selfIndex(data) != slot {
		return false
	}
	ts1 := decodeTimestampAt(data, descOffTimeStampStart)
	ts2 := decodeTimestampAt(data, descOffTimeStampEnd)
	if !ts1.Valid() || !ts2.Valid() {
		return false
	}
	return prevIndex(data) == 0
}

// isLikelySecondary applies the two-part check: zero-byte budget and
// timestamp validity. Unlike mains, secondaries carry no self-index or
// prev-must-be-zero requirement.
func isLikelySecondary(data []byte) bool {
	zeros := len(data) - nonZeroCount(data)
	if nonZeroCount(data) < secondaryMinNonZero || zeros > secondaryMaxZero {
		return false
	}
	ts1 := decodeTimestampAt(data, descOffTimeStampStart)
	ts2 := decodeTimestampAt(data, descOffTimeStampEnd)
	return ts1.Valid() && ts2.Valid()
}
