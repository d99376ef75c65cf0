package wfs

import "github.com/wfsinfo/wfsinfo/internal/wfstime"

// Tag byte values at offset 1 of every 32-byte Index Area slot.
const (
	tagMainA     = 0x02
	tagMainB     = 0x03
	tagSecondary = 0x01
	tagReserved  = 0xFE
)

// Field offsets shared by MainDescriptor and SecondaryDescriptor;
// both are exactly 32 bytes with identical layout, differing only in
// the meaning of the bytes at 2 and 4.
const (
	descOffTag                = 1
	descOffCountOrOrder       = 2
	descOffPrevOrRelative     = 4 // prev_index for mains/secondaries alike
	descOffNext               = 8
	descOffTimeStampStart     = 0x0C
	descOffTimeStampEnd       = 0x10
	descOffLastFragmentSizeBlk = 0x16
	descOffSelfOrMainIndex    = 0x18
	descOffRecordOrder        = 0x1E
	descOffCameraRaw          = 0x1F
)

// MainDescriptor is the decoded head-of-chain record.
type MainDescriptor struct {
	Slot                  uint32
	SecondaryCount         uint16
	NextSecondaryIndex     uint32 // normalized: 0 means "no link"
	TimeStampStart         wfstime.Timestamp
	TimeStampEnd           wfstime.Timestamp
	LastFragmentSizeBlocks uint16
	RecordOrder            uint8
	CameraRaw              uint8
	CameraNumber           int
	CameraValid            bool

	Claimed bool
	// Synthesized is true for placeholder mains materialized by Pass B
	// when the real main descriptor was overwritten by the ring.
	Synthesized bool
}

// SecondaryDescriptor is a decoded continuation-fragment record.
type SecondaryDescriptor struct {
	Slot                   uint32
	RelativeOrder          uint16 // one-based, as on disk
	PrevIndex              uint32
	NextIndex              uint32
	MainIndex              uint32
	TimeStampStart         wfstime.Timestamp
	TimeStampEnd           wfstime.Timestamp
	LastFragmentSizeBlocks uint16
	RecordOrder            uint8
	CameraRaw              uint8
	CameraNumber           int
	CameraValid            bool

	Claimed   bool
	Recovered bool
}

// decodeCameraNumber implements camera_number = (raw-0x02)/0x04 + 1.
// Raw values below 0x02 underflow in the original firmware; this spec
// treats them as an anomaly rather than fabricating a number.
func decodeCameraNumber(raw uint8) (number int, ok bool) {
	if raw < 0x02 {
		return 0, false
	}
	return int((raw-0x02)/0x04) + 1, true
}

func decodeMain(data []byte, slot uint32) MainDescriptor {
	next := readUint32(data, descOffNext)
	if next == 0xFFFFFFFF {
		next = 0
	}
	camera, ok := decodeCameraNumber(data[descOffCameraRaw])
	return MainDescriptor{
		Slot:                   slot,
		SecondaryCount:         readUint16(data, descOffCountOrOrder),
		NextSecondaryIndex:     next,
		TimeStampStart:         wfstime.Decode(readUint32(data, descOffTimeStampStart)),
		TimeStampEnd:           wfstime.Decode(readUint32(data, descOffTimeStampEnd)),
		LastFragmentSizeBlocks: readUint16(data, descOffLastFragmentSizeBlk),
		RecordOrder:            data[descOffRecordOrder],
		CameraRaw:              data[descOffCameraRaw],
		CameraNumber:           camera,
		CameraValid:            ok,
	}
}

func decodeSecondary(data []byte, slot uint32) SecondaryDescriptor {
	camera, ok := decodeCameraNumber(data[descOffCameraRaw])
	return SecondaryDescriptor{
		Slot:                   slot,
		RelativeOrder:          readUint16(data, descOffCountOrOrder),
		PrevIndex:              readUint32(data, descOffPrevOrRelative),
		NextIndex:              readUint32(data, descOffNext),
		MainIndex:              readUint32(data, descOffSelfOrMainIndex),
		TimeStampStart:         wfstime.Decode(readUint32(data, descOffTimeStampStart)),
		TimeStampEnd:           wfstime.Decode(readUint32(data, descOffTimeStampEnd)),
		LastFragmentSizeBlocks: readUint16(data, descOffLastFragmentSizeBlk),
		RecordOrder:            data[descOffRecordOrder],
		CameraRaw:              data[descOffCameraRaw],
		CameraNumber:           camera,
		CameraValid:            ok,
	}
}

// selfIndex reads the self-reference field mains carry at 0x18, used by
// the classifier's plausibility check (c): self_index == slot.
func selfIndex(data []byte) uint32 {
	return readUint32(data, descOffSelfOrMainIndex)
}

// prevIndex reads the field at 0x04, used by the classifier's
// plausibility check (d) for mains: prev_secondary_index == 0.
func prevIndex(data []byte) uint32 {
	return readUint32(data, descOffPrevOrRelative)
}

func decodeTimestampAt(data []byte, offset int) wfstime.Timestamp {
	return wfstime.Decode(readUint32(data, offset))
}
