// Package wfs is the core domain package: header/superblock decoding,
// geometry derivation, Index Area classification, and the two-pass
// chain reconstructor. It mutates its state in the strict order the
// spec requires (superblock -> classifier -> pass A -> pass B ->
// fill-in) and is single-threaded and synchronous by construction: a
// Session owns one blockio.Reader and never starts a goroutine itself.
package wfs

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"

	"github.com/wfsinfo/wfsinfo/internal/blockio"
	"github.com/wfsinfo/wfsinfo/internal/settings"
)

// Session is the reconstructed, queryable view of one WFS image. It is
// not safe for concurrent mutation, but ExportChain/ExportSecondary
// calls against independent paths may run concurrently once
// construction has completed, since they only read through the
// Reader's ReadAt and append to distinct sink paths.
type Session struct {
	Header     Header
	SuperBlock SuperBlock
	Geometry   Geometry
	Counts     ClassificationCounts

	mains       map[uint32]*MainDescriptor
	secondaries map[uint32]*SecondaryDescriptor

	validChains      map[uint32]*FragmentChain
	incompleteChains map[uint32]*FragmentChain
	anomalies        []Anomaly

	reader blockio.Reader
	logger *log.Logger
}

// OpenSession runs superblock validation, geometry derivation,
// classification, and both reconstruction passes, per spec §6. Only
// the three structural errors and I/O failures during construction
// abort; every descriptor-level anomaly is recorded and surfaced
// through Session.Anomalies, never returned as an error.
func OpenSession(reader blockio.Reader, cfg settings.Settings) (*Session, error) {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: false})
	logger.SetLevel(parseLevel(cfg.LogLevel))

	headerBuf, err := reader.ReadStructAt(HeaderOffset, HeaderSize)
	if err != nil {
		return nil, wrapReadErr(err)
	}
	header, err := parseHeader(headerBuf)
	if err != nil {
		return nil, err
	}

	sbBuf, err := reader.ReadStructAt(SuperBlockOffset, SuperBlockSize)
	if err != nil {
		return nil, wrapReadErr(err)
	}
	sb, err := parseSuperBlock(sbBuf)
	if err != nil {
		return nil, err
	}

	geo, err := computeGeometry(sb)
	if err != nil {
		return nil, err
	}
	if geo.IndexAreaOffset+geo.IndexAreaTotalBytes > reader.Size() {
		return nil, fmt.Errorf("%w: index area [0x%x, 0x%x) exceeds reader extent 0x%x",
			ErrUnsupportedGeometry, geo.IndexAreaOffset, geo.IndexAreaOffset+geo.IndexAreaTotalBytes, reader.Size())
	}

	indexBuf, err := reader.ReadStructAt(geo.IndexAreaOffset, int(geo.IndexAreaTotalBytes))
	if err != nil {
		return nil, wrapReadErr(err)
	}

	cr := classifyIndexArea(indexBuf, geo)
	rec := newReconstructor(&cr, geo)
	rec.passA()
	if cfg.RecoverIncompleteChains {
		rec.passB()
		rec.fillInSynthesizedMains()
	}

	anomalies := append(cr.anomalies, rec.anomalies...)
	if n := rec.unclaimedSecondaries(); n > 0 {
		anomalies = append(anomalies, Anomaly{Reason: fmt.Sprintf("%d secondaries remain unclaimed after reconstruction", n)})
	}
	for _, a := range anomalies {
		if a.HexDump != "" && cfg.DumpAnomalies {
			logger.Debug(a.Reason, "slot", a.Slot, "offset", fmt.Sprintf("0x%x", a.Offset), "hex", a.HexDump)
		} else {
			logger.Warn(a.Reason, "slot", a.Slot)
		}
	}

	return &Session{
		Header:           header,
		SuperBlock:       sb,
		Geometry:         geo,
		Counts:           cr.counts,
		mains:            cr.mains,
		secondaries:      cr.secondaries,
		validChains:      rec.validChains,
		incompleteChains: rec.incompleteChains,
		anomalies:        anomalies,
		reader:           reader,
		logger:           logger,
	}, nil
}

func parseLevel(level string) log.Level {
	switch level {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

func wrapReadErr(err error) error {
	if errors.Is(err, blockio.ErrShortRead) {
		return fmt.Errorf("%w: %v", ErrShortRead, err)
	}
	if errors.Is(err, blockio.ErrSeekFailed) {
		return fmt.Errorf("%w: %v", ErrSeekFailed, err)
	}
	return fmt.Errorf("%w: %v", ErrIO, err)
}

// ValidChains returns chains whose main descriptor was found and
// validated in the Index Area, keyed by main-slot index.
func (s *Session) ValidChains() map[uint32]*FragmentChain { return s.validChains }

// IncompleteChains returns chains recovered from orphaned secondaries
// whose main descriptor was overwritten by the ring, keyed by main-slot
// index.
func (s *Session) IncompleteChains() map[uint32]*FragmentChain { return s.incompleteChains }

// Anomalies returns every diagnostic event accumulated during
// classification and reconstruction, in the order they were raised.
func (s *Session) Anomalies() []Anomaly { return s.anomalies }

// Mains exposes the classifier's accepted main-descriptor map,
// including placeholders synthesized by Pass B.
func (s *Session) Mains() map[uint32]*MainDescriptor { return s.mains }

// Secondaries exposes the classifier's accepted secondary-descriptor
// map.
func (s *Session) Secondaries() map[uint32]*SecondaryDescriptor { return s.secondaries }

// ExportChain writes a chain's fragments, in chain order, to path via
// sink.WriteAppend: the main fragment first, then each secondary whose
// slot is present, substituting last_fragment_size_blocks for the
// final position when it is nonzero.
func (s *Session) ExportChain(chain *FragmentChain, sink blockio.Sink, path string) error {
	mainData, err := s.reader.ReadStructAt(s.Geometry.fragmentOffset(chain.Main.Slot), int(s.Geometry.FragmentBytes))
	if err != nil {
		return wrapReadErr(err)
	}
	if err := sink.WriteAppend(path, mainData); err != nil {
		return fmt.Errorf("%w: %v", ErrSinkWriteFailed, err)
	}

	count := int(chain.Main.SecondaryCount)
	for k := 1; k <= count; k++ {
		sec, ok := chain.Secondaries[uint16(k)]
		if !ok {
			continue
		}
		length := s.Geometry.FragmentBytes
		if k == count && sec.LastFragmentSizeBlocks > 0 {
			length = uint64(sec.LastFragmentSizeBlocks) * s.Geometry.BlockSize
		}
		data, err := s.reader.ReadStructAt(s.Geometry.fragmentOffset(sec.Slot), int(length))
		if err != nil {
			return wrapReadErr(err)
		}
		if err := sink.WriteAppend(path, data); err != nil {
			return fmt.Errorf("%w: %v", ErrSinkWriteFailed, err)
		}
	}
	return nil
}

// ExportSecondary writes one secondary descriptor's fragment to path
// via sink.WriteNew (truncate semantics), honoring
// last_fragment_size_blocks when set.
func (s *Session) ExportSecondary(sec *SecondaryDescriptor, sink blockio.Sink, path string) error {
	length := s.Geometry.FragmentBytes
	if sec.LastFragmentSizeBlocks > 0 {
		length = uint64(sec.LastFragmentSizeBlocks) * s.Geometry.BlockSize
	}
	data, err := s.reader.ReadStructAt(s.Geometry.fragmentOffset(sec.Slot), int(length))
	if err != nil {
		return wrapReadErr(err)
	}
	if err := sink.WriteNew(path, data); err != nil {
		return fmt.Errorf("%w: %v", ErrSinkWriteFailed, err)
	}
	return nil
}

// Report returns a short textual summary of the parsed geometry,
// classifier counts, and anomaly count. It is the baseline core
// contract from spec §6; internal/report builds the richer,
// dual-format CLI report from the same Session accessors.
func (s *Session) Report() string {
	return fmt.Sprintf(
		"WFS image: %s\nblock_size=%d fragment_size_blocks=%d fragment_count=%d reserved=%d\n"+
			"index_area=0x%x..0x%x data_area=0x%x\n"+
			"descriptors: mains=%d secondaries=%d reserved=%d other=%d\n"+
			"chains: valid=%d incomplete=%d anomalies=%d\n",
		s.Header.Signature,
		s.SuperBlock.BlockSize, s.SuperBlock.FragmentSizeBlocks, s.SuperBlock.FragmentCount, s.SuperBlock.ReservedFragmentCount,
		s.Geometry.IndexAreaOffset, s.Geometry.IndexAreaOffset+s.Geometry.IndexAreaTotalBytes, s.Geometry.DataAreaOffset,
		s.Counts.Mains, s.Counts.Secondaries, s.Counts.Reserveds, s.Counts.Others,
		len(s.validChains), len(s.incompleteChains), len(s.anomalies),
	)
}
