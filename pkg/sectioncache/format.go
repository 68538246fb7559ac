package sectioncache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/calvinalkan/livequery/pkg/livequery"
)

// LQSC file format.
//
//	header (16 bytes, little endian):
//	  magic      [4]byte  "LQSC"
//	  version    uint16
//	  reserved   uint16   must be zero
//	  payloadLen uint32
//	  crc32c     uint32   Castagnoli checksum of the payload
//	payload:
//	  sectionCount uint32
//	  per section: name str, indexTitle str, idCount uint32, ids str...
//	str: uint32 length + bytes
const (
	fileMagic   = "LQSC"
	fileVersion = 1
	headerSize  = 16

	// maxPayload bounds reads so a corrupt length cannot force a huge
	// allocation.
	maxPayload = 1 << 30
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

var (
	errBadMagic    = errors.New("bad magic")
	errBadVersion  = errors.New("unsupported version")
	errBadChecksum = errors.New("checksum mismatch")
	errTruncated   = errors.New("truncated")
	errTrailing    = errors.New("trailing bytes")
)

func encodeLayout(layout livequery.Layout) []byte {
	payload := binary.LittleEndian.AppendUint32(nil, uint32(len(layout.Sections)))

	for _, sec := range layout.Sections {
		payload = appendString(payload, sec.Name)
		payload = appendString(payload, sec.IndexTitle)
		payload = binary.LittleEndian.AppendUint32(payload, uint32(len(sec.IDs)))

		for _, id := range sec.IDs {
			payload = appendString(payload, id)
		}
	}

	buf := make([]byte, headerSize, headerSize+len(payload))
	copy(buf[0:4], fileMagic)
	binary.LittleEndian.PutUint16(buf[4:6], fileVersion)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(payload)))
	binary.LittleEndian.PutUint32(buf[12:16], crc32.Checksum(payload, crcTable))

	return append(buf, payload...)
}

func appendString(b []byte, s string) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(len(s)))

	return append(b, s...)
}

// decodeLayout validates and decodes a whole file. Every failure wraps
// [ErrCorrupt].
func decodeLayout(data []byte) (livequery.Layout, error) {
	layout, err := decode(data)
	if err != nil {
		return livequery.Layout{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	return layout, nil
}

func decode(data []byte) (livequery.Layout, error) {
	if len(data) < headerSize {
		return livequery.Layout{}, fmt.Errorf("header: %w", errTruncated)
	}

	if string(data[0:4]) != fileMagic {
		return livequery.Layout{}, errBadMagic
	}

	if v := binary.LittleEndian.Uint16(data[4:6]); v != fileVersion {
		return livequery.Layout{}, fmt.Errorf("%w: %d", errBadVersion, v)
	}

	if binary.LittleEndian.Uint16(data[6:8]) != 0 {
		return livequery.Layout{}, errors.New("reserved header bits set")
	}

	n := binary.LittleEndian.Uint32(data[8:12])
	if n > maxPayload || int(n) != len(data)-headerSize {
		return livequery.Layout{}, fmt.Errorf("payload length %d for %d byte file: %w", n, len(data), errTruncated)
	}

	payload := data[headerSize:]
	if crc32.Checksum(payload, crcTable) != binary.LittleEndian.Uint32(data[12:16]) {
		return livequery.Layout{}, errBadChecksum
	}

	r := reader{buf: payload}

	count := r.u32()

	// Each section needs at least 12 bytes; reject counts the payload cannot hold.
	if uint64(count)*12 > uint64(len(payload)) {
		return livequery.Layout{}, fmt.Errorf("section count %d: %w", count, errTruncated)
	}

	layout := livequery.Layout{Sections: make([]livequery.LayoutSection, 0, count)}

	for range count {
		sec := livequery.LayoutSection{Name: r.str(), IndexTitle: r.str()}

		ids := r.u32()
		if uint64(ids)*4 > uint64(r.remaining()) {
			return livequery.Layout{}, fmt.Errorf("id count %d: %w", ids, errTruncated)
		}

		sec.IDs = make([]string, 0, ids)
		for range ids {
			sec.IDs = append(sec.IDs, r.str())
		}

		if r.err != nil {
			return livequery.Layout{}, r.err
		}

		layout.Sections = append(layout.Sections, sec)
	}

	if r.err != nil {
		return livequery.Layout{}, r.err
	}

	if r.remaining() != 0 {
		return livequery.Layout{}, errTrailing
	}

	return layout, nil
}

// reader is a bounds-checked cursor; the first overrun sticks in err.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) remaining() int { return len(r.buf) - r.off }

func (r *reader) u32() uint32 {
	if r.err != nil || r.remaining() < 4 {
		r.fail()

		return 0
	}

	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4

	return v
}

func (r *reader) str() string {
	n := r.u32()
	if r.err != nil || uint64(n) > uint64(r.remaining()) {
		r.fail()

		return ""
	}

	s := string(r.buf[r.off : r.off+int(n)])
	r.off += int(n)

	return s
}

func (r *reader) fail() {
	if r.err == nil {
		r.err = fmt.Errorf("at offset %d: %w", r.off, errTruncated)
	}
}
