package metadata

import (
	"encoding/binary"
	"unicode/utf8"
)

// byteReader walks a little-endian buffer. The first out-of-range read
// records an error and every later read returns zero.
type byteReader struct {
	section string
	buf     []byte
	off     int
	err     error
}

func newByteReader(section string, buf []byte) *byteReader {
	return &byteReader{section: section, buf: buf}
}

func (r *byteReader) fail(msg string) {
	if r.err == nil {
		r.err = formatErr(r.section, r.off, "%s", msg)
	}
}

func (r *byteReader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || r.off+n > len(r.buf) {
		r.fail("unexpected end of data")
		return false
	}
	return true
}

func (r *byteReader) u8() uint8 {
	if !r.need(1) {
		return 0
	}
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *byteReader) u16() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v
}

func (r *byteReader) u32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *byteReader) u64() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v
}

// index reads a 2- or 4-byte table or heap index.
func (r *byteReader) index(size int) uint32 {
	if size == 4 {
		return r.u32()
	}
	return uint32(r.u16())
}

func (r *byteReader) bytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	v := r.buf[r.off : r.off+n]
	r.off += n
	return v
}

func (r *byteReader) skip(n int) {
	if r.need(n) {
		r.off += n
	}
}

// align advances to the next multiple of n.
func (r *byteReader) align(n int) {
	if rem := r.off % n; rem != 0 {
		r.skip(n - rem)
	}
}

// cstring reads a zero-terminated string.
func (r *byteReader) cstring() string {
	if r.err != nil {
		return ""
	}
	for i := r.off; i < len(r.buf); i++ {
		if r.buf[i] == 0 {
			s := string(r.buf[r.off:i])
			r.off = i + 1
			return s
		}
	}
	r.fail("unterminated string")
	return ""
}

// compressed reads an ECMA-335 II.23.2 compressed unsigned integer.
func (r *byteReader) compressed() uint32 {
	b := r.u8()
	switch {
	case b&0x80 == 0:
		return uint32(b)
	case b&0xC0 == 0x80:
		b2 := r.u8()
		return uint32(b&0x3F)<<8 | uint32(b2)
	case b&0xE0 == 0xC0:
		rest := r.bytes(3)
		if rest == nil {
			return 0
		}
		return uint32(b&0x1F)<<24 | uint32(rest[0])<<16 | uint32(rest[1])<<8 | uint32(rest[2])
	default:
		r.fail("invalid compressed integer")
		return 0
	}
}

// serString reads a custom-attribute SerString. ok is false for the null
// string (0xFF marker).
func (r *byteReader) serString() (s string, ok bool) {
	if r.need(1) && r.buf[r.off] == 0xFF {
		r.off++
		return "", false
	}
	n := r.compressed()
	raw := r.bytes(int(n))
	if raw == nil && n > 0 {
		return "", false
	}
	if !utf8.Valid(raw) {
		r.fail("invalid UTF-8 in serialized string")
		return "", false
	}
	return string(raw), true
}

func (r *byteReader) done() bool {
	return r.err != nil || r.off >= len(r.buf)
}

// heaps holds the metadata heaps referenced from table rows.
type heaps struct {
	strings []byte
	blob    []byte
	guid    []byte
}

func (h *heaps) string(idx uint32) string {
	if int(idx) >= len(h.strings) {
		return ""
	}
	end := int(idx)
	for end < len(h.strings) && h.strings[end] != 0 {
		end++
	}
	return string(h.strings[idx:end])
}

func (h *heaps) blobAt(idx uint32) []byte {
	if idx == 0 || int(idx) >= len(h.blob) {
		return nil
	}
	r := newByteReader("#Blob", h.blob)
	r.off = int(idx)
	n := r.compressed()
	return r.bytes(int(n))
}

func (h *heaps) guidAt(idx uint32) []byte {
	if idx == 0 {
		return nil
	}
	start := int(idx-1) * 16
	if start+16 > len(h.guid) {
		return nil
	}
	return h.guid[start : start+16]
}
