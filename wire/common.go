// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package wire defines the single canonical byte layout used for every
// hashed or wire-transferred object in the network: blocks, transactions,
// and peer-to-peer messages. Fixed-width integers are little-endian,
// variable-length fields are prefixed by a length varint, arrays are
// prefixed by a count varint, and strings are UTF-8 length-prefixed. For
// any accepted object, decode(encode(x)) == x and encode(decode(b)) == b.
package wire

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// HashSize is the size, in bytes, of a canonical object hash.
const HashSize = 32

// Hash is a 32-byte double-SHA256 digest of a canonically encoded object.
type Hash [HashSize]byte

// String returns the hex encoding of the hash in byte order (h[0]
// first), which is most-significant-byte-first under the big-endian
// reading HashToBig and Less use.
func (h Hash) String() string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, HashSize*2)
	for i := 0; i < HashSize; i++ {
		b := h[i]
		buf[i*2] = hexDigits[b>>4]
		buf[i*2+1] = hexDigits[b&0x0f]
	}
	return string(buf)
}

// IsZero reports whether h is the all-zero hash (used as the previous-hash
// of the genesis block).
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Less reports whether h sorts before other as a big-endian integer, used
// for block hash tie-breaking in fork choice.
func (h Hash) Less(other Hash) bool {
	for i := 0; i < HashSize; i++ {
		if h[i] != other[i] {
			return h[i] < other[i]
		}
	}
	return false
}

// MaxVarIntPayload is the maximum payload size for a variable-length
// integer.
const MaxVarIntPayload = 9

var errNonCanonicalVarInt = "non-canonical varint %x - discriminant %x must encode a value greater than %x"

// WriteVarInt serializes n to w using as few bytes as possible.
func WriteVarInt(w io.Writer, n uint64) error {
	if n < 0xfd {
		return writeByte(w, byte(n))
	}
	if n <= 0xffff {
		if err := writeByte(w, 0xfd); err != nil {
			return err
		}
		return writeLE(w, uint16(n))
	}
	if n <= 0xffffffff {
		if err := writeByte(w, 0xfe); err != nil {
			return err
		}
		return writeLE(w, uint32(n))
	}
	if err := writeByte(w, 0xff); err != nil {
		return err
	}
	return writeLE(w, n)
}

// ReadVarInt deserializes a variable-length integer from r, rejecting
// non-canonical (over-long) encodings.
func ReadVarInt(r io.Reader) (uint64, error) {
	var prefix [1]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return 0, err
	}
	switch prefix[0] {
	case 0xff:
		var v uint64
		if err := readLE(r, &v); err != nil {
			return 0, err
		}
		if v <= 0xffffffff {
			return 0, errors.Errorf(errNonCanonicalVarInt, v, prefix[0], 0xffffffff)
		}
		return v, nil
	case 0xfe:
		var v uint32
		if err := readLE(r, &v); err != nil {
			return 0, err
		}
		if uint64(v) <= 0xffff {
			return 0, errors.Errorf(errNonCanonicalVarInt, v, prefix[0], 0xffff)
		}
		return uint64(v), nil
	case 0xfd:
		var v uint16
		if err := readLE(r, &v); err != nil {
			return 0, err
		}
		if uint64(v) < 0xfd {
			return 0, errors.Errorf(errNonCanonicalVarInt, v, prefix[0], 0xfd)
		}
		return uint64(v), nil
	default:
		return uint64(prefix[0]), nil
	}
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

func writeLE(w io.Writer, v interface{}) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func readLE(r io.Reader, v interface{}) error {
	return binary.Read(r, binary.LittleEndian, v)
}

// WriteVarBytes writes a length-prefixed byte slice.
func WriteVarBytes(w io.Writer, b []byte) error {
	if err := WriteVarInt(w, uint64(len(b))); err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	_, err := w.Write(b)
	return err
}

// ReadVarBytes reads a length-prefixed byte slice, refusing to allocate
// more than maxAllowed bytes in response to a hostile length prefix.
func ReadVarBytes(r io.Reader, maxAllowed uint64, fieldName string) ([]byte, error) {
	count, err := ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	if count > maxAllowed {
		return nil, errors.Errorf("%s is larger than the max allowed size [count %d, max %d]",
			fieldName, count, maxAllowed)
	}
	b := make([]byte, count)
	if count == 0 {
		return b, nil
	}
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// WriteVarString writes a UTF-8 string as a length-prefixed byte slice.
func WriteVarString(w io.Writer, s string) error {
	return WriteVarBytes(w, []byte(s))
}

// ReadVarString reads a UTF-8 length-prefixed string.
func ReadVarString(r io.Reader, maxAllowed uint64) (string, error) {
	b, err := ReadVarBytes(r, maxAllowed, "string")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// WriteHash writes a fixed-size, un-prefixed hash.
func WriteHash(w io.Writer, h Hash) error {
	_, err := w.Write(h[:])
	return err
}

// ReadHash reads a fixed-size, un-prefixed hash.
func ReadHash(r io.Reader) (Hash, error) {
	var h Hash
	_, err := io.ReadFull(r, h[:])
	return h, err
}

// WriteUint64 writes a little-endian, fixed-width uint64.
func WriteUint64(w io.Writer, v uint64) error { return writeLE(w, v) }

// ReadUint64 reads a little-endian, fixed-width uint64.
func ReadUint64(r io.Reader) (uint64, error) {
	var v uint64
	err := readLE(r, &v)
	return v, err
}

// WriteUint32 writes a little-endian, fixed-width uint32.
func WriteUint32(w io.Writer, v uint32) error { return writeLE(w, v) }

// ReadUint32 reads a little-endian, fixed-width uint32.
func ReadUint32(r io.Reader) (uint32, error) {
	var v uint32
	err := readLE(r, &v)
	return v, err
}

// WriteInt64 writes a little-endian, fixed-width int64.
func WriteInt64(w io.Writer, v int64) error { return writeLE(w, v) }

// ReadInt64 reads a little-endian, fixed-width int64.
func ReadInt64(r io.Reader) (int64, error) {
	var v int64
	err := readLE(r, &v)
	return v, err
}
