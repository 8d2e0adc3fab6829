package wire

import (
	"crypto/ed25519"
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrOutOfBounds indicates a read would run past the end of the buffer.
// Callers must treat this as "message malformed" rather than panicking.
var ErrOutOfBounds = errors.New("read out of bounds")

const maxShortVecBytes = 3

// Reader is a sequential, bounds-checked cursor over a byte buffer.
//
// All integer reads are little-endian. The underlying buffer is never
// mutated; failed reads leave the offset unchanged.
type Reader struct {
	buf []byte
	off int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Offset returns the current read position.
func (r *Reader) Offset() int {
	return r.off
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

// ReadBytes returns the next n bytes as a sub-slice of the buffer.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, errors.Wrapf(ErrOutOfBounds, "negative length %d", n)
	}
	if r.off+n > len(r.buf) {
		return nil, errors.Wrapf(ErrOutOfBounds, "need %d bytes at offset %d, have %d", n, r.off, r.Remaining())
	}

	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

// Skip advances the cursor n bytes without returning them.
func (r *Reader) Skip(n int) error {
	_, err := r.ReadBytes(n)
	return err
}

func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

// ReadKey reads a 32-byte public key.
func (r *Reader) ReadKey() (ed25519.PublicKey, error) {
	b, err := r.ReadBytes(ed25519.PublicKeySize)
	if err != nil {
		return nil, err
	}

	key := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(key, b)
	return key, nil
}

// ReadShortVecLen decodes a shortvec encoded length. Each byte contributes
// 7 bits, with the top bit signalling continuation, over at most 3 bytes.
func (r *Reader) ReadShortVecLen() (int, error) {
	start := r.off

	var val, count int
	for {
		b, err := r.ReadUint8()
		if err != nil {
			r.off = start
			return 0, err
		}

		val |= int(b&0x7f) << (count * 7)
		count++

		if b&0x80 == 0 {
			break
		}
		if count >= maxShortVecBytes {
			r.off = start
			return 0, errors.Errorf("invalid shortvec size: exceeds %d bytes", maxShortVecBytes)
		}
	}

	return val, nil
}
