// Package changehash computes stable content digests over ordered
// sequences of scalar column values. The digest is used as a cheap
// equality check before comparing or rewriting warehouse rows: same
// logical row always yields the same digest, across runs and across
// processes.
//
// This is not a security boundary. The 128-bit xxh3 digest only needs
// enough collision resistance to make false-negative change detection
// implausible at practical table sizes.
package changehash

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/zeebo/xxh3"
)

// Digest is a 128-bit content hash.
type Digest [16]byte

// String renders the digest as 32 lowercase hex characters, the form
// stored in the content_hash column.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Parse decodes the hex form produced by String.
func Parse(s string) (Digest, error) {
	var d Digest
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("failed to decode digest: %w", err)
	}
	if len(b) != len(d) {
		return d, fmt.Errorf("digest must be %d bytes, got %d", len(d), len(b))
	}
	copy(d[:], b)
	return d, nil
}

// Value kind tags. Each encoded value is a kind byte followed by a
// length-prefixed canonical byte form, so no delimiter can collide
// with data and ("ab","c") never hashes equal to ("a","bc").
const (
	kindNull byte = iota
	kindString
	kindBytes
	kindInt
	kindUint
	kindFloat
	kindBool
	kindTime
)

// Sum hashes an ordered sequence of scalar values. Nil values (and nil
// typed pointers) are well-defined and hash as an explicit null marker;
// a sequence of all nulls is a valid input, not an error. Unsupported
// value types return an error so schema mistakes surface as row
// validation failures rather than silent hash instability.
func Sum(values []any) (Digest, error) {
	buf := make([]byte, 0, 64)
	for i, v := range values {
		b, err := appendCanonical(buf, v)
		if err != nil {
			return Digest{}, fmt.Errorf("failed to encode value %d: %w", i, err)
		}
		buf = b
	}

	sum := xxh3.Hash128(buf)
	var d Digest
	binary.BigEndian.PutUint64(d[:8], sum.Hi)
	binary.BigEndian.PutUint64(d[8:], sum.Lo)
	return d, nil
}

func appendCanonical(buf []byte, v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return append(buf, kindNull), nil
	case string:
		return appendTagged(buf, kindString, []byte(x)), nil
	case []byte:
		return appendTagged(buf, kindBytes, x), nil
	case bool:
		if x {
			return appendTagged(buf, kindBool, []byte{1}), nil
		}
		return appendTagged(buf, kindBool, []byte{0}), nil
	case int:
		return appendInt(buf, int64(x)), nil
	case int8:
		return appendInt(buf, int64(x)), nil
	case int16:
		return appendInt(buf, int64(x)), nil
	case int32:
		return appendInt(buf, int64(x)), nil
	case int64:
		return appendInt(buf, x), nil
	case uint:
		return appendUint(buf, uint64(x)), nil
	case uint8:
		return appendUint(buf, uint64(x)), nil
	case uint16:
		return appendUint(buf, uint64(x)), nil
	case uint32:
		return appendUint(buf, uint64(x)), nil
	case uint64:
		return appendUint(buf, x), nil
	case float32:
		return appendFloat(buf, float64(x)), nil
	case float64:
		return appendFloat(buf, x), nil
	case time.Time:
		// UTC + RFC3339Nano keeps the form independent of the host
		// timezone and locale.
		return appendTagged(buf, kindTime, []byte(x.UTC().Format(time.RFC3339Nano))), nil
	case *string:
		if x == nil {
			return append(buf, kindNull), nil
		}
		return appendCanonical(buf, *x)
	case *int64:
		if x == nil {
			return append(buf, kindNull), nil
		}
		return appendCanonical(buf, *x)
	case *float64:
		if x == nil {
			return append(buf, kindNull), nil
		}
		return appendCanonical(buf, *x)
	case *bool:
		if x == nil {
			return append(buf, kindNull), nil
		}
		return appendCanonical(buf, *x)
	case *time.Time:
		if x == nil {
			return append(buf, kindNull), nil
		}
		return appendCanonical(buf, *x)
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

func appendTagged(buf []byte, kind byte, b []byte) []byte {
	buf = append(buf, kind)
	buf = binary.AppendUvarint(buf, uint64(len(b)))
	return append(buf, b...)
}

func appendInt(buf []byte, x int64) []byte {
	return appendTagged(buf, kindInt, []byte(strconv.FormatInt(x, 10)))
}

func appendUint(buf []byte, x uint64) []byte {
	return appendTagged(buf, kindUint, []byte(strconv.FormatUint(x, 10)))
}

func appendFloat(buf []byte, x float64) []byte {
	// 'g' with -1 precision is the shortest round-trip form, stable
	// across architectures for the same bit pattern.
	b := strconv.AppendFloat(nil, x, 'g', -1, 64)
	if math.IsNaN(x) {
		b = []byte("NaN")
	}
	return appendTagged(buf, kindFloat, b)
}
