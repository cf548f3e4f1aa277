package fleece

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	tagNull   = 0x00
	tagFalse  = 0x01
	tagTrue   = 0x02
	tagInt    = 0x03
	tagFloat  = 0x04
	tagString = 0x05
	tagData   = 0x06
	tagArray  = 0x07
	tagDict   = 0x08

	dictKeyLiteral = 0x00
	dictKeyShared  = 0x01
)

// Encoder serializes a Value tree into the binary form Parse reads back.
// Dict keys are interned through an optional SharedKeys table so repeated
// property names across documents cost a small varint instead of the full
// string, mirroring the glossary's "Shared keys" concept.
type Encoder struct {
	sk  *SharedKeys
	buf []byte
}

// NewEncoder returns an Encoder. sk may be nil, in which case all dict keys
// are written as literals.
func NewEncoder(sk *SharedKeys) *Encoder {
	return &Encoder{sk: sk}
}

// Encode appends v to the encoder's output and returns the running buffer.
func (e *Encoder) Encode(v Value) []byte {
	e.write(v)
	return e.buf
}

// Bytes returns everything encoded so far.
func (e *Encoder) Bytes() []byte { return e.buf }

func putUvarint(buf []byte, x uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], x)
	return append(buf, tmp[:n]...)
}

func zigzag(i int64) uint64 {
	return uint64(i<<1) ^ uint64(i>>63)
}

func unzigzag(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

func (e *Encoder) write(v Value) {
	switch v.typ {
	case Undefined, Null:
		e.buf = append(e.buf, tagNull)
	case Bool:
		if v.b {
			e.buf = append(e.buf, tagTrue)
		} else {
			e.buf = append(e.buf, tagFalse)
		}
	case Number:
		if v.isI {
			e.buf = append(e.buf, tagInt)
			e.buf = putUvarint(e.buf, zigzag(v.i))
		} else {
			e.buf = append(e.buf, tagFloat)
			var tmp [8]byte
			binary.BigEndian.PutUint64(tmp[:], math.Float64bits(v.n))
			e.buf = append(e.buf, tmp[:]...)
		}
	case String:
		e.buf = append(e.buf, tagString)
		e.buf = putUvarint(e.buf, uint64(len(v.s)))
		e.buf = append(e.buf, v.s...)
	case Data:
		e.buf = append(e.buf, tagData)
		e.buf = putUvarint(e.buf, uint64(len(v.d)))
		e.buf = append(e.buf, v.d...)
	case Array:
		e.buf = append(e.buf, tagArray)
		e.buf = putUvarint(e.buf, uint64(len(v.arr)))
		for _, item := range v.arr {
			e.write(item)
		}
	case DictType:
		e.buf = append(e.buf, tagDict)
		e.buf = putUvarint(e.buf, uint64(v.dct.Len()))
		v.dct.Iterate(func(key string, val Value) bool {
			if e.sk != nil {
				id := e.sk.Intern(key)
				e.buf = append(e.buf, dictKeyShared)
				e.buf = putUvarint(e.buf, uint64(id))
			} else {
				e.buf = append(e.buf, dictKeyLiteral)
				e.buf = putUvarint(e.buf, uint64(len(key)))
				e.buf = append(e.buf, key...)
			}
			e.write(val)
			return true
		})
	default:
		panic(fmt.Sprintf("fleece: unencodable type %v", v.typ))
	}
}

// EncodeValue is a convenience one-shot encode.
func EncodeValue(v Value, sk *SharedKeys) []byte {
	return NewEncoder(sk).Encode(v)
}
