package fleece

import (
	"encoding/binary"
	"fmt"
	"math"
)

// parser walks trusted, previously-encoded bytes. Spec §1 assumes the
// binary encoding is only ever parsed from trusted input (no defensive
// bounds-fuzzing contract), matching the real Fleece parser's contract.
type parser struct {
	sk   *SharedKeys
	data []byte
	pos  int
}

// Parse decodes a single Value from data, previously produced by Encoder.
// sk must be the same table used to encode (or nil if none was used).
func Parse(data []byte, sk *SharedKeys) (Value, error) {
	p := &parser{sk: sk, data: data}
	v, err := p.readValue()
	if err != nil {
		return Value{}, err
	}
	return v, nil
}

func (p *parser) readByte() (byte, error) {
	if p.pos >= len(p.data) {
		return 0, fmt.Errorf("fleece: truncated input")
	}
	b := p.data[p.pos]
	p.pos++
	return b, nil
}

func (p *parser) readUvarint() (uint64, error) {
	x, n := binary.Uvarint(p.data[p.pos:])
	if n <= 0 {
		return 0, fmt.Errorf("fleece: bad varint")
	}
	p.pos += n
	return x, nil
}

func (p *parser) readN(n int) ([]byte, error) {
	if p.pos+n > len(p.data) {
		return nil, fmt.Errorf("fleece: truncated input")
	}
	b := p.data[p.pos : p.pos+n]
	p.pos += n
	return b, nil
}

func (p *parser) readValue() (Value, error) {
	tag, err := p.readByte()
	if err != nil {
		return Value{}, err
	}
	switch tag {
	case tagNull:
		return NullValue, nil
	case tagFalse:
		return BoolValue(false), nil
	case tagTrue:
		return BoolValue(true), nil
	case tagInt:
		u, err := p.readUvarint()
		if err != nil {
			return Value{}, err
		}
		return IntValue(unzigzag(u)), nil
	case tagFloat:
		b, err := p.readN(8)
		if err != nil {
			return Value{}, err
		}
		return FloatValue(math.Float64frombits(binary.BigEndian.Uint64(b))), nil
	case tagString:
		n, err := p.readUvarint()
		if err != nil {
			return Value{}, err
		}
		b, err := p.readN(int(n))
		if err != nil {
			return Value{}, err
		}
		return StringValue(string(b)), nil
	case tagData:
		n, err := p.readUvarint()
		if err != nil {
			return Value{}, err
		}
		b, err := p.readN(int(n))
		if err != nil {
			return Value{}, err
		}
		cp := make([]byte, len(b))
		copy(cp, b)
		return DataValue(cp), nil
	case tagArray:
		n, err := p.readUvarint()
		if err != nil {
			return Value{}, err
		}
		items := make([]Value, n)
		for i := range items {
			v, err := p.readValue()
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return ArrayValue(items), nil
	case tagDict:
		n, err := p.readUvarint()
		if err != nil {
			return Value{}, err
		}
		keys := make([]string, n)
		values := make([]Value, n)
		for i := range keys {
			kind, err := p.readByte()
			if err != nil {
				return Value{}, err
			}
			switch kind {
			case dictKeyLiteral:
				klen, err := p.readUvarint()
				if err != nil {
					return Value{}, err
				}
				kb, err := p.readN(int(klen))
				if err != nil {
					return Value{}, err
				}
				keys[i] = string(kb)
			case dictKeyShared:
				id, err := p.readUvarint()
				if err != nil {
					return Value{}, err
				}
				if p.sk == nil {
					return Value{}, fmt.Errorf("fleece: shared key without a SharedKeys table")
				}
				key, ok := p.sk.Decode(int(id))
				if !ok {
					return Value{}, fmt.Errorf("fleece: unknown shared key id %d", id)
				}
				keys[i] = key
			default:
				return Value{}, fmt.Errorf("fleece: bad dict key tag %d", kind)
			}
			v, err := p.readValue()
			if err != nil {
				return Value{}, err
			}
			values[i] = v
		}
		return DictValue(NewDict(keys, values)), nil
	default:
		return Value{}, fmt.Errorf("fleece: unknown tag %d", tag)
	}
}
