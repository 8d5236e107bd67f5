package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Value is a decoded response payload, used by tests and any future
// client-facing tooling to inspect what a ResponseWriter produced.
type Value struct {
	Tag  Tag
	Str  []byte
	Int  int64
	Dbl  float64
	Code int32
	Msg  string
	Arr  []Value
}

// DecodeResponse parses a single framed response (header included) from
// frame, returning the decoded value and the frame's total byte length.
func DecodeResponse(frame []byte) (Value, int, error) {
	if len(frame) < headerSize {
		return Value{}, 0, fmt.Errorf("protocol: short response frame")
	}
	total := int(binary.LittleEndian.Uint32(frame[:headerSize]))
	if len(frame) < headerSize+total {
		return Value{}, 0, fmt.Errorf("protocol: response frame truncated")
	}
	v, _, err := decodeValue(frame[headerSize : headerSize+total])
	return v, headerSize + total, err
}

func decodeValue(b []byte) (Value, int, error) {
	if len(b) < 1 {
		return Value{}, 0, fmt.Errorf("protocol: empty value")
	}
	tag := Tag(b[0])
	off := 1
	switch tag {
	case TagNil:
		return Value{Tag: tag}, off, nil
	case TagErr:
		if off+4 > len(b) {
			return Value{}, 0, fmt.Errorf("protocol: truncated error code")
		}
		code := int32(binary.LittleEndian.Uint32(b[off : off+4]))
		off += 4
		s, n, err := decodeLenPrefixedString(b[off:])
		if err != nil {
			return Value{}, 0, err
		}
		off += n
		return Value{Tag: tag, Code: code, Msg: s}, off, nil
	case TagStr:
		s, n, err := decodeLenPrefixedBytes(b[off:])
		if err != nil {
			return Value{}, 0, err
		}
		off += n
		return Value{Tag: tag, Str: s}, off, nil
	case TagInt:
		if off+8 > len(b) {
			return Value{}, 0, fmt.Errorf("protocol: truncated int value")
		}
		v := int64(binary.LittleEndian.Uint64(b[off : off+8]))
		off += 8
		return Value{Tag: tag, Int: v}, off, nil
	case TagDbl:
		if off+8 > len(b) {
			return Value{}, 0, fmt.Errorf("protocol: truncated double value")
		}
		v := math.Float64frombits(binary.LittleEndian.Uint64(b[off : off+8]))
		off += 8
		return Value{Tag: tag, Dbl: v}, off, nil
	case TagArr:
		if off+4 > len(b) {
			return Value{}, 0, fmt.Errorf("protocol: truncated array count")
		}
		n := binary.LittleEndian.Uint32(b[off : off+4])
		off += 4
		arr := make([]Value, 0, n)
		for i := uint32(0); i < n; i++ {
			elem, used, err := decodeValue(b[off:])
			if err != nil {
				return Value{}, 0, err
			}
			arr = append(arr, elem)
			off += used
		}
		return Value{Tag: tag, Arr: arr}, off, nil
	default:
		return Value{}, 0, fmt.Errorf("protocol: unknown tag %d", tag)
	}
}

func decodeLenPrefixedBytes(b []byte) ([]byte, int, error) {
	if len(b) < 4 {
		return nil, 0, fmt.Errorf("protocol: truncated length prefix")
	}
	l := binary.LittleEndian.Uint32(b[:4])
	if 4+int(l) > len(b) {
		return nil, 0, fmt.Errorf("protocol: truncated string data")
	}
	return b[4 : 4+l], 4 + int(l), nil
}

func decodeLenPrefixedString(b []byte) (string, int, error) {
	bs, n, err := decodeLenPrefixedBytes(b)
	return string(bs), n, err
}
