// Package protocol implements the server's binary request/response wire
// format: a length-prefixed frame around either a flat list of byte
// strings (a request) or a single tagged value (a response).
//
// All multi-byte integers are little-endian, fixed-width — never varints.
package protocol

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ringcache/ringcache/pkg/ringbuf"
)

// MaxArgs bounds the number of strings a single request may carry. A
// request claiming more is rejected before any string is read, matching
// the reference implementation's guard against a hostile nstr value
// driving unbounded allocation.
const MaxArgs = 200 * 1000

// MaxMessageSize bounds the total size of a single response frame,
// including its own length prefix. A response that would exceed this is
// discarded and replaced with an ErrTooBig error response instead.
const MaxMessageSize = 32 << 20

// Tag identifies the type of a response's payload.
type Tag uint8

const (
	TagNil Tag = 0
	TagErr Tag = 1
	TagStr Tag = 2
	TagInt Tag = 3
	TagDbl Tag = 4
	TagArr Tag = 5
)

// Error codes carried in the payload of a TagErr response.
const (
	ErrUnknown = 1
	ErrTooBig  = 2
	ErrBadType = 3
	ErrBadArg  = 4
)

// headerSize is the width of the u32 total-length prefix on every frame.
const headerSize = 4

// ParseRequest attempts to decode one complete request frame from the
// front of in, without consuming anything from in. It returns the decoded
// argument list, the number of bytes that make up the frame (header
// included, for the caller to Consume), and ok=false if in does not yet
// hold a complete frame.
//
// A malformed frame (truncated string lengths, nstr over MaxArgs, or
// trailing bytes inside a frame that DecodeCommand's cursor does not reach)
// is reported via err; the caller should treat it as connection-fatal.
func ParseRequest(in *ringbuf.Buffer) (args [][]byte, frameLen int, ok bool, err error) {
	if in.Size() < headerSize {
		return nil, 0, false, nil
	}
	total := int(in.PeekU32(0))
	if headerSize+total > MaxMessageSize {
		return nil, 0, false, fmt.Errorf("protocol: request frame of %d bytes exceeds max message size", headerSize+total)
	}
	if in.Size() < headerSize+total {
		return nil, 0, false, nil
	}

	body := make([]byte, total)
	in.Peek(body, headerSize)

	args, err = DecodeCommand(body)
	if err != nil {
		return nil, 0, false, err
	}
	return args, headerSize + total, true, nil
}

// DecodeCommand decodes a command record in the "nstr | (len|bytes)^nstr"
// framing shared by a request's body and an AOF log record (which carries
// no outer total-length prefix of its own).
func DecodeCommand(body []byte) ([][]byte, error) {
	if len(body) < 4 {
		return nil, fmt.Errorf("protocol: request body too short for nstr")
	}
	nstr := binary.LittleEndian.Uint32(body[:4])
	if nstr > MaxArgs {
		return nil, fmt.Errorf("protocol: request declares %d args, exceeds max %d", nstr, MaxArgs)
	}
	off := 4
	args := make([][]byte, 0, nstr)
	for i := uint32(0); i < nstr; i++ {
		if off+4 > len(body) {
			return nil, fmt.Errorf("protocol: truncated arg length at index %d", i)
		}
		l := binary.LittleEndian.Uint32(body[off : off+4])
		off += 4
		if off+int(l) > len(body) {
			return nil, fmt.Errorf("protocol: truncated arg data at index %d", i)
		}
		args = append(args, body[off:off+int(l)])
		off += int(l)
	}
	if off != len(body) {
		return nil, fmt.Errorf("protocol: %d trailing bytes after %d args", len(body)-off, nstr)
	}
	return args, nil
}

// EncodeCommand serializes args into the "nstr | (len|bytes)^nstr" framing
// with no outer total-length prefix — an AOF log record.
func EncodeCommand(args [][]byte) []byte {
	var out []byte
	out = appendU32(out, uint32(len(args)))
	for _, a := range args {
		out = appendU32(out, uint32(len(a)))
		out = append(out, a...)
	}
	return out
}

// EncodeRequest serializes args into a complete request frame, primarily
// for tests and for any future client-facing tooling.
func EncodeRequest(args [][]byte) []byte {
	scratch := EncodeCommand(args)
	out := make([]byte, 0, headerSize+len(scratch))
	out = appendU32(out, uint32(len(scratch)))
	out = append(out, scratch...)
	return out
}

// ResponseWriter accumulates one response's payload in a scratch buffer
// and prepends its length header only on Flush, rather than reserving and
// later patching a header in place. This keeps WriteNil/WriteErr/etc. free
// of any backpatch bookkeeping.
type ResponseWriter struct {
	scratch []byte
}

// WriteNil sets the response to a bare TagNil value.
func (w *ResponseWriter) WriteNil() {
	w.scratch = []byte{byte(TagNil)}
}

// WriteErr sets the response to an error with the given code and message.
func (w *ResponseWriter) WriteErr(code int32, msg string) {
	w.scratch = append(w.scratch[:0], byte(TagErr))
	w.scratch = appendI32(w.scratch, code)
	w.scratch = appendU32(w.scratch, uint32(len(msg)))
	w.scratch = append(w.scratch, msg...)
}

// WriteStr sets the response to a single byte-string value.
func (w *ResponseWriter) WriteStr(s []byte) {
	w.scratch = append(w.scratch[:0], byte(TagStr))
	w.scratch = appendU32(w.scratch, uint32(len(s)))
	w.scratch = append(w.scratch, s...)
}

// WriteInt sets the response to a single int64 value.
func (w *ResponseWriter) WriteInt(v int64) {
	w.scratch = append(w.scratch[:0], byte(TagInt))
	w.scratch = appendI64(w.scratch, v)
}

// WriteDbl sets the response to a single float64 value.
func (w *ResponseWriter) WriteDbl(v float64) {
	w.scratch = append(w.scratch[:0], byte(TagDbl))
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
	w.scratch = append(w.scratch, buf[:]...)
}

// BeginArr starts an array response of n elements; the caller then adds
// exactly n elements with AppendStr or AppendDbl, in order.
func (w *ResponseWriter) BeginArr(n int) {
	w.scratch = append(w.scratch[:0], byte(TagArr))
	w.scratch = appendU32(w.scratch, uint32(n))
}

// AppendStr appends a string element to an in-progress array response.
func (w *ResponseWriter) AppendStr(s []byte) {
	w.scratch = append(w.scratch, byte(TagStr))
	w.scratch = appendU32(w.scratch, uint32(len(s)))
	w.scratch = append(w.scratch, s...)
}

// AppendDbl appends a double element to an in-progress array response.
func (w *ResponseWriter) AppendDbl(v float64) {
	w.scratch = append(w.scratch, byte(TagDbl))
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
	w.scratch = append(w.scratch, buf[:]...)
}

// Flush appends the accumulated response, framed with its u32 total-length
// header, to out. If the framed response would exceed MaxMessageSize, the
// accumulated payload is discarded and replaced with an ErrTooBig error
// response instead, so a caller never writes an oversized frame.
func (w *ResponseWriter) Flush(out *ringbuf.Buffer) {
	if headerSize+len(w.scratch) > MaxMessageSize {
		w.WriteErr(ErrTooBig, "response exceeds max message size")
	}
	out.AppendU32(uint32(len(w.scratch)))
	out.Append(w.scratch)
}

func appendU32(b []byte, v uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return append(b, buf[:]...)
}

func appendI32(b []byte, v int32) []byte {
	return appendU32(b, uint32(v))
}

func appendI64(b []byte, v int64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	return append(b, buf[:]...)
}
