package protocol

import (
	"bytes"
	"testing"

	"github.com/ringcache/ringcache/pkg/ringbuf"
)

func TestParseRequestRoundTrip(t *testing.T) {
	frame := EncodeRequest([][]byte{[]byte("set"), []byte("foo"), []byte("bar")})
	buf := ringbuf.New(16)
	buf.Append(frame)

	args, n, ok, err := ParseRequest(buf)
	if err != nil {
		t.Fatalf("ParseRequest error: %v", err)
	}
	if !ok {
		t.Fatalf("ParseRequest reported incomplete frame")
	}
	if n != len(frame) {
		t.Fatalf("frameLen = %d, want %d", n, len(frame))
	}
	want := [][]byte{[]byte("set"), []byte("foo"), []byte("bar")}
	if len(args) != len(want) {
		t.Fatalf("got %d args, want %d", len(args), len(want))
	}
	for i := range want {
		if !bytes.Equal(args[i], want[i]) {
			t.Fatalf("arg %d = %q, want %q", i, args[i], want[i])
		}
	}
}

func TestParseRequestIncompleteFrame(t *testing.T) {
	frame := EncodeRequest([][]byte{[]byte("get"), []byte("k")})
	buf := ringbuf.New(16)
	buf.Append(frame[:len(frame)-1])

	_, _, ok, err := ParseRequest(buf)
	if err != nil {
		t.Fatalf("unexpected error on partial frame: %v", err)
	}
	if ok {
		t.Fatalf("ParseRequest reported a complete frame from a truncated buffer")
	}
}

func TestParseRequestRejectsExcessiveNstr(t *testing.T) {
	buf := ringbuf.New(16)
	var body []byte
	body = appendU32(body, MaxArgs+1)
	frame := appendU32(nil, uint32(len(body)))
	frame = append(frame, body...)
	buf.Append(frame)

	_, _, _, err := ParseRequest(buf)
	if err == nil {
		t.Fatalf("expected error for nstr exceeding MaxArgs")
	}
}

func TestResponseWriterStrRoundTrip(t *testing.T) {
	var w ResponseWriter
	w.WriteStr([]byte("hello"))
	out := ringbuf.New(16)
	w.Flush(out)

	frame := make([]byte, out.Size())
	out.CopyData(frame)

	v, n, err := DecodeResponse(frame)
	if err != nil {
		t.Fatalf("DecodeResponse error: %v", err)
	}
	if n != len(frame) {
		t.Fatalf("decoded %d bytes, want %d", n, len(frame))
	}
	if v.Tag != TagStr || string(v.Str) != "hello" {
		t.Fatalf("decoded value = %+v, want TagStr hello", v)
	}
}

func TestResponseWriterErrRoundTrip(t *testing.T) {
	var w ResponseWriter
	w.WriteErr(ErrBadArg, "bad argument")
	out := ringbuf.New(16)
	w.Flush(out)

	frame := make([]byte, out.Size())
	out.CopyData(frame)

	v, _, err := DecodeResponse(frame)
	if err != nil {
		t.Fatalf("DecodeResponse error: %v", err)
	}
	if v.Tag != TagErr || v.Code != ErrBadArg || v.Msg != "bad argument" {
		t.Fatalf("decoded value = %+v", v)
	}
}

func TestResponseWriterArrRoundTrip(t *testing.T) {
	var w ResponseWriter
	w.BeginArr(2)
	w.AppendStr([]byte("member"))
	w.AppendDbl(3.5)
	out := ringbuf.New(16)
	w.Flush(out)

	frame := make([]byte, out.Size())
	out.CopyData(frame)

	v, _, err := DecodeResponse(frame)
	if err != nil {
		t.Fatalf("DecodeResponse error: %v", err)
	}
	if v.Tag != TagArr || len(v.Arr) != 2 {
		t.Fatalf("decoded value = %+v", v)
	}
	if string(v.Arr[0].Str) != "member" {
		t.Fatalf("elem 0 = %+v", v.Arr[0])
	}
	if v.Arr[1].Dbl != 3.5 {
		t.Fatalf("elem 1 = %+v", v.Arr[1])
	}
}

func TestResponseWriterOversizedFlushBecomesErrTooBig(t *testing.T) {
	var w ResponseWriter
	w.WriteStr(make([]byte, MaxMessageSize))
	out := ringbuf.New(16)
	w.Flush(out)

	frame := make([]byte, out.Size())
	out.CopyData(frame)

	v, _, err := DecodeResponse(frame)
	if err != nil {
		t.Fatalf("DecodeResponse error: %v", err)
	}
	if v.Tag != TagErr || v.Code != ErrTooBig {
		t.Fatalf("decoded value = %+v, want ErrTooBig", v)
	}
}
