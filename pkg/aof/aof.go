// Package aof implements the append-only persistence log: an in-memory
// write buffer that batches command records, a throttled fsync, startup
// replay, and an in-place rewrite (compaction) that replaces the log with
// the minimal set of commands needed to reconstruct the current dataset.
package aof

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/ringcache/ringcache/pkg/protocol"
	"github.com/ringcache/ringcache/pkg/ringbuf"
)

// fsyncIntervalMs is the minimum gap between fsync calls; writes land in
// the OS page cache immediately but are only forced to disk at most this
// often, trading a small durability window for far fewer fsync syscalls
// under sustained write load.
const fsyncIntervalMs = 1000

// Log is an append-only command log backed by a single file, opened for
// append-only writes, plus an in-memory staging buffer.
//
// A Log's command buffering and flush path (WriteCommand, FlushAndSync) is
// driven exclusively by the event loop goroutine. The one exception is a
// background rewrite (BeginRewrite), which swaps in a fresh file and
// buffer once it finishes; rw's mutex guards exactly that handoff plus the
// overflow buffer rewrites drain from.
type Log struct {
	path       string
	file       *os.File
	buf        *ringbuf.Buffer
	lastSaveMs int64
	rw         rewriteState
}

// Open opens (creating if necessary) the log file at path for appending,
// without replaying it. Use Replay to load prior records.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("aof: open %s: %w", path, err)
	}
	return &Log{path: path, file: f, buf: ringbuf.New(4096)}, nil
}

// Close closes the underlying file.
func (l *Log) Close() error {
	return l.file.Close()
}

// WriteCommand appends one command record to the in-memory staging
// buffer, in the same "nstr | (len|bytes)^nstr" framing used for a
// request's body. It does not touch the file; call FlushAndSync to
// persist staged records.
func (l *Log) WriteCommand(args [][]byte) {
	if len(args) == 0 {
		return
	}
	encoded := protocol.EncodeCommand(args)

	l.rw.mu.Lock()
	defer l.rw.mu.Unlock()
	if l.rw.rewriting {
		l.rw.overflow.Append(encoded)
		return
	}
	l.buf.Append(encoded)
}

// FlushAndSync attempts a single non-blocking write of the staged buffer's
// leading contiguous span, consuming only the bytes the write actually
// accepted, then fsyncs the file if more than fsyncIntervalMs has passed
// since the last fsync. A write or fsync failure is returned to the
// caller, which per the server's error-handling tiers logs and continues
// rather than treating it as fatal.
func (l *Log) FlushAndSync(nowMs int64) error {
	l.rw.mu.Lock()
	defer l.rw.mu.Unlock()
	if l.buf.Empty() {
		return nil
	}
	span := l.buf.ContiguousSpan(0)
	n, err := l.file.Write(span)
	if n > 0 {
		l.buf.Consume(n)
	}
	if err != nil {
		return fmt.Errorf("aof: write: %w", err)
	}
	if nowMs-l.lastSaveMs > fsyncIntervalMs {
		if err := l.file.Sync(); err != nil {
			return fmt.Errorf("aof: fsync: %w", err)
		}
		l.lastSaveMs = nowMs
	}
	return nil
}

// Replay reads every command record from the log file at path in order,
// calling apply for each. A file that does not exist is treated as an
// empty log, not an error. A record whose declared argument count exceeds
// protocol.MaxArgs is treated as corruption and stops the replay, leaving
// the store in whatever partial state the records applied so far left it
// in — matching the reference implementation's tolerance for a
// truncated trailing record (clean EOF between records) while still
// refusing to trust a record that looks actively malformed.
func Replay(path string, apply func(args [][]byte)) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("aof: open %s for replay: %w", path, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		nstr, err := readU32(r)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return nil // truncated trailing record: stop, don't error
		}
		if nstr > protocol.MaxArgs {
			return fmt.Errorf("aof: record declares %d args, exceeds max %d; log is corrupted", nstr, protocol.MaxArgs)
		}
		args := make([][]byte, 0, nstr)
		truncated := false
		for i := uint32(0); i < nstr; i++ {
			l, err := readU32(r)
			if err != nil {
				truncated = true
				break
			}
			buf := make([]byte, l)
			if _, err := io.ReadFull(r, buf); err != nil {
				truncated = true
				break
			}
			args = append(args, buf)
		}
		if truncated {
			return nil
		}
		apply(args)
	}
}

func readU32(r *bufio.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}
