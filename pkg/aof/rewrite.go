package aof

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"github.com/ringcache/ringcache/pkg/ringbuf"
)

// rewriteState is the subset of Log's fields touched by both the event
// loop goroutine (via WriteCommand) and the background rewrite goroutine
// it starts; it is the one place in the server that needs a lock, per the
// sidecar-overflow-buffer design used to keep the rewrite off the main
// goroutine.
type rewriteState struct {
	mu        sync.Mutex
	rewriting bool
	overflow  *ringbuf.Buffer
}

// testDelayHook, when set, runs at the start of doRewrite before anything
// else. It exists only so aof_test.go can hold a rewrite open long enough
// to deterministically exercise BeginRewrite's concurrent-rewrite
// rejection.
var testDelayHook func()

// BeginRewrite starts a background rewrite of the log: data is the
// already-serialized minimal command set needed to reconstruct the
// current dataset, in the same record framing WriteCommand uses. The
// caller must build data synchronously, on whatever goroutine owns the
// data it was built from (for the server, the event loop goroutine
// ranging over the store) — doRewrite itself never touches anything but
// these bytes, so the data source needs no lock for a rewrite to run
// safely in the background. data is written to a temp file, fsynced, and
// atomically renamed over the live log. Commands written via WriteCommand
// while the rewrite is in flight are captured in a sidecar buffer and
// appended to the temp file before the rename, so no mutation accepted
// during the rewrite is lost.
//
// BeginRewrite returns an error immediately if a rewrite is already in
// progress; it does not block waiting for the new rewrite to finish. onDone,
// if non-nil, is called with the rewrite's result from the background
// goroutine once it completes.
func (l *Log) BeginRewrite(data []byte, onDone func(error)) error {
	l.rw.mu.Lock()
	if l.rw.rewriting {
		l.rw.mu.Unlock()
		return fmt.Errorf("aof: rewrite already in progress")
	}
	l.rw.rewriting = true
	l.rw.overflow = ringbuf.New(4096)
	l.rw.mu.Unlock()

	go func() {
		err := l.doRewrite(data)
		if onDone != nil {
			onDone(err)
		}
	}()
	return nil
}

// doRewrite clears rw.rewriting and rw.overflow on every return path, all
// under a single final lock acquisition that also performs the overflow
// drain, the rename, and the file/buffer swap — so a command accepted
// after the drain but before rw.rewriting flips back to false can never
// land in neither the temp file nor the live buffer.
func (l *Log) doRewrite(data []byte) (rerr error) {
	if testDelayHook != nil {
		testDelayHook()
	}
	tempPath := l.path + ".temp"
	f, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		l.endRewrite()
		return fmt.Errorf("aof: open rewrite temp file: %w", err)
	}

	bw := bufio.NewWriter(f)
	if _, err := bw.Write(data); err != nil {
		f.Close()
		os.Remove(tempPath)
		l.endRewrite()
		return fmt.Errorf("aof: write rewrite temp file: %w", err)
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		os.Remove(tempPath)
		l.endRewrite()
		return fmt.Errorf("aof: flush rewrite temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempPath)
		l.endRewrite()
		return fmt.Errorf("aof: fsync rewrite temp file: %w", err)
	}

	l.rw.mu.Lock()
	defer func() {
		l.rw.rewriting = false
		l.rw.overflow = nil
		l.rw.mu.Unlock()
	}()

	overflowBytes := make([]byte, l.rw.overflow.Size())
	l.rw.overflow.CopyData(overflowBytes)

	if len(overflowBytes) > 0 {
		if _, err := f.Write(overflowBytes); err != nil {
			f.Close()
			os.Remove(tempPath)
			return fmt.Errorf("aof: write overflow to rewrite temp file: %w", err)
		}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("aof: fsync rewrite temp file after overflow: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("aof: close rewrite temp file: %w", err)
	}

	if err := os.Rename(tempPath, l.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("aof: rename rewrite temp file over log: %w", err)
	}

	newFile, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("aof: reopen log after rewrite: %w", err)
	}
	l.file.Close()
	l.file = newFile
	l.buf = ringbuf.New(4096)
	return nil
}

func (l *Log) endRewrite() {
	l.rw.mu.Lock()
	l.rw.rewriting = false
	l.rw.overflow = nil
	l.rw.mu.Unlock()
}

// Rewriting reports whether a background rewrite is currently in flight.
func (l *Log) Rewriting() bool {
	l.rw.mu.Lock()
	defer l.rw.mu.Unlock()
	return l.rw.rewriting
}
