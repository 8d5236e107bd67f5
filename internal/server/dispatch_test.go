package server

import (
	"fmt"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/ringcache/ringcache/pkg/aof"
	"github.com/ringcache/ringcache/pkg/config"
	"github.com/ringcache/ringcache/pkg/protocol"
	"github.com/ringcache/ringcache/pkg/ringbuf"
	"github.com/ringcache/ringcache/pkg/store"
	"github.com/ringcache/ringcache/pkg/workerpool"
)

// newTestServer builds a Server with an AOF log rooted in a temp dir, short-
// circuiting Listen/Run since dispatch needs neither a socket nor the poll
// loop to exercise the command table.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.AOFPath = filepath.Join(t.TempDir(), "test.aof")

	log, err := aof.Open(cfg.AOFPath)
	if err != nil {
		t.Fatalf("aof.Open: %v", err)
	}
	workers := workerpool.New(cfg.TeardownWorkers)
	return &Server{
		cfg:     cfg,
		log:     zap.NewNop().Sugar(),
		conns:   make(map[int]*conn),
		store:   store.NewWithThreshold(workers, cfg.LargeZSetThreshold),
		workers: workers,
		aofLog:  log,
	}
}

func call(s *Server, args ...string) protocol.Value {
	raw := make([][]byte, len(args))
	for i, a := range args {
		raw[i] = []byte(a)
	}
	var w protocol.ResponseWriter
	s.dispatch(raw, &w, true)

	out := ringbuf.New(256)
	w.Flush(out)
	frame := make([]byte, out.Size())
	out.CopyData(frame)
	v, _, err := protocol.DecodeResponse(frame)
	if err != nil {
		panic(err)
	}
	return v
}

func TestDispatchSetGetDel(t *testing.T) {
	s := newTestServer(t)
	defer s.aofLog.Close()

	if v := call(s, "set", "k", "v"); v.Tag != protocol.TagNil {
		t.Fatalf("set: got tag %v", v.Tag)
	}
	v := call(s, "get", "k")
	if v.Tag != protocol.TagStr || string(v.Str) != "v" {
		t.Fatalf("get: got %+v", v)
	}
	if v := call(s, "get", "missing"); v.Tag != protocol.TagNil {
		t.Fatalf("get missing: got tag %v", v.Tag)
	}
	if v := call(s, "del", "k"); v.Tag != protocol.TagInt || v.Int != 1 {
		t.Fatalf("del: got %+v", v)
	}
	if v := call(s, "del", "k"); v.Tag != protocol.TagInt || v.Int != 0 {
		t.Fatalf("del again: got %+v", v)
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	s := newTestServer(t)
	defer s.aofLog.Close()

	v := call(s, "frobnicate", "x")
	if v.Tag != protocol.TagErr || v.Code != protocol.ErrUnknown {
		t.Fatalf("got %+v", v)
	}
}

func TestDispatchWrongArity(t *testing.T) {
	s := newTestServer(t)
	defer s.aofLog.Close()

	v := call(s, "set", "onlyonearg")
	if v.Tag != protocol.TagErr || v.Code != protocol.ErrBadArg {
		t.Fatalf("got %+v", v)
	}
}

func TestDispatchExpireAndTTL(t *testing.T) {
	s := newTestServer(t)
	defer s.aofLog.Close()

	call(s, "set", "k", "v")
	if v := call(s, "pexpire", "k", "60000"); v.Tag != protocol.TagInt || v.Int != 1 {
		t.Fatalf("pexpire: got %+v", v)
	}
	v := call(s, "pttl", "k")
	if v.Tag != protocol.TagInt || v.Int <= 0 {
		t.Fatalf("pttl: got %+v", v)
	}
	if v := call(s, "pttl", "missing"); v.Int != -2 {
		t.Fatalf("pttl missing: got %+v", v)
	}
}

func TestDispatchKeys(t *testing.T) {
	s := newTestServer(t)
	defer s.aofLog.Close()

	call(s, "set", "a", "1")
	call(s, "set", "b", "2")
	v := call(s, "keys")
	if v.Tag != protocol.TagArr || len(v.Arr) != 2 {
		t.Fatalf("keys: got %+v", v)
	}
}

func TestDispatchZSetLifecycle(t *testing.T) {
	s := newTestServer(t)
	defer s.aofLog.Close()

	if v := call(s, "zadd", "z", "1.5", "alice"); v.Tag != protocol.TagInt || v.Int != 1 {
		t.Fatalf("zadd: got %+v", v)
	}
	call(s, "zadd", "z", "2.5", "bob")

	v := call(s, "zscore", "z", "alice")
	if v.Tag != protocol.TagDbl || v.Dbl != 1.5 {
		t.Fatalf("zscore: got %+v", v)
	}

	v = call(s, "zquery", "z", "0", "", "0", "10")
	if v.Tag != protocol.TagArr || len(v.Arr) != 4 {
		t.Fatalf("zquery: got %+v", v)
	}
	if string(v.Arr[0].Str) != "alice" || string(v.Arr[2].Str) != "bob" {
		t.Fatalf("zquery order: got %+v", v)
	}

	if v := call(s, "zrem", "z", "alice"); v.Tag != protocol.TagInt || v.Int != 1 {
		t.Fatalf("zrem: got %+v", v)
	}
	if v := call(s, "zscore", "z", "alice"); v.Tag != protocol.TagNil {
		t.Fatalf("zscore after zrem: got %+v", v)
	}
}

func TestDispatchWrongTypeError(t *testing.T) {
	s := newTestServer(t)
	defer s.aofLog.Close()

	call(s, "set", "k", "v")
	v := call(s, "zadd", "k", "1", "m")
	if v.Tag != protocol.TagErr || v.Code != protocol.ErrBadType {
		t.Fatalf("got %+v", v)
	}
}

func TestDispatchPersistsToAOFAndReplays(t *testing.T) {
	s := newTestServer(t)
	call(s, "set", "k", "v")
	call(s, "zadd", "z", "9", "m")
	call(s, "del", "k")
	path := s.cfg.AOFPath
	s.aofLog.Close()

	replayed := newTestServer(t)
	defer replayed.aofLog.Close()
	if err := aof.Replay(path, func(args [][]byte) {
		var w discardWriter
		replayed.dispatch(args, &w, false)
	}); err != nil {
		t.Fatalf("Replay: %v", err)
	}

	if v := call(replayed, "get", "k"); v.Tag != protocol.TagNil {
		t.Fatalf("get k after replay: got %+v", v)
	}
	if v := call(replayed, "zscore", "z", "m"); v.Tag != protocol.TagDbl || v.Dbl != 9 {
		t.Fatalf("zscore z after replay: got %+v", v)
	}
}

func TestDispatchZAddRejectsNaNScore(t *testing.T) {
	s := newTestServer(t)
	defer s.aofLog.Close()

	v := call(s, "zadd", "z", "nan", "m")
	if v.Tag != protocol.TagErr || v.Code != protocol.ErrBadArg {
		t.Fatalf("zadd nan: got %+v, want ErrBadArg", v)
	}
	if v := call(s, "zscore", "z", "m"); v.Tag != protocol.TagNil {
		t.Fatalf("zscore after rejected zadd: got %+v, want nil (member never inserted)", v)
	}
}

func TestDispatchZQueryRejectsNaNScore(t *testing.T) {
	s := newTestServer(t)
	defer s.aofLog.Close()

	call(s, "zadd", "z", "1", "m")
	v := call(s, "zquery", "z", "nan", "", "0", "10")
	if v.Tag != protocol.TagErr || v.Code != protocol.ErrBadArg {
		t.Fatalf("zquery nan: got %+v, want ErrBadArg", v)
	}
}

// TestBgRewriteAOFSnapshotDoesNotRaceStoreMutations is a regression test
// for a fixed concurrency bug: bgrewriteaof used to hand the background
// rewrite goroutine a callback that ranged over the live store directly,
// racing unsynchronized against every mutating command the event loop
// kept dispatching during the scan (a concurrent map read/write, which
// crashes the process under Go's runtime). snapshotForRewrite now builds
// the command bytes synchronously before the rewrite goroutine starts, so
// that goroutine never touches the store at all — this test mutates the
// store from another goroutine for the whole duration of a real
// BeginRewrite call to demonstrate there is nothing left to race with.
func TestBgRewriteAOFSnapshotDoesNotRaceStoreMutations(t *testing.T) {
	s := newTestServer(t)
	defer s.aofLog.Close()

	for i := 0; i < 50; i++ {
		call(s, "set", fmt.Sprintf("k%d", i), "v")
	}

	data := s.snapshotForRewrite()

	hammerDone := make(chan struct{})
	go func() {
		defer close(hammerDone)
		for i := 0; i < 500; i++ {
			call(s, "set", "hammer", "v")
		}
	}()

	rewriteDone := make(chan error, 1)
	if err := s.aofLog.BeginRewrite(data, func(err error) { rewriteDone <- err }); err != nil {
		t.Fatalf("BeginRewrite: %v", err)
	}

	if err := <-rewriteDone; err != nil {
		t.Fatalf("rewrite failed: %v", err)
	}
	<-hammerDone
}
