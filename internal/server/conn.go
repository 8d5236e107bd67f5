package server

import (
	"container/list"

	"github.com/ringcache/ringcache/pkg/ringbuf"
)

// conn holds one client connection's I/O state. It is owned exclusively
// by the event loop goroutine.
type conn struct {
	fd         int
	wantRead   bool
	wantWrite  bool
	wantClose  bool
	incoming   *ringbuf.Buffer
	outgoing   *ringbuf.Buffer
	lastActive int64
	idleElem   *list.Element // this conn's node in the server's idle list
}

func newConn(fd int) *conn {
	return &conn{
		fd:       fd,
		wantRead: true,
		incoming: ringbuf.New(4096),
		outgoing: ringbuf.New(4096),
	}
}
