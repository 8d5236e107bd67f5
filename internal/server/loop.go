package server

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/ringcache/ringcache/pkg/protocol"
)

const readChunkSize = 64 * 1024

// Run drives the event loop until an unrecoverable poll() error occurs.
// Listen must have been called first.
func (s *Server) Run() error {
	for {
		pollFds := s.buildPollSet()
		timeout := s.nextTimerMs()

		n, err := unix.Poll(pollFds, timeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("server: poll(): %w", err)
		}
		if n == 0 {
			s.processTimers()
			continue
		}

		if pollFds[0].Revents != 0 {
			s.handleAccept()
		}
		for i := 1; i < len(pollFds); i++ {
			revents := pollFds[i].Revents
			if revents == 0 {
				continue
			}
			c, ok := s.conns[int(pollFds[i].Fd)]
			if !ok {
				continue
			}
			s.touchIdle(c)

			if revents&unix.POLLIN != 0 {
				s.handleRead(c)
			}
			if revents&unix.POLLOUT != 0 {
				s.handleWrite(c)
			}
			if revents&unix.POLLERR != 0 || c.wantClose {
				s.destroyConn(c)
				delete(s.conns, c.fd)
			}
		}

		s.processTimers()
	}
}

func (s *Server) buildPollSet() []unix.PollFd {
	pollFds := make([]unix.PollFd, 0, len(s.conns)+1)
	pollFds = append(pollFds, unix.PollFd{Fd: int32(s.listenFD), Events: unix.POLLIN})
	for _, c := range s.conns {
		events := int16(unix.POLLERR)
		if c.wantRead {
			events |= unix.POLLIN
		}
		if c.wantWrite {
			events |= unix.POLLOUT
		}
		pollFds = append(pollFds, unix.PollFd{Fd: int32(c.fd), Events: events})
	}
	return pollFds
}

func (s *Server) handleAccept() {
	connFD, _, err := unix.Accept(s.listenFD)
	if err != nil {
		if err != unix.EAGAIN {
			s.log.Warnw("accept() failed", "error", err)
		}
		return
	}
	if err := unix.SetNonblock(connFD, true); err != nil {
		s.log.Warnw("failed to set new connection nonblocking", "error", err)
		unix.Close(connFD)
		return
	}

	c := newConn(connFD)
	c.lastActive = nowMs()
	c.idleElem = s.idleList.PushBack(c)
	s.conns[connFD] = c
	s.log.Debugw("accepted connection", "fd", connFD)
}

func (s *Server) touchIdle(c *conn) {
	c.lastActive = nowMs()
	s.idleList.MoveToBack(c.idleElem)
}

func (s *Server) destroyConn(c *conn) {
	unix.Close(c.fd)
	if c.idleElem != nil {
		s.idleList.Remove(c.idleElem)
	}
}

func (s *Server) handleRead(c *conn) {
	buf := make([]byte, readChunkSize)
	n, err := unix.Read(c.fd, buf)
	if err != nil {
		if err == unix.EAGAIN {
			return
		}
		s.log.Debugw("read() error", "fd", c.fd, "error", err)
		c.wantClose = true
		return
	}
	if n == 0 {
		if c.incoming.Empty() {
			s.log.Debugw("client closed", "fd", c.fd)
		} else {
			s.log.Debugw("unexpected EOF with pending input", "fd", c.fd)
		}
		c.wantClose = true
		return
	}
	c.incoming.Append(buf[:n])

	for s.tryOneRequest(c) {
	}

	if c.outgoing.Size() > 0 {
		c.wantRead = false
		c.wantWrite = true
		s.handleWrite(c)
		return
	}
}

// tryOneRequest parses and dispatches one complete request already
// buffered in c.incoming, looping from handleRead so that several
// pipelined requests arriving in a single read() are all answered before
// the connection is polled again.
func (s *Server) tryOneRequest(c *conn) bool {
	args, frameLen, ok, err := protocol.ParseRequest(c.incoming)
	if err != nil {
		s.log.Debugw("bad request", "fd", c.fd, "error", err)
		c.wantClose = true
		return false
	}
	if !ok {
		return false
	}

	var w protocol.ResponseWriter
	s.dispatch(args, &w, true)
	w.Flush(c.outgoing)

	c.incoming.Consume(frameLen)
	return true
}

func (s *Server) handleWrite(c *conn) {
	span := c.outgoing.ContiguousSpan(0)
	n, err := unix.Write(c.fd, span)
	if err != nil {
		if err == unix.EAGAIN {
			return
		}
		s.log.Debugw("write() error", "fd", c.fd, "error", err)
		c.wantClose = true
		return
	}
	c.outgoing.Consume(n)

	if c.outgoing.Size() == 0 {
		c.wantRead = true
		c.wantWrite = false
	}
}

func (s *Server) nextTimerMs() int {
	now := nowMs()
	var next int64 = -1

	if front := s.idleList.Front(); front != nil {
		next = front.Value.(*conn).lastActive + s.cfg.IdleTimeout.Milliseconds()
	}
	if expiry, ok := s.store.NextExpiry(); ok && (next == -1 || expiry < next) {
		next = expiry
	}

	if next == -1 {
		return -1
	}
	if next <= now {
		return 0
	}
	return int(next - now)
}

func (s *Server) processTimers() {
	now := nowMs()
	for {
		front := s.idleList.Front()
		if front == nil {
			break
		}
		c := front.Value.(*conn)
		if c.lastActive+s.cfg.IdleTimeout.Milliseconds() >= now {
			break
		}
		s.log.Debugw("removing idle connection", "fd", c.fd)
		s.destroyConn(c)
		delete(s.conns, c.fd)
	}

	evicted := s.store.ExpireDue(now, s.cfg.MaxExpirePerTick)
	for _, k := range evicted {
		s.log.Debugw("key expired", "key", k)
	}
}
