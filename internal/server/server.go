// Package server implements the single-threaded, non-blocking event loop
// that accepts client connections, drives their I/O via poll(), dispatches
// completed requests to the command table, and runs the idle-connection
// and key-TTL timers once per iteration.
package server

import (
	"container/list"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/ringcache/ringcache/pkg/aof"
	"github.com/ringcache/ringcache/pkg/config"
	"github.com/ringcache/ringcache/pkg/store"
	"github.com/ringcache/ringcache/pkg/workerpool"
)

// Server owns the listening socket, every open connection, the value
// store, and the AOF log. All of its state is touched only by the
// goroutine running Run, with the single exception of the AOF log's
// background rewrite handoff (see pkg/aof).
type Server struct {
	cfg      config.Config
	log      *zap.SugaredLogger
	listenFD int

	conns    map[int]*conn
	idleList *list.List

	store   *store.Store
	workers *workerpool.Pool
	aofLog  *aof.Log
}

// New constructs a Server. It opens (and replays) the AOF log but does
// not yet bind the listening socket; call Listen to do that, then Run to
// serve.
func New(cfg config.Config, log *zap.SugaredLogger) (*Server, error) {
	workers := workerpool.New(cfg.TeardownWorkers)
	st := store.NewWithThreshold(workers, cfg.LargeZSetThreshold)

	s := &Server{
		cfg:      cfg,
		log:      log,
		conns:    make(map[int]*conn),
		idleList: list.New(),
		store:    st,
		workers:  workers,
	}

	if cfg.AOFEnabled {
		logFile, err := aof.Open(cfg.AOFPath)
		if err != nil {
			return nil, fmt.Errorf("server: open AOF log: %w", err)
		}
		s.aofLog = logFile
		if err := s.replay(); err != nil {
			log.Warnw("AOF replay did not complete cleanly; continuing with partial state", "error", err)
		}
	}
	return s, nil
}

func (s *Server) replay() error {
	return aof.Replay(s.cfg.AOFPath, func(args [][]byte) {
		var w discardWriter
		s.dispatch(args, &w, false)
	})
}

// discardWriter satisfies the responseSink interface used by dispatch
// without allocating a real response buffer, since replay has no
// connection to write a response to.
type discardWriter struct{}

func (discardWriter) WriteNil()                       {}
func (discardWriter) WriteErr(code int32, msg string) {}
func (discardWriter) WriteStr(s []byte)               {}
func (discardWriter) WriteInt(v int64)                {}
func (discardWriter) WriteDbl(v float64)              {}
func (discardWriter) BeginArr(n int)                  {}
func (discardWriter) AppendStr(s []byte)              {}
func (discardWriter) AppendDbl(v float64)             {}

// Listen binds the listening socket. Call this once before Run.
func (s *Server) Listen() error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return fmt.Errorf("server: socket(): %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return fmt.Errorf("server: setsockopt(SO_REUSEADDR): %w", err)
	}
	addr := &unix.SockaddrInet4{Port: s.cfg.Port}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return fmt.Errorf("server: bind(): %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return fmt.Errorf("server: set listener nonblocking: %w", err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return fmt.Errorf("server: listen(): %w", err)
	}
	s.listenFD = fd
	s.log.Infow("listening", "port", s.cfg.Port)
	return nil
}

// Close releases the listening socket, every open connection, the AOF
// log, and the teardown worker pool.
func (s *Server) Close() error {
	for fd, c := range s.conns {
		s.destroyConn(c)
		delete(s.conns, fd)
	}
	if s.listenFD != 0 {
		unix.Close(s.listenFD)
	}
	s.workers.Close()
	if s.aofLog != nil {
		return s.aofLog.Close()
	}
	return nil
}
