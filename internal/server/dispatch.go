package server

import (
	"time"

	"github.com/ringcache/ringcache/pkg/protocol"
)

// responseSink is the subset of *protocol.ResponseWriter that a command
// handler needs. Replay uses a no-op implementation since there is no
// connection to answer during startup replay.
type responseSink interface {
	WriteNil()
	WriteErr(code int32, msg string)
	WriteStr(s []byte)
	WriteInt(v int64)
	WriteDbl(v float64)
	BeginArr(n int)
	AppendStr(s []byte)
	AppendDbl(v float64)
}

// processStart anchors nowMs to time.Since rather than time.Now().UnixMilli:
// the latter strips the monotonic reading Go's time.Time carries and hands
// back raw wall-clock milliseconds, which can jump backward on an NTP
// correction. time.Since keeps comparing the monotonic reading under the
// hood, matching the reference implementation's use of
// clock_gettime(CLOCK_MONOTONIC, ...) for every idle/TTL/fsync deadline.
var processStart = time.Now()

func nowMs() int64 {
	return time.Since(processStart).Milliseconds()
}

// dispatch routes one decoded command to its handler. persist selects
// whether this call should also persist the command to the AOF log (set
// to false during AOF replay itself, where persisting again would
// duplicate every record on the next restart).
func (s *Server) dispatch(args [][]byte, out responseSink, persist bool) {
	if len(args) == 0 {
		out.WriteErr(protocol.ErrUnknown, "empty command")
		return
	}
	name := string(args[0])
	spec, ok := commandTable[name]
	if !ok {
		out.WriteErr(protocol.ErrUnknown, "unknown command")
		return
	}
	if len(args) != spec.arity {
		out.WriteErr(protocol.ErrBadArg, "wrong number of arguments")
		return
	}

	if persist && spec.mutating && s.aofLog != nil && s.cfg.AOFEnabled {
		s.aofLog.WriteCommand(args)
	}
	spec.handler(s, args, out)
	if persist && spec.mutating && s.aofLog != nil && s.cfg.AOFEnabled {
		if err := s.aofLog.FlushAndSync(nowMs()); err != nil {
			s.log.Warnw("AOF flush failed", "error", err)
		}
	}
}

type commandSpec struct {
	arity    int
	mutating bool
	handler  func(s *Server, args [][]byte, out responseSink)
}

var commandTable = map[string]commandSpec{
	"get":          {arity: 2, handler: cmdGet},
	"set":          {arity: 3, mutating: true, handler: cmdSet},
	"del":          {arity: 2, mutating: true, handler: cmdDel},
	"pexpire":      {arity: 3, mutating: true, handler: cmdExpire},
	"pttl":         {arity: 2, handler: cmdTTL},
	"keys":         {arity: 1, handler: cmdKeys},
	"zadd":         {arity: 4, mutating: true, handler: cmdZAdd},
	"zrem":         {arity: 3, mutating: true, handler: cmdZRem},
	"zscore":       {arity: 3, handler: cmdZScore},
	"zquery":       {arity: 6, handler: cmdZQuery},
	"bgrewriteaof": {arity: 1, handler: cmdBgRewriteAOF},
}
