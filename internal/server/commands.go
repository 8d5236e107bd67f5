package server

import (
	"errors"
	"math"
	"strconv"

	"github.com/ringcache/ringcache/pkg/protocol"
	"github.com/ringcache/ringcache/pkg/store"
	"github.com/ringcache/ringcache/pkg/store/zset"
)

func cmdGet(s *Server, args [][]byte, out responseSink) {
	val, found, err := s.store.GetString(string(args[1]))
	if err != nil {
		writeStoreErr(out, err)
		return
	}
	if !found {
		out.WriteNil()
		return
	}
	out.WriteStr(val)
}

func cmdSet(s *Server, args [][]byte, out responseSink) {
	if err := s.store.SetString(string(args[1]), args[2]); err != nil {
		writeStoreErr(out, err)
		return
	}
	out.WriteNil()
}

func cmdDel(s *Server, args [][]byte, out responseSink) {
	if s.store.Delete(string(args[1])) {
		out.WriteInt(1)
		return
	}
	out.WriteInt(0)
}

func cmdExpire(s *Server, args [][]byte, out responseSink) {
	ttlMs, ok := parseInt(args[2])
	if !ok {
		out.WriteErr(protocol.ErrBadArg, "expect int64")
		return
	}
	found := s.store.SetExpire(string(args[1]), ttlMs, nowMs())
	if found {
		out.WriteInt(1)
		return
	}
	out.WriteInt(0)
}

func cmdTTL(s *Server, args [][]byte, out responseSink) {
	out.WriteInt(s.store.TTL(string(args[1]), nowMs()))
}

func cmdKeys(s *Server, _ [][]byte, out responseSink) {
	keys := s.store.Keys()
	out.BeginArr(len(keys))
	for _, k := range keys {
		out.AppendStr([]byte(k))
	}
}

func cmdZAdd(s *Server, args [][]byte, out responseSink) {
	score, ok := parseFloat(args[2])
	if !ok {
		out.WriteErr(protocol.ErrBadArg, "expect float")
		return
	}
	added, err := s.store.ZAdd(string(args[1]), string(args[3]), score)
	if err != nil {
		writeStoreErr(out, err)
		return
	}
	if added {
		out.WriteInt(1)
		return
	}
	out.WriteInt(0)
}

func cmdZRem(s *Server, args [][]byte, out responseSink) {
	removed, err := s.store.ZRem(string(args[1]), string(args[2]))
	if err != nil {
		writeStoreErr(out, err)
		return
	}
	if removed {
		out.WriteInt(1)
		return
	}
	out.WriteInt(0)
}

func cmdZScore(s *Server, args [][]byte, out responseSink) {
	score, found, err := s.store.ZScore(string(args[1]), string(args[2]))
	if err != nil {
		writeStoreErr(out, err)
		return
	}
	if !found {
		out.WriteNil()
		return
	}
	out.WriteDbl(score)
}

func cmdZQuery(s *Server, args [][]byte, out responseSink) {
	score, ok := parseFloat(args[2])
	if !ok {
		out.WriteErr(protocol.ErrBadArg, "expect fp number")
		return
	}
	name := string(args[3])
	offset, ok1 := parseInt(args[4])
	limit, ok2 := parseInt(args[5])
	if !ok1 || !ok2 {
		out.WriteErr(protocol.ErrBadArg, "expect int")
		return
	}

	nodes, err := s.store.ZQuery(string(args[1]), score, name, offset, limit)
	if err != nil {
		writeStoreErr(out, err)
		return
	}
	out.BeginArr(2 * len(nodes))
	for _, n := range nodes {
		out.AppendStr([]byte(n.Name))
		out.AppendDbl(n.Score)
	}
}

func cmdBgRewriteAOF(s *Server, _ [][]byte, out responseSink) {
	if s.aofLog == nil || !s.cfg.AOFEnabled {
		out.WriteErr(protocol.ErrBadArg, "AOF is not enabled")
		return
	}
	if s.aofLog.Rewriting() {
		out.WriteErr(protocol.ErrBadArg, "AOF rewrite already in progress")
		return
	}

	// snapshotForRewrite runs here, synchronously, on the event loop
	// goroutine — it is the only goroutine ever allowed to touch
	// s.store. BeginRewrite's background goroutine only ever sees the
	// already-serialized bytes this call returns, never the store
	// itself, so the concurrent store mutations that keep happening on
	// this goroutine while the rewrite runs in the background can never
	// race with it.
	data := s.snapshotForRewrite()

	err := s.aofLog.BeginRewrite(data, func(err error) {
		if err != nil {
			s.log.Warnw("AOF rewrite failed", "error", err)
			return
		}
		s.log.Infow("AOF rewrite completed")
	})
	if err != nil {
		out.WriteErr(protocol.ErrUnknown, "AOF rewrite failed")
		return
	}
	out.WriteInt(1)
}

// snapshotForRewrite builds, in AOF record framing, the minimal command
// set needed to reconstruct the current dataset: a set plus an optional
// pexpire per string, a zadd per member plus an optional pexpire per
// sorted set. It must be called from the event loop goroutine, since it
// ranges over the store directly.
func (s *Server) snapshotForRewrite() []byte {
	now := nowMs()
	var out []byte
	emit := func(args [][]byte) {
		out = append(out, protocol.EncodeCommand(args)...)
	}
	s.store.ForEach(func(e *store.Entry) {
		switch e.Variant {
		case store.VariantString:
			emit([][]byte{[]byte("set"), []byte(e.Key), e.Str})
			if e.HasTTL() {
				if ttl := e.ExpireAt - now; ttl > 0 {
					emit([][]byte{[]byte("pexpire"), []byte(e.Key), []byte(strconv.FormatInt(ttl, 10))})
				}
			}
		case store.VariantZSet:
			e.ZSet.ForEach(func(n *zset.Node) {
				emit([][]byte{
					[]byte("zadd"),
					[]byte(e.Key),
					[]byte(strconv.FormatFloat(n.Score, 'g', -1, 64)),
					[]byte(n.Name),
				})
			})
			if e.HasTTL() {
				if ttl := e.ExpireAt - now; ttl > 0 {
					emit([][]byte{[]byte("pexpire"), []byte(e.Key), []byte(strconv.FormatInt(ttl, 10))})
				}
			}
		}
	})
	return out
}

func writeStoreErr(out responseSink, err error) {
	if errors.Is(err, store.ErrWrongType) {
		out.WriteErr(protocol.ErrBadType, err.Error())
		return
	}
	out.WriteErr(protocol.ErrUnknown, err.Error())
}

// parseFloat parses a score, rejecting NaN the same way the reference
// implementation's str2dbl does (strconv.ParseFloat alone accepts "nan").
func parseFloat(b []byte) (float64, bool) {
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

func parseInt(b []byte) (int64, bool) {
	v, err := strconv.ParseInt(string(b), 10, 64)
	return v, err == nil
}
