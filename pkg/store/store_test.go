package store

import (
	"errors"
	"testing"
)

func TestSetGetString(t *testing.T) {
	s := New(nil)
	if err := s.SetString("k", []byte("v")); err != nil {
		t.Fatalf("SetString: %v", err)
	}
	val, found, err := s.GetString("k")
	if err != nil || !found || string(val) != "v" {
		t.Fatalf("GetString = %q, found=%v, err=%v", val, found, err)
	}
}

func TestGetStringMissingKey(t *testing.T) {
	s := New(nil)
	_, found, err := s.GetString("missing")
	if found || err != nil {
		t.Fatalf("GetString(missing) = found=%v err=%v, want false/nil", found, err)
	}
}

func TestSetStringWrongType(t *testing.T) {
	s := New(nil)
	s.ZAdd("z", "m", 1.0)
	if err := s.SetString("z", []byte("v")); !errors.Is(err, ErrWrongType) {
		t.Fatalf("SetString on zset key: err=%v, want ErrWrongType", err)
	}
}

func TestDeleteTornDownEntryClearsTTL(t *testing.T) {
	s := New(nil)
	s.SetString("k", []byte("v"))
	s.SetExpire("k", 1000, 0)
	if !s.Delete("k") {
		t.Fatalf("Delete(k) = false, want true")
	}
	if _, found := s.Lookup("k"); found {
		t.Fatalf("key still present after Delete")
	}
	if _, ok := s.NextExpiry(); ok {
		t.Fatalf("NextExpiry still reports a timer after deleting the only TTL entry")
	}
}

func TestExpireAndTTL(t *testing.T) {
	s := New(nil)
	s.SetString("k", []byte("v"))
	if got := s.TTL("k", 0); got != -1 {
		t.Fatalf("TTL before SetExpire = %d, want -1", got)
	}
	s.SetExpire("k", 1000, 0)
	if got := s.TTL("k", 500); got != 500 {
		t.Fatalf("TTL = %d, want 500", got)
	}
	if got := s.TTL("missing", 0); got != -2 {
		t.Fatalf("TTL(missing) = %d, want -2", got)
	}
}

func TestExpireDueEvictsPastDeadline(t *testing.T) {
	s := New(nil)
	s.SetString("a", []byte("1"))
	s.SetString("b", []byte("2"))
	s.SetExpire("a", 100, 0)
	s.SetExpire("b", 200, 0)

	evicted := s.ExpireDue(150, 10)
	if len(evicted) != 1 || evicted[0] != "a" {
		t.Fatalf("ExpireDue(150) = %v, want [a]", evicted)
	}
	if _, found := s.Lookup("a"); found {
		t.Fatalf("a still present after expiry")
	}
	if _, found := s.Lookup("b"); !found {
		t.Fatalf("b evicted too early")
	}
}

func TestExpireDueRespectsMaxWork(t *testing.T) {
	s := New(nil)
	for i := 0; i < 5; i++ {
		key := string(rune('a' + i))
		s.SetString(key, []byte("v"))
		s.SetExpire(key, 10, 0)
	}
	evicted := s.ExpireDue(1000, 2)
	if len(evicted) != 2 {
		t.Fatalf("ExpireDue with maxWork=2 evicted %d, want 2", len(evicted))
	}
	if s.Len() != 3 {
		t.Fatalf("Len() after partial expiry = %d, want 3", s.Len())
	}
}

func TestZAddZRemZScore(t *testing.T) {
	s := New(nil)
	added, err := s.ZAdd("z", "alice", 1.0)
	if err != nil || !added {
		t.Fatalf("ZAdd = added=%v err=%v", added, err)
	}
	score, ok, err := s.ZScore("z", "alice")
	if err != nil || !ok || score != 1.0 {
		t.Fatalf("ZScore = %v ok=%v err=%v", score, ok, err)
	}
	removed, err := s.ZRem("z", "alice")
	if err != nil || !removed {
		t.Fatalf("ZRem = removed=%v err=%v", removed, err)
	}
	_, ok, _ = s.ZScore("z", "alice")
	if ok {
		t.Fatalf("ZScore found alice after ZRem")
	}
}

func TestZOperationsOnMissingKeyTreatedAsEmpty(t *testing.T) {
	s := New(nil)
	removed, err := s.ZRem("missing", "m")
	if err != nil || removed {
		t.Fatalf("ZRem on missing key = removed=%v err=%v, want false/nil", removed, err)
	}
	_, ok, err := s.ZScore("missing", "m")
	if err != nil || ok {
		t.Fatalf("ZScore on missing key = ok=%v err=%v, want false/nil", ok, err)
	}
	nodes, err := s.ZQuery("missing", 0, "", 0, 10)
	if err != nil || nodes != nil {
		t.Fatalf("ZQuery on missing key = %v err=%v, want nil/nil", nodes, err)
	}
}

func TestZOperationsWrongType(t *testing.T) {
	s := New(nil)
	s.SetString("k", []byte("v"))
	if _, err := s.ZAdd("k", "m", 1.0); !errors.Is(err, ErrWrongType) {
		t.Fatalf("ZAdd on string key: err=%v, want ErrWrongType", err)
	}
}

func TestKeys(t *testing.T) {
	s := New(nil)
	s.SetString("a", []byte("1"))
	s.SetString("b", []byte("2"))
	keys := s.Keys()
	if len(keys) != 2 {
		t.Fatalf("Keys() = %v, want 2 entries", keys)
	}
}
