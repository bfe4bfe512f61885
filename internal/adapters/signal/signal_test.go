package signal

import (
	"testing"
	"time"

	"github.com/dkeye/roomkit/internal/domain"
)

func newTestConn(queue int) *Conn {
	return &Conn{send: make(chan []byte, queue)}
}

func TestRegistryBindAndGet(t *testing.T) {
	reg := NewRegistry()
	conn := newTestConn(1)
	reg.Bind("pid-a", conn)

	got, ok := reg.Get("pid-a")
	if !ok || got != conn {
		t.Fatal("bound connection should be retrievable")
	}
	if _, ok := reg.Get("pid-b"); ok {
		t.Fatal("unknown pid should not resolve")
	}
}

func TestRegistryRebindClosesOldConnection(t *testing.T) {
	reg := NewRegistry()
	first := newTestConn(1)
	second := newTestConn(1)
	reg.Bind("pid-a", first)
	reg.Bind("pid-a", second)

	if err := first.TrySend([]byte("x")); err == nil {
		t.Fatal("replaced connection should be closed")
	}
	if got, _ := reg.Get("pid-a"); got != second {
		t.Fatal("registry should point at the new connection")
	}
}

func TestRegistryUnbindIgnoresStaleConnection(t *testing.T) {
	reg := NewRegistry()
	stale := newTestConn(1)
	fresh := newTestConn(1)
	reg.Bind("pid-a", stale)
	reg.Bind("pid-a", fresh)

	// The old pump unbinding must not kick out the reconnect.
	reg.Unbind("pid-a", stale)
	if got, ok := reg.Get("pid-a"); !ok || got != fresh {
		t.Fatal("fresh connection should survive stale unbind")
	}

	reg.Unbind("pid-a", fresh)
	if _, ok := reg.Get("pid-a"); ok {
		t.Fatal("fresh connection should be unbound by its own pump")
	}
}

func TestConnTrySendBackpressure(t *testing.T) {
	conn := newTestConn(1)
	if err := conn.TrySend([]byte("one")); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := conn.TrySend([]byte("two")); err != ErrBackpressure {
		t.Fatalf("expected ErrBackpressure, got %v", err)
	}

	conn.Close()
	conn.Close()
	if err := conn.TrySend([]byte("three")); err == nil || err == ErrBackpressure {
		t.Fatalf("send on closed connection should fail, got %v", err)
	}
}

func TestJoinRateLimiter(t *testing.T) {
	rl := NewJoinRateLimiter(2, time.Minute)
	pid := domain.ParticipantID("pid-a")

	if !rl.Allow(pid) || !rl.Allow(pid) {
		t.Fatal("first attempts within the limit should pass")
	}
	if rl.Allow(pid) {
		t.Fatal("attempt over the limit should be rejected")
	}
	if !rl.Allow("pid-b") {
		t.Fatal("other participants have their own budget")
	}
}

func TestParseMuteType(t *testing.T) {
	cases := []struct {
		in   string
		want domain.MutedMediaType
		ok   bool
	}{
		{"audio", domain.MutedAudio, true},
		{"video", domain.MutedVideo, true},
		{"all", domain.MutedAll, true},
		{"", domain.MutedNone, false},
		{"AUDIO", domain.MutedNone, false},
	}
	for _, c := range cases {
		got, ok := parseMuteType(c.in)
		if got != c.want || ok != c.ok {
			t.Errorf("parseMuteType(%q) = %v %v, want %v %v", c.in, got, ok, c.want, c.ok)
		}
	}
}
