package chat

import (
	"testing"
	"time"
)

var fixedNow = time.Date(2024, 3, 9, 14, 5, 59, 0, time.Local)

func newTestRouter(t *testing.T, excludeSelf bool) (*Registry, *Router) {
	t.Helper()
	r := startRegistry(t)
	rt := NewRouter(r, RouterConfig{
		Now:                   func() time.Time { return fixedNow },
		ExcludeSelfFromOnline: excludeSelf,
	}, nil)
	return r, rt
}

func TestRouter_BroadcastExcludesSenderAndTimestamps(t *testing.T) {
	r, rt := newTestRouter(t, false)
	alice := authedSession(t, "alice")
	bob := authedSession(t, "bob")
	carol := authedSession(t, "carol")
	register(t, r, alice)
	register(t, r, bob)
	register(t, r, carol)

	if n := rt.Broadcast("alice: hi", alice); n != 2 {
		t.Fatalf("expected 2 recipients, got %d", n)
	}

	want := "[2024-03-09 14:05] alice: hi"
	for _, s := range []*Session{bob, carol} {
		if got := waitForPrefix(t, s.Outbound(), "["); got != want {
			t.Fatalf("%s got %q, want %q", s.Username(), got, want)
		}
	}
	expectNoLine(t, alice.Outbound())
}

func TestRouter_BroadcastSkipsUnauthenticatedAndClosed(t *testing.T) {
	r, rt := newTestRouter(t, false)
	alice := authedSession(t, "alice")
	bob := authedSession(t, "bob")
	register(t, r, alice)
	register(t, r, bob)

	// bob's connection has ended but his supervisor has not removed him yet.
	bob.terminate()

	if n := rt.Broadcast("alice: anyone?", alice); n != 0 {
		t.Fatalf("expected 0 recipients, got %d", n)
	}
}

func TestRouter_BroadcastDropsWhenRecipientQueueFull(t *testing.T) {
	r, rt := newTestRouter(t, false)
	alice := authedSession(t, "alice")
	slow := NewSession(nil, 1)
	if err := slow.beginAuth(); err != nil {
		t.Fatal(err)
	}
	if err := slow.authenticate("slow"); err != nil {
		t.Fatal(err)
	}
	register(t, r, alice)
	register(t, r, slow)

	if n := rt.Broadcast("one", nil); n != 2 {
		t.Fatalf("first broadcast: expected 2 recipients, got %d", n)
	}
	done := make(chan int, 1)
	go func() { done <- rt.Broadcast("two", nil) }()

	select {
	case n := <-done:
		if n != 1 {
			t.Fatalf("second broadcast: expected only alice, got %d", n)
		}
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full recipient queue")
	}
}

func TestRouter_ListOnlineIncludesSelfByDefault(t *testing.T) {
	r, rt := newTestRouter(t, false)
	alice := authedSession(t, "alice")
	bob := authedSession(t, "bob")
	register(t, r, alice)
	register(t, r, bob)

	got := FormatOnline(rt.ListOnline(alice))
	if got != "Online users: alice, bob" {
		t.Fatalf("unexpected listing %q", got)
	}
}

func TestRouter_ListOnlineCanExcludeSelf(t *testing.T) {
	r, rt := newTestRouter(t, true)
	alice := authedSession(t, "alice")
	register(t, r, alice)

	if got := FormatOnline(rt.ListOnline(alice)); got != "No other users online" {
		t.Fatalf("unexpected listing %q", got)
	}

	bob := authedSession(t, "bob")
	register(t, r, bob)
	if got := FormatOnline(rt.ListOnline(alice)); got != "Online users: bob" {
		t.Fatalf("unexpected listing %q", got)
	}
}

func TestRouter_PrivateMessageDeliversToExactlyOne(t *testing.T) {
	r, rt := newTestRouter(t, false)
	alice := authedSession(t, "alice")
	bob := authedSession(t, "bob")
	carol := authedSession(t, "carol")
	register(t, r, alice)
	register(t, r, bob)
	register(t, r, carol)

	if err := rt.PrivateMessage(alice, "BoB", "hello"); err != nil {
		t.Fatalf("expected case-insensitive match, got %v", err)
	}
	if got := waitForPrefix(t, bob.Outbound(), "Private"); got != "Private from alice: hello" {
		t.Fatalf("unexpected private line %q", got)
	}
	expectNoLine(t, alice.Outbound())
	expectNoLine(t, carol.Outbound())
}

func TestRouter_PrivateMessageFirstMatchWins(t *testing.T) {
	r, rt := newTestRouter(t, false)
	alice := authedSession(t, "alice")
	first := authedSession(t, "bob")
	second := authedSession(t, "bob")
	register(t, r, alice)
	register(t, r, first)
	register(t, r, second)

	if err := rt.PrivateMessage(alice, "bob", "which one?"); err != nil {
		t.Fatal(err)
	}
	waitForPrefix(t, first.Outbound(), "Private from alice")
	expectNoLine(t, second.Outbound())
}

func TestRouter_PrivateMessageNotFound(t *testing.T) {
	r, rt := newTestRouter(t, false)
	alice := authedSession(t, "alice")
	register(t, r, alice)

	if err := rt.PrivateMessage(alice, "nobody", "hi"); err != ErrUserNotFound {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	expectNoLine(t, alice.Outbound())
}
