package selector

import "testing"

func TestNext_CyclesInOrderWithPeriodK(t *testing.T) {
	c := New()
	key := Key{Port: 80, HostKey: "app.example.com", PathKey: "/api"}
	targets := []string{"http://a", "http://b", "http://c"}

	var got []string
	for i := 0; i < 7; i++ {
		got = append(got, c.Next(key, targets))
	}
	want := []string{"http://a", "http://b", "http://c", "http://a", "http://b", "http://c", "http://a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call %d: got %s, want %s (full=%v)", i, got[i], want[i], got)
		}
	}
}

func TestNext_SingleTargetNeverTouchesCursorState(t *testing.T) {
	c := New()
	key := Key{Port: 80, HostKey: "app.example.com", PathKey: "/"}
	for i := 0; i < 5; i++ {
		if got := c.Next(key, []string{"http://only"}); got != "http://only" {
			t.Fatalf("single target must always be returned, got %s", got)
		}
	}
	if idx := c.Peek(key); idx != 0 {
		t.Fatalf("cursor must stay untouched for single-target rules, got %d", idx)
	}
}

func TestNext_CursorsAreIndependentAcrossKeys(t *testing.T) {
	c := New()
	k1 := Key{Port: 80, HostKey: "a.example.com", PathKey: "/"}
	k2 := Key{Port: 80, HostKey: "b.example.com", PathKey: "/"}
	targets := []string{"http://x", "http://y"}

	c.Next(k1, targets)
	c.Next(k1, targets)
	first := c.Next(k2, targets)
	if first != "http://x" {
		t.Fatalf("k2's cursor must start fresh at index 0, got %s", first)
	}
}
