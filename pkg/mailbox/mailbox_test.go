// SPDX-License-Identifier: Apache-2.0

package mailbox

import (
	"testing"
	"time"
)

func TestPostThenPollDrainsInOrder(t *testing.T) {
	m := New()
	m.Post(NewConnect(1, nil))
	m.Post(NewData(1, nil, Request))
	m.Post(NewTimeout(1))

	var got []Kind
	m.Poll(func(e Event) { got = append(got, e.Kind.Kind) }, 100*time.Millisecond)

	want := []Kind{Connect, Data, Timeout}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestPollTimeoutReturnsWithoutEvents(t *testing.T) {
	m := New()

	start := time.Now()
	called := false
	m.Poll(func(Event) { called = true }, 100*time.Millisecond)
	elapsed := time.Since(start)

	if called {
		t.Fatalf("handler should not run when no events are posted")
	}
	if elapsed < 90*time.Millisecond {
		t.Fatalf("Poll returned too early: %v", elapsed)
	}
	if elapsed > 400*time.Millisecond {
		t.Fatalf("Poll returned too late: %v", elapsed)
	}
}

func TestShutdownUnblocksForeverPoll(t *testing.T) {
	m := New()

	done := make(chan struct{})
	go func() {
		m.Poll(func(Event) {}, -1)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	m.Shutdown()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Poll(-1) did not return after Shutdown")
	}
}

func TestPostAfterShutdownNeverDrains(t *testing.T) {
	m := New()
	m.Shutdown()
	m.Post(NewTimeout(1))

	called := false
	m.Poll(func(Event) { called = true }, 10*time.Millisecond)
	if called {
		t.Fatalf("events posted after shutdown must never be drained")
	}
}
