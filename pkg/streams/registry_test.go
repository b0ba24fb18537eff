// SPDX-License-Identifier: Apache-2.0

package streams

import "testing"

func TestIncomingLifecycle(t *testing.T) {
	r := NewRegistry()

	s := r.GetOrCreateIncoming(4)
	s.OnHeader(":method", "PUT")
	s.OnHeader("content-type", "application/octet-stream")
	s.OnData([]byte("hello"))
	s.OnData([]byte(" world"))

	same := r.GetOrCreateIncoming(4)
	if same != s {
		t.Fatalf("expected GetOrCreateIncoming to return the existing stream")
	}

	taken, ok := r.TakeIncoming(4)
	if !ok {
		t.Fatalf("expected TakeIncoming to find stream 4")
	}
	if string(taken.Body()) != "hello world" {
		t.Fatalf("unexpected body: %q", taken.Body())
	}
	if taken.Method != "PUT" {
		t.Fatalf("unexpected method: %q", taken.Method)
	}

	if _, ok := r.TakeIncoming(4); ok {
		t.Fatalf("expected stream 4 to be removed after Take")
	}
}

func TestDropIncoming(t *testing.T) {
	r := NewRegistry()
	r.GetOrCreateIncoming(9)
	r.DropIncoming(9)
	if _, ok := r.TakeIncoming(9); ok {
		t.Fatalf("expected stream 9 to be gone after DropIncoming")
	}
}

func TestOutgoingAdvanceAndRemove(t *testing.T) {
	r := NewRegistry()
	o := NewOutgoing(2, []byte("0123456789"))
	r.SetOutgoing(o)

	got, ok := r.GetOutgoing(2)
	if !ok || got != o {
		t.Fatalf("expected to retrieve the stored outgoing stream")
	}

	got.Advance(4)
	if string(got.Remaining()) != "456789" {
		t.Fatalf("unexpected remaining bytes: %q", got.Remaining())
	}

	got.Advance(6)
	if !got.Done() {
		t.Fatalf("expected outgoing stream to be done")
	}

	r.RemoveOutgoing(2)
	if _, ok := r.GetOutgoing(2); ok {
		t.Fatalf("expected outgoing stream 2 to be removed")
	}
}

func TestOutgoingIDsSnapshot(t *testing.T) {
	r := NewRegistry()
	r.SetOutgoing(NewOutgoing(1, []byte("a")))
	r.SetOutgoing(NewOutgoing(2, []byte("b")))

	ids := r.OutgoingIDs()
	if len(ids) != 2 {
		t.Fatalf("expected 2 outgoing ids, got %d", len(ids))
	}
}
