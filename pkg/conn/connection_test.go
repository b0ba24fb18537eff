// SPDX-License-Identifier: Apache-2.0

package conn

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/catid/quicsend/pkg/mailbox"
	"github.com/catid/quicsend/pkg/sendpool"
	"github.com/catid/quicsend/pkg/streams"
)

func newTestServerConn(bearer string) (*Connection, *mailbox.Mailbox) {
	mbox := mailbox.New()
	c := NewServer(nil, 1, bearer, mbox, sendpool.New(), 8)
	return c, mbox
}

func TestHandleRequestRejectsBadBearer(t *testing.T) {
	c, _ := newTestServerConn("right-token")

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("body"))
	req.Header.Set(HeaderAuthorization, BearerPrefix+"wrong-token")
	rec := httptest.NewRecorder()

	c.HandleRequest(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if c.Connected() {
		t.Fatalf("connection marked connected after a rejected bearer token")
	}
	if !c.TimedOut() {
		t.Fatalf("connection not torn down after a rejected bearer token")
	}
}

func TestHandleRequestAcceptsGoodBearerAndWaitsForResponse(t *testing.T) {
	c, mbox := newTestServerConn("right-token")

	req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("hello"))
	req.Header.Set(HeaderAuthorization, BearerPrefix+"right-token")
	rec := httptest.NewRecorder()

	var gotStreamID int64
	done := make(chan struct{})
	go func() {
		mbox.Poll(func(e mailbox.Event) {
			if e.Kind.Kind == mailbox.Data && e.Kind.Direction == mailbox.Request {
				gotStreamID = int64(e.Kind.Stream.StreamID)
				close(done)
			}
		}, -1)
	}()

	handled := make(chan struct{})
	go func() {
		c.HandleRequest(rec, req)
		close(handled)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for request Data event")
	}

	if err := c.SendResponse(gotStreamID, http.StatusOK, map[string]string{"X-Test": "1"}, []byte("world")); err != nil {
		t.Fatalf("SendResponse: %v", err)
	}

	select {
	case <-handled:
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for HandleRequest to return")
	}

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "world" {
		t.Fatalf("body = %q, want %q", rec.Body.String(), "world")
	}
	if !c.Connected() {
		t.Fatalf("connection not marked connected after a valid bearer token")
	}
}

func TestSendResponseCachesWhenNoWaiter(t *testing.T) {
	c, _ := newTestServerConn("tok")

	if err := c.SendResponse(999, http.StatusOK, nil, []byte("late")); err != nil {
		t.Fatalf("SendResponse: %v", err)
	}

	respCh := make(chan pendingResponse, 1)
	c.pendingMu.Lock()
	c.pending[999] = respCh
	c.pendingMu.Unlock()

	c.FlushCached()

	select {
	case resp := <-respCh:
		if string(resp.body) != "late" {
			t.Fatalf("body = %q, want %q", resp.body, "late")
		}
	default:
		t.Fatalf("FlushCached did not deliver the cached response")
	}
}

// fakeSlowWriter refuses its first N writes the way a blocked quic stream
// would, then accepts everything after — enough to drive writeChunked's
// OutgoingStream retry path without a real transport underneath it.
type fakeSlowWriter struct {
	mu       sync.Mutex
	header   http.Header
	buf      bytes.Buffer
	refusals int
}

func newFakeSlowWriter(refusals int) *fakeSlowWriter {
	return &fakeSlowWriter{header: make(http.Header), refusals: refusals}
}

func (f *fakeSlowWriter) Header() http.Header { return f.header }
func (f *fakeSlowWriter) WriteHeader(int)     {}

func (f *fakeSlowWriter) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refusals > 0 {
		f.refusals--
		return 0, errors.New("simulated deadline exceeded")
	}
	return f.buf.Write(p)
}

func (f *fakeSlowWriter) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeSlowWriter) String() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buf.String()
}

func TestWriteChunkedRetriesThroughOutgoingStream(t *testing.T) {
	w := newFakeSlowWriter(2)
	registry := streams.NewRegistry()

	body := []byte("hello world, this is retried after backpressure clears")
	if err := writeChunked(w, sendpool.New(), registry, 42, body, func() bool { return false }); err != nil {
		t.Fatalf("writeChunked: %v", err)
	}
	if w.String() != string(body) {
		t.Fatalf("body = %q, want %q", w.String(), body)
	}
	if _, ok := registry.GetOutgoing(42); ok {
		t.Fatalf("OutgoingStream not removed once the remainder drained")
	}
}

func TestWriteChunkedGivesUpWhenTimedOut(t *testing.T) {
	w := newFakeSlowWriter(1_000_000)
	registry := streams.NewRegistry()

	err := writeChunked(w, sendpool.New(), registry, 7, []byte("data"), func() bool { return true })
	if err == nil {
		t.Fatalf("expected an error once the connection is already timed out")
	}
	if _, ok := registry.GetOutgoing(7); ok {
		t.Fatalf("OutgoingStream should be cleared once writeChunked gives up")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c, mbox := newTestServerConn("tok")

	var timeouts int
	done := make(chan struct{})
	go func() {
		mbox.Poll(func(e mailbox.Event) {
			if e.Kind.Kind == mailbox.Timeout {
				timeouts++
			}
		}, 200*time.Millisecond)
		close(done)
	}()

	c.Close("first")
	c.Close("second")

	<-done

	if timeouts != 1 {
		t.Fatalf("timeouts = %d, want 1", timeouts)
	}
	if c.State() != Closed {
		t.Fatalf("state = %v, want Closed", c.State())
	}
}
