// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"testing"

	"github.com/catid/quicsend/pkg/mailbox"
)

func TestSendRequestBeforeConnectFails(t *testing.T) {
	cl := New(Config{ServerAddr: "127.0.0.1:1", BearerToken: "tok"}, []byte("der"), mailbox.New())

	if _, err := cl.SendRequest(context.Background(), "POST", "/x", nil, nil); err == nil {
		t.Fatalf("expected an error sending before Connect")
	}
}

func TestConnectedFalseBeforeConnect(t *testing.T) {
	cl := New(Config{ServerAddr: "127.0.0.1:1", BearerToken: "tok"}, []byte("der"), mailbox.New())
	if cl.Connected() {
		t.Fatalf("expected Connected() to be false before Connect")
	}
}

func TestCloseBeforeConnectIsSafe(t *testing.T) {
	cl := New(Config{ServerAddr: "127.0.0.1:1", BearerToken: "tok"}, []byte("der"), mailbox.New())
	if err := cl.Close(); err != nil {
		t.Fatalf("Close before Connect: %v", err)
	}
	if err := cl.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
