// SPDX-License-Identifier: Apache-2.0

package server

import (
	"errors"
	"net"
	"strings"
)

var errConnNotFound = errors.New("quicsend: no connection with that assigned id")

// isClosedErr reports whether err is the ordinary "listener/connection
// closed" error Serve returns after Close, which callers should swallow
// rather than propagate as a failure.
func isClosedErr(err error) bool {
	if err == nil {
		return false
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) && strings.Contains(netErr.Err.Error(), "use of closed network connection") {
		return true
	}
	return strings.Contains(err.Error(), "server closed") || strings.Contains(err.Error(), "use of closed network connection")
}
