// SPDX-License-Identifier: Apache-2.0

package conn

import (
	"crypto/subtle"
	"strings"
)

// ParseBearer extracts the token from an Authorization header value of the
// form "Bearer <token>" (§6). ok is false for any other shape.
func ParseBearer(header string) (token string, ok bool) {
	if !strings.HasPrefix(header, BearerPrefix) {
		return "", false
	}
	return strings.TrimPrefix(header, BearerPrefix), true
}

// checkBearer reports whether got matches want in constant time. An empty
// want means the server was configured with no token, in which case every
// request is rejected rather than silently accepted.
func checkBearer(got, want string) bool {
	if want == "" {
		return false
	}
	if len(got) != len(want) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
