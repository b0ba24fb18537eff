// SPDX-License-Identifier: Apache-2.0

package conn

// Header names used on the wire (§6). http3's http.Request/ResponseWriter
// already canonicalizes :method/:path/:status into Request.Method,
// Request.URL.Path, and the response status code, so only the
// application-level headers need explicit names here.
const (
	HeaderAuthorization = "Authorization"
	HeaderContentType   = "content-type"
	HeaderContentLength = "content-length"
	HeaderInfo          = "quicsend-header-info"
	HeaderServer        = "server"
	HeaderUserAgent     = "user-agent"
)

// UserAgentServer and UserAgentClient are the fixed user-agent strings (§6).
const (
	UserAgentServer = "quicsend-server"
	UserAgentClient = "quicsend-client"
)

// BearerPrefix precedes the token in the Authorization header (§6, glossary).
const BearerPrefix = "Bearer "
