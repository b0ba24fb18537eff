// SPDX-License-Identifier: Apache-2.0

/*
Package quicsend implements an HTTP/3-over-QUIC request/response engine.

It exposes two symmetric endpoints: a Client (pkg/client) that holds exactly
one persistent session to a known peer, and a Server (pkg/server) that
accepts many peer sessions on a bound UDP port. Both are built around a
shared connection/stream engine (pkg/conn) layered directly on top of
github.com/quic-go/quic-go and its http3 subpackage.

Why build this instead of using net/http over quic-go/http3 directly?
http3.Server and http3.Transport give you HTTP semantics, but none of the
following, which embedding applications that speak a private, bearer-token
authenticated protocol between a fixed pair of peers actually need:

  - a bounded-wait, pollable event mailbox that decouples network I/O from
    whatever thread the embedder calls in on (pkg/mailbox)
  - bearer-token connection authorization before any request is surfaced to
    the embedder (pkg/conn)
  - pinned peer-certificate verification on the client side, rather than a
    CA trust chain (pkg/conn)
  - explicit stream-level send queuing under flow-control backpressure
    (pkg/streams)

Protocol
This engine speaks QUIC v1 + HTTP/3 with ALPN "h3", a fixed max idle timeout,
and a single TLS SNI. Connection establishment additionally requires a
bearer token in the Authorization header of the first request (server side)
and a pinned peer certificate (client side). See pkg/conn for the full
connection lifecycle and pkg/server / pkg/client for the two endpoint
variants.

Address validation (QUIC retry tokens, version negotiation) and raw
datagram routing are handled entirely inside quic-go/http3's own accepted-
connection lifecycle before this package ever sees a connection; see
DESIGN.md for why that boundary is not crossed here.
*/
package quicsend
