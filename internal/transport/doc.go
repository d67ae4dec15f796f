/*
Package transport fetches compressed guest artifacts over QUIC.

# Protocol

A fetch is one QUIC connection carrying one bidirectional stream:

 1. the client dials host:port with ALPN "portal-wasm"
 2. the client opens a stream, writes the four bytes "WASM" and closes its
    send side
 3. the server writes the artifact and closes its send side
 4. the client reads to EOF and closes the connection

# Trust

TrustVerify (the default) validates the server certificate against the
system roots, optionally extended by a PEM CA file. TrustInsecure disables
validation and must be chosen explicitly.

# Failure handling

Every failure is an *Error naming the step (dial, open_stream, handshake,
read) and wrapping ErrTransport. A Breaker can be attached so a host that
keeps failing is rejected without dialing until its cooldown passes.

Server is the matching serving side, used by portal-serve and by tests.
*/
package transport
