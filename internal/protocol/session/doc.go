// Package session owns the client side of one EC connection.
//
// Ownership boundary:
// - dial, authentication handshake, reconnection
// - half-duplex request queue (one exchange in flight, FIFO)
// - per-connection reader feeding the frame reassembler
//
// Callers only see SendPacket; the socket never leaves this package.
package session
