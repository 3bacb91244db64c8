// Package transport frames protocol messages over a byte stream.
//
// Each frame is a 4-byte unsigned big-endian length followed by that many
// bytes of UTF-8 JSON:
//
//	+--------+--------+--------+--------+-----------------------+
//	|          length (uint32 BE)       |  JSON body (length)   |
//	+--------+--------+--------+--------+-----------------------+
//
// The Decoder absorbs arbitrary chunk boundaries from the underlying
// reader and only ever returns whole messages. Malformed input is reported
// as a *protocol.ProtocolError and the stream is not resynchronised; the
// owner of the Channel is expected to tear the connection down.
package transport
