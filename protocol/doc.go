// Package protocol implements the server-side state machine for the
// memcached GET text protocol.
//
// The package is the command-processing core of the cache server: an
// incremental parser for request lines and an incremental encoder for
// replies, built for resource-constrained deployments. Every buffer is
// fixed-capacity, no heap allocation happens on the hot path, and all I/O
// goes through the Transport capability so the core never touches a socket.
//
// # Wire Protocol
//
// Requests are text lines whose tokens end at a single space or newline:
//
//	get <key>\n
//
// Replies use literal bytes:
//
//	VALUE <key> <flags> <length>\n<length bytes of value>\r\nEND\r\n   (hit)
//	END\r\n                                                            (miss)
//	ERROR\r\n                                                          (any violation)
//
// A space after a missed key continues the same line with a further key;
// only the first hit is answered. "set" is recognized but rejected with
// RejectNotImplemented until a storage path exists on the wire; note the
// data block a memcached client sends after a set line is not consumed and
// will be tokenized as a next command.
//
// # Driving the Handler
//
// A Handler advances only inside Poll: at most one transmit attempt and one
// receive attempt per call, with a report of whether anything happened.
// Callers loop until idle, then wait for I/O readiness:
//
//	h := protocol.NewHandler(st, nil)
//	for h.Poll(transport) {
//	}
//
// Correctness does not depend on fragmentation: input may arrive one byte
// per receive and replies may leave one byte per transmit, resuming in
// place each time.
//
// # Half-Duplex Rule
//
// While a reply is in flight the peer is expected to be reading, not
// writing. Input received in that window is dropped and counted in
// HandlerStats.DiscardedBytes; after a flush-line error, bytes up to the
// next newline are consumed and counted in FlushedBytes. Both counters make
// the behavior observable instead of silent.
//
// # Errors
//
// Protocol violations are recoverable and connection-local. Every
// RejectReason answers with the same "ERROR\r\n" bytes; no typed error
// crosses the Transport boundary, and malformed input never corrupts the
// store.
package protocol
