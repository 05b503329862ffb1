package protocol

import "errors"

// Key validation failures returned by ValidateKey.
var (
	ErrKeyEmpty       = errors.New("protocol: key is empty")
	ErrKeyTooLong     = errors.New("protocol: key exceeds maximum length of 250 bytes")
	ErrKeyInvalidByte = errors.New("protocol: key contains whitespace or control bytes")
)

// RejectReason identifies why a request line was rejected. Protocol
// violations are connection-local and recoverable: every reason produces the
// same "ERROR\r\n" reply on the wire. Reasons differ only in whether the
// rest of the offending line still has to be discarded before the next
// command (flush-line) and in which stat counter they bump; no reason is
// ever surfaced to the peer as a typed error.
type RejectReason uint8

const (
	// RejectUnknownCommand: the command token is neither "get" nor "set".
	// Flush-line when terminated by a space (the key bytes are still inbound).
	RejectUnknownCommand RejectReason = iota + 1

	// RejectCommandTooLong: a fourth byte arrived before the command
	// terminator. Always flush-line.
	RejectCommandTooLong

	// RejectKeyTooLong: the key overflowed MaxKeyLength. Always flush-line.
	RejectKeyTooLong

	// RejectMissingArgument: a recognized command was terminated by a
	// newline before any key. Never flush-line, the line is already over.
	RejectMissingArgument

	// RejectNotImplemented: "set" is recognized but has no storage path on
	// the wire yet. Flush-line when terminated by a space.
	RejectNotImplemented
)

func (r RejectReason) String() string {
	switch r {
	case RejectUnknownCommand:
		return "unknown_command"
	case RejectCommandTooLong:
		return "command_too_long"
	case RejectKeyTooLong:
		return "key_too_long"
	case RejectMissingArgument:
		return "missing_argument"
	case RejectNotImplemented:
		return "not_implemented"
	default:
		return "unknown"
	}
}
