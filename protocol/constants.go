package protocol

// Protocol limits
//
// The read-side buffers are fixed at these capacities; a token overflowing
// its buffer rejects the request line, it never grows the buffer.
const (
	// MaxCommandLength is the maximum command token length in bytes.
	// The recognized commands ("get", "set") are exactly this long.
	MaxCommandLength = 3

	// MaxKeyLength is the maximum key length in bytes.
	// Keys exceeding this reject the line with "ERROR\r\n".
	MaxKeyLength = 250

	// MaxFlagsDigits is the capacity of the decimal scratch buffer for the
	// flags field. A 32-bit flags value renders to at most 10 digits.
	MaxFlagsDigits = 10

	// MaxLengthDigits is the capacity of the decimal scratch buffer for the
	// value-length field. A 64-bit length renders to at most 20 digits.
	MaxLengthDigits = 20

	// DefaultTransmitBufferSize is the transmit buffer capacity used by
	// NewBufferTransport when none is given.
	DefaultTransmitBufferSize = 100
)

// Command verbs as they appear on the wire.
var (
	verbGet = []byte("get")
	verbSet = []byte("set")
)

// Reply fragments. The hit reply is assembled from these plus the echoed
// key, the rendered flags and length digits, and the raw value bytes:
//
//	VALUE <key> <flags> <length>\n<value>\r\nEND\r\n
var (
	replyError    = []byte("ERROR\r\n")
	replyEnd      = []byte("END\r\n")
	replyDataEnd  = []byte("\r\nEND\r\n")
	valuePrefix   = []byte("VALUE ")
	tokenSpace    = []byte(" ")
	headerNewline = []byte("\n")
)
