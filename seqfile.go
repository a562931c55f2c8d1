package seqfile

import "errors"

// magic marks the first four bytes of every sequence file.
var magic = []byte{'S', 'E', 'Q', 6}

const (
	// SyncSize is the byte length of the sync marker which follows the
	// -1 length sentinel throughout the file.
	SyncSize = 16

	// syncSentinel is the record-length value announcing a sync marker
	// instead of a record.
	syncSentinel int32 = -1

	// keyLength is the only valid serialized key length on the record
	// paths. Keys are fixed-width 4-byte identifiers.
	keyLength = 4

	// maxVIntLen is the longest possible vint encoding of an int64.
	maxVIntLen = 10
)

// Class names stored in the file header. Files written with any other
// key/value class are not decodable by this package.
const (
	KeyClassName   = "org.apache.hadoop.io.BytesWritable"
	ValueClassName = "org.apache.hadoop.io.Text"
)

// Codec class names understood by the reader and the writer.
const (
	ZlibCodecClass   = "org.apache.hadoop.io.compress.DefaultCodec"
	GzipCodecClass   = "org.apache.hadoop.io.compress.GzipCodec"
	SnappyCodecClass = "org.apache.hadoop.io.compress.SnappyCodec"
)

var (
	// ErrBadMagic is returned when a file does not start with the
	// sequence file magic.
	ErrBadMagic = errors.New("seqfile: bad magic byte sequence")

	// ErrBadHeader is returned when the file header is structurally
	// invalid or names unexpected key/value classes.
	ErrBadHeader = errors.New("seqfile: malformed file header")

	// ErrBadCompression is returned when a codec class cannot be
	// resolved.
	ErrBadCompression = errors.New("seqfile: bad compression codec")

	// ErrBadRecord is returned when a record or block body is
	// structurally invalid.
	ErrBadRecord = errors.New("seqfile: malformed record")

	// ErrKeyLength is returned when a serialized key length is not the
	// fixed 4 bytes expected on the record paths.
	ErrKeyLength = errors.New("seqfile: unexpected key length")

	// ErrSyncMismatch is returned when a sync marker is expected but
	// the stream holds something else entirely.
	ErrSyncMismatch = errors.New("seqfile: sync marker mismatch")

	// ErrCountMismatch is returned when the key and value counts of a
	// block-compressed block disagree.
	ErrCountMismatch = errors.New("seqfile: block key/value count mismatch")

	// ErrTruncated is returned when the stream ends in the middle of a
	// record, a sync marker or the header.
	ErrTruncated = errors.New("seqfile: truncated input")

	// ErrVIntTruncated is returned when the stream ends before a vint
	// terminates.
	ErrVIntTruncated = errors.New("seqfile: truncated vint")

	// ErrVIntOverflow is returned when a vint does not fit into an
	// int64 value.
	ErrVIntOverflow = errors.New("seqfile: vint overflow")

	errClosed = errors.New("seqfile: is closed")
)

// Compression is the record encoding variant of a file.
type Compression byte

// Supported encoding variants.
const (
	NoCompression Compression = iota
	RecordCompression
	BlockCompression
)

func (c Compression) isValid() bool {
	return c <= BlockCompression
}

// MetadataPair is a single entry of the header metadata section. Entries
// keep the order in which they were written.
type MetadataPair struct {
	Key, Value string
}

// ScanRange is a contiguous byte interval of one file, assigned to exactly
// one worker for independent decoding. It is never mutated once assigned.
type ScanRange struct {
	File   string // file identifier, used for error context only
	Start  int64
	Length int64
}

// End returns the exclusive end offset of the range.
func (s ScanRange) End() int64 { return s.Start + s.Length }
