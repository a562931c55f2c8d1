package seqfile

import (
	"crypto/rand"
	"fmt"
	"io"
)

// WriterOptions define writer specific options.
type WriterOptions struct {
	// Compression selects the record encoding variant.
	// Default: NoCompression.
	Compression Compression

	// CodecClass names the compression codec used by the Record and
	// Block variants.
	// Default: ZlibCodecClass.
	CodecClass string

	// BlockSize is the number of uncompressed key/value bytes buffered
	// before a block is flushed. Only used by the Block variant.
	// Default: 64KiB.
	BlockSize int

	// SyncInterval is the minimum number of bytes written between two
	// sync markers on the None and Record variants.
	// Default: 2000.
	SyncInterval int

	// Metadata is written to the file header in order.
	Metadata []MetadataPair

	// Sync overrides the generated sync marker and must be 16 bytes
	// when set. Useful for deterministic fixtures; leave empty
	// otherwise.
	Sync []byte
}

func (o *WriterOptions) norm() *WriterOptions {
	var oo WriterOptions
	if o != nil {
		oo = *o
	}

	if !oo.Compression.isValid() {
		oo.Compression = NoCompression
	}
	if oo.CodecClass == "" {
		oo.CodecClass = ZlibCodecClass
	}
	if oo.BlockSize < 1 {
		oo.BlockSize = 1 << 16
	}
	if oo.SyncInterval < 1 {
		oo.SyncInterval = 2000
	}
	return &oo
}

// Writer instances append records to a sequence file.
type Writer struct {
	w io.Writer
	o *WriterOptions

	cdc     Codec
	sync    [SyncSize]byte
	off     int64 // bytes written so far
	syncPos int64 // offset right after the last sync marker (or header)
	started bool

	klens, vlens []byte // vint-encoded length sub-blocks
	keys, vals   []byte // concatenated key/value sub-blocks
	nrec         int

	cmp []byte // compressed scratch
	tmp []byte // serialization scratch
}

// NewWriter wraps a writer and returns a Writer.
func NewWriter(w io.Writer, o *WriterOptions) *Writer {
	return &Writer{
		w:   w,
		o:   o.norm(),
		tmp: make([]byte, 0, 2*maxVIntLen),
	}
}

// Append appends a record. On the None and Record variants the key must be
// exactly 4 bytes; the Block variant stores keys of any length.
func (w *Writer) Append(key, value []byte) error {
	if w.tmp == nil {
		return errClosed
	}
	if err := w.start(); err != nil {
		return err
	}

	if w.o.Compression == BlockCompression {
		return w.appendBlock(key, value)
	}
	return w.appendRecord(key, value)
}

// Close flushes any buffered block and closes the writer. An empty file
// still receives a header.
func (w *Writer) Close() error {
	if w.tmp == nil {
		return errClosed
	}
	if err := w.start(); err != nil {
		return err
	}
	if w.o.Compression == BlockCompression {
		if err := w.flushBlock(); err != nil {
			return err
		}
	}
	w.tmp = nil
	return nil
}

// Offset returns the number of bytes written so far.
func (w *Writer) Offset() int64 { return w.off }

// start resolves the codec, picks the sync marker and writes the file
// header. It runs once, before the first record.
func (w *Writer) start() error {
	if w.started {
		return nil
	}

	compressed := w.o.Compression != NoCompression
	if compressed {
		if w.cdc = newCodec(w.o.CodecClass); w.cdc == nil {
			return fmt.Errorf("%w: %q", ErrBadCompression, w.o.CodecClass)
		}
	}

	switch len(w.o.Sync) {
	case SyncSize:
		copy(w.sync[:], w.o.Sync)
	case 0:
		if _, err := rand.Read(w.sync[:]); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: sync must be %d bytes", ErrBadHeader, SyncSize)
	}

	buf := append(w.tmp[:0], magic...)
	buf = appendText(buf, KeyClassName)
	buf = appendText(buf, ValueClassName)
	buf = append(buf, b2i(compressed), b2i(w.o.Compression == BlockCompression))
	if compressed {
		buf = appendText(buf, w.o.CodecClass)
	}
	buf = appendUint32(buf, uint32(len(w.o.Metadata)))
	for _, pair := range w.o.Metadata {
		buf = appendText(buf, pair.Key)
		buf = appendText(buf, pair.Value)
	}
	buf = append(buf, w.sync[:]...)

	w.started = true
	err := w.writeRaw(buf)
	w.tmp = buf[:0]
	w.syncPos = w.off
	return err
}

func (w *Writer) appendRecord(key, value []byte) error {
	if len(key) != keyLength {
		return fmt.Errorf("%w: got %d bytes", ErrKeyLength, len(key))
	}

	if w.o.Compression == RecordCompression {
		var err error
		if w.cmp, err = w.cdc.Compress(w.cmp[:0], value); err != nil {
			return err
		}
		value = w.cmp
	}

	if err := w.maybeSync(); err != nil {
		return err
	}

	buf := appendUint32(w.tmp[:0], uint32(keyLength+len(value)))
	buf = appendUint32(buf, uint32(keyLength))
	buf = append(buf, key...)
	err := w.writeRaw(buf)
	w.tmp = buf[:0]
	if err != nil {
		return err
	}
	return w.writeRaw(value)
}

func (w *Writer) appendBlock(key, value []byte) error {
	w.klens = AppendVInt(w.klens, int64(len(key)))
	w.keys = append(w.keys, key...)
	w.vlens = AppendVInt(w.vlens, int64(len(value)))
	w.vals = append(w.vals, value...)
	w.nrec++

	if len(w.keys)+len(w.vals) >= w.o.BlockSize {
		return w.flushBlock()
	}
	return nil
}

// flushBlock writes the buffered records as one block: a sync marker
// followed by the four individually compressed sub-blocks, each prefixed
// with its compressed size.
func (w *Writer) flushBlock() error {
	if w.nrec == 0 {
		return nil
	}
	if err := w.writeSync(); err != nil {
		return err
	}

	for _, sub := range [4][]byte{w.klens, w.keys, w.vlens, w.vals} {
		var err error
		if w.cmp, err = w.cdc.Compress(w.cmp[:0], sub); err != nil {
			return err
		}

		buf := AppendVInt(w.tmp[:0], int64(len(w.cmp)))
		err = w.writeRaw(buf)
		w.tmp = buf[:0]
		if err != nil {
			return err
		}
		if err := w.writeRaw(w.cmp); err != nil {
			return err
		}
	}

	w.klens, w.keys = w.klens[:0], w.keys[:0]
	w.vlens, w.vals = w.vlens[:0], w.vals[:0]
	w.nrec = 0
	return nil
}

// maybeSync emits a sync marker once at least SyncInterval bytes were
// written since the previous one.
func (w *Writer) maybeSync() error {
	if w.off-w.syncPos < int64(w.o.SyncInterval) {
		return nil
	}
	return w.writeSync()
}

func (w *Writer) writeSync() error {
	buf := appendUint32(w.tmp[:0], ^uint32(0)) // the -1 sentinel
	buf = append(buf, w.sync[:]...)
	err := w.writeRaw(buf)
	w.tmp = buf[:0]
	w.syncPos = w.off
	return err
}

func (w *Writer) writeRaw(p []byte) error {
	n, err := w.w.Write(p)
	w.off += int64(n)
	return err
}

// --------------------------------------------------------------------

func appendText(dst []byte, s string) []byte {
	dst = AppendVInt(dst, int64(len(s)))
	return append(dst, s...)
}

func appendUint32(dst []byte, v uint32) []byte {
	return append(dst, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func b2i(b bool) byte {
	if b {
		return 1
	}
	return 0
}
