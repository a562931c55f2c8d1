package seqfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

// searchWindow is the read size used by the forward sync search.
const searchWindow = 64 << 10

// Reader decodes the records of a single scan range. A Reader is owned and
// driven by exactly one goroutine; independent ranges over the same file
// use separate Reader instances with no shared state.
type Reader struct {
	r   io.ReaderAt
	hdr *Header
	rng ScanRange
	cdc Codec // nil unless the file is compressed

	pos int64 // next read offset within the file
	end int64 // exclusive end of the scan range

	key, val []byte // current record, views into scratch buffers
	err      error
	done     bool
	resyncs  int

	blk *blockBuf // block-compressed files only
	rec []byte    // record scratch, non-block paths
	dec []byte    // decompressed value scratch, record compression
}

// NewReader opens a reader over one scan range of f. The file header is
// re-read for every range. If the range does not start at the beginning of
// the file, the first record is located by scanning forward for the next
// sync marker; a range that holds no marker simply owns zero records.
func NewReader(f io.ReaderAt, rng ScanRange) (*Reader, error) {
	hdr, err := ReadHeader(f)
	if err != nil {
		if rng.File != "" {
			err = fmt.Errorf("%w (%s)", err, rng.File)
		}
		return nil, err
	}

	r := &Reader{
		r:   f,
		hdr: hdr,
		rng: rng,
		end: rng.End(),
	}
	if hdr.Compressed {
		r.cdc = newCodec(hdr.CodecClass)
	}
	if hdr.BlockCompressed {
		r.blk = new(blockBuf)
	}

	if rng.Start == 0 {
		r.pos = hdr.Size
	} else if pos, ok, err := r.findSync(rng.Start); err != nil {
		return nil, err
	} else if ok {
		r.pos = pos
	} else {
		r.done = true
	}
	return r, nil
}

// Header returns the decoded file header.
func (r *Reader) Header() *Header { return r.hdr }

// Key returns the serialized key of the current record. The returned slice
// is a temporary buffer and must be copied if used beyond the next cursor
// move.
func (r *Reader) Key() []byte { return r.key }

// Value returns the value of the current record. Like Key, the returned
// slice is only valid until the next cursor move.
func (r *Reader) Value() []byte { return r.val }

// Pos returns the current read offset within the file.
func (r *Reader) Pos() int64 { return r.pos }

// Resyncs reports how many times corruption forced the reader to abandon
// its position and skip ahead to the next valid sync marker.
func (r *Reader) Resyncs() int { return r.resyncs }

// Err exposes reader errors, if any. It returns nil when the scan range
// was cleanly exhausted.
func (r *Reader) Err() error { return r.err }

// Next advances the cursor to the next record owned by the scan range and
// returns true if successful. It returns false at the end of the range or
// on error; use Err to tell the two apart.
func (r *Reader) Next() bool {
	if r.err != nil || r.done {
		return false
	}
	if r.hdr.BlockCompressed {
		return r.nextBlock()
	}
	return r.nextRecord()
}

// Close releases the reader buffers. The reader must not be used after
// this method is called.
func (r *Reader) Close() error {
	if r.err == nil {
		r.err = errClosed
	}
	releaseBuffer(r.rec)
	releaseBuffer(r.dec)
	r.rec, r.dec, r.key, r.val = nil, nil, nil, nil
	if r.blk != nil {
		r.blk.release()
	}
	return nil
}

// --------------------------------------------------------------------

// nextRecord decodes one record on the uncompressed and record-compressed
// paths. The length field of each entry is either a genuine record length
// or the -1 sentinel announcing a sync marker; the scan ends at the first
// marker located at or past the end of the range.
func (r *Reader) nextRecord() bool {
	var pre [4]byte
	for {
		start := r.pos

		switch n, err := r.r.ReadAt(pre[:], start); {
		case n == len(pre):
		case err == io.EOF && n == 0:
			r.done = true // clean end of file on a record boundary
			return false
		case err == io.EOF:
			r.err = r.errAt(start, ErrTruncated)
			return false
		default:
			r.err = r.errAt(start, err)
			return false
		}

		recLen := int32(binary.BigEndian.Uint32(pre[:]))
		if recLen == syncSentinel {
			if start >= r.end {
				r.done = true // the next range picks up from this marker
				return false
			}
			if !r.consumeSync(start) {
				return false
			}
			continue
		}
		if recLen < keyLength {
			r.err = r.errAt(start, fmt.Errorf("%w: record length %d", ErrBadRecord, recLen))
			return false
		}

		if n, err := r.r.ReadAt(pre[:], start+4); n != len(pre) {
			if err == io.EOF {
				err = ErrTruncated
			}
			r.err = r.errAt(start+4, err)
			return false
		}
		if kn := int32(binary.BigEndian.Uint32(pre[:])); kn != keyLength {
			r.err = r.errAt(start+4, fmt.Errorf("%w: %d", ErrKeyLength, kn))
			return false
		}

		r.rec = grow(r.rec, int(recLen))
		if n, err := r.r.ReadAt(r.rec, start+8); n != int(recLen) {
			if err == io.EOF {
				err = ErrTruncated
			}
			r.err = r.errAt(start+8, err)
			return false
		}
		r.pos = start + 8 + int64(recLen)
		r.key = r.rec[:keyLength]

		body := r.rec[keyLength:]
		if r.hdr.Compressed {
			var err error
			if r.dec, err = r.cdc.Decompress(r.dec[:0], body); err != nil {
				r.err = r.errAt(start+8, fmt.Errorf("%w: %v", ErrBadRecord, err))
				return false
			}
			r.val = r.dec
		} else {
			r.val = body
		}
		return true
	}
}

// nextBlock serves buffered records of the current block-compressed block
// and reads the next block once the current one is exhausted. Every block
// is preceded by a sync marker.
func (r *Reader) nextBlock() bool {
	for {
		if k, v, ok := r.blk.next(); ok {
			r.key, r.val = k, v
			return true
		}

		var pre [4]byte
		start := r.pos

		switch n, err := r.r.ReadAt(pre[:], start); {
		case n == len(pre):
		case err == io.EOF && n == 0:
			r.done = true
			return false
		case err == io.EOF:
			r.err = r.errAt(start, ErrTruncated)
			return false
		default:
			r.err = r.errAt(start, err)
			return false
		}

		if int32(binary.BigEndian.Uint32(pre[:])) != syncSentinel {
			r.err = r.errAt(start, fmt.Errorf("%w: expected sync before block", ErrSyncMismatch))
			return false
		}
		if start >= r.end {
			r.done = true // the next range picks up from this marker
			return false
		}
		if !r.consumeSync(start) {
			return false
		}

		if err := r.blk.read(r); err != nil {
			r.err = err
			return false
		}
	}
}

// consumeSync validates the 16-byte marker whose sentinel starts at off and
// advances just past it. A mismatching marker is treated as file corruption:
// the reader abandons the position and resumes the forward search for the
// next valid marker, since other ranges over the same file may still be
// decodable. It returns false when the scan cannot continue.
func (r *Reader) consumeSync(off int64) bool {
	var buf [SyncSize]byte
	for {
		if n, err := r.r.ReadAt(buf[:], off+4); n != SyncSize {
			if err == io.EOF {
				err = ErrTruncated
			}
			r.err = r.errAt(off+4, err)
			return false
		}
		if bytes.Equal(buf[:], r.hdr.Sync[:]) {
			r.pos = off + 4 + SyncSize
			return true
		}

		r.resyncs++
		pos, ok, err := r.findSync(off + 4)
		if err != nil {
			r.err = err
			return false
		} else if !ok {
			r.done = true
			return false
		}
		off = pos // revalidate at the next candidate
	}
}

// findSync scans forward from off for a -1 length sentinel followed by the
// header sync and returns the offset of the first match. It reports false
// when no match starts before the end of the scan range; corrupted markers
// never match and are skipped by the search itself.
func (r *Reader) findSync(off int64) (int64, bool, error) {
	pattern := make([]byte, 4+SyncSize)
	binary.BigEndian.PutUint32(pattern, ^uint32(0)) // the -1 sentinel
	copy(pattern[4:], r.hdr.Sync[:])

	win := fetchBuffer(searchWindow + len(pattern) - 1)
	defer releaseBuffer(win)

	for pos := off; pos < r.end; {
		n, err := r.r.ReadAt(win, pos)
		if err != nil && err != io.EOF {
			return 0, false, r.errAt(pos, err)
		}
		if i := bytes.Index(win[:n], pattern); i >= 0 {
			if p := pos + int64(i); p < r.end {
				return p, true, nil
			}
			return 0, false, nil
		}
		if err == io.EOF || n < len(pattern) {
			break
		}
		// keep a pattern-sized overlap between windows
		pos += int64(n - len(pattern) + 1)
	}
	return 0, false, nil
}

func (r *Reader) readVInt() (int64, error) {
	var buf [maxVIntLen]byte
	n, err := r.r.ReadAt(buf[:], r.pos)
	if err != nil && err != io.EOF {
		return 0, r.errAt(r.pos, err)
	}
	v, used, err := DecodeVInt(buf[:n])
	if err != nil {
		return 0, r.errAt(r.pos, err)
	}
	r.pos += int64(used)
	return v, nil
}

func (r *Reader) errAt(off int64, err error) error {
	if r.rng.File == "" {
		return fmt.Errorf("%w at offset %d", err, off)
	}
	return fmt.Errorf("%w at offset %d of %s", err, off, r.rng.File)
}

// --------------------------------------------------------------------

var bufPool sync.Pool

func fetchBuffer(sz int) []byte {
	if v := bufPool.Get(); v != nil {
		if p := v.([]byte); sz <= cap(p) {
			return p[:sz]
		}
	}
	return make([]byte, sz)
}

func releaseBuffer(p []byte) {
	if cap(p) != 0 {
		bufPool.Put(p[:cap(p)])
	}
}

// grow returns a buffer of length n, doubling the current capacity until
// it fits. Buffers only ever grow within the lifetime of a scan range;
// contents are not preserved.
func grow(buf []byte, n int) []byte {
	if cap(buf) >= n {
		return buf[:n]
	}
	sz := 2 * cap(buf)
	if sz < n {
		sz = n
	}
	releaseBuffer(buf)
	return fetchBuffer(sz)[:n]
}
