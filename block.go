package seqfile

import (
	"fmt"
	"io"
)

// maxSubBlock caps the compressed size of a single sub-block; anything
// larger is treated as corruption.
const maxSubBlock = 1 << 30

// blockBuf owns the scratch buffers of one scan range and serves the
// buffered records of the current block-compressed block. Buffers grow to
// the largest block seen and are never shrunk until the range is closed.
type blockBuf struct {
	raw  []byte // compressed sub-block scratch
	data []byte // decompressed key-lengths, keys, value-lengths and values
	recs []recordSpan
	cur  int
}

// recordSpan locates one buffered key/value pair within blockBuf.data.
// Spans are recomputed for every block, never cached across buffer growth.
type recordSpan struct {
	koff, klen int
	voff, vlen int
}

// next returns the next buffered pair, or false once the current block is
// exhausted and the reader has to fetch the next one.
func (b *blockBuf) next() (key, val []byte, ok bool) {
	if b.cur >= len(b.recs) {
		return nil, nil, false
	}
	s := b.recs[b.cur]
	b.cur++
	return b.data[s.koff : s.koff+s.klen], b.data[s.voff : s.voff+s.vlen], true
}

// read consumes the body of one block from the reader position: four
// back-to-back sub-blocks, each prefixed with its compressed size as a
// vint. The sub-blocks are decompressed into a single scratch buffer and
// the key-lengths and value-lengths sections are walked to materialize the
// buffered record spans. The preceding sync has already been consumed by
// the reader.
func (b *blockBuf) read(r *Reader) error {
	b.recs = b.recs[:0]
	b.cur = 0
	b.data = b.data[:0]

	// section boundaries within b.data after decompression
	var mark [5]int
	for i := 0; i < 4; i++ {
		sz, err := r.readVInt()
		if err != nil {
			return err
		}
		if sz < 0 || sz > maxSubBlock {
			return r.errAt(r.pos, fmt.Errorf("%w: sub-block size %d", ErrBadRecord, sz))
		}

		b.raw = grow(b.raw, int(sz))
		if n, err := r.r.ReadAt(b.raw, r.pos); n != int(sz) {
			if err == io.EOF {
				err = ErrTruncated
			}
			return r.errAt(r.pos, err)
		}
		r.pos += sz

		if b.data, err = r.cdc.Decompress(b.data, b.raw); err != nil {
			return r.errAt(r.pos, fmt.Errorf("%w: %v", ErrBadRecord, err))
		}
		mark[i+1] = len(b.data)
	}

	// walk the key-lengths section until it is exhausted; the record
	// count is implicit
	koff := mark[1]
	for lens := b.data[mark[0]:mark[1]]; len(lens) > 0; {
		kl, n, err := DecodeVInt(lens)
		if err != nil {
			return r.errAt(r.pos, err)
		}
		if kl < 0 || koff+int(kl) > mark[2] {
			return r.errAt(r.pos, fmt.Errorf("%w: key length %d", ErrBadRecord, kl))
		}
		b.recs = append(b.recs, recordSpan{koff: koff, klen: int(kl)})
		koff += int(kl)
		lens = lens[n:]
	}
	if koff != mark[2] {
		return r.errAt(r.pos, fmt.Errorf("%w: %d leftover key bytes", ErrBadRecord, mark[2]-koff))
	}

	// the value-lengths section must yield exactly one length per key
	voff, cnt := mark[3], 0
	for lens := b.data[mark[2]:mark[3]]; len(lens) > 0; {
		vl, n, err := DecodeVInt(lens)
		if err != nil {
			return r.errAt(r.pos, err)
		}
		if cnt >= len(b.recs) {
			return r.errAt(r.pos, ErrCountMismatch)
		}
		if vl < 0 || voff+int(vl) > mark[4] {
			return r.errAt(r.pos, fmt.Errorf("%w: value length %d", ErrBadRecord, vl))
		}
		b.recs[cnt].voff = voff
		b.recs[cnt].vlen = int(vl)
		voff += int(vl)
		cnt++
		lens = lens[n:]
	}
	if cnt != len(b.recs) {
		return r.errAt(r.pos, ErrCountMismatch)
	}
	if voff != mark[4] {
		return r.errAt(r.pos, fmt.Errorf("%w: %d leftover value bytes", ErrBadRecord, mark[4]-voff))
	}
	return nil
}

func (b *blockBuf) release() {
	releaseBuffer(b.raw)
	releaseBuffer(b.data)
	b.raw, b.data, b.recs = nil, nil, nil
}
