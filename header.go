package seqfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// maxHeaderString caps class-name and metadata string lengths; anything
// longer is treated as header corruption.
const maxHeaderString = 1 << 16

// Header is the decoded file header. It is read once per scan range and is
// immutable afterwards; independent ranges over the same file each hold
// their own copy.
type Header struct {
	KeyClass        string
	ValueClass      string
	Compressed      bool
	BlockCompressed bool
	CodecClass      string         // set only when Compressed
	Metadata        []MetadataPair // parsed but not interpreted
	Sync            [SyncSize]byte
	Size            int64 // encoded header length; the first record starts here
}

// Variant returns the record encoding variant selected by the header flags.
func (h *Header) Variant() Compression {
	switch {
	case h.BlockCompressed:
		return BlockCompression
	case h.Compressed:
		return RecordCompression
	default:
		return NoCompression
	}
}

// ReadHeader reads and validates the file header at the beginning of r.
// All failures are fatal to the scan range, there is no partial-header
// recovery.
func ReadHeader(r io.ReaderAt) (*Header, error) {
	d := headerDecoder{r: r}

	buf, err := d.read(len(magic))
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(buf, magic) {
		return nil, ErrBadMagic
	}

	hdr := new(Header)
	if hdr.KeyClass, err = d.text(); err != nil {
		return nil, err
	}
	if hdr.ValueClass, err = d.text(); err != nil {
		return nil, err
	}
	if hdr.KeyClass != KeyClassName {
		return nil, fmt.Errorf("%w: unexpected key class %q", ErrBadHeader, hdr.KeyClass)
	}
	if hdr.ValueClass != ValueClassName {
		return nil, fmt.Errorf("%w: unexpected value class %q", ErrBadHeader, hdr.ValueClass)
	}

	if buf, err = d.read(2); err != nil {
		return nil, err
	}
	hdr.Compressed = buf[0] != 0
	hdr.BlockCompressed = buf[1] != 0
	if hdr.BlockCompressed && !hdr.Compressed {
		return nil, fmt.Errorf("%w: block compression without compression flag", ErrBadHeader)
	}

	if hdr.Compressed {
		if hdr.CodecClass, err = d.text(); err != nil {
			return nil, err
		}
		if newCodec(hdr.CodecClass) == nil {
			return nil, fmt.Errorf("%w: %q", ErrBadCompression, hdr.CodecClass)
		}
	}

	// metadata: 4-byte big-endian pair count, then key/value strings
	if buf, err = d.read(4); err != nil {
		return nil, err
	}
	numPairs := int32(binary.BigEndian.Uint32(buf))
	if numPairs < 0 || numPairs > maxHeaderString {
		return nil, fmt.Errorf("%w: metadata pair count %d", ErrBadHeader, numPairs)
	}
	for i := int32(0); i < numPairs; i++ {
		var pair MetadataPair
		if pair.Key, err = d.text(); err != nil {
			return nil, err
		}
		if pair.Value, err = d.text(); err != nil {
			return nil, err
		}
		hdr.Metadata = append(hdr.Metadata, pair)
	}

	if buf, err = d.read(SyncSize); err != nil {
		return nil, err
	}
	copy(hdr.Sync[:], buf)
	hdr.Size = d.pos
	return hdr, nil
}

// --------------------------------------------------------------------

type headerDecoder struct {
	r   io.ReaderAt
	pos int64
	tmp []byte
}

func (d *headerDecoder) read(n int) ([]byte, error) {
	if cap(d.tmp) < n {
		d.tmp = make([]byte, n)
	}
	buf := d.tmp[:n]
	if m, err := d.r.ReadAt(buf, d.pos); m < n {
		if err == nil || err == io.EOF {
			err = ErrTruncated
		}
		return nil, fmt.Errorf("%w: header at offset %d", err, d.pos)
	}
	d.pos += int64(n)
	return buf, nil
}

func (d *headerDecoder) vint() (int64, error) {
	var buf [maxVIntLen]byte
	n, err := d.r.ReadAt(buf[:], d.pos)
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("%w: header at offset %d", err, d.pos)
	}
	v, used, err := DecodeVInt(buf[:n])
	if err != nil {
		return 0, fmt.Errorf("%w: header at offset %d", err, d.pos)
	}
	d.pos += int64(used)
	return v, nil
}

func (d *headerDecoder) text() (string, error) {
	n, err := d.vint()
	if err != nil {
		return "", err
	}
	if n < 0 || n > maxHeaderString {
		return "", fmt.Errorf("%w: string length %d at offset %d", ErrBadHeader, n, d.pos)
	}
	buf, err := d.read(int(n))
	if err != nil {
		return "", err
	}
	return string(buf), nil
}
