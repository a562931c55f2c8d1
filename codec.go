package seqfile

import (
	"bytes"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// Codec compresses and decompresses record and block payloads. It mirrors
// the codec classes named in the file header.
type Codec interface {
	// Class is the codec class name stored in the file header.
	Class() string
	// Compress appends the encoded src to dst and returns the result.
	Compress(dst, src []byte) ([]byte, error)
	// Decompress appends the decoded src to dst and returns the result.
	Decompress(dst, src []byte) ([]byte, error)
}

// newCodec resolves a codec by its header class name. Unknown names
// resolve to nil.
func newCodec(class string) Codec {
	switch class {
	case ZlibCodecClass:
		return zlibCodec{}
	case GzipCodecClass:
		return gzipCodec{}
	case SnappyCodecClass:
		return snappyCodec{}
	default:
		return nil
	}
}

// --------------------------------------------------------------------

type snappyCodec struct{}

func (snappyCodec) Class() string { return SnappyCodecClass }

func (snappyCodec) Compress(dst, src []byte) ([]byte, error) {
	tail := dst[len(dst):cap(dst)]
	enc := snappy.Encode(tail, src)
	if len(tail) > 0 && len(enc) > 0 && &tail[0] == &enc[0] {
		return dst[: len(dst)+len(enc) : cap(dst)], nil
	}
	return append(dst, enc...), nil
}

func (snappyCodec) Decompress(dst, src []byte) ([]byte, error) {
	tail := dst[len(dst):cap(dst)]
	dec, err := snappy.Decode(tail, src)
	if err != nil {
		return dst, err
	}
	if len(tail) > 0 && len(dec) > 0 && &tail[0] == &dec[0] {
		return dst[: len(dst)+len(dec) : cap(dst)], nil
	}
	return append(dst, dec...), nil
}

// --------------------------------------------------------------------

type zlibCodec struct{}

func (zlibCodec) Class() string { return ZlibCodecClass }

func (zlibCodec) Compress(dst, src []byte) ([]byte, error) {
	buf := bytes.NewBuffer(dst)
	zw := zlib.NewWriter(buf)
	if _, err := zw.Write(src); err != nil {
		return dst, err
	}
	if err := zw.Close(); err != nil {
		return dst, err
	}
	return buf.Bytes(), nil
}

func (zlibCodec) Decompress(dst, src []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return dst, err
	}
	return inflate(dst, zr)
}

// --------------------------------------------------------------------

type gzipCodec struct{}

func (gzipCodec) Class() string { return GzipCodecClass }

func (gzipCodec) Compress(dst, src []byte) ([]byte, error) {
	buf := bytes.NewBuffer(dst)
	zw := gzip.NewWriter(buf)
	if _, err := zw.Write(src); err != nil {
		return dst, err
	}
	if err := zw.Close(); err != nil {
		return dst, err
	}
	return buf.Bytes(), nil
}

func (gzipCodec) Decompress(dst, src []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(src))
	if err != nil {
		return dst, err
	}
	return inflate(dst, zr)
}

// --------------------------------------------------------------------

func inflate(dst []byte, zr io.ReadCloser) ([]byte, error) {
	buf := bytes.NewBuffer(dst)
	if _, err := io.Copy(buf, zr); err != nil {
		_ = zr.Close()
		return dst, err
	}
	return buf.Bytes(), zr.Close()
}
