package seqfile_test

import (
	"bytes"

	"github.com/bsm/seqfile"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("VInt", func() {
	It("should round-trip", func() {
		for _, v := range []int64{
			0, 1, 127, 128, 129, 300, 16383, 16384,
			1 << 20, 1<<31 - 1, 1 << 40, 1 << 62, 1<<63 - 1,
		} {
			buf := seqfile.AppendVInt(nil, v)
			got, n, err := seqfile.DecodeVInt(buf)
			Expect(err).NotTo(HaveOccurred(), "for %d", v)
			Expect(n).To(Equal(len(buf)), "for %d", v)
			Expect(got).To(Equal(v), "for %d", v)
		}
	})

	It("should report consumed bytes", func() {
		v, n, err := seqfile.DecodeVInt([]byte{0x05, 0xaa, 0xbb})
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(int64(5)))
		Expect(n).To(Equal(1))

		v, n, err = seqfile.DecodeVInt([]byte{0xac, 0x02, 0xff})
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(int64(300)))
		Expect(n).To(Equal(2))
	})

	It("should fail on truncated input", func() {
		buf := seqfile.AppendVInt(nil, 1<<40)
		for i := 0; i < len(buf); i++ {
			_, _, err := seqfile.DecodeVInt(buf[:i])
			Expect(err).To(MatchError(seqfile.ErrVIntTruncated), "for prefix of %d bytes", i)
		}
	})

	It("should fail on overflow instead of truncating", func() {
		buf := append(bytes.Repeat([]byte{0x80}, 9), 0x02) // 1<<64
		_, _, err := seqfile.DecodeVInt(buf)
		Expect(err).To(MatchError(seqfile.ErrVIntOverflow))

		_, _, err = seqfile.DecodeVInt(bytes.Repeat([]byte{0x80}, 11))
		Expect(err).To(MatchError(seqfile.ErrVIntOverflow))
	})
})
