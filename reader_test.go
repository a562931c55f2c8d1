package seqfile_test

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"sort"

	"github.com/bsm/seqfile"
	"github.com/golang/snappy"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Reader", func() {
	variants := []struct {
		name string
		opts *seqfile.WriterOptions
	}{
		{"uncompressed", &seqfile.WriterOptions{
			Sync: testSync, SyncInterval: 64,
		}},
		{"record-compressed/zlib", &seqfile.WriterOptions{
			Compression: seqfile.RecordCompression, Sync: testSync, SyncInterval: 64,
		}},
		{"record-compressed/gzip", &seqfile.WriterOptions{
			Compression: seqfile.RecordCompression, CodecClass: seqfile.GzipCodecClass, Sync: testSync, SyncInterval: 64,
		}},
		{"record-compressed/snappy", &seqfile.WriterOptions{
			Compression: seqfile.RecordCompression, CodecClass: seqfile.SnappyCodecClass, Sync: testSync, SyncInterval: 64,
		}},
		{"block-compressed/zlib", &seqfile.WriterOptions{
			Compression: seqfile.BlockCompression, BlockSize: 512, Sync: testSync,
		}},
		{"block-compressed/snappy", &seqfile.WriterOptions{
			Compression: seqfile.BlockCompression, CodecClass: seqfile.SnappyCodecClass, BlockSize: 512, Sync: testSync,
		}},
	}

	It("should decode whole files", func() {
		for _, v := range variants {
			data, err := seedFile(300, v.opts)
			Expect(err).NotTo(HaveOccurred(), "for %s", v.name)

			recs, err := scanWhole(data)
			Expect(err).NotTo(HaveOccurred(), "for %s", v.name)
			Expect(recs).To(Equal(seedPairs(300)), "for %s", v.name)
		}
	})

	It("should decode empty files", func() {
		for _, v := range variants {
			data, err := seedFile(0, v.opts)
			Expect(err).NotTo(HaveOccurred(), "for %s", v.name)

			recs, err := scanWhole(data)
			Expect(err).NotTo(HaveOccurred(), "for %s", v.name)
			Expect(recs).To(BeEmpty(), "for %s", v.name)
		}
	})

	It("should partition records exactly across contiguous scan ranges", func() {
		rnd := rand.New(rand.NewSource(1))

		for _, v := range variants {
			data, err := seedFile(300, v.opts)
			Expect(err).NotTo(HaveOccurred(), "for %s", v.name)

			size := int64(len(data))
			fixtures := [][]int64{
				{size / 2},
				{7, 100, 333, 1000},
				{size - 1},
				{1, 2, 3},
			}
			for i := 0; i < 5; i++ { // plus a few random N-way splits
				cuts := make([]int64, 1+rnd.Intn(12))
				for n := range cuts {
					cuts[n] = 1 + rnd.Int63n(size-1)
				}
				sort.Slice(cuts, func(a, b int) bool { return cuts[a] < cuts[b] })
				fixtures = append(fixtures, cuts)
			}

			for _, cuts := range fixtures {
				recs, err := scanSplits(data, cuts)
				Expect(err).NotTo(HaveOccurred(), "for %s, cuts %v", v.name, cuts)
				Expect(recs).To(Equal(seedPairs(300)), "for %s, cuts %v", v.name, cuts)
			}
		}
	})

	It("should skip the straddled record when a range starts mid-value", func() {
		data, err := seedFile(5, &seqfile.WriterOptions{Sync: testSync, SyncInterval: 1})
		Expect(err).NotTo(HaveOccurred())

		syncs := syncOffsets(data, testSync)
		Expect(len(syncs)).To(Equal(4)) // one before each record but the first

		// land inside record 2's value: past its sync, length fields and key
		start := syncs[0] + 20 + 12 + 2
		recs, err := scanRange(data, seqfile.ScanRange{Start: start, Length: int64(len(data)) - start})
		Expect(err).NotTo(HaveOccurred())
		Expect(recs).To(Equal(seedPairs(5)[2:])) // output begins at record 3's key
	})

	It("should search past a corrupted sync marker", func() {
		data, err := seedFile(6, &seqfile.WriterOptions{Sync: testSync, SyncInterval: 1})
		Expect(err).NotTo(HaveOccurred())
		syncs := syncOffsets(data, testSync)
		Expect(len(syncs)).To(Equal(5))

		corrupt := append([]byte{}, data...)
		corrupt[syncs[1]+4+7] ^= 0x80 // flip one byte inside the sync before record 3

		// the boundary search skips the corrupted marker
		start := syncs[1] - 5 // inside record 2
		recs, err := scanRange(corrupt, seqfile.ScanRange{Start: start, Length: int64(len(corrupt)) - start})
		Expect(err).NotTo(HaveOccurred())
		Expect(recs).To(Equal(seedPairs(6)[3:])) // records 4-6, record 3 is unreachable

		// a mid-scan mismatch resumes the forward search instead of failing
		r, err := seqfile.NewReader(bytes.NewReader(corrupt), seqfile.ScanRange{Length: int64(len(corrupt))})
		Expect(err).NotTo(HaveOccurred())
		defer r.Close()

		recs, err = drain(r)
		Expect(err).NotTo(HaveOccurred())
		Expect(recs).To(Equal(append(seedPairs(6)[:2], seedPairs(6)[3:]...)))
		Expect(r.Resyncs()).To(Equal(1))
	})

	It("should own zero records when no valid sync remains", func() {
		data, err := seedFile(6, &seqfile.WriterOptions{Sync: testSync, SyncInterval: 1})
		Expect(err).NotTo(HaveOccurred())
		syncs := syncOffsets(data, testSync)

		corrupt := append([]byte{}, data...)
		corrupt[syncs[4]+4] ^= 0x01 // corrupt the last sync in the file

		start := syncs[4] - 5
		recs, err := scanRange(corrupt, seqfile.ScanRange{Start: start, Length: int64(len(corrupt)) - start})
		Expect(err).NotTo(HaveOccurred())
		Expect(recs).To(BeEmpty())
	})

	It("should fail on key length corruption", func() {
		data, err := seedFile(3, &seqfile.WriterOptions{Sync: testSync})
		Expect(err).NotTo(HaveOccurred())
		hdr, err := seqfile.ReadHeader(bytes.NewReader(data))
		Expect(err).NotTo(HaveOccurred())

		corrupt := append([]byte{}, data...)
		binary.BigEndian.PutUint32(corrupt[hdr.Size+4:], 99)
		_, err = scanWhole(corrupt)
		Expect(err).To(MatchError(seqfile.ErrKeyLength))
	})

	It("should fail on record length corruption", func() {
		data, err := seedFile(3, &seqfile.WriterOptions{Sync: testSync})
		Expect(err).NotTo(HaveOccurred())
		hdr, err := seqfile.ReadHeader(bytes.NewReader(data))
		Expect(err).NotTo(HaveOccurred())

		corrupt := append([]byte{}, data...)
		binary.BigEndian.PutUint32(corrupt[hdr.Size:], 2) // shorter than a key
		_, err = scanWhole(corrupt)
		Expect(err).To(MatchError(seqfile.ErrBadRecord))
	})

	It("should fail on truncated final records", func() {
		data, err := seedFile(10, &seqfile.WriterOptions{Sync: testSync})
		Expect(err).NotTo(HaveOccurred())

		trunc := data[:len(data)-3]
		_, err = scanRange(trunc, seqfile.ScanRange{Length: int64(len(data))})
		Expect(err).To(MatchError(seqfile.ErrTruncated))
	})

	It("should fail when a block is not preceded by a sync", func() {
		data, err := seedFile(10, &seqfile.WriterOptions{
			Compression: seqfile.BlockCompression, Sync: testSync,
		})
		Expect(err).NotTo(HaveOccurred())
		syncs := syncOffsets(data, testSync)

		corrupt := append([]byte{}, data...)
		corrupt[syncs[0]] = 0x00 // the length field is no longer the sentinel
		_, err = scanWhole(corrupt)
		Expect(err).To(MatchError(seqfile.ErrSyncMismatch))
	})

	It("should buffer block records", func() {
		buf := new(bytes.Buffer)
		w := seqfile.NewWriter(buf, &seqfile.WriterOptions{
			Compression: seqfile.BlockCompression, Sync: testSync,
		})
		Expect(w.Append([]byte("ab"), []byte("12345"))).To(Succeed())
		Expect(w.Append([]byte("cde"), []byte("6"))).To(Succeed())
		Expect(w.Append([]byte("fghi"), []byte("78"))).To(Succeed())
		Expect(w.Close()).To(Succeed())

		r, err := seqfile.NewReader(bytes.NewReader(buf.Bytes()), seqfile.ScanRange{Length: int64(buf.Len())})
		Expect(err).NotTo(HaveOccurred())
		defer r.Close()

		recs, err := drain(r)
		Expect(err).NotTo(HaveOccurred())
		Expect(recs).To(Equal([]pair{
			{Key: "ab", Value: "12345"},
			{Key: "cde", Value: "6"},
			{Key: "fghi", Value: "78"},
		}))
		Expect(r.Next()).To(BeFalse())
	})

	It("should fail on block count mismatches", func() {
		buf := new(bytes.Buffer)
		w := seqfile.NewWriter(buf, &seqfile.WriterOptions{
			Compression: seqfile.BlockCompression, CodecClass: seqfile.SnappyCodecClass, Sync: testSync,
		})
		Expect(w.Close()).To(Succeed()) // header only

		// hand-roll a block with two keys but a single value length
		buf.Write([]byte{0xff, 0xff, 0xff, 0xff})
		buf.Write(testSync)
		klens := seqfile.AppendVInt(seqfile.AppendVInt(nil, 2), 2)
		vlens := seqfile.AppendVInt(nil, 1)
		for _, sub := range [][]byte{klens, []byte("aabb"), vlens, []byte("x")} {
			enc := snappy.Encode(nil, sub)
			buf.Write(seqfile.AppendVInt(nil, int64(len(enc))))
			buf.Write(enc)
		}

		_, err := scanWhole(buf.Bytes())
		Expect(err).To(MatchError(seqfile.ErrCountMismatch))
	})

	It("should stop after close", func() {
		data, err := seedFile(10, &seqfile.WriterOptions{Sync: testSync})
		Expect(err).NotTo(HaveOccurred())

		r, err := seqfile.NewReader(bytes.NewReader(data), seqfile.ScanRange{Length: int64(len(data))})
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Next()).To(BeTrue())
		Expect(r.Close()).To(Succeed())
		Expect(r.Next()).To(BeFalse())
		Expect(r.Err()).To(MatchError(`seqfile: is closed`))
	})
})

var _ = Describe("ReadHeader", func() {
	appendText := func(dst []byte, s string) []byte {
		dst = seqfile.AppendVInt(dst, int64(len(s)))
		return append(dst, s...)
	}
	buildHeader := func(keyClass, valueClass string, compressed, blockCompressed byte, codec string) []byte {
		buf := []byte{'S', 'E', 'Q', 6}
		buf = appendText(buf, keyClass)
		buf = appendText(buf, valueClass)
		buf = append(buf, compressed, blockCompressed)
		if codec != "" {
			buf = appendText(buf, codec)
		}
		buf = append(buf, 0, 0, 0, 0) // no metadata
		return append(buf, testSync...)
	}

	It("should read headers", func() {
		data, err := seedFile(1, &seqfile.WriterOptions{
			Compression: seqfile.BlockCompression,
			Sync:        testSync,
			Metadata:    []seqfile.MetadataPair{{Key: "b", Value: "2"}, {Key: "a", Value: "1"}, {Key: "a", Value: ""}},
		})
		Expect(err).NotTo(HaveOccurred())

		hdr, err := seqfile.ReadHeader(bytes.NewReader(data))
		Expect(err).NotTo(HaveOccurred())
		Expect(hdr.KeyClass).To(Equal(seqfile.KeyClassName))
		Expect(hdr.ValueClass).To(Equal(seqfile.ValueClassName))
		Expect(hdr.Compressed).To(BeTrue())
		Expect(hdr.BlockCompressed).To(BeTrue())
		Expect(hdr.CodecClass).To(Equal(seqfile.ZlibCodecClass))
		Expect(hdr.Variant()).To(Equal(seqfile.BlockCompression))
		Expect(hdr.Sync[:]).To(Equal(testSync))
		Expect(hdr.Metadata).To(Equal([]seqfile.MetadataPair{
			{Key: "b", Value: "2"}, {Key: "a", Value: "1"}, {Key: "a", Value: ""},
		}))
	})

	It("should reject bad magic", func() {
		data, err := seedFile(1, nil)
		Expect(err).NotTo(HaveOccurred())
		data[0] = 'X'

		_, err = seqfile.ReadHeader(bytes.NewReader(data))
		Expect(err).To(MatchError(seqfile.ErrBadMagic))
	})

	It("should reject unexpected classes", func() {
		hdr := buildHeader("java.lang.String", seqfile.ValueClassName, 0, 0, "")
		_, err := seqfile.ReadHeader(bytes.NewReader(hdr))
		Expect(err).To(MatchError(seqfile.ErrBadHeader))

		hdr = buildHeader(seqfile.KeyClassName, "java.lang.String", 0, 0, "")
		_, err = seqfile.ReadHeader(bytes.NewReader(hdr))
		Expect(err).To(MatchError(seqfile.ErrBadHeader))
	})

	It("should reject unresolvable codecs", func() {
		hdr := buildHeader(seqfile.KeyClassName, seqfile.ValueClassName, 1, 0, "com.example.LzoCodec")
		_, err := seqfile.ReadHeader(bytes.NewReader(hdr))
		Expect(err).To(MatchError(seqfile.ErrBadCompression))
	})

	It("should reject contradicting compression flags", func() {
		hdr := buildHeader(seqfile.KeyClassName, seqfile.ValueClassName, 0, 1, "")
		_, err := seqfile.ReadHeader(bytes.NewReader(hdr))
		Expect(err).To(MatchError(seqfile.ErrBadHeader))
	})

	It("should reject truncated headers", func() {
		data, err := seedFile(1, nil)
		Expect(err).NotTo(HaveOccurred())

		_, err = seqfile.ReadHeader(bytes.NewReader(data[:9]))
		Expect(err).To(MatchError(seqfile.ErrTruncated))
	})
})
