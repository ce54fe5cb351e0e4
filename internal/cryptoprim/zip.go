package cryptoprim

import (
	"bytes"
	"compress/bzip2"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/dun/munge/internal/munge"
)

// MaxDecompressedLen bounds decompression output (spec §4.7 step 8): a
// hard cap independent of MaxMessageLen so a crafted credential cannot
// force an unbounded allocation before the data_len field is even parsed.
const MaxDecompressedLen = 8 * munge.MaxMessageLen

// ZipEncodeEnabled reports whether t is usable as an *encode-time*
// compression backend in this build. ZLIB is encode-capable; BZLIB is
// recognized on the wire (see ZipDecodeEnabled) but not encode-capable in
// this build because no pure-Go bzip2 encoder exists anywhere in the
// dependency corpus or the standard library (compress/bzip2 is a decoder
// only) -- see DESIGN.md.
func ZipEncodeEnabled(t munge.ZipType) bool {
	if t == munge.ZipNone {
		return true
	}
	return t == munge.ZipZLIB
}

// ZipDecodeEnabled reports whether t can be decompressed by this build.
func ZipDecodeEnabled(t munge.ZipType) bool {
	switch t {
	case munge.ZipNone, munge.ZipZLIB, munge.ZipBZLIB:
		return true
	default:
		return false
	}
}

// Compress runs t's encoder over data. Callers must check
// ZipEncodeEnabled(t) first; Compress returns BadZip otherwise.
func Compress(t munge.ZipType, data []byte) ([]byte, error) {
	switch t {
	case munge.ZipNone:
		return data, nil
	case munge.ZipZLIB:
		var buf bytes.Buffer
		w := zlib.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, munge.WrapError(munge.Snafu, "zlib compress failed", err)
		}
		if err := w.Close(); err != nil {
			return nil, munge.WrapError(munge.Snafu, "zlib compress failed", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, munge.NewError(munge.BadZip, "zip not enabled for encode in this build")
	}
}

// Decompress runs t's decoder over data, enforcing MaxDecompressedLen.
func Decompress(t munge.ZipType, data []byte) ([]byte, error) {
	switch t {
	case munge.ZipNone:
		return data, nil
	case munge.ZipZLIB:
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, munge.WrapError(munge.CredInvalid, "zlib decompress failed", err)
		}
		defer r.Close()
		return boundedReadAll(r)
	case munge.ZipBZLIB:
		r := bzip2.NewReader(bytes.NewReader(data))
		return boundedReadAll(r)
	default:
		return nil, munge.NewError(munge.BadZip, "zip not enabled in this build")
	}
}

func boundedReadAll(r io.Reader) ([]byte, error) {
	lr := io.LimitReader(r, MaxDecompressedLen+1)
	out, err := io.ReadAll(lr)
	if err != nil {
		return nil, munge.WrapError(munge.CredInvalid, "decompress failed", err)
	}
	if len(out) > MaxDecompressedLen {
		return nil, munge.NewError(munge.CredInvalid, "decompressed length exceeds maximum")
	}
	return out, nil
}
