package internal

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
)

// Page blocks are zlib streams in most archives. Older generations store
// raw DEFLATE data without the two-byte zlib header and Adler-32 trailer.

var flateReaderPool = sync.Pool{
	New: func() any {
		return flate.NewReader(bytes.NewReader(nil))
	},
}

// zlib readers validate their header on construction, so the pool starts
// empty and is filled by returned readers.
var zlibReaderPool sync.Pool

// IsZlibHeader reports whether b begins with a valid RFC 1950 header using
// the DEFLATE method.
func IsZlibHeader(b []byte) bool {
	if len(b) < 2 {
		return false
	}
	cmf, flg := b[0], b[1]
	if cmf&0x0F != 8 || cmf>>4 > 7 {
		return false
	}
	if flg&0x20 != 0 {
		// preset dictionaries are never used by page blocks
		return false
	}
	return (uint16(cmf)<<8|uint16(flg))%31 == 0
}

// Inflate decompresses a page block, picking zlib or raw DEFLATE from its
// first two bytes.
func Inflate(block []byte) ([]byte, error) {
	if len(block) == 0 {
		return nil, fmt.Errorf("empty block")
	}
	if IsZlibHeader(block) {
		return inflateZlib(block)
	}
	return inflateRaw(block)
}

func inflateZlib(block []byte) ([]byte, error) {
	src := bytes.NewReader(block)
	var r io.ReadCloser
	if pooled, ok := zlibReaderPool.Get().(io.ReadCloser); ok {
		if err := pooled.(zlib.Resetter).Reset(src, nil); err != nil {
			zlibReaderPool.Put(pooled)
			return nil, fmt.Errorf("zlib header: %w", err)
		}
		r = pooled
	} else {
		var err error
		if r, err = zlib.NewReader(src); err != nil {
			return nil, fmt.Errorf("zlib header: %w", err)
		}
	}
	defer zlibReaderPool.Put(r)

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("zlib inflate: %w", err)
	}
	return out, nil
}

func inflateRaw(block []byte) ([]byte, error) {
	r := flateReaderPool.Get().(io.ReadCloser)
	defer flateReaderPool.Put(r)
	if err := r.(flate.Resetter).Reset(bytes.NewReader(block), nil); err != nil {
		return nil, fmt.Errorf("deflate reset: %w", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("deflate inflate: %w", err)
	}
	return out, nil
}
