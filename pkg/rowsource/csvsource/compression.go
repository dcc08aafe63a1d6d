package csvsource

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
)

var (
	// ErrUnknownCodec is returned when an unsupported compression codec is specified
	ErrUnknownCodec = errors.New("unknown compression codec")

	// ErrInvalidCompressedData is returned when compressed input cannot be decoded
	ErrInvalidCompressedData = errors.New("invalid compressed data")
)

// Codec names a compression framing
type Codec string

const (
	CodecAuto   Codec = "auto"
	CodecNone   Codec = "none"
	CodecGzip   Codec = "gzip"
	CodecZstd   Codec = "zstd"
	CodecSnappy Codec = "snappy"
)

var (
	gzipMagic   = []byte{0x1f, 0x8b}
	zstdMagic   = []byte{0x28, 0xb5, 0x2f, 0xfd}
	snappyMagic = []byte{0xff, 0x06, 0x00, 0x00, 's', 'N', 'a', 'P', 'p', 'Y'}
)

// ParseCodec maps a configuration name to a Codec. The empty string is auto.
func ParseCodec(name string) (Codec, error) {
	switch c := Codec(name); c {
	case "":
		return CodecAuto, nil
	case CodecAuto, CodecNone, CodecGzip, CodecZstd, CodecSnappy:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCodec, name)
}

// Detect peeks at the start of br and reports the framing it carries.
// Input that matches no known magic number is CodecNone.
func Detect(br *bufio.Reader) (Codec, error) {
	head, err := br.Peek(len(snappyMagic))
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return "", err
	}
	switch {
	case bytes.HasPrefix(head, zstdMagic):
		return CodecZstd, nil
	case bytes.HasPrefix(head, gzipMagic):
		return CodecGzip, nil
	case bytes.HasPrefix(head, snappyMagic):
		return CodecSnappy, nil
	}
	return CodecNone, nil
}

// NewDecompressReader returns a reader that decodes r using codec. CodecAuto
// detects the codec from the first bytes of r.
func NewDecompressReader(r io.Reader, codec Codec) (io.ReadCloser, error) {
	if codec == CodecAuto {
		br := bufio.NewReader(r)
		detected, err := Detect(br)
		if err != nil {
			return nil, err
		}
		r, codec = br, detected
	}

	switch codec {
	case CodecNone:
		return io.NopCloser(r), nil

	case CodecGzip:
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCompressedData, err)
		}
		return gz, nil

	case CodecZstd:
		decoder, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCompressedData, err)
		}
		return &zstdReadCloser{decoder}, nil

	case CodecSnappy:
		return io.NopCloser(snappy.NewReader(r)), nil

	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownCodec, codec)
	}
}

// NewCompressWriter returns a writer that encodes into w using codec
func NewCompressWriter(w io.Writer, codec Codec) (io.WriteCloser, error) {
	switch codec {
	case CodecNone:
		return nopCloser{w}, nil

	case CodecGzip:
		return gzip.NewWriter(w), nil

	case CodecZstd:
		return zstd.NewWriter(w)

	case CodecSnappy:
		return snappy.NewBufferedWriter(w), nil

	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownCodec, codec)
	}
}

// nopCloser is an io.WriteCloser with a no-op Close method
type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// zstdReadCloser wraps a zstd.Decoder to implement io.ReadCloser
type zstdReadCloser struct {
	*zstd.Decoder
}

func (z *zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}
