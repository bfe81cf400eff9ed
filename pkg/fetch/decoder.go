package fetch

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// AcceptEncoding is advertised on every request.
const AcceptEncoding = "gzip, deflate, br"

// bodyReadError marks a failure of the raw response stream, as opposed to a
// failure of the decompression transform layered on top of it.
type bodyReadError struct {
	err error
}

func (e *bodyReadError) Error() string { return "read response body: " + e.err.Error() }
func (e *bodyReadError) Unwrap() error { return e.err }

// trackingReader remembers the first non-EOF error of the wrapped reader.
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF && t.err == nil {
		t.err = err
	}
	return n, err
}

// Decode selects a decompression transform for contentEncoding, consumes r to
// completion and returns the accumulated body. text is only filled for
// EncodingText, with invalid UTF-8 replaced by U+FFFD.
func Decode(r io.Reader, contentEncoding string, enc BodyEncoding) (body []byte, text string, err error) {
	src := &trackingReader{r: r}
	in := bufio.NewReader(src)

	// Bodiless responses (HEAD, 204, 304) may still declare an encoding.
	if _, err := in.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return []byte{}, "", nil
		}
		return nil, "", decodeFailure(src, err)
	}

	out, err := decompressor(in, contentEncoding)
	if err != nil {
		return nil, "", decodeFailure(src, err)
	}
	defer out.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, out); err != nil {
		return nil, "", decodeFailure(src, err)
	}

	body = buf.Bytes()
	if enc == EncodingBinary {
		return body, "", nil
	}
	return body, strings.ToValidUTF8(string(body), "\uFFFD"), nil
}

func decodeFailure(src *trackingReader, err error) error {
	if src.err != nil {
		return &bodyReadError{err: src.err}
	}
	return fmt.Errorf("decode %w", err)
}

// decompressor returns the transform for the declared content encoding.
func decompressor(r io.Reader, contentEncoding string) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "gzip":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return zr, nil
	case "deflate":
		return newDeflateReader(r)
	case "br":
		return io.NopCloser(brotli.NewReader(r)), nil
	default:
		return io.NopCloser(r), nil
	}
}

// newDeflateReader accepts zlib-wrapped deflate, falling back to raw deflate
// when the stream carries no zlib header.
func newDeflateReader(r io.Reader) (io.ReadCloser, error) {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	head, err := br.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("deflate: %w", err)
	}
	if len(head) == 2 && isZlibHeader(head[0], head[1]) {
		zr, err := zlib.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
		return zr, nil
	}
	return flate.NewReader(br), nil
}

func isZlibHeader(cmf, flg byte) bool {
	return cmf&0x0f == 8 && (uint16(cmf)<<8|uint16(flg))%31 == 0
}
