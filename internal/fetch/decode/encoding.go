// Package decode turns a raw HTTP response into text: content-encoding
// decompression, a textual media-type gate, size-bounded streaming reads,
// charset resolution and binary-content rejection, in that order.
package decode

import (
	"bufio"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"

	"github.com/edgecomet/fetchmd/internal/fetcherr"
)

// peekSize is how many bytes are sniffed before choosing a decompressor.
const peekSize = 8

// decodeBody wraps body with the decompressor chain implied by the
// Content-Encoding header. Encodings are listed in application order, so
// decoding chains them in reverse. When the payload does not start with
// the magic bytes the outermost encoding implies, the body is treated as
// already decoded and returned unwrapped (some origins lie about
// encodings they never applied).
func decodeBody(body io.Reader, contentEncoding string) (io.Reader, error) {
	encodings, err := parseContentEncoding(contentEncoding)
	if err != nil {
		return nil, err
	}
	if len(encodings) == 0 {
		return body, nil
	}

	buffered := bufio.NewReaderSize(body, 4096)
	head, _ := buffered.Peek(peekSize)

	outermost := encodings[len(encodings)-1]
	if !matchesMagic(head, outermost) {
		return buffered, nil
	}

	reader := io.Reader(buffered)
	for i := len(encodings) - 1; i >= 0; i-- {
		reader, err = wrapDecoder(reader, encodings[i])
		if err != nil {
			return nil, err
		}
	}
	return reader, nil
}

// parseContentEncoding splits the comma-separated header, drops identity
// tokens and rejects anything it cannot decode.
func parseContentEncoding(header string) ([]string, error) {
	if header == "" {
		return nil, nil
	}
	var encodings []string
	for _, token := range strings.Split(header, ",") {
		token = strings.ToLower(strings.TrimSpace(token))
		switch token {
		case "", "identity":
			continue
		case "gzip", "x-gzip", "deflate", "br":
			encodings = append(encodings, token)
		default:
			return nil, fetcherr.UnsupportedMedia("Unsupported content encoding: %s", token)
		}
	}
	return encodings, nil
}

func wrapDecoder(r io.Reader, encoding string) (io.Reader, error) {
	switch encoding {
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fetcherr.UnsupportedMedia("Invalid gzip stream: %v", err)
		}
		return gz, nil
	case "deflate":
		// "deflate" on the wire is zlib-wrapped per RFC 9110, but some
		// origins send raw deflate. The magic probe already confirmed a
		// zlib header when we get here; fall back to raw flate otherwise.
		return &deflateReader{source: r}, nil
	case "br":
		return brotli.NewReader(r), nil
	default:
		return nil, fetcherr.UnsupportedMedia("Unsupported content encoding: %s", encoding)
	}
}

// matchesMagic reports whether the first payload bytes plausibly carry the
// named encoding. Brotli has no magic, so anything that does not look like
// plain text passes the heuristic.
func matchesMagic(head []byte, encoding string) bool {
	switch encoding {
	case "gzip", "x-gzip":
		return len(head) >= 2 && head[0] == 0x1f && head[1] == 0x8b
	case "deflate":
		return isZlibHeader(head) || looksLikeRawDeflate(head)
	case "br":
		return !looksLikeText(head)
	default:
		return false
	}
}

// isZlibHeader checks CM=8 (deflate) and the big-endian header checksum.
func isZlibHeader(head []byte) bool {
	if len(head) < 2 {
		return false
	}
	if head[0]&0x0f != 8 {
		return false
	}
	return (uint16(head[0])<<8|uint16(head[1]))%31 == 0
}

// looksLikeRawDeflate accepts the common first-byte patterns of a raw
// deflate stream (final/stored or fixed-Huffman block headers).
func looksLikeRawDeflate(head []byte) bool {
	if len(head) == 0 {
		return false
	}
	switch head[0] & 0x07 {
	case 0x00, 0x01, 0x02, 0x03, 0x04, 0x05:
		return !looksLikeText(head)
	}
	return false
}

// looksLikeText reports whether the bytes read as printable ASCII or
// leading whitespace, i.e. an origin that stripped its own encoding.
func looksLikeText(head []byte) bool {
	if len(head) == 0 {
		return true
	}
	for _, b := range head {
		if b == '\t' || b == '\n' || b == '\r' || (b >= 0x20 && b < 0x7f) {
			continue
		}
		return false
	}
	return true
}

// deflateReader lazily picks zlib or raw flate on first read.
type deflateReader struct {
	source  io.Reader
	decoder io.Reader
}

func (d *deflateReader) Read(p []byte) (int, error) {
	if d.decoder == nil {
		buffered := bufio.NewReader(d.source)
		head, _ := buffered.Peek(2)
		if isZlibHeader(head) {
			zr, err := zlib.NewReader(buffered)
			if err != nil {
				return 0, err
			}
			d.decoder = zr
		} else {
			d.decoder = flate.NewReader(buffered)
		}
	}
	return d.decoder.Read(p)
}

