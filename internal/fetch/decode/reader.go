package decode

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/edgecomet/fetchmd/internal/fetcherr"
)

// Mode selects behavior when the size limit is reached mid-stream.
type Mode int

const (
	// ModeStrict fails the read when the limit is exceeded.
	ModeStrict Mode = iota
	// ModeTruncate returns the bytes read so far with Truncated=true.
	ModeTruncate
)

// BufferResult is the outcome of ReadBuffer.
type BufferResult struct {
	Buffer    []byte
	Encoding  string // resolved charset label
	Size      int64  // decoded bytes read (pre-truncation when truncated)
	Truncated bool
}

// TextResult is the outcome of ReadText.
type TextResult struct {
	Text      string
	Size      int64
	Truncated bool
}

// ReadBuffer validates and reads the response body: content-encoding
// chain, textual media-type gate, size-bounded streaming read, charset
// resolution and binary rejection. declaredEnc, when non-empty, overrides
// meta-tag detection (but not a BOM). The response body is always closed.
func ReadBuffer(resp *http.Response, url string, maxBytes int64, mode Mode, declaredEnc string) (*BufferResult, error) {
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	mediaType := contentType
	if contentType != "" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil {
			mediaType = mt
		} else {
			mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
		}
	}
	if !isTextualMediaType(mediaType) {
		return nil, fetcherr.UnsupportedMedia("Unsupported content type: %s", mediaType).WithURL(url)
	}

	if maxBytes > 0 && resp.ContentLength > maxBytes {
		return nil, fetcherr.SizeLimit(maxBytes, url)
	}

	body, err := decodeBody(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, fetcherr.From(err).WithURL(url)
	}

	data, truncated, err := readBounded(body, maxBytes, mode)
	if err != nil {
		if errors.Is(err, errSizeExceeded) {
			return nil, fetcherr.SizeLimit(maxBytes, url)
		}
		return nil, fetcherr.From(err).WithURL(url)
	}

	label := resolveEncoding(data, charsetFromContentType(contentType), declaredEnc)
	wide := strings.HasPrefix(label, "utf-16") || strings.HasPrefix(label, "utf-32")

	if format := detectBinary(data, wide); format != "" {
		return nil, fetcherr.UnsupportedMedia("Binary content detected (%s)", format).WithURL(url)
	}

	return &BufferResult{
		Buffer:    data,
		Encoding:  label,
		Size:      int64(len(data)),
		Truncated: truncated,
	}, nil
}

// ReadText is ReadBuffer plus charset decoding to UTF-8.
func ReadText(resp *http.Response, url string, maxBytes int64, mode Mode, declaredEnc string) (*TextResult, error) {
	buf, err := ReadBuffer(resp, url, maxBytes, mode, declaredEnc)
	if err != nil {
		return nil, err
	}
	text := decodeToUTF8(buf.Buffer, buf.Encoding)
	// Drop a surviving UTF-8 BOM.
	text = trimUTF8BOM(text)
	return &TextResult{Text: string(text), Size: buf.Size, Truncated: buf.Truncated}, nil
}

var errSizeExceeded = errors.New("size limit exceeded")

// readBounded streams up to maxBytes (0 = unlimited). In strict mode one
// extra byte is probed to distinguish "exactly at the limit" from
// "over it".
func readBounded(r io.Reader, maxBytes int64, mode Mode) ([]byte, bool, error) {
	if maxBytes <= 0 {
		data, err := io.ReadAll(r)
		return data, false, err
	}

	data, err := io.ReadAll(io.LimitReader(r, maxBytes))
	if err != nil {
		return nil, false, err
	}
	if int64(len(data)) < maxBytes {
		return data, false, nil
	}

	// At the limit: check whether more bytes follow.
	probe := make([]byte, 1)
	n, err := r.Read(probe)
	if n == 0 && (err == io.EOF || err == nil) {
		return data, false, nil
	}
	if n > 0 {
		if mode == ModeStrict {
			return nil, false, errSizeExceeded
		}
		return data, true, nil
	}
	return nil, false, err
}

func trimUTF8BOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xef && data[1] == 0xbb && data[2] == 0xbf {
		return data[3:]
	}
	return data
}
