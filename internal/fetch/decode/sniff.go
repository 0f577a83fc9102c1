package decode

import (
	"bytes"
	"strings"
)

// binarySignature pairs a magic-byte prefix with a format name for error
// messages. Offset 0 unless noted in the matcher.
type binarySignature struct {
	magic  []byte
	format string
}

// binarySignatures lists formats the decoder rejects outright. Text-ish
// containers (SVG, XML) never match because their prefixes are textual.
var binarySignatures = []binarySignature{
	{[]byte("%PDF"), "pdf"},
	{[]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, "png"},
	{[]byte("GIF87a"), "gif"},
	{[]byte("GIF89a"), "gif"},
	{[]byte{0xff, 0xd8, 0xff}, "jpeg"},
	{[]byte("RIFF"), "riff"},
	{[]byte("BM"), "bmp"},
	{[]byte{0x49, 0x49, 0x2a, 0x00}, "tiff"},
	{[]byte{0x4d, 0x4d, 0x00, 0x2a}, "tiff"},
	{[]byte{0x00, 0x00, 0x01, 0x00}, "ico"},
	{[]byte{'P', 'K', 0x03, 0x04}, "zip"},
	{[]byte{'P', 'K', 0x05, 0x06}, "zip"},
	{[]byte{'P', 'K', 0x07, 0x08}, "zip"},
	{[]byte{0x1f, 0x8b}, "gzip"},
	{[]byte("BZh"), "bzip2"},
	{[]byte("Rar!"), "rar"},
	{[]byte{'7', 'z', 0xbc, 0xaf, 0x27, 0x1c}, "7z"},
	{[]byte{0x7f, 'E', 'L', 'F'}, "elf"},
	{[]byte("MZ"), "pe"},
	{[]byte{0xfe, 0xed, 0xfa, 0xce}, "mach-o"},
	{[]byte{0xfe, 0xed, 0xfa, 0xcf}, "mach-o"},
	{[]byte{0xce, 0xfa, 0xed, 0xfe}, "mach-o"},
	{[]byte{0xcf, 0xfa, 0xed, 0xfe}, "mach-o"},
	{[]byte{0xca, 0xfe, 0xba, 0xbe}, "mach-o-fat"},
	{[]byte{0x00, 'a', 's', 'm'}, "wasm"},
	{[]byte{0x1a, 0x45, 0xdf, 0xa3}, "matroska"},
	{[]byte("FLV"), "flv"},
	{[]byte("ID3"), "mp3"},
	{[]byte{0xff, 0xfb}, "mp3"},
	{[]byte{0xff, 0xf3}, "mp3"},
	{[]byte{0xff, 0xf2}, "mp3"},
	{[]byte("OggS"), "ogg"},
	{[]byte("fLaC"), "flac"},
	{[]byte("MThd"), "midi"},
	{[]byte("wOFF"), "woff"},
	{[]byte("wOF2"), "woff2"},
	{[]byte("OTTO"), "otf"},
	{[]byte{0x00, 0x01, 0x00, 0x00}, "ttf"},
	{[]byte("SQLite format 3\x00"), "sqlite"},
}

// nulScanWindow is the prefix inspected for NUL bytes in non-wide text.
const nulScanWindow = 1000

// detectBinary returns the detected binary format name, or "" when the
// buffer looks textual. MP4 is special-cased: the "ftyp" brand sits at
// offset 4. A NUL byte in the first bytes of a non-UTF-16/32 buffer also
// counts as binary.
func detectBinary(data []byte, wide bool) string {
	for _, sig := range binarySignatures {
		if bytes.HasPrefix(data, sig.magic) {
			return sig.format
		}
	}
	if len(data) >= 8 && bytes.Equal(data[4:8], []byte("ftyp")) {
		return "mp4"
	}
	if !wide {
		window := data
		if len(window) > nulScanWindow {
			window = window[:nulScanWindow]
		}
		if bytes.IndexByte(window, 0x00) >= 0 {
			return "binary"
		}
	}
	return ""
}

// textualMediaTypes lists the exact media types accepted besides text/*.
var textualMediaTypes = map[string]bool{
	"application/json":         true,
	"application/ld+json":      true,
	"application/xml":          true,
	"application/xhtml+xml":    true,
	"application/javascript":   true,
	"application/ecmascript":   true,
	"application/x-javascript": true,
	"application/yaml":         true,
	"application/x-yaml":       true,
	"application/markdown":     true,
}

var textualSuffixes = []string{"+json", "+xml", "+yaml", "+text", "+markdown"}

// isTextualMediaType gates the Content-Type header. An empty media type is
// allowed; binary detection still applies to the payload.
func isTextualMediaType(mediaType string) bool {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if mt == "" {
		return true
	}
	if strings.HasPrefix(mt, "text/") {
		return true
	}
	if textualMediaTypes[mt] {
		return true
	}
	for _, suffix := range textualSuffixes {
		if strings.HasSuffix(mt, suffix) {
			return true
		}
	}
	return false
}
