package decode

import (
	"bytes"
	"regexp"
	"strings"

	xcharset "golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
	"golang.org/x/text/transform"
)

// bomKind identifies a detected byte-order mark.
type bomKind int

const (
	bomNone bomKind = iota
	bomUTF8
	bomUTF16LE
	bomUTF16BE
	bomUTF32LE
	bomUTF32BE
)

// detectBOM inspects the first bytes for a byte-order mark. UTF-32 is
// checked before UTF-16 because the UTF-32 LE BOM begins with the UTF-16
// LE one.
func detectBOM(data []byte) bomKind {
	switch {
	case len(data) >= 4 && bytes.Equal(data[:4], []byte{0xff, 0xfe, 0x00, 0x00}):
		return bomUTF32LE
	case len(data) >= 4 && bytes.Equal(data[:4], []byte{0x00, 0x00, 0xfe, 0xff}):
		return bomUTF32BE
	case len(data) >= 3 && bytes.Equal(data[:3], []byte{0xef, 0xbb, 0xbf}):
		return bomUTF8
	case len(data) >= 2 && bytes.Equal(data[:2], []byte{0xff, 0xfe}):
		return bomUTF16LE
	case len(data) >= 2 && bytes.Equal(data[:2], []byte{0xfe, 0xff}):
		return bomUTF16BE
	default:
		return bomNone
	}
}

func (k bomKind) label() string {
	switch k {
	case bomUTF8:
		return "utf-8"
	case bomUTF16LE:
		return "utf-16le"
	case bomUTF16BE:
		return "utf-16be"
	case bomUTF32LE:
		return "utf-32le"
	case bomUTF32BE:
		return "utf-32be"
	default:
		return ""
	}
}

func (k bomKind) isWide() bool { return k >= bomUTF16LE }

var (
	metaCharsetRe = regexp.MustCompile(`(?i)<meta[^>]+charset\s*=\s*["']?\s*([a-zA-Z0-9_.:-]+)`)
	xmlEncodingRe = regexp.MustCompile(`(?i)<\?xml[^>]+encoding\s*=\s*["']([a-zA-Z0-9_.:-]+)["']`)
)

// resolveEncoding picks the effective charset label: BOM beats the HTTP
// charset parameter beats an HTML/XML meta declaration; the default is
// utf-8. data should be the first chunk of the (decompressed) body.
func resolveEncoding(data []byte, httpCharset, declared string) string {
	if bom := detectBOM(data); bom != bomNone {
		return bom.label()
	}
	if httpCharset != "" {
		return strings.ToLower(httpCharset)
	}
	if declared != "" {
		return strings.ToLower(declared)
	}

	// Scan only a bounded prefix for meta declarations.
	head := data
	if len(head) > 4096 {
		head = head[:4096]
	}
	if m := metaCharsetRe.FindSubmatch(head); m != nil {
		return strings.ToLower(string(m[1]))
	}
	if m := xmlEncodingRe.FindSubmatch(head); m != nil {
		return strings.ToLower(string(m[1]))
	}
	return "utf-8"
}

// decodeToUTF8 converts data from the labelled encoding to UTF-8.
// Unknown labels fall back to utf-8 (bytes passed through unchanged).
func decodeToUTF8(data []byte, label string) []byte {
	enc := lookupEncoding(label)
	if enc == nil {
		return data
	}
	decoded, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return data
	}
	return decoded
}

func lookupEncoding(label string) encoding.Encoding {
	switch strings.ToLower(label) {
	case "", "utf-8", "utf8", "ascii", "us-ascii":
		return nil
	case "utf-16le", "utf-16":
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
	case "utf-16be":
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
	case "utf-32le", "utf-32":
		return utf32.UTF32(utf32.LittleEndian, utf32.UseBOM)
	case "utf-32be":
		return utf32.UTF32(utf32.BigEndian, utf32.UseBOM)
	}
	enc, _ := xcharset.Lookup(label)
	return enc
}

// charsetFromContentType extracts the charset parameter of a Content-Type
// header value, if any.
func charsetFromContentType(contentType string) string {
	for _, part := range strings.Split(contentType, ";")[1:] {
		part = strings.TrimSpace(part)
		if value, ok := strings.CutPrefix(strings.ToLower(part), "charset="); ok {
			return strings.Trim(value, `"' `)
		}
	}
	return ""
}
