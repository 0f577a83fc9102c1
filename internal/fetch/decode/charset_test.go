package decode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestDetectBOM tests byte-order-mark detection
func TestDetectBOM(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected bomKind
	}{
		{"utf-8", []byte{0xef, 0xbb, 0xbf, 'h', 'i'}, bomUTF8},
		{"utf-16le", []byte{0xff, 0xfe, 'h', 0x00}, bomUTF16LE},
		{"utf-16be", []byte{0xfe, 0xff, 0x00, 'h'}, bomUTF16BE},
		{"utf-32le beats utf-16le prefix", []byte{0xff, 0xfe, 0x00, 0x00, 'h'}, bomUTF32LE},
		{"utf-32be", []byte{0x00, 0x00, 0xfe, 0xff, 'h'}, bomUTF32BE},
		{"no bom", []byte("<html>"), bomNone},
		{"empty", nil, bomNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, detectBOM(tt.data))
		})
	}
}

// TestResolveEncodingPrecedence tests BOM > HTTP charset > meta > default
func TestResolveEncodingPrecedence(t *testing.T) {
	tests := []struct {
		name        string
		data        string
		httpCharset string
		declared    string
		expected    string
	}{
		{
			name:        "bom wins over http charset",
			data:        "\xff\xfeh\x00i\x00",
			httpCharset: "iso-8859-1",
			expected:    "utf-16le",
		},
		{
			name:        "http charset wins over meta",
			data:        `<meta charset="shift_jis">`,
			httpCharset: "ISO-8859-1",
			expected:    "iso-8859-1",
		},
		{
			name:     "declared override wins over meta",
			data:     `<meta charset="shift_jis">`,
			declared: "windows-1251",
			expected: "windows-1251",
		},
		{
			name:     "meta charset",
			data:     `<html><head><meta charset="Shift_JIS"></head>`,
			expected: "shift_jis",
		},
		{
			name:     "meta http-equiv style",
			data:     `<meta http-equiv="Content-Type" content="text/html" charset=iso-8859-2>`,
			expected: "iso-8859-2",
		},
		{
			name:     "xml declaration",
			data:     `<?xml version="1.0" encoding="EUC-JP"?><root/>`,
			expected: "euc-jp",
		},
		{
			name:     "default utf-8",
			data:     "<html><body>plain</body></html>",
			expected: "utf-8",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label := resolveEncoding([]byte(tt.data), tt.httpCharset, tt.declared)
			assert.Equal(t, tt.expected, label)
		})
	}
}

// TestDecodeToUTF8 tests charset conversion
func TestDecodeToUTF8(t *testing.T) {
	t.Run("latin-1", func(t *testing.T) {
		// "café" in ISO-8859-1
		decoded := decodeToUTF8([]byte{'c', 'a', 'f', 0xe9}, "iso-8859-1")
		assert.Equal(t, "café", string(decoded))
	})

	t.Run("utf-16le with bom", func(t *testing.T) {
		decoded := decodeToUTF8([]byte{0xff, 0xfe, 'h', 0x00, 'i', 0x00}, "utf-16le")
		assert.Equal(t, "hi", string(decoded))
	})

	t.Run("utf-16be without bom", func(t *testing.T) {
		decoded := decodeToUTF8([]byte{0x00, 'h', 0x00, 'i'}, "utf-16be")
		assert.Equal(t, "hi", string(decoded))
	})

	t.Run("utf-8 passthrough", func(t *testing.T) {
		data := []byte("héllo")
		assert.Equal(t, data, decodeToUTF8(data, "utf-8"))
	})

	t.Run("unknown label passthrough", func(t *testing.T) {
		data := []byte("hello")
		assert.Equal(t, data, decodeToUTF8(data, "x-no-such-charset"))
	})
}

// TestCharsetFromContentType tests charset parameter extraction
func TestCharsetFromContentType(t *testing.T) {
	tests := []struct {
		contentType string
		expected    string
	}{
		{"text/html; charset=utf-8", "utf-8"},
		{"text/html; charset=UTF-8", "utf-8"},
		{`text/html; charset="ISO-8859-1"`, "iso-8859-1"},
		{"text/html;charset=windows-1252", "windows-1252"},
		{"text/html", ""},
		{"application/json; boundary=x", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			assert.Equal(t, tt.expected, charsetFromContentType(tt.contentType))
		})
	}
}
