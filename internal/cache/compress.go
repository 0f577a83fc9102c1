package cache

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/snappy"
	"github.com/pierrec/lz4/v4"

	"github.com/edgecomet/fetchmd/internal/common/configtypes"
)

// compressionMinSize is the smallest payload worth compressing. Below it
// the codec overhead outweighs the savings.
const compressionMinSize = 1024

// compress encodes content with the configured algorithm. The returned
// label names the algorithm actually applied ("" when stored raw), so
// decompress does not depend on configuration at read time.
func compress(content []byte, algorithm string) ([]byte, string, error) {
	if len(content) < compressionMinSize {
		return content, "", nil
	}

	switch algorithm {
	case configtypes.CompressionSnappy:
		return snappy.Encode(nil, content), configtypes.CompressionSnappy, nil

	case configtypes.CompressionLZ4:
		// Stream format embeds the uncompressed size.
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(content); err != nil {
			w.Close()
			return nil, "", fmt.Errorf("lz4 compression failed: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, "", fmt.Errorf("lz4 compression close failed: %w", err)
		}
		return buf.Bytes(), configtypes.CompressionLZ4, nil

	default:
		return content, "", nil
	}
}

// decompress reverses compress using the label stored with the entry.
func decompress(content []byte, algorithm string) ([]byte, error) {
	switch algorithm {
	case configtypes.CompressionSnappy:
		decoded, err := snappy.Decode(nil, content)
		if err != nil {
			return nil, fmt.Errorf("snappy decompression failed: %w", err)
		}
		return decoded, nil

	case configtypes.CompressionLZ4:
		decoded, err := io.ReadAll(lz4.NewReader(bytes.NewReader(content)))
		if err != nil {
			return nil, fmt.Errorf("lz4 decompression failed: %w", err)
		}
		return decoded, nil

	default:
		return content, nil
	}
}
