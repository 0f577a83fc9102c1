package pipeline

import (
	"encoding/json"
	"fmt"
)

// Artifact is the transformed document stored in the cache and returned
// to callers.
type Artifact struct {
	Markdown string            `json:"markdown"`
	Title    string            `json:"title,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// encodeArtifact serializes an artifact for cache storage.
func encodeArtifact(a *Artifact) ([]byte, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("artifact encode failed: %w", err)
	}
	return data, nil
}

// DecodeArtifact deserializes a cached artifact. Callers treat a failure
// as a cache miss.
func DecodeArtifact(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("artifact decode failed: %w", err)
	}
	return &a, nil
}
