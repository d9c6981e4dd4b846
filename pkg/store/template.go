package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/facewatch/facewatch/pkg/recognition"
)

// FaceTemplate aggregates the normalized face samples captured during an
// enrollment session. It is serialized then encrypted before it reaches
// the database; decrypting and deserializing must reproduce byte-identical
// sample data.
type FaceTemplate struct {
	Samples []recognition.Sample `json:"samples"`
}

// ErrEmptyTemplate is returned when a template contains no samples.
var ErrEmptyTemplate = errors.New("face template has no samples")

// marshalTemplate serializes a template for encryption.
func marshalTemplate(t FaceTemplate) ([]byte, error) {
	if len(t.Samples) == 0 {
		return nil, ErrEmptyTemplate
	}
	for i, s := range t.Samples {
		if !s.Valid() {
			return nil, fmt.Errorf("sample %d has invalid dimensions", i)
		}
	}
	return json.Marshal(t)
}

// unmarshalTemplate deserializes a decrypted template blob.
func unmarshalTemplate(data []byte) (FaceTemplate, error) {
	var t FaceTemplate
	if err := json.Unmarshal(data, &t); err != nil {
		return FaceTemplate{}, fmt.Errorf("failed to decode template: %w", err)
	}
	if len(t.Samples) == 0 {
		return FaceTemplate{}, ErrEmptyTemplate
	}
	return t, nil
}
