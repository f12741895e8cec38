package persistence

import (
	"bytes"
	"encoding/gob"
)

// EncodeMetadata serializes step completion metadata using encoding/gob.
// Callers must ensure that values are gob-encodable.
func EncodeMetadata(meta map[string]any) ([]byte, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(meta); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeMetadata deserializes metadata written by EncodeMetadata. Empty
// input yields a nil map.
func DecodeMetadata(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var meta map[string]any
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&meta); err != nil {
		return nil, err
	}
	return meta, nil
}
