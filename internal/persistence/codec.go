package persistence

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/msbolton/conduit/pkg/api"
)

// EncodeEntity serializes a saga record using encoding/gob. Record types are
// plain structs embedding api.Record, so no tags or registration are needed
// here; the concrete type for decoding comes from the registered factory.
func EncodeEntity(e api.Entity) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, fmt.Errorf("encode saga record %T: %w", e, err)
	}
	return buf.Bytes(), nil
}

// DecodeEntity decodes data into a fresh record produced by newRecord.
func DecodeEntity(data []byte, newRecord api.EntityFactory) (api.Entity, error) {
	e := newRecord()
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(e); err != nil {
		return nil, fmt.Errorf("decode saga record %T: %w", e, err)
	}
	return e, nil
}
