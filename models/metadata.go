package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// MetadataSchemaVersion is written into every Metadata blob so downstream
// consumers can evolve the shape without guessing.
const MetadataSchemaVersion = 1

// Metadata is a structured, versioned key-value blob persisted as JSON.
// It replaces opaque text columns so validation and tests can target fields
// directly.
type Metadata map[string]any

func NewMetadata() Metadata {
	return Metadata{"schema_version": MetadataSchemaVersion}
}

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	if _, ok := m["schema_version"]; !ok {
		m["schema_version"] = MetadataSchemaVersion
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *Metadata) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Metadata", value)
	}
	if len(raw) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(raw, m)
}

func (m Metadata) GetString(key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
