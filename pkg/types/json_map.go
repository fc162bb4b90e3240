package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONMap stores free-form string metadata inside a TEXT/JSONB column.
type JSONMap map[string]string

// Value implements driver.Valuer.
func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan implements sql.Scanner.
func (j *JSONMap) Scan(value any) error {
	if value == nil {
		*j = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("jsonmap: cannot scan %T", value)
	}
	if len(raw) == 0 {
		*j = nil
		return nil
	}
	var decoded JSONMap
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("jsonmap: %w", err)
	}
	*j = decoded
	return nil
}
