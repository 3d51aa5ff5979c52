package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Document columns (matrix, comments, schedule, goals, theme, ...) are stored
// as JSONB. The helpers below back the driver.Valuer / sql.Scanner pairs on
// each column type.

func jsonbValue(v interface{}, label string) (driver.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", label, err)
	}
	return data, nil
}

func jsonbScan(dst interface{}, value interface{}, label string) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for %s", value, label)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("unmarshal %s: %w", label, err)
	}
	return nil
}
