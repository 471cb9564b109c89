package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Compile-time interface assertions. These catch method signature drift at
// compile time rather than at runtime. Scan is on the pointer receiver, Value
// on the value receiver.
var (
	_ sql.Scanner   = (*Metadata)(nil)
	_ driver.Valuer = Metadata(nil)
)

// Metadata is the open key-value map carried on a subscription record,
// persisted as a JSONB column. Provider metadata is copied into it verbatim
// on every reconciliation.
type Metadata map[string]string

// Scan implements sql.Scanner for reading a JSONB column. A NULL column
// leaves the map nil.
func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("metadata: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, m)
}

// Value implements driver.Valuer for writing the JSONB column. A nil map is
// stored as NULL.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}
