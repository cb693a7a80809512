package dataset

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Column is a named, ordered sequence of cell values. Values hold JSON-style
// scalars (float64, string, bool or nil); nested values are tolerated by
// Clone but carry no tabular meaning.
type Column struct {
	Name   string `json:"name"`
	Values []any  `json:"values"`
}

// Dataset is a column-oriented table. All columns have the same length.
type Dataset struct {
	Columns []Column `json:"columns"`
}

// New creates a Dataset from the given columns and validates its shape.
func New(columns ...Column) (*Dataset, error) {
	d := &Dataset{Columns: columns}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// FromJSON decodes a column-oriented JSON document:
//
//	{"columns": [{"name": "x", "values": [1, 2, 3]}]}
func FromJSON(data []byte) (*Dataset, error) {
	var d Dataset
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to decode dataset: %w", err)
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// ToJSON encodes the dataset in its canonical column-oriented form.
// Column order is preserved, so equal datasets encode to equal bytes.
func (d *Dataset) ToJSON() ([]byte, error) {
	return json.Marshal(d)
}

func (d *Dataset) validate() error {
	seen := make(map[string]bool, len(d.Columns))
	rows := -1
	for i, col := range d.Columns {
		if col.Name == "" {
			return fmt.Errorf("column %d has an empty name", i)
		}
		if seen[col.Name] {
			return fmt.Errorf("duplicate column name: %s", col.Name)
		}
		seen[col.Name] = true
		if rows == -1 {
			rows = len(col.Values)
		} else if len(col.Values) != rows {
			return fmt.Errorf("column %s has %d values, expected %d", col.Name, len(col.Values), rows)
		}
	}
	return nil
}

// RowCount returns the number of rows (zero for an empty dataset).
func (d *Dataset) RowCount() int {
	if len(d.Columns) == 0 {
		return 0
	}
	return len(d.Columns[0].Values)
}

// ColumnCount returns the number of columns.
func (d *Dataset) ColumnCount() int {
	return len(d.Columns)
}

// Names returns the column names in order.
func (d *Dataset) Names() []string {
	names := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		names[i] = col.Name
	}
	return names
}

// Column returns the column with the given name.
func (d *Dataset) Column(name string) (*Column, bool) {
	for i := range d.Columns {
		if d.Columns[i].Name == name {
			return &d.Columns[i], true
		}
	}
	return nil, false
}

// Clone returns a deep, independent copy of the dataset. Mutations of the
// copy (including in-place writes to its value slices) are never observable
// through the original.
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{Columns: make([]Column, len(d.Columns))}
	for i, col := range d.Columns {
		values := make([]any, len(col.Values))
		for j, v := range col.Values {
			values[j] = copyValue(v)
		}
		out.Columns[i] = Column{Name: col.Name, Values: values}
	}
	return out
}

// Equal reports whether two datasets have identical columns and values.
func (d *Dataset) Equal(other *Dataset) bool {
	if other == nil || len(d.Columns) != len(other.Columns) {
		return false
	}
	return d.Fingerprint() == other.Fingerprint()
}

// Fingerprint returns a hex-encoded sha256 of the canonical JSON encoding.
// Two datasets with the same columns and values share a fingerprint.
func (d *Dataset) Fingerprint() string {
	data, err := d.ToJSON()
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func copyValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = copyValue(e)
		}
		return out
	default:
		// Scalars are immutable; copy by value.
		return v
	}
}
