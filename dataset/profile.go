package dataset

import (
	"fmt"
	"strings"
	"time"
)

// ColumnType is the inferred semantic type of a column.
type ColumnType string

const (
	TypeNumeric     ColumnType = "numeric"
	TypeBoolean     ColumnType = "boolean"
	TypeDatetime    ColumnType = "datetime"
	TypeCategorical ColumnType = "categorical"
	TypeText        ColumnType = "text"
)

// NumericStats summarizes the distribution of a numeric column.
type NumericStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Q25    float64 `json:"q25"`
	Q75    float64 `json:"q75"`
}

// ColumnProfile describes a single column: type, null distribution,
// cardinality and a few sample values.
type ColumnProfile struct {
	Name         string        `json:"name"`
	Type         ColumnType    `json:"type"`
	NullCount    int           `json:"null_count"`
	NullPct      float64       `json:"null_pct"`
	UniqueCount  int           `json:"unique_count"`
	SampleValues []string      `json:"sample_values"`
	Stats        *NumericStats `json:"stats,omitempty"`
}

// Profile describes a whole dataset.
type Profile struct {
	RowCount    int             `json:"row_count"`
	ColumnCount int             `json:"column_count"`
	Columns     []ColumnProfile `json:"columns"`
}

const sampleValueCount = 5

// ProfileOf generates a profile for every column of the dataset.
func ProfileOf(d *Dataset) *Profile {
	p := &Profile{
		RowCount:    d.RowCount(),
		ColumnCount: d.ColumnCount(),
		Columns:     make([]ColumnProfile, 0, d.ColumnCount()),
	}
	for _, col := range d.Columns {
		p.Columns = append(p.Columns, profileColumn(col))
	}
	return p
}

func profileColumn(col Column) ColumnProfile {
	cp := ColumnProfile{
		Name: col.Name,
		Type: InferColumnType(col.Values),
	}

	unique := make(map[string]bool)
	for _, v := range col.Values {
		if v == nil {
			cp.NullCount++
			continue
		}
		s := fmt.Sprintf("%v", v)
		if !unique[s] {
			unique[s] = true
			if len(cp.SampleValues) < sampleValueCount {
				cp.SampleValues = append(cp.SampleValues, s)
			}
		}
	}
	cp.UniqueCount = len(unique)
	if n := len(col.Values); n > 0 {
		cp.NullPct = Round2(float64(cp.NullCount) / float64(n) * 100)
	}

	if cp.Type == TypeNumeric {
		cp.Stats = numericStats(col.Values)
	}
	return cp
}

func numericStats(values []any) *NumericStats {
	xs := Numbers(values)
	if len(xs) == 0 {
		return nil
	}
	mean, _ := Mean(xs)
	median, _ := Median(xs)
	std, _ := Std(xs)
	mn, _ := Min(xs)
	mx, _ := Max(xs)
	q25, _ := Quantile(xs, 0.25)
	q75, _ := Quantile(xs, 0.75)
	return &NumericStats{
		Mean:   Round2(mean),
		Median: Round2(median),
		Std:    Round2(std),
		Min:    Round2(mn),
		Max:    Round2(mx),
		Q25:    Round2(q25),
		Q75:    Round2(q75),
	}
}

// datetimeLayouts are the formats tried when sniffing datetime columns.
var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// InferColumnType infers the semantic type of a column from its values:
// boolean, numeric, datetime, categorical or text.
func InferColumnType(values []any) ColumnType {
	nonNull := 0
	numeric := 0
	boolean := 0
	datetime := 0
	unique := make(map[string]bool)

	for _, v := range values {
		if v == nil {
			continue
		}
		nonNull++
		unique[fmt.Sprintf("%v", v)] = true

		switch t := v.(type) {
		case bool:
			boolean++
		case string:
			if parsesAsTime(t) {
				datetime++
			}
		default:
			if _, ok := asFloat(v); ok {
				numeric++
			}
		}
	}

	if nonNull == 0 {
		return TypeCategorical
	}
	if boolean == nonNull {
		return TypeBoolean
	}
	if numeric == nonNull {
		return TypeNumeric
	}
	if datetime == nonNull {
		return TypeDatetime
	}

	// Categorical vs text: low cardinality means categorical.
	ratio := float64(len(unique)) / float64(nonNull)
	if ratio < 0.5 || len(unique) <= 50 {
		return TypeCategorical
	}
	return TypeText
}

func parsesAsTime(s string) bool {
	for _, layout := range datetimeLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// TextSummary renders the profile as a compact plain-text description
// suitable for inclusion in an LLM prompt.
func (p *Profile) TextSummary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dataset: %d rows x %d columns\n", p.RowCount, p.ColumnCount)
	b.WriteString("Columns:\n")

	for _, col := range p.Columns {
		fmt.Fprintf(&b, "  - %s (%s): %d nulls", col.Name, col.Type, col.NullCount)
		if col.NullPct > 0 {
			fmt.Fprintf(&b, " (%.1f%%)", col.NullPct)
		}
		fmt.Fprintf(&b, ", %d unique", col.UniqueCount)
		if col.Stats != nil {
			fmt.Fprintf(&b, ", range %v-%v, mean %v", col.Stats.Min, col.Stats.Max, col.Stats.Mean)
		}
		if len(col.SampleValues) > 0 {
			n := len(col.SampleValues)
			if n > 3 {
				n = 3
			}
			fmt.Fprintf(&b, ", e.g. [%s]", strings.Join(col.SampleValues[:n], ", "))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
