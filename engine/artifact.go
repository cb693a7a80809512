package engine

import (
	"fmt"

	"github.com/datakiln/plotbox/dataset"
)

// ArtifactKind classifies the structured output of a successful execution.
type ArtifactKind string

const (
	ArtifactFigure ArtifactKind = "figure"
	ArtifactTable  ArtifactKind = "table"
	ArtifactScalar ArtifactKind = "scalar"
)

// Artifact is the output a candidate program bound to the result variable.
// Beyond shape recognition it is passed through untouched.
type Artifact struct {
	Kind   ArtifactKind     `json:"kind"`
	Figure map[string]any   `json:"figure,omitempty"`
	Table  *dataset.Dataset `json:"table,omitempty"`
	Scalar any              `json:"scalar,omitempty"`
}

// normalizeArtifact maps an exported VM value onto one of the recognized
// artifact shapes: a scalar, a figure spec (object with a "mark" key), or a
// table (object with "columns", or a bare array treated as a single-column
// table). Anything else is an unrecognized result.
func normalizeArtifact(v any) (*Artifact, error) {
	switch t := v.(type) {
	case float64:
		return &Artifact{Kind: ArtifactScalar, Scalar: t}, nil
	case int64:
		return &Artifact{Kind: ArtifactScalar, Scalar: float64(t)}, nil
	case int:
		return &Artifact{Kind: ArtifactScalar, Scalar: float64(t)}, nil
	case string:
		return &Artifact{Kind: ArtifactScalar, Scalar: t}, nil
	case bool:
		return &Artifact{Kind: ArtifactScalar, Scalar: t}, nil
	case map[string]any:
		if _, ok := t["mark"]; ok {
			return &Artifact{Kind: ArtifactFigure, Figure: t}, nil
		}
		if _, ok := t["columns"]; ok {
			ds, err := datasetFromExport(t)
			if err != nil {
				return nil, err
			}
			return &Artifact{Kind: ArtifactTable, Table: ds}, nil
		}
		return nil, fmt.Errorf("object result has neither a figure mark nor table columns")
	case []any:
		ds, err := dataset.New(dataset.Column{Name: "value", Values: t})
		if err != nil {
			return nil, err
		}
		return &Artifact{Kind: ArtifactTable, Table: ds}, nil
	default:
		return nil, fmt.Errorf("result of type %T is not a figure, table or scalar", v)
	}
}

// datasetFromExport rebuilds a Dataset from an exported table spec:
// {"columns": [{"name": ..., "values": [...]}, ...]}.
func datasetFromExport(v any) (*dataset.Dataset, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("table must be an object with a columns array")
	}
	rawCols, ok := m["columns"].([]any)
	if !ok {
		return nil, fmt.Errorf("table columns must be an array")
	}
	columns := make([]dataset.Column, 0, len(rawCols))
	for i, rc := range rawCols {
		cm, ok := rc.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("column %d must be an object", i)
		}
		name, _ := cm["name"].(string)
		values, ok := cm["values"].([]any)
		if !ok {
			return nil, fmt.Errorf("column %d values must be an array", i)
		}
		columns = append(columns, dataset.Column{Name: name, Values: values})
	}
	return dataset.New(columns...)
}

// tableSpec renders a Dataset in the exported table form the modules and the
// classifier agree on.
func tableSpec(ds *dataset.Dataset) map[string]any {
	cols := make([]any, 0, len(ds.Columns))
	for _, col := range ds.Columns {
		cols = append(cols, map[string]any{
			"name":   col.Name,
			"values": col.Values,
		})
	}
	return map[string]any{"columns": cols}
}
