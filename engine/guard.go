package engine

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"

	"github.com/datakiln/plotbox/dataset"
)

// datasetBinding is the fixed name the candidate's data copy is bound under.
const datasetBinding = "dataset"

var errMissingResult = errors.New("missing or invalid result")

// bindDataset deep-copies the input dataset and binds the copy into the
// environment. The candidate only ever sees the copy: whatever it does to
// the bound value, the caller's dataset is bit-for-bit unchanged.
func bindDataset(env *Environment, ds *dataset.Dataset) error {
	clone := ds.Clone()
	vm := env.vm
	obj := vm.NewObject()

	if err := obj.Set("rowCount", clone.RowCount()); err != nil {
		return err
	}
	if err := obj.Set("columns", clone.Names()); err != nil {
		return err
	}

	// col returns the live value slice of the copy; in-place writes stay
	// inside this execution.
	err := obj.Set("col", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		col, ok := clone.Column(name)
		if !ok {
			panic(vm.NewTypeError("unknown column: %s", name))
		}
		return vm.ToValue(col.Values)
	})
	if err != nil {
		return err
	}

	aggs := map[string]func([]float64) (float64, bool){
		"mean": dataset.Mean,
		"min":  dataset.Min,
		"max":  dataset.Max,
	}
	for name, fn := range aggs {
		fn := fn
		if err := obj.Set(name, func(call goja.FunctionCall) goja.Value {
			v, ok := fn(aggregateInput(vm, clone, call))
			return statValue(vm, v, ok)
		}); err != nil {
			return err
		}
	}
	err = obj.Set("sum", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(dataset.Sum(aggregateInput(vm, clone, call)))
	})
	if err != nil {
		return err
	}
	err = obj.Set("count", func(call goja.FunctionCall) goja.Value {
		if v := call.Argument(0); !goja.IsUndefined(v) {
			col, ok := clone.Column(v.String())
			if !ok {
				panic(vm.NewTypeError("unknown column: %s", v.String()))
			}
			n := 0
			for _, cell := range col.Values {
				if cell != nil {
					n++
				}
			}
			return vm.ToValue(n)
		}
		return vm.ToValue(clone.RowCount())
	})
	if err != nil {
		return err
	}
	err = obj.Set("head", func(call goja.FunctionCall) goja.Value {
		n := int(floatArg(call, 0, 5))
		return vm.ToValue(tableSpec(headOf(clone, n)))
	})
	if err != nil {
		return err
	}
	err = obj.Set("table", func(goja.FunctionCall) goja.Value {
		return vm.ToValue(tableSpec(clone))
	})
	if err != nil {
		return err
	}

	return vm.Set(datasetBinding, obj)
}

// aggregateInput gathers the numeric values an aggregate works over: the
// named column when given, otherwise every numeric value in the dataset.
func aggregateInput(vm *goja.Runtime, ds *dataset.Dataset, call goja.FunctionCall) []float64 {
	if v := call.Argument(0); !goja.IsUndefined(v) && !goja.IsNull(v) {
		name := v.String()
		col, ok := ds.Column(name)
		if !ok {
			panic(vm.NewTypeError("unknown column: %s", name))
		}
		return dataset.Numbers(col.Values)
	}
	var all []float64
	for _, col := range ds.Columns {
		all = append(all, dataset.Numbers(col.Values)...)
	}
	return all
}

// harvestResult reads the expected result binding after a normal completion
// and normalizes it into an Artifact. An absent binding or an unrecognized
// shape is a runtime failure, not a success with an empty artifact.
func harvestResult(env *Environment, resultVar string) (*Artifact, error) {
	v := env.vm.Get(resultVar)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, fmt.Errorf("%w: no %q binding after execution", errMissingResult, resultVar)
	}
	artifact, err := normalizeArtifact(v.Export())
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errMissingResult, err.Error())
	}
	return artifact, nil
}
