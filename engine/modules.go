package engine

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"time"

	"github.com/dop251/goja"

	"github.com/datakiln/plotbox/dataset"
)

// moduleBuilder constructs a module object inside a specific VM. Modules are
// built lazily per environment so no VM-bound value ever crosses executions.
type moduleBuilder func(vm *goja.Runtime) (*goja.Object, error)

// registryResolver is the default ModuleResolver: it enforces the allow-list
// and serves the in-process module implementations.
type registryResolver struct {
	vm       *goja.Runtime
	allow    *AllowList
	builders map[string]moduleBuilder
	cache    map[string]goja.Value
}

func newRegistryResolver(vm *goja.Runtime, allow *AllowList) *registryResolver {
	return &registryResolver{
		vm:       vm,
		allow:    allow,
		builders: builtinModules(),
		cache:    make(map[string]goja.Value),
	}
}

func (r *registryResolver) Resolve(name string) (goja.Value, error) {
	if !r.allow.ModuleAllowed(name) {
		return nil, fmt.Errorf("%w: %s", ErrModuleBlocked, name)
	}
	if v, ok := r.cache[name]; ok {
		return v, nil
	}
	builder, ok := r.builders[name]
	if !ok {
		builder, ok = r.builders[baseSegment(name)]
	}
	if !ok {
		return nil, fmt.Errorf("module %s is allowed but not provided", name)
	}
	obj, err := builder(r.vm)
	if err != nil {
		return nil, fmt.Errorf("failed to build module %s: %w", name, err)
	}
	r.cache[name] = obj
	return obj, nil
}

func builtinModules() map[string]moduleBuilder {
	return map[string]moduleBuilder{
		"numeric":  numericModule,
		"tabular":  tabularModule,
		"plot":     plotModule,
		"datetime": datetimeModule,
		"re":       regexpModule,
	}
}

// ---------------------------------------------------------------------------
// argument helpers
// ---------------------------------------------------------------------------

func floatsArg(vm *goja.Runtime, call goja.FunctionCall, i int) []float64 {
	arr, ok := call.Argument(i).Export().([]any)
	if !ok {
		panic(vm.NewTypeError("argument %d must be an array", i+1))
	}
	return dataset.Numbers(arr)
}

func floatArg(call goja.FunctionCall, i int, fallback float64) float64 {
	v := call.Argument(i)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return fallback
	}
	return v.ToFloat()
}

func stringArg(vm *goja.Runtime, call goja.FunctionCall, i int) string {
	v := call.Argument(i)
	if goja.IsUndefined(v) {
		panic(vm.NewTypeError("argument %d must be a string", i+1))
	}
	return v.String()
}

func optsArg(call goja.FunctionCall, i int) map[string]any {
	if m, ok := call.Argument(i).Export().(map[string]any); ok {
		return m
	}
	return nil
}

func statValue(vm *goja.Runtime, v float64, ok bool) goja.Value {
	if !ok {
		return goja.Null()
	}
	return vm.ToValue(v)
}

// ---------------------------------------------------------------------------
// numeric
// ---------------------------------------------------------------------------

func numericModule(vm *goja.Runtime) (*goja.Object, error) {
	obj := vm.NewObject()

	stats := map[string]func([]float64) (float64, bool){
		"mean":   dataset.Mean,
		"median": dataset.Median,
		"std":    dataset.Std,
		"min":    dataset.Min,
		"max":    dataset.Max,
	}
	for name, fn := range stats {
		fn := fn
		if err := obj.Set(name, func(call goja.FunctionCall) goja.Value {
			v, ok := fn(floatsArg(vm, call, 0))
			return statValue(vm, v, ok)
		}); err != nil {
			return nil, err
		}
	}

	err := obj.Set("sum", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(dataset.Sum(floatsArg(vm, call, 0)))
	})
	if err != nil {
		return nil, err
	}
	err = obj.Set("quantile", func(call goja.FunctionCall) goja.Value {
		v, ok := dataset.Quantile(floatsArg(vm, call, 0), floatArg(call, 1, 0.5))
		return statValue(vm, v, ok)
	})
	if err != nil {
		return nil, err
	}
	err = obj.Set("round", func(call goja.FunctionCall) goja.Value {
		x := floatArg(call, 0, 0)
		digits := floatArg(call, 1, 0)
		scale := math.Pow(10, digits)
		return vm.ToValue(math.Round(x*scale) / scale)
	})
	if err != nil {
		return nil, err
	}

	unary := map[string]func(float64) float64{
		"abs":   math.Abs,
		"sqrt":  math.Sqrt,
		"floor": math.Floor,
		"ceil":  math.Ceil,
		"log":   math.Log,
		"exp":   math.Exp,
	}
	for name, fn := range unary {
		fn := fn
		if err := obj.Set(name, func(call goja.FunctionCall) goja.Value {
			return vm.ToValue(fn(floatArg(call, 0, 0)))
		}); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

// ---------------------------------------------------------------------------
// tabular
// ---------------------------------------------------------------------------

func tabularModule(vm *goja.Runtime) (*goja.Object, error) {
	obj := vm.NewObject()

	err := obj.Set("fromObject", func(call goja.FunctionCall) goja.Value {
		m, ok := call.Argument(0).Export().(map[string]any)
		if !ok {
			panic(vm.NewTypeError("fromObject expects an object of column arrays"))
		}
		names := make([]string, 0, len(m))
		for name := range m {
			names = append(names, name)
		}
		sort.Strings(names)

		columns := make([]dataset.Column, 0, len(names))
		for _, name := range names {
			values, ok := m[name].([]any)
			if !ok {
				panic(vm.NewTypeError("column %s must be an array", name))
			}
			columns = append(columns, dataset.Column{Name: name, Values: values})
		}
		ds, err := dataset.New(columns...)
		if err != nil {
			panic(vm.NewTypeError("invalid table: %s", err.Error()))
		}
		return vm.ToValue(tableSpec(ds))
	})
	if err != nil {
		return nil, err
	}

	err = obj.Set("select", func(call goja.FunctionCall) goja.Value {
		ds := tableArg(vm, call, 0)
		names, ok := call.Argument(1).Export().([]any)
		if !ok {
			panic(vm.NewTypeError("select expects an array of column names"))
		}
		columns := make([]dataset.Column, 0, len(names))
		for _, n := range names {
			name := fmt.Sprintf("%v", n)
			col, ok := ds.Column(name)
			if !ok {
				panic(vm.NewTypeError("unknown column: %s", name))
			}
			columns = append(columns, *col)
		}
		out, err := dataset.New(columns...)
		if err != nil {
			panic(vm.NewTypeError("invalid selection: %s", err.Error()))
		}
		return vm.ToValue(tableSpec(out))
	})
	if err != nil {
		return nil, err
	}

	err = obj.Set("head", func(call goja.FunctionCall) goja.Value {
		ds := tableArg(vm, call, 0)
		n := int(floatArg(call, 1, 5))
		return vm.ToValue(tableSpec(headOf(ds, n)))
	})
	if err != nil {
		return nil, err
	}

	err = obj.Set("groupBy", func(call goja.FunctionCall) goja.Value {
		ds := tableArg(vm, call, 0)
		keyName := stringArg(vm, call, 1)
		valueName := stringArg(vm, call, 2)
		agg := "sum"
		if v := call.Argument(3); !goja.IsUndefined(v) {
			agg = v.String()
		}
		out, err := groupBy(ds, keyName, valueName, agg)
		if err != nil {
			panic(vm.NewTypeError("%s", err.Error()))
		}
		return vm.ToValue(tableSpec(out))
	})
	if err != nil {
		return nil, err
	}

	return obj, nil
}

func tableArg(vm *goja.Runtime, call goja.FunctionCall, i int) *dataset.Dataset {
	ds, err := datasetFromExport(call.Argument(i).Export())
	if err != nil {
		panic(vm.NewTypeError("argument %d is not a table: %s", i+1, err.Error()))
	}
	return ds
}

func headOf(ds *dataset.Dataset, n int) *dataset.Dataset {
	if n < 0 {
		n = 0
	}
	out := &dataset.Dataset{Columns: make([]dataset.Column, len(ds.Columns))}
	for i, col := range ds.Columns {
		limit := n
		if limit > len(col.Values) {
			limit = len(col.Values)
		}
		values := make([]any, limit)
		copy(values, col.Values[:limit])
		out.Columns[i] = dataset.Column{Name: col.Name, Values: values}
	}
	return out
}

func groupBy(ds *dataset.Dataset, keyName, valueName, agg string) (*dataset.Dataset, error) {
	keyCol, ok := ds.Column(keyName)
	if !ok {
		return nil, fmt.Errorf("unknown column: %s", keyName)
	}
	valueCol, ok := ds.Column(valueName)
	if !ok {
		return nil, fmt.Errorf("unknown column: %s", valueName)
	}

	switch agg {
	case "sum", "mean", "min", "max", "count":
	default:
		return nil, fmt.Errorf("unknown aggregation: %s", agg)
	}

	// count counts rows per group; the other aggregations reduce the numeric
	// cells of the value column and skip anything non-numeric.
	groups := make(map[string][]float64)
	sizes := make(map[string]int)
	for i, k := range keyCol.Values {
		key := fmt.Sprintf("%v", k)
		sizes[key]++
		groups[key] = append(groups[key], dataset.Numbers(valueCol.Values[i:i+1])...)
	}

	order := make([]string, 0, len(sizes))
	for key := range sizes {
		order = append(order, key)
	}
	sort.Strings(order)

	keys := make([]any, 0, len(order))
	values := make([]any, 0, len(order))
	for _, key := range order {
		xs := groups[key]
		var out float64
		switch agg {
		case "sum":
			out = dataset.Sum(xs)
		case "mean":
			out, _ = dataset.Mean(xs)
		case "min":
			out, _ = dataset.Min(xs)
		case "max":
			out, _ = dataset.Max(xs)
		case "count":
			out = float64(sizes[key])
		}
		keys = append(keys, key)
		values = append(values, out)
	}

	return dataset.New(
		dataset.Column{Name: keyName, Values: keys},
		dataset.Column{Name: valueName, Values: values},
	)
}

// ---------------------------------------------------------------------------
// plot
// ---------------------------------------------------------------------------

func plotModule(vm *goja.Runtime) (*goja.Object, error) {
	obj := vm.NewObject()

	xy := []string{"bar", "line", "scatter"}
	for _, mark := range xy {
		mark := mark
		if err := obj.Set(mark, func(call goja.FunctionCall) goja.Value {
			fig := figureSpec(mark, map[string]any{
				"x": call.Argument(0).Export(),
				"y": call.Argument(1).Export(),
			}, optsArg(call, 2))
			return vm.ToValue(fig)
		}); err != nil {
			return nil, err
		}
	}

	err := obj.Set("pie", func(call goja.FunctionCall) goja.Value {
		fig := figureSpec("pie", map[string]any{
			"labels": call.Argument(0).Export(),
			"values": call.Argument(1).Export(),
		}, optsArg(call, 2))
		return vm.ToValue(fig)
	})
	if err != nil {
		return nil, err
	}

	err = obj.Set("histogram", func(call goja.FunctionCall) goja.Value {
		fig := figureSpec("histogram", map[string]any{
			"values": call.Argument(0).Export(),
		}, optsArg(call, 1))
		return vm.ToValue(fig)
	})
	if err != nil {
		return nil, err
	}

	return obj, nil
}

// figureSpec assembles the figure map the classifier recognizes by its
// "mark" key. Options never override the mark or the data fields.
func figureSpec(mark string, fields, opts map[string]any) map[string]any {
	fig := map[string]any{"mark": mark}
	for k, v := range fields {
		fig[k] = v
	}
	for k, v := range opts {
		if k == "mark" {
			continue
		}
		if _, taken := fields[k]; taken {
			continue
		}
		fig[k] = v
	}
	return fig
}

// ---------------------------------------------------------------------------
// datetime
// ---------------------------------------------------------------------------

// datetimeModule exposes parsing and arithmetic on epoch milliseconds. It
// deliberately has no now(): candidate programs must stay deterministic.
func datetimeModule(vm *goja.Runtime) (*goja.Object, error) {
	obj := vm.NewObject()

	layouts := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
		"01/02/2006",
	}

	err := obj.Set("parse", func(call goja.FunctionCall) goja.Value {
		s := stringArg(vm, call, 0)
		for _, layout := range layouts {
			if t, err := time.Parse(layout, s); err == nil {
				return vm.ToValue(float64(t.UnixMilli()))
			}
		}
		return goja.Null()
	})
	if err != nil {
		return nil, err
	}

	err = obj.Set("format", func(call goja.FunctionCall) goja.Value {
		ms := floatArg(call, 0, 0)
		layout := "2006-01-02"
		if v := call.Argument(1); !goja.IsUndefined(v) {
			layout = v.String()
		}
		return vm.ToValue(time.UnixMilli(int64(ms)).UTC().Format(layout))
	})
	if err != nil {
		return nil, err
	}

	err = obj.Set("diffDays", func(call goja.FunctionCall) goja.Value {
		a := time.UnixMilli(int64(floatArg(call, 0, 0)))
		b := time.UnixMilli(int64(floatArg(call, 1, 0)))
		return vm.ToValue(b.Sub(a).Hours() / 24)
	})
	if err != nil {
		return nil, err
	}

	parts := map[string]func(time.Time) int{
		"year":  func(t time.Time) int { return t.Year() },
		"month": func(t time.Time) int { return int(t.Month()) },
		"day":   func(t time.Time) int { return t.Day() },
	}
	for name, fn := range parts {
		fn := fn
		if err := obj.Set(name, func(call goja.FunctionCall) goja.Value {
			t := time.UnixMilli(int64(floatArg(call, 0, 0))).UTC()
			return vm.ToValue(fn(t))
		}); err != nil {
			return nil, err
		}
	}

	return obj, nil
}

// ---------------------------------------------------------------------------
// re
// ---------------------------------------------------------------------------

func regexpModule(vm *goja.Runtime) (*goja.Object, error) {
	obj := vm.NewObject()

	compile := func(pattern string) *regexp.Regexp {
		re, err := regexp.Compile(pattern)
		if err != nil {
			panic(vm.NewTypeError("invalid pattern: %s", err.Error()))
		}
		return re
	}

	err := obj.Set("test", func(call goja.FunctionCall) goja.Value {
		re := compile(stringArg(vm, call, 0))
		return vm.ToValue(re.MatchString(stringArg(vm, call, 1)))
	})
	if err != nil {
		return nil, err
	}

	err = obj.Set("match", func(call goja.FunctionCall) goja.Value {
		re := compile(stringArg(vm, call, 0))
		m := re.FindStringSubmatch(stringArg(vm, call, 1))
		if m == nil {
			return goja.Null()
		}
		return vm.ToValue(m)
	})
	if err != nil {
		return nil, err
	}

	err = obj.Set("replace", func(call goja.FunctionCall) goja.Value {
		re := compile(stringArg(vm, call, 0))
		return vm.ToValue(re.ReplaceAllString(stringArg(vm, call, 1), stringArg(vm, call, 2)))
	})
	if err != nil {
		return nil, err
	}

	err = obj.Set("split", func(call goja.FunctionCall) goja.Value {
		re := compile(stringArg(vm, call, 0))
		return vm.ToValue(re.Split(stringArg(vm, call, 1), -1))
	})
	if err != nil {
		return nil, err
	}

	return obj, nil
}
