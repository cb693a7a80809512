package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsCleanCode(t *testing.T) {
	allow := DefaultAllowList()

	t.Run("PlotCode", func(t *testing.T) {
		source := `
var plot = require("plot");
var xs = dataset.col("month");
var ys = dataset.col("sales");
var result = plot.bar(xs, ys, {title: "Sales by month"});
`
		violations := Validate(source, allow, "result")
		assert.Nil(t, violations)
	})

	t.Run("NumericCode", func(t *testing.T) {
		source := `
var numeric = require("numeric");
result = numeric.mean(dataset.col("x"));
`
		violations := Validate(source, allow, "result")
		assert.Nil(t, violations)
	})

	t.Run("DottedModuleName", func(t *testing.T) {
		source := `
var sub = require("plot.subplots");
var result = sub;
`
		violations := Validate(source, allow, "result")
		assert.Nil(t, violations)
	})

	t.Run("LetAndConstBindings", func(t *testing.T) {
		source := `
const numeric = require("numeric");
let result = numeric.sum([1, 2, 3]);
`
		violations := Validate(source, allow, "result")
		assert.Nil(t, violations)
	})

	t.Run("CustomResultVariable", func(t *testing.T) {
		source := `var answer = 42;`
		violations := Validate(source, allow, "answer")
		assert.Nil(t, violations)
	})
}

func TestValidateRejectsDisallowedImports(t *testing.T) {
	allow := DefaultAllowList()

	blocked := []string{
		"network_client",
		"fs",
		"http",
		"child_process",
		"os",
		"net",
		"crypto",
	}
	for _, module := range blocked {
		t.Run(module, func(t *testing.T) {
			source := `var m = require("` + module + `");
var result = 1;`
			violations := Validate(source, allow, "result")
			require.Len(t, violations, 1)
			assert.Equal(t, KindDisallowedImport, violations[0].Kind)
			assert.Equal(t, module, violations[0].Detail)
			assert.Equal(t, 1, violations[0].Line)
		})
	}
}

func TestValidateRejectsBlockedCalls(t *testing.T) {
	allow := DefaultAllowList()

	cases := []struct {
		name   string
		source string
		detail string
	}{
		{
			name:   "Eval",
			source: `var result = eval("1 + 1");`,
			detail: "eval",
		},
		{
			name:   "FunctionConstructor",
			source: `var result = new Function("return 1")();`,
			detail: "Function",
		},
		{
			name:   "SetTimeout",
			source: `setTimeout(function() {}, 100); var result = 1;`,
			detail: "setTimeout",
		},
		{
			name:   "Fetch",
			source: `var result = fetch("http://example.com");`,
			detail: "fetch",
		},
		{
			name:   "DottedTarget",
			source: `Object.defineProperty({}, "a", {}); var result = 1;`,
			detail: "Object.defineProperty",
		},
		{
			name:   "BlockedBaseSegment",
			source: `var result = Reflect.get({}, "a");`,
			detail: "Reflect.get",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			violations := Validate(tc.source, allow, "result")
			require.Len(t, violations, 1)
			assert.Equal(t, KindBlockedCall, violations[0].Kind)
			assert.Equal(t, tc.detail, violations[0].Detail)
		})
	}
}

func TestValidateRejectsBlockedAttributes(t *testing.T) {
	allow := DefaultAllowList()

	t.Run("DotAccess", func(t *testing.T) {
		source := `var result = ({}).__proto__;`
		violations := Validate(source, allow, "result")
		require.Len(t, violations, 1)
		assert.Equal(t, KindBlockedAttribute, violations[0].Kind)
		assert.Equal(t, "__proto__", violations[0].Detail)
	})

	t.Run("BracketStringAccess", func(t *testing.T) {
		source := `var result = ({})["constructor"];`
		violations := Validate(source, allow, "result")
		require.Len(t, violations, 1)
		assert.Equal(t, KindBlockedAttribute, violations[0].Kind)
		assert.Equal(t, "constructor", violations[0].Detail)
	})

	t.Run("Prototype", func(t *testing.T) {
		source := `var result = Array.prototype;`
		violations := Validate(source, allow, "result")
		require.Len(t, violations, 1)
		assert.Equal(t, KindBlockedAttribute, violations[0].Kind)
		assert.Equal(t, "prototype", violations[0].Detail)
	})
}

func TestValidateRequiresResultAssignment(t *testing.T) {
	allow := DefaultAllowList()

	t.Run("NoAssignment", func(t *testing.T) {
		source := `var x = 1 + 1;`
		violations := Validate(source, allow, "result")
		require.Len(t, violations, 1)
		assert.Equal(t, KindMissingResult, violations[0].Kind)
		assert.Contains(t, violations[0].Detail, `"result"`)
	})

	t.Run("EmptySource", func(t *testing.T) {
		violations := Validate("", allow, "result")
		require.Len(t, violations, 1)
		assert.Equal(t, KindMissingResult, violations[0].Kind)
	})

	t.Run("WrongVariable", func(t *testing.T) {
		source := `var output = 1;`
		violations := Validate(source, allow, "result")
		require.Len(t, violations, 1)
		assert.Equal(t, KindMissingResult, violations[0].Kind)
	})

	t.Run("BareAssignmentCounts", func(t *testing.T) {
		source := `result = 1;`
		violations := Validate(source, allow, "result")
		assert.Nil(t, violations)
	})
}

func TestValidateParseError(t *testing.T) {
	allow := DefaultAllowList()

	source := `var result = {;`
	violations := Validate(source, allow, "result")
	require.Len(t, violations, 1)
	assert.Equal(t, KindParseError, violations[0].Kind)
	assert.NotEmpty(t, violations[0].Detail)
}

func TestValidateReportsAllViolationsInOrder(t *testing.T) {
	allow := DefaultAllowList()

	source := `var net = require("network_client");
eval("1");
var p = ({}).__proto__;
`
	violations := Validate(source, allow, "result")
	require.Len(t, violations, 4)

	assert.Equal(t, KindDisallowedImport, violations[0].Kind)
	assert.Equal(t, 1, violations[0].Line)
	assert.Equal(t, KindBlockedCall, violations[1].Kind)
	assert.Equal(t, 2, violations[1].Line)
	assert.Equal(t, KindBlockedAttribute, violations[2].Kind)
	assert.Equal(t, 3, violations[2].Line)
	assert.Equal(t, KindMissingResult, violations[3].Kind)
}

func TestValidateReportsDeclarationViolationsOnce(t *testing.T) {
	allow := DefaultAllowList()

	// var bindings are reachable both through the statement list and the
	// program's hoisted declaration index; only the statement list is walked,
	// so a violation in an initializer is reported exactly once.
	source := `var net = require("network_client");
var result = 1;
`
	violations := Validate(source, allow, "result")
	require.Len(t, violations, 1)
	assert.Equal(t, KindDisallowedImport, violations[0].Kind)
	assert.Equal(t, "network_client", violations[0].Detail)
}

func TestValidateFindsViolationsInNestedScopes(t *testing.T) {
	allow := DefaultAllowList()

	source := `function helper(n) {
	for (var i = 0; i < n; i++) {
		if (i > 1) {
			eval("1");
		}
	}
	return {load: function() { return require("fs"); }};
}
var thunk = () => eval("2");
var result = helper(3);
`
	violations := Validate(source, allow, "result")
	require.Len(t, violations, 3)

	assert.Equal(t, KindBlockedCall, violations[0].Kind)
	assert.Equal(t, "eval", violations[0].Detail)
	assert.Equal(t, 4, violations[0].Line)
	assert.Equal(t, KindDisallowedImport, violations[1].Kind)
	assert.Equal(t, "fs", violations[1].Detail)
	assert.Equal(t, 7, violations[1].Line)
	assert.Equal(t, KindBlockedCall, violations[2].Kind)
	assert.Equal(t, 9, violations[2].Line)
}

func TestValidateDynamicImportPassesStaticCheck(t *testing.T) {
	// A computed module name cannot be resolved statically; the runtime
	// resolver is the authoritative check for it.
	allow := DefaultAllowList()
	source := `var name = "network" + "_client";
var m = require(name);
var result = 1;
`
	violations := Validate(source, allow, "result")
	assert.Nil(t, violations)
}

func TestValidateNeverExecutes(t *testing.T) {
	allow := DefaultAllowList()

	// Top-level throw: validation must not run it.
	source := `throw new Error("boom");
var result = 1;
`
	violations := Validate(source, allow, "result")
	assert.Nil(t, violations)
}
