package engine

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestEnvironment(t *testing.T, opts ...EnvironmentOption) *Environment {
	t.Helper()
	env, err := BuildEnvironment(DefaultAllowList(), defaultMaxCallStack, opts...)
	require.NoError(t, err)
	return env
}

func TestBuildEnvironmentRequiresAllowList(t *testing.T) {
	_, err := BuildEnvironment(nil, defaultMaxCallStack)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "allowlist is required")
}

func TestEnvironmentRemovesUnlistedGlobals(t *testing.T) {
	env := buildTestEnvironment(t)

	gone := []string{"Date", "Promise", "Symbol", "globalThis"}
	for _, name := range gone {
		v, err := env.vm.RunString("typeof " + name)
		require.NoError(t, err)
		assert.Equal(t, "undefined", v.String(), "global %s should be removed", name)
	}

	kept := []string{"Math", "JSON", "Object", "Array", "parseInt"}
	for _, name := range kept {
		v, err := env.vm.RunString("typeof " + name)
		require.NoError(t, err)
		assert.NotEqual(t, "undefined", v.String(), "global %s should survive", name)
	}
}

func TestEnvironmentBlockedCallsThrow(t *testing.T) {
	env := buildTestEnvironment(t)

	t.Run("Eval", func(t *testing.T) {
		_, err := env.vm.RunString(`eval("1 + 1")`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disabled")
	})

	t.Run("DottedTarget", func(t *testing.T) {
		_, err := env.vm.RunString(`Object.defineProperty({}, "a", {value: 1})`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disabled")
	})

	t.Run("ReassignedStubStillFails", func(t *testing.T) {
		// Candidates cannot resurrect eval by assignment and then reach the
		// real implementation.
		_, err := env.vm.RunString(`eval = eval; eval("1")`)
		require.Error(t, err)
	})

	t.Run("ComputedGlobalAccess", func(t *testing.T) {
		// Reaching the global object through `this` and indexing with a
		// constructed name still lands on the throwing stub.
		_, err := env.vm.RunString(`var g = this; g["ev" + "al"]("1")`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disabled")
	})
}

func TestEnvironmentRequire(t *testing.T) {
	t.Run("AllowedModuleResolves", func(t *testing.T) {
		env := buildTestEnvironment(t)
		v, err := env.vm.RunString(`require("numeric").mean([1, 2, 3])`)
		require.NoError(t, err)
		assert.InDelta(t, 2.0, v.ToFloat(), 1e-9)
	})

	t.Run("BlockedModuleThrows", func(t *testing.T) {
		env := buildTestEnvironment(t)
		_, err := env.vm.RunString(`require("network_client")`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "network_client")
	})

	t.Run("DynamicBlockedNameThrows", func(t *testing.T) {
		// A name the static pass could not see still hits the resolver.
		env := buildTestEnvironment(t)
		_, err := env.vm.RunString(`require("network" + "_client")`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "module blocked")
	})

	t.Run("ModulesAreCachedPerEnvironment", func(t *testing.T) {
		env := buildTestEnvironment(t)
		v, err := env.vm.RunString(`require("numeric") === require("numeric")`)
		require.NoError(t, err)
		assert.True(t, v.ToBoolean())
	})

	t.Run("CustomResolver", func(t *testing.T) {
		env := buildTestEnvironment(t, WithResolver(blockedResolver{}))
		_, err := env.vm.RunString(`require("numeric")`)
		require.Error(t, err)
	})
}

type blockedResolver struct{}

func (blockedResolver) Resolve(string) (goja.Value, error) {
	return nil, ErrModuleBlocked
}

func TestEnvironmentPrintCapture(t *testing.T) {
	t.Run("PrintAndConsole", func(t *testing.T) {
		env := buildTestEnvironment(t)
		_, err := env.vm.RunString(`
print("hello", 42);
console.log("from console");
console.warn("warned");
`)
		require.NoError(t, err)
		assert.Equal(t, []string{"hello 42", "from console", "warned"}, env.Logs())
	})

	t.Run("TruncatesAtLimit", func(t *testing.T) {
		env := buildTestEnvironment(t, WithMaxLogEntries(2))
		_, err := env.vm.RunString(`
print("one");
print("two");
print("three");
print("four");
`)
		require.NoError(t, err)
		logs := env.Logs()
		require.Len(t, logs, 3)
		assert.Equal(t, "one", logs[0])
		assert.Equal(t, "two", logs[1])
		assert.Equal(t, "... output truncated", logs[2])
	})

	t.Run("TrimsLongLinesOnRuneBoundary", func(t *testing.T) {
		env := buildTestEnvironment(t)

		// Three-byte runes guarantee the byte cap falls mid-character.
		env.appendLog(strings.Repeat("世", maxLogLineBytes))
		logs := env.Logs()
		require.Len(t, logs, 1)
		assert.LessOrEqual(t, len(logs[0]), maxLogLineBytes)
		assert.True(t, utf8.ValidString(logs[0]))
		assert.NotEmpty(t, logs[0])
	})
}

func TestEnvironmentDeterministicRandom(t *testing.T) {
	sample := func() []float64 {
		env := buildTestEnvironment(t)
		v, err := env.vm.RunString(`[Math.random(), Math.random(), Math.random()]`)
		require.NoError(t, err)
		exported, ok := v.Export().([]any)
		require.True(t, ok)
		out := make([]float64, len(exported))
		for i, e := range exported {
			out[i] = e.(float64)
		}
		return out
	}

	assert.Equal(t, sample(), sample(), "identical environments must draw identical sequences")
}

func TestEnvironmentIsolation(t *testing.T) {
	first := buildTestEnvironment(t)
	second := buildTestEnvironment(t)

	_, err := first.vm.RunString(`var leaked = "secret";`)
	require.NoError(t, err)

	v, err := second.vm.RunString(`typeof leaked`)
	require.NoError(t, err)
	assert.Equal(t, "undefined", v.String())
}

func TestEnvironmentCallStackBound(t *testing.T) {
	env, err := BuildEnvironment(DefaultAllowList(), 50)
	require.NoError(t, err)

	_, err = env.vm.RunString(`
function recurse(n) { return recurse(n + 1); }
recurse(0);
`)
	require.Error(t, err)
}
