package engine

import (
	"context"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileTestProgram(t *testing.T, source string) *goja.Program {
	t.Helper()
	prog, err := goja.Compile("candidate.js", source, false)
	require.NoError(t, err)
	return prog
}

func TestRunBoundedCompletes(t *testing.T) {
	env := buildTestEnvironment(t)
	prog := compileTestProgram(t, `var result = 1 + 1;`)

	res := runBounded(context.Background(), env, prog, time.Second)
	assert.Equal(t, rawCompleted, res.outcome)
	assert.Empty(t, res.message)
}

func TestRunBoundedSurfacesRuntimeErrors(t *testing.T) {
	t.Run("ThrownError", func(t *testing.T) {
		env := buildTestEnvironment(t)
		prog := compileTestProgram(t, `throw new Error("bad input");`)

		res := runBounded(context.Background(), env, prog, time.Second)
		assert.Equal(t, rawFailed, res.outcome)
		assert.Contains(t, res.message, "bad input")
	})

	t.Run("ReferenceError", func(t *testing.T) {
		env := buildTestEnvironment(t)
		prog := compileTestProgram(t, `var result = missingFunction();`)

		res := runBounded(context.Background(), env, prog, time.Second)
		assert.Equal(t, rawFailed, res.outcome)
		assert.Contains(t, res.message, "missingFunction")
	})
}

func TestRunBoundedTimesOut(t *testing.T) {
	env := buildTestEnvironment(t)
	prog := compileTestProgram(t, `while (true) {}`)

	start := time.Now()
	res := runBounded(context.Background(), env, prog, 100*time.Millisecond)
	elapsed := time.Since(start)

	assert.Equal(t, rawTimedOut, res.outcome)
	assert.Less(t, elapsed, 2*time.Second, "timeout must return promptly, not wait for the worker")
}

func TestRunBoundedContextCancellation(t *testing.T) {
	env := buildTestEnvironment(t)
	prog := compileTestProgram(t, `while (true) {}`)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	res := runBounded(ctx, env, prog, 10*time.Second)
	assert.Equal(t, rawTimedOut, res.outcome)
}

func TestRunBoundedClearsInterruptAfterCompletion(t *testing.T) {
	env := buildTestEnvironment(t)
	prog := compileTestProgram(t, `var result = 41;`)

	res := runBounded(context.Background(), env, prog, time.Second)
	require.Equal(t, rawCompleted, res.outcome)

	// The VM must remain usable for the harvest step.
	v, err := env.vm.RunString(`result + 1`)
	require.NoError(t, err)
	assert.InDelta(t, 42.0, v.ToFloat(), 1e-9)
}

func TestRuntimeErrorMessage(t *testing.T) {
	env := buildTestEnvironment(t)
	_, err := env.vm.RunString(`throw new TypeError("wrong shape");`)
	require.Error(t, err)

	msg := runtimeErrorMessage(err)
	assert.Contains(t, msg, "wrong shape")
	assert.NotContains(t, msg, "goja", "internal stack detail must not leak")
}
