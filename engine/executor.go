package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// RawOutcome is the executor's verdict before classification. Exactly one
// variant is produced per invocation.
type RawOutcome int

const (
	rawCompleted RawOutcome = iota
	rawFailed
	rawTimedOut
)

type rawResult struct {
	outcome RawOutcome
	message string
}

// runBounded executes a compiled candidate on a dedicated worker goroutine
// under a hard wall-clock budget. When the watchdog fires, the VM is
// interrupted and the call returns immediately; the worker is abandoned
// whether or not the interrupt lands (best-effort in-process bound). The
// call blocks until completion, failure or timeout and never returns early.
func runBounded(ctx context.Context, env *Environment, prog *goja.Program, timeout time.Duration) rawResult {
	done := make(chan rawResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- rawResult{outcome: rawFailed, message: fmt.Sprintf("internal execution panic: %v", r)}
			}
		}()
		if _, err := env.vm.RunProgram(prog); err != nil {
			done <- rawResult{outcome: rawFailed, message: runtimeErrorMessage(err)}
			return
		}
		done <- rawResult{outcome: rawCompleted}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		// A pending interrupt could otherwise fire between completion and
		// timer.Stop and poison a later harvest call.
		env.vm.ClearInterrupt()
		return res
	case <-timer.C:
		env.vm.Interrupt("execution timeout")
		return rawResult{outcome: rawTimedOut}
	case <-ctx.Done():
		env.vm.Interrupt(ctx.Err())
		return rawResult{outcome: rawTimedOut}
	}
}

// runtimeErrorMessage extracts the candidate-facing message from a VM error.
// The script's own value is surfaced; internal goja stack detail is not.
func runtimeErrorMessage(err error) string {
	switch e := err.(type) {
	case *goja.Exception:
		return e.Value().String()
	case *goja.InterruptedError:
		return "execution interrupted"
	default:
		return err.Error()
	}
}
