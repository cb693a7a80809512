package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"unicode/utf8"

	"github.com/dop251/goja"
)

// ErrModuleBlocked is returned by resolvers when a candidate requests a
// module outside the allow-list. It is distinguishable from a missing module
// so callers can tell policy rejections from typos.
var ErrModuleBlocked = errors.New("module blocked")

// ModuleResolver intercepts candidate imports. The restrictor binds require()
// to a resolver instead of patching a global import mechanism, which keeps
// the restriction reentrant and testable in isolation.
type ModuleResolver interface {
	Resolve(name string) (goja.Value, error)
}

const (
	defaultMaxCallStack  = 500
	defaultMaxLogEntries = 256
	maxLogLineBytes      = 4096

	// randSeed fixes the VM's random source so identical requests produce
	// equivalent outcomes.
	randSeed = 12345
)

// Environment is the restricted namespace one execution runs in. It is
// constructed fresh per execution and discarded afterwards; nothing about it
// is shared or reused across requests.
type Environment struct {
	vm       *goja.Runtime
	allow    *AllowList
	resolver ModuleResolver

	// logs is written only by the worker goroutine during execution and
	// read only after normal completion, so it carries no lock. An
	// abandoned (timed out) worker may still be writing; Logs must not be
	// called in that case.
	logs    []string
	maxLogs int
	dropped bool
}

// EnvironmentOption customizes environment construction.
type EnvironmentOption func(*Environment)

// WithResolver replaces the default module registry resolver.
func WithResolver(r ModuleResolver) EnvironmentOption {
	return func(e *Environment) {
		e.resolver = r
	}
}

// WithMaxLogEntries bounds the captured print output.
func WithMaxLogEntries(n int) EnvironmentOption {
	return func(e *Environment) {
		if n > 0 {
			e.maxLogs = n
		}
	}
}

// BuildEnvironment constructs a fresh restricted namespace from the shared
// allow-list. The environment is default-deny: every global the allow-list
// does not name is deleted, dangerous primitives are rebound to stubs that
// always fail, printing is redirected to a bounded capture buffer, and
// require() is routed through the module resolver.
func BuildEnvironment(allow *AllowList, maxCallStack int, opts ...EnvironmentOption) (*Environment, error) {
	if allow == nil {
		return nil, fmt.Errorf("allowlist is required")
	}
	if maxCallStack <= 0 {
		maxCallStack = defaultMaxCallStack
	}

	vm := goja.New()
	vm.SetMaxCallStackSize(maxCallStack)

	seeded := rand.New(rand.NewSource(randSeed))
	vm.SetRandSource(func() float64 { return seeded.Float64() })

	env := &Environment{
		vm:      vm,
		allow:   allow,
		maxLogs: defaultMaxLogEntries,
	}
	for _, opt := range opts {
		opt(env)
	}
	if env.resolver == nil {
		env.resolver = newRegistryResolver(vm, allow)
	}

	if err := hardenPrototypes(vm); err != nil {
		return nil, fmt.Errorf("failed to harden prototypes: %w", err)
	}
	if err := restrictGlobals(vm, allow); err != nil {
		return nil, fmt.Errorf("failed to restrict globals: %w", err)
	}
	if err := applyBlockedCallStubs(vm, allow); err != nil {
		return nil, fmt.Errorf("failed to stub blocked calls: %w", err)
	}

	env.bindRequire()
	env.bindPrinting()

	return env, nil
}

// hardenPrototypes freezes the core prototypes before any candidate code can
// pollute them. Runs while the real builtins are still bound.
func hardenPrototypes(vm *goja.Runtime) error {
	_, err := vm.RunString(`(function() {
	try {
		Object.freeze(Object.prototype);
		Object.freeze(Array.prototype);
		Object.freeze(String.prototype);
		Object.freeze(Function.prototype);
	} catch (e) {}
}).call(this);`)
	return err
}

// restrictGlobals deletes every own property of the global object that the
// allow-list does not name. The name snapshot is taken before deletion, so
// the loop keeps working after Object itself disappears.
func restrictGlobals(vm *goja.Runtime, allow *AllowList) error {
	keep := make(map[string]bool, len(allow.Builtins))
	for _, name := range allow.Builtins {
		keep[name] = true
	}
	keepJSON, err := json.Marshal(keep)
	if err != nil {
		return err
	}

	script := fmt.Sprintf(`(function(keep) {
	var names = Object.getOwnPropertyNames(this);
	for (var i = 0; i < names.length; i++) {
		if (!keep[names[i]]) {
			try { delete this[names[i]]; } catch (e) {}
		}
	}
}).call(this, %s);`, keepJSON)

	_, err = vm.RunString(script)
	return err
}

// applyBlockedCallStubs rebinds blocked call targets to functions that
// always throw. Deletion alone would let a candidate resurrect a name by
// assignment; a throwing stub keeps the failure mode explicit either way.
func applyBlockedCallStubs(vm *goja.Runtime, allow *AllowList) error {
	for _, name := range allow.BlockedCalls {
		if strings.Contains(name, ".") {
			// Dotted targets live on an allow-listed object (e.g.
			// Object.setPrototypeOf); overwrite them in place when the base
			// object survived restriction.
			base := baseSegment(name)
			script := fmt.Sprintf(
				`if (typeof %s !== 'undefined') { try { %s = function() { throw new TypeError(%q); }; } catch (e) {} }`,
				base, name, name+" is disabled in this environment")
			if _, err := vm.RunString(script); err != nil {
				return err
			}
			continue
		}
		if err := stubThrowing(vm, name); err != nil {
			return err
		}
	}
	// globalThis would hand back the unrestricted global object on engines
	// that expose it; make sure it is gone regardless of the blocked list.
	return vm.Set("globalThis", goja.Undefined())
}

func stubThrowing(vm *goja.Runtime, name string) error {
	return vm.Set(name, func(goja.FunctionCall) goja.Value {
		panic(vm.NewTypeError("%s is disabled in this environment", name))
	})
}

// bindRequire installs the import interceptor. This duplicates the static
// import check on purpose: module names constructed at runtime never pass
// through the validator, so the resolver is the authoritative enforcement.
func (e *Environment) bindRequire() {
	vm := e.vm
	_ = vm.Set("require", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		mod, err := e.resolver.Resolve(name)
		if err != nil {
			panic(vm.NewGoError(err))
		}
		return mod
	})
}

func (e *Environment) bindPrinting() {
	vm := e.vm
	printFn := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			parts = append(parts, arg.String())
		}
		e.appendLog(strings.Join(parts, " "))
		return goja.Undefined()
	}
	_ = vm.Set("print", printFn)

	console := vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		_ = console.Set(level, printFn)
	}
	_ = vm.Set("console", console)
}

func (e *Environment) appendLog(line string) {
	if len(e.logs) >= e.maxLogs {
		if !e.dropped {
			e.logs = append(e.logs, "... output truncated")
			e.dropped = true
		}
		return
	}
	if len(line) > maxLogLineBytes {
		// Back up to a rune boundary so truncation never leaves a split
		// multi-byte character at the end.
		cut := maxLogLineBytes
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		line = line[:cut]
	}
	e.logs = append(e.logs, line)
}

// Logs returns the captured print output. Only valid after the worker has
// completed; an abandoned worker may still be appending.
func (e *Environment) Logs() []string {
	return e.logs
}
