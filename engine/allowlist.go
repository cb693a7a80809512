package engine

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// AllowList is the process-wide, immutable execution policy: which modules a
// candidate may import, which globals remain bound in its environment, and
// which call targets and attribute accesses are rejected outright. It is
// built once at startup and shared read-only by all concurrent executions.
type AllowList struct {
	Modules      []string `yaml:"modules" json:"modules"`
	Builtins     []string `yaml:"builtins" json:"builtins"`
	BlockedCalls []string `yaml:"blocked_calls" json:"blocked_calls"`
	BlockedAttrs []string `yaml:"blocked_attrs" json:"blocked_attrs"`

	modules  map[string]bool
	builtins map[string]bool
	calls    map[string]bool
	attrs    map[string]bool
}

// reservedBindings are names the restrictor binds itself; an allow-list that
// blocks them would break the environment it is meant to police.
var reservedBindings = []string{"require", "print", "console", "dataset"}

// DefaultAllowList returns the built-in policy for tabular analysis code.
func DefaultAllowList() *AllowList {
	a := &AllowList{
		Modules: []string{"numeric", "tabular", "plot", "datetime", "re"},
		Builtins: []string{
			"Object", "Array", "String", "Number", "Boolean",
			"Math", "JSON", "RegExp", "Map", "Set",
			"parseInt", "parseFloat", "isNaN", "isFinite",
			"NaN", "Infinity", "undefined",
			"Error", "TypeError", "RangeError", "SyntaxError",
		},
		BlockedCalls: []string{
			"eval", "Function", "require.resolve",
			"setTimeout", "setInterval", "setImmediate", "queueMicrotask",
			"fetch", "XMLHttpRequest", "WebSocket", "importScripts",
			"open", "exec", "spawn",
			"Reflect", "Proxy",
			"Object.defineProperty", "Object.defineProperties",
			"Object.setPrototypeOf", "Object.getPrototypeOf",
		},
		BlockedAttrs: []string{
			"__proto__", "constructor", "prototype",
			"caller", "callee",
			"__defineGetter__", "__defineSetter__",
			"__lookupGetter__", "__lookupSetter__",
		},
	}
	a.finalize()
	return a
}

// LoadAllowList reads an allow-list from a YAML file. The loaded policy
// replaces the defaults entirely; it is validated before use.
func LoadAllowList(path string) (*AllowList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read allowlist file: %w", err)
	}
	var a AllowList
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to parse allowlist file: %w", err)
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("invalid allowlist in %s: %w", path, err)
	}
	return &a, nil
}

// Validate checks the allow-list for misconfigurations. A failure here is a
// fatal startup error, never a per-request outcome.
func (a *AllowList) Validate() error {
	if len(a.Builtins) == 0 {
		return fmt.Errorf("allowlist must permit at least one builtin")
	}
	a.finalize()

	for _, name := range a.Builtins {
		if name == "" {
			return fmt.Errorf("allowlist contains an empty builtin name")
		}
		if a.calls[name] {
			return fmt.Errorf("builtin %q is also a blocked call", name)
		}
	}
	for _, name := range a.Modules {
		if name == "" {
			return fmt.Errorf("allowlist contains an empty module name")
		}
	}
	for _, name := range reservedBindings {
		if a.calls[name] {
			return fmt.Errorf("reserved binding %q must not be a blocked call", name)
		}
	}
	return nil
}

func (a *AllowList) finalize() {
	a.modules = toSet(a.Modules)
	a.builtins = toSet(a.Builtins)
	a.calls = toSet(a.BlockedCalls)
	a.attrs = toSet(a.BlockedAttrs)
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// ModuleAllowed reports whether a module name may be imported. Dotted names
// are permitted when either the full name or its first segment is listed,
// so allowing "plot" also allows "plot.subplots".
func (a *AllowList) ModuleAllowed(name string) bool {
	if a.modules[name] {
		return true
	}
	return a.modules[baseSegment(name)]
}

// BuiltinAllowed reports whether a global name survives environment
// restriction.
func (a *AllowList) BuiltinAllowed(name string) bool {
	return a.builtins[name]
}

// CallBlocked reports whether a literal callee name is rejected. Both the
// full dotted name and its first segment are consulted, so blocking
// "Reflect" blocks every Reflect.* call.
func (a *AllowList) CallBlocked(name string) bool {
	if a.calls[name] {
		return true
	}
	return a.calls[baseSegment(name)]
}

// AttrBlocked reports whether an attribute name is rejected.
func (a *AllowList) AttrBlocked(name string) bool {
	return a.attrs[name]
}

func baseSegment(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}
