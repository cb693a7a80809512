package engine

import "fmt"

// ViolationKind identifies the category of a disallowed construct found
// during static validation.
type ViolationKind string

const (
	// KindParseError means the source failed to parse; nothing was executed.
	KindParseError ViolationKind = "ParseError"
	// KindDisallowedImport means the source imports a module outside the
	// allow-list.
	KindDisallowedImport ViolationKind = "DisallowedImport"
	// KindBlockedCall means the source calls a blocked target.
	KindBlockedCall ViolationKind = "BlockedCall"
	// KindBlockedAttribute means the source reaches for a blocked attribute.
	KindBlockedAttribute ViolationKind = "BlockedAttribute"
	// KindMissingResult means the source never assigns the expected result
	// variable.
	KindMissingResult ViolationKind = "MissingResult"
)

// Violation is one disallowed construct, with enough detail for the caller
// to feed back to the code generator.
type Violation struct {
	Kind   ViolationKind `json:"kind"`
	Detail string        `json:"detail"`
	Line   int           `json:"line,omitempty"`
}

func (v Violation) String() string {
	if v.Line > 0 {
		return fmt.Sprintf("%s: %s (line %d)", v.Kind, v.Detail, v.Line)
	}
	return fmt.Sprintf("%s: %s", v.Kind, v.Detail)
}
