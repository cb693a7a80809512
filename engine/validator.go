package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/file"
	"github.com/dop251/goja/parser"
)

// Validate statically analyzes candidate source against the allow-list and
// returns every violation in source order, or nil when the source is clean.
// A source that fails to parse yields a single ParseError violation.
// Validation never executes any part of the candidate.
func Validate(source string, allow *AllowList, resultVar string) []Violation {
	program, err := parser.ParseFile(nil, "candidate.js", source, 0)
	if err != nil {
		return []Violation{{
			Kind:   KindParseError,
			Detail: parseErrorDetail(err),
		}}
	}

	w := &validationWalker{
		allow:     allow,
		resultVar: resultVar,
		source:    source,
	}
	// Program.DeclarationList aliases bindings already present in the body;
	// walking it too would report the same violation twice.
	for _, stmt := range program.Body {
		w.walkStatement(stmt)
	}

	sort.SliceStable(w.found, func(i, j int) bool {
		return w.found[i].offset < w.found[j].offset
	})

	violations := make([]Violation, 0, len(w.found)+1)
	for _, f := range w.found {
		violations = append(violations, f.violation)
	}
	if !w.assignsResult {
		violations = append(violations, Violation{
			Kind:   KindMissingResult,
			Detail: fmt.Sprintf("code must assign a result to a variable named %q", resultVar),
		})
	}
	if len(violations) == 0 {
		return nil
	}
	return violations
}

func parseErrorDetail(err error) string {
	// goja's ErrorList message already carries line/column context; the
	// first entry is the most useful one for feedback.
	if list, ok := err.(parser.ErrorList); ok && len(list) > 0 {
		return list[0].Error()
	}
	return err.Error()
}

type locatedViolation struct {
	offset    int
	violation Violation
}

// validationWalker traverses goja's AST by hand: the ast package exposes
// concrete node types but no generic visitor, so each container dispatches
// its children explicitly. Node types without children fall through.
type validationWalker struct {
	allow         *AllowList
	resultVar     string
	source        string
	found         []locatedViolation
	assignsResult bool
}

func (w *validationWalker) walkStatement(st ast.Statement) {
	if st == nil {
		return
	}
	switch s := st.(type) {
	case *ast.BlockStatement:
		for _, inner := range s.List {
			w.walkStatement(inner)
		}
	case *ast.ExpressionStatement:
		w.walkExpression(s.Expression)
	case *ast.IfStatement:
		w.walkExpression(s.Test)
		w.walkStatement(s.Consequent)
		w.walkStatement(s.Alternate)
	case *ast.ForStatement:
		w.walkForInitializer(s.Initializer)
		w.walkExpression(s.Test)
		w.walkExpression(s.Update)
		w.walkStatement(s.Body)
	case *ast.ForInStatement:
		w.walkForInto(s.Into)
		w.walkExpression(s.Source)
		w.walkStatement(s.Body)
	case *ast.ForOfStatement:
		w.walkForInto(s.Into)
		w.walkExpression(s.Source)
		w.walkStatement(s.Body)
	case *ast.WhileStatement:
		w.walkExpression(s.Test)
		w.walkStatement(s.Body)
	case *ast.DoWhileStatement:
		w.walkStatement(s.Body)
		w.walkExpression(s.Test)
	case *ast.SwitchStatement:
		w.walkExpression(s.Discriminant)
		for _, c := range s.Body {
			w.walkExpression(c.Test)
			for _, inner := range c.Consequent {
				w.walkStatement(inner)
			}
		}
	case *ast.TryStatement:
		w.walkStatement(s.Body)
		if s.Catch != nil {
			w.walkBindingTarget(s.Catch.Parameter)
			w.walkStatement(s.Catch.Body)
		}
		if s.Finally != nil {
			w.walkStatement(s.Finally)
		}
	case *ast.ReturnStatement:
		w.walkExpression(s.Argument)
	case *ast.ThrowStatement:
		w.walkExpression(s.Argument)
	case *ast.LabelledStatement:
		w.walkStatement(s.Statement)
	case *ast.WithStatement:
		w.walkExpression(s.Object)
		w.walkStatement(s.Body)
	case *ast.VariableStatement:
		for _, b := range s.List {
			w.walkBinding(b, true)
		}
	case *ast.LexicalDeclaration:
		for _, b := range s.List {
			w.walkBinding(b, true)
		}
	case *ast.FunctionDeclaration:
		w.walkExpression(s.Function)
	case *ast.ClassDeclaration:
		w.walkExpression(s.Class)
	}
}

func (w *validationWalker) walkExpression(expr ast.Expression) {
	if expr == nil {
		return
	}
	switch e := expr.(type) {
	case *ast.CallExpression:
		w.checkCall(e.Callee, e.ArgumentList, e.Idx0())
		w.walkExpression(e.Callee)
		for _, arg := range e.ArgumentList {
			w.walkExpression(arg)
		}
	case *ast.NewExpression:
		w.checkCall(e.Callee, e.ArgumentList, e.Idx0())
		w.walkExpression(e.Callee)
		for _, arg := range e.ArgumentList {
			w.walkExpression(arg)
		}
	case *ast.DotExpression:
		w.checkAttr(e.Identifier.Name.String(), e.Idx0())
		w.walkExpression(e.Left)
	case *ast.PrivateDotExpression:
		w.walkExpression(e.Left)
	case *ast.BracketExpression:
		if lit, ok := e.Member.(*ast.StringLiteral); ok {
			w.checkAttr(lit.Value.String(), e.Idx0())
		}
		w.walkExpression(e.Left)
		w.walkExpression(e.Member)
	case *ast.AssignExpression:
		if id, ok := e.Left.(*ast.Identifier); ok && id.Name.String() == w.resultVar {
			w.assignsResult = true
		}
		w.walkExpression(e.Left)
		w.walkExpression(e.Right)
	case *ast.BinaryExpression:
		w.walkExpression(e.Left)
		w.walkExpression(e.Right)
	case *ast.ConditionalExpression:
		w.walkExpression(e.Test)
		w.walkExpression(e.Consequent)
		w.walkExpression(e.Alternate)
	case *ast.UnaryExpression:
		w.walkExpression(e.Operand)
	case *ast.SequenceExpression:
		for _, inner := range e.Sequence {
			w.walkExpression(inner)
		}
	case *ast.ArrayLiteral:
		for _, v := range e.Value {
			w.walkExpression(v)
		}
	case *ast.ObjectLiteral:
		for _, p := range e.Value {
			w.walkProperty(p)
		}
	case *ast.ArrayPattern:
		for _, el := range e.Elements {
			w.walkExpression(el)
		}
		w.walkExpression(e.Rest)
	case *ast.ObjectPattern:
		for _, p := range e.Properties {
			w.walkProperty(p)
		}
		w.walkExpression(e.Rest)
	case *ast.SpreadElement:
		w.walkExpression(e.Expression)
	case *ast.FunctionLiteral:
		w.walkParameterList(e.ParameterList)
		w.walkStatement(e.Body)
	case *ast.ArrowFunctionLiteral:
		w.walkParameterList(e.ParameterList)
		w.walkConciseBody(e.Body)
	case *ast.ClassLiteral:
		w.walkExpression(e.SuperClass)
		for _, el := range e.Body {
			w.walkClassElement(el)
		}
	case *ast.TemplateLiteral:
		w.walkExpression(e.Tag)
		for _, inner := range e.Expressions {
			w.walkExpression(inner)
		}
	case *ast.Optional:
		w.walkExpression(e.Expression)
	case *ast.OptionalChain:
		w.walkExpression(e.Expression)
	case *ast.YieldExpression:
		w.walkExpression(e.Argument)
	case *ast.AwaitExpression:
		w.walkExpression(e.Argument)
	}
}

func (w *validationWalker) walkProperty(p ast.Property) {
	switch prop := p.(type) {
	case *ast.PropertyKeyed:
		// Computed keys can hide arbitrary expressions.
		w.walkExpression(prop.Key)
		w.walkExpression(prop.Value)
	case *ast.PropertyShort:
		w.walkExpression(prop.Initializer)
	case *ast.SpreadElement:
		w.walkExpression(prop.Expression)
	}
}

func (w *validationWalker) walkClassElement(el ast.ClassElement) {
	switch ce := el.(type) {
	case *ast.MethodDefinition:
		w.walkExpression(ce.Key)
		w.walkExpression(ce.Body)
	case *ast.FieldDefinition:
		w.walkExpression(ce.Key)
		w.walkExpression(ce.Initializer)
	}
}

func (w *validationWalker) walkParameterList(pl *ast.ParameterList) {
	if pl == nil {
		return
	}
	for _, b := range pl.List {
		// A parameter named like the result variable is not a result
		// assignment.
		w.walkBinding(b, false)
	}
	w.walkExpression(pl.Rest)
}

func (w *validationWalker) walkConciseBody(body ast.ConciseBody) {
	switch b := body.(type) {
	case *ast.BlockStatement:
		w.walkStatement(b)
	case *ast.ExpressionBody:
		w.walkExpression(b.Expression)
	}
}

func (w *validationWalker) walkForInitializer(init ast.ForLoopInitializer) {
	if init == nil {
		return
	}
	switch i := init.(type) {
	case *ast.ForLoopInitializerExpression:
		w.walkExpression(i.Expression)
	case *ast.ForLoopInitializerVarDeclList:
		for _, b := range i.List {
			w.walkBinding(b, false)
		}
	case *ast.ForLoopInitializerLexicalDecl:
		for _, b := range i.LexicalDeclaration.List {
			w.walkBinding(b, false)
		}
	}
}

func (w *validationWalker) walkForInto(into ast.ForInto) {
	switch i := into.(type) {
	case *ast.ForIntoExpression:
		w.walkExpression(i.Expression)
	case *ast.ForIntoVar:
		w.walkBinding(i.Binding, false)
	case *ast.ForDeclaration:
		w.walkBindingTarget(i.Target)
	}
}

func (w *validationWalker) walkBinding(b *ast.Binding, declares bool) {
	if b == nil {
		return
	}
	if declares {
		if id, ok := b.Target.(*ast.Identifier); ok && id.Name.String() == w.resultVar {
			w.assignsResult = true
		}
	}
	w.walkBindingTarget(b.Target)
	w.walkExpression(b.Initializer)
}

func (w *validationWalker) walkBindingTarget(target ast.BindingTarget) {
	if target == nil {
		return
	}
	if expr, ok := target.(ast.Expression); ok {
		w.walkExpression(expr)
	}
}

func (w *validationWalker) checkCall(callee ast.Expression, args []ast.Expression, idx file.Idx) {
	name := calleeName(callee)
	if name == "" {
		return
	}
	if name == "require" {
		w.checkImport(args, idx)
		return
	}
	if w.allow.CallBlocked(name) {
		w.record(idx, Violation{Kind: KindBlockedCall, Detail: name})
	}
}

// checkImport validates require() calls whose module name is a string
// literal. Dynamically constructed names cannot be resolved statically; the
// runtime import interceptor is the authoritative check for those.
func (w *validationWalker) checkImport(args []ast.Expression, idx file.Idx) {
	if len(args) == 0 {
		return
	}
	lit, ok := args[0].(*ast.StringLiteral)
	if !ok {
		return
	}
	name := lit.Value.String()
	if !w.allow.ModuleAllowed(name) {
		w.record(idx, Violation{Kind: KindDisallowedImport, Detail: name})
	}
}

func (w *validationWalker) checkAttr(name string, idx file.Idx) {
	if w.allow.AttrBlocked(name) {
		w.record(idx, Violation{Kind: KindBlockedAttribute, Detail: name})
	}
}

func (w *validationWalker) record(idx file.Idx, v Violation) {
	offset := int(idx) - 1
	v.Line = lineOf(w.source, offset)
	w.found = append(w.found, locatedViolation{offset: offset, violation: v})
}

// calleeName flattens an identifier or dotted member chain into a literal
// name like "Object.setPrototypeOf". Computed or call-valued callees yield
// an empty string.
func calleeName(expr ast.Expression) string {
	switch e := expr.(type) {
	case *ast.Identifier:
		return e.Name.String()
	case *ast.DotExpression:
		left := calleeName(e.Left)
		if left == "" {
			return ""
		}
		return left + "." + e.Identifier.Name.String()
	}
	return ""
}

func lineOf(source string, offset int) int {
	if offset < 0 {
		return 0
	}
	if offset > len(source) {
		offset = len(source)
	}
	return 1 + strings.Count(source[:offset], "\n")
}
