package compile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/wirl-lang/wirl/internal/wirl/parser"
)

// Guard is a compiled boolean expression (a node's `when` or a cycle's
// `guard`) ready for repeated evaluation against a channel map. Compilation
// follows the teacher's condition evaluator: render to a CEL source string,
// compile once, cache the cel.Program.
type Guard struct {
	source       string
	program      cel.Program
	dependencies []string
}

// Dependencies returns the qualified channel names the guard reads.
func (g *Guard) Dependencies() []string { return g.dependencies }

// Eval evaluates the guard against a channel map keyed by qualified channel
// name ("x", "A.out", "C.items", ...).
func (g *Guard) Eval(channels map[string]interface{}) (bool, error) {
	out, _, err := g.program.Eval(map[string]interface{}{"ch": channels})
	if err != nil {
		return false, fmt.Errorf("guard evaluation error (%s): %w", g.source, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("guard %q did not evaluate to a boolean, got %T", g.source, out.Value())
	}
	return b, nil
}

var celEnv = newCelEnv()

func newCelEnv() *cel.Env {
	env, err := cel.NewEnv(cel.Variable("ch", cel.DynType))
	if err != nil {
		panic(fmt.Sprintf("failed to build CEL environment: %v", err))
	}
	return env
}

// CompileGuard lowers a parsed boolean Expr tree into a cached CEL program.
func CompileGuard(e *parser.Expr) (*Guard, error) {
	if e == nil {
		return nil, fmt.Errorf("nil guard expression")
	}
	deps := map[string]bool{}
	src := exprToCEL(e, deps)

	ast, issues := celEnv.Compile(src)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compilation error for %q: %w", src, issues.Err())
	}
	prg, err := celEnv.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build CEL program for %q: %w", src, err)
	}

	depList := make([]string, 0, len(deps))
	for d := range deps {
		depList = append(depList, d)
	}
	return &Guard{source: src, program: prg, dependencies: depList}, nil
}

func exprToCEL(e *parser.Expr, deps map[string]bool) string {
	if e.Value != nil {
		return valueExprToCEL(*e.Value, deps)
	}
	switch e.Op {
	case "!":
		return "!(" + exprToCEL(e.Children[0], deps) + ")"
	default:
		return "(" + exprToCEL(e.Children[0], deps) + " " + e.Op + " " + exprToCEL(e.Children[1], deps) + ")"
	}
}

func valueExprToCEL(ve parser.ValueExpr, deps map[string]bool) string {
	switch ve.Kind {
	case parser.RefIdent:
		deps[ve.Name] = true
		return fmt.Sprintf("ch[%s]", strconv.Quote(ve.Name))
	case parser.RefDotted:
		name := ve.Scope + "." + ve.Field
		deps[name] = true
		return fmt.Sprintf("ch[%s]", strconv.Quote(name))
	case parser.RefLiteral:
		return literalToCEL(ve.Literal)
	}
	return "null"
}

func literalToCEL(l parser.Literal) string {
	switch l.Kind {
	case parser.LitNull:
		return "null"
	case parser.LitBool:
		return strconv.FormatBool(l.Bool)
	case parser.LitInt:
		return strconv.FormatInt(l.Int, 10)
	case parser.LitFloat:
		return strconv.FormatFloat(l.Float, 'g', -1, 64)
	case parser.LitString:
		return strconv.Quote(l.String)
	case parser.LitList:
		parts := make([]string, len(l.List))
		for i, it := range l.List {
			parts[i] = literalToCEL(it)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case parser.LitObject:
		parts := make([]string, 0, len(l.Object))
		for k, v := range l.Object {
			parts = append(parts, fmt.Sprintf("%s: %s", strconv.Quote(k), literalToCEL(v)))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return "null"
}
