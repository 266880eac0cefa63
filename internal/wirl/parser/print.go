package parser

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Print renders a Workflow AST back to canonical WIRL source text. Parsing
// the result reproduces a structurally equal AST (see parser_test.go's
// TestRoundTripShape).
func Print(wf *Workflow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "workflow %s {\n", wf.Name)
	if len(wf.Metadata) > 0 {
		b.WriteString("  metadata {\n")
		printLiteralMap(&b, "    ", wf.Metadata)
		b.WriteString("  }\n")
	}
	b.WriteString("  inputs {\n")
	for _, p := range wf.Inputs {
		printParam(&b, "    ", p)
	}
	b.WriteString("  }\n")
	b.WriteString("  outputs {\n")
	printOutputExprMap(&b, "    ", wf.Outputs)
	b.WriteString("  }\n")
	for _, n := range wf.Nodes {
		printNode(&b, "  ", n)
	}
	for _, c := range wf.Cycles {
		printCycle(&b, "  ", c)
	}
	b.WriteString("}\n")
	return b.String()
}

func printParam(b *strings.Builder, indent string, p Param) {
	if p.Type != "" {
		fmt.Fprintf(b, "%s%s %s;\n", indent, p.Type, p.Name)
	} else {
		fmt.Fprintf(b, "%s%s;\n", indent, p.Name)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func printOutputExprMap(b *strings.Builder, indent string, m map[string]ValueExpr) {
	for _, k := range sortedKeys(m) {
		fmt.Fprintf(b, "%s%s = %s;\n", indent, k, printValueExpr(m[k]))
	}
}

func printLiteralMap(b *strings.Builder, indent string, m map[string]Literal) {
	for _, k := range sortedKeys(m) {
		fmt.Fprintf(b, "%s%s: %s,\n", indent, k, printLiteral(m[k]))
	}
}

func printValueExpr(ve ValueExpr) string {
	switch ve.Kind {
	case RefIdent:
		return ve.Name
	case RefDotted:
		if ve.Reducer != ReducerReplace {
			return fmt.Sprintf("%s.%s (%s)", ve.Scope, ve.Field, ve.Reducer)
		}
		return fmt.Sprintf("%s.%s", ve.Scope, ve.Field)
	case RefLiteral:
		return printLiteral(ve.Literal)
	}
	return ""
}

func printLiteral(l Literal) string {
	switch l.Kind {
	case LitNull:
		return "null"
	case LitBool:
		return strconv.FormatBool(l.Bool)
	case LitInt:
		return strconv.FormatInt(l.Int, 10)
	case LitFloat:
		return strconv.FormatFloat(l.Float, 'g', -1, 64)
	case LitString:
		return strconv.Quote(l.String)
	case LitList:
		parts := make([]string, len(l.List))
		for i, it := range l.List {
			parts[i] = printLiteral(it)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case LitObject:
		keys := sortedKeys(l.Object)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s: %s", k, printLiteral(l.Object[k]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return ""
}

func printExpr(e *Expr) string {
	if e == nil {
		return ""
	}
	if e.Value != nil {
		return printValueExpr(*e.Value)
	}
	switch e.Op {
	case "!":
		return "!(" + printExpr(e.Children[0]) + ")"
	default:
		return "(" + printExpr(e.Children[0]) + " " + e.Op + " " + printExpr(e.Children[1]) + ")"
	}
}

func printNode(b *strings.Builder, indent string, n *Node) {
	fmt.Fprintf(b, "%snode %s {\n", indent, n.Name)
	fmt.Fprintf(b, "%s  call %s;\n", indent, n.CallTarget)
	if len(n.Inputs) > 0 {
		fmt.Fprintf(b, "%s  inputs {\n", indent)
		for _, in := range n.Inputs {
			if in.Type != "" {
				fmt.Fprintf(b, "%s    %s %s = %s;\n", indent, in.Type, in.Name, printValueExpr(in.Expr))
			} else {
				fmt.Fprintf(b, "%s    %s = %s;\n", indent, in.Name, printValueExpr(in.Expr))
			}
		}
		fmt.Fprintf(b, "%s  }\n", indent)
	}
	if len(n.Outputs) > 0 {
		fmt.Fprintf(b, "%s  outputs {\n", indent)
		for _, o := range n.Outputs {
			printParam(b, indent+"    ", o)
		}
		fmt.Fprintf(b, "%s  }\n", indent)
	}
	if len(n.Const) > 0 {
		fmt.Fprintf(b, "%s  const {\n", indent)
		printLiteralMap(b, indent+"    ", n.Const)
		fmt.Fprintf(b, "%s  }\n", indent)
	}
	if n.When != nil {
		fmt.Fprintf(b, "%s  when %s;\n", indent, printExpr(n.When))
	}
	if n.HITL != nil {
		fmt.Fprintf(b, "%s  hitl {\n", indent)
		printLiteralMap(b, indent+"    ", n.HITL.Correlation)
		fmt.Fprintf(b, "%s  }\n", indent)
	}
	fmt.Fprintf(b, "%s}\n", indent)
}

func printCycle(b *strings.Builder, indent string, c *Cycle) {
	fmt.Fprintf(b, "%scycle %s {\n", indent, c.Name)
	fmt.Fprintf(b, "%s  inputs {\n", indent)
	for _, in := range c.Inputs {
		if in.Type != "" {
			fmt.Fprintf(b, "%s    %s %s = %s;\n", indent, in.Type, in.Name, printValueExpr(in.Expr))
		} else {
			fmt.Fprintf(b, "%s    %s = %s;\n", indent, in.Name, printValueExpr(in.Expr))
		}
	}
	fmt.Fprintf(b, "%s  }\n", indent)
	fmt.Fprintf(b, "%s  outputs {\n", indent)
	printOutputExprMap(b, indent+"    ", c.Outputs)
	fmt.Fprintf(b, "%s  }\n", indent)
	fmt.Fprintf(b, "%s  nodes {\n", indent)
	for _, n := range c.Nodes {
		printNode(b, indent+"    ", n)
	}
	fmt.Fprintf(b, "%s  }\n", indent)
	fmt.Fprintf(b, "%s  guard %s;\n", indent, printExpr(c.Guard))
	fmt.Fprintf(b, "%s  max_iterations %d;\n", indent, c.MaxIterations)
	fmt.Fprintf(b, "%s}\n", indent)
}
