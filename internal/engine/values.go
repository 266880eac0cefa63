package engine

import "github.com/wirl-lang/wirl/internal/wirl/parser"

// literalToValue converts a parsed constant into the dynamic {null, bool,
// int, float, string, list, map} representation channel values use
// (spec.md §9).
func literalToValue(l parser.Literal) interface{} {
	switch l.Kind {
	case parser.LitNull:
		return nil
	case parser.LitBool:
		return l.Bool
	case parser.LitInt:
		return l.Int
	case parser.LitFloat:
		return l.Float
	case parser.LitString:
		return l.String
	case parser.LitList:
		out := make([]interface{}, len(l.List))
		for i, it := range l.List {
			out[i] = literalToValue(it)
		}
		return out
	case parser.LitObject:
		out := make(map[string]interface{}, len(l.Object))
		for k, v := range l.Object {
			out[k] = literalToValue(v)
		}
		return out
	}
	return nil
}

func literalMap(m map[string]parser.Literal) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = literalToValue(v)
	}
	return out
}
