package engine

import "github.com/wirl-lang/wirl/internal/wirl/parser"

// applyReducer combines a new write with the channel's prior value. replace
// is idempotent under identical writes, append preserves order, merge is a
// shallow key-wise union with the new value winning on conflict (spec.md
// §8, testable property #5).
func applyReducer(reducer parser.Reducer, prior interface{}, next interface{}) (interface{}, error) {
	switch reducer {
	case parser.ReducerReplace, "":
		return next, nil

	case parser.ReducerAppend:
		items, ok := next.([]interface{})
		if !ok {
			items = []interface{}{next}
		}
		if prior == nil {
			out := make([]interface{}, len(items))
			copy(out, items)
			return out, nil
		}
		priorList, ok := prior.([]interface{})
		if !ok {
			return nil, &ReducerError{Reducer: string(reducer), Message: "prior channel value is not a list"}
		}
		out := make([]interface{}, 0, len(priorList)+len(items))
		out = append(out, priorList...)
		out = append(out, items...)
		return out, nil

	case parser.ReducerMerge:
		nextMap, ok := next.(map[string]interface{})
		if !ok {
			return nil, &ReducerError{Reducer: string(reducer), Message: "write value is not an object"}
		}
		if prior == nil {
			out := make(map[string]interface{}, len(nextMap))
			for k, v := range nextMap {
				out[k] = v
			}
			return out, nil
		}
		priorMap, ok := prior.(map[string]interface{})
		if !ok {
			return nil, &ReducerError{Reducer: string(reducer), Message: "prior channel value is not an object"}
		}
		out := make(map[string]interface{}, len(priorMap)+len(nextMap))
		for k, v := range priorMap {
			out[k] = v
		}
		for k, v := range nextMap {
			out[k] = v
		}
		return out, nil
	}
	return next, nil
}
