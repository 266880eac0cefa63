package engine

import "github.com/wirl-lang/wirl/internal/compile"

// ProjectOutputs resolves a compiled workflow's declared output channels
// against a run's final channel map, producing the `result` a caller sees.
func ProjectOutputs(graph *compile.Workflow, channels map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(graph.Outputs))
	for name, src := range graph.Outputs {
		if src.Literal != nil {
			out[name] = literalToValue(*src.Literal)
			continue
		}
		out[name] = channels[src.ChannelName]
	}
	return out
}
