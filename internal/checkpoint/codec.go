package checkpoint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wirl-lang/wirl/internal/engine"
)

// encodeState serializes a state to the canonical JSON form stored in the
// CAS-style blob layer. Every channel value is already the dynamic
// {null,bool,int64,float64,string,list,map} representation (spec.md §9).
func encodeState(state *engine.State) ([]byte, error) {
	b, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint state: %w", err)
	}
	return b, nil
}

// decodeState parses a stored snapshot back into an engine.State. It uses
// json.Number so numeric channel values can be restored as int64 rather
// than collapsing everything to float64, since a guard or reducer may
// depend on the distinction (spec.md §9).
func decodeState(b []byte) (*engine.State, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw struct {
		Superstep    int
		Channels     map[string]interface{}
		Completed    map[string]bool
		PendingHITL  *engine.HITLSuspension
		CyclePartial map[string]*rawCyclePartial
	}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode checkpoint state: %w", err)
	}

	st := &engine.State{
		Superstep:    raw.Superstep,
		Channels:     normalizeMap(raw.Channels),
		Completed:    raw.Completed,
		PendingHITL:  raw.PendingHITL,
		CyclePartial: map[string]*engine.CyclePartial{},
	}
	if st.Channels == nil {
		st.Channels = map[string]interface{}{}
	}
	if st.Completed == nil {
		st.Completed = map[string]bool{}
	}
	for k, v := range raw.CyclePartial {
		st.CyclePartial[k] = &engine.CyclePartial{
			Iteration:       v.Iteration,
			Internal:        normalizeMap(v.Internal),
			PendingHITLNode: v.PendingHITLNode,
		}
	}
	return st, nil
}

// rawCyclePartial mirrors engine.CyclePartial but leaves Internal as a raw
// map so normalizeMap can convert its json.Number leaves.
type rawCyclePartial struct {
	Iteration       int
	Internal        map[string]interface{}
	PendingHITLNode string
}

func normalizeMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if strings.ContainsAny(t.String(), ".eE") {
			f, _ := t.Float64()
			return f
		}
		i, err := t.Int64()
		if err != nil {
			f, _ := t.Float64()
			return f
		}
		return i
	case map[string]interface{}:
		return normalizeMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	default:
		return v
	}
}
