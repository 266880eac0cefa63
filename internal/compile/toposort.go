package compile

import "sort"

// topoSort orders elements so every dependency (by produced channel name)
// precedes its dependents, breaking ties lexicographically by name so
// execution order is deterministic (spec.md §8, testable property #3).
// producedBy maps a channel name to the name of the element producing it.
func topoSort(elements []Element, producedBy map[string]string) ([]Element, error) {
	byName := make(map[string]Element, len(elements))
	indegree := make(map[string]int, len(elements))
	edges := make(map[string]map[string]bool, len(elements)) // producer -> consumers

	for _, e := range elements {
		byName[e.name()] = e
		indegree[e.name()] = 0
		edges[e.name()] = map[string]bool{}
	}
	for _, e := range elements {
		for _, dep := range e.dependencies() {
			producer, ok := producedBy[dep]
			if !ok || producer == e.name() {
				continue
			}
			if !edges[producer][e.name()] {
				edges[producer][e.name()] = true
				indegree[e.name()]++
			}
		}
	}

	var ready []string
	for name, d := range indegree {
		if d == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	var order []Element
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		order = append(order, byName[n])

		var freed []string
		names := make([]string, 0, len(edges[n]))
		for c := range edges[n] {
			names = append(names, c)
		}
		sort.Strings(names)
		for _, c := range names {
			indegree[c]--
			if indegree[c] == 0 {
				freed = append(freed, c)
			}
		}
		ready = append(ready, freed...)
		sort.Strings(ready)
	}

	if len(order) != len(elements) {
		return nil, errGraphCycle
	}
	return order, nil
}

var errGraphCycle = &CompileError{Kind: ErrGraphCycle, Message: "workflow graph contains a dependency cycle outside an explicit cycle block"}
