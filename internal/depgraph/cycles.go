package depgraph

import "sort"

// findCycles reports every back edge found by a depth-first walk as the
// stack slice from the revisited node to the current one. Files are visited
// in sorted order so the result is deterministic. A file importing itself
// yields a single-element cycle.
func findCycles(edges map[string][]string) [][]string {
	resolved := make(map[string]bool, len(edges))
	onStack := make(map[string]int, len(edges))
	stack := make([]string, 0)
	cycles := make([][]string, 0)

	var visit func(id string)
	visit = func(id string) {
		onStack[id] = len(stack)
		stack = append(stack, id)

		for _, dep := range edges[id] {
			if resolved[dep] {
				continue
			}
			if at, ok := onStack[dep]; ok {
				cycle := make([]string, len(stack)-at)
				copy(cycle, stack[at:])
				cycles = append(cycles, cycle)
				continue
			}
			visit(dep)
		}

		stack = stack[:len(stack)-1]
		delete(onStack, id)
		resolved[id] = true
	}

	keys := make([]string, 0, len(edges))
	for k := range edges {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if !resolved[k] {
			visit(k)
		}
	}

	return cycles
}
