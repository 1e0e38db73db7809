// Package depgraph builds the whole-project module dependency graph of a
// TypeScript/JavaScript project, caches it per project root and derives
// per-file dependency profiles (fan-in, fan-out, depth, cycle membership).
package depgraph

import "sort"

// DefaultAliasPrefix is the import prefix rooted at the project root
const DefaultAliasPrefix = "@/"

// Graph is the dependency graph of one project root.
//
// Edge keys are POSIX paths relative to the root. Edge values are either
// resolved keys of the same map or, for specifiers that could not be
// resolved, the specifier text as written.
type Graph struct {
	Edges       map[string][]string
	Cycles      [][]string
	AliasPrefix string

	// BuildErr is set on the placeholder graph returned when a build failed
	BuildErr error
}

// EmptyGraph returns a graph with no files and no cycles
func EmptyGraph() *Graph {
	return &Graph{
		Edges:       make(map[string][]string),
		Cycles:      make([][]string, 0),
		AliasPrefix: DefaultAliasPrefix,
	}
}

// Files returns the graph's keys in sorted order
func (g *Graph) Files() []string {
	files := make([]string, 0, len(g.Edges))
	for f := range g.Edges {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// Len returns the number of files in the graph
func (g *Graph) Len() int {
	return len(g.Edges)
}
