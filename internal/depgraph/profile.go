package depgraph

import (
	"fmt"
	"maps"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/QTest-hq/codehealth/pkg/model"
)

var tsExtension = regexp.MustCompile(`\.(tsx?)$`)

// probeSuffixes are tried in order when a resolved edge does not name a file
var probeSuffixes = []string{".ts", ".tsx", ".js", ".jsx"}

// probeIndexes are tried when a resolved edge names a directory
var probeIndexes = []string{"index.ts", "index.tsx"}

// Profile describes absFile's position in g. A file that is not a key of the
// graph gets a zero profile with a note listing the keys that were tried.
func Profile(g *Graph, absFile, root string) model.DependencyProfile {
	if g == nil {
		return model.EmptyProfile("dependency graph unavailable")
	}
	if g.BuildErr != nil {
		p := model.EmptyProfile("dependency graph unavailable")
		p.Error = g.BuildErr.Error()
		return p
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		absRoot = filepath.Clean(root)
	}
	if !filepath.IsAbs(absFile) {
		absFile = filepath.Join(absRoot, absFile)
	}

	rel, err := filepath.Rel(absRoot, absFile)
	if err != nil {
		p := model.EmptyProfile("file is not under the project root")
		p.Error = err.Error()
		return p
	}
	rel = filepath.ToSlash(rel)

	candidates := lookupKeys(rel)
	key, ok := "", false
	for _, c := range candidates {
		if _, found := g.Edges[c]; found {
			key, ok = c, true
			break
		}
	}
	if !ok {
		return model.EmptyProfile(fmt.Sprintf("File not found in dependency tree. Tried keys: %s", strings.Join(candidates, ", ")))
	}

	specs := g.Edges[key]
	alias := g.AliasPrefix
	if alias == "" {
		alias = DefaultAliasPrefix
	}

	profile := model.DependencyProfile{
		Dependencies:         make([]model.DependencyEdge, 0, len(specs)),
		Dependents:           make([]model.Dependent, 0),
		CircularDependencies: make([][]string, 0),
		DependencyCount:      len(specs),
		Depth:                depth(key, g.Edges, map[string]bool{}),
	}

	for _, spec := range specs {
		profile.Dependencies = append(profile.Dependencies, resolveEdge(spec, absFile, absRoot, alias))
	}

	for _, file := range g.Files() {
		if slices.Contains(g.Edges[file], key) {
			profile.Dependents = append(profile.Dependents, model.Dependent{
				Path:         file,
				AbsolutePath: filepath.Join(absRoot, filepath.FromSlash(strings.TrimPrefix(file, "./"))),
			})
		}
	}
	profile.DependentCount = len(profile.Dependents)

	for _, cycle := range g.Cycles {
		if slices.Contains(cycle, key) {
			profile.CircularDependencies = append(profile.CircularDependencies, append([]string(nil), cycle...))
		}
	}
	profile.HasCircularDependencies = len(profile.CircularDependencies) > 0

	return profile
}

// lookupKeys lists the graph keys a relative path may be stored under
func lookupKeys(rel string) []string {
	stripped := tsExtension.ReplaceAllString(rel, "")
	return []string{rel, "./" + rel, stripped, "./" + stripped}
}

// resolveEdge locates the file a specifier refers to and classifies it
func resolveEdge(spec, absFile, absRoot, alias string) model.DependencyEdge {
	var target string
	switch {
	case isRelative(spec):
		target = filepath.Join(filepath.Dir(absFile), filepath.FromSlash(spec))
	case strings.HasPrefix(spec, alias):
		target = filepath.Join(absRoot, filepath.FromSlash(strings.TrimPrefix(spec, alias)))
	default:
		target = filepath.Join(absRoot, filepath.FromSlash(spec))
	}

	final, exists := probeFile(target)

	edge := model.DependencyEdge{
		Path:         spec,
		AbsolutePath: target,
		Exists:       exists,
		Extension:    path.Ext(spec),
	}
	if exists {
		edge.AbsolutePath = final
		if edge.Extension == "" {
			edge.Extension = filepath.Ext(final)
		}
	}

	switch {
	case strings.HasPrefix(spec, alias):
		edge.Type = model.EdgeInternalAlias
	case strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../"):
		edge.Type = model.EdgeRelative
	case strings.HasPrefix(spec, ".") || strings.HasPrefix(spec, "/"):
		edge.Type = model.EdgeAbsolute
	case exists:
		// Resolved root-relative graph key
		edge.Type = model.EdgeInternal
	default:
		edge.Type = model.EdgeExternal
		edge.IsExternal = true
	}

	return edge
}

// probeFile tries the literal path, then each source extension, then a
// directory index
func probeFile(target string) (string, bool) {
	if isFile(target) {
		return target, true
	}
	for _, suffix := range probeSuffixes {
		if isFile(target + suffix) {
			return target + suffix, true
		}
	}
	for _, index := range probeIndexes {
		if p := filepath.Join(target, index); isFile(p) {
			return p, true
		}
	}
	return "", false
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

// depth is the length of the longest acyclic import chain starting at file.
// Each branch carries its own copy of the visited set, so a file reached by
// two different paths is measured on both.
func depth(file string, edges map[string][]string, visited map[string]bool) int {
	deps, ok := edges[file]
	if !ok || visited[file] {
		return 0
	}

	visited[file] = true
	longest := 0
	for _, dep := range deps {
		if d := depth(dep, edges, maps.Clone(visited)) + 1; d > longest {
			longest = d
		}
	}

	return longest
}
