package depgraph

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog/log"
)

// SpecifierExtractor returns the module specifiers imported by a file
type SpecifierExtractor interface {
	ExtractSpecifiers(ctx context.Context, filePath string, content []byte) ([]string, error)
}

// Builder walks a project and resolves its import graph
type Builder struct {
	Extensions  []string // with leading dot
	ExcludeDirs []string // directory names skipped anywhere in the tree
	Exclude     []string // doublestar globs relative to the root
	AliasPrefix string
	IncludeNpm  bool // keep bare package specifiers as edges
	Parser      SpecifierExtractor
}

// NewBuilder creates a builder with the default extensions and exclusions
func NewBuilder(parser SpecifierExtractor) *Builder {
	return &Builder{
		Extensions:  []string{".js", ".jsx", ".ts", ".tsx"},
		ExcludeDirs: []string{"node_modules", ".git", ".next", "dist", "build", "out", "coverage"},
		AliasPrefix: DefaultAliasPrefix,
		Parser:      parser,
	}
}

// Build walks root and returns its dependency graph
func (b *Builder) Build(ctx context.Context, root string) (*Graph, error) {
	if b.Parser == nil {
		return nil, fmt.Errorf("builder has no specifier extractor")
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project root %s is not a directory", absRoot)
	}

	files, err := b.collect(ctx, absRoot)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(files))
	for _, f := range files {
		known[f] = true
	}

	alias := b.AliasPrefix
	if alias == "" {
		alias = DefaultAliasPrefix
	}

	g := &Graph{
		Edges:       make(map[string][]string, len(files)),
		AliasPrefix: alias,
	}

	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		content, err := os.ReadFile(filepath.Join(absRoot, filepath.FromSlash(rel)))
		if err != nil {
			log.Warn().Err(err).Str("file", rel).Msg("skipping unreadable file in dependency graph")
			g.Edges[rel] = []string{}
			continue
		}

		specs, err := b.Parser.ExtractSpecifiers(ctx, rel, content)
		if err != nil {
			log.Debug().Err(err).Str("file", rel).Msg("no specifiers extracted")
			specs = nil
		}

		g.Edges[rel] = b.resolveAll(rel, specs, alias, known)
	}

	g.Cycles = findCycles(g.Edges)

	log.Debug().
		Str("root", absRoot).
		Int("files", len(g.Edges)).
		Int("cycles", len(g.Cycles)).
		Msg("dependency graph built")

	return g, nil
}

// collect returns the POSIX root-relative paths of all analyzable files
func (b *Builder) collect(ctx context.Context, absRoot string) ([]string, error) {
	skipDirs := make(map[string]bool, len(b.ExcludeDirs))
	for _, d := range b.ExcludeDirs {
		skipDirs[d] = true
	}
	exts := make(map[string]bool, len(b.Extensions))
	for _, e := range b.Extensions {
		exts[strings.ToLower(e)] = true
	}

	var files []string
	err := filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == absRoot {
				return err
			}
			log.Debug().Err(err).Str("path", p).Msg("walk error")
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, relErr := filepath.Rel(absRoot, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if p != absRoot && (skipDirs[d.Name()] || b.excluded(rel)) {
				return filepath.SkipDir
			}
			return nil
		}

		if !exts[strings.ToLower(filepath.Ext(p))] || b.excluded(rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", absRoot, err)
	}

	return files, nil
}

func (b *Builder) excluded(rel string) bool {
	for _, pattern := range b.Exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// resolveAll maps the specifiers of one file to graph edges, dropping
// duplicates and (unless IncludeNpm) bare package imports
func (b *Builder) resolveAll(rel string, specs []string, alias string, known map[string]bool) []string {
	edges := make([]string, 0, len(specs))
	seen := make(map[string]bool, len(specs))

	for _, spec := range specs {
		edge, ok := b.resolve(rel, spec, alias, known)
		if !ok || seen[edge] {
			continue
		}
		seen[edge] = true
		edges = append(edges, edge)
	}

	return edges
}

func (b *Builder) resolve(rel, spec, alias string, known map[string]bool) (string, bool) {
	var target string
	switch {
	case isRelative(spec):
		target = path.Join(path.Dir(rel), spec)
	case strings.HasPrefix(spec, alias):
		target = path.Clean(strings.TrimPrefix(spec, alias))
	default:
		return spec, b.IncludeNpm
	}

	// Paths escaping the root cannot be graph keys
	if target == ".." || strings.HasPrefix(target, "../") {
		return spec, true
	}

	if key, ok := b.probe(target, known); ok {
		return key, true
	}
	return spec, true
}

// probe finds the graph key a module path refers to: the literal path, an
// added extension, a .js specifier naming a .ts source, or a directory index
func (b *Builder) probe(target string, known map[string]bool) (string, bool) {
	if known[target] {
		return target, true
	}
	for _, ext := range b.Extensions {
		if known[target+ext] {
			return target + ext, true
		}
	}

	ext := path.Ext(target)
	if ext == ".js" || ext == ".jsx" {
		stem := strings.TrimSuffix(target, ext)
		for _, swap := range []string{".ts", ".tsx"} {
			if known[stem+swap] {
				return stem + swap, true
			}
		}
	}

	for _, ext := range b.Extensions {
		if idx := path.Join(target, "index"+ext); known[idx] {
			return idx, true
		}
	}

	return "", false
}

func isRelative(spec string) bool {
	return spec == "." || spec == ".." || strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../")
}
