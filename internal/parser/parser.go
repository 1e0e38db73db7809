package parser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/QTest-hq/codehealth/pkg/model"
)

var (
	// ErrSyntax is returned when the grammar cannot build a clean tree
	ErrSyntax = errors.New("syntax error")
	// ErrUnsupported is returned for file extensions without a grammar
	ErrUnsupported = errors.New("unsupported language")
)

// Parser parses TypeScript and JavaScript source files using tree-sitter.
// It is safe for concurrent use; each dialect keeps a pool of tree-sitter
// parsers since a single one cannot parse two files at once.
type Parser struct {
	pools  map[Language]*sync.Pool
	nested NestedFunctionPolicy
}

// Option configures a Parser
type Option func(*Parser)

// WithNestedFunctionPolicy selects how nested functions affect complexity
func WithNestedFunctionPolicy(policy NestedFunctionPolicy) Option {
	return func(p *Parser) {
		if policy.Valid() {
			p.nested = policy
		}
	}
}

// NewParser creates a new parser with all dialects available
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		pools:  make(map[Language]*sync.Pool),
		nested: NestedInclude,
	}

	grammars := map[Language]*sitter.Language{
		LanguageTypeScript: typescript.GetLanguage(),
		LanguageTSX:        tsx.GetLanguage(),
		LanguageJavaScript: javascript.GetLanguage(),
	}
	for lang, grammar := range grammars {
		p.pools[lang] = &sync.Pool{
			New: func() any {
				sp := sitter.NewParser()
				sp.SetLanguage(grammar)
				return sp
			},
		}
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// NestedPolicy returns the configured nested-function policy
func (p *Parser) NestedPolicy() NestedFunctionPolicy {
	return p.nested
}

// ParseFile parses a single file
func (p *Parser) ParseFile(ctx context.Context, filePath string) (*ParsedFile, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return p.ParseContent(ctx, filePath, string(content))
}

// ParseContent parses source code content. The path only selects the
// dialect. A tree containing ERROR or MISSING nodes yields ErrSyntax and no
// records at all.
func (p *Parser) ParseContent(ctx context.Context, filePath, content string) (*ParsedFile, error) {
	lang := DetectLanguage(filePath)
	source := []byte(content)

	tree, err := p.parseTree(ctx, lang, source)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, fmt.Errorf("%w: %s", ErrSyntax, describeError(root))
	}

	ex := &extractor{
		source: source,
		nested: p.nested,
		parsed: &ParsedFile{
			Path:       filePath,
			Language:   lang,
			Functions:  make([]model.FunctionRecord, 0),
			Classes:    make([]model.ClassRecord, 0),
			Interfaces: make([]model.InterfaceRecord, 0),
			Types:      make([]model.TypeAliasRecord, 0),
			Imports:    make([]model.ImportRecord, 0),
			Exports:    make([]model.ExportRecord, 0),
		},
	}

	cursor := sitter.NewTreeCursor(root)
	defer cursor.Close()
	walkTree(cursor, ex.visit)

	return ex.parsed, nil
}

// ExtractSpecifiers returns the module specifiers a file depends on: import
// statements, re-exports, require("x") and import("x") calls. Unlike
// ParseContent it tolerates syntax errors and returns whatever it can find.
func (p *Parser) ExtractSpecifiers(ctx context.Context, filePath string, content []byte) ([]string, error) {
	tree, err := p.parseTree(ctx, DetectLanguage(filePath), content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	seen := make(map[string]bool)
	specifiers := make([]string, 0)
	add := func(spec string) {
		if spec == "" || seen[spec] {
			return
		}
		seen[spec] = true
		specifiers = append(specifiers, spec)
	}

	cursor := sitter.NewTreeCursor(tree.RootNode())
	defer cursor.Close()

	walkTree(cursor, func(n *sitter.Node) {
		switch n.Type() {
		case "import_statement", "export_statement":
			if src := n.ChildByFieldName("source"); src != nil {
				add(unquote(src.Content(content)))
			}
		case "call_expression":
			fn := n.ChildByFieldName("function")
			if fn == nil {
				return
			}
			if fn.Type() != "import" && !(fn.Type() == "identifier" && fn.Content(content) == "require") {
				return
			}
			args := n.ChildByFieldName("arguments")
			if args == nil || args.NamedChildCount() == 0 {
				return
			}
			if first := args.NamedChild(0); first.Type() == "string" {
				add(unquote(first.Content(content)))
			}
		}
	})

	return specifiers, nil
}

func (p *Parser) parseTree(ctx context.Context, lang Language, source []byte) (*sitter.Tree, error) {
	pool, ok := p.pools[lang]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, lang)
	}

	sp := pool.Get().(*sitter.Parser)
	defer pool.Put(sp)

	tree, err := sp.ParseCtx(ctx, nil, source)
	if err != nil {
		sp.Reset()
		return nil, fmt.Errorf("failed to parse: %w", err)
	}
	return tree, nil
}

// walkTree walks the tree depth-first and calls fn for each node
func walkTree(cursor *sitter.TreeCursor, fn func(*sitter.Node)) {
	for {
		fn(cursor.CurrentNode())

		if cursor.GoToFirstChild() {
			continue
		}

		for {
			if cursor.GoToNextSibling() {
				break
			}
			if !cursor.GoToParent() {
				return
			}
		}
	}
}

// describeError locates the first ERROR or MISSING node
func describeError(root *sitter.Node) string {
	var found *sitter.Node

	cursor := sitter.NewTreeCursor(root)
	defer cursor.Close()
	walkTree(cursor, func(n *sitter.Node) {
		if found == nil && (n.Type() == "ERROR" || n.IsMissing()) {
			found = n
		}
	})

	if found == nil {
		return "unparseable input"
	}
	pos := found.StartPoint()
	return fmt.Sprintf("line %d, column %d", pos.Row+1, pos.Column+1)
}

// DetectLanguage detects the grammar dialect from the file extension
func DetectLanguage(path string) Language {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".ts", ".mts", ".cts":
		return LanguageTypeScript
	case ".tsx":
		return LanguageTSX
	case ".js", ".jsx", ".mjs", ".cjs":
		return LanguageJavaScript
	default:
		return LanguageUnknown
	}
}

func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' || first == '\'' || first == '`') && first == last {
			return s[1 : len(s)-1]
		}
	}
	return s
}
