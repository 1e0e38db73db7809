package parser

import "github.com/QTest-hq/codehealth/pkg/model"

// Language represents a grammar dialect
type Language string

const (
	LanguageTypeScript Language = "typescript"
	LanguageTSX        Language = "tsx"
	LanguageJavaScript Language = "javascript"
	LanguageUnknown    Language = "unknown"
)

// NestedFunctionPolicy controls whether a function's complexity includes the
// branches of functions nested inside it
type NestedFunctionPolicy string

const (
	// NestedInclude counts nested function bodies toward the enclosing function
	NestedInclude NestedFunctionPolicy = "include"
	// NestedExclude stops at nested function boundaries
	NestedExclude NestedFunctionPolicy = "exclude"
)

// Valid reports whether the policy is known
func (p NestedFunctionPolicy) Valid() bool {
	return p == NestedInclude || p == NestedExclude
}

// ParsedFile represents a structurally parsed source file
type ParsedFile struct {
	Path       string
	Language   Language
	Functions  []model.FunctionRecord
	Classes    []model.ClassRecord
	Interfaces []model.InterfaceRecord
	Types      []model.TypeAliasRecord
	Imports    []model.ImportRecord
	Exports    []model.ExportRecord
}

// TotalComplexity returns 1 plus the sum of per-function complexity
func (f *ParsedFile) TotalComplexity() int {
	total := 1
	for _, fn := range f.Functions {
		total += fn.Complexity
	}
	return total
}
