// Package model defines the analysis records produced by the health engine.
// These shapes are the contract consumed by the report index, the HTTP API
// and any downstream annotation tooling, so JSON field names are stable.
package model

// Parameter represents a function or method parameter
type Parameter struct {
	Name         string  `json:"name"`
	Type         string  `json:"type"`         // "any" when undeclared
	Optional     bool    `json:"optional"`
	DefaultValue *string `json:"defaultValue"` // null when absent
}

// FunctionRecord represents a function, method, arrow function or function expression
type FunctionRecord struct {
	Name       string      `json:"name"`
	Parameters []Parameter `json:"parameters"`
	ReturnType string      `json:"returnType"`
	IsAsync    bool        `json:"isAsync"`
	IsExported bool        `json:"isExported"`
	Complexity int         `json:"complexity"`
	StartLine  int         `json:"startLine"`
	EndLine    int         `json:"endLine"`
	Length     int         `json:"length"`

	// Populated only by the heuristic fallback
	LOC        int `json:"loc,omitempty"`
	Difficulty int `json:"difficulty,omitempty"`
	Effort     int `json:"effort,omitempty"`
}

// Heritage is one extends/implements clause
type Heritage struct {
	Type  string   `json:"type,omitempty"` // extends, implements; empty for interfaces
	Types []string `json:"types"`
}

// PropertyRecord represents a class field
type PropertyRecord struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	IsStatic    bool   `json:"isStatic"`
	IsPrivate   bool   `json:"isPrivate"`
	IsProtected bool   `json:"isProtected"`
	IsReadonly  bool   `json:"isReadonly"`
}

// ClassRecord represents a class declaration
type ClassRecord struct {
	Name       string           `json:"name"`
	IsExported bool             `json:"isExported"`
	IsAbstract bool             `json:"isAbstract"`
	Heritage   []Heritage       `json:"heritage"`
	Methods    []FunctionRecord `json:"methods"`
	Properties []PropertyRecord `json:"properties"`
	StartLine  int              `json:"startLine"`
	EndLine    int              `json:"endLine"`
	Length     int              `json:"length"`
}

// SignatureParameter is a parameter of an interface method signature
type SignatureParameter struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Optional bool   `json:"optional"`
}

// PropertySignature is an interface property member
type PropertySignature struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Optional bool   `json:"optional"`
}

// MethodSignature is an interface method member
type MethodSignature struct {
	Name       string               `json:"name"`
	Parameters []SignatureParameter `json:"parameters"`
	ReturnType string               `json:"returnType"`
}

// InterfaceRecord represents an interface declaration
type InterfaceRecord struct {
	Name       string              `json:"name"`
	IsExported bool                `json:"isExported"`
	Heritage   []Heritage          `json:"heritage"`
	Properties []PropertySignature `json:"properties"`
	Methods    []MethodSignature   `json:"methods"`
	StartLine  int                 `json:"startLine"`
	EndLine    int                 `json:"endLine"`
	Length     int                 `json:"length"`
}

// TypeAliasRecord represents a type alias declaration
type TypeAliasRecord struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	IsExported bool   `json:"isExported"`
	StartLine  int    `json:"startLine"`
	EndLine    int    `json:"endLine"`
}

// Binding kinds for imports and exports
const (
	BindingDefault    = "default"
	BindingNamespace  = "namespace"
	BindingNamed      = "named"
	BindingSideEffect = "side-effect"
)

// Binding is one imported or exported name
type Binding struct {
	Type  string  `json:"type"`
	Name  string  `json:"name"`
	Alias *string `json:"alias"`
}

// ImportRecord represents one import statement
type ImportRecord struct {
	ModuleSpecifier string    `json:"moduleSpecifier"`
	Imports         []Binding `json:"imports"`
}

// Export record kinds
const (
	ExportDeclaration = "declaration"
	ExportAssignment  = "assignment"
)

// ExportRecord represents an export declaration (export { ... } [from "..."])
// or an export assignment (export default expr, export = expr)
type ExportRecord struct {
	Type            string    `json:"type"`
	ModuleSpecifier *string   `json:"moduleSpecifier"`
	Exports         []Binding `json:"exports,omitempty"`
	IsDefault       bool      `json:"isDefault,omitempty"`
	IsExportEquals  bool      `json:"isExportEquals,omitempty"`
	Expression      string    `json:"expression,omitempty"`
}

// Dependency edge classifications
const (
	EdgeRelative      = "relative"
	EdgeInternalAlias = "internal-alias"
	EdgeInternal      = "internal"
	EdgeAbsolute      = "absolute"
	EdgeExternal      = "external"
)

// DependencyEdge is one outgoing dependency of a file
type DependencyEdge struct {
	Path         string `json:"path"`
	AbsolutePath string `json:"absolutePath"`
	Exists       bool   `json:"exists"`
	IsExternal   bool   `json:"isExternal"`
	Extension    string `json:"extension"`
	Type         string `json:"type"`
}

// Dependent is a file importing the analyzed file
type Dependent struct {
	Path         string `json:"path"`
	AbsolutePath string `json:"absolutePath"`
}

// DependencyProfile summarizes a file's position in the project import graph
type DependencyProfile struct {
	Dependencies            []DependencyEdge `json:"dependencies"`
	Dependents              []Dependent      `json:"dependents"`
	CircularDependencies    [][]string       `json:"circularDependencies"`
	DependencyCount         int              `json:"dependencyCount"`
	DependentCount          int              `json:"dependentCount"`
	Depth                   int              `json:"depth"`
	HasCircularDependencies bool             `json:"hasCircularDependencies"`
	Note                    string           `json:"note,omitempty"`
	Error                   string           `json:"error,omitempty"`
}

// EmptyProfile returns a profile with zero counts and the given diagnostic note
func EmptyProfile(note string) DependencyProfile {
	return DependencyProfile{
		Dependencies:         []DependencyEdge{},
		Dependents:           []Dependent{},
		CircularDependencies: [][]string{},
		Note:                 note,
	}
}

// Stats holds derived counts for an analysis
type Stats struct {
	FunctionCount             int             `json:"functionCount"`
	ClassCount                int             `json:"classCount"`
	InterfaceCount            int             `json:"interfaceCount"`
	TypeCount                 int             `json:"typeCount"`
	ImportCount               int             `json:"importCount"`
	ExportCount               int             `json:"exportCount"`
	DependencyCount           int             `json:"dependencyCount"`
	DependentCount            int             `json:"dependentCount"`
	DependencyDepth           int             `json:"dependencyDepth"`
	HasCircularDependencies   bool            `json:"hasCircularDependencies"`
	AverageFunctionComplexity float64         `json:"averageFunctionComplexity"`
	MostComplexFunction       *FunctionRecord `json:"mostComplexFunction"`
}

// Analysis modes
const (
	ModeStructural = "structural"
	ModeFallback   = "fallback"
)

// Analysis is the payload of an AnalysisRecord
type Analysis struct {
	Maintainability float64 `json:"maintainability"`
	Complexity      int     `json:"complexity"`
	Difficulty      float64 `json:"difficulty"`
	Effort          float64 `json:"effort"`
	LOC             int     `json:"loc"`
	TotalLines      int     `json:"totalLines"`
	MaxNestingDepth int     `json:"maxNestingDepth"`

	Functions  []FunctionRecord  `json:"functions"`
	Classes    []ClassRecord     `json:"classes"`
	Interfaces []InterfaceRecord `json:"interfaces"`
	Types      []TypeAliasRecord `json:"types"`
	Imports    []ImportRecord    `json:"imports"`
	Exports    []ExportRecord    `json:"exports"`

	Dependencies DependencyProfile `json:"dependencies"`
	Stats        Stats             `json:"stats"`

	Mode string `json:"mode"`
	Note string `json:"note,omitempty"`
}

// AnalysisRecord is the unit of persistence: one per analyzed source file
type AnalysisRecord struct {
	FilePath    string     `json:"filePath"`
	HealthLevel HealthTier `json:"healthLevel"`
	Analysis    Analysis   `json:"analysis"`
}

// IsFallback reports whether the record came from the heuristic-only path
func (r *AnalysisRecord) IsFallback() bool {
	return r.Analysis.Mode == ModeFallback
}
