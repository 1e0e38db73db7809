package analyzer

import (
	"github.com/QTest-hq/codehealth/internal/config"
	"github.com/QTest-hq/codehealth/internal/depgraph"
	"github.com/QTest-hq/codehealth/internal/parser"
)

// OptionsFromProject maps project settings to runner options
func OptionsFromProject(project *config.ProjectConfig) Options {
	return Options{
		Extensions:  project.Extensions,
		ExcludeDirs: project.ExcludeDirs,
		Exclude:     project.Exclude,
		MaxFiles:    project.MaxFiles,
		Workers:     project.Workers,
	}
}

// NewEngineFromProject wires a parser and a graph cache holding at most
// cacheSize project roots
func NewEngineFromProject(project *config.ProjectConfig, cacheSize int) *Engine {
	p := parser.NewParser(parser.WithNestedFunctionPolicy(project.NestedPolicy()))

	builder := depgraph.NewBuilder(p)
	if len(project.Extensions) > 0 {
		builder.Extensions = project.Extensions
	}
	if len(project.ExcludeDirs) > 0 {
		builder.ExcludeDirs = project.ExcludeDirs
	}
	builder.Exclude = project.Exclude
	if project.AliasPrefix != "" {
		builder.AliasPrefix = project.AliasPrefix
	}
	builder.IncludeNpm = project.IncludeNpm

	return NewEngine(p, depgraph.NewCache(builder, depgraph.NewLRUStore(cacheSize)))
}

// NewRunnerFromProject builds the whole pipeline for one project config
func NewRunnerFromProject(project *config.ProjectConfig, cacheSize int, sinks ...Sink) *Runner {
	return NewRunner(NewEngineFromProject(project, cacheSize), OptionsFromProject(project), sinks...)
}
