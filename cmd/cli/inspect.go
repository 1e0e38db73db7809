package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/QTest-hq/codehealth/internal/analyzer"
	"github.com/QTest-hq/codehealth/internal/config"
	"github.com/QTest-hq/codehealth/internal/health"
	"github.com/QTest-hq/codehealth/internal/parser"
	"github.com/QTest-hq/codehealth/internal/report"
	"github.com/QTest-hq/codehealth/pkg/model"
)

// parsedView is the JSON shape printed by the parse command
type parsedView struct {
	Path       string                  `json:"path"`
	Language   parser.Language         `json:"language"`
	Complexity int                     `json:"complexity"`
	Functions  []model.FunctionRecord  `json:"functions"`
	Classes    []model.ClassRecord     `json:"classes"`
	Interfaces []model.InterfaceRecord `json:"interfaces"`
	Types      []model.TypeAliasRecord `json:"types"`
	Imports    []model.ImportRecord    `json:"imports"`
	Exports    []model.ExportRecord    `json:"exports"`
}

func parseCmd() *cobra.Command {
	var (
		filePath string
		nested   string
	)

	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Parse a source file and print its structural records",
		RunE: func(cmd *cobra.Command, args []string) error {
			abs, err := validateFilePath(filePath)
			if err != nil {
				return err
			}

			policy := parser.NestedFunctionPolicy(nested)
			if !policy.Valid() {
				return fmt.Errorf("unknown nested function policy %q", nested)
			}

			p := parser.NewParser(parser.WithNestedFunctionPolicy(policy))
			parsed, err := p.ParseFile(context.Background(), abs)
			if err != nil {
				return fmt.Errorf("failed to parse file: %w", err)
			}

			return printJSON(parsedView{
				Path:       parsed.Path,
				Language:   parsed.Language,
				Complexity: parsed.TotalComplexity(),
				Functions:  parsed.Functions,
				Classes:    parsed.Classes,
				Interfaces: parsed.Interfaces,
				Types:      parsed.Types,
				Imports:    parsed.Imports,
				Exports:    parsed.Exports,
			})
		},
	}

	cmd.Flags().StringVarP(&filePath, "file", "f", "", "Source file to parse")
	cmd.Flags().StringVar(&nested, "nested", string(parser.NestedInclude), "Nested function policy: include or exclude")
	cmd.MarkFlagRequired("file")

	return cmd
}

func scoreCmd() *cobra.Command {
	var (
		filePath string
		rootDir  string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Analyze one file and explain its health score",
		RunE: func(cmd *cobra.Command, args []string) error {
			abs, err := validateFilePath(filePath)
			if err != nil {
				return err
			}

			projectDir := filepath.Dir(abs)
			if rootDir != "" {
				if projectDir, err = validateDirPath(rootDir); err != nil {
					return err
				}
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			project, err := config.LoadProjectConfig(projectDir)
			if err != nil {
				return fmt.Errorf("failed to load project config: %w", err)
			}
			if err := project.Validate(); err != nil {
				return fmt.Errorf("invalid project config: %w", err)
			}

			engine := analyzer.NewEngineFromProject(project, cfg.GraphCacheSize)
			// An empty root skips dependency analysis
			rec, err := engine.AnalyzeFile(context.Background(), abs, rootDir)
			if err != nil {
				return err
			}

			breakdown := explain(rec)
			if asJSON {
				return printJSON(breakdown)
			}
			printBreakdown(rec, breakdown)
			return nil
		},
	}

	cmd.Flags().StringVarP(&filePath, "file", "f", "", "Source file to score")
	cmd.Flags().StringVarP(&rootDir, "root", "r", "", "Project root for dependency analysis")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the breakdown as JSON")
	cmd.MarkFlagRequired("file")

	return cmd
}

// explain reproduces the score of rec; fallback records are scored without
// their dependency profile
func explain(rec *model.AnalysisRecord) health.Breakdown {
	var deps *model.DependencyProfile
	if !rec.IsFallback() {
		deps = &rec.Analysis.Dependencies
	}
	return health.Explain(health.MetricsOf(&rec.Analysis), deps)
}

func printBreakdown(rec *model.AnalysisRecord, b health.Breakdown) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("\n%s\n", rec.FilePath)
	if rec.Analysis.Note != "" {
		fmt.Printf("%s\n", gray(rec.Analysis.Note))
	}
	fmt.Println()

	for _, c := range b.Contributions {
		points := fmt.Sprintf("%+d", c.Points)
		switch {
		case c.Points > 0:
			points = green(points)
		case c.Points < 0:
			points = red(points)
		default:
			points = gray(points)
		}
		fmt.Printf("  %-16s %10.2f  %s\n", c.Factor, c.Value, points)
	}

	fmt.Printf("\n  %-16s %10d  %s\n\n", "total", b.Total, tierColor(b.Tier).Sprint(b.Tier))
}

func indexCmd() *cobra.Command {
	var (
		outputDir string
		tierName  string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Show the per-tier health index of a report directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputDir == "" {
				cfg, err := config.Load()
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				outputDir = cfg.OutputDir
			}
			writer := report.NewWriter(outputDir)

			if tierName == "" {
				for _, tier := range model.Tiers() {
					entries, err := writer.LoadIndex(tier)
					if err != nil {
						return err
					}
					fmt.Printf("  %s %4d\n", tierColor(tier).Sprintf("%-10s", tier), len(entries))
				}
				return nil
			}

			tier, err := model.ParseTier(tierName)
			if err != nil {
				return err
			}
			entries, err := writer.LoadIndex(tier)
			if err != nil {
				return err
			}
			if limit > 0 && len(entries) > limit {
				entries = entries[:limit]
			}

			if len(entries) == 0 {
				fmt.Printf("No files in tier %s\n", tier)
				return nil
			}
			fmt.Printf("%-8s %-8s %-6s %s\n", "CC", "MI", "LOC", "FILE")
			for _, e := range entries {
				fmt.Printf("%-8d %-8.2f %-6d %s\n", e.Complexity, e.Maintainability, e.LOC, e.FilePath)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Report directory (default $CODEHEALTH_OUTPUT_DIR or ./reports)")
	cmd.Flags().StringVarP(&tierName, "tier", "t", "", "Tier to list; counts every tier when empty")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries to list (0 = all)")

	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
