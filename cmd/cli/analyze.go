package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/QTest-hq/codehealth/internal/analyzer"
	"github.com/QTest-hq/codehealth/internal/config"
	"github.com/QTest-hq/codehealth/internal/db"
	"github.com/QTest-hq/codehealth/internal/nats"
	"github.com/QTest-hq/codehealth/pkg/model"
)

func analyzeCmd() *cobra.Command {
	var (
		outputDir string
		baseDir   string
		workers   int
		maxFiles  int
		nested    string
		exclude   []string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "analyze <path>",
		Short: "Analyze a file or directory and write health reports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if outputDir == "" {
				outputDir = cfg.OutputDir
			}

			target := args[0]
			project, err := loadProject(target, baseDir)
			if err != nil {
				return err
			}
			if maxFiles == 0 {
				maxFiles = cfg.MaxFiles
			}
			project.Merge(&config.ProjectConfig{
				Exclude:         exclude,
				MaxFiles:        maxFiles,
				NestedFunctions: nested,
				Workers:         workers,
			})
			if err := project.Validate(); err != nil {
				return fmt.Errorf("invalid project config: %w", err)
			}

			sinks, cleanup, err := openSinks(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			runner := analyzer.NewRunnerFromProject(project, cfg.GraphCacheSize, sinks...)
			summary, err := runner.Run(ctx, analyzer.Request{
				Target:      target,
				ProjectRoot: baseDir,
				OutputDir:   outputDir,
			})
			if err != nil {
				return fmt.Errorf("analysis failed: %w", err)
			}

			if asJSON {
				return printJSON(summary)
			}
			printSummary(summary)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory for reports (default $CODEHEALTH_OUTPUT_DIR or ./reports)")
	cmd.Flags().StringVarP(&baseDir, "base", "b", "", "Project root for dependency analysis and report mirroring")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Concurrent file workers (default from .codehealth.yaml)")
	cmd.Flags().IntVar(&maxFiles, "max-files", 0, "Analyze at most this many files (0 = unlimited)")
	cmd.Flags().StringVar(&nested, "nested", "", "Nested function policy: include or exclude")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "Glob patterns to skip, relative to the target")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the run summary as JSON")

	return cmd
}

// loadProject reads .codehealth.yaml from the project root, which is base
// when given and otherwise the target directory
func loadProject(target, base string) (*config.ProjectConfig, error) {
	root := base
	if root == "" {
		root = target
		if info, err := os.Stat(target); err == nil && !info.IsDir() {
			root = filepath.Dir(target)
		}
	}

	project, err := config.LoadProjectConfig(root)
	if err != nil {
		return nil, fmt.Errorf("failed to load project config: %w", err)
	}
	return project, nil
}

// openSinks connects the optional Postgres and NATS mirrors. Connection
// failures are logged and the run continues with reports only.
func openSinks(ctx context.Context, cfg *config.Config) ([]analyzer.Sink, func(), error) {
	var (
		sinks   []analyzer.Sink
		closers []func()
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.DatabaseURL != "" {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		database, err := db.New(connectCtx, cfg.DatabaseURL)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("url", maskConnectionString(cfg.DatabaseURL)).Msg("health store unavailable, skipping")
		} else {
			store := db.NewStore(database)
			if err := store.EnsureSchema(ctx); err != nil {
				database.Close()
				cleanup()
				return nil, nil, err
			}
			sinks = append(sinks, store)
			closers = append(closers, database.Close)
		}
	}

	if cfg.NATSURL != "" {
		client, err := nats.NewClient(cfg.NATSURL, "codehealth-cli")
		if err != nil {
			log.Warn().Err(err).Str("url", maskConnectionString(cfg.NATSURL)).Msg("event stream unavailable, skipping")
		} else {
			if err := client.SetupStreams(ctx); err != nil {
				client.Close()
				cleanup()
				return nil, nil, err
			}
			sinks = append(sinks, nats.NewPublisher(client))
			closers = append(closers, client.Close)
		}
	}

	return sinks, cleanup, nil
}

var tierColors = map[model.HealthTier]*color.Color{
	model.TierExcellent: color.New(color.FgGreen, color.Bold),
	model.TierGood:      color.New(color.FgGreen),
	model.TierFair:      color.New(color.FgYellow),
	model.TierPoor:      color.New(color.FgRed),
	model.TierCritical:  color.New(color.FgRed, color.Bold),
}

func tierColor(tier model.HealthTier) *color.Color {
	if c, ok := tierColors[tier]; ok {
		return c
	}
	return color.New(color.Reset)
}

func printSummary(s *analyzer.Summary) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("\n%s\n\n", cyan("=== Code Health ==="))
	fmt.Printf("Target:    %s\n", s.Target)
	if s.Head != nil {
		fmt.Printf("Commit:    %s %s\n", s.Head.ShortSHA(), gray(s.Head.Branch))
	}
	fmt.Printf("Files:     %d (%d fallback, %d errors)\n", s.Total, s.Fallbacks, s.Errors)
	fmt.Printf("Reports:   %s\n", s.OutputDir)
	fmt.Printf("Duration:  %v\n\n", s.Duration.Round(time.Millisecond))

	for _, tier := range model.Tiers() {
		fmt.Printf("  %s %4d  %5.1f%%\n", tierColor(tier).Sprintf("%-10s", tier), s.Tiers[tier], s.Percent(tier))
	}

	if s.Total > 0 {
		fmt.Printf("\nAverage complexity:      %.2f\n", s.AverageComplexity)
		fmt.Printf("Average maintainability: %.2f\n", s.AverageMaintainability)
	}

	if len(s.Recommendations) > 0 {
		fmt.Printf("\n%s\n", yellow("Recommendations:"))
		for _, rec := range s.Recommendations {
			fmt.Printf("  - %s %s\n", rec.Message, gray(rec.FilePath))
		}
	}

	if len(s.Failures) > 0 {
		fmt.Printf("\n%s\n", red("Failures:"))
		for _, f := range s.Failures {
			fmt.Printf("  %s %s: %s\n", red("✗"), f.FilePath, f.Error)
		}
	}
	fmt.Println()
}
