package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	stepStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "class-coupling-analyzer",
		Short: "Compute call and hierarchy coupling between compiled Java classes",
		Long: `Reads compiled classes from a class path and reports, for every class
under the project prefix, which classes it calls into and which classes share
its superclass/interface hierarchy.

Example:
  class-coupling-analyzer -c target/classes:lib/* -p com.example
  class-coupling-analyzer -c app.jar -p com.example -t com.example.Order --format csv,yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			level := LevelInfo
			if cfg.Verbose {
				level = LevelDebug
			}
			log := NewLogger(level, cmd.ErrOrStderr())
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			_, err = runAnalysis(ctx, cfg, log, cmd.OutOrStdout())
			return err
		},
	}

	f := cmd.Flags()
	f.StringP("project_cp", "c", "", "Project class path (directories, jars, dir/*)")
	f.StringP("project_prefix", "p", "", "Package prefix of the classes to analyze")
	f.StringP("target_class", "t", "", "Restrict the analysis to couplings of this class")
	f.StringP("output_folder", "o", defaultOutputFolder, "Folder for the generated reports")
	f.String("direction", CallerToCallee.String(), "Call coupling direction: caller, callee or both")
	f.StringSlice("format", nil, "Report formats: csv, yaml, sqlite (default csv)")
	f.Int("workers", 0, "Class path entries read in parallel (default: number of CPUs)")
	f.String("config", "", "Config file (default ./coupling.yaml if present)")
	f.BoolP("verbose", "v", false, "Debug logging")
	f.String("neo4j-uri", "bolt://localhost:7687", "Neo4j bolt URI")
	f.String("neo4j-user", "neo4j", "Neo4j username")
	f.String("neo4j-pass", "", "Neo4j password; enables the graph export")
	f.Bool("clean", false, "Clean existing coupling graph before loading")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "class-coupling-analyzer %s\n", version)
		},
	})
	return cmd
}

// runAnalysis loads the class universe, runs both analyzers, saves the
// reports and, when configured, exports the result to Neo4j.
func runAnalysis(ctx context.Context, cfg *Config, log Logger, out io.Writer) (*Collector, error) {
	entries := resolveClassPath(cfg.ClassPath)
	log.Info("Resolved class path",
		F("entries", len(entries)),
		F("prefix", cfg.ProjectPrefix),
		F("target", cfg.TargetClass))

	collector := NewCollector(cfg.ProjectPrefix, cfg.TargetClass, log, WithDirection(cfg.Direction))
	if err := collector.LoadUniverse(ctx, entries, cfg.Workers); err != nil {
		return nil, err
	}
	if err := collector.Analyze(ctx); err != nil {
		return nil, fmt.Errorf("analysis failed: %w", err)
	}

	saver := NewReportSaver(log, cfg.Formats...)
	if err := saver.SaveMethodCallAnalyzerReport(cfg.OutputFolder, collector.Calls); err != nil {
		return nil, err
	}
	if err := saver.SaveSuperSubClassReport(cfg.OutputFolder, collector.Hierarchy); err != nil {
		return nil, err
	}

	if cfg.Neo4j.Enabled() {
		if err := exportGraph(ctx, cfg.Neo4j, collector, log); err != nil {
			return nil, err
		}
	}

	printSummary(out, cfg, collector)
	return collector, nil
}

func exportGraph(ctx context.Context, nc Neo4jConfig, c *Collector, log Logger) error {
	loader, err := NewNeo4jLoader(ctx, nc.URI, nc.User, nc.Password, log)
	if err != nil {
		return err
	}
	defer loader.Close()

	if nc.Clean {
		if err := loader.CleanGraph(); err != nil {
			return fmt.Errorf("cleaning graph: %w", err)
		}
	}
	if err := loader.CreateIndexes(); err != nil {
		return fmt.Errorf("creating indexes: %w", err)
	}
	if err := loader.LoadClasses(c.Universe, c.Scope()); err != nil {
		return fmt.Errorf("loading classes: %w", err)
	}
	if err := loader.LoadCallCouplings(c.Calls); err != nil {
		return fmt.Errorf("loading call couplings: %w", err)
	}
	if err := loader.LoadHierarchyCouplings(c.Hierarchy); err != nil {
		return fmt.Errorf("loading hierarchy couplings: %w", err)
	}
	log.Info("Coupling graph loaded into Neo4j", F("uri", nc.URI))
	return nil
}

func printSummary(out io.Writer, cfg *Config, c *Collector) {
	mode := "project"
	if cfg.TargetMode() {
		mode = "target " + cfg.TargetClass
	}
	fmt.Fprintln(out, titleStyle.Render("Coupling analysis complete"))
	fmt.Fprintln(out, infoStyle.Render(fmt.Sprintf("Scope: prefix %q, %s", cfg.ProjectPrefix, mode)))
	fmt.Fprintln(out, stepStyle.Render(fmt.Sprintf("   %d classes loaded, %d in scope",
		c.Universe.Len(), c.CallStats.Classes)))
	fmt.Fprintln(out, stepStyle.Render(fmt.Sprintf("   %d call records (%d edges, %d unresolved call sites, direction %s)",
		len(c.Calls), c.CallStats.Edges, c.CallStats.Unresolved, cfg.Direction)))
	fmt.Fprintln(out, stepStyle.Render(fmt.Sprintf("   %d hierarchy records in %d trees (%d missing ancestors)",
		len(c.Hierarchy), len(c.Trees), c.HierarchyStats.MissingAncestors)))
	fmt.Fprintln(out, infoStyle.Render("Reports: "+cfg.OutputFolder))
}
