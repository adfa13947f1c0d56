package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"vmtest/internal/catalog"
	"vmtest/internal/config"
	"vmtest/internal/orchestrator"
	"vmtest/internal/remote"
	"vmtest/internal/reporting"
	"vmtest/pkg/logging"
)

var (
	runConfigPath string
	runVerbose    bool
	runDebug      bool
	runReportPath string

	// Selection overrides. A flag set on the command line replaces the
	// corresponding criteria field from the run definition.
	runPlatform  string
	runCategory  string
	runArea      string
	runNames     []string
	runTags      []string
	runPriority  string
	runSetupType string
	runExcludes  []string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the selected test cases against the configured targets",
	Long: `run loads the test case catalog, applies the selection criteria and
parameter expansions from the run definition, and executes the result
against every configured target machine.

Selection flags override the corresponding criteria from the run
definition file, so a CI pipeline can reuse one definition for many
slices of the catalog.

Example usage:
  vmtest run --config=run.yaml
  vmtest run --config=run.yaml --category=Functional --area=KVM
  vmtest run --config=run.yaml --names=VERIFY-BOOT,VERIFY-RELOAD
  vmtest run --config=run.yaml --exclude='STRESS-*' --priority=0
  vmtest run --config=run.yaml --report=results/run.json --verbose`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runConfigPath, "config", "run.yaml", "Path to the run definition file")
	runCmd.Flags().StringVar(&runReportPath, "report", "", "Path for the JSON report (overrides the run definition)")

	runCmd.Flags().BoolVar(&runVerbose, "verbose", false, "Print per-target output for every case")
	runCmd.Flags().BoolVar(&runDebug, "debug", false, "Enable debug logging")

	runCmd.Flags().StringVar(&runPlatform, "platform", "", "Only run cases declared for this platform")
	runCmd.Flags().StringVar(&runCategory, "category", "", "Only run cases in this category")
	runCmd.Flags().StringVar(&runArea, "area", "", "Only run cases in this area")
	runCmd.Flags().StringSliceVar(&runNames, "names", nil, "Run these cases by name, bypassing category/area/tag/priority filters")
	runCmd.Flags().StringSliceVar(&runTags, "tags", nil, "Only run cases carrying any of these tags")
	runCmd.Flags().StringVar(&runPriority, "priority", "", "Only run cases with this priority")
	runCmd.Flags().StringVar(&runSetupType, "setup-type", "", "Only run cases whose setup type matches this pattern")
	runCmd.Flags().StringSliceVar(&runExcludes, "exclude", nil, "Exclude cases by exact name or wildcard pattern")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, stopping the run gracefully...")
		cancel()
	}()

	level := logging.LevelInfo
	if runDebug {
		level = logging.LevelDebug
	}
	logging.Init(level, os.Stderr)

	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return err
	}
	applyRunFlagOverrides(cmd, &cfg)

	cases, err := selectCases(cfg)
	if err != nil {
		return err
	}
	if len(cases) == 0 {
		return fmt.Errorf("no test cases matched the selection criteria")
	}

	targets, err := buildTargets(cfg)
	if err != nil {
		return err
	}

	transport := remote.NewSSHTransport()
	tracker := remote.NewJobTracker()
	runner := remote.NewRunner(transport, tracker)
	transfer := remote.NewTransfer(transport, runner)
	reporter := reporting.NewConsoleReporter(runVerbose)

	o := orchestrator.New(runner, transfer, tracker, reporter)
	o.ScriptsDir = cfg.Catalog.ScriptsDir
	o.CaseTimeout = cfg.Run.CaseTimeout
	o.MaxRetries = cfg.Run.MaxRetries
	o.DisableCompression = cfg.Run.DisableCompression

	suite := o.RunSuite(ctx, cases, targets)

	if cfg.Run.ReportPath != "" {
		if err := reporting.WriteReport(cfg.Run.ReportPath, suite); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		logging.Info("CLI", "report written to %s", cfg.Run.ReportPath)
	}

	if suite.Failed > 0 || suite.Aborted > 0 {
		return fmt.Errorf("%d of %d test case(s) did not pass", suite.Failed+suite.Aborted, suite.Total)
	}
	return nil
}

// applyRunFlagOverrides replaces criteria fields from the run definition
// with the ones set on the command line.
func applyRunFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("platform") {
		cfg.Criteria.Platform = runPlatform
	}
	if cmd.Flags().Changed("category") {
		cfg.Criteria.Category = runCategory
	}
	if cmd.Flags().Changed("area") {
		cfg.Criteria.Area = runArea
	}
	if cmd.Flags().Changed("names") {
		cfg.Criteria.Names = runNames
	}
	if cmd.Flags().Changed("tags") {
		cfg.Criteria.Tags = runTags
	}
	if cmd.Flags().Changed("priority") {
		cfg.Criteria.Priority = runPriority
	}
	if cmd.Flags().Changed("setup-type") {
		cfg.Criteria.SetupType = runSetupType
	}
	if cmd.Flags().Changed("exclude") {
		cfg.Criteria.Excludes = runExcludes
	}
	if cmd.Flags().Changed("report") {
		cfg.Run.ReportPath = runReportPath
	}
}

// selectCases loads the catalog, filters it, and applies the configured
// expansions in order.
func selectCases(cfg config.Config) ([]catalog.TestCase, error) {
	universe, err := catalog.Load(cfg.Catalog.Paths)
	if err != nil {
		return nil, err
	}

	cases := catalog.Select(universe, criteriaFromConfig(cfg.Criteria))
	for _, exp := range cfg.Expansions {
		cases = catalog.Expand(cases, catalog.Expansion{
			Axis:       exp.Axis,
			Value:      exp.Value,
			Default:    exp.Default,
			Splitter:   exp.Splitter,
			Force:      exp.Force,
			UpdateName: exp.UpdateName,
		})
	}
	return cases, nil
}

func criteriaFromConfig(c config.CriteriaConfig) catalog.Criteria {
	return catalog.Criteria{
		Platform:  c.Platform,
		Category:  c.Category,
		Area:      c.Area,
		Names:     c.Names,
		Tags:      c.Tags,
		Priority:  c.Priority,
		SetupType: c.SetupType,
		Excludes:  c.Excludes,
	}
}

// buildTargets converts target definitions into dialable targets,
// loading private key material from disk.
func buildTargets(cfg config.Config) ([]remote.Target, error) {
	targets := make([]remote.Target, 0, len(cfg.Targets))
	for _, tc := range cfg.Targets {
		target := remote.Target{
			Host:     tc.Host,
			Port:     tc.Port,
			Username: tc.Username,
			Password: tc.Password,
		}
		if tc.PrivateKeyPath != "" {
			key, err := os.ReadFile(tc.PrivateKeyPath)
			if err != nil {
				return nil, fmt.Errorf("failed to read private key for %s: %w", tc.Host, err)
			}
			target.PrivateKey = key
		}
		targets = append(targets, target)
	}
	return targets, nil
}
