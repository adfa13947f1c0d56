package cmd

import (
	"os"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"vmtest/internal/config"
	"vmtest/pkg/logging"
)

var (
	listConfigPath string
	listExpanded   bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the test cases the current selection would run",
	Long: `list loads the catalog and prints the cases the run definition's
criteria select, in the order they would execute. With --expanded the
configured parameter expansions are applied first, so the output shows
the exact case instances a run would produce.`,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVar(&listConfigPath, "config", "run.yaml", "Path to the run definition file")
	listCmd.Flags().BoolVar(&listExpanded, "expanded", false, "Apply the configured expansions before listing")

	listCmd.Flags().StringVar(&runPlatform, "platform", "", "Only list cases declared for this platform")
	listCmd.Flags().StringVar(&runCategory, "category", "", "Only list cases in this category")
	listCmd.Flags().StringVar(&runArea, "area", "", "Only list cases in this area")
	listCmd.Flags().StringSliceVar(&runNames, "names", nil, "List these cases by name")
	listCmd.Flags().StringSliceVar(&runTags, "tags", nil, "Only list cases carrying any of these tags")
	listCmd.Flags().StringVar(&runPriority, "priority", "", "Only list cases with this priority")
	listCmd.Flags().StringVar(&runSetupType, "setup-type", "", "Only list cases whose setup type matches this pattern")
	listCmd.Flags().StringSliceVar(&runExcludes, "exclude", nil, "Exclude cases by exact name or wildcard pattern")
}

func runList(cmd *cobra.Command, args []string) error {
	logging.Init(logging.LevelWarn, os.Stderr)

	cfg, err := config.Load(listConfigPath)
	if err != nil {
		return err
	}
	applyRunFlagOverrides(cmd, &cfg)

	if !listExpanded {
		cfg.Expansions = nil
	}
	cases, err := selectCases(cfg)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "NAME", "CATEGORY", "AREA", "PRIORITY", "TAGS", "SCRIPT"})
	for i, tc := range cases {
		priority := "-"
		if p, ok := tc.DeclaredPriority(); ok {
			priority = strconv.Itoa(p)
		}
		t.AppendRow(table.Row{
			i + 1,
			tc.Name,
			tc.Category,
			tc.Area,
			priority,
			strings.Join(tc.TagList(), ","),
			tc.TestScript,
		})
	}
	t.Render()
	return nil
}
