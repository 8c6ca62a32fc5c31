package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/openabap/adtflow/internal/config"
	"github.com/openabap/adtflow/internal/logging"
	"github.com/openabap/adtflow/internal/util"
	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Inspect and export run logs",
	Long: `Commands for the structured run log. Every lifecycle run appends
JSON records to the log file in the state directory; these commands filter
them for post-hoc analysis of failed or crashed runs.`,
}

var logsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show filtered log entries",
	RunE:  runLogsShow,
}

var logsExportCmd = &cobra.Command{
	Use:   "export <output-file>",
	Short: "Export log entries to a file",
	Long: `Export filtered log entries to a file. The format is derived from
--format: json, csv, or text.`,
	Args: cobra.ExactArgs(1),
	RunE: runLogsExport,
}

var (
	logsSession    string
	logsObjectType string
	logsObjectName string
	logsStep       string
	logsLevel      string
	logsSince      time.Duration
	logsContains   string
	logsLimit      int
	logsFormat     string
)

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.AddCommand(logsShowCmd)
	logsCmd.AddCommand(logsExportCmd)

	for _, c := range []*cobra.Command{logsShowCmd, logsExportCmd} {
		c.Flags().StringVar(&logsSession, "session", "", "filter to one session id")
		c.Flags().StringVar(&logsObjectType, "object-type", "", "filter to one object type (with --object-name)")
		c.Flags().StringVar(&logsObjectName, "object-name", "", "filter to one object name (with --object-type)")
		c.Flags().StringVar(&logsStep, "step", "", "filter to one lifecycle step")
		c.Flags().StringVar(&logsLevel, "level", "", "minimum log level (DEBUG, INFO, WARN, ERROR)")
		c.Flags().DurationVar(&logsSince, "since", 0, "only entries newer than this duration (e.g. 2h)")
		c.Flags().StringVar(&logsContains, "contains", "", "only entries whose message contains this text")
	}
	logsShowCmd.Flags().IntVar(&logsLimit, "limit", 0, "show only the last N entries (0 = all)")
	logsExportCmd.Flags().StringVar(&logsFormat, "format", "json", "export format: json, csv, or text")
}

// logsFilter builds the filter from the shared flags.
func logsFilter() logging.LogFilter {
	filter := logging.LogFilter{
		Level:           logsLevel,
		SessionID:       logsSession,
		Step:            logsStep,
		MessageContains: logsContains,
	}
	if logsObjectType != "" && logsObjectName != "" {
		filter.Object = logsObjectType + "/" + logsObjectName
	}
	if logsSince > 0 {
		filter.StartTime = time.Now().Add(-logsSince)
	}
	return filter
}

func loadFilteredEntries() ([]logging.LogEntry, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	entries, err := logging.AggregateLogs(cfg.State.Dir)
	if err != nil {
		return nil, err
	}
	return logging.FilterLogs(entries, logsFilter()), nil
}

func runLogsShow(cmd *cobra.Command, args []string) error {
	entries, err := loadFilteredEntries()
	if err != nil {
		return err
	}

	if logsLimit > 0 && len(entries) > logsLimit {
		entries = entries[len(entries)-logsLimit:]
	}

	if len(entries) == 0 {
		fmt.Println("No matching log entries.")
		return nil
	}

	width := terminalWidth()
	for _, entry := range entries {
		style := subtleStyle
		switch entry.Level {
		case logging.LevelWarn:
			style = warnStyle
		case logging.LevelError:
			style = failStyle
		}

		var context []string
		if entry.SessionID != "" {
			context = append(context, entry.SessionID)
		}
		if entry.Object != "" {
			context = append(context, entry.Object)
		}
		if entry.Step != "" {
			context = append(context, entry.Step)
		}

		line := fmt.Sprintf("%s %s %s",
			subtleStyle.Render(entry.Timestamp.Format("15:04:05.000")),
			style.Render(fmt.Sprintf("%-5s", entry.Level)),
			entry.Message)
		if len(context) > 0 {
			line += " " + keyStyle.Render("["+strings.Join(context, " ")+"]")
		}
		fmt.Println(util.TruncateANSI(line, width))
	}
	fmt.Printf("%d entries\n", len(entries))
	return nil
}

func runLogsExport(cmd *cobra.Command, args []string) error {
	entries, err := loadFilteredEntries()
	if err != nil {
		return err
	}

	outputPath := args[0]
	if err := logging.ExportLogEntries(entries, outputPath, logsFormat); err != nil {
		return err
	}

	fmt.Printf("Exported %d entries to %s\n", len(entries), outputPath)
	return nil
}
