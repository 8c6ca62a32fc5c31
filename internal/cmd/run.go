package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openabap/adtflow/internal/adt"
	"github.com/openabap/adtflow/internal/lifecycle"
	"github.com/openabap/adtflow/internal/session"
	"github.com/openabap/adtflow/internal/util"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive one object through the full edit lifecycle",
	Long: `Run the edit lifecycle against one repository object:
validate, create, lock, update, unlock, activate, check and delete.

The update step runs only when --source supplies an update payload; the
final delete runs only when cleanup is enabled. If any step fails, the
compensating cleanup releases the lock and removes the created object
before the error is reported.

Session credentials are persisted before the first lifecycle step, so a
crashed run can be recovered later with 'adtflow recover'.`,
	RunE: runRun,
}

var (
	runObjectType  string
	runObjectName  string
	runPackage     string
	runDescription string
	runBasePath    string
	runSourceFile  string
	runTransport   string
	runSessionID   string
	runNoCleanup   bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runObjectType, "object-type", "CLAS/OC", "repository object type identifier")
	runCmd.Flags().StringVar(&runObjectName, "object-name", "", "object name (required)")
	runCmd.Flags().StringVar(&runPackage, "package", "", "target development package")
	runCmd.Flags().StringVar(&runDescription, "description", "", "object description")
	runCmd.Flags().StringVar(&runBasePath, "base-path", "/sap/bc/adt/oo/classes", "collection path of the object type")
	runCmd.Flags().StringVar(&runSourceFile, "source", "", "file with the update payload (enables the update step)")
	runCmd.Flags().StringVar(&runTransport, "transport", "", "change request the object is created under")
	runCmd.Flags().StringVar(&runSessionID, "session", "", "session id override (default derives one from config)")
	runCmd.Flags().BoolVar(&runNoCleanup, "no-cleanup", false, "leave the object behind after a successful run")

	_ = runCmd.MarkFlagRequired("object-name")
}

func runRun(cmd *cobra.Command, args []string) error {
	env, err := buildEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessionID := runSessionID
	if sessionID == "" {
		sessionID = session.ResolveSessionID(env.cfg.Session.IDFormat, env.cfg.Session.Label)
	}
	logger := env.logger.WithSession(sessionID)

	if err := env.conn.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", env.cfg.Connection.BaseURL, err)
	}

	// Persist the session before the first lifecycle step so a crash at
	// any later point is recoverable.
	state := session.NewState(sessionID)
	state.State = env.conn.ExportState()
	if err := env.store.Save(state); err != nil {
		return err
	}
	fmt.Printf("Session %s persisted\n", sessionStyle.Render(sessionID))

	source := ""
	if runSourceFile != "" {
		data, err := os.ReadFile(runSourceFile)
		if err != nil {
			return fmt.Errorf("failed to read source file: %w", err)
		}
		source = string(data)
	}

	cleanup := env.cfg.Cleanup
	if runNoCleanup {
		cleanup.AfterRun = false
	}

	client := adt.NewClient(env.conn, adt.ObjectConfig{
		Type:        runObjectType,
		Name:        runObjectName,
		Package:     runPackage,
		Description: runDescription,
		BasePath:    runBasePath,
		Source:      source,
		Transport:   runTransport,
	}, adt.Builders{}, env.logger)

	orch := lifecycle.NewOrchestrator(client, env.registry, lifecycle.Options{
		ObjectType: runObjectType,
		ObjectName: runObjectName,
		SessionID:  sessionID,
		HasUpdate:  source != "",
		Lifecycle:  env.cfg.Lifecycle,
		Cleanup:    cleanup,
		Logger:     env.logger,
	})

	report, runErr := orch.Run(ctx)
	printReport(report)

	if runErr == nil && !env.cfg.Cleanup.KeepSession {
		if err := env.store.Delete(sessionID); err != nil {
			logger.Warn("failed to remove session file", "error", err.Error())
		}
	}
	return runErr
}

func printReport(report *lifecycle.Report) {
	fmt.Println(rule())
	fmt.Printf("%s %s %s\n",
		headerStyle.Render("Lifecycle run"),
		keyStyle.Render(report.ObjectType),
		keyStyle.Render(report.ObjectName))
	fmt.Println(rule())

	if report.Skipped {
		fmt.Println(warnStyle.Render("Run skipped: configuration incomplete"))
		return
	}

	for _, step := range report.Steps {
		var marker string
		switch step.Outcome {
		case lifecycle.OutcomeOK:
			marker = okStyle.Render("✓")
		case lifecycle.OutcomeFailed:
			marker = failStyle.Render("✗")
		default:
			marker = skipStyle.Render("–")
		}
		line := fmt.Sprintf("%s %-10s %s", marker, step.Step, subtleStyle.Render(step.Duration.Round(time.Millisecond).String()))
		if step.Error != "" {
			line += " " + failStyle.Render(step.Error)
		}
		fmt.Println(util.TruncateANSI(line, terminalWidth()))
	}

	if report.CompensationAttempted {
		if report.CompensationSucceeded {
			fmt.Println(warnStyle.Render("Compensating cleanup completed"))
		} else {
			fmt.Println(failStyle.Render("Compensating cleanup reported failures, check the log"))
		}
	}
	fmt.Printf("Reached step %s in %s\n",
		keyStyle.Render(report.Step),
		report.Finished.Sub(report.Started).Round(time.Millisecond))
}
