package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openabap/adtflow/internal/adt"
	"github.com/openabap/adtflow/internal/recovery"
	"github.com/spf13/cobra"
)

var recoverCmd = &cobra.Command{
	Use:   "recover [session-id]",
	Short: "Release locks left behind by a crashed run",
	Long: `Recover loads the persisted session, restores its credentials into a
fresh connection, looks up the stored lock handle in the registry, and
performs the remote unlock the crashed process never got to.

With --object-type and --object-name a single lock is released; without
them every lock the session owns is released. With --scan no session id
is needed: the registry is scanned for locks whose owning process is
dead, and the candidates are listed without releasing anything.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRecover,
}

var (
	recoverObjectType string
	recoverObjectName string
	recoverBasePath   string
	recoverScan       bool
)

func init() {
	rootCmd.AddCommand(recoverCmd)

	recoverCmd.Flags().StringVar(&recoverObjectType, "object-type", "", "object type of the lock to release")
	recoverCmd.Flags().StringVar(&recoverObjectName, "object-name", "", "object name of the lock to release")
	recoverCmd.Flags().StringVar(&recoverBasePath, "base-path", "/sap/bc/adt/oo/classes", "collection path of the object type")
	recoverCmd.Flags().BoolVar(&recoverScan, "scan", false, "list locks owned by dead processes, release nothing")
}

func runRecover(cmd *cobra.Command, args []string) error {
	env, err := buildEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	factory := func(objectType, objectName string) adt.RemoteObject {
		return adt.NewClient(env.conn, adt.ObjectConfig{
			Type:     objectType,
			Name:     objectName,
			BasePath: recoverBasePath,
		}, adt.Builders{}, env.logger)
	}
	coord := recovery.NewCoordinator(env.store, env.registry, env.conn, factory, env.logger)

	if recoverScan {
		return printCandidates(coord)
	}

	if len(args) == 0 {
		return fmt.Errorf("session id required unless --scan is given")
	}
	sessionID := args[0]

	if recoverObjectType != "" || recoverObjectName != "" {
		if recoverObjectType == "" || recoverObjectName == "" {
			return fmt.Errorf("--object-type and --object-name must be given together")
		}
		entry, err := coord.Recover(ctx, sessionID, recoverObjectType, recoverObjectName)
		if err != nil {
			return err
		}
		fmt.Printf("%s released %s %s (handle %s)\n",
			okStyle.Render("✓"), entry.ObjectType, entry.ObjectName, subtleStyle.Render(entry.LockHandle))
		return nil
	}

	released, err := coord.RecoverSession(ctx, sessionID)
	for _, entry := range released {
		fmt.Printf("%s released %s %s (handle %s)\n",
			okStyle.Render("✓"), entry.ObjectType, entry.ObjectName, subtleStyle.Render(entry.LockHandle))
	}
	return err
}

func printCandidates(coord *recovery.Coordinator) error {
	candidates := coord.Candidates()

	fmt.Println(rule())
	fmt.Println(headerStyle.Render("Locks owned by dead processes"))
	fmt.Println(rule())

	if len(candidates) == 0 {
		fmt.Println("None found.")
		return nil
	}
	for _, entry := range candidates {
		fmt.Printf("%s %s %s  session %s  pid %d  acquired %s\n",
			warnStyle.Render("●"),
			keyStyle.Render(entry.ObjectType),
			keyStyle.Render(entry.ObjectName),
			sessionStyle.Render(entry.SessionID),
			entry.PID,
			entry.AcquiredAt.Format(time.RFC3339))
	}
	fmt.Printf("\nRelease with: adtflow recover <session-id> --object-type <type> --object-name <name>\n")
	return nil
}
