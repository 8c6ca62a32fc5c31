package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openabap/adtflow/internal/lockreg"
	"github.com/openabap/adtflow/internal/util"
	"github.com/spf13/cobra"
)

var locksCmd = &cobra.Command{
	Use:   "locks",
	Short: "Inspect and manage the lock registry",
	Long: `Commands for the on-disk lock registry: listing entries, removing
stale bookkeeping, and watching for changes made by other processes.`,
}

var locksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered locks",
	RunE:  runLocksList,
}

var locksClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove registry entries",
	Long: `Remove entries from the lock registry. With --stale only entries
whose owning process is dead are removed; without it the whole registry
is cleared.

This removes local bookkeeping only. It does not release remote locks;
use 'adtflow recover' for that.`,
	RunE: runLocksClear,
}

var locksWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the registry for changes",
	Long: `Watch the registry file and print the entry list every time another
process changes it. Useful alongside concurrent runs. Stop with Ctrl-C.`,
	RunE: runLocksWatch,
}

var (
	locksPattern   string
	locksStaleOnly bool
)

func init() {
	rootCmd.AddCommand(locksCmd)
	locksCmd.AddCommand(locksListCmd)
	locksCmd.AddCommand(locksClearCmd)
	locksCmd.AddCommand(locksWatchCmd)

	locksListCmd.Flags().StringVar(&locksPattern, "pattern", "", "glob filter on type/name keys, e.g. 'CLAS/*'")
	locksListCmd.Flags().BoolVar(&locksStaleOnly, "stale", false, "only locks whose owning process is dead")
	locksClearCmd.Flags().BoolVar(&locksStaleOnly, "stale", false, "only remove entries with dead owners")
}

func runLocksList(cmd *cobra.Command, args []string) error {
	env, err := buildEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	var entries []lockreg.Entry
	switch {
	case locksStaleOnly:
		entries = env.registry.Stale()
	case locksPattern != "":
		entries, err = env.registry.Match(locksPattern)
		if err != nil {
			return err
		}
	default:
		entries = env.registry.List()
	}

	printLockTable(entries, staleKeys(env.registry))
	return nil
}

func runLocksClear(cmd *cobra.Command, args []string) error {
	env, err := buildEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	if !locksStaleOnly {
		count := len(env.registry.List())
		if err := env.registry.Clear(); err != nil {
			return err
		}
		fmt.Printf("Removed %d entries\n", count)
		return nil
	}

	removed := 0
	for _, entry := range env.registry.Stale() {
		if err := env.registry.Remove(entry.ObjectType, entry.ObjectName); err != nil {
			return err
		}
		fmt.Printf("%s removed %s %s (session %s)\n",
			okStyle.Render("✓"), entry.ObjectType, entry.ObjectName, entry.SessionID)
		removed++
	}
	if removed == 0 {
		fmt.Println("No stale entries found.")
	}
	return nil
}

func runLocksWatch(cmd *cobra.Command, args []string) error {
	env, err := buildEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := lockreg.NewWatcher(env.registry)
	if err != nil {
		return err
	}
	watcher.SetChangeCallback(func(entries []lockreg.Entry) {
		fmt.Printf("\n%s registry changed\n", subtleStyle.Render(time.Now().Format("15:04:05")))
		printLockTable(entries, staleKeys(env.registry))
	})
	watcher.Start()
	defer watcher.Stop()

	fmt.Printf("Watching %s (Ctrl-C to stop)\n", env.registry.Path())
	printLockTable(env.registry.List(), staleKeys(env.registry))

	<-ctx.Done()
	return nil
}

// staleKeys returns the keys of entries whose owning process is dead.
func staleKeys(registry *lockreg.Registry) map[string]bool {
	keys := make(map[string]bool)
	for _, entry := range registry.Stale() {
		keys[entry.Key()] = true
	}
	return keys
}

func printLockTable(entries []lockreg.Entry, stale map[string]bool) {
	fmt.Println(rule())
	fmt.Println(headerStyle.Render("Lock registry"))
	fmt.Println(rule())

	if len(entries) == 0 {
		fmt.Println("No locks registered.")
		return
	}
	for _, entry := range entries {
		marker := okStyle.Render("●")
		if stale[entry.Key()] {
			marker = failStyle.Render("●")
		}
		fmt.Printf("%s %-10s %-30s session %s  pid %-8d acquired %s\n",
			marker,
			entry.ObjectType,
			util.TruncateString(entry.ObjectName, 30),
			sessionStyle.Render(entry.SessionID),
			entry.PID,
			entry.AcquiredAt.Format(time.RFC3339))
	}
}
