package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage persisted sessions",
	Long:  `Commands for listing and cleaning up persisted session files.`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted sessions",
	Long: `List all persisted sessions with their status:
- Session ID and creation time
- Whether the owning process is still alive
- Whether a CSRF token is stored`,
	RunE: runSessionsList,
}

var sessionsCleanCmd = &cobra.Command{
	Use:   "clean [session-id]",
	Short: "Remove persisted session files",
	Long: `Remove persisted session files. With a session id only that session
is removed. With --dead every session whose owning process has exited is
removed. Sessions that still own lock registry entries are kept; recover
them first with 'adtflow recover'.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSessionsClean,
}

var cleanDead bool

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsCleanCmd)

	sessionsCleanCmd.Flags().BoolVar(&cleanDead, "dead", false, "remove all sessions with dead owners")
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	env, err := buildEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	infos, err := env.store.List()
	if err != nil {
		return err
	}

	fmt.Println(rule())
	fmt.Println(headerStyle.Render("Persisted sessions"))
	fmt.Println(rule())

	if len(infos) == 0 {
		fmt.Println("No sessions found.")
		return nil
	}
	for _, info := range infos {
		owner := failStyle.Render("dead")
		if info.OwnerAlive {
			owner = okStyle.Render("alive")
		}
		token := subtleStyle.Render("no token")
		if info.HasToken {
			token = "token stored"
		}
		fmt.Printf("%s  created %s  pid %-8d owner %s  %s\n",
			sessionStyle.Render(info.SessionID),
			info.Created.Format(time.RFC3339),
			info.PID,
			owner,
			token)
	}
	return nil
}

func runSessionsClean(cmd *cobra.Command, args []string) error {
	env, err := buildEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	if len(args) == 1 {
		sessionID := args[0]
		if held := locksOwnedBy(env, sessionID); held > 0 {
			return fmt.Errorf("session %s still owns %d lock entries, run 'adtflow recover %s' first",
				sessionID, held, sessionID)
		}
		if err := env.store.Delete(sessionID); err != nil {
			return err
		}
		fmt.Printf("Removed session %s\n", sessionStyle.Render(sessionID))
		return nil
	}

	if !cleanDead {
		return fmt.Errorf("pass a session id or --dead")
	}

	infos, err := env.store.List()
	if err != nil {
		return err
	}
	removed := 0
	for _, info := range infos {
		if info.OwnerAlive {
			continue
		}
		if held := locksOwnedBy(env, info.SessionID); held > 0 {
			fmt.Printf("%s skipping %s, still owns %d lock entries\n",
				warnStyle.Render("!"), info.SessionID, held)
			continue
		}
		if err := env.store.Delete(info.SessionID); err != nil {
			return err
		}
		fmt.Printf("%s removed %s\n", okStyle.Render("✓"), info.SessionID)
		removed++
	}
	if removed == 0 {
		fmt.Println("Nothing to clean.")
	}
	return nil
}

func locksOwnedBy(env *environment, sessionID string) int {
	count := 0
	for _, entry := range env.registry.List() {
		if entry.SessionID == sessionID {
			count++
		}
	}
	return count
}
