package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/stepcap/stepcap/internal/store"
)

// sessionsCmd groups session management subcommands.
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage recorded sessions",
	Long: `List and delete recorded sessions.

Examples:
  stepcap sessions list
  stepcap sessions delete session-1717000000000
  stepcap sessions clear`,
}

var listSessionsCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded sessions",
	RunE:  runListSessions,
}

var deleteSessionCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete one recorded session",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeleteSession,
}

var clearSessionsCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all recorded sessions",
	RunE:  runClearSessions,
}

func init() {
	sessionsCmd.AddCommand(listSessionsCmd)
	sessionsCmd.AddCommand(deleteSessionCmd)
	sessionsCmd.AddCommand(clearSessionsCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// openStore opens the session store for CLI commands.
func openStore() (*store.Store, func(), error) {
	kv, err := store.OpenSQLite(cfg.StoragePath(projectDir))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open session storage: %w", err)
	}
	return store.New(kv), func() { kv.Close() }, nil
}

func runListSessions(cmd *cobra.Command, args []string) error {
	st, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	sessions, err := st.GetSessions(context.Background())
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No recorded sessions.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTARTED\tACTIONS\tSTATE")
	for _, sess := range sessions {
		state := "done"
		if sess.IsRecording {
			state = "recording"
		}
		started := time.UnixMilli(sess.StartTime).Format("2006-01-02 15:04:05")
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", sess.ID, sess.Title, started, len(sess.Actions), state)
	}
	return w.Flush()
}

func runDeleteSession(cmd *cobra.Command, args []string) error {
	st, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	if err := st.DeleteSession(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted session %s\n", args[0])
	return nil
}

func runClearSessions(cmd *cobra.Command, args []string) error {
	st, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	if err := st.DeleteAllSessions(context.Background()); err != nil {
		return err
	}
	fmt.Println("Deleted all sessions.")
	return nil
}
