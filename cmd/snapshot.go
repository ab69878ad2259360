package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/derickschaefer/shelfindex/internal/store"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Save and replay index queries",
	Long: `Snapshots save a shelfindex command line and replay it later, so a
published index can be reproduced from the same parameters.

  shelfindex snapshot save --name "dairy-weekly" --cmd "index --name milk --granularity week --mode table"
  shelfindex snapshot list
  shelfindex snapshot run <ID>`,
}

// ─── snapshot save ────────────────────────────────────────────────────────────

var (
	snapshotSaveName string
	snapshotSaveCmd  string
)

var snapshotSaveCommand = &cobra.Command{
	Use:   "save",
	Short: "Save a command line as a named snapshot",
	Example: `  shelfindex snapshot save --name "dairy" --cmd "index --name milk --mode table"
  shelfindex snapshot save --name "bread-2024" --cmd "index --name bread --baseline 2024-01-01 --strategy nearest"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		line := strings.TrimSpace(snapshotSaveCmd)
		if snapshotSaveName == "" || line == "" {
			return fmt.Errorf("--name and --cmd are required")
		}
		if fields := strings.Fields(line); fields[0] == "snapshot" {
			return fmt.Errorf("a snapshot cannot replay another snapshot command")
		}

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		if err := deps.RequireStore(); err != nil {
			return err
		}

		id, err := newSnapshotID()
		if err != nil {
			return err
		}
		snap := store.Snapshot{
			ID:          id,
			Name:        snapshotSaveName,
			CommandLine: line,
			CreatedAt:   time.Now().UTC(),
		}
		if err := deps.Store.PutSnapshot(snap); err != nil {
			return fmt.Errorf("saving snapshot: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved snapshot %s  (%s)\n", id, snapshotSaveName)
		return nil
	},
}

// ─── snapshot list ────────────────────────────────────────────────────────────

var snapshotListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List all saved snapshots",
	Example: `  shelfindex snapshot list`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		if err := deps.RequireStore(); err != nil {
			return err
		}

		snaps, err := deps.Store.ListSnapshots()
		if err != nil {
			return fmt.Errorf("listing snapshots: %w", err)
		}
		if len(snaps) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No snapshots saved.")
			fmt.Fprintln(cmd.OutOrStdout(), "  Use: shelfindex snapshot save --name <name> --cmd \"<command>\"")
			return nil
		}

		printSimpleTable(cmd.OutOrStdout(), []string{"ID", "NAME", "COMMAND", "CREATED"}, func(add func(...string)) {
			for _, s := range snaps {
				preview := s.CommandLine
				if len(preview) > 50 {
					preview = preview[:47] + "..."
				}
				add(s.ID, s.Name, preview, s.CreatedAt.Format("2006-01-02 15:04"))
			}
		})
		return nil
	},
}

// ─── snapshot show ────────────────────────────────────────────────────────────

var snapshotShowCmd = &cobra.Command{
	Use:   "show <ID>",
	Short: "Show full details of a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		if err := deps.RequireStore(); err != nil {
			return err
		}

		snap, err := lookupSnapshot(deps.Store, args[0])
		if err != nil {
			return err
		}
		printSimpleTable(cmd.OutOrStdout(), []string{"FIELD", "VALUE"}, func(add func(...string)) {
			add("ID", snap.ID)
			add("Name", snap.Name)
			add("Command", snap.CommandLine)
			add("Created", snap.CreatedAt.Format(time.RFC3339))
		})
		return nil
	},
}

// ─── snapshot run ─────────────────────────────────────────────────────────────

var snapshotRunCmd = &cobra.Command{
	Use:   "run <ID>",
	Short: "Re-execute a saved snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			deps.Close()
			return err
		}

		// The child process opens its own store handle; bbolt holds an
		// exclusive file lock, so release ours first.
		snap, err := lookupSnapshot(deps.Store, args[0])
		deps.Close()
		if err != nil {
			return err
		}

		self, err := os.Executable()
		if err != nil {
			return fmt.Errorf("finding executable: %w", err)
		}
		parts := strings.Fields(snap.CommandLine)
		if globalFlags.DB != "" {
			parts = append(parts, "--db", globalFlags.DB)
		}
		c := exec.CommandContext(cmd.Context(), self, parts...)
		c.Stdin = cmd.InOrStdin()
		c.Stdout = cmd.OutOrStdout()
		c.Stderr = cmd.ErrOrStderr()

		if !deps.Config.Quiet {
			fmt.Fprintf(cmd.ErrOrStderr(), "▶ shelfindex %s\n\n", snap.CommandLine)
		}
		return c.Run()
	},
}

// ─── snapshot delete ──────────────────────────────────────────────────────────

var snapshotDeleteCmd = &cobra.Command{
	Use:   "delete <ID>",
	Short: "Delete a saved snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		if err := deps.RequireStore(); err != nil {
			return err
		}

		if err := deps.Store.DeleteSnapshot(args[0]); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("snapshot %q not found", args[0])
			}
			return fmt.Errorf("deleting snapshot: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted snapshot %s\n", args[0])
		return nil
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(snapshotCmd)
	snapshotCmd.AddCommand(snapshotSaveCommand)
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotShowCmd)
	snapshotCmd.AddCommand(snapshotRunCmd)
	snapshotCmd.AddCommand(snapshotDeleteCmd)

	snapshotSaveCommand.Flags().StringVar(&snapshotSaveName, "name", "", "human-readable name for the snapshot (required)")
	snapshotSaveCommand.Flags().StringVar(&snapshotSaveCmd, "cmd", "", "command line to save, without the binary name (required)")
	_ = snapshotSaveCommand.MarkFlagRequired("name")
	_ = snapshotSaveCommand.MarkFlagRequired("cmd")
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

// newSnapshotID returns a time-ordered UUIDv7, so IDs sort by creation.
func newSnapshotID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generating snapshot id: %w", err)
	}
	return id.String(), nil
}

func lookupSnapshot(s *store.Store, id string) (store.Snapshot, error) {
	snap, ok, err := s.GetSnapshot(id)
	if err != nil {
		return snap, fmt.Errorf("reading snapshot: %w", err)
	}
	if !ok {
		return snap, fmt.Errorf("snapshot %q not found", id)
	}
	return snap, nil
}
