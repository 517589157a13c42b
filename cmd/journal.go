package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"h2gb/engine/internal/vault"
	"h2gb/engine/internal/workspace"
)

var undoCmd = &cobra.Command{
	Use:   "undo <workspace>",
	Short: "Reverse the most recent checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return replayCommand(cmd, args[0], (*vault.Vault).Undo)
	},
}

var redoCmd = &cobra.Command{
	Use:   "redo <workspace>",
	Short: "Re-apply the most recently undone checkpoint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return replayCommand(cmd, args[0], (*vault.Vault).Redo)
	},
}

var clearUndoCmd = &cobra.Command{
	Use:   "clear-undo <workspace>",
	Short: "Empty the undo and redo buffers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(func(v *vault.Vault) error {
			w, err := resolveWorkspace(cmd.Context(), v, args[0])
			if err != nil {
				return err
			}
			if err := v.ClearUndoLog(cmd.Context(), w.ID); err != nil {
				return err
			}
			fmt.Printf("Cleared the undo log of %s\n", w.Name)
			return nil
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <workspace>",
	Short: "Show the undo and redo buffers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(func(v *vault.Vault) error {
			w, err := resolveWorkspace(cmd.Context(), v, args[0])
			if err != nil {
				return err
			}
			return v.View(cmd.Context(), w.ID, func(ws *workspace.Workspace) error {
				h := ws.History()
				if jsonOutput {
					return printJSON(h)
				}
				fmt.Println("  UNDO")
				printEntries(h.Undo)
				fmt.Println("  REDO")
				printEntries(h.Redo)
				return nil
			})
		})
	},
}

type replayFunc func(*vault.Vault, context.Context, string, vault.Query) (workspace.Snapshot, error)

func replayCommand(cmd *cobra.Command, reference string, replay replayFunc) error {
	return withVault(func(v *vault.Vault) error {
		w, err := resolveWorkspace(cmd.Context(), v, reference)
		if err != nil {
			return err
		}
		snap, err := replay(v, cmd.Context(), w.ID, snapshotQuery(cmd))
		if err != nil {
			return err
		}
		return printSnapshot(snap)
	})
}

// printEntries lists a buffer oldest first, one line per recorded call.
func printEntries(entries []workspace.Entry) {
	if len(entries) == 0 {
		fmt.Println("    (empty)")
		return
	}
	for _, e := range entries {
		if e.Kind == workspace.EntryCheckpoint {
			fmt.Println("    ── checkpoint")
			continue
		}
		fmt.Printf("    %s  (undo: %s)\n", e.Forward, e.Backward)
	}
}

func init() {
	addSnapshotFlags(undoCmd)
	addSnapshotFlags(redoCmd)
	rootCmd.AddCommand(undoCmd, redoCmd, clearUndoCmd, historyCmd)
}
