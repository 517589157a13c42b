package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"h2gb/engine/internal/db"
	"h2gb/engine/internal/vault"
	"h2gb/engine/internal/workspace"
)

var (
	workspaceImport bool
	snapSince       int64
	snapWithData    bool
	snapWithNodes   bool
	snapNames       []string
)

var workspaceCmd = &cobra.Command{
	Use:     "workspace",
	Aliases: []string{"ws"},
	Short:   "Create, list, show and delete workspaces",
}

var workspaceCreateCmd = &cobra.Command{
	Use:   "create <binary> <name>",
	Short: "Create a workspace over a binary",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(func(v *vault.Vault) error {
			b, err := resolveBinary(cmd.Context(), v, args[0])
			if err != nil {
				return err
			}
			w, err := v.CreateWorkspace(cmd.Context(), b.ID, args[1], workspaceImport)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(w)
			}
			fmt.Printf("Created workspace %s (%s) over %s at revision %d\n", w.Name, w.ID, b.Name, w.Revision)
			return nil
		})
	},
}

var workspaceListCmd = &cobra.Command{
	Use:   "list [binary]",
	Short: "List workspaces, optionally of one binary",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(func(v *vault.Vault) error {
			var ws []db.WorkspaceRecord
			var err error
			if len(args) == 1 {
				b, rerr := resolveBinary(cmd.Context(), v, args[0])
				if rerr != nil {
					return rerr
				}
				ws, err = v.Store().ListWorkspaces(cmd.Context(), b.ID)
			} else {
				ws, err = allWorkspaces(cmd.Context(), v)
			}
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(ws)
			}
			for _, w := range ws {
				fmt.Printf("%s  rev %-6d %s  %s\n", truncID(w.ID), w.Revision,
					time.UnixMilli(w.UpdatedAt).Format(time.DateTime), w.Name)
			}
			return nil
		})
	},
}

var workspaceShowCmd = &cobra.Command{
	Use:   "show <workspace>",
	Short: "Show the segments and nodes changed after --since",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(func(v *vault.Vault) error {
			w, err := resolveWorkspace(cmd.Context(), v, args[0])
			if err != nil {
				return err
			}
			return v.View(cmd.Context(), w.ID, func(ws *workspace.Workspace) error {
				return printSnapshot(ws.StateSince(snapSince, snapshotOptions()))
			})
		})
	},
}

var workspaceDeleteCmd = &cobra.Command{
	Use:   "delete <workspace>",
	Short: "Delete a workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(func(v *vault.Vault) error {
			w, err := resolveWorkspace(cmd.Context(), v, args[0])
			if err != nil {
				return err
			}
			if err := v.Store().DeleteWorkspace(cmd.Context(), w.ID); err != nil {
				return err
			}
			fmt.Printf("Deleted workspace %s (%s)\n", w.Name, truncID(w.ID))
			return nil
		})
	},
}

func allWorkspaces(ctx context.Context, v *vault.Vault) ([]db.WorkspaceRecord, error) {
	return v.Store().ListWorkspaces(ctx, "")
}

// resolveWorkspace finds a workspace by ID, ID prefix or name across every binary.
func resolveWorkspace(ctx context.Context, v *vault.Vault, reference string) (db.WorkspaceRecord, error) {
	if w, err := v.Store().GetWorkspace(ctx, reference); err == nil {
		return *w, nil
	}
	ws, err := allWorkspaces(ctx, v)
	if err != nil {
		return db.WorkspaceRecord{}, err
	}
	return resolveID("workspace", reference, ws,
		func(w db.WorkspaceRecord) string { return w.ID },
		func(w db.WorkspaceRecord) string { return w.Name })
}

func snapshotOptions() workspace.SnapshotOptions {
	return workspace.SnapshotOptions{WithData: snapWithData, WithNodes: snapWithNodes, Names: snapNames}
}

// snapshotQuery is the vault query for mutating commands. Without --since the
// output reports what the command itself changed.
func snapshotQuery(cmd *cobra.Command) vault.Query {
	q := vault.Query{SnapshotOptions: snapshotOptions()}
	if cmd.Flags().Changed("since") {
		since := snapSince
		q.Since = &since
	}
	return q
}

// addSnapshotFlags registers the snapshot selection flags on cmd.
func addSnapshotFlags(cmd *cobra.Command) {
	cmd.Flags().Int64Var(&snapSince, "since", -1, "Only report changes after this revision")
	cmd.Flags().BoolVar(&snapWithData, "with-data", false, "Include segment bytes")
	cmd.Flags().BoolVar(&snapWithNodes, "with-nodes", false, "Include node listings")
	cmd.Flags().StringSliceVar(&snapNames, "segment", nil, "Restrict to these segments")
}

func init() {
	workspaceCreateCmd.Flags().BoolVar(&workspaceImport, "import", true, "Map the binary's loadable sections as segments")
	addSnapshotFlags(workspaceShowCmd)
	workspaceCmd.AddCommand(workspaceCreateCmd, workspaceListCmd, workspaceShowCmd, workspaceDeleteCmd)
	rootCmd.AddCommand(workspaceCmd)
}
