package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"h2gb/engine/internal/vault"
	"h2gb/engine/internal/workspace"
)

var propCmd = &cobra.Command{
	Use:     "prop",
	Aliases: []string{"properties"},
	Short:   "Read and write workspace properties",
}

var propSetCmd = &cobra.Command{
	Use:   "set <workspace> <key=value...>",
	Short: "Set properties; an empty value deletes the key",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		props, err := parseAssignments(args[1:])
		if err != nil {
			return err
		}
		return withVault(func(v *vault.Vault) error {
			w, err := resolveWorkspace(cmd.Context(), v, args[0])
			if err != nil {
				return err
			}
			snap, err := v.SetProperties(cmd.Context(), w.ID, props)
			if err != nil {
				return err
			}
			return printSnapshot(snap)
		})
	},
}

var propGetCmd = &cobra.Command{
	Use:   "get <workspace> [key...]",
	Short: "Print properties (all when no keys are given)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(func(v *vault.Vault) error {
			w, err := resolveWorkspace(cmd.Context(), v, args[0])
			if err != nil {
				return err
			}
			return v.View(cmd.Context(), w.ID, func(ws *workspace.Workspace) error {
				props := ws.Properties(args[1:])
				if jsonOutput {
					return printJSON(props)
				}
				keys := make([]string, 0, len(props))
				for k := range props {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Printf("%s=%s\n", k, props[k])
				}
				return nil
			})
		})
	},
}

var propClearCmd = &cobra.Command{
	Use:   "clear <workspace>",
	Short: "Remove every property",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(func(v *vault.Vault) error {
			w, err := resolveWorkspace(cmd.Context(), v, args[0])
			if err != nil {
				return err
			}
			return v.ClearProperties(cmd.Context(), w.ID)
		})
	},
}

// parseAssignments turns key=value arguments into a property map.
func parseAssignments(args []string) (map[string]string, error) {
	props := make(map[string]string, len(args))
	for _, a := range args {
		key, value, ok := strings.Cut(a, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", a)
		}
		props[key] = value
	}
	return props, nil
}

func init() {
	propCmd.AddCommand(propSetCmd, propGetCmd, propClearCmd)
	rootCmd.AddCommand(propCmd)
}
