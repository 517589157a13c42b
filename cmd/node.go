package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"h2gb/engine/internal/vault"
	"h2gb/engine/internal/workspace"
)

var (
	nodeType    string
	nodeLength  int64
	nodeValue   string
	nodeRefs    []string
	nodeFile    string
	xrefsLength int64
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Define, undefine and inspect nodes",
}

var nodeCreateCmd = &cobra.Command{
	Use:   "create <workspace> <segment> [address]",
	Short: "Define one node from flags, or a batch from a JSON --file",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		specs, err := nodeSpecs(args[2:])
		if err != nil {
			return err
		}
		return withVault(func(v *vault.Vault) error {
			w, err := resolveWorkspace(cmd.Context(), v, args[0])
			if err != nil {
				return err
			}
			snap, err := v.CreateNodes(cmd.Context(), w.ID, snapshotQuery(cmd), args[1], specs)
			if err != nil {
				return err
			}
			return printSnapshot(snap)
		})
	},
}

var nodeDeleteCmd = &cobra.Command{
	Use:   "delete <workspace> <segment> <address...>",
	Short: "Undefine the nodes covering each address",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		addrs := make([]int64, 0, len(args)-2)
		for _, a := range args[2:] {
			addr, err := parseAddress(a)
			if err != nil {
				return err
			}
			addrs = append(addrs, addr)
		}
		return withVault(func(v *vault.Vault) error {
			w, err := resolveWorkspace(cmd.Context(), v, args[0])
			if err != nil {
				return err
			}
			snap, err := v.DeleteNodes(cmd.Context(), w.ID, snapshotQuery(cmd), args[1], addrs)
			if err != nil {
				return err
			}
			return printSnapshot(snap)
		})
	},
}

var nodeShowCmd = &cobra.Command{
	Use:   "show <workspace> <segment> <address>",
	Short: "Show the node covering an address",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseAddress(args[2])
		if err != nil {
			return err
		}
		return withVault(func(v *vault.Vault) error {
			w, err := resolveWorkspace(cmd.Context(), v, args[0])
			if err != nil {
				return err
			}
			return v.View(cmd.Context(), w.ID, func(ws *workspace.Workspace) error {
				n, err := ws.NodeAt(args[1], addr)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(n)
				}
				printNode(n, "")
				fmt.Printf("raw: % x\n", n.Raw)
				for _, x := range n.Xrefs {
					fmt.Printf("xref from %s:0x%x\n", x.Segment, x.Address)
				}
				return nil
			})
		})
	},
}

var nodeListCmd = &cobra.Command{
	Use:   "list <workspace> <segment>",
	Short: "List the nodes of a segment changed after --since",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(func(v *vault.Vault) error {
			w, err := resolveWorkspace(cmd.Context(), v, args[0])
			if err != nil {
				return err
			}
			return v.View(cmd.Context(), w.ID, func(ws *workspace.Workspace) error {
				nodes, err := ws.Nodes(args[1], snapSince)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(nodes)
				}
				for _, n := range nodes {
					printNode(n, "")
				}
				return nil
			})
		})
	},
}

var xrefsCmd = &cobra.Command{
	Use:   "xrefs <workspace> <address>",
	Short: "List the nodes referring into [address, address+length)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseAddress(args[1])
		if err != nil {
			return err
		}
		if xrefsLength < 1 {
			return fmt.Errorf("--length must be at least 1")
		}
		return withVault(func(v *vault.Vault) error {
			w, err := resolveWorkspace(cmd.Context(), v, args[0])
			if err != nil {
				return err
			}
			return v.View(cmd.Context(), w.ID, func(ws *workspace.Workspace) error {
				xrefs := ws.XrefsTo(addr, xrefsLength)
				if jsonOutput {
					return printJSON(xrefs)
				}
				for _, x := range xrefs {
					fmt.Printf("%s:0x%x\n", x.Segment, x.Address)
				}
				return nil
			})
		})
	},
}

// nodeSpecs builds the create request from --file or from the flags and address.
func nodeSpecs(args []string) ([]workspace.NodeSpec, error) {
	if nodeFile != "" {
		if len(args) > 0 {
			return nil, fmt.Errorf("an address cannot be combined with --file")
		}
		data, err := os.ReadFile(nodeFile)
		if err != nil {
			return nil, err
		}
		var specs []workspace.NodeSpec
		if err := json.Unmarshal(data, &specs); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", nodeFile, err)
		}
		return specs, nil
	}

	if len(args) != 1 {
		return nil, fmt.Errorf("an address is required without --file")
	}
	addr, err := parseAddress(args[0])
	if err != nil {
		return nil, err
	}
	refs := make([]int64, 0, len(nodeRefs))
	for _, r := range nodeRefs {
		target, err := parseAddress(r)
		if err != nil {
			return nil, err
		}
		refs = append(refs, target)
	}
	return []workspace.NodeSpec{workspace.NewNodeSpec(nodeType, addr, nodeLength, nodeValue, refs...)}, nil
}

func init() {
	nodeCreateCmd.Flags().StringVar(&nodeType, "type", "", "Node type (byte, word, instruction, ...)")
	nodeCreateCmd.Flags().Int64Var(&nodeLength, "length", 1, "Node length in bytes")
	nodeCreateCmd.Flags().StringVar(&nodeValue, "value", "", "Display value")
	nodeCreateCmd.Flags().StringSliceVar(&nodeRefs, "ref", nil, "Referenced address (repeatable)")
	nodeCreateCmd.Flags().StringVar(&nodeFile, "file", "", "JSON array of node objects")
	addSnapshotFlags(nodeCreateCmd)
	addSnapshotFlags(nodeDeleteCmd)
	nodeListCmd.Flags().Int64Var(&snapSince, "since", -1, "Only list nodes changed after this revision")
	xrefsCmd.Flags().Int64Var(&xrefsLength, "length", 1, "Length of the target range")
	nodeCmd.AddCommand(nodeCreateCmd, nodeDeleteCmd, nodeShowCmd, nodeListCmd)
	rootCmd.AddCommand(nodeCmd, xrefsCmd)
}
