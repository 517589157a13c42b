package cmd

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"h2gb/engine/internal/vault"
	"h2gb/engine/internal/workspace"
)

var (
	segmentHex  string
	segmentFile string
	segmentAll  bool
)

var segmentCmd = &cobra.Command{
	Use:   "segment",
	Short: "Map and unmap segments",
}

var segmentCreateCmd = &cobra.Command{
	Use:   "create <workspace> <name> <address>",
	Short: "Map a segment from --hex bytes or a --file",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, err := parseAddress(args[2])
		if err != nil {
			return err
		}
		data, err := segmentData()
		if err != nil {
			return err
		}
		spec := workspace.NewSegmentSpec(args[1], addr, data)
		return withVault(func(v *vault.Vault) error {
			w, err := resolveWorkspace(cmd.Context(), v, args[0])
			if err != nil {
				return err
			}
			snap, err := v.CreateSegments(cmd.Context(), w.ID, snapshotQuery(cmd), []workspace.SegmentSpec{spec})
			if err != nil {
				return err
			}
			return printSnapshot(snap)
		})
	},
}

var segmentDeleteCmd = &cobra.Command{
	Use:   "delete <workspace> [name...]",
	Short: "Unmap segments and their nodes (--all for every segment)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !segmentAll && len(args) < 2 {
			return fmt.Errorf("name at least one segment or pass --all")
		}
		return withVault(func(v *vault.Vault) error {
			w, err := resolveWorkspace(cmd.Context(), v, args[0])
			if err != nil {
				return err
			}
			var snap workspace.Snapshot
			if segmentAll {
				snap, err = v.DeleteAllSegments(cmd.Context(), w.ID, snapshotQuery(cmd))
			} else {
				snap, err = v.DeleteSegments(cmd.Context(), w.ID, snapshotQuery(cmd), args[1:])
			}
			if err != nil {
				return err
			}
			return printSnapshot(snap)
		})
	},
}

func segmentData() ([]byte, error) {
	switch {
	case segmentHex != "" && segmentFile != "":
		return nil, fmt.Errorf("--hex and --file are mutually exclusive")
	case segmentHex != "":
		data, err := hex.DecodeString(segmentHex)
		if err != nil {
			return nil, fmt.Errorf("--hex: %w", err)
		}
		return data, nil
	case segmentFile != "":
		return os.ReadFile(segmentFile)
	}
	return nil, fmt.Errorf("segment bytes are required (--hex or --file)")
}

// parseAddress accepts decimal or 0x-prefixed addresses.
func parseAddress(s string) (int64, error) {
	addr, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return addr, nil
}

func init() {
	segmentCreateCmd.Flags().StringVar(&segmentHex, "hex", "", "Segment bytes as hex")
	segmentCreateCmd.Flags().StringVar(&segmentFile, "file", "", "Read segment bytes from a file")
	segmentDeleteCmd.Flags().BoolVar(&segmentAll, "all", false, "Delete every segment")
	addSnapshotFlags(segmentCreateCmd)
	addSnapshotFlags(segmentDeleteCmd)
	segmentCmd.AddCommand(segmentCreateCmd, segmentDeleteCmd)
	rootCmd.AddCommand(segmentCmd)
}
