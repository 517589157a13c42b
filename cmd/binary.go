package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"h2gb/engine/internal/db"
	"h2gb/engine/internal/vault"
)

var (
	binaryName    string
	binaryComment string
)

var binaryCmd = &cobra.Command{
	Use:   "binary",
	Short: "Upload, list, inspect and delete binaries",
}

var binaryUploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a binary and detect its format",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		name := binaryName
		if name == "" {
			name = filepath.Base(args[0])
		}
		return withVault(func(v *vault.Vault) error {
			b, err := v.UploadBinary(cmd.Context(), name, binaryComment, data)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(b)
			}
			fmt.Printf("Uploaded %s (%s, %d bytes) as %s\n", b.Name, b.Format, b.Size, b.ID)
			return nil
		})
	},
}

var binaryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List binaries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(func(v *vault.Vault) error {
			bs, err := v.Store().ListBinaries(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(bs)
			}
			for _, b := range bs {
				fmt.Printf("%s  %-5s %8d  %s  %s\n", truncID(b.ID), b.Format, b.Size,
					time.UnixMilli(b.CreatedAt).Format(time.DateTime), b.Name)
			}
			return nil
		})
	},
}

var binaryInfoCmd = &cobra.Command{
	Use:   "info <binary>",
	Short: "Show a binary's header and loadable sections",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(func(v *vault.Vault) error {
			b, err := resolveBinary(cmd.Context(), v, args[0])
			if err != nil {
				return err
			}
			info, err := v.BinaryInfo(cmd.Context(), b.ID)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(info)
			}
			fmt.Printf("%s: %s, base 0x%x, entry 0x%x\n", b.Name, info.Format, info.Base, info.Entrypoint)
			for _, s := range info.Sections {
				fmt.Printf("  %-20s 0x%08x  %8d bytes @ file 0x%x\n", s.Name, s.Address, s.FileSize, s.FileOffset)
			}
			if len(info.Imports) > 0 {
				fmt.Printf("  %d imports\n", len(info.Imports))
			}
			return nil
		})
	},
}

var binaryDeleteCmd = &cobra.Command{
	Use:   "delete <binary>",
	Short: "Delete a binary and its workspaces",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(func(v *vault.Vault) error {
			b, err := resolveBinary(cmd.Context(), v, args[0])
			if err != nil {
				return err
			}
			if err := v.Store().DeleteBinary(cmd.Context(), b.ID); err != nil {
				return err
			}
			fmt.Printf("Deleted %s (%s)\n", b.Name, truncID(b.ID))
			return nil
		})
	},
}

// resolveBinary finds a binary by ID, ID prefix or name.
func resolveBinary(ctx context.Context, v *vault.Vault, reference string) (db.Binary, error) {
	bs, err := v.Store().ListBinaries(ctx)
	if err != nil {
		return db.Binary{}, err
	}
	return resolveID("binary", reference, bs,
		func(b db.Binary) string { return b.ID },
		func(b db.Binary) string { return b.Name })
}

func init() {
	binaryUploadCmd.Flags().StringVar(&binaryName, "name", "", "Name to store (default the file name)")
	binaryUploadCmd.Flags().StringVar(&binaryComment, "comment", "", "Free-form comment")
	binaryCmd.AddCommand(binaryUploadCmd, binaryListCmd, binaryInfoCmd, binaryDeleteCmd)
	rootCmd.AddCommand(binaryCmd)
}
