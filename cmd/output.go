package cmd

import (
	"fmt"
	"sort"
	"strings"

	"h2gb/engine/internal/workspace"
)

// printSnapshot writes a snapshot as JSON with --json, otherwise as a listing.
func printSnapshot(snap workspace.Snapshot) error {
	if jsonOutput {
		return printJSON(snap)
	}

	fmt.Printf("\n  Revision %d\n", snap.Revision)
	fmt.Println("  ────────────────────────────────────────")
	if len(snap.Segments) == 0 && len(snap.DeletedSegments) == 0 && len(snap.Properties) == 0 {
		fmt.Println("  (no changes)")
	}
	for _, s := range snap.Segments {
		fmt.Printf("  %-16s 0x%08x-0x%08x  %6d bytes  rev %d\n",
			s.Name, s.Address, s.Address+s.Length, s.Length, s.Revision)
		if len(s.Data) > 0 {
			fmt.Printf("    data: % x\n", preview(s.Data, 16))
		}
		for _, n := range s.Nodes {
			printNode(n, "    ")
		}
	}
	for _, name := range snap.DeletedSegments {
		fmt.Printf("  %-16s (deleted)\n", name)
	}
	if len(snap.Properties) > 0 {
		keys := make([]string, 0, len(snap.Properties))
		for k := range snap.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Println("  properties:")
		for _, k := range keys {
			fmt.Printf("    %s = %s\n", k, snap.Properties[k])
		}
	}
	fmt.Println()
	return nil
}

func printNode(n workspace.NodeView, indent string) {
	fmt.Printf("%s0x%08x  %-10s %-3d %-32s rev %d", indent, n.Address, n.Type, n.Length, n.Value, n.Revision)
	if len(n.Refs) > 0 {
		targets := make([]string, len(n.Refs))
		for i, r := range n.Refs {
			targets[i] = fmt.Sprintf("0x%x", r.Address)
		}
		fmt.Printf("  -> %s", strings.Join(targets, ", "))
	}
	if len(n.Xrefs) > 0 {
		fmt.Printf("  <- %d xrefs", len(n.Xrefs))
	}
	fmt.Println()
}

func preview(b []byte, max int) []byte {
	if len(b) > max {
		return b[:max]
	}
	return b
}
