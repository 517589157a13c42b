package cmd

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cobra"
	"h2gb/engine/internal/graph"
	"h2gb/engine/internal/vault"
	"h2gb/engine/internal/workspace"
)

var (
	analyzeSegment      string
	analyzeTopN         int
	analyzeStaleAfter   int64
	analyzeHubThreshold int
	analyzeWeakLinks    int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <workspace>",
	Short: "Analyze the reference graph: topology, staleness, bridges, health score",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withVault(func(v *vault.Vault) error {
			w, err := resolveWorkspace(cmd.Context(), v, args[0])
			if err != nil {
				return err
			}
			return v.View(cmd.Context(), w.ID, func(ws *workspace.Workspace) error {
				snap := graph.FromWorkspace(ws)
				if analyzeSegment != "" {
					snap = snap.FilterToSegment(analyzeSegment)
				}

				config := &graph.AnalyzerConfig{
					HubThreshold: analyzeHubThreshold,
					TopN:         analyzeTopN,
					StaleAfter:   analyzeStaleAfter,
					WeakLinks:    analyzeWeakLinks,
				}
				report := graph.Analyze(snap, config)

				if jsonOutput {
					return printJSON(report)
				}
				printHumanReadable(report, snap)
				return nil
			})
		})
	},
}

func init() {
	defaults := graph.DefaultConfig()
	analyzeCmd.Flags().StringVar(&analyzeSegment, "segment", "", "Scope analysis to one segment")
	analyzeCmd.Flags().IntVar(&analyzeTopN, "top-n", 10, "Number of top items to show per section")
	analyzeCmd.Flags().Int64Var(&analyzeStaleAfter, "stale-after", defaults.StaleAfter, "Revisions without change to consider a node stale")
	analyzeCmd.Flags().IntVar(&analyzeHubThreshold, "hub-threshold", defaults.HubThreshold, "Minimum xref count to consider an address a hub")
	analyzeCmd.Flags().IntVar(&analyzeWeakLinks, "weak-links", defaults.WeakLinks, "Maximum refs between two segments to report them as weakly coupled")
	rootCmd.AddCommand(analyzeCmd)
}

func printHumanReadable(report *graph.AnalysisReport, snap *graph.Snapshot) {
	// Health bar
	barLen := int(report.HealthScore * 20)
	if barLen > 20 {
		barLen = 20
	}
	bar := strings.Repeat("█", barLen) + strings.Repeat("░", 20-barLen)
	fmt.Printf("\n  Annotation Health: %.0f%%  [%s]  (revision %d)\n", report.HealthScore*100, bar, report.Revision)
	fmt.Printf("  breakdown: connectivity=%.2f components=%.2f staleness=%.2f fragility=%.2f\n\n",
		report.HealthBreakdown.Connectivity,
		report.HealthBreakdown.Components,
		report.HealthBreakdown.Staleness,
		report.HealthBreakdown.Fragility)

	// Topology
	t := report.Topology
	fmt.Println("  TOPOLOGY")
	fmt.Println("  ────────────────────────────────────────")
	fmt.Printf("  Addresses: %d (%d defined)  Refs: %d  Components: %d\n",
		t.TotalNodes, t.DefinedNodes, t.TotalEdges, t.NumComponents)
	fmt.Printf("  Largest component: %d  Smallest: %d\n", t.LargestComponent, t.SmallestComponent)

	if t.OrphanCount > 0 {
		fmt.Printf("  Orphans: %d nodes with no refs or xrefs\n", t.OrphanCount)
		limit := min(5, len(t.OrphanIDs))
		for _, id := range t.OrphanIDs[:limit] {
			label := "?"
			if v := snap.Vertices[id]; v != nil {
				label = truncLabel(v.Label(), 50)
			}
			fmt.Printf("    - %s (%s)\n", id, label)
		}
		if t.OrphanCount > 5 {
			fmt.Printf("    ... and %d more\n", t.OrphanCount-5)
		}
	}

	// Degree distribution
	fmt.Println("\n  Degree distribution:")
	for _, b := range t.DegreeHistogram {
		if b.Count > 0 {
			barWidth := int(math.Log2(float64(b.Count))) + 2
			fmt.Printf("    %5s: %4d  %s\n", b.Label, b.Count, strings.Repeat("=", barWidth))
		}
	}

	// Hubs
	if len(t.Hubs) > 0 {
		fmt.Println("\n  Most referenced addresses:")
		for _, hub := range t.Hubs {
			fmt.Printf("    %-24s xrefs=%d refs=%d  %s\n",
				hub.ID, hub.InDegree, hub.OutDegree, truncLabel(hub.Label, 40))
		}
	}

	// Staleness
	s := report.Staleness
	if s.StaleNodeCount > 0 {
		fmt.Println("\n  STALENESS")
		fmt.Println("  ────────────────────────────────────────")
		fmt.Printf("  %d stale nodes (unchanged but referenced by recent edits):\n", s.StaleNodeCount)
		limit := min(10, len(s.StaleNodes))
		for _, n := range s.StaleNodes[:limit] {
			fmt.Printf("    %-24s %d revisions old, %d recent refs  %s\n",
				n.ID, n.Age, n.RecentRefCount, truncLabel(n.Label, 40))
		}
	}

	// Bridges
	br := report.Bridges
	if br.CutCount > 0 || br.BridgeCount > 0 || len(br.WeakCoupling) > 0 {
		fmt.Println("\n  STRUCTURAL FRAGILITY")
		fmt.Println("  ────────────────────────────────────────")
		if br.CutCount > 0 {
			fmt.Printf("  %d cut addresses (removal splits a component):\n", br.CutCount)
			limit := min(10, len(br.CutVertices))
			for _, cv := range br.CutVertices[:limit] {
				fmt.Printf("    %-24s (%d neighbours)  %s\n", cv.ID, cv.Neighbours, truncLabel(cv.Label, 40))
			}
		}
		if br.BridgeCount > 0 {
			fmt.Printf("  %d bridge refs (removal splits a component):\n", br.BridgeCount)
			limit := min(10, len(br.Bridges))
			for _, b := range br.Bridges[:limit] {
				fmt.Printf("    %s -> %s\n", truncLabel(b.FromLabel, 30), truncLabel(b.ToLabel, 30))
			}
		}
		if len(br.WeakCoupling) > 0 {
			fmt.Printf("  %d weakly coupled segment pairs:\n", len(br.WeakCoupling))
			limit := min(10, len(br.WeakCoupling))
			for _, wc := range br.WeakCoupling[:limit] {
				s := ""
				if wc.Links != 1 {
					s = "s"
				}
				fmt.Printf("    %s <-> %s (%d ref%s)\n", wc.SegmentA, wc.SegmentB, wc.Links, s)
			}
		}
	}

	fmt.Println()
}

func truncLabel(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Find a safe UTF-8 boundary
	truncated := s[:max]
	for len(truncated) > 0 && truncated[len(truncated)-1]>>6 == 2 {
		truncated = truncated[:len(truncated)-1]
	}
	return truncated + "..."
}
