package graph

import "math"

// HealthBreakdown shows the sub-scores of the health formula
type HealthBreakdown struct {
	Connectivity float64 `json:"connectivity"`
	Components   float64 `json:"components"`
	Staleness    float64 `json:"staleness"`
	Fragility    float64 `json:"fragility"`
}

// AnalysisReport is the full analysis result
type AnalysisReport struct {
	Revision        int64            `json:"revision"`
	HealthScore     float64          `json:"health_score"`
	HealthBreakdown HealthBreakdown  `json:"health_breakdown"`
	Topology        *TopologyReport  `json:"topology"`
	Staleness       *StalenessReport `json:"staleness"`
	Bridges         *BridgeReport    `json:"bridges"`
}

// AnalyzerConfig holds analysis parameters
type AnalyzerConfig struct {
	HubThreshold int
	TopN         int
	StaleAfter   int64 // revisions
	WeakLinks    int
}

// DefaultConfig returns the analysis defaults
func DefaultConfig() *AnalyzerConfig {
	return &AnalyzerConfig{
		HubThreshold: 4,
		TopN:         20,
		StaleAfter:   100,
		WeakLinks:    2,
	}
}

// Analyze runs every analysis and computes a composite annotation health score.
// Only defined nodes count toward the ratios.
func Analyze(snap *Snapshot, config *AnalyzerConfig) *AnalysisReport {
	topology := ComputeTopology(snap, config.HubThreshold, config.TopN)
	staleness := ComputeStaleness(snap, config.StaleAfter)
	bridges := ComputeBridges(snap, config.WeakLinks)

	defined := float64(topology.DefinedNodes)
	var connectivity, components, stalenessScore, fragility float64
	if defined > 0 {
		connectivity = clamp(1.0-math.Min(float64(topology.OrphanCount)/defined, 0.2)*5.0, 0, 1)
		stalenessScore = clamp(1.0-math.Min(float64(staleness.StaleNodeCount)/defined, 0.1)*10.0, 0, 1)
		fragility = clamp(1.0-math.Min(float64(bridges.CutCount)/defined, 0.05)*20.0, 0, 1)
	}
	if topology.NumComponents > 0 {
		components = clamp(1.0/float64(topology.NumComponents), 0, 1)
	}

	return &AnalysisReport{
		Revision:    snap.Revision,
		HealthScore: 0.30*connectivity + 0.25*components + 0.25*stalenessScore + 0.20*fragility,
		HealthBreakdown: HealthBreakdown{
			Connectivity: connectivity,
			Components:   components,
			Staleness:    stalenessScore,
			Fragility:    fragility,
		},
		Topology:  topology,
		Staleness: staleness,
		Bridges:   bridges,
	}
}

func clamp(val, lo, hi float64) float64 {
	return math.Max(lo, math.Min(val, hi))
}
