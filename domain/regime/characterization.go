package regime

// NameScore is the rule score of one candidate regime name for a cluster
type NameScore struct {
	Regime RegimeType `json:"regime"`
	Score  float64    `json:"score"`
}

// ClusterCharacteristics is the characterization of one statistical cluster
type ClusterCharacteristics struct {
	Cluster int                   `json:"cluster"`
	Scores  []NameScore           `json:"scores,omitempty"`
	Profile map[string]float64    `json:"profile,omitempty"` // role -> z-score of the cluster mean
	Regime  RegimeCharacteristics `json:"regime"`
}

// Characterization maps named regimes to their characteristics and keeps every cluster
// individually. Clusters labeled Unknown are merged in Regimes.
type Characterization struct {
	Regimes      map[RegimeType]RegimeCharacteristics `json:"regimes"`
	Clusters     []ClusterCharacteristics             `json:"clusters"`
	ClusterNames []RegimeType                         `json:"cluster_names"`
}

// NameOf returns the regime name of a cluster
func (c *Characterization) NameOf(cluster int) RegimeType {
	if c == nil || cluster < 0 || cluster >= len(c.ClusterNames) {
		return Unknown
	}
	return c.ClusterNames[cluster]
}

// MeanConfidence averages the confidence of the characterized regimes; false when there are none
func (c *Characterization) MeanConfidence() (float64, bool) {
	if c == nil || len(c.Regimes) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, r := range c.Regimes {
		sum += r.Confidence
	}
	return sum / float64(len(c.Regimes)), true
}
