package regime

// QualityLevel is the categorical data quality grade
type QualityLevel string

const (
	QualityPoor      QualityLevel = "poor"
	QualityFair      QualityLevel = "fair"
	QualityGood      QualityLevel = "good"
	QualityExcellent QualityLevel = "excellent"
)

// Quality level thresholds on the overall score
const (
	ExcellentQualityThreshold = 0.9
	GoodQualityThreshold      = 0.75
	FairQualityThreshold      = 0.5
)

// Quality dimension names
const (
	DimensionCompleteness        = "completeness"
	DimensionTemporalConsistency = "temporal_consistency"
	DimensionVariability         = "variability"
	DimensionStationarity        = "stationarity"
	DimensionOverall             = "overall"
)

// DataQualityReport scores input data on four dimensions in [0,1]
type DataQualityReport struct {
	Completeness        float64           `json:"completeness"`
	TemporalConsistency float64           `json:"temporal_consistency"`
	Variability         float64           `json:"variability"`
	Stationarity        float64           `json:"stationarity"`
	Overall             float64           `json:"overall"`
	Level               QualityLevel      `json:"level"`
	Errors              map[string]string `json:"errors,omitempty"`
}

// LevelFor maps an overall score to its level
func LevelFor(score float64) QualityLevel {
	switch {
	case score >= ExcellentQualityThreshold:
		return QualityExcellent
	case score >= GoodQualityThreshold:
		return QualityGood
	case score >= FairQualityThreshold:
		return QualityFair
	default:
		return QualityPoor
	}
}

// NewDataQualityReport derives Overall and Level from the four dimension scores
func NewDataQualityReport(completeness, temporal, variability, stationarity float64, errs map[string]string) DataQualityReport {
	overall := (completeness + temporal + variability + stationarity) / 4
	return DataQualityReport{
		Completeness:        completeness,
		TemporalConsistency: temporal,
		Variability:         variability,
		Stationarity:        stationarity,
		Overall:             overall,
		Level:               LevelFor(overall),
		Errors:              errs,
	}
}

// Scores returns the report as a dimension -> score mapping
func (r DataQualityReport) Scores() map[string]float64 {
	return map[string]float64{
		DimensionCompleteness:        r.Completeness,
		DimensionTemporalConsistency: r.TemporalConsistency,
		DimensionVariability:         r.Variability,
		DimensionStationarity:        r.Stationarity,
		DimensionOverall:             r.Overall,
	}
}
