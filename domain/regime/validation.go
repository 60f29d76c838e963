package regime

// Linearity conclusions
const (
	ConclusionNonLinear    = "non_linear"
	ConclusionLinear       = "linear"
	ConclusionInconclusive = "inconclusive"
)

// Out-of-sample quality labels
const (
	QualityLabelGood = "good"
	QualityLabelPoor = "poor"
)

// DefaultValidityThreshold is the minimum share of passing checks for a valid model
const DefaultValidityThreshold = 0.7

// TestOutcome is the result of one statistical test. A non-empty Error means the test
// could not be computed and Passed is false.
type TestOutcome struct {
	Name          string             `json:"name"`
	Statistic     float64            `json:"statistic"`
	PValue        float64            `json:"p_value"`
	CriticalValue float64            `json:"critical_value,omitempty"`
	Passed        bool               `json:"passed"`
	Conclusion    string             `json:"conclusion,omitempty"`
	Details       map[string]float64 `json:"details,omitempty"`
	Error         string             `json:"error,omitempty"`
}

// FailedOutcome builds an error-tagged outcome
func FailedOutcome(name string, err error) TestOutcome {
	return TestOutcome{Name: name, PValue: 1, Error: err.Error()}
}

// LinearityResult combines the linearity tests
type LinearityResult struct {
	Tests             map[string]TestOutcome `json:"tests"`
	CombinedPValue    float64                `json:"combined_p_value"`
	SignificanceLevel float64                `json:"significance_level"`
	Conclusion        string                 `json:"conclusion"`
	Error             string                 `json:"error,omitempty"`
}

// RegimeNumberResult assesses whether the selected regime count is justified
type RegimeNumberResult struct {
	SelectedRegimes     int                    `json:"selected_regimes"`
	Tests               map[string]TestOutcome `json:"tests"`
	InformationCriteria map[string]float64     `json:"information_criteria"`
	CandidateBIC        map[int]float64        `json:"candidate_bic"`
	Recommendation      string                 `json:"recommendation"`
	Error               string                 `json:"error,omitempty"`
}

// OutOfSampleMethod is the outcome of one resampling protocol
type OutOfSampleMethod struct {
	Method   string  `json:"method"`
	Accuracy float64 `json:"accuracy"`
	RMSE     float64 `json:"rmse"`
	Windows  int     `json:"windows"`
	Error    string  `json:"error,omitempty"`
}

// OutOfSampleResult averages the resampling protocols that ran
type OutOfSampleResult struct {
	Methods      map[string]OutOfSampleMethod `json:"methods"`
	MeanAccuracy float64                      `json:"mean_accuracy"`
	MeanRMSE     float64                      `json:"mean_rmse"`
	MethodsOK    int                          `json:"methods_ok"`
	Quality      string                       `json:"quality"`
}

// ResidualResult holds residual diagnostics
type ResidualResult struct {
	Tests map[string]TestOutcome `json:"tests"`
	Error string                 `json:"error,omitempty"`
}

// ModelValidationResult aggregates all validation outcomes. IsValid and Score are derived
// from Checks by NewModelValidationResult.
type ModelValidationResult struct {
	IsValid      bool               `json:"is_valid"`
	Score        float64            `json:"score"`
	Checks       map[string]bool    `json:"checks"`
	Metrics      FitMetrics         `json:"metrics"`
	Linearity    LinearityResult    `json:"linearity"`
	RegimeNumber RegimeNumberResult `json:"regime_number"`
	OutOfSample  OutOfSampleResult  `json:"out_of_sample"`
	Residuals    ResidualResult     `json:"residuals"`
	Reason       string             `json:"reason,omitempty"`
}

// NewModelValidationResult derives the aggregate score (share of passing checks, equally
// weighted) and validity from checks.
func NewModelValidationResult(
	metrics FitMetrics,
	linearity LinearityResult,
	number RegimeNumberResult,
	oos OutOfSampleResult,
	residuals ResidualResult,
	checks map[string]bool,
	threshold float64,
) ModelValidationResult {
	passed := 0
	for _, ok := range checks {
		if ok {
			passed++
		}
	}
	score := 0.0
	if len(checks) > 0 {
		score = float64(passed) / float64(len(checks))
	}
	return ModelValidationResult{
		IsValid:      len(checks) > 0 && score >= threshold,
		Score:        score,
		Checks:       checks,
		Metrics:      metrics,
		Linearity:    linearity,
		RegimeNumber: number,
		OutOfSample:  oos,
		Residuals:    residuals,
	}
}

// InvalidValidationResult is the explicitly invalid result used by the fallback path
func InvalidValidationResult(reason string) ModelValidationResult {
	return ModelValidationResult{
		IsValid: false,
		Score:   0,
		Checks:  map[string]bool{},
		Linearity: LinearityResult{
			Tests:      map[string]TestOutcome{},
			Conclusion: ConclusionInconclusive,
			Error:      reason,
		},
		RegimeNumber: RegimeNumberResult{
			Tests:               map[string]TestOutcome{},
			InformationCriteria: map[string]float64{},
			CandidateBIC:        map[int]float64{},
			Error:               reason,
		},
		OutOfSample: OutOfSampleResult{
			Methods: map[string]OutOfSampleMethod{},
			Quality: QualityLabelPoor,
		},
		Residuals: ResidualResult{Tests: map[string]TestOutcome{}, Error: reason},
		Reason:    reason,
	}
}
