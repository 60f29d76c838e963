package validation

// validation_const.go
//
// Thresholds used by the regime validator. Test statistics are compared against these
// fixed values; changing them changes which models are reported as valid.

// ============================================================================
// 1. LINEARITY - is regime switching needed at all
// ============================================================================

const (
	// daviesNuisanceDF is the number of nuisance parameters unidentified under the
	// linear null in the Davies bound
	daviesNuisanceDF = 1

	// thresholdTrim excludes the lowest and highest share of threshold candidates in the
	// sup-F threshold test so every split keeps enough observations
	thresholdTrim = 0.15
)

// ============================================================================
// 2. REGIME NUMBER - is the selected k justified
// ============================================================================

const (
	// bicDecisionThreshold is the BIC improvement required to recommend more regimes
	bicDecisionThreshold = 10.0

	// stabilitySampleShare is the leading share of the series refitted for the
	// parameter stability diagnostic
	stabilitySampleShare = 0.8

	// minStabilityAgreement is the share of periods whose regime assignment must survive
	// the refit
	minStabilityAgreement = 0.8
)

// ============================================================================
// 3. OUT-OF-SAMPLE - does the model generalize forward in time
// ============================================================================

const (
	// maxRollingWindows caps the number of rolling fit/evaluate windows
	maxRollingWindows = 5

	// walkForwardTrainShare is the training share of the single walk-forward split
	walkForwardTrainShare = 0.7

	// maxCVFolds caps the chronological cross-validation folds
	maxCVFolds = 5

	// minObsPerFold is the smallest fold temporal cross-validation accepts
	minObsPerFold = 10

	// goodAccuracyThreshold labels out-of-sample quality "good" when mean accuracy exceeds it
	goodAccuracyThreshold = 0.7
)

// ============================================================================
// 4. RESIDUALS - is what the model leaves behind white noise
// ============================================================================

const (
	// ljungBoxLags is the number of autocorrelation lags in the Ljung-Box Q statistic
	ljungBoxLags = 10

	// archLags is the number of squared-residual lags in the ARCH LM regression
	archLags = 5

	// Durbin-Watson acceptance band around 2
	durbinWatsonLower = 1.5
	durbinWatsonUpper = 2.5
)

// Check names of the aggregate validation score
const (
	CheckConverged         = "converged"
	CheckLinearity         = "linearity"
	CheckLikelihoodRatio   = "likelihood_ratio"
	CheckInformationCrit   = "information_criteria"
	CheckParamStability    = "parameter_stability"
	CheckOutOfSample       = "out_of_sample"
	CheckLjungBox          = "ljung_box"
	CheckARCH              = "arch_lm"
	CheckDurbinWatson      = "durbin_watson"
	TestDavies             = "davies"
	TestHansen             = "hansen_threshold"
	TestWald               = "wald_equal_means"
	MethodRollingWindow    = "rolling_window"
	MethodWalkForward      = "walk_forward"
	MethodTemporalCV       = "temporal_cv"
	RecommendTwoRegimes    = "2"
	RecommendThreeRegimes  = "3"
	RecommendFourOrMore    = "4+"
	linearModelRegimeCount = 1
)
