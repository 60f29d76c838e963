package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"goregime/domain/core"
	"goregime/domain/regime"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_StagesAndFallbacks(t *testing.T) {
	r := NewRegistry()

	r.ObserveStage("fit", 120*time.Millisecond, nil)
	r.ObserveStage("fit", 80*time.Millisecond, errors.New("degenerate"))
	r.ObserveFallback("fit")
	r.ObserveFallback("fit")

	assert.Equal(t, 2, testutil.CollectAndCount(r.StageDuration))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.Fallbacks.WithLabelValues("fit")))
}

func TestRegistry_Results(t *testing.T) {
	r := NewRegistry()

	r.ObserveResult(&regime.RegimeAnalysisResult{NumRegimes: 2, Confidence: 0.8})
	r.ObserveResult(regime.FallbackResult(core.NewRunID(), "US", regime.DataQualityReport{}, "fit", nil))
	r.ObserveOutcome(OutcomeInputError)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.Analyses.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Analyses.WithLabelValues(OutcomeFallback)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Analyses.WithLabelValues(OutcomeInputError)))

	expected := `
# HELP goregime_selected_regimes Number of regimes selected by the model search
# TYPE goregime_selected_regimes histogram
goregime_selected_regimes_bucket{le="1"} 0
goregime_selected_regimes_bucket{le="2"} 1
goregime_selected_regimes_bucket{le="3"} 1
goregime_selected_regimes_bucket{le="4"} 1
goregime_selected_regimes_bucket{le="5"} 1
goregime_selected_regimes_bucket{le="6"} 1
goregime_selected_regimes_bucket{le="7"} 1
goregime_selected_regimes_bucket{le="8"} 1
goregime_selected_regimes_bucket{le="+Inf"} 1
goregime_selected_regimes_sum 2
goregime_selected_regimes_count 1
`
	require.NoError(t, testutil.CollectAndCompare(r.SelectedRegimes, strings.NewReader(expected)))
}

func TestRegistry_Cache(t *testing.T) {
	r := NewRegistry()
	r.ObserveCache(true, nil)
	r.ObserveCache(false, nil)
	r.ObserveCache(false, nil)
	r.ObserveCache(false, errors.New("down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(r.CacheRequests.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.CacheRequests.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.CacheRequests.WithLabelValues("error")))
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	r.ObserveFallback("validate")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `goregime_fallbacks_total{stage="validate"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRegistries_AreIndependent(t *testing.T) {
	a, b := NewRegistry(), NewRegistry()
	a.ObserveFallback("fit")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Fallbacks.WithLabelValues("fit")))
}
