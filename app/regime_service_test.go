package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"goregime/domain/core"
	"goregime/domain/regime"
	"goregime/internal/cache"
	"goregime/internal/config"
	"goregime/internal/errors"
	"goregime/internal/metrics"
	"goregime/internal/testkit"
	"goregime/ports"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRuns struct {
	mu   sync.Mutex
	runs []ports.RunSummary
}

func (m *memoryRuns) SaveRun(_ context.Context, fingerprint string, result *regime.RegimeAnalysisResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, ports.RunSummary{
		RunID:         result.RunID,
		Country:       result.Country,
		Fingerprint:   fingerprint,
		CurrentRegime: result.CurrentRegime,
		IsFallback:    result.IsFallback,
	})
	return nil
}

func (m *memoryRuns) GetRun(_ context.Context, id core.RunID) (*ports.RunSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.RunID == id {
			return &r, nil
		}
	}
	return nil, errors.NotFound("run")
}

func (m *memoryRuns) ListRuns(context.Context, ports.RunFilters) ([]ports.RunSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ports.RunSummary(nil), m.runs...), nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Pipeline.MaxRegimes = 3
	cfg.Cache.TTL = time.Hour
	return cfg
}

func TestRegimeService_AnalyzeCachesAndRecords(t *testing.T) {
	ctx := context.Background()
	runs := &memoryRuns{}
	reg := metrics.NewRegistry()
	svc, err := NewRegimeService(testConfig(), nil,
		WithCache(cache.NewMemory()), WithRunRepository(runs), WithMetrics(reg))
	require.NoError(t, err)

	table := testkit.SeriesTable("y", testkit.TwoStateMixture(42))

	first, err := svc.Analyze(ctx, table, "US")
	require.NoError(t, err)
	require.False(t, first.IsFallback)

	second, err := svc.Analyze(ctx, table, "US")
	require.NoError(t, err)
	assert.Same(t, first, second)

	listed, err := svc.ListRuns(ctx, ports.RunFilters{})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, first.RunID, listed[0].RunID)

	got, err := svc.GetRun(ctx, first.RunID)
	require.NoError(t, err)
	assert.Equal(t, "US", got.Country)

	assert.Equal(t, 1.0, testutil.ToFloat64(reg.CacheRequests.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.CacheRequests.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.Analyses.WithLabelValues(metrics.OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.Analyses.WithLabelValues(metrics.OutcomeCached)))
	assert.Positive(t, testutil.CollectAndCount(reg.StageDuration))
}

func TestRegimeService_ConcurrentRequestsRecordEachRunOnce(t *testing.T) {
	ctx := context.Background()
	runs := &memoryRuns{}
	svc, err := NewRegimeService(testConfig(), nil, WithRunRepository(runs))
	require.NoError(t, err)

	table := testkit.SeriesTable("y", testkit.TwoStateMixture(3))

	const callers = 8
	results := make([]*regime.RegimeAnalysisResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := svc.Analyze(ctx, table, "US")
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	distinct := make(map[core.RunID]bool)
	for _, r := range results {
		require.NotNil(t, r)
		distinct[r.RunID] = true
	}
	assert.Len(t, runs.runs, len(distinct))
	for _, run := range runs.runs {
		assert.True(t, distinct[run.RunID])
	}
}

func TestRegimeService_FallbackIsRecordedNotCached(t *testing.T) {
	ctx := context.Background()
	runs := &memoryRuns{}
	memory := cache.NewMemory()
	reg := metrics.NewRegistry()
	svc, err := NewRegimeService(testConfig(), nil, WithCache(memory), WithRunRepository(runs), WithMetrics(reg))
	require.NoError(t, err)

	result, err := svc.Analyze(ctx, testkit.ConstantTable(50, 2), "FR")
	require.NoError(t, err)
	assert.True(t, result.IsFallback)
	assert.Zero(t, memory.Len())
	require.Len(t, runs.runs, 1)
	assert.True(t, runs.runs[0].IsFallback)
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.Fallbacks.WithLabelValues("fit")))
}

func TestRegimeService_InputError(t *testing.T) {
	reg := metrics.NewRegistry()
	svc, err := NewRegimeService(testConfig(), nil, WithMetrics(reg))
	require.NoError(t, err)

	_, err = svc.Analyze(context.Background(), testkit.ConstantTable(5, 1), "US")
	require.Error(t, err)
	assert.Equal(t, errors.CodeInputError, errors.GetCode(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.Analyses.WithLabelValues(metrics.OutcomeInputError)))

	_, err = svc.Forecast(context.Background(), testkit.ConstantTable(50, 1), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidHorizon)
}

func TestRegimeService_WithoutRunStore(t *testing.T) {
	svc, err := NewRegimeService(testConfig(), nil)
	require.NoError(t, err)

	_, err = svc.GetRun(context.Background(), core.RunID("x"))
	assert.True(t, core.IsNotFoundError(err))

	runs, err := svc.ListRuns(context.Background(), ports.RunFilters{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRegimeService_Report(t *testing.T) {
	svc, err := NewRegimeService(testConfig(), nil)
	require.NoError(t, err)

	out, err := svc.Report(context.Background(), testkit.SeriesTable("y", testkit.TwoStateMixture(42)), "US", 3)
	require.NoError(t, err)
	assert.Len(t, out.Forecast, 3)
	assert.Contains(t, out.Markdown, "## Forecast")
	assert.Contains(t, string(out.HTML), "<table>")
}

func TestNewRegimeService_InvalidPipeline(t *testing.T) {
	cfg := testConfig()
	cfg.Pipeline.MaxRegimes = 1
	_, err := NewRegimeService(cfg, nil)
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}
