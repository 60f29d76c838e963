package ports

import (
	"context"
	"time"

	"goregime/domain/regime"
)

// ResultCache stores analysis results by input fingerprint
type ResultCache interface {
	// Get returns the cached result, with found=false on a miss or expired entry
	Get(ctx context.Context, key string) (result *regime.RegimeAnalysisResult, found bool, err error)
	Set(ctx context.Context, key string, result *regime.RegimeAnalysisResult, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
