package workflow

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ncolesummers/weather-insights-agent/pkg/domain"
)

// RunBatch runs the pipeline for every location concurrently, at most
// BatchConcurrency at a time. Results keep the input order and a failing
// location never affects the others.
func (g *InsightsGraph) RunBatch(ctx context.Context, locations []string, audience domain.Audience) []*domain.InsightsResult {
	if g.telemetry != nil {
		var span trace.Span
		ctx, span = g.telemetry.StartBatchRequest(ctx, len(locations), string(audience))
		defer span.End()
	}

	results := make([]*domain.InsightsResult, len(locations))

	var eg errgroup.Group
	eg.SetLimit(g.config.BatchConcurrency)

	for i, location := range locations {
		eg.Go(func() error {
			results[i] = g.runIsolated(ctx, location, audience)
			return nil
		})
	}
	_ = eg.Wait()

	g.logger.Info(ctx, "Batch analysis completed", map[string]interface{}{
		"locations": len(locations),
		"audience":  string(audience),
	})
	return results
}

// runIsolated runs one location, converting anything that escapes Run into a failed result
func (g *InsightsGraph) runIsolated(ctx context.Context, location string, audience domain.Audience) (result *domain.InsightsResult) {
	defer func() {
		if r := recover(); r != nil {
			result = failedResult(location, g.now(), fmt.Sprintf("%v", r))
		}
	}()

	result = g.Run(ctx, domain.AnalysisRequest{Location: location, Audience: audience})
	if result == nil {
		result = failedResult(location, g.now(), "analysis produced no result")
	}
	return result
}

// BatchSummary aggregates batch results with the elapsed processing time in seconds
func BatchSummary(results []*domain.InsightsResult, elapsed time.Duration) *domain.BatchSummary {
	summary := &domain.BatchSummary{
		Results:        results,
		TotalLocations: len(results),
		ProcessingTime: elapsed.Seconds(),
	}
	for _, r := range results {
		if r != nil && r.Success {
			summary.SuccessfulAnalyses++
		} else {
			summary.FailedAnalyses++
		}
	}
	return summary
}
