package workflow

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ncolesummers/weather-insights-agent/pkg/domain"
)

// Service names reported by Status
const (
	ServiceWeather   = "weather_service"
	ServiceKnowledge = "knowledge_service"
	ServiceLLM       = "llm_backend"
)

// probeLocation is geocoded to check the weather provider
const probeLocation = "Manila"

// Status probes the collaborators independently; one failing probe
// does not prevent the others from reporting.
func (g *InsightsGraph) Status(ctx context.Context) *domain.SystemStatus {
	var (
		weather   domain.ServiceStatus
		knowledge domain.ServiceStatus
		llm       domain.ServiceStatus
		stats     *domain.KnowledgeStats
	)

	var eg errgroup.Group
	eg.Go(func() error {
		defer recoverProbe(ServiceWeather, &weather)
		weather = g.probeWeather(ctx)
		return nil
	})
	eg.Go(func() error {
		defer recoverProbe(ServiceKnowledge, &knowledge)
		knowledge, stats = g.probeKnowledge(ctx)
		return nil
	})
	eg.Go(func() error {
		defer recoverProbe(ServiceLLM, &llm)
		llm = g.probeLLM(ctx)
		return nil
	})
	_ = eg.Wait()

	services := []domain.ServiceStatus{weather, knowledge, llm}
	for _, name := range []string{g.dataQuality.Name(), g.forecast.Name(), g.advice.Name()} {
		services = append(services, domain.ServiceStatus{Name: name, Status: domain.StatusOperational})
	}

	return &domain.SystemStatus{
		Workflow:           domain.StatusOperational,
		Services:           services,
		KnowledgeBaseStats: stats,
		Timestamp:          g.now(),
	}
}

// recoverProbe reports a panicking probe as an error on its own service
func recoverProbe(name string, out *domain.ServiceStatus) {
	if r := recover(); r != nil {
		*out = domain.ServiceStatus{
			Name:    name,
			Status:  domain.StatusError,
			Details: map[string]interface{}{"error": fmt.Sprintf("probe panicked: %v", r)},
		}
	}
}

func (g *InsightsGraph) probeWeather(ctx context.Context) domain.ServiceStatus {
	status := domain.ServiceStatus{Name: ServiceWeather, Status: domain.StatusOperational}
	if _, err := g.weather.Geocode(ctx, probeLocation); err != nil {
		status.Status = domain.StatusError
		status.Details = map[string]interface{}{"error": err.Error()}
	}
	return status
}

func (g *InsightsGraph) probeKnowledge(ctx context.Context) (domain.ServiceStatus, *domain.KnowledgeStats) {
	status := domain.ServiceStatus{Name: ServiceKnowledge, Status: domain.StatusOperational}

	stats, err := g.knowledge.Stats(ctx)
	if err != nil {
		status.Status = domain.StatusError
		status.Details = map[string]interface{}{"error": err.Error()}
		return status, nil
	}

	status.Details = map[string]interface{}{
		"total_documents": stats.TotalDocuments,
		"collection_name": stats.CollectionName,
	}
	return status, stats
}

func (g *InsightsGraph) probeLLM(ctx context.Context) domain.ServiceStatus {
	status := domain.ServiceStatus{Name: ServiceLLM, Status: domain.StatusOperational}

	checker, ok := g.llmClient.(domain.HealthChecker)
	if !ok {
		status.Details = map[string]interface{}{"health_check": "unsupported"}
		return status
	}

	if err := checker.CheckHealth(ctx); err != nil {
		status.Status = domain.StatusError
		status.Details = map[string]interface{}{"error": fmt.Sprintf("health check failed: %v", err)}
	}
	return status
}
