package domain_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ncolesummers/weather-insights-agent/pkg/domain"
)

func TestParseAudience(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  domain.Audience
	}{
		{"Farmers", "farmers", domain.AudienceFarmers},
		{"OfficialsMixedCase", " Officials ", domain.AudienceOfficials},
		{"General", "general", domain.AudienceGeneral},
		{"Empty", "", domain.AudienceGeneral},
		{"Unknown", "fishermen", domain.AudienceGeneral},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := domain.ParseAudience(tt.input); got != tt.want {
				t.Errorf("ParseAudience(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestPriorityRank(t *testing.T) {
	ordered := []domain.Priority{
		domain.PriorityCritical,
		domain.PriorityHigh,
		domain.PriorityMedium,
		domain.PriorityLow,
	}

	for i, p := range ordered {
		if got := p.Rank(); got != i {
			t.Errorf("Priority(%s).Rank() = %d, want %d", p, got, i)
		}
	}

	if got := domain.Priority("bogus").Rank(); got != 3 {
		t.Errorf("unknown priority rank = %d, want 3", got)
	}
}

func TestTimingRank(t *testing.T) {
	ordered := []domain.Timing{
		domain.TimingNow,
		domain.TimingWithin24h,
		domain.TimingThisWeek,
		domain.TimingNextWeek,
	}

	for i, timing := range ordered {
		if got := timing.Rank(); got != i {
			t.Errorf("Timing(%s).Rank() = %d, want %d", timing, got, i)
		}
	}
}

func TestPhilippineTZ(t *testing.T) {
	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).In(domain.PhilippineTZ)
	if ts.Hour() != 8 {
		t.Errorf("hour in PhilippineTZ = %d, want 8", ts.Hour())
	}
}

func TestProviderError(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("fetch current: %w", &domain.ProviderError{Message: "request failed", Err: cause})

	var provErr *domain.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatal("expected errors.As to find ProviderError")
	}
	if !errors.Is(err, cause) {
		t.Error("expected ProviderError to unwrap to its cause")
	}

	withStatus := &domain.ProviderError{Status: 401, Message: "invalid api key"}
	if got, want := withStatus.Error(), "weather provider returned status 401: invalid api key"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestGenerationError(t *testing.T) {
	empty := &domain.GenerationError{Op: "advice narrative"}
	if got, want := empty.Error(), "advice narrative: empty response from text generation backend"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	cause := errors.New("timeout")
	wrapped := &domain.GenerationError{Op: "forecast narrative", Err: cause}
	if !errors.Is(wrapped, cause) {
		t.Error("expected GenerationError to unwrap to its cause")
	}
}

func TestGeocodeNotFoundWrapping(t *testing.T) {
	err := fmt.Errorf("%w: %s", domain.ErrGeocodeNotFound, "Atlantis")
	if !errors.Is(err, domain.ErrGeocodeNotFound) {
		t.Error("expected wrapped error to match ErrGeocodeNotFound")
	}
}
