package weather_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ncolesummers/weather-insights-agent/pkg/domain"
	"github.com/ncolesummers/weather-insights-agent/pkg/weather"
)

type countingSource struct {
	mu           sync.Mutex
	geocodeCalls map[string]int
	fail         map[string]error
}

func newCountingSource() *countingSource {
	return &countingSource{geocodeCalls: map[string]int{}, fail: map[string]error{}}
}

func (s *countingSource) Geocode(_ context.Context, name string) (domain.Coordinates, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.geocodeCalls[name]++
	if err, ok := s.fail[name]; ok {
		return domain.Coordinates{}, err
	}
	return domain.Coordinates{Latitude: float64(len(name)), Longitude: 1}, nil
}

func (s *countingSource) CurrentConditions(_ context.Context, _ domain.Coordinates, label string) (*domain.WeatherSnapshot, error) {
	return &domain.WeatherSnapshot{Location: label}, nil
}

func (s *countingSource) Forecast(_ context.Context, _ domain.Coordinates, label string) (*domain.ForecastSeries, error) {
	return &domain.ForecastSeries{Location: label}, nil
}

func (s *countingSource) calls(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.geocodeCalls[name]
}

func TestCachedSource_GeocodeHit(t *testing.T) {
	inner := newCountingSource()
	cached := weather.NewCachedSource(inner, 10, time.Hour, clockwork.NewFakeClock())

	c1, err := cached.Geocode(context.Background(), "Manila")
	require.NoError(t, err)
	c2, err := cached.Geocode(context.Background(), " manila ")
	require.NoError(t, err)

	assert.Equal(t, c1, c2)
	assert.Equal(t, 1, inner.calls("Manila"), "should only call inner once")
}

func TestCachedSource_Expiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	inner := newCountingSource()
	cached := weather.NewCachedSource(inner, 10, time.Hour, clock)

	_, _ = cached.Geocode(context.Background(), "Cebu")
	clock.Advance(59 * time.Minute)
	_, _ = cached.Geocode(context.Background(), "Cebu")
	assert.Equal(t, 1, inner.calls("Cebu"))

	clock.Advance(2 * time.Minute)
	_, _ = cached.Geocode(context.Background(), "Cebu")
	assert.Equal(t, 2, inner.calls("Cebu"), "expired entry should be refetched")
}

func TestCachedSource_FailuresNotCached(t *testing.T) {
	inner := newCountingSource()
	inner.fail["Atlantis"] = fmt.Errorf("%w: Atlantis", domain.ErrGeocodeNotFound)
	cached := weather.NewCachedSource(inner, 10, time.Hour, clockwork.NewFakeClock())

	_, err := cached.Geocode(context.Background(), "Atlantis")
	require.ErrorIs(t, err, domain.ErrGeocodeNotFound)
	_, err = cached.Geocode(context.Background(), "Atlantis")
	require.ErrorIs(t, err, domain.ErrGeocodeNotFound)

	assert.Equal(t, 2, inner.calls("Atlantis"))
	assert.Equal(t, 0, cached.Len())
}

func TestCachedSource_EvictsLeastRecentlyUsed(t *testing.T) {
	inner := newCountingSource()
	cached := weather.NewCachedSource(inner, 2, 0, clockwork.NewFakeClock())
	ctx := context.Background()

	_, _ = cached.Geocode(ctx, "A")
	_, _ = cached.Geocode(ctx, "B")
	_, _ = cached.Geocode(ctx, "A") // A is now most recent
	_, _ = cached.Geocode(ctx, "C") // evicts B

	assert.Equal(t, 2, cached.Len())

	_, _ = cached.Geocode(ctx, "A")
	assert.Equal(t, 1, inner.calls("A"))
	_, _ = cached.Geocode(ctx, "B")
	assert.Equal(t, 2, inner.calls("B"))
}

func TestCachedSource_DelegatesObservations(t *testing.T) {
	cached := weather.NewCachedSource(newCountingSource(), 10, time.Hour, nil)

	snap, err := cached.CurrentConditions(context.Background(), domain.Coordinates{}, "Davao")
	require.NoError(t, err)
	assert.Equal(t, "Davao", snap.Location)

	series, err := cached.Forecast(context.Background(), domain.Coordinates{}, "Davao")
	require.NoError(t, err)
	assert.Equal(t, "Davao", series.Location)
}
