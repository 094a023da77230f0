package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ncolesummers/weather-insights-agent/pkg/domain"
)

// DefaultBaseURL is the OpenWeather API host
const DefaultBaseURL = "https://api.openweathermap.org"

// OpenWeatherClient implements domain.WeatherSource against the OpenWeather REST API
type OpenWeatherClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
}

// Option configures an OpenWeatherClient
type Option func(*OpenWeatherClient)

// WithHTTPClient overrides the HTTP client used for requests
func WithHTTPClient(c *http.Client) Option {
	return func(o *OpenWeatherClient) {
		o.httpClient = c
	}
}

// WithBaseURL overrides the API host, mainly for tests
func WithBaseURL(u string) Option {
	return func(o *OpenWeatherClient) {
		o.baseURL = strings.TrimRight(u, "/")
	}
}

// NewOpenWeatherClient creates a new OpenWeather client
func NewOpenWeatherClient(apiKey string, timeout time.Duration, opts ...Option) *OpenWeatherClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &OpenWeatherClient{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
			Name:        "openweather",
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
		}),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type geoResult struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

type owMain struct {
	Temp     float64 `json:"temp"`
	Humidity int     `json:"humidity"`
	Pressure float64 `json:"pressure"`
}

type owWind struct {
	Speed float64 `json:"speed"`
	Deg   int     `json:"deg"`
}

type owCondition struct {
	Main        string `json:"main"`
	Description string `json:"description"`
}

type owObservation struct {
	Coord *struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord,omitempty"`
	Main       owMain        `json:"main"`
	Wind       owWind        `json:"wind"`
	Weather    []owCondition `json:"weather"`
	Dt         int64         `json:"dt"`
	Visibility *float64      `json:"visibility,omitempty"`
}

type owForecast struct {
	City struct {
		Coord struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"coord"`
	} `json:"city"`
	List []owObservation `json:"list"`
}

// Geocode resolves a place name to coordinates
func (c *OpenWeatherClient) Geocode(ctx context.Context, name string) (domain.Coordinates, error) {
	params := url.Values{}
	params.Set("q", name)
	params.Set("limit", "1")

	var results []geoResult
	if err := c.getJSON(ctx, "/geo/1.0/direct", params, &results); err != nil {
		return domain.Coordinates{}, err
	}

	if len(results) == 0 {
		return domain.Coordinates{}, fmt.Errorf("%w: %s", domain.ErrGeocodeNotFound, name)
	}

	return domain.Coordinates{Latitude: results[0].Lat, Longitude: results[0].Lon}, nil
}

// CurrentConditions fetches the latest observation at coordinates
func (c *OpenWeatherClient) CurrentConditions(ctx context.Context, coords domain.Coordinates, label string) (*domain.WeatherSnapshot, error) {
	var obs owObservation
	if err := c.getJSON(ctx, "/data/2.5/weather", coordParams(coords), &obs); err != nil {
		return nil, err
	}

	lat, lon := coords.Latitude, coords.Longitude
	if obs.Coord != nil {
		lat, lon = obs.Coord.Lat, obs.Coord.Lon
	}

	snapshot, err := toSnapshot(obs, locationLabel(label, coords), lat, lon)
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// Forecast fetches the five-day, three-hourly forecast at coordinates
func (c *OpenWeatherClient) Forecast(ctx context.Context, coords domain.Coordinates, label string) (*domain.ForecastSeries, error) {
	var fc owForecast
	if err := c.getJSON(ctx, "/data/2.5/forecast", coordParams(coords), &fc); err != nil {
		return nil, err
	}

	location := locationLabel(label, coords)
	series := &domain.ForecastSeries{
		Location: location,
		Points:   make([]domain.WeatherSnapshot, 0, len(fc.List)),
	}

	for _, item := range fc.List {
		point, err := toSnapshot(item, location, fc.City.Coord.Lat, fc.City.Coord.Lon)
		if err != nil {
			return nil, err
		}
		series.Points = append(series.Points, point)
	}

	return series, nil
}

func toSnapshot(obs owObservation, location string, lat, lon float64) (domain.WeatherSnapshot, error) {
	if len(obs.Weather) == 0 {
		return domain.WeatherSnapshot{}, &domain.ProviderError{Message: "observation is missing weather conditions"}
	}

	snapshot := domain.WeatherSnapshot{
		Location:      location,
		Latitude:      lat,
		Longitude:     lon,
		Temperature:   obs.Main.Temp,
		Humidity:      obs.Main.Humidity,
		Pressure:      obs.Main.Pressure,
		WindSpeed:     obs.Wind.Speed,
		WindDirection: obs.Wind.Deg,
		Condition:     obs.Weather[0].Main,
		Description:   obs.Weather[0].Description,
		Timestamp:     time.Unix(obs.Dt, 0).In(domain.PhilippineTZ),
	}

	// Metres to kilometres; an absent or zero reading stays unset
	if obs.Visibility != nil && *obs.Visibility > 0 {
		km := *obs.Visibility / 1000
		snapshot.Visibility = &km
	}

	return snapshot, nil
}

func coordParams(coords domain.Coordinates) url.Values {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(coords.Latitude, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(coords.Longitude, 'f', -1, 64))
	params.Set("units", "metric")
	return params
}

func locationLabel(label string, coords domain.Coordinates) string {
	if label != "" {
		return label
	}
	return fmt.Sprintf("%v,%v", coords.Latitude, coords.Longitude)
}

// getJSON performs a GET through the circuit breaker and decodes a 200 response into out
func (c *OpenWeatherClient) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	params.Set("appid", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return &domain.ProviderError{Message: "failed to create request", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		r, doErr := c.httpClient.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
			return r, fmt.Errorf("upstream returned %d", r.StatusCode)
		}
		return r, nil
	})
	if err != nil && resp == nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return &domain.ProviderError{Message: "circuit breaker open", Err: err}
		}
		return &domain.ProviderError{Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &domain.ProviderError{Status: resp.StatusCode, Message: providerMessage(resp.Body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.ProviderError{Message: "failed to decode response", Err: err}
	}

	return nil
}

// providerMessage extracts OpenWeather's {"cod":..,"message":..} error body
func providerMessage(body io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(body, 4096))

	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}

	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		return "empty response body"
	}
	return msg
}
