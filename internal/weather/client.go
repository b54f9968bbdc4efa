// Package weather fetches current conditions and turns them into farming advice.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// ErrCityNotFound is returned when the provider does not know the city.
var ErrCityNotFound = errors.New("city not found")

// Conditions is a current-weather snapshot in metric units.
type Conditions struct {
	City        string  `json:"city"`
	Description string  `json:"description"`
	TempC       float64 `json:"temp_c"`
	FeelsLikeC  float64 `json:"feels_like_c"`
	HumidityPct float64 `json:"humidity_pct"`
	PressureHPa float64 `json:"pressure_hpa"`
	WindSpeedMS float64 `json:"wind_speed_ms"`
}

// ClientConfig configures the OpenWeatherMap client.
type ClientConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	// BreakerFailures consecutive failures open the breaker for BreakerOpen.
	BreakerFailures int
	BreakerOpen     time.Duration
	MaxRetries      int
	HTTPClient      *http.Client
}

// Client reads current weather from the OpenWeatherMap API.
type Client struct {
	cfg    ClientConfig
	http   *http.Client
	cb     *gobreaker.CircuitBreaker
	logger *slog.Logger
}

func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openweathermap.org"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = 3
	}
	if cfg.BreakerOpen <= 0 {
		cfg.BreakerOpen = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	c := &Client{cfg: cfg, http: hc, logger: logger}
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "openweathermap",
		Interval: time.Minute,
		Timeout:  cfg.BreakerOpen,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.BreakerFailures)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrCityNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("weather.breaker.state", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// BreakerState reports the circuit breaker state ("closed", "half-open", "open").
func (c *Client) BreakerState() string { return c.cb.State().String() }

type owmResponse struct {
	Cod     any    `json:"cod"`
	Message string `json:"message"`
	Name    string `json:"name"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  float64 `json:"humidity"`
		Pressure  float64 `json:"pressure"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

// Current returns the conditions for city. Transient failures are retried with
// exponential backoff inside the breaker.
func (c *Client) Current(ctx context.Context, city string) (Conditions, error) {
	city = strings.TrimSpace(city)
	out, err := c.cb.Execute(func() (interface{}, error) {
		var cond Conditions
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = 100 * time.Millisecond
		bo.MaxElapsedTime = c.cfg.Timeout
		err := backoff.Retry(func() error {
			var err error
			cond, err = c.fetch(ctx, city)
			return err
		}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(c.cfg.MaxRetries)), ctx))
		return cond, err
	})
	if err != nil {
		return Conditions{}, err
	}
	return out.(Conditions), nil
}

func (c *Client) fetch(ctx context.Context, city string) (Conditions, error) {
	q := url.Values{}
	q.Set("q", city)
	q.Set("appid", c.cfg.APIKey)
	q.Set("units", "metric")
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/data/2.5/weather?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Conditions{}, backoff.Permanent(err)
	}
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("weather.fetch.send_error", "city", city, "error", err)
		return Conditions{}, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Conditions{}, err
	}
	c.logger.Debug("weather.fetch.response", "city", city, "status", resp.StatusCode, "elapsed_ms", time.Since(start).Milliseconds())

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Conditions{}, backoff.Permanent(fmt.Errorf("%w: %s", ErrCityNotFound, city))
	case resp.StatusCode == http.StatusUnauthorized:
		return Conditions{}, backoff.Permanent(errors.New("weather API key rejected"))
	case resp.StatusCode/100 != 2:
		return Conditions{}, fmt.Errorf("weather api: http %d", resp.StatusCode)
	}

	var body owmResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return Conditions{}, backoff.Permanent(fmt.Errorf("decode weather: %w", err))
	}
	cond := Conditions{
		City:        body.Name,
		TempC:       body.Main.Temp,
		FeelsLikeC:  body.Main.FeelsLike,
		HumidityPct: body.Main.Humidity,
		PressureHPa: body.Main.Pressure,
		WindSpeedMS: body.Wind.Speed,
	}
	if cond.City == "" {
		cond.City = city
	}
	if len(body.Weather) > 0 {
		cond.Description = body.Weather[0].Description
	}
	return cond, nil
}
