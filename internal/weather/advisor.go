package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/joseph-ayodele/farm-advisor/internal/common"
	"github.com/joseph-ayodele/farm-advisor/internal/llm"
)

// Advice sources.
const (
	SourceModel    = "model"
	SourceFallback = "fallback"
)

// Source supplies current conditions.
type Source interface {
	Current(ctx context.Context, city string) (Conditions, error)
}

// Advice is the weather snapshot plus the tips derived from it.
type Advice struct {
	Conditions Conditions       `json:"weather"`
	Items      []llm.AdviceItem `json:"advice"`
	Source     string           `json:"source"`
	FetchedAt  time.Time        `json:"fetched_at"`
	Cached     bool             `json:"cached"`
}

// Advisor answers "what should I do on the farm today" for a city.
type Advisor struct {
	weather Source
	gen     llm.Generator
	cache   *adviceCache
	logger  *slog.Logger
}

// NewAdvisor wires a weather source and an optional text generator. A nil generator
// always serves the fallback advice.
func NewAdvisor(weather Source, gen llm.Generator, ttl time.Duration, logger *slog.Logger) *Advisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Advisor{weather: weather, gen: gen, cache: newAdviceCache(ttl), logger: logger}
}

// Advice returns advice for city, from cache when fresh.
func (a *Advisor) Advice(ctx context.Context, city string) (Advice, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return Advice{}, common.InputError("Please enter a city name.", common.ErrInvalidInput)
	}
	if cached, ok := a.cache.get(city); ok {
		cached.Cached = true
		a.logger.Debug("weather.advice.cache_hit", "city", city)
		return cached, nil
	}

	cond, err := a.weather.Current(ctx, city)
	if err != nil {
		a.logger.Warn("weather.advice.fetch_failed", "city", city, "error", err)
		msg := fmt.Sprintf("Could not fetch weather for %s", city)
		switch {
		case errors.Is(err, ErrCityNotFound):
			return Advice{}, common.InputError(msg, err)
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return Advice{}, common.UpstreamError("Weather service unavailable", err)
		default:
			return Advice{}, common.UpstreamError(msg, err)
		}
	}

	text, source := a.generate(ctx, cond)
	out := Advice{
		Conditions: cond,
		Items:      llm.ParseAdvice(text),
		Source:     source,
		FetchedAt:  time.Now().UTC(),
	}
	a.cache.put(city, out)
	a.logger.Info("weather.advice.ok", "city", city, "items", len(out.Items), "source", source)
	return out, nil
}

func (a *Advisor) generate(ctx context.Context, cond Conditions) (string, string) {
	if a.gen == nil {
		return llm.FallbackAdvice, SourceFallback
	}
	text, err := a.gen.Generate(ctx, llm.BuildAdvicePrompt(llm.WeatherContext{
		City:        cond.City,
		Description: cond.Description,
		TempC:       cond.TempC,
		FeelsLikeC:  cond.FeelsLikeC,
		HumidityPct: cond.HumidityPct,
		PressureHPa: cond.PressureHPa,
		WindSpeedMS: cond.WindSpeedMS,
	}))
	if err != nil || strings.TrimSpace(text) == "" {
		a.logger.Warn("weather.advice.llm_fallback", "city", cond.City, "error", err)
		return llm.FallbackAdvice, SourceFallback
	}
	return text, SourceModel
}
