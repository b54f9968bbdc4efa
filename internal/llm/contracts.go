// Package llm holds the prompt and response handling for the farming-advice model.
package llm

import "context"

// Generator produces free text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// WeatherContext is the current-weather snapshot advice is asked for.
type WeatherContext struct {
	City        string
	Description string
	TempC       float64
	FeelsLikeC  float64
	HumidityPct float64
	PressureHPa float64
	WindSpeedMS float64
}

// AdviceItem is one bullet of advice. Heading is empty for unstructured lines.
type AdviceItem struct {
	Heading string `json:"heading,omitempty"`
	Text    string `json:"text"`
}
