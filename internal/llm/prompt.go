package llm

import (
	"fmt"
	"strings"
)

// BuildAdvicePrompt asks for short, actionable farming tips for the given weather.
func BuildAdvicePrompt(w WeatherContext) string {
	parts := []string{
		fmt.Sprintf("You are an agricultural expert. The weather in %s today is:", strings.TrimSpace(w.City)),
		"- Condition: " + w.Description,
		fmt.Sprintf("- Temperature: %g°C (feels like %g°C)", w.TempC, w.FeelsLikeC),
		fmt.Sprintf("- Humidity: %g%%", w.HumidityPct),
		fmt.Sprintf("- Pressure: %g hPa", w.PressureHPa),
		fmt.Sprintf("- Wind Speed: %g m/s", w.WindSpeedMS),
		"",
		"Provide **short and actionable farming advice** in bullet points.",
		"Each point should be 1-2 sentences.",
		"Output only the points, no long paragraphs.",
		"Example:",
		"1. **Tip heading:** short advice.",
	}
	return strings.Join(parts, "\n")
}

// FallbackAdvice is served when the model cannot be reached.
const FallbackAdvice = "1. 🌱 Irrigation: Water crops early morning or late evening.\n" +
	"2. 🌿 Fertilizer: Apply only as needed.\n" +
	"3. 🐞 Pests: Check crops daily for insects.\n" +
	"4. 🌾 Harvest: Harvest on time to avoid loss.\n" +
	"5. 🏡 Soil: Add compost for healthy soil.\n" +
	"6. ☔ Weather: Protect crops from heavy rain.\n" +
	"7. 🧹 Hygiene: Clean tools to prevent disease."
