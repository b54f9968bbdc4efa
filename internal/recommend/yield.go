// Package recommend turns predictions and field conditions into farmer advice.
package recommend

import (
	"fmt"
	"math"
)

// Band is the outcome of a three-way threshold classification.
type Band int

const (
	Low Band = iota
	Ideal
	High
)

func (b Band) String() string {
	switch b {
	case Low:
		return "low"
	case High:
		return "high"
	default:
		return "ideal"
	}
}

// Rule classifies one measurement: strictly below Min is Low, strictly above Max is High.
type Rule struct {
	Name     string
	Min, Max float64
	LowMsg   string
	IdealMsg string
	HighMsg  string
}

func (r Rule) Classify(v float64) Band {
	switch {
	case v < r.Min:
		return Low
	case v > r.Max:
		return High
	default:
		return Ideal
	}
}

func (r Rule) Message(v float64) string {
	switch r.Classify(v) {
	case Low:
		return r.LowMsg
	case High:
		return r.HighMsg
	default:
		return r.IdealMsg
	}
}

var (
	RainfallRule = Rule{
		Name: "rainfall", Min: 600, Max: 2000,
		LowMsg:   "💧 Low rainfall detected - ensure adequate irrigation",
		IdealMsg: "✅ Rainfall levels are optimal for crop growth",
		HighMsg:  "🌊 High rainfall - ensure proper drainage to prevent waterlogging",
	}
	TemperatureRule = Rule{
		Name: "temperature", Min: 15, Max: 35,
		LowMsg:   "❄️ Low temperature - consider protective measures",
		IdealMsg: "🌡️ Temperature is ideal for crop cultivation",
		HighMsg:  "🌡️ High temperature - ensure adequate water supply",
	}
	HumidityRule = Rule{
		Name: "humidity", Min: 40, Max: 80,
		LowMsg:   "🌵 Low humidity - increase irrigation frequency",
		IdealMsg: "✅ Humidity levels are good",
		HighMsg:  "💨 High humidity - monitor for fungal diseases",
	}
	// Acidic and alkaline soils share one message.
	PHRule = Rule{
		Name: "ph", Min: 5.5, Max: 8.0,
		LowMsg:   "🧪 Soil pH not optimal - consider soil amendment",
		IdealMsg: "🌿 Soil pH is within acceptable range",
		HighMsg:  "🧪 Soil pH not optimal - consider soil amendment",
	}
	NutrientRule = Rule{
		Name: "nutrients", Min: 100, Max: 300,
		LowMsg:   "🧪 Low nutrient levels - apply balanced fertilizers",
		IdealMsg: "📊 Moderate nutrient levels - consider supplemental fertilization",
		HighMsg:  "✅ Nutrient levels are good - maintain current fertilization",
	}
)

// Conditions are the field measurements the yield advice is based on.
type Conditions struct {
	RainfallMM   float64
	TemperatureC float64
	HumidityPct  float64
	PH           float64
	Nitrogen     float64
	Phosphorus   float64
	Potassium    float64
}

// TotalNutrients is N+P+K.
func (c Conditions) TotalNutrients() float64 {
	return c.Nitrogen + c.Phosphorus + c.Potassium
}

// ForYield returns one message per rule, in rule order, followed by the expected production line.
func ForYield(c Conditions, totalYield float64) []string {
	return []string{
		RainfallRule.Message(c.RainfallMM),
		TemperatureRule.Message(c.TemperatureC),
		HumidityRule.Message(c.HumidityPct),
		PHRule.Message(c.PH),
		NutrientRule.Message(c.TotalNutrients()),
		fmt.Sprintf("📈 Expected total production: %.2f quintals", Round2(totalYield)),
	}
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
