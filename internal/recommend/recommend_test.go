package recommend

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestForYieldIdealConditions(t *testing.T) {
	got := ForYield(Conditions{
		RainfallMM: 1200, TemperatureC: 25, HumidityPct: 60, PH: 6.5,
		Nitrogen: 80, Phosphorus: 40, Potassium: 40,
	}, 123.456)
	require.Equal(t, []string{
		"✅ Rainfall levels are optimal for crop growth",
		"🌡️ Temperature is ideal for crop cultivation",
		"✅ Humidity levels are good",
		"🌿 Soil pH is within acceptable range",
		"📊 Moderate nutrient levels - consider supplemental fertilization",
		"📈 Expected total production: 123.46 quintals",
	}, got)
}

func TestForYieldExtremes(t *testing.T) {
	low := ForYield(Conditions{RainfallMM: 554.9, TemperatureC: 10, HumidityPct: 30, PH: 4.9, Nitrogen: 20, Phosphorus: 20, Potassium: 20}, 0)
	require.Equal(t, RainfallRule.LowMsg, low[0])
	require.Equal(t, TemperatureRule.LowMsg, low[1])
	require.Equal(t, HumidityRule.LowMsg, low[2])
	require.Equal(t, "🧪 Soil pH not optimal - consider soil amendment", low[3])
	require.Equal(t, NutrientRule.LowMsg, low[4])

	high := ForYield(Conditions{RainfallMM: 2500, TemperatureC: 40, HumidityPct: 90, PH: 8.5, Nitrogen: 200, Phosphorus: 80, Potassium: 80}, 10)
	require.Equal(t, RainfallRule.HighMsg, high[0])
	require.Equal(t, TemperatureRule.HighMsg, high[1])
	require.Equal(t, HumidityRule.HighMsg, high[2])
	require.Equal(t, "🧪 Soil pH not optimal - consider soil amendment", high[3])
	require.Equal(t, NutrientRule.HighMsg, high[4])
	require.Equal(t, "📈 Expected total production: 10.00 quintals", high[5])
}

func TestRuleBoundariesAreIdeal(t *testing.T) {
	for _, r := range []Rule{RainfallRule, TemperatureRule, HumidityRule, PHRule, NutrientRule} {
		require.Equal(t, Ideal, r.Classify(r.Min), r.Name)
		require.Equal(t, Ideal, r.Classify(r.Max), r.Name)
		require.Equal(t, Low, r.Classify(r.Min-0.01), r.Name)
		require.Equal(t, High, r.Classify(r.Max+0.01), r.Name)
	}
}

func TestForYieldAlwaysSixLines(t *testing.T) {
	for _, c := range []Conditions{{}, {RainfallMM: 1e6, PH: 14}, {TemperatureC: -40, HumidityPct: 100}} {
		require.Len(t, ForYield(c, 1), 6)
	}
}

func TestForDisease(t *testing.T) {
	cases := []struct {
		disease string
		key     string
	}{
		{"healthy", "healthy"},
		{"Early blight", "Early blight"},
		{"late BLIGHT", "Late blight"},
		{"Bacterial spot", "Bacterial spot"},
		{"Powdery mildew", "Powdery mildew"},
		{"Leaf Mold", "Leaf Mold"},
		{"Tomato Yellow Leaf Curl Virus", ""},
		{"", ""},
	}
	for _, tc := range cases {
		steps, key := MatchDisease(tc.disease)
		require.Equal(t, tc.key, key, tc.disease)
		require.Len(t, steps, 4)
	}
	require.Equal(t, "🔍 Consult with agricultural expert", ForDisease("Septoria leaf spot")[0])
}

func TestForDiseaseFirstMatchWins(t *testing.T) {
	// "healthy" precedes every other key, so a name containing it and a later key resolves to healthy.
	_, key := MatchDisease("healthy after Early blight")
	require.Equal(t, "healthy", key)
	_, key = MatchDisease("Late blight with Leaf Mold")
	require.Equal(t, "Late blight", key)
}

func TestForDiseaseReturnsCopy(t *testing.T) {
	a := ForDisease("healthy")
	a[0] = "mutated"
	require.Equal(t, "✅ Your plant is healthy!", ForDisease("healthy")[0])
}

func TestDiseaseKeysOrder(t *testing.T) {
	require.Equal(t, []string{"healthy", "Early blight", "Late blight", "Bacterial spot", "Powdery mildew", "Leaf Mold"}, DiseaseKeys())
}
