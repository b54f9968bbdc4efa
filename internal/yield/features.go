// Package yield estimates crop production from field conditions.
package yield

import (
	"github.com/joseph-ayodele/farm-advisor/constants"
	"github.com/joseph-ayodele/farm-advisor/internal/predictor"
	"github.com/joseph-ayodele/farm-advisor/internal/recommend"
)

// Query is what a farmer supplies. It is treated as an immutable value.
type Query struct {
	Crop         string  `json:"crop"`
	Region       string  `json:"region"`
	RainfallMM   float64 `json:"rainfall_mm"`
	TemperatureC float64 `json:"temperature_c"`
	HumidityPct  float64 `json:"humidity_pct"`
	PH           float64 `json:"ph"`
	Nitrogen     float64 `json:"nitrogen"`
	Phosphorus   float64 `json:"phosphorus"`
	Potassium    float64 `json:"potassium"`
	AreaHectares float64 `json:"area_hectares"`
}

// PesticideProxyNote is attached to every result that used PesticideProxy.
const PesticideProxyNote = "pesticide usage is estimated as (N+P+K)/10; it is a stand-in for real pesticide data, not a measurement"

// PesticideProxy substitutes for the pesticide tonnage the model was trained on.
// It is a heuristic, not measured data, and can bias predictions.
func PesticideProxy(n, p, k float64) float64 {
	return (n + p + k) / 10
}

// CatalogCrop maps a farmer-facing crop name to the model's item name, passing unknown names through.
func CatalogCrop(crop string) string {
	if mapped, ok := constants.CropCatalogNames[crop]; ok {
		return mapped
	}
	return crop
}

// BuildFeatures turns a query into the regressor's feature vector.
func BuildFeatures(q Query) predictor.YieldFeatureVector {
	return predictor.YieldFeatureVector{
		Year:           constants.ModelYear,
		RainfallMM:     q.RainfallMM,
		PesticideProxy: PesticideProxy(q.Nitrogen, q.Phosphorus, q.Potassium),
		TemperatureC:   q.TemperatureC,
		Region:         q.Region,
		Crop:           CatalogCrop(q.Crop),
	}
}

// ToQuintalsPerHectare converts the model's hg/ha output.
func ToQuintalsPerHectare(raw float64) float64 {
	return raw / 10
}

func (q Query) conditions() recommend.Conditions {
	return recommend.Conditions{
		RainfallMM:   q.RainfallMM,
		TemperatureC: q.TemperatureC,
		HumidityPct:  q.HumidityPct,
		PH:           q.PH,
		Nitrogen:     q.Nitrogen,
		Phosphorus:   q.Phosphorus,
		Potassium:    q.Potassium,
	}
}
