package yield

import (
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/farm-advisor/internal/common"
)

func numberProp() map[string]any { return map[string]any{"type": "number"} }

// BuildQueryJSONSchema returns the request schema for a yield query.
// Range checks live in Validate so their messages stay readable.
func BuildQueryJSONSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"crop":          map[string]any{"type": "string", "minLength": 1},
			"region":        map[string]any{"type": "string", "minLength": 1},
			"rainfall_mm":   numberProp(),
			"temperature_c": numberProp(),
			"humidity_pct":  numberProp(),
			"ph":            numberProp(),
			"nitrogen":      numberProp(),
			"phosphorus":    numberProp(),
			"potassium":     numberProp(),
			"area_hectares": numberProp(),
		},
		"required": []string{
			"crop", "region", "rainfall_mm", "temperature_c", "humidity_pct",
			"ph", "nitrogen", "phosphorus", "potassium", "area_hectares",
		},
	}
}

var querySchema *jsonschema.Schema

func init() {
	s, err := common.CompileSchema("yield-query.json", BuildQueryJSONSchema())
	if err != nil {
		panic(err)
	}
	querySchema = s
}

// DecodeQuery validates raw JSON against the query schema, decodes it and checks ranges.
func DecodeQuery(data []byte) (Query, error) {
	if err := common.ValidateJSON(querySchema, data); err != nil {
		return Query{}, common.InputError("Please fill in every field with a valid number.", err)
	}
	var q Query
	if err := json.Unmarshal(data, &q); err != nil {
		return Query{}, common.InputError("Please fill in every field with a valid number.", err)
	}
	return q, q.Validate()
}

// Validate checks value ranges. It returns an INPUT AppError listing every problem.
func (q Query) Validate() error {
	return common.NewValidator().
		Field("crop", q.Crop, common.Required).
		Field("region", q.Region, common.Required).
		Field("rainfall_mm", q.RainfallMM, common.Between(0, 12000)).
		Field("temperature_c", q.TemperatureC, common.Between(-50, 60)).
		Field("humidity_pct", q.HumidityPct, common.Between(0, 100)).
		Field("ph", q.PH, common.Between(0, 14)).
		Field("nitrogen", q.Nitrogen, common.Between(0, 2000)).
		Field("phosphorus", q.Phosphorus, common.Between(0, 2000)).
		Field("potassium", q.Potassium, common.Between(0, 2000)).
		Field("area_hectares", q.AreaHectares, common.Positive).
		AppError()
}
