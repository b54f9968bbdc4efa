package recommend

import "strings"

type diseaseAdvice struct {
	key   string
	steps []string
}

// diseaseTable is matched in order and the first key contained in the disease name wins,
// so an entry shadows any later key whose name it is a substring of. The order below is
// the long-standing one and changing it changes which advice farmers see.
var diseaseTable = []diseaseAdvice{
	{"healthy", []string{
		"✅ Your plant is healthy!",
		"🌱 Continue regular watering and fertilization",
		"☀️ Ensure adequate sunlight",
		"🔍 Monitor regularly for any changes",
	}},
	{"Early blight", []string{
		"🍂 Remove infected leaves immediately",
		"💧 Avoid overhead watering",
		"🧪 Apply copper-based fungicide",
		"🌾 Rotate crops next season",
	}},
	{"Late blight", []string{
		"⚠️ Remove and destroy infected plants",
		"💊 Apply fungicide containing chlorothalonil",
		"💨 Improve air circulation",
		"🚫 Avoid working with wet plants",
	}},
	{"Bacterial spot", []string{
		"🦠 Remove infected plant parts",
		"💧 Use drip irrigation instead of overhead",
		"🧪 Apply copper-based bactericide",
		"🌱 Plant resistant varieties next time",
	}},
	{"Powdery mildew", []string{
		"🍃 Remove affected leaves",
		"💨 Improve air circulation",
		"🧪 Spray with neem oil or sulfur",
		"☀️ Ensure plants get morning sun",
	}},
	{"Leaf Mold", []string{
		"🍂 Remove infected leaves",
		"💨 Increase ventilation",
		"💧 Reduce humidity",
		"🧪 Apply fungicide if severe",
	}},
}

var fallbackAdvice = []string{
	"🔍 Consult with agricultural expert",
	"📸 Take clear photos for diagnosis",
	"🌱 Isolate affected plants",
	"💧 Adjust watering schedule",
}

// ForDisease returns remediation steps for a predicted disease name.
func ForDisease(disease string) []string {
	steps, _ := MatchDisease(disease)
	return steps
}

// MatchDisease is ForDisease that also reports which table key matched ("" for the fallback).
func MatchDisease(disease string) ([]string, string) {
	name := strings.ToLower(disease)
	for _, a := range diseaseTable {
		if strings.Contains(name, strings.ToLower(a.key)) {
			return clone(a.steps), a.key
		}
	}
	return clone(fallbackAdvice), ""
}

// DiseaseKeys lists the table keys in match order.
func DiseaseKeys() []string {
	out := make([]string, len(diseaseTable))
	for i, a := range diseaseTable {
		out[i] = a.key
	}
	return out
}

func clone(s []string) []string {
	return append([]string(nil), s...)
}
