package ocr

import (
	"regexp"
	"strings"
)

var (
	reSoilTerm = regexp.MustCompile(`\b(ph|nitrogen|phosphorus|potassium|p2o5|k2o|organic carbon|soil)\b`)
	reUnit     = regexp.MustCompile(`\b(kg/ha|ppm|mg/kg|%)`)
	reDecimal  = regexp.MustCompile(`\b\d+\.\d+\b`)
)

// naive heuristic confidence based on decoded text characteristics
func heuristicConfidence(txt string) float32 {
	// boost for soil-report artifacts: nutrient names, units, decimal readings
	txtL := strings.ToLower(txt)
	score := float32(0.2) // base
	if n := len(reSoilTerm.FindAllString(txtL, -1)); n > 0 {
		score += 0.1 * float32(min(n, 3))
	}
	if reUnit.MatchString(txtL) {
		score += 0.15
	}
	if reDecimal.MatchString(txtL) {
		score += 0.15
	}
	if len(txt) > 120 {
		score += 0.1
	} // enough content
	if score > 1.0 {
		score = 1.0
	}
	return score
}
