// Package soil reads pH and N/P/K values out of soil-test report text and images.
package soil

import (
	"regexp"
	"strconv"
	"strings"
)

// Reading holds the values found in a soil report. Each field is independently
// present or absent; a value of zero is present.
type Reading struct {
	PH         *float64 `json:"ph"`
	Nitrogen   *float64 `json:"nitrogen"`
	Phosphorus *float64 `json:"phosphorus"`
	Potassium  *float64 `json:"potassium"`
}

// Empty reports whether no value was found.
func (r Reading) Empty() bool {
	return r.PH == nil && r.Nitrogen == nil && r.Phosphorus == nil && r.Potassium == nil
}

// Found counts the present values.
func (r Reading) Found() int {
	n := 0
	for _, v := range []*float64{r.PH, r.Nitrogen, r.Phosphorus, r.Potassium} {
		if v != nil {
			n++
		}
	}
	return n
}

const number = `([0-9]+\.?[0-9]*)`
const sep = `[:\s\-_=]*`

func patterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(`(?im)`+e))
	}
	return out
}

// Patterns are tried in order; the first one that yields a usable number wins.
var (
	phPatterns = patterns(
		`pH`+sep+number,
		`pH\s*value`+sep+number,
		`Soil[\s_]pH`+sep+number,
		`(?:^|\s)pH`+sep+number,
	)
	nitrogenPatterns = patterns(
		`Nitrogen`+sep+number,
		`(?:^|\s|\()N`+sep+number,
		`Available[\s_]N`+sep+number,
		`N[\s_]content`+sep+number,
	)
	phosphorusPatterns = patterns(
		`Phosphorus`+sep+number,
		`(?:^|\s|\()P`+sep+number,
		`Available[\s_]P`+sep+number,
		`P2O5`+sep+number,
		`P[\s_]content`+sep+number,
	)
	potassiumPatterns = patterns(
		`Potassium`+sep+number,
		`(?:^|\s|\()K`+sep+number,
		`Available[\s_]K`+sep+number,
		`K2O`+sep+number,
		`K[\s_]content`+sep+number,
	)
)

func validPH(v float64) bool { return v >= 0 && v <= 14 }

func anyValue(float64) bool { return true }

// ExtractReading scans OCR text for soil values. ok is false when nothing was found.
func ExtractReading(text string) (r Reading, ok bool) {
	if strings.TrimSpace(text) == "" {
		return Reading{}, false
	}
	r.PH = firstMatch(text, phPatterns, validPH)
	r.Nitrogen = firstMatch(text, nitrogenPatterns, anyValue)
	r.Phosphorus = firstMatch(text, phosphorusPatterns, anyValue)
	r.Potassium = firstMatch(text, potassiumPatterns, anyValue)
	return r, !r.Empty()
}

// firstMatch walks the patterns in priority order and every match of each,
// returning the first number that parses and passes accept.
func firstMatch(text string, pats []*regexp.Regexp, accept func(float64) bool) *float64 {
	for _, re := range pats {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			raw := text[m[2]:m[3]]
			if oxideSubscript(text, m[2], m[3]) {
				continue
			}
			v, err := parseNumber(raw)
			if err != nil || !accept(v) {
				continue
			}
			return &v
		}
	}
	return nil
}

// oxideSubscript reports the "2" of P2O5 or K2O captured through a
// single-letter P or K label.
func oxideSubscript(text string, start, end int) bool {
	if end-start != 1 || text[start] != '2' || start == 0 || end >= len(text) {
		return false
	}
	switch text[start-1] {
	case 'P', 'p', 'K', 'k':
	default:
		return false
	}
	return text[end] == 'O' || text[end] == 'o'
}

// parseNumber parses a captured number, trailing dot included.
func parseNumber(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSuffix(s, "."), 64)
}
