// Package disease turns a leaf photo into a diagnosis with remediation advice.
package disease

import "strings"

const labelSeparator = "___"

// UnknownDisease is reported for a label without a disease part.
const UnknownDisease = "Unknown"

// ParseLabel splits a "Plant___Disease" class name into display names,
// replacing underscores with spaces.
func ParseLabel(label string) (plant, disease string) {
	parts := strings.Split(label, labelSeparator)
	plant = strings.ReplaceAll(parts[0], "_", " ")
	if len(parts) < 2 {
		return plant, UnknownDisease
	}
	return plant, strings.ReplaceAll(parts[1], "_", " ")
}
